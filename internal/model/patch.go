package model

import (
	"encoding/json"
	"fmt"
	"reflect"
)

// Patch is a partial update of an element. Nil fields are left untouched.
type Patch struct {
	PositionX       *float64 `json:"position_x,omitempty"`
	PositionY       *float64 `json:"position_y,omitempty"`
	Width           *float64 `json:"width,omitempty"`
	Height          *float64 `json:"height,omitempty"`
	RotationDegrees *float64 `json:"rotation_degrees,omitempty"`
	ZIndex          *int     `json:"z_index,omitempty"`
	Locked          *bool    `json:"locked,omitempty"`
	Content         Content  `json:"content,omitempty"`
	Style           Style    `json:"style,omitempty"`
}

// Float returns a pointer to v, for building patches inline.
func Float(v float64) *float64 { return &v }

// Int returns a pointer to v.
func Int(v int) *int { return &v }

// Bool returns a pointer to v.
func Bool(v bool) *bool { return &v }

// Field names as they appear on the wire.
const (
	FieldPositionX = "position_x"
	FieldPositionY = "position_y"
	FieldWidth     = "width"
	FieldHeight    = "height"
	FieldRotation  = "rotation_degrees"
	FieldZIndex    = "z_index"
	FieldLocked    = "locked"
	FieldContent   = "content"
	FieldStyle     = "style"
)

// Fields lists the wire names of the fields set in p.
func (p Patch) Fields() []string {
	var f []string
	if p.PositionX != nil {
		f = append(f, FieldPositionX)
	}
	if p.PositionY != nil {
		f = append(f, FieldPositionY)
	}
	if p.Width != nil {
		f = append(f, FieldWidth)
	}
	if p.Height != nil {
		f = append(f, FieldHeight)
	}
	if p.RotationDegrees != nil {
		f = append(f, FieldRotation)
	}
	if p.ZIndex != nil {
		f = append(f, FieldZIndex)
	}
	if p.Locked != nil {
		f = append(f, FieldLocked)
	}
	if p.Content != nil {
		f = append(f, FieldContent)
	}
	if p.Style != nil {
		f = append(f, FieldStyle)
	}
	return f
}

// IsEmpty reports whether no field is set.
func (p Patch) IsEmpty() bool {
	return len(p.Fields()) == 0
}

// GeometryPatch builds a patch that sets every geometry field to g.
func GeometryPatch(g Geometry) Patch {
	return Patch{
		PositionX:       Float(g.PositionX),
		PositionY:       Float(g.PositionY),
		Width:           Float(g.Width),
		Height:          Float(g.Height),
		RotationDegrees: Float(g.RotationDegrees),
	}
}

// Diff returns the patch that turns before into after, holding only the
// fields whose values differ.
func Diff(before, after BoardElement) Patch {
	var p Patch
	if before.PositionX != after.PositionX {
		p.PositionX = Float(after.PositionX)
	}
	if before.PositionY != after.PositionY {
		p.PositionY = Float(after.PositionY)
	}
	if before.Width != after.Width {
		p.Width = Float(after.Width)
	}
	if before.Height != after.Height {
		p.Height = Float(after.Height)
	}
	if before.RotationDegrees != after.RotationDegrees {
		p.RotationDegrees = Float(after.RotationDegrees)
	}
	if before.ZIndex != after.ZIndex {
		p.ZIndex = Int(after.ZIndex)
	}
	if before.Locked != after.Locked {
		p.Locked = Bool(after.Locked)
	}
	if !reflect.DeepEqual(before.Content, after.Content) && after.Content != nil {
		p.Content = after.Content.CloneContent()
	}
	if !reflect.DeepEqual(before.Style, after.Style) && after.Style != nil {
		p.Style = after.Style.CloneStyle()
	}
	return p
}

type patchJSON struct {
	PositionX       *float64        `json:"position_x,omitempty"`
	PositionY       *float64        `json:"position_y,omitempty"`
	Width           *float64        `json:"width,omitempty"`
	Height          *float64        `json:"height,omitempty"`
	RotationDegrees *float64        `json:"rotation_degrees,omitempty"`
	ZIndex          *int            `json:"z_index,omitempty"`
	Locked          *bool           `json:"locked,omitempty"`
	Content         json.RawMessage `json:"content,omitempty"`
	Style           json.RawMessage `json:"style,omitempty"`
}

// DecodePatch decodes a wire patch for an element of type t. The type is
// needed to pick the content and style variants.
func DecodePatch(t ElementType, data []byte) (Patch, error) {
	var raw patchJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return Patch{}, fmt.Errorf("decode patch: %w", err)
	}
	p := Patch{
		PositionX:       raw.PositionX,
		PositionY:       raw.PositionY,
		Width:           raw.Width,
		Height:          raw.Height,
		RotationDegrees: raw.RotationDegrees,
		ZIndex:          raw.ZIndex,
		Locked:          raw.Locked,
	}
	if len(raw.Content) > 0 && string(raw.Content) != "null" {
		c, err := DecodeContent(t, raw.Content)
		if err != nil {
			return Patch{}, err
		}
		p.Content = c
	}
	if len(raw.Style) > 0 && string(raw.Style) != "null" {
		s, err := DecodeStyle(t, raw.Style)
		if err != nil {
			return Patch{}, err
		}
		p.Style = s
	}
	return p, nil
}
