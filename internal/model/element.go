package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"realtime-board/internal/geom"
)

// ErrPayloadMismatch is returned when content or style does not belong to
// the element's type.
var ErrPayloadMismatch = errors.New("payload does not match element type")

// Geometry 요소 위치/크기/회전
type Geometry struct {
	PositionX       float64 `json:"position_x"`
	PositionY       float64 `json:"position_y"`
	Width           float64 `json:"width"`
	Height          float64 `json:"height"`
	RotationDegrees float64 `json:"rotation_degrees"`
}

// Bounds returns the unrotated bounding box.
func (g Geometry) Bounds() geom.Rect {
	return geom.Rect{X: g.PositionX, Y: g.PositionY, Width: g.Width, Height: g.Height}
}

// Normalize enforces the minimum size and folds rotation into [0, 360).
// Non-finite sizes become the minimum, other non-finite fields zero.
func (g Geometry) Normalize() Geometry {
	if !finite(g.Width) || g.Width < MinElementSize {
		g.Width = MinElementSize
	}
	if !finite(g.Height) || g.Height < MinElementSize {
		g.Height = MinElementSize
	}
	if !finite(g.PositionX) {
		g.PositionX = 0
	}
	if !finite(g.PositionY) {
		g.PositionY = 0
	}
	if !finite(g.RotationDegrees) {
		g.RotationDegrees = 0
	}
	g.RotationDegrees = geom.NormalizeDegrees(g.RotationDegrees)
	return g
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// BoardElement 보드 위의 요소 하나
type BoardElement struct {
	ID      string      `json:"id"`
	BoardID string      `json:"board_id"`
	Type    ElementType `json:"type"`
	Geometry
	ZIndex    int       `json:"z_index"`
	Locked    bool      `json:"locked"`
	Content   Content   `json:"content"`
	Style     Style     `json:"style"`
	CreatedBy string    `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewElement builds an element of type t with default size, content and
// style, its top-left corner at pos. ZIndex is left for the store to assign.
func NewElement(boardID string, t ElementType, pos geom.Point, createdBy string) (BoardElement, error) {
	if !t.Valid() {
		return BoardElement{}, fmt.Errorf("unknown element type %q", t)
	}
	w, h := DefaultSize(t)
	now := time.Now().UTC()
	return BoardElement{
		ID:      uuid.NewString(),
		BoardID: boardID,
		Type:    t,
		Geometry: Geometry{
			PositionX: pos.X,
			PositionY: pos.Y,
			Width:     w,
			Height:    h,
		},
		Content:   DefaultContent(t),
		Style:     DefaultStyle(t),
		CreatedBy: createdBy,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// Clone returns a deep copy.
func (e BoardElement) Clone() BoardElement {
	if e.Content != nil {
		e.Content = e.Content.CloneContent()
	}
	if e.Style != nil {
		e.Style = e.Style.CloneStyle()
	}
	return e
}

// Validate checks the type tag and that both payloads belong to it.
func (e BoardElement) Validate() error {
	if e.ID == "" {
		return errors.New("element id is required")
	}
	if !e.Type.Valid() {
		return fmt.Errorf("unknown element type %q", e.Type)
	}
	if e.Content != nil && !Accepts(e.Content, e.Type) {
		return fmt.Errorf("content %T on %s: %w", e.Content, e.Type, ErrPayloadMismatch)
	}
	if e.Style != nil && !Accepts(e.Style, e.Type) {
		return fmt.Errorf("style %T on %s: %w", e.Style, e.Type, ErrPayloadMismatch)
	}
	return nil
}

// elementJSON mirrors BoardElement with raw payloads so that decoding can
// pick the variant after reading the type tag.
type elementJSON struct {
	ID      string      `json:"id"`
	BoardID string      `json:"board_id"`
	Type    ElementType `json:"type"`
	Geometry
	ZIndex    int             `json:"z_index"`
	Locked    bool            `json:"locked"`
	Content   json.RawMessage `json:"content"`
	Style     json.RawMessage `json:"style"`
	CreatedBy string          `json:"created_by"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// UnmarshalJSON decodes content and style into the variant named by type.
func (e *BoardElement) UnmarshalJSON(data []byte) error {
	var raw elementJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if !raw.Type.Valid() {
		return fmt.Errorf("unknown element type %q", raw.Type)
	}
	content, err := DecodeContent(raw.Type, raw.Content)
	if err != nil {
		return err
	}
	style, err := DecodeStyle(raw.Type, raw.Style)
	if err != nil {
		return err
	}
	*e = BoardElement{
		ID:        raw.ID,
		BoardID:   raw.BoardID,
		Type:      raw.Type,
		Geometry:  raw.Geometry,
		ZIndex:    raw.ZIndex,
		Locked:    raw.Locked,
		Content:   content,
		Style:     style,
		CreatedBy: raw.CreatedBy,
		CreatedAt: raw.CreatedAt,
		UpdatedAt: raw.UpdatedAt,
	}
	return nil
}
