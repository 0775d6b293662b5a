package model

import (
	"encoding/json"
	"fmt"
	"slices"

	colorful "github.com/lucasb-eyer/go-colorful"
)

// Content is the type-specific payload of an element. The concrete type is
// fixed by the element's Type; see ContentFor.
type Content interface {
	// ElementTypes lists the element types this payload can belong to.
	ElementTypes() []ElementType
	CloneContent() Content
}

// Style is the type-specific visual payload of an element.
type Style interface {
	ElementTypes() []ElementType
	CloneStyle() Style
	// normalized returns a copy with colors canonicalized and invalid
	// values replaced by the type defaults.
	normalized() Style
}

// TextContent 텍스트 요소 내용
type TextContent struct {
	Text string `json:"text"`
}

func (TextContent) ElementTypes() []ElementType { return []ElementType{ElementText} }
func (c TextContent) CloneContent() Content     { return c }

// ShapeContent 도형 요소 내용
type ShapeContent struct {
	Kind  ShapeKind `json:"kind"`
	Label string    `json:"label,omitempty"`
}

func (ShapeContent) ElementTypes() []ElementType { return []ElementType{ElementShape} }
func (c ShapeContent) CloneContent() Content     { return c }

// StickyContent 스티키 노트 내용
type StickyContent struct {
	Text string `json:"text"`
}

func (StickyContent) ElementTypes() []ElementType { return []ElementType{ElementSticky} }
func (c StickyContent) CloneContent() Content     { return c }

// MediaContent is shared by image and video elements.
type MediaContent struct {
	URL    string `json:"url"`
	Title  string `json:"title,omitempty"`
	Poster string `json:"poster,omitempty"`
}

func (MediaContent) ElementTypes() []ElementType {
	return []ElementType{ElementImage, ElementVideo}
}
func (c MediaContent) CloneContent() Content { return c }

// FrameContent groups other elements by id.
type FrameContent struct {
	Title    string   `json:"title"`
	Children []string `json:"children"`
}

func (FrameContent) ElementTypes() []ElementType { return []ElementType{ElementFrame} }

func (c FrameContent) CloneContent() Content {
	c.Children = slices.Clone(c.Children)
	return c
}

// TextStyle 텍스트 스타일
type TextStyle struct {
	Color      string  `json:"color"`
	FontFamily string  `json:"font_family"`
	FontSize   float64 `json:"font_size"`
	FontWeight string  `json:"font_weight,omitempty"`
	Align      string  `json:"align,omitempty"`
}

func (TextStyle) ElementTypes() []ElementType { return []ElementType{ElementText} }
func (s TextStyle) CloneStyle() Style         { return s }

func (s TextStyle) normalized() Style {
	d := DefaultStyle(ElementText).(TextStyle)
	s.Color = normalizeColor(s.Color, d.Color)
	if s.FontFamily == "" {
		s.FontFamily = d.FontFamily
	}
	if s.FontSize <= 0 {
		s.FontSize = d.FontSize
	}
	switch s.Align {
	case "", "left", "center", "right":
	default:
		s.Align = ""
	}
	return s
}

// ShapeStyle 도형 스타일
type ShapeStyle struct {
	Fill        string  `json:"fill"`
	Stroke      string  `json:"stroke"`
	StrokeWidth float64 `json:"stroke_width"`
	Opacity     float64 `json:"opacity"`
}

func (ShapeStyle) ElementTypes() []ElementType { return []ElementType{ElementShape} }
func (s ShapeStyle) CloneStyle() Style         { return s }

func (s ShapeStyle) normalized() Style {
	d := DefaultStyle(ElementShape).(ShapeStyle)
	s.Fill = normalizeColor(s.Fill, d.Fill)
	s.Stroke = normalizeColor(s.Stroke, d.Stroke)
	if s.StrokeWidth < 0 {
		s.StrokeWidth = d.StrokeWidth
	}
	s.Opacity = normalizeOpacity(s.Opacity)
	return s
}

// StickyStyle 스티키 노트 스타일
type StickyStyle struct {
	Background string  `json:"background"`
	TextColor  string  `json:"text_color"`
	FontSize   float64 `json:"font_size"`
}

func (StickyStyle) ElementTypes() []ElementType { return []ElementType{ElementSticky} }
func (s StickyStyle) CloneStyle() Style         { return s }

func (s StickyStyle) normalized() Style {
	d := DefaultStyle(ElementSticky).(StickyStyle)
	s.Background = normalizeColor(s.Background, d.Background)
	s.TextColor = normalizeColor(s.TextColor, d.TextColor)
	if s.FontSize <= 0 {
		s.FontSize = d.FontSize
	}
	return s
}

// MediaStyle is shared by image and video elements.
type MediaStyle struct {
	BorderColor  string  `json:"border_color"`
	BorderWidth  float64 `json:"border_width"`
	CornerRadius float64 `json:"corner_radius"`
	Opacity      float64 `json:"opacity"`
}

func (MediaStyle) ElementTypes() []ElementType {
	return []ElementType{ElementImage, ElementVideo}
}
func (s MediaStyle) CloneStyle() Style { return s }

func (s MediaStyle) normalized() Style {
	d := DefaultStyle(ElementImage).(MediaStyle)
	s.BorderColor = normalizeColor(s.BorderColor, d.BorderColor)
	if s.BorderWidth < 0 {
		s.BorderWidth = 0
	}
	if s.CornerRadius < 0 {
		s.CornerRadius = 0
	}
	s.Opacity = normalizeOpacity(s.Opacity)
	return s
}

// FrameStyle 프레임 스타일
type FrameStyle struct {
	Background  string  `json:"background"`
	BorderColor string  `json:"border_color"`
	BorderWidth float64 `json:"border_width"`
}

func (FrameStyle) ElementTypes() []ElementType { return []ElementType{ElementFrame} }
func (s FrameStyle) CloneStyle() Style         { return s }

func (s FrameStyle) normalized() Style {
	d := DefaultStyle(ElementFrame).(FrameStyle)
	s.Background = normalizeColor(s.Background, d.Background)
	s.BorderColor = normalizeColor(s.BorderColor, d.BorderColor)
	if s.BorderWidth < 0 {
		s.BorderWidth = d.BorderWidth
	}
	return s
}

// NormalizeStyle canonicalizes colors and numeric ranges of s.
func NormalizeStyle(s Style) Style {
	if s == nil {
		return nil
	}
	return s.normalized()
}

// normalizeColor returns c as lowercase #rrggbb, "transparent" unchanged,
// or fallback when c does not parse.
func normalizeColor(c, fallback string) string {
	if c == "transparent" {
		return c
	}
	parsed, err := colorful.Hex(c)
	if err != nil {
		return fallback
	}
	return parsed.Hex()
}

func normalizeOpacity(o float64) float64 {
	if o <= 0 || o > 1 {
		return 1
	}
	return o
}

// Accepts reports whether a payload may belong to an element of type t.
func Accepts(p interface{ ElementTypes() []ElementType }, t ElementType) bool {
	return p != nil && slices.Contains(p.ElementTypes(), t)
}

// DefaultContent returns the content a freshly created element of type t gets.
func DefaultContent(t ElementType) Content {
	switch t {
	case ElementText:
		return TextContent{Text: "Text"}
	case ElementShape:
		return ShapeContent{Kind: ShapeRectangle}
	case ElementSticky:
		return StickyContent{}
	case ElementImage, ElementVideo:
		return MediaContent{}
	case ElementFrame:
		return FrameContent{Title: "Frame", Children: []string{}}
	}
	return nil
}

// DefaultStyle returns the style a freshly created element of type t gets.
func DefaultStyle(t ElementType) Style {
	switch t {
	case ElementText:
		return TextStyle{Color: "#1f2937", FontFamily: "Inter", FontSize: 16, Align: "left"}
	case ElementShape:
		return ShapeStyle{Fill: "#93c5fd", Stroke: "#1e3a8a", StrokeWidth: 2, Opacity: 1}
	case ElementSticky:
		return StickyStyle{Background: "#fde68a", TextColor: "#1f2937", FontSize: 14}
	case ElementImage, ElementVideo:
		return MediaStyle{BorderColor: "#e5e7eb", BorderWidth: 0, Opacity: 1}
	case ElementFrame:
		return FrameStyle{Background: "#ffffff", BorderColor: "#9ca3af", BorderWidth: 1}
	}
	return nil
}

// DefaultSize returns the width and height of a freshly created element.
func DefaultSize(t ElementType) (float64, float64) {
	switch t {
	case ElementText:
		return 200, 40
	case ElementShape:
		return 150, 100
	case ElementSticky:
		return 200, 200
	case ElementImage, ElementVideo:
		return 320, 180
	case ElementFrame:
		return 400, 300
	}
	return 100, 100
}

// DecodeContent decodes raw JSON into the content variant of type t.
// Empty input yields the type default.
func DecodeContent(t ElementType, raw []byte) (Content, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return DefaultContent(t), nil
	}
	var (
		c   Content
		err error
	)
	switch t {
	case ElementText:
		var v TextContent
		err = json.Unmarshal(raw, &v)
		c = v
	case ElementShape:
		var v ShapeContent
		err = json.Unmarshal(raw, &v)
		if !v.Kind.Valid() {
			v.Kind = ShapeRectangle
		}
		c = v
	case ElementSticky:
		var v StickyContent
		err = json.Unmarshal(raw, &v)
		c = v
	case ElementImage, ElementVideo:
		var v MediaContent
		err = json.Unmarshal(raw, &v)
		c = v
	case ElementFrame:
		var v FrameContent
		err = json.Unmarshal(raw, &v)
		if v.Children == nil {
			v.Children = []string{}
		}
		c = v
	default:
		return nil, fmt.Errorf("unknown element type %q", t)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s content: %w", t, err)
	}
	return c, nil
}

// DecodeStyle decodes raw JSON into the style variant of type t.
// Empty input yields the type default.
func DecodeStyle(t ElementType, raw []byte) (Style, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return DefaultStyle(t), nil
	}
	var (
		s   Style
		err error
	)
	switch t {
	case ElementText:
		var v TextStyle
		err = json.Unmarshal(raw, &v)
		s = v
	case ElementShape:
		var v ShapeStyle
		err = json.Unmarshal(raw, &v)
		s = v
	case ElementSticky:
		var v StickyStyle
		err = json.Unmarshal(raw, &v)
		s = v
	case ElementImage, ElementVideo:
		var v MediaStyle
		err = json.Unmarshal(raw, &v)
		s = v
	case ElementFrame:
		var v FrameStyle
		err = json.Unmarshal(raw, &v)
		s = v
	default:
		return nil, fmt.Errorf("unknown element type %q", t)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s style: %w", t, err)
	}
	return s.normalized(), nil
}
