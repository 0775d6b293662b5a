// Package render draws the resolved view of a board into a PNG image. It is
// the server-side rendering surface used for board exports.
package render

import (
	"errors"
	"fmt"
	"image/color"
	"io"
	"math"
	"sync"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	colorful "github.com/lucasb-eyer/go-colorful"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"

	"realtime-board/internal/board"
	"realtime-board/internal/geom"
	"realtime-board/internal/model"
)

// ErrEmptyBoard is returned when there is nothing to draw.
var ErrEmptyBoard = errors.New("nothing to export")

// Defaults for Options.
const (
	DefaultPadding  = 32.0
	DefaultMaxSize  = 4096
	selectionColor  = "#2563eb"
	backgroundColor = "#f8fafc"
)

// Options controls an export.
type Options struct {
	// Scale multiplies world units into pixels. Zero means 1.
	Scale   float64
	Padding float64
	// MaxSize caps the longer side of the image; the scale is reduced to
	// fit.
	MaxSize int
	// Overlays draws selection and remote lock outlines.
	Overlays bool
}

var (
	fontOnce sync.Once
	fontTTF  *truetype.Font
	fontErr  error
)

func loadFont() (*truetype.Font, error) {
	fontOnce.Do(func() {
		fontTTF, fontErr = truetype.Parse(goregular.TTF)
	})
	return fontTTF, fontErr
}

// Size returns the pixel size and scale an export of elements would use.
func Size(elements []board.Resolved, opts Options) (width, height int, scale float64, origin geom.Point, err error) {
	if len(elements) == 0 {
		return 0, 0, 0, geom.Point{}, ErrEmptyBoard
	}
	opts = withDefaults(opts)

	bounds := elements[0].Bounds
	for _, r := range elements[1:] {
		bounds = bounds.Union(r.Bounds)
	}
	bounds = geom.Rect{
		X:      bounds.X - opts.Padding,
		Y:      bounds.Y - opts.Padding,
		Width:  bounds.Width + 2*opts.Padding,
		Height: bounds.Height + 2*opts.Padding,
	}

	scale = opts.Scale
	if longest := math.Max(bounds.Width, bounds.Height) * scale; longest > float64(opts.MaxSize) {
		scale *= float64(opts.MaxSize) / longest
	}
	width = max(1, int(math.Ceil(bounds.Width*scale)))
	height = max(1, int(math.Ceil(bounds.Height*scale)))
	return width, height, scale, geom.Point{X: bounds.X, Y: bounds.Y}, nil
}

// PNG draws elements in the given order, which must be paint order, and
// encodes the result to w.
func PNG(w io.Writer, elements []board.Resolved, opts Options) error {
	width, height, scale, origin, err := Size(elements, opts)
	if err != nil {
		return err
	}
	ttf, err := loadFont()
	if err != nil {
		return fmt.Errorf("failed to parse font: %w", err)
	}

	dc := gg.NewContext(width, height)
	dc.SetColor(parseColor(backgroundColor, 1))
	dc.Clear()
	dc.Scale(scale, scale)
	dc.Translate(-origin.X, -origin.Y)

	p := &painter{dc: dc, ttf: ttf, faces: make(map[float64]font.Face)}
	for _, r := range elements {
		p.element(r.Element)
	}
	if opts.Overlays {
		for _, r := range elements {
			p.overlay(r)
		}
	}
	return dc.EncodePNG(w)
}

func withDefaults(opts Options) Options {
	if opts.Scale <= 0 {
		opts.Scale = 1
	}
	if opts.Padding <= 0 {
		opts.Padding = DefaultPadding
	}
	if opts.MaxSize <= 0 {
		opts.MaxSize = DefaultMaxSize
	}
	return opts
}

type painter struct {
	dc    *gg.Context
	ttf   *truetype.Font
	faces map[float64]font.Face
}

func (p *painter) face(size float64) font.Face {
	if f, ok := p.faces[size]; ok {
		return f
	}
	f := truetype.NewFace(p.ttf, &truetype.Options{
		Size:    size,
		DPI:     72,
		Hinting: font.HintingFull,
	})
	p.faces[size] = f
	return f
}

// element draws one element in a local frame centered on the element and
// rotated by its rotation.
func (p *painter) element(el model.BoardElement) {
	dc := p.dc
	dc.Push()
	defer dc.Pop()

	c := el.Bounds().Center()
	dc.Translate(c.X, c.Y)
	dc.Rotate(gg.Radians(el.RotationDegrees))
	x, y, w, h := -el.Width/2, -el.Height/2, el.Width, el.Height

	switch st := el.Style.(type) {
	case model.ShapeStyle:
		kind := model.ShapeRectangle
		label := ""
		if sc, ok := el.Content.(model.ShapeContent); ok {
			kind, label = sc.Kind, sc.Label
		}
		p.shapePath(kind, x, y, w, h)
		if kind != model.ShapeLine && kind != model.ShapeArrow {
			dc.SetColor(parseColor(st.Fill, st.Opacity))
			dc.FillPreserve()
		}
		dc.SetColor(parseColor(st.Stroke, st.Opacity))
		dc.SetLineWidth(math.Max(st.StrokeWidth, 1))
		dc.Stroke()
		if kind == model.ShapeArrow {
			p.arrowHead(x, y, w, h, st)
		}
		if label != "" {
			p.text(label, x, y, w, h, 14, st.Stroke, gg.AlignCenter)
		}

	case model.TextStyle:
		text := ""
		if tc, ok := el.Content.(model.TextContent); ok {
			text = tc.Text
		}
		align := gg.AlignLeft
		switch st.Align {
		case "center":
			align = gg.AlignCenter
		case "right":
			align = gg.AlignRight
		}
		p.text(text, x, y, w, h, st.FontSize, st.Color, align)

	case model.StickyStyle:
		dc.DrawRectangle(x, y, w, h)
		dc.SetColor(parseColor(st.Background, 1))
		dc.Fill()
		if sc, ok := el.Content.(model.StickyContent); ok {
			p.text(sc.Text, x+12, y+12, w-24, h-24, st.FontSize, st.TextColor, gg.AlignLeft)
		}

	case model.MediaStyle:
		dc.DrawRoundedRectangle(x, y, w, h, st.CornerRadius)
		dc.SetColor(parseColor("#e5e7eb", st.Opacity))
		dc.FillPreserve()
		dc.SetColor(parseColor(st.BorderColor, st.Opacity))
		dc.SetLineWidth(math.Max(st.BorderWidth, 1))
		dc.Stroke()
		label := el.Type.String()
		if mc, ok := el.Content.(model.MediaContent); ok && mc.Title != "" {
			label = mc.Title
		}
		p.text(label, x, y+h/2-10, w, 20, 14, "#6b7280", gg.AlignCenter)

	case model.FrameStyle:
		dc.DrawRectangle(x, y, w, h)
		dc.SetColor(parseColor(st.Background, 1))
		dc.FillPreserve()
		dc.SetColor(parseColor(st.BorderColor, 1))
		dc.SetLineWidth(math.Max(st.BorderWidth, 1))
		dc.Stroke()
		if fc, ok := el.Content.(model.FrameContent); ok && fc.Title != "" {
			dc.SetFontFace(p.face(12))
			dc.SetColor(parseColor("#6b7280", 1))
			dc.DrawString(fc.Title, x, y-6)
		}
	}
}

func (p *painter) shapePath(kind model.ShapeKind, x, y, w, h float64) {
	dc := p.dc
	switch kind {
	case model.ShapeEllipse:
		dc.DrawEllipse(x+w/2, y+h/2, w/2, h/2)
	case model.ShapeTriangle:
		dc.MoveTo(x+w/2, y)
		dc.LineTo(x+w, y+h)
		dc.LineTo(x, y+h)
		dc.ClosePath()
	case model.ShapeDiamond:
		dc.MoveTo(x+w/2, y)
		dc.LineTo(x+w, y+h/2)
		dc.LineTo(x+w/2, y+h)
		dc.LineTo(x, y+h/2)
		dc.ClosePath()
	case model.ShapeLine, model.ShapeArrow:
		dc.MoveTo(x, y+h/2)
		dc.LineTo(x+w, y+h/2)
	default:
		dc.DrawRectangle(x, y, w, h)
	}
}

func (p *painter) arrowHead(x, y, w, h float64, st model.ShapeStyle) {
	size := math.Max(8, st.StrokeWidth*4)
	tipX, tipY := x+w, y+h/2
	p.dc.MoveTo(tipX, tipY)
	p.dc.LineTo(tipX-size, tipY-size/2)
	p.dc.LineTo(tipX-size, tipY+size/2)
	p.dc.ClosePath()
	p.dc.SetColor(parseColor(st.Stroke, st.Opacity))
	p.dc.Fill()
}

func (p *painter) text(s string, x, y, w, h, size float64, hex string, align gg.Align) {
	if s == "" || w <= 0 || h <= 0 {
		return
	}
	dc := p.dc
	dc.Push()
	defer dc.Pop()
	dc.DrawRectangle(x, y, w, h)
	dc.Clip()
	dc.SetFontFace(p.face(size))
	dc.SetColor(parseColor(hex, 1))
	dc.DrawStringWrapped(s, x, y, 0, 0, w, 1.3, align)
}

// overlay draws the selection outline and, for elements another
// collaborator has selected, an outline and name label in their color.
func (p *painter) overlay(r board.Resolved) {
	dc := p.dc
	b := r.Bounds
	if r.Selected {
		dc.DrawRectangle(b.X-2, b.Y-2, b.Width+4, b.Height+4)
		dc.SetColor(parseColor(selectionColor, 1))
		dc.SetLineWidth(2)
		dc.Stroke()
	}
	if r.LockedBy == nil {
		return
	}
	lockColor := parseColor(r.LockedBy.Color, 1)
	dc.DrawRectangle(b.X-4, b.Y-4, b.Width+8, b.Height+8)
	dc.SetColor(lockColor)
	dc.SetLineWidth(2)
	dc.Stroke()

	label := r.Label()
	dc.SetFontFace(p.face(12))
	tw, th := dc.MeasureString(label)
	dc.DrawRectangle(b.X-4, b.Y-th-12, tw+8, th+8)
	dc.Fill()
	dc.SetColor(color.White)
	dc.DrawString(label, b.X, b.Y-8)
}

// parseColor turns a "#rrggbb" style color into an image color with the
// given opacity. Invalid colors render black.
func parseColor(hex string, opacity float64) color.Color {
	c, err := colorful.Hex(hex)
	if err != nil {
		c = colorful.Color{}
	}
	if opacity <= 0 || opacity > 1 {
		opacity = 1
	}
	r, g, b := c.RGB255()
	return color.NRGBA{R: r, G: g, B: b, A: uint8(math.Round(opacity * 255))}
}
