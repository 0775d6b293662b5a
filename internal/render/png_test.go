package render

import (
	"bytes"
	"errors"
	"image/color"
	"image/png"
	"testing"

	"realtime-board/internal/board"
	"realtime-board/internal/model"
)

func resolved(el model.BoardElement) board.Resolved {
	return board.Resolved{Element: el, Bounds: el.Bounds()}
}

func TestPNGDrawsElements(t *testing.T) {
	shape := model.BoardElement{
		ID:       "s",
		Type:     model.ElementShape,
		Geometry: model.Geometry{Width: 100, Height: 100},
		Content:  model.ShapeContent{Kind: model.ShapeRectangle},
		Style:    model.ShapeStyle{Fill: "#ff0000", Stroke: "#000000", StrokeWidth: 1, Opacity: 1},
	}
	text := model.BoardElement{
		ID:       "t",
		Type:     model.ElementText,
		Geometry: model.Geometry{PositionX: 150, Width: 200, Height: 40},
		Content:  model.TextContent{Text: "hello"},
		Style:    model.DefaultStyle(model.ElementText),
	}
	locked := resolved(shape)
	locked.LockedBy = &board.LockOwner{CollaboratorID: "c2", DisplayName: "Kim", Color: "#10b981"}

	var buf bytes.Buffer
	err := PNG(&buf, []board.Resolved{locked, resolved(text)}, Options{Overlays: true})
	if err != nil {
		t.Fatalf("PNG() error = %v", err)
	}

	img, err := png.Decode(&buf)
	if err != nil {
		t.Fatalf("png.Decode() error = %v", err)
	}
	b := img.Bounds()
	if b.Dx() != 350+2*int(DefaultPadding) || b.Dy() != 100+2*int(DefaultPadding) {
		t.Errorf("image size = %dx%d", b.Dx(), b.Dy())
	}

	r, g, bl, _ := img.At(int(DefaultPadding)+50, int(DefaultPadding)+50).RGBA()
	if r>>8 != 0xff || g>>8 != 0 || bl>>8 != 0 {
		t.Errorf("shape center = %x %x %x, want red", r>>8, g>>8, bl>>8)
	}
}

func TestSizeCapsLongestSide(t *testing.T) {
	wide := resolved(model.BoardElement{
		ID:       "w",
		Type:     model.ElementShape,
		Geometry: model.Geometry{Width: 20000, Height: 100},
	})
	w, h, scale, _, err := Size([]board.Resolved{wide}, Options{MaxSize: 1000})
	if err != nil {
		t.Fatalf("Size() error = %v", err)
	}
	if w > 1000 || h < 1 || scale >= 1 {
		t.Errorf("Size() = %d x %d at %v", w, h, scale)
	}
}

func TestPNGEmptyBoard(t *testing.T) {
	var buf bytes.Buffer
	if err := PNG(&buf, nil, Options{}); !errors.Is(err, ErrEmptyBoard) {
		t.Errorf("PNG() error = %v, want ErrEmptyBoard", err)
	}
}

func TestParseColor(t *testing.T) {
	tests := []struct {
		hex     string
		opacity float64
		want    color.NRGBA
	}{
		{"#ff8000", 1, color.NRGBA{R: 0xff, G: 0x80, B: 0x00, A: 0xff}},
		{"#000000", 0.5, color.NRGBA{A: 0x80}},
		{"not a color", 1, color.NRGBA{A: 0xff}},
	}
	for _, tt := range tests {
		t.Run(tt.hex, func(t *testing.T) {
			if got := parseColor(tt.hex, tt.opacity); got != tt.want {
				t.Errorf("parseColor(%q, %v) = %v, want %v", tt.hex, tt.opacity, got, tt.want)
			}
		})
	}
}
