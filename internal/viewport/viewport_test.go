package viewport

import (
	"math"
	"testing"

	"realtime-board/internal/geom"
)

const eps = 1e-9

func near(a, b geom.Point) bool {
	return math.Abs(a.X-b.X) < eps && math.Abs(a.Y-b.Y) < eps
}

func TestScreenWorldRoundTrip(t *testing.T) {
	v := &Viewport{PanX: 120, PanY: -40, Zoom: 2.5}
	screen := geom.Point{X: 300, Y: 200}

	world := v.ScreenToWorld(screen)
	if want := (geom.Point{X: (300 - 120) / 2.5, Y: (200 + 40) / 2.5}); !near(world, want) {
		t.Errorf("ScreenToWorld() = %+v, want %+v", world, want)
	}
	if back := v.WorldToScreen(world); !near(back, screen) {
		t.Errorf("WorldToScreen(ScreenToWorld(p)) = %+v, want %+v", back, screen)
	}
}

func TestZoomKeepsPointerAnchored(t *testing.T) {
	tests := []struct {
		name    string
		start   Viewport
		pointer geom.Point
		dy      float64
	}{
		{"zoom in at origin", Viewport{Zoom: 1}, geom.Point{}, -1},
		{"zoom in off-center", Viewport{PanX: 50, PanY: 20, Zoom: 1}, geom.Point{X: 640, Y: 360}, -3},
		{"zoom out panned", Viewport{PanX: -300, PanY: 75, Zoom: 2.3}, geom.Point{X: 17, Y: 903}, 5},
		{"at max", Viewport{Zoom: MaxZoom}, geom.Point{X: 10, Y: 10}, -1},
		{"at min", Viewport{Zoom: MinZoom}, geom.Point{X: 10, Y: 10}, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := tt.start
			before := v.ScreenToWorld(tt.pointer)
			v.Wheel(0, tt.dy, tt.pointer, true)
			after := v.ScreenToWorld(tt.pointer)
			if !near(before, after) {
				t.Errorf("world under pointer moved: before %+v after %+v", before, after)
			}
		})
	}
}

func TestWheelZoomStepAndClamp(t *testing.T) {
	v := New()
	v.Wheel(0, -1, geom.Point{}, true)
	if v.Zoom != 1.1 {
		t.Errorf("Zoom = %v, want 1.1", v.Zoom)
	}

	for i := 0; i < 100; i++ {
		v.Wheel(0, -1, geom.Point{}, true)
	}
	if v.Zoom != MaxZoom {
		t.Errorf("Zoom = %v, want clamp to %v", v.Zoom, MaxZoom)
	}

	for i := 0; i < 100; i++ {
		v.Wheel(0, 1, geom.Point{X: 3, Y: 4}, true)
	}
	if v.Zoom != MinZoom {
		t.Errorf("Zoom = %v, want clamp to %v", v.Zoom, MinZoom)
	}
}

func TestWheelWithoutModifierPans(t *testing.T) {
	v := New()
	v.Wheel(15, -30, geom.Point{X: 100, Y: 100}, false)
	if v.PanX != -15 || v.PanY != 30 || v.Zoom != 1 {
		t.Errorf("unexpected viewport %+v", *v)
	}
}

func TestVisibleWorld(t *testing.T) {
	v := &Viewport{PanX: -100, PanY: -50, Zoom: 2}
	got := v.VisibleWorld(800, 600)
	want := geom.Rect{X: 50, Y: 25, Width: 400, Height: 300}
	if got != want {
		t.Errorf("VisibleWorld() = %+v, want %+v", got, want)
	}
}
