// Package viewport maps between screen and world coordinates for a board
// view given a pan offset and zoom factor.
package viewport

import (
	"math"

	"realtime-board/internal/geom"
)

// Zoom limits and wheel step.
const (
	MinZoom  = 0.1
	MaxZoom  = 5.0
	ZoomStep = 0.1
)

// Viewport holds the pan offset (screen pixels) and zoom factor of a view.
// The zero value is not usable; use New.
type Viewport struct {
	PanX float64
	PanY float64
	Zoom float64
}

// New returns a viewport at the origin with zoom 1.
func New() *Viewport {
	return &Viewport{Zoom: 1}
}

// ScreenToWorld converts a screen point to world coordinates.
func (v *Viewport) ScreenToWorld(p geom.Point) geom.Point {
	return geom.Point{
		X: (p.X - v.PanX) / v.Zoom,
		Y: (p.Y - v.PanY) / v.Zoom,
	}
}

// WorldToScreen converts a world point to screen coordinates.
func (v *Viewport) WorldToScreen(p geom.Point) geom.Point {
	return geom.Point{
		X: p.X*v.Zoom + v.PanX,
		Y: p.Y*v.Zoom + v.PanY,
	}
}

// ScreenDistance converts a world-space length to screen pixels.
func (v *Viewport) ScreenDistance(d float64) float64 {
	return d * v.Zoom
}

// WorldDistance converts a screen-space length to world units.
func (v *Viewport) WorldDistance(d float64) float64 {
	return d / v.Zoom
}

// Pan shifts the view by a screen-space delta.
func (v *Viewport) Pan(dx, dy float64) {
	v.PanX += dx
	v.PanY += dy
}

// ZoomAt sets the zoom to z (clamped) while keeping the world point under
// anchor at the same screen position.
func (v *Viewport) ZoomAt(anchor geom.Point, z float64) {
	world := v.ScreenToWorld(anchor)
	v.Zoom = ClampZoom(z)
	v.PanX = anchor.X - world.X*v.Zoom
	v.PanY = anchor.Y - world.Y*v.Zoom
}

// Wheel applies one wheel event. With the zoom modifier held, each event is
// one notch: scrolling down (positive dy) zooms out by ZoomStep, up zooms
// in, anchored at the pointer. Without the modifier the raw delta pans.
func (v *Viewport) Wheel(dx, dy float64, pointer geom.Point, zoomModifier bool) {
	if !zoomModifier {
		v.Pan(-dx, -dy)
		return
	}
	switch {
	case dy > 0:
		v.ZoomAt(pointer, v.Zoom-ZoomStep)
	case dy < 0:
		v.ZoomAt(pointer, v.Zoom+ZoomStep)
	}
}

// Reset returns to the origin at zoom 1.
func (v *Viewport) Reset() {
	v.PanX, v.PanY, v.Zoom = 0, 0, 1
}

// VisibleWorld returns the world rectangle covered by a screen of the given
// size.
func (v *Viewport) VisibleWorld(width, height float64) geom.Rect {
	tl := v.ScreenToWorld(geom.Point{})
	return geom.Rect{X: tl.X, Y: tl.Y, Width: width / v.Zoom, Height: height / v.Zoom}
}

// ClampZoom limits z to [MinZoom, MaxZoom], rounding to the step grid so
// repeated notches do not accumulate float drift.
func ClampZoom(z float64) float64 {
	if math.IsNaN(z) {
		return 1
	}
	z = math.Round(z*100) / 100
	return math.Max(MinZoom, math.Min(MaxZoom, z))
}
