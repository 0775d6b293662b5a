package geom

import "testing"

func TestRectNormalize(t *testing.T) {
	r := Rect{X: 100, Y: 50, Width: -40, Height: -10}.Normalize()
	if r.X != 60 || r.Y != 40 || r.Width != 40 || r.Height != 10 {
		t.Errorf("Normalize() = %+v", r)
	}

	got := RectFromPoints(Point{X: 400, Y: 100}, Point{X: 250, Y: 0})
	want := Rect{X: 250, Y: 0, Width: 150, Height: 100}
	if got != want {
		t.Errorf("RectFromPoints() = %+v, want %+v", got, want)
	}
}

func TestRectIntersects(t *testing.T) {
	a := Rect{X: 0, Y: 0, Width: 150, Height: 100}

	tests := []struct {
		name string
		o    Rect
		want bool
	}{
		{"overlap", Rect{X: 100, Y: 50, Width: 100, Height: 100}, true},
		{"touching right edge", Rect{X: 150, Y: 0, Width: 10, Height: 10}, true},
		{"touching bottom edge", Rect{X: 0, Y: 100, Width: 10, Height: 10}, true},
		{"touching corner", Rect{X: 150, Y: 100, Width: 10, Height: 10}, true},
		{"left of", Rect{X: -20, Y: 0, Width: 19.9, Height: 10}, false},
		{"right of", Rect{X: 150.01, Y: 0, Width: 10, Height: 10}, false},
		{"below", Rect{X: 0, Y: 100.5, Width: 10, Height: 10}, false},
		{"contained", Rect{X: 10, Y: 10, Width: 1, Height: 1}, true},
		{"negative extent", Rect{X: 170, Y: 20, Width: -30, Height: 5}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := a.Intersects(tt.o); got != tt.want {
				t.Errorf("Intersects(%+v) = %v, want %v", tt.o, got, tt.want)
			}
			if got := tt.o.Intersects(a); got != tt.want {
				t.Errorf("symmetric Intersects(%+v) = %v, want %v", tt.o, got, tt.want)
			}
		})
	}
}

func TestRectContainsAndUnion(t *testing.T) {
	r := Rect{X: 10, Y: 10, Width: 20, Height: 20}
	if !r.Contains(Point{X: 30, Y: 30}) {
		t.Error("boundary point should be contained")
	}
	if r.Contains(Point{X: 31, Y: 10}) {
		t.Error("outside point should not be contained")
	}

	u := r.Union(Rect{X: -5, Y: 15, Width: 10, Height: 40})
	want := Rect{X: -5, Y: 10, Width: 35, Height: 45}
	if u != want {
		t.Errorf("Union() = %+v, want %+v", u, want)
	}
}

func TestNormalizeDegrees(t *testing.T) {
	tests := []struct {
		in, want float64
	}{
		{0, 0},
		{359.5, 359.5},
		{360, 0},
		{725, 5},
		{-90, 270},
		{-720, 0},
	}
	for _, tt := range tests {
		if got := NormalizeDegrees(tt.in); got != tt.want {
			t.Errorf("NormalizeDegrees(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
