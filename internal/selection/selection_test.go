package selection

import (
	"slices"
	"testing"

	"realtime-board/internal/board"
	"realtime-board/internal/geom"
	"realtime-board/internal/model"
)

func rect(t *testing.T, s *board.Store, id string, x, y, w, h float64) {
	t.Helper()
	_, err := s.Add(model.BoardElement{
		ID:       id,
		Type:     model.ElementShape,
		Geometry: model.Geometry{PositionX: x, PositionY: y, Width: w, Height: h},
	}, board.OriginLocal)
	if err != nil {
		t.Fatalf("Add(%s) error = %v", id, err)
	}
}

func marqueeSelect(e *Engine, from, to geom.Point) []string {
	e.BeginMarquee(from, false)
	e.UpdateMarquee(to)
	return e.EndMarquee()
}

func TestMarqueeScenario(t *testing.T) {
	s := board.NewStore("b")
	rect(t, s, "A", 0, 0, 150, 100)
	rect(t, s, "B", 200, 0, 150, 100)
	e := New(s)
	defer e.Close()

	tests := []struct {
		name     string
		from, to geom.Point
		want     []string
	}{
		{"covers both", geom.Point{X: 0, Y: 0}, geom.Point{X: 400, Y: 100}, []string{"A", "B"}},
		{"only B", geom.Point{X: 250, Y: 0}, geom.Point{X: 400, Y: 100}, []string{"B"}},
		{"dragged up-left", geom.Point{X: 400, Y: 100}, geom.Point{X: 250, Y: 0}, []string{"B"}},
		{"touching edge", geom.Point{X: 150, Y: 100}, geom.Point{X: 160, Y: 120}, []string{"A"}},
		{"empty gap", geom.Point{X: 160, Y: 10}, geom.Point{X: 190, Y: 20}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := marqueeSelect(e, tt.from, tt.to)
			if !slices.Equal(got, tt.want) {
				t.Errorf("selected %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAdditiveMarqueeKeepsSelection(t *testing.T) {
	s := board.NewStore("b")
	rect(t, s, "A", 0, 0, 50, 50)
	rect(t, s, "B", 200, 0, 50, 50)
	e := New(s)

	e.Click("A", false)
	e.BeginMarquee(geom.Point{X: 190, Y: -10}, true)
	e.UpdateMarquee(geom.Point{X: 260, Y: 60})
	if r, ok := e.Marquee(); !ok || r.Width != 70 {
		t.Errorf("Marquee() = %+v, %v", r, ok)
	}
	if got := e.EndMarquee(); !slices.Equal(got, []string{"A", "B"}) {
		t.Errorf("selected %v", got)
	}
	if e.MarqueeActive() {
		t.Error("marquee should end")
	}
}

func TestClickToggleAndClear(t *testing.T) {
	s := board.NewStore("b")
	rect(t, s, "A", 0, 0, 50, 50)
	rect(t, s, "B", 100, 0, 50, 50)
	e := New(s)

	var notified [][]string
	e.OnChange(func(ids []string) { notified = append(notified, ids) })

	e.Click("A", false)
	e.Click("B", true)
	e.Click("A", true)
	e.Click("A", true)
	e.Click("missing", false)

	if got := e.Selected(); !slices.Equal(got, []string{"B", "A"}) {
		t.Errorf("Selected() = %v", got)
	}
	if len(notified) != 4 {
		t.Errorf("notifications = %d, want 4", len(notified))
	}

	created, err := e.ClickBackground(geom.Point{X: 500, Y: 500}, "u")
	if err != nil || created != nil {
		t.Fatalf("background click with select tool: %v, %v", created, err)
	}
	if len(e.Selected()) != 0 {
		t.Error("background click should clear the selection")
	}
}

func TestCreationToolSpawnsAndResets(t *testing.T) {
	s := board.NewStore("b")
	rect(t, s, "A", 0, 0, 50, 50)
	e := New(s)
	e.SetTool(ToolSticky)

	created, err := e.ClickBackground(geom.Point{X: 30, Y: 40}, "u1")
	if err != nil {
		t.Fatalf("ClickBackground() error = %v", err)
	}
	if created.Type != model.ElementSticky || created.PositionX != 30 || created.PositionY != 40 {
		t.Errorf("created = %+v", created)
	}
	if created.ZIndex != 2 {
		t.Errorf("z = %d, want top of order", created.ZIndex)
	}
	if e.Tool() != ToolSelect {
		t.Errorf("tool = %s, want select", e.Tool())
	}
	if got := e.Selected(); !slices.Equal(got, []string{created.ID}) {
		t.Errorf("Selected() = %v", got)
	}

	e.SetTool(Tool("laser"))
	if e.Tool() != ToolSelect {
		t.Error("unknown tool should fall back to select")
	}
}

func TestRemovalPrunesSelection(t *testing.T) {
	s := board.NewStore("b")
	rect(t, s, "A", 0, 0, 50, 50)
	rect(t, s, "B", 100, 0, 50, 50)
	e := New(s)
	e.Set([]string{"A", "B"})

	s.Remove([]string{"A"}, board.OriginRemote)
	if got := e.Selected(); !slices.Equal(got, []string{"B"}) {
		t.Errorf("Selected() = %v", got)
	}
}

func TestHitTestPicksTopmost(t *testing.T) {
	s := board.NewStore("b")
	rect(t, s, "bottom", 0, 0, 100, 100)
	rect(t, s, "top", 50, 50, 100, 100)
	e := New(s)

	if id, ok := e.HitTest(geom.Point{X: 60, Y: 60}); !ok || id != "top" {
		t.Errorf("HitTest() = %q, %v", id, ok)
	}
	if id, _ := e.HitTest(geom.Point{X: 10, Y: 10}); id != "bottom" {
		t.Errorf("HitTest() = %q", id)
	}
	if _, ok := e.HitTest(geom.Point{X: 500, Y: 500}); ok {
		t.Error("expected miss")
	}
}
