package session

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"realtime-board/internal/board"
	"realtime-board/internal/collab"
	"realtime-board/internal/geom"
	"realtime-board/internal/model"
	"realtime-board/internal/selection"
	"realtime-board/internal/transform"
	"realtime-board/internal/transport"
)

func element(t *testing.T, id string, typ model.ElementType, x, y float64) model.BoardElement {
	t.Helper()
	el, err := model.NewElement("board-1", typ, geom.Point{X: x, Y: y}, "seed")
	if err != nil {
		t.Fatalf("NewElement() error = %v", err)
	}
	el.ID = id
	el.Width, el.Height = 100, 100
	return el
}

func open(t *testing.T, opts Options, elements ...model.BoardElement) *Session {
	t.Helper()
	s, err := Open(context.Background(), "board-1", elements, opts)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(s.Close)
	return s
}

func at(x, y float64) PointerEvent {
	return PointerEvent{Screen: geom.Point{X: x, Y: y}}
}

func position(t *testing.T, s *Session, id string) geom.Point {
	t.Helper()
	el, ok := s.Store().Get(id)
	if !ok {
		t.Fatalf("element %s missing", id)
	}
	return geom.Point{X: el.PositionX, Y: el.PositionY}
}

func drag(t *testing.T, s *Session, from, to geom.Point) {
	t.Helper()
	if err := s.PointerDown(at(from.X, from.Y)); err != nil {
		t.Fatalf("PointerDown() error = %v", err)
	}
	if err := s.PointerMove(at(to.X, to.Y)); err != nil {
		t.Fatalf("PointerMove() error = %v", err)
	}
	if err := s.PointerUp(at(to.X, to.Y)); err != nil {
		t.Fatalf("PointerUp() error = %v", err)
	}
}

func TestDragMovesAndCheckpointsOnce(t *testing.T) {
	s := open(t, Options{}, element(t, "x", model.ElementShape, 0, 0))

	drag(t, s, geom.Point{X: 50, Y: 50}, geom.Point{X: 80, Y: 60})

	if got := position(t, s, "x"); got != (geom.Point{X: 30, Y: 10}) {
		t.Errorf("position after drag = %+v", got)
	}
	if sel := s.Selected(); len(sel) != 1 || sel[0] != "x" {
		t.Errorf("Selected() = %v", sel)
	}

	if err := s.Undo(); err != nil {
		t.Fatalf("Undo() error = %v", err)
	}
	if got := position(t, s, "x"); got != (geom.Point{}) {
		t.Errorf("position after undo = %+v", got)
	}
	if s.CanUndo() {
		t.Error("one drag should be one checkpoint")
	}
}

func TestClickWithoutMoveTakesNoCheckpoint(t *testing.T) {
	s := open(t, Options{}, element(t, "x", model.ElementShape, 0, 0))

	drag(t, s, geom.Point{X: 50, Y: 50}, geom.Point{X: 50, Y: 50})
	if s.CanUndo() {
		t.Error("a click must not create a checkpoint")
	}
}

func TestPointerUpReportsLostGesture(t *testing.T) {
	s := open(t, Options{}, element(t, "x", model.ElementShape, 0, 0))

	if err := s.PointerDown(at(50, 50)); err != nil {
		t.Fatalf("PointerDown() error = %v", err)
	}
	s.transform.Discard()
	if err := s.PointerUp(at(80, 60)); !errors.Is(err, transform.ErrNoGesture) {
		t.Errorf("PointerUp() error = %v, want ErrNoGesture", err)
	}
	if s.CanUndo() {
		t.Error("a lost gesture must not create a checkpoint")
	}
}

func TestEscapeAbortsDrag(t *testing.T) {
	s := open(t, Options{}, element(t, "x", model.ElementShape, 0, 0))

	s.PointerDown(at(50, 50))
	s.PointerMove(at(150, 250))
	if got := position(t, s, "x"); got != (geom.Point{X: 100, Y: 200}) {
		t.Fatalf("position during drag = %+v", got)
	}

	if err := s.Key(KeyEvent{Key: "Escape"}); err != nil {
		t.Fatalf("Key(Escape) error = %v", err)
	}
	if got := position(t, s, "x"); got != (geom.Point{}) {
		t.Errorf("position after abort = %+v", got)
	}
	if s.CanUndo() {
		t.Error("abort must not create a checkpoint")
	}
	if sel := s.Selected(); len(sel) != 1 {
		t.Errorf("escape during a drag keeps the selection, got %v", sel)
	}

	s.PointerUp(at(150, 250))
	s.Key(KeyEvent{Key: "Escape"})
	if sel := s.Selected(); len(sel) != 0 {
		t.Errorf("second escape should clear the selection, got %v", sel)
	}
}

func TestResizeFromHandle(t *testing.T) {
	s := open(t, Options{}, element(t, "x", model.ElementShape, 0, 0))
	s.Select([]string{"x"})

	drag(t, s, geom.Point{X: 100, Y: 100}, geom.Point{X: 150, Y: 130})

	el, _ := s.Store().Get("x")
	if el.PositionX != 0 || el.PositionY != 0 || el.Width != 150 || el.Height != 130 {
		t.Errorf("geometry after resize = %+v", el.Geometry)
	}
	if !s.CanUndo() {
		t.Error("resize should checkpoint")
	}
}

func TestMarqueeSelectsIntersecting(t *testing.T) {
	s := open(t, Options{},
		element(t, "a", model.ElementShape, 0, 0),
		element(t, "b", model.ElementShape, 200, 0),
	)

	s.PointerDown(at(150, 150))
	s.PointerMove(at(250, -5))
	if r, ok := s.Marquee(); !ok || r.Width != 100 {
		t.Errorf("Marquee() = %+v, %v", r, ok)
	}
	s.PointerUp(at(250, -5))

	if sel := s.Selected(); len(sel) != 1 || sel[0] != "b" {
		t.Errorf("Selected() = %v, want [b]", sel)
	}
	if _, ok := s.Marquee(); ok {
		t.Error("marquee should end on pointer up")
	}
}

func TestCreationTool(t *testing.T) {
	s := open(t, Options{Identity: collab.Identity{CollaboratorID: "me"}})

	s.SetTool(selection.ToolSticky)
	if err := s.PointerDown(at(300, 300)); err != nil {
		t.Fatalf("PointerDown() error = %v", err)
	}
	s.PointerUp(at(300, 300))

	sel := s.Selected()
	if len(sel) != 1 {
		t.Fatalf("Selected() = %v", sel)
	}
	el, _ := s.Store().Get(sel[0])
	if el.Type != model.ElementSticky || el.PositionX != 300 || el.PositionY != 300 || el.CreatedBy != "me" {
		t.Errorf("created %+v", el)
	}
	if s.Tool() != selection.ToolSelect {
		t.Errorf("Tool() = %v, want select", s.Tool())
	}
	if !s.CanUndo() {
		t.Error("creation should checkpoint")
	}
}

func TestWheelZoomKeepsPointerAnchored(t *testing.T) {
	s := open(t, Options{})
	pointer := geom.Point{X: 320, Y: 240}

	before := s.Viewport()
	anchor := before.ScreenToWorld(pointer)

	s.Wheel(WheelEvent{DY: -1, Screen: pointer, Modifiers: Modifiers{Ctrl: true}})
	after := s.Viewport()
	if math.Abs(after.Zoom-1.1) > 1e-9 {
		t.Errorf("Zoom = %v, want 1.1", after.Zoom)
	}
	if got := after.ScreenToWorld(pointer); math.Abs(got.X-anchor.X) > 1e-9 || math.Abs(got.Y-anchor.Y) > 1e-9 {
		t.Errorf("world under pointer moved from %+v to %+v", anchor, got)
	}

	s.Wheel(WheelEvent{DX: 10, DY: 20, Screen: pointer})
	if v := s.Viewport(); v.Zoom != after.Zoom || v.PanX != after.PanX-10 || v.PanY != after.PanY-20 {
		t.Errorf("plain wheel should pan, got %+v", v)
	}
}

func TestKeyboardShortcuts(t *testing.T) {
	s := open(t, Options{}, element(t, "x", model.ElementShape, 0, 0))
	s.Select([]string{"x"})
	ctrl := Modifiers{Ctrl: true}

	s.Key(KeyEvent{Key: "ArrowRight", Modifiers: Modifiers{Shift: true}})
	s.Key(KeyEvent{Key: "ArrowDown"})
	if got := position(t, s, "x"); got != (geom.Point{X: 10, Y: 1}) {
		t.Errorf("position after nudge = %+v", got)
	}

	if err := s.Key(KeyEvent{Key: "d", Modifiers: ctrl}); err != nil {
		t.Fatalf("duplicate error = %v", err)
	}
	sel := s.Selected()
	if s.Store().Len() != 2 || len(sel) != 1 || sel[0] == "x" {
		t.Fatalf("after duplicate len = %d, selected = %v", s.Store().Len(), sel)
	}
	if got := position(t, s, sel[0]); got != (geom.Point{X: 30, Y: 21}) {
		t.Errorf("clone position = %+v", got)
	}

	s.Key(KeyEvent{Key: "Delete"})
	if s.Store().Len() != 1 || len(s.Selected()) != 0 {
		t.Errorf("after delete len = %d, selected = %v", s.Store().Len(), s.Selected())
	}

	s.Key(KeyEvent{Key: "z", Modifiers: ctrl})
	if s.Store().Len() != 2 {
		t.Errorf("undo should restore the clone, len = %d", s.Store().Len())
	}
	s.Key(KeyEvent{Key: "Z", Modifiers: Modifiers{Ctrl: true, Shift: true}})
	if s.Store().Len() != 1 {
		t.Errorf("redo should delete again, len = %d", s.Store().Len())
	}

	if err := s.Key(KeyEvent{Key: "Backspace"}); err != nil {
		t.Errorf("delete with empty selection = %v", err)
	}
}

func TestCommitStyleMatchesTypes(t *testing.T) {
	s := open(t, Options{},
		element(t, "a", model.ElementShape, 0, 0),
		element(t, "t", model.ElementText, 200, 0),
	)
	s.Select([]string{"a", "t"})

	red := model.ShapeStyle{Fill: "#ff0000", Stroke: "#000000", StrokeWidth: 1, Opacity: 1}
	n, err := s.CommitStyle(red)
	if err != nil || n != 1 {
		t.Fatalf("CommitStyle() = %d, %v", n, err)
	}
	a, _ := s.Store().Get("a")
	if a.Style.(model.ShapeStyle).Fill != "#ff0000" {
		t.Errorf("fill = %v", a.Style)
	}

	if n, _ := s.CommitStyle(red); n != 0 {
		t.Errorf("repeating the same style changed %d elements", n)
	}

	s.Undo()
	a, _ = s.Store().Get("a")
	if a.Style.(model.ShapeStyle).Fill == "#ff0000" {
		t.Error("undo should restore the previous style")
	}
	if s.CanUndo() {
		t.Error("style commit should be a single checkpoint")
	}
}

func TestReorderAndAlign(t *testing.T) {
	a := element(t, "a", model.ElementShape, 0, 0)
	a.ZIndex = 1
	b := element(t, "b", model.ElementShape, 200, 50)
	b.ZIndex = 2
	s := open(t, Options{}, a, b)

	if err := s.Reorder(ReorderFront); !errors.Is(err, ErrNothingSelected) {
		t.Errorf("Reorder() without selection = %v", err)
	}
	s.Select([]string{"a"})
	if err := s.Reorder(ReorderFront); err != nil {
		t.Fatalf("Reorder() error = %v", err)
	}
	if got, _ := s.Store().Get("a"); got.ZIndex <= 2 {
		t.Errorf("a.ZIndex = %d, want above b", got.ZIndex)
	}

	s.Select([]string{"a", "b"})
	if err := s.Align("top"); err != nil {
		t.Fatalf("Align() error = %v", err)
	}
	if got := position(t, s, "b"); got.Y != 0 {
		t.Errorf("b.Y after align top = %v", got.Y)
	}
}

func TestReloadResetsHistory(t *testing.T) {
	s := open(t, Options{}, element(t, "x", model.ElementShape, 0, 0))
	s.Select([]string{"x"})
	s.Nudge(5, 0)
	if !s.CanUndo() {
		t.Fatal("nudge should checkpoint")
	}

	s.dispatch(s.onReload)
	if s.CanUndo() {
		t.Error("undo must not cross a reload")
	}
}

func TestClosedSessionRejectsInput(t *testing.T) {
	s := open(t, Options{})
	s.Close()
	s.Close()

	if !s.IsClosed() {
		t.Error("IsClosed() = false")
	}
	if err := s.PointerDown(at(0, 0)); !errors.Is(err, ErrClosed) {
		t.Errorf("PointerDown() after close = %v", err)
	}
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func collaborator(t *testing.T, bus transport.Transport, id string, elements ...model.BoardElement) *Session {
	t.Helper()
	s := open(t, Options{
		Identity:     collab.Identity{CollaboratorID: id, DisplayName: id},
		Transport:    bus,
		CursorFrame:  5 * time.Millisecond,
		ReconnectMin: 5 * time.Millisecond,
	}, elements...)
	eventually(t, id+" subscribed", func() bool { return s.Connection() == collab.StateSubscribed })
	return s
}

func TestRemoteSelectionBlocksDrag(t *testing.T) {
	bus := transport.NewMemory()
	x := element(t, "x", model.ElementShape, 0, 0)
	c1 := collaborator(t, bus, "c1", x)
	c2 := collaborator(t, bus, "c2", x)

	c2.Select([]string{"x"})
	eventually(t, "lock on c1", func() bool { return c1.Locks()["x"].CollaboratorID == "c2" })

	drag(t, c1, geom.Point{X: 50, Y: 50}, geom.Point{X: 90, Y: 90})
	if got := position(t, c1, "x"); got != (geom.Point{}) {
		t.Errorf("remotely locked element moved to %+v", got)
	}
	if h := c1.Handles(); h != nil {
		t.Errorf("Handles() = %v, want none while locked", h)
	}

	var label string
	for _, r := range c1.Resolve() {
		if r.Element.ID == "x" {
			label = r.Label()
		}
	}
	if label != "c2" {
		t.Errorf("lock label = %q", label)
	}
}

func TestRemoteRemovalAbortsGesture(t *testing.T) {
	bus := transport.NewMemory()
	x := element(t, "x", model.ElementShape, 0, 0)
	c1 := collaborator(t, bus, "c1", x)
	c2 := collaborator(t, bus, "c2", x)

	c1.PointerDown(at(50, 50))
	c1.PointerMove(at(60, 60))
	if c1.transform.Active() != transform.GestureMove {
		t.Fatal("drag did not start")
	}

	// c2 races the advisory lock and removes x before seeing c1's selection
	if removed := c2.Store().Remove([]string{"x"}, board.OriginLocal); len(removed) != 1 {
		t.Fatalf("Remove() = %v", removed)
	}

	eventually(t, "removal on c1", func() bool { return !c1.Store().Has("x") })
	if c1.transform.Active() != transform.GestureNone {
		t.Error("gesture should be aborted when its element disappears")
	}
	if err := c1.PointerMove(at(70, 70)); err != nil {
		t.Errorf("PointerMove() after abort = %v", err)
	}
	if c1.Store().Has("x") {
		t.Error("aborted gesture must not resurrect the element")
	}
}

func TestBatchEditsSkipRemotelyHeld(t *testing.T) {
	bus := transport.NewMemory()
	a := element(t, "a", model.ElementShape, 0, 0)
	b := element(t, "b", model.ElementShape, 200, 50)
	c1 := collaborator(t, bus, "c1", a, b)
	c2 := collaborator(t, bus, "c2", a, b)

	c2.Select([]string{"b"})
	eventually(t, "lock on c1", func() bool { return c1.Locks()["b"].CollaboratorID == "c2" })

	c1.Select([]string{"a", "b"})
	if err := c1.Align(board.AlignBottom); err != nil {
		t.Fatalf("Align() error = %v", err)
	}
	if got := position(t, c1, "a"); got.Y != 50 {
		t.Errorf("a.Y = %v, want 50", got.Y)
	}
	if got := position(t, c1, "b"); got != (geom.Point{X: 200, Y: 50}) {
		t.Errorf("held element moved to %+v", got)
	}

	removed, err := c1.Delete()
	if err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if len(removed) != 1 || removed[0] != "a" || !c1.Store().Has("b") {
		t.Errorf("Delete() removed %v", removed)
	}

	c1.Select([]string{"b"})
	if _, err := c1.Delete(); !errors.Is(err, transform.ErrNotTransformable) {
		t.Errorf("Delete() of held element = %v, want ErrNotTransformable", err)
	}
}
