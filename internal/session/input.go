package session

import (
	"errors"
	"strings"

	"realtime-board/internal/geom"
	"realtime-board/internal/transform"
)

// Modifiers are the keys held during an input event.
type Modifiers struct {
	Shift bool
	Ctrl  bool
	Meta  bool
	Alt   bool
}

// command reports the platform command modifier (ctrl or cmd).
func (m Modifiers) command() bool {
	return m.Ctrl || m.Meta
}

// PointerEvent is a pointer down, move or up at a screen position.
type PointerEvent struct {
	Screen geom.Point
	Modifiers
}

// WheelEvent is one wheel notch or trackpad delta at a screen position.
type WheelEvent struct {
	DX, DY float64
	Screen geom.Point
	Modifiers
}

// KeyEvent is a key press. Key uses DOM key names ("Escape", "Delete",
// "ArrowLeft", "z").
type KeyEvent struct {
	Key string
	Modifiers
}

// PointerDown starts a gesture: a handle drag on the single selected
// element, a move of the element under the pointer, element creation with
// a creation tool, or a marquee on empty canvas.
func (s *Session) PointerDown(ev PointerEvent) error {
	return s.locked(func() error {
		if s.pointer != pointerIdle {
			s.cancelPointerLocked()
		}
		w := s.view.ScreenToWorld(ev.Screen)
		s.setCursor(&w)
		additive := ev.Shift || ev.command()

		if h, id, ok := s.handleAt(ev.Screen); ok {
			if err := s.transform.BeginResize(id, h, w); err != nil {
				return err
			}
			s.pointer = pointerGesture
			return nil
		}

		if _, creates := s.selection.Tool().ElementType(); creates {
			el, err := s.selection.ClickBackground(w, s.opts.Identity.CollaboratorID)
			if err != nil {
				return err
			}
			if el != nil {
				s.history.Push()
			}
			return nil
		}

		if id, hit := s.selection.HitTest(w); hit {
			if additive {
				s.selection.Click(id, true)
				return nil
			}
			if !s.selection.IsSelected(id) {
				s.selection.Click(id, false)
			}
			err := s.transform.BeginMove(s.selection.Selected(), w)
			switch {
			case err == nil:
				s.pointer = pointerGesture
			case errors.Is(err, transform.ErrNotTransformable):
				// locked elements can be selected but not dragged
			default:
				return err
			}
			return nil
		}

		s.selection.BeginMarquee(w, additive)
		s.pointer = pointerMarquee
		return nil
	})
}

// PointerMove feeds the running gesture and publishes the cursor. Holding
// shift while rotating disables snapping.
func (s *Session) PointerMove(ev PointerEvent) error {
	return s.locked(func() error {
		w := s.view.ScreenToWorld(ev.Screen)
		s.setCursor(&w)

		switch s.pointer {
		case pointerGesture:
			return s.transform.Update(w, ev.Shift)
		case pointerMarquee:
			s.selection.UpdateMarquee(w)
		}
		return nil
	})
}

// PointerUp completes the running gesture. A gesture that changed geometry
// records one history checkpoint.
func (s *Session) PointerUp(ev PointerEvent) error {
	return s.locked(func() error {
		w := s.view.ScreenToWorld(ev.Screen)
		s.setCursor(&w)

		mode := s.pointer
		s.pointer = pointerIdle
		switch mode {
		case pointerGesture:
			if err := s.transform.Update(w, ev.Shift); err != nil {
				return err
			}
			changed, err := s.transform.End()
			if err != nil {
				return err
			}
			if changed {
				s.history.Push()
			}
		case pointerMarquee:
			s.selection.UpdateMarquee(w)
			s.selection.EndMarquee()
		}
		return nil
	})
}

// PointerLeave hides the local cursor from other collaborators.
func (s *Session) PointerLeave() {
	s.locked(func() error {
		s.setCursor(nil)
		return nil
	})
}

// Wheel zooms around the pointer with the command modifier held and pans
// otherwise.
func (s *Session) Wheel(ev WheelEvent) error {
	return s.locked(func() error {
		s.view.Wheel(ev.DX, ev.DY, ev.Screen, ev.command())
		return nil
	})
}

// Key handles keyboard shortcuts. Unknown keys are ignored.
func (s *Session) Key(ev KeyEvent) error {
	key := ev.Key
	if len(key) == 1 {
		key = strings.ToLower(key)
	}

	switch {
	case key == "Escape":
		return s.locked(func() error {
			s.escapeLocked()
			return nil
		})
	case ev.command() && key == "z" && !ev.Shift:
		return s.Undo()
	case ev.command() && (key == "y" || (key == "z" && ev.Shift)):
		return s.Redo()
	case ev.command() && key == "d":
		_, err := s.Duplicate()
		return ignoreEmpty(err)
	case key == "Delete" || key == "Backspace":
		_, err := s.Delete()
		return ignoreEmpty(err)
	}

	step := 1.0
	if ev.Shift {
		step = 10
	}
	switch key {
	case "ArrowLeft":
		return s.Nudge(-step, 0)
	case "ArrowRight":
		return s.Nudge(step, 0)
	case "ArrowUp":
		return s.Nudge(0, -step)
	case "ArrowDown":
		return s.Nudge(0, step)
	}
	return nil
}

// escapeLocked aborts the running gesture, or clears the selection when
// nothing is running.
func (s *Session) escapeLocked() {
	if s.pointer != pointerIdle {
		s.cancelPointerLocked()
		return
	}
	s.selection.Clear()
}

func (s *Session) cancelPointerLocked() {
	switch s.pointer {
	case pointerGesture:
		s.transform.Abort()
	case pointerMarquee:
		s.selection.CancelMarquee()
	}
	s.pointer = pointerIdle
}

// handleAt returns the handle of the single selected element under the
// screen point, if any.
func (s *Session) handleAt(screen geom.Point) (transform.Handle, string, bool) {
	sel := s.selection.Selected()
	if len(sel) != 1 {
		return "", "", false
	}
	for _, hp := range s.transform.Handles(sel[0]) {
		if geom.Distance(s.view.WorldToScreen(hp.At), screen) <= s.opts.HandleRadius {
			return hp.Handle, sel[0], true
		}
	}
	return "", "", false
}

func ignoreEmpty(err error) error {
	if errors.Is(err, ErrNothingSelected) {
		return nil
	}
	return err
}

func (s *Session) setCursor(p *geom.Point) {
	if s.sync != nil {
		s.sync.SetCursor(p)
	}
}
