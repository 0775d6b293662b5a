package session

import (
	"errors"

	"realtime-board/internal/board"
	"realtime-board/internal/geom"
	"realtime-board/internal/model"
	"realtime-board/internal/selection"
	"realtime-board/internal/transform"
)

// ErrNothingSelected is returned by commands that act on the selection when
// it is empty.
var ErrNothingSelected = errors.New("nothing selected")

// ReorderOp names a z-order command.
type ReorderOp string

const (
	ReorderFront    ReorderOp = "front"
	ReorderBack     ReorderOp = "back"
	ReorderForward  ReorderOp = "forward"
	ReorderBackward ReorderOp = "backward"
)

// Undo aborts any running gesture and restores the previous checkpoint.
func (s *Session) Undo() error {
	return s.locked(func() error {
		s.cancelPointerLocked()
		return s.history.Undo()
	})
}

// Redo restores the next checkpoint.
func (s *Session) Redo() error {
	return s.locked(func() error {
		s.cancelPointerLocked()
		return s.history.Redo()
	})
}

// SetTool switches the active tool.
func (s *Session) SetTool(t selection.Tool) {
	s.selection.SetTool(t)
}

// Select replaces the selection.
func (s *Session) Select(ids []string) error {
	return s.locked(func() error {
		s.selection.Set(ids)
		return nil
	})
}

// ClearSelection empties the selection, aborting a gesture on it.
func (s *Session) ClearSelection() error {
	return s.locked(func() error {
		s.selection.Clear()
		return nil
	})
}

// Delete removes the selected elements that are neither locked nor
// selected by another collaborator.
func (s *Session) Delete() ([]string, error) {
	var removed []string
	err := s.locked(func() error {
		sel := s.selection.Selected()
		if len(sel) == 0 {
			return ErrNothingSelected
		}
		sel = s.transformable(sel)
		if len(sel) == 0 {
			return transform.ErrNotTransformable
		}
		s.cancelPointerLocked()
		removed = s.store.Remove(sel, board.OriginLocal)
		if len(removed) > 0 {
			s.history.Push()
		}
		return nil
	})
	return removed, err
}

// Duplicate clones the selection offset by DuplicateOffset and selects the
// clones.
func (s *Session) Duplicate() ([]model.BoardElement, error) {
	var clones []model.BoardElement
	err := s.locked(func() error {
		sel := s.selection.Selected()
		if len(sel) == 0 {
			return ErrNothingSelected
		}
		s.cancelPointerLocked()
		d := s.opts.DuplicateOffset
		clones = s.store.Duplicate(sel, geom.Point{X: d, Y: d}, s.opts.Identity.CollaboratorID)
		if len(clones) == 0 {
			return nil
		}
		ids := make([]string, len(clones))
		for i, c := range clones {
			ids[i] = c.ID
		}
		s.selection.Set(ids)
		s.history.Push()
		return nil
	})
	return clones, err
}

// Nudge moves the selection by a world delta. Locked elements stay put.
func (s *Session) Nudge(dx, dy float64) error {
	return s.locked(func() error {
		if s.pointer != pointerIdle {
			return nil
		}
		sel := s.selection.Selected()
		if len(sel) == 0 {
			return nil
		}
		if _, err := s.transform.Nudge(sel, dx, dy); err != nil {
			return err
		}
		s.history.Push()
		return nil
	})
}

// ApplyScale converts a scale gesture reported by the rendering surface
// into width and height of id.
func (s *Session) ApplyScale(id string, scaleX, scaleY float64) error {
	return s.locked(func() error {
		if _, err := s.transform.ApplyScale(id, scaleX, scaleY); err != nil {
			return err
		}
		s.history.Push()
		return nil
	})
}

// CommitStyle applies style to every selected element of a matching type
// as one undoable step. It returns the number of elements changed.
func (s *Session) CommitStyle(style model.Style) (int, error) {
	if style == nil {
		return 0, board.ErrInvalidElement
	}
	n := 0
	err := s.locked(func() error {
		patches := make(map[string]model.Patch)
		before := make(map[string]model.BoardElement)
		for _, id := range s.selection.Selected() {
			el, ok := s.store.Get(id)
			if !ok || el.Locked || !model.Accepts(style, el.Type) {
				continue
			}
			patches[id] = model.Patch{Style: style}
			before[id] = el
		}
		if len(patches) == 0 {
			return nil
		}
		for _, after := range s.store.UpdateMany(patches, board.OriginLocal) {
			if !model.Diff(before[after.ID], after).IsEmpty() {
				n++
			}
		}
		if n > 0 {
			s.history.Push()
		}
		return nil
	})
	return n, err
}

// CommitContent replaces the content of id, for example after text
// editing.
func (s *Session) CommitContent(id string, content model.Content) error {
	return s.locked(func() error {
		el, ok := s.store.Get(id)
		if !ok {
			return board.ErrElementNotFound
		}
		if content == nil || !model.Accepts(content, el.Type) {
			return board.ErrInvalidElement
		}
		after, err := s.store.Update(id, model.Patch{Content: content}, board.OriginLocal)
		if err != nil {
			return err
		}
		if model.Diff(el, after).IsEmpty() {
			return nil
		}
		s.history.Push()
		return nil
	})
}

// Align lines up the selection. Elements held by another collaborator keep
// their place.
func (s *Session) Align(mode board.AlignMode) error {
	return s.locked(func() error {
		sel := s.selection.Selected()
		moved, err := s.store.Align(sel, mode, s.held(sel)...)
		if err != nil {
			return err
		}
		if len(moved) > 0 {
			s.history.Push()
		}
		return nil
	})
}

// Distribute spaces the selection evenly along axis. Elements held by
// another collaborator keep their place.
func (s *Session) Distribute(axis board.Axis) error {
	return s.locked(func() error {
		sel := s.selection.Selected()
		moved, err := s.store.Distribute(sel, axis, s.held(sel)...)
		if err != nil {
			return err
		}
		if len(moved) > 0 {
			s.history.Push()
		}
		return nil
	})
}

// Reorder changes the z-order of the selection.
func (s *Session) Reorder(op ReorderOp) error {
	return s.locked(func() error {
		sel := s.selection.Selected()
		if len(sel) == 0 {
			return ErrNothingSelected
		}
		var changed bool
		switch op {
		case ReorderFront:
			changed = s.store.BringToFront(sel)
		case ReorderBack:
			changed = s.store.SendToBack(sel)
		case ReorderForward:
			changed = s.store.BringForward(sel)
		case ReorderBackward:
			changed = s.store.SendBackward(sel)
		default:
			return errors.New("unknown reorder op: " + string(op))
		}
		if changed {
			s.history.Push()
		}
		return nil
	})
}

// ResetView returns the viewport to the origin at zoom 1.
func (s *Session) ResetView() {
	s.locked(func() error {
		s.view.Reset()
		return nil
	})
}

// transformable returns the ids that local edits may move or remove.
func (s *Session) transformable(ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if s.transform.CanTransform(id) {
			out = append(out, id)
		}
	}
	return out
}

// held returns the ids selected by another collaborator.
func (s *Session) held(ids []string) []string {
	var out []string
	for _, id := range ids {
		if s.sync != nil && s.sync.IsRemotelyLocked(id) {
			out = append(out, id)
		}
	}
	return out
}
