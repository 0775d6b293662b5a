package board

import (
	"realtime-board/internal/geom"
	"realtime-board/internal/model"
)

// LockOwner identifies the remote collaborator whose selection locks an
// element.
type LockOwner struct {
	CollaboratorID string
	DisplayName    string
	Color          string
}

// Resolved is one element ready for drawing: paint-order position, bounds,
// payloads and the overlays the rendering surface has to draw on top.
type Resolved struct {
	Element  model.BoardElement
	Bounds   geom.Rect
	Selected bool
	// LockedBy is set when another collaborator has the element selected.
	LockedBy *LockOwner
}

// Label returns the text drawn next to a remote lock outline.
func (r Resolved) Label() string {
	if r.LockedBy == nil {
		return ""
	}
	if r.LockedBy.DisplayName != "" {
		return r.LockedBy.DisplayName
	}
	return r.LockedBy.CollaboratorID
}

// Resolve builds the render view of the store in paint order.
func (s *Store) Resolve(selected []string, locks map[string]LockOwner) []Resolved {
	sel := make(map[string]bool, len(selected))
	for _, id := range selected {
		sel[id] = true
	}

	els := s.Ordered()
	out := make([]Resolved, 0, len(els))
	for _, e := range els {
		r := Resolved{Element: e, Bounds: e.Bounds(), Selected: sel[e.ID]}
		if owner, ok := locks[e.ID]; ok {
			o := owner
			r.LockedBy = &o
		}
		out = append(out, r)
	}
	return out
}
