package board

import "realtime-board/internal/model"

// Snapshot is an immutable copy of every element on a board. It is the unit
// of undo/redo and of reload.
type Snapshot struct {
	elements map[string]model.BoardElement
}

// NewSnapshot builds a snapshot from a list of elements.
func NewSnapshot(elements []model.BoardElement) Snapshot {
	m := make(map[string]model.BoardElement, len(elements))
	for _, e := range elements {
		m[e.ID] = e.Clone()
	}
	return Snapshot{elements: m}
}

// Len returns the number of elements in the snapshot.
func (s Snapshot) Len() int {
	return len(s.elements)
}

// Get returns a copy of one element.
func (s Snapshot) Get(id string) (model.BoardElement, bool) {
	e, ok := s.elements[id]
	if !ok {
		return model.BoardElement{}, false
	}
	return e.Clone(), true
}

// Elements returns copies of all elements in paint order.
func (s Snapshot) Elements() []model.BoardElement {
	out := s.ordered()
	for i := range out {
		out[i] = out[i].Clone()
	}
	return out
}

func (s Snapshot) ordered() []model.BoardElement {
	out := make([]model.BoardElement, 0, len(s.elements))
	for _, e := range s.elements {
		out = append(out, e)
	}
	sortPaintOrder(out)
	return out
}
