package board

import "realtime-board/internal/model"

// BringToFront moves the given elements above every other element, keeping
// their relative order. Afterwards they hold the maximum z_index values.
func (s *Store) BringToFront(ids []string) bool {
	return s.reorderExtreme(ids, true)
}

// SendToBack moves the given elements below every other element, keeping
// their relative order.
func (s *Store) SendToBack(ids []string) bool {
	return s.reorderExtreme(ids, false)
}

// BringForward moves each given element one step up, past its nearest
// unselected neighbour.
func (s *Store) BringForward(ids []string) bool {
	return s.reorderStep(ids, true)
}

// SendBackward moves each given element one step down.
func (s *Store) SendBackward(ids []string) bool {
	return s.reorderStep(ids, false)
}

func (s *Store) reorderExtreme(ids []string, front bool) bool {
	changed := false
	_ = s.commit(OriginLocal, func(tx *txn) error {
		sel := s.selectedLocked(ids)
		if len(sel) == 0 {
			return nil
		}
		var targets []model.BoardElement
		for _, e := range s.orderedLocked() {
			if sel[e.ID] {
				targets = append(targets, e)
			}
		}

		var base int
		if front {
			base = s.maxZLocked(sel) + 1
			if len(sel) == len(s.elements) {
				base = targets[0].ZIndex
			}
		} else {
			base = s.minZLocked(sel) - len(targets)
			if len(sel) == len(s.elements) {
				base = targets[0].ZIndex
			}
		}
		for i, e := range targets {
			before := len(tx.changes)
			tx.patch(e, model.Patch{ZIndex: model.Int(base + i)})
			if len(tx.changes) > before {
				changed = true
			}
		}
		return nil
	})
	return changed
}

// reorderStep swaps selected elements with their neighbour in paint order.
// The existing z_index values are reused as slots; when they contain ties
// the board is renumbered densely first so a swap is always visible.
func (s *Store) reorderStep(ids []string, up bool) bool {
	changed := false
	_ = s.commit(OriginLocal, func(tx *txn) error {
		sel := s.selectedLocked(ids)
		if len(sel) == 0 {
			return nil
		}
		ordered := s.orderedLocked()

		slots := make([]int, len(ordered))
		dense := false
		for i, e := range ordered {
			slots[i] = e.ZIndex
			if i > 0 && slots[i] == slots[i-1] {
				dense = true
			}
		}
		if dense {
			for i := range slots {
				slots[i] = i + 1
			}
		}

		next := make([]model.BoardElement, len(ordered))
		copy(next, ordered)
		if up {
			for i := len(next) - 2; i >= 0; i-- {
				if sel[next[i].ID] && !sel[next[i+1].ID] {
					next[i], next[i+1] = next[i+1], next[i]
				}
			}
		} else {
			for i := 1; i < len(next); i++ {
				if sel[next[i].ID] && !sel[next[i-1].ID] {
					next[i], next[i-1] = next[i-1], next[i]
				}
			}
		}

		for i, e := range next {
			if e.ZIndex == slots[i] {
				continue
			}
			tx.patch(e, model.Patch{ZIndex: model.Int(slots[i])})
			changed = true
		}
		return nil
	})
	return changed
}

func (s *Store) selectedLocked(ids []string) map[string]bool {
	sel := make(map[string]bool, len(ids))
	for _, id := range ids {
		if _, ok := s.elements[id]; ok {
			sel[id] = true
		}
	}
	return sel
}
