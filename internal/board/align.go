package board

import (
	"errors"
	"fmt"
	"sort"

	"realtime-board/internal/geom"
	"realtime-board/internal/model"
)

// ErrTooFewElements is returned when a batch layout operation gets fewer
// elements than it needs.
var ErrTooFewElements = errors.New("too few elements")

// AlignMode 정렬 기준
type AlignMode string

const (
	AlignLeft   AlignMode = "left"
	AlignCenter AlignMode = "center"
	AlignRight  AlignMode = "right"
	AlignTop    AlignMode = "top"
	AlignMiddle AlignMode = "middle"
	AlignBottom AlignMode = "bottom"
)

// Valid reports whether m is a known mode.
func (m AlignMode) Valid() bool {
	switch m {
	case AlignLeft, AlignCenter, AlignRight, AlignTop, AlignMiddle, AlignBottom:
		return true
	}
	return false
}

// Axis 분배 방향
type Axis string

const (
	AxisHorizontal Axis = "horizontal"
	AxisVertical   Axis = "vertical"
)

// Align lines the given elements up against an edge or center line of their
// combined bounds. Locked elements and the pinned ids count toward the
// bounds but stay put. At least two elements are required.
func (s *Store) Align(ids []string, mode AlignMode, pinned ...string) ([]model.BoardElement, error) {
	if !mode.Valid() {
		return nil, fmt.Errorf("unknown align mode %q", mode)
	}
	var moved []model.BoardElement
	err := s.commit(OriginLocal, func(tx *txn) error {
		els := s.collectLocked(ids)
		if len(els) < 2 {
			return fmt.Errorf("align needs 2 elements, got %d: %w", len(els), ErrTooFewElements)
		}
		bounds := unionBounds(els)
		center := bounds.Center()
		stay := pinSet(pinned)

		for _, e := range els {
			if e.Locked || stay[e.ID] {
				continue
			}
			var p model.Patch
			switch mode {
			case AlignLeft:
				p.PositionX = model.Float(bounds.X)
			case AlignCenter:
				p.PositionX = model.Float(center.X - e.Width/2)
			case AlignRight:
				p.PositionX = model.Float(bounds.Right() - e.Width)
			case AlignTop:
				p.PositionY = model.Float(bounds.Y)
			case AlignMiddle:
				p.PositionY = model.Float(center.Y - e.Height/2)
			case AlignBottom:
				p.PositionY = model.Float(bounds.Bottom() - e.Height)
			}
			before := len(tx.changes)
			out := tx.patch(e, p)
			if len(tx.changes) > before {
				moved = append(moved, out)
			}
		}
		return nil
	})
	return moved, err
}

// Distribute spaces the given elements with equal gaps along an axis. The
// first and last element in that direction are anchors and do not move,
// nor do locked elements and the pinned ids. At least three elements are
// required.
func (s *Store) Distribute(ids []string, axis Axis, pinned ...string) ([]model.BoardElement, error) {
	if axis != AxisHorizontal && axis != AxisVertical {
		return nil, fmt.Errorf("unknown axis %q", axis)
	}
	var moved []model.BoardElement
	err := s.commit(OriginLocal, func(tx *txn) error {
		els := s.collectLocked(ids)
		if len(els) < 3 {
			return fmt.Errorf("distribute needs 3 elements, got %d: %w", len(els), ErrTooFewElements)
		}

		pos := func(e model.BoardElement) float64 { return e.PositionX }
		size := func(e model.BoardElement) float64 { return e.Width }
		if axis == AxisVertical {
			pos = func(e model.BoardElement) float64 { return e.PositionY }
			size = func(e model.BoardElement) float64 { return e.Height }
		}
		sort.SliceStable(els, func(i, j int) bool {
			if pos(els[i]) != pos(els[j]) {
				return pos(els[i]) < pos(els[j])
			}
			return els[i].ID < els[j].ID
		})

		first, last := els[0], els[len(els)-1]
		span := pos(last) + size(last) - pos(first)
		total := 0.0
		for _, e := range els {
			total += size(e)
		}
		gap := (span - total) / float64(len(els)-1)

		stay := pinSet(pinned)
		cursor := pos(first) + size(first) + gap
		for _, e := range els[1 : len(els)-1] {
			at := cursor
			cursor += size(e) + gap
			if e.Locked || stay[e.ID] {
				continue
			}
			var p model.Patch
			if axis == AxisHorizontal {
				p.PositionX = model.Float(at)
			} else {
				p.PositionY = model.Float(at)
			}
			before := len(tx.changes)
			out := tx.patch(e, p)
			if len(tx.changes) > before {
				moved = append(moved, out)
			}
		}
		return nil
	})
	return moved, err
}

func (s *Store) collectLocked(ids []string) []model.BoardElement {
	seen := make(map[string]bool, len(ids))
	var out []model.BoardElement
	for _, id := range ids {
		e, ok := s.elements[id]
		if !ok || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, e)
	}
	return out
}

func pinSet(ids []string) map[string]bool {
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}

func unionBounds(els []model.BoardElement) geom.Rect {
	r := els[0].Bounds()
	for _, e := range els[1:] {
		r = r.Union(e.Bounds())
	}
	return r
}
