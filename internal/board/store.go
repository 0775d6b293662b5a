// Package board implements the element store: the single owner of element
// lifetime on one board and the only place where elements are mutated.
package board

import (
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"realtime-board/internal/geom"
	"realtime-board/internal/model"
)

// Store is the canonical id -> element mapping of one board. Every mutation,
// local or remote, goes through commit so the minimum-size and z-order rules
// are enforced in one place.
type Store struct {
	boardID string

	mu       sync.RWMutex
	elements map[string]model.BoardElement

	obsMu     sync.RWMutex
	observers map[int]Observer
	nextObs   int

	now func() time.Time
}

// NewStore creates an empty store for a board.
func NewStore(boardID string) *Store {
	return &Store{
		boardID:   boardID,
		elements:  make(map[string]model.BoardElement),
		observers: make(map[int]Observer),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// BoardID returns the board this store belongs to.
func (s *Store) BoardID() string {
	return s.boardID
}

// Subscribe registers an observer and returns a function that removes it.
func (s *Store) Subscribe(o Observer) func() {
	s.obsMu.Lock()
	id := s.nextObs
	s.nextObs++
	s.observers[id] = o
	s.obsMu.Unlock()

	return func() {
		s.obsMu.Lock()
		delete(s.observers, id)
		s.obsMu.Unlock()
	}
}

// Get returns a copy of the element with the given id.
func (s *Store) Get(id string) (model.BoardElement, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.elements[id]
	if !ok {
		return model.BoardElement{}, false
	}
	return e.Clone(), true
}

// Has reports whether id is a live element.
func (s *Store) Has(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.elements[id]
	return ok
}

// Len returns the number of elements.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.elements)
}

// Ordered returns copies of all elements in paint order, bottom first.
func (s *Store) Ordered() []model.BoardElement {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.BoardElement, 0, len(s.elements))
	for _, e := range s.orderedLocked() {
		out = append(out, e.Clone())
	}
	return out
}

// IDs returns all element ids in paint order.
func (s *Store) IDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ordered := s.orderedLocked()
	ids := make([]string, len(ordered))
	for i, e := range ordered {
		ids[i] = e.ID
	}
	return ids
}

// Bounds returns the union of the unrotated bounds of the given elements.
// Unknown ids are skipped; ok is false when none were found.
func (s *Store) Bounds(ids []string) (geom.Rect, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		r     geom.Rect
		found bool
	)
	for _, id := range ids {
		e, ok := s.elements[id]
		if !ok {
			continue
		}
		if !found {
			r, found = e.Bounds(), true
			continue
		}
		r = r.Union(e.Bounds())
	}
	return r, found
}

// MaxZ returns the highest z_index on the board, 0 when empty.
func (s *Store) MaxZ() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.maxZLocked(nil)
}

// Add inserts an element. Local adds get a fresh id when none is set and are
// placed on top of the z-order. Other origins keep the element's own z_index
// and overwrite an existing element with the same id.
func (s *Store) Add(el model.BoardElement, origin Origin) (model.BoardElement, error) {
	var out model.BoardElement
	err := s.commit(origin, func(tx *txn) error {
		if el.ID == "" && origin == OriginLocal {
			el.ID = uuid.NewString()
		}
		if el.BoardID == "" {
			el.BoardID = s.boardID
		}
		if el.Content == nil {
			el.Content = model.DefaultContent(el.Type)
		}
		if el.Style == nil {
			el.Style = model.DefaultStyle(el.Type)
		}
		if err := el.Validate(); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidElement, err)
		}
		if origin == OriginLocal {
			el.ZIndex = s.maxZLocked(nil) + 1
			now := s.now()
			if el.CreatedAt.IsZero() {
				el.CreatedAt = now
			}
			el.UpdatedAt = now
		}
		if before, exists := s.elements[el.ID]; exists {
			out = tx.replace(before, el)
			return nil
		}
		out = tx.create(el)
		return nil
	})
	return out, err
}

// Update applies a partial update to one element. Width and height are
// clamped to the minimum and rotation is normalized. Content or style of
// the wrong variant are ignored. Unknown ids return ErrElementNotFound.
func (s *Store) Update(id string, p model.Patch, origin Origin) (model.BoardElement, error) {
	var out model.BoardElement
	err := s.commit(origin, func(tx *txn) error {
		before, ok := s.elements[id]
		if !ok {
			return fmt.Errorf("update %s: %w", id, ErrElementNotFound)
		}
		out = tx.patch(before, p)
		return nil
	})
	return out, err
}

// UpdateMany applies several patches as one operation with a single
// observer notification. Unknown ids are skipped.
func (s *Store) UpdateMany(patches map[string]model.Patch, origin Origin) []model.BoardElement {
	var out []model.BoardElement
	_ = s.commit(origin, func(tx *txn) error {
		ids := make([]string, 0, len(patches))
		for id := range patches {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			before, ok := s.elements[id]
			if !ok {
				continue
			}
			out = append(out, tx.patch(before, patches[id]))
		}
		return nil
	})
	return out
}

// Remove deletes the given elements and strips them from any frame that
// listed them as children. It returns the ids actually removed.
func (s *Store) Remove(ids []string, origin Origin) []string {
	var removed []string
	_ = s.commit(origin, func(tx *txn) error {
		gone := make(map[string]bool, len(ids))
		for _, id := range ids {
			e, ok := s.elements[id]
			if !ok || gone[id] {
				continue
			}
			gone[id] = true
			removed = append(removed, id)
			tx.remove(e)
		}
		if len(gone) == 0 {
			return nil
		}
		for _, e := range s.orderedLocked() {
			fc, ok := e.Content.(model.FrameContent)
			if !ok {
				continue
			}
			kept := slices.DeleteFunc(slices.Clone(fc.Children), func(c string) bool { return gone[c] })
			if len(kept) != len(fc.Children) {
				fc.Children = kept
				tx.patch(e, model.Patch{Content: fc})
			}
		}
		return nil
	})
	return removed
}

// Duplicate clones the given elements with new ids, offset by delta, and
// stacks the clones on top of the z-order keeping their relative order.
// Frame children are remapped to their clones when duplicated together and
// dropped otherwise.
func (s *Store) Duplicate(ids []string, delta geom.Point, createdBy string) []model.BoardElement {
	var clones []model.BoardElement
	_ = s.commit(OriginLocal, func(tx *txn) error {
		want := make(map[string]bool, len(ids))
		for _, id := range ids {
			want[id] = true
		}
		var sources []model.BoardElement
		for _, e := range s.orderedLocked() {
			if want[e.ID] {
				sources = append(sources, e)
			}
		}
		if len(sources) == 0 {
			return nil
		}

		newID := make(map[string]string, len(sources))
		for _, e := range sources {
			newID[e.ID] = uuid.NewString()
		}

		z := s.maxZLocked(nil)
		now := s.now()
		for _, src := range sources {
			c := src.Clone()
			c.ID = newID[src.ID]
			c.PositionX += delta.X
			c.PositionY += delta.Y
			z++
			c.ZIndex = z
			c.CreatedAt = now
			c.UpdatedAt = now
			if createdBy != "" {
				c.CreatedBy = createdBy
			}
			if fc, ok := c.Content.(model.FrameContent); ok {
				children := make([]string, 0, len(fc.Children))
				for _, child := range fc.Children {
					if mapped, ok := newID[child]; ok {
						children = append(children, mapped)
					}
				}
				fc.Children = children
				c.Content = fc
			}
			clones = append(clones, tx.create(c))
		}
		return nil
	})
	return clones
}

// Snapshot captures an immutable deep copy of the whole store.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m := make(map[string]model.BoardElement, len(s.elements))
	for id, e := range s.elements {
		m[id] = e.Clone()
	}
	return Snapshot{elements: m}
}

// Restore makes the store equal to snap. Only differences are applied, so
// observers see the minimal set of creates, updates and removes.
func (s *Store) Restore(snap Snapshot, origin Origin) {
	_ = s.commit(origin, func(tx *txn) error {
		for _, e := range s.orderedLocked() {
			if _, keep := snap.elements[e.ID]; !keep {
				tx.remove(e)
			}
		}
		for _, e := range snap.ordered() {
			if before, ok := s.elements[e.ID]; ok {
				tx.replace(before, e.Clone())
				continue
			}
			tx.create(e.Clone())
		}
		return nil
	})
}

// ReplaceAll makes the store hold exactly the given elements.
func (s *Store) ReplaceAll(elements []model.BoardElement, origin Origin) {
	s.Restore(NewSnapshot(elements), origin)
}

// commit runs fn under the write lock and then notifies observers with the
// recorded changes, outside the lock.
func (s *Store) commit(origin Origin, fn func(tx *txn) error) error {
	s.mu.Lock()
	tx := &txn{store: s, origin: origin}
	err := fn(tx)
	s.mu.Unlock()

	if len(tx.changes) > 0 {
		s.notify(tx.changes)
	}
	return err
}

func (s *Store) notify(changes []Change) {
	s.obsMu.RLock()
	keys := make([]int, 0, len(s.observers))
	for k := range s.observers {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	obs := make([]Observer, 0, len(keys))
	for _, k := range keys {
		obs = append(obs, s.observers[k])
	}
	s.obsMu.RUnlock()

	for _, o := range obs {
		o(changes)
	}
}

// orderedLocked returns elements sorted by (z_index, created_at, id).
func (s *Store) orderedLocked() []model.BoardElement {
	out := make([]model.BoardElement, 0, len(s.elements))
	for _, e := range s.elements {
		out = append(out, e)
	}
	sortPaintOrder(out)
	return out
}

func (s *Store) maxZLocked(exclude map[string]bool) int {
	first := true
	maxZ := 0
	for id, e := range s.elements {
		if exclude[id] {
			continue
		}
		if first || e.ZIndex > maxZ {
			maxZ, first = e.ZIndex, false
		}
	}
	return maxZ
}

func (s *Store) minZLocked(exclude map[string]bool) int {
	first := true
	minZ := 0
	for id, e := range s.elements {
		if exclude[id] {
			continue
		}
		if first || e.ZIndex < minZ {
			minZ, first = e.ZIndex, false
		}
	}
	return minZ
}

func sortPaintOrder(els []model.BoardElement) {
	sort.SliceStable(els, func(i, j int) bool {
		a, b := els[i], els[j]
		if a.ZIndex != b.ZIndex {
			return a.ZIndex < b.ZIndex
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
}

// txn records the changes of one commit. All writes to the element map go
// through its methods.
type txn struct {
	store   *Store
	origin  Origin
	changes []Change
}

func (tx *txn) create(e model.BoardElement) model.BoardElement {
	e.Geometry = e.Geometry.Normalize()
	e.Style = model.NormalizeStyle(e.Style)
	tx.store.elements[e.ID] = e
	tx.changes = append(tx.changes, Change{Kind: ChangeCreated, Origin: tx.origin, Element: e.Clone()})
	return e.Clone()
}

// replace overwrites before with after, recording only the changed fields.
func (tx *txn) replace(before, after model.BoardElement) model.BoardElement {
	after.Geometry = after.Geometry.Normalize()
	after.Style = model.NormalizeStyle(after.Style)
	diff := model.Diff(before, after)
	if diff.IsEmpty() {
		return before.Clone()
	}
	tx.store.elements[after.ID] = after
	tx.changes = append(tx.changes, Change{Kind: ChangeUpdated, Origin: tx.origin, Element: after.Clone(), Patch: diff})
	return after.Clone()
}

func (tx *txn) patch(before model.BoardElement, p model.Patch) model.BoardElement {
	after := before.Clone()
	if p.PositionX != nil {
		after.PositionX = *p.PositionX
	}
	if p.PositionY != nil {
		after.PositionY = *p.PositionY
	}
	if p.Width != nil {
		after.Width = *p.Width
	}
	if p.Height != nil {
		after.Height = *p.Height
	}
	if p.RotationDegrees != nil {
		after.RotationDegrees = *p.RotationDegrees
	}
	if p.ZIndex != nil {
		after.ZIndex = *p.ZIndex
	}
	if p.Locked != nil {
		after.Locked = *p.Locked
	}
	if p.Content != nil && model.Accepts(p.Content, after.Type) {
		after.Content = p.Content.CloneContent()
	}
	if p.Style != nil && model.Accepts(p.Style, after.Type) {
		after.Style = p.Style.CloneStyle()
	}
	after.UpdatedAt = tx.store.now()
	return tx.replace(before, after)
}

func (tx *txn) remove(e model.BoardElement) {
	delete(tx.store.elements, e.ID)
	tx.changes = append(tx.changes, Change{Kind: ChangeRemoved, Origin: tx.origin, Element: e.Clone()})
}
