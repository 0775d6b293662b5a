// Package selection tracks which elements the local user has selected and
// which tool is active.
package selection

import (
	"slices"
	"sync"

	"realtime-board/internal/board"
	"realtime-board/internal/geom"
	"realtime-board/internal/model"
)

// Tool is the active canvas tool.
type Tool string

const (
	ToolSelect Tool = "select"
	ToolText   Tool = "text"
	ToolShape  Tool = "shape"
	ToolSticky Tool = "sticky"
	ToolImage  Tool = "image"
	ToolVideo  Tool = "video"
	ToolFrame  Tool = "frame"
)

// ElementType returns the element type a creation tool spawns.
func (t Tool) ElementType() (model.ElementType, bool) {
	switch t {
	case ToolText:
		return model.ElementText, true
	case ToolShape:
		return model.ElementShape, true
	case ToolSticky:
		return model.ElementSticky, true
	case ToolImage:
		return model.ElementImage, true
	case ToolVideo:
		return model.ElementVideo, true
	case ToolFrame:
		return model.ElementFrame, true
	}
	return "", false
}

// Valid reports whether t is a known tool.
func (t Tool) Valid() bool {
	_, creates := t.ElementType()
	return t == ToolSelect || creates
}

// Engine holds the selection set, the active tool and an in-progress
// marquee. Selected ids always refer to live elements: removals from the
// store prune the set.
type Engine struct {
	store *board.Store

	mu       sync.Mutex
	selected []string
	tool     Tool
	marquee  *marquee
	onChange []func(ids []string)

	unsubscribe func()
}

type marquee struct {
	start    geom.Point
	current  geom.Point
	additive bool
	base     []string
}

// New creates an engine bound to store with the select tool active.
func New(store *board.Store) *Engine {
	e := &Engine{store: store, tool: ToolSelect}
	e.unsubscribe = store.Subscribe(e.prune)
	return e
}

// Close detaches the engine from the store.
func (e *Engine) Close() {
	if e.unsubscribe != nil {
		e.unsubscribe()
	}
}

// OnChange registers fn to be called with the new selection after every
// change. Callbacks run outside the engine lock.
func (e *Engine) OnChange(fn func(ids []string)) {
	e.mu.Lock()
	e.onChange = append(e.onChange, fn)
	e.mu.Unlock()
}

// Selected returns the selected ids in selection order.
func (e *Engine) Selected() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return slices.Clone(e.selected)
}

// IsSelected reports whether id is selected.
func (e *Engine) IsSelected(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return slices.Contains(e.selected, id)
}

// Tool returns the active tool.
func (e *Engine) Tool() Tool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.tool
}

// SetTool switches the active tool. Unknown tools fall back to select.
func (e *Engine) SetTool(t Tool) {
	if !t.Valid() {
		t = ToolSelect
	}
	e.mu.Lock()
	e.tool = t
	e.mu.Unlock()
}

// HitTest returns the topmost element whose unrotated bounds contain p.
func (e *Engine) HitTest(p geom.Point) (string, bool) {
	els := e.store.Ordered()
	for i := len(els) - 1; i >= 0; i-- {
		if els[i].Bounds().Contains(p) {
			return els[i].ID, true
		}
	}
	return "", false
}

// Click selects exactly id, or toggles its membership when additive.
func (e *Engine) Click(id string, additive bool) {
	if !e.store.Has(id) {
		return
	}
	e.update(func(cur []string) []string {
		if !additive {
			return []string{id}
		}
		if i := slices.Index(cur, id); i >= 0 {
			return slices.Delete(cur, i, i+1)
		}
		return append(cur, id)
	})
}

// ClickBackground handles a click on empty canvas at world point p. With a
// creation tool active it spawns an element of that type with its top-left
// corner at p, selects it and returns to the select tool. Otherwise it
// clears the selection and returns nil.
func (e *Engine) ClickBackground(p geom.Point, createdBy string) (*model.BoardElement, error) {
	t, creates := e.Tool().ElementType()
	if !creates {
		e.Clear()
		return nil, nil
	}

	el, err := model.NewElement(e.store.BoardID(), t, p, createdBy)
	if err != nil {
		return nil, err
	}
	added, err := e.store.Add(el, board.OriginLocal)
	if err != nil {
		return nil, err
	}

	e.SetTool(ToolSelect)
	e.Set([]string{added.ID})
	return &added, nil
}

// Set replaces the selection. Unknown ids are dropped.
func (e *Engine) Set(ids []string) {
	live := make([]string, 0, len(ids))
	for _, id := range ids {
		if e.store.Has(id) && !slices.Contains(live, id) {
			live = append(live, id)
		}
	}
	e.update(func([]string) []string { return live })
}

// Clear empties the selection.
func (e *Engine) Clear() {
	e.update(func([]string) []string { return nil })
}

// BeginMarquee starts a drag-select at world point p. With additive set the
// marquee result is added to the current selection.
func (e *Engine) BeginMarquee(p geom.Point, additive bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	m := &marquee{start: p, current: p, additive: additive}
	if additive {
		m.base = slices.Clone(e.selected)
	}
	e.marquee = m
}

// UpdateMarquee moves the free corner of the marquee.
func (e *Engine) UpdateMarquee(p geom.Point) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.marquee != nil {
		e.marquee.current = p
	}
}

// Marquee returns the normalized marquee rectangle while a drag-select is
// in progress.
func (e *Engine) Marquee() (geom.Rect, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.marquee == nil {
		return geom.Rect{}, false
	}
	return geom.RectFromPoints(e.marquee.start, e.marquee.current), true
}

// MarqueeActive reports whether a drag-select is in progress.
func (e *Engine) MarqueeActive() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.marquee != nil
}

// EndMarquee finishes the drag-select and selects every element whose
// bounds intersect the rectangle.
func (e *Engine) EndMarquee() []string {
	e.mu.Lock()
	m := e.marquee
	e.marquee = nil
	e.mu.Unlock()
	if m == nil {
		return e.Selected()
	}

	hits := e.Intersecting(geom.RectFromPoints(m.start, m.current))
	ids := hits
	if m.additive {
		ids = slices.Clone(m.base)
		for _, id := range hits {
			if !slices.Contains(ids, id) {
				ids = append(ids, id)
			}
		}
	}
	e.Set(ids)
	return e.Selected()
}

// CancelMarquee drops an in-progress drag-select without changing the
// selection.
func (e *Engine) CancelMarquee() {
	e.mu.Lock()
	e.marquee = nil
	e.mu.Unlock()
}

// Intersecting returns, in paint order, the ids of elements whose unrotated
// bounds intersect r. Edges touching count as intersecting.
func (e *Engine) Intersecting(r geom.Rect) []string {
	r = r.Normalize()
	var ids []string
	for _, el := range e.store.Ordered() {
		if el.Bounds().Intersects(r) {
			ids = append(ids, el.ID)
		}
	}
	return ids
}

// prune drops removed elements from the selection.
func (e *Engine) prune(changes []board.Change) {
	var gone []string
	for _, c := range changes {
		if c.Kind == board.ChangeRemoved {
			gone = append(gone, c.Element.ID)
		}
	}
	if len(gone) == 0 {
		return
	}
	e.update(func(cur []string) []string {
		return slices.DeleteFunc(cur, func(id string) bool { return slices.Contains(gone, id) })
	})
}

func (e *Engine) update(fn func(cur []string) []string) {
	e.mu.Lock()
	before := slices.Clone(e.selected)
	e.selected = fn(slices.Clone(e.selected))
	if slices.Equal(before, e.selected) {
		e.mu.Unlock()
		return
	}
	ids := slices.Clone(e.selected)
	callbacks := slices.Clone(e.onChange)
	e.mu.Unlock()

	for _, fn := range callbacks {
		fn(ids)
	}
}
