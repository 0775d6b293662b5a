// Package transform implements move, resize and rotate gestures on the
// selected elements.
package transform

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"realtime-board/internal/board"
	"realtime-board/internal/geom"
	"realtime-board/internal/model"
)

var (
	// ErrNotTransformable is returned when every target is locked, either
	// by its locked flag or by another collaborator's selection.
	ErrNotTransformable = errors.New("element is not transformable")

	// ErrNoGesture is returned when no gesture is in progress.
	ErrNoGesture = errors.New("no gesture in progress")

	// ErrGestureActive is returned when a gesture is already running.
	ErrGestureActive = errors.New("gesture already in progress")

	// ErrInvalidScale is returned for a zero or non-finite scale factor.
	ErrInvalidScale = fmt.Errorf("%w: scale must be finite and non-zero", board.ErrInvalidElement)
)

// SnapStep is the rotation snap interval in degrees.
const SnapStep = 45.0

// DefaultSnapTolerance is how close to a snap angle rotation must be to snap.
const DefaultSnapTolerance = 5.0

// RotateHandleOffset is the distance of the rotate handle above the top edge.
const RotateHandleOffset = 24.0

// LockSource reports elements locked by other collaborators.
type LockSource interface {
	IsRemotelyLocked(id string) bool
}

// Handle names one of the transform handles.
type Handle string

const (
	HandleNW     Handle = "nw"
	HandleN      Handle = "n"
	HandleNE     Handle = "ne"
	HandleE      Handle = "e"
	HandleSE     Handle = "se"
	HandleS      Handle = "s"
	HandleSW     Handle = "sw"
	HandleW      Handle = "w"
	HandleRotate Handle = "rotate"
)

// ResizeHandles lists the eight anchors in clockwise order from top-left.
var ResizeHandles = []Handle{HandleNW, HandleN, HandleNE, HandleE, HandleSE, HandleS, HandleSW, HandleW}

func (h Handle) moves() (left, top, right, bottom bool) {
	switch h {
	case HandleNW:
		return true, true, false, false
	case HandleN:
		return false, true, false, false
	case HandleNE:
		return false, true, true, false
	case HandleE:
		return false, false, true, false
	case HandleSE:
		return false, false, true, true
	case HandleS:
		return false, false, false, true
	case HandleSW:
		return true, false, false, true
	case HandleW:
		return true, false, false, false
	}
	return false, false, false, false
}

// HandlePosition is a handle and its world position.
type HandlePosition struct {
	Handle Handle
	At     geom.Point
}

// GestureKind 진행 중인 제스처 종류
type GestureKind int

const (
	GestureNone GestureKind = iota
	GestureMove
	GestureResize
	GestureRotate
)

func (k GestureKind) String() string {
	switch k {
	case GestureMove:
		return "move"
	case GestureResize:
		return "resize"
	case GestureRotate:
		return "rotate"
	default:
		return "none"
	}
}

type gesture struct {
	kind   GestureKind
	handle Handle
	start  geom.Point
	// origin holds the pre-drag geometry of every target.
	origin map[string]model.Geometry
	ids    []string
}

// Engine runs one transform gesture at a time against the store.
type Engine struct {
	store         *board.Store
	locks         LockSource
	snapTolerance float64

	mu      sync.Mutex
	current *gesture
}

// New creates an engine. locks may be nil when there are no collaborators.
func New(store *board.Store, locks LockSource, snapTolerance float64) *Engine {
	if snapTolerance <= 0 {
		snapTolerance = DefaultSnapTolerance
	}
	return &Engine{store: store, locks: locks, snapTolerance: snapTolerance}
}

// CanTransform reports whether id exists and is neither locked nor selected
// by another collaborator.
func (e *Engine) CanTransform(id string) bool {
	el, ok := e.store.Get(id)
	if !ok || el.Locked {
		return false
	}
	return e.locks == nil || !e.locks.IsRemotelyLocked(id)
}

// Handles returns the handle positions for id, or nil when the element
// cannot be transformed. Positions follow the element's rotation.
func (e *Engine) Handles(id string) []HandlePosition {
	if !e.CanTransform(id) {
		return nil
	}
	el, _ := e.store.Get(id)
	b := el.Bounds()
	c := b.Center()

	pos := map[Handle]geom.Point{
		HandleNW: {X: b.X, Y: b.Y},
		HandleN:  {X: c.X, Y: b.Y},
		HandleNE: {X: b.Right(), Y: b.Y},
		HandleE:  {X: b.Right(), Y: c.Y},
		HandleSE: {X: b.Right(), Y: b.Bottom()},
		HandleS:  {X: c.X, Y: b.Bottom()},
		HandleSW: {X: b.X, Y: b.Bottom()},
		HandleW:  {X: b.X, Y: c.Y},
	}
	out := make([]HandlePosition, 0, len(ResizeHandles)+1)
	for _, h := range ResizeHandles {
		out = append(out, HandlePosition{Handle: h, At: rotateAbout(pos[h], c, el.RotationDegrees)})
	}
	rot := rotateAbout(geom.Point{X: c.X, Y: b.Y - RotateHandleOffset}, c, el.RotationDegrees)
	return append(out, HandlePosition{Handle: HandleRotate, At: rot})
}

// Active returns the kind of the running gesture.
func (e *Engine) Active() GestureKind {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.current == nil {
		return GestureNone
	}
	return e.current.kind
}

// Targets returns the ids the running gesture moves.
func (e *Engine) Targets() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.current == nil {
		return nil
	}
	return append([]string(nil), e.current.ids...)
}

// BeginMove starts dragging ids from world point start. Elements that cannot
// be transformed are left out; if none remain the move is refused.
func (e *Engine) BeginMove(ids []string, start geom.Point) error {
	return e.begin(GestureMove, "", ids, start)
}

// BeginResize starts resizing id from one of the eight anchors.
func (e *Engine) BeginResize(id string, h Handle, start geom.Point) error {
	if h == HandleRotate {
		return e.BeginRotate(id, start)
	}
	return e.begin(GestureResize, h, []string{id}, start)
}

// BeginRotate starts rotating id around its center.
func (e *Engine) BeginRotate(id string, start geom.Point) error {
	return e.begin(GestureRotate, HandleRotate, []string{id}, start)
}

func (e *Engine) begin(kind GestureKind, h Handle, ids []string, start geom.Point) error {
	g := &gesture{kind: kind, handle: h, start: start, origin: make(map[string]model.Geometry)}
	for _, id := range ids {
		if _, dup := g.origin[id]; dup || !e.CanTransform(id) {
			continue
		}
		el, _ := e.store.Get(id)
		g.origin[id] = el.Geometry
		g.ids = append(g.ids, id)
	}
	if len(g.ids) == 0 {
		return ErrNotTransformable
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.current != nil {
		return ErrGestureActive
	}
	e.current = g
	return nil
}

// Update applies the pointer position p to the running gesture. Geometry is
// always computed from the pre-drag state so deltas never accumulate. With
// freeRotate set rotation does not snap.
func (e *Engine) Update(p geom.Point, freeRotate bool) error {
	e.mu.Lock()
	g := e.current
	e.mu.Unlock()
	if g == nil {
		return ErrNoGesture
	}

	patches := make(map[string]model.Patch, len(g.ids))
	for _, id := range g.ids {
		o := g.origin[id]
		var next model.Geometry
		switch g.kind {
		case GestureMove:
			next = moveGeometry(o, p.Sub(g.start))
		case GestureResize:
			next = resizeGeometry(o, g.handle, p)
		case GestureRotate:
			next = o
			next.RotationDegrees = rotateDegrees(o, g.start, p)
			if !freeRotate {
				next.RotationDegrees = SnapRotation(next.RotationDegrees, e.snapTolerance)
			}
		}
		patches[id] = model.GeometryPatch(next)
	}
	e.store.UpdateMany(patches, board.OriginLocal)
	return nil
}

// End finishes the gesture and reports whether any target geometry differs
// from its pre-drag state. The caller records the history checkpoint.
func (e *Engine) End() (bool, error) {
	e.mu.Lock()
	g := e.current
	e.current = nil
	e.mu.Unlock()
	if g == nil {
		return false, ErrNoGesture
	}

	for _, id := range g.ids {
		el, ok := e.store.Get(id)
		if ok && el.Geometry != g.origin[id].Normalize() {
			return true, nil
		}
	}
	return false, nil
}

// Abort cancels the gesture and puts every target back to its pre-drag
// geometry. No checkpoint is taken.
func (e *Engine) Abort() bool {
	e.mu.Lock()
	g := e.current
	e.current = nil
	e.mu.Unlock()
	if g == nil {
		return false
	}

	patches := make(map[string]model.Patch, len(g.ids))
	for _, id := range g.ids {
		patches[id] = model.GeometryPatch(g.origin[id])
	}
	e.store.UpdateMany(patches, board.OriginLocal)
	return true
}

// Discard drops the running gesture without touching the store. Used when
// the elements under the gesture were replaced wholesale.
func (e *Engine) Discard() {
	e.mu.Lock()
	e.current = nil
	e.mu.Unlock()
}

// ApplyScale turns a scale factor applied by a rendering surface into
// absolute width and height. The scale itself is never stored.
func (e *Engine) ApplyScale(id string, scaleX, scaleY float64) (model.BoardElement, error) {
	if !validScale(scaleX) || !validScale(scaleY) {
		return model.BoardElement{}, ErrInvalidScale
	}
	if !e.CanTransform(id) {
		return model.BoardElement{}, ErrNotTransformable
	}
	el, _ := e.store.Get(id)
	return e.store.Update(id, model.Patch{
		Width:  model.Float(math.Abs(el.Width * scaleX)),
		Height: model.Float(math.Abs(el.Height * scaleY)),
	}, board.OriginLocal)
}

// Nudge moves the transformable subset of ids by a fixed delta.
func (e *Engine) Nudge(ids []string, dx, dy float64) ([]model.BoardElement, error) {
	patches := make(map[string]model.Patch, len(ids))
	for _, id := range ids {
		if !e.CanTransform(id) {
			continue
		}
		el, _ := e.store.Get(id)
		patches[id] = model.Patch{
			PositionX: model.Float(el.PositionX + dx),
			PositionY: model.Float(el.PositionY + dy),
		}
	}
	if len(patches) == 0 {
		return nil, ErrNotTransformable
	}
	return e.store.UpdateMany(patches, board.OriginLocal), nil
}

// SnapRotation returns the nearest multiple of SnapStep when deg lies within
// tolerance of it, otherwise deg normalized to [0, 360).
func SnapRotation(deg, tolerance float64) float64 {
	deg = geom.NormalizeDegrees(deg)
	nearest := math.Round(deg/SnapStep) * SnapStep
	if math.Abs(deg-nearest) <= tolerance {
		return geom.NormalizeDegrees(nearest)
	}
	return deg
}

func validScale(f float64) bool {
	return f != 0 && !math.IsNaN(f) && !math.IsInf(f, 0)
}

func moveGeometry(o model.Geometry, d geom.Point) model.Geometry {
	o.PositionX += d.X
	o.PositionY += d.Y
	return o
}

// resizeGeometry moves the edges named by h to p. The opposite edges stay
// fixed and the size never drops below the minimum. A rotated element is
// resized along its own axes.
func resizeGeometry(o model.Geometry, h Handle, p geom.Point) model.Geometry {
	if o.RotationDegrees == 0 {
		return resizeAxisAligned(o, h, p)
	}

	// work in the element frame centered on the pre-drag center
	c := o.Bounds().Center()
	local := rotateAbout(p, c, -o.RotationDegrees)
	frame := o
	frame.PositionX, frame.PositionY = c.X-o.Width/2, c.Y-o.Height/2
	frame.RotationDegrees = 0
	next := resizeAxisAligned(frame, h, local)

	// the resized box's center moves along the rotated axes
	nc := next.Bounds().Center()
	center := rotateAbout(nc, c, o.RotationDegrees)
	next.PositionX, next.PositionY = center.X-next.Width/2, center.Y-next.Height/2
	next.RotationDegrees = o.RotationDegrees
	return next
}

func resizeAxisAligned(o model.Geometry, h Handle, p geom.Point) model.Geometry {
	left, top := o.PositionX, o.PositionY
	right, bottom := left+o.Width, top+o.Height
	ml, mt, mr, mb := h.moves()
	minSize := model.MinElementSize

	if ml {
		left = math.Min(p.X, right-minSize)
	}
	if mr {
		right = math.Max(p.X, left+minSize)
	}
	if mt {
		top = math.Min(p.Y, bottom-minSize)
	}
	if mb {
		bottom = math.Max(p.Y, top+minSize)
	}

	o.PositionX, o.PositionY = left, top
	o.Width, o.Height = right-left, bottom-top
	return o
}

// rotateDegrees returns the rotation after dragging the rotate handle from
// start to p around the element's center.
func rotateDegrees(o model.Geometry, start, p geom.Point) float64 {
	c := o.Bounds().Center()
	a0 := math.Atan2(start.Y-c.Y, start.X-c.X)
	a1 := math.Atan2(p.Y-c.Y, p.X-c.X)
	return geom.NormalizeDegrees(o.RotationDegrees + (a1-a0)*180/math.Pi)
}

// rotateAbout rotates p around c by deg degrees, clockwise in screen space.
func rotateAbout(p, c geom.Point, deg float64) geom.Point {
	if deg == 0 {
		return p
	}
	sin, cos := math.Sincos(deg * math.Pi / 180)
	d := p.Sub(c)
	return geom.Point{X: c.X + d.X*cos - d.Y*sin, Y: c.Y + d.X*sin + d.Y*cos}
}
