// Package session scopes everything that lives while one board is open in
// a client: the viewport, the element store, the selection and transform
// engines, history and the collaboration layer. A Session is created by
// Open and torn down by Close; nothing is process-wide.
package session

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"realtime-board/internal/board"
	"realtime-board/internal/collab"
	"realtime-board/internal/geom"
	"realtime-board/internal/history"
	"realtime-board/internal/model"
	"realtime-board/internal/selection"
	"realtime-board/internal/transform"
	"realtime-board/internal/transport"
	"realtime-board/internal/viewport"
)

// ErrClosed is returned by every operation after Close.
var ErrClosed = errors.New("session closed")

// State 세션 상태
type State int

const (
	StateOpen   State = iota // 편집 가능
	StateClosed              // 종료됨
)

// String 상태를 문자열로 반환
func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Defaults for Options.
const (
	DefaultDuplicateOffset = 20.0
	DefaultHandleRadius    = 8.0
)

// Options configures a Session. Transport may be nil for a purely local
// board.
type Options struct {
	Identity  collab.Identity
	Transport transport.Transport
	Loader    transport.Loader

	HistoryCap      int
	SnapTolerance   float64
	DuplicateOffset float64
	// HandleRadius is the hit radius of transform handles in screen pixels.
	HandleRadius float64

	CursorFrame  time.Duration
	ReconnectMin time.Duration
	ReconnectMax time.Duration

	OnConnection func(collab.State)
	OnPresence   func([]model.Presence)
}

type pointerMode int

const (
	pointerIdle pointerMode = iota
	pointerGesture
	pointerMarquee
)

// Session 보드 세션 (Thread-Safe)
//
// All input and every remote merge run under mu, so the store only ever
// sees one mutation source at a time.
type Session struct {
	ID       string
	BoardID  string
	OpenedAt time.Time

	mu      sync.Mutex
	state   State
	opts    Options
	pointer pointerMode

	view      *viewport.Viewport
	store     *board.Store
	selection *selection.Engine
	transform *transform.Engine
	history   *history.Manager
	sync      *collab.Sync
}

// Open loads elements into a fresh store and, when a transport is given,
// starts collaborating on boardID.
func Open(ctx context.Context, boardID string, elements []model.BoardElement, opts Options) (*Session, error) {
	if boardID == "" {
		return nil, errors.New("board id required")
	}
	if opts.Identity.CollaboratorID == "" {
		opts.Identity.CollaboratorID = uuid.New().String()
	}
	if opts.DuplicateOffset == 0 {
		opts.DuplicateOffset = DefaultDuplicateOffset
	}
	if opts.HandleRadius <= 0 {
		opts.HandleRadius = DefaultHandleRadius
	}

	s := &Session{
		ID:       uuid.New().String(),
		BoardID:  boardID,
		OpenedAt: time.Now(),
		state:    StateOpen,
		opts:     opts,
		view:     viewport.New(),
		store:    board.NewStore(boardID),
	}
	// initial contents are not a user action and are never published
	s.store.ReplaceAll(elements, board.OriginReload)

	var locks transform.LockSource
	if opts.Transport != nil {
		s.sync = collab.New(s.store, collab.Options{
			Transport:    opts.Transport,
			Loader:       opts.Loader,
			Identity:     opts.Identity,
			CursorFrame:  opts.CursorFrame,
			ReconnectMin: opts.ReconnectMin,
			ReconnectMax: opts.ReconnectMax,
			Dispatch:     s.dispatch,
			OnState:      opts.OnConnection,
			OnPresence:   opts.OnPresence,
			OnReload:     s.onReload,
		})
		locks = s.sync
	}

	s.selection = selection.New(s.store)
	s.transform = transform.New(s.store, locks, opts.SnapTolerance)
	s.history = history.NewManager(s.store, opts.HistoryCap)
	s.selection.OnChange(s.onSelectionChange)

	if s.sync != nil {
		s.sync.Start(ctx)
	}
	log.Printf("[Session %s] opened board %s with %d elements", s.ID, boardID, len(elements))
	return s, nil
}

// Close 세션 정리
func (s *Session) Close() {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return
	}
	s.state = StateClosed
	s.transform.Discard()
	s.pointer = pointerIdle
	s.mu.Unlock()

	// sync goroutines may be waiting in dispatch; never hold mu here
	if s.sync != nil {
		s.sync.Close()
	}
	s.selection.Close()
	log.Printf("[Session %s] closed board %s after %s", s.ID, s.BoardID, time.Since(s.OpenedAt).Round(time.Second))
}

// GetState 현재 상태 조회
func (s *Session) GetState() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// IsClosed 세션 종료 여부 확인
func (s *Session) IsClosed() bool {
	return s.GetState() == StateClosed
}

// Store returns the element store. Mutate it only through the session.
func (s *Session) Store() *board.Store {
	return s.store
}

// Identity returns the local collaborator.
func (s *Session) Identity() collab.Identity {
	if s.sync != nil {
		return s.sync.Identity()
	}
	return s.opts.Identity
}

// Viewport returns a copy of the current pan and zoom.
func (s *Session) Viewport() viewport.Viewport {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.view
}

// Selected returns the selected ids.
func (s *Session) Selected() []string {
	return s.selection.Selected()
}

// Tool returns the active tool.
func (s *Session) Tool() selection.Tool {
	return s.selection.Tool()
}

// Marquee returns the drag-select rectangle in world coordinates.
func (s *Session) Marquee() (geom.Rect, bool) {
	return s.selection.Marquee()
}

// Handles returns the transform handles when exactly one element is
// selected and it can be transformed.
func (s *Session) Handles() []transform.HandlePosition {
	sel := s.selection.Selected()
	if len(sel) != 1 {
		return nil
	}
	return s.transform.Handles(sel[0])
}

// Resolve returns the render view of the board: every element in paint
// order with its selection state and remote lock owner.
func (s *Session) Resolve() []board.Resolved {
	return s.store.Resolve(s.selection.Selected(), s.Locks())
}

// Locks returns the elements selected by other collaborators.
func (s *Session) Locks() map[string]board.LockOwner {
	if s.sync == nil {
		return nil
	}
	return s.sync.Locks()
}

// Peers returns the presence of the other collaborators.
func (s *Session) Peers() []model.Presence {
	if s.sync == nil {
		return nil
	}
	return s.sync.Peers()
}

// Connection returns the state of the collaboration channel.
func (s *Session) Connection() collab.State {
	if s.sync == nil {
		return collab.StateDisconnected
	}
	return s.sync.State()
}

// Flush waits until every local edit reached the transport.
func (s *Session) Flush(ctx context.Context) error {
	if s.sync == nil {
		return nil
	}
	return s.sync.Flush(ctx)
}

// CanUndo reports whether Undo would change the board.
func (s *Session) CanUndo() bool {
	return s.history.CanUndo()
}

// CanRedo reports whether Redo would change the board.
func (s *Session) CanRedo() bool {
	return s.history.CanRedo()
}

// dispatch serializes fn with local input. The collaboration layer runs
// remote merges and reloads through it.
func (s *Session) dispatch(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateClosed {
		return
	}
	fn()
}

// locked runs fn under mu unless the session is closed.
func (s *Session) locked(fn func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateClosed {
		return ErrClosed
	}
	return fn()
}

// onReload runs inside dispatch after the board was refetched. Undo must
// not restore state from before the reload.
func (s *Session) onReload() {
	s.transform.Discard()
	s.selection.CancelMarquee()
	s.pointer = pointerIdle
	s.history.Reset()
}

// onSelectionChange runs with mu held, from input or from a merge that
// removed selected elements.
func (s *Session) onSelectionChange(ids []string) {
	if s.sync != nil {
		s.sync.SetSelection(ids)
	}
	if s.transform.Active() == transform.GestureNone {
		return
	}
	selected := make(map[string]bool, len(ids))
	for _, id := range ids {
		selected[id] = true
	}
	for _, id := range s.transform.Targets() {
		if !selected[id] {
			s.transform.Abort()
			s.pointer = pointerIdle
			return
		}
	}
}
