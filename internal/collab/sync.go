// Package collab keeps a board's element store in sync with other
// collaborators: it publishes local mutations, merges remote ones with
// last-writer-wins per field, tracks presence and derives remote locks.
package collab

import (
	"context"
	"errors"
	"log"
	"slices"
	"sync"
	"time"

	"github.com/gammazero/deque"

	"realtime-board/internal/board"
	"realtime-board/internal/geom"
	"realtime-board/internal/model"
	"realtime-board/internal/transport"
)

var (
	// ErrSyncConflict marks a remote event that references an element that
	// no longer exists locally. Such events are dropped.
	ErrSyncConflict = errors.New("remote event references unknown element")

	// ErrNotConnected is returned by operations that need a live channel.
	ErrNotConnected = errors.New("not connected")
)

// State is the connection state of the sync layer.
type State int

const (
	StateConnecting State = iota
	StateSubscribed
	StateDegraded
	StateDisconnected
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateSubscribed:
		return "subscribed"
	case StateDegraded:
		return "degraded"
	case StateDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// Defaults for Options.
const (
	DefaultCursorFrame     = 16 * time.Millisecond
	DefaultReconnectMin    = 500 * time.Millisecond
	DefaultReconnectMax    = 10 * time.Second
	DefaultPublishTimeout  = 5 * time.Second
	disconnectedAfterFails = 3
)

// Identity is the local collaborator.
type Identity struct {
	CollaboratorID string
	UserID         int64
	DisplayName    string
	Color          string
}

// Options configures a Sync.
type Options struct {
	Transport transport.Transport
	// Loader refetches the board on reconnect. Without one the local
	// replica is kept as is.
	Loader   transport.Loader
	Identity Identity

	CursorFrame  time.Duration
	ReconnectMin time.Duration
	ReconnectMax time.Duration

	// Dispatch runs fn serialized with local input. Remote merges and
	// reloads go through it. Defaults to calling fn directly.
	Dispatch func(fn func())

	// OnState is called after every state transition.
	OnState func(State)
	// OnPresence is called with the peer list after it changes.
	OnPresence func([]model.Presence)
	// OnReload is called inside Dispatch after the store was refetched.
	OnReload func()
}

// Sync is the collaboration layer of one open board.
type Sync struct {
	store *board.Store
	opts  Options

	mu         sync.Mutex
	state      State
	outbox     deque.Deque[model.Event]
	peers      peerTable
	selection  []string
	cursor     *geom.Point
	cursorSent bool
	selDirty   bool
	seq        uint64
	sub        transport.Subscription
	started    bool

	kick        chan struct{}
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	unsubscribe func()
}

// New creates the sync layer for store. Local mutations are queued from
// now on; Start opens the channel.
func New(store *board.Store, opts Options) *Sync {
	if opts.CursorFrame <= 0 {
		opts.CursorFrame = DefaultCursorFrame
	}
	if opts.ReconnectMin <= 0 {
		opts.ReconnectMin = DefaultReconnectMin
	}
	if opts.ReconnectMax < opts.ReconnectMin {
		opts.ReconnectMax = max(DefaultReconnectMax, opts.ReconnectMin)
	}
	if opts.Dispatch == nil {
		opts.Dispatch = func(fn func()) { fn() }
	}
	if opts.Identity.Color == "" {
		opts.Identity.Color = ColorFor(opts.Identity.CollaboratorID)
	}

	s := &Sync{
		store: store,
		opts:  opts,
		state: StateConnecting,
		peers: make(peerTable),
		kick:  make(chan struct{}, 1),
	}
	s.unsubscribe = store.Subscribe(s.onStoreChange)
	return s
}

// Start connects in the background and keeps reconnecting until Close.
func (s *Sync) Start(ctx context.Context) {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()

	s.wg.Add(3)
	go s.runConnection()
	go s.runPublisher()
	go s.runCursor()
}

// Close announces departure, stops all goroutines and detaches from the
// store. It must not be called from inside Dispatch.
func (s *Sync) Close() {
	s.unsubscribe()

	s.mu.Lock()
	started := s.started
	subscribed := s.state == StateSubscribed
	s.mu.Unlock()

	if started && subscribed {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		if err := s.opts.Transport.Publish(ctx, s.presenceEvent(model.EventPresenceLeave)); err != nil {
			log.Printf("[Sync %s] presence_leave failed: %v", s.boardID(), err)
		}
		cancel()
	}

	if started {
		s.cancel()
		s.mu.Lock()
		sub := s.sub
		s.mu.Unlock()
		if sub != nil {
			sub.Close()
		}
		s.wg.Wait()
	}
	s.setState(StateDisconnected)
}

// State returns the current connection state.
func (s *Sync) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Identity returns the local collaborator.
func (s *Sync) Identity() Identity {
	return s.opts.Identity
}

// Pending returns the number of local events not yet delivered.
func (s *Sync) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.outbox.Len()
}

// Flush waits until every queued local event was delivered. It returns
// ErrNotConnected right away when the channel is down.
func (s *Sync) Flush(ctx context.Context) error {
	ticker := time.NewTicker(time.Millisecond)
	defer ticker.Stop()
	for {
		s.mu.Lock()
		state, pending := s.state, s.outbox.Len()
		s.mu.Unlock()
		if pending == 0 {
			return nil
		}
		if state != StateSubscribed {
			return ErrNotConnected
		}
		s.signal()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Peers returns the presence of every other collaborator.
func (s *Sync) Peers() []model.Presence {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.peers.list()
}

// IsRemotelyLocked reports whether another collaborator has id selected.
func (s *Sync) IsRemotelyLocked(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.peers.locked(id)
}

// Locks returns every remotely locked element with its owner.
func (s *Sync) Locks() map[string]board.LockOwner {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.peers.locks()
}

// SetSelection records the local selection. It is published on every
// change.
func (s *Sync) SetSelection(ids []string) {
	s.mu.Lock()
	if slices.Equal(s.selection, ids) {
		s.mu.Unlock()
		return
	}
	s.selection = slices.Clone(ids)
	s.selDirty = true
	s.mu.Unlock()
	s.signal()
}

// SetCursor records the local pointer in world coordinates; nil means the
// pointer left the canvas. Updates are coalesced to one per frame.
func (s *Sync) SetCursor(p *geom.Point) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p != nil {
		c := *p
		s.cursor = &c
	} else {
		s.cursor = nil
	}
	s.cursorSent = false
}

func (s *Sync) boardID() string {
	return s.store.BoardID()
}

func (s *Sync) signal() {
	select {
	case s.kick <- struct{}{}:
	default:
	}
}

func (s *Sync) setState(st State) {
	s.mu.Lock()
	if s.state == st {
		s.mu.Unlock()
		return
	}
	prev := s.state
	s.state = st
	s.mu.Unlock()

	log.Printf("[Sync %s] %s -> %s", s.boardID(), prev, st)
	if s.opts.OnState != nil {
		s.opts.OnState(st)
	}
	if st == StateSubscribed {
		s.signal()
	}
}

// onStoreChange turns local and history mutations into queued events.
// Remote merges and reloads are never republished.
func (s *Sync) onStoreChange(changes []board.Change) {
	var (
		events  []model.Event
		removed []string
	)
	for _, c := range changes {
		if !c.Origin.Publishable() {
			continue
		}
		el := c.Element
		switch c.Kind {
		case board.ChangeCreated:
			events = append(events, model.Event{Kind: model.EventElementCreated, Element: &el})
		case board.ChangeUpdated:
			p := c.Patch
			events = append(events, model.Event{
				Kind:        model.EventElementUpdated,
				ElementID:   el.ID,
				ElementType: el.Type,
				Patch:       &p,
			})
		case board.ChangeRemoved:
			removed = append(removed, el.ID)
		}
	}
	if len(removed) > 0 {
		events = append(events, model.Event{Kind: model.EventElementRemoved, IDs: removed})
	}
	if len(events) == 0 {
		return
	}

	s.mu.Lock()
	for _, ev := range events {
		s.outbox.PushBack(s.stampLocked(ev))
	}
	s.mu.Unlock()
	s.signal()
}

func (s *Sync) stampLocked(ev model.Event) model.Event {
	s.seq++
	ev.BoardID = s.boardID()
	ev.Origin = s.opts.Identity.CollaboratorID
	ev.Seq = s.seq
	ev.SentAt = time.Now().UTC()
	return ev
}

func (s *Sync) presenceEvent(kind model.EventKind) model.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.presenceEventLocked(kind)
}

func (s *Sync) presenceEventLocked(kind model.EventKind) model.Event {
	id := s.opts.Identity
	p := model.Presence{
		CollaboratorID: id.CollaboratorID,
		UserID:         id.UserID,
		DisplayName:    id.DisplayName,
		Color:          id.Color,
		SelectedIDs:    slices.Clone(s.selection),
		UpdatedAt:      time.Now().UTC(),
	}
	if s.cursor != nil {
		c := *s.cursor
		p.Cursor = &c
	}
	return s.stampLocked(model.Event{Kind: kind, Presence: &p})
}

// runConnection subscribes, resyncs after a drop and consumes events until
// the context ends.
func (s *Sync) runConnection() {
	defer s.wg.Done()

	backoff := s.opts.ReconnectMin
	failures := 0
	reconnect := false

	for {
		if s.ctx.Err() != nil {
			return
		}

		sub, err := s.opts.Transport.Subscribe(s.ctx, s.boardID())
		if err != nil {
			failures++
			if failures >= disconnectedAfterFails {
				s.setState(StateDisconnected)
			}
			log.Printf("[Sync %s] subscribe failed (attempt %d): %v", s.boardID(), failures, err)
			if !s.sleep(backoff) {
				return
			}
			backoff = min(backoff*2, s.opts.ReconnectMax)
			continue
		}

		if reconnect {
			if err := s.resync(); err != nil {
				log.Printf("[Sync %s] refetch failed: %v", s.boardID(), err)
				sub.Close()
				failures++
				if !s.sleep(backoff) {
					return
				}
				backoff = min(backoff*2, s.opts.ReconnectMax)
				continue
			}
		}

		s.mu.Lock()
		s.sub = sub
		// presence_join carries the current cursor and selection
		s.cursorSent = true
		s.selDirty = false
		s.mu.Unlock()
		failures = 0
		backoff = s.opts.ReconnectMin
		reconnect = true

		s.setState(StateSubscribed)
		s.publish(s.presenceEvent(model.EventPresenceJoin))

		s.consume(sub)
		sub.Close()

		s.mu.Lock()
		s.sub = nil
		hadPeers := len(s.peers) > 0
		s.peers = make(peerTable)
		s.mu.Unlock()
		if s.ctx.Err() != nil {
			return
		}
		log.Printf("[Sync %s] connection lost, retrying", s.boardID())
		s.setState(StateDegraded)
		if hadPeers {
			s.notifyPresence()
		}
	}
}

func (s *Sync) consume(sub transport.Subscription) {
	for {
		select {
		case <-s.ctx.Done():
			return
		case ev, ok := <-sub.Events():
			if !ok {
				return
			}
			s.handleRemote(ev)
		}
	}
}

func (s *Sync) handleRemote(ev model.Event) {
	if ev.Origin == s.opts.Identity.CollaboratorID || ev.BoardID != s.boardID() {
		return
	}
	if err := ev.Validate(); err != nil {
		log.Printf("[Sync %s] dropping invalid event: %v", s.boardID(), err)
		return
	}

	if ev.Kind.IsPresence() {
		s.mu.Lock()
		changed := s.peers.apply(ev)
		if ev.Kind == model.EventPresenceJoin {
			// introduce ourselves to the newcomer
			s.selDirty = true
		}
		s.mu.Unlock()
		if ev.Kind == model.EventPresenceJoin {
			s.signal()
		}
		if changed {
			s.notifyPresence()
		}
		return
	}

	var err error
	s.opts.Dispatch(func() { err = s.merge(ev) })
	if err != nil {
		log.Printf("[Sync %s] %s from %s dropped: %v", s.boardID(), ev.Kind, ev.Origin, err)
	}
}

// merge applies a remote element event through the store. Fields carried
// by the event overwrite local values.
func (s *Sync) merge(ev model.Event) error {
	return Apply(s.store, ev, board.OriginRemote)
}

// resync refetches the authoritative elements and re-applies the local
// edits that were made while offline so they survive the reload.
func (s *Sync) resync() error {
	if s.opts.Loader == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(s.ctx, DefaultPublishTimeout)
	defer cancel()

	elements, err := s.opts.Loader.Load(ctx, s.boardID())
	if err != nil {
		return err
	}

	s.mu.Lock()
	queued := make([]model.Event, 0, s.outbox.Len())
	for i := 0; i < s.outbox.Len(); i++ {
		queued = append(queued, s.outbox.At(i))
	}
	s.mu.Unlock()

	s.opts.Dispatch(func() {
		s.store.ReplaceAll(elements, board.OriginReload)
		for _, ev := range queued {
			s.reapply(ev)
		}
		if s.opts.OnReload != nil {
			s.opts.OnReload()
		}
	})
	log.Printf("[Sync %s] refetched %d elements, replaying %d queued events", s.boardID(), len(elements), len(queued))
	return nil
}

func (s *Sync) reapply(ev model.Event) {
	Apply(s.store, ev, board.OriginReload)
}

// runPublisher drains the outbox in order while subscribed. A failed
// publish leaves the event at the front for the next attempt.
func (s *Sync) runPublisher() {
	defer s.wg.Done()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-s.kick:
		}

		for {
			s.mu.Lock()
			if s.state != StateSubscribed {
				s.mu.Unlock()
				break
			}
			var (
				ev   model.Event
				have bool
			)
			if s.outbox.Len() > 0 {
				ev, have = s.outbox.Front(), true
			} else if s.selDirty {
				s.selDirty = false
				s.mu.Unlock()
				s.publish(s.presenceEvent(model.EventSelectionUpdate))
				continue
			}
			s.mu.Unlock()
			if !have {
				break
			}

			if err := s.publish(ev); err != nil {
				break
			}
			s.mu.Lock()
			if s.outbox.Len() > 0 && s.outbox.Front().Seq == ev.Seq {
				s.outbox.PopFront()
			}
			s.mu.Unlock()
		}
	}
}

// runCursor publishes the latest cursor position at most once per frame.
func (s *Sync) runCursor() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.opts.CursorFrame)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.mu.Lock()
			if s.cursorSent || s.state != StateSubscribed {
				s.mu.Unlock()
				continue
			}
			s.cursorSent = true
			ev := s.presenceEventLocked(model.EventCursorUpdate)
			s.mu.Unlock()
			s.publish(ev)
		}
	}
}

func (s *Sync) publish(ev model.Event) error {
	ctx, cancel := context.WithTimeout(s.ctx, DefaultPublishTimeout)
	defer cancel()
	if err := s.opts.Transport.Publish(ctx, ev); err != nil {
		if s.ctx.Err() == nil {
			log.Printf("[Sync %s] publish %s failed: %v", s.boardID(), ev.Kind, err)
		}
		return err
	}
	return nil
}

func (s *Sync) notifyPresence() {
	if s.opts.OnPresence != nil {
		s.opts.OnPresence(s.Peers())
	}
}

func (s *Sync) sleep(d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-s.ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
