package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bep/debounce"
	"github.com/gofiber/contrib/websocket"
	"github.com/puzpuzpuz/xsync/v3"

	"realtime-board/internal/board"
	"realtime-board/internal/collab"
	"realtime-board/internal/model"
	"realtime-board/internal/presence"
	"realtime-board/internal/repository"
	"realtime-board/internal/transport"
)

// =============================================================================
// Board Hub - 보드 단위 WebSocket 중계 및 서버 측 복제본 관리
// =============================================================================

// ErrBoardLive is returned when a bulk save targets a board that has live
// connections.
var ErrBoardLive = errors.New("board has live collaborators")

// ErrCollaboratorTaken is returned when a connection claims a collaborator
// id that another user holds on the board.
var ErrCollaboratorTaken = errors.New("collaborator id held by another user")

const (
	DefaultSaveDelay    = 2 * time.Second
	defaultRelayTimeout = 5 * time.Second
)

// Conn is the write side of a board connection.
type Conn interface {
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// BoardHub manages all open boards and their connections. Events are relayed
// through a transport so several server instances can share a board.
type BoardHub struct {
	rooms     *xsync.MapOf[string, *BoardRoom]
	bus       transport.Transport
	store     repository.ElementStore
	directory *presence.Manager // nil이면 Redis 미사용
	saveDelay time.Duration
}

// BoardRoom is one open board: the authoritative replica, the roster of
// collaborators and the local connections.
type BoardRoom struct {
	ID      string
	hub     *BoardHub
	replica *board.Store
	roster  *collab.Roster
	clients map[string]*BoardClient
	mu      sync.RWMutex
	closed  bool

	loadOnce sync.Once
	loadErr  error
	loaded   atomic.Bool
	dirty    atomic.Bool
	save     func(func())

	sub    transport.Subscription
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// BoardClient is one collaborator connection.
type BoardClient struct {
	ID       string // collaborator id
	UserID   int64
	Nickname string
	Role     model.BoardRole
	Conn     Conn
	writeMu  sync.Mutex
}

// NewBoardHub creates a hub. directory may be nil.
func NewBoardHub(bus transport.Transport, store repository.ElementStore, directory *presence.Manager, saveDelay time.Duration) *BoardHub {
	if saveDelay <= 0 {
		saveDelay = DefaultSaveDelay
	}
	return &BoardHub{
		rooms:     xsync.NewMapOf[string, *BoardRoom](),
		bus:       bus,
		store:     store,
		directory: directory,
		saveDelay: saveDelay,
	}
}

// Join adds client to a board, loading the board on first use, and sends it
// the current roster. A collaborator id is owned by the user that holds it;
// the same user reconnecting replaces the old connection.
func (h *BoardHub) Join(ctx context.Context, boardID string, client *BoardClient) (*BoardRoom, error) {
	var room *BoardRoom
	var replaced *BoardClient
	for {
		room, _ = h.rooms.LoadOrCompute(boardID, func() *BoardRoom {
			return h.newRoom(boardID)
		})
		room.mu.Lock()
		if room.closed {
			room.mu.Unlock()
			continue
		}
		if held, ok := room.clients[client.ID]; ok {
			if held.UserID != client.UserID {
				room.mu.Unlock()
				log.Printf("[Board %s] User %d tried to take collaborator %s", boardID, client.UserID, client.ID)
				return nil, ErrCollaboratorTaken
			}
			replaced = held
		}
		room.clients[client.ID] = client
		room.mu.Unlock()
		break
	}
	if replaced != nil {
		replaced.Conn.Close()
	}

	if err := room.load(ctx); err != nil {
		h.Leave(room, client)
		return nil, err
	}

	log.Printf("[Board %s] Client joined: %s (user %d, %s)", boardID, client.ID, client.UserID, client.Role)
	for _, p := range room.roster.List() {
		if p.CollaboratorID == client.ID {
			continue
		}
		room.sendTo(client, model.Event{
			Kind:     model.EventPresenceJoin,
			BoardID:  boardID,
			Origin:   p.CollaboratorID,
			SentAt:   time.Now(),
			Presence: &p,
		})
	}
	return room, nil
}

// Leave removes client and announces its departure. The last client to leave
// closes the room after persisting pending changes.
func (h *BoardHub) Leave(room *BoardRoom, client *BoardClient) {
	room.mu.Lock()
	if room.clients[client.ID] != client {
		room.mu.Unlock()
		return
	}
	delete(room.clients, client.ID)
	empty := len(room.clients) == 0
	if empty {
		room.closed = true
		h.removeRoom(room)
	}
	room.mu.Unlock()

	if room.loaded.Load() {
		h.announceLeave(room, client)
	}
	log.Printf("[Board %s] Client left: %s", room.ID, client.ID)

	if empty {
		room.shutdown()
	}
}

// announceLeave tells the board and the presence directory that client is
// gone, releasing its locks everywhere.
func (h *BoardHub) announceLeave(room *BoardRoom, client *BoardClient) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultRelayTimeout)
	defer cancel()
	leave := model.Event{
		Kind:     model.EventPresenceLeave,
		BoardID:  room.ID,
		Origin:   client.ID,
		SentAt:   time.Now(),
		Presence: &model.Presence{CollaboratorID: client.ID, UserID: client.UserID},
	}
	if err := h.bus.Publish(ctx, leave); err != nil {
		log.Printf("[Board %s] Failed to announce leave of %s: %v", room.ID, client.ID, err)
	}
	if h.directory != nil {
		if err := h.directory.RemovePresence(ctx, room.ID, client.ID); err != nil {
			log.Printf("[Board %s] Failed to remove presence of %s: %v", room.ID, client.ID, err)
		}
	}
}

// evict closes a room whose board feed ended under it. Its replica may have
// missed events, so every client is disconnected to reconnect and refetch.
func (h *BoardHub) evict(room *BoardRoom) {
	room.mu.Lock()
	room.closed = true
	clients := room.clients
	room.clients = make(map[string]*BoardClient)
	room.mu.Unlock()
	h.removeRoom(room)

	log.Printf("[Board %s] Feed ended, disconnecting %d clients", room.ID, len(clients))
	for _, c := range clients {
		c.Conn.Close()
		h.announceLeave(room, c)
	}
	room.shutdown()
}

// Room returns the open room of a board.
func (h *BoardHub) Room(boardID string) (*BoardRoom, bool) {
	room, ok := h.rooms.Load(boardID)
	if !ok || !room.loaded.Load() {
		return nil, false
	}
	return room, true
}

// Elements returns the live replica of an open board, or the persisted
// elements otherwise.
func (h *BoardHub) Elements(ctx context.Context, boardID string) ([]model.BoardElement, error) {
	if room, ok := h.Room(boardID); ok {
		return room.replica.Ordered(), nil
	}
	return h.store.Load(ctx, boardID)
}

// Save replaces the persisted elements of a board that nobody is editing.
func (h *BoardHub) Save(ctx context.Context, boardID string, elements []model.BoardElement) error {
	if _, ok := h.rooms.Load(boardID); ok {
		return ErrBoardLive
	}
	return h.store.Save(ctx, boardID, elements)
}

// Peers returns the collaborators on a board. The presence directory is
// preferred because it spans server instances.
func (h *BoardHub) Peers(ctx context.Context, boardID string) ([]model.Presence, error) {
	if h.directory != nil {
		return h.directory.Roster(ctx, boardID)
	}
	if room, ok := h.Room(boardID); ok {
		return room.roster.List(), nil
	}
	return []model.Presence{}, nil
}

// Resolve returns the render view of a board with remote selections as
// lock owners.
func (h *BoardHub) Resolve(ctx context.Context, boardID string) ([]board.Resolved, error) {
	if room, ok := h.Room(boardID); ok {
		return room.replica.Resolve(nil, room.roster.Locks()), nil
	}
	elements, err := h.store.Load(ctx, boardID)
	if err != nil {
		return nil, err
	}
	tmp := board.NewStore(boardID)
	tmp.ReplaceAll(elements, board.OriginReload)
	return tmp.Resolve(nil, nil), nil
}

// RoomCount returns the number of open boards.
func (h *BoardHub) RoomCount() int {
	return h.rooms.Size()
}

// Shutdown persists and closes every open board.
func (h *BoardHub) Shutdown() {
	h.rooms.Range(func(id string, room *BoardRoom) bool {
		room.mu.Lock()
		room.closed = true
		room.mu.Unlock()
		h.removeRoom(room)
		room.shutdown()
		return true
	})
}

// removeRoom drops room from the registry unless it was already replaced.
func (h *BoardHub) removeRoom(room *BoardRoom) {
	h.rooms.Compute(room.ID, func(current *BoardRoom, loaded bool) (*BoardRoom, bool) {
		return current, !loaded || current == room
	})
}

func (h *BoardHub) newRoom(boardID string) *BoardRoom {
	ctx, cancel := context.WithCancel(context.Background())
	return &BoardRoom{
		ID:      boardID,
		hub:     h,
		replica: board.NewStore(boardID),
		roster:  collab.NewRoster(),
		clients: make(map[string]*BoardClient),
		save:    debounce.New(h.saveDelay),
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
}

// load fetches the persisted elements and subscribes to the board channel
// once per room.
func (r *BoardRoom) load(ctx context.Context) error {
	r.loadOnce.Do(func() {
		elements, err := r.hub.store.Load(ctx, r.ID)
		if err != nil {
			r.loadErr = err
			close(r.done)
			return
		}
		r.replica.ReplaceAll(elements, board.OriginReload)

		sub, err := r.hub.bus.Subscribe(r.ctx, r.ID)
		if err != nil {
			r.loadErr = err
			close(r.done)
			return
		}
		r.sub = sub
		r.loaded.Store(true)
		go r.run()
		log.Printf("[Board %s] Opened with %d elements", r.ID, len(elements))
	})
	return r.loadErr
}

// HandleMessage validates an event sent by client and publishes it on the
// board channel. Identity fields are taken from the connection, never from
// the payload.
func (r *BoardRoom) HandleMessage(client *BoardClient, data []byte) error {
	var ev model.Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return err
	}
	ev.BoardID = r.ID
	ev.Origin = client.ID
	if ev.SentAt.IsZero() {
		ev.SentAt = time.Now()
	}
	if ev.Presence != nil {
		ev.Presence.CollaboratorID = client.ID
		ev.Presence.UserID = client.UserID
		if ev.Presence.DisplayName == "" {
			ev.Presence.DisplayName = client.Nickname
		}
		if ev.Presence.Color == "" {
			ev.Presence.Color = collab.ColorFor(client.ID)
		}
	}
	if err := ev.Validate(); err != nil {
		return err
	}
	if ev.Kind.IsElement() && !client.Role.CanEdit() {
		log.Printf("[Board %s] Dropping %s from read-only client %s", r.ID, ev.Kind, client.ID)
		return nil
	}

	ctx, cancel := context.WithTimeout(r.ctx, defaultRelayTimeout)
	defer cancel()
	return r.hub.bus.Publish(ctx, ev)
}

// run consumes the board channel until the room closes.
func (r *BoardRoom) run() {
	defer close(r.done)

	heartbeat := time.NewTicker(r.heartbeatInterval())
	defer heartbeat.Stop()

	events := r.sub.Events()
	for {
		select {
		case <-r.ctx.Done():
			return
		case <-heartbeat.C:
			r.heartbeat()
		case ev, ok := <-events:
			if !ok {
				if r.ctx.Err() == nil {
					go r.hub.evict(r)
				}
				return
			}
			r.dispatch(ev)
		}
	}
}

func (r *BoardRoom) dispatch(ev model.Event) {
	if ev.BoardID != r.ID {
		return
	}
	if err := ev.Validate(); err != nil {
		log.Printf("[Board %s] Dropping invalid event: %v", r.ID, err)
		return
	}

	if ev.Kind.IsElement() {
		if err := collab.Apply(r.replica, ev, board.OriginRemote); err != nil {
			log.Printf("[Board %s] %s from %s not applied: %v", r.ID, ev.Kind, ev.Origin, err)
		} else {
			r.markDirty()
		}
	} else {
		r.roster.Apply(ev)
		r.mirrorPresence(ev)
	}
	r.broadcast(ev)
}

// broadcast sends ev to every local client except its origin.
func (r *BoardRoom) broadcast(ev model.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		log.Printf("[Board %s] Failed to marshal %s: %v", r.ID, ev.Kind, err)
		return
	}

	r.mu.RLock()
	targets := make([]*BoardClient, 0, len(r.clients))
	for id, c := range r.clients {
		if id != ev.Origin {
			targets = append(targets, c)
		}
	}
	r.mu.RUnlock()

	for _, c := range targets {
		if err := c.write(data); err != nil {
			log.Printf("[Board %s] Write to %s failed: %v", r.ID, c.ID, err)
		}
	}
}

func (r *BoardRoom) sendTo(c *BoardClient, ev model.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}
	if err := c.write(data); err != nil {
		log.Printf("[Board %s] Write to %s failed: %v", r.ID, c.ID, err)
	}
}

func (c *BoardClient) write(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.Conn.WriteMessage(websocket.TextMessage, data)
}

func (r *BoardRoom) isLocal(collaboratorID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.clients[collaboratorID]
	return ok
}

// mirrorPresence copies presence held by local clients into the directory.
// Each instance only writes the collaborators connected to it.
func (r *BoardRoom) mirrorPresence(ev model.Event) {
	dir := r.hub.directory
	if dir == nil || ev.Kind == model.EventPresenceLeave || !r.isLocal(ev.Origin) {
		return
	}
	p, ok := r.roster.Get(ev.Origin)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.ctx, defaultRelayTimeout)
	defer cancel()
	if err := dir.SetPresence(ctx, r.ID, p); err != nil {
		log.Printf("[Board %s] Presence mirror failed for %s: %v", r.ID, ev.Origin, err)
	}
}

func (r *BoardRoom) heartbeatInterval() time.Duration {
	if r.hub.directory == nil {
		return time.Minute
	}
	return max(r.hub.directory.TTL()/2, time.Second)
}

// heartbeat refreshes the directory entries of idle local clients.
func (r *BoardRoom) heartbeat() {
	dir := r.hub.directory
	if dir == nil {
		return
	}
	r.mu.RLock()
	ids := make([]string, 0, len(r.clients))
	for id := range r.clients {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	ctx, cancel := context.WithTimeout(r.ctx, defaultRelayTimeout)
	defer cancel()
	for _, id := range ids {
		err := dir.Heartbeat(ctx, r.ID, id)
		if errors.Is(err, presence.ErrOffline) {
			// expired while idle; rewrite from the roster
			if p, ok := r.roster.Get(id); ok {
				err = dir.SetPresence(ctx, r.ID, p)
			} else {
				err = nil
			}
		}
		if err != nil {
			log.Printf("[Board %s] Heartbeat failed for %s: %v", r.ID, id, err)
		}
	}
}

func (r *BoardRoom) markDirty() {
	r.dirty.Store(true)
	r.save(r.persist)
}

// persist writes the replica if it changed since the last save.
func (r *BoardRoom) persist() {
	if !r.dirty.Swap(false) {
		return
	}
	elements := r.replica.Ordered()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := r.hub.store.Save(ctx, r.ID, elements); err != nil {
		log.Printf("[Board %s] Save failed: %v", r.ID, err)
		r.dirty.Store(true)
		return
	}
	log.Printf("[Board %s] Saved %d elements", r.ID, len(elements))
}

// shutdown stops the relay and flushes any pending save.
func (r *BoardRoom) shutdown() {
	r.cancel()
	<-r.done
	if r.sub != nil {
		r.sub.Close()
	}
	r.save(func() {})
	r.persist()
	log.Printf("[Board %s] Closed", r.ID)
}
