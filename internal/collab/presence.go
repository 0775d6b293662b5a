package collab

import (
	"errors"
	"hash/fnv"
	"slices"
	"sort"
	"sync"

	colorful "github.com/lucasb-eyer/go-colorful"

	"realtime-board/internal/board"
	"realtime-board/internal/model"
)

// ColorFor derives a stable, distinct outline color for a collaborator id.
func ColorFor(collaboratorID string) string {
	h := fnv.New32a()
	h.Write([]byte(collaboratorID))
	hue := float64(h.Sum32() % 360)
	return colorful.Hsv(hue, 0.65, 0.85).Hex()
}

// peerTable holds the presence of every other collaborator on the board.
// Callers synchronize access.
type peerTable map[string]model.Presence

// apply merges one presence event. It reports whether the table changed.
func (t peerTable) apply(ev model.Event) bool {
	p := ev.Presence
	if p == nil || p.CollaboratorID == "" {
		return false
	}

	switch ev.Kind {
	case model.EventPresenceLeave:
		if _, ok := t[p.CollaboratorID]; !ok {
			return false
		}
		delete(t, p.CollaboratorID)
		return true

	case model.EventPresenceJoin:
		t[p.CollaboratorID] = p.Clone()
		return true

	case model.EventCursorUpdate:
		cur := t[p.CollaboratorID]
		mergeIdentity(&cur, *p)
		cur.Cursor = p.Clone().Cursor
		cur.UpdatedAt = p.UpdatedAt
		t[p.CollaboratorID] = cur
		return true

	case model.EventSelectionUpdate:
		cur := t[p.CollaboratorID]
		mergeIdentity(&cur, *p)
		cur.SelectedIDs = slices.Clone(p.SelectedIDs)
		cur.UpdatedAt = p.UpdatedAt
		t[p.CollaboratorID] = cur
		return true
	}
	return false
}

func mergeIdentity(dst *model.Presence, src model.Presence) {
	dst.CollaboratorID = src.CollaboratorID
	if src.UserID != 0 {
		dst.UserID = src.UserID
	}
	if src.DisplayName != "" {
		dst.DisplayName = src.DisplayName
	}
	if src.Color != "" {
		dst.Color = src.Color
	}
}

// list returns copies of all presences ordered by collaborator id.
func (t peerTable) list() []model.Presence {
	out := make([]model.Presence, 0, len(t))
	for _, p := range t {
		out = append(out, p.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CollaboratorID < out[j].CollaboratorID })
	return out
}

// locks maps every remotely selected element to the collaborator holding
// it. When two collaborators select the same element the lower id wins so
// the label is stable.
func (t peerTable) locks() map[string]board.LockOwner {
	out := make(map[string]board.LockOwner)
	for _, p := range t.list() {
		for _, id := range p.SelectedIDs {
			if _, taken := out[id]; taken {
				continue
			}
			out[id] = board.LockOwner{
				CollaboratorID: p.CollaboratorID,
				DisplayName:    p.DisplayName,
				Color:          p.Color,
			}
		}
	}
	return out
}

func (t peerTable) locked(id string) bool {
	for _, p := range t {
		if slices.Contains(p.SelectedIDs, id) {
			return true
		}
	}
	return false
}

// Apply merges an element event into store with the given origin. Updates
// and removals of unknown ids return ErrSyncConflict.
func Apply(store *board.Store, ev model.Event, origin board.Origin) error {
	switch ev.Kind {
	case model.EventElementCreated:
		if ev.Element == nil {
			return ErrSyncConflict
		}
		_, err := store.Add(*ev.Element, origin)
		return err

	case model.EventElementUpdated:
		if ev.Patch == nil {
			return ErrSyncConflict
		}
		if _, err := store.Update(ev.ElementID, *ev.Patch, origin); err != nil {
			if errors.Is(err, board.ErrElementNotFound) {
				return ErrSyncConflict
			}
			return err
		}

	case model.EventElementRemoved:
		if removed := store.Remove(ev.IDs, origin); len(removed) == 0 {
			return ErrSyncConflict
		}
	}
	return nil
}

// Roster is a concurrency-safe presence table, used by relays that track
// every collaborator on a board.
type Roster struct {
	mu    sync.RWMutex
	peers peerTable
}

// NewRoster creates an empty roster.
func NewRoster() *Roster {
	return &Roster{peers: make(peerTable)}
}

// Apply merges one presence event and reports whether the roster changed.
func (r *Roster) Apply(ev model.Event) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.peers.apply(ev)
}

// Get returns the presence of one collaborator.
func (r *Roster) Get(collaboratorID string) (model.Presence, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.peers[collaboratorID]
	return p.Clone(), ok
}

// List returns every presence ordered by collaborator id.
func (r *Roster) List() []model.Presence {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.peers.list()
}

// Locks returns the lock owner of every selected element.
func (r *Roster) Locks() map[string]board.LockOwner {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.peers.locks()
}
