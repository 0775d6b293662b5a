// Package history implements undo/redo over full board snapshots.
package history

import (
	"errors"
	"sync"

	"realtime-board/internal/board"
)

var (
	ErrNothingToUndo = errors.New("nothing to undo")
	ErrNothingToRedo = errors.New("nothing to redo")
)

// DefaultCap is the number of checkpoints kept when none is configured.
const DefaultCap = 100

// Snapshotter is the store surface the manager needs.
type Snapshotter interface {
	Snapshot() board.Snapshot
	Restore(snap board.Snapshot, origin board.Origin)
}

// Manager keeps a bounded linear list of snapshots with a present pointer.
// Entry 0 is the baseline the first undo returns to.
type Manager struct {
	mu      sync.Mutex
	store   Snapshotter
	entries []board.Snapshot
	present int
	limit   int
}

// NewManager creates a manager whose baseline is the store's current state.
// limit bounds the number of undo steps; values below 1 use DefaultCap.
func NewManager(store Snapshotter, limit int) *Manager {
	if limit < 1 {
		limit = DefaultCap
	}
	return &Manager{
		store:   store,
		entries: []board.Snapshot{store.Snapshot()},
		limit:   limit,
	}
}

// Push records the store's current state as a checkpoint. Any redo branch is
// discarded and the oldest entry is evicted beyond the cap.
func (m *Manager) Push() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries = append(m.entries[:m.present+1], m.store.Snapshot())
	m.present++
	if over := len(m.entries) - (m.limit + 1); over > 0 {
		m.entries = append([]board.Snapshot(nil), m.entries[over:]...)
		m.present -= over
	}
}

// Undo restores the previous checkpoint.
func (m *Manager) Undo() error {
	m.mu.Lock()
	if m.present == 0 {
		m.mu.Unlock()
		return ErrNothingToUndo
	}
	m.present--
	snap := m.entries[m.present]
	m.mu.Unlock()

	m.store.Restore(snap, board.OriginHistory)
	return nil
}

// Redo restores the next checkpoint.
func (m *Manager) Redo() error {
	m.mu.Lock()
	if m.present >= len(m.entries)-1 {
		m.mu.Unlock()
		return ErrNothingToRedo
	}
	m.present++
	snap := m.entries[m.present]
	m.mu.Unlock()

	m.store.Restore(snap, board.OriginHistory)
	return nil
}

// CanUndo reports whether Undo would succeed.
func (m *Manager) CanUndo() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.present > 0
}

// CanRedo reports whether Redo would succeed.
func (m *Manager) CanRedo() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.present < len(m.entries)-1
}

// Len returns the number of undo steps currently available.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries) - 1
}

// Reset drops all checkpoints and takes the store's current state as the new
// baseline. Used after a reload from the authoritative source.
func (m *Manager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = []board.Snapshot{m.store.Snapshot()}
	m.present = 0
}
