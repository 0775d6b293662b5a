package transport

import (
	"context"
	"log"
	"sync"
	"time"

	"realtime-board/internal/model"
)

// DefaultBuffer is the per-subscription event buffer.
const DefaultBuffer = 1024

// SlowSubscriberWait bounds how long Publish waits on a full subscriber
// before ending its feed.
const SlowSubscriberWait = 5 * time.Second

// Memory is an in-process bus. Every subscriber of a board, the publisher's
// own subscription included, receives each published event. It backs the
// hub when a single server instance runs and the sync layer in tests.
type Memory struct {
	mu     sync.Mutex
	subs   map[string]map[*subscription]struct{}
	down   bool
	buffer int
}

// NewMemory creates an empty bus.
func NewMemory() *Memory {
	return NewMemorySize(DefaultBuffer)
}

// NewMemorySize creates an empty bus whose subscriptions buffer up to
// buffer events.
func NewMemorySize(buffer int) *Memory {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Memory{
		subs:   make(map[string]map[*subscription]struct{}),
		buffer: buffer,
	}
}

// Subscribe opens a feed for boardID.
func (m *Memory) Subscribe(ctx context.Context, boardID string) (Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.down {
		return nil, ErrUnavailable
	}

	var sub *subscription
	sub = newSubscription(m.buffer, func() { m.remove(boardID, sub) })
	if m.subs[boardID] == nil {
		m.subs[boardID] = make(map[*subscription]struct{})
	}
	m.subs[boardID][sub] = struct{}{}
	return sub, nil
}

// Publish delivers ev to every subscriber of its board. A full subscriber
// only misses cursor and selection updates. For other events Publish waits
// for it, and a subscriber that stays full until ctx ends or
// SlowSubscriberWait passes has its feed closed so it resubscribes and
// refetches.
func (m *Memory) Publish(ctx context.Context, ev model.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.down {
		return ErrUnavailable
	}

	for sub := range m.subs[ev.BoardID] {
		if Droppable(ev.Kind) {
			sub.deliver(ev)
			continue
		}
		select {
		case sub.events <- ev:
			continue
		default:
		}
		if !m.wait(ctx, sub, ev) {
			log.Printf("[Memory] Subscriber on board %s fell behind at %s, ending its feed", ev.BoardID, ev.Kind)
			m.removeLocked(ev.BoardID, sub)
		}
	}
	return nil
}

func (m *Memory) wait(ctx context.Context, sub *subscription, ev model.Event) bool {
	timer := time.NewTimer(SlowSubscriberWait)
	defer timer.Stop()
	select {
	case sub.events <- ev:
		return true
	case <-sub.done:
	case <-ctx.Done():
	case <-timer.C:
	}
	return false
}

// SetAvailable simulates the connection going down or coming back. Going
// down ends every open subscription.
func (m *Memory) SetAvailable(up bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.down = !up
	if up {
		return
	}
	for boardID, subs := range m.subs {
		for sub := range subs {
			close(sub.events)
		}
		delete(m.subs, boardID)
	}
}

// Subscribers returns the number of open subscriptions on a board.
func (m *Memory) Subscribers(boardID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.subs[boardID])
}

func (m *Memory) remove(boardID string, sub *subscription) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removeLocked(boardID, sub)
}

func (m *Memory) removeLocked(boardID string, sub *subscription) {
	subs := m.subs[boardID]
	if _, ok := subs[sub]; !ok {
		return
	}
	delete(subs, sub)
	close(sub.events)
	if len(subs) == 0 {
		delete(m.subs, boardID)
	}
}
