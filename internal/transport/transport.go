// Package transport carries board events between collaborators. It defines
// the per-board publish/subscribe contract the sync layer depends on and
// ships in-memory, Redis and WebSocket implementations plus an HTTP loader
// for the authoritative element list.
package transport

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"realtime-board/internal/model"
)

var (
	// ErrClosed is returned after a transport or subscription was closed.
	ErrClosed = errors.New("transport closed")

	// ErrUnavailable is returned while the underlying connection is down.
	ErrUnavailable = errors.New("transport unavailable")
)

// Subscription is a live feed of one board's events. Events is closed when
// the subscription ends, either by Close or because the connection dropped.
type Subscription interface {
	Events() <-chan model.Event
	Close() error
}

// Transport is a per-board publish/subscribe channel.
type Transport interface {
	Subscribe(ctx context.Context, boardID string) (Subscription, error)
	Publish(ctx context.Context, ev model.Event) error
}

// Loader fetches the authoritative element list of a board.
type Loader interface {
	Load(ctx context.Context, boardID string) ([]model.BoardElement, error)
}

// LoaderFunc adapts a function to Loader.
type LoaderFunc func(ctx context.Context, boardID string) ([]model.BoardElement, error)

// Load calls f.
func (f LoaderFunc) Load(ctx context.Context, boardID string) ([]model.BoardElement, error) {
	return f(ctx, boardID)
}

// channelName is the pub/sub channel of a board.
func channelName(boardID string) string {
	return fmt.Sprintf("board:%s:events", boardID)
}

// subscription is the channel-backed Subscription shared by the
// implementations. closer stops the producer, which owns closing events.
type subscription struct {
	events chan model.Event
	done   chan struct{}
	once   sync.Once
	closer func()
}

func newSubscription(buffer int, closer func()) *subscription {
	return &subscription{
		events: make(chan model.Event, buffer),
		done:   make(chan struct{}),
		closer: closer,
	}
}

func (s *subscription) Events() <-chan model.Event {
	return s.events
}

func (s *subscription) Close() error {
	s.once.Do(func() {
		close(s.done)
		s.closer()
	})
	return nil
}

// deliver hands ev to the consumer. Cursor and selection updates are
// skipped when the buffer is full since the next one supersedes them.
// Everything else waits until the consumer catches up or closes the
// subscription, in which case deliver reports false.
func (s *subscription) deliver(ev model.Event) bool {
	if Droppable(ev.Kind) {
		select {
		case s.events <- ev:
		default:
		}
		return true
	}
	select {
	case s.events <- ev:
		return true
	case <-s.done:
		return false
	}
}

// Droppable reports whether events of kind k may be skipped for a consumer
// that falls behind.
func Droppable(k model.EventKind) bool {
	return k == model.EventCursorUpdate || k == model.EventSelectionUpdate
}
