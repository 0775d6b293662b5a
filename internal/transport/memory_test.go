package transport

import (
	"context"
	"errors"
	"testing"
	"time"

	"realtime-board/internal/model"
)

func receive(t *testing.T, sub Subscription) (model.Event, bool) {
	t.Helper()
	select {
	case ev, ok := <-sub.Events():
		return ev, ok
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
	return model.Event{}, false
}

func TestMemoryFanOutPerBoard(t *testing.T) {
	ctx := context.Background()
	bus := NewMemory()

	a, err := bus.Subscribe(ctx, "b1")
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	b, _ := bus.Subscribe(ctx, "b1")
	other, _ := bus.Subscribe(ctx, "b2")

	ev := model.Event{Kind: model.EventElementRemoved, BoardID: "b1", Origin: "c1", IDs: []string{"x"}}
	if err := bus.Publish(ctx, ev); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	for _, sub := range []Subscription{a, b} {
		got, ok := receive(t, sub)
		if !ok || got.Origin != "c1" || got.IDs[0] != "x" {
			t.Errorf("received %+v, %v", got, ok)
		}
	}
	select {
	case ev := <-other.Events():
		t.Errorf("other board received %+v", ev)
	default:
	}
}

func TestMemoryCloseEndsFeed(t *testing.T) {
	ctx := context.Background()
	bus := NewMemory()
	sub, _ := bus.Subscribe(ctx, "b")

	sub.Close()
	sub.Close()
	if _, ok := <-sub.Events(); ok {
		t.Error("events should be closed")
	}
	if n := bus.Subscribers("b"); n != 0 {
		t.Errorf("Subscribers() = %d", n)
	}
}

func TestMemoryOutage(t *testing.T) {
	ctx := context.Background()
	bus := NewMemory()
	sub, _ := bus.Subscribe(ctx, "b")

	bus.SetAvailable(false)
	if _, ok := <-sub.Events(); ok {
		t.Error("outage should end open subscriptions")
	}
	if err := bus.Publish(ctx, model.Event{BoardID: "b"}); !errors.Is(err, ErrUnavailable) {
		t.Errorf("Publish() = %v, want ErrUnavailable", err)
	}
	if _, err := bus.Subscribe(ctx, "b"); !errors.Is(err, ErrUnavailable) {
		t.Errorf("Subscribe() = %v, want ErrUnavailable", err)
	}
	sub.Close()

	bus.SetAvailable(true)
	if _, err := bus.Subscribe(ctx, "b"); err != nil {
		t.Errorf("Subscribe() after recovery = %v", err)
	}
}

func TestMemorySlowSubscriber(t *testing.T) {
	bus := NewMemorySize(1)
	sub, _ := bus.Subscribe(context.Background(), "b")
	defer sub.Close()

	cursor := model.Event{Kind: model.EventCursorUpdate, BoardID: "b", Origin: "c1"}
	for range 3 {
		if err := bus.Publish(context.Background(), cursor); err != nil {
			t.Fatalf("Publish(cursor) error = %v", err)
		}
	}
	if got, _ := receive(t, sub); got.Kind != model.EventCursorUpdate {
		t.Fatalf("received %s", got.Kind)
	}

	update := func(id string) model.Event {
		return model.Event{Kind: model.EventElementRemoved, BoardID: "b", Origin: "c1", IDs: []string{id}}
	}
	if err := bus.Publish(context.Background(), update("x")); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	// a blocked publisher completes once the consumer drains
	published := make(chan error, 1)
	go func() { published <- bus.Publish(context.Background(), update("y")) }()
	for _, want := range []string{"x", "y"} {
		got, ok := receive(t, sub)
		if !ok || got.IDs[0] != want {
			t.Fatalf("received %+v, %v, want removal of %s", got, ok, want)
		}
	}
	if err := <-published; err != nil {
		t.Errorf("blocked Publish() error = %v", err)
	}

	// a consumer that never drains loses its feed instead of the event
	bus.Publish(context.Background(), update("z"))
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	bus.Publish(ctx, update("w"))
	if got, ok := receive(t, sub); !ok || got.IDs[0] != "z" {
		t.Fatalf("received %+v, %v, want removal of z", got, ok)
	}
	if _, ok := receive(t, sub); ok {
		t.Error("feed should end after a missed element event")
	}
	if n := bus.Subscribers("b"); n != 0 {
		t.Errorf("Subscribers() = %d", n)
	}
}
