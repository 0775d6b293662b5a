package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/redis/go-redis/v9"

	"realtime-board/internal/model"
)

// Redis carries board events over Redis pub/sub, one channel per board.
// It lets several server instances share the same boards.
type Redis struct {
	client *redis.Client
}

// NewRedis wraps an existing client.
func NewRedis(client *redis.Client) *Redis {
	return &Redis{client: client}
}

// Subscribe opens the board channel and waits for the subscription to be
// confirmed before returning.
func (r *Redis) Subscribe(ctx context.Context, boardID string) (Subscription, error) {
	pubsub := r.client.Subscribe(ctx, channelName(boardID))
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("subscribe %s: %w", boardID, err)
	}

	sub := newSubscription(DefaultBuffer, func() { pubsub.Close() })
	go func() {
		defer close(sub.events)
		for msg := range pubsub.Channel() {
			var ev model.Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				log.Printf("[Redis] Bad event on %s: %v", msg.Channel, err)
				continue
			}
			if !sub.deliver(ev) {
				return
			}
		}
	}()
	return sub, nil
}

// Publish sends ev to its board channel.
func (r *Redis) Publish(ctx context.Context, ev model.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := r.client.Publish(ctx, channelName(ev.BoardID), data).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}
