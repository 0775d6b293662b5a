package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"realtime-board/internal/model"
)

// DefaultBoardTTL is how long a cached board stays valid without a save.
const DefaultBoardTTL = 10 * time.Minute

// RedisClient wraps the Redis client for board snapshot caching
type RedisClient struct {
	client *redis.Client
}

// NewRedisClient creates a new Redis client
func NewRedisClient(addr, password string, db int) (*RedisClient, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}

	log.Printf("[Redis] Connected to %s", addr)
	return &RedisClient{client: client}, nil
}

// Client returns the underlying client for pub/sub and presence.
func (r *RedisClient) Client() *redis.Client {
	return r.client
}

func boardKey(boardID string) string {
	return fmt.Sprintf("board:%s:elements", boardID)
}

// GetBoard returns the cached elements of a board. A miss reports false
// with a nil error.
func (r *RedisClient) GetBoard(ctx context.Context, boardID string) ([]model.BoardElement, bool, error) {
	data, err := r.client.Get(ctx, boardKey(boardID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var elements []model.BoardElement
	if err := json.Unmarshal(data, &elements); err != nil {
		// a corrupt entry is a miss; the next load overwrites it
		log.Printf("[Redis] Dropping unreadable cache entry for board %s: %v", boardID, err)
		r.client.Del(ctx, boardKey(boardID))
		return nil, false, nil
	}
	return elements, true, nil
}

// SetBoard caches the elements of a board for ttl.
func (r *RedisClient) SetBoard(ctx context.Context, boardID string, elements []model.BoardElement, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultBoardTTL
	}
	if elements == nil {
		elements = []model.BoardElement{}
	}
	data, err := json.Marshal(elements)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, boardKey(boardID), data, ttl).Err()
}

// InvalidateBoard drops the cached elements of a board.
func (r *RedisClient) InvalidateBoard(ctx context.Context, boardID string) error {
	return r.client.Del(ctx, boardKey(boardID)).Err()
}

// Close closes the Redis connection
func (r *RedisClient) Close() error {
	return r.client.Close()
}

// Health checks if Redis is healthy
func (r *RedisClient) Health(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
