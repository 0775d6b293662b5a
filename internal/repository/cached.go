package repository

import (
	"context"
	"log"
	"time"

	"realtime-board/internal/model"
)

// SnapshotCache is the cache surface Cached needs. cache.RedisClient
// implements it.
type SnapshotCache interface {
	GetBoard(ctx context.Context, boardID string) ([]model.BoardElement, bool, error)
	SetBoard(ctx context.Context, boardID string, elements []model.BoardElement, ttl time.Duration) error
	InvalidateBoard(ctx context.Context, boardID string) error
}

// Cached serves loads from a snapshot cache and falls through to the
// underlying store on a miss. Saves always reach the store and invalidate
// the cached copy. Cache failures never fail a load.
type Cached struct {
	next  ElementStore
	cache SnapshotCache
	ttl   time.Duration
}

// NewCached wraps next with cache.
func NewCached(next ElementStore, cache SnapshotCache, ttl time.Duration) *Cached {
	return &Cached{next: next, cache: cache, ttl: ttl}
}

// Load returns the board from the cache or the store.
func (c *Cached) Load(ctx context.Context, boardID string) ([]model.BoardElement, error) {
	elements, ok, err := c.cache.GetBoard(ctx, boardID)
	if err != nil {
		log.Printf("[Repository] Cache read failed for board %s: %v", boardID, err)
	}
	if ok {
		return elements, nil
	}

	elements, err = c.next.Load(ctx, boardID)
	if err != nil {
		return nil, err
	}
	if err := c.cache.SetBoard(ctx, boardID, elements, c.ttl); err != nil {
		log.Printf("[Repository] Cache write failed for board %s: %v", boardID, err)
	}
	return elements, nil
}

// Save persists the board and drops the cached copy.
func (c *Cached) Save(ctx context.Context, boardID string, elements []model.BoardElement) error {
	if err := c.next.Save(ctx, boardID, elements); err != nil {
		return err
	}
	if err := c.cache.InvalidateBoard(ctx, boardID); err != nil {
		log.Printf("[Repository] Cache invalidation failed for board %s: %v", boardID, err)
	}
	return nil
}
