// Package presence mirrors who is on which board into Redis so every server
// instance can report a board's roster. Entries expire on their own and are
// never persisted anywhere else.
package presence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"realtime-board/internal/model"
)

// DefaultTTL is how long an entry survives without a heartbeat.
const DefaultTTL = 60 * time.Second

// ErrOffline is returned by Heartbeat when the entry already expired.
var ErrOffline = errors.New("presence expired")

// Entry Redis에 저장될 보드 참여 상태
type Entry struct {
	BoardID       string         `json:"board_id"`
	Presence      model.Presence `json:"presence"`
	LastHeartbeat int64          `json:"last_heartbeat"`
	ServerID      string         `json:"server_id"` // 멀티 서버 확장 대비
}

// Manager Presence 관리자
type Manager struct {
	client   *redis.Client
	ttl      time.Duration
	serverID string
}

// NewManager 생성자
func NewManager(client *redis.Client, ttl time.Duration, serverID string) *Manager {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Manager{client: client, ttl: ttl, serverID: serverID}
}

// TTL returns how long an entry lives without a heartbeat.
func (m *Manager) TTL() time.Duration {
	return m.ttl
}

// Key 생성 유틸
func entryKey(boardID, collaboratorID string) string {
	return fmt.Sprintf("presence:board:%s:%s", boardID, collaboratorID)
}

func rosterKey(boardID string) string {
	return fmt.Sprintf("presence:board:%s", boardID)
}

// SetPresence 상태 업데이트 (join, cursor, selection)
func (m *Manager) SetPresence(ctx context.Context, boardID string, p model.Presence) error {
	data, err := json.Marshal(Entry{
		BoardID:       boardID,
		Presence:      p,
		LastHeartbeat: time.Now().Unix(),
		ServerID:      m.serverID,
	})
	if err != nil {
		return err
	}

	pipe := m.client.TxPipeline()
	pipe.Set(ctx, entryKey(boardID, p.CollaboratorID), data, m.ttl)
	pipe.SAdd(ctx, rosterKey(boardID), p.CollaboratorID)
	pipe.Expire(ctx, rosterKey(boardID), m.ttl)
	_, err = pipe.Exec(ctx)
	return err
}

// Heartbeat 생존 신고 (TTL 연장)
func (m *Manager) Heartbeat(ctx context.Context, boardID, collaboratorID string) error {
	ok, err := m.client.Expire(ctx, entryKey(boardID, collaboratorID), m.ttl).Result()
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%s on board %s: %w", collaboratorID, boardID, ErrOffline)
	}
	return m.client.Expire(ctx, rosterKey(boardID), m.ttl).Err()
}

// RemovePresence 상태 삭제 (Disconnect)
func (m *Manager) RemovePresence(ctx context.Context, boardID, collaboratorID string) error {
	pipe := m.client.TxPipeline()
	pipe.Del(ctx, entryKey(boardID, collaboratorID))
	pipe.SRem(ctx, rosterKey(boardID), collaboratorID)
	_, err := pipe.Exec(ctx)
	return err
}

// Roster 보드 참여자 목록 조회. Expired members are pruned from the index.
func (m *Manager) Roster(ctx context.Context, boardID string) ([]model.Presence, error) {
	ids, err := m.client.SMembers(ctx, rosterKey(boardID)).Result()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []model.Presence{}, nil
	}
	sort.Strings(ids)

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = entryKey(boardID, id)
	}

	// MGET으로 한 번에 조회
	results, err := m.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}

	roster := make([]model.Presence, 0, len(results))
	var expired []interface{}
	for i, result := range results {
		str, ok := result.(string)
		if !ok {
			expired = append(expired, ids[i])
			continue
		}
		var e Entry
		if err := json.Unmarshal([]byte(str), &e); err != nil {
			continue
		}
		roster = append(roster, e.Presence)
	}
	if len(expired) > 0 {
		m.client.SRem(ctx, rosterKey(boardID), expired...)
	}
	return roster, nil
}
