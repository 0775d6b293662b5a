package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/fasthttp/websocket"

	"realtime-board/internal/model"
)

// WebSocket connects to the board hub of a server as a collaborator. One
// connection is opened per subscribed board; Publish writes to it.
type WebSocket struct {
	baseURL        string
	token          string
	collaboratorID string
	dialer         *websocket.Dialer

	mu    sync.Mutex
	conns map[string]*wsConn
}

type wsConn struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

// NewWebSocket creates a client for the hub at baseURL (ws:// or wss://).
// token is sent as a bearer token on every dial. collaboratorID must match
// the Sync identity so the hub does not echo our own events back.
func NewWebSocket(baseURL, token, collaboratorID string) *WebSocket {
	return &WebSocket{
		baseURL:        strings.TrimRight(baseURL, "/"),
		token:          token,
		collaboratorID: collaboratorID,
		dialer: &websocket.Dialer{
			HandshakeTimeout: 10 * time.Second,
			ReadBufferSize:   4096,
			WriteBufferSize:  4096,
		},
		conns: make(map[string]*wsConn),
	}
}

// Subscribe dials the board endpoint and streams incoming events until the
// connection ends.
func (w *WebSocket) Subscribe(ctx context.Context, boardID string) (Subscription, error) {
	endpoint := fmt.Sprintf("%s/ws/boards/%s", w.baseURL, url.PathEscape(boardID))
	if w.collaboratorID != "" {
		endpoint += "?collaborator=" + url.QueryEscape(w.collaboratorID)
	}
	header := http.Header{}
	if w.token != "" {
		header.Set("Authorization", "Bearer "+w.token)
	}

	conn, _, err := w.dialer.DialContext(ctx, endpoint, header)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %v", ErrUnavailable, endpoint, err)
	}
	wc := &wsConn{conn: conn}

	w.mu.Lock()
	if old, ok := w.conns[boardID]; ok {
		old.conn.Close()
	}
	w.conns[boardID] = wc
	w.mu.Unlock()

	sub := newSubscription(DefaultBuffer, func() { conn.Close() })
	go func() {
		defer func() {
			w.mu.Lock()
			if w.conns[boardID] == wc {
				delete(w.conns, boardID)
			}
			w.mu.Unlock()
			close(sub.events)
		}()

		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var ev model.Event
			if err := json.Unmarshal(data, &ev); err != nil {
				log.Printf("[WebSocket] Bad event on board %s: %v", boardID, err)
				continue
			}
			if !sub.deliver(ev) {
				return
			}
		}
	}()
	return sub, nil
}

// Publish writes ev to the board's open connection.
func (w *WebSocket) Publish(ctx context.Context, ev model.Event) error {
	w.mu.Lock()
	wc, ok := w.conns[ev.BoardID]
	w.mu.Unlock()
	if !ok {
		return ErrUnavailable
	}

	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	wc.writeMu.Lock()
	defer wc.writeMu.Unlock()
	if deadline, ok := ctx.Deadline(); ok {
		wc.conn.SetWriteDeadline(deadline)
		defer wc.conn.SetWriteDeadline(time.Time{})
	}
	if err := wc.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}
