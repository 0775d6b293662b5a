package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"image/png"
	"io"
	"net"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"

	"realtime-board/internal/auth"
	"realtime-board/internal/model"
	"realtime-board/internal/repository"
	"realtime-board/internal/transport"
)

type fakeAccess map[int64]model.BoardRole

func (f fakeAccess) MemberRole(ctx context.Context, boardID string, userID int64) (model.BoardRole, error) {
	role, ok := f[userID]
	if !ok || boardID != "b" {
		return "", repository.ErrBoardNotFound
	}
	return role, nil
}

const (
	ownerID    int64 = 1
	viewerID   int64 = 2
	strangerID int64 = 3
)

func testApp(t *testing.T, hub *BoardHub) (*fiber.App, *auth.JWTManager) {
	t.Helper()
	jwt := auth.NewJWTManager("test-secret", time.Hour)
	h := NewBoardHandler(hub, fakeAccess{ownerID: model.BoardRoleOwner, viewerID: model.BoardRoleViewer}, 0)

	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	g := app.Group("/api/boards/:boardId", auth.AuthMiddleware(jwt), h.RequireMember)
	g.Get("/elements", h.GetElements)
	g.Put("/elements", h.SaveElements)
	g.Get("/presence", h.GetPresence)
	g.Get("/export.png", h.ExportPNG)
	app.Get("/ws/boards/:boardId", h.UpgradeWebSocket, auth.AuthMiddleware(jwt), h.RequireMember,
		websocket.New(h.HandleWebSocket))
	return app, jwt
}

func request(t *testing.T, app *fiber.App, jwt *auth.JWTManager, userID int64, method, target string, body any) (int, []byte, string) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Content-Type", "application/json")
	token, _ := jwt.GenerateAccessToken(userID, "", "")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := app.Test(req, 5000)
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, data, resp.Header.Get("Content-Type")
}

func TestGetElements(t *testing.T) {
	hub := NewBoardHub(transport.NewMemory(), seeded(t, "x", "y"), nil, time.Hour)
	app, jwt := testApp(t, hub)

	code, body, _ := request(t, app, jwt, ownerID, "GET", "/api/boards/b/elements", nil)
	if code != fiber.StatusOK {
		t.Fatalf("status = %d: %s", code, body)
	}
	var resp struct {
		Elements []model.BoardElement `json:"elements"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Elements) != 2 || resp.Elements[0].ID != "x" {
		t.Errorf("elements = %+v", resp.Elements)
	}

	if code, _, _ := request(t, app, jwt, strangerID, "GET", "/api/boards/b/elements", nil); code != fiber.StatusNotFound {
		t.Errorf("stranger status = %d, want 404", code)
	}
}

func TestSaveElements(t *testing.T) {
	store := seeded(t, "x")
	hub := NewBoardHub(transport.NewMemory(), store, nil, time.Hour)
	app, jwt := testApp(t, hub)

	els, _ := store.snapshot("b")
	replacement := SaveElementsRequest{Elements: els}
	replacement.Elements[0].ID = "z"

	tests := []struct {
		name   string
		userID int64
		want   int
	}{
		{"viewer", viewerID, fiber.StatusForbidden},
		{"owner", ownerID, fiber.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, body, _ := request(t, app, jwt, tt.userID, "PUT", "/api/boards/b/elements", replacement)
			if code != tt.want {
				t.Errorf("status = %d, want %d: %s", code, tt.want, body)
			}
		})
	}

	saved, _ := store.snapshot("b")
	if len(saved) != 1 || saved[0].ID != "z" {
		t.Errorf("saved = %+v", saved)
	}

	room, a, _ := join(t, hub, "a", model.BoardRoleOwner)
	defer hub.Leave(room, a)
	if code, _, _ := request(t, app, jwt, ownerID, "PUT", "/api/boards/b/elements", replacement); code != fiber.StatusConflict {
		t.Errorf("live board status = %d, want 409", code)
	}
}

func TestExportPNG(t *testing.T) {
	hub := NewBoardHub(transport.NewMemory(), seeded(t, "x", "y"), nil, time.Hour)
	app, jwt := testApp(t, hub)

	code, body, contentType := request(t, app, jwt, viewerID, "GET", "/api/boards/b/export.png?overlays=true", nil)
	if code != fiber.StatusOK || contentType != "image/png" {
		t.Fatalf("status = %d, content type = %q", code, contentType)
	}
	if _, err := png.Decode(bytes.NewReader(body)); err != nil {
		t.Errorf("png.Decode() error = %v", err)
	}

	empty := NewBoardHub(transport.NewMemory(), seeded(t), nil, time.Hour)
	app, jwt = testApp(t, empty)
	if code, _, _ := request(t, app, jwt, ownerID, "GET", "/api/boards/b/export.png", nil); code != fiber.StatusNotFound {
		t.Errorf("empty board status = %d, want 404", code)
	}
}

func clientCount(hub *BoardHub, boardID string) int {
	room, ok := hub.Room(boardID)
	if !ok {
		return 0
	}
	room.mu.RLock()
	defer room.mu.RUnlock()
	return len(room.clients)
}

func TestWebSocketRelay(t *testing.T) {
	hub := NewBoardHub(transport.NewMemory(), seeded(t, "x", "y"), nil, time.Hour)
	app, jwt := testApp(t, hub)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	go app.Listener(ln)
	t.Cleanup(func() { app.Shutdown() })

	base := "ws://" + ln.Addr().String()
	ownerToken, _ := jwt.GenerateAccessToken(ownerID, "", "Owner")
	viewerToken, _ := jwt.GenerateAccessToken(viewerID, "", "Viewer")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	editor := transport.NewWebSocket(base, ownerToken, "c1")
	watcher := transport.NewWebSocket(base, viewerToken, "c2")
	editorSub, err := editor.Subscribe(ctx, "b")
	if err != nil {
		t.Fatalf("editor Subscribe() error = %v", err)
	}
	defer editorSub.Close()
	watcherSub, err := watcher.Subscribe(ctx, "b")
	if err != nil {
		t.Fatalf("watcher Subscribe() error = %v", err)
	}
	defer watcherSub.Close()

	eventually(t, "both clients joined", func() bool { return clientCount(hub, "b") == 2 })

	err = editor.Publish(ctx, model.Event{Kind: model.EventElementRemoved, BoardID: "b", IDs: []string{"x"}})
	if err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	deadline := time.After(3 * time.Second)
	for {
		select {
		case ev, ok := <-watcherSub.Events():
			if !ok {
				t.Fatal("watcher feed closed")
			}
			if ev.Kind != model.EventElementRemoved {
				continue
			}
			if ev.Origin != "c1" || ev.IDs[0] != "x" {
				t.Errorf("relayed event = %+v", ev)
			}
			return
		case <-deadline:
			t.Fatal("timed out waiting for relayed removal")
		}
	}
}
