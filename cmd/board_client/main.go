package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"realtime-board/internal/collab"
	"realtime-board/internal/geom"
	"realtime-board/internal/model"
	"realtime-board/internal/selection"
	"realtime-board/internal/session"
	"realtime-board/internal/transport"
)

// board_client joins a board as a headless collaborator. Without -sticky it
// prints connection and presence changes until interrupted.
func main() {
	// .env 파일 로드 (없어도 에러 무시)
	godotenv.Load()

	server := flag.String("server", envOr("BOARD_SERVER", "http://localhost:8080"), "API base URL")
	token := flag.String("token", os.Getenv("BOARD_TOKEN"), "access token")
	boardID := flag.String("board", "", "board id")
	name := flag.String("name", "cli", "display name")
	sticky := flag.String("sticky", "", "add a sticky note with this text and exit")
	x := flag.Float64("x", 0, "sticky x")
	y := flag.Float64("y", 0, "sticky y")
	flag.Parse()

	if *boardID == "" {
		log.Fatal("-board is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	loader := transport.NewHTTPLoader(*server, *token)
	elements, err := loader.Load(ctx, *boardID)
	if err != nil {
		log.Fatalf("Failed to load board: %v", err)
	}

	collaboratorID := uuid.NewString()
	ws := transport.NewWebSocket(wsURL(*server), *token, collaboratorID)
	s, err := session.Open(ctx, *boardID, elements, session.Options{
		Identity: collab.Identity{
			CollaboratorID: collaboratorID,
			DisplayName:    *name,
			Color:          collab.ColorFor(collaboratorID),
		},
		Transport: ws,
		Loader:    loader,
		OnConnection: func(st collab.State) {
			log.Printf("[Client] connection: %s", st)
		},
		OnPresence: func(peers []model.Presence) {
			names := make([]string, 0, len(peers))
			for _, p := range peers {
				names = append(names, p.DisplayName)
			}
			log.Printf("[Client] %d collaborators: %s", len(peers), strings.Join(names, ", "))
		},
	})
	if err != nil {
		log.Fatalf("Failed to open session: %v", err)
	}
	defer s.Close()

	log.Printf("[Client] board %s open with %d elements", *boardID, s.Store().Len())

	if *sticky != "" {
		if err := addSticky(ctx, s, *sticky, geom.Point{X: *x, Y: *y}); err != nil {
			log.Fatalf("Failed to add sticky: %v", err)
		}
		return
	}

	<-ctx.Done()
}

func addSticky(ctx context.Context, s *session.Session, text string, at geom.Point) error {
	s.SetTool(selection.ToolSticky)
	vp := s.Viewport()
	screen := vp.WorldToScreen(at)
	if err := s.PointerDown(session.PointerEvent{Screen: screen}); err != nil {
		return err
	}
	if err := s.PointerUp(session.PointerEvent{Screen: screen}); err != nil {
		return err
	}
	selected := s.Selected()
	if len(selected) != 1 {
		return fmt.Errorf("expected the new note to be selected, got %d", len(selected))
	}
	if err := s.CommitContent(selected[0], model.StickyContent{Text: text}); err != nil {
		return err
	}

	flushCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := s.Flush(flushCtx); err != nil {
		return err
	}
	log.Printf("[Client] added sticky %s", selected[0])
	return nil
}

func wsURL(httpURL string) string {
	switch {
	case strings.HasPrefix(httpURL, "https://"):
		return "wss://" + strings.TrimPrefix(httpURL, "https://")
	case strings.HasPrefix(httpURL, "http://"):
		return "ws://" + strings.TrimPrefix(httpURL, "http://")
	}
	return httpURL
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
