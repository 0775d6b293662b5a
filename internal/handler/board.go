package handler

import (
	"bytes"
	"context"
	"errors"
	"log"
	"strconv"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"realtime-board/internal/auth"
	"realtime-board/internal/model"
	"realtime-board/internal/render"
	"realtime-board/internal/repository"
)

// BoardAccess resolves the role of a user on a board.
type BoardAccess interface {
	MemberRole(ctx context.Context, boardID string, userID int64) (model.BoardRole, error)
}

// BoardHandler 보드 REST 및 WebSocket 핸들러
type BoardHandler struct {
	hub           *BoardHub
	access        BoardAccess
	exportMaxSize int
}

// NewBoardHandler BoardHandler 생성
func NewBoardHandler(hub *BoardHub, access BoardAccess, exportMaxSize int) *BoardHandler {
	return &BoardHandler{hub: hub, access: access, exportMaxSize: exportMaxSize}
}

// SaveElementsRequest 요소 일괄 저장 요청
type SaveElementsRequest struct {
	Elements []model.BoardElement `json:"elements"`
}

// RequireMember resolves the caller's role on :boardId and stores it in
// Locals. Non-members get 404 so boards cannot be probed.
func (h *BoardHandler) RequireMember(c *fiber.Ctx) error {
	userID, ok := auth.UserID(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized"})
	}
	boardID := c.Params("boardId")

	role, err := h.access.MemberRole(c.UserContext(), boardID, userID)
	if err != nil {
		if errors.Is(err, repository.ErrBoardNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "board not found"})
		}
		log.Printf("[Board %s] Role lookup failed: %v", boardID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to check membership"})
	}
	c.Locals("boardRole", role)
	return c.Next()
}

func boardRole(c *fiber.Ctx) model.BoardRole {
	role, _ := c.Locals("boardRole").(model.BoardRole)
	return role
}

// GetElements 보드 요소 목록 (실시간 편집 중이면 서버 복제본)
func (h *BoardHandler) GetElements(c *fiber.Ctx) error {
	boardID := c.Params("boardId")
	elements, err := h.hub.Elements(c.UserContext(), boardID)
	if err != nil {
		log.Printf("[Board %s] Load failed: %v", boardID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to load board"})
	}
	return c.JSON(fiber.Map{"elements": elements})
}

// SaveElements 보드 요소 일괄 교체 (편집 중인 보드는 거부)
func (h *BoardHandler) SaveElements(c *fiber.Ctx) error {
	boardID := c.Params("boardId")
	if !boardRole(c).CanEdit() {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "read-only access"})
	}

	var req SaveElementsRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	for i := range req.Elements {
		req.Elements[i].BoardID = boardID
		if err := req.Elements[i].Validate(); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
		}
	}

	if err := h.hub.Save(c.UserContext(), boardID, req.Elements); err != nil {
		if errors.Is(err, ErrBoardLive) {
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": err.Error()})
		}
		log.Printf("[Board %s] Save failed: %v", boardID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to save board"})
	}
	return c.JSON(fiber.Map{"success": true, "count": len(req.Elements)})
}

// GetPresence 보드 참여자 목록
func (h *BoardHandler) GetPresence(c *fiber.Ctx) error {
	boardID := c.Params("boardId")
	peers, err := h.hub.Peers(c.UserContext(), boardID)
	if err != nil {
		log.Printf("[Board %s] Roster failed: %v", boardID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to load presence"})
	}
	return c.JSON(fiber.Map{"presence": peers})
}

// ExportPNG 보드를 PNG로 렌더링
func (h *BoardHandler) ExportPNG(c *fiber.Ctx) error {
	boardID := c.Params("boardId")
	resolved, err := h.hub.Resolve(c.UserContext(), boardID)
	if err != nil {
		log.Printf("[Board %s] Export load failed: %v", boardID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to load board"})
	}

	opts := render.Options{
		Scale:    c.QueryFloat("scale", 1),
		MaxSize:  h.exportMaxSize,
		Overlays: c.QueryBool("overlays", false),
	}
	var buf bytes.Buffer
	if err := render.PNG(&buf, resolved, opts); err != nil {
		if errors.Is(err, render.ErrEmptyBoard) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": err.Error()})
		}
		log.Printf("[Board %s] Export failed: %v", boardID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to render board"})
	}

	c.Set(fiber.HeaderContentType, "image/png")
	c.Set(fiber.HeaderContentDisposition, `inline; filename="`+boardID+`.png"`)
	return c.Send(buf.Bytes())
}

// UpgradeWebSocket 업그레이드 요청 검증 후 연결 정보를 Locals에 저장
func (h *BoardHandler) UpgradeWebSocket(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}
	collaboratorID := c.Query("collaborator")
	if collaboratorID == "" {
		collaboratorID = uuid.NewString()
	}
	c.Locals("collaboratorID", collaboratorID)
	c.Locals("boardID", c.Params("boardId"))
	return c.Next()
}

// HandleWebSocket 보드 WebSocket 연결 처리
func (h *BoardHandler) HandleWebSocket(c *websocket.Conn) {
	boardID, _ := c.Locals("boardID").(string)
	collaboratorID, _ := c.Locals("collaboratorID").(string)
	userID, _ := c.Locals("userID").(int64)
	nickname, _ := c.Locals("nickname").(string)
	role, _ := c.Locals("boardRole").(model.BoardRole)
	if nickname == "" {
		nickname = "User " + strconv.FormatInt(userID, 10)
	}

	client := &BoardClient{
		ID:       collaboratorID,
		UserID:   userID,
		Nickname: nickname,
		Role:     role,
		Conn:     c,
	}

	room, err := h.hub.Join(context.Background(), boardID, client)
	if errors.Is(err, ErrCollaboratorTaken) {
		c.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, err.Error()))
		return
	}
	if err != nil {
		log.Printf("[Board %s] Join failed for %s: %v", boardID, collaboratorID, err)
		c.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "failed to open board"))
		return
	}
	defer h.hub.Leave(room, client)

	for {
		messageType, data, err := c.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("[Board %s] Read error from %s: %v", boardID, collaboratorID, err)
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}
		if err := room.HandleMessage(client, data); err != nil {
			log.Printf("[Board %s] Rejected message from %s: %v", boardID, collaboratorID, err)
		}
	}
}
