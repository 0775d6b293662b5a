package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"realtime-board/internal/model"
)

// HTTPLoader fetches a board's elements from the REST endpoint of the
// server, the authoritative source on reconnect.
type HTTPLoader struct {
	baseURL string
	token   string
	timeout time.Duration
}

// NewHTTPLoader creates a loader for the API at baseURL (http:// or https://).
func NewHTTPLoader(baseURL, token string) *HTTPLoader {
	return &HTTPLoader{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		timeout: 10 * time.Second,
	}
}

type elementsResponse struct {
	Elements []model.BoardElement `json:"elements"`
}

// Load requests GET /api/boards/:boardId/elements.
func (l *HTTPLoader) Load(ctx context.Context, boardID string) ([]model.BoardElement, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	timeout := l.timeout
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
	}

	agent := fiber.Get(fmt.Sprintf("%s/api/boards/%s/elements", l.baseURL, url.PathEscape(boardID)))
	agent.Timeout(timeout)
	if l.token != "" {
		agent.Set(fiber.HeaderAuthorization, "Bearer "+l.token)
	}

	code, body, errs := agent.Bytes()
	if len(errs) > 0 {
		return nil, fmt.Errorf("%w: load %s: %v", ErrUnavailable, boardID, errors.Join(errs...))
	}
	if code != fiber.StatusOK {
		return nil, fmt.Errorf("load %s: unexpected status %d", boardID, code)
	}

	var resp elementsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("load %s: %w", boardID, err)
	}
	return resp.Elements, nil
}
