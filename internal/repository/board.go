// Package repository persists board elements in postgres through gorm and
// optionally fronts the read path with a Redis snapshot cache.
package repository

import (
	"context"
	"errors"
	"fmt"
	"log"

	"gorm.io/gorm"

	"realtime-board/internal/model"
)

// ErrBoardNotFound is returned when a board row does not exist.
var ErrBoardNotFound = errors.New("board not found")

// PersistenceError wraps a storage failure with the board and operation it
// happened in. It is always returned to the caller, never swallowed.
type PersistenceError struct {
	BoardID string
	Op      string
	Err     error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s board %s: %v", e.Op, e.BoardID, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// ElementStore loads and saves the full element set of a board.
type ElementStore interface {
	Load(ctx context.Context, boardID string) ([]model.BoardElement, error)
	Save(ctx context.Context, boardID string, elements []model.BoardElement) error
}

// BoardSummary 보드별 요소 통계
type BoardSummary struct {
	BoardID  string
	Title    string
	Elements int64
}

// Repository 보드 저장소 (gorm)
type Repository struct {
	db *gorm.DB
}

// New 저장소 생성
func New(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Load returns the elements of a board in paint order.
func (r *Repository) Load(ctx context.Context, boardID string) ([]model.BoardElement, error) {
	var records []model.ElementRecord
	if err := r.db.WithContext(ctx).
		Where("board_id = ?", boardID).
		Order("z_index ASC, created_at ASC, id ASC").
		Find(&records).Error; err != nil {
		return nil, &PersistenceError{BoardID: boardID, Op: "load", Err: err}
	}

	elements := make([]model.BoardElement, 0, len(records))
	for _, rec := range records {
		el, err := model.FromRecord(rec)
		if err != nil {
			log.Printf("[Repository] Skipping unreadable element on board %s: %v", boardID, err)
			continue
		}
		elements = append(elements, el)
	}
	return elements, nil
}

// Save replaces the stored element set of a board with elements in one
// transaction: rows are upserted and rows not in elements are deleted.
func (r *Repository) Save(ctx context.Context, boardID string, elements []model.BoardElement) error {
	records := make([]model.ElementRecord, 0, len(elements))
	ids := make([]string, 0, len(elements))
	for _, el := range elements {
		el.BoardID = boardID
		rec, err := model.ToRecord(el)
		if err != nil {
			return &PersistenceError{BoardID: boardID, Op: "save", Err: err}
		}
		records = append(records, rec)
		ids = append(ids, el.ID)
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i := range records {
			if err := tx.Save(&records[i]).Error; err != nil {
				return err
			}
		}

		stale := tx.Where("board_id = ?", boardID)
		if len(ids) > 0 {
			stale = stale.Where("id NOT IN ?", ids)
		}
		return stale.Delete(&model.ElementRecord{}).Error
	})
	if err != nil {
		return &PersistenceError{BoardID: boardID, Op: "save", Err: err}
	}
	return nil
}

// GetBoard 보드 조회
func (r *Repository) GetBoard(ctx context.Context, boardID string) (*model.Board, error) {
	var b model.Board
	err := r.db.WithContext(ctx).Where("id = ?", boardID).First(&b).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrBoardNotFound
	}
	if err != nil {
		return nil, &PersistenceError{BoardID: boardID, Op: "get", Err: err}
	}
	return &b, nil
}

// MemberRole returns the role of userID on a board. The owner is always
// OWNER; non-members get ErrBoardNotFound so boards cannot be probed.
func (r *Repository) MemberRole(ctx context.Context, boardID string, userID int64) (model.BoardRole, error) {
	b, err := r.GetBoard(ctx, boardID)
	if err != nil {
		return "", err
	}
	if b.OwnerID == userID {
		return model.BoardRoleOwner, nil
	}

	var m model.BoardMember
	err = r.db.WithContext(ctx).Where("board_id = ? AND user_id = ?", boardID, userID).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", ErrBoardNotFound
	}
	if err != nil {
		return "", &PersistenceError{BoardID: boardID, Op: "member", Err: err}
	}
	return model.BoardRole(m.Role), nil
}

// Summaries 보드별 요소 수 집계
func (r *Repository) Summaries(ctx context.Context) ([]BoardSummary, error) {
	var out []BoardSummary
	err := r.db.WithContext(ctx).
		Model(&model.Board{}).
		Select("boards.id AS board_id, boards.title AS title, COUNT(board_elements.id) AS elements").
		Joins("LEFT JOIN board_elements ON board_elements.board_id = boards.id").
		Group("boards.id, boards.title").
		Order("boards.id").
		Scan(&out).Error
	if err != nil {
		return nil, &PersistenceError{Op: "summarize", Err: err}
	}
	return out, nil
}
