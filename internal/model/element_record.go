package model

import (
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/datatypes"
)

// ElementRecord 보드 요소 영속화 행
type ElementRecord struct {
	ID              string         `gorm:"primaryKey;type:varchar(36)" json:"id"`
	BoardID         string         `gorm:"type:varchar(36);not null;index:idx_board_z" json:"board_id"`
	Type            string         `gorm:"type:varchar(20);not null" json:"type"`
	PositionX       float64        `gorm:"not null" json:"position_x"`
	PositionY       float64        `gorm:"not null" json:"position_y"`
	Width           float64        `gorm:"not null" json:"width"`
	Height          float64        `gorm:"not null" json:"height"`
	RotationDegrees float64        `gorm:"default:0" json:"rotation_degrees"`
	ZIndex          int            `gorm:"not null;index:idx_board_z" json:"z_index"`
	Locked          bool           `gorm:"default:false" json:"locked"`
	Content         datatypes.JSON `gorm:"type:jsonb" json:"content"`
	Style           datatypes.JSON `gorm:"type:jsonb" json:"style"`
	CreatedBy       string         `gorm:"type:varchar(64)" json:"created_by"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

func (ElementRecord) TableName() string {
	return "board_elements"
}

// ToRecord converts an element into its storage row.
func ToRecord(e BoardElement) (ElementRecord, error) {
	content, err := json.Marshal(e.Content)
	if err != nil {
		return ElementRecord{}, fmt.Errorf("marshal content of %s: %w", e.ID, err)
	}
	style, err := json.Marshal(e.Style)
	if err != nil {
		return ElementRecord{}, fmt.Errorf("marshal style of %s: %w", e.ID, err)
	}
	return ElementRecord{
		ID:              e.ID,
		BoardID:         e.BoardID,
		Type:            e.Type.String(),
		PositionX:       e.PositionX,
		PositionY:       e.PositionY,
		Width:           e.Width,
		Height:          e.Height,
		RotationDegrees: e.RotationDegrees,
		ZIndex:          e.ZIndex,
		Locked:          e.Locked,
		Content:         datatypes.JSON(content),
		Style:           datatypes.JSON(style),
		CreatedBy:       e.CreatedBy,
		CreatedAt:       e.CreatedAt,
		UpdatedAt:       e.UpdatedAt,
	}, nil
}

// FromRecord converts a storage row back into an element, decoding the
// payload variants by the stored type.
func FromRecord(r ElementRecord) (BoardElement, error) {
	t := ElementType(r.Type)
	if !t.Valid() {
		return BoardElement{}, fmt.Errorf("element %s: unknown type %q", r.ID, r.Type)
	}
	content, err := DecodeContent(t, r.Content)
	if err != nil {
		return BoardElement{}, fmt.Errorf("element %s: %w", r.ID, err)
	}
	style, err := DecodeStyle(t, r.Style)
	if err != nil {
		return BoardElement{}, fmt.Errorf("element %s: %w", r.ID, err)
	}
	return BoardElement{
		ID:      r.ID,
		BoardID: r.BoardID,
		Type:    t,
		Geometry: Geometry{
			PositionX:       r.PositionX,
			PositionY:       r.PositionY,
			Width:           r.Width,
			Height:          r.Height,
			RotationDegrees: r.RotationDegrees,
		}.Normalize(),
		ZIndex:    r.ZIndex,
		Locked:    r.Locked,
		Content:   content,
		Style:     style,
		CreatedBy: r.CreatedBy,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}, nil
}
