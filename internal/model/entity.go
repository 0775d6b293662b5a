package model

import (
	"time"
)

// User 사용자
type User struct {
	ID         int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Email      string    `gorm:"type:varchar(255);uniqueIndex;not null" json:"email"`
	Nickname   string    `gorm:"type:varchar(100);not null" json:"nickname"`
	ProfileImg *string   `gorm:"type:text" json:"profile_img,omitempty"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`

	// Relations
	Boards []BoardMember `gorm:"foreignKey:UserID" json:"boards,omitempty"`
}

func (User) TableName() string {
	return "users"
}

// Board 보드 (캔버스 하나)
type Board struct {
	ID        string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	Title     string    `gorm:"type:varchar(200);not null" json:"title"`
	OwnerID   int64     `gorm:"not null;index" json:"owner_id"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`

	// Relations
	Owner    User            `gorm:"foreignKey:OwnerID" json:"owner,omitempty"`
	Members  []BoardMember   `gorm:"foreignKey:BoardID" json:"members,omitempty"`
	Elements []ElementRecord `gorm:"foreignKey:BoardID" json:"elements,omitempty"`
}

func (Board) TableName() string {
	return "boards"
}

// BoardMember 보드 참여자와 권한
type BoardMember struct {
	BoardID  string    `gorm:"primaryKey;type:varchar(36)" json:"board_id"`
	UserID   int64     `gorm:"primaryKey" json:"user_id"`
	Role     string    `gorm:"type:varchar(20);default:'EDITOR'" json:"role"` // OWNER, EDITOR, VIEWER
	JoinedAt time.Time `gorm:"autoCreateTime" json:"joined_at"`

	// Relations
	Board Board `gorm:"foreignKey:BoardID" json:"board,omitempty"`
	User  User  `gorm:"foreignKey:UserID" json:"user,omitempty"`
}

func (BoardMember) TableName() string {
	return "board_members"
}
