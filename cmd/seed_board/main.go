package main

import (
	"context"
	"flag"
	"fmt"
	"log"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"realtime-board/internal/auth"
	"realtime-board/internal/config"
	"realtime-board/internal/database"
	"realtime-board/internal/geom"
	"realtime-board/internal/model"
	"realtime-board/internal/repository"
)

func main() {
	email := flag.String("email", "dev@example.com", "owner email")
	nickname := flag.String("nickname", "Developer", "owner nickname")
	title := flag.String("title", "Untitled board", "board title")
	sample := flag.Bool("sample", true, "add a few sample elements")
	flag.Parse()

	// Load environment variables (JWT_SECRET is required for the token)
	cfg := config.Load()

	// Connect to database
	db, err := database.Open(database.LoadConfig())
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close(db)

	log.Println("Database connected. Seeding board...")

	var user model.User
	b := model.Board{ID: uuid.NewString(), Title: *title}

	// Transaction for seed
	err = db.Transaction(func(tx *gorm.DB) error {
		// 1. Find or create the owner
		if err := tx.Where(model.User{Email: *email}).
			Attrs(model.User{Nickname: *nickname}).
			FirstOrCreate(&user).Error; err != nil {
			return err
		}

		// 2. Create the board
		b.OwnerID = user.ID
		if err := tx.Create(&b).Error; err != nil {
			return err
		}

		// 3. Register the owner as a member
		return tx.Create(&model.BoardMember{
			BoardID: b.ID,
			UserID:  user.ID,
			Role:    model.BoardRoleOwner.String(),
		}).Error
	})
	if err != nil {
		log.Fatalf("Seed failed: %v", err)
	}

	if *sample {
		if err := seedElements(db, b.ID, user.ID); err != nil {
			log.Fatalf("Sample elements failed: %v", err)
		}
	}

	token, err := auth.NewJWTManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenExpiry).
		GenerateAccessToken(user.ID, user.Email, user.Nickname)
	if err != nil {
		log.Fatalf("Token generation failed: %v", err)
	}

	fmt.Printf("board: %s\n", b.ID)
	fmt.Printf("user:  %d (%s)\n", user.ID, user.Email)
	fmt.Printf("token: %s\n", token)
}

func seedElements(db *gorm.DB, boardID string, userID int64) error {
	createdBy := fmt.Sprintf("user-%d", userID)
	specs := []struct {
		typ model.ElementType
		at  geom.Point
	}{
		{model.ElementFrame, geom.Point{X: 0, Y: 0}},
		{model.ElementSticky, geom.Point{X: 40, Y: 60}},
		{model.ElementShape, geom.Point{X: 260, Y: 60}},
		{model.ElementText, geom.Point{X: 40, Y: 20}},
	}

	elements := make([]model.BoardElement, 0, len(specs))
	for i, s := range specs {
		el, err := model.NewElement(boardID, s.typ, s.at, createdBy)
		if err != nil {
			return err
		}
		el.ZIndex = i + 1
		switch c := el.Content.(type) {
		case model.StickyContent:
			c.Text = "Welcome to the board"
			el.Content = c
		case model.TextContent:
			c.Text = "Ideas"
			el.Content = c
		case model.FrameContent:
			c.Title = "Brainstorm"
			el.Content = c
		}
		elements = append(elements, el)
	}
	return repository.New(db).Save(context.Background(), boardID, elements)
}
