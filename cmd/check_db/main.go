package main

import (
	"context"
	"fmt"
	"log"

	"github.com/joho/godotenv"

	"realtime-board/internal/database"
	"realtime-board/internal/repository"
)

var requiredTables = []string{"users", "boards", "board_members", "board_elements"}

func main() {
	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Println("ℹ️ No .env file found, using environment variables")
	}

	// report the schema as it is, without migrating it first
	dbCfg := database.LoadConfig()
	dbCfg.AutoMigrate = false
	db, err := database.Open(dbCfg)
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}
	defer database.Close(db)

	fmt.Println("✅ Connected to database")
	fmt.Println()

	// Check that every board table exists
	missing := 0
	for _, table := range requiredTables {
		var exists bool
		query := `
			SELECT EXISTS (
				SELECT 1
				FROM information_schema.tables
				WHERE table_name = ?
			)
		`
		if err := db.Raw(query, table).Scan(&exists).Error; err != nil {
			log.Fatalf("Failed to check table %s: %v", table, err)
		}
		mark := "✅"
		if !exists {
			mark = "❌"
			missing++
		}
		fmt.Printf("%s %s\n", mark, table)
	}
	fmt.Println()
	if missing > 0 {
		fmt.Println("⚠️  Need to run the server once so AutoMigrate creates the missing tables")
		return
	}

	summaries, err := repository.New(db).Summaries(context.Background())
	if err != nil {
		log.Fatal("Failed to summarize boards:", err)
	}

	fmt.Printf("📈 Boards: %d\n", len(summaries))
	var total int64
	for _, s := range summaries {
		fmt.Printf("  - %s %q: %d elements\n", s.BoardID, s.Title, s.Elements)
		total += s.Elements
	}
	fmt.Printf("📦 Total elements: %d\n", total)
}
