package main

import (
	"context"
	"log"
	"time"

	"realtime-board/internal/cache"
	"realtime-board/internal/config"
	"realtime-board/internal/database"
	"realtime-board/internal/server"
)

func main() {
	// 설정 로드
	cfg := config.Load()

	// 데이터베이스 연결
	db, err := database.Open(database.LoadConfig())
	if err != nil {
		log.Fatalf("❌ Database connection failed: %v", err)
	}
	defer database.Close(db)

	// Ping 테스트
	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	err = database.Ping(pingCtx, db)
	cancel()
	if err != nil {
		log.Fatalf("❌ Database ping failed: %v", err)
	}
	log.Printf("✅ Database connected successfully")

	// DB 버전 확인
	var version string
	db.Raw("SELECT version()").Scan(&version)
	if len(version) > 50 {
		version = version[:50] + "..."
	}
	log.Printf("📦 PostgreSQL: %s", version)

	// Redis 연결 (선택)
	var redisClient *cache.RedisClient
	if cfg.Redis.Enabled() {
		redisClient, err = cache.NewRedisClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			log.Printf("⚠️ Redis connection failed: %v (running without Redis)", err)
			redisClient = nil
		} else {
			log.Printf("✅ Redis connected (%s)", cfg.Redis.Addr)
			defer redisClient.Close()
		}
	}

	// 서버 생성 및 설정
	srv := server.New(cfg, db, redisClient)
	srv.SetupMiddleware()
	srv.SetupRoutes()

	// 서버 시작
	if err := srv.Start(); err != nil {
		log.Fatalf("Server failed to start: %v", err)
	}
}
