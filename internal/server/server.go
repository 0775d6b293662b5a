package server

import (
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"gorm.io/gorm"

	"realtime-board/internal/auth"
	"realtime-board/internal/cache"
	"realtime-board/internal/config"
	"realtime-board/internal/handler"
	"realtime-board/internal/presence"
	"realtime-board/internal/repository"
	"realtime-board/internal/transport"
)

// Server Fiber 서버 래퍼
type Server struct {
	app           *fiber.App
	cfg           *config.Config
	db            *gorm.DB
	hub           *handler.BoardHub
	boardHandler  *handler.BoardHandler
	healthHandler *handler.HealthHandler
	jwtManager    *auth.JWTManager
}

// New 새 서버 인스턴스 생성. redisClient가 nil이면 단일 인스턴스 모드
// (인메모리 중계, 캐시/Presence 없음)로 동작한다.
func New(cfg *config.Config, db *gorm.DB, redisClient *cache.RedisClient) *Server {
	app := fiber.New(fiber.Config{
		AppName:               "Realtime Board",
		ServerHeader:          "Fiber",
		StrictRouting:         true,
		CaseSensitive:         true,
		ReadTimeout:           cfg.Server.ReadTimeout,
		WriteTimeout:          cfg.Server.WriteTimeout,
		IdleTimeout:           cfg.Server.IdleTimeout,
		Prefork:               false, // WebSocket과 호환성 문제로 비활성화
		ReadBufferSize:        16384, // 16KB - 큰 헤더 허용
		WriteBufferSize:       16384,
		BodyLimit:             10 * 1024 * 1024, // 10MB
		DisableStartupMessage: false,
	})

	// Auth 초기화
	jwtManager := auth.NewJWTManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenExpiry)

	// 저장소/중계 구성
	repo := repository.New(db)
	var store repository.ElementStore = repo
	var bus transport.Transport = transport.NewMemory()
	var directory *presence.Manager
	var pinger handler.RedisPinger
	if redisClient != nil {
		store = repository.NewCached(repo, redisClient, cfg.Redis.CacheTTL)
		bus = transport.NewRedis(redisClient.Client())
		directory = presence.NewManager(redisClient.Client(), cfg.Board.PresenceTTL, cfg.Server.ServerID)
		pinger = redisClient
		log.Println("✅ Redis relay, snapshot cache and presence directory enabled")
	} else {
		log.Println("ℹ️ Redis not configured (single instance relay, no cache)")
	}

	hub := handler.NewBoardHub(bus, store, directory, cfg.Board.SaveDebounce)

	return &Server{
		app:           app,
		cfg:           cfg,
		db:            db,
		hub:           hub,
		boardHandler:  handler.NewBoardHandler(hub, repo, cfg.Board.ExportMaxSize),
		healthHandler: handler.NewHealthHandler(db, pinger, hub),
		jwtManager:    jwtManager,
	}
}

// SetupMiddleware 미들웨어 설정
func (s *Server) SetupMiddleware() {
	// 패닉 복구
	s.app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
	}))

	// 로깅
	s.app.Use(logger.New(logger.Config{
		Format:     "${time} | ${status} | ${latency} | ${ip} | ${method} ${path}\n",
		TimeFormat: "2006-01-02 15:04:05",
		TimeZone:   "Asia/Seoul",
	}))

	// CORS
	s.app.Use(cors.New(cors.Config{
		AllowOrigins:     s.cfg.CORS.AllowOrigins,
		AllowHeaders:     s.cfg.CORS.AllowHeaders,
		AllowMethods:     "GET, PUT, OPTIONS",
		AllowCredentials: s.cfg.CORS.AllowOrigins != "*",
	}))
}

// SetupRoutes 라우트 설정
func (s *Server) SetupRoutes() {
	// 헬스체크 엔드포인트
	s.app.Get("/health", s.healthHandler.Check)
	s.app.Get("/health/live", s.healthHandler.Liveness)
	s.app.Get("/health/ready", s.healthHandler.Readiness)

	// Rate Limiter 설정 (REST API용)
	apiLimiter := limiter.New(limiter.Config{
		Max:        120,             // 최대 120회
		Expiration: 1 * time.Minute, // 1분당
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP() // IP 기반 제한
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "too many requests, please try again later",
			})
		},
	})

	// Board 라우트 그룹 (인증 + 멤버 확인)
	boardGroup := s.app.Group("/api/boards/:boardId", apiLimiter, auth.AuthMiddleware(s.jwtManager), s.boardHandler.RequireMember)
	boardGroup.Get("/elements", s.boardHandler.GetElements)
	boardGroup.Put("/elements", s.boardHandler.SaveElements)
	boardGroup.Get("/presence", s.boardHandler.GetPresence)
	boardGroup.Get("/export.png", s.boardHandler.ExportPNG)

	// WebSocket 보드 협업 엔드포인트
	s.app.Get("/ws/boards/:boardId",
		s.boardHandler.UpgradeWebSocket,
		auth.AuthMiddleware(s.jwtManager),
		s.boardHandler.RequireMember,
		websocket.New(s.boardHandler.HandleWebSocket, websocket.Config{
			HandshakeTimeout: s.cfg.WebSocket.HandshakeTimeout,
			ReadBufferSize:   s.cfg.WebSocket.ReadBufferSize,
			WriteBufferSize:  s.cfg.WebSocket.WriteBufferSize,
		}))
}

// Start 서버 시작 (Graceful Shutdown 지원)
func (s *Server) Start() error {
	// Graceful Shutdown 설정
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		log.Println("🛑 Shutting down server...")
		if err := s.Shutdown(); err != nil {
			log.Fatalf("Server shutdown error: %v", err)
		}
	}()

	log.Printf("🚀 Realtime Board starting on %s", s.cfg.Server.Port)
	log.Printf("📡 WebSocket endpoint: ws://localhost%s/ws/boards/:boardId", s.cfg.Server.Port)

	return s.app.Listen(s.cfg.Server.Port)
}

// Shutdown 서버 종료. 열린 보드는 저장 후 닫는다.
func (s *Server) Shutdown() error {
	err := s.app.ShutdownWithTimeout(30 * time.Second)
	s.hub.Shutdown()
	return err
}
