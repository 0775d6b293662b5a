package database

import (
	"context"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"realtime-board/internal/model"
)

// Config 보드 저장소 연결 설정
type Config struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
	TimeZone string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	SlowQuery       time.Duration

	// AutoMigrate creates or updates the board tables on Open.
	AutoMigrate bool
}

// LoadConfig reads DB_* variables.
func LoadConfig() *Config {
	return &Config{
		Host:            envOr("DB_HOST", "localhost"),
		Port:            envOr("DB_PORT", "5432"),
		User:            envOr("DB_USER", "postgres"),
		Password:        os.Getenv("DB_PASSWORD"),
		DBName:          envOr("DB_NAME", "realtime_board"),
		SSLMode:         envOr("DB_SSLMODE", "disable"),
		TimeZone:        envOr("DB_TIMEZONE", "UTC"),
		MaxOpenConns:    envInt("DB_MAX_OPEN_CONNS", 50),
		MaxIdleConns:    envInt("DB_MAX_IDLE_CONNS", 10),
		ConnMaxLifetime: envDuration("DB_CONN_MAX_LIFETIME", time.Hour),
		SlowQuery:       envDuration("DB_SLOW_QUERY", 200*time.Millisecond),
		AutoMigrate:     envOr("DB_AUTO_MIGRATE", "true") == "true",
	}
}

// DSN returns the postgres connection string.
func (c *Config) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s TimeZone=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode, c.TimeZone,
	)
}

// Open connects to postgres, sizes the pool and migrates the board tables
// when cfg.AutoMigrate is set.
func Open(cfg *Config) (*gorm.DB, error) {
	sqlLog := logger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		logger.Config{
			SlowThreshold:             cfg.SlowQuery,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
		},
	)

	db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{Logger: sqlLog})
	if err != nil {
		return nil, fmt.Errorf("connect %s@%s/%s: %w", cfg.User, cfg.Host, cfg.DBName, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("pool: %w", err)
	}
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if cfg.AutoMigrate {
		if err := Migrate(db); err != nil {
			sqlDB.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
	}
	return db, nil
}

// Migrate 보드 관련 테이블 생성/갱신
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&model.User{},
		&model.Board{},
		&model.BoardMember{},
		&model.ElementRecord{},
	)
}

// Ping checks the connection within ctx.
func Ping(ctx context.Context, db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close releases the pool.
func Close(db *gorm.DB) error {
	if db == nil {
		return nil
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if n, err := strconv.Atoi(os.Getenv(key)); err == nil && n > 0 {
		return n
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if d, err := time.ParseDuration(os.Getenv(key)); err == nil && d > 0 {
		return d
	}
	return fallback
}
