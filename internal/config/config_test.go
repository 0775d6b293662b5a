package config

import (
	"testing"
	"time"
)

func TestBoardDefaults(t *testing.T) {
	t.Setenv("BOARD_HISTORY_CAP", "")
	t.Setenv("REDIS_ADDR", "")

	cfg := fromEnv()
	b := cfg.Board
	if b.HistoryCap != 100 || b.SaveDebounce != 2*time.Second || b.CursorFrame != 16*time.Millisecond {
		t.Errorf("board defaults = %+v", b)
	}
	if b.ReconnectMin != 500*time.Millisecond || b.ReconnectMax != 10*time.Second {
		t.Errorf("reconnect defaults = %v..%v", b.ReconnectMin, b.ReconnectMax)
	}
	if b.DuplicateOffset != 20 || b.SnapTolerance != 5 {
		t.Errorf("offset/snap = %v/%v", b.DuplicateOffset, b.SnapTolerance)
	}
	if cfg.Redis.Enabled() {
		t.Error("redis should be disabled without REDIS_ADDR")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("BOARD_HISTORY_CAP", "25")
	t.Setenv("BOARD_SNAP_TOLERANCE", "2.5")
	t.Setenv("BOARD_SAVE_DEBOUNCE", "500ms")
	t.Setenv("BOARD_PRESENCE_TTL", "30")
	t.Setenv("REDIS_ADDR", "localhost:6379")

	cfg := fromEnv()
	if cfg.Board.HistoryCap != 25 {
		t.Errorf("HistoryCap = %d", cfg.Board.HistoryCap)
	}
	if cfg.Board.SnapTolerance != 2.5 {
		t.Errorf("SnapTolerance = %v", cfg.Board.SnapTolerance)
	}
	if cfg.Board.SaveDebounce != 500*time.Millisecond {
		t.Errorf("SaveDebounce = %v", cfg.Board.SaveDebounce)
	}
	if cfg.Board.PresenceTTL != 30*time.Second {
		t.Errorf("PresenceTTL = %v", cfg.Board.PresenceTTL)
	}
	if !cfg.Redis.Enabled() {
		t.Error("redis should be enabled")
	}
}

func TestHelpersFallBackOnGarbage(t *testing.T) {
	tests := []struct {
		name string
		got  any
		want any
	}{
		{"int", func() any { t.Setenv("X_INT", "abc"); return getInt("X_INT", 7) }(), 7},
		{"float", func() any { t.Setenv("X_FLOAT", "1.2.3"); return getFloat("X_FLOAT", 1.5) }(), 1.5},
		{"duration", func() any { t.Setenv("X_DUR", "soon"); return getDuration("X_DUR", time.Minute) }(), time.Minute},
		{"bool", func() any { t.Setenv("X_BOOL", "yes"); return getBool("X_BOOL", false) }(), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %v, want %v", tt.got, tt.want)
			}
		})
	}
}
