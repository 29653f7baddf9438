package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"API_ADDR", "DATABASE_URL", "REDIS_URL", "QDAM_ACCESS_TTL_SECONDS", "QDAM_SEND_BUFFER"} {
		t.Setenv(key, "")
	}

	cfg := Load()
	if cfg.Addr != ":8000" {
		t.Fatalf("Addr = %q, want :8000", cfg.Addr)
	}
	if cfg.DatabaseURL != "" || cfg.RedisURL != "" {
		t.Fatalf("expected in-memory backends by default, got %+v", cfg)
	}
	if cfg.AccessTTL != time.Hour {
		t.Fatalf("AccessTTL = %v, want 1h", cfg.AccessTTL)
	}
	if cfg.SendBuffer != 64 || cfg.MaxMessageBytes != 4<<20 {
		t.Fatalf("unexpected channel limits: %d %d", cfg.SendBuffer, cfg.MaxMessageBytes)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("API_ADDR", ":9999")
	t.Setenv("QDAM_ACCESS_TTL_SECONDS", "60")
	t.Setenv("QDAM_SEND_BUFFER", "not-a-number")

	cfg := Load()
	if cfg.Addr != ":9999" {
		t.Fatalf("Addr = %q, want :9999", cfg.Addr)
	}
	if cfg.AccessTTL != time.Minute {
		t.Fatalf("AccessTTL = %v, want 1m", cfg.AccessTTL)
	}
	if cfg.SendBuffer != 64 {
		t.Fatalf("SendBuffer = %d, want fallback 64", cfg.SendBuffer)
	}
}
