package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Addr          string
	DatabaseURL   string
	MigrationsDir string
	AuthKey       string
	AccessTTL     time.Duration
	RedisURL      string
	CORSOrigin    string
	LogLevel      string
	LogFormat     string
	// Real-time channel limits
	SendBuffer      int
	MaxMessageBytes int64
}

func Load() Config {
	return Config{
		Addr: getenv("API_ADDR", ":8000"),
		// Empty DATABASE_URL selects the in-memory document store.
		DatabaseURL:   getenv("DATABASE_URL", ""),
		MigrationsDir: getenv("QDAM_MIGRATIONS_DIR", "./db/migrations"),
		AuthKey:       getenv("QDAM_AUTH_KEY", "qdamono-dev-secret"),
		AccessTTL:     time.Duration(getenvInt("QDAM_ACCESS_TTL_SECONDS", 3600)) * time.Second,
		// Empty REDIS_URL keeps access sessions in process memory.
		RedisURL:        getenv("REDIS_URL", ""),
		CORSOrigin:      getenv("QDAM_CORS_ORIGIN", "*"),
		LogLevel:        getenv("QDAM_LOG_LEVEL", "info"),
		LogFormat:       getenv("QDAM_LOG_FORMAT", "json"),
		SendBuffer:      getenvInt("QDAM_SEND_BUFFER", 64),
		MaxMessageBytes: int64(getenvInt("QDAM_MAX_MESSAGE_BYTES", 4<<20)),
	}
}

func getenv(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}
