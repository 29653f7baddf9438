package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"qdamono/server/internal/app"
	"qdamono/server/internal/auth"
	"qdamono/server/internal/authpw"
	"qdamono/server/internal/config"
	"qdamono/server/internal/logging"
	"qdamono/server/internal/projects"
	"qdamono/server/internal/realtime"
	"qdamono/server/internal/session"
	"qdamono/server/internal/store"
)

type sessionBackend interface {
	auth.SessionStore
	app.Pinger
	Close() error
}

func main() {
	cfg := config.Load()
	ctx := context.Background()

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatalf("logger setup failed: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	dataStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("document store setup failed", zap.Error(err))
	}
	defer dataStore.Close()

	var sessions sessionBackend
	if strings.TrimSpace(cfg.RedisURL) != "" {
		logger.Info("using redis for access sessions")
		redisStore, err := session.NewRedisStore(cfg.RedisURL)
		if err != nil {
			logger.Fatal("redis connection failed", zap.Error(err))
		}
		sessions = redisStore
	} else {
		logger.Info("using process memory for access sessions")
		sessions = session.NewMemoryStore()
	}
	defer sessions.Close()

	gate := auth.NewGate(cfg.AuthKey, cfg.AccessTTL, sessions)
	repo := projects.NewRepository(dataStore)
	engine := realtime.NewEngine(gate, dataStore, repo, logger.Named("realtime"))
	service := app.New(dataStore, sessions, gate, authpw.NewService(dataStore.Users()), repo)

	httpServer := app.NewHTTPServer(
		service,
		realtime.NewWebSocketHandler(engine, cfg.SendBuffer, cfg.MaxMessageBytes, cfg.CORSOrigin, logger.Named("ws")),
		promhttp.Handler(),
		cfg.CORSOrigin,
		logger.Named("http"),
	)
	// No WriteTimeout: it would cut long-lived websocket connections.
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info("qdamono server listening", zap.String("addr", cfg.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("shutdown error", zap.Error(err))
	}
}

// openStore picks Postgres when DATABASE_URL is set and the in-memory store
// otherwise.
func openStore(ctx context.Context, cfg config.Config, logger *zap.Logger) (store.Store, error) {
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		logger.Warn("DATABASE_URL not set, documents are kept in memory")
		return store.NewMemoryStore(), nil
	}

	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	if err := store.ApplyMigrations(ctx, db, cfg.MigrationsDir, logger.Named("migrate")); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store.NewPostgresStore(db), nil
}
