package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"gbridge-server/internal/server"
	"gbridge-server/internal/store"
)

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if lvl, err := zapcore.ParseLevel(level); err == nil {
		cfg.Level = zap.NewAtomicLevelAt(lvl)
	}
	return cfg.Build()
}

func newStore(ctx context.Context, cfg server.Config, log *zap.Logger) (store.Store, error) {
	if cfg.DatabaseURL == "" {
		log.Warn("DATABASE_URL not set, using in-memory store, nothing survives a restart")
		return store.NewMemoryStore(), nil
	}
	return store.NewPostgresStore(ctx, cfg.DatabaseURL)
}

func gracefulShutdown(gameServer *server.Server, httpServer *http.Server, log *zap.Logger, done chan struct{}) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()
	log.Info("shutdown signal received, press Ctrl+C again to force")
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	gameServer.Shutdown(shutdownCtx)
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("http server shutdown", zap.Error(err))
	}
	close(done)
}

func main() {
	cfg := server.LoadConfig()

	log, err := newLogger(cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	st, err := newStore(context.Background(), cfg, log)
	if err != nil {
		log.Fatal("connect to store", zap.Error(err))
	}
	defer st.Close()

	gameServer, httpServer := server.New(cfg, log, st)

	done := make(chan struct{})
	go gracefulShutdown(gameServer, httpServer, log, done)

	log.Info("listening", zap.String("addr", httpServer.Addr))
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal("http server", zap.Error(err))
	}

	<-done
	log.Info("graceful shutdown complete")
}
