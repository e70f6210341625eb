package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"optrack/internal/config"
	"optrack/internal/httpapi"
	"optrack/internal/lifecycle"
	"optrack/internal/oracle"
	"optrack/internal/ratelimit"
	"optrack/internal/store"
	"optrack/internal/util"
)

func main() {
	// .env is optional; real deployments set the variables directly.
	_ = godotenv.Load()

	cfgPath := "config/optrack.yaml"
	if p := os.Getenv("OPTRACK_CONFIG"); p != "" {
		cfgPath = p
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	logger := util.NewLogger(cfg.Logging.Level, cfg.Logging.Format, os.Stdout)
	slog.SetDefault(logger)

	st, err := openStore(cfg)
	if err != nil {
		log.Fatalf("opening store: %v", err)
	}
	defer st.Close()

	limiter := ratelimit.New(cfg.RateLimit.MaxCalls, cfg.RateLimit.Period())
	po := oracle.NewAlpacaOracle(oracle.Config{
		APIKey:    cfg.Alpaca.APIKey,
		APISecret: cfg.Alpaca.APISecret,
		DataURL:   cfg.Alpaca.DataURL,
		Timeout:   cfg.Alpaca.Timeout(),
	}, limiter)

	coord := lifecycle.New(st, po)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Settle everything that expired while we were down.
	if err := coord.Initialize(ctx); err != nil {
		log.Fatalf("initializing positions: %v", err)
	}

	srv := httpapi.NewServer(coord, logger)
	httpServer := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler: srv.Handler(),
	}

	go func() {
		logger.Info("optrack server listening", "addr", httpServer.Addr, "backend", cfg.Storage.Backend)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server error", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
}

func openStore(cfg *config.Config) (store.PositionStore, error) {
	switch cfg.Storage.Backend {
	case "snapshot":
		return store.NewSnapshotStore(cfg.Storage.SnapshotPath)
	case "sqlite", "":
		return store.NewSQLiteStore(cfg.Storage.SQLitePath)
	}
	return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
}
