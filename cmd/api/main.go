package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"sitedoc/internal/api"
	"sitedoc/internal/config"
	"sitedoc/internal/job"
)

func main() {
	cfgPath := flag.String("config", "", "Path to service configuration (defaults apply when empty)")
	addr := flag.String("addr", ":8080", "HTTP listen address")
	maxConcFlag := flag.Int("max-concurrency", 0, "Maximum concurrent conversion jobs")
	flag.Parse()

	cfg := config.Default()
	if *cfgPath != "" {
		loaded, err := config.Load(*cfgPath)
		if err != nil {
			log.Fatalf("failed to load config: %v", err)
		}
		cfg = *loaded
	}

	maxConcurrency := resolveMaxConcurrency(*maxConcFlag, cfg.Jobs.MaxConcurrency)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger := newLogger(cfg.Logging)
	logger.Info("starting api server", "addr", *addr, "max_concurrency", maxConcurrency)

	pipeline := job.NewPipeline(cfg, logger)
	manager := job.NewManager(pipeline, job.NewMemoryStore(), maxConcurrency, ctx, logger)
	server := api.NewServer(manager, cfg, logger)

	httpServer := &http.Server{
		Addr:    *addr,
		Handler: server,
	}

	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("http shutdown error", "error", err)
		}
		manager.Shutdown()
	}()

	logger.Info("api server listening", "addr", *addr)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("server error: %v", err)
	}
	stop()
	<-shutdownDone
	log.Println("API server stopped")
}

func newLogger(cfg config.LoggingConfig) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	opts := &slog.HandlerOptions{Level: level, AddSource: true}
	if cfg.Structured {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}

func resolveMaxConcurrency(flagValue, configured int) int {
	if flagValue > 0 {
		return flagValue
	}
	if raw := os.Getenv("SITEDOC_MAX_CONCURRENCY"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 {
			return v
		}
	}
	if configured > 0 {
		return configured
	}
	return 3
}
