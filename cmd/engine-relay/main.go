package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dynamo-ai/engine-relay/internal/api"
	"github.com/dynamo-ai/engine-relay/internal/budget"
	"github.com/dynamo-ai/engine-relay/internal/config"
	"github.com/dynamo-ai/engine-relay/internal/engine"
	"github.com/dynamo-ai/engine-relay/internal/relay"
	"github.com/dynamo-ai/engine-relay/internal/telemetry"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	setupLogger(cfg.LogLevel)

	slog.Info("starting engine relay", "addr", cfg.Addr, "engine_url", cfg.EngineURL)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTelemetry, err := telemetry.Init(ctx, "engine-relay", cfg.OTLPEndpoint)
	if err != nil {
		slog.Error("failed to initialize telemetry", "error", err)
		os.Exit(1)
	}

	eng := engine.New(engine.Config{
		BaseURL:           cfg.EngineURL,
		RequestTimeout:    cfg.RequestTimeout,
		LookupTimeout:     cfg.LookupTimeout,
		StreamIdleTimeout: cfg.StreamIdleTimeout,
	})

	rly := relay.New(relay.Config{
		Engine:          eng,
		ShowUsageFooter: cfg.ShowUsageFooter,
	})

	handler := api.NewHandler(api.HandlerConfig{
		Relay:  rly,
		Budget: budget.NewChecker(eng),
	})

	srv := &http.Server{
		Addr:        cfg.Addr,
		Handler:     handler,
		ReadTimeout: 30 * time.Second,
		// No WriteTimeout: streamed replies can outlive any fixed deadline.
		IdleTimeout: 120 * time.Second,
	}

	go func() {
		slog.Info("server listening", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(ctx, cfg.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	if err := shutdownTelemetry(shutdownCtx); err != nil {
		slog.Warn("telemetry shutdown failed", "error", err)
	}

	slog.Info("server stopped")
}

func setupLogger(level string) {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})
	slog.SetDefault(slog.New(handler))
}
