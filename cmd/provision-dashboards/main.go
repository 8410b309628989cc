package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/dynamo-ai/engine-relay/internal/config"
	"github.com/dynamo-ai/engine-relay/internal/provision"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	handler := slog.NewJSONHandler(os.Stdout, nil)
	slog.SetDefault(slog.New(handler))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	client := provision.NewClient(cfg.SupersetURL)

	slog.Info("waiting for superset", "url", cfg.SupersetURL)
	if err := waitForSuperset(ctx, client); err != nil {
		slog.Error("superset not reachable", "error", err)
		os.Exit(1)
	}

	slog.Info("logging in", "username", cfg.SupersetUsername)
	if err := client.Login(ctx, cfg.SupersetUsername, cfg.SupersetPassword); err != nil {
		slog.Error("login failed", "error", err)
		os.Exit(1)
	}

	if err := provision.Run(ctx, client); err != nil {
		slog.Error("provisioning failed", "error", err)
		os.Exit(1)
	}

	slog.Info("dashboards ready", "url", cfg.SupersetURL)
}

func waitForSuperset(ctx context.Context, client *provision.Client) error {
	var lastErr error
	for {
		if lastErr = client.Health(ctx); lastErr == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return lastErr
		case <-time.After(2 * time.Second):
		}
	}
}
