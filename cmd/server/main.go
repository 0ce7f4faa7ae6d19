package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/riazm868/pharmacy-rx-manager-sub000/internal/app"
	"github.com/riazm868/pharmacy-rx-manager-sub000/internal/config"
	pkgconfig "github.com/riazm868/pharmacy-rx-manager-sub000/pkg/config"
	"github.com/riazm868/pharmacy-rx-manager-sub000/pkg/logger"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run() error {
	// A local .env is optional; real environment variables win.
	if err := pkgconfig.LoadDotenv(".env"); err != nil {
		return fmt.Errorf("load .env: %w", err)
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log := logger.New("pos-integration", cfg.LogLevel)
	log.Info("starting pos integration service",
		slog.String("environment", cfg.Environment),
		slog.Int("http_port", cfg.HTTPPort),
		slog.String("store", cfg.StoreBackend),
		slog.String("token_store", cfg.TokenStore),
	)

	application, err := app.NewApp(cfg, log)
	if err != nil {
		return fmt.Errorf("initialize application: %w", err)
	}

	// Create a context that is canceled on SIGINT or SIGTERM.
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := application.Run(ctx); err != nil {
		return fmt.Errorf("run application: %w", err)
	}

	log.Info("pos integration service stopped")
	return nil
}
