package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/vango-go/carelive/pkg/gateway/config"
	"github.com/vango-go/carelive/pkg/warehouse"
)

func migrateWarehouse(ctx context.Context, cfg config.Config, logger *slog.Logger) ([]int64, error) {
	if cfg.DatabaseURL == "" {
		return nil, errors.New("CARELIVE_DATABASE_URL must be set to migrate")
	}
	store, err := warehouse.Open(ctx, cfg.DatabaseURL, warehouse.Options{Logger: logger})
	if err != nil {
		return nil, fmt.Errorf("open warehouse: %w", err)
	}
	defer store.Close()
	return warehouse.Migrate(ctx, store.Pool(), logger)
}

func runMigrate(ctx context.Context, stderr io.Writer, deps cliDeps) error {
	if deps.loadConfig == nil || deps.migrate == nil {
		return errors.New("missing migrate dependency")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := deps.loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := newLogger(stderr, cfg.LogLevel)

	applied, err := deps.migrate(ctx, cfg, logger)
	if err != nil {
		return err
	}
	logger.Info("migrations complete", "applied", len(applied))
	return nil
}
