package main

import (
	"context"
	"fmt"
	"log/slog"

	"fintrack/pkg/config"
	"fintrack/pkg/database"
	"fintrack/pkg/store"
)

// initStore opens the configured backend and migrates it when
// DB_AUTO_MIGRATE is on or force is set.
func initStore(ctx context.Context, cfg config.Config, force bool) (store.Store, error) {
	st, err := database.Open(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect %s database: %w", cfg.DBDriver, err)
	}
	if cfg.AutoMigrate || force {
		if err := st.Migrate(ctx); err != nil {
			_ = st.Close(ctx)
			return nil, fmt.Errorf("migration failed: %w", err)
		}
		slog.Info("schema migrated", "db_driver", cfg.DBDriver)
	}
	return st, nil
}
