// Package database opens the store backend selected by configuration.
package database

import (
	"context"
	"fmt"
	"time"

	"fintrack/pkg/config"
	"fintrack/pkg/store"
	"fintrack/pkg/store/gormstore"
	"fintrack/pkg/store/memstore"
	"fintrack/pkg/store/mongostore"
)

const pingTimeout = 10 * time.Second

// Open connects to the configured backend and checks that it answers. A
// backend that cannot be reached is an error; callers treat it as fatal.
func Open(ctx context.Context, cfg config.Config) (store.Store, error) {
	var (
		st  store.Store
		err error
	)
	switch cfg.DBDriver {
	case config.DriverPostgres:
		st, err = gormstore.Open(cfg.DBDSN)
	case config.DriverMongo:
		st, err = mongostore.Open(cfg.DBDSN, cfg.MongoDB)
	case config.DriverMemory:
		st = memstore.New()
	default:
		err = fmt.Errorf("unknown DB_DRIVER %q", cfg.DBDriver)
	}
	if err != nil {
		return nil, err
	}

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := st.Ping(pingCtx); err != nil {
		_ = st.Close(ctx)
		return nil, fmt.Errorf("ping %s: %w", cfg.DBDriver, err)
	}
	return st, nil
}
