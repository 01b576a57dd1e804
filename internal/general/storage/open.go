// Package storage picks the document store named by the configuration.
package storage

import (
	"context"
	"fmt"

	"ridemarket/internal/general/clock"
	"ridemarket/internal/general/config"
	"ridemarket/internal/general/logger"
	"ridemarket/internal/general/memstore"
	"ridemarket/internal/general/postgres"
	"ridemarket/internal/general/sqlite"
	"ridemarket/internal/ports"
)

// Open returns the configured store. Postgres is migrated before use.
func Open(ctx context.Context, cfg *config.Config, log *logger.Logger, clk clock.Clock) (ports.DocumentStore, error) {
	switch cfg.Store.Driver {
	case config.StoreMemory:
		log.Warn(ctx, "store_memory", "Using the in-memory store; data is lost on exit", nil, nil)
		return memstore.New(clk), nil

	case config.StorePostgres:
		pool, err := postgres.NewPool(ctx, cfg, log)
		if err != nil {
			return nil, err
		}
		if err := postgres.Migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
		return postgres.NewDocumentStore(pool), nil

	case config.StoreSQLite:
		store, err := sqlite.Open(ctx, cfg.SQLite.Path, cfg.SQLite.PoolSize, clk, log)
		if err != nil {
			return nil, err
		}
		return store, nil

	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}
