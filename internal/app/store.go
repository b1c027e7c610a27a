package app

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/carepoint-hms/carepoint/internal/docstore"
	"github.com/carepoint-hms/carepoint/internal/docstore/leveldb"
	"github.com/carepoint-hms/carepoint/internal/docstore/memory"
	"github.com/carepoint-hms/carepoint/internal/docstore/postgres"
	"github.com/carepoint-hms/carepoint/internal/docstore/sqlite"
	"github.com/carepoint-hms/carepoint/internal/platform/db"
)

// OpenStore opens the document store selected by STORE_DRIVER and registers
// its transaction counters on registerer.
func OpenStore(ctx context.Context, cfg *Config, registerer prometheus.Registerer) (docstore.Store, error) {
	opts := docstore.Options{
		MaxAttempts: cfg.TxMaxAttempts,
		Metrics:     docstore.NewMetrics(registerer, cfg.StoreDriver),
	}
	switch cfg.StoreDriver {
	case DriverMemory:
		return memory.New(opts), nil
	case DriverPostgres:
		pool, err := db.New(ctx, cfg.PGDSN, db.PoolOptions{MaxConns: cfg.PGMaxConns})
		if err != nil {
			return nil, err
		}
		store := postgres.New(pool, opts)
		if err := store.Migrate(ctx); err != nil {
			pool.Close()
			return nil, err
		}
		return store, nil
	case DriverSQLite:
		store, err := sqlite.Open(cfg.SQLitePath, opts)
		if err != nil {
			return nil, err
		}
		return store, nil
	case DriverLevelDB:
		store, err := leveldb.OpenFile(cfg.LevelDBPath, opts)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("app: unknown store driver %q", cfg.StoreDriver)
	}
}
