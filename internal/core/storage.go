package core

import (
	"context"
	"fmt"
	"time"

	"unitledger/internal/infra/persistence/cache"
	"unitledger/internal/infra/persistence/memory"
	"unitledger/internal/infra/persistence/postgres"
	"unitledger/internal/infra/persistence/redis"
	"unitledger/internal/infra/persistence/sqlite"
	"unitledger/internal/infra/persistence/txn"
	"unitledger/pkg/domain"
)

// StorageDriver identifies a concrete persistent storage implementation.
type StorageDriver string

const (
	StorageMemory   StorageDriver = "memory"   // in-memory only (tests / ephemeral)
	StorageSQLite   StorageDriver = "sqlite"   // embedded sqlite file
	StoragePostgres StorageDriver = "postgres" // PostgreSQL server
	StorageRedis    StorageDriver = "redis"    // one hash per bucket
)

// StorageDrivers lists every supported driver.
var StorageDrivers = []StorageDriver{StorageMemory, StorageSQLite, StoragePostgres, StorageRedis}

// StorageConfig selects and parameterizes a backend.
type StorageConfig struct {
	Driver      StorageDriver
	SQLitePath  string
	PostgresDSN string
	RedisURL    string
	RedisPrefix string
	// CacheTTL > 0 memoizes reads of immutable buckets for that long.
	CacheTTL time.Duration
}

type backendStore interface {
	PersistentStore
	Backend() txn.Backend
	RulesEngine() *domain.RulesEngine
}

// OpenPersistentStore opens the configured backend. An empty driver selects memory.
func OpenPersistentStore(ctx context.Context, cfg StorageConfig, engine *RulesEngine) (PersistentStore, error) {
	var (
		store backendStore
		err   error
	)
	switch cfg.Driver {
	case "", StorageMemory:
		store = memory.NewStore(engine)
	case StorageSQLite:
		store, err = sqlite.NewStore(cfg.SQLitePath, engine)
	case StoragePostgres:
		store, err = postgres.NewStore(ctx, cfg.PostgresDSN, engine)
	case StorageRedis:
		prefix := cfg.RedisPrefix
		if prefix == "" {
			prefix = redis.DefaultPrefix
		}
		store, err = redis.NewStore(ctx, cfg.RedisURL, prefix, engine)
	default:
		return nil, fmt.Errorf("unknown storage driver %s", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}
	if cfg.CacheTTL > 0 {
		return cache.NewStore(store, cfg.CacheTTL), nil
	}
	return store, nil
}
