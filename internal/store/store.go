// Package store opens the persistence backend selected in the configuration.
// Driver implementations live in the sub-packages.
package store

import (
	"context"
	"fmt"

	"github.com/MrWong99/jarvis/internal/auth"
	"github.com/MrWong99/jarvis/internal/config"
	"github.com/MrWong99/jarvis/internal/intent"
	"github.com/MrWong99/jarvis/internal/store/memory"
	"github.com/MrWong99/jarvis/internal/store/postgres"
	"github.com/MrWong99/jarvis/internal/store/sqlite"
)

// Store persists the voice profile and the intent cache.
type Store interface {
	auth.ProfileStore
	intent.Store

	// Ping checks that the backend is reachable. Used by the readiness probe.
	Ping(ctx context.Context) error
	Close() error
}

// Open returns the backend named by cfg.Driver.
func Open(ctx context.Context, cfg config.StorageConfig) (Store, error) {
	switch cfg.Driver {
	case config.StorageMemory:
		return memory.New(), nil
	case config.StorageSQLite, "":
		path := cfg.Path
		if path == "" {
			path = "jarvis.db"
		}
		return sqlite.Open(ctx, path)
	case config.StoragePostgres:
		if cfg.PostgresDSN == "" {
			return nil, fmt.Errorf("store: postgres driver requires postgres_dsn")
		}
		return postgres.Open(ctx, cfg.PostgresDSN)
	default:
		return nil, fmt.Errorf("store: unknown driver %q", cfg.Driver)
	}
}
