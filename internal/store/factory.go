package store

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/civicportal/portal-sync/internal/config"
	"github.com/civicportal/portal-sync/internal/db"
)

// New creates the store selected by the configuration's storage type
func New(ctx context.Context, cfg *config.Config, opts ...db.PoolOption) (Store, error) {
	switch cfg.GetStorageType() {
	case config.StorageTypeDatabase:
		pool, err := db.NewPool(ctx, cfg.Database, opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		slog.Info("Using database store")
		return NewPostgresStore(pool), nil
	case config.StorageTypeMemory:
		slog.Info("Using in-memory store")
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown storage type %q", cfg.GetStorageType())
	}
}
