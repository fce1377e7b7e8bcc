package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/civicportal/portal-sync/internal/config"
)

const seedTimeout = 30 * time.Second

// TenantSeeder upserts configured tenants into the store
type TenantSeeder interface {
	SeedTenants(ctx context.Context, tenants []config.TenantConfig) error
}

// InitializeTenants ensures every tenant and folder of the configuration exists in the store.
// Tenants missing from the configuration are left untouched, so it is safe on every startup
// and on every configuration reload.
func InitializeTenants(ctx context.Context, cfg *config.Config, seeder TenantSeeder) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}
	if seeder == nil {
		return fmt.Errorf("store is required")
	}

	if len(cfg.Tenants) == 0 {
		slog.Info("No tenants found in config")
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, seedTimeout)
	defer cancel()

	if err := seeder.SeedTenants(ctx, cfg.Tenants); err != nil {
		return fmt.Errorf("failed to seed tenants: %w", err)
	}

	folders := 0
	for _, t := range cfg.Tenants {
		folders += len(t.Folders)
	}
	slog.Info("Tenants initialized from config", "tenants", len(cfg.Tenants), "folders", folders)
	return nil
}

// reseedOnReload seeds the tenants of every reloaded configuration.
// A failed seed keeps the previous store content; the engine keeps running.
func reseedOnReload(ctx context.Context, seeder TenantSeeder) func(*config.Config) {
	return func(cfg *config.Config) {
		if err := InitializeTenants(context.WithoutCancel(ctx), cfg, seeder); err != nil {
			slog.Error("Failed to seed tenants after configuration reload", "error", err)
		}
	}
}
