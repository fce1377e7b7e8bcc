// Package app wires the sync engine together and manages its lifecycle.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/civicportal/portal-sync/internal/config"
	"github.com/civicportal/portal-sync/internal/sync/coordinator"
)

// App encapsulates the engine: the polling coordinator, the configuration watcher
// and the admin HTTP server
type App struct {
	components *Components
	httpServer *http.Server

	// Lifecycle management
	ctx        context.Context
	cancelFunc context.CancelFunc
}

// Start runs the configuration watcher and the polling loop in the background,
// then serves the admin API. It blocks until the HTTP server stops.
func (app *App) Start() error {
	go func() {
		if err := app.components.Config.Watch(app.ctx); err != nil {
			slog.Error("Configuration watcher failed", "error", err)
		}
	}()

	go func() {
		if err := app.components.Coordinator.Start(app.ctx); err != nil {
			slog.Error("Sync coordinator failed", "error", err)
		}
	}()

	slog.Info("Admin server listening", "address", app.httpServer.Addr)
	if err := app.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("HTTP server failed: %w", err)
	}

	return nil
}

// RunCycle runs a single cycle without starting the polling loop or the admin server
func (app *App) RunCycle(ctx context.Context) *coordinator.CycleReport {
	return app.components.Coordinator.RunCycle(ctx)
}

// Stop stops the polling loop, waiting for the running cycle to wind down,
// then shuts the admin server down and releases every resource
func (app *App) Stop(timeout time.Duration) error {
	slog.Info("Shutting down sync engine")

	if err := app.components.Coordinator.Stop(); err != nil {
		slog.Error("Failed to stop sync coordinator", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var errs []error
	if err := app.httpServer.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("server forced to shutdown: %w", err))
	}
	if err := app.close(shutdownCtx); err != nil {
		errs = append(errs, err)
	}

	slog.Info("Sync engine shutdown complete")
	return errors.Join(errs...)
}

// Close releases resources of an App that was never started
func (app *App) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
	defer cancel()
	return app.close(ctx)
}

func (app *App) close(ctx context.Context) error {
	if app.cancelFunc != nil {
		app.cancelFunc()
	}

	var errs []error
	c := app.components
	if err := c.Config.Close(); err != nil {
		errs = append(errs, err)
	}
	if c.Store != nil {
		c.Store.Close()
	}
	if c.Lock != nil {
		if err := c.Lock.Release(); err != nil {
			errs = append(errs, fmt.Errorf("failed to release output root lock: %w", err))
		}
	}
	if c.Telemetry != nil {
		if err := c.Telemetry.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to shut down telemetry: %w", err))
		}
	}
	return errors.Join(errs...)
}

// GetConfig returns the current configuration snapshot
func (app *App) GetConfig() *config.Config {
	return app.components.Config.Snapshot()
}

// GetHTTPServer returns the admin HTTP server
func (app *App) GetHTTPServer() *http.Server {
	return app.httpServer
}
