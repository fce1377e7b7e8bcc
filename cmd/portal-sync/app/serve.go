package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/civicportal/portal-sync/internal/app"
	"github.com/civicportal/portal-sync/internal/config"
)

// defaultGracefulTimeout bounds the wait for the running cycle and open requests on shutdown
const defaultGracefulTimeout = 30 * time.Second

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the polling engine and the admin API",
		Long: `Run sync cycles at the configured poll interval and serve the admin API
(/health, /readiness, /version, /metrics, /v1/...).

The configuration file is watched: tenants, folders and engine settings of a
valid new version apply from the next cycle on. An invalid version is rejected
and the previous one stays active.`,
		RunE: runServe,
	}

	cmd.Flags().String("address", "", "Address to listen on (overrides server.address)")
	addConfigFlag(cmd, false)
	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	configPath, err := cmd.Flags().GetString("config")
	if err != nil {
		return fmt.Errorf("failed to get config flag: %w", err)
	}
	address, err := cmd.Flags().GetString("address")
	if err != nil {
		return fmt.Errorf("failed to get address flag: %w", err)
	}

	manager, err := config.NewManager(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	opts := []app.Option{app.WithConfigManager(manager)}
	if address != "" {
		opts = append(opts, app.WithAddress(address))
	}

	engine, err := app.New(context.Background(), opts...)
	if err != nil {
		_ = manager.Close()
		return fmt.Errorf("failed to build sync engine: %w", err)
	}

	errChan := make(chan error, 1)
	go func() {
		errChan <- engine.Start()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case sig := <-quit:
		slog.Info("Received shutdown signal", "signal", sig.String())
	case err := <-errChan:
		if err != nil {
			_ = engine.Stop(defaultGracefulTimeout)
			return err
		}
	}

	return engine.Stop(defaultGracefulTimeout)
}
