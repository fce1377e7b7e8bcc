package app

import (
	"context"
	"fmt"
	"io"
	"maps"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/civicportal/portal-sync/internal/app"
	"github.com/civicportal/portal-sync/internal/config"
	pkgsync "github.com/civicportal/portal-sync/internal/sync"
	"github.com/civicportal/portal-sync/internal/sync/coordinator"
)

func newSyncOnceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync-once",
		Short: "Run a single sync cycle and exit",
		Long: `Run one cycle over every enabled tenant and print a per-folder summary.

The command exits non-zero when the cycle was aborted, for instance because the
store was unreachable. Failures of individual folders are reported in the
summary and the sync log; they do not change the exit status unless
--fail-on-folder-errors is set.`,
		RunE: runSyncOnce,
	}

	cmd.Flags().Bool("fail-on-folder-errors", false, "Exit non-zero when any folder failed")
	addConfigFlag(cmd, false)
	return cmd
}

func runSyncOnce(cmd *cobra.Command, _ []string) error {
	configPath, err := cmd.Flags().GetString("config")
	if err != nil {
		return fmt.Errorf("failed to get config flag: %w", err)
	}
	failOnFolderErrors, err := cmd.Flags().GetBool("fail-on-folder-errors")
	if err != nil {
		return fmt.Errorf("failed to get fail-on-folder-errors flag: %w", err)
	}

	cfg, err := config.LoadConfig(config.WithConfigPath(configPath))
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	// A signal cancels the cycle; records already written stay written
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	engine, err := app.New(ctx, app.WithConfigManager(config.NewStaticManager(cfg)))
	if err != nil {
		return fmt.Errorf("failed to build sync engine: %w", err)
	}
	defer func() {
		_ = engine.Close()
	}()

	report := engine.RunCycle(ctx)
	if err := writeCycleReport(cmd.OutOrStdout(), report); err != nil {
		return err
	}

	if report.Aborted {
		return fmt.Errorf("sync cycle aborted: %w", report.Err)
	}
	if failOnFolderErrors && report.Failed() > 0 {
		return fmt.Errorf("%d tenant(s) had failed folders", report.Failed())
	}
	return nil
}

// writeCycleReport prints one row per folder pass of the cycle
func writeCycleReport(w io.Writer, report *coordinator.CycleReport) error {
	if report.Aborted {
		_, err := fmt.Fprintf(w, "Cycle aborted after %s: %v\n", report.Duration.Round(time.Millisecond), report.Err)
		return err
	}

	failedFolders := 0
	table := tablewriter.NewWriter(w)
	table.Header("Tenant", "Folder", "Listed", "New", "Changed", "Removed", "Written", "Failed", "Deferred", "Status")
	for _, t := range report.Tenants {
		if t.Err != nil {
			if err := table.Append(t.Key, "-", "", "", "", "", "", "", "", t.Err.Error()); err != nil {
				return err
			}
			continue
		}
		failedFolders += t.FailedFolders

		for _, name := range slices.Sorted(maps.Keys(t.Results)) {
			r := t.Results[name]
			if r == nil {
				r = &pkgsync.Result{}
			}
			status := "ok"
			if syncErr, failed := t.Errors[name]; failed {
				status = syncErr.Kind + ": " + syncErr.Message
			}
			if err := table.Append(t.Key, name,
				r.Listed, r.New, r.Changed, r.Removed, r.Written, r.Failed, r.Deferred, status); err != nil {
				return err
			}
		}
	}
	if err := table.Render(); err != nil {
		return err
	}

	_, err := fmt.Fprintf(w, "%d tenant(s), %d failed folder(s), %s\n",
		len(report.Tenants), failedFolders, report.Duration.Round(time.Millisecond))
	return err
}
