package app

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/civicportal/portal-sync/internal/config"
	"github.com/civicportal/portal-sync/internal/model"
	"github.com/civicportal/portal-sync/internal/store"
)

// Status views
const (
	viewFolders  = "folders"
	viewErrors   = "errors"
	viewActivity = "activity"
)

const statusTimeout = 30 * time.Second

func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show folder health, records in error or recent activity",
		Long: `Read the state store and print one of three views:

  folders   record counts per tenant folder and the last check time
  errors    records whose last attempt failed, with their retry count
  activity  the most recent sync log entries`,
		RunE: runStatus,
	}

	cmd.Flags().String("view", viewFolders, "View to show (folders, errors, activity)")
	cmd.Flags().String("tenant", "", "Only show activity of this tenant")
	cmd.Flags().Bool("failures", false, "Only show failed activity")
	cmd.Flags().Int("limit", 50, "Maximum number of errors or log entries")
	cmd.Flags().String("format", "table", "Output format (table, json)")
	addConfigFlag(cmd, false)
	return cmd
}

func runStatus(cmd *cobra.Command, _ []string) error {
	flags := cmd.Flags()
	configPath, _ := flags.GetString("config")
	view, _ := flags.GetString("view")
	tenant, _ := flags.GetString("tenant")
	failures, _ := flags.GetBool("failures")
	limit, _ := flags.GetInt("limit")
	format, _ := flags.GetString("format")

	if format != "table" && format != "json" {
		return fmt.Errorf("unsupported format %q", format)
	}

	cfg, err := config.LoadConfig(config.WithConfigPath(configPath))
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), statusTimeout)
	defer cancel()

	st, err := store.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer st.Close()

	return showStatus(ctx, cmd.OutOrStdout(), st, statusQuery{
		View:       view,
		TenantKey:  tenant,
		Failures:   failures,
		Limit:      limit,
		Format:     format,
		MaxRetries: cfg.Engine.GetMaxRetries(),
	})
}

// statusQuery selects a status view
type statusQuery struct {
	View       string
	TenantKey  string
	Failures   bool
	Limit      int
	Format     string
	MaxRetries int
}

// statusReader is the read side of the store used by the status views
type statusReader interface {
	FolderStats(ctx context.Context, maxRetries int) ([]model.FolderStats, error)
	ErrorRecords(ctx context.Context, limit int) ([]store.ErrorRecord, error)
	RecentLogs(ctx context.Context, filter store.LogFilter) ([]*model.SyncLogEntry, error)
}

func showStatus(ctx context.Context, w io.Writer, st statusReader, q statusQuery) error {
	switch q.View {
	case viewFolders:
		stats, err := st.FolderStats(ctx, q.MaxRetries)
		if err != nil {
			return fmt.Errorf("failed to load folder stats: %w", err)
		}
		if q.Format == "json" {
			return writeJSON(w, stats)
		}
		return writeFolderTable(w, stats)

	case viewErrors:
		records, err := st.ErrorRecords(ctx, q.Limit)
		if err != nil {
			return fmt.Errorf("failed to load error records: %w", err)
		}
		if q.Format == "json" {
			return writeJSON(w, records)
		}
		return writeErrorTable(w, records, q.MaxRetries)

	case viewActivity:
		entries, err := st.RecentLogs(ctx, store.LogFilter{
			TenantKey:    q.TenantKey,
			FailuresOnly: q.Failures,
			Limit:        q.Limit,
		})
		if err != nil {
			return fmt.Errorf("failed to load sync log: %w", err)
		}
		if q.Format == "json" {
			return writeJSON(w, entries)
		}
		return writeActivityTable(w, entries)

	default:
		return fmt.Errorf("unknown view %q (expected %s, %s or %s)", q.View, viewFolders, viewErrors, viewActivity)
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeFolderTable(w io.Writer, stats []model.FolderStats) error {
	table := tablewriter.NewWriter(w)
	table.Header("Tenant", "Folder", "Enabled", "Active", "Errors", "Terminal", "Deleted", "Last Checked")
	for _, s := range stats {
		if err := table.Append(s.TenantKey, s.FolderName, strconv.FormatBool(s.Enabled),
			s.Active, s.Errors, s.Terminal, s.Deleted, formatTime(s.LastCheckedAt)); err != nil {
			return err
		}
	}
	return table.Render()
}

func writeErrorTable(w io.Writer, records []store.ErrorRecord, maxRetries int) error {
	table := tablewriter.NewWriter(w)
	table.Header("Tenant", "Folder", "Item", "Retries", "Last Attempt", "Error")
	for _, rec := range records {
		retries := strconv.Itoa(rec.RetryCount)
		if rec.RetryCount > maxRetries {
			retries += " (gave up)"
		}
		if err := table.Append(rec.TenantKey, rec.FolderName, rec.Name, retries,
			formatTime(rec.LastAttemptedAt), rec.ErrorDetail); err != nil {
			return err
		}
	}
	return table.Render()
}

func writeActivityTable(w io.Writer, entries []*model.SyncLogEntry) error {
	table := tablewriter.NewWriter(w)
	table.Header("Time", "Operation", "Folder", "Item", "Outcome", "Duration", "Detail")
	for _, e := range entries {
		detail := e.Message
		if e.ErrorDetail != "" {
			detail = e.ErrorDetail
		}
		if err := table.Append(e.CreatedAt.UTC().Format(time.RFC3339), e.Operation, e.FolderName,
			e.ItemName, e.Outcome, e.Duration.Round(time.Millisecond).String(), detail); err != nil {
			return err
		}
	}
	return table.Render()
}

func formatTime(t *time.Time) string {
	if t == nil {
		return "never"
	}
	return t.UTC().Format(time.RFC3339)
}
