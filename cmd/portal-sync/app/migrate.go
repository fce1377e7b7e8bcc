package app

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/civicportal/portal-sync/database"
	"github.com/civicportal/portal-sync/internal/config"
	"github.com/civicportal/portal-sync/internal/db"
)

func newMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Database migration tool",
		Long:  `Database migration tool for managing schema versions. Use with 'up' or 'down' subcommands.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Usage()
		},
	}

	cmd.PersistentFlags().BoolP("yes", "y", false, "Answer yes to all questions")
	cmd.PersistentFlags().UintP("num-steps", "n", 0, "Number of steps to migrate down (0 = all)")
	addConfigFlag(cmd, true)

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending database migrations",
		Long: `Apply all pending database migrations to bring the schema up to date.
The connection parameters are read from the database section of the config file.`,
		RunE: runMigrateUp,
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Migrate the database down",
		Long: `Migrate the database schema down by reverting migrations.
WARNING: This operation can result in data loss. Use with caution.

Examples:
  # Migrate down by 1 step
  portal-sync migrate down --config config.yaml --num-steps 1 --yes

  # Migrate down all the way (WARNING: destroys all records and the sync log)
  portal-sync migrate down --config config.yaml --yes`,
		RunE: runMigrateDown,
	})

	return cmd
}

// migrationConnString loads the configuration and returns its database connection string
func migrationConnString(cmd *cobra.Command) (string, *config.DatabaseConfig, error) {
	configPath, err := cmd.Flags().GetString("config")
	if err != nil {
		return "", nil, fmt.Errorf("failed to get config flag: %w", err)
	}

	cfg, err := config.LoadConfig(config.WithConfigPath(configPath))
	if err != nil {
		return "", nil, fmt.Errorf("failed to load config: %w", err)
	}
	if cfg.Database == nil {
		return "", nil, fmt.Errorf("database configuration is required")
	}

	connString, err := db.ConnectionString(cmd.Context(), cfg.Database)
	if err != nil {
		return "", nil, fmt.Errorf("failed to build connection string: %w", err)
	}
	return connString, cfg.Database, nil
}

func runMigrateUp(cmd *cobra.Command, _ []string) error {
	connString, dbCfg, err := migrationConnString(cmd)
	if err != nil {
		return err
	}

	prompt := fmt.Sprintf("About to apply migrations to database %s@%s:%d/%s. Continue?",
		dbCfg.User, dbCfg.Host, dbCfg.Port, dbCfg.Database)
	if err := confirmOrYes(cmd, prompt); err != nil {
		return err
	}

	slog.Info("Applying database migrations")
	if err := database.MigrateUp(connString); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	logMigrationVersion(connString)
	return nil
}

func runMigrateDown(cmd *cobra.Command, _ []string) error {
	connString, _, err := migrationConnString(cmd)
	if err != nil {
		return err
	}

	numSteps, err := cmd.Flags().GetUint("num-steps")
	if err != nil {
		return fmt.Errorf("failed to get num-steps flag: %w", err)
	}
	if numSteps > math.MaxInt32 {
		return fmt.Errorf("number of steps exceeds maximum allowed value")
	}

	prompt := "WARNING: This will migrate down ALL steps and may result in complete data loss. Continue?"
	if numSteps > 0 {
		prompt = fmt.Sprintf("WARNING: This will migrate down %d step(s) and may result in data loss. Continue?", numSteps)
	}
	if err := confirmOrYes(cmd, prompt); err != nil {
		return err
	}

	if numSteps == 0 {
		slog.Warn("Migrating down all steps - this will remove all schema!")
	} else {
		slog.Info("Migrating down", "steps", numSteps)
	}
	if err := database.MigrateDown(connString, int(numSteps)); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	logMigrationVersion(connString)
	return nil
}

// confirmOrYes asks for confirmation unless --yes was given.
// Without a terminal on stdin there is nobody to ask, so --yes is required.
func confirmOrYes(cmd *cobra.Command, prompt string) error {
	yes, err := cmd.Flags().GetBool("yes")
	if err != nil {
		return fmt.Errorf("failed to get yes flag: %w", err)
	}
	if yes {
		return nil
	}

	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return fmt.Errorf("stdin is not a terminal: pass --yes to confirm")
	}
	if !confirm(cmd.InOrStdin(), cmd.OutOrStdout(), prompt) {
		slog.Info("Migration cancelled")
		return fmt.Errorf("migration cancelled by user")
	}
	return nil
}

// confirm prints the prompt and reports whether the answer was yes
func confirm(in io.Reader, out io.Writer, prompt string) bool {
	_, _ = fmt.Fprintf(out, "%s (yes/no): ", prompt)
	answer, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && answer == "" {
		return false
	}
	answer = strings.ToLower(strings.TrimSpace(answer))
	return answer == "yes" || answer == "y"
}

func logMigrationVersion(connString string) {
	m, err := database.NewFromConnectionString(connString)
	if err != nil {
		slog.Warn("Unable to get migration version", "error", err)
		return
	}
	defer func() {
		_, _ = m.Close()
	}()

	version, dirty, err := m.Version()
	switch {
	case err != nil:
		slog.Info("Database schema has no applied migrations")
	case dirty:
		slog.Warn("Database is in a dirty state - manual intervention may be required", "version", version)
	default:
		slog.Info("Current migration version", "version", version)
	}
}
