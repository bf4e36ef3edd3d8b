package cli

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/emiliopalmerini/mvariant/internal/migrate"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate [version]",
	Short: "Run database migrations",
	Long: `Run database migrations.

Without arguments, runs all pending migrations (up).
With a version number, migrates to that specific version (up or down as needed).

Examples:
  mvariant migrate      # Run all pending migrations
  mvariant migrate 1    # Migrate to version 1
  mvariant migrate 0    # Rollback all migrations`,
	Args: cobra.MaximumNArgs(1),
	RunE: runMigrate,
}

func runMigrate(cmd *cobra.Command, args []string) error {
	target := -1
	if len(args) == 1 {
		v, err := strconv.Atoi(args[0])
		if err != nil || v < 0 {
			return fmt.Errorf("invalid version number: %s", args[0])
		}
		target = v
	}

	return withApp(cmd, func(ctx context.Context, app *AppContext) error {
		if app.DB == nil {
			return errors.New("migrations need a database, MVARIANT_SOURCE is memory")
		}

		runner := migrate.NewRunner(app.DB.DB, app.Logger)
		if err := runner.EnsureMigrationsTable(ctx); err != nil {
			return fmt.Errorf("failed to create migrations table: %w", err)
		}
		current, _, err := runner.CurrentVersion(ctx)
		if err != nil {
			return fmt.Errorf("failed to get current version: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Current version: %d\n", current)

		switch {
		case target < 0:
			n, err := runner.Up(ctx, 0)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d migrations applied\n", n)
		case target > current:
			if _, err := runner.Up(ctx, target); err != nil {
				return err
			}
		case target < current:
			if err := runner.DownTo(ctx, target); err != nil {
				return err
			}
		default:
			fmt.Fprintln(cmd.OutOrStdout(), "Already at target version")
			return nil
		}

		version, _, err := runner.CurrentVersion(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Migrated to version %d\n", version)
		return nil
	})
}
