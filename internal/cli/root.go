package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/emiliopalmerini/mvariant/internal/infrastructure/config"
)

var rootCmd = &cobra.Command{
	Use:   "mvariant",
	Short: "Experiment assignment and remote config engine",
	Long: `mvariant assigns users to weighted experiment variants exactly once and
serves remote configuration with a freshness gate and validated snapshots.

The CLI is support tooling: inspect and override assignments, fetch config,
manage the experiment catalog and simulate variant distributions.

Configuration is read from MVARIANT_* environment variables.`,
	SilenceUsage: true,
}

// newApp builds the AppContext for a command. Tests replace it.
var newApp = func(ctx context.Context) (*AppContext, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return NewAppContext(ctx, cfg)
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(variantCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(catalogCmd)
	rootCmd.AddCommand(simulateCmd)
	rootCmd.AddCommand(migrateCmd)
}

// withApp runs fn with a fresh AppContext and closes it afterwards.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, app *AppContext) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	app, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err := app.Close(context.WithoutCancel(ctx)); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "warning: %v\n", err)
		}
	}()

	return fn(ctx, app)
}
