package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/emiliopalmerini/mvariant/internal/domain"
	"github.com/emiliopalmerini/mvariant/internal/util"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Fetch and publish remote configuration",
}

var configFetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Fetch, activate and validate the remote config",
	RunE:  runConfigFetch,
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Publish a config value",
	Long: `Publish a value to the config source. The value is parsed as JSON and falls
back to a plain string.

Examples:
  mvariant config set max_books_limit 50
  mvariant config set banner '"Spring sale"'`,
	Args: cobra.ExactArgs(2),
	RunE: runConfigSet,
}

var configWatchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Refetch whenever the config source announces a change",
	RunE:  runConfigWatch,
}

func init() {
	configCmd.AddCommand(configFetchCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configWatchCmd)
}

type publisher interface {
	Publish(ctx context.Context, key string, v domain.Value) error
}

type watcher interface {
	Watch(ctx context.Context, onChange func(key string)) error
}

func runConfigFetch(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(ctx context.Context, app *AppContext) error {
		snap, err := app.Fetcher.FetchAndActivate(ctx)
		status := app.Fetcher.Status()
		out := cmd.OutOrStdout()

		fmt.Fprintf(out, "Status:   %s\n", status.LastFetchStatus)
		fmt.Fprintf(out, "Fetched:  %s\n", util.FormatDateTime(status.LastFetchTime))
		fmt.Fprintf(out, "Attempts: %d\n", status.Attempts)
		if err != nil {
			return err
		}
		printSnapshot(cmd, snap)
		return nil
	})
}

func printSnapshot(cmd *cobra.Command, snap *domain.ConfigSnapshot) {
	keys := make([]string, 0, len(snap.Values))
	for k := range snap.Values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(cmd.OutOrStdout(), "  %s = %s\n", k, snap.Values[k])
	}
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(ctx context.Context, app *AppContext) error {
		pub, ok := app.Source.(publisher)
		if !ok {
			return errors.New("config source does not support publishing")
		}
		v := domain.ParseValue(args[1])
		if err := pub.Publish(ctx, args[0], v); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Published %s = %s (%s)\n", args[0], v, v.Kind())
		return nil
	})
}

func runConfigWatch(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(ctx context.Context, app *AppContext) error {
		w, ok := app.Source.(watcher)
		if !ok {
			return errors.New("config source does not announce changes, use MVARIANT_SOURCE=redis")
		}

		ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
		defer stop()

		changes := make(chan string, 16)
		err := w.Watch(ctx, func(key string) {
			select {
			case changes <- key:
			default:
			}
		})
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Watching for config changes, Ctrl-C to stop")

		for {
			select {
			case <-ctx.Done():
				return nil
			case key := <-changes:
				app.Fetcher.Expire()
				app.Catalog.Invalidate()
				snap, err := app.Fetcher.FetchAndActivate(ctx)
				if err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "refetch after %s change failed: %v\n", key, err)
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Changed %s, %d keys active\n", key, len(snap.Values))
			}
		}
	})
}
