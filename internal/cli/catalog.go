package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/emiliopalmerini/mvariant/internal/domain"
	"github.com/emiliopalmerini/mvariant/internal/util"
)

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Manage the experiment catalog",
}

var catalogListCmd = &cobra.Command{
	Use:   "list",
	Short: "List experiments and their variants",
	RunE:  runCatalogList,
}

var catalogImportCmd = &cobra.Command{
	Use:   "import <file.json>",
	Short: "Import experiments into the document store",
	Long: `Import a JSON array of experiments into the document store. With --publish
the same array is also published under the catalog config key.

Examples:
  mvariant catalog import experiments.json
  mvariant catalog import experiments.json --publish`,
	Args: cobra.ExactArgs(1),
	RunE: runCatalogImport,
}

var catalogRefreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Reload the catalog and report which source served it",
	RunE:  runCatalogRefresh,
}

var catalogPublish bool

func init() {
	catalogImportCmd.Flags().BoolVar(&catalogPublish, "publish", false, "Also publish the catalog to the config source")

	catalogCmd.AddCommand(catalogListCmd)
	catalogCmd.AddCommand(catalogImportCmd)
	catalogCmd.AddCommand(catalogRefreshCmd)
}

func runCatalogList(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(ctx context.Context, app *AppContext) error {
		experiments, err := app.Service.Experiments(ctx)
		if err != nil {
			return err
		}
		if len(experiments) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No experiments found")
			return nil
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tSTATUS\tVARIANTS")
		for _, e := range experiments {
			status := string(e.Status)
			if e.IsActive() && !e.Assignable() {
				status += " (no weight)"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\n", e.ID, status, describeVariants(e.Variants))
		}
		return w.Flush()
	})
}

func describeVariants(variants []domain.Variant) string {
	parts := make([]string, len(variants))
	for i, v := range variants {
		parts[i] = v.ID + ":" + util.FormatWeight(v.Weight)
	}
	return strings.Join(parts, " ")
}

func runCatalogImport(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read catalog file: %w", err)
	}
	experiments, err := domain.DecodeCatalog(data)
	if err != nil {
		return err
	}

	return withApp(cmd, func(ctx context.Context, app *AppContext) error {
		for i := range experiments {
			if err := app.Experiments.Upsert(ctx, &experiments[i]); err != nil {
				return fmt.Errorf("failed to import %s: %w", experiments[i].ID, err)
			}
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Imported %d experiments\n", len(experiments))

		if catalogPublish {
			pub, ok := app.Source.(publisher)
			if !ok {
				return errors.New("config source does not support publishing")
			}
			if err := pub.Publish(ctx, app.Config.Catalog.Key, domain.StringValue(string(data))); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Published catalog under %q\n", app.Config.Catalog.Key)
		}
		app.Catalog.Invalidate()
		return nil
	})
}

func runCatalogRefresh(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(ctx context.Context, app *AppContext) error {
		app.Catalog.Invalidate()
		experiments, source, err := app.Loader.Load(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Loaded %d experiments from %s\n", len(experiments), source)
		return nil
	})
}
