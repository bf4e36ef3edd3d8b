package cli

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/emiliopalmerini/mvariant/internal/domain"
	"github.com/emiliopalmerini/mvariant/internal/util"
)

var variantCmd = &cobra.Command{
	Use:   "variant",
	Short: "Inspect and override user assignments",
}

var variantGetCmd = &cobra.Command{
	Use:   "get <experiment> <user>",
	Short: "Show the variant of a user, assigning one if needed",
	Long: `Show the variant a user is assigned to. A user without an assignment is
assigned now, exactly as the application would on first access.

Examples:
  mvariant variant get pricing_v2 user-42`,
	Args: cobra.ExactArgs(2),
	RunE: runVariantGet,
}

var variantForceCmd = &cobra.Command{
	Use:   "force <experiment> <user> <variant>",
	Short: "Override the assignment of a user (QA)",
	Args:  cobra.ExactArgs(3),
	RunE:  runVariantForce,
}

var variantResetCmd = &cobra.Command{
	Use:   "reset <experiment> <user>",
	Short: "Forget the assignment of a user",
	Long:  `Remove the assignment from memory and from the document store. The next access assigns again.`,
	Args:  cobra.ExactArgs(2),
	RunE:  runVariantReset,
}

var variantStatsCmd = &cobra.Command{
	Use:   "stats <experiment>",
	Short: "Show persisted assignments per variant",
	Args:  cobra.ExactArgs(1),
	RunE:  runVariantStats,
}

func init() {
	variantCmd.AddCommand(variantGetCmd)
	variantCmd.AddCommand(variantForceCmd)
	variantCmd.AddCommand(variantResetCmd)
	variantCmd.AddCommand(variantStatsCmd)
}

func runVariantGet(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(ctx context.Context, app *AppContext) error {
		v, err := app.Service.GetVariant(ctx, args[0], args[1])
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if v == nil {
			fmt.Fprintf(out, "Experiment %s is not running for %s\n", args[0], args[1])
			return nil
		}

		fmt.Fprintf(out, "Variant: %s (%s)\n", v.ID, v.Name)
		keys := make([]string, 0, len(v.Config))
		for k := range v.Config {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(out, "  %s = %s\n", k, v.Config[k])
		}
		return nil
	})
}

func runVariantForce(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(ctx context.Context, app *AppContext) error {
		if err := app.Service.ForceAssignment(ctx, args[0], args[1], args[2]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Assigned %s to variant %s of %s\n", args[1], args[2], args[0])
		return nil
	})
}

func runVariantReset(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(ctx context.Context, app *AppContext) error {
		if err := app.Service.Reset(ctx, args[0], args[1]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Reset assignment of %s in %s\n", args[1], args[0])
		return nil
	})
}

type variantCounter interface {
	CountByVariant(ctx context.Context, experimentID string) (map[string]int64, error)
}

func runVariantStats(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(ctx context.Context, app *AppContext) error {
		counter, ok := app.Assignments.(variantCounter)
		if !ok {
			return errors.New("assignment repository cannot count variants")
		}

		experiments, err := app.Service.Experiments(ctx)
		if err != nil {
			return err
		}
		exp, found := domain.FindExperiment(experiments, args[0])
		if !found {
			return fmt.Errorf("experiment %q not found", args[0])
		}

		counts, err := counter.CountByVariant(ctx, exp.ID)
		if err != nil {
			return err
		}
		var total int64
		for _, n := range counts {
			total += n
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "VARIANT\tWEIGHT\tUSERS\tSHARE")
		for _, v := range exp.Variants {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", v.ID, util.FormatWeight(v.Weight), util.FormatNumber(counts[v.ID]), util.FormatPercent(counts[v.ID], total))
		}
		return w.Flush()
	})
}
