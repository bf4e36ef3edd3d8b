package cli

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/emiliopalmerini/mvariant/internal/adapters/memory"
	"github.com/emiliopalmerini/mvariant/internal/assigner"
	"github.com/emiliopalmerini/mvariant/internal/assignment"
	"github.com/emiliopalmerini/mvariant/internal/domain"
	"github.com/emiliopalmerini/mvariant/internal/experiment"
	"github.com/emiliopalmerini/mvariant/internal/util"
)

var simulateCmd = &cobra.Command{
	Use:   "simulate <experiment>",
	Short: "Assign synthetic users and print the observed distribution",
	Long: `Assign fresh synthetic users to an experiment and compare the observed
shares with the declared weights. Assignments are kept in memory and never
reach the document store.

Examples:
  mvariant simulate pricing_v2 --users 100000
  mvariant simulate pricing_v2 --users 1000 --seed 7`,
	Args: cobra.ExactArgs(1),
	RunE: runSimulate,
}

var (
	simulateUsers int
	simulateSeed  uint64
)

func init() {
	simulateCmd.Flags().IntVar(&simulateUsers, "users", 10000, "Number of synthetic users")
	simulateCmd.Flags().Uint64Var(&simulateSeed, "seed", 0, "Seed for reproducible draws (0 picks a random seed)")
}

func runSimulate(cmd *cobra.Command, args []string) error {
	if simulateUsers <= 0 {
		return fmt.Errorf("--users must be positive")
	}

	return withApp(cmd, func(ctx context.Context, app *AppContext) error {
		experiments, err := app.Service.Experiments(ctx)
		if err != nil {
			return err
		}
		exp, ok := domain.FindExperiment(experiments, args[0])
		if !ok || !exp.Assignable() {
			return fmt.Errorf("experiment %q is not running", args[0])
		}

		pick := assigner.New(nil)
		if simulateSeed != 0 {
			pick = assigner.NewSeeded(simulateSeed)
		}
		store := assignment.NewStore(memory.NewAssignmentRepository(), assignment.Options{CacheCapacity: uint64(simulateUsers)})
		svc := experiment.NewService(app.Catalog, store, pick, experiment.Options{})

		counts := make(map[string]int64, len(exp.Variants))
		for i := 0; i < simulateUsers; i++ {
			v, err := svc.GetVariant(ctx, exp.ID, uuid.NewString())
			if err != nil {
				return err
			}
			if v != nil {
				counts[v.ID]++
			}
		}

		total := exp.TotalWeight()
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "VARIANT\tWEIGHT\tEXPECTED\tOBSERVED\tUSERS")
		for _, v := range exp.Variants {
			expected := fmt.Sprintf("%.1f%%", v.Weight*100/total)
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\n", v.ID, util.FormatWeight(v.Weight), expected, util.FormatPercent(counts[v.ID], int64(simulateUsers)), counts[v.ID])
		}
		return w.Flush()
	})
}
