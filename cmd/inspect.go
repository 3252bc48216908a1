package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/entropic-void/voidsim/sim"
	"github.com/entropic-void/voidsim/sim/store"
)

func newInspectCmd(g *globalFlags) *cobra.Command {
	var (
		runID string
		step  int64
	)
	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "List a run's snapshots, or report on one of them",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := g.requireStore()
			if err != nil {
				return err
			}
			defer st.Close()

			ctx := cmd.Context()
			if runID == "" {
				ids, err := st.Runs(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "=== Runs ===")
				for _, id := range ids {
					fmt.Fprintln(cmd.OutOrStdout(), id)
				}
				return nil
			}
			if !cmd.Flags().Changed("step") {
				entries, err := st.List(ctx, runID)
				if err != nil {
					return err
				}
				if len(entries) == 0 {
					return fmt.Errorf("run %s: %w", runID, store.ErrNotFound)
				}
				printEntries(cmd.OutOrStdout(), runID, entries)
				return nil
			}

			snap, err := st.Load(ctx, runID, step)
			if err != nil {
				return err
			}
			s, err := sim.Restore(snap, sim.WithWorkers(g.workers))
			if err != nil {
				return err
			}
			m, err := s.Metrics()
			if err != nil {
				return err
			}
			m.Print(cmd.OutOrStdout())
			return nil
		},
	}
	cmd.Flags().StringVar(&runID, "run-id", "", "Run to inspect (default: list runs)")
	cmd.Flags().Int64Var(&step, "step", 0, "Report on the snapshot at this step instead of listing")
	return cmd
}

func printEntries(w io.Writer, runID string, entries []store.Entry) {
	fmt.Fprintf(w, "=== Snapshots of %s ===\n", runID)
	fmt.Fprintf(w, "%-12s %-14s %s\n", "STEP", "TIME", "TOTAL ENERGY")
	for _, e := range entries {
		fmt.Fprintf(w, "%-12d %-14.6f %.9g\n", e.Step, e.Time, e.TotalEnergy)
	}
}
