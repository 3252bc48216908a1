package cmd

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/entropic-void/voidsim/sim"
	"github.com/entropic-void/voidsim/sim/trace"
)

type resumeFlags struct {
	runID           string
	step            int64
	dt              float64
	tEnd            float64
	traceLevel      string
	checkpointEvery int64
	reportOut       string
}

func newResumeCmd(g *globalFlags) *cobra.Command {
	f := &resumeFlags{}
	cmd := &cobra.Command{
		Use:   "resume",
		Short: "Continue a run from its latest (or a chosen) snapshot",
		RunE: func(cmd *cobra.Command, args []string) error {
			if f.runID == "" {
				return fmt.Errorf("--run-id is required")
			}
			if !trace.IsValidTraceLevel(f.traceLevel) {
				return fmt.Errorf("unknown trace level %q; valid: none, checks, steps", f.traceLevel)
			}
			st, err := g.requireStore()
			if err != nil {
				return err
			}
			defer st.Close()

			ctx := cmd.Context()
			var snap *sim.Snapshot
			if cmd.Flags().Changed("step") {
				snap, err = st.Load(ctx, f.runID, f.step)
			} else {
				snap, err = st.Latest(ctx, f.runID)
			}
			if err != nil {
				return fmt.Errorf("loading run %s: %w", f.runID, err)
			}
			if f.tEnd <= snap.Time {
				return fmt.Errorf("--t-end %g must be after the snapshot time %g", f.tEnd, snap.Time)
			}

			opts := []sim.Option{sim.WithWorkers(g.workers)}
			if lvl := trace.TraceLevel(f.traceLevel); lvl != "" && lvl != trace.TraceLevelNone {
				opts = append(opts, sim.WithTrace(trace.NewSimulationTrace(trace.TraceConfig{Level: lvl})))
			}
			s, err := sim.Restore(snap, opts...)
			if err != nil {
				return err
			}
			logrus.Infof("Resuming run %s at step %d (t=%g) until t=%g", s.RunID(), s.StepCount(), s.Time(), f.tEnd)
			return evolveAndReport(cmd, s, st, f.tEnd, f.dt, f.checkpointEvery, f.reportOut)
		},
	}

	cmd.Flags().StringVar(&f.runID, "run-id", "", "Run to resume")
	cmd.Flags().Int64Var(&f.step, "step", 0, "Snapshot step to resume from (default: latest)")
	cmd.Flags().Float64Var(&f.dt, "dt", 0.01, "Timestep")
	cmd.Flags().Float64Var(&f.tEnd, "t-end", 0, "Simulated end time (absolute)")
	cmd.Flags().StringVar(&f.traceLevel, "trace-level", "checks", "Trace verbosity (none, checks, steps)")
	cmd.Flags().Int64Var(&f.checkpointEvery, "checkpoint-every", 0, "Save a snapshot every N steps (0 = only at the end)")
	cmd.Flags().StringVar(&f.reportOut, "report-out", "", "Also write the final report as YAML to this path")
	return cmd
}
