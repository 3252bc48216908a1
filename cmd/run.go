package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/entropic-void/voidsim/sim"
	"github.com/entropic-void/voidsim/sim/store"
)

type runFlags struct {
	configPath      string
	seed            int64
	dt              float64
	tEnd            float64
	traceLevel      string
	checkpointEvery int64
	reportOut       string
}

func newRunCmd(g *globalFlags) *cobra.Command {
	f := &runFlags{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a simulation from a YAML config (or the built-in default)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := f.config(cmd)
			if err != nil {
				return err
			}
			st, err := g.openStore()
			if err != nil {
				return err
			}
			if st != nil {
				defer st.Close()
			}

			s, err := cfg.Build(sim.WithWorkers(g.workers))
			if err != nil {
				return err
			}
			logrus.Infof("Starting run %s: t_end=%g, dt=%g", s.RunID(), cfg.TEnd, cfg.Dt)
			return evolveAndReport(cmd, s, st, cfg.TEnd, cfg.Dt, f.checkpointEvery, f.reportOut)
		},
	}

	cmd.Flags().StringVar(&f.configPath, "config", "", "Path to a YAML run config (default: built-in)")
	cmd.Flags().Int64Var(&f.seed, "seed", 42, "Seed for initial-condition noise (overrides the config)")
	cmd.Flags().Float64Var(&f.dt, "dt", 0.01, "Timestep (overrides the config)")
	cmd.Flags().Float64Var(&f.tEnd, "t-end", 1, "Simulated end time (overrides the config)")
	cmd.Flags().StringVar(&f.traceLevel, "trace-level", "checks", "Trace verbosity (none, checks, steps; overrides the config)")
	cmd.Flags().Int64Var(&f.checkpointEvery, "checkpoint-every", 0, "Save a snapshot every N steps (0 = only at the end)")
	cmd.Flags().StringVar(&f.reportOut, "report-out", "", "Also write the final report as YAML to this path")
	return cmd
}

// config loads the config file and applies flags the user set explicitly.
func (f *runFlags) config(cmd *cobra.Command) (*sim.Config, error) {
	cfg := sim.DefaultConfig()
	if f.configPath != "" {
		loaded, err := sim.LoadConfig(f.configPath)
		if err != nil {
			return nil, err
		}
		cfg = *loaded
	}
	if cmd.Flags().Changed("seed") {
		cfg.Seed = f.seed
	}
	if cmd.Flags().Changed("dt") {
		cfg.Dt = f.dt
	}
	if cmd.Flags().Changed("t-end") {
		cfg.TEnd = f.tEnd
	}
	if cmd.Flags().Changed("trace-level") {
		cfg.TraceLevel = f.traceLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// evolveAndReport runs s to tEnd, checkpointing into st (if any) every
// `every` steps and once at the end, then prints the report.
func evolveAndReport(cmd *cobra.Command, s *sim.Simulation, st store.SnapshotStore, tEnd, dt float64, every int64, reportOut string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	var saveErr error
	observer := func(o sim.Observation) bool {
		if st == nil || every <= 0 || o.Step%every != 0 {
			return true
		}
		if saveErr = checkpoint(ctx, s, st); saveErr != nil {
			return false
		}
		return true
	}

	start := time.Now()
	res, err := s.EvolveUntil(tEnd, dt, observer)
	if err != nil {
		return fmt.Errorf("run %s: %w", s.RunID(), err)
	}
	if saveErr != nil {
		return fmt.Errorf("run %s: checkpoint: %w", s.RunID(), saveErr)
	}
	if st != nil {
		if err := checkpoint(ctx, s, st); err != nil {
			return fmt.Errorf("run %s: final checkpoint: %w", s.RunID(), err)
		}
	}
	logrus.Infof("Run %s advanced %d steps to t=%g", s.RunID(), res.Steps, res.Time)

	m, err := s.Metrics()
	if err != nil {
		return err
	}
	m.Elapsed = time.Since(start)
	s.Terminate()
	m.Print(cmd.OutOrStdout())
	if reportOut != "" {
		if err := writeReport(reportOut, &m); err != nil {
			return err
		}
	}
	logrus.Info("Simulation complete.")
	return nil
}

func checkpoint(ctx context.Context, s *sim.Simulation, st store.SnapshotStore) error {
	snap, err := s.Checkpoint()
	if err != nil {
		return err
	}
	if err := st.Save(ctx, snap); err != nil {
		return err
	}
	logrus.Debugf("[step %07d] snapshot saved", snap.Step)
	return nil
}
