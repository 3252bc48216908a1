package cmd

import (
	"cmp"
	"fmt"
	"io"
	"math"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/entropic-void/voidsim/sim"
)

// dominantEntries is how many components of each mode vector are listed.
const dominantEntries = 3

func newModesCmd(g *globalFlags) *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "modes",
		Short: "List the oscillation modes of the configured redistribution matrix",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := sim.DefaultConfig()
			if configPath != "" {
				loaded, err := sim.LoadConfig(configPath)
				if err != nil {
					return err
				}
				cfg = *loaded
			}
			r, err := cfg.BuildMatrix()
			if err != nil {
				return err
			}
			e, err := sim.NewRedistributionEngine(r, cfg.Redistribution.Method)
			if err != nil {
				return err
			}
			modes, err := e.ExtractModes()
			if err != nil {
				return err
			}
			printModes(cmd.OutOrStdout(), r, modes)
			return nil
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "Path to a YAML run config (default: built-in)")
	return cmd
}

func printModes(w io.Writer, r *sim.RedistributionMatrix, modes []sim.Mode) {
	fmt.Fprintln(w, "=== Redistribution Modes ===")
	fmt.Fprintf(w, "Matrix Norm          : %.6f\n", r.Norm())
	fmt.Fprintf(w, "Conserves Cell Total : %t\n", r.ConservesTotal(sim.DefaultTolerance))
	if len(modes) == 0 {
		fmt.Fprintln(w, "No oscillation modes (R = 0)")
		return
	}
	for i, m := range modes {
		fmt.Fprintf(w, "Mode %-2d  ω=%.6f  T=%.6f  %s\n", i, m.Frequency, 2*math.Pi/m.Frequency, dominant(m.Vector))
	}
}

// dominant names the largest components of a mode vector.
func dominant(v [sim.N]float64) string {
	idx := make([]int, sim.N)
	for i := range idx {
		idx[i] = i
	}
	slices.SortStableFunc(idx, func(a, b int) int {
		return cmp.Compare(math.Abs(v[b]), math.Abs(v[a]))
	})
	parts := make([]string, 0, dominantEntries)
	for _, i := range idx[:dominantEntries] {
		if v[i] == 0 {
			break
		}
		parts = append(parts, fmt.Sprintf("%s/%s %+.3f", sim.VariableNames[i/sim.Forces], sim.ForceNames[i%sim.Forces], v[i]))
	}
	return strings.Join(parts, ", ")
}
