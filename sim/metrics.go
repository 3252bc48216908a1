// Summarizes a finished (or paused) run for the final report: energy drift,
// projection diagnostics, spatial pattern and oscillation modes.

package sim

import (
	"fmt"
	"io"
	"strings"
	"time"
)

// Metrics aggregates what a run did for final reporting. It is a plain value
// so reports can be built, compared and printed without a live Simulation.
type Metrics struct {
	RunID         string        `yaml:"run_id"`
	Size          Size          `yaml:"size"`
	Steps         int64         `yaml:"steps"`
	Time          float64       `yaml:"time"`
	Elapsed       time.Duration `yaml:"elapsed"` // wall clock, zero when unknown
	InitialEnergy float64       `yaml:"initial_energy"`
	TotalEnergy   float64       `yaml:"total_energy"`
	RelativeDrift float64       `yaml:"relative_drift"`

	Diagnostics Diagnostics `yaml:"diagnostics"`

	Entropy             float64 `yaml:"entropy"`
	DensityMean         float64 `yaml:"density_mean"`
	DensityStd          float64 `yaml:"density_std"`
	VoidFraction        float64 `yaml:"void_fraction"`
	WallFraction        float64 `yaml:"wall_fraction"`
	FilamentFraction    float64 `yaml:"filament_fraction"`
	NeighborCorrelation float64 `yaml:"neighbor_correlation"`
	ClusteringDimension float64 `yaml:"clustering_dimension"`

	DominantFractions [Vars]float64 `yaml:"dominant_fractions"`

	ModeFrequencies []float64 `yaml:"mode_frequencies"` // ascending
}

// Metrics collects the report for the committed state.
func (s *Simulation) Metrics() (Metrics, error) {
	modes, err := s.Modes()
	if err != nil {
		return Metrics{}, err
	}
	pm := s.PatternMetrics()
	ref := s.Reference()

	s.mu.RLock()
	m := Metrics{
		RunID:         s.runID,
		Size:          s.lattice.Size(),
		Steps:         s.step,
		Time:          s.time,
		InitialEnergy: ref.Total,
		Diagnostics:   s.diag,
	}
	s.mu.RUnlock()

	m.TotalEnergy = pm.TotalEnergy
	m.RelativeDrift = relativeError(pm.TotalEnergy, ref.Total)
	m.Entropy = pm.Entropy
	m.DensityMean = pm.DensityMean
	m.DensityStd = pm.DensityStd
	m.VoidFraction = pm.VoidFraction
	m.WallFraction = pm.WallFraction
	m.FilamentFraction = pm.FilamentFraction
	m.NeighborCorrelation = pm.NeighborCorrelation
	m.ClusteringDimension = pm.ClusteringDimension
	m.DominantFractions = pm.DominantFractions
	m.ModeFrequencies = make([]float64, len(modes))
	for i, md := range modes {
		m.ModeFrequencies[i] = md.Frequency
	}
	return m, nil
}

// Print writes the human-readable report.
func (m *Metrics) Print(w io.Writer) {
	fmt.Fprintln(w, "=== Simulation Metrics ===")
	fmt.Fprintf(w, "Run ID               : %s\n", m.RunID)
	fmt.Fprintf(w, "Lattice              : %dx%dx%d (%d cells)\n", m.Size.X, m.Size.Y, m.Size.Z, m.Size.Cells())
	fmt.Fprintf(w, "Steps                : %d\n", m.Steps)
	fmt.Fprintf(w, "Simulated Time       : %.6f\n", m.Time)
	if m.Elapsed > 0 {
		fmt.Fprintf(w, "Wall Time            : %s\n", m.Elapsed.Round(time.Millisecond))
	}
	fmt.Fprintf(w, "Total Energy         : %.6f (initial %.6f)\n", m.TotalEnergy, m.InitialEnergy)
	fmt.Fprintf(w, "Relative Drift       : %.3e\n", m.RelativeDrift)

	d := m.Diagnostics
	fmt.Fprintf(w, "Clipped Cells        : %d (%.3e energy, %d breaching steps)\n", d.ClippedCells, d.ClippedMagnitude, d.ClipBreaches)
	fmt.Fprintf(w, "Degenerate Cells     : %d\n", d.DegenerateCells)
	fmt.Fprintf(w, "Conservation Checks  : %d (%d breaches, max drift %.3e)\n", d.Checks, d.ConservationBreaches, d.MaxRelativeDrift)

	fmt.Fprintln(w)
	fmt.Fprintln(w, "=== Pattern ===")
	fmt.Fprintf(w, "Entropy              : %.6f nats\n", m.Entropy)
	fmt.Fprintf(w, "Density              : mean %.6f, std %.6f\n", m.DensityMean, m.DensityStd)
	fmt.Fprintf(w, "Regions              : void %.3f, wall %.3f, filament %.3f\n", m.VoidFraction, m.WallFraction, m.FilamentFraction)
	fmt.Fprintf(w, "Neighbor Correlation : %.3f\n", m.NeighborCorrelation)
	fmt.Fprintf(w, "Clustering Dimension : %.3f\n", m.ClusteringDimension)
	dom := make([]string, Vars)
	for v, f := range m.DominantFractions {
		dom[v] = fmt.Sprintf("v%d %.3f", v, f)
	}
	fmt.Fprintf(w, "Dominant Variable    : %s\n", strings.Join(dom, ", "))

	freqs := make([]string, len(m.ModeFrequencies))
	for i, f := range m.ModeFrequencies {
		freqs[i] = fmt.Sprintf("%.6f", f)
	}
	if len(freqs) == 0 {
		freqs = []string{"none"}
	}
	fmt.Fprintf(w, "Oscillation Modes    : %s\n", strings.Join(freqs, ", "))
}
