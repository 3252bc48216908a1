package trace

// TraceSummary aggregates statistics from a SimulationTrace.
type TraceSummary struct {
	TotalSteps       int
	TotalChecks      int
	MaxDrift         float64
	FinalDrift       float64
	ClippedSteps     int
	TotalClipped     float64
	DegenerateCells  int
	BreachedChecks   int
	ViolatingChecks  int
	EntropyFirstLast [2]float64 // entropy at the first and last check
}

// Summarize computes aggregate statistics from a SimulationTrace.
// Safe for nil or empty traces (returns zero-value fields).
func Summarize(st *SimulationTrace) *TraceSummary {
	summary := &TraceSummary{}
	if st == nil {
		return summary
	}

	summary.TotalSteps = len(st.Steps) + st.DroppedSteps
	for _, s := range st.Steps {
		if s.RelativeDrift > summary.MaxDrift {
			summary.MaxDrift = s.RelativeDrift
		}
		if s.ClippedCells > 0 {
			summary.ClippedSteps++
		}
		summary.TotalClipped += s.ClippedMagnitude
		summary.DegenerateCells += s.DegenerateCells
	}
	if len(st.Steps) > 0 {
		summary.FinalDrift = st.Steps[len(st.Steps)-1].RelativeDrift
	}

	summary.TotalChecks = len(st.Checks)
	for _, c := range st.Checks {
		if c.GlobalRelativeError > summary.MaxDrift {
			summary.MaxDrift = c.GlobalRelativeError
		}
		if c.Breached {
			summary.BreachedChecks++
		}
		if c.Violations > 0 {
			summary.ViolatingChecks++
		}
	}
	if n := len(st.Checks); n > 0 {
		summary.EntropyFirstLast = [2]float64{st.Checks[0].Entropy, st.Checks[n-1].Entropy}
		if len(st.Steps) == 0 {
			summary.FinalDrift = st.Checks[n-1].GlobalRelativeError
		}
	}

	return summary
}
