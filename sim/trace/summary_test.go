package trace

import "testing"

func TestSummarize_NilTrace_ZeroValues(t *testing.T) {
	// GIVEN no trace
	// WHEN summarized
	summary := Summarize(nil)

	// THEN all fields are zero
	if summary.TotalSteps != 0 || summary.TotalChecks != 0 || summary.MaxDrift != 0 {
		t.Errorf("expected zero summary, got %+v", summary)
	}
}

func TestSummarize_EmptyTrace_ZeroValues(t *testing.T) {
	// GIVEN an empty trace
	st := NewSimulationTrace(TraceConfig{Level: TraceLevelSteps})

	// WHEN summarized
	summary := Summarize(st)

	// THEN all counts are zero
	if summary.TotalSteps != 0 {
		t.Errorf("expected 0 steps, got %d", summary.TotalSteps)
	}
	if summary.ClippedSteps != 0 || summary.TotalClipped != 0 {
		t.Error("expected no clipping")
	}
	if summary.BreachedChecks != 0 || summary.ViolatingChecks != 0 {
		t.Error("expected no breached or violating checks")
	}
}

func TestSummarize_PopulatedTrace_CorrectCounts(t *testing.T) {
	// GIVEN a trace with mixed step records
	st := NewSimulationTrace(TraceConfig{Level: TraceLevelSteps})
	st.RecordStep(StepRecord{Step: 1, RelativeDrift: 1e-15})
	st.RecordStep(StepRecord{Step: 2, RelativeDrift: 3e-15, ClippedCells: 2, ClippedMagnitude: 0.25})
	st.RecordStep(StepRecord{Step: 3, RelativeDrift: 2e-15, DegenerateCells: 1, ClippedCells: 1, ClippedMagnitude: 0.5})

	// WHEN summarized
	summary := Summarize(st)

	// THEN counts and extremes match
	if summary.TotalSteps != 3 {
		t.Errorf("expected 3 steps, got %d", summary.TotalSteps)
	}
	if summary.ClippedSteps != 2 {
		t.Errorf("expected 2 clipped steps, got %d", summary.ClippedSteps)
	}
	if summary.TotalClipped != 0.75 {
		t.Errorf("expected total clipped 0.75, got %g", summary.TotalClipped)
	}
	if summary.DegenerateCells != 1 {
		t.Errorf("expected 1 degenerate cell, got %d", summary.DegenerateCells)
	}
	if summary.MaxDrift != 3e-15 {
		t.Errorf("expected max drift 3e-15, got %g", summary.MaxDrift)
	}
	if summary.FinalDrift != 2e-15 {
		t.Errorf("expected final drift 2e-15, got %g", summary.FinalDrift)
	}
}

func TestSummarize_Checks_CountsBreachesAndEntropy(t *testing.T) {
	// GIVEN a checks-only trace with one breach and one violating check
	st := NewSimulationTrace(TraceConfig{Level: TraceLevelChecks})
	st.RecordCheck(CheckRecord{Step: 10, GlobalRelativeError: 1e-14, Entropy: 4.1})
	st.RecordCheck(CheckRecord{Step: 20, GlobalRelativeError: 1e-6, Breached: true, Entropy: 4.0})
	st.RecordCheck(CheckRecord{Step: 30, GlobalRelativeError: 1e-13, Violations: 3, Entropy: 3.9})

	// WHEN summarized
	summary := Summarize(st)

	// THEN breaches, violations and entropy endpoints are reported
	if summary.TotalChecks != 3 {
		t.Errorf("expected 3 checks, got %d", summary.TotalChecks)
	}
	if summary.BreachedChecks != 1 {
		t.Errorf("expected 1 breached check, got %d", summary.BreachedChecks)
	}
	if summary.ViolatingChecks != 1 {
		t.Errorf("expected 1 violating check, got %d", summary.ViolatingChecks)
	}
	if summary.MaxDrift != 1e-6 {
		t.Errorf("expected max drift 1e-6, got %g", summary.MaxDrift)
	}
	if summary.FinalDrift != 1e-13 {
		t.Errorf("expected final drift from last check, got %g", summary.FinalDrift)
	}
	if summary.EntropyFirstLast != [2]float64{4.1, 3.9} {
		t.Errorf("unexpected entropy endpoints %v", summary.EntropyFirstLast)
	}
}
