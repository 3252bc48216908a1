// Package trace provides diagnostics-trace recording for simulation runs.
// This package has no dependencies on sim/; it stores plain data types.
package trace

// StepRecord captures what one committed step did to the lattice.
type StepRecord struct {
	Step        int64
	Time        float64
	TotalEnergy float64
	// RelativeDrift is |E(t) - E(0)| / E(0) after the step.
	RelativeDrift    float64
	ClippedCells     int
	ClippedMagnitude float64
	DegenerateCells  int
}

// CheckRecord captures a periodic conservation check.
type CheckRecord struct {
	Step                int64
	Time                float64
	GlobalRelativeError float64
	MaxVariableError    float64
	MaxForceError       float64
	Violations          int
	Entropy             float64
	// Breached is true when GlobalRelativeError exceeded the configured tolerance.
	Breached bool
}
