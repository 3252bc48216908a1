package sim

import (
	"errors"
	"fmt"
)

// Error kinds returned by the core. Callers match them with errors.Is.
var (
	// ErrInvalidMatrix marks a construction-time validation failure: a
	// redistribution matrix that is not antisymmetric, or an inconsistent
	// coupling field or lattice. No Simulation is created.
	ErrInvalidMatrix = errors.New("sim: invalid matrix")

	// ErrInvalidConstraint marks an inconsistent ConstraintSet (ratio or
	// percentage sums off by more than tolerance). It wraps ErrInvalidMatrix.
	ErrInvalidConstraint = fmt.Errorf("%w: invalid constraint", ErrInvalidMatrix)

	// ErrDegenerateProjection marks an unsatisfiable constraint target, e.g.
	// rescaling a zero-energy variable to a nonzero total. Reported only;
	// the affected variable is left unscaled.
	ErrDegenerateProjection = errors.New("sim: degenerate projection")

	// ErrNonFiniteState marks a NaN or Inf in a cell. Fatal to the step that
	// produced it; the prior state is preserved.
	ErrNonFiniteState = errors.New("sim: non-finite state")

	// ErrUnstableTimestep is returned before a Laplacian transport sweep
	// whose timestep violates dt < dx²/(2κ).
	ErrUnstableTimestep = errors.New("sim: unstable timestep")

	// ErrSeriesDiverged is returned when the truncated exponential series
	// does not converge within its term limit.
	ErrSeriesDiverged = errors.New("sim: exponential series did not converge")

	// ErrTerminated is returned by operations on a terminated simulation.
	ErrTerminated = errors.New("sim: simulation terminated")

	// ErrSimulationBusy is returned when a second writer tries to step a
	// simulation that is already being advanced.
	ErrSimulationBusy = errors.New("sim: simulation busy")
)

// StepError wraps a step failure with the simulation position at which it
// was attempted.
type StepError struct {
	Step int64
	Time float64
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %d (t=%g): %v", e.Step, e.Time, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// DegenerateProjectionError names the variable whose constraint could not be
// applied.
type DegenerateProjectionError struct {
	Variable int
	Target   float64
	Total    float64
}

func (e *DegenerateProjectionError) Error() string {
	return fmt.Sprintf("variable %d: cannot rescale total %g to %g", e.Variable, e.Total, e.Target)
}

func (e *DegenerateProjectionError) Unwrap() error {
	return ErrDegenerateProjection
}
