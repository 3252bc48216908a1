// sim/simulator.go
package sim

import (
	"fmt"
	"math"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/entropic-void/voidsim/sim/trace"
)

// State is the lifecycle position of a Simulation.
type State int

const (
	StateCreated State = iota
	StateRunning
	StateCheckpointed
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateRunning:
		return "running"
	case StateCheckpointed:
		return "checkpointed"
	case StateTerminated:
		return "terminated"
	}
	return "unknown"
}

// Diagnostics counts what the projector and the periodic checks observed.
// None of these are errors.
type Diagnostics struct {
	ClippedCells         int64
	ClippedMagnitude     float64
	ClipBreaches         int64 // steps whose clipping exceeded the clip tolerance
	DegenerateCells      int64
	Checks               int64
	ConservationBreaches int64
	MaxRelativeDrift     float64
	Substeps             int64 // split pieces run across all committed steps
}

// Simulation owns the lattice, the redistribution matrix, the coupling field
// and the constraints, and advances them with Step. Only one writer (Step or
// EvolveUntil) may run at a time; read accessors are safe to call
// concurrently and always see the last committed state.
type Simulation struct {
	opts options

	matrix      *RedistributionMatrix
	coupling    CouplingField
	constraints ConstraintSet
	redist      *RedistributionEngine
	transport   *TransportEngine
	identity    bool

	// writing is held by the single active writer for the whole step or run.
	writing atomic.Bool

	mu      sync.RWMutex
	lattice *Lattice
	state   State
	time    float64
	step    int64
	ref     Reference
	diag    Diagnostics
	runID   string

	// scratch and next are owned by the writer.
	scratch *Lattice
	next    *Lattice
}

// NewSimulation validates every input and returns a Simulation in the
// Created state. The lattice is copied.
func NewSimulation(l *Lattice, r *RedistributionMatrix, cf CouplingField, cs ConstraintSet, opts ...Option) (*Simulation, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if err := o.validate(); err != nil {
		return nil, err
	}
	if l == nil {
		return nil, fmt.Errorf("%w: nil lattice", ErrInvalidMatrix)
	}
	if r == nil {
		return nil, fmt.Errorf("%w: nil redistribution matrix", ErrInvalidMatrix)
	}
	if err := checkAntisymmetric(&r.a, DefaultTolerance); err != nil {
		return nil, err
	}
	if err := cs.Validate(DefaultTolerance); err != nil {
		return nil, err
	}
	if err := r.RespectsMask(&cs.Mask); err != nil {
		return nil, err
	}
	if err := l.Validate(o.clipTolerance); err != nil {
		return nil, fmt.Errorf("initial lattice: %w", err)
	}
	redist, err := NewRedistributionEngine(r, o.method)
	if err != nil {
		return nil, err
	}
	tr, err := NewTransportEngine(l, cf, o.transport, o.spacing, o.workers)
	if err != nil {
		return nil, err
	}
	if !r.ConservesTotal(DefaultTolerance) {
		logrus.Warnf("redistribution matrix has nonzero column sums (max %.3g); cell totals will not be conserved",
			maxAbs(r.ColumnSums()))
	}

	s := &Simulation{
		opts:        o,
		matrix:      r,
		coupling:    cf,
		constraints: cs,
		redist:      redist,
		transport:   tr,
		identity:    r.IsZero(),
		lattice:     l.Clone(),
		scratch:     l.Clone(),
		next:        l.Clone(),
		state:       StateCreated,
		runID:       uuid.New().String(),
	}
	s.ref = NewReference(s.lattice)
	logrus.Infof("simulation %s created: %dx%dx%d cells, method=%s, transport=%s, E0=%g",
		s.runID, l.Size().X, l.Size().Y, l.Size().Z, redist.Method(), tr.Mode, s.ref.Total)
	return s, nil
}

func maxAbs(xs [N]float64) float64 {
	m := 0.0
	for _, x := range xs {
		m = math.Max(m, math.Abs(x))
	}
	return m
}

// stepStats accumulates one step's projection outcome across workers.
type stepStats struct {
	clippedCells int64
	clipped      float64
	degenerate   int64
	firstDegen   error
}

func (a *stepStats) merge(b stepStats) {
	a.clippedCells += b.clippedCells
	a.clipped += b.clipped
	a.degenerate += b.degenerate
	if a.firstDegen == nil {
		a.firstDegen = b.firstDegen
	}
}

// Step advances the simulation by dt with a Strang split: half a
// redistribution step, a full transport step, half a redistribution step,
// then constraint projection. With WithAdaptive the split runs on equal
// substeps of dt and still commits once. The new state is committed only
// when every phase succeeded; on error the previous state is untouched and
// the error is a *StepError.
func (s *Simulation) Step(dt float64) error {
	if !s.writing.CompareAndSwap(false, true) {
		return ErrSimulationBusy
	}
	defer s.writing.Store(false)
	return s.advance(dt)
}

// advance runs one step. The caller holds the writer flag.
func (s *Simulation) advance(dt float64) error {
	s.mu.RLock()
	state, step, now := s.state, s.step, s.time
	s.mu.RUnlock()
	if state == StateTerminated {
		return ErrTerminated
	}
	fail := func(err error) error {
		return &StepError{Step: step, Time: now, Err: err}
	}

	switch {
	case math.IsNaN(dt) || math.IsInf(dt, 0):
		return fail(fmt.Errorf("%w: timestep %v", ErrNonFiniteState, dt))
	case dt < 0:
		return fail(fmt.Errorf("%w: negative timestep %g", ErrUnstableTimestep, dt))
	}
	n, err := s.substeps(dt)
	if err != nil {
		return fail(err)
	}
	h := dt / float64(n)
	if err := s.transport.CheckStability(h); err != nil {
		return fail(err)
	}
	half, err := s.redist.Propagator(h / 2)
	if err != nil {
		return fail(err)
	}

	var stats stepStats
	src := s.lattice
	for range n {
		sub, err := s.substep(src, h, half)
		if err != nil {
			return fail(err)
		}
		stats.merge(sub)
		src = s.next
	}

	s.mu.Lock()
	if s.state == StateTerminated {
		s.mu.Unlock()
		return ErrTerminated
	}
	s.lattice, s.next = s.next, s.lattice
	s.step++
	s.time += dt
	if s.state != StateRunning {
		logrus.Infof("simulation %s: %s -> running", s.runID, s.state)
		s.state = StateRunning
	}
	s.diag.ClippedCells += stats.clippedCells
	s.diag.ClippedMagnitude += stats.clipped
	s.diag.DegenerateCells += stats.degenerate
	s.diag.Substeps += int64(n)
	if stats.clipped > s.opts.clipTolerance {
		s.diag.ClipBreaches++
	}
	committed, t := s.step, s.time
	s.mu.Unlock()

	logrus.Debugf("[step %07d] t=%g committed", committed, t)
	if stats.clipped > s.opts.clipTolerance {
		logrus.Warnf("[step %07d] clipped %g energy in %d cells (tolerance %g)",
			committed, stats.clipped, stats.clippedCells, s.opts.clipTolerance)
	}
	if stats.degenerate > 0 {
		logrus.Warnf("[step %07d] %d degenerate projections, first: %v", committed, stats.degenerate, stats.firstDegen)
	}
	s.observe(committed, t, stats)
	return nil
}

// maxSubsteps bounds the work a single adaptive step may take.
const maxSubsteps = 1 << 16

// substeps returns how many equal pieces dt is split into. Without the
// adaptive option it is always 1.
func (s *Simulation) substeps(dt float64) (int, error) {
	if s.opts.maxKappaDt == 0 || dt == 0 {
		return 1, nil
	}
	need := 1.0
	if k := s.coupling.MaxKappa(); k > 0 {
		need = math.Max(need, math.Ceil(k*dt/s.opts.maxKappaDt))
	}
	if limit := s.transport.StabilityLimit(); !math.IsInf(limit, 1) {
		need = math.Max(need, math.Floor(dt/limit)+1)
	}
	if need > maxSubsteps {
		return 0, fmt.Errorf("%w: dt=%g needs %g substeps, at most %d allowed", ErrUnstableTimestep, dt, need, maxSubsteps)
	}
	return int(need), nil
}

// substep runs the three split phases for h from src into s.next: half a
// redistribution into scratch, transport into next, then the second half,
// projection and the finite check in place. src may be s.next.
func (s *Simulation) substep(src *Lattice, h float64, half *Propagator) (stepStats, error) {
	n := src.Len()

	err := parallelRange(n, s.opts.workers, func(lo, hi int) error {
		for i := lo; i < hi; i++ {
			if s.identity {
				s.scratch.cells[i] = src.cells[i]
				continue
			}
			s.scratch.cells[i] = half.Apply(src.cells[i])
		}
		return nil
	})
	if err != nil {
		return stepStats{}, err
	}

	if err := s.transport.Distribute(s.next, s.scratch, h); err != nil {
		return stepStats{}, err
	}

	var (
		statsMu sync.Mutex
		stats   stepStats
	)
	err = parallelRange(n, s.opts.workers, func(lo, hi int) error {
		var local stepStats
		for i := lo; i < hi; i++ {
			c := &s.next.cells[i]
			if !s.identity {
				*c = half.Apply(*c)
			}
			rep := Project(c, &s.constraints)
			if rep.Clipped {
				local.clippedCells++
				local.clipped += rep.ClippedMagnitude
			}
			if len(rep.Degenerate) > 0 {
				local.degenerate += int64(len(rep.Degenerate))
				if local.firstDegen == nil {
					local.firstDegen = fmt.Errorf("cell %v: %w", s.next.Coord(i), rep.Err())
				}
			}
			if !c.IsFinite() {
				return fmt.Errorf("cell %v: %w", s.next.Coord(i), ErrNonFiniteState)
			}
		}
		statsMu.Lock()
		stats.merge(local)
		statsMu.Unlock()
		return nil
	})
	return stats, err
}

// observe records the trace and runs the periodic conservation check.
// Called by the writer after commit; it only reads the committed lattice.
func (s *Simulation) observe(step int64, t float64, stats stepStats) {
	tr := s.opts.trace
	if tr != nil && tr.Config.Level == trace.TraceLevelSteps {
		total := TotalEnergy(s.lattice)
		tr.RecordStep(trace.StepRecord{
			Step:             step,
			Time:             t,
			TotalEnergy:      total,
			RelativeDrift:    relativeError(total, s.ref.Total),
			ClippedCells:     int(stats.clippedCells),
			ClippedMagnitude: stats.clipped,
			DegenerateCells:  int(stats.degenerate),
		})
	}
	if s.opts.checkInterval <= 0 || step%s.opts.checkInterval != 0 {
		return
	}

	rep := CheckConservation(s.lattice, s.ref, &s.constraints, s.opts.conservationTolerance)
	breached := rep.GlobalRelativeError > s.opts.conservationTolerance
	s.mu.Lock()
	s.diag.Checks++
	s.diag.MaxRelativeDrift = math.Max(s.diag.MaxRelativeDrift, rep.GlobalRelativeError)
	if breached {
		s.diag.ConservationBreaches++
	}
	s.mu.Unlock()

	if breached {
		logrus.Warnf("[step %07d] global energy drift %.3g exceeds tolerance %g", step, rep.GlobalRelativeError, s.opts.conservationTolerance)
	}
	if len(rep.ConstraintViolations) > 0 {
		logrus.Warnf("[step %07d] %d constraint violations, first: %s", step, len(rep.ConstraintViolations), rep.ConstraintViolations[0])
	}
	if tr != nil {
		tr.RecordCheck(trace.CheckRecord{
			Step:                step,
			Time:                t,
			GlobalRelativeError: rep.GlobalRelativeError,
			MaxVariableError:    maxOf(rep.PerVariableError[:]),
			MaxForceError:       maxOf(rep.PerForceError[:]),
			Violations:          len(rep.ConstraintViolations),
			Entropy:             ShannonEntropy(s.lattice),
			Breached:            breached,
		})
	}
}

func maxOf(xs []float64) float64 {
	m := 0.0
	for _, x := range xs {
		m = math.Max(m, x)
	}
	return m
}

// Observation is what EvolveUntil hands to its observer after each step. The
// lattice is the committed state and is only valid during the callback; it
// must not be modified.
type Observation struct {
	Step    int64
	Time    float64
	Lattice *Lattice
}

// EvolveResult summarizes an EvolveUntil call.
type EvolveResult struct {
	Steps   int64
	Time    float64
	Stopped bool // the observer asked to stop before tEnd
}

// EvolveUntil steps with dt until tEnd. The last step is shortened to
// tEnd minus the current time so the run lands exactly on tEnd; a remainder
// below dt·1e-9 counts as arrived and takes no step. After every step the observer (if non-nil) is called; returning false
// stops the run. The observer may call read accessors and Checkpoint, but not
// Step.
func (s *Simulation) EvolveUntil(tEnd, dt float64, observer func(Observation) bool) (EvolveResult, error) {
	if !s.writing.CompareAndSwap(false, true) {
		return EvolveResult{}, ErrSimulationBusy
	}
	defer s.writing.Store(false)

	if math.IsNaN(dt) || math.IsInf(dt, 0) || dt <= 0 {
		return EvolveResult{}, fmt.Errorf("%w: evolve needs a positive finite dt, got %v", ErrUnstableTimestep, dt)
	}
	var res EvolveResult
	for {
		s.mu.RLock()
		now := s.time
		s.mu.RUnlock()
		res.Time = now
		remaining := tEnd - now
		if remaining <= dt*1e-9 {
			return res, nil
		}
		if err := s.advance(min(dt, remaining)); err != nil {
			return res, err
		}
		res.Steps++

		s.mu.RLock()
		obs := Observation{Step: s.step, Time: s.time, Lattice: s.lattice}
		s.mu.RUnlock()
		res.Time = obs.Time
		if observer != nil && !observer(obs) {
			res.Stopped = true
			logrus.Infof("simulation %s: observer stopped evolution at t=%g", s.runID, obs.Time)
			return res, nil
		}
	}
}

// Terminate moves the simulation to its final state. Further steps return
// ErrTerminated; read accessors keep working.
func (s *Simulation) Terminate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateTerminated {
		return
	}
	logrus.Infof("simulation %s: %s -> terminated at step %d (t=%g)", s.runID, s.state, s.step, s.time)
	s.state = StateTerminated
}

// State returns the lifecycle state.
func (s *Simulation) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Time returns the simulated time.
func (s *Simulation) Time() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.time
}

// StepCount returns the number of committed steps.
func (s *Simulation) StepCount() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.step
}

// RunID identifies the run across checkpoints.
func (s *Simulation) RunID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.runID
}

// Lattice returns a copy of the committed lattice.
func (s *Simulation) Lattice() *Lattice {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lattice.Clone()
}

// Matrix returns the redistribution matrix.
func (s *Simulation) Matrix() *RedistributionMatrix { return s.matrix }

// Coupling returns the coupling field.
func (s *Simulation) Coupling() CouplingField { return s.coupling }

// Constraints returns the constraint set.
func (s *Simulation) Constraints() ConstraintSet { return s.constraints }

// Diagnostics returns the accumulated counters.
func (s *Simulation) Diagnostics() Diagnostics {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.diag
}

// Reference returns the totals drift is measured against.
func (s *Simulation) Reference() Reference {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ref
}

// Trace returns the configured trace, or nil.
func (s *Simulation) Trace() *trace.SimulationTrace { return s.opts.trace }

// Modes returns the oscillation modes of the redistribution matrix.
func (s *Simulation) Modes() ([]Mode, error) { return s.redist.ExtractModes() }

// PatternMetrics summarizes the committed lattice.
func (s *Simulation) PatternMetrics() PatternMetrics {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return ComputePatternMetrics(s.lattice, s.opts.volume)
}

// ConservationReport compares the committed lattice with the reference totals.
func (s *Simulation) ConservationReport() ConservationReport {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return CheckConservation(s.lattice, s.ref, &s.constraints, s.opts.conservationTolerance)
}
