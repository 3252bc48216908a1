package sim

import (
	"fmt"
	"math"

	"github.com/entropic-void/voidsim/sim/trace"
)

// Option configures a Simulation.
type Option func(*options)

type options struct {
	workers               int
	method                ExponentialMethod
	transport             TransportMode
	spacing               float64
	volume                float64
	clipTolerance         float64
	conservationTolerance float64
	checkInterval         int64
	maxKappaDt            float64
	trace                 *trace.SimulationTrace
}

func defaultOptions() options {
	return options{
		method:                MethodEigen,
		transport:             TransportExact,
		spacing:               1,
		volume:                1,
		clipTolerance:         DefaultTolerance,
		conservationTolerance: DefaultTolerance,
	}
}

func (o *options) validate() error {
	if !validMethods[o.method] {
		return fmt.Errorf("unknown exponential method %q; valid: eigen, series", o.method)
	}
	if !validTransportModes[o.transport] {
		return fmt.Errorf("unknown transport mode %q; valid: exact, laplacian", o.transport)
	}
	for name, x := range map[string]float64{
		"spacing":                o.spacing,
		"volume":                 o.volume,
		"clip tolerance":         o.clipTolerance,
		"conservation tolerance": o.conservationTolerance,
	} {
		if math.IsNaN(x) || math.IsInf(x, 0) || x <= 0 {
			return fmt.Errorf("%s must be positive and finite, got %v", name, x)
		}
	}
	if math.IsNaN(o.maxKappaDt) || math.IsInf(o.maxKappaDt, 0) || o.maxKappaDt < 0 {
		return fmt.Errorf("adaptive κ·dt bound must be >= 0 and finite, got %v", o.maxKappaDt)
	}
	if o.checkInterval < 0 {
		return fmt.Errorf("check interval must be >= 0, got %d", o.checkInterval)
	}
	return nil
}

// WithWorkers bounds the worker pool (<= 0 uses GOMAXPROCS).
func WithWorkers(n int) Option { return func(o *options) { o.workers = n } }

// WithExponentialMethod selects how exp(R·dt) is evaluated.
func WithExponentialMethod(m ExponentialMethod) Option { return func(o *options) { o.method = m } }

// WithTransportMode selects the inter-cell discretization.
func WithTransportMode(m TransportMode) Option { return func(o *options) { o.transport = m } }

// WithSpacing sets the lattice spacing Δx.
func WithSpacing(dx float64) Option { return func(o *options) { o.spacing = dx } }

// WithCellVolume sets the volume used to turn cell energy into density.
func WithCellVolume(v float64) Option { return func(o *options) { o.volume = v } }

// WithClipTolerance sets the clipped energy per step above which a warning is
// logged.
func WithClipTolerance(tol float64) Option { return func(o *options) { o.clipTolerance = tol } }

// WithConservationTolerance sets the relative global drift above which a
// periodic check is reported as a breach.
func WithConservationTolerance(tol float64) Option {
	return func(o *options) { o.conservationTolerance = tol }
}

// WithCheckInterval runs a conservation check every n committed steps
// (0 disables).
func WithCheckInterval(n int64) Option { return func(o *options) { o.checkInterval = n } }

// WithTrace records step and check diagnostics into st.
func WithTrace(st *trace.SimulationTrace) Option { return func(o *options) { o.trace = st } }

// WithAdaptive splits every step into equal substeps so that κ_max times the
// substep stays at or below maxKappaDt and, for Laplacian transport, the
// substep is below the stability limit. A step still commits once. Zero
// disables substepping.
func WithAdaptive(maxKappaDt float64) Option { return func(o *options) { o.maxKappaDt = maxKappaDt } }
