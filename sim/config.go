package sim

import (
	"bytes"
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/entropic-void/voidsim/sim/trace"
)

// Config is the YAML description of a run. Every section must be known;
// unknown keys are rejected when loading.
type Config struct {
	Lattice               Size                 `yaml:"lattice"`
	Spacing               float64              `yaml:"spacing"`
	CellVolume            float64              `yaml:"cell_volume"`
	Seed                  int64                `yaml:"seed"`
	Dt                    float64              `yaml:"dt"`
	TEnd                  float64              `yaml:"t_end"`
	Workers               int                  `yaml:"workers"`
	Transport             TransportMode        `yaml:"transport"`
	CheckInterval         int64                `yaml:"check_interval"`
	AdaptiveMaxKappaDt    float64              `yaml:"adaptive_max_kappa_dt"`
	TraceLevel            string               `yaml:"trace_level"`
	ClipTolerance         float64              `yaml:"clip_tolerance"`
	ConservationTolerance float64              `yaml:"conservation_tolerance"`
	Redistribution        RedistributionConfig `yaml:"redistribution"`
	Coupling              CouplingConfig       `yaml:"coupling"`
	Constraints           ConstraintSet        `yaml:"constraints"`
	Initial               InitialConfig        `yaml:"initial"`
}

// RedistributionConfig gives R either as a flattened N×N matrix or as a list
// of oscillations and cycles assembled with a MatrixBuilder.
type RedistributionConfig struct {
	Method       ExponentialMethod   `yaml:"method"`
	Matrix       []float64           `yaml:"matrix,omitempty"`
	Oscillations []OscillationConfig `yaml:"oscillations,omitempty"`
	Cycles       []CycleConfig       `yaml:"cycles,omitempty"`
	// Conserving projects R so every column sums to zero, making cell totals
	// (not only the L2 norm) invariant.
	Conserving bool `yaml:"conserving"`
}

// OscillationConfig couples two flattened entries.
type OscillationConfig struct {
	From int     `yaml:"from"`
	To   int     `yaml:"to"`
	Rate float64 `yaml:"rate"`
}

// CycleConfig is a three-entry rotation.
type CycleConfig struct {
	A         int     `yaml:"a"`
	B         int     `yaml:"b"`
	C         int     `yaml:"c"`
	Frequency float64 `yaml:"frequency"`
}

// CouplingConfig is a uniform κ, optionally overridden per (variable, force).
type CouplingConfig struct {
	Uniform float64                `yaml:"uniform"`
	Kappa   *[Vars][Forces]float64 `yaml:"kappa,omitempty"`
}

// InitialKind selects the initial condition.
type InitialKind string

const (
	InitialHomogeneous InitialKind = "homogeneous"
	InitialStructured  InitialKind = "structured"
	InitialRandom      InitialKind = "random"
)

// InitialConfig describes the initial lattice.
type InitialConfig struct {
	Kind         InitialKind         `yaml:"kind"`
	Base         float64             `yaml:"base"`
	Noise        float64             `yaml:"noise"`
	Mode         [3]int              `yaml:"mode"`
	Amplitude    float64             `yaml:"amplitude"`
	Phase        float64             `yaml:"phase"`
	Distribution *EnergyDistribution `yaml:"distribution,omitempty"`
}

// DefaultConfig returns a small, stable run: an 8³ lattice, one
// total-conserving cycle and weak coupling.
func DefaultConfig() Config {
	return Config{
		Lattice:               Size{X: 8, Y: 8, Z: 8},
		Spacing:               1,
		CellVolume:            1,
		Seed:                  42,
		Dt:                    0.01,
		TEnd:                  1,
		Transport:             TransportExact,
		CheckInterval:         10,
		TraceLevel:            string(trace.TraceLevelChecks),
		ClipTolerance:         DefaultTolerance,
		ConservationTolerance: DefaultTolerance,
		Redistribution: RedistributionConfig{
			Method: MethodEigen,
			Cycles: []CycleConfig{{A: 0, B: 1, C: 2, Frequency: 1}},
		},
		Coupling: CouplingConfig{Uniform: 0.1},
		Initial:  InitialConfig{Kind: InitialHomogeneous, Base: 1, Noise: 0.1},
	}
}

// LoadConfig reads a YAML config. Fields missing from the file keep their
// DefaultConfig values.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return ParseConfig(data)
}

// ParseConfig decodes YAML on top of DefaultConfig, rejecting unknown keys.
func ParseConfig(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the fields that Build cannot check by construction.
func (c *Config) Validate() error {
	if c.Lattice.X <= 0 || c.Lattice.Y <= 0 || c.Lattice.Z <= 0 {
		return fmt.Errorf("lattice dimensions must be positive, got %dx%dx%d", c.Lattice.X, c.Lattice.Y, c.Lattice.Z)
	}
	if math.IsNaN(c.Dt) || math.IsInf(c.Dt, 0) || c.Dt <= 0 {
		return fmt.Errorf("dt must be positive, got %v", c.Dt)
	}
	if math.IsNaN(c.TEnd) || math.IsInf(c.TEnd, 0) || c.TEnd < 0 {
		return fmt.Errorf("t_end must be >= 0, got %v", c.TEnd)
	}
	if math.IsNaN(c.AdaptiveMaxKappaDt) || math.IsInf(c.AdaptiveMaxKappaDt, 0) || c.AdaptiveMaxKappaDt < 0 {
		return fmt.Errorf("adaptive_max_kappa_dt must be >= 0, got %v", c.AdaptiveMaxKappaDt)
	}
	if !IsValidTransportMode(string(c.Transport)) {
		return fmt.Errorf("unknown transport %q; valid: exact, laplacian", c.Transport)
	}
	if !IsValidExponentialMethod(string(c.Redistribution.Method)) {
		return fmt.Errorf("unknown redistribution method %q; valid: eigen, series", c.Redistribution.Method)
	}
	if !trace.IsValidTraceLevel(c.TraceLevel) {
		return fmt.Errorf("unknown trace level %q; valid: none, checks, steps", c.TraceLevel)
	}
	if len(c.Redistribution.Matrix) > 0 && (len(c.Redistribution.Oscillations) > 0 || len(c.Redistribution.Cycles) > 0) {
		return fmt.Errorf("redistribution: give either matrix or oscillations/cycles, not both")
	}
	switch c.Initial.Kind {
	case "", InitialHomogeneous, InitialStructured, InitialRandom:
	default:
		return fmt.Errorf("unknown initial kind %q; valid: homogeneous, structured, random", c.Initial.Kind)
	}
	return nil
}

// BuildMatrix assembles R from the redistribution section.
func (c *Config) BuildMatrix() (*RedistributionMatrix, error) {
	rc := c.Redistribution
	var (
		r   *RedistributionMatrix
		err error
	)
	if len(rc.Matrix) > 0 {
		r, err = NewRedistributionMatrix(rc.Matrix, DefaultTolerance)
	} else {
		b := NewMatrixBuilder(&c.Constraints.Mask)
		for _, o := range rc.Oscillations {
			if err := b.SetOscillation(o.From, o.To, o.Rate); err != nil {
				return nil, err
			}
		}
		for _, cy := range rc.Cycles {
			if err := b.AddCycle(cy.A, cy.B, cy.C, cy.Frequency); err != nil {
				return nil, err
			}
		}
		r, err = b.Build(DefaultTolerance)
	}
	if err != nil {
		return nil, err
	}
	if rc.Conserving {
		r = r.ConservingProjection()
	}
	return r, nil
}

// CouplingField resolves the coupling section.
func (c *Config) CouplingField() CouplingField {
	if c.Coupling.Kappa != nil {
		return CouplingField{Kappa: *c.Coupling.Kappa}
	}
	return UniformCoupling(c.Coupling.Uniform)
}

// BuildLattice creates and fills the initial lattice.
func (c *Config) BuildLattice() (*Lattice, error) {
	l, err := NewLattice(c.Lattice)
	if err != nil {
		return nil, err
	}
	rng := NewPartitionedRNG(NewSimulationKey(c.Seed))
	ic := c.Initial
	dist := EvenDistribution()
	if ic.Distribution != nil {
		dist = *ic.Distribution
		if err := dist.Validate(DefaultTolerance); err != nil {
			return nil, fmt.Errorf("initial distribution: %w", err)
		}
	}
	switch ic.Kind {
	case InitialStructured:
		err = InitializeStructured(l, ic.Mode, ic.Base, ic.Amplitude, ic.Phase, dist)
	case InitialRandom:
		dist = RandomEnergyDistribution(rng.ForSubsystem(SubsystemDistribution))
		err = InitializeHomogeneous(l, ic.Base, ic.Noise, dist, &c.Constraints, rng)
	default:
		err = InitializeHomogeneous(l, ic.Base, ic.Noise, dist, &c.Constraints, rng)
	}
	if err != nil {
		return nil, err
	}
	return l, nil
}

// Trace returns a trace for the configured level, or nil for none.
func (c *Config) Trace() *trace.SimulationTrace {
	lvl := trace.TraceLevel(c.TraceLevel)
	if lvl == "" || lvl == trace.TraceLevelNone {
		return nil
	}
	return trace.NewSimulationTrace(trace.TraceConfig{Level: lvl})
}

// Options translates the config into simulation options.
func (c *Config) Options() []Option {
	opts := []Option{
		WithWorkers(c.Workers),
		WithExponentialMethod(c.Redistribution.Method),
		WithTransportMode(c.Transport),
		WithCheckInterval(c.CheckInterval),
	}
	if c.Spacing > 0 {
		opts = append(opts, WithSpacing(c.Spacing))
	}
	if c.CellVolume > 0 {
		opts = append(opts, WithCellVolume(c.CellVolume))
	}
	if c.ClipTolerance > 0 {
		opts = append(opts, WithClipTolerance(c.ClipTolerance))
	}
	if c.ConservationTolerance > 0 {
		opts = append(opts, WithConservationTolerance(c.ConservationTolerance))
	}
	if c.AdaptiveMaxKappaDt > 0 {
		opts = append(opts, WithAdaptive(c.AdaptiveMaxKappaDt))
	}
	if st := c.Trace(); st != nil {
		opts = append(opts, WithTrace(st))
	}
	return opts
}

// Build creates the Simulation described by the config. extra options are
// applied last.
func (c *Config) Build(extra ...Option) (*Simulation, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	r, err := c.BuildMatrix()
	if err != nil {
		return nil, err
	}
	l, err := c.BuildLattice()
	if err != nil {
		return nil, err
	}
	return NewSimulation(l, r, c.CouplingField(), c.Constraints, append(c.Options(), extra...)...)
}
