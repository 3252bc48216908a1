package sim

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entropic-void/voidsim/sim/trace"
)

func TestParseConfig_KeepsDefaultsForMissingFields(t *testing.T) {
	cfg, err := ParseConfig([]byte("dt: 0.05\nlattice: {x: 4, y: 4, z: 2}\n"))
	require.NoError(t, err)

	assert.Equal(t, 0.05, cfg.Dt)
	assert.Equal(t, Size{X: 4, Y: 4, Z: 2}, cfg.Lattice)
	def := DefaultConfig()
	assert.Equal(t, def.Seed, cfg.Seed)
	assert.Equal(t, def.Redistribution, cfg.Redistribution)
	assert.Equal(t, def.Initial, cfg.Initial)
}

func TestParseConfig_Rejects(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"unknown field", "dtt: 0.1\n"},
		{"zero dt", "dt: 0\n"},
		{"negative t_end", "t_end: -1\n"},
		{"bad lattice", "lattice: {x: 0, y: 2, z: 2}\n"},
		{"unknown transport", "transport: upwind\n"},
		{"unknown method", "redistribution: {method: pade}\n"},
		{"unknown trace level", "trace_level: verbose\n"},
		{"unknown initial", "initial: {kind: gaussian}\n"},
		{"negative adaptive bound", "adaptive_max_kappa_dt: -0.1\n"},
		{"matrix and cycles", "redistribution: {matrix: [0, 1], cycles: [{a: 0, b: 1, c: 2, frequency: 1}]}\n"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseConfig([]byte(tc.yaml))
			assert.Error(t, err)
		})
	}
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.yaml")
	data := `
lattice: {x: 3, y: 3, z: 3}
seed: 7
coupling:
  uniform: 0.2
constraints:
  variables:
    - {kind: fixed-total, target: 0.1}
    - {kind: free}
    - {kind: free}
    - {kind: free}
    - {kind: free}
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, int64(7), cfg.Seed)
	assert.Equal(t, ConstraintFixedTotal, cfg.Constraints.Variables[0].Kind)

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestConfig_Build(t *testing.T) {
	// GIVEN the default config shrunk to 4³
	cfg := DefaultConfig()
	cfg.Lattice = Size{X: 4, Y: 4, Z: 4}

	// WHEN built
	s, err := cfg.Build(WithWorkers(1))
	require.NoError(t, err)

	// THEN the run has one cycle mode, a checks-level trace and conserves
	modes, err := s.Modes()
	require.NoError(t, err)
	assert.Len(t, modes, 1)
	require.NotNil(t, s.Trace())
	assert.Equal(t, trace.TraceLevelChecks, s.Trace().Config.Level)
	assert.True(t, s.Matrix().ConservesTotal(1e-15))

	res, err := s.EvolveUntil(cfg.TEnd, cfg.Dt, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(100), res.Steps)
	assert.Len(t, s.Trace().Checks, 10)
	assert.Zero(t, s.Diagnostics().ConservationBreaches)
}

func TestConfig_BuildLattice_SeedReproducible(t *testing.T) {
	for _, kind := range []InitialKind{InitialHomogeneous, InitialRandom} {
		t.Run(string(kind), func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Lattice = Size{X: 3, Y: 3, Z: 3}
			cfg.Initial.Kind = kind

			a, err := cfg.BuildLattice()
			require.NoError(t, err)
			b, err := cfg.BuildLattice()
			require.NoError(t, err)
			requireSameLattice(t, a, b)

			cfg.Seed++
			c, err := cfg.BuildLattice()
			require.NoError(t, err)
			assert.NotEqual(t, *a.Cell(0), *c.Cell(0))
		})
	}
}

func TestConfig_BuildLattice_Structured(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Lattice = Size{X: 8, Y: 2, Z: 2}
	cfg.Initial = InitialConfig{Kind: InitialStructured, Base: 1, Mode: [3]int{1, 0, 0}, Amplitude: 0.5}

	l, err := cfg.BuildLattice()
	require.NoError(t, err)
	assert.InDelta(t, 1.5, l.Cell(0).Total(), 1e-12)
	assert.InDelta(t, 0.5, l.Cell(l.Index(Coord{X: 4})).Total(), 1e-12)
}

func TestConfig_BuildMatrix(t *testing.T) {
	t.Run("oscillations made conserving", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Redistribution.Cycles = nil
		cfg.Redistribution.Oscillations = []OscillationConfig{{From: 0, To: 4, Rate: 1}}
		cfg.Redistribution.Conserving = true

		r, err := cfg.BuildMatrix()
		require.NoError(t, err)
		assert.True(t, r.ConservesTotal(1e-12))
		assert.False(t, r.IsZero())
	})

	t.Run("explicit matrix", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Redistribution.Cycles = nil
		flat := make([]float64, N*N)
		flat[1], flat[N] = 0.5, -0.5
		cfg.Redistribution.Matrix = flat

		r, err := cfg.BuildMatrix()
		require.NoError(t, err)
		assert.Equal(t, 0.5, r.At(0, 1))

		flat[N] = 0.5
		_, err = cfg.BuildMatrix()
		assert.ErrorIs(t, err, ErrInvalidMatrix)
	})

	t.Run("mask applies to builder", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Constraints.Mask.Enforce = true
		_, err := cfg.BuildMatrix()
		assert.ErrorIs(t, err, ErrInvalidMatrix)
	})
}

func TestConfig_CouplingField(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, UniformCoupling(0.1), cfg.CouplingField())

	var k [Vars][Forces]float64
	k[2][3] = 0.4
	cfg.Coupling.Kappa = &k
	cf := cfg.CouplingField()
	assert.Equal(t, 0.4, cf.Kappa[2][3])
	assert.Equal(t, 0.0, cf.Kappa[0][0])
}

func TestConfig_TraceNone(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TraceLevel = string(trace.TraceLevelNone)
	assert.Nil(t, cfg.Trace())
}

func TestConfig_Build_Adaptive(t *testing.T) {
	// GIVEN a Laplacian run whose dt is above the explicit limit of 1/(6·0.1)
	cfg, err := ParseConfig([]byte("lattice: {x: 2, y: 2, z: 2}\ntransport: laplacian\ndt: 5\nadaptive_max_kappa_dt: 0.05\n"))
	require.NoError(t, err)
	s, err := cfg.Build()
	require.NoError(t, err)

	// WHEN one step of dt is taken
	require.NoError(t, s.Step(cfg.Dt))

	// THEN it ran as ceil(0.1·5/0.05) = 10 substeps
	assert.Equal(t, int64(10), s.Diagnostics().Substeps)
	assert.Equal(t, 0.05, s.opts.maxKappaDt)
}
