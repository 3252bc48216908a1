package sim

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnergyDistribution_ToCell(t *testing.T) {
	d := EvenDistribution()
	require.NoError(t, d.Validate(DefaultTolerance))

	c := d.ToCell(4)
	assert.InDelta(t, 4, c.Total(), 1e-12)
	for v := range Vars {
		assert.InDelta(t, 0.8, c.VariableTotal(v), 1e-12)
	}
}

func TestEnergyDistribution_Validate(t *testing.T) {
	d := EvenDistribution()
	d.VarPct[0] += 0.1
	assert.Error(t, d.Validate(DefaultTolerance))

	d = EvenDistribution()
	d.ForcePct[3] = [Forces]float64{1.5, -0.5, 0, 0}
	assert.Error(t, d.Validate(DefaultTolerance))
}

func TestSampleSimplex(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	for range 100 {
		p := SampleSimplex(Forces, rng)
		sum := 0.0
		for _, x := range p {
			assert.GreaterOrEqual(t, x, 0.0)
			sum += x
		}
		assert.InDelta(t, 1, sum, 1e-12)
	}

	d := RandomEnergyDistribution(rng)
	assert.NoError(t, d.Validate(1e-12))
}

func TestInitializeHomogeneous_NoiseBoundsAndReproducibility(t *testing.T) {
	// GIVEN the same seed twice
	build := func(seed int64) *Lattice {
		l, err := NewLattice(Size{X: 4, Y: 4, Z: 4})
		require.NoError(t, err)
		rng := NewPartitionedRNG(NewSimulationKey(seed))
		require.NoError(t, InitializeHomogeneous(l, 2, 0.1, EvenDistribution(), nil, rng))
		return l
	}

	// WHEN lattices are initialized
	a, b, c := build(42), build(42), build(43)

	// THEN totals stay within base·(1±noise) and the same seed is bit-identical
	for i, cell := range a.Cells() {
		total := cell.Total()
		assert.GreaterOrEqual(t, total, 1.8-1e-12)
		assert.LessOrEqual(t, total, 2.2+1e-12)
		require.Equal(t, *cell, *b.Cell(i))
	}
	assert.NotEqual(t, *a.Cell(0), *c.Cell(0))
}

func TestInitializeHomogeneous_ProjectsConstraints(t *testing.T) {
	l, err := NewLattice(Size{X: 2, Y: 2, Z: 2})
	require.NoError(t, err)
	var cs ConstraintSet
	cs.Variables[1] = FixedTotal(0.5)
	cs.Variables[2] = FixedRatio([Forces]float64{1, 0, 0, 0})

	require.NoError(t, InitializeHomogeneous(l, 1, 0.2, EvenDistribution(), &cs, NewPartitionedRNG(1)))

	for _, c := range l.Cells() {
		assert.InDelta(t, 0.5, c.VariableTotal(1), 1e-12)
		assert.Equal(t, 0.0, c[2][1])
		assert.Empty(t, cs.Violations(c, 1e-9))
	}
}

func TestInitializeHomogeneous_RejectsBadParameters(t *testing.T) {
	l, err := NewLattice(Size{X: 2, Y: 2, Z: 2})
	require.NoError(t, err)
	rng := NewPartitionedRNG(1)

	assert.Error(t, InitializeHomogeneous(l, -1, 0, EvenDistribution(), nil, rng))
	assert.Error(t, InitializeHomogeneous(l, 1, 1.5, EvenDistribution(), nil, rng))
}

func TestInitializeStructured(t *testing.T) {
	// GIVEN m = (0, 1, 0) on a 2×4×2 lattice with phase 0
	l, err := NewLattice(Size{X: 2, Y: 4, Z: 2})
	require.NoError(t, err)

	require.NoError(t, InitializeStructured(l, [3]int{0, 1, 0}, 1, 0.5, 0, EvenDistribution()))

	// THEN cell energy follows 1 + 0.5·cos(2πy/4)
	want := []float64{1.5, 1, 0.5, 1}
	for i, c := range l.Cells() {
		y := l.Coord(i).Y
		assert.InDelta(t, want[y], c.Total(), 1e-12, "y=%d", y)
	}
	assert.InDelta(t, float64(l.Len()), TotalEnergy(l), 1e-12)

	assert.Error(t, InitializeStructured(l, [3]int{1, 0, 0}, 1, 1.2, 0, EvenDistribution()))
	assert.NoError(t, InitializeStructured(l, [3]int{1, 0, 0}, 1, 1, math.Pi/2, EvenDistribution()))
}
