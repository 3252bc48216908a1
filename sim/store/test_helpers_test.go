package store

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/entropic-void/voidsim/sim"
)

// createTestStore opens a SQLite store in a temp dir.
func createTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestSimulation builds a 2×2×2 run with one cycle and weak coupling.
func createTestSimulation(t *testing.T) *sim.Simulation {
	t.Helper()
	l, err := sim.NewLattice(sim.Size{X: 2, Y: 2, Z: 2})
	require.NoError(t, err)
	require.NoError(t, sim.InitializeStructured(l, [3]int{1, 0, 0}, 1, 0.5, 0, sim.EvenDistribution()))
	b := sim.NewMatrixBuilder(nil)
	require.NoError(t, b.AddCycle(0, 1, 2, 1))
	r, err := b.Build(sim.DefaultTolerance)
	require.NoError(t, err)
	s, err := sim.NewSimulation(l, r, sim.UniformCoupling(0.1), sim.ConstraintSet{}, sim.WithWorkers(1))
	require.NoError(t, err)
	return s
}

// snapshotsAt steps the simulation and checkpoints after each listed step count.
func snapshotsAt(t *testing.T, s *sim.Simulation, steps ...int64) []*sim.Snapshot {
	t.Helper()
	var out []*sim.Snapshot
	for _, target := range steps {
		for s.StepCount() < target {
			require.NoError(t, s.Step(0.05))
		}
		snap, err := s.Checkpoint()
		require.NoError(t, err)
		out = append(out, snap)
	}
	return out
}
