package sim

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cellWithVariable(v int, forces [Forces]float64) Cell {
	var c Cell
	c[v] = forces
	return c
}

func TestProject_FixedTotal_RescalesProportionally(t *testing.T) {
	// GIVEN variable 1 holding 4.0 split 1:1:1:1 and a FixedTotal(2.0) constraint
	c := cellWithVariable(1, [Forces]float64{1, 1, 1, 1})
	var cs ConstraintSet
	cs.Variables[1] = FixedTotal(2.0)

	// WHEN projected
	rep := Project(&c, &cs)

	// THEN the variable totals 2.0 with its split unchanged
	assert.NoError(t, rep.Err())
	assert.False(t, rep.Clipped)
	assert.InDelta(t, 2.0, c.VariableTotal(1), 1e-12)
	assert.Equal(t, [Forces]float64{0.25, 0.25, 0.25, 0.25}, c.VariablePercentages(1))
}

func TestProject_FixedTotal_ZeroTotalIsDegenerate(t *testing.T) {
	// GIVEN an empty variable pinned to a nonzero total
	var c Cell
	var cs ConstraintSet
	cs.Variables[3] = FixedTotal(1.5)

	// WHEN projected
	rep := Project(&c, &cs)

	// THEN the projection is reported degenerate and the variable is untouched
	require.Len(t, rep.Degenerate, 1)
	assert.Equal(t, 3, rep.Degenerate[0].Variable)
	assert.ErrorIs(t, rep.Err(), ErrDegenerateProjection)
	var dpe *DegenerateProjectionError
	assert.ErrorAs(t, rep.Err(), &dpe)
	assert.Equal(t, 0.0, c.VariableTotal(3))
}

func TestProject_FixedTotal_ZeroTargetOnEmptyVariableIsFine(t *testing.T) {
	var c Cell
	var cs ConstraintSet
	cs.Variables[0] = FixedTotal(0)

	rep := Project(&c, &cs)

	assert.NoError(t, rep.Err())
}

func TestProject_FixedRatio_RedistributesWithinVariable(t *testing.T) {
	// GIVEN variable 0 holding 8 in one force and a 0.5/0.25/0.25/0 ratio
	c := cellWithVariable(0, [Forces]float64{0, 0, 0, 8})
	var cs ConstraintSet
	cs.Variables[0] = FixedRatio([Forces]float64{0.5, 0.25, 0.25, 0})

	// WHEN projected
	Project(&c, &cs)

	// THEN the total is kept and split by the ratios
	assert.Equal(t, [Forces]float64{4, 2, 2, 0}, c[0])
}

func TestProject_ExpressionLock_AppliedBeforeVariableConstraint(t *testing.T) {
	// GIVEN a locked 0.25/0.75 expression and a FixedTotal(2) on the same variable
	c := cellWithVariable(2, [Forces]float64{3, 1, 0, 0})
	var cs ConstraintSet
	cs.Expressions[2] = ExpressionConstraint{Locked: true, ForcePct: [Forces]float64{0.25, 0.75, 0, 0}}
	cs.Variables[2] = FixedTotal(2)

	// WHEN projected
	Project(&c, &cs)

	// THEN the split follows the lock and the total follows the variable constraint
	assert.InDelta(t, 0.5, c[2][0], 1e-12)
	assert.InDelta(t, 1.5, c[2][1], 1e-12)
	assert.Empty(t, cs.Violations(&c, DefaultTolerance))
}

func TestProject_ClipsNegativesAndReportsMagnitude(t *testing.T) {
	c := cellWithVariable(4, [Forces]float64{1, -0.25, 2, -0.5})
	var cs ConstraintSet

	rep := Project(&c, &cs)

	assert.True(t, rep.Clipped)
	assert.Equal(t, 0.75, rep.ClippedMagnitude)
	assert.True(t, rep.ExceedsTolerance(0.5))
	assert.False(t, rep.ExceedsTolerance(1))
	assert.Equal(t, [Forces]float64{1, 0, 2, 0}, c[4])
}

func TestProject_SatisfyingCellIsFixedPoint(t *testing.T) {
	// GIVEN random non-negative cells and a constraint set mixing every kind
	rng := rand.New(rand.NewSource(7))
	var cs ConstraintSet
	cs.Expressions[0] = ExpressionConstraint{Locked: true, ForcePct: [Forces]float64{0.1, 0.2, 0.3, 0.4}}
	cs.Variables[1] = FixedTotal(3)
	cs.Variables[2] = FixedRatio([Forces]float64{0.7, 0.1, 0.1, 0.1})
	cs.Variables[4] = FixedTotal(0.5)
	require.NoError(t, cs.Validate(DefaultTolerance))

	for trial := 0; trial < 200; trial++ {
		var c Cell
		for v := range Vars {
			for f := range Forces {
				c[v][f] = 4 * rng.Float64()
			}
		}

		// WHEN a projected (hence satisfying) cell is projected again
		Project(&c, &cs)
		require.Empty(t, cs.Violations(&c, DefaultTolerance))
		once := c
		rep := Project(&c, &cs)

		// THEN nothing changes
		assert.Equal(t, once, c, "trial %d", trial)
		assert.False(t, rep.Clipped, "trial %d", trial)
	}
}

func TestConstraintSet_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(cs *ConstraintSet)
	}{
		{"ratios off by more than tolerance", func(cs *ConstraintSet) {
			cs.Variables[0] = FixedRatio([Forces]float64{0.5, 0.5, 0.1, 0})
		}},
		{"negative ratio", func(cs *ConstraintSet) {
			cs.Variables[1] = FixedRatio([Forces]float64{1.5, -0.5, 0, 0})
		}},
		{"negative fixed total", func(cs *ConstraintSet) {
			cs.Variables[2] = FixedTotal(-1)
		}},
		{"locked percentages not summing to one", func(cs *ConstraintSet) {
			cs.Expressions[3] = ExpressionConstraint{Locked: true, ForcePct: [Forces]float64{0.3, 0.3, 0.3, 0}}
		}},
		{"unknown kind", func(cs *ConstraintSet) {
			cs.Variables[4] = VariableConstraint{Kind: "sticky"}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var cs ConstraintSet
			tt.mutate(&cs)
			err := cs.Validate(DefaultTolerance)
			assert.ErrorIs(t, err, ErrInvalidConstraint)
			assert.ErrorIs(t, err, ErrInvalidMatrix, "constraint errors are construction errors")
		})
	}
}

func TestConstraintSet_ValidateAcceptsUnlockedGarbage(t *testing.T) {
	// Unlocked expressions are ignored.
	var cs ConstraintSet
	cs.Expressions[0] = ExpressionConstraint{Locked: false, ForcePct: [Forces]float64{9, 9, 9, 9}}
	assert.NoError(t, cs.Validate(DefaultTolerance))
}

func TestConstraintSet_Violations(t *testing.T) {
	var cs ConstraintSet
	cs.Variables[0] = FixedTotal(1)
	c := cellWithVariable(0, [Forces]float64{1, 1, 0, 0})

	v := cs.Violations(&c, DefaultTolerance)

	require.Len(t, v, 1)
	assert.Contains(t, v[0], "fixed at 1")
}

func TestTransferMask_Allows(t *testing.T) {
	var m TransferMask
	assert.True(t, m.Allows(0, 19), "unenforced mask allows everything")

	m.Enforce = true
	m.VarToVar[0][1] = true
	m.ForceToForce[2][2] = true

	assert.True(t, m.Allows(FlatIndex(0, 2), FlatIndex(1, 2)))
	assert.False(t, m.Allows(FlatIndex(1, 2), FlatIndex(0, 2)), "masks are directional")
	assert.False(t, m.Allows(FlatIndex(0, 1), FlatIndex(1, 2)))
	assert.True(t, m.Allows(5, 5))
}
