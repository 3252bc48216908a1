// sim/cell.go
package sim

import (
	"fmt"
	"math"
)

const (
	// Vars is the number of energy variables tracked per cell.
	Vars = 5
	// Forces is the number of coupling channels per variable.
	Forces = 4
	// N is the length of a flattened cell vector.
	N = Vars * Forces
)

// VariableNames and ForceNames label the rows and columns of a Cell in reports.
var (
	VariableNames = [Vars]string{"light", "matter", "neutrino", "opposite-matter", "opposite-light"}
	ForceNames    = [Forces]string{"gravity", "electromagnetic", "weak", "strong"}
)

// Cell is the energy matrix of one lattice site, indexed [variable][force].
// Valid cells hold finite, non-negative entries only.
type Cell [Vars][Forces]float64

// FlatIndex maps (variable, force) to the position in a flattened cell vector.
func FlatIndex(v, f int) int {
	return v*Forces + f
}

// Total returns the sum of all entries.
func (c *Cell) Total() float64 {
	sum := 0.0
	for v := range Vars {
		for f := range Forces {
			sum += c[v][f]
		}
	}
	return sum
}

// VariableTotal returns the energy held by variable v across all forces.
func (c *Cell) VariableTotal(v int) float64 {
	sum := 0.0
	for f := range Forces {
		sum += c[v][f]
	}
	return sum
}

// PerVariable returns the energy of each variable summed across forces.
func (c *Cell) PerVariable() [Vars]float64 {
	var out [Vars]float64
	for v := range Vars {
		out[v] = c.VariableTotal(v)
	}
	return out
}

// PerForce returns the energy of each force summed across variables.
func (c *Cell) PerForce() [Forces]float64 {
	var out [Forces]float64
	for v := range Vars {
		for f := range Forces {
			out[f] += c[v][f]
		}
	}
	return out
}

// VariablePercentages returns how variable v's energy is split across forces.
// A variable with no energy reports all zeros.
func (c *Cell) VariablePercentages(v int) [Forces]float64 {
	var out [Forces]float64
	total := c.VariableTotal(v)
	if total == 0 {
		return out
	}
	for f := range Forces {
		out[f] = c[v][f] / total
	}
	return out
}

// Flatten returns the cell as a vector in FlatIndex order.
func (c *Cell) Flatten() [N]float64 {
	var out [N]float64
	for v := range Vars {
		for f := range Forces {
			out[FlatIndex(v, f)] = c[v][f]
		}
	}
	return out
}

// CellFromVector rebuilds a cell from a flattened vector.
func CellFromVector(s [N]float64) Cell {
	var c Cell
	for v := range Vars {
		for f := range Forces {
			c[v][f] = s[FlatIndex(v, f)]
		}
	}
	return c
}

// IsFinite reports whether every entry is a finite number.
func (c *Cell) IsFinite() bool {
	for v := range Vars {
		for f := range Forces {
			x := c[v][f]
			if math.IsNaN(x) || math.IsInf(x, 0) {
				return false
			}
		}
	}
	return true
}

// Validate checks the cell invariant: finite entries, none below -tol.
func (c *Cell) Validate(tol float64) error {
	for v := range Vars {
		for f := range Forces {
			x := c[v][f]
			if math.IsNaN(x) || math.IsInf(x, 0) {
				return fmt.Errorf("%w: entry (%d,%d) = %v", ErrNonFiniteState, v, f, x)
			}
			if x < -tol {
				return fmt.Errorf("negative energy %g at (%d,%d)", x, v, f)
			}
		}
	}
	return nil
}

// Scale multiplies every entry by k.
func (c *Cell) Scale(k float64) {
	for v := range Vars {
		for f := range Forces {
			c[v][f] *= k
		}
	}
}
