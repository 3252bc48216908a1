// sim/init.go
package sim

import (
	"fmt"
	"math"
	"math/rand"
)

// EnergyDistribution describes how a cell's energy splits across variables
// and, within each variable, across forces.
type EnergyDistribution struct {
	VarPct   [Vars]float64         `yaml:"var_pct"`
	ForcePct [Vars][Forces]float64 `yaml:"force_pct"`
}

// EvenDistribution splits energy equally across every (variable, force).
func EvenDistribution() EnergyDistribution {
	var d EnergyDistribution
	for v := range Vars {
		d.VarPct[v] = 1.0 / Vars
		for f := range Forces {
			d.ForcePct[v][f] = 1.0 / Forces
		}
	}
	return d
}

// Validate checks that every split sums to 1 within tol.
func (d *EnergyDistribution) Validate(tol float64) error {
	if err := checkSimplex(d.VarPct[:], tol); err != nil {
		return fmt.Errorf("var_pct: %w", err)
	}
	for v := range Vars {
		if err := checkSimplex(d.ForcePct[v][:], tol); err != nil {
			return fmt.Errorf("force_pct[%d]: %w", v, err)
		}
	}
	return nil
}

// ToCell allocates total across the cell according to the distribution.
func (d *EnergyDistribution) ToCell(total float64) Cell {
	var c Cell
	for v := range Vars {
		for f := range Forces {
			c[v][f] = total * d.VarPct[v] * d.ForcePct[v][f]
		}
	}
	return c
}

// SampleSimplex draws n non-negative weights summing to 1, uniformly over the
// simplex (normalized exponential draws).
func SampleSimplex(n int, rng *rand.Rand) []float64 {
	out := make([]float64, n)
	sum := 0.0
	for i := range out {
		out[i] = rng.ExpFloat64()
		sum += out[i]
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}

// RandomEnergyDistribution draws every split from SampleSimplex.
func RandomEnergyDistribution(rng *rand.Rand) EnergyDistribution {
	var d EnergyDistribution
	copy(d.VarPct[:], SampleSimplex(Vars, rng))
	for v := range Vars {
		copy(d.ForcePct[v][:], SampleSimplex(Forces, rng))
	}
	return d
}

// InitializeHomogeneous fills every cell with base·(1+u·noise), u uniform in
// [-1, 1), split by dist, then projects each cell onto the constraints.
func InitializeHomogeneous(l *Lattice, base, noise float64, dist EnergyDistribution, cs *ConstraintSet, rng *PartitionedRNG) error {
	if base < 0 || noise < 0 || noise > 1 {
		return fmt.Errorf("homogeneous init needs base >= 0 and noise in [0,1], got base=%g noise=%g", base, noise)
	}
	r := rng.ForSubsystem(SubsystemNoise)
	for i, c := range l.Cells() {
		e := base * (1 + noise*(2*r.Float64()-1))
		*c = dist.ToCell(e)
		if cs != nil {
			if rep := Project(c, cs); rep.Err() != nil {
				return fmt.Errorf("cell %v: %w", l.Coord(i), rep.Err())
			}
		}
	}
	return nil
}

// InitializeStructured modulates energy as base·(1 + amplitude·cos(k·r + phase))
// for the integer wave numbers m, split by dist.
func InitializeStructured(l *Lattice, m [3]int, base, amplitude, phase float64, dist EnergyDistribution) error {
	if base < 0 || amplitude < 0 || amplitude > 1 {
		return fmt.Errorf("structured init needs base >= 0 and amplitude in [0,1], got base=%g amplitude=%g", base, amplitude)
	}
	size := l.Size()
	k := [3]float64{
		2 * math.Pi * float64(m[0]) / float64(size.X),
		2 * math.Pi * float64(m[1]) / float64(size.Y),
		2 * math.Pi * float64(m[2]) / float64(size.Z),
	}
	for i, c := range l.Cells() {
		p := l.Coord(i)
		arg := k[0]*float64(p.X) + k[1]*float64(p.Y) + k[2]*float64(p.Z) + phase
		*c = dist.ToCell(base * (1 + amplitude*math.Cos(arg)))
	}
	return nil
}
