// sim/constraint.go
package sim

import (
	"errors"
	"fmt"
	"math"
)

// DefaultTolerance is used for antisymmetry, ratio-sum and clipping checks
// when no explicit tolerance is configured.
const DefaultTolerance = 1e-9

// fixedPointTol is the relative deviation below which a projection step
// leaves a variable untouched, so that satisfied cells are exact fixed points.
const fixedPointTol = 1e-14

// ConstraintKind selects the per-variable constraint.
type ConstraintKind string

const (
	ConstraintFree       ConstraintKind = "free"
	ConstraintFixedTotal ConstraintKind = "fixed-total"
	ConstraintFixedRatio ConstraintKind = "fixed-ratio"
)

// VariableConstraint constrains one variable's total or its force split.
// The zero value is Free.
type VariableConstraint struct {
	Kind   ConstraintKind  `yaml:"kind"`
	Target float64         `yaml:"target,omitempty"`
	Ratios [Forces]float64 `yaml:"ratios"`
}

// Free leaves the variable unconstrained.
func Free() VariableConstraint { return VariableConstraint{Kind: ConstraintFree} }

// FixedTotal pins the variable's total energy to target.
func FixedTotal(target float64) VariableConstraint {
	return VariableConstraint{Kind: ConstraintFixedTotal, Target: target}
}

// FixedRatio pins the variable's split across forces; ratios must sum to 1.
func FixedRatio(ratios [Forces]float64) VariableConstraint {
	return VariableConstraint{Kind: ConstraintFixedRatio, Ratios: ratios}
}

// ExpressionConstraint optionally locks a variable's split across forces.
type ExpressionConstraint struct {
	Locked   bool            `yaml:"locked"`
	ForcePct [Forces]float64 `yaml:"force_pct"`
}

// TransferMask restricts which flattened entries a redistribution matrix may
// couple. With Enforce false every transfer is allowed.
type TransferMask struct {
	Enforce      bool                 `yaml:"enforce"`
	VarToVar     [Vars][Vars]bool     `yaml:"var_to_var"`
	ForceToForce [Forces][Forces]bool `yaml:"force_to_force"`
}

// Allows reports whether energy may move between flattened entries from and to.
func (m *TransferMask) Allows(from, to int) bool {
	if !m.Enforce || from == to {
		return true
	}
	vf, ff := from/Forces, from%Forces
	vt, ft := to/Forces, to%Forces
	return m.VarToVar[vf][vt] && m.ForceToForce[ff][ft]
}

// ConstraintSet holds one expression and one variable constraint per variable.
type ConstraintSet struct {
	Expressions [Vars]ExpressionConstraint `yaml:"expressions"`
	Variables   [Vars]VariableConstraint   `yaml:"variables"`
	Mask        TransferMask               `yaml:"mask"`
}

// Validate checks self-consistency: locked percentages and fixed ratios are
// non-negative and sum to 1 within tol, fixed totals are finite and >= 0.
func (cs *ConstraintSet) Validate(tol float64) error {
	for v := range Vars {
		e := cs.Expressions[v]
		if e.Locked {
			if err := checkSimplex(e.ForcePct[:], tol); err != nil {
				return fmt.Errorf("%w: variable %d force_pct: %v", ErrInvalidConstraint, v, err)
			}
		}
		vc := cs.Variables[v]
		switch vc.Kind {
		case "", ConstraintFree:
		case ConstraintFixedTotal:
			if math.IsNaN(vc.Target) || math.IsInf(vc.Target, 0) || vc.Target < 0 {
				return fmt.Errorf("%w: variable %d fixed total must be finite and >= 0, got %v",
					ErrInvalidConstraint, v, vc.Target)
			}
		case ConstraintFixedRatio:
			if err := checkSimplex(vc.Ratios[:], tol); err != nil {
				return fmt.Errorf("%w: variable %d ratios: %v", ErrInvalidConstraint, v, err)
			}
		default:
			return fmt.Errorf("%w: variable %d: unknown constraint kind %q", ErrInvalidConstraint, v, vc.Kind)
		}
	}
	return nil
}

func checkSimplex(p []float64, tol float64) error {
	sum := 0.0
	for i, x := range p {
		if math.IsNaN(x) || math.IsInf(x, 0) || x < 0 {
			return fmt.Errorf("entry %d must be finite and >= 0, got %v", i, x)
		}
		sum += x
	}
	if math.Abs(sum-1) > tol {
		return fmt.Errorf("entries sum to %v, want 1", sum)
	}
	return nil
}

// ProjectionReport describes what Project changed.
type ProjectionReport struct {
	Clipped          bool
	ClippedMagnitude float64
	Degenerate       []DegenerateProjectionError
}

// ExceedsTolerance reports whether clipping removed more than tol energy,
// which points at instability upstream.
func (r ProjectionReport) ExceedsTolerance(tol float64) bool {
	return r.ClippedMagnitude > tol
}

// Err joins the degenerate projections, or returns nil.
func (r ProjectionReport) Err() error {
	if len(r.Degenerate) == 0 {
		return nil
	}
	errs := make([]error, len(r.Degenerate))
	for i := range r.Degenerate {
		errs[i] = &r.Degenerate[i]
	}
	return errors.Join(errs...)
}

// Project enforces the constraint set on cell in place. Expression locks are
// applied first, then variable constraints, then negative entries are clipped
// to zero.
func Project(cell *Cell, cs *ConstraintSet) ProjectionReport {
	var rep ProjectionReport

	for v := range Vars {
		e := &cs.Expressions[v]
		if !e.Locked {
			continue
		}
		distribute(cell, v, cell.VariableTotal(v), e.ForcePct)
	}

	for v := range Vars {
		vc := &cs.Variables[v]
		switch vc.Kind {
		case ConstraintFixedTotal:
			total := cell.VariableTotal(v)
			if nearlyEqual(total, vc.Target) {
				continue
			}
			if total <= 0 {
				if vc.Target == 0 {
					cell[v] = [Forces]float64{}
					continue
				}
				rep.Degenerate = append(rep.Degenerate, DegenerateProjectionError{Variable: v, Target: vc.Target, Total: total})
				continue
			}
			k := vc.Target / total
			for f := range Forces {
				cell[v][f] *= k
			}
		case ConstraintFixedRatio:
			distribute(cell, v, cell.VariableTotal(v), vc.Ratios)
		}
	}

	for v := range Vars {
		for f := range Forces {
			if x := cell[v][f]; x < 0 {
				rep.Clipped = true
				rep.ClippedMagnitude -= x
				cell[v][f] = 0
			}
		}
	}
	return rep
}

// distribute sets variable v to total*pct unless it already matches.
func distribute(cell *Cell, v int, total float64, pct [Forces]float64) {
	satisfied := true
	for f := range Forces {
		if !nearlyEqual(cell[v][f], total*pct[f]) {
			satisfied = false
			break
		}
	}
	if satisfied {
		return
	}
	for f := range Forces {
		cell[v][f] = total * pct[f]
	}
}

func nearlyEqual(a, b float64) bool {
	scale := math.Max(math.Abs(a), math.Abs(b))
	return math.Abs(a-b) <= fixedPointTol*math.Max(scale, 1e-300)
}

// Violations lists the constraints cell does not satisfy within tol.
func (cs *ConstraintSet) Violations(cell *Cell, tol float64) []string {
	var out []string
	for v := range Vars {
		total := cell.VariableTotal(v)
		if e := cs.Expressions[v]; e.Locked && total > 0 {
			pct := cell.VariablePercentages(v)
			for f := range Forces {
				if math.Abs(pct[f]-e.ForcePct[f]) > tol {
					out = append(out, fmt.Sprintf("variable %d: force %d share %.6g, locked at %.6g", v, f, pct[f], e.ForcePct[f]))
				}
			}
		}
		switch vc := cs.Variables[v]; vc.Kind {
		case ConstraintFixedTotal:
			if math.Abs(total-vc.Target) > tol*math.Max(1, vc.Target) {
				out = append(out, fmt.Sprintf("variable %d: total %.6g, fixed at %.6g", v, total, vc.Target))
			}
		case ConstraintFixedRatio:
			if total > 0 {
				pct := cell.VariablePercentages(v)
				for f := range Forces {
					if math.Abs(pct[f]-vc.Ratios[f]) > tol {
						out = append(out, fmt.Sprintf("variable %d: force %d ratio %.6g, fixed at %.6g", v, f, pct[f], vc.Ratios[f]))
					}
				}
			}
		}
	}
	return out
}
