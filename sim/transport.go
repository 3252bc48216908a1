// sim/transport.go
package sim

import (
	"fmt"
	"math"
)

// TransportMode selects the inter-cell discretization.
type TransportMode string

const (
	// TransportExact applies the closed-form pairwise exchange on every edge.
	// Edges are swept in classes that share no cell, so every exchange is
	// exact, entries stay non-negative and any dt is stable.
	TransportExact TransportMode = "exact"
	// TransportLaplacian applies the net discrete Laplacian per cell (forward
	// Euler) and requires dt < dx²/(6κ) on the 6-neighbour stencil.
	TransportLaplacian TransportMode = "laplacian"
)

var validTransportModes = map[TransportMode]bool{
	TransportExact:     true,
	TransportLaplacian: true,
	"":                 true, // empty defaults to exact
}

// IsValidTransportMode returns true if the name is a recognized transport mode.
func IsValidTransportMode(name string) bool {
	return validTransportModes[TransportMode(name)]
}

// CouplingField holds κ per (variable, force). When PerEdge is non-empty it
// scales the base coupling per lattice edge, indexed by Edge.ID.
type CouplingField struct {
	Kappa   [Vars][Forces]float64 `yaml:"kappa"`
	PerEdge []float64             `yaml:"per_edge,omitempty"`
}

// UniformCoupling returns a field with the same κ on every channel.
func UniformCoupling(kappa float64) CouplingField {
	var cf CouplingField
	for v := range Vars {
		for f := range Forces {
			cf.Kappa[v][f] = kappa
		}
	}
	return cf
}

// Validate checks that every coupling is finite and non-negative and that a
// per-edge table, if present, matches the lattice.
func (cf *CouplingField) Validate(l *Lattice) error {
	for v := range Vars {
		for f := range Forces {
			k := cf.Kappa[v][f]
			if math.IsNaN(k) || math.IsInf(k, 0) || k < 0 {
				return fmt.Errorf("%w: coupling (%d,%d) must be finite and >= 0, got %v", ErrInvalidMatrix, v, f, k)
			}
		}
	}
	if len(cf.PerEdge) == 0 {
		return nil
	}
	if len(cf.PerEdge) != l.EdgeCount() {
		return fmt.Errorf("%w: per-edge coupling has %d entries, lattice has %d edge slots",
			ErrInvalidMatrix, len(cf.PerEdge), l.EdgeCount())
	}
	for e := range l.Edges() {
		w := cf.PerEdge[e.ID]
		if math.IsNaN(w) || math.IsInf(w, 0) || w < 0 {
			return fmt.Errorf("%w: edge %d coupling must be finite and >= 0, got %v", ErrInvalidMatrix, e.ID, w)
		}
	}
	return nil
}

// MaxKappa returns the largest effective coupling on any channel and edge.
func (cf *CouplingField) MaxKappa() float64 {
	k := 0.0
	for v := range Vars {
		for f := range Forces {
			k = math.Max(k, cf.Kappa[v][f])
		}
	}
	if len(cf.PerEdge) > 0 {
		w := 0.0
		for _, x := range cf.PerEdge {
			w = math.Max(w, x)
		}
		k *= w
	}
	return k
}

func (cf *CouplingField) edgeScale(id int) float64 {
	if len(cf.PerEdge) == 0 {
		return 1
	}
	return cf.PerEdge[id]
}

// ExchangePair is the exact solution of dEi/dt = κ(Ej-Ei), dEj/dt = κ(Ei-Ej)
// after dt. The pair total is conserved and both results stay between the
// inputs, hence non-negative for non-negative inputs.
func ExchangePair(ei, ej, kappa, dt float64) (float64, float64) {
	avg := 0.5 * (ei + ej)
	decay := math.Exp(-2 * kappa * dt)
	return avg + (ei-avg)*decay, avg + (ej-avg)*decay
}

// TransportEngine moves energy between neighbouring cells. It is used by a
// single writer at a time.
type TransportEngine struct {
	Coupling CouplingField
	Mode     TransportMode
	// Spacing is the lattice spacing Δx used by the Laplacian formulation.
	Spacing float64
	workers int

	// buf is the intermediate buffer between edge-class sweeps.
	buf *Lattice
}

// NewTransportEngine validates the coupling against the lattice.
func NewTransportEngine(l *Lattice, cf CouplingField, mode TransportMode, spacing float64, workers int) (*TransportEngine, error) {
	if err := cf.Validate(l); err != nil {
		return nil, err
	}
	if mode == "" {
		mode = TransportExact
	}
	if !validTransportModes[mode] {
		return nil, fmt.Errorf("unknown transport mode %q; valid: exact, laplacian", mode)
	}
	if spacing <= 0 || math.IsNaN(spacing) || math.IsInf(spacing, 0) {
		return nil, fmt.Errorf("%w: lattice spacing must be positive, got %v", ErrInvalidMatrix, spacing)
	}
	return &TransportEngine{Coupling: cf, Mode: mode, Spacing: spacing, workers: workers}, nil
}

// StabilityLimit returns the largest stable timestep: Δx²/(6κ_max) for the
// Laplacian formulation, whose worst mode is multiplied by 1-12κdt/Δx² per
// sweep, and +Inf for exact exchange or zero coupling.
func (t *TransportEngine) StabilityLimit() float64 {
	k := t.Coupling.MaxKappa()
	if t.Mode != TransportLaplacian || k == 0 {
		return math.Inf(1)
	}
	return t.Spacing * t.Spacing / (6 * k)
}

// CheckStability refuses a Laplacian timestep at or above StabilityLimit.
// The exact formulation is unconditionally accepted.
func (t *TransportEngine) CheckStability(dt float64) error {
	limit := t.StabilityLimit()
	if dt >= limit {
		return fmt.Errorf("%w: dt=%g must be below dx²/(6κ)=%g", ErrUnstableTimestep, dt, limit)
	}
	return nil
}

// Distribute performs one transport sweep from the read-only snapshot src
// into dst. Workers own disjoint cell ranges of dst, so no cell is written
// twice and no locking is needed. The caller swaps buffers.
func (t *TransportEngine) Distribute(dst, src *Lattice, dt float64) error {
	if err := t.CheckStability(dt); err != nil {
		return err
	}
	if t.Mode == TransportLaplacian {
		return t.laplacian(dst, src, dt)
	}
	return t.exchange(dst, src, dt)
}

// laplacian adds κdt/Δx²·(E_nb - E) over the six incident edges, all read
// from src.
func (t *TransportEngine) laplacian(dst, src *Lattice, dt float64) error {
	scale := dt / (t.Spacing * t.Spacing)
	perEdge := len(t.Coupling.PerEdge) > 0

	return parallelRange(src.Len(), t.workers, func(lo, hi int) error {
		for i := lo; i < hi; i++ {
			own := src.cells[i]
			next := own
			for _, e := range src.IncidentEdges(i) {
				nb := &src.cells[e.B]
				w := scale
				if perEdge {
					w *= t.Coupling.edgeScale(e.ID)
				}
				for v := range Vars {
					for f := range Forces {
						next[v][f] += w * t.Coupling.Kappa[v][f] * (nb[v][f] - own[v][f])
					}
				}
			}
			dst.cells[i] = next
		}
		return nil
	})
}

// edgeClass is a set of edges along one axis that share no cell: the edges
// starting at even coordinates, at odd coordinates, or (on odd-length axes)
// the wrap-around edge from the last coordinate back to 0.
type edgeClass struct {
	axis  Axis
	class int
}

// classOf returns the class of the edge starting at coordinate x on an axis
// of length n.
func classOf(x, n int) int {
	if n%2 == 1 && x == n-1 {
		return 2
	}
	return x % 2
}

// edgeClasses lists the non-empty classes in axis order. Axes of length 1
// have no edges.
func edgeClasses(size Size) []edgeClass {
	var out []edgeClass
	for axis, n := range [3]int{size.X, size.Y, size.Z} {
		switch {
		case n == 1:
		case n%2 == 0:
			out = append(out, edgeClass{Axis(axis), 0}, edgeClass{Axis(axis), 1})
		default:
			out = append(out, edgeClass{Axis(axis), 0}, edgeClass{Axis(axis), 1}, edgeClass{Axis(axis), 2})
		}
	}
	return out
}

// exchange applies ExchangePair on every edge. The classes are swept
// symmetrically (first to last with dt/2, then back with dt/2, the middle
// class once with dt), each sweep reading one buffer and writing the other.
// Within a class every cell has at most one partner, so each sweep is the
// exact solution for its edges and the lattice total is conserved to
// rounding for any dt.
func (t *TransportEngine) exchange(dst, src *Lattice, dt float64) error {
	classes := edgeClasses(src.Size())
	if len(classes) == 0 || dt == 0 {
		dst.CopyFrom(src)
		return nil
	}
	if t.buf == nil || t.buf.Size() != src.Size() {
		t.buf = src.Clone()
	}

	type pass struct {
		ec edgeClass
		h  float64
	}
	m := len(classes)
	passes := make([]pass, 0, 2*m-1)
	for i, ec := range classes {
		h := dt / 2
		if i == m-1 {
			h = dt
		}
		passes = append(passes, pass{ec, h})
	}
	for i := m - 2; i >= 0; i-- {
		passes = append(passes, pass{classes[i], dt / 2})
	}

	// Ping-pong between dst and buf so src is never written and the last
	// pass lands in dst.
	cur := src
	for i, p := range passes {
		out := dst
		if (len(passes)-1-i)%2 == 1 {
			out = t.buf
		}
		if err := t.sweepClass(out, cur, p.ec, p.h); err != nil {
			return err
		}
		cur = out
	}
	return nil
}

// sweepClass exchanges energy across every edge of one class for h.
func (t *TransportEngine) sweepClass(dst, src *Lattice, ec edgeClass, h float64) error {
	size := src.Size()
	n := [3]int{size.X, size.Y, size.Z}[ec.axis]

	return parallelRange(src.Len(), t.workers, func(lo, hi int) error {
		for i := lo; i < hi; i++ {
			c := src.Coord(i)
			x := [3]int{c.X, c.Y, c.Z}[ec.axis]
			var partner, edge int
			switch {
			case classOf(x, n) == ec.class:
				partner = src.Neighbor(i, ec.axis, 1)
				edge = i*3 + int(ec.axis)
			case classOf(wrap(x-1, n), n) == ec.class:
				partner = src.Neighbor(i, ec.axis, -1)
				edge = partner*3 + int(ec.axis)
			default:
				dst.cells[i] = src.cells[i]
				continue
			}
			own, nb := &src.cells[i], &src.cells[partner]
			scale := t.Coupling.edgeScale(edge)
			next := *own
			for v := range Vars {
				for f := range Forces {
					k := t.Coupling.Kappa[v][f] * scale
					if k == 0 {
						continue
					}
					next[v][f], _ = ExchangePair(own[v][f], nb[v][f], k, h)
				}
			}
			dst.cells[i] = next
		}
		return nil
	})
}
