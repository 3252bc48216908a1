// sim/redistribution.go
package sim

import (
	"fmt"
	"math"
	"sync"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/mat"
)

// ExponentialMethod selects how exp(R·dt) is evaluated.
//
// "eigen" diagonalizes RᵀR = -R² once and rebuilds exp(R·dt) from cos/sin of
// the mode frequencies; it is exact for any dt. "series" uses scaling and
// squaring around a truncated Taylor series with a convergence check; its
// accuracy degrades as ‖R‖·dt grows and it is only meant as a fallback.
type ExponentialMethod string

const (
	MethodEigen  ExponentialMethod = "eigen"
	MethodSeries ExponentialMethod = "series"
)

var validMethods = map[ExponentialMethod]bool{
	MethodEigen:  true,
	MethodSeries: true,
	"":           true, // empty defaults to eigen
}

// IsValidExponentialMethod returns true if the name is a recognized method.
func IsValidExponentialMethod(name string) bool {
	return validMethods[ExponentialMethod(name)]
}

const (
	seriesMaxTerms   = 64
	propagatorCacheN = 8
)

// Propagator is exp(R·dt) for one dt, applied to flattened cell vectors.
type Propagator [N][N]float64

// Apply returns P·s for the flattened cell.
func (p *Propagator) Apply(c Cell) Cell {
	s := c.Flatten()
	var out [N]float64
	for i := range N {
		sum := 0.0
		row := &p[i]
		for j := range N {
			sum += row[j] * s[j]
		}
		out[i] = sum
	}
	return CellFromVector(out)
}

// Mode is one oscillation of the redistribution matrix. Vector and Partner
// are orthonormal and span the invariant plane in which the state rotates at
// Frequency; projecting onto Vector gives A(t) = A·cos(ωt+φ).
type Mode struct {
	Frequency float64
	Vector    [N]float64
	Partner   [N]float64
}

// RedistributionEngine evolves single cells under ds/dt = R·s.
// Safe for concurrent use.
type RedistributionEngine struct {
	r      *RedistributionMatrix
	method ExponentialMethod

	eigOnce sync.Once
	eigErr  error
	omega   []float64  // ascending, from RᵀR
	q       *mat.Dense // columns are the matching eigenvectors

	mu    sync.Mutex
	cache map[float64]*Propagator
}

// NewRedistributionEngine binds a validated matrix to an evaluation method.
func NewRedistributionEngine(r *RedistributionMatrix, method ExponentialMethod) (*RedistributionEngine, error) {
	if r == nil {
		return nil, fmt.Errorf("%w: nil redistribution matrix", ErrInvalidMatrix)
	}
	if method == "" {
		method = MethodEigen
	}
	if !validMethods[method] {
		return nil, fmt.Errorf("unknown exponential method %q; valid: eigen, series", method)
	}
	e := &RedistributionEngine{r: r, method: method, cache: make(map[float64]*Propagator)}
	if method == MethodEigen {
		if err := e.factorize(); err != nil {
			return nil, err
		}
	}
	return e, nil
}

// Matrix returns the engine's redistribution matrix.
func (e *RedistributionEngine) Matrix() *RedistributionMatrix { return e.r }

// Method returns the evaluation method in use.
func (e *RedistributionEngine) Method() ExponentialMethod { return e.method }

func (e *RedistributionEngine) factorize() error {
	e.eigOnce.Do(func() {
		r := e.r.Dense()
		var rtr mat.Dense
		rtr.Mul(r.T(), r)
		sym := mat.NewSymDense(N, nil)
		for i := range N {
			for j := i; j < N; j++ {
				sym.SetSym(i, j, 0.5*(rtr.At(i, j)+rtr.At(j, i)))
			}
		}
		var es mat.EigenSym
		if ok := es.Factorize(sym, true); !ok {
			e.eigErr = fmt.Errorf("%w: eigendecomposition of RᵀR did not converge", ErrInvalidMatrix)
			return
		}
		vals := es.Values(nil)
		e.omega = make([]float64, len(vals))
		for i, v := range vals {
			e.omega[i] = math.Sqrt(math.Max(v, 0))
		}
		e.q = new(mat.Dense)
		es.VectorsTo(e.q)
	})
	return e.eigErr
}

// Propagator returns exp(R·dt), computing and caching it on first use.
func (e *RedistributionEngine) Propagator(dt float64) (*Propagator, error) {
	if math.IsNaN(dt) || math.IsInf(dt, 0) {
		return nil, fmt.Errorf("%w: timestep %v", ErrNonFiniteState, dt)
	}
	e.mu.Lock()
	if p, ok := e.cache[dt]; ok {
		e.mu.Unlock()
		return p, nil
	}
	e.mu.Unlock()

	var (
		p   *Propagator
		err error
	)
	switch {
	case dt == 0 || e.r.IsZero():
		p = identityPropagator()
	case e.method == MethodSeries:
		p, err = e.seriesPropagator(dt)
	default:
		p, err = e.eigenPropagator(dt)
	}
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	if len(e.cache) >= propagatorCacheN {
		clear(e.cache)
	}
	e.cache[dt] = p
	e.mu.Unlock()
	return p, nil
}

func identityPropagator() *Propagator {
	var p Propagator
	for i := range N {
		p[i][i] = 1
	}
	return &p
}

// eigenPropagator evaluates Q·C·Qᵀ + Q·S·Qᵀ·R with C = diag(cos ωdt) and
// S = diag(sin(ωdt)/ω). Within each eigenspace of RᵀR, R acts as a rotation
// generator of rate ω, so this is exactly exp(R·dt).
func (e *RedistributionEngine) eigenPropagator(dt float64) (*Propagator, error) {
	if err := e.factorize(); err != nil {
		return nil, err
	}
	qc := mat.DenseCopyOf(e.q)
	qs := mat.DenseCopyOf(e.q)
	for k, w := range e.omega {
		c := math.Cos(w * dt)
		s := dt
		if math.Abs(w*dt) > 1e-12 {
			s = math.Sin(w*dt) / w
		}
		for i := range N {
			qc.Set(i, k, qc.At(i, k)*c)
			qs.Set(i, k, qs.At(i, k)*s)
		}
	}
	var cos, sin, sinR, out mat.Dense
	cos.Mul(qc, e.q.T())
	sin.Mul(qs, e.q.T())
	sinR.Mul(&sin, e.r.Dense())
	out.Add(&cos, &sinR)
	return denseToPropagator(&out)
}

// seriesPropagator uses scaling and squaring: exp(A) = exp(A/2^s)^(2^s) with
// the inner exponential summed until the next term is negligible.
func (e *RedistributionEngine) seriesPropagator(dt float64) (*Propagator, error) {
	a := e.r.Dense()
	a.Scale(dt, a)
	norm := mat.Norm(a, 1)
	squarings := 0
	if norm > 0.5 {
		squarings = int(math.Ceil(math.Log2(norm / 0.5)))
	}
	a.Scale(math.Ldexp(1, -squarings), a)

	sum := mat.NewDense(N, N, nil)
	term := mat.NewDense(N, N, nil)
	for i := range N {
		sum.Set(i, i, 1)
		term.Set(i, i, 1)
	}
	converged := false
	var next mat.Dense
	for k := 1; k <= seriesMaxTerms; k++ {
		next.Mul(term, a)
		next.Scale(1/float64(k), &next)
		term.Copy(&next)
		sum.Add(sum, term)
		if mat.Norm(term, 1) <= 1e-17*mat.Norm(sum, 1) {
			converged = true
			break
		}
	}
	if !converged {
		return nil, fmt.Errorf("%w after %d terms (dt=%g)", ErrSeriesDiverged, seriesMaxTerms, dt)
	}
	var sq mat.Dense
	for range squarings {
		sq.Mul(sum, sum)
		sum.Copy(&sq)
	}
	return denseToPropagator(sum)
}

func denseToPropagator(m mat.Matrix) (*Propagator, error) {
	var p Propagator
	for i := range N {
		for j := range N {
			x := m.At(i, j)
			if math.IsNaN(x) || math.IsInf(x, 0) {
				return nil, fmt.Errorf("%w: propagator entry (%d,%d) = %v", ErrNonFiniteState, i, j, x)
			}
			p[i][j] = x
		}
	}
	return &p, nil
}

// Evolve advances one cell by dt. Non-finite input is rejected rather than
// propagated.
func (e *RedistributionEngine) Evolve(c Cell, dt float64) (Cell, error) {
	if !c.IsFinite() {
		return c, fmt.Errorf("%w: redistribution input", ErrNonFiniteState)
	}
	p, err := e.Propagator(dt)
	if err != nil {
		return c, err
	}
	return p.Apply(c), nil
}

// ExtractModes returns the oscillation modes of R in ascending frequency,
// one per conjugate pair ±iω. Zero-frequency directions are not modes.
func (e *RedistributionEngine) ExtractModes() ([]Mode, error) {
	if err := e.factorize(); err != nil {
		return nil, err
	}
	maxOmega := 0.0
	for _, w := range e.omega {
		maxOmega = math.Max(maxOmega, w)
	}
	// ω = √λ with λ from RᵀR, so rounding noise of order ε·λmax on a zero
	// eigenvalue shows up as ω ≈ √ε·ωmax. Anything below 1e-6·ωmax is a zero
	// direction.
	zeroTol := 1e-6 * maxOmega

	var (
		modes   []Mode
		covered [][N]float64
	)
	for k, w := range e.omega {
		if w == 0 || w <= zeroTol {
			continue
		}
		var u [N]float64
		for i := range N {
			u[i] = e.q.At(i, k)
		}
		r, norm := orthogonalize(u, covered)
		if norm < 0.5 {
			// Partner of a plane already reported.
			continue
		}
		v := scaleVec(r, 1/norm)
		orientVec(&v)
		ru := e.applyR(v)
		p, pnorm := orthogonalize(scaleVec(ru, 1/w), append(covered, v))
		if pnorm == 0 {
			continue
		}
		partner := scaleVec(p, 1/pnorm)
		covered = append(covered, v, partner)
		modes = append(modes, Mode{Frequency: w, Vector: v, Partner: partner})
	}
	logrus.Debugf("extracted %d oscillation modes", len(modes))
	return modes, nil
}

func (e *RedistributionEngine) applyR(v [N]float64) [N]float64 {
	var out [N]float64
	for i := range N {
		for j := range N {
			out[i] += e.r.a[i][j] * v[j]
		}
	}
	return out
}

// ProjectOntoMode returns the amplitude of the cell along the mode vector.
func ProjectOntoMode(c Cell, m Mode) float64 {
	return dotVec(c.Flatten(), m.Vector)
}

func dotVec(a, b [N]float64) float64 {
	sum := 0.0
	for i := range N {
		sum += a[i] * b[i]
	}
	return sum
}

func scaleVec(a [N]float64, k float64) [N]float64 {
	for i := range N {
		a[i] *= k
	}
	return a
}

// orthogonalize removes the components of u along each (unit) basis vector
// and returns the residual with its norm.
func orthogonalize(u [N]float64, basis [][N]float64) ([N]float64, float64) {
	for _, b := range basis {
		d := dotVec(u, b)
		for i := range N {
			u[i] -= d * b[i]
		}
	}
	return u, math.Sqrt(dotVec(u, u))
}

// orientVec flips v so its largest-magnitude entry is positive.
func orientVec(v *[N]float64) {
	best := 0
	for i := range N {
		if math.Abs(v[i]) > math.Abs(v[best]) {
			best = i
		}
	}
	if v[best] < 0 {
		for i := range N {
			v[i] = -v[i]
		}
	}
}
