// sim/matrix.go
package sim

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// RedistributionMatrix is a validated N×N antisymmetric coupling matrix.
// It can only be obtained from NewRedistributionMatrix or MatrixBuilder.Build,
// both of which check R = -Rᵀ; there is no exported mutation path.
type RedistributionMatrix struct {
	a [N][N]float64
}

// ZeroMatrix returns the matrix with no intra-cell coupling.
func ZeroMatrix() *RedistributionMatrix {
	return &RedistributionMatrix{}
}

// NewRedistributionMatrix validates a row-major flattened N×N matrix.
func NewRedistributionMatrix(flat []float64, tol float64) (*RedistributionMatrix, error) {
	if len(flat) != N*N {
		return nil, fmt.Errorf("%w: want %d entries, got %d", ErrInvalidMatrix, N*N, len(flat))
	}
	var a [N][N]float64
	for i := range N {
		copy(a[i][:], flat[i*N:(i+1)*N])
	}
	if err := checkAntisymmetric(&a, tol); err != nil {
		return nil, err
	}
	return &RedistributionMatrix{a: a}, nil
}

func checkAntisymmetric(a *[N][N]float64, tol float64) error {
	for i := range N {
		for j := i; j < N; j++ {
			x, y := a[i][j], a[j][i]
			if math.IsNaN(x) || math.IsInf(x, 0) || math.IsNaN(y) || math.IsInf(y, 0) {
				return fmt.Errorf("%w: non-finite entry at (%d,%d)", ErrInvalidMatrix, i, j)
			}
			if math.Abs(x+y) > tol {
				return fmt.Errorf("%w: R[%d][%d]=%g and R[%d][%d]=%g violate antisymmetry (tol %g)",
					ErrInvalidMatrix, i, j, x, j, i, y, tol)
			}
		}
	}
	return nil
}

// At returns R[i][j].
func (r *RedistributionMatrix) At(i, j int) float64 { return r.a[i][j] }

// Flat returns a row-major copy of the entries.
func (r *RedistributionMatrix) Flat() []float64 {
	out := make([]float64, 0, N*N)
	for i := range N {
		out = append(out, r.a[i][:]...)
	}
	return out
}

// Dense returns the matrix as a gonum Dense.
func (r *RedistributionMatrix) Dense() *mat.Dense {
	return mat.NewDense(N, N, r.Flat())
}

// IsZero reports whether every entry is zero.
func (r *RedistributionMatrix) IsZero() bool {
	for i := range N {
		for j := range N {
			if r.a[i][j] != 0 {
				return false
			}
		}
	}
	return true
}

// ColumnSums returns 1ᵀR. The cell total d(Σs)/dt = (1ᵀR)s is conserved for
// every state only when all column sums vanish.
func (r *RedistributionMatrix) ColumnSums() [N]float64 {
	var out [N]float64
	for i := range N {
		for j := range N {
			out[j] += r.a[i][j]
		}
	}
	return out
}

// ConservesTotal reports whether the matrix preserves the cell total (not
// just the Euclidean norm) within tol.
func (r *RedistributionMatrix) ConservesTotal(tol float64) bool {
	for _, s := range r.ColumnSums() {
		if math.Abs(s) > tol {
			return false
		}
	}
	return true
}

// RespectsMask reports the first entry coupling two flattened indices the
// mask forbids.
func (r *RedistributionMatrix) RespectsMask(m *TransferMask) error {
	for i := range N {
		for j := range N {
			if r.a[i][j] != 0 && !m.Allows(i, j) {
				return fmt.Errorf("%w: entry (%d,%d) couples a transfer the mask forbids", ErrInvalidMatrix, i, j)
			}
		}
	}
	return nil
}

// ConservingProjection returns P·R·P with P = I - 11ᵀ/N: the closest
// antisymmetric matrix whose column sums vanish.
func (r *RedistributionMatrix) ConservingProjection() *RedistributionMatrix {
	var rowMean, colMean [N]float64
	total := 0.0
	for i := range N {
		for j := range N {
			rowMean[i] += r.a[i][j] / N
			colMean[j] += r.a[i][j] / N
			total += r.a[i][j]
		}
	}
	grand := total / (N * N)
	var out RedistributionMatrix
	for i := range N {
		for j := range N {
			out.a[i][j] = r.a[i][j] - rowMean[i] - colMean[j] + grand
		}
	}
	// Restore exact antisymmetry lost to rounding.
	for i := range N {
		out.a[i][i] = 0
		for j := i + 1; j < N; j++ {
			v := 0.5 * (out.a[i][j] - out.a[j][i])
			out.a[i][j], out.a[j][i] = v, -v
		}
	}
	return &out
}

// Norm returns the Frobenius norm.
func (r *RedistributionMatrix) Norm() float64 {
	return mat.Norm(r.Dense(), 2)
}

// AntisymmetricPart returns (A - Aᵀ)/2 of a raw row-major N×N matrix.
func AntisymmetricPart(flat []float64) []float64 {
	return splitPart(flat, -1)
}

// SymmetricPart returns (A + Aᵀ)/2 of a raw row-major N×N matrix.
func SymmetricPart(flat []float64) []float64 {
	return splitPart(flat, 1)
}

func splitPart(flat []float64, sign float64) []float64 {
	out := make([]float64, N*N)
	for i := range N {
		for j := range N {
			out[i*N+j] = 0.5 * (flat[i*N+j] + sign*flat[j*N+i])
		}
	}
	return out
}

// MatrixBuilder assembles a redistribution matrix one coupling at a time.
// Build re-validates the result.
type MatrixBuilder struct {
	a    [N][N]float64
	mask *TransferMask
}

// NewMatrixBuilder starts from zero. A nil mask allows every transfer.
func NewMatrixBuilder(mask *TransferMask) *MatrixBuilder {
	if mask == nil {
		mask = &TransferMask{}
	}
	return &MatrixBuilder{mask: mask}
}

// SetOscillation writes R[from][to] = rate and R[to][from] = -rate.
func (b *MatrixBuilder) SetOscillation(from, to int, rate float64) error {
	if err := b.checkIndices(from, to); err != nil {
		return err
	}
	if !b.mask.Allows(from, to) || !b.mask.Allows(to, from) {
		return fmt.Errorf("%w: transfer %d<->%d forbidden by mask", ErrInvalidMatrix, from, to)
	}
	b.a[from][to] = rate
	b.a[to][from] = -rate
	return nil
}

// AddCycle adds a three-entry rotation of angular frequency omega among the
// flattened entries i, j, k. The rotation has zero column sums, so it moves
// energy between the entries while conserving their total.
func (b *MatrixBuilder) AddCycle(i, j, k int, omega float64) error {
	if i == j || j == k || i == k {
		return fmt.Errorf("%w: cycle entries must be distinct, got %d,%d,%d", ErrInvalidMatrix, i, j, k)
	}
	if err := b.checkIndices(i, j); err != nil {
		return err
	}
	if err := b.checkIndices(j, k); err != nil {
		return err
	}
	for _, p := range [][2]int{{i, j}, {j, k}, {k, i}} {
		if !b.mask.Allows(p[0], p[1]) || !b.mask.Allows(p[1], p[0]) {
			return fmt.Errorf("%w: transfer %d<->%d forbidden by mask", ErrInvalidMatrix, p[0], p[1])
		}
	}
	// The circulant [[0,1,-1],[-1,0,1],[1,-1,0]] has eigenvalues 0, ±i√3.
	w := omega / math.Sqrt(3)
	b.a[i][j] += w
	b.a[j][i] -= w
	b.a[j][k] += w
	b.a[k][j] -= w
	b.a[k][i] += w
	b.a[i][k] -= w
	return nil
}

func (b *MatrixBuilder) checkIndices(i, j int) error {
	if i < 0 || i >= N || j < 0 || j >= N {
		return fmt.Errorf("%w: index out of range (%d,%d)", ErrInvalidMatrix, i, j)
	}
	if i == j {
		return fmt.Errorf("%w: self-coupling at %d", ErrInvalidMatrix, i)
	}
	return nil
}

// Build validates and returns the assembled matrix.
func (b *MatrixBuilder) Build(tol float64) (*RedistributionMatrix, error) {
	a := b.a
	if err := checkAntisymmetric(&a, tol); err != nil {
		return nil, err
	}
	return &RedistributionMatrix{a: a}, nil
}
