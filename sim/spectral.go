// sim/spectral.go
package sim

import (
	"cmp"
	"math"
	"math/cmplx"
	"slices"

	"github.com/mjibson/go-dsp/fft"
)

// SpatialMode is one Fourier component of a lattice field.
type SpatialMode struct {
	// M holds the signed integer wave numbers along x, y, z.
	M [3]int
	// K is the wave vector in radians per cell, 2π·M/size.
	K [3]float64
	// Amplitude is |F(k)|/cells.
	Amplitude float64
	// Phase is arg F(k).
	Phase float64
	// Rate is the analytic diffusion rate ω(k) = 2κ(cos kx + cos ky + cos kz - 3);
	// the mode decays as exp(ω·t).
	Rate float64
}

// PowerSample is one shell of the spherically averaged power spectrum.
type PowerSample struct {
	K     float64 // shell radius in radians per cell
	Power float64 // mean |F(k)|²/cells² over the shell
	Count int
}

// LaplacianEigenvalue returns 2(cos kx + cos ky + cos kz - 3), the eigenvalue
// of the 6-neighbour discrete Laplacian for wave vector k.
func LaplacianEigenvalue(k [3]float64) float64 {
	return 2 * (math.Cos(k[0]) + math.Cos(k[1]) + math.Cos(k[2]) - 3)
}

// DispersionRate returns ω(k) for simple cubic diffusion with coupling κ.
func DispersionRate(k [3]float64, kappa float64) float64 {
	return kappa * LaplacianEigenvalue(k)
}

// StepMultiplier returns the factor by which one transport sweep scales the
// amplitude of wave vector k. The Laplacian sweep multiplies it by exactly
// 1 + κdt/Δx²·λ(k). The exact sweep follows exp(ω·dt) to second order in κdt;
// its edge classes couple k with k+π, so the match is not exact.
func StepMultiplier(k [3]float64, kappa, dt, spacing float64, mode TransportMode) float64 {
	if mode == TransportLaplacian {
		return 1 + kappa*dt/(spacing*spacing)*LaplacianEigenvalue(k)
	}
	return math.Exp(DispersionRate(k, kappa) * dt)
}

// FFT3D transforms a field laid out in lattice index order, one axis at a
// time (z, then y, then x).
func FFT3D(field []float64, size Size) []complex128 {
	sx, sy, sz := size.X, size.Y, size.Z
	data := make([]complex128, len(field))
	for i, x := range field {
		data[i] = complex(x, 0)
	}
	idx := func(x, y, z int) int { return x + y*sx + z*sx*sy }

	sliceZ := make([]complex128, sz)
	for x := range sx {
		for y := range sy {
			for z := range sz {
				sliceZ[z] = data[idx(x, y, z)]
			}
			out := fft.FFT(sliceZ)
			for z := range sz {
				data[idx(x, y, z)] = out[z]
			}
		}
	}
	sliceY := make([]complex128, sy)
	for x := range sx {
		for z := range sz {
			for y := range sy {
				sliceY[y] = data[idx(x, y, z)]
			}
			out := fft.FFT(sliceY)
			for y := range sy {
				data[idx(x, y, z)] = out[y]
			}
		}
	}
	sliceX := make([]complex128, sx)
	for y := range sy {
		for z := range sz {
			for x := range sx {
				sliceX[x] = data[idx(x, y, z)]
			}
			out := fft.FFT(sliceX)
			for x := range sx {
				data[idx(x, y, z)] = out[x]
			}
		}
	}
	return data
}

// signedWaveNumber maps FFT bin i of an n-point transform to (-n/2, n/2].
func signedWaveNumber(i, n int) int {
	if i > n/2 {
		return i - n
	}
	return i
}

// ComputeSpatialModes returns the Fourier modes of the field selected by pick,
// sorted by descending amplitude, with the analytic rate for coupling κ.
func ComputeSpatialModes(l *Lattice, pick func(*Cell) float64, kappa float64) []SpatialMode {
	size := l.Size()
	coeffs := FFT3D(l.Field(pick), size)
	cells := float64(size.Cells())
	modes := make([]SpatialMode, 0, len(coeffs))
	for i, f := range coeffs {
		c := l.Coord(i)
		m := [3]int{signedWaveNumber(c.X, size.X), signedWaveNumber(c.Y, size.Y), signedWaveNumber(c.Z, size.Z)}
		k := [3]float64{
			2 * math.Pi * float64(m[0]) / float64(size.X),
			2 * math.Pi * float64(m[1]) / float64(size.Y),
			2 * math.Pi * float64(m[2]) / float64(size.Z),
		}
		modes = append(modes, SpatialMode{
			M:         m,
			K:         k,
			Amplitude: cmplx.Abs(f) / cells,
			Phase:     cmplx.Phase(f),
			Rate:      DispersionRate(k, kappa),
		})
	}
	slices.SortStableFunc(modes, func(a, b SpatialMode) int {
		return cmp.Compare(b.Amplitude, a.Amplitude)
	})
	return modes
}

// PredictedAmplitude returns the continuous-time amplitude of mode m after t.
func PredictedAmplitude(m SpatialMode, t float64) float64 {
	return m.Amplitude * math.Exp(m.Rate*t)
}

// PowerSpectrum returns the spherically averaged power spectrum of a field,
// binned in shells of width 2π/min(size).
func PowerSpectrum(field []float64, size Size) []PowerSample {
	coeffs := FFT3D(field, size)
	cells := float64(size.Cells())
	minDim := min(size.X, size.Y, size.Z)
	width := 2 * math.Pi / float64(minDim)

	sums := map[int]float64{}
	counts := map[int]int{}
	sx, sy := size.X, size.Y
	for i, f := range coeffs {
		x, y, z := i%sx, (i/sx)%sy, i/(sx*sy)
		kx := 2 * math.Pi * float64(signedWaveNumber(x, size.X)) / float64(size.X)
		ky := 2 * math.Pi * float64(signedWaveNumber(y, size.Y)) / float64(size.Y)
		kz := 2 * math.Pi * float64(signedWaveNumber(z, size.Z)) / float64(size.Z)
		bin := int(math.Round(math.Sqrt(kx*kx+ky*ky+kz*kz) / width))
		p := real(f)*real(f) + imag(f)*imag(f)
		sums[bin] += p / (cells * cells)
		counts[bin]++
	}

	bins := make([]int, 0, len(sums))
	for b := range sums {
		bins = append(bins, b)
	}
	slices.Sort(bins)
	out := make([]PowerSample, 0, len(bins))
	for _, b := range bins {
		out = append(out, PowerSample{K: float64(b) * width, Power: sums[b] / float64(counts[b]), Count: counts[b]})
	}
	return out
}
