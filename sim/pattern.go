// sim/pattern.go
package sim

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// Region classifies a cell by its density relative to the lattice.
type Region int

const (
	RegionVoid Region = iota
	RegionWall
	RegionFilament
)

func (r Region) String() string {
	switch r {
	case RegionVoid:
		return "void"
	case RegionWall:
		return "wall"
	case RegionFilament:
		return "filament"
	}
	return "unknown"
}

// maxClusterCenters bounds the pair count used for the clustering dimension.
const maxClusterCenters = 512

// PatternMetrics is a read-only summary of the spatial structure of the
// energy density field. Computing it never mutates the lattice.
type PatternMetrics struct {
	TotalEnergy float64
	DensityMean float64
	DensityStd  float64
	Variance    float64
	Skewness    float64
	Kurtosis    float64

	VoidFraction     float64
	WallFraction     float64
	FilamentFraction float64

	// ClusteringDimension is the log-log slope D of N(r) ∝ r^D over filament
	// pairs; zero when fewer than two radii have pairs.
	ClusteringDimension float64
	// NeighborCorrelation is the density correlation across lattice edges,
	// normalized by the variance (1 = perfectly smooth, 0 = uncorrelated).
	NeighborCorrelation float64
	Entropy             float64
	PowerSpectrum       []PowerSample
	// DominantFractions[v] is the fraction of cells whose largest variable
	// total is v. Empty cells count for none.
	DominantFractions [Vars]float64
}

// Density returns total cell energy divided by the cell volume.
func Density(l *Lattice, volume float64) []float64 {
	rho := l.Field((*Cell).Total)
	for i := range rho {
		rho[i] /= volume
	}
	return rho
}

// Classification holds the cell indices of each region and the thresholds
// mean ± σ used to assign them.
type Classification struct {
	Low, High float64
	Void      []int
	Wall      []int
	Filament  []int
}

// Classify splits cells into void (ρ < mean-σ), wall and filament (ρ > mean+σ).
func Classify(rho []float64) Classification {
	mean, std := stat.PopMeanStdDev(rho, nil)
	return ClassifyWithThresholds(rho, mean-std, mean+std)
}

// ClassifyWithThresholds splits cells using explicit density thresholds.
func ClassifyWithThresholds(rho []float64, low, high float64) Classification {
	cl := Classification{Low: low, High: high}
	for i, r := range rho {
		switch {
		case r < low:
			cl.Void = append(cl.Void, i)
		case r > high:
			cl.Filament = append(cl.Filament, i)
		default:
			cl.Wall = append(cl.Wall, i)
		}
	}
	return cl
}

// ComputePatternMetrics derives PatternMetrics from the lattice with the
// given cell volume.
func ComputePatternMetrics(l *Lattice, volume float64) PatternMetrics {
	rho := Density(l, volume)
	n := float64(len(rho))
	mean, std := stat.PopMeanStdDev(rho, nil)

	pm := PatternMetrics{
		TotalEnergy: TotalEnergy(l),
		DensityMean: mean,
		DensityStd:  std,
		Variance:    std * std,
		Entropy:     ShannonEntropy(l),
	}
	if std > 0 {
		pm.Skewness = stat.Skew(rho, nil)
		pm.Kurtosis = stat.ExKurtosis(rho, nil)
	}

	cl := ClassifyWithThresholds(rho, mean-std, mean+std)
	pm.VoidFraction = float64(len(cl.Void)) / n
	pm.WallFraction = float64(len(cl.Wall)) / n
	pm.FilamentFraction = float64(len(cl.Filament)) / n

	pm.ClusteringDimension = ClusteringDimension(l, cl.Filament)
	pm.NeighborCorrelation = neighborCorrelation(l, rho, mean, std)
	pm.PowerSpectrum = PowerSpectrum(rho, l.Size())
	for _, v := range VariableDominance(l) {
		if v >= 0 {
			pm.DominantFractions[v] += 1 / n
		}
	}
	return pm
}

// VariableDominance returns, per cell, the variable holding the most energy.
// Ties go to the lowest index; an empty cell maps to -1.
func VariableDominance(l *Lattice) []int {
	out := make([]int, l.Len())
	for i, c := range l.Cells() {
		best, arg := 0.0, -1
		for v := range Vars {
			if e := c.VariableTotal(v); e > best {
				best, arg = e, v
			}
		}
		out[i] = arg
	}
	return out
}

// ClusteringDimension estimates D in N(r) ∝ r^D, where N(r) is the mean
// number of other filament cells within periodic distance r of a filament
// cell, for r = 1 .. min(size)/2. At most maxClusterCenters cells are used
// as centers.
func ClusteringDimension(l *Lattice, filament []int) float64 {
	if len(filament) < 2 {
		return 0
	}
	size := l.Size()
	rMax := max(1, min(size.X, size.Y, size.Z)/2)

	stride := max(1, len(filament)/maxClusterCenters)
	counts := make([]float64, rMax+1)
	centers := 0
	for ci := 0; ci < len(filament); ci += stride {
		centers++
		a := l.Coord(filament[ci])
		for _, j := range filament {
			if j == filament[ci] {
				continue
			}
			d := periodicDistance(a, l.Coord(j), size)
			for r := max(1, int(math.Ceil(d))); r <= rMax; r++ {
				counts[r]++
			}
		}
	}

	var xs, ys []float64
	for r := 1; r <= rMax; r++ {
		if counts[r] == 0 {
			continue
		}
		xs = append(xs, math.Log(float64(r)))
		ys = append(ys, math.Log(counts[r]/float64(centers)))
	}
	if len(xs) < 2 {
		return 0
	}
	_, slope := stat.LinearRegression(xs, ys, nil, false)
	return slope
}

func periodicDistance(a, b Coord, size Size) float64 {
	dx := minImage(a.X-b.X, size.X)
	dy := minImage(a.Y-b.Y, size.Y)
	dz := minImage(a.Z-b.Z, size.Z)
	return math.Sqrt(float64(dx*dx + dy*dy + dz*dz))
}

func minImage(d, n int) int {
	d = wrap(d, n)
	if d > n/2 {
		d = n - d
	}
	return d
}

func neighborCorrelation(l *Lattice, rho []float64, mean, std float64) float64 {
	if std == 0 {
		return 0
	}
	sum := 0.0
	edges := 0
	for e := range l.Edges() {
		sum += (rho[e.A] - mean) * (rho[e.B] - mean)
		edges++
	}
	if edges == 0 {
		return 0
	}
	return sum / (float64(edges) * std * std)
}
