// Package testutil provides shared test infrastructure for voidsim.
// It consolidates golden dataset types, fixtures and float assertion helpers
// used across sim/ test packages. It must not import sim/.
package testutil

import (
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"gopkg.in/yaml.v3"
)

// ExchangeDataset represents the structure of testdata/exchange_golden.yaml.
type ExchangeDataset struct {
	Tests []ExchangeCase `yaml:"tests"`
}

// ExchangeCase is one pairwise exchange with independently computed results.
type ExchangeCase struct {
	Name  string  `yaml:"name"`
	Ei    float64 `yaml:"ei"`
	Ej    float64 `yaml:"ej"`
	Kappa float64 `yaml:"kappa"`
	Dt    float64 `yaml:"dt"`
	WantI float64 `yaml:"want_i"`
	WantJ float64 `yaml:"want_j"`
}

// LoadExchangeDataset loads the exchange golden dataset from the testdata directory.
// The path is resolved relative to this source file: sim/internal/testutil/ → testdata/.
func LoadExchangeDataset(t *testing.T) *ExchangeDataset {
	t.Helper()

	_, thisFile, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatal("Failed to get current file path")
	}
	// Navigate from sim/internal/testutil/ to repo root testdata/
	path := filepath.Join(filepath.Dir(thisFile), "..", "..", "..", "testdata", "exchange_golden.yaml")
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read exchange dataset: %v", err)
	}

	var dataset ExchangeDataset
	if err := yaml.Unmarshal(data, &dataset); err != nil {
		t.Fatalf("Failed to parse exchange dataset: %v", err)
	}

	return &dataset
}

// AssertFloat64Equal compares two float64 values with relative tolerance.
func AssertFloat64Equal(t *testing.T, name string, want, got, relTol float64) {
	t.Helper()
	if want == 0 && got == 0 {
		return
	}
	diff := math.Abs(want - got)
	maxVal := math.Max(math.Abs(want), math.Abs(got))
	if diff/maxVal > relTol {
		t.Errorf("%s: got %v, want %v (diff=%v, relDiff=%v)", name, got, want, diff, diff/maxVal)
	}
}

// AssertSliceNear compares two slices element-wise with an absolute tolerance.
func AssertSliceNear(t *testing.T, name string, want, got []float64, absTol float64) {
	t.Helper()
	if len(want) != len(got) {
		t.Fatalf("%s: length %d, want %d", name, len(got), len(want))
	}
	for i := range want {
		if d := math.Abs(want[i] - got[i]); d > absTol {
			t.Errorf("%s[%d]: got %v, want %v (diff=%v)", name, i, got[i], want[i], d)
		}
	}
}

// RandomAntisymmetric returns a flattened n×n antisymmetric matrix with
// entries uniform in [-scale, scale).
func RandomAntisymmetric(rng *rand.Rand, n int, scale float64) []float64 {
	a := make([]float64, n*n)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			x := scale * (2*rng.Float64() - 1)
			a[i*n+j] = x
			a[j*n+i] = -x
		}
	}
	return a
}

// RandomNonNegative returns n values uniform in [0, scale).
func RandomNonNegative(rng *rand.Rand, n int, scale float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = scale * rng.Float64()
	}
	return out
}
