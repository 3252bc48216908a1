// sim/oscillation.go
package sim

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// AmplitudeSample is one (time, amplitude) observation of a mode.
type AmplitudeSample struct {
	T float64
	A float64
}

// ModeTracker records the amplitude of one mode over time.
type ModeTracker struct {
	Mode    Mode
	History []AmplitudeSample
}

// Track appends the cell's projection onto the tracked mode at time t.
func (mt *ModeTracker) Track(c Cell, t float64) {
	mt.History = append(mt.History, AmplitudeSample{T: t, A: ProjectOntoMode(c, mt.Mode)})
}

// EstimateFrequency recovers the angular frequency of an oscillating series
// from its zero crossings (linearly interpolated). It needs at least two
// crossings.
func EstimateFrequency(history []AmplitudeSample) (float64, bool) {
	var crossings []float64
	for i := 1; i < len(history); i++ {
		a, b := history[i-1], history[i]
		if (a.A < 0 && b.A >= 0) || (a.A > 0 && b.A <= 0) {
			frac := a.A / (a.A - b.A)
			crossings = append(crossings, a.T+frac*(b.T-a.T))
		}
	}
	if len(crossings) < 2 {
		return 0, false
	}
	halfPeriod := (crossings[len(crossings)-1] - crossings[0]) / float64(len(crossings)-1)
	if halfPeriod <= 0 {
		return 0, false
	}
	return math.Pi / halfPeriod, true
}

// OscillationFit is the least-squares fit A(t) ≈ Amplitude·cos(ωt + Phase).
type OscillationFit struct {
	Amplitude float64
	Phase     float64
	RMS       float64
}

// FitOscillation fits a·cos(ωt) + b·sin(ωt) to the history for a known ω.
func FitOscillation(history []AmplitudeSample, omega float64) (OscillationFit, error) {
	n := len(history)
	x := mat.NewDense(n, 2, nil)
	y := mat.NewVecDense(n, nil)
	for i, s := range history {
		x.Set(i, 0, math.Cos(omega*s.T))
		x.Set(i, 1, math.Sin(omega*s.T))
		y.SetVec(i, s.A)
	}
	var coef mat.VecDense
	if err := coef.SolveVec(x, y); err != nil {
		return OscillationFit{}, err
	}
	a, b := coef.AtVec(0), coef.AtVec(1)

	rss := 0.0
	for i, s := range history {
		d := s.A - (a*x.At(i, 0) + b*x.At(i, 1))
		rss += d * d
	}
	// a·cos + b·sin = R·cos(ωt + φ) with R = √(a²+b²), φ = atan2(-b, a).
	return OscillationFit{
		Amplitude: math.Hypot(a, b),
		Phase:     math.Atan2(-b, a),
		RMS:       math.Sqrt(rss / float64(n)),
	}, nil
}
