package survival

import (
	"math"
	"time"

	"github.com/meenmo/ttdlib/config"
	"github.com/meenmo/ttdlib/utils"
)

// Solver inverts one curve over a fixed window: Solve(p) is the number of
// days d after start with S(start, start+d) = p.
type Solver struct {
	curve  Curve
	hazard HazardRater
	start  time.Time
	window float64 // days from start to end

	tol        float64
	maxIter    int
	expansions int
	minDeriv   float64
}

// NewSolver captures curve and window. The root-finding knobs are read from
// config at construction.
func NewSolver(curve Curve, start, end time.Time) *Solver {
	cfg := config.GetConfig()
	s := &Solver{
		curve:      curve,
		start:      start,
		window:     math.Max(utils.Days(start, end), 1),
		tol:        cfg.SolverTolerance,
		maxIter:    cfg.MaxSolverIterations,
		expansions: cfg.MaxBracketExpansions,
		minDeriv:   cfg.DerivativeThreshold,
	}
	if h, ok := curve.(HazardRater); ok {
		s.hazard = h
	}
	return s
}

// Curve returns the curve being inverted.
func (s *Solver) Curve() Curve { return s.curve }

// Solve returns days from start where conditional survival equals target.
// target >= 1 gives 0 and target <= 0 gives +Inf. When the root lies beyond
// every bracket expansion the last bracket end is returned; callers reject
// roots at or after the window end.
func (s *Solver) Solve(target float64) float64 {
	switch {
	case math.IsNaN(target):
		return math.Inf(1)
	case target >= 1:
		return 0
	case target <= 0:
		return math.Inf(1)
	}
	logTarget := math.Log(target)

	lo, hi := 0.0, s.window
	fHi := s.residual(hi, logTarget)
	for i := 0; fHi > 0 && i < s.expansions; i++ {
		lo = hi
		hi *= 2
		fHi = s.residual(hi, logTarget)
	}
	if fHi > 0 {
		return hi
	}

	// Newton on ln S, falling back to bisection whenever the step leaves
	// the bracket or the derivative vanishes.
	d := 0.5 * (lo + hi)
	for iter := 0; iter < s.maxIter; iter++ {
		f := s.residual(d, logTarget)
		if math.Abs(f) < s.tol {
			return d
		}
		if f > 0 {
			lo = d
		} else {
			hi = d
		}

		deriv := s.derivative(d)
		next := d - f/deriv
		if math.Abs(deriv) < s.minDeriv || !(next > lo && next < hi) {
			next = 0.5 * (lo + hi)
		}
		if hi-lo < s.tol {
			return next
		}
		d = next
	}
	return d
}

// residual is ln S(start, start+d) - ln target; decreasing in d.
func (s *Solver) residual(d, logTarget float64) float64 {
	return math.Log(s.curve.Interpolate(s.start, utils.AddDays(s.start, d))) - logTarget
}

// derivative is d/dd ln S(start, start+d), per day.
func (s *Solver) derivative(d float64) float64 {
	if s.hazard != nil {
		return -s.hazard.Hazard(utils.AddDays(s.start, d)) / 365
	}
	const h = 1e-3
	lo := math.Max(0, d-h)
	a := math.Log(s.curve.Interpolate(s.start, utils.AddDays(s.start, lo)))
	b := math.Log(s.curve.Interpolate(s.start, utils.AddDays(s.start, d+h)))
	return (b - a) / (d + h - lo)
}
