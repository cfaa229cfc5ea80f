// Package survival holds the per-name survival curves consumed by the
// time-to-default samplers and the solver that inverts them.
package survival

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/meenmo/ttdlib/calendar"
	"github.com/meenmo/ttdlib/utils"
)

// ErrInvalidCurve is wrapped by every curve construction error.
var ErrInvalidCurve = errors.New("invalid survival curve")

// Curve is the survival-probability collaborator used by the samplers.
type Curve interface {
	// Interpolate returns the probability of surviving to end given survival to start.
	Interpolate(start, end time.Time) float64
}

// HazardRater is implemented by curves that expose their instantaneous hazard.
// The solver uses it for an analytic Newton derivative.
type HazardRater interface {
	Hazard(t time.Time) float64
}

// curveDayCount is the time axis of every hazard curve.
const curveDayCount = "ACT/365F"

// HazardCurve interpolates log survival linearly in time between pillars,
// i.e. piecewise-constant hazard. Beyond the last pillar the last hazard is
// extended; before the anchor survival is 1.
type HazardCurve struct {
	anchor  time.Time
	pillars []time.Time
	times   []float64 // ACT/365F from anchor
	logS    []float64
	hazards []float64 // hazards[k] applies on (times[k-1], times[k]]
}

// NewCurve builds a curve from survival probabilities at pillar dates.
// Probabilities must lie in (0, 1] and be non-increasing in time.
func NewCurve(anchor time.Time, survival map[time.Time]float64) (*HazardCurve, error) {
	if len(survival) == 0 {
		return nil, fmt.Errorf("NewCurve: %w: no pillars", ErrInvalidCurve)
	}
	dates := make([]time.Time, 0, len(survival))
	for d, s := range survival {
		if !d.After(anchor) {
			return nil, fmt.Errorf("NewCurve: %w: pillar %s not after anchor %s", ErrInvalidCurve, utils.FormatDate(d), utils.FormatDate(anchor))
		}
		if math.IsNaN(s) || s <= 0 || s > 1 {
			return nil, fmt.Errorf("NewCurve: %w: survival %v at %s outside (0, 1]", ErrInvalidCurve, s, utils.FormatDate(d))
		}
		dates = append(dates, d)
	}
	utils.SortDates(dates)

	c := &HazardCurve{
		anchor:  anchor,
		pillars: dates,
		times:   make([]float64, len(dates)),
		logS:    make([]float64, len(dates)),
		hazards: make([]float64, len(dates)),
	}
	prevT, prevLog := 0.0, 0.0
	for k, d := range dates {
		t := utils.YearFraction(anchor, d, curveDayCount)
		l := math.Log(survival[d])
		if l > prevLog {
			return nil, fmt.Errorf("NewCurve: %w: survival increases at %s", ErrInvalidCurve, utils.FormatDate(d))
		}
		c.times[k] = t
		c.logS[k] = l
		c.hazards[k] = (prevLog - l) / (t - prevT)
		prevT, prevLog = t, l
	}
	return c, nil
}

// FlatHazard returns a constant-hazard curve, S(t) = exp(-lambda*t).
func FlatHazard(anchor time.Time, lambda float64) (*HazardCurve, error) {
	if math.IsNaN(lambda) || math.IsInf(lambda, 0) || lambda < 0 {
		return nil, fmt.Errorf("FlatHazard: %w: hazard %v must be finite and non-negative", ErrInvalidCurve, lambda)
	}
	pillar := anchor.AddDate(1, 0, 0)
	t := utils.YearFraction(anchor, pillar, curveDayCount)
	return NewCurve(anchor, map[time.Time]float64{pillar: math.Exp(-lambda * t)})
}

// BuildCurve bootstraps a curve from piecewise hazards quoted by tenor
// ("6M", "1Y", "5Y"). Month and year tenors roll to the standard CDS IMM
// maturity; day and week tenors are adjusted following on cal.
func BuildCurve(anchor time.Time, hazards map[string]float64, cal calendar.CalendarID) (*HazardCurve, error) {
	if len(hazards) == 0 {
		return nil, fmt.Errorf("BuildCurve: %w: no quotes", ErrInvalidCurve)
	}
	type quote struct {
		date   time.Time
		hazard float64
	}
	quotes := make([]quote, 0, len(hazards))
	seen := make(map[time.Time]string, len(hazards))
	for tenor, h := range hazards {
		if math.IsNaN(h) || h < 0 {
			return nil, fmt.Errorf("BuildCurve: %w: hazard %v for %s", ErrInvalidCurve, h, tenor)
		}
		d, err := tenorDate(anchor, tenor, cal)
		if err != nil {
			return nil, fmt.Errorf("BuildCurve: %w", err)
		}
		if other, dup := seen[d]; dup {
			return nil, fmt.Errorf("BuildCurve: %w: tenors %s and %s share maturity %s", ErrInvalidCurve, other, tenor, utils.FormatDate(d))
		}
		seen[d] = tenor
		quotes = append(quotes, quote{date: d, hazard: h})
	}
	sort.Slice(quotes, func(i, j int) bool { return quotes[i].date.Before(quotes[j].date) })

	survival := make(map[time.Time]float64, len(quotes))
	prevT, logS := 0.0, 0.0
	for _, q := range quotes {
		t := utils.YearFraction(anchor, q.date, curveDayCount)
		logS -= q.hazard * (t - prevT)
		survival[q.date] = math.Exp(logS)
		prevT = t
	}
	return NewCurve(anchor, survival)
}

// Anchor returns the curve date, where survival is 1.
func (c *HazardCurve) Anchor() time.Time { return c.anchor }

// Pillars returns a copy of the pillar dates.
func (c *HazardCurve) Pillars() []time.Time {
	return append([]time.Time(nil), c.pillars...)
}

// Survival returns S(anchor, t).
func (c *HazardCurve) Survival(t time.Time) float64 {
	return math.Exp(c.logSurvival(c.yearFraction(t)))
}

// Interpolate returns S(end)/S(start).
func (c *HazardCurve) Interpolate(start, end time.Time) float64 {
	return math.Exp(c.logSurvival(c.yearFraction(end)) - c.logSurvival(c.yearFraction(start)))
}

// Hazard returns the instantaneous annual hazard at t.
func (c *HazardCurve) Hazard(t time.Time) float64 {
	x := c.yearFraction(t)
	if x < 0 {
		return 0
	}
	k := sort.SearchFloat64s(c.times, x)
	if k >= len(c.times) {
		k = len(c.times) - 1
	}
	return c.hazards[k]
}

// Shift returns a copy with every hazard bumped by dLambda. Hazards are
// floored at zero.
func (c *HazardCurve) Shift(dLambda float64) *HazardCurve {
	out := &HazardCurve{
		anchor:  c.anchor,
		pillars: append([]time.Time(nil), c.pillars...),
		times:   append([]float64(nil), c.times...),
		logS:    make([]float64, len(c.logS)),
		hazards: make([]float64, len(c.hazards)),
	}
	prevT, logS := 0.0, 0.0
	for k, h := range c.hazards {
		h = math.Max(0, h+dLambda)
		logS -= h * (c.times[k] - prevT)
		out.hazards[k] = h
		out.logS[k] = logS
		prevT = c.times[k]
	}
	return out
}

func (c *HazardCurve) yearFraction(t time.Time) float64 {
	return utils.YearFraction(c.anchor, t, curveDayCount)
}

func (c *HazardCurve) logSurvival(x float64) float64 {
	if x <= 0 {
		return 0
	}
	k := sort.SearchFloat64s(c.times, x)
	if k >= len(c.times) {
		last := len(c.times) - 1
		return c.logS[last] - c.hazards[last]*(x-c.times[last])
	}
	prevT, prevLog := 0.0, 0.0
	if k > 0 {
		prevT, prevLog = c.times[k-1], c.logS[k-1]
	}
	return prevLog - c.hazards[k]*(x-prevT)
}
