package ttd

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/meenmo/ttdlib/copula"
	"github.com/meenmo/ttdlib/survival"
	"github.com/meenmo/ttdlib/utils"
)

// window holds everything fixed for one set of curves over [start, end):
// per-name default thresholds on the copula's latent scale and one solver
// per name.
type window struct {
	start, end time.Time
	cop        copula.Copula
	curves     []survival.Curve
	solvers    []*survival.Solver
	pd         []float64 // default probability within the window
	thresholds []float64
}

func newWindow(curves []survival.Curve, cop copula.Copula, start, end time.Time) (*window, error) {
	if len(curves) == 0 {
		return nil, fmt.Errorf("%w: no survival curves", ErrInvalidConfig)
	}
	if cop == nil {
		return nil, fmt.Errorf("%w: nil copula", ErrInvalidConfig)
	}
	if cop.Size() != len(curves) {
		return nil, fmt.Errorf("%w: copula covers %d names, %d curves given", ErrInvalidConfig, cop.Size(), len(curves))
	}
	if !end.After(start) {
		return nil, fmt.Errorf("%w: window end %s not after start %s", ErrInvalidConfig, utils.FormatDate(end), utils.FormatDate(start))
	}

	w := &window{
		start:      start,
		end:        end,
		cop:        cop,
		curves:     curves,
		solvers:    make([]*survival.Solver, len(curves)),
		pd:         make([]float64, len(curves)),
		thresholds: make([]float64, len(curves)),
	}
	for i, c := range curves {
		if c == nil {
			return nil, fmt.Errorf("%w: nil survival curve for name %d", ErrInvalidConfig, i)
		}
		s := c.Interpolate(start, end)
		if math.IsNaN(s) || s < 0 || s > 1 {
			return nil, fmt.Errorf("%w: survival %v for name %d outside [0, 1]", ErrInvalidConfig, s, i)
		}
		w.pd[i] = 1 - s
		w.thresholds[i] = cop.LevelFromProbability(w.pd[i])
		w.solvers[i] = survival.NewSolver(c, start, end)
	}
	return w, nil
}

// defaultDate reports whether name i defaults inside the window for latent
// level x, and when.
func (w *window) defaultDate(i int, x float64) (time.Time, bool) {
	if w.pd[i] <= 0 || x > w.thresholds[i] {
		return time.Time{}, false
	}
	target := 1 - w.cop.ProbabilityFromLevel(x)
	date := utils.TruncateDay(w.start, w.solvers[i].Solve(target))
	if !date.Before(w.end) {
		return time.Time{}, false
	}
	return date, true
}

// evaluate appends the defaults of latent vector x to names and dates, in
// name order or, when sorted, by ascending date with ties in name order.
func (w *window) evaluate(x []float64, sorted bool, names []int, dates []time.Time) ([]int, []time.Time) {
	names, dates = names[:0], dates[:0]
	for i, xi := range x {
		if d, ok := w.defaultDate(i, xi); ok {
			names = append(names, i)
			dates = append(dates, d)
		}
	}
	if sorted {
		sortByDate(names, dates)
	}
	return names, dates
}

// breaches counts threshold breaches without solving for dates.
func (w *window) breaches(x []float64) int {
	k := 0
	for i, xi := range x {
		if w.pd[i] > 0 && xi <= w.thresholds[i] {
			k++
		}
	}
	return k
}

type byDate struct {
	names []int
	dates []time.Time
}

func (b byDate) Len() int           { return len(b.names) }
func (b byDate) Less(i, j int) bool { return b.dates[i].Before(b.dates[j]) }
func (b byDate) Swap(i, j int) {
	b.names[i], b.names[j] = b.names[j], b.names[i]
	b.dates[i], b.dates[j] = b.dates[j], b.dates[i]
}

func sortByDate(names []int, dates []time.Time) {
	sort.Stable(byDate{names: names, dates: dates})
}
