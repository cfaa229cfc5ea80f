package ttd

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/meenmo/ttdlib/copula"
	"github.com/meenmo/ttdlib/survival"
	"github.com/meenmo/ttdlib/utils"
)

// TwoStageOptions configure NewTwoStage. The stratification applies to the
// initial period [start, middle).
type TwoStageOptions struct {
	StratifiedOptions
}

// TwoStage draws initial-period paths on [start, middle) from a stratified
// sampler and hands out continuations over [middle, end) for the names that
// survived.
type TwoStage struct {
	*Stratified
	curves []survival.Curve
	cop    copula.Copula
	middle time.Time
	end    time.Time
	opts   Options
}

var _ Rng = (*TwoStage)(nil)

// NewTwoStage splits [start, end) at middle.
func NewTwoStage(curves []survival.Curve, cop copula.Copula, start, middle, end time.Time, opts TwoStageOptions) (*TwoStage, error) {
	if !middle.After(start) || !end.After(middle) {
		return nil, fmt.Errorf("NewTwoStage: %w: middle %s must lie strictly inside (%s, %s)", ErrInvalidConfig,
			utils.FormatDate(middle), utils.FormatDate(start), utils.FormatDate(end))
	}
	initial, err := NewStratified(curves, cop, start, middle, opts.StratifiedOptions)
	if err != nil {
		return nil, fmt.Errorf("NewTwoStage: %w", err)
	}
	return &TwoStage{
		Stratified: initial,
		curves:     append([]survival.Curve(nil), curves...),
		cop:        cop,
		middle:     middle,
		end:        end,
		opts:       opts.Options,
	}, nil
}

// Continuation builds the sampler over [middle, end) for the current initial
// path. Survivors' thresholds and solvers are conditional on survival to
// middle; the sub-copula shares the initial sampler's core.
func (t *TwoStage) Continuation() (*Continuation, error) {
	if !t.drawn {
		return nil, fmt.Errorf("Continuation: %w", ErrNoPath)
	}
	c := &Continuation{
		initial: t.Path(),
		sort:    t.opts.SortDefaults,
	}
	c.pathState = pathState{stratum: c.initial.Stratum, weight: c.initial.Weight}

	defaulted := make(map[int]bool, len(c.initial.Names))
	for _, name := range c.initial.Names {
		defaulted[name] = true
	}
	for i := range t.curves {
		if !defaulted[i] {
			c.survivors = append(c.survivors, i)
		}
	}
	if len(c.survivors) == 0 {
		return c, nil
	}

	sub, err := t.cop.Subset(c.survivors)
	if err != nil {
		return nil, fmt.Errorf("Continuation: %w", err)
	}
	curves := make([]survival.Curve, len(c.survivors))
	for k, i := range c.survivors {
		curves[k] = t.curves[i]
	}
	if c.win, err = newWindow(curves, sub, t.middle, t.end); err != nil {
		return nil, fmt.Errorf("Continuation: %w", err)
	}
	c.lat = newLatent(sub, t.opts.Antithetic)

	t.logger.Debug("continuation ready",
		zap.Int("initial_defaults", len(c.initial.Names)),
		zap.Int("survivors", len(c.survivors)),
	)
	return c, nil
}

// Continuation completes one initial path over [middle, end). Every path
// reports the initial defaults first, unchanged, followed by the
// continuation defaults in basket name indices.
type Continuation struct {
	pathState
	initial   Path
	survivors []int
	win       *window // nil when every name defaulted initially
	lat       latent
	sort      bool

	subNames []int
	subDates []time.Time
}

var _ Rng = (*Continuation)(nil)

// Survivors returns the basket indices of names alive at middle.
func (c *Continuation) Survivors() []int {
	return append([]int(nil), c.survivors...)
}

// Draw returns the total number of defaults over [start, end).
func (c *Continuation) Draw() int {
	c.names = append(c.names[:0], c.initial.Names...)
	c.dates = append(c.dates[:0], c.initial.Dates...)
	c.drawn = true
	if c.win == nil {
		return len(c.names)
	}

	c.lat.next()
	c.subNames, c.subDates = c.win.evaluate(c.lat.x, c.sort, c.subNames, c.subDates)
	for k, j := range c.subNames {
		c.names = append(c.names, c.survivors[j])
		c.dates = append(c.dates, c.subDates[k])
	}
	return len(c.names)
}
