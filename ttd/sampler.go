package ttd

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/meenmo/ttdlib/copula"
	"github.com/meenmo/ttdlib/logging"
	"github.com/meenmo/ttdlib/survival"
)

// Options are shared by every sampler in the package.
type Options struct {
	// Antithetic pairs every fresh copula draw with its mirror image.
	Antithetic bool
	// SortDefaults orders each path's defaults by date; otherwise they are
	// reported in name order.
	SortDefaults bool
	Logger       *zap.Logger
}

// latent is the ready/drawn state machine over the copula draw, including
// the antithetic pair flag.
type latent struct {
	cop        copula.Copula
	antithetic bool
	mirror     bool // next draw reuses the mirror of the previous one
	x          []float64
}

func newLatent(cop copula.Copula, antithetic bool) latent {
	return latent{cop: cop, antithetic: antithetic, x: make([]float64, cop.Size())}
}

func (l *latent) next() {
	if l.mirror {
		l.cop.Antithetic(l.x)
		l.mirror = false
		return
	}
	l.cop.Draw(l.x)
	l.mirror = l.antithetic
}

// Sampler draws unweighted i.i.d. paths. Stratum is always 0 and Weight 1.
type Sampler struct {
	pathState
	win    *window
	lat    latent
	sort   bool
	logger *zap.Logger
}

var _ Rng = (*Sampler)(nil)

// New returns a sampler over [start, end) with one curve per copula name.
func New(curves []survival.Curve, cop copula.Copula, start, end time.Time, opts Options) (*Sampler, error) {
	win, err := newWindow(curves, cop, start, end)
	if err != nil {
		return nil, fmt.Errorf("ttd.New: %w", err)
	}
	logger := logging.OrNop(opts.Logger)
	logger.Debug("time-to-default sampler ready",
		zap.Int("names", len(curves)),
		zap.Time("start", start),
		zap.Time("end", end),
		zap.Bool("antithetic", opts.Antithetic),
		zap.Float64s("default_probabilities", win.pd),
	)
	return &Sampler{
		pathState: pathState{weight: 1},
		win:       win,
		lat:       newLatent(cop, opts.Antithetic),
		sort:      opts.SortDefaults,
		logger:    logger,
	}, nil
}

// Draw advances to the next path and returns its number of defaults.
func (s *Sampler) Draw() int {
	s.lat.next()
	s.names, s.dates = s.win.evaluate(s.lat.x, s.sort, s.names, s.dates)
	s.drawn = true
	return len(s.names)
}

// DefaultProbabilities returns each name's probability of defaulting in the window.
func (s *Sampler) DefaultProbabilities() []float64 {
	return append([]float64(nil), s.win.pd...)
}

// Clone returns a sampler with a deep copy of the entropy source and the
// current state. Both produce the same sequence from here on without
// affecting each other.
func (s *Sampler) Clone() *Sampler {
	cop := s.lat.cop.WithCore(s.lat.cop.Core().Clone())
	win := *s.win
	win.cop = cop

	cp := &Sampler{
		pathState: pathState{
			names:  append([]int(nil), s.names...),
			dates:  append([]time.Time(nil), s.dates...),
			weight: s.weight,
			drawn:  s.drawn,
		},
		win:    &win,
		lat:    newLatent(cop, s.lat.antithetic),
		sort:   s.sort,
		logger: s.logger,
	}
	cp.lat.mirror = s.lat.mirror
	copy(cp.lat.x, s.lat.x)
	return cp
}
