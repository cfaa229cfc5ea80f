package ttd

import (
	"fmt"
	"math"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/meenmo/ttdlib/config"
	"github.com/meenmo/ttdlib/copula"
	"github.com/meenmo/ttdlib/logging"
	"github.com/meenmo/ttdlib/survival"
)

// Stratum is an inclusive range of default counts.
type Stratum struct {
	Min, Max int
}

// MassPolicy selects how stratum probabilities are obtained.
type MassPolicy int

const (
	// AutoMass uses ExactMass when the copula supports it, PilotMass otherwise.
	AutoMass MassPolicy = iota
	// ExactMass integrates the default-count distribution over the common
	// factor. Only one-factor Gaussian copulas support it.
	ExactMass
	// PilotMass estimates stratum probabilities from a pilot simulation on a
	// stream derived from the copula's core.
	PilotMass
)

func (m MassPolicy) String() string {
	switch m {
	case AutoMass:
		return "auto"
	case ExactMass:
		return "exact"
	case PilotMass:
		return "pilot"
	}
	return fmt.Sprintf("MassPolicy(%d)", int(m))
}

// pilotStream labels the derived rng stream used for pilot runs.
const pilotStream = 0x5eed

// StratifiedOptions configure NewStratified.
type StratifiedOptions struct {
	Options

	// Strata partition the default counts 0..N. Empty means one stratum.
	Strata []Stratum
	// TotalPaths is the proportional-allocation budget. Ignored when
	// Allocation is set.
	TotalPaths int
	// Allocation overrides the number of paths per stratum.
	Allocation []int
	// Alternatives are alternate curve sets, one curve per name each.
	Alternatives [][]survival.Curve

	Mass MassPolicy
	// PilotPaths defaults to config PilotPaths.
	PilotPaths int
	// MaxRejections caps consecutive rejected draws inside one Draw call.
	// Defaults to config MaxRejections.
	MaxRejections int
}

// Stratified draws paths with a fixed quota per stratum of default counts.
//
// Each accepted path carries weight p_k * n / n_k where p_k is the stratum
// probability, n_k its quota and n the total quota, so the plain average of
// weight*payoff over all paths is unbiased and proportional allocation gives
// weights near 1.
type Stratified struct {
	pathState
	win       *window
	alts      []*window
	lat       latent
	sort      bool
	logger    *zap.Logger
	maxReject int

	strata    []Stratum
	stratumOf []int // default count -> stratum index
	probs     []float64
	alloc     []int
	remaining []int
	weights   []float64
}

var _ Rng = (*Stratified)(nil)

// NewStratified validates the strata, computes their probabilities and
// allocates the path budget.
func NewStratified(curves []survival.Curve, cop copula.Copula, start, end time.Time, opts StratifiedOptions) (*Stratified, error) {
	win, err := newWindow(curves, cop, start, end)
	if err != nil {
		return nil, fmt.Errorf("NewStratified: %w", err)
	}
	n := len(curves)
	logger := logging.OrNop(opts.Logger)
	cfg := config.GetConfig()

	strata := opts.Strata
	if len(strata) == 0 {
		strata = []Stratum{{Min: 0, Max: n}}
	}
	stratumOf, err := partition(strata, n)
	if err != nil {
		return nil, fmt.Errorf("NewStratified: %w", err)
	}

	alts := make([]*window, len(opts.Alternatives))
	for k, set := range opts.Alternatives {
		if len(set) != n {
			return nil, fmt.Errorf("NewStratified: %w: alternative set %d has %d curves, want %d", ErrInvalidConfig, k, len(set), n)
		}
		if alts[k], err = newWindow(set, cop, start, end); err != nil {
			return nil, fmt.Errorf("NewStratified: alternative set %d: %w", k, err)
		}
	}

	s := &Stratified{
		pathState: pathState{weight: 1},
		win:       win,
		alts:      alts,
		lat:       newLatent(cop, opts.Antithetic),
		sort:      opts.SortDefaults,
		logger:    logger,
		maxReject: opts.MaxRejections,
		strata:    append([]Stratum(nil), strata...),
		stratumOf: stratumOf,
	}
	if s.maxReject <= 0 {
		s.maxReject = cfg.MaxRejections
	}

	pilot := opts.PilotPaths
	if pilot <= 0 {
		pilot = cfg.PilotPaths
	}
	if s.probs, err = s.stratumMass(opts.Mass, pilot); err != nil {
		return nil, fmt.Errorf("NewStratified: %w", err)
	}
	if s.alloc, err = allocate(s.probs, opts.TotalPaths, opts.Allocation, logger); err != nil {
		return nil, fmt.Errorf("NewStratified: %w", err)
	}

	total := 0
	for _, a := range s.alloc {
		total += a
	}
	s.remaining = append([]int(nil), s.alloc...)
	s.weights = make([]float64, len(s.alloc))
	for k, a := range s.alloc {
		if a > 0 {
			s.weights[k] = s.probs[k] * float64(total) / float64(a)
		}
	}

	logger.Debug("stratified sampler ready",
		zap.Int("names", n),
		zap.Stringer("mass", opts.Mass),
		zap.Float64s("stratum_probabilities", s.probs),
		zap.Ints("allocation", s.alloc),
		zap.Int("alternatives", len(alts)),
	)
	return s, nil
}

// partition maps every default count 0..n to exactly one stratum.
func partition(strata []Stratum, n int) ([]int, error) {
	of := make([]int, n+1)
	for k := range of {
		of[k] = -1
	}
	for i, st := range strata {
		if st.Min < 0 || st.Max > n || st.Min > st.Max {
			return nil, fmt.Errorf("%w: stratum %d [%d, %d] outside [0, %d]", ErrInvalidConfig, i, st.Min, st.Max, n)
		}
		for k := st.Min; k <= st.Max; k++ {
			if of[k] >= 0 {
				return nil, fmt.Errorf("%w: strata %d and %d overlap at %d defaults", ErrInvalidConfig, of[k], i, k)
			}
			of[k] = i
		}
	}
	for k, i := range of {
		if i < 0 {
			return nil, fmt.Errorf("%w: no stratum covers %d defaults", ErrInvalidConfig, k)
		}
	}
	return of, nil
}

func (s *Stratified) stratumMass(policy MassPolicy, pilotPaths int) ([]float64, error) {
	var dist []float64
	switch policy {
	case AutoMass, ExactMass:
		if cd, ok := s.win.cop.(copula.CountDistributor); ok {
			dist, ok = cd.DefaultCountDistribution(s.win.pd)
			if !ok {
				dist = nil
			}
		}
		if dist == nil && policy == ExactMass {
			return nil, fmt.Errorf("%w: exact stratum mass needs a one-factor Gaussian copula", ErrInvalidConfig)
		}
	case PilotMass:
	default:
		return nil, fmt.Errorf("%w: unknown mass policy %d", ErrInvalidConfig, int(policy))
	}
	if dist == nil {
		if pilotPaths <= 0 {
			return nil, fmt.Errorf("%w: pilot stratum mass needs positive pilot paths, got %d", ErrInvalidConfig, pilotPaths)
		}
		dist = s.pilotDistribution(pilotPaths)
	}

	probs := make([]float64, len(s.strata))
	for k, p := range dist {
		probs[s.stratumOf[k]] += p
	}
	return probs, nil
}

// pilotDistribution estimates P(count = k) on a derived stream, leaving the
// main stream untouched.
func (s *Stratified) pilotDistribution(paths int) []float64 {
	cop := s.win.cop.WithCore(s.win.cop.Core().Derive(pilotStream))
	x := make([]float64, cop.Size())
	dist := make([]float64, cop.Size()+1)
	for i := 0; i < paths; i++ {
		cop.Draw(x)
		dist[s.win.breaches(x)]++
	}
	for k := range dist {
		dist[k] /= float64(paths)
	}
	return dist
}

// allocate honours an explicit allocation or splits total proportionally,
// giving every stratum with positive mass at least one path.
func allocate(probs []float64, total int, explicit []int, logger *zap.Logger) ([]int, error) {
	alloc := make([]int, len(probs))
	if explicit != nil {
		if len(explicit) != len(probs) {
			return nil, fmt.Errorf("%w: %d allocations for %d strata", ErrInvalidConfig, len(explicit), len(probs))
		}
		sum := 0
		for k, a := range explicit {
			if a < 0 {
				return nil, fmt.Errorf("%w: negative allocation %d for stratum %d", ErrInvalidConfig, a, k)
			}
			if a > 0 && probs[k] == 0 {
				logger.Warn("dropping allocation for zero-probability stratum", zap.Int("stratum", k), zap.Int("paths", a))
				a = 0
			}
			alloc[k] = a
			sum += a
		}
		if sum == 0 {
			return nil, fmt.Errorf("%w: allocation has no paths in a stratum with positive probability", ErrInvalidConfig)
		}
		return alloc, nil
	}

	if total <= 0 {
		return nil, fmt.Errorf("%w: total paths must be positive, got %d", ErrInvalidConfig, total)
	}
	for k, p := range probs {
		if p > 0 {
			alloc[k] = max(1, int(math.Round(float64(total)*p)))
		}
	}
	return alloc, nil
}

// Draw rejects candidate paths until one lands in a stratum with quota left.
// It returns Exhausted when every quota is filled or the rejection budget
// is spent.
func (s *Stratified) Draw() int {
	if s.Remaining() == 0 {
		s.clear()
		return Exhausted
	}
	for tries := 0; tries < s.maxReject; tries++ {
		s.lat.next()
		names, dates := s.win.evaluate(s.lat.x, s.sort, s.names, s.dates)
		k := s.stratumOf[len(names)]
		if s.remaining[k] == 0 {
			s.names, s.dates = names, dates
			continue
		}
		s.remaining[k]--
		s.set(names, dates, k, s.weights[k])
		return len(names)
	}
	s.logger.Warn("stratified sampler gave up after rejection budget",
		zap.Int("max_rejections", s.maxReject),
		zap.Ints("remaining", s.remaining),
	)
	s.clear()
	return Exhausted
}

// StratumProbabilities returns the probability mass of each stratum.
func (s *Stratified) StratumProbabilities() []float64 {
	return append([]float64(nil), s.probs...)
}

// Allocation returns the path quota of each stratum.
func (s *Stratified) Allocation() []int {
	return append([]int(nil), s.alloc...)
}

// Strata returns the strata in caller order.
func (s *Stratified) Strata() []Stratum {
	return append([]Stratum(nil), s.strata...)
}

// Remaining returns the number of paths still to be drawn.
func (s *Stratified) Remaining() int {
	n := 0
	for _, r := range s.remaining {
		n += r
	}
	return n
}

// Alternatives returns the number of alternate curve sets.
func (s *Stratified) Alternatives() int { return len(s.alts) }

// AlternativePath re-evaluates the current draw against alternate curve set
// set. The copula is not redrawn; stratum and weight are the base path's.
func (s *Stratified) AlternativePath(set int) (Path, error) {
	alt, err := s.alternative(set)
	if err != nil {
		return Path{}, fmt.Errorf("AlternativePath: %w", err)
	}
	names, dates := alt.evaluate(s.lat.x, s.sort, nil, nil)
	return Path{Stratum: s.stratum, Weight: s.weight, Names: names, Dates: dates}, nil
}

// AlternativePathForName moves only name ith to alternate curve set set,
// holding every other name at its base outcome.
func (s *Stratified) AlternativePathForName(set, ith int) (Path, error) {
	alt, err := s.alternative(set)
	if err != nil {
		return Path{}, fmt.Errorf("AlternativePathForName: %w", err)
	}
	if ith < 0 || ith >= len(s.lat.x) {
		return Path{}, fmt.Errorf("AlternativePathForName: %w: name %d of %d", ErrIndexOutOfRange, ith, len(s.lat.x))
	}

	p := Path{Stratum: s.stratum, Weight: s.weight}
	for k, name := range s.names {
		if name != ith {
			p.Names = append(p.Names, name)
			p.Dates = append(p.Dates, s.dates[k])
		}
	}
	if d, ok := alt.defaultDate(ith, s.lat.x[ith]); ok {
		p.Names = append(p.Names, ith)
		p.Dates = append(p.Dates, d)
	}
	if s.sort {
		// Restore name order first so equal dates keep name order.
		sortByName(p.Names, p.Dates)
		sortByDate(p.Names, p.Dates)
	} else {
		sortByName(p.Names, p.Dates)
	}
	return p, nil
}

func (s *Stratified) alternative(set int) (*window, error) {
	if !s.drawn {
		return nil, ErrNoPath
	}
	if set < 0 || set >= len(s.alts) {
		return nil, fmt.Errorf("%w: alternative set %d of %d", ErrIndexOutOfRange, set, len(s.alts))
	}
	return s.alts[set], nil
}

type byName byDate

func (b byName) Len() int           { return len(b.names) }
func (b byName) Less(i, j int) bool { return b.names[i] < b.names[j] }
func (b byName) Swap(i, j int)      { byDate(b).Swap(i, j) }

func sortByName(names []int, dates []time.Time) {
	sort.Sort(byName{names: names, dates: dates})
}
