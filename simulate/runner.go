// Package simulate runs time-to-default samplers over a full path budget and
// aggregates weighted default statistics.
package simulate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/meenmo/ttdlib/copula"
	"github.com/meenmo/ttdlib/logging"
	"github.com/meenmo/ttdlib/observability"
	"github.com/meenmo/ttdlib/rng"
	"github.com/meenmo/ttdlib/survival"
	"github.com/meenmo/ttdlib/ttd"
)

// ErrInvalidJob is wrapped by every job validation error.
var ErrInvalidJob = errors.New("invalid simulation job")

// Mode selects the sampler a job runs.
type Mode string

const (
	ModePlain      Mode = "plain"
	ModeStratified Mode = "stratified"
	ModeTwoStage   Mode = "two-stage"
)

// cancelCheckEvery is how many draws a worker makes between context checks.
const cancelCheckEvery = 256

// Job describes one simulation run.
type Job struct {
	Curves []survival.Curve
	Copula copula.Spec

	Start, Middle, End time.Time

	Seed    uint64
	Paths   int
	Workers int

	Antithetic   bool
	SortDefaults bool

	// Strata and Allocation switch on stratified sampling.
	Strata     []ttd.Stratum
	Allocation []int
	PilotPaths int

	// TwoStage splits the window at Middle; each initial path is continued
	// ContinuationPaths times.
	TwoStage          bool
	ContinuationPaths int
}

// Mode reports which sampler the job will use.
func (j Job) Mode() Mode {
	switch {
	case j.TwoStage:
		return ModeTwoStage
	case len(j.Strata) > 0 || len(j.Allocation) > 0:
		return ModeStratified
	default:
		return ModePlain
	}
}

func (j Job) validate() error {
	if len(j.Curves) == 0 {
		return fmt.Errorf("%w: no curves", ErrInvalidJob)
	}
	if j.Paths < 1 && len(j.Allocation) == 0 {
		return fmt.Errorf("%w: paths must be at least 1", ErrInvalidJob)
	}
	if j.Workers < 0 {
		return fmt.Errorf("%w: negative worker count", ErrInvalidJob)
	}
	if j.Mode() != ModePlain && j.Workers > 1 {
		return fmt.Errorf("%w: %s sampling runs on a single worker", ErrInvalidJob, j.Mode())
	}
	if j.TwoStage && j.ContinuationPaths < 1 {
		return fmt.Errorf("%w: continuation paths must be at least 1", ErrInvalidJob)
	}
	return nil
}

// Summary aggregates one run. Frequencies are weight-normalised.
type Summary struct {
	RunID    string  `json:"run_id"`
	Mode     Mode    `json:"mode"`
	Copula   string  `json:"copula"`
	Names    int     `json:"names"`
	Start    string  `json:"start"`
	End      string  `json:"end"`
	Paths    int     `json:"paths"`
	Workers  int     `json:"workers"`
	Weight   float64 `json:"weight"`
	Duration float64 `json:"duration_seconds"`

	DefaultFrequency  []float64 `json:"default_frequency"`
	CountDistribution []float64 `json:"count_distribution"`
	ExpectedDefaults  float64   `json:"expected_defaults"`
	// MeanFirstDefaultYears is the weighted mean ACT/365F time from start to
	// the first default over paths with at least one default.
	MeanFirstDefaultYears float64 `json:"mean_first_default_years"`

	StratumProbabilities []float64 `json:"stratum_probabilities,omitempty"`
	StratumPaths         []int     `json:"stratum_paths,omitempty"`
	// Exhausted is set when a stratified run stopped before every quota filled.
	Exhausted bool `json:"exhausted,omitempty"`
}

// Runner executes jobs.
type Runner struct {
	logger  *zap.Logger
	metrics *observability.Metrics
}

// NewRunner returns a runner. Both arguments may be nil.
func NewRunner(logger *zap.Logger, metrics *observability.Metrics) *Runner {
	return &Runner{logger: logging.OrNop(logger), metrics: metrics}
}

// Run executes job and returns its summary. Cancelling ctx stops every worker
// and returns the context error.
func (r *Runner) Run(ctx context.Context, job Job) (*Summary, error) {
	began := time.Now()
	summary, err := r.run(ctx, job)
	r.metrics.ObserveRun(time.Since(began).Seconds(), err)
	if err != nil {
		return nil, err
	}
	summary.Duration = time.Since(began).Seconds()
	return summary, nil
}

func (r *Runner) run(ctx context.Context, job Job) (*Summary, error) {
	if err := job.validate(); err != nil {
		return nil, fmt.Errorf("simulate.Run: %w", err)
	}
	if job.Workers == 0 {
		job.Workers = 1
	}
	if job.Copula.Size == 0 && job.Copula.Correlation == nil && job.Copula.Loadings == nil {
		job.Copula.Size = len(job.Curves)
	}

	runID := uuid.NewString()
	logger := r.logger.With(zap.String("run_id", runID), zap.String("mode", string(job.Mode())))
	logger.Info("simulation started",
		zap.String("copula", string(job.Copula.Type)),
		zap.Int("names", len(job.Curves)),
		zap.Int("paths", job.Paths),
		zap.Int("workers", job.Workers))

	var (
		t   *tally
		err error
		s   = &Summary{}
	)
	switch job.Mode() {
	case ModePlain:
		t, err = r.runPlain(ctx, job, logger)
	case ModeStratified:
		t, err = r.runStratified(ctx, job, logger, s)
	case ModeTwoStage:
		t, err = r.runTwoStage(ctx, job, logger, s)
	}
	if err != nil {
		logger.Warn("simulation failed", zap.Error(err))
		return nil, err
	}

	s.RunID = runID
	s.Mode = job.Mode()
	s.Copula = string(job.Copula.Type)
	s.Names = len(job.Curves)
	s.Start = job.Start.Format("2006-01-02")
	s.End = job.End.Format("2006-01-02")
	s.Workers = job.Workers
	t.summarise(s)

	logger.Info("simulation finished",
		zap.Int("paths", s.Paths),
		zap.Float64("expected_defaults", s.ExpectedDefaults),
		zap.Bool("exhausted", s.Exhausted))
	return s, nil
}

func (r *Runner) newCopula(job Job, core *rng.Core, logger *zap.Logger) (copula.Copula, error) {
	cop, err := copula.New(job.Copula, core, logger)
	if err != nil {
		return nil, fmt.Errorf("simulate.Run: %w", err)
	}
	return cop, nil
}

// runPlain splits the budget across workers. Worker w draws from stream w of
// the seed, so a run is reproducible for a fixed worker count.
func (r *Runner) runPlain(ctx context.Context, job Job, logger *zap.Logger) (*tally, error) {
	shares := split(job.Paths, job.Workers)
	tallies := make([]*tally, job.Workers)

	g, gctx := errgroup.WithContext(ctx)
	for w := range shares {
		g.Go(func() error {
			r.metrics.WorkerStarted()
			defer r.metrics.WorkerDone()

			cop, err := r.newCopula(job, rng.NewStream(job.Seed, uint64(w)), logger)
			if err != nil {
				return err
			}
			sampler, err := ttd.New(job.Curves, cop, job.Start, job.End, ttd.Options{
				Antithetic:   job.Antithetic,
				SortDefaults: job.SortDefaults,
				Logger:       logger,
			})
			if err != nil {
				return fmt.Errorf("simulate.Run: %w", err)
			}

			t := newTally(len(job.Curves), job.Start)
			for i := 0; i < shares[w]; i++ {
				if i%cancelCheckEvery == 0 {
					if err := gctx.Err(); err != nil {
						return err
					}
				}
				k := sampler.Draw()
				t.add(sampler.Path())
				r.metrics.RecordPath(string(job.Copula.Type), k)
			}
			tallies[w] = t
			logger.Debug("worker finished", zap.Int("worker", w), zap.Int("paths", shares[w]))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	total := newTally(len(job.Curves), job.Start)
	for _, t := range tallies {
		total.merge(t)
	}
	return total, nil
}

func (r *Runner) stratifiedOptions(job Job, logger *zap.Logger) ttd.StratifiedOptions {
	return ttd.StratifiedOptions{
		Options: ttd.Options{
			Antithetic:   job.Antithetic,
			SortDefaults: job.SortDefaults,
			Logger:       logger,
		},
		Strata:     job.Strata,
		TotalPaths: job.Paths,
		Allocation: job.Allocation,
		PilotPaths: job.PilotPaths,
	}
}

func (r *Runner) runStratified(ctx context.Context, job Job, logger *zap.Logger, s *Summary) (*tally, error) {
	cop, err := r.newCopula(job, rng.New(job.Seed), logger)
	if err != nil {
		return nil, err
	}
	sampler, err := ttd.NewStratified(job.Curves, cop, job.Start, job.End, r.stratifiedOptions(job, logger))
	if err != nil {
		return nil, fmt.Errorf("simulate.Run: %w", err)
	}
	r.metrics.WorkerStarted()
	defer r.metrics.WorkerDone()

	t := newTally(len(job.Curves), job.Start)
	perStratum := make([]int, len(sampler.Strata()))
	for i := 0; ; i++ {
		if i%cancelCheckEvery == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		k := sampler.Draw()
		if k == ttd.Exhausted {
			break
		}
		t.add(sampler.Path())
		perStratum[sampler.Stratum()]++
		r.metrics.RecordPath(string(job.Copula.Type), k)
	}
	if sampler.Remaining() > 0 {
		r.metrics.RecordExhausted()
		s.Exhausted = true
	}
	s.StratumProbabilities = sampler.StratumProbabilities()
	s.StratumPaths = perStratum
	return t, nil
}

// runTwoStage continues each initial path ContinuationPaths times. Each
// continuation carries the initial weight divided by the continuation count.
func (r *Runner) runTwoStage(ctx context.Context, job Job, logger *zap.Logger, s *Summary) (*tally, error) {
	cop, err := r.newCopula(job, rng.New(job.Seed), logger)
	if err != nil {
		return nil, err
	}
	sampler, err := ttd.NewTwoStage(job.Curves, cop, job.Start, job.Middle, job.End, ttd.TwoStageOptions{
		StratifiedOptions: r.stratifiedOptions(job, logger),
	})
	if err != nil {
		return nil, fmt.Errorf("simulate.Run: %w", err)
	}
	r.metrics.WorkerStarted()
	defer r.metrics.WorkerDone()

	t := newTally(len(job.Curves), job.Start)
	perStratum := make([]int, len(sampler.Strata()))
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if sampler.Draw() == ttd.Exhausted {
			break
		}
		perStratum[sampler.Stratum()]++

		cont, err := sampler.Continuation()
		if err != nil {
			return nil, fmt.Errorf("simulate.Run: %w", err)
		}
		r.metrics.RecordContinuation()
		share := 1 / float64(job.ContinuationPaths)
		for c := 0; c < job.ContinuationPaths; c++ {
			k := cont.Draw()
			p := cont.Path()
			p.Weight *= share
			t.add(p)
			r.metrics.RecordPath(string(job.Copula.Type), k)
		}
	}
	if sampler.Remaining() > 0 {
		r.metrics.RecordExhausted()
		s.Exhausted = true
	}
	s.StratumProbabilities = sampler.StratumProbabilities()
	s.StratumPaths = perStratum
	return t, nil
}

// split divides n into parts shares whose sizes differ by at most one.
func split(n, parts int) []int {
	out := make([]int, parts)
	for i := range out {
		out[i] = n / parts
		if i < n%parts {
			out[i]++
		}
	}
	return out
}
