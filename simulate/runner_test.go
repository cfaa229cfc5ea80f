package simulate

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/meenmo/ttdlib/copula"
	"github.com/meenmo/ttdlib/observability"
	"github.com/meenmo/ttdlib/survival"
	"github.com/meenmo/ttdlib/ttd"
)

var (
	start   = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	middle  = time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)
	end     = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	horizon = time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC)
)

func flatCurves(t *testing.T, n int, lambda float64) []survival.Curve {
	t.Helper()

	curves := make([]survival.Curve, n)
	for i := range curves {
		c, err := survival.FlatHazard(start, lambda)
		require.NoError(t, err)
		curves[i] = c
	}
	return curves
}

func plainJob(t *testing.T) Job {
	return Job{
		Curves:       flatCurves(t, 3, math.Ln2),
		Copula:       copula.Spec{Type: copula.TypeGaussian, Rho: 0},
		Start:        start,
		End:          end,
		Seed:         11,
		Paths:        20000,
		Workers:      4,
		SortDefaults: true,
	}
}

func TestRunPlainAcrossWorkers(t *testing.T) {
	t.Parallel()

	metrics := observability.NewMetrics("test")
	r := NewRunner(zap.NewNop(), metrics)
	s, err := r.Run(context.Background(), plainJob(t))
	require.NoError(t, err)

	_, err = uuid.Parse(s.RunID)
	assert.NoError(t, err)
	assert.Equal(t, ModePlain, s.Mode)
	assert.Equal(t, 20000, s.Paths)
	assert.Equal(t, 4, s.Workers)
	assert.InDelta(t, 20000, s.Weight, 1e-9)
	assert.InDeltaSlice(t, []float64{0.5, 0.5, 0.5}, s.DefaultFrequency, 0.02)
	assert.InDelta(t, 1.5, s.ExpectedDefaults, 0.05)

	// Independent names at 50%: binomial(3, 1/2).
	assert.InDeltaSlice(t, []float64{0.125, 0.375, 0.375, 0.125}, s.CountDistribution, 0.02)
	assert.Greater(t, s.MeanFirstDefaultYears, 0.0)
	assert.Less(t, s.MeanFirstDefaultYears, 1.0)

	assert.Equal(t, 20000.0, testutil.ToFloat64(metrics.PathsDrawn.WithLabelValues("gaussian")))
	assert.Equal(t, 0.0, testutil.ToFloat64(metrics.WorkersActive))
}

func TestRunIsReproducible(t *testing.T) {
	t.Parallel()

	r := NewRunner(nil, nil)
	job := plainJob(t)
	job.Paths = 3000
	job.Antithetic = true

	a, err := r.Run(context.Background(), job)
	require.NoError(t, err)
	b, err := r.Run(context.Background(), job)
	require.NoError(t, err)

	assert.NotEqual(t, a.RunID, b.RunID)
	assert.Equal(t, a.DefaultFrequency, b.DefaultFrequency)
	assert.Equal(t, a.CountDistribution, b.CountDistribution)
}

func TestRunStratified(t *testing.T) {
	t.Parallel()

	job := plainJob(t)
	job.Workers = 1
	job.Paths = 4000
	job.Copula.Rho = 0.3
	job.Strata = []ttd.Stratum{{Min: 0, Max: 0}, {Min: 1, Max: 2}, {Min: 3, Max: 3}}

	s, err := NewRunner(nil, nil).Run(context.Background(), job)
	require.NoError(t, err)
	assert.Equal(t, ModeStratified, s.Mode)
	assert.False(t, s.Exhausted)
	require.Len(t, s.StratumPaths, 3)
	assert.Equal(t, s.Paths, s.StratumPaths[0]+s.StratumPaths[1]+s.StratumPaths[2])
	assert.InDelta(t, float64(s.Paths), s.Weight, 1e-6)
	assert.InDeltaSlice(t, []float64{0.5, 0.5, 0.5}, s.DefaultFrequency, 0.03)
	assert.InDelta(t, s.StratumProbabilities[0], s.CountDistribution[0], 1e-9)
	assert.InDelta(t, s.StratumProbabilities[2], s.CountDistribution[3], 1e-9)
}

func TestRunTwoStage(t *testing.T) {
	t.Parallel()

	curves := flatCurves(t, 2, 0.4)
	job := Job{
		Curves:            curves,
		Copula:            copula.Spec{Type: copula.TypeGaussian, Rho: 0},
		Start:             start,
		Middle:            middle,
		End:               horizon,
		Seed:              3,
		Paths:             5000,
		TwoStage:          true,
		ContinuationPaths: 2,
		SortDefaults:      true,
	}
	metrics := observability.NewMetrics("two")
	s, err := NewRunner(nil, metrics).Run(context.Background(), job)
	require.NoError(t, err)

	assert.Equal(t, ModeTwoStage, s.Mode)
	assert.Equal(t, 10000, s.Paths)
	assert.InDelta(t, 5000, s.Weight, 1e-6)
	want := 1 - curves[0].Interpolate(start, horizon)
	assert.InDeltaSlice(t, []float64{want, want}, s.DefaultFrequency, 0.03)
	assert.Equal(t, 5000.0, testutil.ToFloat64(metrics.ContinuationRuns))
}

func TestRunCancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	metrics := observability.NewMetrics("cancel")
	_, err := NewRunner(nil, metrics).Run(ctx, plainJob(t))
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, 0.0, testutil.ToFloat64(metrics.WorkersActive))
}

func TestRunInvalidJobs(t *testing.T) {
	t.Parallel()

	r := NewRunner(nil, nil)
	cases := map[string]func(j *Job){
		"no curves":        func(j *Job) { j.Curves = nil },
		"no paths":         func(j *Job) { j.Paths = 0 },
		"negative workers": func(j *Job) { j.Workers = -1 },
		"stratified workers": func(j *Job) {
			j.Strata = []ttd.Stratum{{Min: 0, Max: 3}}
		},
		"continuations": func(j *Job) {
			j.Workers = 1
			j.TwoStage = true
			j.Middle = middle
		},
	}
	for name, mutate := range cases {
		job := plainJob(t)
		mutate(&job)
		_, err := r.Run(context.Background(), job)
		assert.True(t, errors.Is(err, ErrInvalidJob), name)
	}

	job := plainJob(t)
	job.Copula.Type = "bogus"
	_, err := r.Run(context.Background(), job)
	assert.True(t, errors.Is(err, copula.ErrInvalidSpec))
}

func TestSplit(t *testing.T) {
	t.Parallel()

	assert.Equal(t, []int{4, 3, 3}, split(10, 3))
	assert.Equal(t, []int{1, 1, 0, 0}, split(2, 4))
}
