package ttd

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meenmo/ttdlib/copula"
)

var (
	middle  = time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)
	horizon = time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC)
)

func TestTwoStageConsistency(t *testing.T) {
	t.Parallel()

	for _, spec := range []copula.Spec{
		{Type: copula.TypeGaussian, Correlation: [][]float64{
			{1, 0.3, 0.3, 0.3, 0.3},
			{0.3, 1, 0.3, 0.3, 0.3},
			{0.3, 0.3, 1, 0.3, 0.3},
			{0.3, 0.3, 0.3, 1, 0.3},
			{0.3, 0.3, 0.3, 0.3, 1},
		}},
		{Type: copula.TypeGumbel, Size: 5, Tau: 0.4},
	} {
		t.Run(string(spec.Type), func(t *testing.T) {
			t.Parallel()

			curves := flatCurves(t, 5, 0.5)
			ts, err := NewTwoStage(curves, newCopula(t, spec, 31), start, middle, horizon, TwoStageOptions{
				StratifiedOptions: StratifiedOptions{
					Options:    Options{SortDefaults: true, Antithetic: true},
					Strata:     []Stratum{{0, 0}, {1, 5}},
					TotalPaths: 60,
				},
			})
			require.NoError(t, err)

			_, err = ts.Continuation()
			assert.True(t, errors.Is(err, ErrNoPath))

			paths := 0
			for {
				k := ts.Draw()
				if k == Exhausted {
					break
				}
				paths++
				checkPath(t, ts, k, 5, start, middle, true)
				initial := ts.Path()

				cont, err := ts.Continuation()
				require.NoError(t, err)
				assert.Len(t, cont.Survivors(), 5-k)

				for i := 0; i < 20; i++ {
					total := cont.Draw()
					require.GreaterOrEqual(t, total, k)
					checkPath(t, cont, total, 5, start, horizon, true)
					p := cont.Path()
					if k > 0 {
						assert.Equal(t, initial.Names, p.Names[:k])
						assert.Equal(t, initial.Dates, p.Dates[:k])
					}
					for n := k; n < total; n++ {
						assert.False(t, p.Dates[n].Before(middle))
					}
					assert.Equal(t, initial.Stratum, cont.Stratum())
					assert.Equal(t, initial.Weight, cont.Weight())
				}
			}
			assert.Equal(t, paths, ts.Allocation()[0]+ts.Allocation()[1])
		})
	}
}

func TestTwoStageAllDefaultedReplays(t *testing.T) {
	t.Parallel()

	curves := flatCurves(t, 2, 40)
	cop := newCopula(t, copula.Spec{Type: copula.TypeGaussian, Size: 2, Rho: 0.2}, 5)
	ts, err := NewTwoStage(curves, cop, start, middle, horizon, TwoStageOptions{
		StratifiedOptions: StratifiedOptions{TotalPaths: 5},
	})
	require.NoError(t, err)

	require.Equal(t, 2, ts.Draw())
	initial := ts.Path()
	cont, err := ts.Continuation()
	require.NoError(t, err)
	assert.Empty(t, cont.Survivors())

	snapshot := cop.Core().Clone()
	for i := 0; i < 3; i++ {
		require.Equal(t, 2, cont.Draw())
		assert.Equal(t, initial.Names, cont.Path().Names)
		assert.Equal(t, initial.Dates, cont.Path().Dates)
	}
	assert.Equal(t, snapshot.Uniform(), cop.Core().Uniform(), "replay draws no entropy")
}

func TestTwoStageConditionalMarginal(t *testing.T) {
	t.Parallel()

	// With independent names the continuation default probability of a
	// survivor is 1 - S(middle, end).
	curves := flatCurves(t, 2, 0.4)
	cop := newCopula(t, copula.Spec{Type: copula.TypeGaussian, Size: 2, Rho: 0}, 8)
	ts, err := NewTwoStage(curves, cop, start, middle, horizon, TwoStageOptions{
		StratifiedOptions: StratifiedOptions{Strata: []Stratum{{0, 0}, {1, 2}}, Allocation: []int{1, 0}},
	})
	require.NoError(t, err)
	require.Equal(t, 0, ts.Draw())

	cont, err := ts.Continuation()
	require.NoError(t, err)
	const n = 40000
	hits := 0.0
	for i := 0; i < n; i++ {
		k := cont.Draw()
		for j := 0; j < k; j++ {
			if name, _ := cont.DefaultName(j); name == 1 {
				hits++
			}
		}
	}
	want := 1 - curves[1].Interpolate(middle, horizon)
	assert.InDelta(t, want, hits/n, 0.01)
}

func TestTwoStageConfigErrors(t *testing.T) {
	t.Parallel()

	curves := flatCurves(t, 2, 0.1)
	cop := newCopula(t, copula.Spec{Type: copula.TypeGaussian, Size: 2, Rho: 0}, 1)
	opts := TwoStageOptions{StratifiedOptions: StratifiedOptions{TotalPaths: 10}}

	for name, mid := range map[string]time.Time{
		"at start":     start,
		"before start": start.AddDate(0, -1, 0),
		"at end":       horizon,
		"after end":    horizon.AddDate(1, 0, 0),
	} {
		_, err := NewTwoStage(curves, cop, start, mid, horizon, opts)
		assert.True(t, errors.Is(err, ErrInvalidConfig), name)
	}
}
