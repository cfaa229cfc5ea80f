package ttd

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meenmo/ttdlib/copula"
	"github.com/meenmo/ttdlib/survival"
)

var threeStrata = []Stratum{{Min: 0, Max: 0}, {Min: 1, Max: 2}, {Min: 3, Max: 3}}

func TestStratifiedQuotasAndWeights(t *testing.T) {
	t.Parallel()

	curves := flatCurves(t, 3, math.Ln2)
	cop := newCopula(t, copula.Spec{Type: copula.TypeGaussian, Size: 3, Rho: 0.3}, 42)
	s, err := NewStratified(curves, cop, start, end, StratifiedOptions{
		Options:    Options{SortDefaults: true},
		Strata:     threeStrata,
		TotalPaths: 4000,
	})
	require.NoError(t, err)

	probs := s.StratumProbabilities()
	require.Len(t, probs, 3)
	assert.InDelta(t, 1, probs[0]+probs[1]+probs[2], 1e-9)
	assert.InDelta(t, probs[0], probs[2], 1e-6, "symmetric at 50% default probability")

	alloc := s.Allocation()
	total := 0
	for k, a := range alloc {
		assert.InDelta(t, 4000*probs[k], float64(a), 1)
		total += a
	}
	assert.Equal(t, total, s.Remaining())

	counts := make([]int, 3)
	weightSum := 0.0
	marginal := 0.0
	for {
		k := s.Draw()
		if k == Exhausted {
			break
		}
		checkPath(t, s, k, 3, start, end, true)
		st := s.Stratum()
		require.GreaterOrEqual(t, k, threeStrata[st].Min)
		require.LessOrEqual(t, k, threeStrata[st].Max)
		counts[st]++
		weightSum += s.Weight()
		for n := 0; n < k; n++ {
			if name, _ := s.DefaultName(n); name == 0 {
				marginal += s.Weight()
			}
		}
	}
	assert.Equal(t, alloc, counts)
	assert.InDelta(t, float64(total), weightSum, 1e-6)
	assert.InDelta(t, 0.5, marginal/float64(total), 0.03)

	assert.Equal(t, Exhausted, s.Draw(), "stays exhausted")
	assert.Zero(t, s.NumberOfDefaults())
}

func TestStratifiedMassPolicies(t *testing.T) {
	t.Parallel()

	curves := flatCurves(t, 4, 0.3)
	spec := copula.Spec{Type: copula.TypeGaussian, Size: 4, Rho: 0.4}
	strata := []Stratum{{Min: 0, Max: 0}, {Min: 1, Max: 1}, {Min: 2, Max: 4}}

	exact, err := NewStratified(curves, newCopula(t, spec, 1), start, end, StratifiedOptions{Strata: strata, TotalPaths: 100, Mass: ExactMass})
	require.NoError(t, err)
	pilot, err := NewStratified(curves, newCopula(t, spec, 1), start, end, StratifiedOptions{Strata: strata, TotalPaths: 100, Mass: PilotMass, PilotPaths: 50000})
	require.NoError(t, err)
	assert.InDeltaSlice(t, exact.StratumProbabilities(), pilot.StratumProbabilities(), 0.01)

	clayton := newCopula(t, copula.Spec{Type: copula.TypeClayton, Size: 4, Tau: 0.3}, 1)
	_, err = NewStratified(curves, clayton, start, end, StratifiedOptions{Strata: strata, TotalPaths: 100, Mass: ExactMass})
	assert.True(t, errors.Is(err, ErrInvalidConfig))

	auto, err := NewStratified(curves, clayton, start, end, StratifiedOptions{Strata: strata, TotalPaths: 100, PilotPaths: 2000})
	require.NoError(t, err)
	sum := 0.0
	for _, p := range auto.StratumProbabilities() {
		sum += p
	}
	assert.InDelta(t, 1, sum, 1e-9)
}

func TestStratifiedPilotLeavesMainStream(t *testing.T) {
	t.Parallel()

	curves := flatCurves(t, 3, 0.5)
	spec := copula.Spec{Type: copula.TypeFrank, Size: 3, Tau: 0.4}
	cop := newCopula(t, spec, 77)
	ref := newCopula(t, spec, 77)

	_, err := NewStratified(curves, cop, start, end, StratifiedOptions{TotalPaths: 10, Mass: PilotMass, PilotPaths: 1000})
	require.NoError(t, err)
	assert.Equal(t, ref.Core().Uniform(), cop.Core().Uniform())
}

func TestStratifiedPilotNeedsPaths(t *testing.T) {
	t.Parallel()

	curves := flatCurves(t, 3, 0.5)
	frank := newCopula(t, copula.Spec{Type: copula.TypeFrank, Size: 3, Tau: 0.4}, 5)
	s, err := NewStratified(curves, frank, start, end, StratifiedOptions{TotalPaths: 10, PilotPaths: 500})
	require.NoError(t, err)

	for _, paths := range []int{0, -3} {
		_, err := s.stratumMass(PilotMass, paths)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrInvalidConfig), "paths=%d", paths)
		_, err = s.stratumMass(AutoMass, paths)
		assert.True(t, errors.Is(err, ErrInvalidConfig), "paths=%d", paths)
	}

	gauss := newCopula(t, copula.Spec{Type: copula.TypeGaussian, Size: 3, Rho: 0.4}, 5)
	g, err := NewStratified(curves, gauss, start, end, StratifiedOptions{TotalPaths: 10, Mass: ExactMass})
	require.NoError(t, err)
	probs, err := g.stratumMass(ExactMass, 0)
	require.NoError(t, err, "exact mass runs no pilot")
	assert.Len(t, probs, len(g.strata))
}

func TestStratifiedAllocationOverride(t *testing.T) {
	t.Parallel()

	curves := flatCurves(t, 3, math.Ln2)
	cop := newCopula(t, copula.Spec{Type: copula.TypeGaussian, Size: 3, Rho: 0}, 2)
	s, err := NewStratified(curves, cop, start, end, StratifiedOptions{Strata: threeStrata, Allocation: []int{10, 0, 30}})
	require.NoError(t, err)
	assert.Equal(t, []int{10, 0, 30}, s.Allocation())

	n := 0
	for s.Draw() != Exhausted {
		require.NotEqual(t, 1, s.Stratum())
		// p = 1/8 for the extreme strata, quota 10 of 40 and 30 of 40.
		want := 0.125 * 40 / 10
		if s.Stratum() == 2 {
			want = 0.125 * 40 / 30
		}
		assert.InDelta(t, want, s.Weight(), 1e-9)
		n++
	}
	assert.Equal(t, 40, n)

	_, err = NewStratified(curves, cop, start, end, StratifiedOptions{Strata: threeStrata, Allocation: []int{1, 2}})
	assert.True(t, errors.Is(err, ErrInvalidConfig))
	_, err = NewStratified(curves, cop, start, end, StratifiedOptions{Strata: threeStrata, Allocation: []int{1, -2, 3}})
	assert.True(t, errors.Is(err, ErrInvalidConfig))
	_, err = NewStratified(curves, cop, start, end, StratifiedOptions{Strata: threeStrata})
	assert.True(t, errors.Is(err, ErrInvalidConfig), "no budget")
}

func TestStratifiedPartitionErrors(t *testing.T) {
	t.Parallel()

	curves := flatCurves(t, 3, 0.2)
	cop := newCopula(t, copula.Spec{Type: copula.TypeGaussian, Size: 3, Rho: 0}, 2)
	for name, strata := range map[string][]Stratum{
		"gap":      {{0, 0}, {2, 3}},
		"overlap":  {{0, 1}, {1, 3}},
		"too high": {{0, 4}},
		"negative": {{-1, 3}},
		"inverted": {{0, 0}, {3, 1}},
	} {
		_, err := NewStratified(curves, cop, start, end, StratifiedOptions{Strata: strata, TotalPaths: 10})
		assert.True(t, errors.Is(err, ErrInvalidConfig), name)
	}
}

func TestStratifiedRejectionBudget(t *testing.T) {
	t.Parallel()

	curves := flatCurves(t, 3, 0.001)
	cop := newCopula(t, copula.Spec{Type: copula.TypeGaussian, Size: 3, Rho: 0}, 2)
	s, err := NewStratified(curves, cop, start, end, StratifiedOptions{
		Strata:        threeStrata,
		Allocation:    []int{0, 0, 5},
		MaxRejections: 10,
	})
	require.NoError(t, err)
	assert.Equal(t, Exhausted, s.Draw())
	assert.Equal(t, 5, s.Remaining())
	_, err = s.AlternativePath(0)
	assert.Error(t, err)
}

func TestAlternativePaths(t *testing.T) {
	t.Parallel()

	base := flatCurves(t, 4, 0.6)
	same := flatCurves(t, 4, 0.6)
	bumped := make([]survival.Curve, 4)
	for i, c := range base {
		bumped[i] = c.(*survival.HazardCurve).Shift(0.4)
	}

	cop := newCopula(t, copula.Spec{Type: copula.TypeGaussian, Size: 4, Rho: 0.3}, 17)
	s, err := NewStratified(base, cop, start, end, StratifiedOptions{
		Options:      Options{SortDefaults: true},
		TotalPaths:   300,
		Alternatives: [][]survival.Curve{same, bumped},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, s.Alternatives())

	_, err = s.AlternativePath(0)
	assert.True(t, errors.Is(err, ErrNoPath))

	for s.Draw() != Exhausted {
		basePath := s.Path()

		snapshot := cop.Core().Clone()
		p0, err := s.AlternativePath(0)
		require.NoError(t, err)
		assert.Equal(t, basePath, p0)

		p1, err := s.AlternativePath(1)
		require.NoError(t, err)
		assert.Equal(t, snapshot.Uniform(), cop.Core().Clone().Uniform(), "alternates never redraw")

		// Higher hazard: every base default still defaults, no later.
		bumpedDates := map[int]int64{}
		for k, n := range p1.Names {
			bumpedDates[n] = p1.Dates[k].Unix()
		}
		for k, n := range basePath.Names {
			d, ok := bumpedDates[n]
			require.True(t, ok)
			require.LessOrEqual(t, d, basePath.Dates[k].Unix())
		}
		assert.Equal(t, basePath.Weight, p1.Weight)
		assert.Equal(t, basePath.Stratum, p1.Stratum)

		for ith := 0; ith < 4; ith++ {
			q, err := s.AlternativePathForName(1, ith)
			require.NoError(t, err)
			for k, n := range q.Names {
				if k > 0 {
					require.False(t, q.Dates[k].Before(q.Dates[k-1]))
				}
				if n == ith {
					assert.Equal(t, bumpedDates[n], q.Dates[k].Unix())
					continue
				}
				found := false
				for j, bn := range basePath.Names {
					if bn == n {
						found = true
						assert.Equal(t, basePath.Dates[j], q.Dates[k])
					}
				}
				require.True(t, found, "other names keep their base outcome")
			}
			_, inBumped := bumpedDates[ith]
			want := len(basePath.Names)
			if inBase(basePath, ith) != inBumped {
				want++
			}
			assert.Equal(t, want, len(q.Names))
		}
	}

	_, err = s.AlternativePathForName(0, 9)
	assert.Error(t, err)
	_, err = s.AlternativePath(5)
	assert.True(t, errors.Is(err, ErrIndexOutOfRange) || errors.Is(err, ErrNoPath))

	_, err = NewStratified(base, cop, start, end, StratifiedOptions{TotalPaths: 10, Alternatives: [][]survival.Curve{same[:3]}})
	assert.True(t, errors.Is(err, ErrInvalidConfig))
}

func inBase(p Path, name int) bool {
	for _, n := range p.Names {
		if n == name {
			return true
		}
	}
	return false
}
