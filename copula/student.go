package copula

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/meenmo/ttdlib/rng"
)

// StudentT is the t copula: a correlated normal vector scaled by
// sqrt(df/W) with W ~ chi-squared(df).
type StudentT struct {
	mvn  *MultivariateNormal
	df   int
	dist distuv.StudentsT
	last []float64
}

// NewStudentT returns a t copula with df degrees of freedom.
func NewStudentT(mvn *MultivariateNormal, df int) (*StudentT, error) {
	if df <= 0 {
		return nil, fmt.Errorf("NewStudentT: %w: degrees of freedom must be a positive integer, got %d", ErrInvalidSpec, df)
	}
	return &StudentT{
		mvn:  mvn,
		df:   df,
		dist: distuv.StudentsT{Mu: 0, Sigma: 1, Nu: float64(df)},
		last: make([]float64, mvn.Size()),
	}, nil
}

func (s *StudentT) Size() int { return s.mvn.Size() }

// DegreesOfFreedom returns df.
func (s *StudentT) DegreesOfFreedom() int { return s.df }

func (s *StudentT) Draw(x []float64) {
	s.mvn.Draw(x)
	scale := math.Sqrt(float64(s.df) / s.mvn.core.ChiSquared(float64(s.df)))
	for i := range x {
		x[i] *= scale
	}
	copy(s.last, x)
}

// Antithetic negates the last draw; the chi-squared mixing variable is shared.
func (s *StudentT) Antithetic(x []float64) {
	for i, v := range s.last {
		x[i] = -v
	}
}

func (s *StudentT) ProbabilityFromLevel(z float64) float64 {
	switch {
	case math.IsInf(z, -1):
		return 0
	case math.IsInf(z, 1):
		return 1
	}
	return s.dist.CDF(z)
}

func (s *StudentT) LevelFromProbability(p float64) float64 {
	switch {
	case p <= 0:
		return math.Inf(-1)
	case p >= 1:
		return math.Inf(1)
	}
	return s.dist.Quantile(p)
}

func (s *StudentT) Subset(names []int) (Copula, error) {
	if err := checkSubset(names, s.Size()); err != nil {
		return nil, err
	}
	mvn, err := s.mvn.subset(names)
	if err != nil {
		return nil, err
	}
	return NewStudentT(mvn, s.df)
}

func (s *StudentT) WithCore(core *rng.Core) Copula {
	cp := *s
	cp.mvn = s.mvn.withCore(core)
	cp.last = append([]float64(nil), s.last...)
	return &cp
}

func (s *StudentT) Core() *rng.Core { return s.mvn.core }
