// Package copula implements the dependence models used to draw correlated
// default indicators: Gaussian and Student-t (elliptical, built on a
// correlated normal sampler) and the Clayton, Frank and Gumbel Archimedean
// families (Marshall-Olkin frailty construction).
//
// Every family draws on a latent "level" scale whose marginals become uniform
// after ProbabilityFromLevel. For the elliptical families the level is the
// normal or t variate; for the Archimedean families it is the uniform itself.
package copula

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"go.uber.org/zap"

	"github.com/meenmo/ttdlib/logging"
	"github.com/meenmo/ttdlib/rng"
)

// ErrInvalidSpec is wrapped by every construction-time error in this package.
var ErrInvalidSpec = errors.New("invalid copula spec")

// Copula draws dependent latent vectors over a basket.
type Copula interface {
	// Size is the number of names.
	Size() int
	// Draw fills x with one dependent latent vector.
	Draw(x []float64)
	// Antithetic fills x with the mirror image of the most recent Draw
	// without consuming entropy.
	Antithetic(x []float64)
	// ProbabilityFromLevel is the marginal CDF on the latent scale.
	ProbabilityFromLevel(z float64) float64
	// LevelFromProbability is the marginal inverse CDF.
	LevelFromProbability(p float64) float64
	// Subset returns the same family restricted to the given names, in order,
	// sharing the same core.
	Subset(names []int) (Copula, error)
	// WithCore returns an independent copy drawing from core. The copy keeps
	// the most recent draw so Antithetic behaves the same on both.
	WithCore(core *rng.Core) Copula
	// Core returns the entropy source the copula draws from.
	Core() *rng.Core
}

// CountDistributor is implemented by copulas whose default count distribution
// can be computed without simulation.
type CountDistributor interface {
	// DefaultCountDistribution returns P(number of defaults = k), k = 0..n,
	// given each name's marginal default probability. ok is false when the
	// current structure does not support it.
	DefaultCountDistribution(p []float64) (dist []float64, ok bool)
}

// Type tags a copula family.
type Type string

const (
	TypeGaussian Type = "gaussian"
	TypeStudentT Type = "student-t"
	TypeClayton  Type = "clayton"
	TypeFrank    Type = "frank"
	TypeGumbel   Type = "gumbel"
)

// ParseType accepts the canonical names plus a few common spellings.
func ParseType(s string) (Type, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "gaussian", "gauss", "normal":
		return TypeGaussian, nil
	case "student-t", "studentt", "student", "t":
		return TypeStudentT, nil
	case "clayton":
		return TypeClayton, nil
	case "frank":
		return TypeFrank, nil
	case "gumbel":
		return TypeGumbel, nil
	default:
		return "", fmt.Errorf("ParseType: %w: unknown copula type %q", ErrInvalidSpec, s)
	}
}

// Spec is a validated-at-construction dependence specification.
//
// Elliptical families take exactly one of Correlation (full matrix), Loadings
// (one-factor) or Rho (homogeneous pairwise correlation over Size names).
// Archimedean families take only Tau, Kendall's tau in [0, 1), and Size.
type Spec struct {
	Type             Type
	Size             int
	Correlation      [][]float64
	Loadings         []float64
	Rho              float64
	DegreesOfFreedom int
	Tau              float64
}

// New validates spec and builds the copula on core.
func New(spec Spec, core *rng.Core, logger *zap.Logger) (Copula, error) {
	logger = logging.OrNop(logger)
	if core == nil {
		return nil, fmt.Errorf("copula.New: %w: nil core", ErrInvalidSpec)
	}

	switch spec.Type {
	case TypeGaussian, TypeStudentT:
		mvn, err := ellipticalNormal(spec, core)
		if err != nil {
			return nil, fmt.Errorf("copula.New: %w", err)
		}
		if mvn.UsedEigenFallback() {
			logger.Debug("correlation matrix not positive definite, using eigen decomposition",
				zap.Int("size", mvn.Size()))
		}
		if spec.Type == TypeGaussian {
			return NewGaussian(mvn), nil
		}
		return NewStudentT(mvn, spec.DegreesOfFreedom)
	case TypeClayton, TypeFrank, TypeGumbel:
		if spec.Correlation != nil || spec.Loadings != nil {
			return nil, fmt.Errorf("copula.New: %w: %s takes a single dependence parameter, not a correlation structure", ErrInvalidSpec, spec.Type)
		}
		switch spec.Type {
		case TypeClayton:
			return NewClayton(spec.Size, spec.Tau, core)
		case TypeFrank:
			return NewFrank(spec.Size, spec.Tau, core)
		default:
			return NewGumbel(spec.Size, spec.Tau, core)
		}
	default:
		return nil, fmt.Errorf("copula.New: %w: unknown copula type %q", ErrInvalidSpec, spec.Type)
	}
}

func ellipticalNormal(spec Spec, core *rng.Core) (*MultivariateNormal, error) {
	switch {
	case spec.Correlation != nil && spec.Loadings != nil:
		return nil, fmt.Errorf("%w: both correlation matrix and loadings given", ErrInvalidSpec)
	case spec.Correlation != nil:
		if spec.Size > 0 && len(spec.Correlation) != spec.Size {
			return nil, fmt.Errorf("%w: correlation matrix size %d, basket size %d", ErrInvalidSpec, len(spec.Correlation), spec.Size)
		}
		return NewMultivariateNormal(spec.Correlation, core)
	case spec.Loadings != nil:
		if spec.Size > 0 && len(spec.Loadings) != spec.Size {
			return nil, fmt.Errorf("%w: %d loadings, basket size %d", ErrInvalidSpec, len(spec.Loadings), spec.Size)
		}
		return NewFactorNormal(spec.Loadings, core)
	default:
		return homogeneousNormal(spec.Size, spec.Rho, core)
	}
}

// homogeneousNormal uses the one-factor form for rho >= 0 and the matrix
// form otherwise.
func homogeneousNormal(n int, rho float64, core *rng.Core) (*MultivariateNormal, error) {
	if n <= 0 {
		return nil, fmt.Errorf("%w: basket size must be positive", ErrInvalidSpec)
	}
	if rho < -1 || rho > 1 || math.IsNaN(rho) {
		return nil, fmt.Errorf("%w: pairwise correlation %v outside [-1, 1]", ErrInvalidSpec, rho)
	}
	if rho >= 0 {
		b := make([]float64, n)
		for i := range b {
			b[i] = math.Sqrt(rho)
		}
		return NewFactorNormal(b, core)
	}
	corr := make([][]float64, n)
	for i := range corr {
		corr[i] = make([]float64, n)
		for j := range corr[i] {
			corr[i][j] = rho
		}
		corr[i][i] = 1
	}
	return NewMultivariateNormal(corr, core)
}

func clamp01(p float64) float64 {
	if p < 0 {
		return 0
	}
	if p > 1 {
		return 1
	}
	return p
}

var errEmptySubset = fmt.Errorf("%w: empty subset", ErrInvalidSpec)

func errSubsetIndex(i, n int) error {
	return fmt.Errorf("%w: subset index %d outside [0, %d)", ErrInvalidSpec, i, n)
}
