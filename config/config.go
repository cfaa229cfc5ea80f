package config

// Config holds numerical knobs for curve inversion, decomposition and sampling.
type Config struct {
	// SolverTolerance is the absolute tolerance on log survival probability
	// when inverting a survival curve.
	SolverTolerance float64

	// MaxSolverIterations caps Newton/bisection steps per inversion.
	MaxSolverIterations int

	// MaxBracketExpansions limits how often the upper bracket is doubled
	// beyond the window end before the solve gives up and returns the bracket.
	MaxBracketExpansions int

	// DerivativeThreshold is the minimum derivative magnitude.
	// Below this, the Newton step is replaced by bisection.
	DerivativeThreshold float64

	// EigenvalueFloor clips eigenvalues of a non positive definite correlation
	// matrix to zero.
	EigenvalueFloor float64

	// FrankTruncationMass stops the logarithmic series once a term falls below it.
	FrankTruncationMass float64

	// FrankMaxTerms caps the logarithmic series length.
	FrankMaxTerms int

	// ClaytonIndependenceAlpha is the Gamma shape above which the Clayton
	// mixing variable is treated as degenerate.
	ClaytonIndependenceAlpha float64

	// PilotPaths is the default number of pilot draws used to estimate stratum mass.
	PilotPaths int

	// MaxRejections caps consecutive rejected draws in stratified sampling.
	MaxRejections int

	// QuadratureNodes is the Gauss-Legendre order for one-factor integrals.
	QuadratureNodes int
}

// DefaultConfig provides production-ready default values.
var DefaultConfig = Config{
	SolverTolerance:          1e-12,
	MaxSolverIterations:      100,
	MaxBracketExpansions:     8,
	DerivativeThreshold:      1e-15,
	EigenvalueFloor:          2e-16,
	FrankTruncationMass:      1e-6,
	FrankMaxTerms:            1000,
	ClaytonIndependenceAlpha: 1e6,
	PilotPaths:               20000,
	MaxRejections:            1000000,
	QuadratureNodes:          128,
}

// cfg is the active configuration. Defaults to DefaultConfig.
var cfg = DefaultConfig

// SetConfig replaces the active configuration. Samplers read it at construction.
func SetConfig(c Config) {
	cfg = c
}

// GetConfig returns the active configuration.
func GetConfig() Config {
	return cfg
}
