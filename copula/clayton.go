package copula

import (
	"fmt"
	"math"

	"github.com/meenmo/ttdlib/config"
	"github.com/meenmo/ttdlib/rng"
)

type claytonLaw struct {
	alpha float64 // 1/theta
}

// sample returns ln V. Below shape 1 it uses Gamma(a) = Gamma(a+1) * U^(1/a),
// whose log stays finite where a direct Gamma(a) draw underflows to 0.
func (c claytonLaw) sample(core *rng.Core) float64 {
	if c.alpha >= 1 {
		return math.Log(core.Gamma(c.alpha))
	}
	return math.Log(core.Gamma(c.alpha+1)) + math.Log(core.Uniform())/c.alpha
}

// psi is (1+t)^(-alpha) with ln(1+t) taken from ln t.
func (c claytonLaw) psi(logT float64) float64 {
	return math.Exp(-c.alpha * softplus(logT))
}

// softplus is ln(1 + e^x).
func softplus(x float64) float64 {
	if x > 0 {
		return x + math.Log1p(math.Exp(-x))
	}
	return math.Log1p(math.Exp(x))
}

// NewClayton returns a Clayton copula, theta = 2*tau/(1-tau), V ~ Gamma(1/theta).
// Near-zero dependence falls back to independent uniforms.
func NewClayton(n int, tau float64, core *rng.Core) (*Archimedean, error) {
	if err := checkArchimedean(TypeClayton, n, tau); err != nil {
		return nil, fmt.Errorf("NewClayton: %w", err)
	}
	var law frailty
	if theta := ClaytonTheta(tau); theta > 0 {
		if alpha := 1 / theta; alpha <= config.GetConfig().ClaytonIndependenceAlpha {
			law = claytonLaw{alpha: alpha}
		}
	}
	return newArchimedean(TypeClayton, n, tau, core, law), nil
}

// ClaytonTheta maps Kendall's tau to the Clayton parameter.
func ClaytonTheta(tau float64) float64 {
	return 2 * tau / (1 - tau)
}
