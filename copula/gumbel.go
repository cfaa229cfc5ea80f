package copula

import (
	"fmt"
	"math"

	"github.com/meenmo/ttdlib/rng"
)

type gumbelLaw struct {
	alpha    float64 // 1/theta = 1 - tau
	logScale float64 // ln cos(pi*alpha/2) / alpha
}

func (g gumbelLaw) sample(core *rng.Core) float64 {
	if g.alpha == 1 {
		return 0
	}
	return g.logScale + logPositiveStable(core, g.alpha)
}

func (g gumbelLaw) psi(logT float64) float64 { return math.Exp(-math.Exp(g.alpha * logT)) }

// NewGumbel returns a Gumbel copula, theta = 1/(1-tau). V is positive
// alpha-stable with alpha = 1/theta, so E[exp(-tV)] = exp(-t^alpha).
func NewGumbel(n int, tau float64, core *rng.Core) (*Archimedean, error) {
	if err := checkArchimedean(TypeGumbel, n, tau); err != nil {
		return nil, fmt.Errorf("NewGumbel: %w", err)
	}
	alpha := 1 - tau
	law := gumbelLaw{
		alpha:    alpha,
		logScale: math.Log(math.Cos(math.Pi*alpha/2)) / alpha,
	}
	return newArchimedean(TypeGumbel, n, tau, core, law), nil
}

// GumbelTheta maps Kendall's tau to the Gumbel parameter.
func GumbelTheta(tau float64) float64 {
	return 1 / (1 - tau)
}
