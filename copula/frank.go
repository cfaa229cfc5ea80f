package copula

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/integrate/quad"

	"github.com/meenmo/ttdlib/config"
	"github.com/meenmo/ttdlib/rng"
)

const (
	frankSmallTheta   = 1e-2
	frankLargeTheta   = 50
	frankDebyeNodes   = 64
	frankMaxBisection = 200
)

// frankLaw is the logarithmic series law P(V=k) = c^k / (k*theta),
// c = 1 - exp(-theta). The head of the law is tabulated. When the table ends
// because the terms became negligible the tail is inverted term by term;
// when it ends at FrankMaxTerms the tail is drawn with Kemp's LK algorithm
// conditioned on exceeding the table.
type frankLaw struct {
	theta  float64
	c      float64
	logC   float64
	cdf    []float64 // cdf[k-1] = P(V <= k)
	capped bool      // table stopped at FrankMaxTerms
}

func newFrankLaw(theta float64) frankLaw {
	cfg := config.GetConfig()
	f := frankLaw{
		theta:  theta,
		c:      -math.Expm1(-theta),
		logC:   math.Log1p(-math.Exp(-theta)),
		cdf:    make([]float64, 0, 64),
		capped: true,
	}
	acc := 0.0
	for k := 1; k <= cfg.FrankMaxTerms; k++ {
		term := f.term(k)
		acc += term
		f.cdf = append(f.cdf, acc)
		if term < cfg.FrankTruncationMass {
			f.capped = false
			break
		}
	}
	return f
}

func (f frankLaw) term(k int) float64 {
	return math.Exp(float64(k)*f.logC) / (float64(k) * f.theta)
}

// sample returns ln V.
func (f frankLaw) sample(core *rng.Core) float64 {
	u := core.Uniform()
	n := len(f.cdf)
	if u <= f.cdf[n-1] {
		return math.Log(float64(sort.SearchFloat64s(f.cdf, u) + 1))
	}
	if !f.capped {
		return math.Log(float64(f.invertTail(u)))
	}
	k := float64(n)
	for {
		if v := f.kemp(core); v > k {
			return math.Log(v)
		}
	}
}

// invertTail continues the cumulative sum past the table until it reaches u.
// The walk ends once the terms no longer move the sum.
func (f frankLaw) invertTail(u float64) int {
	acc := f.cdf[len(f.cdf)-1]
	for k := len(f.cdf) + 1; ; k++ {
		term := f.term(k)
		acc += term
		if acc >= u || term <= acc*1e-17 {
			return k
		}
	}
}

// kemp is algorithm LK for the logarithmic distribution, with q = 1 - e^{-theta*U}
// kept as ln q so that q never rounds to 1 for large theta.
func (f frankLaw) kemp(core *rng.Core) float64 {
	logU := math.Log(core.Uniform())
	if logU > f.logC {
		return 1
	}
	logQ := math.Log1p(-math.Exp(-f.theta * core.Uniform()))
	switch {
	case logQ == 0:
		return math.Inf(1)
	case logU < 2*logQ:
		return math.Floor(1 + logU/logQ)
	case logU > logQ:
		return 1
	default:
		return 2
	}
}

// psi is -ln(1 - c e^{-t}) / theta with 1 - c e^{-t} = 1 - e^{-t} + e^{-t-theta}.
func (f frankLaw) psi(logT float64) float64 {
	t := math.Exp(logT)
	return -math.Log(-math.Expm1(-t)+math.Exp(-t-f.theta)) / f.theta
}

// NewFrank returns a Frank copula whose parameter reproduces Kendall's tau.
func NewFrank(n int, tau float64, core *rng.Core) (*Archimedean, error) {
	if err := checkArchimedean(TypeFrank, n, tau); err != nil {
		return nil, fmt.Errorf("NewFrank: %w", err)
	}
	var law frailty
	if tau > 0 {
		theta, err := FrankTheta(tau)
		if err != nil {
			return nil, fmt.Errorf("NewFrank: %w", err)
		}
		law = newFrankLaw(theta)
	}
	return newArchimedean(TypeFrank, n, tau, core, law), nil
}

// FrankTau is Kendall's tau of the Frank copula: 1 - 4/theta + 4*D1(theta)/theta.
func FrankTau(theta float64) float64 {
	if theta < frankSmallTheta {
		return theta / 9
	}
	return 1 - 4/theta + 4*debye1(theta)/theta
}

// FrankTheta inverts FrankTau by bisection for tau in (0, 1).
func FrankTheta(tau float64) (float64, error) {
	if !(tau > 0 && tau < 1) {
		return 0, fmt.Errorf("FrankTheta: %w: tau %v outside (0, 1)", ErrInvalidSpec, tau)
	}
	lo, hi := 0.0, 1.0
	for FrankTau(hi) < tau {
		lo = hi
		hi *= 2
		if hi > 1e12 {
			return 0, fmt.Errorf("FrankTheta: %w: tau %v too close to 1", ErrInvalidSpec, tau)
		}
	}
	for i := 0; i < frankMaxBisection; i++ {
		mid := 0.5 * (lo + hi)
		if FrankTau(mid) < tau {
			lo = mid
		} else {
			hi = mid
		}
		if hi-lo <= 1e-12*hi {
			break
		}
	}
	return 0.5 * (lo + hi), nil
}

// debye1 is the first Debye function (1/x) * int_0^x t/(e^t - 1) dt.
func debye1(x float64) float64 {
	if x > frankLargeTheta {
		return math.Pi * math.Pi / 6 / x
	}
	f := func(t float64) float64 {
		if t == 0 {
			return 1
		}
		return t / math.Expm1(t)
	}
	return quad.Fixed(f, 0, x, frankDebyeNodes, nil, 0) / x
}
