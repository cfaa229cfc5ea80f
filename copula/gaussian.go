package copula

import (
	"math"

	"gonum.org/v1/gonum/integrate/quad"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/meenmo/ttdlib/config"
	"github.com/meenmo/ttdlib/rng"
)

// Gaussian is the normal copula. Levels are the correlated normals themselves.
type Gaussian struct {
	mvn  *MultivariateNormal
	last []float64
}

// NewGaussian wraps a correlated normal sampler.
func NewGaussian(mvn *MultivariateNormal) *Gaussian {
	return &Gaussian{mvn: mvn, last: make([]float64, mvn.Size())}
}

func (g *Gaussian) Size() int { return g.mvn.Size() }

func (g *Gaussian) Draw(x []float64) {
	g.mvn.Draw(x)
	copy(g.last, x)
}

func (g *Gaussian) Antithetic(x []float64) {
	for i, v := range g.last {
		x[i] = -v
	}
}

func (g *Gaussian) ProbabilityFromLevel(z float64) float64 {
	return distuv.UnitNormal.CDF(z)
}

func (g *Gaussian) LevelFromProbability(p float64) float64 {
	switch {
	case p <= 0:
		return math.Inf(-1)
	case p >= 1:
		return math.Inf(1)
	}
	return distuv.UnitNormal.Quantile(p)
}

func (g *Gaussian) Subset(names []int) (Copula, error) {
	if err := checkSubset(names, g.Size()); err != nil {
		return nil, err
	}
	mvn, err := g.mvn.subset(names)
	if err != nil {
		return nil, err
	}
	return NewGaussian(mvn), nil
}

func (g *Gaussian) WithCore(core *rng.Core) Copula {
	cp := NewGaussian(g.mvn.withCore(core))
	copy(cp.last, g.last)
	return cp
}

func (g *Gaussian) Core() *rng.Core { return g.mvn.core }

// Sampler exposes the underlying correlated normal sampler.
func (g *Gaussian) Sampler() *MultivariateNormal { return g.mvn }

// DefaultCountDistribution integrates the conditionally independent default
// count over the common factor. Only one-factor structures are supported.
func (g *Gaussian) DefaultCountDistribution(p []float64) ([]float64, bool) {
	b := g.mvn.loadings
	if b == nil || len(p) != len(b) {
		return nil, false
	}
	n := len(b)
	thresholds := make([]float64, n)
	for i, pi := range p {
		thresholds[i] = g.LevelFromProbability(clamp01(pi))
	}

	order := config.GetConfig().QuadratureNodes
	if order < 2 {
		order = 2
	}
	nodes := make([]float64, order)
	weights := make([]float64, order)
	quad.Legendre{}.FixedLocations(nodes, weights, 0, 1)

	dist := make([]float64, n+1)
	cond := make([]float64, n)
	buf := make([]float64, n+1)
	for k, u := range nodes {
		m := distuv.UnitNormal.Quantile(u)
		for i, bi := range b {
			cond[i] = conditionalDefault(thresholds[i], bi, m)
		}
		countDistribution(cond, buf)
		for j := range dist {
			dist[j] += weights[k] * buf[j]
		}
	}

	total := 0.0
	for j, v := range dist {
		if v < 0 {
			dist[j] = 0
		}
		total += dist[j]
	}
	if total > 0 {
		for j := range dist {
			dist[j] /= total
		}
	}
	return dist, true
}

// conditionalDefault is P(b*m + sqrt(1-b^2)*e <= c).
func conditionalDefault(c, b, m float64) float64 {
	s := math.Sqrt(1 - b*b)
	if s == 0 {
		if b*m <= c {
			return 1
		}
		return 0
	}
	return distuv.UnitNormal.CDF((c - b*m) / s)
}

// countDistribution writes the Poisson-binomial distribution of independent
// Bernoulli(q_i) outcomes into out, which must have len(q)+1 entries.
func countDistribution(q []float64, out []float64) {
	for j := range out {
		out[j] = 0
	}
	out[0] = 1
	for i, qi := range q {
		for j := i + 1; j > 0; j-- {
			out[j] = out[j]*(1-qi) + out[j-1]*qi
		}
		out[0] *= 1 - qi
	}
}

func checkSubset(names []int, n int) error {
	if len(names) == 0 {
		return errEmptySubset
	}
	for _, i := range names {
		if i < 0 || i >= n {
			return errSubsetIndex(i, n)
		}
	}
	return nil
}
