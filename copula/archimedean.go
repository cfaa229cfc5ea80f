package copula

import (
	"fmt"
	"math"

	"github.com/meenmo/ttdlib/rng"
)

// frailty is one Archimedean family: a positive mixing variable V and the
// generator psi, its Laplace transform. Both work on logarithms: sample
// returns ln V and psi takes ln t, since V spans hundreds of orders of
// magnitude as tau approaches 1.
type frailty interface {
	sample(core *rng.Core) float64
	psi(logT float64) float64
}

// Archimedean draws uniforms u_i = psi(E_i / V) with E_i = -ln w_i and w_i
// iid uniform (Marshall-Olkin). Levels are the uniforms themselves.
//
// A nil law means the family degenerated to independence and the raw
// uniforms are returned.
type Archimedean struct {
	family Type
	tau    float64
	n      int
	core   *rng.Core
	law    frailty

	w    []float64
	logV float64
}

func newArchimedean(family Type, n int, tau float64, core *rng.Core, law frailty) *Archimedean {
	return &Archimedean{
		family: family,
		tau:    tau,
		n:      n,
		core:   core,
		law:    law,
		w:      make([]float64, n),
	}
}

func checkArchimedean(family Type, n int, tau float64) error {
	if n <= 0 {
		return fmt.Errorf("%w: %s basket size must be positive", ErrInvalidSpec, family)
	}
	if math.IsNaN(tau) || tau < 0 || tau >= 1 {
		return fmt.Errorf("%w: %s Kendall's tau %v outside [0, 1)", ErrInvalidSpec, family, tau)
	}
	return nil
}

// Family returns the copula type tag.
func (a *Archimedean) Family() Type { return a.family }

// Tau returns Kendall's tau.
func (a *Archimedean) Tau() float64 { return a.tau }

// Independent reports whether the dependence collapsed to independence.
func (a *Archimedean) Independent() bool { return a.law == nil }

func (a *Archimedean) Size() int { return a.n }

// Draw samples V first, then the n uniforms.
func (a *Archimedean) Draw(x []float64) {
	if a.law != nil {
		a.logV = a.law.sample(a.core)
	}
	for i := range a.w {
		a.w[i] = a.core.Uniform()
	}
	a.fill(x, false)
}

// Antithetic reuses V and reflects the uniforms, so the pair member is itself
// a draw from the same copula.
func (a *Archimedean) Antithetic(x []float64) {
	a.fill(x, true)
}

func (a *Archimedean) fill(x []float64, reflect bool) {
	for i, w := range a.w {
		if reflect {
			w = 1 - w
		}
		if a.law == nil {
			x[i] = w
			continue
		}
		x[i] = clamp01(a.law.psi(math.Log(-math.Log(w)) - a.logV))
	}
}

func (a *Archimedean) ProbabilityFromLevel(z float64) float64 { return clamp01(z) }

func (a *Archimedean) LevelFromProbability(p float64) float64 { return clamp01(p) }

func (a *Archimedean) Subset(names []int) (Copula, error) {
	if err := checkSubset(names, a.n); err != nil {
		return nil, err
	}
	return newArchimedean(a.family, len(names), a.tau, a.core, a.law), nil
}

func (a *Archimedean) WithCore(core *rng.Core) Copula {
	cp := newArchimedean(a.family, a.n, a.tau, core, a.law)
	copy(cp.w, a.w)
	cp.logV = a.logV
	return cp
}

func (a *Archimedean) Core() *rng.Core { return a.core }
