package copula

import (
	"math"

	"github.com/meenmo/ttdlib/rng"
)

// Stable draws from the alpha-stable law S(alpha, beta, 1, 0) by the
// Chambers-Mallows-Stuck method. alpha is in (0, 2], beta in [-1, 1].
//
// alpha = 2 is the normal law with variance 2 and alpha = 1 is handled by the
// separate closed form (beta = 0 gives the standard Cauchy).
func Stable(core *rng.Core, alpha, beta float64) float64 {
	v := math.Pi * (core.Uniform() - 0.5)
	w := core.Exponential()

	switch alpha {
	case 2:
		return 2 * math.Sin(v) * math.Sqrt(w)
	case 1:
		h := math.Pi/2 + beta*v
		return (h*math.Tan(v) - beta*math.Log(math.Pi/2*w*math.Cos(v)/h)) * 2 / math.Pi
	}

	logX, sign := cmsLog(v, w, alpha, beta)
	return sign * math.Exp(logX)
}

// logPositiveStable returns ln X for X ~ S(alpha, 1, 1, 0), 0 < alpha < 1.
// X itself overflows for small alpha; its logarithm does not.
func logPositiveStable(core *rng.Core, alpha float64) float64 {
	v := math.Pi * (core.Uniform() - 0.5)
	w := core.Exponential()
	logX, _ := cmsLog(v, w, alpha, 1)
	return logX
}

// cmsLog evaluates the Chambers-Mallows-Stuck product for alpha != 1 as
// ln|X| and the sign of X. Each factor is taken in log space because the
// 1/alpha powers under- and overflow as alpha approaches 0.
func cmsLog(v, w, alpha, beta float64) (float64, float64) {
	t := beta * math.Tan(math.Pi*alpha/2)
	a := math.Atan(t) + alpha*v
	num := math.Sin(a)
	rest := math.Cos(v - a)
	if num == 0 || rest <= 0 {
		return math.Inf(-1), 0
	}
	sign := 1.0
	if num < 0 {
		sign, num = -1, -num
	}
	logX := math.Log1p(t*t)/(2*alpha) + math.Log(num) - math.Log(math.Cos(v))/alpha +
		(1-alpha)/alpha*(math.Log(rest)-math.Log(w))
	return logX, sign
}
