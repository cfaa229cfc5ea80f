// Package rng provides the single entropy source shared by every sampler in a
// simulation tree.
//
// A Core wraps a PCG generator and hands out uniform, normal, exponential,
// gamma, beta and chi-squared deviates. Composed samplers hold a pointer to the
// same Core so the whole tree consumes one deterministic stream. A Core is not
// safe for concurrent use; parallel workers each get their own stream.
package rng

import (
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"
)

// Core is a seedable pseudo-random stream.
type Core struct {
	seed   uint64
	stream uint64
	src    *rand.PCG
	rnd    *rand.Rand
}

// New returns the default stream for seed.
func New(seed uint64) *Core {
	return NewStream(seed, 0)
}

// NewStream returns stream number stream for seed. Distinct streams of the
// same seed do not overlap in practice.
func NewStream(seed, stream uint64) *Core {
	src := rand.NewPCG(seed, streamIncrement(stream))
	return &Core{
		seed:   seed,
		stream: stream,
		src:    src,
		rnd:    rand.New(src),
	}
}

// streamIncrement spreads small stream numbers apart (splitmix64 finaliser).
func streamIncrement(stream uint64) uint64 {
	z := stream + 0x9e3779b97f4a7c15
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	return z ^ (z >> 31)
}

// Seed returns the seed the core was created with.
func (c *Core) Seed() uint64 { return c.seed }

// Source exposes the underlying generator for gonum distributions.
func (c *Core) Source() rand.Source { return c.src }

// Clone deep-copies the generator state. The clone replays exactly the
// numbers the original would produce next, but advancing one does not
// advance the other.
func (c *Core) Clone() *Core {
	src := new(rand.PCG)
	*src = *c.src
	return &Core{
		seed:   c.seed,
		stream: c.stream,
		src:    src,
		rnd:    rand.New(src),
	}
}

// Derive returns a fresh stream keyed by the core's seed and a caller-chosen
// label. It does not consume numbers from c.
func (c *Core) Derive(label uint64) *Core {
	return NewStream(c.seed, c.stream^streamIncrement(label+1))
}

// Uniform returns a deviate in the open interval (0, 1).
func (c *Core) Uniform() float64 {
	for {
		if u := c.rnd.Float64(); u > 0 {
			return u
		}
	}
}

// Normal returns a standard normal deviate.
func (c *Core) Normal() float64 {
	return c.rnd.NormFloat64()
}

// Exponential returns a unit-rate exponential deviate.
func (c *Core) Exponential() float64 {
	return c.rnd.ExpFloat64()
}

// Gamma returns a Gamma(shape, 1) deviate. shape must be positive.
func (c *Core) Gamma(shape float64) float64 {
	return distuv.Gamma{Alpha: shape, Beta: 1, Src: c.src}.Rand()
}

// Beta returns a Beta(a, b) deviate.
func (c *Core) Beta(a, b float64) float64 {
	return distuv.Beta{Alpha: a, Beta: b, Src: c.src}.Rand()
}

// ChiSquared returns a chi-squared deviate with k degrees of freedom.
func (c *Core) ChiSquared(k float64) float64 {
	return distuv.ChiSquared{K: k, Src: c.src}.Rand()
}
