// Package ttd draws correlated time-to-default scenarios for a basket of
// credit names.
//
// A sampler combines one survival curve per name with a copula over the
// basket. Each Draw produces a path: the names that default strictly inside
// the window [start, end), their default dates and a sampling weight.
// Samplers are not safe for concurrent use; give each goroutine its own
// sampler on its own rng stream.
package ttd

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInvalidConfig is wrapped by every construction error.
	ErrInvalidConfig = errors.New("invalid sampler configuration")
	// ErrIndexOutOfRange is returned when a default index is not below the
	// current path's default count.
	ErrIndexOutOfRange = errors.New("default index out of range")
	// ErrNoPath is returned by path-derived queries before a successful Draw.
	ErrNoPath = errors.New("no current path")
)

// Exhausted is returned by Draw when a stratified sampler has no quota left
// or gave up after its rejection budget.
const Exhausted = -1

// Rng is the sampling contract shared by every sampler in this package.
type Rng interface {
	// Draw advances to the next path and returns its number of defaults,
	// or Exhausted.
	Draw() int
	NumberOfDefaults() int
	// DefaultDate and DefaultName are valid for 0 <= n < NumberOfDefaults.
	DefaultDate(n int) (time.Time, error)
	DefaultName(n int) (int, error)
	Stratum() int
	Weight() float64
	// Path returns an immutable snapshot of the current path.
	Path() Path
}

// Path is one drawn scenario.
type Path struct {
	Stratum int
	Weight  float64
	Names   []int
	Dates   []time.Time
}

// NumberOfDefaults returns len(p.Names).
func (p Path) NumberOfDefaults() int { return len(p.Names) }

// pathState holds the current path of a sampler and implements the read side
// of Rng.
type pathState struct {
	names   []int
	dates   []time.Time
	stratum int
	weight  float64
	drawn   bool
}

func (s *pathState) set(names []int, dates []time.Time, stratum int, weight float64) {
	s.names = append(s.names[:0], names...)
	s.dates = append(s.dates[:0], dates...)
	s.stratum = stratum
	s.weight = weight
	s.drawn = true
}

func (s *pathState) clear() {
	s.names = s.names[:0]
	s.dates = s.dates[:0]
	s.drawn = false
}

func (s *pathState) NumberOfDefaults() int { return len(s.names) }

func (s *pathState) DefaultDate(n int) (time.Time, error) {
	if n < 0 || n >= len(s.dates) {
		return time.Time{}, fmt.Errorf("DefaultDate: %w: %d of %d", ErrIndexOutOfRange, n, len(s.dates))
	}
	return s.dates[n], nil
}

func (s *pathState) DefaultName(n int) (int, error) {
	if n < 0 || n >= len(s.names) {
		return 0, fmt.Errorf("DefaultName: %w: %d of %d", ErrIndexOutOfRange, n, len(s.names))
	}
	return s.names[n], nil
}

func (s *pathState) Stratum() int { return s.stratum }

func (s *pathState) Weight() float64 { return s.weight }

func (s *pathState) Path() Path {
	return Path{
		Stratum: s.stratum,
		Weight:  s.weight,
		Names:   append([]int(nil), s.names...),
		Dates:   append([]time.Time(nil), s.dates...),
	}
}
