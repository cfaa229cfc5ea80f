package simulate

import (
	"time"

	"github.com/meenmo/ttdlib/ttd"
	"github.com/meenmo/ttdlib/utils"
)

// tally accumulates weighted path statistics for one worker.
type tally struct {
	start  time.Time
	paths  int
	weight float64
	names  []float64
	counts []float64

	firstWeight float64
	firstYears  float64
}

func newTally(n int, start time.Time) *tally {
	return &tally{
		start:  start,
		names:  make([]float64, n),
		counts: make([]float64, n+1),
	}
}

func (t *tally) add(p ttd.Path) {
	w := p.Weight
	t.paths++
	t.weight += w
	t.counts[len(p.Names)] += w
	for _, n := range p.Names {
		t.names[n] += w
	}
	if len(p.Dates) == 0 {
		return
	}
	first := p.Dates[0]
	for _, d := range p.Dates[1:] {
		if d.Before(first) {
			first = d
		}
	}
	t.firstWeight += w
	t.firstYears += w * utils.YearFraction(t.start, first, "ACT/365F")
}

func (t *tally) merge(o *tally) {
	t.paths += o.paths
	t.weight += o.weight
	for i := range t.names {
		t.names[i] += o.names[i]
	}
	for k := range t.counts {
		t.counts[k] += o.counts[k]
	}
	t.firstWeight += o.firstWeight
	t.firstYears += o.firstYears
}

func (t *tally) summarise(s *Summary) {
	s.Paths = t.paths
	s.Weight = t.weight
	s.DefaultFrequency = make([]float64, len(t.names))
	s.CountDistribution = make([]float64, len(t.counts))
	if t.weight <= 0 {
		return
	}
	for i, w := range t.names {
		s.DefaultFrequency[i] = w / t.weight
		s.ExpectedDefaults += s.DefaultFrequency[i]
	}
	for k, w := range t.counts {
		s.CountDistribution[k] = w / t.weight
	}
	if t.firstWeight > 0 {
		s.MeanFirstDefaultYears = t.firstYears / t.firstWeight
	}
}
