package dumpster

import (
	"sync/atomic"
	"time"

	"github.com/dumpster/pkg/utils"
)

type counters struct {
	created    atomic.Uint64
	destroyed  atomic.Uint64
	released   atomic.Uint64
	passes     atomic.Uint64
	candidates atomic.Uint64
	visited    atomic.Uint64
	edges      atomic.Uint64
	collected  atomic.Uint64
	aborted    atomic.Uint64
	forced     [numReasons]atomic.Uint64
}

// Stats is a snapshot of collector counters since creation.
type Stats struct {
	Live      int64
	Created   uint64
	Destroyed uint64
	Released  uint64
	Pending   int

	Passes     uint64
	Candidates uint64
	Visited    uint64
	Edges      uint64
	Collected  uint64
	Aborted    uint64

	// Conservative counts nodes treated as accessible without proof, by cause.
	Conservative map[string]uint64
}

// PassStats describes one collection pass.
type PassStats struct {
	Pass       uint64
	Candidates int
	Visited    int
	Edges      int
	Accessible int
	Collected  int
	// Aborted counts garbage groups spared because a member changed after
	// it was counted.
	Aborted      int
	Conservative map[string]int
	Duration     time.Duration
	Phases       []utils.Phase
}

// Work is the number of nodes and edges the pass traversed.
func (s PassStats) Work() int {
	return s.Visited + s.Edges
}

// Observer is notified after every pass, on the goroutine that ran it.
type Observer interface {
	OnPass(s PassStats)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(PassStats)

// OnPass implements Observer.
func (f ObserverFunc) OnPass(s PassStats) { f(s) }

// Stats returns a snapshot of the collector counters.
func (c *Collector) Stats() Stats {
	s := Stats{
		Created:      c.stats.created.Load(),
		Destroyed:    c.stats.destroyed.Load(),
		Released:     c.stats.released.Load(),
		Pending:      c.Pending(),
		Passes:       c.stats.passes.Load(),
		Candidates:   c.stats.candidates.Load(),
		Visited:      c.stats.visited.Load(),
		Edges:        c.stats.edges.Load(),
		Collected:    c.stats.collected.Load(),
		Aborted:      c.stats.aborted.Load(),
		Conservative: make(map[string]uint64),
	}
	s.Live = int64(s.Created - s.Destroyed)
	for r := reasonForeign; r < numReasons; r++ {
		if n := c.stats.forced[r].Load(); n > 0 {
			s.Conservative[r.String()] = n
		}
	}
	return s
}

func (c *Collector) record(ps *PassStats, p *prober) {
	c.stats.candidates.Add(uint64(ps.Candidates))
	c.stats.visited.Add(uint64(ps.Visited))
	c.stats.edges.Add(uint64(ps.Edges))
	c.stats.collected.Add(uint64(ps.Collected))
	c.stats.aborted.Add(uint64(ps.Aborted))
	if p == nil {
		return
	}
	ps.Conservative = make(map[string]int)
	for r := reasonForeign; r < numReasons; r++ {
		if n := p.forced[r]; n > 0 {
			c.stats.forced[r].Add(uint64(n))
			ps.Conservative[r.String()] = n
		}
	}
}
