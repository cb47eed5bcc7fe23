package dumpster

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/dumpster/pkg/collections"
	"github.com/dumpster/pkg/utils"
)

// Collect runs a pass over every queued candidate, waiting for a pass that
// is already running to finish first. Allocations freed by the pass may make
// others collectable, which the next pass picks up.
func (c *Collector) Collect(ctx context.Context) (PassStats, error) {
	if err := ctx.Err(); err != nil {
		return PassStats{}, err
	}
	c.passMu.Lock()
	defer c.passMu.Unlock()

	timer := c.newPassTimer(c.stats.passes.Load() + 1)
	pt := timer.Start("drain")
	candidates := c.gather()
	pt.Stop()
	return c.runPassTimed(ctx, candidates, timer), nil
}

func (c *Collector) newPassTimer(pass uint64) *utils.Timer {
	return utils.NewTimer(fmt.Sprintf("pass %d", pass),
		utils.WithEnabled(c.opts.Timing),
		utils.WithClock(c.clock),
		utils.WithLogger(c.logger),
	)
}

// runPass probes the candidates, whose pins it takes over. passMu must be
// held.
func (c *Collector) runPass(ctx context.Context, candidates []*allocation) PassStats {
	return c.runPassTimed(ctx, candidates, c.newPassTimer(c.stats.passes.Load()+1))
}

func (c *Collector) runPassTimed(ctx context.Context, candidates []*allocation, timer *utils.Timer) PassStats {
	n := c.stats.passes.Add(1)
	start := c.clock.Now()

	_, span := c.tracer.Start(ctx, "dumpster.collect", trace.WithAttributes(
		attribute.Int64("dumpster.collector", int64(c.id)),
		attribute.Int64("dumpster.pass", int64(n)),
		attribute.Int("dumpster.candidates", len(candidates)),
	))
	defer span.End()

	ps := PassStats{Pass: n, Candidates: len(candidates)}
	var p *prober
	if len(candidates) > 0 {
		p = newProber(c)

		pt := timer.Start("tag")
		p.tag(candidates)
		pt.Stop()

		pt = timer.Start("count")
		p.count(candidates)
		pt.Stop()

		pt = timer.Start("mark")
		marked := p.mark()
		pt.Stop()

		pt = timer.Start("sweep")
		ps.Collected, ps.Aborted = p.reclaim(marked)
		pt.Stop()

		ps.Visited = len(p.nodes)
		ps.Edges = p.edges
		ps.Accessible = marked.Count()
		p.close()
	}
	for _, a := range candidates {
		a.unpin()
	}

	ps.Duration = c.clock.Since(start)
	ps.Phases = timer.Phases()
	c.record(&ps, p)

	span.SetAttributes(
		attribute.Int("dumpster.visited", ps.Visited),
		attribute.Int("dumpster.edges", ps.Edges),
		attribute.Int("dumpster.collected", ps.Collected),
		attribute.Int("dumpster.aborted", ps.Aborted),
	)

	if utils.Enabled(c.logger, utils.LevelDebug) {
		c.logger.WithFields(map[string]interface{}{
			"pass":       n,
			"candidates": ps.Candidates,
			"visited":    ps.Visited,
			"collected":  ps.Collected,
		}).Debug("collection pass finished in %s", ps.Duration)
		timer.PrintSummary()
	}
	if c.observer != nil {
		c.observer.OnPass(ps)
	}
	return ps
}

// reclaim condemns and sweeps every garbage group that still validates.
// Candidates in a spared group are queued again so a later pass retries them.
func (p *prober) reclaim(marked *collections.Bitset) (collected, aborted int) {
	groups := p.garbageGroups(marked)
	if len(groups) == 0 {
		return 0, 0
	}

	doomed := collections.NewBitset(len(p.nodes))
	var condemned []int32
	for _, g := range groups {
		if !p.condemn(g) {
			aborted++
			p.c.logger.Debug("spared garbage group of %d allocations: counts changed during the pass", len(g))
			for _, idx := range g {
				if n := &p.nodes[idx]; n.candidate {
					n.a.pin()
					p.c.enqueue(n.a)
				}
			}
			continue
		}
		for _, idx := range g {
			doomed.Set(int(idx))
		}
		condemned = append(condemned, g...)
	}

	if len(condemned) > 0 {
		newSweeper(p, doomed).sweep(condemned)
	}
	return len(condemned), aborted
}
