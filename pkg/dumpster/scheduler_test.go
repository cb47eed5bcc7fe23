package dumpster_test

import (
	"context"
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dumpster/internal/testutil"
	"github.com/dumpster/pkg/dumpster"
	"github.com/dumpster/pkg/errors"
	"github.com/dumpster/pkg/utils"
)

func TestAdaptivePolicy(t *testing.T) {
	p := dumpster.AdaptivePolicy{MinPending: 10, LiveRatio: 0.5}

	assert.False(t, p.ShouldCollect(dumpster.TriggerState{Pending: 9, Live: 0, DropsSinceLastPass: 100}))
	assert.False(t, p.ShouldCollect(dumpster.TriggerState{Pending: 10, Live: 100, DropsSinceLastPass: 49}))
	assert.True(t, p.ShouldCollect(dumpster.TriggerState{Pending: 10, Live: 100, DropsSinceLastPass: 50}))
	assert.False(t, dumpster.Manual.ShouldCollect(dumpster.TriggerState{Pending: 1 << 20}))
}

func TestCollector_OptionsAreNormalized(t *testing.T) {
	c := dumpster.NewCollector(dumpster.WithShards(5), dumpster.WithDumpsterCapacity(-1), dumpster.WithLiveRatio(-2))
	opts := c.Options()
	assert.Equal(t, 8, opts.Shards)
	assert.Equal(t, dumpster.DefaultDumpsterCapacity, opts.DumpsterCapacity)
	assert.Zero(t, opts.LiveRatio)
	assert.Equal(t, dumpster.AdaptivePolicy{MinPending: dumpster.DefaultTruckThreshold, LiveRatio: 0}, opts.Policy)
	assert.NotNil(t, opts.Tracer)
	assert.NotNil(t, opts.Logger)
	assert.NotZero(t, c.ID())
}

func TestCollector_Default(t *testing.T) {
	c := dumpster.NewCollector(dumpster.WithPolicy(dumpster.Manual), dumpster.WithLogger(&utils.NullLogger{}))
	prev := dumpster.SetDefault(c)
	defer dumpster.SetDefault(prev)

	h := dumpster.New(leaf{value: 1})
	assert.Same(t, c, h.Collector())
	h.Clone().Drop()
	h.Drop()

	ps, err := dumpster.Collect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, ps.Candidates)
}

func TestSetDefault_RefusesWhileDefaultOwnsAllocations(t *testing.T) {
	c := dumpster.NewCollector(dumpster.WithPolicy(dumpster.Manual), dumpster.WithLogger(&utils.NullLogger{}))
	prev := dumpster.SetDefault(c)
	defer dumpster.SetDefault(prev)

	h := dumpster.New(leaf{value: 1})
	other := dumpster.NewCollector(dumpster.WithPolicy(dumpster.Manual), dumpster.WithLogger(&utils.NullLogger{}))
	testutil.RequirePanicCode(t, errors.CodeInvalidInput, func() { dumpster.SetDefault(other) })
	assert.Same(t, c, dumpster.Default())

	h.Drop()
	assert.Same(t, c, dumpster.SetDefault(other))
	assert.Same(t, other, dumpster.SetDefault(c))
	assert.Same(t, c, dumpster.SetDefault(c))
	testutil.RequirePanicCode(t, errors.CodeInvalidInput, func() { dumpster.SetDefault(nil) })
}

// Full shards flow into the truck, and the flush that crosses the policy
// threshold runs a pass inline.
func TestScheduler_AutomaticPass(t *testing.T) {
	var passes []dumpster.PassStats
	g := testutil.NewGraph(t,
		dumpster.WithShards(1),
		dumpster.WithDumpsterCapacity(4),
		dumpster.WithPolicy(dumpster.AdaptivePolicy{MinPending: 4, LiveRatio: 0}),
		dumpster.WithObserver(dumpster.ObserverFunc(func(s dumpster.PassStats) {
			passes = append(passes, s)
		})),
	)

	for i := 0; i < 8; i++ {
		name := fmt.Sprintf("n%d", i)
		g.Add(name).Link(name, name)
	}
	for i := 0; i < 3; i++ {
		g.Release(fmt.Sprintf("n%d", i))
	}
	assert.Empty(t, passes)
	assert.Equal(t, 3, g.C.Pending())

	g.Release("n3")
	require.Len(t, passes, 1)
	assert.Equal(t, 4, passes[0].Candidates)
	assert.Equal(t, 4, passes[0].Collected)
	assert.Zero(t, g.C.Pending())

	for i := 4; i < 8; i++ {
		g.Release(fmt.Sprintf("n%d", i))
	}
	require.Len(t, passes, 2)
	assert.Equal(t, 8, g.Probe.Total())
	testutil.AssertLive(t, g.C, 0)
}

func TestScheduler_ManualPolicyNeverCollects(t *testing.T) {
	g := testutil.NewGraph(t, dumpster.WithShards(1), dumpster.WithDumpsterCapacity(2))
	for i := 0; i < 10; i++ {
		name := fmt.Sprintf("n%d", i)
		g.Add(name).Link(name, name)
		g.Release(name)
	}
	assert.Zero(t, g.C.Stats().Passes)
	assert.Equal(t, 10, g.C.Pending())
	assert.Equal(t, 10, g.CollectAll())
}

// Each pass probes at most the live set, and the adaptive policy waits for
// a number of drops proportional to it, so the total work stays linear in
// the number of drops whatever the shard capacity.
func TestScheduler_WorkIsLinearInDrops(t *testing.T) {
	const (
		ringSize = 400
		drops    = 20000
	)
	for _, capacity := range []int{4, 32, 128} {
		t.Run(fmt.Sprintf("capacity=%d", capacity), func(t *testing.T) {
			c := dumpster.NewCollector(
				dumpster.WithShards(1),
				dumpster.WithDumpsterCapacity(capacity),
				dumpster.WithPolicy(dumpster.AdaptivePolicy{MinPending: capacity, LiveRatio: 0.5}),
				dumpster.WithLogger(&utils.NullLogger{}),
			)
			probe := testutil.NewProbe()

			ring := make([]*dumpster.Handle[testutil.Node], ringSize)
			for i := range ring {
				ring[i] = testutil.NewNode(c, fmt.Sprintf("r%d", i), probe)
			}
			for i := range ring {
				next := ring[(i+1)%ringSize].Clone()
				ring[i].Deref().Links().With(func(l *testutil.Links) {
					l.Out = append(l.Out, next)
				})
			}

			rng := rand.New(rand.NewSource(int64(capacity)))
			for i := 0; i < drops; i++ {
				ring[rng.Intn(ringSize)].Clone().Drop()
			}

			stats := c.Stats()
			assert.Positive(t, stats.Passes)
			assert.Zero(t, stats.Collected)
			assert.LessOrEqual(t, stats.Visited+stats.Edges, uint64(8*drops))

			for _, h := range ring {
				h.Drop()
			}
			testutil.CollectAll(t, c)
			assert.Equal(t, ringSize, probe.Total())
			testutil.AssertLive(t, c, 0)
		})
	}
}
