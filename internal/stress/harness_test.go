package stress

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dumpster/pkg/config"
	"github.com/dumpster/pkg/dumpster"
	"github.com/dumpster/pkg/errors"
	"github.com/dumpster/pkg/utils"
)

func newTestCollector(opts ...dumpster.Option) *dumpster.Collector {
	base := []dumpster.Option{
		dumpster.WithShards(4),
		dumpster.WithDumpsterCapacity(8),
		dumpster.WithPolicy(dumpster.AdaptivePolicy{MinPending: 16, LiveRatio: 0.25}),
		dumpster.WithLogger(&utils.NullLogger{}),
	}
	return dumpster.NewCollector(append(base, opts...)...)
}

func TestRunner_Run(t *testing.T) {
	for _, lockRatio := range []float64{0, 0.5, 1} {
		c := newTestCollector()
		r := NewRunner(c, Options{
			Workers:    6,
			Operations: 2000,
			Nodes:      24,
			Fanout:     3,
			Seed:       7,
			LockRatio:  lockRatio,
		}, &utils.NullLogger{})

		report, err := r.Run(context.Background())
		require.NoError(t, err, "lock ratio %g", lockRatio)

		assert.Zero(t, report.Violations)
		assert.Zero(t, report.DoubleFinalized)
		assert.Equal(t, report.Created, report.Finalized)
		assert.Zero(t, report.Stats.Live)
		assert.Equal(t, uint64(report.Created), report.Stats.Destroyed)
		assert.Positive(t, report.Stats.Passes)

		var total int64
		for _, name := range report.OperationNames() {
			total += report.Operations[name]
		}
		assert.Equal(t, int64(6*2000), total)
		assert.Equal(t, int64(6), report.Pool.CompletedTasks)
	}
}

func TestRunner_ReportsProgress(t *testing.T) {
	var last atomic.Int64
	r := NewRunner(newTestCollector(), Options{
		Workers:          2,
		Operations:       300,
		Nodes:            8,
		Progress:         func(completed, total int64) { last.Store(completed) },
		ProgressInterval: time.Millisecond,
	}, &utils.NullLogger{})

	_, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(600), last.Load())
}

func TestRunner_CanceledContextStillTearsDown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := NewRunner(newTestCollector(), Options{Workers: 2, Operations: 1000, Nodes: 8}, &utils.NullLogger{})
	report, err := r.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, report)
	assert.Equal(t, report.Created, report.Finalized)
	assert.Zero(t, report.Stats.Live)
}

func TestReport_Err(t *testing.T) {
	assert.NoError(t, (&Report{Created: 3, Finalized: 3}).Err())

	err := (&Report{Violations: 2}).Err()
	assert.True(t, errors.IsStressFailed(err))
	assert.Contains(t, err.Error(), "reached a finalized node")

	err = (&Report{Created: 3, Finalized: 4, DoubleFinalized: 1}).Err()
	assert.Contains(t, err.Error(), "more than once")

	err = (&Report{Created: 3, Finalized: 2}).Err()
	assert.Contains(t, err.Error(), "2 of 3")

	err = (&Report{Stats: dumpster.Stats{Live: 1}}).Err()
	assert.Contains(t, err.Error(), "1 live")
}

func TestOptionsFromConfig(t *testing.T) {
	cfg := config.Default()
	opts := OptionsFromConfig(cfg.Stress)
	assert.Equal(t, cfg.Stress.Workers, opts.Workers)
	assert.Equal(t, cfg.Stress.Operations, opts.Operations)
	assert.Equal(t, cfg.Stress.LockRatio, opts.LockRatio)
}

func TestPickOpCoversEveryKind(t *testing.T) {
	total := 0
	for _, w := range opWeights {
		total += w
	}
	assert.Equal(t, 100, total)
}

func TestNode_LinkReplacesAtFanout(t *testing.T) {
	c := dumpster.NewCollector(dumpster.WithPolicy(dumpster.Manual), dumpster.WithLogger(&utils.NullLogger{}))
	var tr tracker
	a := newNode(c, &tr, 1, false)
	b := newNode(c, &tr, 2, true)
	d := newNode(c, &tr, 3, false)

	an := a.Deref()
	an.link(b.Clone(), 1, 0)
	an.link(d.Clone(), 1, 0)
	assert.Equal(t, 1, b.StrongCount())
	assert.Equal(t, 2, d.StrongCount())

	next := an.follow(5)
	require.NotNil(t, next)
	assert.True(t, dumpster.SameAllocation(next, d))
	next.Drop()

	an.unlink(0).Drop()
	assert.Nil(t, an.unlink(0))
	assert.Nil(t, an.follow(0))

	a.Drop()
	b.Drop()
	d.Drop()
	assert.Equal(t, int64(3), tr.finalized.Load())
	assert.Zero(t, tr.doubles.Load())
}
