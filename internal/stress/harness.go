// Package stress drives collectors with concurrent random graph mutation and
// checks that no payload is reached after it was finalized and that every
// payload is finalized exactly once.
package stress

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dumpster/pkg/config"
	"github.com/dumpster/pkg/dumpster"
	"github.com/dumpster/pkg/errors"
	"github.com/dumpster/pkg/parallel"
	"github.com/dumpster/pkg/utils"
)

type opKind int

const (
	opCreate opKind = iota
	opLink
	opUnlink
	opWalk
	opChurn
	opCollect
	numOps
)

var opNames = [numOps]string{"create", "link", "unlink", "walk", "churn", "collect"}

// opWeights sums to 100.
var opWeights = [numOps]int{15, 30, 10, 25, 18, 2}

// maxDrainPasses bounds the passes run after the roots are dropped.
const maxDrainPasses = 64

// Options configures a stress run.
type Options struct {
	Workers    int
	Operations int // per worker
	Nodes      int
	Fanout     int
	Seed       int64
	LockRatio  float64

	// Progress, when set, is called periodically with completed operations.
	Progress         func(completed, total int64)
	ProgressInterval time.Duration
}

// OptionsFromConfig maps the stress section of the configuration.
func OptionsFromConfig(cfg config.StressConfig) Options {
	return Options{
		Workers:    cfg.Workers,
		Operations: cfg.Operations,
		Nodes:      cfg.Nodes,
		Fanout:     cfg.Fanout,
		Seed:       cfg.Seed,
		LockRatio:  cfg.LockRatio,
	}
}

// Report summarizes a run.
type Report struct {
	Operations      map[string]int64
	Violations      int64
	Created         int64
	Finalized       int64
	DoubleFinalized int64
	DrainPasses     int
	Stats           dumpster.Stats
	Pool            parallel.PoolMetrics
	Duration        time.Duration
}

// Err reports the first broken guarantee, if any.
func (r *Report) Err() error {
	switch {
	case r.Violations > 0:
		return errors.Newf(errors.CodeStressFailed, "%d operations reached a finalized node", r.Violations)
	case r.DoubleFinalized > 0:
		return errors.Newf(errors.CodeStressFailed, "%d nodes finalized more than once", r.DoubleFinalized)
	case r.Finalized != r.Created:
		return errors.Newf(errors.CodeStressFailed, "%d of %d nodes finalized after teardown", r.Finalized, r.Created)
	case r.Stats.Live != 0:
		return errors.Newf(errors.CodeStressFailed, "collector still reports %d live allocations", r.Stats.Live)
	}
	return nil
}

// OperationNames returns the operation kinds in a stable order.
func (r *Report) OperationNames() []string {
	names := make([]string, 0, len(r.Operations))
	for name := range r.Operations {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Runner owns one stress run over a collector.
type Runner struct {
	opts   Options
	c      *dumpster.Collector
	logger utils.Logger
	clock  utils.Clock

	t          tracker
	nextID     atomic.Uint64
	violations atomic.Int64

	mu    sync.Mutex
	roots []*dumpster.Handle[node]
}

// NewRunner prepares a run. Zero option fields fall back to small defaults.
func NewRunner(c *dumpster.Collector, opts Options, logger utils.Logger) *Runner {
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.Nodes <= 0 {
		opts.Nodes = 32
	}
	if opts.Fanout <= 0 {
		opts.Fanout = 3
	}
	if logger == nil {
		logger = utils.GetGlobalLogger()
	}
	return &Runner{opts: opts, c: c, logger: logger, clock: utils.NewRealClock()}
}

// Run mutates the graph from all workers, then drops every root, drains the
// collector and verifies the lifecycle counters. A canceled context stops
// the workers early; teardown and verification still run.
func (r *Runner) Run(ctx context.Context) (*Report, error) {
	start := r.clock.Now()
	seedRng := rand.New(rand.NewSource(r.opts.Seed))
	r.roots = make([]*dumpster.Handle[node], r.opts.Nodes)
	for i := range r.roots {
		r.roots[i] = r.newNode(seedRng)
	}

	total := int64(r.opts.Workers) * int64(r.opts.Operations)
	progress := parallel.NewProgressTracker(total, r.opts.Progress, r.opts.ProgressInterval)
	progress.Start(ctx)

	workers := make([]int, r.opts.Workers)
	for i := range workers {
		workers[i] = i
	}
	pool := parallel.NewWorkerPool[int, [numOps]int64](parallel.DefaultPoolConfig().WithWorkers(r.opts.Workers).WithMetrics())
	results := pool.ExecuteFunc(ctx, workers, func(ctx context.Context, id int) ([numOps]int64, error) {
		return r.work(ctx, id, progress)
	})
	progress.Stop()

	report := &Report{Operations: make(map[string]int64, numOps), Pool: pool.Metrics()}
	var runErr error
	for _, res := range results {
		for k, n := range res.Result {
			report.Operations[opNames[k]] += n
		}
		if res.Error != nil && runErr == nil {
			runErr = res.Error
		}
	}

	drained, err := r.teardown()
	if err != nil {
		return nil, err
	}
	report.DrainPasses = drained
	report.Violations = r.violations.Load()
	report.Created = r.t.created.Load()
	report.Finalized = r.t.finalized.Load()
	report.DoubleFinalized = r.t.doubles.Load()
	report.Stats = r.c.Stats()
	report.Duration = r.clock.Since(start)

	r.logger.WithFields(map[string]interface{}{
		"created":    report.Created,
		"finalized":  report.Finalized,
		"passes":     report.Stats.Passes,
		"violations": report.Violations,
	}).Info("stress run finished in %s", report.Duration)

	if runErr != nil {
		return report, runErr
	}
	return report, report.Err()
}

func (r *Runner) newNode(rng *rand.Rand) *dumpster.Handle[node] {
	return newNode(r.c, &r.t, r.nextID.Add(1), rng.Float64() < r.opts.LockRatio)
}

func (r *Runner) cloneRoot(i int) *dumpster.Handle[node] {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.roots[i].Clone()
}

func (r *Runner) swapRoot(i int, h *dumpster.Handle[node]) *dumpster.Handle[node] {
	r.mu.Lock()
	defer r.mu.Unlock()
	old := r.roots[i]
	r.roots[i] = h
	return old
}

func (r *Runner) check(h *dumpster.Handle[node]) *node {
	n := h.Deref()
	if n.dead() {
		if r.violations.Add(1) == 1 {
			r.logger.Error("node %d reached after finalization", n.id)
		}
	}
	return n
}

func (r *Runner) work(ctx context.Context, id int, progress *parallel.ProgressTracker) ([numOps]int64, error) {
	var counts [numOps]int64
	rng := rand.New(rand.NewSource(r.opts.Seed + int64(id) + 1))

	for op := 0; op < r.opts.Operations; op++ {
		if op%256 == 0 {
			if err := ctx.Err(); err != nil {
				return counts, err
			}
		}
		kind := pickOp(rng)
		counts[kind]++
		i := rng.Intn(len(r.roots))

		switch kind {
		case opCreate:
			r.swapRoot(i, r.newNode(rng)).Drop()
		case opLink:
			from := r.cloneRoot(i)
			to := r.cloneRoot(rng.Intn(len(r.roots)))
			r.check(to)
			r.check(from).link(to, r.opts.Fanout, rng.Int())
			from.Drop()
		case opUnlink:
			from := r.cloneRoot(i)
			r.check(from).unlink(rng.Int()).Drop()
			from.Drop()
		case opWalk:
			cur := r.cloneRoot(i)
			for step := 0; step < 4 && cur != nil; step++ {
				next := r.check(cur).follow(rng.Int())
				cur.Drop()
				cur = next
			}
			cur.Drop()
		case opChurn:
			h := r.cloneRoot(i)
			r.check(h)
			h.Clone().Drop()
			h.Drop()
		case opCollect:
			if _, err := r.c.Collect(ctx); err != nil {
				return counts, err
			}
		}
		progress.Add(1)
	}
	return counts, nil
}

func pickOp(rng *rand.Rand) opKind {
	n := rng.Intn(100)
	for k, w := range opWeights {
		if n < w {
			return opKind(k)
		}
		n -= w
	}
	return opChurn
}

// teardown drops every root and runs passes until the collector is quiet.
func (r *Runner) teardown() (int, error) {
	r.mu.Lock()
	roots := r.roots
	r.roots = nil
	r.mu.Unlock()
	for _, h := range roots {
		h.Drop()
	}

	for pass := 1; pass <= maxDrainPasses; pass++ {
		ps, err := r.c.Collect(context.Background())
		if err != nil {
			return pass, fmt.Errorf("drain pass %d: %w", pass, err)
		}
		if ps.Collected == 0 && r.c.Pending() == 0 {
			return pass, nil
		}
	}
	return maxDrainPasses, nil
}
