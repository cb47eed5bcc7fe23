package stress

import (
	"context"
	"fmt"
	"time"

	"github.com/dumpster/pkg/dumpster"
	"github.com/dumpster/pkg/errors"
)

// Scenario is a small fixed graph with a known expected outcome.
type Scenario struct {
	Name        string
	Description string
	run         func(ctx context.Context, s *scenarioEnv) (*ScenarioResult, error)
}

// ScenarioResult reports the first pass of a scenario and whether the
// collector behaved as expected.
type ScenarioResult struct {
	Name      string
	Passed    bool
	Detail    string
	Pass      dumpster.PassStats
	Finalized int64
}

// Scenarios lists the built-in scenarios.
func Scenarios() []Scenario {
	return []Scenario{
		{
			Name:        "shared-cycles",
			Description: "two cycles a->b->d->a and a->c->d sharing d, released together",
			run:         runSharedCycles,
		},
		{
			Name:        "relocated-edge",
			Description: "the edge x->a moves to y->a while the pass counts references",
			run:         runRelocatedEdge,
		},
		{
			Name:        "held-lock",
			Description: "a released cycle whose payload lock is held by another goroutine",
			run:         runHeldLock,
		},
	}
}

// RunScenario runs the named scenario on a fresh manual collector built
// with opts.
func RunScenario(ctx context.Context, name string, opts ...dumpster.Option) (*ScenarioResult, error) {
	for _, s := range Scenarios() {
		if s.Name != name {
			continue
		}
		env := &scenarioEnv{
			c: dumpster.NewCollector(append(append([]dumpster.Option{}, opts...), dumpster.WithPolicy(dumpster.Manual))...),
		}
		res, err := s.run(ctx, env)
		if err != nil {
			return nil, err
		}
		res.Name = s.Name
		res.Finalized = env.t.finalized.Load()
		if env.t.doubles.Load() > 0 {
			res.Passed = false
			res.Detail = fmt.Sprintf("%d nodes finalized more than once", env.t.doubles.Load())
		}
		return res, nil
	}
	return nil, errors.Newf(errors.CodeInvalidInput, "unknown scenario %q", name)
}

type scenarioEnv struct {
	c      *dumpster.Collector
	t      tracker
	nextID uint64
}

func (s *scenarioEnv) node() *dumpster.Handle[node] {
	s.nextID++
	return newNode(s.c, &s.t, s.nextID, false)
}

func link(from, to *dumpster.Handle[node]) {
	from.Deref().link(to.Clone(), 1<<30, 0)
}

// drain runs passes until nothing is left to do.
func (s *scenarioEnv) drain(ctx context.Context) error {
	for i := 0; i < maxDrainPasses; i++ {
		ps, err := s.c.Collect(ctx)
		if err != nil {
			return err
		}
		if ps.Collected == 0 && s.c.Pending() == 0 {
			return nil
		}
	}
	return nil
}

func runSharedCycles(ctx context.Context, s *scenarioEnv) (*ScenarioResult, error) {
	a, b, c, d := s.node(), s.node(), s.node(), s.node()
	link(a, b)
	link(b, d)
	link(d, a)
	link(a, c)
	link(c, d)
	b.Drop()
	c.Drop()
	d.Drop()
	a.Drop()

	ps, err := s.c.Collect(ctx)
	if err != nil {
		return nil, err
	}
	res := &ScenarioResult{Pass: ps, Passed: ps.Collected == 4 && s.t.finalized.Load() == 4}
	res.Detail = fmt.Sprintf("collected %d of 4 allocations in one pass", ps.Collected)
	return res, nil
}

func runRelocatedEdge(ctx context.Context, s *scenarioEnv) (*ScenarioResult, error) {
	a, x, y := s.node(), s.node(), s.node()
	an, xn, yn := a.Deref(), x.Deref(), y.Deref()

	// a reaches y before x, so the count phase visits x first.
	link(a, y)
	link(a, x)
	link(x, a)
	xn.life.onCount = func() {
		yn.link(xn.unlink(0), 1<<30, 0)
	}
	x.Drop()
	y.Drop()

	// Leave a as the only candidate.
	for _, h := range an.targets() {
		h.Deref()
	}
	a.Clone().Drop()

	ps, err := s.c.Collect(ctx)
	if err != nil {
		return nil, err
	}
	res := &ScenarioResult{
		Pass:   ps,
		Passed: ps.Collected == 0 && s.t.finalized.Load() == 0,
		Detail: fmt.Sprintf("collected %d, %d kept because the moved edge was untagged", ps.Collected, ps.Conservative["untagged"]),
	}

	a.Drop()
	if err := s.drain(ctx); err != nil {
		return nil, err
	}
	if s.t.finalized.Load() != 3 {
		res.Passed = false
		res.Detail = fmt.Sprintf("%d of 3 allocations reclaimed after the root was released", s.t.finalized.Load())
	}
	return res, nil
}

// heldLockTimeout bounds how long the held-lock pass may take before the
// scenario counts it as blocked.
const heldLockTimeout = 5 * time.Second

func runHeldLock(ctx context.Context, s *scenarioEnv) (*ScenarioResult, error) {
	a, b := s.node(), s.node()
	link(a, b)
	link(b, a)
	holder := a.Clone()
	a.Drop()
	b.Drop()

	g := holder.Deref().edges.(mutexGuard)
	locked := make(chan struct{})
	release := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		g.Lock()
		close(locked)
		<-release
		g.Unlock()
		holder.Drop()
	}()
	<-locked

	passDone := make(chan dumpster.PassStats, 1)
	passErr := make(chan error, 1)
	go func() {
		ps, err := s.c.Collect(ctx)
		if err != nil {
			passErr <- err
			return
		}
		passDone <- ps
	}()

	res := &ScenarioResult{}
	select {
	case ps := <-passDone:
		res.Pass = ps
		res.Passed = ps.Collected == 0 && s.t.finalized.Load() == 0
		res.Detail = fmt.Sprintf("pass returned with %d busy payloads treated as accessible", ps.Conservative["busy"])
	case err := <-passErr:
		close(release)
		<-done
		return nil, err
	case <-time.After(heldLockTimeout):
		res.Detail = "pass blocked on a payload lock"
	}

	close(release)
	<-done
	if !res.Passed {
		return res, nil
	}
	if err := s.drain(ctx); err != nil {
		return nil, err
	}
	if s.t.finalized.Load() != 2 {
		res.Passed = false
		res.Detail = fmt.Sprintf("%d of 2 allocations reclaimed after the lock was released", s.t.finalized.Load())
	}
	return res, nil
}
