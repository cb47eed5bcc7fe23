package dumpster

import (
	"github.com/dumpster/pkg/collections"
)

// destroyFrom destroys root, whose strong count just reached zero, and every
// allocation that loses its last reference as a result. The explicit work
// list keeps long chains off the goroutine stack.
func destroyFrom(root *allocation) {
	work := collections.NewStack[*allocation](4)
	work.Push(root)
	drain(work)
}

func drain(work *collections.Stack[*allocation]) {
	v := dropVisitor{work: work}
	for {
		a, ok := work.Pop()
		if !ok {
			return
		}
		a.destroyPayload(v)
		a.unpin()
	}
}

// sweeper frees a set of condemned allocations in bulk. Edges between two
// condemned allocations are killed without touching counts; edges leaving
// the set are dropped normally.
type sweeper struct {
	p      *prober
	doomed *collections.Bitset
	work   *collections.Stack[*allocation]
}

func newSweeper(p *prober, doomed *collections.Bitset) *sweeper {
	return &sweeper{
		p:      p,
		doomed: doomed,
		work:   collections.NewStack[*allocation](16),
	}
}

func (s *sweeper) Visit(e Edge) {
	core := coreOf(e)
	if core == nil || !core.dropped.CompareAndSwap(false, true) {
		return
	}
	if idx, ok := s.p.index[core.alloc]; ok && s.doomed.Test(int(idx)) {
		return
	}
	if core.alloc.releaseOne() {
		s.work.Push(core.alloc)
	}
}

func (*sweeper) Exclusive() bool { return true }

// sweep resolves every edge of the condemned set before any finalizer runs,
// so a finalizer never observes a neighbour that is half torn down.
func (s *sweeper) sweep(members []int32) {
	for _, idx := range members {
		a := s.p.nodes[idx].a
		if err := a.body.accept(s); err != nil {
			s.p.c.logger.Warn("allocation %d failed to enumerate handles during sweep: %v", a.id, err)
		}
	}
	for _, idx := range members {
		s.p.nodes[idx].a.finish()
	}
	drain(s.work)
}
