package dumpster

import (
	"github.com/dumpster/pkg/collections"
)

// probeNode is the per-pass record of one discovered allocation.
type probeNode struct {
	a *allocation

	// recorded is the state word read at discovery.
	recorded uint64

	// unaccounted starts at the strong count and loses one for every edge
	// found inside the probed region. Whatever remains came from outside.
	unaccounted int64

	// reason is non-zero when the node is treated as accessible regardless
	// of its count.
	reason forceReason

	candidate bool
	expanded  bool
	children  []int32
}

func (n *probeNode) accessible() bool {
	return n.reason != reasonNone || n.unaccounted != 0
}

// prober determines which candidates are only reachable from themselves.
//
// Nodes are addressed by dense indexes so the mark phase can use a bitset.
// Every discovered allocation is pinned until close, which keeps headers
// valid even if a concurrent drop destroys the payload mid-pass.
type prober struct {
	c      *Collector
	index  map[*allocation]int32
	nodes  []probeNode
	work   *collections.Stack[int32]
	cur    int32
	edges  int
	forced [numReasons]int

	// busy holds allocations whose Accept failed during tagging.
	busy map[*allocation]struct{}
	// tagged lists every handle tagged by this pass so close can reset them.
	tagged []*edge
}

func newProber(c *Collector) *prober {
	return &prober{
		c:     c,
		index: c.indexPool.Get(),
		work:  collections.NewStack[int32](64),
	}
}

func (p *prober) force(idx int32, reason forceReason) {
	n := &p.nodes[idx]
	if n.reason != reasonNone {
		return
	}
	n.reason = reason
	p.forced[reason]++
}

// discover returns the index of a, recording its state word on first sight.
func (p *prober) discover(a *allocation) int32 {
	if idx, ok := p.index[a]; ok {
		return idx
	}
	idx := int32(len(p.nodes))
	p.index[a] = idx
	a.pin()
	p.nodes = append(p.nodes, probeNode{a: a, recorded: a.state.Load()})

	n := &p.nodes[idx]
	switch {
	case a.c != p.c:
		// Allocations of other collectors are never expanded or swept.
		n.expanded = true
		p.force(idx, reasonForeign)
		if p.c.foreignWarned.CompareAndSwap(false, true) {
			p.c.logger.Warn("allocation %d of collector %d is referenced from this collector; cycles across collectors are never reclaimed",
				a.id, a.c.id)
		}
	case isDead(n.recorded):
		n.expanded = true
		p.force(idx, reasonDead)
	default:
		n.unaccounted = int64(strongOf(n.recorded))
		if _, busy := p.busy[a]; busy {
			n.expanded = true
			p.force(idx, reasonBusy)
		}
	}
	if !n.expanded {
		p.work.Push(idx)
	}
	return idx
}

// count is the first phase: a depth-first walk over everything reachable
// from the candidates that subtracts each internal edge from its target.
func (p *prober) count(candidates []*allocation) {
	for _, a := range candidates {
		idx := p.discover(a)
		p.nodes[idx].candidate = true
	}

	v := countVisitor{p: p}
	for {
		idx, ok := p.work.Pop()
		if !ok {
			break
		}
		if p.nodes[idx].expanded {
			continue
		}
		p.nodes[idx].expanded = true
		p.cur = idx
		a := p.nodes[idx].a
		if err := a.body.accept(v); err != nil {
			p.force(idx, reasonBusy)
		}
	}
}

type countVisitor struct {
	p *prober
}

func (v countVisitor) Visit(e Edge) {
	core := coreOf(e)
	if core == nil {
		return
	}
	p := v.p
	p.edges++
	t := p.discover(core.alloc)
	p.nodes[p.cur].children = append(p.nodes[p.cur].children, t)

	switch {
	case core.dropped.Load():
		p.force(t, reasonDropped)
	case !core.tagged.CompareAndSwap(true, false):
		p.force(t, reasonTag)
	case core.alloc.state.Load() != p.nodes[t].recorded:
		p.force(t, reasonGeneration)
	default:
		p.nodes[t].unaccounted--
		if p.nodes[t].unaccounted < 0 {
			p.force(t, reasonGeneration)
		}
	}
}

func (countVisitor) Exclusive() bool { return false }

// mark is the second phase: every node with references from outside the
// region, or forced accessible, marks everything it reaches.
func (p *prober) mark() *collections.Bitset {
	marked := collections.NewBitset(len(p.nodes))
	queue := collections.NewQueue[int32](len(p.nodes))
	for i := range p.nodes {
		if p.nodes[i].accessible() {
			marked.Set(i)
			queue.Enqueue(int32(i))
		}
	}
	for {
		idx, ok := queue.Dequeue()
		if !ok {
			break
		}
		for _, child := range p.nodes[idx].children {
			if !marked.TestAndSet(int(child)) {
				queue.Enqueue(child)
			}
		}
	}
	return marked
}

// garbageGroups splits the unmarked nodes into weakly connected components.
// No edge joins two components, so each can be condemned or spared alone.
func (p *prober) garbageGroups(marked *collections.Bitset) [][]int32 {
	parent := make([]int32, len(p.nodes))
	for i := range parent {
		parent[i] = int32(i)
	}
	find := func(x int32) int32 {
		for parent[x] != x {
			parent[x] = parent[parent[x]]
			x = parent[x]
		}
		return x
	}

	for i := range p.nodes {
		if marked.Test(i) {
			continue
		}
		for _, child := range p.nodes[i].children {
			if marked.Test(int(child)) {
				continue
			}
			if ra, rb := find(int32(i)), find(child); ra != rb {
				parent[ra] = rb
			}
		}
	}

	slot := make(map[int32]int)
	var groups [][]int32
	for i := range p.nodes {
		if marked.Test(i) {
			continue
		}
		root := find(int32(i))
		g, ok := slot[root]
		if !ok {
			g = len(groups)
			slot[root] = g
			groups = append(groups, nil)
		}
		groups[g] = append(groups[g], int32(i))
	}
	return groups
}

// close resets the tags set by this pass and releases every pin taken by
// discover.
func (p *prober) close() {
	for _, core := range p.tagged {
		core.tagged.Store(false)
	}
	for i := range p.nodes {
		p.nodes[i].a.unpin()
	}
	p.c.indexPool.Put(p.index)
	p.index = nil
	p.nodes = nil
	p.tagged = nil
}
