package stress

import (
	"sync/atomic"

	"github.com/dumpster/pkg/dumpster"
)

// edgeSet is the mutable out-edge list of a node.
type edgeSet struct {
	out []*dumpster.Handle[node]
}

func (e edgeSet) Accept(v dumpster.Visitor) error {
	dumpster.VisitAll(v, e.out)
	return nil
}

// guard hides whether a node keeps its edges behind a Mutex or an RWMutex.
type guard interface {
	dumpster.Traceable
	update(fn func(*edgeSet))
	read(fn func(*edgeSet))
}

type mutexGuard struct {
	*dumpster.Mutex[edgeSet]
}

func (g mutexGuard) update(fn func(*edgeSet)) { g.With(fn) }
func (g mutexGuard) read(fn func(*edgeSet))   { g.With(fn) }

type rwGuard struct {
	*dumpster.RWMutex[edgeSet]
}

func (g rwGuard) update(fn func(*edgeSet)) { g.With(fn) }

func (g rwGuard) read(fn func(*edgeSet)) {
	s := g.RLock()
	defer g.RUnlock()
	fn(s)
}

// tracker counts node lifecycles across a run.
type tracker struct {
	created   atomic.Int64
	finalized atomic.Int64
	doubles   atomic.Int64
}

// life is shared by every copy of a node value.
type life struct {
	finalized atomic.Int32
	visits    atomic.Int32
	// onCount runs after the second read-only traversal of the node, which
	// is the count phase of the first pass that reaches it.
	onCount func()
}

type node struct {
	id    uint64
	edges guard
	life  *life
	t     *tracker
}

func newNode(c *dumpster.Collector, t *tracker, id uint64, rw bool) *dumpster.Handle[node] {
	n := node{id: id, life: &life{}, t: t}
	if rw {
		n.edges = rwGuard{dumpster.NewRWMutex(edgeSet{})}
	} else {
		n.edges = mutexGuard{dumpster.NewMutex(edgeSet{})}
	}
	t.created.Add(1)
	return dumpster.NewIn(c, n)
}

func (n node) Accept(v dumpster.Visitor) error {
	if err := n.edges.Accept(v); err != nil {
		return err
	}
	if !v.Exclusive() && n.life.visits.Add(1) == 2 && n.life.onCount != nil {
		n.life.onCount()
	}
	return nil
}

func (n *node) Finalize() {
	if n.life.finalized.Add(1) > 1 {
		n.t.doubles.Add(1)
	}
	n.t.finalized.Add(1)
}

func (n *node) dead() bool {
	return n.life.finalized.Load() > 0
}

// link adds an edge to target, replacing a random one once fanout is
// reached. It takes ownership of target.
func (n *node) link(target *dumpster.Handle[node], fanout, pick int) {
	var old *dumpster.Handle[node]
	n.edges.update(func(s *edgeSet) {
		if len(s.out) < fanout {
			s.out = append(s.out, target)
			return
		}
		k := pick % len(s.out)
		old, s.out[k] = s.out[k], target
	})
	old.Drop()
}

// unlink removes one edge and returns it, or nil when there is none.
func (n *node) unlink(pick int) *dumpster.Handle[node] {
	var old *dumpster.Handle[node]
	n.edges.update(func(s *edgeSet) {
		if len(s.out) == 0 {
			return
		}
		k := pick % len(s.out)
		old = s.out[k]
		s.out = append(s.out[:k], s.out[k+1:]...)
	})
	return old
}

// follow clones one out-edge, or returns nil when there is none.
func (n *node) follow(pick int) *dumpster.Handle[node] {
	var next *dumpster.Handle[node]
	n.edges.read(func(s *edgeSet) {
		if len(s.out) > 0 {
			next = s.out[pick%len(s.out)].Clone()
		}
	})
	return next
}

// targets returns the current out-edges without cloning them. The caller
// must keep n alive and must not drop the returned handles.
func (n *node) targets() []*dumpster.Handle[node] {
	var out []*dumpster.Handle[node]
	n.edges.read(func(s *edgeSet) {
		out = append(out, s.out...)
	})
	return out
}
