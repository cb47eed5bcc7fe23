package dumpster

import (
	"github.com/dumpster/pkg/collections"
)

// forceReason records why a node was treated as accessible regardless of its
// unaccounted count.
type forceReason uint8

const (
	reasonNone forceReason = iota
	// reasonDead: the payload was already destroyed when discovered.
	reasonDead
	// reasonForeign: the allocation belongs to another collector.
	reasonForeign
	// reasonBusy: Accept failed, usually because a payload lock was held.
	reasonBusy
	// reasonTag: an edge was counted without having been tagged, so it was
	// moved into the region after the pre-pass or already counted.
	reasonTag
	// reasonDropped: an edge was dropped while still visible to the pass.
	reasonDropped
	// reasonGeneration: the strong count changed after it was recorded.
	reasonGeneration
	numReasons
)

var reasonNames = [numReasons]string{
	reasonNone:       "none",
	reasonDead:       "dead",
	reasonForeign:    "foreign",
	reasonBusy:       "busy",
	reasonTag:        "untagged",
	reasonDropped:    "dropped",
	reasonGeneration: "generation",
}

func (r forceReason) String() string {
	if r >= numReasons {
		return "unknown"
	}
	return reasonNames[r]
}

// tag is the pre-pass: it sets the tag of every handle reachable from the
// candidates. The count phase clears each tag as it counts the handle, so a
// handle found untagged was either relocated after this walk or already
// counted through another path.
func (p *prober) tag(candidates []*allocation) {
	seen := p.c.seenPool.Get()
	defer p.c.seenPool.Put(seen)

	stack := collections.NewStack[*allocation](len(candidates))
	for _, a := range candidates {
		if _, ok := seen[a]; !ok {
			seen[a] = struct{}{}
			stack.Push(a)
		}
	}

	v := tagVisitor{p: p, seen: seen, stack: stack}
	for {
		a, ok := stack.Pop()
		if !ok {
			break
		}
		if a.c != p.c || isDead(a.state.Load()) {
			continue
		}
		if err := a.body.accept(v); err != nil {
			if p.busy == nil {
				p.busy = make(map[*allocation]struct{})
			}
			p.busy[a] = struct{}{}
		}
	}
}

type tagVisitor struct {
	p     *prober
	seen  map[*allocation]struct{}
	stack *collections.Stack[*allocation]
}

func (v tagVisitor) Visit(e Edge) {
	core := coreOf(e)
	if core == nil || core.dropped.Load() {
		return
	}
	if core.tagged.CompareAndSwap(false, true) {
		v.p.tagged = append(v.p.tagged, core)
	}
	if _, ok := v.seen[core.alloc]; !ok {
		v.seen[core.alloc] = struct{}{}
		v.stack.Push(core.alloc)
	}
}

func (tagVisitor) Exclusive() bool { return false }

// condemn validates a garbage group against the words recorded during the
// count phase and, if none moved, makes the whole group dead. A group with
// any changed member is left untouched.
//
// Members are locked first and killed only once all of them validated, so a
// goroutine that resurrected one member through a weak reference waits
// instead of reaching a half-condemned neighbour.
func (p *prober) condemn(group []int32) bool {
	for i, idx := range group {
		n := &p.nodes[idx]
		if n.a.lock(n.recorded) {
			continue
		}
		for _, prev := range group[:i] {
			pn := &p.nodes[prev]
			pn.a.unlock(pn.recorded)
		}
		return false
	}
	for _, idx := range group {
		n := &p.nodes[idx]
		n.a.kill(n.recorded)
	}
	return true
}
