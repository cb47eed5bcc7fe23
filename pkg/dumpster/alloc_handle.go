package dumpster

import (
	"sync/atomic"

	"github.com/dumpster/pkg/errors"
)

// edge is the untyped part of a handle shared by every Handle[T].
type edge struct {
	alloc *allocation

	// dropped is set exactly once, by Drop or by the sweeper when the owning
	// payload is collected.
	dropped atomic.Bool

	// tagged is set by the pre-pass of a collection and cleared by the count
	// phase the first time the handle is counted.
	tagged atomic.Bool
}

// Handle is a counted reference to a value of type T. Every Handle must be
// dropped exactly once; Drop is idempotent so repeated calls are harmless.
// The payload is destroyed as soon as the last Handle is dropped, or by a
// collection pass when it is only reachable from itself.
type Handle[T Traceable] struct {
	edge
	box *box[T]
}

// New allocates value under the default collector.
func New[T Traceable](value T) *Handle[T] {
	return NewIn(Default(), value)
}

// NewIn allocates value under collector c.
//
// Handles may point across collectors, but only the owning collector
// probes an allocation: edges into another collector count as references
// from outside. A cycle whose members live in different collectors is
// therefore never reclaimed and must be broken by hand.
func NewIn[T Traceable](c *Collector, value T) *Handle[T] {
	b := newBox(c, value)
	h := &Handle[T]{box: b}
	h.alloc = &b.allocation
	return h
}

func (h *Handle[T]) edgeCore() *edge {
	if h == nil {
		return nil
	}
	return &h.edge
}

// Clone returns a new Handle to the same allocation.
func (h *Handle[T]) Clone() *Handle[T] {
	h.mustBeLive("clone")
	if !h.alloc.tryIncStrong() {
		panic(errors.Newf(errors.CodeUseAfterDrop, "clone of destroyed allocation %d", h.alloc.id))
	}
	c := &Handle[T]{box: h.box}
	c.alloc = h.alloc
	return c
}

// Deref returns a pointer to the payload. The pointer is valid for as long
// as h has not been dropped. Accessing an allocation removes it from the
// candidate set, since it was evidently reachable.
func (h *Handle[T]) Deref() *T {
	h.mustBeLive("deref")
	h.alloc.c.touch(h.alloc)
	return &h.box.value
}

// Drop releases the reference. The first call on a handle decrements the
// strong count; later calls do nothing.
func (h *Handle[T]) Drop() {
	if h == nil || !h.dropped.CompareAndSwap(false, true) {
		return
	}
	if h.alloc.releaseOne() {
		destroyFrom(h.alloc)
	}
}

// Dropped reports whether h has been dropped, either explicitly or because
// the payload that owned it was collected.
func (h *Handle[T]) Dropped() bool {
	return h.dropped.Load()
}

// StrongCount returns the number of live handles to the allocation. It is
// zero once the payload is being destroyed.
func (h *Handle[T]) StrongCount() int {
	w := h.alloc.loadSettled()
	if isDead(w) {
		return 0
	}
	return int(strongOf(w))
}

// WeakCount returns the number of weak references to the allocation,
// including the ones the collector holds while it is a candidate.
func (h *Handle[T]) WeakCount() int {
	return int(h.alloc.weak.Load())
}

// ID returns the allocation identifier, unique within its collector.
func (h *Handle[T]) ID() uint64 {
	return h.alloc.id
}

// Collector returns the collector that owns the allocation.
func (h *Handle[T]) Collector() *Collector {
	return h.alloc.c
}

// SameAllocation reports whether a and b refer to the same allocation.
func SameAllocation(a, b Edge) bool {
	ca, cb := coreOf(a), coreOf(b)
	return ca != nil && cb != nil && ca.alloc == cb.alloc
}

func (h *Handle[T]) mustBeLive(op string) {
	if h == nil {
		panic(errors.Newf(errors.CodeUseAfterDrop, "%s of nil handle", op))
	}
	if h.dropped.Load() {
		panic(errors.Newf(errors.CodeUseAfterDrop, "%s of dropped handle to allocation %d", op, h.alloc.id))
	}
}

// dropVisitor releases every edge of a payload being destroyed and queues
// the targets whose count reached zero, so that long chains are destroyed
// iteratively.
type dropVisitor struct {
	work interface{ Push(*allocation) }
}

func (v dropVisitor) Visit(e Edge) {
	core := coreOf(e)
	if core == nil || !core.dropped.CompareAndSwap(false, true) {
		return
	}
	if core.alloc.releaseOne() {
		v.work.Push(core.alloc)
	}
}

func (dropVisitor) Exclusive() bool { return true }
