package dumpster

import (
	"sync/atomic"

	"github.com/dumpster/pkg/errors"
)

// Weak is a non-owning reference. It keeps the allocation header alive but
// not the payload, and never counts as an edge for collection.
type Weak[T Traceable] struct {
	box     *box[T]
	dropped atomic.Bool
}

// Downgrade creates a weak reference to the allocation behind h.
func Downgrade[T Traceable](h *Handle[T]) *Weak[T] {
	h.mustBeLive("downgrade")
	h.alloc.pin()
	return &Weak[T]{box: h.box}
}

// Upgrade returns a new Handle if the payload is still alive, or nil once it
// has been destroyed or condemned by a collection pass.
func (w *Weak[T]) Upgrade() *Handle[T] {
	if w == nil || w.dropped.Load() {
		return nil
	}
	if !w.box.tryIncStrong() {
		return nil
	}
	h := &Handle[T]{box: w.box}
	h.alloc = &w.box.allocation
	return h
}

// Alive reports whether the payload has not been destroyed yet. The answer
// may be stale by the time the caller acts on it; use Upgrade to get a
// usable reference.
func (w *Weak[T]) Alive() bool {
	return w != nil && !isDead(w.box.state.Load())
}

// Drop releases the weak reference. Later calls do nothing.
func (w *Weak[T]) Drop() {
	if w == nil || !w.dropped.CompareAndSwap(false, true) {
		return
	}
	w.box.unpin()
}

// Clone returns another weak reference to the same allocation.
func (w *Weak[T]) Clone() *Weak[T] {
	if w.dropped.Load() {
		panic(errors.Newf(errors.CodeUseAfterDrop, "clone of dropped weak reference to allocation %d", w.box.id))
	}
	w.box.pin()
	return &Weak[T]{box: w.box}
}
