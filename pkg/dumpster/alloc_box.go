package dumpster

import (
	"runtime"
	"sync/atomic"

	"github.com/dumpster/pkg/errors"
)

// The strong count and the generation share one 64-bit word so that every
// count change bumps the generation in the same atomic step.
const (
	strongMask = uint64(0xFFFF_FFFF)
	genShift   = 32
	genOne     = uint64(1) << genShift

	// strongDead marks an allocation whose payload is being, or has been,
	// destroyed. Decrements observing it are no-ops.
	strongDead = uint32(0xFFFF_FFFF)

	// strongLocked marks an allocation a collection pass is condemning. It
	// lasts until the pass either kills or restores the whole group, and
	// mutators wait it out.
	strongLocked = uint32(0xFFFF_FFFE)
)

func strongOf(w uint64) uint32 { return uint32(w & strongMask) }

func genOf(w uint64) uint32 { return uint32(w >> genShift) }

func isDead(w uint64) bool {
	s := strongOf(w)
	return s == 0 || s == strongDead
}

// deadWord returns w with the strong half set to strongDead and the
// generation bumped.
func deadWord(w uint64) uint64 {
	return uint64(genOf(w)+1)<<genShift | uint64(strongDead)
}

// Queue states of an allocation. A state other than queueNone means the
// allocation holds one weak pin on behalf of a dumpster shard or the truck.
const (
	queueNone int32 = iota
	queueDumpster
	queueTruck
)

// payload is the per-type capability table of an allocation: it lets the
// untyped collector enumerate edges and run the finalizer of a boxed value.
type payload interface {
	accept(v Visitor) error
	finalize()
}

// allocation is the type-erased header every box embeds. Its address is the
// allocation's identity.
type allocation struct {
	id        uint64
	c         *Collector
	body      payload
	state     atomic.Uint64 // strong | generation<<32
	weak      atomic.Int64
	queue     atomic.Int32
	destroyed atomic.Bool
	released  atomic.Bool
}

// box is the typed allocation holding the payload.
type box[T Traceable] struct {
	allocation
	value T
}

func (b *box[T]) accept(v Visitor) error {
	return b.value.Accept(v)
}

func (b *box[T]) finalize() {
	if f, ok := any(&b.value).(Finalizer); ok {
		f.Finalize()
	}
}

func newBox[T Traceable](c *Collector, value T) *box[T] {
	b := &box[T]{value: value}
	b.id = c.nextID.Add(1)
	b.c = c
	b.body = b
	b.state.Store(1)
	c.stats.created.Add(1)
	return b
}

// loadSettled returns the state word once no pass is condemning the
// allocation.
func (a *allocation) loadSettled() uint64 {
	for {
		w := a.state.Load()
		if strongOf(w) != strongLocked {
			return w
		}
		runtime.Gosched()
	}
}

// tryIncStrong adds one strong reference unless the allocation is already
// dead. It is the primitive behind Clone and Weak.Upgrade.
func (a *allocation) tryIncStrong() bool {
	for {
		w := a.loadSettled()
		s := strongOf(w)
		if s == 0 || s == strongDead {
			return false
		}
		if s == strongLocked-1 {
			a.c.invariant("strong count overflow on allocation %d", a.id)
		}
		if a.state.CompareAndSwap(w, w+1+genOne) {
			return true
		}
	}
}

// decStrong removes one strong reference. ok is false when the allocation
// was already dead. A count reaching zero is stored as strongDead.
func (a *allocation) decStrong() (remaining uint32, ok bool) {
	for {
		w := a.loadSettled()
		s := strongOf(w)
		if s == 0 || s == strongDead {
			return 0, false
		}
		next := w - 1 + genOne
		if s == 1 {
			next = deadWord(w)
		}
		if a.state.CompareAndSwap(w, next) {
			return s - 1, true
		}
	}
}

// lock moves the allocation from exactly the recorded word to the locked
// state. It fails if any clone, drop or upgrade happened since recording.
func (a *allocation) lock(recorded uint64) bool {
	return a.state.CompareAndSwap(recorded, uint64(genOf(recorded))<<genShift|uint64(strongLocked))
}

// unlock restores a locked allocation to its recorded count. Mutators never
// write a locked word, so plain stores are safe here and in kill.
func (a *allocation) unlock(recorded uint64) {
	a.state.Store(recorded + genOne)
}

// kill turns a locked allocation dead.
func (a *allocation) kill(recorded uint64) {
	a.state.Store(deadWord(recorded))
}

// pin takes a weak reference on behalf of the collector or a Weak handle.
func (a *allocation) pin() {
	a.weak.Add(1)
}

// unpin drops a weak reference and releases the header once nothing refers
// to it.
func (a *allocation) unpin() {
	n := a.weak.Add(-1)
	if n < 0 {
		a.c.invariant("weak count of allocation %d dropped below zero", a.id)
	}
	if n == 0 && isDead(a.state.Load()) {
		a.release()
	}
}

func (a *allocation) release() {
	if a.released.CompareAndSwap(false, true) {
		a.c.stats.released.Add(1)
	}
}

// releaseOne gives up one strong reference. It returns true when the caller
// became responsible for destroying the payload; the header is then pinned
// and the caller must unpin it once the payload is gone.
func (a *allocation) releaseOne() bool {
	a.pin()
	remaining, ok := a.decStrong()
	switch {
	case !ok:
		a.unpin()
		return false
	case remaining > 0:
		a.c.sincePass.Add(1)
		a.c.enqueue(a)
		return false
	default:
		return true
	}
}

// destroyPayload releases every outgoing edge through v and runs the
// finalizer. The strong count must already be strongDead.
func (a *allocation) destroyPayload(v Visitor) {
	if err := a.body.accept(v); err != nil {
		a.c.logger.Warn("allocation %d failed to enumerate handles during destruction: %v", a.id, err)
	}
	a.finish()
}

// finish runs the finalizer of a payload whose edges are already released.
func (a *allocation) finish() {
	a.body.finalize()
	if a.destroyed.CompareAndSwap(false, true) {
		a.c.stats.destroyed.Add(1)
	} else {
		a.c.invariant("payload of allocation %d destroyed twice", a.id)
	}
}

// invariant logs and panics on a detected collector defect.
func (c *Collector) invariant(format string, args ...interface{}) {
	err := errors.Newf(errors.CodeInvariant, format, args...)
	c.logger.Error("%v", err)
	panic(err)
}
