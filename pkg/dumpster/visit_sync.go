package dumpster

import (
	"sync"
	"sync/atomic"

	"github.com/dumpster/pkg/errors"
)

// Slot is a single handle field that can be re-wired while collection passes
// enumerate it. A nil slot is empty.
type Slot[T Traceable] struct {
	p atomic.Pointer[Handle[T]]
}

// NewSlot returns a slot owning h.
func NewSlot[T Traceable](h *Handle[T]) *Slot[T] {
	s := &Slot[T]{}
	s.p.Store(h)
	return s
}

// Load borrows the current handle. The result stays valid only while the
// slot still owns it; Clone it to keep it.
func (s *Slot[T]) Load() *Handle[T] {
	return s.p.Load()
}

// Swap stores h and hands the previous handle to the caller, who must drop it.
func (s *Slot[T]) Swap(h *Handle[T]) *Handle[T] {
	return s.p.Swap(h)
}

// Set stores h and drops the previous handle.
func (s *Slot[T]) Set(h *Handle[T]) {
	if old := s.p.Swap(h); old != nil {
		old.Drop()
	}
}

// Take empties the slot and hands its handle to the caller.
func (s *Slot[T]) Take() *Handle[T] {
	return s.p.Swap(nil)
}

// Accept implements Traceable.
func (s *Slot[T]) Accept(v Visitor) error {
	if h := s.p.Load(); h != nil {
		v.Visit(h)
	}
	return nil
}

// Mutex guards a payload section that holds handles. Collection passes only
// try the lock; if it is held they treat the owning allocation as reachable,
// since whoever holds the lock reached it through a live handle.
type Mutex[T Traceable] struct {
	mu    sync.Mutex
	value T
}

// NewMutex wraps value.
func NewMutex[T Traceable](value T) *Mutex[T] {
	return &Mutex[T]{value: value}
}

// Lock acquires the mutex and returns the guarded value.
func (m *Mutex[T]) Lock() *T {
	m.mu.Lock()
	return &m.value
}

// TryLock acquires the mutex if it is free.
func (m *Mutex[T]) TryLock() (*T, bool) {
	if !m.mu.TryLock() {
		return nil, false
	}
	return &m.value, true
}

// Unlock releases the mutex.
func (m *Mutex[T]) Unlock() {
	m.mu.Unlock()
}

// With runs fn while holding the mutex.
func (m *Mutex[T]) With(fn func(*T)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fn(&m.value)
}

// Accept implements Traceable. It fails with errors.ErrVisitBusy when the
// lock is held, except during destruction.
func (m *Mutex[T]) Accept(v Visitor) error {
	if v.Exclusive() {
		m.mu.Lock()
	} else if !m.mu.TryLock() {
		return errors.ErrVisitBusy
	}
	defer m.mu.Unlock()
	return m.value.Accept(v)
}

// RWMutex is the reader/writer variant of Mutex. Passes take the read lock,
// so concurrent readers do not make the allocation look busy.
type RWMutex[T Traceable] struct {
	mu    sync.RWMutex
	value T
}

// NewRWMutex wraps value.
func NewRWMutex[T Traceable](value T) *RWMutex[T] {
	return &RWMutex[T]{value: value}
}

// Lock acquires the write lock and returns the guarded value.
func (m *RWMutex[T]) Lock() *T {
	m.mu.Lock()
	return &m.value
}

// Unlock releases the write lock.
func (m *RWMutex[T]) Unlock() {
	m.mu.Unlock()
}

// RLock acquires the read lock and returns the guarded value.
func (m *RWMutex[T]) RLock() *T {
	m.mu.RLock()
	return &m.value
}

// RUnlock releases the read lock.
func (m *RWMutex[T]) RUnlock() {
	m.mu.RUnlock()
}

// With runs fn while holding the write lock.
func (m *RWMutex[T]) With(fn func(*T)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fn(&m.value)
}

// Accept implements Traceable.
func (m *RWMutex[T]) Accept(v Visitor) error {
	if v.Exclusive() {
		m.mu.RLock()
	} else if !m.mu.TryRLock() {
		return errors.ErrVisitBusy
	}
	defer m.mu.RUnlock()
	return m.value.Accept(v)
}
