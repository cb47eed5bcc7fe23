package collections

import "sync"

// ============================================================================
// MapPool - reusable scratch maps
// ============================================================================

// MapPool recycles maps between traversals so that a collection pass does
// not allocate a fresh index map every time.
type MapPool[K comparable, V any] struct {
	pool sync.Pool
}

// NewMapPool creates a pool whose fresh maps are sized for initialCap keys.
func NewMapPool[K comparable, V any](initialCap int) *MapPool[K, V] {
	if initialCap <= 0 {
		initialCap = 256
	}
	return &MapPool[K, V]{
		pool: sync.Pool{
			New: func() interface{} {
				return make(map[K]V, initialCap)
			},
		},
	}
}

// Get returns an empty map.
func (p *MapPool[K, V]) Get() map[K]V {
	return p.pool.Get().(map[K]V)
}

// Put clears m and returns it to the pool.
func (p *MapPool[K, V]) Put(m map[K]V) {
	if m == nil {
		return
	}
	clear(m)
	p.pool.Put(m)
}

// ============================================================================
// Stack - LIFO work list
// ============================================================================

// Stack is a generic LIFO stack.
type Stack[T any] struct {
	data []T
}

// NewStack creates a new stack with the given capacity.
func NewStack[T any](capacity int) *Stack[T] {
	return &Stack[T]{
		data: make([]T, 0, capacity),
	}
}

// Push pushes a value onto the stack.
func (s *Stack[T]) Push(v T) {
	s.data = append(s.data, v)
}

// Pop pops a value from the stack.
func (s *Stack[T]) Pop() (T, bool) {
	var zero T
	if len(s.data) == 0 {
		return zero, false
	}
	v := s.data[len(s.data)-1]
	s.data[len(s.data)-1] = zero
	s.data = s.data[:len(s.data)-1]
	return v, true
}

// IsEmpty returns true if the stack is empty.
func (s *Stack[T]) IsEmpty() bool {
	return len(s.data) == 0
}

// Len returns the number of items in the stack.
func (s *Stack[T]) Len() int {
	return len(s.data)
}

// ============================================================================
// Queue - FIFO work list
// ============================================================================

// Queue is a generic FIFO queue that compacts its backing slice once more
// than half of it has been consumed.
type Queue[T any] struct {
	data []T
	head int
}

// NewQueue creates a new queue with the given capacity.
func NewQueue[T any](capacity int) *Queue[T] {
	return &Queue[T]{
		data: make([]T, 0, capacity),
	}
}

// Enqueue adds a value to the queue.
func (q *Queue[T]) Enqueue(v T) {
	q.data = append(q.data, v)
}

// Dequeue removes and returns the first value from the queue.
func (q *Queue[T]) Dequeue() (T, bool) {
	var zero T
	if q.head >= len(q.data) {
		return zero, false
	}
	v := q.data[q.head]
	q.data[q.head] = zero
	q.head++
	if q.head > len(q.data)/2 && q.head > 1024 {
		n := copy(q.data, q.data[q.head:])
		q.data = q.data[:n]
		q.head = 0
	}
	return v, true
}

// IsEmpty returns true if the queue is empty.
func (q *Queue[T]) IsEmpty() bool {
	return q.head >= len(q.data)
}

// Len returns the number of items in the queue.
func (q *Queue[T]) Len() int {
	return len(q.data) - q.head
}
