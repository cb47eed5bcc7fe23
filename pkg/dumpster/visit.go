package dumpster

// Traceable is implemented by every payload stored behind a Handle. Accept
// must report each Handle the value directly owns by calling v.Visit on it.
//
// Accept may be called concurrently with mutators. A payload shared between
// goroutines must keep its handles behind a Slot, Mutex or RWMutex so that
// enumeration never races with re-wiring. Returning an error aborts the
// enumeration and makes the collector treat the allocation as reachable.
type Traceable interface {
	Accept(v Visitor) error
}

// Finalizer is an optional hook run once, after the payload's handles have
// been released and before the allocation is forgotten.
type Finalizer interface {
	Finalize()
}

// Visitor receives the handles of a payload.
type Visitor interface {
	// Visit is called once for every owned handle. Nil handles are ignored.
	Visit(e Edge)

	// Exclusive reports whether the enumeration happens during destruction,
	// when no other goroutine can reach the payload. Lock wrappers may block
	// in that case instead of failing fast.
	Exclusive() bool
}

// Edge is a handle as seen by a Visitor. Only *Handle values implement it.
type Edge interface {
	edgeCore() *edge
}

// Leaf is embeddable by payloads that own no handles.
type Leaf struct{}

// Accept implements Traceable.
func (Leaf) Accept(Visitor) error { return nil }

// VisitAll reports every handle in edges.
func VisitAll[E Edge](v Visitor, edges []E) {
	for _, e := range edges {
		v.Visit(e)
	}
}

// AcceptAll forwards v to every element of items, stopping at the first error.
func AcceptAll[T Traceable](v Visitor, items []T) error {
	for _, item := range items {
		if err := item.Accept(v); err != nil {
			return err
		}
	}
	return nil
}

// coreOf unwraps an edge, returning nil for nil interfaces and nil handles.
func coreOf(e Edge) *edge {
	if e == nil {
		return nil
	}
	core := e.edgeCore()
	if core == nil || core.alloc == nil {
		return nil
	}
	return core
}
