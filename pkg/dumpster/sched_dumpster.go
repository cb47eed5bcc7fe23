package dumpster

import (
	"sync"

	"golang.org/x/sys/cpu"
)

// dumpsterShard is one of the collector's candidate sets. Goroutines share
// shards by allocation id instead of owning one each, so drops on unrelated
// allocations rarely contend.
type dumpsterShard struct {
	_     cpu.CacheLinePad
	mu    sync.Mutex
	items map[*allocation]struct{}
}

func (c *Collector) shardFor(a *allocation) *dumpsterShard {
	return &c.shards[a.id&c.shardMask]
}

// enqueue registers a as a dirty candidate. The caller's pin is handed over
// to the shard, or released if a is already queued.
func (c *Collector) enqueue(a *allocation) {
	s := c.shardFor(a)

	s.mu.Lock()
	if !a.queue.CompareAndSwap(queueNone, queueDumpster) {
		s.mu.Unlock()
		a.unpin()
		return
	}
	s.items[a] = struct{}{}
	var batch []*allocation
	if len(s.items) >= c.opts.DumpsterCapacity {
		batch = s.takeLocked(nil)
	}
	s.mu.Unlock()

	if batch != nil {
		c.truck.load(batch)
		c.maybeCollect()
	}
}

// touch drops a from its shard: a live handle just reached it, so it cannot
// be garbage right now.
func (c *Collector) touch(a *allocation) {
	if a.queue.Load() != queueDumpster {
		return
	}
	s := c.shardFor(a)
	s.mu.Lock()
	removed := a.queue.CompareAndSwap(queueDumpster, queueNone)
	if removed {
		delete(s.items, a)
	}
	s.mu.Unlock()
	if removed {
		a.unpin()
	}
}

// takeLocked empties the shard into dst. The entries are marked as bound for
// the truck before the lock is released, so touch leaves their pins alone.
func (s *dumpsterShard) takeLocked(dst []*allocation) []*allocation {
	if dst == nil {
		dst = make([]*allocation, 0, len(s.items))
	}
	for a := range s.items {
		a.queue.Store(queueTruck)
		dst = append(dst, a)
	}
	clear(s.items)
	return dst
}

func (s *dumpsterShard) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}
