package dumpster

import "sync"

// garbageTruck accumulates the candidates flushed out of full shards until a
// pass takes them. Its lock is held only while entries move in or out.
type garbageTruck struct {
	mu    sync.Mutex
	items []*allocation
}

func (t *garbageTruck) load(batch []*allocation) {
	t.mu.Lock()
	t.items = append(t.items, batch...)
	t.mu.Unlock()
}

// unload hands every entry, and the pin it carries, to the caller.
func (t *garbageTruck) unload() []*allocation {
	t.mu.Lock()
	items := t.items
	t.items = nil
	t.mu.Unlock()
	return items
}

func (t *garbageTruck) len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.items)
}

// gather drains every shard and the truck. On return the candidates are no
// longer queued, so drops during the pass queue them again, but each still
// carries one pin that the pass must release.
func (c *Collector) gather() []*allocation {
	var batch []*allocation
	for i := range c.shards {
		s := &c.shards[i]
		s.mu.Lock()
		if len(s.items) > 0 {
			batch = s.takeLocked(batch)
		}
		s.mu.Unlock()
	}
	c.truck.load(batch)
	candidates := c.truck.unload()
	for _, a := range candidates {
		a.queue.Store(queueNone)
	}
	c.sincePass.Store(0)
	return candidates
}
