package dumpster

import "context"

// TriggerState is what a TriggerPolicy sees after a shard flush.
type TriggerState struct {
	// Pending is the number of candidates waiting in the truck.
	Pending int
	// Live is the number of allocations whose payload is not destroyed.
	Live int64
	// DropsSinceLastPass counts drops that left a non-zero strong count.
	DropsSinceLastPass int64
}

// TriggerPolicy decides when a flush should start an automatic pass.
type TriggerPolicy interface {
	ShouldCollect(s TriggerState) bool
}

// AdaptivePolicy collects once enough candidates are waiting and the drops
// since the last pass are proportional to the live set. Tying passes to
// drops keeps the collection work per drop bounded by a constant.
type AdaptivePolicy struct {
	MinPending int
	LiveRatio  float64
}

// ShouldCollect implements TriggerPolicy.
func (p AdaptivePolicy) ShouldCollect(s TriggerState) bool {
	if s.Pending < p.MinPending {
		return false
	}
	return float64(s.DropsSinceLastPass) >= p.LiveRatio*float64(s.Live)
}

type manualPolicy struct{}

func (manualPolicy) ShouldCollect(TriggerState) bool { return false }

// Manual never triggers; passes only run through Collect.
var Manual TriggerPolicy = manualPolicy{}

// TriggerFunc adapts a function to TriggerPolicy.
type TriggerFunc func(TriggerState) bool

// ShouldCollect implements TriggerPolicy.
func (f TriggerFunc) ShouldCollect(s TriggerState) bool { return f(s) }

func (c *Collector) triggerState() TriggerState {
	return TriggerState{
		Pending:            c.truck.len(),
		Live:               c.live(),
		DropsSinceLastPass: c.sincePass.Load(),
	}
}

// maybeCollect runs a pass on the calling goroutine if the policy asks for
// one and no other pass is running. Drops never wait for the collector.
func (c *Collector) maybeCollect() {
	if !c.policy.ShouldCollect(c.triggerState()) {
		return
	}
	if !c.passMu.TryLock() {
		return
	}
	defer c.passMu.Unlock()
	c.runPass(context.Background(), c.gather())
}
