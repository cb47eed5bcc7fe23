// Package dumpster provides reference-counted handles with deterministic
// release that also reclaim unreachable cycles.
//
// A Handle frees its payload as soon as the last Handle to it is dropped.
// A drop that leaves the count above zero instead records the allocation as
// a candidate in a sharded dumpster. Full shards move to a shared garbage
// truck, and when the trigger policy fires a pass probes every candidate:
//
//   - tag: mark every handle reachable from the candidates;
//   - count: walk the same subgraph, subtracting each internal edge from its
//     target's recorded strong count;
//   - mark: everything with references left over, and everything reachable
//     from it, is accessible;
//   - sweep: the rest is validated against the recorded counts and freed in
//     bulk.
//
// Passes run concurrently with mutators. Any change to a strong count bumps
// the allocation's generation, handles moved after tagging are caught by the
// tag bit, and payload locks are only ever tried, so a pass never blocks on
// user code and never frees something a goroutine can still reach.
//
// Payloads reachable from more than one goroutine must keep their handles in
// a Slot, Mutex or RWMutex, because a pass on any goroutine may enumerate
// them at any time.
package dumpster
