package testutil

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dumpster/pkg/dumpster"
	"github.com/dumpster/pkg/utils"
)

// Links is the lock-guarded edge list of a Node.
type Links struct {
	Out []*dumpster.Handle[Node]
}

// Accept implements dumpster.Traceable.
func (l Links) Accept(v dumpster.Visitor) error {
	dumpster.VisitAll(v, l.Out)
	return nil
}

// Node is a named test payload whose finalization is recorded in a Probe.
type Node struct {
	Name  string
	links *dumpster.Mutex[Links]
	probe *Probe
	dead  *atomic.Bool
}

// NewNode allocates a node under c.
func NewNode(c *dumpster.Collector, name string, probe *Probe) *dumpster.Handle[Node] {
	return dumpster.NewIn(c, Node{
		Name:  name,
		links: dumpster.NewMutex(Links{}),
		probe: probe,
		dead:  new(atomic.Bool),
	})
}

// Accept implements dumpster.Traceable.
func (n Node) Accept(v dumpster.Visitor) error {
	return n.links.Accept(v)
}

// Finalize implements dumpster.Finalizer.
func (n *Node) Finalize() {
	n.dead.Store(true)
	if n.probe != nil {
		n.probe.record(n.Name)
	}
}

// Dead reports whether the node has been finalized.
func (n *Node) Dead() bool {
	return n.dead.Load()
}

// Links returns the node's edge list lock.
func (n *Node) Links() *dumpster.Mutex[Links] {
	return n.links
}

// Probe counts finalizations per node name.
type Probe struct {
	mu        sync.Mutex
	finalized map[string]int
}

// NewProbe creates an empty probe.
func NewProbe() *Probe {
	return &Probe{finalized: make(map[string]int)}
}

func (p *Probe) record(name string) {
	p.mu.Lock()
	p.finalized[name]++
	p.mu.Unlock()
}

// Finalized returns how many times the node called name was finalized.
func (p *Probe) Finalized(name string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.finalized[name]
}

// Total returns the number of finalizations recorded.
func (p *Probe) Total() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, c := range p.finalized {
		n += c
	}
	return n
}

// Graph builds named node graphs on a manual collector. The graph holds one
// external handle per node until Release.
type Graph struct {
	t     *testing.T
	C     *dumpster.Collector
	Probe *Probe
	roots map[string]*dumpster.Handle[Node]
}

// NewGraph creates a graph whose collector only collects on demand. opts are
// applied after the defaults.
func NewGraph(t *testing.T, opts ...dumpster.Option) *Graph {
	t.Helper()
	base := []dumpster.Option{
		dumpster.WithPolicy(dumpster.Manual),
		dumpster.WithLogger(&utils.NullLogger{}),
	}
	return &Graph{
		t:     t,
		C:     dumpster.NewCollector(append(base, opts...)...),
		Probe: NewProbe(),
		roots: make(map[string]*dumpster.Handle[Node]),
	}
}

// Add creates the named nodes.
func (g *Graph) Add(names ...string) *Graph {
	for _, name := range names {
		g.roots[name] = NewNode(g.C, name, g.Probe)
	}
	return g
}

// Handle returns the graph's external handle to name.
func (g *Graph) Handle(name string) *dumpster.Handle[Node] {
	h, ok := g.roots[name]
	require.True(g.t, ok, "unknown node %s", name)
	return h
}

// Link adds an edge from -> to.
func (g *Graph) Link(from, to string) *Graph {
	target := g.Handle(to).Clone()
	g.Handle(from).Deref().Links().With(func(l *Links) {
		l.Out = append(l.Out, target)
	})
	return g
}

// Release drops the external handles of the named nodes.
func (g *Graph) Release(names ...string) {
	for _, name := range names {
		g.Handle(name).Drop()
		delete(g.roots, name)
	}
}

// ReleaseAll drops every remaining external handle.
func (g *Graph) ReleaseAll() {
	for name, h := range g.roots {
		h.Drop()
		delete(g.roots, name)
	}
}

// Dead reports whether the node called name was finalized.
func (g *Graph) Dead(name string) bool {
	return g.Probe.Finalized(name) > 0
}

// Collect runs one pass.
func (g *Graph) Collect() dumpster.PassStats {
	g.t.Helper()
	ps, err := g.C.Collect(context.Background())
	require.NoError(g.t, err)
	return ps
}

// CollectAll runs passes until one collects nothing and no candidates are
// left, and returns the number of allocations collected.
func (g *Graph) CollectAll() int {
	g.t.Helper()
	return CollectAll(g.t, g.C)
}

// CollectAll runs passes on c until it is quiescent.
func CollectAll(t *testing.T, c *dumpster.Collector) int {
	t.Helper()
	total := 0
	for i := 0; i < 32; i++ {
		ps, err := c.Collect(context.Background())
		require.NoError(t, err)
		total += ps.Collected
		if ps.Collected == 0 && c.Pending() == 0 {
			break
		}
	}
	return total
}
