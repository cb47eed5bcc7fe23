package dumpster_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dumpster/internal/testutil"
	"github.com/dumpster/pkg/dumpster"
	"github.com/dumpster/pkg/errors"
	"github.com/dumpster/pkg/utils"
)

type leaf struct {
	dumpster.Leaf
	value int
}

func TestHandle_NewCloneDrop(t *testing.T) {
	c := dumpster.NewCollector(dumpster.WithPolicy(dumpster.Manual), dumpster.WithLogger(&utils.NullLogger{}))

	h := dumpster.NewIn(c, leaf{value: 7})
	assert.Equal(t, 1, h.StrongCount())
	assert.Equal(t, 0, h.WeakCount())
	assert.Same(t, c, h.Collector())

	h2 := h.Clone()
	assert.Equal(t, 2, h.StrongCount())
	assert.True(t, dumpster.SameAllocation(h, h2))
	assert.Equal(t, h.ID(), h2.ID())
	assert.Equal(t, 7, h2.Deref().value)

	h2.Deref().value = 9
	assert.Equal(t, 9, h.Deref().value)

	h.Drop()
	assert.True(t, h.Dropped())
	assert.Equal(t, 1, h2.StrongCount())
	testutil.AssertLive(t, c, 1)

	h2.Drop()
	testutil.AssertLive(t, c, 0)
	testutil.AssertDestroyed(t, c, 1)

	// The earlier drop left the allocation queued; the pass finds it dead
	// and lets go of the header.
	assert.Zero(t, c.Stats().Released)
	ps, err := c.Collect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, ps.Candidates)
	assert.Zero(t, ps.Collected)
	assert.Equal(t, uint64(1), c.Stats().Released)
}

func TestHandle_DropIsIdempotent(t *testing.T) {
	g := testutil.NewGraph(t).Add("a")
	h := g.Handle("a").Clone()

	h.Drop()
	h.Drop()
	h.Drop()
	assert.Equal(t, 1, g.Handle("a").StrongCount())
	assert.False(t, g.Dead("a"))

	g.Release("a")
	assert.Equal(t, 1, g.Probe.Finalized("a"))

	var nilHandle *dumpster.Handle[testutil.Node]
	assert.NotPanics(t, nilHandle.Drop)
}

func TestHandle_UseAfterDropPanics(t *testing.T) {
	g := testutil.NewGraph(t).Add("a")
	h := g.Handle("a").Clone()
	h.Drop()

	testutil.RequirePanicCode(t, errors.CodeUseAfterDrop, func() { h.Clone() })
	testutil.RequirePanicCode(t, errors.CodeUseAfterDrop, func() { h.Deref() })
	testutil.RequirePanicCode(t, errors.CodeUseAfterDrop, func() { dumpster.Downgrade(h) })
}

func TestHandle_AcyclicGraphIsFreedOnDrop(t *testing.T) {
	g := testutil.NewGraph(t).Add("a", "b", "c", "d")
	g.Link("a", "b").Link("a", "c").Link("b", "d").Link("c", "d")
	g.Release("b", "c", "d")

	assert.Zero(t, g.Probe.Total())
	g.Release("a")

	for _, name := range []string{"a", "b", "c", "d"} {
		assert.Equal(t, 1, g.Probe.Finalized(name), name)
	}
	testutil.AssertLive(t, g.C, 0)
	assert.Zero(t, g.C.Stats().Passes)
}

func TestHandle_LongChainIsDestroyedIteratively(t *testing.T) {
	g := testutil.NewGraph(t)
	const n = 50000

	head := testutil.NewNode(g.C, "head", g.Probe)
	cur := head.Clone()
	for i := 0; i < n; i++ {
		next := testutil.NewNode(g.C, "chain", g.Probe)
		cur.Deref().Links().With(func(l *testutil.Links) {
			l.Out = append(l.Out, next.Clone())
		})
		cur.Drop()
		cur = next
	}
	cur.Drop()

	head.Drop()
	assert.Equal(t, n, g.Probe.Finalized("chain"))
	testutil.AssertLive(t, g.C, 0)
}

func TestHandle_DerefRemovesCandidate(t *testing.T) {
	g := testutil.NewGraph(t).Add("a")
	h := g.Handle("a")

	h.Clone().Drop()
	assert.Equal(t, 1, g.C.Pending())
	assert.Equal(t, 1, h.WeakCount())

	h.Deref()
	assert.Zero(t, g.C.Pending())
	assert.Zero(t, h.WeakCount())
}

func TestWeak_UpgradeAndDrop(t *testing.T) {
	g := testutil.NewGraph(t).Add("a")
	h := g.Handle("a")

	w := dumpster.Downgrade(h)
	assert.Equal(t, 1, h.WeakCount())
	assert.True(t, w.Alive())

	u := w.Upgrade()
	require.NotNil(t, u)
	assert.Equal(t, 2, h.StrongCount())
	assert.Equal(t, "a", u.Deref().Name)
	u.Drop()
	assert.Equal(t, 1, g.C.Pending())
	h.Deref()
	assert.Equal(t, 1, h.WeakCount())

	w2 := w.Clone()
	g.Release("a")
	assert.True(t, g.Dead("a"))
	assert.False(t, w.Alive())
	assert.Nil(t, w.Upgrade())

	// The header outlives the payload until the last weak reference goes.
	assert.Zero(t, g.C.Stats().Released)
	w.Drop()
	w.Drop()
	assert.Zero(t, g.C.Stats().Released)
	w2.Drop()
	assert.Equal(t, uint64(1), g.C.Stats().Released)
	assert.Nil(t, w2.Upgrade())
}

func TestVisitHelpers(t *testing.T) {
	c := dumpster.NewCollector(dumpster.WithPolicy(dumpster.Manual), dumpster.WithLogger(&utils.NullLogger{}))
	a := dumpster.NewIn(c, leaf{})
	b := dumpster.NewIn(c, leaf{})
	defer a.Drop()
	defer b.Drop()

	rec := &recordingVisitor{}
	dumpster.VisitAll(rec, []*dumpster.Handle[leaf]{a, nil, b})
	assert.Len(t, rec.edges, 3)

	slot := dumpster.NewSlot(a.Clone())
	rec = &recordingVisitor{}
	require.NoError(t, slot.Accept(rec))
	require.Len(t, rec.edges, 1)
	assert.True(t, dumpster.SameAllocation(rec.edges[0], a))

	slot.Set(b.Clone())
	assert.Equal(t, 1, a.StrongCount())
	assert.Equal(t, 2, b.StrongCount())
	slot.Take().Drop()
	assert.Nil(t, slot.Load())
	rec = &recordingVisitor{}
	require.NoError(t, slot.Accept(rec))
	assert.Empty(t, rec.edges)

	slots := []*dumpster.Slot[leaf]{dumpster.NewSlot(a.Clone()), dumpster.NewSlot[leaf](nil)}
	rec = &recordingVisitor{}
	require.NoError(t, dumpster.AcceptAll(rec, slots))
	assert.Len(t, rec.edges, 1)
	slots[0].Set(nil)
}

func TestMutex_AcceptFailsFastWhenLocked(t *testing.T) {
	m := dumpster.NewMutex(leaf{})
	m.Lock()

	err := m.Accept(&recordingVisitor{})
	assert.True(t, errors.IsVisitBusy(err))

	_, ok := m.TryLock()
	assert.False(t, ok)
	m.Unlock()

	require.NoError(t, m.Accept(&recordingVisitor{}))
	v, ok := m.TryLock()
	require.True(t, ok)
	v.value = 3
	m.Unlock()
	m.With(func(l *leaf) { assert.Equal(t, 3, l.value) })
}

func TestRWMutex_ReadersDoNotBlockVisits(t *testing.T) {
	m := dumpster.NewRWMutex(leaf{})

	m.RLock()
	require.NoError(t, m.Accept(&recordingVisitor{}))
	m.RUnlock()

	m.Lock()
	assert.True(t, errors.IsVisitBusy(m.Accept(&recordingVisitor{})))
	m.Unlock()

	m.With(func(l *leaf) { l.value = 1 })
	assert.Equal(t, 1, m.RLock().value)
	m.RUnlock()
}

type recordingVisitor struct {
	edges []dumpster.Edge
}

func (r *recordingVisitor) Visit(e dumpster.Edge) { r.edges = append(r.edges, e) }

func (r *recordingVisitor) Exclusive() bool { return false }
