package liveness_test

import (
	"errors"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/No1412lee/il2cpp-plus/internal/liveness"
	"github.com/No1412lee/il2cpp-plus/internal/managed"
	"github.com/No1412lee/il2cpp-plus/internal/typesys"
	"github.com/No1412lee/il2cpp-plus/pkg/collections"
	apperrors "github.com/No1412lee/il2cpp-plus/pkg/errors"
)

// world is a small type universe shared by the session tests.
type world struct {
	heap   *managed.Heap
	corlib *typesys.Corlib
	img    *typesys.Image

	node  *typesys.Class // class Node { int id; Node next; Node other; }
	leaf  *typesys.Class // class Leaf { int v; }
	pair  *typesys.Class // struct Pair { int w; Node target; }
	owner *typesys.Class // class Owner { static Node root; static Pair slot; }
}

func newWorld(t *testing.T) *world {
	t.Helper()
	cl := typesys.NewCorlib("mscorlib")
	img := &typesys.Image{Name: "Assembly-CSharp"}

	node := cl.NewClass(img, "Game", "Node", nil)
	node.AddField("id", typesys.Primitive())
	node.AddField("next", typesys.RefType(node))
	node.AddField("other", typesys.ObjectType(cl))

	leaf := cl.NewClass(img, "Game", "Leaf", nil)
	leaf.AddField("v", typesys.Primitive())

	pair := cl.NewStruct(img, "Game", "Pair")
	pair.AddField("w", typesys.Primitive())
	pair.AddField("target", typesys.RefType(node))

	owner := cl.NewClass(img, "Game", "Owner", nil)
	owner.AddStatic("root", typesys.RefType(node))
	owner.AddStatic("slot", typesys.ValueType(pair))

	h := managed.NewHeap(cl)
	for _, c := range []*typesys.Class{node, leaf, pair, owner} {
		require.NoError(t, h.RegisterClass(c))
	}
	return &world{heap: h, corlib: cl, img: img, node: node, leaf: leaf, pair: pair, owner: owner}
}

func (w *world) newNode(t *testing.T) liveness.ObjectRef {
	t.Helper()
	ref, err := w.heap.New(w.node)
	require.NoError(t, err)
	return ref
}

func (w *world) link(t *testing.T, from liveness.ObjectRef, field string, to liveness.ObjectRef) {
	t.Helper()
	require.NoError(t, w.heap.SetRef(from, field, to))
}

// collector gathers reported refs from any number of sessions.
type collector struct {
	mu   sync.Mutex
	refs []liveness.ObjectRef
	seen map[liveness.ObjectRef]int
}

func newCollector() *collector {
	return &collector{seen: make(map[liveness.ObjectRef]int)}
}

func (c *collector) collect(batch []liveness.ObjectRef, _ any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, r := range batch {
		c.refs = append(c.refs, r)
		c.seen[r]++
	}
	return nil
}

func (c *collector) sorted() []liveness.ObjectRef {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := append([]liveness.ObjectRef(nil), c.refs...)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (c *collector) duplicates() []liveness.ObjectRef {
	c.mu.Lock()
	defer c.mu.Unlock()
	var dup []liveness.ObjectRef
	for r, n := range c.seen {
		if n > 1 {
			dup = append(dup, r)
		}
	}
	return dup
}

func refs(rs ...liveness.ObjectRef) []liveness.ObjectRef {
	sort.Slice(rs, func(i, j int) bool { return rs[i] < rs[j] })
	return rs
}

func begin(t *testing.T, rt liveness.Runtime, opts liveness.SessionOptions) *liveness.Session {
	t.Helper()
	s, err := liveness.BeginSession(rt, opts)
	require.NoError(t, err)
	return s
}

func closeSession(t *testing.T, s *liveness.Session) {
	t.Helper()
	require.NoError(t, s.Finalize())
	require.NoError(t, s.End())
}

func TestScanFromRoot_Chain(t *testing.T) {
	w := newWorld(t)
	a, b, c := w.newNode(t), w.newNode(t), w.newNode(t)
	w.link(t, a, "next", b)
	w.link(t, b, "next", c)

	col := newCollector()
	s := begin(t, w.heap, liveness.SessionOptions{Collector: col.collect})
	require.NoError(t, s.ScanFromRoot(a))

	assert.Equal(t, refs(b, c), col.sorted(), "the root is not reported unless something refers back to it")
	assert.Equal(t, liveness.StateReported, s.State())
	assert.EqualValues(t, 2, s.Stats().Discovered)
	assert.EqualValues(t, 2, s.Stats().Reported)
	assert.EqualValues(t, 3, s.Stats().Traversed)
	closeSession(t, s)
}

func TestScanFromRoot_Cycle(t *testing.T) {
	w := newWorld(t)
	a, b := w.newNode(t), w.newNode(t)
	w.link(t, a, "next", b)
	w.link(t, b, "next", a)

	col := newCollector()
	s := begin(t, w.heap, liveness.SessionOptions{Collector: col.collect})
	require.NoError(t, s.ScanFromRoot(a))

	assert.Equal(t, refs(a, b), col.sorted())
	assert.Empty(t, col.duplicates())
	assert.EqualValues(t, 2, s.Stats().Discovered)
	assert.EqualValues(t, 3, s.Stats().Traversed, "the root is walked again when reached through the cycle")
	closeSession(t, s)
}

func TestScanFromRoot_HeapGrowsBetweenScans(t *testing.T) {
	w := newWorld(t)
	a, b := w.newNode(t), w.newNode(t)
	w.link(t, a, "next", b)

	col := newCollector()
	s := begin(t, w.heap, liveness.SessionOptions{Collector: col.collect})
	require.NoError(t, s.ScanFromRoot(a))
	require.NoError(t, s.Finalize())

	c := w.newNode(t)
	w.link(t, b, "next", c)

	require.NotPanics(t, func() {
		require.NoError(t, s.ScanFromRoot(a))
	})
	assert.Equal(t, refs(b, b, c), col.sorted())
	assert.GreaterOrEqual(t, s.MarkSet().Capacity(), w.heap.ObjectCapacity())
	closeSession(t, s)
}

func TestScan_HeapGrowsUnderOutstandingMarks(t *testing.T) {
	tests := []struct {
		name   string
		shared bool
	}{
		{"private mark set not finalized", false},
		{"shared mark set", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := newWorld(t)
			a, b := w.newNode(t), w.newNode(t)
			w.link(t, a, "next", b)

			opts := liveness.SessionOptions{}
			if tt.shared {
				opts.MarkSet = liveness.NewMarkSet(w.heap.ObjectCapacity())
			}
			s := begin(t, w.heap, opts)
			if !tt.shared {
				require.NoError(t, s.ScanFromRoot(a))
			}

			c := w.newNode(t)
			w.link(t, a, "other", c)

			var err error
			require.NotPanics(t, func() { err = s.ScanFromRoot(a) })
			assert.Equal(t, apperrors.CodeInvalidInput, apperrors.GetErrorCode(err))
			closeSession(t, s)
		})
	}
}

func TestScanFromRoot_StructArraySubset(t *testing.T) {
	w := newWorld(t)

	all := make([]liveness.ObjectRef, 100)
	for i := range all {
		all[i] = w.newNode(t)
	}
	arr, err := w.heap.NewArray(w.pair, 10)
	require.NoError(t, err)
	var want []liveness.ObjectRef
	for i := 0; i < 10; i++ {
		target := all[i*10]
		require.NoError(t, w.heap.SetElement(arr, i, "target", target))
		want = append(want, target)
	}
	root := w.newNode(t)
	w.link(t, root, "other", arr)

	col := newCollector()
	s := begin(t, w.heap, liveness.SessionOptions{Collector: col.collect})
	require.NoError(t, s.ScanFromRoot(root))

	want = append(want, arr)
	assert.Equal(t, refs(want...), col.sorted())
	closeSession(t, s)
}

func TestScanFromRoot_Filter(t *testing.T) {
	w := newWorld(t)
	a, b := w.newNode(t), w.newNode(t)
	l1, err := w.heap.New(w.leaf)
	require.NoError(t, err)
	l2, err := w.heap.New(w.leaf)
	require.NoError(t, err)
	w.link(t, a, "next", b)
	w.link(t, a, "other", l1)
	w.link(t, b, "other", l2)

	tests := []struct {
		name       string
		filter     *typesys.Class
		want       []liveness.ObjectRef
		discovered int64
	}{
		{"no filter", nil, refs(b, l1, l2), 3},
		{"leaf only", w.leaf, refs(l1, l2), 3},
		// leaves carry no references and fail the filter, so they are never marked
		{"node only", w.node, refs(b), 1},
		{"object matches all", w.corlib.Object, refs(b, l1, l2), 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			col := newCollector()
			s := begin(t, w.heap, liveness.SessionOptions{Filter: tt.filter, Collector: col.collect})
			require.NoError(t, s.ScanFromRoot(a))
			assert.Equal(t, tt.want, col.sorted())
			assert.Equal(t, tt.discovered, s.Stats().Discovered)
			closeSession(t, s)
		})
	}
}

func TestScanFromRoot_InvalidRoot(t *testing.T) {
	w := newWorld(t)
	s := begin(t, w.heap, liveness.SessionOptions{})

	err := s.ScanFromRoot(99)
	assert.True(t, errors.Is(err, apperrors.ErrInvalidInput))

	require.NoError(t, s.ScanFromRoot(liveness.Null))
	assert.Zero(t, s.Stats().Traversed)
	closeSession(t, s)
}

func TestFinalize_ClearsOnlyOwnMarks(t *testing.T) {
	w := newWorld(t)
	a, b, c := w.newNode(t), w.newNode(t), w.newNode(t)
	w.link(t, a, "next", b)
	w.link(t, b, "next", c)
	other := w.newNode(t)

	marks := liveness.NewMarkSet(w.heap.ObjectCapacity())
	require.True(t, marks.TryMark(other))

	s := begin(t, w.heap, liveness.SessionOptions{MarkSet: marks})
	require.NoError(t, s.ScanFromRoot(a))
	assert.Equal(t, []liveness.ObjectRef{b, c, other}, marks.Marked())
	assert.Equal(t, 2, s.Discovered())

	require.NoError(t, s.Finalize())
	assert.Equal(t, []liveness.ObjectRef{other}, marks.Marked())
	assert.Equal(t, 0, s.Discovered())
	assert.Equal(t, liveness.StateFinalized, s.State())

	require.NoError(t, s.Finalize(), "finalize is idempotent")
	assert.Equal(t, []liveness.ObjectRef{other}, marks.Marked())

	require.NoError(t, s.End())
	assert.Equal(t, liveness.StateDestroyed, s.State())
}

func TestEnd_RequiresFinalize(t *testing.T) {
	w := newWorld(t)
	a, b := w.newNode(t), w.newNode(t)
	w.link(t, a, "next", b)

	s := begin(t, w.heap, liveness.SessionOptions{})
	require.NoError(t, s.ScanFromRoot(a))

	err := s.End()
	assert.True(t, errors.Is(err, apperrors.ErrNotFinalized))
	assert.Equal(t, liveness.StateReported, s.State(), "a failed End leaves the session open")

	closeSession(t, s)
}

func TestClosedSession(t *testing.T) {
	w := newWorld(t)
	a := w.newNode(t)
	s := begin(t, w.heap, liveness.SessionOptions{})
	closeSession(t, s)

	assert.ErrorIs(t, s.ScanFromRoot(a), apperrors.ErrSessionClosed)
	assert.ErrorIs(t, s.ScanAllStatics(), apperrors.ErrSessionClosed)
	assert.ErrorIs(t, s.CollectStaticsBatch(true, 0, 1), apperrors.ErrSessionClosed)
	assert.ErrorIs(t, s.ScanStaticsSharded(0, 1), apperrors.ErrSessionClosed)
	assert.ErrorIs(t, s.DrainAndReport(), apperrors.ErrSessionClosed)
	assert.ErrorIs(t, s.Finalize(), apperrors.ErrSessionClosed)
	assert.ErrorIs(t, s.End(), apperrors.ErrSessionClosed)
	assert.Equal(t, 0, s.Discovered())
}

func TestReport_OnlyNewObjectsPerPass(t *testing.T) {
	w := newWorld(t)
	a, b, c, d := w.newNode(t), w.newNode(t), w.newNode(t), w.newNode(t)
	w.link(t, a, "next", b)
	w.link(t, c, "next", d)

	col := newCollector()
	s := begin(t, w.heap, liveness.SessionOptions{Collector: col.collect})
	require.NoError(t, s.ScanFromRoot(a))
	require.Equal(t, refs(b), col.sorted())

	require.NoError(t, s.ScanFromRoot(c))
	assert.Equal(t, refs(b, d), col.sorted(), "objects reported by an earlier pass are not reported again")
	assert.Empty(t, col.duplicates())
	closeSession(t, s)
}

func TestReport_Batches(t *testing.T) {
	w := newWorld(t)
	const n = 2*liveness.ReportBatchSize + 5

	arr, err := w.heap.NewArray(w.node, n)
	require.NoError(t, err)
	for i := 0; i < n; i++ {
		require.NoError(t, w.heap.SetElement(arr, i, "", w.newNode(t)))
	}
	root := w.newNode(t)
	w.link(t, root, "other", arr)

	var sizes []int
	s := begin(t, w.heap, liveness.SessionOptions{
		Collector: func(batch []liveness.ObjectRef, userData any) error {
			assert.Equal(t, "ctx", userData)
			sizes = append(sizes, len(batch))
			return nil
		},
		UserData: "ctx",
	})
	require.NoError(t, s.ScanFromRoot(root))

	assert.Equal(t, []int{liveness.ReportBatchSize, liveness.ReportBatchSize, 6}, sizes)
	closeSession(t, s)
}

func TestReport_CollectorError(t *testing.T) {
	w := newWorld(t)
	a, b := w.newNode(t), w.newNode(t)
	w.link(t, a, "next", b)

	boom := errors.New("boom")
	s := begin(t, w.heap, liveness.SessionOptions{
		Collector: func([]liveness.ObjectRef, any) error { return boom },
	})
	err := s.ScanFromRoot(a)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "collector")
	closeSession(t, s)
}

// nestedChain builds Holder { S1 s } where S1 { S2 s } ... Sdepth { Node target }.
func nestedChain(t *testing.T, w *world, depth int) liveness.ObjectRef {
	t.Helper()
	inner := w.corlib.NewStruct(w.img, "Deep", "S")
	inner.AddField("target", typesys.RefType(w.node))
	for i := 1; i < depth; i++ {
		outer := w.corlib.NewStruct(w.img, "Deep", "S")
		outer.AddField("s", typesys.ValueType(inner))
		inner = outer
	}
	holder := w.corlib.NewClass(w.img, "Deep", "Holder", nil)
	holder.AddField("s", typesys.ValueType(inner))

	obj, err := w.heap.New(holder)
	require.NoError(t, err)
	return obj
}

func TestVisitFields_RecursionDepth(t *testing.T) {
	tests := []struct {
		depth   int
		wantErr bool
	}{
		{depth: 1},
		{depth: liveness.MaxRecursionDepth},
		{depth: liveness.MaxRecursionDepth + 1, wantErr: true},
	}

	for _, tt := range tests {
		w := newWorld(t)
		root := w.newNode(t)
		w.link(t, root, "other", nestedChain(t, w, tt.depth))

		s := begin(t, w.heap, liveness.SessionOptions{})
		err := s.ScanFromRoot(root)
		if tt.wantErr {
			assert.ErrorIs(t, err, apperrors.ErrRecursionDepth, "depth %d", tt.depth)
			assert.True(t, apperrors.IsFatal(err))
		} else {
			assert.NoError(t, err, "depth %d", tt.depth)
		}
		closeSession(t, s)
	}
}

func TestVisitFields_LayoutPending(t *testing.T) {
	w := newWorld(t)
	pending := w.corlib.NewClass(w.img, "Game", "Pending", nil)
	pending.AddField("next", typesys.RefType(w.node))
	pending.LayoutPending = true

	obj, err := w.heap.New(pending)
	require.NoError(t, err)
	root := w.newNode(t)
	w.link(t, root, "other", obj)

	s := begin(t, w.heap, liveness.SessionOptions{})
	err = s.ScanFromRoot(root)
	assert.ErrorIs(t, err, apperrors.ErrLayoutNotFinalized)
	closeSession(t, s)
}

func TestVisitFields_ThreadStaticInstanceField(t *testing.T) {
	w := newWorld(t)
	bad := w.corlib.NewClass(w.img, "Game", "Bad", nil)
	f := bad.AddField("ts", typesys.RefType(w.node))
	require.NoError(t, w.heap.RegisterClass(bad))
	f.Offset = typesys.ThreadStaticOffset

	obj, err := w.heap.New(bad)
	require.NoError(t, err)
	root := w.newNode(t)
	w.link(t, root, "other", obj)

	s := begin(t, w.heap, liveness.SessionOptions{})
	err = s.ScanFromRoot(root)
	assert.ErrorIs(t, err, apperrors.ErrThreadStaticField)
	closeSession(t, s)
}

func TestScanAllStatics_SkipRules(t *testing.T) {
	w := newWorld(t)
	h := w.heap

	viaRoot, viaSlot := w.newNode(t), w.newNode(t)
	require.NoError(t, h.SetStatic(w.owner, "root", viaRoot))
	require.NoError(t, h.SetStatic(w.owner, "slot.target", viaSlot))

	// corlib statics are never scanned
	corlibOwner := w.corlib.NewClass(w.corlib.Image, "System", "Cache", nil)
	corlibOwner.AddStatic("instance", typesys.RefType(w.node))
	require.NoError(t, h.RegisterClass(corlibOwner))
	require.NoError(t, h.SetStatic(corlibOwner, "instance", w.newNode(t)))

	// owners whose layout is still pending are skipped
	pending := w.corlib.NewClass(w.img, "Game", "Pending", nil)
	pending.AddStatic("instance", typesys.RefType(w.node))
	pending.LayoutPending = true
	require.NoError(t, h.RegisterClass(pending))
	require.NoError(t, h.SetStatic(pending, "instance", w.newNode(t)))

	// thread-static, literal and string statics hold nothing to follow
	mixed := w.corlib.NewClass(w.img, "Game", "Mixed", nil)
	mixed.AddThreadStatic("perThread", typesys.RefType(w.node))
	mixed.AddLiteral("name", typesys.StringType(w.corlib))
	mixed.AddStatic("label", typesys.StringType(w.corlib))
	mixed.AddStatic("count", typesys.Primitive())
	require.NoError(t, h.RegisterClass(mixed))

	h.AddStaticOwner(nil)

	col := newCollector()
	s := begin(t, h, liveness.SessionOptions{Collector: col.collect})
	require.NoError(t, s.ScanAllStatics())

	assert.Equal(t, refs(viaRoot, viaSlot), col.sorted())
	assert.Equal(t, 5, s.StaticsCount())
	closeSession(t, s)
}

// staticWorld registers n owners, each holding a chain of length two.
func staticWorld(t *testing.T, n int) (*world, []liveness.ObjectRef) {
	t.Helper()
	w := newWorld(t)
	var want []liveness.ObjectRef
	for i := 0; i < n; i++ {
		owner := w.corlib.NewClass(w.img, "Game", "Owner", nil)
		owner.AddStatic("head", typesys.RefType(w.node))
		require.NoError(t, w.heap.RegisterClass(owner))

		a, b := w.newNode(t), w.newNode(t)
		w.link(t, a, "next", b)
		require.NoError(t, w.heap.SetStatic(owner, "head", a))
		want = append(want, a, b)
	}
	return w, refs(want...)
}

func TestCollectStaticsBatch_CoversAllOwners(t *testing.T) {
	w, want := staticWorld(t, 10)
	total := len(w.heap.StaticOwners())

	col := newCollector()
	s := begin(t, w.heap, liveness.SessionOptions{Collector: col.collect})
	for start := 0; start < total; start += 3 {
		require.NoError(t, s.CollectStaticsBatch(start == 0, start, 3))
		require.NoError(t, s.DrainAndReport())
	}
	assert.Equal(t, want, col.sorted())

	assert.Error(t, s.CollectStaticsBatch(false, -1, 2))
	require.NoError(t, s.CollectStaticsBatch(false, total+5, 2), "a batch past the end seeds nothing")
	closeSession(t, s)
}

func TestScanStaticsSharded_PartitionCover(t *testing.T) {
	w, want := staticWorld(t, 11)

	for _, workers := range []int{1, 2, 3, 4, 16} {
		marks := liveness.NewMarkSet(w.heap.ObjectCapacity())
		col := newCollector()
		for i := 0; i < workers; i++ {
			s := begin(t, w.heap, liveness.SessionOptions{Collector: col.collect, MarkSet: marks})
			require.NoError(t, s.ScanStaticsSharded(i, workers))
			// leave the marks in place so shards cannot overlap
			defer closeSession(t, s)
		}
		assert.Equal(t, want, col.sorted(), "workers=%d", workers)
		assert.Empty(t, col.duplicates(), "workers=%d", workers)
	}
}

func TestScanStaticsSharded_InvalidShard(t *testing.T) {
	w := newWorld(t)
	s := begin(t, w.heap, liveness.SessionOptions{})
	defer closeSession(t, s)

	assert.Error(t, s.ScanStaticsSharded(0, 0))
	assert.Error(t, s.ScanStaticsSharded(2, 2))
	assert.Error(t, s.ScanStaticsSharded(-1, 2))
}

func TestBeginSession_Validation(t *testing.T) {
	w := newWorld(t)
	w.newNode(t)

	_, err := liveness.BeginSession(nil, liveness.SessionOptions{})
	assert.Error(t, err)

	_, err = liveness.BeginSession(w.heap, liveness.SessionOptions{MarkSet: liveness.NewMarkSet(1)})
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestBeginSession_AllocatorExhausted(t *testing.T) {
	w := newWorld(t)

	// room for the two initial blocks of 16 refs only
	budget := collections.NewBudgetAllocator[liveness.ObjectRef](2 * 16 * 4)
	_, err := liveness.BeginSession(w.heap, liveness.SessionOptions{
		Allocator:      budget,
		BlockSize:      16,
		MaxObjectCount: 64,
	})
	assert.True(t, apperrors.IsAllocExhausted(err))
	assert.Zero(t, budget.Used(), "blocks are returned when BeginSession fails")
}

func TestScan_AllocatorExhaustedMidScan(t *testing.T) {
	w := newWorld(t)
	const n = 40
	arr, err := w.heap.NewArray(w.node, n)
	require.NoError(t, err)
	for i := 0; i < n; i++ {
		require.NoError(t, w.heap.SetElement(arr, i, "", w.newNode(t)))
	}
	root := w.newNode(t)
	w.link(t, root, "other", arr)

	budget := collections.NewBudgetAllocator[liveness.ObjectRef](3 * 8 * 4)
	s := begin(t, w.heap, liveness.SessionOptions{Allocator: budget, BlockSize: 8})
	err = s.ScanFromRoot(root)
	assert.True(t, apperrors.IsAllocExhausted(err))
	assert.False(t, apperrors.IsFatal(err))

	require.NoError(t, s.Finalize())
	assert.Zero(t, s.MarkSet().Count(), "finalize clears every mark the session recorded")
	require.NoError(t, s.End())
	assert.Zero(t, budget.Used())
}

func TestYieldEvery_SameClosure(t *testing.T) {
	w := newWorld(t)
	const n = 50
	arr, err := w.heap.NewArray(w.node, n)
	require.NoError(t, err)
	var want []liveness.ObjectRef
	for i := 0; i < n; i++ {
		a, b := w.newNode(t), w.newNode(t)
		w.link(t, a, "next", b)
		require.NoError(t, w.heap.SetElement(arr, i, "", a))
		want = append(want, a, b)
	}
	root := w.newNode(t)
	w.link(t, root, "other", arr)
	want = append(want, arr)

	for _, every := range []int{0, 1, 7} {
		col := newCollector()
		s := begin(t, w.heap, liveness.SessionOptions{Collector: col.collect, YieldEvery: every})
		require.NoError(t, s.ScanFromRoot(root))
		assert.Equal(t, refs(append([]liveness.ObjectRef(nil), want...)...), col.sorted(), "yield every %d", every)
		closeSession(t, s)
	}
}

func TestScan_PrimitiveArraysAreNotWalked(t *testing.T) {
	w := newWorld(t)
	ints := w.corlib.NewStruct(w.img, "System", "Int32")
	ints.AddField("m_value", typesys.Primitive())

	arr, err := w.heap.NewArray(ints, 1000)
	require.NoError(t, err)
	root := w.newNode(t)
	w.link(t, root, "other", arr)

	col := newCollector()
	s := begin(t, w.heap, liveness.SessionOptions{Collector: col.collect})
	require.NoError(t, s.ScanFromRoot(root))

	assert.Equal(t, refs(arr), col.sorted())
	assert.EqualValues(t, 1, s.Stats().Processed)
	closeSession(t, s)
}

func TestProfiler_RecordsPhases(t *testing.T) {
	w := newWorld(t)
	a, b := w.newNode(t), w.newNode(t)
	w.link(t, a, "next", b)
	require.NoError(t, w.heap.SetStatic(w.owner, "root", a))

	rec := liveness.NewCostRecorder()
	s := begin(t, w.heap, liveness.SessionOptions{Profiler: rec})
	require.NoError(t, s.ScanAllStatics())
	closeSession(t, s)

	_, ok := rec.Cost(liveness.PhaseCollectStatics, "Owner")
	assert.True(t, ok)
	_, ok = rec.Cost(liveness.PhaseTraverseObject, "Node")
	assert.True(t, ok)
}
