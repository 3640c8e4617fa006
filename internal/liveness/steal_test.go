package liveness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/No1412lee/il2cpp-plus/internal/typesys"
	"github.com/No1412lee/il2cpp-plus/pkg/collections"
	apperrors "github.com/No1412lee/il2cpp-plus/pkg/errors"
)

// fakeRuntime is a map-backed Runtime for tests that need package internals.
type fakeRuntime struct {
	classes []*typesys.Class
	slots   map[Location]ObjectRef
	lengths map[ObjectRef]int
	owners  []*typesys.Class
	corlib  *typesys.Image
}

func newFakeRuntime() *fakeRuntime {
	return &fakeRuntime{
		classes: []*typesys.Class{nil},
		slots:   make(map[Location]ObjectRef),
		lengths: make(map[ObjectRef]int),
	}
}

func (f *fakeRuntime) add(c *typesys.Class) ObjectRef {
	f.classes = append(f.classes, c)
	return ObjectRef(len(f.classes) - 1)
}

func (f *fakeRuntime) ObjectCapacity() int { return len(f.classes) }

func (f *fakeRuntime) ClassOf(obj ObjectRef) *typesys.Class {
	if int(obj) >= len(f.classes) {
		return nil
	}
	return f.classes[obj]
}

func (f *fakeRuntime) ArrayLength(arr ObjectRef) int { return f.lengths[arr] }

func (f *fakeRuntime) ElementLocation(arr ObjectRef, i int) Location {
	return Location{Object: arr, Offset: i}
}

func (f *fakeRuntime) LoadRef(loc Location) ObjectRef { return f.slots[loc] }

func (f *fakeRuntime) StaticOwners() []*typesys.Class { return f.owners }

func (f *fakeRuntime) CorlibImage() *typesys.Image { return f.corlib }

// leafRuntime returns a runtime holding n reference-free objects.
func leafRuntime(t *testing.T, n int) *fakeRuntime {
	t.Helper()
	cl := typesys.NewCorlib("mscorlib")
	leaf := cl.NewClass(&typesys.Image{Name: "Game"}, "Game", "Leaf", nil)
	require.NoError(t, typesys.ComputeLayouts(leaf))

	rt := newFakeRuntime()
	rt.corlib = cl.Image
	for i := 0; i < n; i++ {
		rt.add(leaf)
	}
	return rt
}

func newTestSession(t *testing.T, rt Runtime, opts SessionOptions) *Session {
	t.Helper()
	s, err := BeginSession(rt, opts)
	require.NoError(t, err)
	return s
}

func fillQueue(t *testing.T, s *Session, n int) {
	t.Helper()
	for i := 1; i <= n; i++ {
		require.NoError(t, s.queue.Push(ObjectRef(i)))
	}
}

func TestStealFrom_Amount(t *testing.T) {
	tests := []struct {
		name     string
		queued   int
		workers  int
		minSteal int
		want     int
	}{
		{"below twice min steal", 7, 2, 4, 0},
		{"exactly twice min steal", 8, 4, 4, 4},
		{"share above min steal", 40, 4, 4, 10},
		{"capped", 100, 2, 4, MaxStealCount},
		{"min steal clamped to one", 3, 1, 0, 3},
		{"empty victim", 0, 2, 1, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rt := leafRuntime(t, 128)
			thief := newTestSession(t, rt, SessionOptions{})
			victim := newTestSession(t, rt, SessionOptions{})
			fillQueue(t, victim, tt.queued)

			got, err := thief.stealFrom(victim, tt.workers, tt.minSteal)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.want, thief.queue.Count())
			assert.Equal(t, tt.queued, victim.queue.Count()+thief.queue.Count(), "stealing conserves queued work")
		})
	}
}

func TestStealFrom_TakesNewestWork(t *testing.T) {
	rt := leafRuntime(t, 64)
	thief := newTestSession(t, rt, SessionOptions{})
	victim := newTestSession(t, rt, SessionOptions{})
	fillQueue(t, victim, 10)

	got, err := thief.stealFrom(victim, 2, 2)
	require.NoError(t, err)
	require.Equal(t, 5, got)

	var stolen []ObjectRef
	for obj, ok := thief.queue.Pop(); ok; obj, ok = thief.queue.Pop() {
		stolen = append(stolen, obj)
	}
	assert.ElementsMatch(t, []ObjectRef{6, 7, 8, 9, 10}, stolen)
}

func TestStealFrom_PushFailureReturnsRemainder(t *testing.T) {
	rt := leafRuntime(t, 64)
	victim := newTestSession(t, rt, SessionOptions{})
	fillQueue(t, victim, 40)

	// two blocks of two refs: the thief's queue holds two stolen objects at most
	budget := collections.NewBudgetAllocator[ObjectRef](2 * 2 * 4)
	thief := newTestSession(t, rt, SessionOptions{Allocator: budget, BlockSize: 2})

	got, err := thief.stealFrom(victim, 1, 4)
	assert.True(t, apperrors.IsAllocExhausted(err))
	assert.Equal(t, 2, got)
	assert.Equal(t, 2, thief.queue.Count())
	assert.Equal(t, 38, victim.queue.Count())
}

func TestTrySteal_DrainsAndReports(t *testing.T) {
	rt := leafRuntime(t, 64)
	marks := NewMarkSet(rt.ObjectCapacity())

	var reported []ObjectRef
	thief := newTestSession(t, rt, SessionOptions{
		MarkSet: marks,
		Collector: func(batch []ObjectRef, _ any) error {
			reported = append(reported, batch...)
			return nil
		},
	})
	victim := newTestSession(t, rt, SessionOptions{MarkSet: marks})
	fillQueue(t, victim, 20)

	got, err := thief.TrySteal(victim, 2, 4)
	require.NoError(t, err)
	assert.Equal(t, 10, got)
	assert.EqualValues(t, 10, thief.Stats().Stolen)
	assert.EqualValues(t, 10, thief.Stats().Traversed)
	assert.Equal(t, 0, thief.queue.Count())
	assert.Empty(t, reported, "stolen leaves have no fields to follow")
	assert.Equal(t, StateReported, thief.State())
}

func TestTrySteal_Validation(t *testing.T) {
	rt := leafRuntime(t, 4)
	s := newTestSession(t, rt, SessionOptions{})
	other := newTestSession(t, rt, SessionOptions{})

	_, err := s.TrySteal(s, 2, 4)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

	_, err = s.TrySteal(other, 0, 4)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

	require.NoError(t, other.End())
	_, err = s.TrySteal(other, 2, 4)
	assert.ErrorIs(t, err, apperrors.ErrSessionClosed)
}

func TestShouldYield(t *testing.T) {
	s := &Session{yieldEvery: 4}
	assert.False(t, s.shouldYield(3))
	assert.True(t, s.shouldYield(4))
	assert.True(t, s.shouldYield(8))

	s.drainDepth = MaxDrainDepth
	assert.False(t, s.shouldYield(8))

	s = &Session{}
	assert.False(t, s.shouldYield(1))
}

func TestElementsMayReference(t *testing.T) {
	cl := typesys.NewCorlib("mscorlib")
	img := &typesys.Image{Name: "Game"}

	plain := cl.NewStruct(img, "Game", "Plain")
	plain.AddField("x", typesys.Primitive())
	plain.AddStatic("shared", typesys.ObjectType(cl))

	holder := cl.NewStruct(img, "Game", "Holder")
	holder.AddField("ref", typesys.ObjectType(cl))

	named := cl.NewStruct(img, "Game", "Named")
	named.AddField("name", typesys.StringType(cl))

	tests := []struct {
		name string
		elem *typesys.Class
		want bool
	}{
		{"nil", nil, false},
		{"reference class", cl.Object, true},
		{"struct of primitives", plain, false},
		{"struct with reference", holder, true},
		{"struct with string", named, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, elementsMayReference(tt.elem))
		})
	}
}

func TestAddCandidate_QueuesThroughLocalBuffer(t *testing.T) {
	cl := typesys.NewCorlib("mscorlib")
	node := cl.NewClass(&typesys.Image{Name: "Game"}, "Game", "Node", nil)
	node.AddField("next", typesys.RefType(node))
	require.NoError(t, typesys.ComputeLayouts(node))

	rt := newFakeRuntime()
	for i := 0; i < collections.LocalBufferSize+10; i++ {
		rt.add(node)
	}
	s := newTestSession(t, rt, SessionOptions{})

	for i := 1; i <= collections.LocalBufferSize+10; i++ {
		queued, err := s.addCandidate(ObjectRef(i))
		require.NoError(t, err)
		assert.True(t, queued)
	}
	assert.Equal(t, collections.LocalBufferSize, s.queue.Count(), "a full local buffer is flushed to the shared queue")
	assert.Equal(t, 10, s.local.Len())

	queued, err := s.addCandidate(1)
	require.NoError(t, err)
	assert.False(t, queued, "marked objects are not queued twice")
	assert.EqualValues(t, collections.LocalBufferSize+10, s.Stats().Discovered)
}
