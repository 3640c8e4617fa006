package liveness

import "github.com/No1412lee/il2cpp-plus/pkg/collections"

// MarkSet records which objects have been discovered. It is a side table
// indexed by ObjectRef, so scanning never writes to the objects themselves.
// Marking is atomic: when several sessions share a MarkSet each object is
// won by exactly one of them.
type MarkSet struct {
	bits *collections.AtomicBitset
}

// NewMarkSet creates a mark set for refs in [0, capacity).
func NewMarkSet(capacity int) *MarkSet {
	return &MarkSet{bits: collections.NewAtomicBitset(capacity)}
}

// TryMark marks obj and reports whether this call marked it.
func (m *MarkSet) TryMark(obj ObjectRef) bool {
	return !m.bits.TestAndSet(int(obj))
}

// IsMarked reports whether obj is marked.
func (m *MarkSet) IsMarked(obj ObjectRef) bool {
	return m.bits.Test(int(obj))
}

// Unmark clears the mark of obj.
func (m *MarkSet) Unmark(obj ObjectRef) {
	m.bits.Clear(int(obj))
}

// Count returns the number of marked objects.
func (m *MarkSet) Count() int {
	return m.bits.Count()
}

// Capacity returns the exclusive upper bound of refs the set can mark.
func (m *MarkSet) Capacity() int {
	return m.bits.Size()
}

// Marked returns every marked object in ascending order.
func (m *MarkSet) Marked() []ObjectRef {
	var out []ObjectRef
	m.bits.Iterate(func(i int) bool {
		out = append(out, ObjectRef(i))
		return true
	})
	return out
}
