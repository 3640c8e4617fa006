// Package collections provides the arena, buffer and bitmap structures used by
// the liveness scanner.
package collections

import (
	"math/bits"
	"sync/atomic"
)

// ============================================================================
// AtomicBitset - Fixed-size lock-free bitset
// ============================================================================

// AtomicBitset is a fixed-size bitset whose bits can be set and cleared from
// many goroutines at once. Every update is a CAS loop on the containing word,
// so TestAndSet gives exactly one winner per bit.
//
// Memory for 1M objects is 128KB, against ~32MB for a map[uint32]bool.
type AtomicBitset struct {
	words []atomic.Uint64
	size  int
}

// NewAtomicBitset creates a bitset able to hold indexes [0, size).
func NewAtomicBitset(size int) *AtomicBitset {
	if size <= 0 {
		size = 64
	}
	return &AtomicBitset{
		words: make([]atomic.Uint64, (size+63)/64),
		size:  size,
	}
}

// Size returns the number of addressable bits.
func (b *AtomicBitset) Size() int {
	return b.size
}

// TestAndSet sets bit i and returns its previous value. Indexes outside
// [0, Size) panic like an out-of-range slice index.
func (b *AtomicBitset) TestAndSet(i int) bool {
	w := &b.words[b.index(i)]
	mask := uint64(1) << (uint(i) % 64)
	for {
		old := w.Load()
		if old&mask != 0 {
			return true
		}
		if w.CompareAndSwap(old, old|mask) {
			return false
		}
	}
}

// Test returns true if bit i is set.
func (b *AtomicBitset) Test(i int) bool {
	if i < 0 || i >= b.size {
		return false
	}
	return b.words[i/64].Load()&(uint64(1)<<(uint(i)%64)) != 0
}

// Clear clears bit i and returns its previous value.
func (b *AtomicBitset) Clear(i int) bool {
	w := &b.words[b.index(i)]
	mask := uint64(1) << (uint(i) % 64)
	for {
		old := w.Load()
		if old&mask == 0 {
			return false
		}
		if w.CompareAndSwap(old, old&^mask) {
			return true
		}
	}
}

// Count returns the number of set bits.
func (b *AtomicBitset) Count() int {
	n := 0
	for i := range b.words {
		n += bits.OnesCount64(b.words[i].Load())
	}
	return n
}

// ClearAll clears every bit. Not safe against concurrent setters.
func (b *AtomicBitset) ClearAll() {
	for i := range b.words {
		b.words[i].Store(0)
	}
}

// Iterate calls fn for each set bit index in ascending order until fn
// returns false.
func (b *AtomicBitset) Iterate(fn func(i int) bool) {
	for wordIdx := range b.words {
		word := b.words[wordIdx].Load()
		base := wordIdx * 64
		for word != 0 {
			tz := bits.TrailingZeros64(word)
			if !fn(base + tz) {
				return
			}
			word &= word - 1
		}
	}
}

func (b *AtomicBitset) index(i int) int {
	if i < 0 || i >= b.size {
		panic("collections: bit index out of range")
	}
	return i / 64
}
