package collections

import "sync"

// ============================================================================
// BlockArray - Growable block-chunked sequence
// ============================================================================

const (
	// BlockBytes is the byte size of one arena block, header included.
	BlockBytes = 8 * 1024

	// ElementsPerBlock is the number of word-sized values one block holds:
	// the block size minus the cursor and the two chain links.
	ElementsPerBlock = (BlockBytes - 3*8) / 8
)

type block[T any] struct {
	data   []T
	cursor int
	prev   *block[T]
	next   *block[T]
}

// BlockArray is a growable sequence of fixed-capacity blocks. It is used both
// as a LIFO stack (Push/Pop) and as an append-only log walked by an
// independent iterator (Next/ResetIterator).
//
// Capacity only grows: Clear resets cursors but keeps every block, so a
// BlockArray reused across many traversals stops allocating once it has
// reached its high-water mark. Blocks come from the supplied Allocator and are
// returned to it only by Destroy.
//
// The locked methods (Push, Pop, Count) may be called from any goroutine. The
// NoLock variants require the caller to own the array or to hold Lock.
type BlockArray[T any] struct {
	mu       sync.Mutex
	alloc    Allocator[T]
	perBlock int

	first   *block[T]
	current *block[T]
	count   int
	blocks  int

	iterBlock *block[T]
	iterPos   int
}

// NewBlockArray creates a block array whose blocks hold perBlock values.
// perBlock <= 0 selects ElementsPerBlock. The first block is allocated
// eagerly, so allocator exhaustion surfaces here.
func NewBlockArray[T any](alloc Allocator[T], perBlock int) (*BlockArray[T], error) {
	if alloc == nil {
		alloc = HeapAllocator[T]{}
	}
	if perBlock <= 0 {
		perBlock = ElementsPerBlock
	}
	a := &BlockArray[T]{alloc: alloc, perBlock: perBlock}
	b, err := a.newBlock(nil)
	if err != nil {
		return nil, err
	}
	a.first = b
	a.current = b
	a.iterBlock = b
	return a, nil
}

func (a *BlockArray[T]) newBlock(prev *block[T]) (*block[T], error) {
	buf, err := a.alloc.Alloc(a.perBlock)
	if err != nil {
		return nil, err
	}
	a.blocks++
	return &block[T]{data: buf[:a.perBlock], prev: prev}, nil
}

// Lock acquires the array's mutex for a sequence of NoLock calls.
func (a *BlockArray[T]) Lock() { a.mu.Lock() }

// Unlock releases the mutex acquired by Lock.
func (a *BlockArray[T]) Unlock() { a.mu.Unlock() }

// Push appends v under the array lock.
func (a *BlockArray[T]) Push(v T) error {
	a.mu.Lock()
	err := a.PushNoLock(v)
	a.mu.Unlock()
	return err
}

// PushNoLock appends v. When the current block is full it moves to the next
// block in the chain, allocating one if the chain ends.
func (a *BlockArray[T]) PushNoLock(v T) error {
	if a.current.cursor == len(a.current.data) {
		nb := a.current.next
		if nb == nil {
			var err error
			nb, err = a.newBlock(a.current)
			if err != nil {
				return err
			}
			a.current.next = nb
		}
		a.current = nb
	}
	a.current.data[a.current.cursor] = v
	a.current.cursor++
	a.count++
	return nil
}

// Pop removes and returns the most recently pushed value under the array lock.
func (a *BlockArray[T]) Pop() (T, bool) {
	a.mu.Lock()
	v, ok := a.PopNoLock()
	a.mu.Unlock()
	return v, ok
}

// PopNoLock removes and returns the most recently pushed value. An empty
// current block steps back to its predecessor, which is full by construction.
func (a *BlockArray[T]) PopNoLock() (T, bool) {
	if a.current.cursor == 0 {
		if a.current.prev == nil {
			var zero T
			return zero, false
		}
		a.current = a.current.prev
		a.current.cursor = len(a.current.data)
	}
	a.count--
	a.current.cursor--
	return a.current.data[a.current.cursor], true
}

// IsEmpty reports whether the first block holds nothing. Pop always drains
// back towards the first block, so this matches "no values held".
func (a *BlockArray[T]) IsEmpty() bool {
	return a.first.cursor == 0
}

// Count returns the number of held values, read under the array lock.
func (a *BlockArray[T]) Count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.count
}

// CountNoLock returns the number of held values without locking.
func (a *BlockArray[T]) CountNoLock() int {
	return a.count
}

// Blocks returns the number of blocks currently allocated.
func (a *BlockArray[T]) Blocks() int {
	return a.blocks
}

// Reserve grows the chain until it can hold n values without allocating.
func (a *BlockArray[T]) Reserve(n int) error {
	last := a.first
	for last.next != nil {
		last = last.next
	}
	for a.blocks*a.perBlock < n {
		nb, err := a.newBlock(last)
		if err != nil {
			return err
		}
		last.next = nb
		last = nb
	}
	return nil
}

// ResetIterator rewinds the iterator to the first pushed value.
func (a *BlockArray[T]) ResetIterator() {
	a.iterBlock = a.first
	a.iterPos = 0
}

// Next returns the next value in push order. The iterator is independent of
// Push/Pop and keeps its position across calls, so values pushed after the
// iterator reached the end are returned by later calls. It is meant for
// append-only use; popping below the iterator position is not supported.
func (a *BlockArray[T]) Next() (T, bool) {
	for {
		if a.iterPos < a.iterBlock.cursor {
			v := a.iterBlock.data[a.iterPos]
			a.iterPos++
			return v, true
		}
		nb := a.iterBlock.next
		if nb == nil || nb.cursor == 0 || a.iterPos < len(a.iterBlock.data) {
			var zero T
			return zero, false
		}
		a.iterBlock = nb
		a.iterPos = 0
	}
}

// Clear empties the array and rewinds the iterator. Blocks stay allocated.
func (a *BlockArray[T]) Clear() {
	for b := a.first; b != nil; b = b.next {
		b.cursor = 0
	}
	a.current = a.first
	a.count = 0
	a.ResetIterator()
}

// Destroy returns every block to the allocator. The array must not be used
// afterwards.
func (a *BlockArray[T]) Destroy() {
	b := a.first
	for b != nil {
		next := b.next
		a.alloc.Free(b.data)
		b.data = nil
		b.prev, b.next = nil, nil
		b = next
	}
	a.first, a.current, a.iterBlock = nil, nil, nil
	a.count = 0
	a.blocks = 0
}
