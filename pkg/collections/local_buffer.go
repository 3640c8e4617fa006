package collections

// LocalBufferSize is the default capacity of a worker's private buffer.
const LocalBufferSize = 256

// LocalBuffer is a fixed-capacity LIFO owned by a single goroutine. It sits in
// front of a shared BlockArray so that most pushes and pops never take the
// shared lock.
type LocalBuffer[T any] struct {
	data []T
	n    int
}

// NewLocalBuffer creates a buffer holding up to capacity values.
// capacity <= 0 selects LocalBufferSize.
func NewLocalBuffer[T any](capacity int) *LocalBuffer[T] {
	if capacity <= 0 {
		capacity = LocalBufferSize
	}
	return &LocalBuffer[T]{data: make([]T, capacity)}
}

// Push stores v and reports whether the buffer is now full. Pushing into a
// full buffer panics; callers flush when Push returns true.
func (b *LocalBuffer[T]) Push(v T) (full bool) {
	b.data[b.n] = v
	b.n++
	return b.n == len(b.data)
}

// Pop removes and returns the most recently pushed value.
func (b *LocalBuffer[T]) Pop() (T, bool) {
	if b.n == 0 {
		var zero T
		return zero, false
	}
	b.n--
	return b.data[b.n], true
}

// Len returns the number of buffered values.
func (b *LocalBuffer[T]) Len() int { return b.n }

// Cap returns the buffer capacity.
func (b *LocalBuffer[T]) Cap() int { return len(b.data) }

// Full reports whether another Push would overflow.
func (b *LocalBuffer[T]) Full() bool { return b.n == len(b.data) }

// Reset drops every buffered value.
func (b *LocalBuffer[T]) Reset() { b.n = 0 }

// FlushTo moves every buffered value into dst under a single acquisition of
// dst's lock. Values are moved top first. On allocator failure the values not
// yet moved stay in the buffer.
func (b *LocalBuffer[T]) FlushTo(dst *BlockArray[T]) (int, error) {
	dst.Lock()
	defer dst.Unlock()

	moved := 0
	for b.n > 0 {
		if err := dst.PushNoLock(b.data[b.n-1]); err != nil {
			return moved, err
		}
		b.n--
		moved++
	}
	return moved, nil
}
