package collections

import (
	"fmt"
	"sync"
	"unsafe"

	apperrors "github.com/No1412lee/il2cpp-plus/pkg/errors"
)

// ============================================================================
// Block allocators
// ============================================================================

// Allocator supplies and reclaims the backing storage of arena blocks.
type Allocator[T any] interface {
	// Alloc returns a slice of length n or an error when no memory is left.
	Alloc(n int) ([]T, error)
	// Free returns a slice obtained from Alloc.
	Free(buf []T)
}

// HeapAllocator allocates blocks from the Go heap and lets the garbage
// collector reclaim them.
type HeapAllocator[T any] struct{}

// Alloc implements Allocator.
func (HeapAllocator[T]) Alloc(n int) ([]T, error) {
	return make([]T, n), nil
}

// Free implements Allocator.
func (HeapAllocator[T]) Free([]T) {}

// ============================================================================
// PoolAllocator - Reuses freed blocks across sessions
// ============================================================================

// PoolAllocator recycles blocks of one fixed length through a sync.Pool, so
// that back-to-back sessions reuse the blocks released by the previous one.
// Requests for any other length fall through to the heap.
type PoolAllocator[T any] struct {
	pool     sync.Pool
	blockLen int
}

// NewPoolAllocator creates a pool allocator for blocks of blockLen values.
// blockLen <= 0 selects ElementsPerBlock.
func NewPoolAllocator[T any](blockLen int) *PoolAllocator[T] {
	if blockLen <= 0 {
		blockLen = ElementsPerBlock
	}
	p := &PoolAllocator[T]{blockLen: blockLen}
	p.pool.New = func() interface{} {
		s := make([]T, blockLen)
		return &s
	}
	return p
}

// Alloc implements Allocator.
func (p *PoolAllocator[T]) Alloc(n int) ([]T, error) {
	if n != p.blockLen {
		return make([]T, n), nil
	}
	return *p.pool.Get().(*[]T), nil
}

// Free implements Allocator. The block is zeroed before it is pooled.
func (p *PoolAllocator[T]) Free(buf []T) {
	if cap(buf) < p.blockLen {
		return
	}
	buf = buf[:p.blockLen]
	clear(buf)
	p.pool.Put(&buf)
}

// ============================================================================
// BudgetAllocator - Heap allocation bounded by a byte budget
// ============================================================================

// BudgetAllocator allocates from the heap but refuses requests once the bytes
// held by live blocks would exceed a fixed budget. It is safe for concurrent
// use, so one budget can be shared by every session of a parallel pass.
type BudgetAllocator[T any] struct {
	mu       sync.Mutex
	limit    int64
	used     int64
	peak     int64
	elemSize int64
}

// NewBudgetAllocator creates an allocator limited to limitBytes live bytes.
func NewBudgetAllocator[T any](limitBytes int64) *BudgetAllocator[T] {
	var zero T
	size := int64(unsafe.Sizeof(zero))
	if size == 0 {
		size = 1
	}
	return &BudgetAllocator[T]{limit: limitBytes, elemSize: size}
}

// Alloc implements Allocator.
func (b *BudgetAllocator[T]) Alloc(n int) ([]T, error) {
	need := int64(n) * b.elemSize

	b.mu.Lock()
	if b.used+need > b.limit {
		used := b.used
		b.mu.Unlock()
		return nil, apperrors.Wrap(apperrors.CodeAllocExhausted, "block allocation refused",
			fmt.Errorf("need %d bytes, %d of %d in use", need, used, b.limit))
	}
	b.used += need
	if b.used > b.peak {
		b.peak = b.used
	}
	b.mu.Unlock()

	return make([]T, n), nil
}

// Free implements Allocator.
func (b *BudgetAllocator[T]) Free(buf []T) {
	b.mu.Lock()
	b.used -= int64(len(buf)) * b.elemSize
	if b.used < 0 {
		b.used = 0
	}
	b.mu.Unlock()
}

// Used returns the bytes currently held by live blocks.
func (b *BudgetAllocator[T]) Used() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.used
}

// Peak returns the highest value Used has reached.
func (b *BudgetAllocator[T]) Peak() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.peak
}

// Limit returns the configured budget in bytes.
func (b *BudgetAllocator[T]) Limit() int64 {
	return b.limit
}
