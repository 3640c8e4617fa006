package collections

import (
	"sync"
	"testing"
)

func TestAtomicBitset_Basic(t *testing.T) {
	b := NewAtomicBitset(100)

	if b.TestAndSet(0) {
		t.Error("Expected bit 0 to be clear before first set")
	}
	if !b.TestAndSet(0) {
		t.Error("Expected bit 0 to be set on second call")
	}
	b.TestAndSet(50)
	b.TestAndSet(99)

	if !b.Test(50) || !b.Test(99) {
		t.Error("Expected bits 50 and 99 to be set")
	}
	if b.Test(1) {
		t.Error("Expected bit 1 to be clear")
	}
	if b.Count() != 3 {
		t.Errorf("Expected count 3, got %d", b.Count())
	}

	if !b.Clear(50) {
		t.Error("Expected Clear to report bit 50 was set")
	}
	if b.Clear(50) {
		t.Error("Expected second Clear to report bit 50 was clear")
	}
	if b.Count() != 2 {
		t.Errorf("Expected count 2 after Clear, got %d", b.Count())
	}
}

func TestAtomicBitset_OutOfRange(t *testing.T) {
	b := NewAtomicBitset(10)

	if b.Test(-1) || b.Test(10) {
		t.Error("Expected Test outside the range to be false")
	}

	defer func() {
		if recover() == nil {
			t.Error("Expected TestAndSet outside the range to panic")
		}
	}()
	b.TestAndSet(10)
}

func TestAtomicBitset_Iterate(t *testing.T) {
	b := NewAtomicBitset(200)
	for _, i := range []int{3, 64, 65, 199} {
		b.TestAndSet(i)
	}

	var got []int
	b.Iterate(func(i int) bool {
		got = append(got, i)
		return true
	})

	want := []int{3, 64, 65, 199}
	if len(got) != len(want) {
		t.Fatalf("Expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Expected %v, got %v", want, got)
		}
	}

	b.ClearAll()
	if b.Count() != 0 {
		t.Errorf("Expected count 0 after ClearAll, got %d", b.Count())
	}
}

func TestAtomicBitset_ConcurrentTestAndSet(t *testing.T) {
	const size = 4096
	const goroutines = 8

	b := NewAtomicBitset(size)
	winners := make([]int, goroutines)

	var wg sync.WaitGroup
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < size; i++ {
				if !b.TestAndSet(i) {
					winners[g]++
				}
			}
		}(g)
	}
	wg.Wait()

	total := 0
	for _, w := range winners {
		total += w
	}
	if total != size {
		t.Errorf("Expected exactly %d first setters, got %d", size, total)
	}
	if b.Count() != size {
		t.Errorf("Expected count %d, got %d", size, b.Count())
	}
}
