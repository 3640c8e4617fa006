// Package report turns the objects a scan discovers into class histograms
// and run summaries.
package report

import (
	"sort"
	"sync"

	"github.com/No1412lee/il2cpp-plus/internal/liveness"
	"github.com/No1412lee/il2cpp-plus/internal/typesys"
)

// ClassCount is the number of reported instances of one class.
type ClassCount struct {
	Class    string  `json:"class"`
	Count    int64   `json:"count"`
	Percent  float64 `json:"percent"`
	Category string  `json:"category,omitempty"`
}

// Histogram counts reported objects per class. Its Collect method can be
// used as the collector of any number of concurrent sessions.
type Histogram struct {
	rt liveness.Runtime

	mu     sync.Mutex
	counts map[*typesys.Class]int64
	total  int64
}

// NewHistogram creates a histogram resolving classes through rt.
func NewHistogram(rt liveness.Runtime) *Histogram {
	return &Histogram{rt: rt, counts: make(map[*typesys.Class]int64)}
}

// Collect implements liveness.CollectFunc.
func (h *Histogram) Collect(batch []liveness.ObjectRef, _ any) error {
	// resolve outside the lock; the runtime is read-only during a scan
	classes := make([]*typesys.Class, len(batch))
	for i, obj := range batch {
		classes[i] = h.rt.ClassOf(obj)
	}

	h.mu.Lock()
	for _, c := range classes {
		h.counts[c]++
	}
	h.total += int64(len(batch))
	h.mu.Unlock()
	return nil
}

// Total returns the number of objects collected.
func (h *Histogram) Total() int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.total
}

// Count returns the number of collected instances of c.
func (h *Histogram) Count(c *typesys.Class) int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.counts[c]
}

// Top returns the n most frequent classes, most frequent first and ties by
// name. n <= 0 returns every class.
func (h *Histogram) Top(n int) []ClassCount {
	h.mu.Lock()
	out := make([]ClassCount, 0, len(h.counts))
	for c, count := range h.counts {
		out = append(out, ClassCount{Class: className(c), Count: count})
	}
	total := h.total
	h.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Class < out[j].Class
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	if total > 0 {
		for i := range out {
			out[i].Percent = float64(out[i].Count) / float64(total) * 100
		}
	}
	return out
}

// Reset forgets every count.
func (h *Histogram) Reset() {
	h.mu.Lock()
	h.counts = make(map[*typesys.Class]int64)
	h.total = 0
	h.mu.Unlock()
}

func className(c *typesys.Class) string {
	if c == nil {
		return "<unknown>"
	}
	return c.FullName()
}

// ObjectList keeps every reported ref. Batches are copied, so it is safe to
// use as a collector for concurrent sessions.
type ObjectList struct {
	mu   sync.Mutex
	refs []liveness.ObjectRef
}

// Collect implements liveness.CollectFunc.
func (l *ObjectList) Collect(batch []liveness.ObjectRef, _ any) error {
	l.mu.Lock()
	l.refs = append(l.refs, batch...)
	l.mu.Unlock()
	return nil
}

// Refs returns the collected refs in ascending order.
func (l *ObjectList) Refs() []liveness.ObjectRef {
	l.mu.Lock()
	out := append([]liveness.ObjectRef(nil), l.refs...)
	l.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Len returns the number of collected refs.
func (l *ObjectList) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.refs)
}

// Tee returns a collector calling each of fns in turn, stopping at the first
// error.
func Tee(fns ...liveness.CollectFunc) liveness.CollectFunc {
	return func(batch []liveness.ObjectRef, userData any) error {
		for _, fn := range fns {
			if fn == nil {
				continue
			}
			if err := fn(batch, userData); err != nil {
				return err
			}
		}
		return nil
	}
}
