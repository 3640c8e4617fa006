package liveness

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/No1412lee/il2cpp-plus/internal/typesys"
)

// Phase names a profiled step of a scan.
type Phase int

const (
	// PhaseCollectStatics is seeding from the statics of one class.
	PhaseCollectStatics Phase = iota
	// PhaseTraverseObject is visiting the fields or elements of one object.
	PhaseTraverseObject
)

// String returns the label used in cost reports.
func (p Phase) String() string {
	switch p {
	case PhaseCollectStatics:
		return "CollectStaticsByWorker"
	case PhaseTraverseObject:
		return "TraverseGenericObject"
	default:
		return "Unknown"
	}
}

// Profiler receives the time spent per class in each phase. Sessions of a
// parallel pass share one Profiler, so implementations must be safe for
// concurrent use.
type Profiler interface {
	Observe(phase Phase, class string, elapsed time.Duration)
}

// ClassName renders a class the way cost reports show it: the short name,
// arrays as the element name followed by '*', and "_" for nil or unnamed.
func ClassName(c *typesys.Class) string {
	if c == nil {
		return "_"
	}
	if c.IsArray() {
		return ClassName(c.ElementClass) + "*"
	}
	if c.Name == "" {
		return "_"
	}
	return c.Name
}

// CostRecorder keeps the worst observed cost per class and phase.
type CostRecorder struct {
	mu    sync.Mutex
	costs map[Phase]map[string]time.Duration
}

// NewCostRecorder creates an empty recorder.
func NewCostRecorder() *CostRecorder {
	return &CostRecorder{costs: make(map[Phase]map[string]time.Duration)}
}

// Observe implements Profiler.
func (r *CostRecorder) Observe(phase Phase, class string, elapsed time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m := r.costs[phase]
	if m == nil {
		m = make(map[string]time.Duration)
		r.costs[phase] = m
	}
	if cur, ok := m[class]; !ok || cur < elapsed {
		m[class] = elapsed
	}
}

// Cost returns the worst recorded cost of class in phase.
func (r *CostRecorder) Cost(phase Phase, class string) (time.Duration, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.costs[phase][class]
	return d, ok
}

// CostEntry is one line item of a cost report.
type CostEntry struct {
	Class string        `json:"class"`
	Cost  time.Duration `json:"cost"`
}

// Top returns the entries of phase costing at least threshold, most
// expensive first. Ties are ordered by class name.
func (r *CostRecorder) Top(phase Phase, threshold time.Duration) []CostEntry {
	r.mu.Lock()
	entries := make([]CostEntry, 0, len(r.costs[phase]))
	for class, cost := range r.costs[phase] {
		if cost < threshold {
			continue
		}
		entries = append(entries, CostEntry{Class: class, Cost: cost})
	}
	r.mu.Unlock()

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Cost != entries[j].Cost {
			return entries[i].Cost > entries[j].Cost
		}
		return entries[i].Class < entries[j].Class
	})
	return entries
}

// Report renders the recorded costs in milliseconds:
//
//	ProcessObjectCount:<n>
//	CollectStaticsByWorker: A:12 B:3
//	TraverseGenericObject: Node*:40 Node:2
//
// Entries cheaper than threshold are left out. A nil recorder reports that
// profiling is off.
func (r *CostRecorder) Report(processed int64, threshold time.Duration) string {
	if r == nil {
		return "profile off"
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "ProcessObjectCount:%d", processed)
	for _, phase := range []Phase{PhaseCollectStatics, PhaseTraverseObject} {
		fmt.Fprintf(&sb, "\n%s: ", phase)
		for _, e := range r.Top(phase, threshold) {
			fmt.Fprintf(&sb, "%s:%d ", e.Class, e.Cost.Milliseconds())
		}
	}
	return sb.String()
}
