package report

import (
	"time"

	"github.com/No1412lee/il2cpp-plus/internal/liveness"
	"github.com/No1412lee/il2cpp-plus/pkg/filter"
	"github.com/No1412lee/il2cpp-plus/pkg/utils"
)

// Mode names the kind of scan a summary describes.
type Mode string

const (
	ModeRoot    Mode = "root"
	ModeStatics Mode = "statics"
)

// Summary describes one finished scan.
type Summary struct {
	RunID     string    `json:"run_id"`
	Mode      Mode      `json:"mode"`
	Snapshot  string    `json:"snapshot,omitempty"`
	Filter    string    `json:"filter,omitempty"`
	Root      uint32    `json:"root,omitempty"`
	StartedAt time.Time `json:"started_at"`

	Reported int64        `json:"reported"`
	Classes  []ClassCount `json:"classes"`
	// Hidden counts reported objects of classes left out of Classes.
	Hidden int64 `json:"hidden,omitempty"`

	Stats    liveness.SessionStats `json:"stats"`
	Pass     *liveness.PassResult  `json:"pass,omitempty"`
	Stages   []utils.Stage         `json:"stages,omitempty"`
	Duration time.Duration         `json:"duration"`

	// CostReport is the profiler output when profiling was enabled.
	CostReport string `json:"cost_report,omitempty"`
}

// SummaryOption configures NewSummary.
type SummaryOption func(*Summary)

// WithPass attaches the result of a parallel pass.
func WithPass(res *liveness.PassResult) SummaryOption {
	return func(s *Summary) {
		s.Pass = res
		if res != nil {
			s.Stats = res.Totals
		}
	}
}

// WithStats attaches the counters of a single session.
func WithStats(st liveness.SessionStats) SummaryOption {
	return func(s *Summary) {
		s.Stats = st
	}
}

// WithTimer attaches per-stage timings and the total duration.
func WithTimer(t *utils.StageTimer) SummaryOption {
	return func(s *Summary) {
		if t == nil {
			return
		}
		s.Stages = t.Stages()
		s.Duration = t.Total()
	}
}

// WithCostReport attaches a profiler report.
func WithCostReport(r *liveness.CostRecorder, threshold time.Duration) SummaryOption {
	return func(s *Summary) {
		if r != nil {
			s.CostReport = r.Report(s.Stats.Processed, threshold)
		}
	}
}

// WithCategories labels every class with its category. hideSystem drops
// primitive, corlib and engine classes from the class list; they still count
// towards Reported and the percentages.
func WithCategories(f *filter.ClassFilter, hideSystem bool) SummaryOption {
	return func(s *Summary) {
		if f == nil {
			return
		}
		kept := s.Classes[:0]
		for _, c := range s.Classes {
			cat := f.Classify(c.Class)
			if hideSystem && cat.IsSystem() {
				s.Hidden += c.Count
				continue
			}
			c.Category = cat.String()
			kept = append(kept, c)
		}
		s.Classes = kept
	}
}

// NewSummary builds a summary from a histogram, keeping the topN classes
// left after the options ran.
func NewSummary(runID string, mode Mode, h *Histogram, topN int, opts ...SummaryOption) *Summary {
	s := &Summary{
		RunID:    runID,
		Mode:     mode,
		Reported: h.Total(),
		Classes:  h.Top(0),
	}
	for _, opt := range opts {
		opt(s)
	}
	if topN > 0 && len(s.Classes) > topN {
		s.Classes = s.Classes[:topN]
	}
	return s
}

// Log writes a human readable rendering of s.
func (s *Summary) Log(log utils.Logger) {
	log.Info("=== Liveness Scan %s ===", s.RunID)
	log.Info("mode=%s filter=%q reported=%d duration=%v", s.Mode, s.Filter, s.Reported, s.Duration)
	log.Info("processed=%d discovered=%d traversed=%d stolen=%d",
		s.Stats.Processed, s.Stats.Discovered, s.Stats.Traversed, s.Stats.Stolen)
	if s.Pass != nil {
		log.Info("workers=%d partition=%s", s.Pass.Workers, s.Pass.Partition)
		for i, w := range s.Pass.PerWorker {
			log.Debug("  worker %d: discovered=%d reported=%d stolen=%d", i, w.Discovered, w.Reported, w.Stolen)
		}
	}

	if len(s.Classes) > 0 {
		log.Info("Top classes:")
		for i, c := range s.Classes {
			log.Info("  %2d. %-48s %10d  %6.2f%%  %s", i+1, c.Class, c.Count, c.Percent, c.Category)
		}
	}
	if s.Hidden > 0 {
		log.Info("  (%d objects of system classes hidden)", s.Hidden)
	}
	for _, st := range s.Stages {
		log.Debug("stage %s: %dms", st.Name, st.Millis)
	}
	if s.CostReport != "" {
		log.Info("%s", s.CostReport)
	}
}
