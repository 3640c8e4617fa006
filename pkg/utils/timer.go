package utils

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// Stage is one timed step of a pipeline run.
type Stage struct {
	Name     string        `json:"name"`
	Duration time.Duration `json:"-"`
	Millis   int64         `json:"ms"`
	Err      string        `json:"error,omitempty"`
}

// StageTimer records the duration of consecutive pipeline stages in the order
// they were started.
type StageTimer struct {
	mu     sync.Mutex
	name   string
	clock  Clock
	start  time.Time
	stages []Stage
}

// StageTimerOption configures a StageTimer.
type StageTimerOption func(*StageTimer)

// WithClock sets a custom clock for testability.
func WithClock(clock Clock) StageTimerOption {
	return func(t *StageTimer) {
		t.clock = clock
	}
}

// NewStageTimer creates a timer named after the run it measures.
func NewStageTimer(name string, opts ...StageTimerOption) *StageTimer {
	t := &StageTimer{name: name, clock: NewRealClock()}
	for _, opt := range opts {
		opt(t)
	}
	t.start = t.clock.Now()
	return t
}

// Time runs fn as the named stage and records its duration and error.
func (t *StageTimer) Time(name string, fn func() error) error {
	begin := t.clock.Now()
	err := fn()
	elapsed := t.clock.Since(begin)

	st := Stage{Name: name, Duration: elapsed, Millis: elapsed.Milliseconds()}
	if err != nil {
		st.Err = err.Error()
	}

	t.mu.Lock()
	t.stages = append(t.stages, st)
	t.mu.Unlock()
	return err
}

// Stages returns a copy of the recorded stages.
func (t *StageTimer) Stages() []Stage {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Stage, len(t.stages))
	copy(out, t.stages)
	return out
}

// Duration returns the recorded duration of a stage, zero if it never ran.
func (t *StageTimer) Duration(name string) time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, st := range t.stages {
		if st.Name == name {
			return st.Duration
		}
	}
	return 0
}

// Total returns the time elapsed since the timer was created.
func (t *StageTimer) Total() time.Duration {
	return t.clock.Since(t.start)
}

// Summary renders one line per stage.
func (t *StageTimer) Summary() string {
	t.mu.Lock()
	defer t.mu.Unlock()

	var sb strings.Builder
	fmt.Fprintf(&sb, "=== %s stages ===\n", t.name)
	for i, st := range t.stages {
		fmt.Fprintf(&sb, "%d. %s: %v", i+1, st.Name, st.Duration)
		if st.Err != "" {
			fmt.Fprintf(&sb, " (failed: %s)", st.Err)
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

// Log writes the summary through logger at Info level.
func (t *StageTimer) Log(logger Logger) {
	if logger == nil {
		return
	}
	for _, line := range strings.Split(strings.TrimRight(t.Summary(), "\n"), "\n") {
		logger.Info("%s", line)
	}
}
