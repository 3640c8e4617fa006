// Package repository persists scan runs and their class histograms.
package repository

import (
	"context"
)

// ScanRepository stores scan runs.
type ScanRepository interface {
	// SaveRun inserts run and fills in its ID.
	SaveRun(ctx context.Context, run *ScanRun) error

	// GetRun returns the run with the given run ID, or a NOT_FOUND error.
	GetRun(ctx context.Context, runID string) (*ScanRun, error)

	// ListRuns returns up to limit runs, newest first. A mode filters by
	// scan mode when non-empty.
	ListRuns(ctx context.Context, mode string, limit int) ([]*ScanRun, error)

	// UpdateRunStatus sets the status of a stored run.
	UpdateRunStatus(ctx context.Context, runID string, status RunStatus, info string) error

	// SaveClassCounts replaces the histogram stored for runID.
	SaveClassCounts(ctx context.Context, runID string, counts []ClassCount) error

	// GetClassCounts returns the histogram of runID, most frequent first.
	GetClassCounts(ctx context.Context, runID string) ([]ClassCount, error)
}
