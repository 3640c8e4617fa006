package repository

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"

	"github.com/No1412lee/il2cpp-plus/internal/report"
)

// RunStatus is the outcome of a scan run.
type RunStatus string

const (
	RunStatusSucceeded RunStatus = "succeeded"
	RunStatusFailed    RunStatus = "failed"
)

// ScanRun is one row of scan_runs.
type ScanRun struct {
	ID         int64     `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	RunID      string    `gorm:"column:run_id;type:varchar(64);uniqueIndex" json:"run_id"`
	Mode       string    `gorm:"column:mode;type:varchar(16)" json:"mode"`
	Snapshot   string    `gorm:"column:snapshot;type:varchar(512)" json:"snapshot"`
	Filter     string    `gorm:"column:filter;type:varchar(256)" json:"filter"`
	Workers    int       `gorm:"column:workers" json:"workers"`
	Partition  string    `gorm:"column:partition_mode;type:varchar(16)" json:"partition"`
	Processed  int64     `gorm:"column:processed" json:"processed"`
	Discovered int64     `gorm:"column:discovered" json:"discovered"`
	Traversed  int64     `gorm:"column:traversed" json:"traversed"`
	Reported   int64     `gorm:"column:reported" json:"reported"`
	Stolen     int64     `gorm:"column:stolen" json:"stolen"`
	DurationMs int64     `gorm:"column:duration_ms" json:"duration_ms"`
	Status     RunStatus `gorm:"column:status;type:varchar(16);index" json:"status"`
	StatusInfo string    `gorm:"column:status_info;type:text" json:"status_info,omitempty"`
	ReportURL  string    `gorm:"column:report_url;type:varchar(512)" json:"report_url,omitempty"`
	Stages     JSONField `gorm:"column:stages;type:json" json:"stages,omitempty"`
	CreatedAt  time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

// TableName returns the table name for ScanRun.
func (ScanRun) TableName() string {
	return "scan_runs"
}

// ClassCount is one row of scan_class_counts: the reported instances of
// one class in one run.
type ClassCount struct {
	ID       int64   `gorm:"column:id;primaryKey;autoIncrement" json:"-"`
	RunID    string  `gorm:"column:run_id;type:varchar(64);index" json:"run_id"`
	Class    string  `gorm:"column:class_name;type:varchar(512)" json:"class"`
	Count    int64   `gorm:"column:instance_count" json:"count"`
	Percent  float64 `gorm:"column:percent" json:"percent"`
	Category string  `gorm:"column:category;type:varchar(32)" json:"category,omitempty"`
}

// TableName returns the table name for ClassCount.
func (ClassCount) TableName() string {
	return "scan_class_counts"
}

// NewScanRun converts a finished summary into a row.
func NewScanRun(s *report.Summary, status RunStatus, info string) *ScanRun {
	run := &ScanRun{
		RunID:      s.RunID,
		Mode:       string(s.Mode),
		Snapshot:   s.Snapshot,
		Filter:     s.Filter,
		Workers:    1,
		Processed:  s.Stats.Processed,
		Discovered: s.Stats.Discovered,
		Traversed:  s.Stats.Traversed,
		Reported:   s.Reported,
		Stolen:     s.Stats.Stolen,
		DurationMs: s.Duration.Milliseconds(),
		Status:     status,
		StatusInfo: info,
	}
	if s.Pass != nil {
		run.Workers = s.Pass.Workers
		run.Partition = s.Pass.Partition
	}
	if len(s.Stages) > 0 {
		// Stage only holds strings and numbers
		run.Stages, _ = json.Marshal(s.Stages)
	}
	return run
}

// NewClassCounts converts histogram entries into rows for runID.
func NewClassCounts(runID string, classes []report.ClassCount) []ClassCount {
	out := make([]ClassCount, len(classes))
	for i, c := range classes {
		out[i] = ClassCount{RunID: runID, Class: c.Class, Count: c.Count, Percent: c.Percent, Category: c.Category}
	}
	return out
}

// JSONField stores raw JSON in a json/text column.
type JSONField []byte

// Value implements driver.Valuer interface.
func (j JSONField) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return []byte(j), nil
}

// Scan implements sql.Scanner interface.
func (j *JSONField) Scan(value interface{}) error {
	switch v := value.(type) {
	case nil:
		*j = nil
	case []byte:
		*j = append((*j)[0:0], v...)
	case string:
		*j = []byte(v)
	default:
		return errors.New("unsupported type for JSONField")
	}
	return nil
}

// MarshalJSON implements json.Marshaler interface.
func (j JSONField) MarshalJSON() ([]byte, error) {
	if j == nil {
		return []byte("null"), nil
	}
	return j, nil
}

// UnmarshalJSON implements json.Unmarshaler interface.
func (j *JSONField) UnmarshalJSON(data []byte) error {
	if data == nil || string(data) == "null" {
		*j = nil
		return nil
	}
	*j = append((*j)[0:0], data...)
	return nil
}
