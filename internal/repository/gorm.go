package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	apperrors "github.com/No1412lee/il2cpp-plus/pkg/errors"
)

// classCountBatch bounds the rows per INSERT statement.
const classCountBatch = 200

// GormScanRepository implements ScanRepository using GORM.
type GormScanRepository struct {
	db *gorm.DB
}

// NewGormScanRepository creates a new GormScanRepository.
func NewGormScanRepository(db *gorm.DB) *GormScanRepository {
	return &GormScanRepository{db: db}
}

// SaveRun inserts run.
func (r *GormScanRepository) SaveRun(ctx context.Context, run *ScanRun) error {
	if run == nil || run.RunID == "" {
		return apperrors.New(apperrors.CodeInvalidInput, "scan run needs a run id")
	}
	if err := r.db.WithContext(ctx).Create(run).Error; err != nil {
		return dbErr("failed to save scan run", err)
	}
	return nil
}

// GetRun retrieves a run by its run ID.
func (r *GormScanRepository) GetRun(ctx context.Context, runID string) (*ScanRun, error) {
	var run ScanRun
	err := r.db.WithContext(ctx).Where("run_id = ?", runID).First(&run).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.Newf(apperrors.CodeNotFound, "scan run not found: %s", runID)
		}
		return nil, dbErr("failed to get scan run", err)
	}
	return &run, nil
}

// ListRuns lists the newest runs.
func (r *GormScanRepository) ListRuns(ctx context.Context, mode string, limit int) ([]*ScanRun, error) {
	q := r.db.WithContext(ctx).Order("id DESC")
	if mode != "" {
		q = q.Where("mode = ?", mode)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}

	var runs []*ScanRun
	if err := q.Find(&runs).Error; err != nil {
		return nil, dbErr("failed to list scan runs", err)
	}
	return runs, nil
}

// UpdateRunStatus updates the status of a run.
func (r *GormScanRepository) UpdateRunStatus(ctx context.Context, runID string, status RunStatus, info string) error {
	result := r.db.WithContext(ctx).
		Model(&ScanRun{}).
		Where("run_id = ?", runID).
		Updates(map[string]interface{}{
			"status":      status,
			"status_info": info,
		})
	if result.Error != nil {
		return dbErr("failed to update scan run", result.Error)
	}
	if result.RowsAffected == 0 {
		return apperrors.Newf(apperrors.CodeNotFound, "scan run not found: %s", runID)
	}
	return nil
}

// SaveClassCounts replaces the stored histogram in one transaction.
func (r *GormScanRepository) SaveClassCounts(ctx context.Context, runID string, counts []ClassCount) error {
	rows := make([]ClassCount, len(counts))
	for i, c := range counts {
		c.ID = 0
		c.RunID = runID
		rows[i] = c
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("run_id = ?", runID).Delete(&ClassCount{}).Error; err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		return tx.CreateInBatches(rows, classCountBatch).Error
	})
	if err != nil {
		return dbErr("failed to save class counts", err)
	}
	return nil
}

// GetClassCounts returns the histogram of a run.
func (r *GormScanRepository) GetClassCounts(ctx context.Context, runID string) ([]ClassCount, error) {
	var counts []ClassCount
	err := r.db.WithContext(ctx).
		Where("run_id = ?", runID).
		Order("instance_count DESC").
		Order("class_name ASC").
		Find(&counts).Error
	if err != nil {
		return nil, dbErr("failed to get class counts", err)
	}
	return counts, nil
}

func dbErr(msg string, err error) error {
	return apperrors.Wrap(apperrors.CodeDatabaseError, msg, err)
}
