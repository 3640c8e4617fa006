package mock

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/No1412lee/il2cpp-plus/internal/repository"
)

// MockScanRepository is a mock implementation of the ScanRepository interface.
type MockScanRepository struct {
	mock.Mock
}

// SaveRun mocks the SaveRun method.
func (m *MockScanRepository) SaveRun(ctx context.Context, run *repository.ScanRun) error {
	args := m.Called(ctx, run)
	return args.Error(0)
}

// GetRun mocks the GetRun method.
func (m *MockScanRepository) GetRun(ctx context.Context, runID string) (*repository.ScanRun, error) {
	args := m.Called(ctx, runID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*repository.ScanRun), args.Error(1)
}

// ListRuns mocks the ListRuns method.
func (m *MockScanRepository) ListRuns(ctx context.Context, mode string, limit int) ([]*repository.ScanRun, error) {
	args := m.Called(ctx, mode, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*repository.ScanRun), args.Error(1)
}

// UpdateRunStatus mocks the UpdateRunStatus method.
func (m *MockScanRepository) UpdateRunStatus(ctx context.Context, runID string, status repository.RunStatus, info string) error {
	args := m.Called(ctx, runID, status, info)
	return args.Error(0)
}

// SaveClassCounts mocks the SaveClassCounts method.
func (m *MockScanRepository) SaveClassCounts(ctx context.Context, runID string, counts []repository.ClassCount) error {
	args := m.Called(ctx, runID, counts)
	return args.Error(0)
}

// GetClassCounts mocks the GetClassCounts method.
func (m *MockScanRepository) GetClassCounts(ctx context.Context, runID string) ([]repository.ClassCount, error) {
	args := m.Called(ctx, runID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]repository.ClassCount), args.Error(1)
}

// ExpectSaveRun expects a run with the given status to be saved.
func (m *MockScanRepository) ExpectSaveRun(status repository.RunStatus, err error) *mock.Call {
	return m.On("SaveRun", mock.Anything, mock.MatchedBy(func(r *repository.ScanRun) bool {
		return r != nil && r.Status == status
	})).Return(err)
}

// ExpectSaveClassCounts expects the histogram of runID to be saved.
func (m *MockScanRepository) ExpectSaveClassCounts(runID string, err error) *mock.Call {
	return m.On("SaveClassCounts", mock.Anything, runID, mock.Anything).Return(err)
}
