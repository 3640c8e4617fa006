// Package storage fetches snapshots and stores scan reports in object storage.
package storage

import (
	"context"
	"io"
	"path"
	"strings"

	"github.com/No1412lee/il2cpp-plus/pkg/config"
	apperrors "github.com/No1412lee/il2cpp-plus/pkg/errors"
)

// Storage is a flat key/value object store.
type Storage interface {
	// Upload stores everything read from reader under key.
	Upload(ctx context.Context, key string, reader io.Reader) error

	// Download opens the object at key. Missing objects yield a NOT_FOUND error.
	Download(ctx context.Context, key string) (io.ReadCloser, error)

	// DownloadFile copies the object at key to localPath.
	DownloadFile(ctx context.Context, key string, localPath string) error

	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)

	// GetURL returns where key can be fetched from.
	GetURL(key string) string
}

// StorageType represents the type of storage backend.
type StorageType string

const (
	StorageTypeLocal StorageType = "local"
	StorageTypeCOS   StorageType = "cos"
)

// NewStorage creates a Storage from configuration. An empty type is local.
func NewStorage(cfg *config.StorageConfig) (Storage, error) {
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}

	switch StorageType(cfg.Type) {
	case StorageTypeCOS:
		return NewCOSStorage(&COSConfig{
			Bucket:    cfg.Bucket,
			Region:    cfg.Region,
			SecretID:  cfg.SecretID,
			SecretKey: cfg.SecretKey,
			Domain:    cfg.Domain,
			Scheme:    cfg.Scheme,
		})
	default:
		return NewLocalStorage(cfg.LocalPath)
	}
}

// ValidateConfig validates the storage configuration.
func ValidateConfig(cfg *config.StorageConfig) error {
	if cfg == nil {
		return apperrors.New(apperrors.CodeConfigError, "storage config is nil")
	}

	switch StorageType(cfg.Type) {
	case "", StorageTypeLocal:
		if cfg.LocalPath == "" {
			return apperrors.New(apperrors.CodeConfigError, "local storage path is required")
		}
	case StorageTypeCOS:
		if cfg.Bucket == "" {
			return apperrors.New(apperrors.CodeConfigError, "COS bucket is required")
		}
		if cfg.Region == "" {
			return apperrors.New(apperrors.CodeConfigError, "COS region is required")
		}
		if cfg.SecretID == "" || cfg.SecretKey == "" {
			return apperrors.New(apperrors.CodeConfigError, "COS credentials are required")
		}
	default:
		return apperrors.Newf(apperrors.CodeConfigError, "unsupported storage type: %s", cfg.Type)
	}
	return nil
}

// ReportKey returns the key a run's summary is stored under, keeping the
// extension of name so readers can pick the codec.
func ReportKey(prefix, runID, name string) string {
	return path.Join(strings.Trim(prefix, "/"), runID, name)
}
