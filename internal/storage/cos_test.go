package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/No1412lee/il2cpp-plus/pkg/config"
	apperrors "github.com/No1412lee/il2cpp-plus/pkg/errors"
)

func TestNewCOSStorage_Validation(t *testing.T) {
	tests := []struct {
		name string
		cfg  COSConfig
		want string
	}{
		{"MissingBucket", COSConfig{Region: "ap-guangzhou", SecretID: "id", SecretKey: "key"}, "bucket and region are required"},
		{"MissingRegion", COSConfig{Bucket: "b", SecretID: "id", SecretKey: "key"}, "bucket and region are required"},
		{"MissingCredentials", COSConfig{Bucket: "b", Region: "ap-guangzhou"}, "credentials are required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := NewCOSStorage(&tt.cfg)
			require.Error(t, err)
			assert.Nil(t, s)
			assert.Contains(t, err.Error(), tt.want)
			assert.Equal(t, apperrors.CodeConfigError, apperrors.GetErrorCode(err))
		})
	}
}

func TestCOSStorage_GetURL(t *testing.T) {
	t.Run("Defaults", func(t *testing.T) {
		s, err := NewCOSStorage(&COSConfig{Bucket: "heaps-1250000000", Region: "ap-guangzhou", SecretID: "id", SecretKey: "key"})
		require.NoError(t, err)
		assert.Equal(t, "https://heaps-1250000000.cos.ap-guangzhou.myqcloud.com/reports/r1/summary.json",
			s.GetURL("reports/r1/summary.json"))
	})

	t.Run("CustomDomainAndScheme", func(t *testing.T) {
		s, err := NewCOSStorage(&COSConfig{
			Bucket: "b", Region: "r", SecretID: "id", SecretKey: "key",
			Domain: "example.internal", Scheme: "http",
		})
		require.NoError(t, err)
		assert.Equal(t, "http://b.cos.r.example.internal/k", s.GetURL("k"))
	})
}

func TestNewStorage(t *testing.T) {
	t.Run("Local", func(t *testing.T) {
		s, err := NewStorage(&config.StorageConfig{Type: "local", LocalPath: t.TempDir()})
		require.NoError(t, err)
		assert.IsType(t, &LocalStorage{}, s)
	})

	t.Run("EmptyTypeIsLocal", func(t *testing.T) {
		s, err := NewStorage(&config.StorageConfig{LocalPath: t.TempDir()})
		require.NoError(t, err)
		assert.IsType(t, &LocalStorage{}, s)
	})

	t.Run("COS", func(t *testing.T) {
		s, err := NewStorage(&config.StorageConfig{
			Type: "cos", Bucket: "b", Region: "r", SecretID: "id", SecretKey: "key",
		})
		require.NoError(t, err)
		assert.IsType(t, &COSStorage{}, s)
	})
}

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  *config.StorageConfig
		want string
	}{
		{"Nil", nil, "storage config is nil"},
		{"Unsupported", &config.StorageConfig{Type: "s3"}, "unsupported storage type"},
		{"LocalWithoutPath", &config.StorageConfig{Type: "local"}, "local storage path is required"},
		{"COSWithoutBucket", &config.StorageConfig{Type: "cos", Region: "r"}, "COS bucket is required"},
		{"COSWithoutRegion", &config.StorageConfig{Type: "cos", Bucket: "b"}, "COS region is required"},
		{"COSWithoutSecret", &config.StorageConfig{Type: "cos", Bucket: "b", Region: "r", SecretID: "id"}, "COS credentials are required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateConfig(tt.cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestReportKey(t *testing.T) {
	assert.Equal(t, "reports/r1/summary.json.gz", ReportKey("/reports/", "r1", "summary.json.gz"))
	assert.Equal(t, "r1/summary.json", ReportKey("", "r1", "summary.json"))
}
