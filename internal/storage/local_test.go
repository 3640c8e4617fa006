package storage

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/No1412lee/il2cpp-plus/pkg/errors"
)

func newLocal(t *testing.T) (*LocalStorage, string) {
	t.Helper()
	dir := t.TempDir()
	s, err := NewLocalStorage(dir)
	require.NoError(t, err)
	return s, dir
}

func TestNewLocalStorage(t *testing.T) {
	t.Run("CreatesDirectory", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "nested", "storage")
		s, err := NewLocalStorage(path)
		require.NoError(t, err)
		assert.Equal(t, path, s.GetBasePath())

		info, err := os.Stat(path)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	})

	t.Run("BlockedByFile", func(t *testing.T) {
		file := filepath.Join(t.TempDir(), "file")
		require.NoError(t, os.WriteFile(file, nil, 0644))
		_, err := NewLocalStorage(filepath.Join(file, "storage"))
		assert.Error(t, err)
	})
}

func TestLocalStorage_UploadDownload(t *testing.T) {
	s, dir := newLocal(t)
	ctx := context.Background()
	content := []byte("corlib: mscorlib\n")

	require.NoError(t, s.Upload(ctx, "snapshots/heap.yaml", bytes.NewReader(content)))

	data, err := os.ReadFile(filepath.Join(dir, "snapshots", "heap.yaml"))
	require.NoError(t, err)
	assert.Equal(t, content, data)

	rc, err := s.Download(ctx, "snapshots/heap.yaml")
	require.NoError(t, err)
	got, err := io.ReadAll(rc)
	require.NoError(t, rc.Close())
	require.NoError(t, err)
	assert.Equal(t, content, got)

	// overwrite leaves no temp files behind
	require.NoError(t, s.Upload(ctx, "snapshots/heap.yaml", bytes.NewReader([]byte("v2"))))
	entries, err := os.ReadDir(filepath.Join(dir, "snapshots"))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestLocalStorage_DownloadFile(t *testing.T) {
	s, _ := newLocal(t)
	ctx := context.Background()
	require.NoError(t, s.Upload(ctx, "a/b.json", bytes.NewReader([]byte("{}"))))

	dst := filepath.Join(t.TempDir(), "x", "y", "b.json")
	require.NoError(t, s.DownloadFile(ctx, "a/b.json", dst))
	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "{}", string(data))

	err = s.DownloadFile(ctx, "a/missing.json", dst)
	assert.True(t, apperrors.IsNotFound(err))
}

func TestLocalStorage_Missing(t *testing.T) {
	s, _ := newLocal(t)
	ctx := context.Background()

	_, err := s.Download(ctx, "nope.yaml")
	require.Error(t, err)
	assert.True(t, apperrors.IsNotFound(err))

	ok, err := s.Exists(ctx, "nope.yaml")
	require.NoError(t, err)
	assert.False(t, ok)

	assert.NoError(t, s.Delete(ctx, "nope.yaml"))
}

func TestLocalStorage_ExistsDelete(t *testing.T) {
	s, _ := newLocal(t)
	ctx := context.Background()
	require.NoError(t, s.Upload(ctx, "r/1/summary.json", bytes.NewReader([]byte("x"))))

	ok, err := s.Exists(ctx, "r/1/summary.json")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, s.Delete(ctx, "r/1/summary.json"))
	ok, err = s.Exists(ctx, "r/1/summary.json")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLocalStorage_InvalidKeys(t *testing.T) {
	s, _ := newLocal(t)
	ctx := context.Background()

	for _, key := range []string{"", "../escape", "a/../../escape", "/abs/path"} {
		t.Run(key, func(t *testing.T) {
			err := s.Upload(ctx, key, bytes.NewReader(nil))
			assert.Equal(t, apperrors.CodeInvalidInput, apperrors.GetErrorCode(err))
			_, err = s.Exists(ctx, key)
			assert.Error(t, err)
		})
	}
}

func TestLocalStorage_CanceledContext(t *testing.T) {
	s, _ := newLocal(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, s.Upload(ctx, "k", bytes.NewReader(nil)), context.Canceled)
	_, err := s.Download(ctx, "k")
	assert.ErrorIs(t, err, context.Canceled)
	_, err = s.Exists(ctx, "k")
	assert.ErrorIs(t, err, context.Canceled)
	assert.ErrorIs(t, s.Delete(ctx, "k"), context.Canceled)
}

func TestLocalStorage_GetURL(t *testing.T) {
	s, dir := newLocal(t)
	assert.Equal(t, filepath.Join(dir, "reports", "run", "summary.json"), s.GetURL("reports/run/summary.json"))
}
