package local

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewRequiresBaseDir(t *testing.T) {
	t.Parallel()
	_, err := New("  ")
	require.Error(t, err)
}

func TestNewCreatesMissingDirectory(t *testing.T) {
	t.Parallel()
	dir := filepath.Join(t.TempDir(), "archive")

	_, err := New(dir)
	require.NoError(t, err)

	info, err := os.Stat(dir)
	require.NoError(t, err)
	require.True(t, info.IsDir())
}

func TestPutObjectWritesFile(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	store, err := New(dir)
	require.NoError(t, err)

	uri, err := store.PutObject(context.Background(), "pdfs/17_SPSC_EXAM_2025.pdf", "application/pdf", []byte("%PDF-1.4"))
	require.NoError(t, err)
	require.Equal(t, "file://"+filepath.Join(dir, "pdfs", "17_SPSC_EXAM_2025.pdf"), uri)

	data, err := os.ReadFile(filepath.Join(dir, "pdfs", "17_SPSC_EXAM_2025.pdf"))
	require.NoError(t, err)
	require.Equal(t, "%PDF-1.4", string(data))
}

func TestPutObjectRejectsTraversal(t *testing.T) {
	t.Parallel()
	store, err := New(t.TempDir())
	require.NoError(t, err)

	_, err = store.PutObject(context.Background(), "../escape.pdf", "application/pdf", []byte("x"))
	require.Error(t, err)
	require.Contains(t, err.Error(), "traversal")
}

func TestPutObjectRejectsEmptyPath(t *testing.T) {
	t.Parallel()
	store, err := New(t.TempDir())
	require.NoError(t, err)

	_, err = store.PutObject(context.Background(), "", "application/pdf", []byte("x"))
	require.Error(t, err)
}
