package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPutAndGetObject(t *testing.T) {
	t.Parallel()
	store := NewBlobStore()

	uri, err := store.PutObject(context.Background(), "pdfs/a.pdf", "application/pdf", []byte("%PDF"))
	require.NoError(t, err)
	require.Equal(t, "memory://pdfs/a.pdf", uri)

	data, ok := store.GetObject("pdfs/a.pdf")
	require.True(t, ok)
	require.Equal(t, "%PDF", string(data))

	_, ok = store.GetObject("missing")
	require.False(t, ok)
}

func TestPutObjectCopiesData(t *testing.T) {
	t.Parallel()
	store := NewBlobStore()

	payload := []byte("original")
	_, err := store.PutObject(context.Background(), "a", "", payload)
	require.NoError(t, err)
	payload[0] = 'X'

	data, _ := store.GetObject("a")
	require.Equal(t, "original", string(data))
}
