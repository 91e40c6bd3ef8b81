package attachments

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiskStoreRoundTrip(t *testing.T) {
	store, err := NewDiskStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	n, err := store.Store(ctx, "key-1", strings.NewReader("encrypted bytes"))
	require.NoError(t, err)
	assert.Equal(t, int64(len("encrypted bytes")), n)

	result := store.Open(ctx, "key-1")
	require.Equal(t, ReadOK, result.Status)
	body, err := io.ReadAll(result.Body)
	require.NoError(t, err)
	require.NoError(t, result.Body.Close())
	assert.Equal(t, "encrypted bytes", string(body))
}

func TestDiskStoreOpenMissingKey(t *testing.T) {
	store, err := NewDiskStore(t.TempDir())
	require.NoError(t, err)

	result := store.Open(context.Background(), "never-written")
	assert.Equal(t, ReadNotFound, result.Status)
	assert.Nil(t, result.Body)
	assert.Nil(t, result.Err)
}

func TestDiskStoreRejectsDuplicateKey(t *testing.T) {
	store, err := NewDiskStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	_, err = store.Store(ctx, "dup", strings.NewReader("first"))
	require.NoError(t, err)

	// Keys are single-use; a second write must not clobber the first.
	_, err = store.Store(ctx, "dup", strings.NewReader("second"))
	assert.Error(t, err)

	result := store.Open(ctx, "dup")
	require.Equal(t, ReadOK, result.Status)
	body, _ := io.ReadAll(result.Body)
	result.Body.Close()
	assert.Equal(t, "first", string(body))
}

func TestDiskStoreDeleteIsIdempotent(t *testing.T) {
	store, err := NewDiskStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	_, err = store.Store(ctx, "gone", strings.NewReader("x"))
	require.NoError(t, err)

	assert.NoError(t, store.Delete(ctx, "gone"))
	assert.NoError(t, store.Delete(ctx, "gone"))
	assert.Equal(t, ReadNotFound, store.Open(ctx, "gone").Status)
}

func TestDiskStoreStripsPathComponents(t *testing.T) {
	store, err := NewDiskStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	_, err = store.Store(ctx, "../../etc/passwd", strings.NewReader("x"))
	require.NoError(t, err)

	// The traversal collapses to the base name inside the root.
	result := store.Open(ctx, "passwd")
	assert.Equal(t, ReadOK, result.Status)
	if result.Body != nil {
		result.Body.Close()
	}
}
