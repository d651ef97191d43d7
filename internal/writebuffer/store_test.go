package writebuffer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vecgraph/vecgraph/internal/objstore"
)

// cloudLikeStore wraps objstore.NewMemoryStore but reports itself as
// cloud storage, so BufferedStore exercises the coalescing path in
// tests without a real cloud backend.
type cloudLikeStore struct {
	objstore.Store
}

func (c cloudLikeStore) IsCloudStorage() bool { return true }

func newTestBufferedStore() (*BufferedStore, objstore.Store) {
	backend := cloudLikeStore{objstore.NewMemoryStore()}
	cfg := DefaultConfig()
	cfg.MaxBufferSize = 1000 // large enough that tests control flush timing explicitly
	cfg.FlushInterval = 0
	return NewBufferedStore(backend, cfg), backend
}

func TestBufferedStore_Put_IsVisibleBeforeFlush_ViaShadow(t *testing.T) {
	ctx := context.Background()
	s, backend := newTestBufferedStore()

	_, err := s.Put(ctx, "a", []byte("v1"), nil)
	require.NoError(t, err)

	obj, err := s.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "v1", string(obj.Value))

	_, err = backend.Get(ctx, "a")
	assert.Error(t, err, "unflushed write must not yet be visible on the real backend")
}

func TestBufferedStore_Flush_CommitsPendingWritesToBackend(t *testing.T) {
	ctx := context.Background()
	s, backend := newTestBufferedStore()

	_, err := s.Put(ctx, "a", []byte("v1"), nil)
	require.NoError(t, err)
	require.NoError(t, s.Flush(ctx))

	obj, err := backend.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "v1", string(obj.Value))
}

func TestBufferedStore_Put_LastWriteWinsBeforeFlush(t *testing.T) {
	ctx := context.Background()
	s, backend := newTestBufferedStore()

	_, err := s.Put(ctx, "a", []byte("v1"), nil)
	require.NoError(t, err)
	_, err = s.Put(ctx, "a", []byte("v2"), nil)
	require.NoError(t, err)
	require.NoError(t, s.Flush(ctx))

	obj, err := backend.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "v2", string(obj.Value))
}

func TestBufferedStore_ConditionedPut_BypassesBufferingAndWritesThrough(t *testing.T) {
	ctx := context.Background()
	s, backend := newTestBufferedStore()

	_, err := s.Put(ctx, "a", []byte("v1"), &objstore.PutOptions{IfNoneMatch: "*"})
	require.NoError(t, err)

	obj, err := backend.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "v1", string(obj.Value))
}

func TestBufferedStore_Delete_ClearsShadowAndBackend(t *testing.T) {
	ctx := context.Background()
	s, backend := newTestBufferedStore()

	_, err := s.Put(ctx, "a", []byte("v1"), nil)
	require.NoError(t, err)
	require.NoError(t, s.Flush(ctx))

	require.NoError(t, s.Delete(ctx, "a"))

	_, err = s.Get(ctx, "a")
	assert.Error(t, err)
	_, err = backend.Get(ctx, "a")
	assert.Error(t, err)
}
