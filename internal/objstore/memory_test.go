package objstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vecgraph/vecgraph/internal/xerrors"
)

func TestMemoryStore_PutGet_RoundTrips(t *testing.T) {
	// Given an empty memory store
	s := NewMemoryStore()
	ctx := context.Background()

	// When a value is put and then read back
	etag, err := s.Put(ctx, "a/b", []byte("hello"), nil)
	require.NoError(t, err)
	obj, err := s.Get(ctx, "a/b")

	// Then the bytes and etag round trip
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), obj.Value)
	assert.Equal(t, etag, obj.ETag)
}

func TestMemoryStore_Get_MissingReturnsNotFound(t *testing.T) {
	// Given an empty store
	s := NewMemoryStore()

	// When reading a path that was never written
	_, err := s.Get(context.Background(), "nope")

	// Then the error is NotFound
	assert.True(t, xerrors.IsNotFound(err))
}

func TestMemoryStore_Put_IfNoneMatchStarRejectsExisting(t *testing.T) {
	// Given a store with an existing object
	s := NewMemoryStore()
	ctx := context.Background()
	_, err := s.Put(ctx, "k", []byte("v1"), nil)
	require.NoError(t, err)

	// When a create-only put targets the same path
	_, err = s.Put(ctx, "k", []byte("v2"), &PutOptions{IfNoneMatch: "*"})

	// Then it is rejected as a conflict
	assert.True(t, xerrors.IsConflict(err))
}

func TestMemoryStore_Put_IfMatchRequiresCurrentETag(t *testing.T) {
	// Given a store with an existing object
	s := NewMemoryStore()
	ctx := context.Background()
	etag, err := s.Put(ctx, "k", []byte("v1"), nil)
	require.NoError(t, err)

	// When updating with a stale etag
	_, err = s.Put(ctx, "k", []byte("v2"), &PutOptions{IfMatch: "stale"})
	assert.True(t, xerrors.IsConflict(err))

	// Then updating with the correct etag succeeds
	_, err = s.Put(ctx, "k", []byte("v2"), &PutOptions{IfMatch: etag})
	assert.NoError(t, err)
}

func TestMemoryStore_Delete_IsIdempotent(t *testing.T) {
	// Given a store with one object
	s := NewMemoryStore()
	ctx := context.Background()
	_, err := s.Put(ctx, "k", []byte("v"), nil)
	require.NoError(t, err)

	// When deleting it twice
	require.NoError(t, s.Delete(ctx, "k"))
	err = s.Delete(ctx, "k")

	// Then neither call errors
	assert.NoError(t, err)
}

func TestMemoryStore_List_FiltersByPrefixInOrder(t *testing.T) {
	// Given several objects under different prefixes
	s := NewMemoryStore()
	ctx := context.Background()
	for _, p := range []string{"a/2", "a/1", "b/1"} {
		_, err := s.Put(ctx, p, []byte("x"), nil)
		require.NoError(t, err)
	}

	// When listing with prefix "a/"
	var seen []string
	err := s.List(ctx, "a/", func(path string) bool {
		seen = append(seen, path)
		return true
	})

	// Then only the matching paths are returned, sorted
	require.NoError(t, err)
	assert.Equal(t, []string{"a/1", "a/2"}, seen)
}

func TestMemoryStore_BatchRead_OmitsMissingPaths(t *testing.T) {
	// Given a store with one of two requested paths present
	s := NewMemoryStore()
	ctx := context.Background()
	_, err := s.Put(ctx, "present", []byte("v"), nil)
	require.NoError(t, err)

	// When batch reading both
	results, err := s.BatchRead(ctx, []string{"present", "absent"})

	// Then only the present path comes back
	require.NoError(t, err)
	assert.Len(t, results, 1)
	assert.Contains(t, results, "present")
}

func TestMemoryStore_BatchDelete_ContinuesOnErrorWhenConfigured(t *testing.T) {
	// Given a store with one object
	s := NewMemoryStore()
	ctx := context.Background()
	_, err := s.Put(ctx, "k", []byte("v"), nil)
	require.NoError(t, err)

	// When batch deleting a mix of present and absent paths
	err = s.BatchDelete(ctx, []string{"k", "missing"}, BatchDeleteOptions{ContinueOnError: true})

	// Then it succeeds, since deleting an absent path is not an error
	assert.NoError(t, err)
}
