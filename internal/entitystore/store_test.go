package entitystore

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vecgraph/vecgraph/internal/objstore"
)

func newTestStore(t *testing.T) (*Store, objstore.Store) {
	t.Helper()
	backend := objstore.NewMemoryStore()
	s, err := Open(context.Background(), backend, 1<<20, nil)
	require.NoError(t, err)
	return s, backend
}

func TestPutNoun_ThenGetNoun_RoundTrips(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)
	id := uuid.New()

	n := Noun{ID: id, Type: "Concept", Vector: []float32{0.1, 0.2, 0.3}, Metadata: map[string]interface{}{"score": 0.5}}
	require.NoError(t, s.PutNoun(ctx, n))

	got, err := s.GetNoun(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Concept", got.Type)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, got.Vector)
	assert.Equal(t, 0.5, got.Metadata["score"])
}

func TestGetNoun_MissingReturnsEmptyNotError(t *testing.T) {
	// The vector file absent means the noun never existed; GetNoun
	// here surfaces it as an empty, vector-less Noun rather than a
	// hard error, leaving "does this exist" to the caller's id-map
	// lookup (C1), which is the authoritative existence check.
	ctx := context.Background()
	s, _ := newTestStore(t)
	got, err := s.GetNoun(ctx, uuid.New())
	require.NoError(t, err)
	assert.False(t, got.HasVector())
}

func TestGetNoun_EmptyVectorRecordIsNeverCached(t *testing.T) {
	// Given a noun vector record written with an empty vector (the
	// lazy-load sentinel)
	ctx := context.Background()
	s, _ := newTestStore(t)
	id := uuid.New()
	require.NoError(t, s.PutNoun(ctx, Noun{ID: id, Type: "Concept", Vector: nil, Metadata: map[string]interface{}{}}))

	// When read back
	_, err := s.GetNoun(ctx, id)
	require.NoError(t, err)

	// Then the cache never holds it (spec §5's cache-poisoning guard)
	_, ok := s.nouns.Get(id)
	assert.False(t, ok)
}

func TestDeleteNoun_RemovesBothRecordsAndUncaches(t *testing.T) {
	ctx := context.Background()
	s, backend := newTestStore(t)
	id := uuid.New()
	require.NoError(t, s.PutNoun(ctx, Noun{ID: id, Type: "Concept", Vector: []float32{1, 2}, Metadata: map[string]interface{}{}}))

	require.NoError(t, s.DeleteNoun(ctx, id, "Concept"))

	_, err := backend.Get(ctx, nounVectorPath(id))
	assert.Error(t, err)
	_, err = backend.Get(ctx, nounMetadataPath(id))
	assert.Error(t, err)
	_, ok := s.nouns.Get(id)
	assert.False(t, ok)
}

func TestPutVerb_CarriesCoreFieldsInVectorRecordWithoutMetadataLoad(t *testing.T) {
	ctx := context.Background()
	s, backend := newTestStore(t)
	src, dst := uuid.New(), uuid.New()
	id := uuid.New()
	v := Verb{ID: id, Type: "RelatesTo", Source: src, Target: dst, Vector: []float32{0.5}, Metadata: map[string]interface{}{"weight": 1.0}}
	require.NoError(t, s.PutVerb(ctx, v))

	// The vector file alone carries source/target/type: graph
	// traversal should never need the metadata file (spec §6).
	obj, err := backend.Get(ctx, verbVectorPath(id))
	require.NoError(t, err)
	assert.Contains(t, string(obj.Value), src.String())
	assert.Contains(t, string(obj.Value), dst.String())
	assert.Contains(t, string(obj.Value), "RelatesTo")

	got, err := s.GetVerb(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, src, got.Source)
	assert.Equal(t, dst, got.Target)
}

func TestCounts_TrackTotalsAndPerType(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)
	require.NoError(t, s.PutNoun(ctx, Noun{ID: uuid.New(), Type: "Concept", Vector: []float32{1}, Metadata: map[string]interface{}{}}))
	require.NoError(t, s.PutNoun(ctx, Noun{ID: uuid.New(), Type: "Concept", Vector: []float32{1}, Metadata: map[string]interface{}{}}))
	require.NoError(t, s.PutNoun(ctx, Noun{ID: uuid.New(), Type: "Person", Vector: []float32{1}, Metadata: map[string]interface{}{}}))

	c := s.Counts()
	assert.EqualValues(t, 3, c.TotalNounCount)
	assert.EqualValues(t, 2, c.PerNounType["Concept"])
	assert.EqualValues(t, 1, c.PerNounType["Person"])
}

func TestCounts_PersistAcrossReopen(t *testing.T) {
	ctx := context.Background()
	backend := objstore.NewMemoryStore()
	s, err := Open(ctx, backend, 1<<20, nil)
	require.NoError(t, err)
	require.NoError(t, s.PutNoun(ctx, Noun{ID: uuid.New(), Type: "Concept", Vector: []float32{1}, Metadata: map[string]interface{}{}}))
	require.NoError(t, s.Flush(ctx))

	reopened, err := Open(ctx, backend, 1<<20, nil)
	require.NoError(t, err)
	assert.EqualValues(t, 1, reopened.Counts().TotalNounCount)
}

func TestCounts_ReconstructedFromPrefixScanWhenRecordMissing(t *testing.T) {
	// Given nouns written directly to the backend without ever calling
	// PutNoun (simulating a store whose counts.json was lost)
	ctx := context.Background()
	backend := objstore.NewMemoryStore()
	for i := 0; i < 3; i++ {
		id := uuid.New()
		data, err := encodeNounMetadata(Noun{Type: "Concept"})
		require.NoError(t, err)
		_, err = backend.Put(ctx, nounMetadataPath(id), data, nil)
		require.NoError(t, err)
	}

	s, err := Open(ctx, backend, 1<<20, nil)
	require.NoError(t, err)
	assert.EqualValues(t, 3, s.Counts().TotalNounCount)
}

func TestListNouns_PaginatesWithOpaqueCursor(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)
	for i := 0; i < 5; i++ {
		require.NoError(t, s.PutNoun(ctx, Noun{ID: uuid.New(), Type: "Concept", Vector: []float32{1}, Metadata: map[string]interface{}{}}))
	}

	seen := map[uuid.UUID]bool{}
	cursor := ""
	for {
		page, err := s.ListNouns(ctx, cursor, 2)
		require.NoError(t, err)
		for _, id := range page.IDs {
			assert.False(t, seen[id], "id returned twice across pages")
			seen[id] = true
		}
		if page.Done {
			break
		}
		cursor = page.Cursor
	}
	assert.Len(t, seen, 5)
}
