package idmap

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vecgraph/vecgraph/internal/objstore"
)

func TestGetOrIntern_IsBijective(t *testing.T) {
	// Given a fresh mapper
	m := New(objstore.NewMemoryStore())
	u := uuid.New()

	// When a uuid is interned twice
	first := m.GetOrIntern(u)
	second := m.GetOrIntern(u)

	// Then it always resolves back to the same uuid, and interning is stable
	assert.Equal(t, first, second)
	resolved, ok := m.Resolve(first)
	require.True(t, ok)
	assert.Equal(t, u, resolved)
}

func TestGetOrIntern_AssignsDistinctMonotoneIds(t *testing.T) {
	// Given a fresh mapper
	m := New(objstore.NewMemoryStore())

	// When three distinct uuids are interned
	a := m.GetOrIntern(uuid.New())
	b := m.GetOrIntern(uuid.New())
	c := m.GetOrIntern(uuid.New())

	// Then ids are assigned in increasing order
	assert.Equal(t, uint32(0), a)
	assert.Equal(t, uint32(1), b)
	assert.Equal(t, uint32(2), c)
}

func TestGet_DoesNotMutate(t *testing.T) {
	// Given a mapper with nothing interned
	m := New(objstore.NewMemoryStore())
	u := uuid.New()

	// When Get is called on an unknown uuid
	_, ok := m.Get(u)

	// Then it reports absence without assigning an id
	assert.False(t, ok)
	assert.Equal(t, 0, m.Len())
}

func TestBulkResolve_PreservesOrderAndDropsUnknown(t *testing.T) {
	// Given a mapper with two interned uuids
	m := New(objstore.NewMemoryStore())
	u1, u2 := uuid.New(), uuid.New()
	id1 := m.GetOrIntern(u1)
	id2 := m.GetOrIntern(u2)

	// When resolving a list that includes an id that was never assigned
	out := m.BulkResolve([]uint32{id2, 999, id1})

	// Then known ids resolve in order and the unknown one is dropped
	assert.Equal(t, []uuid.UUID{u2, u1}, out)
}

func TestClear_ResetsBijectionAndNextID(t *testing.T) {
	// Given a mapper with entries
	m := New(objstore.NewMemoryStore())
	m.GetOrIntern(uuid.New())
	m.GetOrIntern(uuid.New())

	// When Clear is called
	m.Clear()

	// Then it behaves like a fresh mapper
	assert.Equal(t, 0, m.Len())
	u := uuid.New()
	assert.Equal(t, uint32(0), m.GetOrIntern(u))
}

func TestFlushLoad_RoundTrips(t *testing.T) {
	// Given a mapper with several interned uuids, flushed to a store
	store := objstore.NewMemoryStore()
	m := New(store)
	ctx := context.Background()
	uuids := []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}
	ids := make([]uint32, len(uuids))
	for i, u := range uuids {
		ids[i] = m.GetOrIntern(u)
	}
	require.NoError(t, m.Flush(ctx))

	// When a new mapper is loaded from the same store
	loaded, err := Load(ctx, store)
	require.NoError(t, err)

	// Then every bijection entry round trips
	for i, u := range uuids {
		got, ok := loaded.Get(u)
		require.True(t, ok)
		assert.Equal(t, ids[i], got)
		resolved, ok := loaded.Resolve(ids[i])
		require.True(t, ok)
		assert.Equal(t, u, resolved)
	}

	// And continuing to intern after load keeps assigning fresh ids
	next := loaded.GetOrIntern(uuid.New())
	assert.Equal(t, uint32(len(uuids)), next)
}

func TestLoad_MissingKeyReturnsEmptyMapper(t *testing.T) {
	// Given an empty store
	store := objstore.NewMemoryStore()

	// When loading a mapper that was never flushed
	m, err := Load(context.Background(), store)

	// Then it behaves like New
	require.NoError(t, err)
	assert.Equal(t, 0, m.Len())
}

func TestGetOrIntern_ConcurrentCallsNeverAssignTwoIdsToSameUUID(t *testing.T) {
	// Given a fresh mapper and a uuid interned concurrently from many goroutines
	m := New(objstore.NewMemoryStore())
	u := uuid.New()

	var wg sync.WaitGroup
	results := make([]uint32, 50)
	for i := range results {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = m.GetOrIntern(u)
		}()
	}
	wg.Wait()

	// Then every goroutine observes the same assigned id
	for _, r := range results {
		assert.Equal(t, results[0], r)
	}
}
