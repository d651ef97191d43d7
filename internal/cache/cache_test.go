package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddGet_RoundTrips(t *testing.T) {
	// Given an empty cache
	c := New[string, string](100, nil)

	// When a value is added and read back
	c.Add("k", "v", 10)
	got, ok := c.Get("k")

	// Then it is returned
	require.True(t, ok)
	assert.Equal(t, "v", got)
}

func TestAdd_EvictsOldestWhenOverWeightBudget(t *testing.T) {
	// Given a cache with a small weight budget
	c := New[string, string](10, nil)

	// When entries are added that exceed the budget
	c.Add("a", "va", 6)
	c.Add("b", "vb", 6)

	// Then the oldest entry was evicted to stay within budget
	_, aOk := c.Get("a")
	bVal, bOk := c.Get("b")
	assert.False(t, aOk)
	assert.True(t, bOk)
	assert.Equal(t, "vb", bVal)
	assert.LessOrEqual(t, c.Weight(), int64(10))
}

func TestAdd_ReplacingKeyUpdatesWeightAccounting(t *testing.T) {
	// Given a cache with one entry
	c := New[string, string](100, nil)
	c.Add("k", "v1", 20)

	// When the same key is re-added with a different weight
	c.Add("k", "v2", 5)

	// Then the cache's total weight reflects only the latest value
	assert.Equal(t, int64(5), c.Weight())
	got, ok := c.Get("k")
	require.True(t, ok)
	assert.Equal(t, "v2", got)
}

func TestGet_ValidatorEvictsInvalidEntries(t *testing.T) {
	// Given a cache that treats empty strings as invalid
	validate := func(v string) bool { return v != "" }
	c := New[string, string](100, validate)
	c.Add("k", "", 1)

	// When reading that entry
	_, ok := c.Get("k")

	// Then it is reported as a miss and removed
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
}

func TestRemove_DeletesEntry(t *testing.T) {
	// Given a cache with one entry
	c := New[string, int](100, nil)
	c.Add("k", 1, 1)

	// When removed
	c.Remove("k")

	// Then it is gone
	_, ok := c.Get("k")
	assert.False(t, ok)
}

func TestPurge_ClearsAllEntriesAndWeight(t *testing.T) {
	// Given a cache with several entries
	c := New[string, int](100, nil)
	c.Add("a", 1, 5)
	c.Add("b", 2, 5)

	// When purged
	c.Purge()

	// Then it is empty with zero weight
	assert.Equal(t, 0, c.Len())
	assert.Equal(t, int64(0), c.Weight())
}
