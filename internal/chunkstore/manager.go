// Package chunkstore implements the C5 Chunk Manager: a field's value
// -> bitmap entries, zone map, and Bloom filter, backed by the object
// store and cached in a shared weighted LRU (internal/cache, the same
// instance the sparse index and metadata index manager share in a full
// engine wiring).
package chunkstore

import (
	"context"
	"fmt"

	"github.com/vecgraph/vecgraph/internal/bitmap"
	"github.com/vecgraph/vecgraph/internal/cache"
	"github.com/vecgraph/vecgraph/internal/objstore"
	"github.com/vecgraph/vecgraph/internal/xerrors"
)

// DescriptorUpdater receives chunk changes produced by Split and Merge.
// The sparse index (C6) implements this so chunkstore can keep chunk
// descriptors (zone map, cardinality, Bloom filter copy) in sync
// without importing the sparseindex package, which itself depends on
// chunkstore to load chunks.
type DescriptorUpdater interface {
	RegisterChunk(c *Chunk)
	RemoveChunk(field string, chunkID uint32)
}

// Manager is the C5 Chunk Manager.
type Manager struct {
	store objstore.Store
	cache *cache.Cache[string, *Chunk]
}

// NewManager builds a Manager over store with a shared cache sized to
// weightBudget bytes (approximated, not exact).
func NewManager(store objstore.Store, weightBudget int64) *Manager {
	return &Manager{
		store: store,
		cache: cache.New[string, *Chunk](weightBudget, func(c *Chunk) bool { return c != nil }),
	}
}

func cacheKey(field string, chunkID uint32) string {
	return fmt.Sprintf("%s#%d", field, chunkID)
}

func chunkWeight(c *Chunk) int64 {
	return int64(c.Len())*48 + 256
}

// CreateChunk creates a new, empty, in-memory chunk and caches it.
func (m *Manager) CreateChunk(field string, chunkID uint32) *Chunk {
	c := NewChunk(chunkID, field)
	m.cache.Add(cacheKey(field, chunkID), c, chunkWeight(c))
	return c
}

// LoadChunk returns the chunk for (field, chunkID), serving from the
// shared cache when possible. Returns (nil, nil) if no such chunk has
// ever been saved.
func (m *Manager) LoadChunk(ctx context.Context, field string, chunkID uint32) (*Chunk, error) {
	if c, ok := m.cache.Get(cacheKey(field, chunkID)); ok {
		return c, nil
	}

	c, err := Load(ctx, m.store, field, chunkID)
	if xerrors.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	m.cache.Add(cacheKey(field, chunkID), c, chunkWeight(c))
	return c, nil
}

// SaveChunk persists c and refreshes its cache entry.
func (m *Manager) SaveChunk(ctx context.Context, c *Chunk) error {
	if err := Save(ctx, m.store, c); err != nil {
		return err
	}
	m.cache.Add(cacheKey(c.Field, c.ChunkID), c, chunkWeight(c))
	return nil
}

// DeleteChunk removes a chunk's persisted record and cache entry.
func (m *Manager) DeleteChunk(ctx context.Context, field string, chunkID uint32) error {
	m.cache.Remove(cacheKey(field, chunkID))
	return Delete(ctx, m.store, field, chunkID)
}

// DeleteChunks removes every persisted chunk in ids for field, plus
// their cache entries — the per-field half of a full index clear
// (spec §4.7: rebuild must clear "all indices, all chunks ... and all
// caches", not just the sparse-index descriptors naming them).
func (m *Manager) DeleteChunks(ctx context.Context, field string, ids []uint32) error {
	for _, chunkID := range ids {
		m.cache.Remove(cacheKey(field, chunkID))
		if err := Delete(ctx, m.store, field, chunkID); err != nil && !xerrors.IsNotFound(err) {
			return err
		}
	}
	return nil
}

// PurgeCache empties the shared chunk cache outright. Used alongside
// DeleteChunks by a full index clear so a chunk under a field/id this
// clear didn't get to name explicitly can't survive clear as a stale
// cache hit and leak re-ingested (value -> id) entries into it.
func (m *Manager) PurgeCache() {
	m.cache.Purge()
}

// NeedsSplit reports whether c has overflowed SplitThreshold and must
// be split before the next flush.
func (m *Manager) NeedsSplit(c *Chunk) bool {
	return c.Len() > SplitThreshold
}

// EligibleForMerge reports whether c has underflowed MergeThreshold and
// may be merged with an adjacent chunk on the same field.
func (m *Manager) EligibleForMerge(c *Chunk) bool {
	return c.Len() < MergeThreshold
}

// Split partitions c's entries into two approximately equal halves by
// value order. The left half keeps c's chunk id; the right half takes
// newChunkID, which must come from c.NextChunkID to guarantee a crash
// mid-split cannot hand out a duplicate id on restart.
func (m *Manager) Split(c *Chunk, newChunkID uint32, updater DescriptorUpdater) (left, right *Chunk) {
	c.mu.Lock()
	values := c.sortedValues()
	mid := len(values) / 2

	left = NewChunk(c.ChunkID, c.Field)
	right = NewChunk(newChunkID, c.Field)
	for i, v := range values {
		bm := c.Entries[v]
		if i < mid {
			left.Entries[v] = bm
		} else {
			right.Entries[v] = bm
		}
	}
	left.NextChunkID = newChunkID + 1
	right.NextChunkID = newChunkID + 1
	c.mu.Unlock()

	left.ZoneMapRecompute()
	right.ZoneMapRecompute()
	_ = left.RebuildBloom()
	_ = right.RebuildBloom()
	left.mu.Lock()
	left.dirty = true
	left.mu.Unlock()
	right.mu.Lock()
	right.dirty = true
	right.mu.Unlock()

	m.cache.Add(cacheKey(left.Field, left.ChunkID), left, chunkWeight(left))
	m.cache.Add(cacheKey(right.Field, right.ChunkID), right, chunkWeight(right))

	if updater != nil {
		updater.RegisterChunk(left)
		updater.RegisterChunk(right)
	}
	return left, right
}

// Merge combines chunk_a and chunk_b into a single chunk keeping a's
// chunk id, valid only when their value ranges are adjacent (the
// reverse of Split). chunk_b is removed from the descriptor set.
func (m *Manager) Merge(a, b *Chunk, updater DescriptorUpdater) (*Chunk, error) {
	a.mu.RLock()
	aZone := a.Zone
	a.mu.RUnlock()
	b.mu.RLock()
	bZone := b.Zone
	b.mu.RUnlock()

	if !adjacentRanges(aZone, bZone) {
		return nil, xerrors.New(xerrors.InvalidArgument, "merge requires adjacent value ranges")
	}

	merged := NewChunk(a.ChunkID, a.Field)

	a.mu.RLock()
	for v, bm := range a.Entries {
		merged.Entries[v] = bm.Clone()
	}
	a.mu.RUnlock()

	b.mu.RLock()
	for v, bm := range b.Entries {
		if existing, ok := merged.Entries[v]; ok {
			merged.Entries[v] = bitmap.Or(existing, bm)
		} else {
			merged.Entries[v] = bm.Clone()
		}
	}
	nextB := b.NextChunkID
	b.mu.RUnlock()

	merged.NextChunkID = a.NextChunkID
	if nextB > merged.NextChunkID {
		merged.NextChunkID = nextB
	}
	merged.ZoneMapRecompute()
	if err := merged.RebuildBloom(); err != nil {
		return nil, err
	}
	merged.mu.Lock()
	merged.dirty = true
	merged.mu.Unlock()

	m.cache.Add(cacheKey(merged.Field, merged.ChunkID), merged, chunkWeight(merged))
	m.cache.Remove(cacheKey(b.Field, b.ChunkID))

	if updater != nil {
		updater.RegisterChunk(merged)
		updater.RemoveChunk(b.Field, b.ChunkID)
	}
	return merged, nil
}

// adjacentRanges reports whether two zone maps' value ranges do not
// overlap, the precondition Merge enforces.
func adjacentRanges(a, b ZoneMap) bool {
	return a.Max.Less(b.Min) || b.Max.Less(a.Min) || a.Max.Equal(b.Min) || b.Max.Equal(a.Min)
}
