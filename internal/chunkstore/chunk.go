package chunkstore

import (
	"sort"
	"sync"

	"github.com/holiman/bloomfilter/v2"

	"github.com/vecgraph/vecgraph/internal/bitmap"
)

// SplitThreshold and MergeThreshold are spec §3's chunk-sizing defaults.
const (
	SplitThreshold = 80
	MergeThreshold = 20
)

// ZoneMap summarizes a chunk's entries: the invariant
// zone_map.min <= value <= zone_map.max holds for every entry.
type ZoneMap struct {
	Min      Value
	Max      Value
	Count    uint64
	HasNulls bool
}

// Chunk holds one field's value -> bitmap entries plus the zone map and
// Bloom filter that let the sparse index (C6) route lookups without
// loading every chunk.
type Chunk struct {
	mu sync.RWMutex

	ChunkID     uint32
	Field       string
	Entries     map[Value]*bitmap.Bitmap
	Zone        ZoneMap
	Bloom       *bloomfilter.Filter
	NextChunkID uint32
	dirty       bool
}

// NewChunk creates an empty chunk for field, its Bloom filter
// pre-sized for SplitThreshold entries so Add's incremental growth
// doesn't need resizing before the chunk manager splits it.
func NewChunk(chunkID uint32, field string) *Chunk {
	bloom, _ := newBloomSized(SplitThreshold, nil)
	return &Chunk{
		ChunkID: chunkID,
		Field:   field,
		Entries: make(map[Value]*bitmap.Bitmap),
		Bloom:   bloom,
	}
}

// Add inserts intID under value, updating the zone map and Bloom
// filter incrementally rather than recomputing either over every
// entry: the Bloom filter only ever grows (bloomfilter.Filter has no
// remove), and min/max/count can only move in the direction a new
// member pushes them.
func (c *Chunk) Add(value Value, intID uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()

	bm, ok := c.Entries[value]
	if !ok {
		bm = bitmap.New()
		c.Entries[value] = bm
	}
	wasNewMember := !bm.Contains(intID)
	bm.Add(intID)
	c.dirty = true
	c.extendZoneMapLocked(value, wasNewMember)
	c.Bloom.Add(hashValue(value))
}

func (c *Chunk) extendZoneMapLocked(value Value, wasNewMember bool) {
	if value.Kind == KindString && value.Str == nullSentinel {
		c.Zone.HasNulls = true
	}
	if c.Zone.Count == 0 {
		c.Zone.Min = value
		c.Zone.Max = value
	} else {
		if value.Less(c.Zone.Min) {
			c.Zone.Min = value
		}
		if c.Zone.Max.Less(value) {
			c.Zone.Max = value
		}
	}
	if wasNewMember {
		c.Zone.Count++
	}
}

// Remove deletes intID from value's bitmap; if the bitmap becomes
// empty, the entry itself is dropped. Unlike Add, this recomputes the
// zone map and rebuilds the Bloom filter from scratch over every
// remaining entry: removing a member can shrink min/max or count in a
// way that can't be derived from the removed value alone, and
// bloomfilter.Filter has no remove operation at all.
func (c *Chunk) Remove(value Value, intID uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()

	bm, ok := c.Entries[value]
	if !ok {
		return
	}
	bm.Remove(intID)
	if bm.IsEmpty() {
		delete(c.Entries, value)
	}
	c.dirty = true
	c.recomputeZoneMapLocked()
	c.rebuildBloomLocked()
}

// Lookup returns the bitmap for value, or nil if absent.
func (c *Chunk) Lookup(value Value) *bitmap.Bitmap {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Entries[value]
}

// Len reports the number of distinct values held in the chunk.
func (c *Chunk) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.Entries)
}

// Dirty reports whether the chunk has unsaved in-memory changes.
func (c *Chunk) Dirty() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.dirty
}

// MarkClean clears the dirty flag, called after a successful save.
func (c *Chunk) MarkClean() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dirty = false
}

// ZoneMapRecompute recomputes {min, max, count, has_nulls} in O(entries),
// the explicit zone_map(chunk) operation from spec §4.5.
func (c *Chunk) ZoneMapRecompute() ZoneMap {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.recomputeZoneMapLocked()
	return c.Zone
}

func (c *Chunk) recomputeZoneMapLocked() {
	zm := ZoneMap{}
	first := true
	for v, bm := range c.Entries {
		if v.Kind == KindString && v.Str == nullSentinel {
			zm.HasNulls = true
		}
		if first {
			zm.Min, zm.Max = v, v
			first = false
		} else {
			if v.Less(zm.Min) {
				zm.Min = v
			}
			if zm.Max.Less(v) {
				zm.Max = v
			}
		}
		zm.Count += bm.Cardinality()
	}
	c.Zone = zm
}

// nullSentinel is the normalized representation of a null metadata
// value (spec §4.7); recognizing it here lets zone_map set has_nulls
// without chunkstore depending on the metadata index package.
const nullSentinel = "__NULL__"

// RebuildBloom rebuilds the Bloom filter from scratch, the explicit
// bloom_filter(chunk) operation from spec §4.5.
func (c *Chunk) RebuildBloom() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rebuildBloomLocked()
}

func (c *Chunk) rebuildBloomLocked() error {
	values := make([]Value, 0, len(c.Entries))
	for v := range c.Entries {
		values = append(values, v)
	}
	bloom, err := buildBloom(values)
	if err != nil {
		return err
	}
	c.Bloom = bloom
	return nil
}

// MayContain reports whether the Bloom filter admits value; false
// negatives never occur, false positives are expected at ~1%.
func (c *Chunk) MayContain(value Value) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return bloomContains(c.Bloom, value)
}

// ForEach calls fn once per (value, bitmap) entry under a read lock,
// the iteration primitive range-predicate evaluation (startsWith,
// between, gt/lt, …) scans a candidate chunk with.
func (c *Chunk) ForEach(fn func(Value, *bitmap.Bitmap)) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for v, bm := range c.Entries {
		fn(v, bm)
	}
}

// sortedValues returns every distinct value in ascending order, used by
// Split to partition entries.
func (c *Chunk) sortedValues() []Value {
	values := make([]Value, 0, len(c.Entries))
	for v := range c.Entries {
		values = append(values, v)
	}
	sort.Slice(values, func(i, j int) bool { return values[i].Less(values[j]) })
	return values
}
