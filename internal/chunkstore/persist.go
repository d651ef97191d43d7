package chunkstore

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/vecgraph/vecgraph/internal/bitmap"
	"github.com/vecgraph/vecgraph/internal/objstore"
	"github.com/vecgraph/vecgraph/internal/xerrors"
)

// pathFor builds the object-store key for a field's chunk. Spec's wire
// layout (§6) names the sparse index's own key
// (__sparse_index__<field>) but leaves individual chunk keys
// unspecified; chunks are nested under the same per-field namespace so
// a field's entire on-disk footprint sits under one prefix.
func pathFor(field string, chunkID uint32) string {
	return fmt.Sprintf("__sparse_index__%s/chunks/%d.json", field, chunkID)
}

type wireValue struct {
	Kind Kind    `json:"kind"`
	Str  string  `json:"str,omitempty"`
	Num  float64 `json:"num,omitempty"`
}

type wireEntry struct {
	Value  wireValue `json:"value"`
	Bitmap []byte    `json:"bitmap"`
}

type wireZoneMap struct {
	Min      wireValue `json:"min"`
	Max      wireValue `json:"max"`
	Count    uint64    `json:"count"`
	HasNulls bool      `json:"has_nulls"`
}

type wireChunk struct {
	ChunkID     uint32      `json:"chunk_id"`
	Field       string      `json:"field"`
	Entries     []wireEntry `json:"entries"`
	Zone        wireZoneMap `json:"zone_map"`
	NextChunkID uint32      `json:"next_chunk_id"`
}

// Save serializes entries (value -> bitmap), the zone map, and the
// next-chunk-id seed as one object; the Bloom filter is deliberately
// not persisted — see buildBloom.
func Save(ctx context.Context, store objstore.Store, c *Chunk) error {
	c.mu.RLock()
	w := wireChunk{
		ChunkID:     c.ChunkID,
		Field:       c.Field,
		NextChunkID: c.NextChunkID,
		Zone: wireZoneMap{
			Min:      wireValue{Kind: c.Zone.Min.Kind, Str: c.Zone.Min.Str, Num: c.Zone.Min.Num},
			Max:      wireValue{Kind: c.Zone.Max.Kind, Str: c.Zone.Max.Str, Num: c.Zone.Max.Num},
			Count:    c.Zone.Count,
			HasNulls: c.Zone.HasNulls,
		},
	}
	for v, bm := range c.Entries {
		data, err := bm.MarshalBinary()
		if err != nil {
			c.mu.RUnlock()
			return xerrors.Wrap(xerrors.Internal, "marshal chunk bitmap", err)
		}
		w.Entries = append(w.Entries, wireEntry{
			Value:  wireValue{Kind: v.Kind, Str: v.Str, Num: v.Num},
			Bitmap: data,
		})
	}
	c.mu.RUnlock()

	data, err := json.Marshal(w)
	if err != nil {
		return xerrors.Wrap(xerrors.Internal, "encode chunk", err)
	}

	if _, err := store.Put(ctx, pathFor(c.Field, c.ChunkID), data, nil); err != nil {
		return err
	}
	c.MarkClean()
	return nil
}

// Load reads a chunk from the object store, rebuilding its Bloom filter
// from the decoded entries.
func Load(ctx context.Context, store objstore.Store, field string, chunkID uint32) (*Chunk, error) {
	obj, err := store.Get(ctx, pathFor(field, chunkID))
	if err != nil {
		return nil, err
	}

	var w wireChunk
	if err := json.Unmarshal(obj.Value, &w); err != nil {
		return nil, xerrors.Wrap(xerrors.Corrupted, "decode chunk", err)
	}

	c := &Chunk{
		ChunkID:     w.ChunkID,
		Field:       w.Field,
		Entries:     make(map[Value]*bitmap.Bitmap, len(w.Entries)),
		NextChunkID: w.NextChunkID,
		Zone: ZoneMap{
			Min:      Value{Kind: w.Zone.Min.Kind, Str: w.Zone.Min.Str, Num: w.Zone.Min.Num},
			Max:      Value{Kind: w.Zone.Max.Kind, Str: w.Zone.Max.Str, Num: w.Zone.Max.Num},
			Count:    w.Zone.Count,
			HasNulls: w.Zone.HasNulls,
		},
	}
	for _, e := range w.Entries {
		bm := bitmap.New()
		if err := bm.UnmarshalBinary(e.Bitmap); err != nil {
			return nil, xerrors.Wrap(xerrors.Corrupted, "decode chunk bitmap", err)
		}
		c.Entries[Value{Kind: e.Value.Kind, Str: e.Value.Str, Num: e.Value.Num}] = bm
	}
	if err := c.RebuildBloom(); err != nil {
		return nil, xerrors.Wrap(xerrors.Internal, "rebuild bloom filter", err)
	}
	return c, nil
}

// Delete removes a chunk's object-store record.
func Delete(ctx context.Context, store objstore.Store, field string, chunkID uint32) error {
	return store.Delete(ctx, pathFor(field, chunkID))
}
