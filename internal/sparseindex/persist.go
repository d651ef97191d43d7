package sparseindex

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/vecgraph/vecgraph/internal/chunkstore"
	"github.com/vecgraph/vecgraph/internal/objstore"
	"github.com/vecgraph/vecgraph/internal/xerrors"
)

// KeyFor returns the well-known object-store key for a field's sparse
// index, the exact form spec's wire layout (§6) names.
func KeyFor(field string) string {
	return fmt.Sprintf("__sparse_index__%s", field)
}

type wireValue struct {
	Kind chunkstore.Kind `json:"kind"`
	Str  string          `json:"str,omitempty"`
	Num  float64         `json:"num,omitempty"`
}

type wireDescriptor struct {
	ChunkID  uint32    `json:"chunk_id"`
	Min      wireValue `json:"min"`
	Max      wireValue `json:"max"`
	Count    uint64    `json:"count"`
	HasNulls bool      `json:"has_nulls"`
}

type wireIndex struct {
	Field       string           `json:"field"`
	Chunks      []wireDescriptor `json:"chunks"`
	NextChunkID uint32           `json:"next_chunk_id"`
}

func toWireValue(v chunkstore.Value) wireValue {
	return wireValue{Kind: v.Kind, Str: v.Str, Num: v.Num}
}

func fromWireValue(w wireValue) chunkstore.Value {
	return chunkstore.Value{Kind: w.Kind, Str: w.Str, Num: w.Num}
}

// Save persists the index's descriptors — zone map and cardinality —
// under KeyFor(s.Field). The Bloom filter copy is never serialized: a
// descriptor's Bloom check is backed by the live chunk held in the
// chunk manager's cache (see newDescriptor), so Load must be followed
// by re-registering each chunk as it's loaded back into that cache.
func Save(ctx context.Context, store objstore.Store, s *SparseIndex) error {
	s.mu.RLock()
	w := wireIndex{Field: s.Field, NextChunkID: s.nextChunkID}
	for id, d := range s.chunks {
		w.Chunks = append(w.Chunks, wireDescriptor{
			ChunkID:  id,
			Min:      toWireValue(d.Zone.Min),
			Max:      toWireValue(d.Zone.Max),
			Count:    d.Zone.Count,
			HasNulls: d.Zone.HasNulls,
		})
	}
	s.mu.RUnlock()

	data, err := json.Marshal(w)
	if err != nil {
		return xerrors.Wrap(xerrors.Internal, "encode sparse index", err)
	}
	if _, err := store.Put(ctx, KeyFor(s.Field), data, nil); err != nil {
		return err
	}
	s.MarkClean()
	return nil
}

// Load reads a field's sparse index. Descriptors come back with a nil
// Bloom (InRange-only routing) until the owning chunk manager reloads
// each chunk and calls RegisterChunk to restore exact Bloom admission.
// Returns (nil, nil) if no sparse index has ever been saved for field.
func Load(ctx context.Context, store objstore.Store, field string) (*SparseIndex, error) {
	obj, err := store.Get(ctx, KeyFor(field))
	if xerrors.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var w wireIndex
	if err := json.Unmarshal(obj.Value, &w); err != nil {
		return nil, xerrors.Wrap(xerrors.Corrupted, "decode sparse index", err)
	}

	s := New(w.Field)
	s.nextChunkID = w.NextChunkID
	for _, wd := range w.Chunks {
		s.chunks[wd.ChunkID] = ChunkDescriptor{
			ChunkID: wd.ChunkID,
			Zone: chunkstore.ZoneMap{
				Min:      fromWireValue(wd.Min),
				Max:      fromWireValue(wd.Max),
				Count:    wd.Count,
				HasNulls: wd.HasNulls,
			},
			Bloom: nil,
		}
	}
	return s, nil
}

// Delete removes a field's persisted sparse index record.
func Delete(ctx context.Context, store objstore.Store, field string) error {
	return store.Delete(ctx, KeyFor(field))
}
