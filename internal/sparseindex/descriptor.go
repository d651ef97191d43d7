// Package sparseindex implements the C6 Sparse Index: a per-field
// directory of chunk descriptors that routes point and range lookups
// to candidate chunks without loading them, using each chunk's zone
// map and a copy of its Bloom filter.
package sparseindex

import (
	"github.com/vecgraph/vecgraph/internal/chunkstore"
)

// ChunkDescriptor is the routing-only summary of a chunk: its zone
// map, cardinality, and a Bloom filter copy, kept in sync with the
// chunk's actual contents via RegisterChunk.
type ChunkDescriptor struct {
	ChunkID uint32
	Zone    chunkstore.ZoneMap
	Bloom   *descriptorBloom
}

// descriptorBloom holds just enough of the chunk's Bloom filter to
// answer MayContain; rebuilt from the live chunk rather than copying
// the library's internal filter type, since chunkstore doesn't
// persist the filter either (see chunkstore's ledger entry).
type descriptorBloom struct {
	chunk *chunkstore.Chunk
}

func (d *descriptorBloom) mayContain(v chunkstore.Value) bool {
	if d == nil || d.chunk == nil {
		return true
	}
	return d.chunk.MayContain(v)
}

// newDescriptor captures a ChunkDescriptor directly from a chunk's
// current state. Holding the chunk pointer (rather than copying its
// Bloom filter bit array, which chunkstore doesn't expose) keeps the
// descriptor's MayContain check exact: the chunk manager's cache
// already keeps these chunks resident, so this isn't an extra load.
func newDescriptor(c *chunkstore.Chunk) ChunkDescriptor {
	return ChunkDescriptor{
		ChunkID: c.ChunkID,
		Zone:    c.Zone,
		Bloom:   &descriptorBloom{chunk: c},
	}
}

// InRange reports whether v falls within the descriptor's zone map
// bounds, the first half of find_chunks_for_value's admission test.
func (d ChunkDescriptor) InRange(v chunkstore.Value) bool {
	return !v.Less(d.Zone.Min) && !d.Zone.Max.Less(v)
}

// OverlapsRange reports whether the descriptor's [min, max] overlaps
// [lo, hi] under the given inclusivity, used by find_chunks_for_range.
func (d ChunkDescriptor) OverlapsRange(lo, hi chunkstore.Value, inclusiveLo, inclusiveHi bool) bool {
	// High side: chunk.min must not exceed hi (<= if inclusive, < otherwise).
	highOK := !hi.Less(d.Zone.Min)
	if !inclusiveHi {
		highOK = d.Zone.Min.Less(hi)
	}
	// Low side: chunk.max must not fall below lo (>= if inclusive, > otherwise).
	lowOK := !d.Zone.Max.Less(lo)
	if !inclusiveLo {
		lowOK = lo.Less(d.Zone.Max)
	}
	return highOK && lowOK
}
