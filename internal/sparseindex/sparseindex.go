package sparseindex

import (
	"sort"
	"sync"

	"github.com/vecgraph/vecgraph/internal/chunkstore"
)

// SparseIndex is the C6 per-field routing directory: a map of chunk
// descriptors plus the next_chunk_id seed, kept current by
// RegisterChunk/RemoveChunk as the chunk manager splits and merges
// chunks. It implements chunkstore.DescriptorUpdater.
type SparseIndex struct {
	mu          sync.RWMutex
	Field       string
	chunks      map[uint32]ChunkDescriptor
	nextChunkID uint32
	dirty       bool
}

// New creates an empty sparse index for field.
func New(field string) *SparseIndex {
	return &SparseIndex{
		Field:  field,
		chunks: make(map[uint32]ChunkDescriptor),
	}
}

// RegisterChunk records or refreshes c's descriptor, satisfying
// chunkstore.DescriptorUpdater. Called after every chunk add/remove/
// split/merge that the chunk manager performs.
func (s *SparseIndex) RegisterChunk(c *chunkstore.Chunk) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chunks[c.ChunkID] = newDescriptor(c)
	if c.ChunkID >= s.nextChunkID {
		s.nextChunkID = c.ChunkID + 1
	}
	s.dirty = true
}

// RemoveChunk drops a chunk's descriptor, satisfying
// chunkstore.DescriptorUpdater. Called after a chunk is absorbed by a
// merge.
func (s *SparseIndex) RemoveChunk(field string, chunkID uint32) {
	if field != s.Field {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.chunks, chunkID)
	s.dirty = true
}

// NextChunkID returns the next id to hand to the chunk manager's
// create_chunk/split, then advances it — the crash-safe seed chunks
// persist as their own next_chunk_id (see chunkstore's split).
func (s *SparseIndex) NextChunkID() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextChunkID
	s.nextChunkID++
	s.dirty = true
	return id
}

// FindChunksForValue returns, in ascending chunk-id order, every chunk
// whose zone map range admits v and whose Bloom filter copy admits v.
func (s *SparseIndex) FindChunksForValue(v chunkstore.Value) []uint32 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var ids []uint32
	for id, d := range s.chunks {
		if d.InRange(v) && d.Bloom.mayContain(v) {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// FindChunksForRange returns, in ascending chunk-id order, every chunk
// whose [min, max] overlaps [lo, hi] under the given inclusivity.
func (s *SparseIndex) FindChunksForRange(lo, hi chunkstore.Value, inclusiveLo, inclusiveHi bool) []uint32 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var ids []uint32
	for id, d := range s.chunks {
		if d.OverlapsRange(lo, hi, inclusiveLo, inclusiveHi) {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// AllChunkIDs returns every chunk id known to the index, in ascending
// order, for existence and enumeration predicates.
func (s *SparseIndex) AllChunkIDs() []uint32 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]uint32, 0, len(s.chunks))
	for id := range s.chunks {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Descriptor returns the descriptor for chunkID, if known.
func (s *SparseIndex) Descriptor(chunkID uint32) (ChunkDescriptor, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.chunks[chunkID]
	return d, ok
}

// Len reports the number of chunks the index currently routes to.
func (s *SparseIndex) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.chunks)
}

// Dirty reports whether the index has unsaved in-memory changes.
func (s *SparseIndex) Dirty() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dirty
}

// MarkClean clears the dirty flag, called after a successful save.
func (s *SparseIndex) MarkClean() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dirty = false
}

// AverageCardinality returns the mean zone-map entry count across
// chunks; zero when the index holds no chunks.
func (s *SparseIndex) AverageCardinality() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.chunks) == 0 {
		return 0
	}
	var total uint64
	for _, d := range s.chunks {
		total += d.Zone.Count
	}
	return float64(total) / float64(len(s.chunks))
}
