package chunkstore

import (
	"hash/fnv"

	"github.com/holiman/bloomfilter/v2"
)

// bloomFalsePositiveRate matches spec §4.6's "Bloom FPR ≤ 1%" target.
const bloomFalsePositiveRate = 0.01

// valueHash implements hash.Hash64 over a single precomputed 64-bit
// digest, the minimal adapter bloomfilter.Filter's Add/Contains need.
type valueHash uint64

func (h valueHash) Write(p []byte) (int, error) { return len(p), nil }
func (h valueHash) Sum(b []byte) []byte         { return b }
func (h valueHash) Reset()                      {}
func (h valueHash) Size() int                   { return 8 }
func (h valueHash) BlockSize() int              { return 8 }
func (h valueHash) Sum64() uint64               { return uint64(h) }

func hashValue(v Value) valueHash {
	h := fnv.New64a()
	_, _ = h.Write([]byte(v.String()))
	return valueHash(h.Sum64())
}

// buildBloom rebuilds a Bloom filter admitting every value in entries
// from scratch. The chunk's persisted form never serializes the filter
// itself (§C5's bloom_filter operation is explicitly a from-scratch
// rebuild); reconstructing it at load time keeps the on-disk record to
// the entries map and zone map, which already have a stable encoding.
func buildBloom(values []Value) (*bloomfilter.Filter, error) {
	return newBloomSized(uint64(len(values)), values)
}

// newBloomSized allocates a filter sized for capacity elements (at
// least SplitThreshold, so a fresh chunk's filter doesn't need resizing
// before the next split) and admits every value in preload.
func newBloomSized(capacity uint64, preload []Value) (*bloomfilter.Filter, error) {
	if capacity < SplitThreshold {
		capacity = SplitThreshold
	}
	f, err := bloomfilter.NewOptimal(capacity, bloomFalsePositiveRate)
	if err != nil {
		return nil, err
	}
	for _, v := range preload {
		f.Add(hashValue(v))
	}
	return f, nil
}

func bloomContains(f *bloomfilter.Filter, v Value) bool {
	if f == nil {
		return true
	}
	return f.Contains(hashValue(v))
}
