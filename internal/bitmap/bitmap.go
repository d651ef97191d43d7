// Package bitmap implements the C2 Bitmap: a compressed sorted set of
// 32-bit integers with fast AND/OR/AND-NOT and O(1) cardinality after
// maintenance, backed by Roaring bitmaps. Every index chunk (C5) and
// every query result id set moves through this type.
package bitmap

import (
	"github.com/RoaringBitmap/roaring/v2"
)

// Bitmap is a compressed sorted set of u32. The zero value is not
// usable; construct with New.
type Bitmap struct {
	rb *roaring.Bitmap
}

// New returns an empty Bitmap.
func New() *Bitmap {
	return &Bitmap{rb: roaring.New()}
}

// FromInts builds a Bitmap containing exactly the given ids.
func FromInts(ids ...uint32) *Bitmap {
	rb := roaring.New()
	rb.AddMany(ids)
	return &Bitmap{rb: rb}
}

// Add inserts id into the set.
func (b *Bitmap) Add(id uint32) {
	b.rb.Add(id)
}

// Remove deletes id from the set; removing an absent id is a no-op.
func (b *Bitmap) Remove(id uint32) {
	b.rb.Remove(id)
}

// Contains reports whether id is in the set.
func (b *Bitmap) Contains(id uint32) bool {
	return b.rb.Contains(id)
}

// Cardinality reports the number of elements in the set.
func (b *Bitmap) Cardinality() uint64 {
	return b.rb.GetCardinality()
}

// IsEmpty reports whether the set has no elements.
func (b *Bitmap) IsEmpty() bool {
	return b.rb.IsEmpty()
}

// ToSlice returns the set's elements in ascending order. Callers that
// only need to iterate should prefer Iterate to avoid the allocation.
func (b *Bitmap) ToSlice() []uint32 {
	return b.rb.ToArray()
}

// Iterate calls fn for every element in ascending order, stopping early
// if fn returns false.
func (b *Bitmap) Iterate(fn func(id uint32) bool) {
	it := b.rb.Iterator()
	for it.HasNext() {
		if !fn(it.Next()) {
			return
		}
	}
}

// Clone returns an independent copy of b.
func (b *Bitmap) Clone() *Bitmap {
	return &Bitmap{rb: b.rb.Clone()}
}

// And returns the intersection of a and b; a and b are not modified.
func And(a, b *Bitmap) *Bitmap {
	return &Bitmap{rb: roaring.And(a.rb, b.rb)}
}

// Or returns the union of a and b; a and b are not modified.
func Or(a, b *Bitmap) *Bitmap {
	return &Bitmap{rb: roaring.Or(a.rb, b.rb)}
}

// OrMany returns the union of every bitmap in bitmaps. Returns an empty
// Bitmap when bitmaps is empty.
func OrMany(bitmaps ...*Bitmap) *Bitmap {
	if len(bitmaps) == 0 {
		return New()
	}
	raw := make([]*roaring.Bitmap, len(bitmaps))
	for i, bm := range bitmaps {
		raw[i] = bm.rb
	}
	return &Bitmap{rb: roaring.FastOr(raw...)}
}

// AndNot returns the elements of a that are not in b; a and b are not
// modified.
func AndNot(a, b *Bitmap) *Bitmap {
	return &Bitmap{rb: roaring.AndNot(a.rb, b.rb)}
}

// MarshalBinary serializes the bitmap to Roaring's portable format,
// stable across this library's versions and readable by any conforming
// implementation — the on-disk form embedded in a chunk record.
func (b *Bitmap) MarshalBinary() ([]byte, error) {
	return b.rb.ToBytes()
}

// UnmarshalBinary restores a bitmap previously produced by
// MarshalBinary.
func (b *Bitmap) UnmarshalBinary(data []byte) error {
	rb := roaring.New()
	if err := rb.UnmarshalBinary(data); err != nil {
		return err
	}
	b.rb = rb
	return nil
}
