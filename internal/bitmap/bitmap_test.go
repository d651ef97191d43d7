package bitmap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddContainsRemove(t *testing.T) {
	// Given an empty bitmap
	b := New()

	// When an id is added
	b.Add(5)

	// Then it is contained, and removing it clears membership
	assert.True(t, b.Contains(5))
	b.Remove(5)
	assert.False(t, b.Contains(5))
}

func TestCardinality_MatchesDistinctElementCount(t *testing.T) {
	// Given a bitmap with duplicate adds
	b := New()
	b.Add(1)
	b.Add(2)
	b.Add(1)

	// Then cardinality counts distinct elements only
	assert.Equal(t, uint64(2), b.Cardinality())
}

func TestAnd_CardinalityLaw(t *testing.T) {
	// Given two overlapping bitmaps
	a := FromInts(1, 2, 3, 4)
	b := FromInts(3, 4, 5, 6)

	// When intersected
	result := And(a, b)

	// Then |and(A,B)| <= min(|A|,|B|), and self-intersection is identity
	assert.LessOrEqual(t, result.Cardinality(), a.Cardinality())
	assert.LessOrEqual(t, result.Cardinality(), b.Cardinality())
	assert.ElementsMatch(t, []uint32{3, 4}, result.ToSlice())

	self := And(a, a)
	assert.Equal(t, a.ToSlice(), self.ToSlice())
}

func TestOr_UnionsElements(t *testing.T) {
	// Given two disjoint bitmaps
	a := FromInts(1, 2)
	b := FromInts(3, 4)

	// When unioned
	result := Or(a, b)

	// Then every element from both sides is present
	assert.ElementsMatch(t, []uint32{1, 2, 3, 4}, result.ToSlice())
}

func TestOrMany_UnionsAllBitmaps(t *testing.T) {
	// Given three bitmaps with overlapping elements
	bitmaps := []*Bitmap{FromInts(1, 2), FromInts(2, 3), FromInts(4)}

	// When combined
	result := OrMany(bitmaps...)

	// Then the union contains every distinct element
	assert.ElementsMatch(t, []uint32{1, 2, 3, 4}, result.ToSlice())
}

func TestOrMany_EmptyInputReturnsEmptyBitmap(t *testing.T) {
	result := OrMany()
	assert.True(t, result.IsEmpty())
}

func TestAndNot_RemovesSecondSetElements(t *testing.T) {
	// Given a and b with overlap
	a := FromInts(1, 2, 3)
	b := FromInts(2, 3)

	// When computing a andnot b
	result := AndNot(a, b)

	// Then only elements unique to a remain
	assert.Equal(t, []uint32{1}, result.ToSlice())
}

func TestIterate_StopsEarlyWhenFnReturnsFalse(t *testing.T) {
	// Given a bitmap with several elements
	b := FromInts(1, 2, 3, 4, 5)

	// When iterating and stopping after the second element
	var seen []uint32
	b.Iterate(func(id uint32) bool {
		seen = append(seen, id)
		return len(seen) < 2
	})

	// Then iteration stopped at two elements
	assert.Len(t, seen, 2)
}

func TestMarshalUnmarshalBinary_RoundTrips(t *testing.T) {
	// Given a populated bitmap
	b := FromInts(10, 20, 30)

	// When serialized and restored into a fresh bitmap
	data, err := b.MarshalBinary()
	require.NoError(t, err)

	restored := New()
	err = restored.UnmarshalBinary(data)

	// Then the restored bitmap has the same elements
	require.NoError(t, err)
	assert.ElementsMatch(t, b.ToSlice(), restored.ToSlice())
}

func TestClone_IsIndependent(t *testing.T) {
	// Given a bitmap and a clone of it
	b := FromInts(1, 2)
	clone := b.Clone()

	// When the original is mutated
	b.Add(3)

	// Then the clone is unaffected
	assert.False(t, clone.Contains(3))
}
