package metaindex

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/vecgraph/vecgraph/internal/chunkstore"
)

func TestNormalize_NullAndBooleans(t *testing.T) {
	assert.Equal(t, chunkstore.StringValue("__NULL__"), normalize(nil, false))
	assert.Equal(t, chunkstore.StringValue("__TRUE__"), normalize(true, false))
	assert.Equal(t, chunkstore.StringValue("__FALSE__"), normalize(false, false))
}

func TestNormalize_IsIdempotent(t *testing.T) {
	// Given a variety of raw values
	inputs := []interface{}{nil, true, false, "hello", 3.5, 1_700_000_000.0, "2023-11-14T22:13:20"}

	for _, in := range inputs {
		// Then normalizing the normalized form (as a Go value) reproduces
		// the same chunkstore.Value
		once := normalize(in, false)
		var reNormalized chunkstore.Value
		if once.Kind == chunkstore.KindString {
			reNormalized = normalize(once.Str, false)
		} else {
			reNormalized = normalize(once.Num, false)
		}
		assert.True(t, once.Equal(reNormalized), "normalize not idempotent for %v", in)
	}
}

func TestNormalize_TemporalBucketing_SecondsRange(t *testing.T) {
	// Given two timestamps a second apart, both within the same 60s window
	a := normalize(1_700_000_000.0, false)
	b := normalize(1_700_000_001.0, false)

	// Then they bucket to the same value
	assert.True(t, a.Equal(b))
}

func TestNormalize_TemporalBucketing_DifferentWindows(t *testing.T) {
	a := normalize(1_700_000_000.0, false)
	b := normalize(1_700_000_061.0, false)
	assert.False(t, a.Equal(b))
}

func TestNormalize_TemporalString_ParsesAndBuckets(t *testing.T) {
	v := normalize("2023-11-14T22:13:20Z", false)
	assert.Equal(t, chunkstore.KindNumber, v.Kind)
}

func TestNormalize_HighCardinalityRoundsToTwoDecimals(t *testing.T) {
	v := normalize(3.14159, true)
	assert.Equal(t, chunkstore.NumberValue(3.14), v)
}

func TestNormalize_LongStringIsHashed(t *testing.T) {
	long := make([]byte, 200)
	for i := range long {
		long[i] = 'a'
	}
	v := normalize(string(long), false)
	assert.Contains(t, v.Str, "__HASH_")
}

func TestNormalize_ShortStringPassesThrough(t *testing.T) {
	v := normalize("Concept", false)
	assert.Equal(t, chunkstore.StringValue("Concept"), v)
}
