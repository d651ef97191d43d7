package metaindex

import (
	"fmt"
	"hash/fnv"
	"math"
	"strconv"
	"time"

	"github.com/vecgraph/vecgraph/internal/chunkstore"
)

// Sentinels mirroring the normalized forms spec §4.7 defines for null
// and boolean values; chunkstore's zone map recognizes nullSentinel
// via the same literal.
const (
	nullSentinel  = "__NULL__"
	trueSentinel  = "__TRUE__"
	falseSentinel = "__FALSE__"
)

const (
	longValueThreshold  = 100
	bucketResolutionMs  = 60_000
	highCardinalityDist = 500
)

// Timestamp detection window: [2000-01-01, 2100-01-01] in seconds.
var (
	tsMinSeconds = float64(time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC).Unix())
	tsMaxSeconds = float64(time.Date(2100, 1, 1, 0, 0, 0, 0, time.UTC).Unix())
)

// normalize converts a raw metadata value into the chunkstore.Value
// form stored in chunks and compared against at query time; applying
// the identical function on both paths is what spec §4.7 requires for
// comparisons to match. highCardinality reports whether the owning
// field has already accumulated enough distinct values to warrant
// rounding numeric precision (detected from field statistics, not the
// field's name, per spec).
func normalize(raw interface{}, highCardinality bool) chunkstore.Value {
	switch v := raw.(type) {
	case nil:
		return chunkstore.StringValue(nullSentinel)
	case bool:
		if v {
			return chunkstore.StringValue(trueSentinel)
		}
		return chunkstore.StringValue(falseSentinel)
	case string:
		if ms, ok := parseTemporalString(v); ok {
			return chunkstore.NumberValue(bucketMs(ms))
		}
		if len(v) > longValueThreshold {
			return chunkstore.StringValue(hashString(v))
		}
		return chunkstore.StringValue(v)
	case float64:
		return normalizeNumber(v, highCardinality)
	case float32:
		return normalizeNumber(float64(v), highCardinality)
	case int:
		return normalizeNumber(float64(v), highCardinality)
	case int64:
		return normalizeNumber(float64(v), highCardinality)
	default:
		return chunkstore.StringValue(hashString(fmt.Sprintf("%v", v)))
	}
}

func normalizeNumber(n float64, highCardinality bool) chunkstore.Value {
	if ms, ok := temporalFromNumber(n); ok {
		return chunkstore.NumberValue(bucketMs(ms))
	}
	if highCardinality {
		n = roundTo2(n)
	}
	return chunkstore.NumberValue(n)
}

// temporalFromNumber reports whether n looks like a Unix timestamp in
// seconds or milliseconds, returning the equivalent millisecond value.
func temporalFromNumber(n float64) (float64, bool) {
	if n >= tsMinSeconds && n <= tsMaxSeconds {
		return n * 1000, true
	}
	msMin, msMax := tsMinSeconds*1000, tsMaxSeconds*1000
	if n >= msMin && n <= msMax {
		return n, true
	}
	return 0, false
}

// parseTemporalString recognizes an ISO-8601-prefixed string
// (^\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}) and returns its Unix
// millisecond value.
func parseTemporalString(s string) (float64, bool) {
	if len(s) < len("2006-01-02T15:04:05") {
		return 0, false
	}
	prefix := s[:len("2006-01-02T15:04:05")]
	t, err := time.Parse("2006-01-02T15:04:05", prefix)
	if err != nil {
		return 0, false
	}
	return float64(t.UnixMilli()), true
}

func bucketMs(ms float64) float64 {
	return float64(int64(ms/bucketResolutionMs)) * bucketResolutionMs
}

func roundTo2(n float64) float64 {
	return math.Round(n*100) / 100
}

// hashString renders a deterministic, filesystem-safe replacement for
// a long string, the form spec §4.7 calls __HASH_<base36>.
func hashString(s string) string {
	h := fnv.New64a()
	_, _ = h.Write([]byte(s))
	return "__HASH_" + strconv.FormatUint(h.Sum64(), 36)
}

// isHighCardinalityCandidate is a guard used by extraction to avoid
// rounding fields that are themselves already-bucketed timestamps or
// string-typed; only plain numeric fields benefit from the two-decimal
// rounding spec describes.
func isHighCardinalityCandidate(raw interface{}) bool {
	switch raw.(type) {
	case float64, float32, int, int64:
		return true
	default:
		return false
	}
}
