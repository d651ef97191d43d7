package metaindex

import (
	"context"
	"math"
	"regexp"
	"strings"

	"github.com/vecgraph/vecgraph/internal/bitmap"
	"github.com/vecgraph/vecgraph/internal/chunkstore"
	"github.com/vecgraph/vecgraph/internal/xerrors"
)

// Eval evaluates pred against the index, returning the bitmap of
// matching integer ids. liveIDs is the roster of every currently
// interned entity id, required for ne/not/missing's complement
// semantics (spec §4.7: entities missing a field satisfy ne(v)).
func (m *Manager) Eval(ctx context.Context, pred Predicate, liveIDs *bitmap.Bitmap) (*bitmap.Bitmap, error) {
	switch pred.Op {
	case OpEq, OpContains:
		return m.evalEq(ctx, pred.Field, pred.Value)
	case OpNe:
		eq, err := m.evalEq(ctx, pred.Field, pred.Value)
		if err != nil {
			return nil, err
		}
		return bitmap.AndNot(liveIDs, eq), nil
	case OpIn:
		return m.evalOrEq(ctx, pred.Field, pred.Values)
	case OpGt:
		return m.evalRange(ctx, pred.Field, pred.Value, nil, false, false)
	case OpGte:
		return m.evalRange(ctx, pred.Field, pred.Value, nil, true, false)
	case OpLt:
		return m.evalRange(ctx, pred.Field, nil, pred.Value, false, false)
	case OpLte:
		return m.evalRange(ctx, pred.Field, nil, pred.Value, false, true)
	case OpBetween:
		if len(pred.Values) != 2 {
			return nil, xerrors.New(xerrors.InvalidArgument, "between requires exactly [lo, hi]")
		}
		return m.evalRange(ctx, pred.Field, pred.Values[0], pred.Values[1], true, true)
	case OpExists, OpMissing:
		exists, err := m.evalExists(ctx, pred.Field)
		if err != nil {
			return nil, err
		}
		// A false bool Value inverts the operator: exists(false) is missing.
		present := pred.Op == OpExists
		if b, ok := pred.Value.(bool); ok && !b {
			present = !present
		}
		if present {
			return exists, nil
		}
		return bitmap.AndNot(liveIDs, exists), nil
	case OpStartsWith:
		return m.evalStringScan(ctx, pred.Field, func(s string) bool {
			return strings.HasPrefix(s, toString(pred.Value))
		})
	case OpEndsWith:
		return m.evalStringScan(ctx, pred.Field, func(s string) bool {
			return strings.HasSuffix(s, toString(pred.Value))
		})
	case OpMatches:
		re, err := regexp.Compile(toString(pred.Value))
		if err != nil {
			return nil, xerrors.Wrap(xerrors.InvalidArgument, "invalid matches pattern", err)
		}
		return m.evalStringScan(ctx, pred.Field, re.MatchString)
	case OpAllOf:
		return m.evalAllOf(ctx, pred.Operands, liveIDs)
	case OpAnyOf:
		return m.evalAnyOf(ctx, pred.Operands, liveIDs)
	case OpNot:
		if pred.Operand == nil {
			return nil, xerrors.New(xerrors.InvalidArgument, "not requires an operand")
		}
		inner, err := m.Eval(ctx, *pred.Operand, liveIDs)
		if err != nil {
			return nil, err
		}
		return bitmap.AndNot(liveIDs, inner), nil
	default:
		return nil, xerrors.New(xerrors.InvalidArgument, "unknown predicate operator: "+string(pred.Op))
	}
}

func toString(v interface{}) string {
	s, _ := v.(string)
	return s
}

func (m *Manager) fieldHighCard(fs *fieldState, raw interface{}) bool {
	return isHighCardinalityCandidate(raw) && fs.distinct > highCardinalityDist
}

func (m *Manager) evalEq(ctx context.Context, field string, raw interface{}) (*bitmap.Bitmap, error) {
	fs, err := m.loadField(ctx, field)
	if err != nil {
		return nil, err
	}
	value := normalize(raw, m.fieldHighCard(fs, raw))

	m.mu.RLock()
	ids := fs.sparse.FindChunksForValue(value)
	m.mu.RUnlock()

	result := bitmap.New()
	for _, chunkID := range ids {
		c, err := m.chunks.LoadChunk(ctx, field, chunkID)
		if err != nil {
			return nil, err
		}
		if c == nil {
			continue
		}
		if bm := c.Lookup(value); bm != nil {
			result = bitmap.Or(result, bm)
		}
	}
	return result, nil
}

func (m *Manager) evalOrEq(ctx context.Context, field string, values []interface{}) (*bitmap.Bitmap, error) {
	result := bitmap.New()
	for _, v := range values {
		bm, err := m.evalEq(ctx, field, v)
		if err != nil {
			return nil, err
		}
		result = bitmap.Or(result, bm)
	}
	return result, nil
}

// evalRange scans every chunk overlapping [lo, hi] and exactly
// filters entries, since a candidate chunk's zone map may span wider
// than the query even when it overlaps it. lo/hi of nil mean
// unbounded in that direction. When the manager has an exact-value
// loader installed (SetExactLoader), the candidate window is widened
// by one bucket and re-filtered against each candidate's exact raw
// value, recovering the precision normalize()'s 60s bucketing/
// high-cardinality rounding otherwise loses (spec §9 Open Question #3
// applied to range filtering, not just SortIDs' sorting).
func (m *Manager) evalRange(ctx context.Context, field string, lo, hi interface{}, inclusiveLo, inclusiveHi bool) (*bitmap.Bitmap, error) {
	fs, err := m.loadField(ctx, field)
	if err != nil {
		return nil, err
	}

	var loV, hiV chunkstore.Value
	hasLo, hasHi := lo != nil, hi != nil
	if hasLo {
		loV = normalize(lo, m.fieldHighCard(fs, lo))
	} else {
		loV = minSentinel(fs)
	}
	if hasHi {
		hiV = normalize(hi, m.fieldHighCard(fs, hi))
	} else {
		hiV = maxSentinel(fs)
	}

	m.mu.RLock()
	loader := m.exactLoader
	m.mu.RUnlock()

	searchLoV, searchHiV := loV, hiV
	numericField := loV.Kind == chunkstore.KindNumber || hiV.Kind == chunkstore.KindNumber
	if loader != nil && numericField {
		if hasLo {
			searchLoV = chunkstore.NumberValue(loV.Num - bucketResolutionMs)
		}
		if hasHi {
			searchHiV = chunkstore.NumberValue(hiV.Num + bucketResolutionMs)
		}
	}

	m.mu.RLock()
	ids := fs.sparse.FindChunksForRange(searchLoV, searchHiV, true, true)
	m.mu.RUnlock()

	result := bitmap.New()
	for _, chunkID := range ids {
		c, err := m.chunks.LoadChunk(ctx, field, chunkID)
		if err != nil {
			return nil, err
		}
		if c == nil {
			continue
		}
		c.ForEach(func(v chunkstore.Value, bm *bitmap.Bitmap) {
			if hasLo {
				if inclusiveLo {
					if v.Less(loV) {
						return
					}
				} else if v.Less(loV) || v.Equal(loV) {
					return
				}
			}
			if hasHi {
				if inclusiveHi {
					if hiV.Less(v) {
						return
					}
				} else if hiV.Less(v) || hiV.Equal(v) {
					return
				}
			}
			result = bitmap.Or(result, bm)
		})
	}
	if loader == nil || !numericField {
		return result, nil
	}
	return m.refineRangeExact(ctx, loader, field, result, lo, hi, inclusiveLo, inclusiveHi)
}

// refineRangeExact re-tests every id already matched at bucket
// granularity against its exact raw field value, dropping ids the
// precise bound excludes. An id whose exact value can't be
// interpreted numerically is kept as-is, falling back to the bucketed
// decision rather than silently dropping a match normalize() itself
// would have accepted.
func (m *Manager) refineRangeExact(ctx context.Context, loader func(ctx context.Context, id uint32, field string) (interface{}, error), field string, candidates *bitmap.Bitmap, lo, hi interface{}, inclusiveLo, inclusiveHi bool) (*bitmap.Bitmap, error) {
	loExact, hasLoExact := exactNumeric(lo)
	hiExact, hasHiExact := exactNumeric(hi)
	if !hasLoExact && !hasHiExact {
		return candidates, nil
	}

	refined := bitmap.New()
	var loadErr error
	candidates.Iterate(func(id uint32) bool {
		raw, err := loader(ctx, id, field)
		if err != nil {
			loadErr = err
			return false
		}
		val, ok := exactNumeric(raw)
		if !ok {
			refined.Add(id)
			return true
		}
		pass := true
		if hasLoExact {
			if inclusiveLo {
				pass = pass && val >= loExact
			} else {
				pass = pass && val > loExact
			}
		}
		if hasHiExact {
			if inclusiveHi {
				pass = pass && val <= hiExact
			} else {
				pass = pass && val < hiExact
			}
		}
		if pass {
			refined.Add(id)
		}
		return true
	})
	if loadErr != nil {
		return nil, loadErr
	}
	return refined, nil
}

// exactNumeric converts a raw metadata value into the millisecond-or-
// plain-number form range comparisons use, mirroring normalize()'s
// temporal detection but without bucketing/rounding.
func exactNumeric(raw interface{}) (float64, bool) {
	switch v := raw.(type) {
	case string:
		if ms, ok := parseTemporalString(v); ok {
			return ms, true
		}
		return 0, false
	case float64:
		if ms, ok := temporalFromNumber(v); ok {
			return ms, true
		}
		return v, true
	case float32:
		return exactNumeric(float64(v))
	case int:
		return exactNumeric(float64(v))
	case int64:
		return exactNumeric(float64(v))
	default:
		return 0, false
	}
}

// minSentinel/maxSentinel bound an unbounded range side; fields are
// single-Kind in practice (chunkstore.Value.Less orders string Kind
// before number Kind), so inferring Kind from any registered chunk is
// enough to pick the right sentinel domain.
func minSentinel(fs *fieldState) chunkstore.Value {
	if fieldKindIsString(fs) {
		return chunkstore.StringValue("")
	}
	return chunkstore.NumberValue(math.Inf(-1))
}

func maxSentinel(fs *fieldState) chunkstore.Value {
	if fieldKindIsString(fs) {
		return chunkstore.StringValue(strings.Repeat("￿", 8))
	}
	return chunkstore.NumberValue(math.Inf(1))
}

func fieldKindIsString(fs *fieldState) bool {
	ids := fs.sparse.AllChunkIDs()
	if len(ids) == 0 {
		return false
	}
	d, ok := fs.sparse.Descriptor(ids[0])
	return ok && d.Zone.Min.Kind == chunkstore.KindString
}

func (m *Manager) evalExists(ctx context.Context, field string) (*bitmap.Bitmap, error) {
	fs, err := m.loadField(ctx, field)
	if err != nil {
		return nil, err
	}
	m.mu.RLock()
	ids := fs.sparse.AllChunkIDs()
	m.mu.RUnlock()

	result := bitmap.New()
	for _, chunkID := range ids {
		c, err := m.chunks.LoadChunk(ctx, field, chunkID)
		if err != nil {
			return nil, err
		}
		if c == nil {
			continue
		}
		c.ForEach(func(_ chunkstore.Value, bm *bitmap.Bitmap) {
			result = bitmap.Or(result, bm)
		})
	}
	return result, nil
}

// evalStringScan implements startsWith/endsWith/matches: no
// accelerated index exists for these (spec §4.7), so every chunk for
// the field is scanned and each string-kind entry tested directly.
func (m *Manager) evalStringScan(ctx context.Context, field string, match func(string) bool) (*bitmap.Bitmap, error) {
	fs, err := m.loadField(ctx, field)
	if err != nil {
		return nil, err
	}
	m.mu.RLock()
	ids := fs.sparse.AllChunkIDs()
	m.mu.RUnlock()

	result := bitmap.New()
	for _, chunkID := range ids {
		c, err := m.chunks.LoadChunk(ctx, field, chunkID)
		if err != nil {
			return nil, err
		}
		if c == nil {
			continue
		}
		c.ForEach(func(v chunkstore.Value, bm *bitmap.Bitmap) {
			if v.Kind == chunkstore.KindString && match(v.Str) {
				result = bitmap.Or(result, bm)
			}
		})
	}
	return result, nil
}

func (m *Manager) evalAllOf(ctx context.Context, operands []Predicate, liveIDs *bitmap.Bitmap) (*bitmap.Bitmap, error) {
	if len(operands) == 0 {
		return liveIDs.Clone(), nil
	}
	var result *bitmap.Bitmap
	for _, op := range operands {
		bm, err := m.Eval(ctx, op, liveIDs)
		if err != nil {
			return nil, err
		}
		if result == nil {
			result = bm
		} else {
			result = bitmap.And(result, bm)
		}
		if result.IsEmpty() {
			return result, nil
		}
	}
	return result, nil
}

func (m *Manager) evalAnyOf(ctx context.Context, operands []Predicate, liveIDs *bitmap.Bitmap) (*bitmap.Bitmap, error) {
	results := make([]*bitmap.Bitmap, 0, len(operands))
	for _, op := range operands {
		bm, err := m.Eval(ctx, op, liveIDs)
		if err != nil {
			return nil, err
		}
		results = append(results, bm)
	}
	return bitmap.OrMany(results...), nil
}
