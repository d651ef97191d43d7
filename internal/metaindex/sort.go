package metaindex

import (
	"context"
	"sort"

	"github.com/vecgraph/vecgraph/internal/bitmap"
)

// SortedID pairs a matched integer id with its exact sort-field value,
// the unit spec §4.7's sorted retrieval returns — pagination applies
// to this sequence before any entity is loaded.
type SortedID struct {
	ID    uint32
	Value interface{}
}

// SortDirection selects ascending or descending order for SortIDs.
type SortDirection int

const (
	Ascending SortDirection = iota
	Descending
)

// SortIDs orders ids by field's value, loading the exact value for
// each id via loadExact rather than the (possibly bucketed) index
// value — required so sorting by a temporal field isn't limited to
// 60-second precision (spec §4.7, §9 Open Question #3). loadExact
// looks up field's raw value from the entity's metadata record; it is
// supplied by the caller (C9 entity store) so this package stays
// independent of entitystore.
func SortIDs(ctx context.Context, ids *bitmap.Bitmap, field string, dir SortDirection, loadExact func(ctx context.Context, id uint32) (interface{}, error)) ([]SortedID, error) {
	out := make([]SortedID, 0, ids.Cardinality())
	var loadErr error
	ids.Iterate(func(id uint32) bool {
		v, err := loadExact(ctx, id)
		if err != nil {
			loadErr = err
			return false
		}
		out = append(out, SortedID{ID: id, Value: v})
		return true
	})
	if loadErr != nil {
		return nil, loadErr
	}

	sort.SliceStable(out, func(i, j int) bool {
		if dir == Descending {
			return compareAny(out[j].Value, out[i].Value)
		}
		return compareAny(out[i].Value, out[j].Value)
	})
	return out, nil
}

// compareAny orders two raw metadata values for sorting: numbers by
// magnitude, strings lexicographically, anything else falls back to
// its normalized chunkstore.Value ordering so mixed-type fields still
// produce a deterministic (if not semantically meaningful) order.
func compareAny(a, b interface{}) bool {
	switch av := a.(type) {
	case float64:
		if bv, ok := b.(float64); ok {
			return av < bv
		}
	case string:
		if bv, ok := b.(string); ok {
			return av < bv
		}
	}
	return normalize(a, false).Less(normalize(b, false))
}

// Paginate slices a sorted sequence, applied before entities are
// loaded so pagination never costs O(total) entity reads.
func Paginate(sorted []SortedID, offset, limit int) []SortedID {
	if offset >= len(sorted) {
		return nil
	}
	end := offset + limit
	if limit <= 0 || end > len(sorted) {
		end = len(sorted)
	}
	return sorted[offset:end]
}
