// Package planner implements the C10 Query Planner: the thin layer
// between a parsed predicate AST and C7's Eval. It owns exactly the
// piece Eval doesn't do on its own — ordering an allOf's conjuncts by
// estimated selectivity before evaluating them — and otherwise
// delegates straight to metaindex.Manager.Eval, which already
// supplies AND/OR/AND-NOT combination and empty-bitmap short-circuit
// (spec §4.10 steps 3-5).
package planner

import (
	"context"
	"sort"

	"github.com/vecgraph/vecgraph/internal/bitmap"
	"github.com/vecgraph/vecgraph/internal/metaindex"
)

// Plan evaluates pred against m, ordering any top-level allOf's
// conjuncts ascending by selectivity (spec §4.10 steps 1-2) before
// delegating to Manager.Eval for each. liveIDs is the roster of every
// currently interned id, passed straight through to Eval for ne/not/
// missing's complement semantics.
func Plan(ctx context.Context, m *metaindex.Manager, pred metaindex.Predicate, liveIDs *bitmap.Bitmap) (*bitmap.Bitmap, error) {
	if pred.Op != metaindex.OpAllOf {
		return m.Eval(ctx, pred, liveIDs)
	}

	conjuncts := flatten(pred.Operands)
	ordered, err := orderBySelectivity(ctx, m, conjuncts)
	if err != nil {
		return nil, err
	}

	if len(ordered) == 0 {
		return liveIDs.Clone(), nil
	}

	var result *bitmap.Bitmap
	for _, c := range ordered {
		bm, err := Plan(ctx, m, c, liveIDs)
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

// flatten recursively lifts nested allOf operands into one flat
// conjunct list (spec §4.10 step 1: "flatten the AST into disjoint
// conjuncts where possible"). anyOf/not/leaf predicates are kept as
// single opaque conjuncts; only allOf nests flatten.
func flatten(preds []metaindex.Predicate) []metaindex.Predicate {
	var out []metaindex.Predicate
	for _, p := range preds {
		if p.Op == metaindex.OpAllOf {
			out = append(out, flatten(p.Operands)...)
			continue
		}
		out = append(out, p)
	}
	return out
}

// orderBySelectivity sorts conjuncts ascending by estimated
// selectivity (lowest cardinality first), so the cheapest filter to
// evaluate narrows the candidate set before costlier ones run.
// Compound conjuncts (anyOf/not) have no single field to estimate
// against; they sort after every leaf, in their given relative order.
func orderBySelectivity(ctx context.Context, m *metaindex.Manager, conjuncts []metaindex.Predicate) ([]metaindex.Predicate, error) {
	type scored struct {
		pred  metaindex.Predicate
		score float64
		leaf  bool
	}

	scoredConjuncts := make([]scored, len(conjuncts))
	for i, c := range conjuncts {
		field := leafField(c)
		if field == "" {
			scoredConjuncts[i] = scored{pred: c, score: 0, leaf: false}
			continue
		}
		sel, err := m.Selectivity(ctx, field)
		if err != nil {
			return nil, err
		}
		scoredConjuncts[i] = scored{pred: c, score: sel, leaf: true}
	}

	sort.SliceStable(scoredConjuncts, func(i, j int) bool {
		a, b := scoredConjuncts[i], scoredConjuncts[j]
		if a.leaf != b.leaf {
			return a.leaf // leaves sort before compound conjuncts
		}
		if !a.leaf {
			return false // preserve relative order among compound conjuncts
		}
		return a.score < b.score
	})

	ordered := make([]metaindex.Predicate, len(scoredConjuncts))
	for i, s := range scoredConjuncts {
		ordered[i] = s.pred
	}
	return ordered, nil
}

// leafField returns the single field a predicate filters on, or ""
// for compound predicates (allOf/anyOf/not) that don't reduce to one.
func leafField(p metaindex.Predicate) string {
	switch p.Op {
	case metaindex.OpAllOf, metaindex.OpAnyOf, metaindex.OpNot:
		return ""
	default:
		return p.Field
	}
}
