// Package graphindex implements the HNSW insert/search algorithm atop
// C8's graphstore (topology persistence) and C9's entitystore (vector
// lookup). A monolithic in-memory graph library would delegate this
// algorithm entirely to its own internal structures; that
// library's whole-graph Export/Import API can't express C8's
// per-node-addressable, optimistically-concurrent records, so this
// package reimplements the traversal directly against graphstore.Store
// while keeping conventional HNSW distance-function and normalization
// idioms (see distance.go).
package graphindex

import (
	"context"
	"math"
	"math/rand"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/vecgraph/vecgraph/internal/entitystore"
	"github.com/vecgraph/vecgraph/internal/graphstore"
	"github.com/vecgraph/vecgraph/internal/xerrors"
)

// Index is the HNSW proximity graph: insert and k-nearest-neighbor
// search operating on top of a graphstore.Store for topology and an
// entitystore.Store for vectors.
type Index struct {
	graph    *graphstore.Store
	entities *entitystore.Store
	params   Params
	dist     func(a, b []float32) float32

	rngMu sync.Mutex
	rng   *rand.Rand
}

// New creates an Index with the given params, backed by graph for
// topology and entities for vector lookup.
func New(graph *graphstore.Store, entities *entitystore.Store, params Params) *Index {
	return &Index{
		graph:    graph,
		entities: entities,
		params:   params,
		dist:     distanceFunc(params.Metric),
		rng:      rand.New(rand.NewSource(1)),
	}
}

// Result is one k-NN search hit.
type Result struct {
	ID       uuid.UUID
	Distance float32
	Score    float32
}

type candidate struct {
	id   uuid.UUID
	dist float32
}

func (ix *Index) randomLevel() int {
	ix.rngMu.Lock()
	r := ix.rng.Float64()
	ix.rngMu.Unlock()
	if r <= 0 {
		r = 1e-12
	}
	return int(math.Floor(-math.Log(r) * ix.params.LevelFactor))
}

func (ix *Index) vectorOf(ctx context.Context, id uuid.UUID) ([]float32, error) {
	n, err := ix.entities.GetNoun(ctx, id)
	if err != nil {
		return nil, err
	}
	if !n.HasVector() {
		return nil, xerrors.New(xerrors.NotFound, "noun has no vector: "+id.String())
	}
	return n.Vector, nil
}

func (ix *Index) distanceTo(ctx context.Context, query []float32, id uuid.UUID) (float32, error) {
	v, err := ix.vectorOf(ctx, id)
	if err != nil {
		return 0, err
	}
	return ix.dist(query, v), nil
}

// prepareVector clones vector and normalizes it in place under
// cosine metric, the standard pre-insert/pre-search step.
func (ix *Index) prepareVector(vector []float32) []float32 {
	v := make([]float32, len(vector))
	copy(v, vector)
	if ix.params.Metric != "euclidean" {
		normalizeInPlace(v)
	}
	return v
}

// Insert adds id to the proximity graph using its currently stored
// vector (the caller must have already written id's vector record via
// entitystore before calling Insert). Concurrent inserts that touch
// the same neighbor record are safe: every topology mutation goes
// through graphstore.Store.UpdateNode's optimistic-concurrency RMW.
func (ix *Index) Insert(ctx context.Context, id uuid.UUID) error {
	vec, err := ix.vectorOf(ctx, id)
	if err != nil {
		return err
	}
	vec = ix.prepareVector(vec)
	level := ix.randomLevel()

	state, err := ix.graph.GetSystemState(ctx)
	if err != nil {
		return err
	}

	if state.EntryPointID == nil {
		node := graphstore.Node{ID: id}
		node.EnsureLevel(level)
		if err := ix.graph.CreateNode(ctx, node); err != nil {
			return err
		}
		return ix.graph.UpdateSystemState(ctx, func(st *graphstore.SystemState) error {
			st.EntryPointID = &id
			st.MaxLevel = level
			return nil
		})
	}

	entry := *state.EntryPointID
	if entry == id {
		return nil // already the sole entry point; nothing to link yet
	}

	// Descend greedily from the current max level down to one above
	// this node's level, refining the entry point at each rung (ef=1).
	for lvl := state.MaxLevel; lvl > level; lvl-- {
		found, err := ix.searchLayer(ctx, vec, []uuid.UUID{entry}, 1, lvl)
		if err != nil {
			return err
		}
		if len(found) > 0 {
			entry = found[0].id
		}
	}

	entryPoints := []uuid.UUID{entry}
	top := level
	if state.MaxLevel < top {
		top = state.MaxLevel
	}
	for lvl := top; lvl >= 0; lvl-- {
		candidates, err := ix.searchLayer(ctx, vec, entryPoints, ix.params.EfConstruction, lvl)
		if err != nil {
			return err
		}
		chosen := selectNeighbors(candidates, ix.params.maxNeighbors(lvl))

		if err := ix.graph.UpdateNode(ctx, id, func(n *graphstore.Node) error {
			n.EnsureLevel(lvl)
			n.NeighborsPerLevel[lvl] = idsOf(chosen)
			return nil
		}); err != nil {
			return err
		}

		for _, c := range chosen {
			neighborID := c.id
			if err := ix.linkBack(ctx, neighborID, id, lvl); err != nil {
				return err
			}
		}

		if len(candidates) > 0 {
			entryPoints = idsOf(candidates)
		}
	}

	if level > state.MaxLevel {
		return ix.graph.UpdateSystemState(ctx, func(st *graphstore.SystemState) error {
			st.EntryPointID = &id
			st.MaxLevel = level
			return nil
		})
	}
	return nil
}

// linkBack adds newID to neighborID's neighbor list at lvl, pruning
// back down to the level's neighbor cap by distance if it overflows —
// the mutual-linking step spec §4.8 calls out as the concurrency-
// critical path, made safe here by UpdateNode's per-key RMW.
func (ix *Index) linkBack(ctx context.Context, neighborID, newID uuid.UUID, lvl int) error {
	neighborVec, err := ix.vectorOf(ctx, neighborID)
	if err != nil {
		if xerrors.IsNotFound(err) {
			return nil // orphaned topology entry; nothing to link
		}
		return err
	}

	return ix.graph.UpdateNode(ctx, neighborID, func(n *graphstore.Node) error {
		n.EnsureLevel(lvl)
		n.NeighborsPerLevel[lvl] = appendUnique(n.NeighborsPerLevel[lvl], newID)

		cap := ix.params.maxNeighbors(lvl)
		if len(n.NeighborsPerLevel[lvl]) <= cap {
			return nil
		}
		cands := make([]candidate, 0, len(n.NeighborsPerLevel[lvl]))
		for _, nb := range n.NeighborsPerLevel[lvl] {
			v, err := ix.vectorOf(ctx, nb)
			if err != nil {
				continue
			}
			cands = append(cands, candidate{id: nb, dist: ix.dist(neighborVec, v)})
		}
		sort.Slice(cands, func(i, j int) bool { return cands[i].dist < cands[j].dist })
		if len(cands) > cap {
			cands = cands[:cap]
		}
		n.NeighborsPerLevel[lvl] = idsOf(cands)
		return nil
	})
}

// Search returns up to k nearest neighbors of query. ef, when
// positive, overrides Params.EfSearch for this call.
func (ix *Index) Search(ctx context.Context, query []float32, k, ef int) ([]Result, error) {
	if ef <= 0 {
		ef = ix.params.EfSearch
	}
	if ef < k {
		ef = k
	}

	state, err := ix.graph.GetSystemState(ctx)
	if err != nil {
		return nil, err
	}
	if state.EntryPointID == nil {
		return nil, nil
	}

	vec := ix.prepareVector(query)
	entry := *state.EntryPointID

	for lvl := state.MaxLevel; lvl > 0; lvl-- {
		found, err := ix.searchLayer(ctx, vec, []uuid.UUID{entry}, 1, lvl)
		if err != nil {
			return nil, err
		}
		if len(found) > 0 {
			entry = found[0].id
		}
	}

	found, err := ix.searchLayer(ctx, vec, []uuid.UUID{entry}, ef, 0)
	if err != nil {
		return nil, err
	}
	if len(found) > k {
		found = found[:k]
	}

	results := make([]Result, len(found))
	for i, c := range found {
		results[i] = Result{ID: c.id, Distance: c.dist, Score: distanceToScore(c.dist, ix.params.Metric)}
	}
	return results, nil
}

// searchLayer is a simplified best-first expansion from entryPoints
// at the given level: it keeps growing the candidate set from each
// unvisited node's neighbors until no candidate closer than the
// current ef-th best remains to expand. It isn't a textbook
// priority-queue-driven best-first search (candidates are resorted
// after each expansion rather than popped from a heap), which is fine
// at the node counts this store targets and keeps the traversal
// readable.
func (ix *Index) searchLayer(ctx context.Context, query []float32, entryPoints []uuid.UUID, ef, level int) ([]candidate, error) {
	visited := make(map[uuid.UUID]bool, len(entryPoints))
	var candidates []candidate

	for _, id := range entryPoints {
		if visited[id] {
			continue
		}
		visited[id] = true
		d, err := ix.distanceTo(ctx, query, id)
		if err != nil {
			if xerrors.IsNotFound(err) {
				continue
			}
			return nil, err
		}
		candidates = append(candidates, candidate{id: id, dist: d})
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].dist < candidates[j].dist })

	for i := 0; i < len(candidates); i++ {
		c := candidates[i]
		if len(candidates) >= ef && c.dist > candidates[minInt(ef, len(candidates))-1].dist {
			break
		}

		node, _, err := ix.graph.GetNode(ctx, c.id)
		if err != nil {
			if xerrors.IsNotFound(err) {
				continue
			}
			return nil, err
		}

		grew := false
		for _, neighborID := range node.NeighborsAt(level) {
			if visited[neighborID] {
				continue
			}
			visited[neighborID] = true
			d, err := ix.distanceTo(ctx, query, neighborID)
			if err != nil {
				if xerrors.IsNotFound(err) {
					continue
				}
				return nil, err
			}
			candidates = append(candidates, candidate{id: neighborID, dist: d})
			grew = true
		}
		if grew {
			sort.Slice(candidates, func(a, b int) bool { return candidates[a].dist < candidates[b].dist })
		}
	}

	if len(candidates) > ef {
		candidates = candidates[:ef]
	}
	return candidates, nil
}

// selectNeighbors is the "simple" HNSW neighbor-selection heuristic:
// keep the max closest candidates by distance. Spec doesn't call for
// the diversity-aware heuristic variant, so this keeps the simpler
// top-M-by-distance selection with no diversity pass.
func selectNeighbors(candidates []candidate, max int) []candidate {
	sorted := make([]candidate, len(candidates))
	copy(sorted, candidates)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].dist < sorted[j].dist })
	if len(sorted) > max {
		sorted = sorted[:max]
	}
	return sorted
}

func idsOf(cands []candidate) []uuid.UUID {
	ids := make([]uuid.UUID, len(cands))
	for i, c := range cands {
		ids[i] = c.id
	}
	return ids
}

func appendUnique(ids []uuid.UUID, id uuid.UUID) []uuid.UUID {
	for _, existing := range ids {
		if existing == id {
			return ids
		}
	}
	return append(ids, id)
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
