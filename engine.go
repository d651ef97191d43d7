// Package vecgraph is the embeddable graph-and-vector store: metadata
// indexing (C6/C7), an object-store abstraction (C3/C4), and HNSW
// persistence (C8/graphindex) wired together behind one Engine, a
// single top-level handle. Engine is the only exported surface; every
// Cn package stays internal.
package vecgraph

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vecgraph/vecgraph/internal/bitmap"
	"github.com/vecgraph/vecgraph/internal/entitystore"
	"github.com/vecgraph/vecgraph/internal/graphindex"
	"github.com/vecgraph/vecgraph/internal/graphstore"
	"github.com/vecgraph/vecgraph/internal/idmap"
	"github.com/vecgraph/vecgraph/internal/metaindex"
	"github.com/vecgraph/vecgraph/internal/objstore"
	"github.com/vecgraph/vecgraph/internal/planner"
	"github.com/vecgraph/vecgraph/internal/writebuffer"
	"github.com/vecgraph/vecgraph/internal/xerrors"
	"github.com/vecgraph/vecgraph/pkg/version"
)

// EngineConfig is a plain struct the caller builds directly; there is
// no env/flag/YAML parsing layer (spec scopes that kind of outer
// surface out — see SPEC_FULL.md §A.3). Backend is the only required
// field; everything else has a sensible default via DefaultEngineConfig.
type EngineConfig struct {
	// Backend is the underlying object store (local, S3, or in-memory)
	// every other component is built on top of, wrapped in the engine's
	// coalescing write buffer.
	Backend objstore.Store

	WriteBuffer writebuffer.Config
	GraphParams graphindex.Params

	// CacheWeightBudget bounds entitystore's noun/verb LRU caches and
	// metaindex's chunk cache independently (spec §5's weighted-LRU
	// eviction).
	CacheWeightBudget int64

	// RebuildBreakerMaxFailures/RebuildBreakerResetTimeout configure
	// the circuit breaker guarding Rebuild, so a corrupted store that
	// keeps failing to rebuild doesn't get hammered on every query
	// (spec's health-check auto-repair loop).
	RebuildBreakerMaxFailures  int
	RebuildBreakerResetTimeout time.Duration

	Logger *slog.Logger
}

// DefaultEngineConfig returns an EngineConfig wired to backend with
// reasonable defaults for cache sizing and backoff.
func DefaultEngineConfig(backend objstore.Store) EngineConfig {
	return EngineConfig{
		Backend:                    backend,
		WriteBuffer:                writebuffer.DefaultConfig(),
		GraphParams:                graphindex.DefaultParams(),
		CacheWeightBudget:          64 << 20,
		RebuildBreakerMaxFailures:  5,
		RebuildBreakerResetTimeout: 30 * time.Second,
	}
}

// Engine is the embeddable store: it owns every Cn component and
// exposes the write/query control flow spec.md §2 describes as one
// cohesive API.
type Engine struct {
	backend  *writebuffer.BufferedStore
	ids      *idmap.Mapper
	entities *entitystore.Store
	meta     *metaindex.Manager
	graph    *graphstore.Store
	index    *graphindex.Index
	breaker  *xerrors.CircuitBreaker
	log      *slog.Logger
	metric   string

	liveMu    sync.RWMutex
	liveIDs   *bitmap.Bitmap
	liveDirty bool
}

// NewEngine constructs an Engine from cfg, loading whatever state
// already exists under cfg.Backend (the id mapper, the live-id roster,
// entitystore's aggregate counts).
func NewEngine(ctx context.Context, cfg EngineConfig) (*Engine, error) {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}

	backend := writebuffer.NewBufferedStore(cfg.Backend, cfg.WriteBuffer)

	ids, err := idmap.Load(ctx, backend)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.Internal, "load id mapper", err)
	}
	entities, err := entitystore.Open(ctx, backend, cfg.CacheWeightBudget, log)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.Internal, "open entity store", err)
	}
	meta := metaindex.NewManager(backend, cfg.CacheWeightBudget, log)
	graph := graphstore.New(backend)
	index := graphindex.New(graph, entities, cfg.GraphParams)

	liveIDs, err := loadLiveIDs(ctx, backend)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.Internal, "load live id roster", err)
	}

	breaker := xerrors.NewCircuitBreaker("rebuild", cfg.RebuildBreakerMaxFailures, cfg.RebuildBreakerResetTimeout)

	e := &Engine{
		backend:  backend,
		ids:      ids,
		entities: entities,
		meta:     meta,
		graph:    graph,
		index:    index,
		breaker:  breaker,
		log:      log,
		metric:   cfg.GraphParams.Metric,
		liveIDs:  liveIDs,
	}
	meta.SetExactLoader(e.loadExactField)
	return e, nil
}

// loadExactField is the metaindex.Manager exact-value loader: it
// resolves id back to a UUID and reads field straight from whichever
// entity record (noun or verb) actually carries it, so range queries
// on a temporal or high-cardinality field aren't limited to chunk-
// level bucketing/rounding precision (spec §9 Open Question #3).
func (e *Engine) loadExactField(ctx context.Context, id uint32, field string) (interface{}, error) {
	entityID, ok := e.ids.Resolve(id)
	if !ok {
		return nil, xerrors.New(xerrors.NotFound, "id not interned")
	}
	// entitystore.GetNoun/GetVerb return a zero-value record with a nil
	// error when the id is absent (the lazy-load-sentinel convention,
	// spec §5) rather than a NotFound error, so presence is read off
	// the record's Type/Metadata rather than the error.
	n, err := e.entities.GetNoun(ctx, entityID)
	if err != nil {
		return nil, err
	}
	if n.Type != "" {
		if field == "noun" {
			return n.Type, nil
		}
		if val, ok := n.Metadata[field]; ok {
			return val, nil
		}
		return nil, xerrors.New(xerrors.NotFound, "field not found on entity")
	}

	v, err := e.entities.GetVerb(ctx, entityID)
	if err != nil {
		return nil, err
	}
	if field == "noun" {
		return v.Type, nil
	}
	if val, ok := v.Metadata[field]; ok {
		return val, nil
	}
	return nil, xerrors.New(xerrors.NotFound, "field not found on entity")
}

// mergeTypeField copies metadata and sets its "type" key to
// entityType, the shape metaindex.ExtractFields requires (spec §4.7):
// entityType also drives bumpStats' per-type bucketing, so it's passed
// alongside rather than read back out of the map.
func mergeTypeField(metadata map[string]interface{}, entityType string) map[string]interface{} {
	raw := make(map[string]interface{}, len(metadata)+1)
	for k, v := range metadata {
		raw[k] = v
	}
	raw["type"] = entityType
	return raw
}

func (e *Engine) markLive(intID uint32) {
	e.liveMu.Lock()
	e.liveIDs.Add(intID)
	e.liveDirty = true
	e.liveMu.Unlock()
}

func (e *Engine) markDead(intID uint32) {
	e.liveMu.Lock()
	e.liveIDs.Remove(intID)
	e.liveDirty = true
	e.liveMu.Unlock()
}

func (e *Engine) liveSnapshot() *bitmap.Bitmap {
	e.liveMu.RLock()
	defer e.liveMu.RUnlock()
	return e.liveIDs.Clone()
}

// AddNoun ingests a noun (spec §2's write flow): C9 persists the
// vector/metadata records, C7 extracts indexable fields keyed by a C1
// integer id, and — if the noun carries a vector — C8/graphindex links
// it into the proximity graph.
func (e *Engine) AddNoun(ctx context.Context, n entitystore.Noun) error {
	if err := e.entities.PutNoun(ctx, n); err != nil {
		return err
	}
	intID := e.ids.GetOrIntern(n.ID)
	if err := e.meta.AddEntity(ctx, n.Type, intID, mergeTypeField(n.Metadata, n.Type)); err != nil {
		return err
	}
	if n.HasVector() {
		if err := e.index.Insert(ctx, n.ID); err != nil {
			return err
		}
	}
	e.markLive(intID)
	return nil
}

// AddVerb is AddNoun's analogue for verbs. Verbs are never graph-
// indexed: spec §6's key layout has no verbs/hnsw path, since
// proximity search operates over noun embeddings only.
func (e *Engine) AddVerb(ctx context.Context, v entitystore.Verb) error {
	if err := e.entities.PutVerb(ctx, v); err != nil {
		return err
	}
	intID := e.ids.GetOrIntern(v.ID)
	if err := e.meta.AddEntity(ctx, v.Type, intID, mergeTypeField(v.Metadata, v.Type)); err != nil {
		return err
	}
	e.markLive(intID)
	return nil
}

// RemoveNoun removes a noun's records and its metadata-index entries.
// nounType and metadata must match what was last passed to AddNoun;
// entitystore.DeleteNoun's doc comment notes the same requirement for
// its own per-type counts (spec §9: deleting without the caller having
// the metadata at hand is allowed but documented as slow, since the
// caller is expected to look it up first in that case). The graph node
// itself, if any, is left in place: graphindex's traversal already
// tolerates a neighbor whose vector record is gone by skipping it
// (vectorOf returns NotFound), so an orphaned node is a stale entry
// pruned lazily rather than eagerly.
func (e *Engine) RemoveNoun(ctx context.Context, id uuid.UUID, nounType string, metadata map[string]interface{}) error {
	intID, ok := e.ids.Get(id)
	if !ok {
		return xerrors.New(xerrors.NotFound, "noun not interned")
	}
	if err := e.meta.RemoveEntity(ctx, nounType, intID, mergeTypeField(metadata, nounType)); err != nil {
		return err
	}
	if err := e.entities.DeleteNoun(ctx, id, nounType); err != nil {
		return err
	}
	e.markDead(intID)
	return nil
}

// RemoveVerb is RemoveNoun's analogue for verbs.
func (e *Engine) RemoveVerb(ctx context.Context, id uuid.UUID, verbType string, metadata map[string]interface{}) error {
	intID, ok := e.ids.Get(id)
	if !ok {
		return xerrors.New(xerrors.NotFound, "verb not interned")
	}
	if err := e.meta.RemoveEntity(ctx, verbType, intID, mergeTypeField(metadata, verbType)); err != nil {
		return err
	}
	if err := e.entities.DeleteVerb(ctx, id, verbType); err != nil {
		return err
	}
	e.markDead(intID)
	return nil
}

// Query evaluates pred over the metadata index (spec §2's query flow):
// C7 parses the predicate (the caller's job, via the metaindex.Predicate
// constructors), C10 orders its conjuncts by estimated selectivity and
// resolves each through C6/C5/C2, and the final bitmap is translated
// back to external UUIDs through C1.
func (e *Engine) Query(ctx context.Context, pred metaindex.Predicate) ([]uuid.UUID, error) {
	result, err := planner.Plan(ctx, e.meta, pred, e.liveSnapshot())
	if err != nil {
		return nil, err
	}
	return e.ids.BulkResolve(result.ToSlice()), nil
}

// VectorSearch returns the k nouns whose vectors are nearest query,
// using ef's default from the engine's graph parameters.
func (e *Engine) VectorSearch(ctx context.Context, query []float32, k int) ([]graphindex.Result, error) {
	return e.index.Search(ctx, query, k, 0)
}

// HybridSearch filters by pred first, then ranks only that candidate
// set's vectors against query by brute force. This is the filter-then-
// rank order, not rank-then-filter: graphindex's traversal can't be
// restricted to an arbitrary candidate subset mid-search, so narrowing
// by predicate before ranking is the direction that composes with the
// graph's API as it stands.
func (e *Engine) HybridSearch(ctx context.Context, pred metaindex.Predicate, query []float32, k int) ([]graphindex.Result, error) {
	filtered, err := planner.Plan(ctx, e.meta, pred, e.liveSnapshot())
	if err != nil {
		return nil, err
	}

	candidates := filtered.ToSlice()
	results := make([]graphindex.Result, 0, len(candidates))
	for _, intID := range candidates {
		id, ok := e.ids.Resolve(intID)
		if !ok {
			continue
		}
		n, err := e.entities.GetNoun(ctx, id)
		if xerrors.IsNotFound(err) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if !n.HasVector() {
			continue
		}
		dist := graphindex.Distance(e.metric, query, n.Vector)
		results = append(results, graphindex.Result{
			ID:       id,
			Distance: dist,
			Score:    graphindex.Score(dist, e.metric),
		})
	}

	sortResultsByDistance(results)
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

func sortResultsByDistance(results []graphindex.Result) {
	for i := 1; i < len(results); i++ {
		for j := i; j > 0 && results[j].Distance < results[j-1].Distance; j-- {
			results[j], results[j-1] = results[j-1], results[j]
		}
	}
}

// Flush forces every subsystem's pending writes through to the
// backend: idmap and entitystore batch their own small aggregate
// records, metaindex batches dirty chunks/sparse indices, and the
// engine's own live-id roster batches alongside them — all of it
// ultimately routed through the same BufferedStore, which this then
// drains.
func (e *Engine) Flush(ctx context.Context) error {
	if err := e.ids.Flush(ctx); err != nil {
		return err
	}
	if err := e.entities.Flush(ctx); err != nil {
		return err
	}
	if err := e.meta.Flush(ctx); err != nil {
		return err
	}
	e.liveMu.Lock()
	dirty := e.liveDirty
	snapshot := e.liveIDs.Clone()
	e.liveMu.Unlock()
	if dirty {
		if err := saveLiveIDs(ctx, e.backend, snapshot); err != nil {
			return err
		}
		e.liveMu.Lock()
		e.liveDirty = false
		e.liveMu.Unlock()
	}
	return e.backend.Flush(ctx)
}

// Close flushes then releases the underlying backend.
func (e *Engine) Close(ctx context.Context) error {
	if err := e.Flush(ctx); err != nil {
		return err
	}
	return e.backend.Close()
}

// Stats is a point-in-time diagnostics snapshot, modeled on a
// standard index-info command (SPEC_FULL.md §C).
type Stats struct {
	Counts            entitystore.Counts
	TotalIndexEntries uint64
	LiveEntities      uint64
	RebuildBreaker    xerrors.CircuitState
	Build             version.BuildInfo
}

// Stats reports a snapshot of the engine's current state.
func (e *Engine) Stats() Stats {
	return Stats{
		Counts:            e.entities.Counts(),
		TotalIndexEntries: e.meta.TotalIndexEntries(),
		LiveEntities:      e.liveSnapshot().Cardinality(),
		RebuildBreaker:    e.breaker.State(),
		Build:             version.GetInfo(),
	}
}

// Rebuild rebuilds the metadata index from the entity store's own
// records, guarded by a circuit breaker so a store that keeps failing
// to rebuild cleanly stops retrying on every call within the cooldown
// window (spec's health-check auto-repair loop).
func (e *Engine) Rebuild(ctx context.Context) error {
	if !e.breaker.Allow() {
		return xerrors.ErrCircuitOpen
	}

	err := e.meta.Rebuild(ctx, e.backend, e.scanEntityPage)
	if err != nil {
		e.breaker.RecordFailure()
		return err
	}
	e.breaker.RecordSuccess()
	return nil
}

// scanEntityPage adapts entitystore's noun/verb listings into the
// EntityPage shape metaindex.Rebuild expects, nouns first then verbs,
// each paginated by its own cursor namespaced so Rebuild's single
// opaque cursor can tell which listing it resumed into.
func (e *Engine) scanEntityPage(ctx context.Context, cursor string) (metaindex.EntityPage, error) {
	const (
		nounPrefix = "n:"
		verbPrefix = "v:"
	)

	nounCursor, verbCursor := "", ""
	onVerbs := false
	switch {
	case cursor == "":
		// start on nouns
	case len(cursor) >= 2 && cursor[:2] == nounPrefix:
		nounCursor = cursor[2:]
	case len(cursor) >= 2 && cursor[:2] == verbPrefix:
		onVerbs = true
		verbCursor = cursor[2:]
	}

	if !onVerbs {
		page, err := e.entities.ListNouns(ctx, nounCursor, 200)
		if err != nil {
			return metaindex.EntityPage{}, err
		}
		records, err := e.loadNounRecords(ctx, page.IDs)
		if err != nil {
			return metaindex.EntityPage{}, err
		}
		if !page.Done {
			return metaindex.EntityPage{Entities: records, Cursor: nounPrefix + page.Cursor, Done: false}, nil
		}
		// nouns exhausted, hand off to verbs starting from the top
		return metaindex.EntityPage{Entities: records, Cursor: verbPrefix, Done: false}, nil
	}

	page, err := e.entities.ListVerbs(ctx, verbCursor, 200)
	if err != nil {
		return metaindex.EntityPage{}, err
	}
	records, err := e.loadVerbRecords(ctx, page.IDs)
	if err != nil {
		return metaindex.EntityPage{}, err
	}
	return metaindex.EntityPage{Entities: records, Cursor: verbPrefix + page.Cursor, Done: page.Done}, nil
}

func (e *Engine) loadNounRecords(ctx context.Context, ids []uuid.UUID) ([]metaindex.EntityRecord, error) {
	records := make([]metaindex.EntityRecord, 0, len(ids))
	for _, id := range ids {
		n, err := e.entities.GetNoun(ctx, id)
		if xerrors.IsNotFound(err) {
			continue
		}
		if err != nil {
			return nil, err
		}
		intID, ok := e.ids.Get(id)
		if !ok {
			intID = e.ids.GetOrIntern(id)
		}
		records = append(records, metaindex.EntityRecord{
			IntID:    intID,
			Type:     n.Type,
			Metadata: mergeTypeField(n.Metadata, n.Type),
		})
	}
	return records, nil
}

func (e *Engine) loadVerbRecords(ctx context.Context, ids []uuid.UUID) ([]metaindex.EntityRecord, error) {
	records := make([]metaindex.EntityRecord, 0, len(ids))
	for _, id := range ids {
		v, err := e.entities.GetVerb(ctx, id)
		if xerrors.IsNotFound(err) {
			continue
		}
		if err != nil {
			return nil, err
		}
		intID, ok := e.ids.Get(id)
		if !ok {
			intID = e.ids.GetOrIntern(id)
		}
		records = append(records, metaindex.EntityRecord{
			IntID:    intID,
			Type:     v.Type,
			Metadata: mergeTypeField(v.Metadata, v.Type),
		})
	}
	return records, nil
}
