// Package metaindex implements the C7 Metadata Index Manager: field
// extraction, value normalization, the predicate language, and the
// per-field sparse-index/chunk wiring that backs it.
package metaindex

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"github.com/vecgraph/vecgraph/internal/chunkstore"
	"github.com/vecgraph/vecgraph/internal/objstore"
	"github.com/vecgraph/vecgraph/internal/sparseindex"
	"github.com/vecgraph/vecgraph/internal/xerrors"
)

// HealthyAvgEntriesPerEntity is spec §4.7's health-check ceiling: above
// this, the index is considered corrupt (expected average is ≈30).
const HealthyAvgEntriesPerEntity = 100

type fieldState struct {
	sparse      *sparseindex.SparseIndex
	distinct    int // approx distinct-value count, drives rounding heuristic
	openChunkID uint32
	hasOpen     bool
}

// Manager is the C7 Metadata Index Manager.
type Manager struct {
	mu     sync.RWMutex
	store  objstore.Store
	chunks *chunkstore.Manager
	fields map[string]*fieldState
	stats  map[string]map[string]uint64 // type -> field -> occurrence count
	log    *slog.Logger

	// exactLoader, when set, lets evalRange refine a range match past
	// the bucketed/rounded precision normalize() stores in chunks
	// (spec §9 Open Question #3, applied to filtering rather than
	// just SortIDs' sorting). Nil by default; the engine wires it to
	// an entity-store lookup once C9 exists.
	exactLoader func(ctx context.Context, id uint32, field string) (interface{}, error)
}

// NewManager builds a Manager over store, sharing a chunk cache sized
// to weightBudget bytes across every field (spec §5's unified cache).
func NewManager(store objstore.Store, weightBudget int64, log *slog.Logger) *Manager {
	if log == nil {
		log = slog.Default()
	}
	return &Manager{
		store:  store,
		chunks: chunkstore.NewManager(store, weightBudget),
		fields: make(map[string]*fieldState),
		stats:  make(map[string]map[string]uint64),
		log:    log,
	}
}

// SetExactLoader installs the exact-value loader evalRange uses to
// refine temporal/high-cardinality range matches past chunk-level
// bucketing precision. loadExact must return the same raw value
// extract.go would have seen for id's field, straight from the entity
// record rather than its normalized chunk form.
func (m *Manager) SetExactLoader(loadExact func(ctx context.Context, id uint32, field string) (interface{}, error)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.exactLoader = loadExact
}

// loadField returns (creating if necessary) the sparse index tracking
// field, loading its persisted descriptors on first touch.
func (m *Manager) loadField(ctx context.Context, field string) (*fieldState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if fs, ok := m.fields[field]; ok {
		return fs, nil
	}

	idx, err := sparseindex.Load(ctx, m.store, field)
	if err != nil {
		return nil, err
	}
	if idx == nil {
		idx = sparseindex.New(field)
	}
	fs := &fieldState{sparse: idx}
	m.fields[field] = fs
	return fs, nil
}

// AddEntity extracts, normalizes, and indexes every (field, value)
// pair from raw under intID, creating chunks as needed and splitting
// any chunk that overflows SplitThreshold.
func (m *Manager) AddEntity(ctx context.Context, entityType string, intID uint32, raw map[string]interface{}) error {
	for _, fv := range ExtractFields(raw) {
		if err := m.addOne(ctx, entityType, fv.Field, fv.Raw, intID); err != nil {
			return err
		}
	}
	return nil
}

func (m *Manager) addOne(ctx context.Context, entityType, field string, raw interface{}, intID uint32) error {
	fs, err := m.loadField(ctx, field)
	if err != nil {
		return err
	}
	m.bumpStats(entityType, field)

	highCard := isHighCardinalityCandidate(raw) && fs.distinct > highCardinalityDist
	value := normalize(raw, highCard)

	m.mu.Lock()
	defer m.mu.Unlock()

	ids := fs.sparse.FindChunksForValue(value)
	var chunkID uint32
	switch {
	case len(ids) > 0:
		chunkID = ids[0]
	case fs.hasOpen:
		chunkID = fs.openChunkID
	default:
		chunkID = fs.sparse.NextChunkID()
		fs.openChunkID = chunkID
		fs.hasOpen = true
	}

	c, err := m.chunks.LoadChunk(ctx, field, chunkID)
	if err != nil {
		return err
	}
	if c == nil {
		c = m.chunks.CreateChunk(field, chunkID)
	}

	isNew := c.Lookup(value) == nil
	c.Add(value, intID)
	if isNew {
		fs.distinct++
	}
	fs.sparse.RegisterChunk(c)

	if m.chunks.NeedsSplit(c) {
		newID := fs.sparse.NextChunkID()
		_, right := m.chunks.Split(c, newID, fs.sparse)
		fs.openChunkID = right.ChunkID
		fs.hasOpen = true
	}
	return nil
}

// RemoveEntity removes every (field, value) pair raw would have
// produced for intID, the symmetric counterpart to AddEntity. Callers
// must supply the same raw metadata the entity was added with — spec
// §9 documents delete-without-metadata as slow/unsupported here.
func (m *Manager) RemoveEntity(ctx context.Context, entityType string, intID uint32, raw map[string]interface{}) error {
	for _, fv := range ExtractFields(raw) {
		if err := m.removeOne(ctx, fv.Field, fv.Raw, intID); err != nil {
			return err
		}
	}
	return nil
}

func (m *Manager) removeOne(ctx context.Context, field string, raw interface{}, intID uint32) error {
	fs, err := m.loadField(ctx, field)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// Uses the field's current distinct-count heuristic, same as
	// AddEntity, so removal normalizes a value the same way it was
	// indexed as long as distinct doesn't cross the threshold between
	// add and remove; FindChunksForValue then still finds nothing to
	// remove in that rare case, which is a no-op, not data loss.
	value := normalize(raw, isHighCardinalityCandidate(raw) && fs.distinct > highCardinalityDist)

	for _, chunkID := range fs.sparse.FindChunksForValue(value) {
		c, err := m.chunks.LoadChunk(ctx, field, chunkID)
		if err != nil {
			return err
		}
		if c == nil {
			continue
		}
		c.Remove(value, intID)
		fs.sparse.RegisterChunk(c)
		m.tryMerge(ctx, fs, c)
	}
	return nil
}

// tryMerge merges c into an adjacent underflowed neighbor when
// eligible; best-effort, errors are logged rather than surfaced since
// merge is an optimization, not correctness-bearing.
func (m *Manager) tryMerge(ctx context.Context, fs *fieldState, c *chunkstore.Chunk) {
	if !m.chunks.EligibleForMerge(c) {
		return
	}
	ids := fs.sparse.AllChunkIDs()
	idx := sort.Search(len(ids), func(i int) bool { return ids[i] >= c.ChunkID })
	var neighborID uint32
	found := false
	if idx+1 < len(ids) && ids[idx] == c.ChunkID {
		neighborID = ids[idx+1]
		found = true
	} else if idx > 0 {
		neighborID = ids[idx-1]
		found = true
	}
	if !found {
		return
	}
	neighbor, err := m.chunks.LoadChunk(ctx, c.Field, neighborID)
	if err != nil || neighbor == nil {
		return
	}
	if _, err := m.chunks.Merge(c, neighbor, fs.sparse); err != nil {
		m.log.Debug("sparse index merge skipped", "field", c.Field, "error", err)
	}
}

// Flush persists every dirty chunk and sparse index touched since the
// last flush.
func (m *Manager) Flush(ctx context.Context) error {
	m.mu.RLock()
	fields := make([]*fieldState, 0, len(m.fields))
	for _, fs := range m.fields {
		fields = append(fields, fs)
	}
	m.mu.RUnlock()

	for _, fs := range fields {
		for _, chunkID := range fs.sparse.AllChunkIDs() {
			c, err := m.chunks.LoadChunk(ctx, fs.sparse.Field, chunkID)
			if err != nil {
				return err
			}
			if c != nil && c.Dirty() {
				if err := m.chunks.SaveChunk(ctx, c); err != nil {
					return err
				}
			}
		}
		if fs.sparse.Dirty() {
			if err := sparseindex.Save(ctx, m.store, fs.sparse); err != nil {
				return err
			}
		}
	}
	return nil
}

// bumpStats increments the (type, field) occurrence counter spec
// §4.7 uses for conjunct ordering, cache warm-up, and the health check.
func (m *Manager) bumpStats(entityType, field string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	byField, ok := m.stats[entityType]
	if !ok {
		byField = make(map[string]uint64)
		m.stats[entityType] = byField
	}
	byField[field]++
}

// Selectivity returns the average number of ids per distinct value
// across field's chunks (zone-map memberships over distinct values) —
// the estimator C10 uses to order conjuncts ascending by selectivity. A
// field the index has never seen is treated as maximally selective
// (returns 0) so unknown-field predicates are evaluated first.
func (m *Manager) Selectivity(ctx context.Context, field string) (float64, error) {
	fs, err := m.loadField(ctx, field)
	if err != nil {
		return 0, err
	}
	var memberships, values uint64
	for _, chunkID := range fs.sparse.AllChunkIDs() {
		c, err := m.chunks.LoadChunk(ctx, field, chunkID)
		if err != nil {
			return 0, err
		}
		if c != nil {
			memberships += c.Zone.Count
			values += uint64(c.Len())
		}
	}
	if values == 0 {
		return 0, nil
	}
	return float64(memberships) / float64(values), nil
}

// TotalIndexEntries sums zone-map cardinality across every field's
// chunks, the numerator of the health check's avg_entries_per_entity.
func (m *Manager) TotalIndexEntries() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var total uint64
	for _, fs := range m.fields {
		for _, chunkID := range fs.sparse.AllChunkIDs() {
			if d, ok := fs.sparse.Descriptor(chunkID); ok {
				total += d.Zone.Count
			}
		}
	}
	return total
}

// HealthCheck reports spec §4.7's avg_entries_per_entity and whether
// it falls within the healthy range.
func (m *Manager) HealthCheck(entityCount uint64) (avg float64, healthy bool) {
	if entityCount == 0 {
		return 0, true
	}
	avg = float64(m.TotalIndexEntries()) / float64(entityCount)
	return avg, avg <= HealthyAvgEntriesPerEntity
}

// Clear resets every field, chunk, and statistic — used only by
// rebuild. Spec §4.7 requires a rebuild to clear "all indices, all
// chunks ... and all caches": deleting only the sparse-index
// descriptors would leave a fresh post-rebuild SparseIndex handing out
// chunk ids starting at 0 again, re-ingesting straight into chunks
// that still hold the stale (value -> id) entries an asymmetric
// add/remove leaked — the exact leak S3/S6 require rebuild to repair.
func (m *Manager) Clear(ctx context.Context) error {
	m.mu.Lock()
	fieldStates := make(map[string]*fieldState, len(m.fields))
	for f, fs := range m.fields {
		fieldStates[f] = fs
	}
	m.fields = make(map[string]*fieldState)
	m.stats = make(map[string]map[string]uint64)
	m.mu.Unlock()

	for f, fs := range fieldStates {
		if err := m.chunks.DeleteChunks(ctx, f, fs.sparse.AllChunkIDs()); err != nil {
			return err
		}
		if err := sparseindex.Delete(ctx, m.store, f); err != nil && !xerrors.IsNotFound(err) {
			return err
		}
	}
	m.chunks.PurgeCache()
	return nil
}
