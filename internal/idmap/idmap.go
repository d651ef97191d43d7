// Package idmap implements the C1 ID Interner: a bijection between
// external UUIDs and dense 32-bit integers, used everywhere a bitmap
// (internal/bitmap) needs to hold entity references cheaply. Integers
// are assigned monotonically and never reused; the bijection is
// append-only except through an explicit Clear, which only the rebuild
// path calls.
package idmap

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/vecgraph/vecgraph/internal/objstore"
	"github.com/vecgraph/vecgraph/internal/xerrors"
)

// Key is the well-known object-store path the mapper is persisted under.
const Key = "__entity_id_mapper__"

// Mapper is the C1 ID Interner. All in-memory operations are pure and
// synchronous; Flush is the only operation that talks to the object
// store. The zero value is not usable — construct with New or Load.
type Mapper struct {
	mu        sync.RWMutex
	uuidToInt map[uuid.UUID]uint32
	intToUUID []uuid.UUID
	nextID    uint32
	store     objstore.Store
	dirty     bool
}

// New creates an empty Mapper backed by store.
func New(store objstore.Store) *Mapper {
	return &Mapper{
		uuidToInt: make(map[uuid.UUID]uint32),
		store:     store,
	}
}

// Load reads the persisted bijection from store. A NotFound at Key is
// not an error — it means the store is new — and Load returns an empty
// Mapper in that case.
func Load(ctx context.Context, store objstore.Store) (*Mapper, error) {
	obj, err := store.Get(ctx, Key)
	if xerrors.IsNotFound(err) {
		return New(store), nil
	}
	if err != nil {
		return nil, err
	}

	persisted, err := decode(obj.Value)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.Corrupted, "decode id mapper", err)
	}

	m := New(store)
	for s, i := range persisted.UUIDToInt {
		u, err := uuid.Parse(s)
		if err != nil {
			return nil, xerrors.Wrap(xerrors.Corrupted, "parse interned uuid", err)
		}
		m.uuidToInt[u] = i
	}
	m.intToUUID = make([]uuid.UUID, len(persisted.IntToUUID))
	for i, s := range persisted.IntToUUID {
		u, err := uuid.Parse(s)
		if err != nil {
			return nil, xerrors.Wrap(xerrors.Corrupted, "parse resolved uuid", err)
		}
		m.intToUUID[i] = u
	}
	m.nextID = persisted.NextID
	return m, nil
}

// GetOrIntern returns the existing integer id for u, or assigns the next
// available one and returns that. Never returns two different ids for
// the same UUID.
func (m *Mapper) GetOrIntern(u uuid.UUID) uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()

	if id, ok := m.uuidToInt[u]; ok {
		return id
	}

	id := m.nextID
	m.nextID++
	m.uuidToInt[u] = id
	m.intToUUID = append(m.intToUUID, u)
	m.dirty = true
	return id
}

// Get is a pure lookup; it never mutates the mapper.
func (m *Mapper) Get(u uuid.UUID) (uint32, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.uuidToInt[u]
	return id, ok
}

// Resolve maps an integer id back to its UUID.
func (m *Mapper) Resolve(id uint32) (uuid.UUID, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if int(id) >= len(m.intToUUID) {
		return uuid.UUID{}, false
	}
	return m.intToUUID[id], true
}

// BulkResolve resolves a slice of integer ids, preserving order.
// Unknown ids are dropped: this cannot happen in a correctly maintained
// store, but defends a bitmap iteration against a corrupted int that
// outran the mapper.
func (m *Mapper) BulkResolve(ids []uint32) []uuid.UUID {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if int(id) >= len(m.intToUUID) {
			continue
		}
		out = append(out, m.intToUUID[id])
	}
	return out
}

// Clear resets the bijection. Only the rebuild path calls this.
func (m *Mapper) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.uuidToInt = make(map[uuid.UUID]uint32)
	m.intToUUID = nil
	m.nextID = 0
	m.dirty = true
}

// Len reports how many UUIDs have ever been interned.
func (m *Mapper) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.intToUUID)
}
