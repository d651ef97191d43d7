package objstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"sync"

	"github.com/vecgraph/vecgraph/internal/xerrors"
)

// MemoryStore is an in-process Store backed by a map, guarded by a
// single RWMutex — the same locking discipline a simple in-memory
// vector index uses for its idMap/keyMap. It never routes
// through the coalescing write buffer (IsCloudStorage is false), and is
// the backend engines use for tests and ephemeral scratch indices.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string]*Object
}

// NewMemoryStore creates an empty in-memory object store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: make(map[string]*Object)}
}

func etagFor(value []byte) string {
	sum := sha256.Sum256(value)
	return hex.EncodeToString(sum[:8])
}

// Put implements Store.
func (m *MemoryStore) Put(_ context.Context, path string, value []byte, opts *PutOptions) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, exists := m.objects[path]

	if opts != nil {
		if opts.IfNoneMatch == "*" && exists {
			return "", xerrors.New(xerrors.Conflict, "object already exists at "+path)
		}
		if opts.IfMatch != "" {
			if !exists {
				return "", xerrors.New(xerrors.Conflict, "if-match on absent object at "+path)
			}
			if existing.ETag != opts.IfMatch {
				return "", xerrors.New(xerrors.Conflict, "etag mismatch at "+path)
			}
		}
	}

	cp := make([]byte, len(value))
	copy(cp, value)
	etag := etagFor(cp)
	m.objects[path] = &Object{Value: cp, ETag: etag}
	return etag, nil
}

// Get implements Store.
func (m *MemoryStore) Get(_ context.Context, path string) (*Object, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	obj, ok := m.objects[path]
	if !ok {
		return nil, xerrors.New(xerrors.NotFound, "no object at "+path)
	}
	cp := make([]byte, len(obj.Value))
	copy(cp, obj.Value)
	return &Object{Value: cp, ETag: obj.ETag}, nil
}

// Delete implements Store. Deleting an absent path is a no-op.
func (m *MemoryStore) Delete(_ context.Context, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, path)
	return nil
}

// List implements Store, yielding matching paths in lexicographic order.
func (m *MemoryStore) List(_ context.Context, prefix string, fn func(path string) bool) error {
	m.mu.RLock()
	matches := make([]string, 0)
	for p := range m.objects {
		if strings.HasPrefix(p, prefix) {
			matches = append(matches, p)
		}
	}
	m.mu.RUnlock()

	sort.Strings(matches)
	for _, p := range matches {
		if !fn(p) {
			break
		}
	}
	return nil
}

// BatchDelete implements Store.
func (m *MemoryStore) BatchDelete(ctx context.Context, paths []string, opts BatchDeleteOptions) error {
	return batchDelete(ctx, paths, opts, m.Delete)
}

// BatchRead implements Store.
func (m *MemoryStore) BatchRead(ctx context.Context, paths []string) (map[string]*Object, error) {
	return batchRead(ctx, paths, m.Get)
}

// IsCloudStorage implements Store; memory is never cloud-backed.
func (m *MemoryStore) IsCloudStorage() bool { return false }

// Close implements Store; nothing to release.
func (m *MemoryStore) Close() error { return nil }

var _ Store = (*MemoryStore)(nil)
