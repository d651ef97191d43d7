package graphstore

import (
	"context"

	"github.com/google/uuid"

	"github.com/vecgraph/vecgraph/internal/objstore"
	"github.com/vecgraph/vecgraph/internal/xerrors"
)

// Store is the C8 Proximity Graph Store: per-node topology records
// plus the graph-wide entry-point record, both under optimistic
// concurrency with retry (spec §4.8).
type Store struct {
	backend objstore.Store
	locks   *keyMutex
	retry   xerrors.RetryConfig
}

// New creates a Store backed by backend, using spec §4.8's retry
// schedule (50ms * 2^n, capped at 5 attempts) for conflict retry.
func New(backend objstore.Store) *Store {
	return &Store{
		backend: backend,
		locks:   newKeyMutex(),
		retry:   xerrors.GraphConflictRetryConfig(),
	}
}

// GetNode reads a node's current topology and its ETag. A missing node
// returns a *xerrors.StoreError with Kind NotFound.
func (s *Store) GetNode(ctx context.Context, id uuid.UUID) (Node, string, error) {
	obj, err := s.backend.Get(ctx, pathFor(id))
	if err != nil {
		return Node{}, "", err
	}
	n, err := decodeNode(id, obj.Value)
	if err != nil {
		return Node{}, "", err
	}
	return n, obj.ETag, nil
}

// CreateNode writes a brand-new node, failing with Conflict if one
// already exists at this id.
func (s *Store) CreateNode(ctx context.Context, n Node) error {
	data, err := encodeNode(n)
	if err != nil {
		return err
	}
	_, err = s.backend.Put(ctx, pathFor(n.ID), data, &objstore.PutOptions{IfNoneMatch: "*"})
	return err
}

// DeleteNode removes a node's graph record. Deleting an absent node is
// not an error.
func (s *Store) DeleteNode(ctx context.Context, id uuid.UUID) error {
	return s.backend.Delete(ctx, pathFor(id))
}

// UpdateNode performs a read-modify-write on node id: it reads the
// current record (or an empty Node if none exists yet), applies edit,
// and writes back with an ETag precondition, retrying on conflict per
// spec §4.8's exponential-backoff schedule. edit mutates n in place.
//
// A per-key in-process mutex serializes concurrent UpdateNode calls
// for the same id within this Store — the belt-and-suspenders guard
// spec §5 calls for, which also gives backends with no ETag support
// (IfMatch silently ignored) a correct single-process RMW contract.
func (s *Store) UpdateNode(ctx context.Context, id uuid.UUID, edit func(n *Node) error) error {
	path := pathFor(id)
	return s.locks.with(path, func() error {
		return xerrors.Retry(ctx, s.retry, func() error {
			n := Node{ID: id}
			etag := ""
			opts := &objstore.PutOptions{IfNoneMatch: "*"}

			obj, err := s.backend.Get(ctx, path)
			switch {
			case xerrors.IsNotFound(err):
				// First write for this node: create semantics.
			case err != nil:
				return err
			default:
				n, err = decodeNode(id, obj.Value)
				if err != nil {
					return err
				}
				etag = obj.ETag
				opts = &objstore.PutOptions{IfMatch: etag}
			}

			if err := edit(&n); err != nil {
				return err
			}

			data, err := encodeNode(n)
			if err != nil {
				return err
			}
			_, err = s.backend.Put(ctx, path, data, opts)
			return err
		})
	})
}

// GetSystemState reads the graph-wide entry-point record. A never-yet-
// written graph returns a zero-value SystemState (EntryPointID nil,
// MaxLevel 0) rather than NotFound, since an empty graph is a valid
// starting state, not an error.
func (s *Store) GetSystemState(ctx context.Context) (SystemState, error) {
	obj, err := s.backend.Get(ctx, SystemStateKey)
	if xerrors.IsNotFound(err) {
		return SystemState{}, nil
	}
	if err != nil {
		return SystemState{}, err
	}
	return decodeSystemState(obj.Value)
}

// UpdateSystemState performs the same read-modify-write-with-retry
// discipline as UpdateNode, for the single graph-wide entry-point
// record.
func (s *Store) UpdateSystemState(ctx context.Context, edit func(st *SystemState) error) error {
	return s.locks.with(SystemStateKey, func() error {
		return xerrors.Retry(ctx, s.retry, func() error {
			st := SystemState{}
			opts := &objstore.PutOptions{IfNoneMatch: "*"}

			obj, err := s.backend.Get(ctx, SystemStateKey)
			switch {
			case xerrors.IsNotFound(err):
			case err != nil:
				return err
			default:
				st, err = decodeSystemState(obj.Value)
				if err != nil {
					return err
				}
				opts = &objstore.PutOptions{IfMatch: obj.ETag}
			}

			if err := edit(&st); err != nil {
				return err
			}

			data, err := encodeSystemState(st)
			if err != nil {
				return err
			}
			_, err = s.backend.Put(ctx, SystemStateKey, data, opts)
			return err
		})
	})
}
