// Package objstore defines the object-store port (spec C3): a primitive
// key/value interface over a flat path namespace, plus the batching
// helpers every backend gets for free. Each backend (memory, local
// filesystem, S3) implements Store; everything above this layer — the
// write buffer, the chunk manager, the entity store — only ever talks
// to the Store interface, never to a concrete backend.
package objstore

import (
	"context"
	"io"
)

// PutOptions carries optional optimistic-concurrency preconditions for
// Put. Both fields are mutually exclusive in practice (use IfMatch to
// update an existing object you've read, IfNoneMatch="*" to create one
// that must not already exist) but the contract doesn't forbid setting
// both; a backend must honor both if set.
type PutOptions struct {
	// IfMatch requires the existing object's ETag to equal this value.
	// Empty means "no precondition".
	IfMatch string
	// IfNoneMatch, when set to "*", requires that no object exists at
	// this path yet.
	IfNoneMatch string
}

// Object is a value read back from the store along with its ETag, so
// callers can thread it into a subsequent conditional Put.
type Object struct {
	Value []byte
	ETag  string
}

// BatchDeleteOptions configures BatchDelete's retry and error behavior.
type BatchDeleteOptions struct {
	MaxRetries      int
	ContinueOnError bool
}

// Store is the object-store port: a flat path -> bytes namespace with
// optimistic-concurrency preconditions, used by every persistence layer
// in this module (C1 id map, C5 chunks, C6 sparse indices, C8 graph
// records, C9 entities).
type Store interface {
	// Put writes value at path. When opts is non-nil and its
	// preconditions aren't met, it returns a *xerrors.StoreError with
	// Kind Conflict. Returns the new ETag on success.
	Put(ctx context.Context, path string, value []byte, opts *PutOptions) (etag string, err error)

	// Get reads the object at path. Returns a *xerrors.StoreError with
	// Kind NotFound if absent.
	Get(ctx context.Context, path string) (*Object, error)

	// Delete removes path. Deleting an absent path is not an error
	// (idempotent).
	Delete(ctx context.Context, path string) error

	// List streams every path with the given prefix to fn, in
	// lexicographic order. Iteration stops early if fn returns false.
	List(ctx context.Context, prefix string, fn func(path string) bool) error

	// BatchDelete removes every path in paths with bounded concurrency
	// and retry. If ContinueOnError is false, it returns on the first
	// error; otherwise it attempts every path and returns a combined
	// error describing failures.
	BatchDelete(ctx context.Context, paths []string, opts BatchDeleteOptions) error

	// BatchRead reads every path in paths with bounded concurrency.
	// Missing paths are omitted from the result map rather than
	// producing an error.
	BatchRead(ctx context.Context, paths []string) (map[string]*Object, error)

	// IsCloudStorage reports whether this backend is latency-bound cloud
	// storage (spec C4's "smart batching switch": cloud backends always
	// route writes through the coalescing buffer).
	IsCloudStorage() bool

	// Close releases any resources (connections, file handles) held by
	// the backend.
	Close() error
}

// Closer is satisfied by io.Closer; kept as a named alias so backend
// files don't need to import "io" just for this.
type Closer = io.Closer
