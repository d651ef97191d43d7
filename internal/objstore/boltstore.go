package objstore

import (
	"context"
	"strings"

	"go.etcd.io/bbolt"

	"github.com/vecgraph/vecgraph/internal/xerrors"
)

// boltBucket is the single bucket every path lives in; bbolt's own
// B+tree gives us the lexicographic Cursor iteration List needs, so
// there's no benefit to sharding by path prefix into multiple buckets.
var boltBucket = []byte("objects")

// BoltStore is a Store backed by a single embedded go.etcd.io/bbolt
// file: an alternative to LocalFSStore for callers who want one
// self-contained database file instead of one file per object and a
// directory tree of sibling .lock files. bbolt serializes all writers
// through its own single-writer transaction, so unlike LocalFSStore
// this backend needs no gofrs/flock guard around its conditional
// writes.
type BoltStore struct {
	db *bbolt.DB
}

// NewBoltStore opens (creating if necessary) a bbolt database at path
// and ensures its object bucket exists.
func NewBoltStore(path string) (*BoltStore, error) {
	db, err := bbolt.Open(path, 0o644, nil)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.IO, "open bolt database", err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(boltBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, xerrors.Wrap(xerrors.IO, "create object bucket", err)
	}
	return &BoltStore{db: db}, nil
}

// Put implements Store. The precondition check and the write happen
// inside one bbolt.Update transaction, so a concurrent Put on the same
// path serializes behind it rather than racing.
func (s *BoltStore) Put(_ context.Context, path string, value []byte, opts *PutOptions) (string, error) {
	var etag string
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(boltBucket)
		existing := b.Get([]byte(path))
		exists := existing != nil

		if opts != nil {
			if opts.IfNoneMatch == "*" && exists {
				return xerrors.New(xerrors.Conflict, "object already exists at "+path)
			}
			if opts.IfMatch != "" {
				if !exists {
					return xerrors.New(xerrors.Conflict, "if-match on absent object at "+path)
				}
				if etagFor(existing) != opts.IfMatch {
					return xerrors.New(xerrors.Conflict, "etag mismatch at "+path)
				}
			}
		}

		etag = etagFor(value)
		return b.Put([]byte(path), value)
	})
	if err != nil {
		return "", err
	}
	return etag, nil
}

// Get implements Store.
func (s *BoltStore) Get(_ context.Context, path string) (*Object, error) {
	var obj *Object
	err := s.db.View(func(tx *bbolt.Tx) error {
		raw := tx.Bucket(boltBucket).Get([]byte(path))
		if raw == nil {
			return xerrors.New(xerrors.NotFound, "no object at "+path)
		}
		cp := make([]byte, len(raw))
		copy(cp, raw)
		obj = &Object{Value: cp, ETag: etagFor(cp)}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return obj, nil
}

// Delete implements Store; deleting an absent path is not an error.
func (s *BoltStore) Delete(_ context.Context, path string) error {
	err := s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(boltBucket).Delete([]byte(path))
	})
	if err != nil {
		return xerrors.Wrap(xerrors.IO, "delete object", err)
	}
	return nil
}

// List implements Store by scanning the bucket with a prefix-seeked
// cursor, which visits keys in lexicographic order for free.
func (s *BoltStore) List(_ context.Context, prefix string, fn func(path string) bool) error {
	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(boltBucket).Cursor()
		p := []byte(prefix)
		for k, _ := c.Seek(p); k != nil && strings.HasPrefix(string(k), prefix); k, _ = c.Next() {
			if !fn(string(k)) {
				break
			}
		}
		return nil
	})
	if err != nil {
		return xerrors.Wrap(xerrors.IO, "list objects", err)
	}
	return nil
}

// BatchDelete implements Store.
func (s *BoltStore) BatchDelete(ctx context.Context, paths []string, opts BatchDeleteOptions) error {
	return batchDelete(ctx, paths, opts, s.Delete)
}

// BatchRead implements Store.
func (s *BoltStore) BatchRead(ctx context.Context, paths []string) (map[string]*Object, error) {
	return batchRead(ctx, paths, s.Get)
}

// IsCloudStorage implements Store; an embedded local database is not
// latency-bound the way cloud blob storage is.
func (s *BoltStore) IsCloudStorage() bool { return false }

// Close implements Store, releasing the underlying database file.
func (s *BoltStore) Close() error {
	if err := s.db.Close(); err != nil {
		return xerrors.Wrap(xerrors.IO, "close bolt database", err)
	}
	return nil
}

var _ Store = (*BoltStore)(nil)
