package objstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gofrs/flock"

	"github.com/vecgraph/vecgraph/internal/xerrors"
)

// LocalFSStore is a Store backed by the local filesystem: one file per
// path, written via an atomic-save idiom (temp file + rename), with a
// gofrs/flock cross-process
// lock guarding each conditional write the way internal/embed/lock.go
// guards the embedding-model download.
type LocalFSStore struct {
	baseDir string
}

// NewLocalFSStore roots a Store at baseDir, creating it if necessary.
func NewLocalFSStore(baseDir string) (*LocalFSStore, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("create base dir: %w", err)
	}
	return &LocalFSStore{baseDir: baseDir}, nil
}

func (s *LocalFSStore) filePath(path string) string {
	return filepath.Join(s.baseDir, filepath.FromSlash(path))
}

func (s *LocalFSStore) lockPath(path string) string {
	return s.filePath(path) + ".lock"
}

// Put implements Store with a per-path flock guarding the
// read-current-etag / compare / write sequence, so concurrent processes
// attempting conditional writes on the same path serialize correctly.
func (s *LocalFSStore) Put(ctx context.Context, path string, value []byte, opts *PutOptions) (string, error) {
	full := s.filePath(path)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return "", xerrors.Wrap(xerrors.IO, "create parent dir", err)
	}

	fl := flock.New(s.lockPath(path))
	if err := fl.Lock(); err != nil {
		return "", xerrors.Wrap(xerrors.IO, "acquire path lock", err)
	}
	defer func() { _ = fl.Unlock() }()

	if opts != nil {
		existing, err := os.ReadFile(full)
		exists := err == nil
		if err != nil && !os.IsNotExist(err) {
			return "", xerrors.Wrap(xerrors.IO, "read existing object", err)
		}
		if opts.IfNoneMatch == "*" && exists {
			return "", xerrors.New(xerrors.Conflict, "object already exists at "+path)
		}
		if opts.IfMatch != "" {
			if !exists {
				return "", xerrors.New(xerrors.Conflict, "if-match on absent object at "+path)
			}
			if etagFor(existing) != opts.IfMatch {
				return "", xerrors.New(xerrors.Conflict, "etag mismatch at "+path)
			}
		}
	}

	tmp := full + ".tmp"
	if err := os.WriteFile(tmp, value, 0o644); err != nil {
		return "", xerrors.Wrap(xerrors.IO, "write temp file", err)
	}
	if err := os.Rename(tmp, full); err != nil {
		_ = os.Remove(tmp)
		return "", xerrors.Wrap(xerrors.IO, "rename into place", err)
	}

	return etagFor(value), nil
}

// Get implements Store.
func (s *LocalFSStore) Get(_ context.Context, path string) (*Object, error) {
	data, err := os.ReadFile(s.filePath(path))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, xerrors.New(xerrors.NotFound, "no object at "+path)
		}
		return nil, xerrors.Wrap(xerrors.IO, "read object", err)
	}
	return &Object{Value: data, ETag: etagFor(data)}, nil
}

// Delete implements Store; deleting an absent path is not an error.
func (s *LocalFSStore) Delete(_ context.Context, path string) error {
	full := s.filePath(path)
	if err := os.Remove(full); err != nil && !os.IsNotExist(err) {
		return xerrors.Wrap(xerrors.IO, "delete object", err)
	}
	_ = os.Remove(full + ".lock")
	return nil
}

// List implements Store by walking baseDir/prefix.
func (s *LocalFSStore) List(_ context.Context, prefix string, fn func(path string) bool) error {
	root := s.baseDir
	var matches []string

	err := filepath.WalkDir(root, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel := filepath.ToSlash(strings.TrimPrefix(p, root+string(filepath.Separator)))
		if strings.HasSuffix(rel, ".lock") || strings.HasSuffix(rel, ".tmp") {
			return nil
		}
		if strings.HasPrefix(rel, prefix) {
			matches = append(matches, rel)
		}
		return nil
	})
	if err != nil {
		return xerrors.Wrap(xerrors.IO, "list objects", err)
	}

	for _, m := range matches {
		if !fn(m) {
			break
		}
	}
	return nil
}

// BatchDelete implements Store.
func (s *LocalFSStore) BatchDelete(ctx context.Context, paths []string, opts BatchDeleteOptions) error {
	return batchDelete(ctx, paths, opts, s.Delete)
}

// BatchRead implements Store.
func (s *LocalFSStore) BatchRead(ctx context.Context, paths []string) (map[string]*Object, error) {
	return batchRead(ctx, paths, s.Get)
}

// IsCloudStorage implements Store; local disk is not latency-bound the
// way cloud blob storage is, so writes bypass the coalescing buffer.
func (s *LocalFSStore) IsCloudStorage() bool { return false }

// Close implements Store; nothing to release.
func (s *LocalFSStore) Close() error { return nil }

var _ Store = (*LocalFSStore)(nil)
