package entitystore

import (
	"context"
	"encoding/base64"
	"strings"

	"github.com/google/uuid"
)

// Page is one page of a paginated metadata-prefix listing. Cursor is
// opaque to callers (spec §4.9): it's the last path seen in this page,
// base64-encoded so its structure isn't something a caller could come
// to depend on.
type Page struct {
	IDs    []uuid.UUID
	Cursor string
	Done   bool
}

func encodeCursor(path string) string {
	if path == "" {
		return ""
	}
	return base64.RawURLEncoding.EncodeToString([]byte(path))
}

func decodeCursor(cursor string) (string, error) {
	if cursor == "" {
		return "", nil
	}
	data, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// listPage scans prefix in lexicographic order, skipping every path up
// to and including the resume point decoded from cursor, and returns
// up to limit ids whose path ends in "<uuid>.json".
func listPage(ctx context.Context, list func(ctx context.Context, prefix string, fn func(string) bool) error, prefix, cursor string, limit int) (Page, error) {
	resumeAfter, err := decodeCursor(cursor)
	if err != nil {
		return Page{}, err
	}

	var ids []uuid.UUID
	var lastPath string
	skipping := resumeAfter != ""

	err = list(ctx, prefix, func(path string) bool {
		if skipping {
			if path == resumeAfter {
				skipping = false
			}
			return true
		}
		id, ok := idFromPath(path)
		if ok {
			ids = append(ids, id)
			lastPath = path
		}
		return len(ids) < limit
	})
	if err != nil {
		return Page{}, err
	}

	done := len(ids) < limit
	next := ""
	if !done {
		next = encodeCursor(lastPath)
	}
	return Page{IDs: ids, Cursor: next, Done: done}, nil
}

func idFromPath(path string) (uuid.UUID, bool) {
	base := path
	if i := strings.LastIndex(base, "/"); i >= 0 {
		base = base[i+1:]
	}
	base = strings.TrimSuffix(base, ".json")
	id, err := uuid.Parse(base)
	if err != nil {
		return uuid.UUID{}, false
	}
	return id, true
}

// ListNouns returns one page of noun ids, ordered lexicographically by
// shard then id. Filtering by noun type is a metadata-index (C7)
// concern, not a listing concern: the key layout shards by id, not by
// individual noun type, so a type filter belongs to a predicate
// evaluated over the "noun" field rather than a narrower prefix here.
func (s *Store) ListNouns(ctx context.Context, cursor string, limit int) (Page, error) {
	return listPage(ctx, s.backend.List, "entities/nouns/metadata/", cursor, limit)
}

// ListVerbs is ListNouns' analogue for verbs.
func (s *Store) ListVerbs(ctx context.Context, cursor string, limit int) (Page, error) {
	return listPage(ctx, s.backend.List, "entities/verbs/metadata/", cursor, limit)
}
