package entitystore

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/vecgraph/vecgraph/internal/cache"
	"github.com/vecgraph/vecgraph/internal/objstore"
	"github.com/vecgraph/vecgraph/internal/xerrors"
)

// nounWeight approximates the byte cost of caching one noun: four
// bytes per vector component plus a flat overhead for metadata, good
// enough for a weighted-LRU budget that doesn't need byte-exact
// accounting (spec §5 only requires eviction to be weight-proportional).
func nounWeight(n Noun) int64 {
	return int64(len(n.Vector))*4 + 256
}

func verbWeight(v Verb) int64 {
	return int64(len(v.Vector))*4 + 256
}

// Store is the C9 Entity Store.
type Store struct {
	backend objstore.Store
	nouns   *cache.Cache[uuid.UUID, Noun]
	verbs   *cache.Cache[uuid.UUID, Verb]
	counts  *Counts
	log     *slog.Logger
}

// Open constructs a Store backed by backend, loading (or
// reconstructing) its aggregate counts. cacheWeightBudget bounds each
// of the noun and verb caches independently.
func Open(ctx context.Context, backend objstore.Store, cacheWeightBudget int64, log *slog.Logger) (*Store, error) {
	counts, err := loadCounts(ctx, backend)
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = slog.Default()
	}
	return &Store{
		backend: backend,
		nouns:   cache.New[uuid.UUID, Noun](cacheWeightBudget, Noun.HasVector),
		verbs:   cache.New[uuid.UUID, Verb](cacheWeightBudget, Verb.HasVector),
		counts:  counts,
		log:     log,
	}, nil
}

// PutNoun writes a noun's vector and metadata records (a full write,
// spec §3's "created" lifecycle) and bumps counts if this is a new id.
func (s *Store) PutNoun(ctx context.Context, n Noun) error {
	_, existed, err := s.getNounRaw(ctx, n.ID)
	if err != nil {
		return err
	}

	vecData, err := encodeNounVector(n)
	if err != nil {
		return err
	}
	if _, err := s.backend.Put(ctx, nounVectorPath(n.ID), vecData, nil); err != nil {
		return err
	}
	metaData, err := encodeNounMetadata(n)
	if err != nil {
		return err
	}
	if _, err := s.backend.Put(ctx, nounMetadataPath(n.ID), metaData, nil); err != nil {
		return err
	}

	if n.HasVector() {
		s.nouns.Add(n.ID, n, nounWeight(n))
	} else {
		s.nouns.Remove(n.ID)
	}
	if !existed {
		s.counts.addNoun(n.Type)
	}
	return nil
}

// GetNoun returns a noun by id, serving from cache when possible.
// Records with an empty vector (the lazy-load sentinel) are never
// cached and always re-read from the backend.
func (s *Store) GetNoun(ctx context.Context, id uuid.UUID) (Noun, error) {
	if n, ok := s.nouns.Get(id); ok {
		return n, nil
	}
	n, _, err := s.getNounRaw(ctx, id)
	if err != nil {
		return Noun{}, err
	}
	if n.HasVector() {
		s.nouns.Add(id, n, nounWeight(n))
	}
	return n, nil
}

func (s *Store) getNounRaw(ctx context.Context, id uuid.UUID) (Noun, bool, error) {
	vecObj, err := s.backend.Get(ctx, nounVectorPath(id))
	if xerrors.IsNotFound(err) {
		return Noun{}, false, nil
	}
	if err != nil {
		return Noun{}, false, err
	}
	metaObj, err := s.backend.Get(ctx, nounMetadataPath(id))
	var metaData []byte
	if err == nil {
		metaData = metaObj.Value
	} else if !xerrors.IsNotFound(err) {
		return Noun{}, false, err
	}
	n, err := decodeNoun(id, vecObj.Value, metaData)
	return n, true, err
}

// DeleteNoun removes both of a noun's records and decrements counts.
// nounType is required to keep the per-type count accurate when the
// caller no longer has the metadata at hand (spec §9: "delete without
// provided metadata is allowed but documented as slow" — the caller is
// expected to have looked it up first in that case).
func (s *Store) DeleteNoun(ctx context.Context, id uuid.UUID, nounType string) error {
	if err := s.backend.Delete(ctx, nounVectorPath(id)); err != nil {
		return err
	}
	if err := s.backend.Delete(ctx, nounMetadataPath(id)); err != nil {
		return err
	}
	s.nouns.Remove(id)
	s.counts.removeNoun(nounType)
	return nil
}

// PutVerb is PutNoun's analogue for verbs.
func (s *Store) PutVerb(ctx context.Context, v Verb) error {
	_, existed, err := s.getVerbRaw(ctx, v.ID)
	if err != nil {
		return err
	}

	vecData, err := encodeVerbVector(v)
	if err != nil {
		return err
	}
	if _, err := s.backend.Put(ctx, verbVectorPath(v.ID), vecData, nil); err != nil {
		return err
	}
	metaData, err := encodeVerbMetadata(v)
	if err != nil {
		return err
	}
	if _, err := s.backend.Put(ctx, verbMetadataPath(v.ID), metaData, nil); err != nil {
		return err
	}

	if v.HasVector() {
		s.verbs.Add(v.ID, v, verbWeight(v))
	} else {
		s.verbs.Remove(v.ID)
	}
	if !existed {
		s.counts.addVerb(v.Type)
	}
	return nil
}

// GetVerb is GetNoun's analogue for verbs.
func (s *Store) GetVerb(ctx context.Context, id uuid.UUID) (Verb, error) {
	if v, ok := s.verbs.Get(id); ok {
		return v, nil
	}
	v, _, err := s.getVerbRaw(ctx, id)
	if err != nil {
		return Verb{}, err
	}
	if v.HasVector() {
		s.verbs.Add(id, v, verbWeight(v))
	}
	return v, nil
}

func (s *Store) getVerbRaw(ctx context.Context, id uuid.UUID) (Verb, bool, error) {
	vecObj, err := s.backend.Get(ctx, verbVectorPath(id))
	if xerrors.IsNotFound(err) {
		return Verb{}, false, nil
	}
	if err != nil {
		return Verb{}, false, err
	}
	metaObj, err := s.backend.Get(ctx, verbMetadataPath(id))
	var metaData []byte
	if err == nil {
		metaData = metaObj.Value
	} else if !xerrors.IsNotFound(err) {
		return Verb{}, false, err
	}
	v, err := decodeVerb(id, vecObj.Value, metaData)
	return v, true, err
}

// DeleteVerb removes both of a verb's records and decrements counts.
func (s *Store) DeleteVerb(ctx context.Context, id uuid.UUID, verbType string) error {
	if err := s.backend.Delete(ctx, verbVectorPath(id)); err != nil {
		return err
	}
	if err := s.backend.Delete(ctx, verbMetadataPath(id)); err != nil {
		return err
	}
	s.verbs.Remove(id)
	s.counts.removeVerb(verbType)
	return nil
}

// Counts returns a point-in-time snapshot of aggregate counts.
func (s *Store) Counts() Counts {
	return s.counts.snapshot()
}

// Flush persists aggregate counts if they changed since the last
// flush (vector/metadata writes are already durable the moment
// PutNoun/PutVerb return — only the counts record batches).
func (s *Store) Flush(ctx context.Context) error {
	return s.counts.flush(ctx, s.backend)
}
