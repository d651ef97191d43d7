package vecgraph

import (
	"context"

	"github.com/vecgraph/vecgraph/internal/bitmap"
	"github.com/vecgraph/vecgraph/internal/objstore"
	"github.com/vecgraph/vecgraph/internal/xerrors"
)

// liveIDsKey is the well-known object-store path the engine's live-id
// roster is persisted under. idmap's bijection is append-only (ids are
// never freed once interned), so it can't answer "which ids currently
// refer to an entity that hasn't been deleted" on its own — the
// liveIDs complement planner.Plan and metaindex.Eval need for ne/not/
// missing semantics (spec §4.7, §4.10). The engine tracks that roster
// itself, persisted the same way idmap.Mapper persists its own state:
// a dirty flag gating an otherwise-pure in-memory structure.
const liveIDsKey = "__engine_live_ids__"

// loadLiveIDs reads the persisted roster, or returns an empty one if
// this is a new store (mirrors idmap.Load's NotFound handling).
func loadLiveIDs(ctx context.Context, store objstore.Store) (*bitmap.Bitmap, error) {
	obj, err := store.Get(ctx, liveIDsKey)
	if xerrors.IsNotFound(err) {
		return bitmap.New(), nil
	}
	if err != nil {
		return nil, err
	}
	b := bitmap.New()
	if err := b.UnmarshalBinary(obj.Value); err != nil {
		return nil, xerrors.Wrap(xerrors.Corrupted, "decode live id roster", err)
	}
	return b, nil
}

// saveLiveIDs persists the roster unconditionally; the caller gates
// this on its own dirty flag.
func saveLiveIDs(ctx context.Context, store objstore.Store, b *bitmap.Bitmap) error {
	data, err := b.MarshalBinary()
	if err != nil {
		return xerrors.Wrap(xerrors.Internal, "encode live id roster", err)
	}
	_, err = store.Put(ctx, liveIDsKey, data, nil)
	return err
}
