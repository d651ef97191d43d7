package metaindex

import (
	"context"
	"encoding/json"

	"github.com/vecgraph/vecgraph/internal/objstore"
	"github.com/vecgraph/vecgraph/internal/xerrors"
)

// rebuildCheckpointKey is the well-known key a resumable rebuild
// records its progress under, so a rebuild interrupted mid-scan
// resumes from the last committed page instead of restarting from
// zero — ambient resilience, not a spec feature (see DESIGN.md).
const rebuildCheckpointKey = "_system/rebuild_checkpoint.json"

// RebuildCheckpoint records how far a rebuild has progressed through
// C9's paginated entity scan.
type RebuildCheckpoint struct {
	Cursor    string `json:"cursor"`
	Processed uint64 `json:"processed"`
	Done      bool   `json:"done"`
}

// LoadCheckpoint returns the last saved checkpoint, or a fresh one if
// none exists.
func LoadCheckpoint(ctx context.Context, store objstore.Store) (RebuildCheckpoint, error) {
	obj, err := store.Get(ctx, rebuildCheckpointKey)
	if xerrors.IsNotFound(err) {
		return RebuildCheckpoint{}, nil
	}
	if err != nil {
		return RebuildCheckpoint{}, err
	}
	var cp RebuildCheckpoint
	if err := json.Unmarshal(obj.Value, &cp); err != nil {
		return RebuildCheckpoint{}, xerrors.Wrap(xerrors.Corrupted, "decode rebuild checkpoint", err)
	}
	return cp, nil
}

// SaveCheckpoint persists rebuild progress.
func SaveCheckpoint(ctx context.Context, store objstore.Store, cp RebuildCheckpoint) error {
	data, err := json.Marshal(cp)
	if err != nil {
		return xerrors.Wrap(xerrors.Internal, "encode rebuild checkpoint", err)
	}
	_, err = store.Put(ctx, rebuildCheckpointKey, data, nil)
	return err
}

// ClearCheckpoint removes the checkpoint record, called once a
// rebuild completes.
func ClearCheckpoint(ctx context.Context, store objstore.Store) error {
	return store.Delete(ctx, rebuildCheckpointKey)
}

// EntityPage is one batch of entities to re-ingest during rebuild,
// supplied by C9's paginated scan.
type EntityPage struct {
	Entities []EntityRecord
	Cursor   string
	Done     bool
}

// EntityRecord is the minimal shape Rebuild needs from each entity:
// its interned int id, type, and metadata.
type EntityRecord struct {
	IntID    uint32
	Type     string
	Metadata map[string]interface{}
}

// Rebuild clears all index state then re-ingests every entity via
// scanPage, a paginated C9 scan starting from the last checkpoint (or
// the beginning, if none). Rebuild is idempotent: running it twice
// produces byte-equal chunk and sparse-index contents modulo
// timestamps, since re-ingesting the same entities in the same order
// deterministically reproduces the same chunk/value layout.
func (m *Manager) Rebuild(ctx context.Context, store objstore.Store, scanPage func(ctx context.Context, cursor string) (EntityPage, error)) error {
	cp, err := LoadCheckpoint(ctx, store)
	if err != nil {
		return err
	}
	if cp.Cursor == "" && !cp.Done {
		if err := m.Clear(ctx); err != nil {
			return err
		}
	}

	cursor := cp.Cursor
	for {
		page, err := scanPage(ctx, cursor)
		if err != nil {
			return err
		}
		for _, e := range page.Entities {
			if err := m.AddEntity(ctx, e.Type, e.IntID, e.Metadata); err != nil {
				return err
			}
		}
		if err := m.Flush(ctx); err != nil {
			return err
		}
		cp.Cursor = page.Cursor
		cp.Processed += uint64(len(page.Entities))
		cp.Done = page.Done
		if err := SaveCheckpoint(ctx, store, cp); err != nil {
			return err
		}
		if page.Done {
			break
		}
		cursor = page.Cursor
	}
	return ClearCheckpoint(ctx, store)
}
