package idmap

import (
	"context"
	"encoding/json"

	"github.com/vecgraph/vecgraph/internal/objstore"
	"github.com/vecgraph/vecgraph/internal/xerrors"
)

// wireFormat is the on-disk shape of a Mapper. Map keys and the
// resolution slice are stored as UUID strings rather than raw bytes so
// the object-store record stays human-readable JSON, matching the rest
// of the module's record encoding.
type wireFormat struct {
	UUIDToInt map[string]uint32 `json:"uuid_to_int"`
	IntToUUID []string          `json:"int_to_uuid"`
	NextID    uint32            `json:"next_id"`
}

func decode(data []byte) (*wireFormat, error) {
	var w wireFormat
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, err
	}
	return &w, nil
}

// Flush persists the mapper to the object store under Key. A flush that
// fails is safe to retry: every add is idempotent, so a partially
// visible flush never assigns the same UUID two different ids.
func (m *Mapper) Flush(ctx context.Context) error {
	m.mu.RLock()
	if !m.dirty {
		m.mu.RUnlock()
		return nil
	}
	w := wireFormat{
		UUIDToInt: make(map[string]uint32, len(m.uuidToInt)),
		IntToUUID: make([]string, len(m.intToUUID)),
		NextID:    m.nextID,
	}
	for u, id := range m.uuidToInt {
		w.UUIDToInt[u.String()] = id
	}
	for i, u := range m.intToUUID {
		w.IntToUUID[i] = u.String()
	}
	m.mu.RUnlock()

	data, err := json.Marshal(w)
	if err != nil {
		return xerrors.Wrap(xerrors.Internal, "encode id mapper", err)
	}

	_, err = m.store.Put(ctx, Key, data, nil)
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.dirty = false
	m.mu.Unlock()
	return nil
}
