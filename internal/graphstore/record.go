// Package graphstore implements the C8 Proximity Graph Store: HNSW
// topology persistence (each node's level and per-level neighbor sets)
// kept separate from the entity's vector so that graph maintenance
// during insert/search rewrites only the graph portion of a record.
// All read-modify-write operations go through optimistic concurrency
// (object-store ETags) with exponential-backoff retry, plus a
// same-process per-key mutex as a belt-and-suspenders guard against
// retry storms (spec §4.8, §5).
package graphstore

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/vecgraph/vecgraph/internal/xerrors"
)

// SystemStateKey is the well-known path for the graph-wide entry
// point / max level record.
const SystemStateKey = "_system/hnsw-system.json"

// Node is a proximity-graph node's topology: the level it was promoted
// to at insertion, and its neighbor set per level from 0 up to Level.
type Node struct {
	ID                uuid.UUID     `json:"-"`
	Level             int           `json:"level"`
	NeighborsPerLevel [][]uuid.UUID `json:"neighbors_per_level"`
}

// wireNode mirrors Node's JSON shape with UUIDs as strings, matching
// the rest of the module's human-readable record encoding.
type wireNode struct {
	Level             int        `json:"level"`
	NeighborsPerLevel [][]string `json:"neighbors_per_level"`
}

func (n Node) toWire() wireNode {
	w := wireNode{Level: n.Level, NeighborsPerLevel: make([][]string, len(n.NeighborsPerLevel))}
	for lvl, neighbors := range n.NeighborsPerLevel {
		row := make([]string, len(neighbors))
		for i, id := range neighbors {
			row[i] = id.String()
		}
		w.NeighborsPerLevel[lvl] = row
	}
	return w
}

func nodeFromWire(id uuid.UUID, w wireNode) (Node, error) {
	n := Node{ID: id, Level: w.Level, NeighborsPerLevel: make([][]uuid.UUID, len(w.NeighborsPerLevel))}
	for lvl, row := range w.NeighborsPerLevel {
		ids := make([]uuid.UUID, len(row))
		for i, s := range row {
			u, err := uuid.Parse(s)
			if err != nil {
				return Node{}, xerrors.Wrap(xerrors.Corrupted, "parse graph neighbor uuid", err)
			}
			ids[i] = u
		}
		n.NeighborsPerLevel[lvl] = ids
	}
	return n, nil
}

// NeighborsAt returns the neighbor set at the given level, or nil if
// the node was never promoted to that level.
func (n Node) NeighborsAt(level int) []uuid.UUID {
	if level < 0 || level >= len(n.NeighborsPerLevel) {
		return nil
	}
	return n.NeighborsPerLevel[level]
}

// EnsureLevel grows NeighborsPerLevel so level is addressable,
// padding any newly created rows with an empty (non-nil) slice.
func (n *Node) EnsureLevel(level int) {
	for len(n.NeighborsPerLevel) <= level {
		n.NeighborsPerLevel = append(n.NeighborsPerLevel, []uuid.UUID{})
	}
	if level > n.Level {
		n.Level = level
	}
}

// SystemState is the graph-wide entry-point record (spec §4.8, §6).
type SystemState struct {
	EntryPointID *uuid.UUID `json:"entry_point_id,omitempty"`
	MaxLevel     int        `json:"max_level"`
}

type wireSystemState struct {
	EntryPointID string `json:"entry_point_id,omitempty"`
	MaxLevel     int    `json:"max_level"`
}

func (s SystemState) toWire() wireSystemState {
	w := wireSystemState{MaxLevel: s.MaxLevel}
	if s.EntryPointID != nil {
		w.EntryPointID = s.EntryPointID.String()
	}
	return w
}

func systemStateFromWire(w wireSystemState) (SystemState, error) {
	s := SystemState{MaxLevel: w.MaxLevel}
	if w.EntryPointID != "" {
		u, err := uuid.Parse(w.EntryPointID)
		if err != nil {
			return SystemState{}, xerrors.Wrap(xerrors.Corrupted, "parse entry point uuid", err)
		}
		s.EntryPointID = &u
	}
	return s, nil
}

// shardFor returns the two-hex-character shard an id routes under,
// matching spec §6's "<shard> is the first two lowercase hex
// characters of the UUID (256 buckets)".
func shardFor(id uuid.UUID) string {
	return fmt.Sprintf("%02x", id[0])
}

// pathFor is the object-store key a node's graph record lives under.
func pathFor(id uuid.UUID) string {
	return fmt.Sprintf("entities/nouns/hnsw/%s/%s.json", shardFor(id), id.String())
}

func encodeNode(n Node) ([]byte, error) {
	data, err := json.Marshal(n.toWire())
	if err != nil {
		return nil, xerrors.Wrap(xerrors.Internal, "encode graph node", err)
	}
	return data, nil
}

func decodeNode(id uuid.UUID, data []byte) (Node, error) {
	var w wireNode
	if err := json.Unmarshal(data, &w); err != nil {
		return Node{}, xerrors.Wrap(xerrors.Corrupted, "decode graph node", err)
	}
	return nodeFromWire(id, w)
}

func encodeSystemState(s SystemState) ([]byte, error) {
	data, err := json.Marshal(s.toWire())
	if err != nil {
		return nil, xerrors.Wrap(xerrors.Internal, "encode hnsw system state", err)
	}
	return data, nil
}

func decodeSystemState(data []byte) (SystemState, error) {
	var w wireSystemState
	if err := json.Unmarshal(data, &w); err != nil {
		return SystemState{}, xerrors.Wrap(xerrors.Corrupted, "decode hnsw system state", err)
	}
	return systemStateFromWire(w)
}
