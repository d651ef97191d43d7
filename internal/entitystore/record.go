// Package entitystore implements the C9 Entity Store: sharded
// persistence for nouns and verbs under the two-file model (a vector
// record holding only the embedding, a metadata record holding
// everything else), an LRU cache that refuses to serve records with an
// empty vector (the lazy-load sentinel, spec §5), and aggregate counts
// reconstructable from a prefix scan.
package entitystore

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/vecgraph/vecgraph/internal/xerrors"
)

// Noun is the in-memory, combined view of a noun entity: vector and
// metadata are persisted as separate object-store records (spec §3's
// "two-file model") but handed to callers as one value.
type Noun struct {
	ID       uuid.UUID
	Type     string
	Vector   []float32
	Metadata map[string]interface{}
}

// Verb is a typed relationship between two nouns. Its vector record
// additionally carries Source/Target/Type so graph traversal over
// verbs never has to load the metadata file (spec §6).
type Verb struct {
	ID       uuid.UUID
	Type     string
	Source   uuid.UUID
	Target   uuid.UUID
	Vector   []float32
	Metadata map[string]interface{}
}

// HasVector reports whether this is a fully materialized record as
// opposed to the lazy-load sentinel (an empty vector written as a
// placeholder before the real embedding is computed).
func (n Noun) HasVector() bool { return len(n.Vector) > 0 }

// HasVector reports the same sentinel condition for a Verb.
func (v Verb) HasVector() bool { return len(v.Vector) > 0 }

type nounVectorWire struct {
	ID     string    `json:"id"`
	Vector []float32 `json:"vector"`
}

type nounMetadataWire struct {
	Type     string                 `json:"type"`
	Metadata map[string]interface{} `json:"metadata"`
}

type verbVectorWire struct {
	ID     string    `json:"id"`
	Type   string    `json:"type"`
	Source string    `json:"source"`
	Target string    `json:"target"`
	Vector []float32 `json:"vector"`
}

type verbMetadataWire struct {
	Metadata map[string]interface{} `json:"metadata"`
}

func encodeNounVector(n Noun) ([]byte, error) {
	data, err := json.Marshal(nounVectorWire{ID: n.ID.String(), Vector: n.Vector})
	if err != nil {
		return nil, xerrors.Wrap(xerrors.Internal, "encode noun vector record", err)
	}
	return data, nil
}

func encodeNounMetadata(n Noun) ([]byte, error) {
	data, err := json.Marshal(nounMetadataWire{Type: n.Type, Metadata: n.Metadata})
	if err != nil {
		return nil, xerrors.Wrap(xerrors.Internal, "encode noun metadata record", err)
	}
	return data, nil
}

func decodeNoun(id uuid.UUID, vectorData, metadataData []byte) (Noun, error) {
	var vw nounVectorWire
	if err := json.Unmarshal(vectorData, &vw); err != nil {
		return Noun{}, xerrors.Wrap(xerrors.Corrupted, "decode noun vector record", err)
	}
	n := Noun{ID: id, Vector: vw.Vector}
	if metadataData != nil {
		var mw nounMetadataWire
		if err := json.Unmarshal(metadataData, &mw); err != nil {
			return Noun{}, xerrors.Wrap(xerrors.Corrupted, "decode noun metadata record", err)
		}
		n.Type = mw.Type
		n.Metadata = mw.Metadata
	}
	return n, nil
}

func encodeVerbVector(v Verb) ([]byte, error) {
	data, err := json.Marshal(verbVectorWire{
		ID: v.ID.String(), Type: v.Type,
		Source: v.Source.String(), Target: v.Target.String(),
		Vector: v.Vector,
	})
	if err != nil {
		return nil, xerrors.Wrap(xerrors.Internal, "encode verb vector record", err)
	}
	return data, nil
}

func encodeVerbMetadata(v Verb) ([]byte, error) {
	data, err := json.Marshal(verbMetadataWire{Metadata: v.Metadata})
	if err != nil {
		return nil, xerrors.Wrap(xerrors.Internal, "encode verb metadata record", err)
	}
	return data, nil
}

func decodeVerb(id uuid.UUID, vectorData, metadataData []byte) (Verb, error) {
	var vw verbVectorWire
	if err := json.Unmarshal(vectorData, &vw); err != nil {
		return Verb{}, xerrors.Wrap(xerrors.Corrupted, "decode verb vector record", err)
	}
	v := Verb{ID: id, Type: vw.Type, Vector: vw.Vector}
	if vw.Source != "" {
		src, err := uuid.Parse(vw.Source)
		if err != nil {
			return Verb{}, xerrors.Wrap(xerrors.Corrupted, "parse verb source uuid", err)
		}
		v.Source = src
	}
	if vw.Target != "" {
		dst, err := uuid.Parse(vw.Target)
		if err != nil {
			return Verb{}, xerrors.Wrap(xerrors.Corrupted, "parse verb target uuid", err)
		}
		v.Target = dst
	}
	if metadataData != nil {
		var mw verbMetadataWire
		if err := json.Unmarshal(metadataData, &mw); err != nil {
			return Verb{}, xerrors.Wrap(xerrors.Corrupted, "decode verb metadata record", err)
		}
		v.Metadata = mw.Metadata
	}
	return v, nil
}

// shardFor returns the two-hex-character shard an id routes under
// (spec §6: first two lowercase hex characters of the UUID).
func shardFor(id uuid.UUID) string {
	return fmt.Sprintf("%02x", id[0])
}

func nounVectorPath(id uuid.UUID) string {
	return fmt.Sprintf("entities/nouns/vectors/%s/%s.json", shardFor(id), id.String())
}

func nounMetadataPath(id uuid.UUID) string {
	return fmt.Sprintf("entities/nouns/metadata/%s/%s.json", shardFor(id), id.String())
}

func verbVectorPath(id uuid.UUID) string {
	return fmt.Sprintf("entities/verbs/vectors/%s/%s.json", shardFor(id), id.String())
}

func verbMetadataPath(id uuid.UUID) string {
	return fmt.Sprintf("entities/verbs/metadata/%s/%s.json", shardFor(id), id.String())
}
