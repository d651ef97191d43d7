package chunkstore

import "fmt"

// Kind discriminates the two shapes a NormalizedValue can take after
// metadata normalization: every string-typed signal (null/bool
// sentinels, hashed long strings, plain strings) collapses to String;
// every numeric signal (including bucketed timestamps) is Number. A
// field's chunk holds only one Kind at a time, which is what makes the
// zone map's min/max ordering well defined.
type Kind uint8

const (
	KindString Kind = iota
	KindNumber
)

// Value is the entries-map key and zone-map bound type a Chunk holds:
// the normalized form produced by the metadata index manager (C7),
// independent of the richer Go value it was derived from.
type Value struct {
	Kind Kind
	Str  string
	Num  float64
}

// StringValue wraps a normalized string value.
func StringValue(s string) Value { return Value{Kind: KindString, Str: s} }

// NumberValue wraps a normalized numeric value.
func NumberValue(n float64) Value { return Value{Kind: KindNumber, Num: n} }

// Less defines the total order used for zone maps and split partitions.
// Values of different Kind never coexist within one chunk in practice,
// but Less still orders them deterministically (strings before numbers)
// so sort routines never panic on a mixed input.
func (v Value) Less(other Value) bool {
	if v.Kind != other.Kind {
		return v.Kind < other.Kind
	}
	if v.Kind == KindString {
		return v.Str < other.Str
	}
	return v.Num < other.Num
}

// Equal reports value equality within a single Kind.
func (v Value) Equal(other Value) bool {
	return v.Kind == other.Kind && v.Str == other.Str && v.Num == other.Num
}

// String renders the value for diagnostics and as a map key fallback.
func (v Value) String() string {
	if v.Kind == KindString {
		return v.Str
	}
	return fmt.Sprintf("%g", v.Num)
}

