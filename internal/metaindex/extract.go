package metaindex

import (
	"sort"
	"strings"
)

const (
	maxArrayLen       = 10
	wordMinLen        = 2
	wordMaxLen        = 50
	wordsCap          = 5000
	wordsField        = "__words__"
	typeField         = "type"
	nounField         = "noun"
	metadataSubObject = "metadata"
)

// denyList names metadata keys that are never indexed: the vector
// itself, raw embedding payloads, graph-internal fields, and the
// entity's own id (already the object-store key, and interned
// separately via C1).
var denyList = map[string]bool{
	"vector":          true,
	"embedding":       true,
	"connections":     true,
	"level":           true,
	"id":              true,
	metadataSubObject: true,
}

// FieldValue is one (field, raw value) pair extracted from an entity,
// ready for normalization.
type FieldValue struct {
	Field string
	Raw   interface{}
}

// ExtractFields walks an entity's top-level fields plus a flattened
// "metadata" sub-object, applying spec §4.7's deny list, array-length
// rejection, multi-value expansion, the type->noun rename, and the
// synthetic __words__ tokenization field.
func ExtractFields(raw map[string]interface{}) []FieldValue {
	merged := make(map[string]interface{}, len(raw))
	for k, v := range raw {
		merged[k] = v
	}
	if sub, ok := raw[metadataSubObject].(map[string]interface{}); ok {
		for k, v := range sub {
			if _, exists := merged[k]; !exists {
				merged[k] = v
			}
		}
	}

	var out []FieldValue
	var words []string
	seenWords := make(map[string]bool)

	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		if denyList[key] {
			continue
		}
		value := merged[key]

		collectWords(value, &words, seenWords)

		field := key
		if key == typeField {
			field = nounField
		}

		switch v := value.(type) {
		case []interface{}:
			if len(v) > maxArrayLen {
				continue
			}
			for _, item := range v {
				if isPrimitive(item) {
					out = append(out, FieldValue{Field: field, Raw: item})
				}
			}
		default:
			if isPrimitive(value) {
				out = append(out, FieldValue{Field: field, Raw: v})
			}
		}
	}

	if len(words) > 0 {
		if len(words) > wordsCap {
			words = words[:wordsCap]
		}
		for _, w := range words {
			out = append(out, FieldValue{Field: wordsField, Raw: float64(hashWordToInt32(w))})
		}
	}
	return out
}

func isPrimitive(v interface{}) bool {
	switch v.(type) {
	case nil, bool, string, float64, float32, int, int64:
		return true
	default:
		return false
	}
}

// collectWords tokenizes any string content (top-level strings and
// strings inside small arrays) into the corpus used for __words__,
// deduping per entity and respecting the per-entity word cap upstream.
func collectWords(v interface{}, words *[]string, seen map[string]bool) {
	switch val := v.(type) {
	case string:
		for _, w := range tokenize(val) {
			if !seen[w] {
				seen[w] = true
				*words = append(*words, w)
			}
		}
	case []interface{}:
		if len(val) > maxArrayLen {
			return
		}
		for _, item := range val {
			if s, ok := item.(string); ok {
				for _, w := range tokenize(s) {
					if !seen[w] {
						seen[w] = true
						*words = append(*words, w)
					}
				}
			}
		}
	}
}

// tokenize lowercases, maps punctuation to spaces, splits on
// whitespace, and keeps words of length [2, 50].
func tokenize(s string) []string {
	lower := strings.ToLower(s)
	b := strings.Builder{}
	b.Grow(len(lower))
	for _, r := range lower {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteByte(' ')
		}
	}
	fields := strings.Fields(b.String())
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if len(f) >= wordMinLen && len(f) <= wordMaxLen {
			out = append(out, f)
		}
	}
	return out
}

// hashWordToInt32 FNV-1a-hashes a word to a signed 32-bit integer, the
// wire form __words__ entries are stored under.
func hashWordToInt32(w string) int32 {
	var h uint32 = 2166136261
	for i := 0; i < len(w); i++ {
		h ^= uint32(w[i])
		h *= 16777619
	}
	return int32(h)
}

