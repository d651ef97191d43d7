package metaindex

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func fieldValues(fvs []FieldValue, field string) []interface{} {
	var out []interface{}
	for _, fv := range fvs {
		if fv.Field == field {
			out = append(out, fv.Raw)
		}
	}
	return out
}

func TestExtractFields_SkipsDenyListedKeys(t *testing.T) {
	raw := map[string]interface{}{
		"vector":      []interface{}{0.1, 0.2},
		"embedding":   []interface{}{0.1},
		"connections": []interface{}{"a"},
		"level":       float64(2),
		"id":          "some-uuid",
		"score":       0.5,
	}
	fvs := ExtractFields(raw)
	assert.Empty(t, fieldValues(fvs, "vector"))
	assert.Empty(t, fieldValues(fvs, "embedding"))
	assert.Empty(t, fieldValues(fvs, "connections"))
	assert.Empty(t, fieldValues(fvs, "level"))
	assert.Empty(t, fieldValues(fvs, "id"))
	assert.Equal(t, []interface{}{0.5}, fieldValues(fvs, "score"))
}

func TestExtractFields_FlattensMetadataSubObject(t *testing.T) {
	raw := map[string]interface{}{
		"metadata": map[string]interface{}{
			"score": 0.9,
		},
	}
	fvs := ExtractFields(raw)
	assert.Equal(t, []interface{}{0.9}, fieldValues(fvs, "score"))
}

func TestExtractFields_RejectsOversizedArrays(t *testing.T) {
	big := make([]interface{}, 11)
	for i := range big {
		big[i] = float64(i)
	}
	raw := map[string]interface{}{"tags": big}
	fvs := ExtractFields(raw)
	assert.Empty(t, fieldValues(fvs, "tags"))
}

func TestExtractFields_SmallArrayEmitsOnePairPerElement(t *testing.T) {
	raw := map[string]interface{}{"tags": []interface{}{"a", "b", "c"}}
	fvs := ExtractFields(raw)
	assert.ElementsMatch(t, []interface{}{"a", "b", "c"}, fieldValues(fvs, "tags"))
}

func TestExtractFields_RenamesTypeToNoun(t *testing.T) {
	raw := map[string]interface{}{"type": "Concept"}
	fvs := ExtractFields(raw)
	assert.Equal(t, []interface{}{"Concept"}, fieldValues(fvs, "noun"))
	assert.Empty(t, fieldValues(fvs, "type"))
}

func TestExtractFields_TokenizesStringContentIntoWords(t *testing.T) {
	raw := map[string]interface{}{"title": "Hello, World! Go-lang rocks."}
	fvs := ExtractFields(raw)
	words := fieldValues(fvs, wordsField)
	assert.NotEmpty(t, words)
}

func TestExtractFields_WordsAreDedupedPerEntity(t *testing.T) {
	raw := map[string]interface{}{
		"title":   "hello world",
		"summary": "hello again",
	}
	fvs := ExtractFields(raw)
	words := fieldValues(fvs, wordsField)

	seen := make(map[interface{}]int)
	for _, w := range words {
		seen[w]++
	}
	for w, count := range seen {
		assert.Equal(t, 1, count, "word hash %v appeared more than once", w)
	}
}

func TestTokenize_LowercasesAndSplitsOnPunctuation(t *testing.T) {
	words := tokenize("Hello, World!")
	assert.Equal(t, []string{"hello", "world"}, words)
}

func TestTokenize_DropsTooShortAndTooLongWords(t *testing.T) {
	long := strings.Repeat("x", 60)
	words := tokenize("a ab " + long)
	assert.NotContains(t, words, "a")
	assert.Contains(t, words, "ab")
	assert.NotContains(t, words, long)
}
