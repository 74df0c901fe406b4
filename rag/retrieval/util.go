package retrieval

import (
	"strings"
	"unicode"
)

// Tokenize lowercases the text and splits on any non-letter, non-digit rune.
// Indexing and querying must share this exact policy; diverging tokenizers
// silently produce zero recall.
func Tokenize(text string) []string {
	if text == "" {
		return nil
	}
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// TermWeights counts token occurrences, producing the sparse representation
// stored on a chunk at ingestion time.
func TermWeights(text string) map[string]float64 {
	tokens := Tokenize(text)
	if len(tokens) == 0 {
		return nil
	}
	weights := make(map[string]float64, len(tokens))
	for _, token := range tokens {
		weights[token]++
	}
	return weights
}
