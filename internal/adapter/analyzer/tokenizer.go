package analyzer

import (
	"strings"
	"unicode"
)

// Tokenizer estimates LLM token usage for prose.
type Tokenizer struct {
	ratio float64
}

// NewTokenizer creates a Tokenizer that counts ratio tokens per word.
// A non-positive ratio selects the default of 1.3.
func NewTokenizer(ratio float64) *Tokenizer {
	if ratio <= 0 {
		ratio = 1.3
	}
	return &Tokenizer{ratio: ratio}
}

// CountTokens returns an approximate token count for LLM budget estimation.
func (t *Tokenizer) CountTokens(text string) int {
	words := splitWords(text)
	if len(words) == 0 {
		return 0
	}
	// Accented and agglutinated words split into several subword tokens.
	n := int(float64(len(words)) * t.ratio)
	if n == 0 {
		n = 1
	}
	return n
}

// splitWords splits text into words using unicode word boundaries.
func splitWords(text string) []string {
	var words []string
	var current strings.Builder

	for _, r := range text {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' {
			current.WriteRune(r)
		} else {
			if current.Len() > 0 {
				words = append(words, current.String())
				current.Reset()
			}
		}
	}
	if current.Len() > 0 {
		words = append(words, current.String())
	}

	return words
}
