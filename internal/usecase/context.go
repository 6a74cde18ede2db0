package usecase

import (
	"strings"

	"multirag/internal/domain"
)

// ContextSeparator joins chunk contents inside a context block.
const ContextSeparator = "\n\n"

// TokenCounter estimates the LLM token cost of a text.
type TokenCounter interface {
	CountTokens(text string) int
}

// ContextBlock is the grounding text sent to the language model.
type ContextBlock struct {
	Text       string
	Chunks     int
	UsedTokens int
}

// ContextBuilder concatenates the most relevant chunks into a context block.
type ContextBuilder struct {
	counter   TokenCounter
	maxTokens int
}

// NewContextBuilder creates a builder. maxTokens <= 0 disables the token cap.
func NewContextBuilder(counter TokenCounter, maxTokens int) *ContextBuilder {
	return &ContextBuilder{counter: counter, maxTokens: maxTokens}
}

// Build joins the content of the first min(k, len(results)) chunks, in
// result order. When a token cap is set, chunks are added whole until the
// next one would exceed it; the first chunk is always kept.
func (b *ContextBuilder) Build(results []domain.ScoredChunk, k int) ContextBlock {
	n := k
	if n > len(results) || n < 0 {
		n = len(results)
	}

	parts := make([]string, 0, n)
	used := 0
	for _, r := range results[:n] {
		tokens := 0
		if b.counter != nil {
			tokens = b.counter.CountTokens(r.Chunk.Content)
		}
		if b.maxTokens > 0 && len(parts) > 0 && used+tokens > b.maxTokens {
			break
		}
		parts = append(parts, r.Chunk.Content)
		used += tokens
	}

	return ContextBlock{
		Text:       strings.Join(parts, ContextSeparator),
		Chunks:     len(parts),
		UsedTokens: used,
	}
}
