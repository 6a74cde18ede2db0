package usecase

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"multirag/internal/domain"
	"multirag/internal/port"
)

// NoResultsMessage is the answer text when retrieval found nothing.
const NoResultsMessage = "No results found."

// DefaultSystemPrompt constrains the model to the supplied context.
const DefaultSystemPrompt = "You are an assistant specialised in the indexed collections. " +
	"Answer questions using only the context you are given."

// AnswerUseCase turns a ranked result set into a language-model answer.
type AnswerUseCase struct {
	completer    port.Completer
	builder      *ContextBuilder
	systemPrompt string
	log          *slog.Logger
}

// NewAnswerUseCase creates a new answer use case.
func NewAnswerUseCase(
	completer port.Completer,
	builder *ContextBuilder,
	systemPrompt string,
	log *slog.Logger,
) *AnswerUseCase {
	if builder == nil {
		builder = NewContextBuilder(nil, 0)
	}
	if systemPrompt == "" {
		systemPrompt = DefaultSystemPrompt
	}
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &AnswerUseCase{
		completer:    completer,
		builder:      builder,
		systemPrompt: systemPrompt,
		log:          log,
	}
}

// Answer asks the model to answer query from the first k results. It never
// returns an error: a failed completion is reported in Answer.GenerationError.
func (u *AnswerUseCase) Answer(ctx context.Context, query string, results []domain.ScoredChunk, k int, temperature float64) (answer domain.Answer) {
	if len(results) == 0 {
		return domain.Answer{Text: NoResultsMessage}
	}
	if k <= 0 {
		k = DefaultTopK
	}

	block := u.builder.Build(results, k)
	userPrompt := BuildUserPrompt(block.Text, query)

	defer func() {
		if r := recover(); r != nil {
			answer = generationFailure(fmt.Errorf("completion panicked: %s", panicMessage(r)))
		}
	}()

	start := time.Now()
	text, err := u.completer.Complete(ctx, u.systemPrompt, userPrompt, temperature)
	if err != nil {
		u.log.Error("Answer generation failed",
			slog.String("model", u.completer.ModelName()),
			slog.String("error", err.Error()))
		return generationFailure(err)
	}

	u.log.Info("Generated answer",
		slog.String("model", u.completer.ModelName()),
		slog.Int("context_chunks", block.Chunks),
		slog.Int("context_tokens", block.UsedTokens),
		slog.Duration("took", time.Since(start)))
	return domain.Answer{Text: text}
}

// BuildUserPrompt wraps the context block and the query into the user message.
func BuildUserPrompt(contextText, query string) string {
	return fmt.Sprintf("Context:\n%s\n\nQuestion: %s\nPlease answer based only on the context provided.", contextText, query)
}

func generationFailure(err error) domain.Answer {
	msg := err.Error()
	if msg == "" {
		msg = "completion failed"
	}
	return domain.Answer{
		Text:            "Error generating answer with LLM: " + msg,
		GenerationError: msg,
	}
}
