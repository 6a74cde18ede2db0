package cli

import (
	"fmt"
	"log/slog"

	"multirag/config"
	"multirag/internal/adapter/analyzer"
	"multirag/internal/adapter/cache"
	"multirag/internal/adapter/collection"
	"multirag/internal/adapter/embedding"
	"multirag/internal/adapter/llm"
	"multirag/internal/port"
	"multirag/internal/usecase"
)

func newEmbedder(cfg *config.Config) (port.Embedder, error) {
	var base port.Embedder
	switch cfg.Embedding.Provider {
	case "mock":
		base = embedding.NewMockEmbedder(cfg.Embedding.Dimension)
	case "openai", "":
		e, err := embedding.NewOpenAIEmbedder(cfg.Embedding.APIKeyEnv, cfg.Embedding.Model, cfg.Embedding.BaseURL, cfg.Embedding.Dimension)
		if err != nil {
			return nil, err
		}
		base = e
	default:
		return nil, fmt.Errorf("unknown embedding provider: %s", cfg.Embedding.Provider)
	}

	return cache.NewCachedEmbedder(base, cache.NewEmbeddingCache(cfg.Embedding.CacheSize, cfg.Embedding.CacheTTL)), nil
}

func newRetrieveUseCase(cfg *config.Config, log *slog.Logger) (*usecase.RetrieveUseCase, error) {
	emb, err := newEmbedder(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}

	rules := make([]usecase.DisplayRule, 0, len(cfg.Retrieve.DisplayNames))
	for _, d := range cfg.Retrieve.DisplayNames {
		rules = append(rules, usecase.DisplayRule{From: d.From, To: d.To})
	}

	return usecase.NewRetrieveUseCase(
		collection.NewSearcher(emb),
		usecase.NewSourceFormatter(rules),
		cfg.Retrieve.Concurrency,
		log,
	), nil
}

func newContextBuilder(cfg *config.Config) *usecase.ContextBuilder {
	return usecase.NewContextBuilder(analyzer.NewTokenizer(0), cfg.Answer.MaxContextTokens)
}

func newAnswerUseCase(cfg *config.Config, log *slog.Logger) (*usecase.AnswerUseCase, error) {
	completer, err := llm.NewOpenAICompleter(cfg.Answer.APIKeyEnv, cfg.Answer.Model, llm.Options{
		BaseURL:    cfg.Answer.BaseURL,
		Timeout:    cfg.Answer.Timeout,
		MaxRetries: cfg.Answer.MaxRetries,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create language model client: %w", err)
	}

	return usecase.NewAnswerUseCase(completer, newContextBuilder(cfg), cfg.Answer.SystemPrompt, log), nil
}

// resolveTopK prefers an explicit flag over the configured default.
func resolveTopK(cfg *config.Config, flag int) int {
	if flag > 0 {
		return flag
	}
	if cfg.Retrieve.TopK > 0 {
		return cfg.Retrieve.TopK
	}
	return usecase.DefaultTopK
}
