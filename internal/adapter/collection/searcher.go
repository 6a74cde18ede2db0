package collection

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"multirag/internal/adapter/store"
	"multirag/internal/domain"
	"multirag/internal/port"
)

var (
	// ErrNoLocation is returned for a collection without a storage path.
	ErrNoLocation = errors.New("no storage location configured")
	// ErrIndexNotFound is returned when the index artifact is missing.
	ErrIndexNotFound = errors.New("index file not found")
)

// Searcher searches bbolt collection indexes stored under each
// collection's directory.
type Searcher struct {
	embedder port.Embedder
}

func NewSearcher(embedder port.Embedder) *Searcher {
	return &Searcher{embedder: embedder}
}

// IndexPath returns the index artifact for a collection directory.
func IndexPath(dir string) string {
	return filepath.Join(dir, store.IndexFile)
}

func (s *Searcher) Locate(ref domain.CollectionRef) error {
	if ref.Path == "" {
		return ErrNoLocation
	}
	info, err := os.Stat(IndexPath(ref.Path))
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrIndexNotFound, IndexPath(ref.Path))
		}
		return fmt.Errorf("failed to stat index: %w", err)
	}
	if info.IsDir() {
		return fmt.Errorf("%w: %s is a directory", ErrIndexNotFound, IndexPath(ref.Path))
	}
	return nil
}

func (s *Searcher) Search(ctx context.Context, ref domain.CollectionRef, query string, k int) ([]domain.ScoredChunk, error) {
	if err := s.Locate(ref); err != nil {
		return nil, err
	}

	idx, err := store.OpenCollectionIndex(IndexPath(ref.Path))
	if err != nil {
		return nil, err
	}
	defer idx.Close()

	if model := idx.Model(); model != "" && model != s.embedder.ModelName() {
		return nil, fmt.Errorf("index built with embedding model %q, query embedder is %q", model, s.embedder.ModelName())
	}

	embeddings, err := s.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	if len(embeddings) == 0 {
		return nil, fmt.Errorf("embedding returned empty result")
	}

	results, err := idx.Search(embeddings[0], k)
	if err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}

	for i := range results {
		if results[i].Chunk.Source == "" {
			results[i].Chunk.Source = ref.Name
		}
	}
	return results, nil
}
