package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"multirag/internal/domain"
)

// Collections is an in-memory set of collections with fixed hits, used for
// demos and tests. It implements port.Collections.
type Collections struct {
	mu       sync.RWMutex
	hits     map[string][]domain.ScoredChunk
	failures map[string]error
	searched map[string]int
}

func NewCollections() *Collections {
	return &Collections{
		hits:     make(map[string][]domain.ScoredChunk),
		failures: make(map[string]error),
		searched: make(map[string]int),
	}
}

// Put registers a collection and its hits. Hits are kept sorted by
// ascending distance; chunks without a source get the collection name.
func (s *Collections) Put(name string, hits []domain.ScoredChunk) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sorted := make([]domain.ScoredChunk, len(hits))
	copy(sorted, hits)
	for i := range sorted {
		if sorted[i].Chunk.Source == "" {
			sorted[i].Chunk.Source = name
		}
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Distance < sorted[j].Distance
	})

	s.hits[name] = sorted
	delete(s.failures, name)
}

// Fail makes every search of the named collection return err.
func (s *Collections) Fail(name string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[name] = err
	if _, ok := s.hits[name]; !ok {
		s.hits[name] = nil
	}
}

func (s *Collections) Locate(ref domain.CollectionRef) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.hits[ref.Name]; !ok {
		return fmt.Errorf("collection not found: %s", ref.Name)
	}
	return nil
}

func (s *Collections) Search(_ context.Context, ref domain.CollectionRef, _ string, k int) ([]domain.ScoredChunk, error) {
	s.mu.Lock()
	s.searched[ref.Name]++
	err := s.failures[ref.Name]
	hits, ok := s.hits[ref.Name]
	s.mu.Unlock()

	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("collection not found: %s", ref.Name)
	}

	if k > len(hits) {
		k = len(hits)
	}
	if k < 0 {
		k = 0
	}
	out := make([]domain.ScoredChunk, k)
	copy(out, hits[:k])
	return out, nil
}

// Searches returns how many times the named collection was searched.
func (s *Collections) Searches(name string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.searched[name]
}
