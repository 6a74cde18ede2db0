package port

import (
	"context"

	"multirag/internal/domain"
)

// Collections searches named similarity indexes.
type Collections interface {
	// Locate checks that the collection's index can be opened.
	Locate(ref domain.CollectionRef) error

	// Search returns up to k chunks ordered by ascending distance.
	Search(ctx context.Context, ref domain.CollectionRef, query string, k int) ([]domain.ScoredChunk, error)
}

// ProgressReporter observes the per-collection fan-out.
type ProgressReporter interface {
	Start(total int)
	Advance(collection string)
	Finish()
}
