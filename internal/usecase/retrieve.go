package usecase

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"multirag/internal/domain"
	"multirag/internal/port"
)

// DefaultTopK is used when a caller passes a non-positive k.
const DefaultTopK = 30

// Retrieval is the outcome of one aggregated search.
type Retrieval struct {
	Results  []domain.ScoredChunk
	Grouped  domain.GroupedView
	Warnings []domain.Warning
}

// RetrieveUseCase fans a query out over several collections and merges the
// per-collection hits into one ranked result set.
type RetrieveUseCase struct {
	collections port.Collections
	formatter   *SourceFormatter
	concurrency int
	progress    port.ProgressReporter
	log         *slog.Logger
}

// NewRetrieveUseCase creates a new retrieve use case.
func NewRetrieveUseCase(
	collections port.Collections,
	formatter *SourceFormatter,
	concurrency int,
	log *slog.Logger,
) *RetrieveUseCase {
	if formatter == nil {
		formatter = NewSourceFormatter(nil)
	}
	if concurrency <= 0 {
		concurrency = 1
	}
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &RetrieveUseCase{
		collections: collections,
		formatter:   formatter,
		concurrency: concurrency,
		log:         log,
	}
}

// WithProgress attaches a reporter notified as each collection finishes.
func (u *RetrieveUseCase) WithProgress(p port.ProgressReporter) *RetrieveUseCase {
	u.progress = p
	return u
}

type searchOutcome struct {
	chunks  []domain.ScoredChunk
	warning *domain.Warning
}

// Retrieve searches every resolvable collection for the k nearest chunks and
// returns the global top k ordered by ascending distance. Collection failures
// are reported as warnings and never abort the call.
func (u *RetrieveUseCase) Retrieve(ctx context.Context, query string, refs []domain.CollectionRef, k int) Retrieval {
	if k <= 0 {
		k = DefaultTopK
	}

	var warnings []domain.Warning
	resolvable := make([]domain.CollectionRef, 0, len(refs))
	for _, ref := range refs {
		if ref.Path == "" {
			warnings = u.warn(warnings, ref.Name, "no storage location configured, skipped")
			continue
		}
		if err := u.collections.Locate(ref); err != nil {
			warnings = u.warn(warnings, ref.Name, err.Error())
			continue
		}
		resolvable = append(resolvable, ref)
	}

	if len(resolvable) == 0 {
		if len(refs) > 0 {
			warnings = u.warn(warnings, "", "no valid collection selected")
		}
		return Retrieval{Results: []domain.ScoredChunk{}, Warnings: warnings}
	}

	outcomes := u.searchAll(ctx, query, resolvable, k)

	var all []domain.ScoredChunk
	for _, o := range outcomes {
		if o.warning != nil {
			warnings = u.warn(warnings, o.warning.Collection, o.warning.Message)
			continue
		}
		all = append(all, o.chunks...)
	}

	results := MergeTopK(all, k)
	return Retrieval{
		Results:  results,
		Grouped:  GroupBySource(results, u.formatter),
		Warnings: warnings,
	}
}

// searchAll queries each collection with bounded concurrency. Every task
// writes only its own slot, so outcomes keep the order of refs.
func (u *RetrieveUseCase) searchAll(ctx context.Context, query string, refs []domain.CollectionRef, k int) []searchOutcome {
	outcomes := make([]searchOutcome, len(refs))
	if u.progress != nil {
		u.progress.Start(len(refs))
		defer u.progress.Finish()
	}

	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	sem := make(chan struct{}, u.concurrency)

	for i, ref := range refs {
		wg.Add(1)
		sem <- struct{}{}
		go func(idx int, ref domain.CollectionRef) {
			defer wg.Done()
			defer func() { <-sem }()

			outcomes[idx] = u.searchOne(ctx, query, ref, k)

			if u.progress != nil {
				mu.Lock()
				u.progress.Advance(ref.Name)
				mu.Unlock()
			}
		}(i, ref)
	}
	wg.Wait()

	return outcomes
}

func (u *RetrieveUseCase) searchOne(ctx context.Context, query string, ref domain.CollectionRef, k int) (out searchOutcome) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			out = searchOutcome{warning: &domain.Warning{
				Collection: ref.Name,
				Message:    "search panicked: " + panicMessage(r),
			}}
		}
	}()

	chunks, err := u.collections.Search(ctx, ref, query, k)
	if err != nil {
		return searchOutcome{warning: &domain.Warning{
			Collection: ref.Name,
			Message:    "search failed: " + err.Error(),
		}}
	}

	u.log.Debug("Searched collection",
		slog.String("collection", ref.Name),
		slog.Int("hits", len(chunks)),
		slog.Duration("took", time.Since(start)))
	return searchOutcome{chunks: chunks}
}

func (u *RetrieveUseCase) warn(warnings []domain.Warning, collection, msg string) []domain.Warning {
	w := domain.Warning{Collection: collection, Message: msg}
	u.log.Debug("Collection skipped", slog.String("collection", collection), slog.String("reason", msg))
	return append(warnings, w)
}

// MergeTopK sorts chunks by ascending distance, keeping insertion order for
// equal distances, and truncates to k.
func MergeTopK(chunks []domain.ScoredChunk, k int) []domain.ScoredChunk {
	merged := make([]domain.ScoredChunk, len(chunks))
	copy(merged, chunks)

	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Distance < merged[j].Distance
	})

	if k >= 0 && len(merged) > k {
		merged = merged[:k]
	}
	return merged
}

func panicMessage(r any) string {
	if err, ok := r.(error); ok {
		return err.Error()
	}
	return fmt.Sprint(r)
}
