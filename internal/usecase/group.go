package usecase

import (
	"sort"
	"strings"

	"multirag/internal/domain"
)

// DisplayRule rewrites the first occurrence of From with To.
type DisplayRule struct {
	From string
	To   string
}

// SourceFormatter turns raw source collection names into display names.
type SourceFormatter struct {
	rules []DisplayRule
}

// NewSourceFormatter creates a formatter applying rules in order.
func NewSourceFormatter(rules []DisplayRule) *SourceFormatter {
	return &SourceFormatter{rules: rules}
}

// Format applies every rule once, in order.
func (f *SourceFormatter) Format(source string) string {
	formatted := source
	for _, r := range f.rules {
		if r.From == "" {
			continue
		}
		formatted = strings.Replace(formatted, r.From, r.To, 1)
	}
	return formatted
}

// GroupBySource projects an already merged and truncated result set into
// groups keyed by display source name. Chunks keep their result-set order
// inside each group; groups are sorted alphabetically.
func GroupBySource(results []domain.ScoredChunk, f *SourceFormatter) domain.GroupedView {
	if f == nil {
		f = NewSourceFormatter(nil)
	}

	byName := make(map[string][]domain.ScoredChunk)
	for _, r := range results {
		name := f.Format(r.Chunk.Source)
		byName[name] = append(byName[name], r)
	}

	sources := make([]string, 0, len(byName))
	for name := range byName {
		sources = append(sources, name)
	}
	sort.Strings(sources)

	view := domain.GroupedView{Groups: make([]domain.Group, 0, len(sources))}
	for _, name := range sources {
		view.Groups = append(view.Groups, domain.Group{Source: name, Chunks: byName[name]})
	}
	return view
}
