package domain

import "fmt"

// CollectionRef identifies one similarity index to search.
type CollectionRef struct {
	Name string
	Path string
}

type Chunk struct {
	ID       string
	Content  string
	Source   string
	Position int
	Metadata map[string]string
}

// ScoredChunk is a chunk with its distance to the query.
// Lower distance means higher relevance.
type ScoredChunk struct {
	Chunk    Chunk
	Distance float64
}

type Group struct {
	Source string
	Chunks []ScoredChunk
}

// GroupedView is the result set partitioned by display source name,
// groups sorted alphabetically.
type GroupedView struct {
	Groups []Group
}

// Sources returns the group keys in display order.
func (v GroupedView) Sources() []string {
	sources := make([]string, 0, len(v.Groups))
	for _, g := range v.Groups {
		sources = append(sources, g.Source)
	}
	return sources
}

// Flatten concatenates all groups in display order.
func (v GroupedView) Flatten() []ScoredChunk {
	var out []ScoredChunk
	for _, g := range v.Groups {
		out = append(out, g.Chunks...)
	}
	return out
}

type Warning struct {
	Collection string
	Message    string
}

func (w Warning) String() string {
	if w.Collection == "" {
		return w.Message
	}
	return fmt.Sprintf("%s: %s", w.Collection, w.Message)
}

type Answer struct {
	Text            string `json:"text"`
	GenerationError string `json:"generation_error,omitempty"`
}

// Failed reports whether the answer carries a generation error.
func (a Answer) Failed() bool {
	return a.GenerationError != ""
}
