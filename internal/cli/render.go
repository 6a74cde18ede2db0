package cli

import (
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/charmbracelet/lipgloss"
	"multirag/internal/domain"
	"multirag/internal/usecase"
)

const previewLimit = 500

var (
	sourceStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	metaStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	warningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	errorStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9"))
	answerStyle  = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("10")).
			Padding(0, 1)
)

// chunkResult is the JSON shape of one ranked chunk.
type chunkResult struct {
	Source   string            `json:"source"`
	Position int               `json:"position"`
	Distance float64           `json:"distance"`
	Text     string            `json:"text"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

type searchOutput struct {
	Query    string                   `json:"query"`
	Results  []chunkResult            `json:"results"`
	Grouped  map[string][]chunkResult `json:"grouped"`
	Sources  []string                 `json:"sources"`
	Warnings []string                 `json:"warnings,omitempty"`
	Answer   *domain.Answer           `json:"answer,omitempty"`
}

func toChunkResult(c domain.ScoredChunk) chunkResult {
	return chunkResult{
		Source:   c.Chunk.Source,
		Position: c.Chunk.Position,
		Distance: c.Distance,
		Text:     c.Chunk.Content,
		Metadata: c.Chunk.Metadata,
	}
}

func buildSearchOutput(query string, r usecase.Retrieval) searchOutput {
	out := searchOutput{
		Query:   query,
		Results: make([]chunkResult, 0, len(r.Results)),
		Grouped: make(map[string][]chunkResult, len(r.Grouped.Groups)),
		Sources: r.Grouped.Sources(),
	}
	for _, c := range r.Results {
		out.Results = append(out.Results, toChunkResult(c))
	}
	for _, g := range r.Grouped.Groups {
		for _, c := range g.Chunks {
			out.Grouped[g.Source] = append(out.Grouped[g.Source], toChunkResult(c))
		}
	}
	for _, w := range r.Warnings {
		out.Warnings = append(out.Warnings, w.String())
	}
	return out
}

func renderWarnings(w io.Writer, warnings []domain.Warning) {
	for _, warn := range warnings {
		fmt.Fprintln(w, warningStyle.Render("warning: "+warn.String()))
	}
}

func renderGrouped(w io.Writer, query string, r usecase.Retrieval, full bool) {
	if len(r.Results) == 0 {
		fmt.Fprintln(w, "No results found.")
		return
	}

	fmt.Fprintf(w, "Found %d results for: %s\n\n", len(r.Results), query)
	for _, g := range r.Grouped.Groups {
		fmt.Fprintln(w, sourceStyle.Render(fmt.Sprintf("%s (%d)", g.Source, len(g.Chunks))))
		for _, c := range g.Chunks {
			fmt.Fprintln(w, metaStyle.Render(fmt.Sprintf("  #%d  distance %.4f", c.Chunk.Position, c.Distance)))
			text := c.Chunk.Content
			if !full && len(text) > previewLimit {
				text = truncate(text, previewLimit) + "..."
			}
			fmt.Fprintln(w, indent(text, "    "))
			fmt.Fprintln(w)
		}
	}
}

func renderAnswer(w io.Writer, a domain.Answer) {
	if a.Failed() {
		fmt.Fprintln(w, errorStyle.Render(a.Text))
		return
	}
	fmt.Fprintln(w, answerStyle.Render(a.Text))
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func indent(s, prefix string) string {
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = prefix + l
	}
	return strings.Join(lines, "\n")
}
