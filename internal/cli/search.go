package cli

import (
	"encoding/json"
	"io"

	"github.com/spf13/cobra"
	"multirag/internal/usecase"
)

var (
	searchQuery       string
	searchCollections []string
	searchMatch       []string
	searchTopK        int
	searchJSON        bool
	searchFull        bool
	searchNoProgress  bool
)

var searchCmd = &cobra.Command{
	Use:   "search",
	Short: "Search collections and show ranked chunks grouped by source",
	Long: `Search every selected collection for the query, merge the hits into one
ranking by ascending distance, keep the global top-k and group them by source.

Examples:
  rag search -q "lucidity"
  rag search -q "lucidity" -c dac -c lo --top-k 10
  rag search -q "lucidity" --match "lo-*" --json`,
	RunE: runSearch,
}

func init() {
	rootCmd.AddCommand(searchCmd)
	addSelectionFlags(searchCmd, &searchQuery, &searchCollections, &searchMatch, &searchTopK)
	searchCmd.Flags().BoolVar(&searchJSON, "json", false, "output as JSON")
	searchCmd.Flags().BoolVar(&searchFull, "full", false, "print full chunk text")
	searchCmd.Flags().BoolVar(&searchNoProgress, "no-progress", false, "hide the progress bar")
}

func addSelectionFlags(cmd *cobra.Command, query *string, collections, match *[]string, topK *int) {
	cmd.Flags().StringVarP(query, "query", "q", "", "question or search text (required)")
	cmd.Flags().StringSliceVarP(collections, "collection", "c", nil, "collection name to search (repeatable)")
	cmd.Flags().StringSliceVar(match, "match", nil, "glob pattern selecting collection names (repeatable)")
	cmd.Flags().IntVarP(topK, "top-k", "k", 0, "number of results (default from config)")
	cmd.MarkFlagRequired("query")
}

func retrieve(cmd *cobra.Command, query string, collections, match []string, topK int, progress bool) (usecase.Retrieval, error) {
	cfg := GetConfig()

	refs, err := cfg.Resolve(collections, match)
	if err != nil {
		return usecase.Retrieval{}, err
	}

	retrieveUC, err := newRetrieveUseCase(cfg, GetLogger())
	if err != nil {
		return usecase.Retrieval{}, err
	}
	if progress {
		retrieveUC.WithProgress(newBarReporter(cmd.ErrOrStderr()))
	}

	return retrieveUC.Retrieve(cmd.Context(), query, refs, resolveTopK(cfg, topK)), nil
}

func runSearch(cmd *cobra.Command, args []string) error {
	r, err := retrieve(cmd, searchQuery, searchCollections, searchMatch, searchTopK, !searchNoProgress && !searchJSON)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if searchJSON {
		return writeJSON(out, buildSearchOutput(searchQuery, r))
	}

	renderWarnings(cmd.ErrOrStderr(), r.Warnings)
	renderGrouped(out, searchQuery, r, searchFull)
	return nil
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
