package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"multirag/internal/usecase"
)

var (
	contextQuery       string
	contextCollections []string
	contextMatch       []string
	contextTopK        int
	contextPrompt      bool
)

var contextCmd = &cobra.Command{
	Use:   "context",
	Short: "Print the context block that ask would send to the model",
	Long: `Retrieve the global top-k chunks and print the context block built from
them, without calling the language model.

Examples:
  rag context -q "what is lucidity?" -k 5
  rag context -q "what is lucidity?" --prompt`,
	RunE: runContext,
}

func init() {
	rootCmd.AddCommand(contextCmd)
	addSelectionFlags(contextCmd, &contextQuery, &contextCollections, &contextMatch, &contextTopK)
	contextCmd.Flags().BoolVar(&contextPrompt, "prompt", false, "print the full user prompt instead of the bare context")
}

func runContext(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()

	r, err := retrieve(cmd, contextQuery, contextCollections, contextMatch, contextTopK, false)
	if err != nil {
		return err
	}
	renderWarnings(cmd.ErrOrStderr(), r.Warnings)

	out := cmd.OutOrStdout()
	if len(r.Results) == 0 {
		fmt.Fprintln(out, usecase.NoResultsMessage)
		return nil
	}

	block := newContextBuilder(cfg).Build(r.Results, resolveTopK(cfg, contextTopK))
	if contextPrompt {
		fmt.Fprintln(out, usecase.BuildUserPrompt(block.Text, contextQuery))
	} else {
		fmt.Fprintln(out, block.Text)
	}
	fmt.Fprintln(cmd.ErrOrStderr(), metaStyle.Render(fmt.Sprintf("%d chunks, ~%d tokens", block.Chunks, block.UsedTokens)))
	return nil
}
