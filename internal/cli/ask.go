package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	askQuery       string
	askCollections []string
	askMatch       []string
	askTopK        int
	askTemperature float64
	askJSON        bool
	askShowSources bool
)

var askCmd = &cobra.Command{
	Use:   "ask",
	Short: "Answer a question from the most relevant chunks",
	Long: `Retrieve the global top-k chunks across the selected collections and ask the
configured language model to answer using only that context.

Examples:
  rag ask -q "what is lucidity?"
  rag ask -q "what is lucidity?" -c dac -k 10 --temperature 0
  rag ask -q "what is lucidity?" --sources --json`,
	RunE: runAsk,
}

func init() {
	rootCmd.AddCommand(askCmd)
	addSelectionFlags(askCmd, &askQuery, &askCollections, &askMatch, &askTopK)
	askCmd.Flags().Float64VarP(&askTemperature, "temperature", "t", -1, "sampling temperature (default from config)")
	askCmd.Flags().BoolVar(&askJSON, "json", false, "output as JSON")
	askCmd.Flags().BoolVar(&askShowSources, "sources", false, "also print the ranked chunks")
}

func runAsk(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()

	answerUC, err := newAnswerUseCase(cfg, GetLogger())
	if err != nil {
		return err
	}

	r, err := retrieve(cmd, askQuery, askCollections, askMatch, askTopK, !askJSON)
	if err != nil {
		return err
	}

	temperature := cfg.Answer.Temperature
	if askTemperature >= 0 {
		temperature = askTemperature
	}

	answer := answerUC.Answer(cmd.Context(), askQuery, r.Results, resolveTopK(cfg, askTopK), temperature)

	out := cmd.OutOrStdout()
	if askJSON {
		output := buildSearchOutput(askQuery, r)
		output.Answer = &answer
		return writeJSON(out, output)
	}

	renderWarnings(cmd.ErrOrStderr(), r.Warnings)
	renderAnswer(out, answer)
	if askShowSources {
		fmt.Fprintln(out)
		renderGrouped(out, askQuery, r, false)
	}
	return nil
}
