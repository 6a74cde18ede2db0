package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"multirag/config"
	"multirag/internal/logging"
)

var (
	cfgFile  string
	envFile  string
	logLevel string
	cfg      *config.Config
	rootDir  string
	logger   *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "rag",
	Short: "Ask questions across several pre-built similarity indexes",
	Long: `RAG searches a set of named document collections, merges their hits into
one ranking ordered by distance and asks a language model to answer from the
most relevant chunks.

Example usage:
  rag collections                          # List configured collections
  rag search -q "lucidity" -c dac -c lo    # Ranked chunks grouped by source
  rag ask -q "what is lucidity?" -k 10     # Answer from the top chunks`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error

		if rootDir == "" {
			rootDir, err = os.Getwd()
			if err != nil {
				return fmt.Errorf("failed to get working directory: %w", err)
			}
		}

		if cfgFile != "" {
			cfg, err = config.Load(cfgFile)
		} else {
			cfg, err = config.LoadFromDir(rootDir)
		}
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		if err := cfg.LoadEnv(envFile); err != nil {
			return err
		}

		level := cfg.Logging.Level
		if logLevel != "" {
			level = logLevel
		}
		logger = logging.New(cmd.ErrOrStderr(), level)

		return nil
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./rag.yaml)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env", "", "dotenv file (default is $DOTENV_PATH or ./.env)")
	rootCmd.PersistentFlags().StringVarP(&rootDir, "dir", "d", "", "root directory (default is current directory)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")
}

func GetConfig() *config.Config {
	return cfg
}

func GetLogger() *slog.Logger {
	return logger
}
