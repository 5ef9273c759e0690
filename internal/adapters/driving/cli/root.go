// Package cli implements the campusgpt command line interface.
package cli

import (
	"github.com/spf13/cobra"

	"github.com/miabe-ai/campusgpt/internal/config"
	"github.com/miabe-ai/campusgpt/internal/logger"
)

var (
	cfgPath string
	verbose bool

	// cfg is loaded once before any command runs.
	cfg config.Config
)

var rootCmd = &cobra.Command{
	Use:   "campusgpt",
	Short: "Retrieval-grounded assistant for a university website",
	Long: `campusgpt crawls an institutional website, normalises the content
into a Markdown corpus, builds a vector index over it and serves a
conversational assistant grounded in that index.`,
	SilenceUsage:  true,
	SilenceErrors: false,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		logger.SetVerbose(verbose)
		loaded, err := config.Load(cfgPath)
		if err != nil {
			return err
		}
		cfg = loaded
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "path to the TOML config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}

// Execute runs the CLI.
func Execute() error {
	return rootCmd.Execute()
}
