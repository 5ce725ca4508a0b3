// Package cmd contains all the CLI commands for the application,
// built using the Cobra library.
package cmd

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/naka-gawa/github-profile-stats/internal/logging"
)

var rootCmd = &cobra.Command{
	Use:   "github-stats",
	Short: "A CLI tool to aggregate personal GitHub account statistics.",
	Long: `github-stats aggregates statistics across every repository of a GitHub account
(repository counts, commit counts, approximate lines of code, stars and languages),
persists a snapshot and can patch the numbers into a profile README.

Without a subcommand it runs stats.
Configuration is read from the environment (GITHUB_TOKEN, STATS_*); flags override it.`,
	SilenceUsage: true,
	Args:         cobra.NoArgs,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.RunE = runStats

	// Add a persistent flag for verbose output, available to all commands.
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose/debug logging")
	rootCmd.PersistentFlags().Bool("human-log", false, "Write human readable logs instead of JSON lines")
}

// newLogger builds the logger from the persistent flags. Logs always go to stderr.
func newLogger(cmd *cobra.Command) zerolog.Logger {
	verbose, _ := cmd.Flags().GetBool("verbose")
	human, _ := cmd.Flags().GetBool("human-log")
	return logging.New(verbose, human)
}
