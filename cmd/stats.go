package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/naka-gawa/github-profile-stats/internal/config"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Aggregates GitHub account statistics and outputs them as JSON",
	Long: `Lists every repository of the authenticated account (and of the given organizations),
aggregates repository, commit, line and star counts, prints the result as JSON and
overwrites the snapshot file. Estimated figures are labeled as such.`,
	RunE: runStats,
}

// runStats is the default command, also run by github-stats without a subcommand.
func runStats(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	logger := newLogger(cmd)

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	applyFlags(cmd, cfg)
	full, _ := cmd.Flags().GetBool("full")

	p, err := newPipeline(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer p.Close()

	report, snap, err := p.run(ctx)
	if err != nil {
		return err
	}

	if err := p.save(ctx, snap); err != nil {
		return err
	}
	logger.Info().Str("path", cfg.SnapshotPath).Msg("Snapshot saved.")

	// Marshal the results into a pretty-printed JSON string.
	var out interface{} = snap
	if full {
		out = report
	}
	jsonData, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal results to JSON: %w", err)
	}

	// Print the final JSON to standard output.
	fmt.Fprintln(cmd.OutOrStdout(), string(jsonData))
	return nil
}

func init() {
	rootCmd.AddCommand(statsCmd)
	for _, c := range []*cobra.Command{rootCmd, statsCmd} {
		addCollectFlags(c)
		c.Flags().Bool("full", false, "Print the full report instead of the snapshot")
	}
}
