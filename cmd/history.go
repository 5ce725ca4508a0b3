package cmd

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/naka-gawa/github-profile-stats/internal/config"
	"github.com/naka-gawa/github-profile-stats/internal/snapshot"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Prints recorded snapshots as JSON, most recent first",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		cfg, err := config.Load()
		if err != nil {
			return err
		}
		if db, _ := cmd.Flags().GetString("db"); db != "" {
			cfg.HistoryDBPath = db
		}
		if cfg.HistoryDBPath == "" {
			return errors.New("history is not enabled: set STATS_HISTORY_DB or --db")
		}
		limit, _ := cmd.Flags().GetInt("limit")

		history, err := snapshot.OpenHistory(cfg.HistoryDBPath)
		if err != nil {
			return err
		}
		defer history.Close()

		entries, err := history.List(ctx, limit)
		if err != nil {
			return err
		}
		logger := newLogger(cmd)
		logger.Debug().Int("entries", len(entries)).Msg("history loaded")

		jsonData, err := json.MarshalIndent(entries, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal results to JSON: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(jsonData))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().Int("limit", 10, "Number of snapshots to print (0 = all)")
	historyCmd.Flags().String("db", "", "SQLite history database (overrides STATS_HISTORY_DB)")
}
