package cmd

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/naka-gawa/github-profile-stats/internal/badge"
	"github.com/naka-gawa/github-profile-stats/internal/config"
	"github.com/naka-gawa/github-profile-stats/internal/server"
	"github.com/naka-gawa/github-profile-stats/internal/snapshot"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serves the next update countdown badge and the latest stats over HTTP",
	Long: `Starts an HTTP server with the routes:

  GET /badge/next-update.svg  countdown until the next scheduled refresh
  GET /api/stats              latest snapshot
  GET /api/history?limit=N    recorded snapshots (needs STATS_HISTORY_DB)
  GET /health                 liveness

With --refresh the stats are collected on the same cron schedule the countdown uses.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		logger := newLogger(cmd)

		cfg, err := config.Load()
		if err != nil {
			return err
		}
		applyFlags(cmd, cfg)
		if addr, _ := cmd.Flags().GetString("address"); cmd.Flags().Changed("address") {
			cfg.ServeAddress = addr
		}
		refresh, _ := cmd.Flags().GetBool("refresh")

		countdown, err := badge.NewCountdown(cfg.Schedule)
		if err != nil {
			return err
		}

		var history *snapshot.HistoryStore
		var lister server.HistoryLister
		if cfg.HistoryDBPath != "" {
			history, err = snapshot.OpenHistory(cfg.HistoryDBPath)
			if err != nil {
				return err
			}
			defer history.Close()
			lister = history
		}

		if refresh {
			stopRefresh, err := startRefresh(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer stopRefresh()
		}

		mux := server.NewMux(server.MuxConfig{
			Countdown: countdown,
			Latest:    latestSnapshot(history, cfg.SnapshotPath),
			History:   lister,
			Timeout:   cfg.RequestTimeout,
			Logger:    logger,
		})
		return server.NewServer(cfg.ServeAddress, mux, logger).Run(ctx)
	},
}

// latestSnapshot prefers the history database and falls back to the snapshot file.
func latestSnapshot(history *snapshot.HistoryStore, path string) server.LatestFunc {
	return func(ctx context.Context) (snapshot.Snapshot, error) {
		if history != nil {
			entry, err := history.Latest(ctx)
			if err == nil {
				return entry.Snapshot, nil
			}
			if !errors.Is(err, snapshot.ErrNoHistory) {
				return snapshot.Snapshot{}, err
			}
		}
		return snapshot.ReadFile(path)
	}
}

// startRefresh schedules a full collection run on cfg.Schedule, evaluated in UTC.
// The returned stop func waits for a running refresh and releases the pipeline.
func startRefresh(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (func(), error) {
	p, err := newPipeline(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	scheduler := cron.New(cron.WithLocation(time.UTC))
	_, err = scheduler.AddFunc(cfg.Schedule, func() {
		logger.Info().Msg("scheduled refresh started")
		_, snap, err := p.run(ctx)
		if err != nil {
			logger.Error().Err(err).Msg("scheduled refresh failed")
			return
		}
		if err := p.save(ctx, snap); err != nil {
			logger.Error().Err(err).Msg("scheduled refresh could not save the snapshot")
			return
		}
		logger.Info().Str("path", cfg.SnapshotPath).Msg("Snapshot saved.")
	})
	if err != nil {
		p.Close()
		return nil, err
	}

	scheduler.Start()
	logger.Info().Str("schedule", cfg.Schedule).Msg("scheduled refresh enabled")
	return func() {
		<-scheduler.Stop().Done()
		p.Close()
	}, nil
}

func init() {
	rootCmd.AddCommand(serveCmd)
	addCollectFlags(serveCmd)
	serveCmd.Flags().String("address", "0.0.0.0:8080", "Listen address (overrides STATS_SERVE_ADDRESS)")
	serveCmd.Flags().Bool("refresh", false, "Collect fresh stats on the configured schedule")
}
