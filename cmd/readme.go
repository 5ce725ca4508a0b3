package cmd

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/naka-gawa/github-profile-stats/internal/config"
	"github.com/naka-gawa/github-profile-stats/internal/domain"
	"github.com/naka-gawa/github-profile-stats/internal/readme"
	"github.com/naka-gawa/github-profile-stats/internal/snapshot"
)

var readmeCmd = &cobra.Command{
	Use:   "readme",
	Short: "Updates the stats badges (and optionally the stats section) of a README",
	Long: `Collects fresh statistics, saves the snapshot and replaces the values of the
Total_Repos, Total_Commits, Lines_of_Code and Total_Stars badges in the README.
With --from-snapshot the existing snapshot file is used and no API call is made.
With --section the markdown section between the start and end markers is regenerated.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		logger := newLogger(cmd)

		cfg, err := config.Load()
		if err != nil {
			return err
		}
		applyFlags(cmd, cfg)

		path, _ := cmd.Flags().GetString("file")
		fromSnapshot, _ := cmd.Flags().GetBool("from-snapshot")
		section, _ := cmd.Flags().GetBool("section")
		if fromSnapshot && section {
			return fmt.Errorf("--section needs fresh data and cannot be combined with --from-snapshot")
		}

		if fromSnapshot {
			snap, err := snapshot.ReadFile(cfg.SnapshotPath)
			if err != nil {
				return err
			}
			return patchBadges(logger, path, snap)
		}

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

		if err := patchBadges(logger, path, snap); err != nil {
			return err
		}
		if !section {
			return nil
		}
		start, _ := cmd.Flags().GetString("start-marker")
		end, _ := cmd.Flags().GetString("end-marker")
		return replaceSection(logger, path, start, end, p.profile(ctx), report)
	},
}

func patchBadges(logger zerolog.Logger, path string, snap snapshot.Snapshot) error {
	matched, err := readme.PatchFile(path, readme.BadgeValues(snap))
	if err != nil {
		return err
	}
	if len(matched) == 0 {
		logger.Warn().Str("file", path).Msg("no stats badge found, document left unchanged")
		return nil
	}
	logger.Info().Str("file", path).Strs("labels", matched).Msg("README badges updated.")
	return nil
}

func replaceSection(logger zerolog.Logger, path, start, end string, profile domain.Profile, report domain.AggregateReport) error {
	body, err := readme.RenderSectionWithMarker(start, readme.SectionData{
		Profile:          profile,
		TotalRepos:       report.TotalRepos,
		PublicRepos:      report.PublicRepos,
		PrivateRepos:     report.PrivateRepos,
		PrimaryLanguages: report.PrimaryLanguages,
		TopRepositories:  report.TopRepositories,
		UpdatedAt:        time.Now(),
	})
	if err != nil {
		return err
	}
	found, err := readme.ReplaceSectionFile(path, start, end, body)
	if err != nil {
		return err
	}
	if !found {
		logger.Warn().Str("file", path).Msg("section markers not found, stats section appended")
		return nil
	}
	logger.Info().Str("file", path).Msg("README stats section updated.")
	return nil
}

func accountOrViewer(profile domain.Profile) string {
	if profile.Login == "" {
		return "viewer"
	}
	return profile.Login
}

func init() {
	rootCmd.AddCommand(readmeCmd)
	addCollectFlags(readmeCmd)
	readmeCmd.Flags().StringP("file", "f", "README.md", "Document to update")
	readmeCmd.Flags().Bool("from-snapshot", false, "Use the existing snapshot file instead of querying GitHub")
	readmeCmd.Flags().Bool("section", false, "Also regenerate the markdown stats section")
	readmeCmd.Flags().String("start-marker", readme.DefaultStartMarker, "Heading that starts the stats section")
	readmeCmd.Flags().String("end-marker", readme.DefaultEndMarker, "Heading that follows the stats section")
}
