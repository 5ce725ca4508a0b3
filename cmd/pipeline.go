package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/naka-gawa/github-profile-stats/internal/config"
	"github.com/naka-gawa/github-profile-stats/internal/domain"
	"github.com/naka-gawa/github-profile-stats/internal/gateway"
	"github.com/naka-gawa/github-profile-stats/internal/humanfmt"
	"github.com/naka-gawa/github-profile-stats/internal/snapshot"
	"github.com/naka-gawa/github-profile-stats/internal/usecase"
)

// pipeline wires the gateway, the collector and the aggregator for one configuration.
type pipeline struct {
	cfg     *config.Config
	logger  zerolog.Logger
	gateway *gateway.GitHubGateway
	source  gateway.RepositoryDataSource
	closers []func() error
	// login is the resolved account, empty until profile succeeds.
	login string
}

func newPipeline(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*pipeline, error) {
	if err := cfg.ResolveToken(ctx); err != nil {
		return nil, err
	}

	githubGateway, err := gateway.NewGitHubGateway(cfg.GithubToken, gateway.Settings{
		APIAddress:  cfg.GithubAPIAddress,
		RequestRate: cfg.RequestRate,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create GitHub gateway: %w", err)
	}

	p := &pipeline{
		cfg:     cfg,
		logger:  logger,
		gateway: githubGateway,
		source:  githubGateway,
	}

	if cfg.CacheSize > 0 {
		var store gateway.KVStore
		if cfg.CacheDBPath != "" {
			boltStore, err := gateway.NewBoltStore(cfg.CacheDBPath, cfg.CacheBucket)
			if err != nil {
				return nil, fmt.Errorf("failed to open cache: %w", err)
			}
			p.closers = append(p.closers, boltStore.Close)
			store = boltStore
		}
		cached, err := gateway.NewCachedSource(githubGateway, store, cfg.CacheSize, cfg.CacheTTL, logger)
		if err != nil {
			p.Close()
			return nil, err
		}
		p.source = cached
	}

	return p, nil
}

// Close releases resources opened by the pipeline.
func (p *pipeline) Close() {
	for _, c := range p.closers {
		if err := c(); err != nil {
			p.logger.Warn().Err(err).Msg("closing resource failed")
		}
	}
	p.closers = nil
}

func (p *pipeline) scopes() []domain.OwnerScope {
	scopes := []domain.OwnerScope{{Kind: domain.ScopePersonal}}
	for _, org := range p.cfg.Orgs {
		if org == "" {
			continue
		}
		scopes = append(scopes, domain.OwnerScope{Kind: domain.ScopeOrganization, Login: org})
	}
	return scopes
}

func aggregateOptions(cfg *config.Config) (usecase.Options, domain.LanguageSource, error) {
	strategy, err := domain.ParseCommitStrategy(cfg.CommitStrategy)
	if err != nil {
		return usecase.Options{}, "", err
	}
	languageSource, err := domain.ParseLanguageSource(cfg.LanguageSource)
	if err != nil {
		return usecase.Options{}, "", err
	}
	if cfg.SampleSize < 0 {
		return usecase.Options{}, "", errors.New("sample size must not be negative")
	}

	opts := usecase.DefaultOptions()
	opts.BytesPerLine = cfg.BytesPerLine
	opts.SampleSize = cfg.SampleSize
	opts.TopLanguages = cfg.TopLanguages
	opts.CommitStrategy = strategy
	opts.CommitMultiplier = cfg.CommitMultiplier
	return opts, languageSource, nil
}

// run collects and aggregates. A failed listing is the only fatal error.
func (p *pipeline) run(ctx context.Context) (domain.AggregateReport, snapshot.Snapshot, error) {
	opts, languageSource, err := aggregateOptions(p.cfg)
	if err != nil {
		return domain.AggregateReport{}, snapshot.Snapshot{}, err
	}

	collector := usecase.NewCollector(p.source, p.logger,
		usecase.WithWorkers(p.cfg.Workers),
		usecase.WithFetchTimeout(p.cfg.FetchTimeout),
	)
	collection, err := collector.Collect(ctx, usecase.CollectRequest{
		Scopes:         p.scopes(),
		SampleSize:     opts.SampleSize,
		LanguageSource: languageSource,
		CommitStrategy: opts.CommitStrategy,
	})
	if err != nil {
		return domain.AggregateReport{}, snapshot.Snapshot{}, fmt.Errorf("failed to collect stats: %w", err)
	}

	report := usecase.Aggregate(collection.Repositories, collection.Contributions, opts)
	p.logger.Info().
		Int("repos", report.TotalRepos).
		Int64("commits", report.TotalCommits).
		Bool("commits_estimated", report.CommitsEstimated).
		Str("size", humanfmt.KB(report.TotalBytes)).
		Int64("lines", report.TotalLines).
		Bool("lines_estimated", report.BytesEstimated).
		Int("language_failures", report.LanguageFailures).
		Int("commit_failures", report.CommitFailures).
		Msg("Aggregation complete.")

	return report, snapshot.NewSnapshot(report, time.Now()), nil
}

// sinks opens every configured snapshot destination and returns a func closing them.
// The snapshot file is always written; history, S3 and MongoDB are optional.
func (p *pipeline) sinks(ctx context.Context) (snapshot.MultiSink, func(), error) {
	sinks := snapshot.MultiSink{snapshot.NewFileWriter(p.cfg.SnapshotPath)}
	var closers []func() error
	closeAll := func() {
		for _, c := range closers {
			if err := c(); err != nil {
				p.logger.Warn().Err(err).Msg("closing snapshot sink failed")
			}
		}
	}

	if p.cfg.HistoryDBPath != "" {
		history, err := snapshot.OpenHistory(p.cfg.HistoryDBPath)
		if err != nil {
			return nil, nil, err
		}
		closers = append(closers, history.Close)
		sinks = append(sinks, history)
	}
	if p.cfg.S3Bucket != "" {
		s3Sink, err := snapshot.NewS3SinkFromEnv(ctx, p.cfg.S3Bucket, p.cfg.S3Key)
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		sinks = append(sinks, s3Sink)
	}
	if p.cfg.MongoURI != "" {
		collection, disconnect, err := snapshot.ConnectMongo(ctx, p.cfg.MongoURI, p.cfg.MongoDatabase, p.cfg.MongoCollection)
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		closers = append(closers, func() error { return disconnect(context.Background()) })
		sinks = append(sinks, snapshot.NewMongoSink(collection, p.account(ctx)))
	}
	return sinks, closeAll, nil
}

// save writes snap to every configured sink.
func (p *pipeline) save(ctx context.Context, snap snapshot.Snapshot) error {
	sinks, closeSinks, err := p.sinks(ctx)
	if err != nil {
		return err
	}
	defer closeSinks()
	if err := sinks.Save(ctx, snap); err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}
	return nil
}

// profile reads the authenticated profile. A failure is logged and yields an empty profile.
func (p *pipeline) profile(ctx context.Context) domain.Profile {
	profile, err := p.gateway.GetProfile(ctx)
	if err != nil {
		p.logger.Warn().Err(err).Msg("could not read the authenticated profile")
		return domain.Profile{}
	}
	p.login = profile.Login
	return profile
}

// account returns the login used to key stored snapshots.
// The profile is requested at most once per pipeline.
func (p *pipeline) account(ctx context.Context) string {
	if p.login == "" {
		p.profile(ctx)
	}
	return accountOrViewer(domain.Profile{Login: p.login})
}

// applyFlags overrides configuration values with flags the user set explicitly.
func applyFlags(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("sample-size") {
		cfg.SampleSize, _ = flags.GetInt("sample-size")
	}
	if flags.Changed("commit-strategy") {
		cfg.CommitStrategy, _ = flags.GetString("commit-strategy")
	}
	if flags.Changed("language-source") {
		cfg.LanguageSource, _ = flags.GetString("language-source")
	}
	if flags.Changed("org") {
		cfg.Orgs, _ = flags.GetStringSlice("org")
	}
	if flags.Changed("workers") {
		cfg.Workers, _ = flags.GetInt("workers")
	}
	if flags.Changed("bytes-per-line") {
		cfg.BytesPerLine, _ = flags.GetInt64("bytes-per-line")
	}
	if flags.Changed("top-languages") {
		cfg.TopLanguages, _ = flags.GetInt("top-languages")
	}
	if flags.Changed("output") {
		cfg.SnapshotPath, _ = flags.GetString("output")
	}
}

// addCollectFlags registers the flags shared by every command that runs the pipeline.
func addCollectFlags(cmd *cobra.Command) {
	cmd.Flags().Int("sample-size", 0, "Measure only the first N repositories and extrapolate (0 = all)")
	cmd.Flags().String("commit-strategy", string(domain.CommitsMultiplier), "Commit counting: exact, sampled or multiplier")
	cmd.Flags().String("language-source", string(domain.LanguagesFromListing), "Language sizes from the listing or per repository REST calls: listing or rest")
	cmd.Flags().StringSliceP("org", "o", nil, "Organizations listed in addition to the personal account")
	cmd.Flags().Int("workers", 5, "Parallel per-repository requests")
	cmd.Flags().Int64("bytes-per-line", 40, "Bytes per line of code used for the estimate")
	cmd.Flags().Int("top-languages", 5, "Number of ranked languages (0 = all)")
	cmd.Flags().String("output", "github_stats.json", "Snapshot file overwritten on each run")
}
