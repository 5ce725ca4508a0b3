package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/naka-gawa/github-profile-stats/internal/domain"
	"github.com/naka-gawa/github-profile-stats/internal/gateway"
	"github.com/naka-gawa/github-profile-stats/internal/logging"
)

const (
	defaultWorkers      = 5
	defaultFetchTimeout = 30 * time.Second
)

// ErrNoScopes is returned when a collection is requested without any owner scope.
var ErrNoScopes = errors.New("no owner scopes to collect")

// CollectRequest describes what the Collector fetches.
type CollectRequest struct {
	Scopes []domain.OwnerScope
	// Account whose contributions are read; empty means the authenticated viewer.
	Account        string
	SampleSize     int
	LanguageSource domain.LanguageSource
	CommitStrategy domain.CommitStrategy
}

// Collection is the raw data gathered for Aggregate.
type Collection struct {
	// Repositories are unique by ID and ordered by ID.
	Repositories []domain.RepositorySummary
	// Contributions is nil unless the multiplier strategy fetched them successfully.
	Contributions *domain.Contributions
}

// Collector is the use case for gathering repository data from GitHub.
// It orchestrates the listing and the bounded per-repository fan-out.
type Collector struct {
	source  gateway.RepositoryDataSource
	logger  zerolog.Logger
	workers int
	timeout time.Duration
}

// CollectorOption configures a Collector.
type CollectorOption func(*Collector)

// WithWorkers sets the number of concurrent per-repository fetches.
func WithWorkers(n int) CollectorOption {
	return func(c *Collector) {
		if n > 0 {
			c.workers = n
		}
	}
}

// WithFetchTimeout sets the timeout of a single per-repository call.
func WithFetchTimeout(d time.Duration) CollectorOption {
	return func(c *Collector) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// NewCollector creates a new Collector instance.
func NewCollector(source gateway.RepositoryDataSource, logger zerolog.Logger, opts ...CollectorOption) *Collector {
	c := &Collector{
		source:  source,
		logger:  logger,
		workers: defaultWorkers,
		timeout: defaultFetchTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Collect lists every scope and fetches the per-repository data the request needs.
// A listing failure aborts the collection; a failed per-repository call only
// leaves that repository's figure unfetched.
func (c *Collector) Collect(ctx context.Context, req CollectRequest) (*Collection, error) {
	if len(req.Scopes) == 0 {
		return nil, ErrNoScopes
	}
	ctx = logging.WithContext(ctx, c.logger)
	c.logger.Info().Int("scopes", len(req.Scopes)).Msg("Usecase: Starting data collection...")

	var listed []domain.RepositorySummary
	for _, scope := range req.Scopes {
		repos, err := c.source.ListRepositories(ctx, scope)
		if err != nil {
			return nil, err
		}
		listed = append(listed, repos...)
	}
	repos := dedupe(listed)
	if dup := len(listed) - len(repos); dup > 0 {
		c.logger.Debug().Int("duplicates", dup).Msg("Removed repositories listed by more than one scope.")
	}

	sampled := len(sampleOf(repos, req.SampleSize))
	collection := &Collection{Repositories: repos}

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(c.workers)

	if req.LanguageSource == domain.LanguagesFromREST {
		for i := 0; i < sampled; i++ {
			repo := &repos[i]
			repo.Languages = nil
			repo.LanguagesFetched = false
			eg.Go(func() error {
				return c.fetch(egCtx, ctx, repo.ID, "languages", func(callCtx context.Context) error {
					langs, err := c.source.GetLanguageBreakdown(callCtx, repo.ID)
					if err != nil {
						return err
					}
					repo.Languages = langs
					repo.LanguagesFetched = true
					return nil
				})
			})
		}
	}

	commitTargets := 0
	switch req.CommitStrategy {
	case domain.CommitsExact:
		commitTargets = len(repos)
	case domain.CommitsSampled:
		commitTargets = sampled
	default:
		eg.Go(func() error {
			return c.fetch(egCtx, ctx, "", "contributions", func(callCtx context.Context) error {
				contributions, err := c.source.GetContributionsThisYear(callCtx, req.Account)
				if err != nil {
					return err
				}
				collection.Contributions = &contributions
				return nil
			})
		})
	}
	for i := 0; i < commitTargets; i++ {
		repo := &repos[i]
		eg.Go(func() error {
			return c.fetch(egCtx, ctx, repo.ID, "commits", func(callCtx context.Context) error {
				count, err := c.source.GetCommitCount(callCtx, repo.ID)
				if err != nil {
					return err
				}
				repo.Commits = count
				repo.CommitsFetched = true
				return nil
			})
		})
	}

	if err := eg.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("collection aborted: %w", err)
	}

	c.logger.Info().
		Int("repos", len(repos)).
		Int("sampled", sampled).
		Msg("Usecase: All data fetched successfully.")
	return collection, nil
}

// fetch runs one call under the per-call timeout.
// Only cancellation of the parent context is returned; any other failure is logged and swallowed.
func (c *Collector) fetch(egCtx, parent context.Context, id domain.RepositoryID, what string, call func(context.Context) error) error {
	callCtx, cancel := context.WithTimeout(egCtx, c.timeout)
	defer cancel()

	if id != "" {
		callCtx = logging.WithStr(callCtx, "repo", string(id))
	}
	logger := logging.FromContext(callCtx)

	err := call(callCtx)
	if err == nil {
		return nil
	}
	if parentErr := parent.Err(); parentErr != nil {
		return fmt.Errorf("collection aborted: %w", parentErr)
	}
	logger.Warn().Err(err).Str("call", what).Msg("fetch failed, counting it as zero")
	return nil
}
