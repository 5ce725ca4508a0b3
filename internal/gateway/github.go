// Package gateway provides a gateway to the GitHub API,
// abstracting away the underlying REST and GraphQL clients.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/go-github/v62/github"
	"github.com/rs/zerolog"
	"github.com/shurcooL/githubv4"
	"golang.org/x/oauth2"

	"github.com/gofri/go-github-ratelimit/github_ratelimit"

	"github.com/naka-gawa/github-profile-stats/internal/domain"
)

// DefaultAPIAddress is the public GitHub REST endpoint.
const DefaultAPIAddress = "https://api.github.com/"

// RepositoryDataSource defines the read-only queries the stats pipeline issues against GitHub.
type RepositoryDataSource interface {
	ListRepositories(ctx context.Context, scope domain.OwnerScope) ([]domain.RepositorySummary, error)
	GetLanguageBreakdown(ctx context.Context, id domain.RepositoryID) (map[string]int64, error)
	GetCommitCount(ctx context.Context, id domain.RepositoryID) (int64, error)
	GetContributionsThisYear(ctx context.Context, account string) (domain.Contributions, error)
}

// ProfileSource returns details of the authenticated account.
type ProfileSource interface {
	GetProfile(ctx context.Context) (domain.Profile, error)
}

// Settings tunes the HTTP stack of the gateway.
type Settings struct {
	// APIAddress is the REST base url. GraphQL is served from <APIAddress>graphql.
	APIAddress string
	// RequestRate caps requests per second; <= 0 disables the limiter.
	RequestRate float64
}

// GitHubGateway is the concrete implementation of RepositoryDataSource.
type GitHubGateway struct {
	restClient    *github.Client
	graphqlClient *githubv4.Client
	logger        zerolog.Logger
}

var (
	_ RepositoryDataSource = (*GitHubGateway)(nil)
	_ ProfileSource        = (*GitHubGateway)(nil)
)

// repositoryNode is the per-repository selection shared by all listing queries.
type repositoryNode struct {
	NameWithOwner  string
	IsPrivate      bool
	URL            string `graphql:"url"`
	StargazerCount int
	PushedAt       *githubv4.DateTime
	Owner          struct {
		Login string
	}
	PrimaryLanguage struct {
		Name string
	}
	Languages struct {
		Edges []struct {
			Size int
			Node struct {
				Name string
			}
		}
	} `graphql:"languages(first: 100, orderBy: {field: SIZE, direction: DESC})"`
}

type repositoryConnection struct {
	PageInfo struct {
		HasNextPage bool
		EndCursor   githubv4.String
	}
	Nodes []repositoryNode
}

type viewerRepositoriesQuery struct {
	Viewer struct {
		Repositories repositoryConnection `graphql:"repositories(first: 100, after: $cursor, ownerAffiliations: [OWNER])"`
	}
}

type userRepositoriesQuery struct {
	User struct {
		Repositories repositoryConnection `graphql:"repositories(first: 100, after: $cursor, ownerAffiliations: [OWNER])"`
	} `graphql:"user(login: $login)"`
}

type organizationRepositoriesQuery struct {
	Organization struct {
		Repositories repositoryConnection `graphql:"repositories(first: 100, after: $cursor)"`
	} `graphql:"organization(login: $login)"`
}

type contributionsCollection struct {
	TotalCommitContributions     int
	RestrictedContributionsCount int
}

type viewerContributionsQuery struct {
	Viewer struct {
		ContributionsCollection contributionsCollection
	}
}

type userContributionsQuery struct {
	User struct {
		ContributionsCollection contributionsCollection
	} `graphql:"user(login: $login)"`
}

// NewGitHubGateway is a constructor that creates a new instance of GitHubGateway.
func NewGitHubGateway(token string, settings Settings, logger zerolog.Logger) (*GitHubGateway, error) {
	rateLimitWaiter, err := github_ratelimit.NewRateLimitWaiter(
		NewLimitedTransport(nil, settings.RequestRate),
		github_ratelimit.WithSingleSleepLimit(1*time.Hour, nil),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create rate limit waiter: %w", err)
	}
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	httpClient := &http.Client{
		Transport: &oauth2.Transport{
			Base:   rateLimitWaiter,
			Source: ts,
		},
	}

	address := settings.APIAddress
	if address == "" {
		address = DefaultAPIAddress
	}
	if !strings.HasSuffix(address, "/") {
		address += "/"
	}
	baseURL, err := url.Parse(address)
	if err != nil {
		return nil, fmt.Errorf("failed to parse api address: %w", err)
	}

	restClient := github.NewClient(httpClient)
	restClient.BaseURL = baseURL

	return &GitHubGateway{
		restClient:    restClient,
		graphqlClient: githubv4.NewEnterpriseClient(address+"graphql", httpClient),
		logger:        logger,
	}, nil
}

// ListRepositories pages through the repositories owned by the scope.
// Language breakdowns are selected inline so the listing alone is enough for the fast path.
func (g *GitHubGateway) ListRepositories(ctx context.Context, scope domain.OwnerScope) ([]domain.RepositorySummary, error) {
	g.logger.Info().Str("scope", scope.String()).Msg("Fetching repository list using GraphQL API...")

	variables := map[string]interface{}{"cursor": (*githubv4.String)(nil)}
	if scope.Login != "" {
		variables["login"] = githubv4.String(scope.Login)
	}

	var repos []domain.RepositorySummary
	for page := 1; ; page++ {
		conn, err := g.queryRepositories(ctx, scope, variables)
		if err != nil {
			return nil, fmt.Errorf("failed to list repositories for %s: %w", scope, err)
		}
		for _, node := range conn.Nodes {
			repos = append(repos, node.toSummary())
		}
		if !conn.PageInfo.HasNextPage {
			break
		}
		variables["cursor"] = githubv4.NewString(conn.PageInfo.EndCursor)
		g.logger.Debug().Str("scope", scope.String()).Int("page", page+1).Msg("  Fetching next page of repositories...")
	}

	g.logger.Info().Str("scope", scope.String()).Int("repos", len(repos)).Msg("Completed fetching repository list.")
	return repos, nil
}

func (g *GitHubGateway) queryRepositories(ctx context.Context, scope domain.OwnerScope, variables map[string]interface{}) (*repositoryConnection, error) {
	switch {
	case scope.Kind == domain.ScopeOrganization:
		if scope.Login == "" {
			return nil, errors.New("organization scope needs a login")
		}
		var q organizationRepositoriesQuery
		if err := g.graphqlClient.Query(ctx, &q, variables); err != nil {
			return nil, err
		}
		return &q.Organization.Repositories, nil
	case scope.Login != "":
		var q userRepositoriesQuery
		if err := g.graphqlClient.Query(ctx, &q, variables); err != nil {
			return nil, err
		}
		return &q.User.Repositories, nil
	default:
		var q viewerRepositoriesQuery
		if err := g.graphqlClient.Query(ctx, &q, variables); err != nil {
			return nil, err
		}
		return &q.Viewer.Repositories, nil
	}
}

func (n repositoryNode) toSummary() domain.RepositorySummary {
	languages := make(map[string]int64, len(n.Languages.Edges))
	for _, edge := range n.Languages.Edges {
		languages[edge.Node.Name] += int64(edge.Size)
	}
	summary := domain.RepositorySummary{
		ID:               domain.RepositoryID(n.NameWithOwner),
		Owner:            n.Owner.Login,
		Private:          n.IsPrivate,
		PrimaryLanguage:  n.PrimaryLanguage.Name,
		Stars:            n.StargazerCount,
		URL:              n.URL,
		Languages:        languages,
		LanguagesFetched: true,
	}
	if n.PushedAt != nil {
		summary.PushedAt = n.PushedAt.UTC()
	}
	return summary
}

// GetLanguageBreakdown returns bytes of code per language for one repository.
func (g *GitHubGateway) GetLanguageBreakdown(ctx context.Context, id domain.RepositoryID) (map[string]int64, error) {
	owner, name, err := id.Split()
	if err != nil {
		return nil, err
	}
	langs, _, err := g.restClient.Repositories.ListLanguages(ctx, owner, name)
	if err != nil {
		return nil, fmt.Errorf("failed to list languages with REST API: %w", err)
	}
	breakdown := make(map[string]int64, len(langs))
	for lang, size := range langs {
		breakdown[lang] = int64(size)
	}
	return breakdown, nil
}

// GetCommitCount counts commits on the default branch.
// One commit is requested per page, so the last page number is the count.
func (g *GitHubGateway) GetCommitCount(ctx context.Context, id domain.RepositoryID) (int64, error) {
	owner, name, err := id.Split()
	if err != nil {
		return 0, err
	}
	opts := &github.CommitsListOptions{ListOptions: github.ListOptions{PerPage: 1}}
	commits, resp, err := g.restClient.Repositories.ListCommits(ctx, owner, name, opts)
	if err != nil {
		var ghErr *github.ErrorResponse
		// GitHub answers 409 Conflict for an empty repository.
		if errors.As(err, &ghErr) && ghErr.Response != nil && ghErr.Response.StatusCode == http.StatusConflict {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to list commits with REST API: %w", err)
	}
	if resp != nil && resp.LastPage > 0 {
		return int64(resp.LastPage), nil
	}
	return int64(len(commits)), nil
}

// GetContributionsThisYear returns commit contributions of the current year.
// An empty account means the authenticated viewer, which also includes private contributions.
func (g *GitHubGateway) GetContributionsThisYear(ctx context.Context, account string) (domain.Contributions, error) {
	var cc contributionsCollection
	if account == "" {
		var q viewerContributionsQuery
		if err := g.graphqlClient.Query(ctx, &q, nil); err != nil {
			return domain.Contributions{}, fmt.Errorf("failed to execute GraphQL query for contributions: %w", err)
		}
		cc = q.Viewer.ContributionsCollection
	} else {
		var q userContributionsQuery
		variables := map[string]interface{}{"login": githubv4.String(account)}
		if err := g.graphqlClient.Query(ctx, &q, variables); err != nil {
			return domain.Contributions{}, fmt.Errorf("failed to execute GraphQL query for contributions: %w", err)
		}
		cc = q.User.ContributionsCollection
	}
	return domain.Contributions{
		Public:  int64(cc.TotalCommitContributions),
		Private: int64(cc.RestrictedContributionsCount),
	}, nil
}

// GetProfile returns the authenticated user's profile counters.
func (g *GitHubGateway) GetProfile(ctx context.Context) (domain.Profile, error) {
	user, _, err := g.restClient.Users.Get(ctx, "")
	if err != nil {
		return domain.Profile{}, fmt.Errorf("failed to get user with REST API: %w", err)
	}
	return domain.Profile{
		Login:       user.GetLogin(),
		Name:        user.GetName(),
		Followers:   user.GetFollowers(),
		Following:   user.GetFollowing(),
		PublicRepos: user.GetPublicRepos(),
	}, nil
}
