// Package domain contains the core data structures and domain logic for the application.
package domain

import (
	"fmt"
	"strings"
	"time"
)

// RepositoryID identifies a repository as "owner/name".
type RepositoryID string

// Split returns the owner and name parts of the identifier.
func (id RepositoryID) Split() (owner, name string, err error) {
	owner, name, ok := strings.Cut(string(id), "/")
	if !ok || owner == "" || name == "" || strings.Contains(name, "/") {
		return "", "", fmt.Errorf("invalid repository identifier %q, expected owner/name", string(id))
	}
	return owner, name, nil
}

// ScopeKind tells whether an OwnerScope refers to the authenticated user or an organization.
type ScopeKind string

const (
	ScopePersonal     ScopeKind = "personal"
	ScopeOrganization ScopeKind = "organization"
)

// OwnerScope selects an account whose repositories are listed.
type OwnerScope struct {
	Kind ScopeKind
	// Login is empty for the personal scope (the authenticated viewer).
	Login string
}

func (s OwnerScope) String() string {
	if s.Kind == ScopeOrganization {
		return "org:" + s.Login
	}
	if s.Login == "" {
		return "viewer"
	}
	return "user:" + s.Login
}

// RepositorySummary is a read-only snapshot of one repository's metadata
// relevant to aggregation.
type RepositorySummary struct {
	ID              RepositoryID     `json:"id"`
	Owner           string           `json:"owner"`
	Private         bool             `json:"private"`
	PrimaryLanguage string           `json:"primary_language,omitempty"`
	Stars           int              `json:"stars"`
	URL             string           `json:"url,omitempty"`
	PushedAt        time.Time        `json:"pushed_at"`
	Languages       map[string]int64 `json:"languages,omitempty"`
	// LanguagesFetched is false when the byte breakdown is unknown or its fetch failed.
	LanguagesFetched bool  `json:"languages_fetched"`
	Commits          int64 `json:"commits,omitempty"`
	CommitsFetched   bool  `json:"commits_fetched"`
}

// TotalBytes sums the language breakdown.
func (r RepositorySummary) TotalBytes() int64 {
	var total int64
	for _, size := range r.Languages {
		total += size
	}
	return total
}

// Contributions holds the account-wide commit contributions for the current year.
type Contributions struct {
	Public  int64 `json:"public"`
	Private int64 `json:"private"`
}

// Total returns public plus private contributions.
func (c Contributions) Total() int64 {
	return c.Public + c.Private
}

// Profile holds the account details shown in the README section.
type Profile struct {
	Login       string `json:"login"`
	Name        string `json:"name"`
	Followers   int    `json:"followers"`
	Following   int    `json:"following"`
	PublicRepos int    `json:"public_repos"`
}

// CommitStrategy selects how the total commit count is obtained.
type CommitStrategy string

const (
	// CommitsExact sums one count query per repository.
	CommitsExact CommitStrategy = "exact"
	// CommitsSampled averages the counts of a sample and scales by the repository count.
	CommitsSampled CommitStrategy = "sampled"
	// CommitsMultiplier multiplies this year's contributions by a constant.
	CommitsMultiplier CommitStrategy = "multiplier"
)

// ParseCommitStrategy validates a strategy name.
func ParseCommitStrategy(s string) (CommitStrategy, error) {
	switch CommitStrategy(strings.ToLower(strings.TrimSpace(s))) {
	case CommitsExact:
		return CommitsExact, nil
	case CommitsSampled:
		return CommitsSampled, nil
	case CommitsMultiplier, "":
		return CommitsMultiplier, nil
	}
	return "", fmt.Errorf("unknown commit strategy %q (want exact, sampled or multiplier)", s)
}

// LanguageSource selects where language byte breakdowns come from.
type LanguageSource string

const (
	// LanguagesFromListing uses the breakdown returned inline by the repository listing.
	LanguagesFromListing LanguageSource = "listing"
	// LanguagesFromREST issues one languages request per sampled repository.
	LanguagesFromREST LanguageSource = "rest"
)

// ParseLanguageSource validates a language source name.
func ParseLanguageSource(s string) (LanguageSource, error) {
	switch LanguageSource(strings.ToLower(strings.TrimSpace(s))) {
	case LanguagesFromListing, "":
		return LanguagesFromListing, nil
	case LanguagesFromREST:
		return LanguagesFromREST, nil
	}
	return "", fmt.Errorf("unknown language source %q (want listing or rest)", s)
}

// LanguageSize is one entry of the ranked language list.
type LanguageSize struct {
	Name string `json:"name"`
	Size int64  `json:"size"`
}

// LanguageCount counts repositories whose primary language is Name.
type LanguageCount struct {
	Name  string `json:"name"`
	Repos int    `json:"repos"`
}

// RepositoryStars is one entry of the featured repositories list.
type RepositoryStars struct {
	ID       RepositoryID `json:"id"`
	Stars    int          `json:"stars"`
	Language string       `json:"language,omitempty"`
	URL      string       `json:"url,omitempty"`
}

// AggregateReport holds the statistics combined across a set of repositories.
// It is the core domain entity of this application.
type AggregateReport struct {
	TotalRepos   int `json:"total_repos"`
	PublicRepos  int `json:"public_repos"`
	PrivateRepos int `json:"private_repos"`

	TotalCommits     int64          `json:"total_commits"`
	CommitsEstimated bool           `json:"commits_estimated"`
	CommitStrategy   CommitStrategy `json:"commit_strategy"`
	CommitsThisYear  int64          `json:"commits_this_year,omitempty"`

	TotalBytes     int64 `json:"total_bytes"`
	BytesEstimated bool  `json:"bytes_estimated"`
	TotalLines     int64 `json:"total_lines"`
	// LinesMargin is the standard error of an extrapolated line count.
	LinesMargin int64 `json:"lines_margin,omitempty"`

	LanguageBytes    map[string]int64  `json:"language_bytes"`
	TopLanguages     []LanguageSize    `json:"top_languages"`
	PrimaryLanguages []LanguageCount   `json:"primary_languages"`
	TopRepositories  []RepositoryStars `json:"top_repositories"`
	TotalStars       int               `json:"total_stars"`

	SampledRepos     int `json:"sampled_repos"`
	LanguageFailures int `json:"language_failures"`
	CommitFailures   int `json:"commit_failures"`
}
