// Package snapshot persists aggregate reports: a JSON file overwritten on each run,
// plus optional history, object storage and document store sinks.
package snapshot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/naka-gawa/github-profile-stats/internal/domain"
	"github.com/naka-gawa/github-profile-stats/internal/humanfmt"
)

// Snapshot is the flat, persisted form of an AggregateReport.
// Exactly one of TotalCommits and EstimatedTotalCommits is set.
type Snapshot struct {
	TotalRepos            int                   `json:"total_repos"`
	TotalCommits          *int64                `json:"total_commits,omitempty"`
	EstimatedTotalCommits *int64                `json:"estimated_total_commits,omitempty"`
	CommitsThisYear       *int64                `json:"commits_this_year,omitempty"`
	TotalLines            int64                 `json:"total_lines"`
	FormattedLines        string                `json:"formatted_lines"`
	LinesMargin           int64                 `json:"lines_margin,omitempty"`
	TopLanguages          []domain.LanguageSize `json:"top_languages"`
	TotalStars            int                   `json:"total_stars"`
	PublicRepos           int                   `json:"public_repos"`
	PrivateRepos          int                   `json:"private_repos"`
	CommitStrategy        string                `json:"commit_strategy"`
	GeneratedAt           time.Time             `json:"generated_at"`
}

// NewSnapshot flattens a report. generatedAt is stored as UTC.
func NewSnapshot(report domain.AggregateReport, generatedAt time.Time) Snapshot {
	s := Snapshot{
		TotalRepos:     report.TotalRepos,
		TotalLines:     report.TotalLines,
		FormattedLines: humanfmt.Lines(report.TotalLines),
		TopLanguages:   report.TopLanguages,
		TotalStars:     report.TotalStars,
		PublicRepos:    report.PublicRepos,
		PrivateRepos:   report.PrivateRepos,
		CommitStrategy: string(report.CommitStrategy),
		GeneratedAt:    generatedAt.UTC(),
	}
	if s.TopLanguages == nil {
		s.TopLanguages = []domain.LanguageSize{}
	}

	commits := report.TotalCommits
	if report.CommitsEstimated {
		s.EstimatedTotalCommits = &commits
	} else {
		s.TotalCommits = &commits
	}
	if report.CommitStrategy == domain.CommitsMultiplier {
		year := report.CommitsThisYear
		s.CommitsThisYear = &year
	}
	if report.BytesEstimated {
		s.LinesMargin = report.LinesMargin
	}
	return s
}

// Commits returns the commit figure and whether it is an estimate.
func (s Snapshot) Commits() (int64, bool) {
	if s.EstimatedTotalCommits != nil {
		return *s.EstimatedTotalCommits, true
	}
	if s.TotalCommits != nil {
		return *s.TotalCommits, false
	}
	return 0, false
}

// Sink stores a snapshot somewhere.
type Sink interface {
	Save(ctx context.Context, s Snapshot) error
}

// MultiSink saves to every sink, even if some of them fail.
type MultiSink []Sink

// Save implements Sink.
func (m MultiSink) Save(ctx context.Context, s Snapshot) error {
	var errs []error
	for _, sink := range m {
		if err := sink.Save(ctx, s); err != nil {
			errs = append(errs, fmt.Errorf("%T: %w", sink, err))
		}
	}
	return errors.Join(errs...)
}
