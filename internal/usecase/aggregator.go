// Package usecase contains the business logic of the application.
package usecase

import (
	"math"
	"sort"

	"github.com/montanaflynn/stats"

	"github.com/naka-gawa/github-profile-stats/internal/domain"
)

const primaryLanguagesLimit = 10

// Options configures Aggregate.
type Options struct {
	// BytesPerLine converts byte totals to an approximate line count.
	BytesPerLine int64
	// SampleSize caps how many repositories are measured before extrapolating; 0 measures all.
	SampleSize int
	// TopLanguages is the length of the ranked language list; <= 0 keeps all.
	TopLanguages int
	// TopRepositories is the length of the featured repositories list; <= 0 keeps all.
	TopRepositories  int
	CommitStrategy   domain.CommitStrategy
	CommitMultiplier int64
}

// DefaultOptions returns the options used when nothing is configured.
func DefaultOptions() Options {
	return Options{
		BytesPerLine:     40,
		SampleSize:       0,
		TopLanguages:     5,
		TopRepositories:  5,
		CommitStrategy:   domain.CommitsMultiplier,
		CommitMultiplier: 3,
	}
}

func (o Options) normalized() Options {
	def := DefaultOptions()
	if o.BytesPerLine <= 0 {
		o.BytesPerLine = def.BytesPerLine
	}
	if o.SampleSize < 0 {
		o.SampleSize = 0
	}
	if o.CommitStrategy == "" {
		o.CommitStrategy = def.CommitStrategy
	}
	if o.CommitMultiplier <= 0 {
		o.CommitMultiplier = def.CommitMultiplier
	}
	return o
}

// Aggregate combines repository summaries into a report.
// It performs no I/O: everything it needs is fetched by the caller beforehand.
// contributions may be nil when they were not fetched or the fetch failed.
func Aggregate(repos []domain.RepositorySummary, contributions *domain.Contributions, opts Options) domain.AggregateReport {
	opts = opts.normalized()
	unique := dedupe(repos)
	total := len(unique)

	report := domain.AggregateReport{
		TotalRepos:       total,
		CommitStrategy:   opts.CommitStrategy,
		LanguageBytes:    map[string]int64{},
		TopLanguages:     []domain.LanguageSize{},
		PrimaryLanguages: []domain.LanguageCount{},
		TopRepositories:  []domain.RepositoryStars{},
	}

	primary := map[string]int{}
	for _, r := range unique {
		if r.Private {
			report.PrivateRepos++
		} else {
			report.PublicRepos++
		}
		report.TotalStars += r.Stars
		if r.PrimaryLanguage != "" {
			primary[r.PrimaryLanguage]++
		}
	}

	sample := sampleOf(unique, opts.SampleSize)
	report.SampledRepos = len(sample)
	scaled := len(sample) < total

	var sampledBytes int64
	var lines []float64
	for _, r := range sample {
		if !r.LanguagesFetched {
			report.LanguageFailures++
			continue
		}
		repoBytes := r.TotalBytes()
		sampledBytes += repoBytes
		for lang, size := range r.Languages {
			report.LanguageBytes[lang] += size
		}
		lines = append(lines, float64(repoBytes)/float64(opts.BytesPerLine))
	}

	report.TotalBytes = sampledBytes
	if scaled && len(lines) > 0 {
		report.TotalBytes = sampledBytes * int64(total) / int64(len(lines))
		report.BytesEstimated = true
		report.LinesMargin = linesMargin(lines, total)
	}
	report.TotalLines = report.TotalBytes / opts.BytesPerLine

	countCommits(&report, unique, sample, contributions, opts)

	report.TopLanguages = rankLanguages(report.LanguageBytes, opts.TopLanguages)
	report.PrimaryLanguages = rankPrimaryLanguages(primary)
	report.TopRepositories = rankRepositories(unique, opts.TopRepositories)

	return report
}

func countCommits(report *domain.AggregateReport, all, sample []domain.RepositorySummary, contributions *domain.Contributions, opts Options) {
	switch opts.CommitStrategy {
	case domain.CommitsExact:
		for _, r := range all {
			if !r.CommitsFetched {
				report.CommitFailures++
				continue
			}
			report.TotalCommits += r.Commits
		}
	case domain.CommitsSampled:
		var sum int64
		var fetched int
		for _, r := range sample {
			if !r.CommitsFetched {
				report.CommitFailures++
				continue
			}
			sum += r.Commits
			fetched++
		}
		report.TotalCommits = sum
		if len(sample) < len(all) && fetched > 0 {
			report.TotalCommits = sum * int64(len(all)) / int64(fetched)
			report.CommitsEstimated = true
		}
	default:
		if contributions != nil {
			report.CommitsThisYear = contributions.Total()
		}
		report.TotalCommits = report.CommitsThisYear * opts.CommitMultiplier
		report.CommitsEstimated = true
	}
}

// linesMargin is the standard error of the extrapolated line total:
// sample standard deviation scaled to the population, with finite population correction.
func linesMargin(sampleLines []float64, population int) int64 {
	if len(sampleLines) < 2 || population < 2 {
		return 0
	}
	n := float64(len(sampleLines))
	pop := float64(population)
	sd, err := stats.StandardDeviationSample(stats.Float64Data(sampleLines))
	if err != nil {
		return 0
	}
	fpc := math.Sqrt((pop - n) / (pop - 1))
	return int64(math.Round(pop * sd / math.Sqrt(n) * fpc))
}

// dedupe returns a copy of repos with unique identifiers, ordered by identifier.
func dedupe(repos []domain.RepositorySummary) []domain.RepositorySummary {
	byID := make(map[domain.RepositoryID]domain.RepositorySummary, len(repos))
	for _, r := range repos {
		if existing, ok := byID[r.ID]; ok && !richer(r, existing) {
			continue
		}
		byID[r.ID] = r
	}

	unique := make([]domain.RepositorySummary, 0, len(byID))
	for _, r := range byID {
		unique = append(unique, r)
	}
	sort.Slice(unique, func(i, j int) bool {
		return unique[i].ID < unique[j].ID
	})
	return unique
}

// richer reports whether a carries more data than b.
func richer(a, b domain.RepositorySummary) bool {
	if a.LanguagesFetched != b.LanguagesFetched {
		return a.LanguagesFetched
	}
	if ab, bb := a.TotalBytes(), b.TotalBytes(); ab != bb {
		return ab > bb
	}
	if a.Stars != b.Stars {
		return a.Stars > b.Stars
	}
	if a.CommitsFetched != b.CommitsFetched {
		return a.CommitsFetched
	}
	if a.Commits != b.Commits {
		return a.Commits > b.Commits
	}
	return a.PushedAt.After(b.PushedAt)
}

// sampleOf returns the first n repositories; n == 0 or n >= len(repos) means all of them.
func sampleOf(repos []domain.RepositorySummary, n int) []domain.RepositorySummary {
	if n <= 0 || n >= len(repos) {
		return repos
	}
	return repos[:n]
}

func rankLanguages(bytes map[string]int64, limit int) []domain.LanguageSize {
	ranked := make([]domain.LanguageSize, 0, len(bytes))
	for name, size := range bytes {
		ranked = append(ranked, domain.LanguageSize{Name: name, Size: size})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Size != ranked[j].Size {
			return ranked[i].Size > ranked[j].Size
		}
		return ranked[i].Name < ranked[j].Name
	})
	if limit > 0 && len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked
}

func rankPrimaryLanguages(counts map[string]int) []domain.LanguageCount {
	ranked := make([]domain.LanguageCount, 0, len(counts))
	for name, repos := range counts {
		ranked = append(ranked, domain.LanguageCount{Name: name, Repos: repos})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Repos != ranked[j].Repos {
			return ranked[i].Repos > ranked[j].Repos
		}
		return ranked[i].Name < ranked[j].Name
	})
	if len(ranked) > primaryLanguagesLimit {
		ranked = ranked[:primaryLanguagesLimit]
	}
	return ranked
}

func rankRepositories(repos []domain.RepositorySummary, limit int) []domain.RepositoryStars {
	ranked := []domain.RepositoryStars{}
	for _, r := range repos {
		if r.Stars <= 0 {
			continue
		}
		ranked = append(ranked, domain.RepositoryStars{
			ID:       r.ID,
			Stars:    r.Stars,
			Language: r.PrimaryLanguage,
			URL:      r.URL,
		})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Stars != ranked[j].Stars {
			return ranked[i].Stars > ranked[j].Stars
		}
		return ranked[i].ID < ranked[j].ID
	})
	if limit > 0 && len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked
}
