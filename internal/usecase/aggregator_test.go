package usecase

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/naka-gawa/github-profile-stats/internal/domain"
)

func repo(id string, langs map[string]int64) domain.RepositorySummary {
	return domain.RepositorySummary{
		ID:               domain.RepositoryID(id),
		Owner:            "octo",
		Languages:        langs,
		LanguagesFetched: true,
	}
}

func threeRepos() []domain.RepositorySummary {
	return []domain.RepositorySummary{
		repo("octo/a", map[string]int64{"Python": 4000}),
		repo("octo/b", map[string]int64{"Go": 2000, "Python": 1000}),
		repo("octo/c", map[string]int64{}),
	}
}

func TestAggregate_LinesAndTopLanguages(t *testing.T) {
	report := Aggregate(threeRepos(), nil, DefaultOptions())

	assert.Equal(t, 3, report.TotalRepos)
	assert.Equal(t, int64(7000), report.TotalBytes)
	assert.Equal(t, int64(175), report.TotalLines)
	assert.False(t, report.BytesEstimated)
	assert.Zero(t, report.LinesMargin)
	assert.Equal(t, []domain.LanguageSize{{Name: "Python", Size: 5000}, {Name: "Go", Size: 2000}}, report.TopLanguages)
}

func TestAggregate_EmptyInput(t *testing.T) {
	report := Aggregate(nil, nil, DefaultOptions())

	assert.Equal(t, 0, report.TotalRepos)
	assert.Equal(t, int64(0), report.TotalLines)
	assert.NotNil(t, report.TopLanguages)
	assert.Empty(t, report.TopLanguages)
	assert.NotNil(t, report.TopRepositories)
	assert.NotNil(t, report.PrimaryLanguages)

	data, err := json.Marshal(report)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"top_languages":[]`)
}

func TestAggregate_FailedLanguageFetch(t *testing.T) {
	repos := threeRepos()
	repos[1].Languages = nil
	repos[1].LanguagesFetched = false

	report := Aggregate(repos, nil, DefaultOptions())

	assert.Equal(t, 3, report.TotalRepos)
	assert.Equal(t, int64(4000), report.TotalBytes)
	assert.Equal(t, int64(100), report.TotalLines)
	assert.Equal(t, 1, report.LanguageFailures)
	assert.False(t, report.BytesEstimated)
	assert.Equal(t, []domain.LanguageSize{{Name: "Python", Size: 4000}}, report.TopLanguages)
}

func TestAggregate_OrderIndependentAndIdempotent(t *testing.T) {
	repos := threeRepos()
	repos[0].Stars = 3
	repos[1].Stars = 3
	repos[0].PrimaryLanguage = "Python"
	repos[1].PrimaryLanguage = "Go"
	repos = append(repos, repo("octo/d", map[string]int64{"Rust": 2000}))

	opts := DefaultOptions()
	opts.SampleSize = 2

	permutations := [][]domain.RepositorySummary{
		repos,
		{repos[3], repos[2], repos[1], repos[0]},
		{repos[2], repos[0], repos[3], repos[1]},
	}

	want, err := json.Marshal(Aggregate(repos, nil, opts))
	require.NoError(t, err)
	for i, p := range permutations {
		got, err := json.Marshal(Aggregate(p, nil, opts))
		require.NoError(t, err)
		assert.Equal(t, string(want), string(got), "permutation %d", i)
	}
}

func TestAggregate_Sampling(t *testing.T) {
	repos := []domain.RepositorySummary{
		repo("octo/a", map[string]int64{"Python": 4000}),
		repo("octo/b", map[string]int64{"Go": 2000}),
		repo("octo/c", map[string]int64{"Go": 9999}),
		repo("octo/d", map[string]int64{"Rust": 9999}),
	}

	t.Run("partial sample is extrapolated", func(t *testing.T) {
		opts := DefaultOptions()
		opts.SampleSize = 2
		report := Aggregate(repos, nil, opts)

		assert.Equal(t, 2, report.SampledRepos)
		assert.True(t, report.BytesEstimated)
		assert.Equal(t, int64(12000), report.TotalBytes)
		assert.Equal(t, int64(300), report.TotalLines)
		// sd(100, 50) * 4 / sqrt(2) * sqrt(2/3)
		assert.Equal(t, int64(82), report.LinesMargin)
		// Histogram holds only the measured sample.
		assert.Equal(t, map[string]int64{"Python": 4000, "Go": 2000}, report.LanguageBytes)
	})

	t.Run("sample covering every repository is exact", func(t *testing.T) {
		for _, size := range []int{0, 4, 10} {
			opts := DefaultOptions()
			opts.SampleSize = size
			report := Aggregate(repos, nil, opts)

			assert.False(t, report.BytesEstimated, "sample size %d", size)
			assert.Equal(t, int64(4000+2000+9999+9999), report.TotalBytes, "sample size %d", size)
			assert.Zero(t, report.LinesMargin, "sample size %d", size)
			assert.Equal(t, 4, report.SampledRepos)
		}
	})

	t.Run("failed repositories are left out of the average", func(t *testing.T) {
		failing := append([]domain.RepositorySummary(nil), repos...)
		failing[1].LanguagesFetched = false
		failing[1].Languages = nil

		opts := DefaultOptions()
		opts.SampleSize = 2
		report := Aggregate(failing, nil, opts)

		assert.Equal(t, int64(16000), report.TotalBytes)
		assert.Equal(t, 1, report.LanguageFailures)
		assert.Zero(t, report.LinesMargin)
	})
}

func TestAggregate_Deduplicates(t *testing.T) {
	unfetched := domain.RepositorySummary{ID: "octo/a", Stars: 1}
	fetched := repo("octo/a", map[string]int64{"Go": 400})
	fetched.Stars = 1

	for _, repos := range [][]domain.RepositorySummary{
		{unfetched, fetched, repo("octo/b", nil)},
		{fetched, repo("octo/b", nil), unfetched},
	} {
		report := Aggregate(repos, nil, DefaultOptions())
		assert.Equal(t, 2, report.TotalRepos)
		assert.Equal(t, int64(400), report.TotalBytes)
		assert.Equal(t, 0, report.LanguageFailures)
		assert.Equal(t, 1, report.TotalStars)
	}
}

func TestAggregate_CommitStrategies(t *testing.T) {
	withCommits := func(id string, commits int64, fetched bool) domain.RepositorySummary {
		r := repo(id, nil)
		r.Commits = commits
		r.CommitsFetched = fetched
		return r
	}
	repos := []domain.RepositorySummary{
		withCommits("octo/a", 10, true),
		withCommits("octo/b", 30, true),
		withCommits("octo/c", 0, false),
		withCommits("octo/d", 100, true),
	}

	testCases := []struct {
		name            string
		strategy        domain.CommitStrategy
		sampleSize      int
		contributions   *domain.Contributions
		expectedTotal   int64
		expectedYear    int64
		expectEstimated bool
		expectFailures  int
	}{
		{
			name:           "exact sums fetched counts",
			strategy:       domain.CommitsExact,
			expectedTotal:  140,
			expectFailures: 1,
		},
		{
			name:            "sampled scales the sample average",
			strategy:        domain.CommitsSampled,
			sampleSize:      2,
			expectedTotal:   80,
			expectEstimated: true,
		},
		{
			name:           "sampled without scaling is a plain sum",
			strategy:       domain.CommitsSampled,
			expectedTotal:  140,
			expectFailures: 1,
		},
		{
			name:            "multiplier scales this year's contributions",
			strategy:        domain.CommitsMultiplier,
			contributions:   &domain.Contributions{Public: 120, Private: 30},
			expectedTotal:   450,
			expectedYear:    150,
			expectEstimated: true,
		},
		{
			name:            "multiplier without contributions",
			strategy:        domain.CommitsMultiplier,
			expectedTotal:   0,
			expectEstimated: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			opts := DefaultOptions()
			opts.CommitStrategy = tc.strategy
			opts.SampleSize = tc.sampleSize

			report := Aggregate(repos, tc.contributions, opts)

			assert.Equal(t, tc.strategy, report.CommitStrategy)
			assert.Equal(t, tc.expectedTotal, report.TotalCommits)
			assert.Equal(t, tc.expectedYear, report.CommitsThisYear)
			assert.Equal(t, tc.expectEstimated, report.CommitsEstimated)
			assert.Equal(t, tc.expectFailures, report.CommitFailures)
		})
	}
}

func TestAggregate_Rankings(t *testing.T) {
	var repos []domain.RepositorySummary
	for i := 0; i < 12; i++ {
		r := repo(fmt.Sprintf("octo/r%02d", i), map[string]int64{fmt.Sprintf("Lang%02d", i): 100})
		r.PrimaryLanguage = fmt.Sprintf("Lang%02d", i)
		repos = append(repos, r)
	}
	repos[0].Languages = map[string]int64{"Go": 500}
	repos[0].PrimaryLanguage = "Go"
	repos[1].PrimaryLanguage = "Go"
	repos[2].Stars = 5
	repos[3].Stars = 9
	repos[4].Stars = 5
	repos[5].Private = true

	report := Aggregate(repos, nil, DefaultOptions())

	require.Len(t, report.TopLanguages, 5)
	assert.Equal(t, domain.LanguageSize{Name: "Go", Size: 500}, report.TopLanguages[0])
	assert.Equal(t, domain.LanguageSize{Name: "Lang01", Size: 100}, report.TopLanguages[1])

	require.Len(t, report.PrimaryLanguages, 10)
	assert.Equal(t, domain.LanguageCount{Name: "Go", Repos: 2}, report.PrimaryLanguages[0])

	assert.Equal(t, []domain.RepositoryStars{
		{ID: "octo/r03", Stars: 9, Language: "Lang03"},
		{ID: "octo/r02", Stars: 5, Language: "Lang02"},
		{ID: "octo/r04", Stars: 5, Language: "Lang04"},
	}, report.TopRepositories)
	assert.Equal(t, 19, report.TotalStars)
	assert.Equal(t, 11, report.PublicRepos)
	assert.Equal(t, 1, report.PrivateRepos)

	opts := DefaultOptions()
	opts.TopLanguages = 0
	assert.Len(t, Aggregate(repos, nil, opts).TopLanguages, 12)
}
