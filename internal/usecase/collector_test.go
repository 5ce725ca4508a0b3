package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/naka-gawa/github-profile-stats/internal/domain"
)

// mockSource is a mock implementation of the gateway.RepositoryDataSource interface.
// It allows us to simulate the behavior of the GitHub gateway without making real API calls.
type mockSource struct {
	mock.Mock
}

func (m *mockSource) ListRepositories(ctx context.Context, scope domain.OwnerScope) ([]domain.RepositorySummary, error) {
	args := m.Called(ctx, scope)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.RepositorySummary), args.Error(1)
}

func (m *mockSource) GetLanguageBreakdown(ctx context.Context, id domain.RepositoryID) (map[string]int64, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]int64), args.Error(1)
}

func (m *mockSource) GetCommitCount(ctx context.Context, id domain.RepositoryID) (int64, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockSource) GetContributionsThisYear(ctx context.Context, account string) (domain.Contributions, error) {
	args := m.Called(ctx, account)
	return args.Get(0).(domain.Contributions), args.Error(1)
}

var (
	personal = domain.OwnerScope{Kind: domain.ScopePersonal}
	acme     = domain.OwnerScope{Kind: domain.ScopeOrganization, Login: "acme"}
)

func TestCollector_Collect_NoScopes(t *testing.T) {
	c := NewCollector(&mockSource{}, zerolog.Nop())
	_, err := c.Collect(context.Background(), CollectRequest{})
	assert.ErrorIs(t, err, ErrNoScopes)
}

func TestCollector_Collect_ListingFailureIsFatal(t *testing.T) {
	source := &mockSource{}
	source.On("ListRepositories", mock.Anything, personal).Return(nil, errors.New("github api error"))

	c := NewCollector(source, zerolog.Nop())
	collection, err := c.Collect(context.Background(), CollectRequest{Scopes: []domain.OwnerScope{personal}})
	assert.Error(t, err)
	assert.Nil(t, collection)
}

func TestCollector_Collect_MultiplierDeduplicatesScopes(t *testing.T) {
	source := &mockSource{}
	source.On("ListRepositories", mock.Anything, personal).Return([]domain.RepositorySummary{
		{ID: "octo/b", LanguagesFetched: true},
		{ID: "acme/shared", LanguagesFetched: true},
	}, nil)
	source.On("ListRepositories", mock.Anything, acme).Return([]domain.RepositorySummary{
		{ID: "acme/shared", LanguagesFetched: true},
		{ID: "acme/a", LanguagesFetched: true},
	}, nil)
	source.On("GetContributionsThisYear", mock.Anything, "").Return(domain.Contributions{Public: 10, Private: 2}, nil)

	c := NewCollector(source, zerolog.Nop())
	collection, err := c.Collect(context.Background(), CollectRequest{
		Scopes:         []domain.OwnerScope{personal, acme},
		CommitStrategy: domain.CommitsMultiplier,
		LanguageSource: domain.LanguagesFromListing,
	})
	require.NoError(t, err)

	ids := make([]domain.RepositoryID, 0, len(collection.Repositories))
	for _, r := range collection.Repositories {
		ids = append(ids, r.ID)
	}
	assert.Equal(t, []domain.RepositoryID{"acme/a", "acme/shared", "octo/b"}, ids)
	require.NotNil(t, collection.Contributions)
	assert.Equal(t, int64(12), collection.Contributions.Total())

	source.AssertExpectations(t)
	source.AssertNotCalled(t, "GetCommitCount", mock.Anything, mock.Anything)
	source.AssertNotCalled(t, "GetLanguageBreakdown", mock.Anything, mock.Anything)
}

func TestCollector_Collect_FetchesSampleOverREST(t *testing.T) {
	source := &mockSource{}
	source.On("ListRepositories", mock.Anything, personal).Return([]domain.RepositorySummary{
		{ID: "octo/c", Languages: map[string]int64{"C": 1}, LanguagesFetched: true},
		{ID: "octo/a", Languages: map[string]int64{"Go": 1}, LanguagesFetched: true},
		{ID: "octo/b", Languages: map[string]int64{"Go": 1}, LanguagesFetched: true},
	}, nil)
	source.On("GetLanguageBreakdown", mock.Anything, domain.RepositoryID("octo/a")).Return(map[string]int64{"Go": 4000}, nil).Once()
	source.On("GetLanguageBreakdown", mock.Anything, domain.RepositoryID("octo/b")).Return(nil, errors.New("timeout")).Once()
	source.On("GetCommitCount", mock.Anything, domain.RepositoryID("octo/a")).Return(int64(12), nil).Once()
	source.On("GetCommitCount", mock.Anything, domain.RepositoryID("octo/b")).Return(int64(0), errors.New("boom")).Once()

	c := NewCollector(source, zerolog.Nop(), WithWorkers(2), WithFetchTimeout(time.Second))
	collection, err := c.Collect(context.Background(), CollectRequest{
		Scopes:         []domain.OwnerScope{personal},
		SampleSize:     2,
		CommitStrategy: domain.CommitsSampled,
		LanguageSource: domain.LanguagesFromREST,
	})
	require.NoError(t, err)
	require.Len(t, collection.Repositories, 3)

	a, b, cc := collection.Repositories[0], collection.Repositories[1], collection.Repositories[2]
	assert.Equal(t, map[string]int64{"Go": 4000}, a.Languages)
	assert.True(t, a.LanguagesFetched)
	assert.Equal(t, int64(12), a.Commits)
	assert.True(t, a.CommitsFetched)

	assert.False(t, b.LanguagesFetched)
	assert.Nil(t, b.Languages)
	assert.False(t, b.CommitsFetched)

	// Outside the sample the listing data is kept.
	assert.Equal(t, map[string]int64{"C": 1}, cc.Languages)
	assert.Nil(t, collection.Contributions)

	source.AssertExpectations(t)

	report := Aggregate(collection.Repositories, collection.Contributions, Options{
		SampleSize:     2,
		CommitStrategy: domain.CommitsSampled,
	})
	assert.Equal(t, 1, report.LanguageFailures)
	assert.Equal(t, 1, report.CommitFailures)
	assert.Equal(t, int64(12000), report.TotalBytes)
	assert.Equal(t, int64(36), report.TotalCommits)
}

func TestCollector_Collect_ExactCountsEveryRepository(t *testing.T) {
	source := &mockSource{}
	source.On("ListRepositories", mock.Anything, personal).Return([]domain.RepositorySummary{
		{ID: "octo/a"}, {ID: "octo/b"}, {ID: "octo/c"},
	}, nil)
	source.On("GetCommitCount", mock.Anything, mock.Anything).Return(int64(5), nil).Times(3)

	c := NewCollector(source, zerolog.Nop())
	collection, err := c.Collect(context.Background(), CollectRequest{
		Scopes:         []domain.OwnerScope{personal},
		SampleSize:     1,
		CommitStrategy: domain.CommitsExact,
	})
	require.NoError(t, err)
	for _, r := range collection.Repositories {
		assert.True(t, r.CommitsFetched)
		assert.Equal(t, int64(5), r.Commits)
	}
	source.AssertExpectations(t)
}

func TestCollector_Collect_ParentCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	source := &mockSource{}
	source.On("ListRepositories", mock.Anything, personal).Return([]domain.RepositorySummary{{ID: "octo/a"}}, nil)
	source.On("GetCommitCount", mock.Anything, domain.RepositoryID("octo/a")).
		Run(func(mock.Arguments) { cancel() }).
		Return(int64(0), context.Canceled)

	c := NewCollector(source, zerolog.Nop())
	collection, err := c.Collect(ctx, CollectRequest{
		Scopes:         []domain.OwnerScope{personal},
		CommitStrategy: domain.CommitsExact,
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, collection)
}

func TestCollector_Collect_HungCallCountsAsZero(t *testing.T) {
	source := &mockSource{}
	source.On("ListRepositories", mock.Anything, personal).Return([]domain.RepositorySummary{
		{ID: "octo/a"}, {ID: "octo/hung"}, {ID: "octo/z"},
	}, nil)
	source.On("GetCommitCount", mock.Anything, domain.RepositoryID("octo/hung")).
		Run(func(args mock.Arguments) {
			<-args.Get(0).(context.Context).Done()
		}).
		Return(int64(0), context.DeadlineExceeded).Once()
	source.On("GetCommitCount", mock.Anything, mock.Anything).Return(int64(7), nil).Twice()

	c := NewCollector(source, zerolog.Nop(), WithWorkers(3), WithFetchTimeout(50*time.Millisecond))

	start := time.Now()
	collection, err := c.Collect(context.Background(), CollectRequest{
		Scopes:         []domain.OwnerScope{personal},
		CommitStrategy: domain.CommitsExact,
	})
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)
	require.Len(t, collection.Repositories, 3)

	byID := map[domain.RepositoryID]domain.RepositorySummary{}
	for _, r := range collection.Repositories {
		byID[r.ID] = r
	}
	assert.False(t, byID["octo/hung"].CommitsFetched)
	assert.Zero(t, byID["octo/hung"].Commits)
	for _, id := range []domain.RepositoryID{"octo/a", "octo/z"} {
		assert.True(t, byID[id].CommitsFetched, id)
		assert.Equal(t, int64(7), byID[id].Commits, id)
	}
	source.AssertExpectations(t)

	report := Aggregate(collection.Repositories, collection.Contributions, Options{CommitStrategy: domain.CommitsExact})
	assert.Equal(t, int64(14), report.TotalCommits)
	assert.Equal(t, 1, report.CommitFailures)
}
