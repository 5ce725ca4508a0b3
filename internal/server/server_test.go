package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/naka-gawa/github-profile-stats/internal/badge"
	"github.com/naka-gawa/github-profile-stats/internal/domain"
	"github.com/naka-gawa/github-profile-stats/internal/snapshot"
)

var fixedNow = time.Date(2024, 5, 1, 5, 30, 0, 0, time.UTC)

type fakeHistory struct {
	entries   []snapshot.HistoryEntry
	err       error
	lastLimit int
}

func (f *fakeHistory) List(_ context.Context, limit int) ([]snapshot.HistoryEntry, error) {
	f.lastLimit = limit
	if f.err != nil {
		return nil, f.err
	}
	if limit < len(f.entries) {
		return f.entries[:limit], nil
	}
	return f.entries, nil
}

func testSnapshot() snapshot.Snapshot {
	return snapshot.NewSnapshot(domain.AggregateReport{
		TotalRepos:       42,
		TotalCommits:     450,
		CommitsEstimated: true,
		CommitStrategy:   domain.CommitsMultiplier,
		TotalLines:       1_200_000,
	}, fixedNow)
}

func newTestMux(t *testing.T, latest LatestFunc, history HistoryLister) *http.ServeMux {
	countdown, err := badge.NewCountdown(badge.DefaultSchedule)
	require.NoError(t, err)
	return NewMux(MuxConfig{
		Countdown: countdown,
		Latest:    latest,
		History:   history,
		Timeout:   time.Second,
		Logger:    zerolog.Nop(),
		Now:       func() time.Time { return fixedNow },
	})
}

func TestCountdownBadge(t *testing.T) {
	mux := newTestMux(t, nil, nil)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, BadgePath, nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/svg+xml", rec.Header().Get("Content-Type"))
	assert.Equal(t, "no-store, no-cache, must-revalidate, max-age=0", rec.Header().Get("Cache-Control"))
	assert.Equal(t, "no-cache", rec.Header().Get("Pragma"))
	assert.Equal(t, "0", rec.Header().Get("Expires"))
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Body.String(), "Next Update: 02:30:00")
}

func TestStatsHandler(t *testing.T) {
	tests := []struct {
		name       string
		latest     LatestFunc
		wantStatus int
		check      func(t *testing.T, body string)
	}{
		{
			name: "latest snapshot",
			latest: func(ctx context.Context) (snapshot.Snapshot, error) {
				return testSnapshot(), nil
			},
			wantStatus: http.StatusOK,
			check: func(t *testing.T, body string) {
				var got map[string]interface{}
				require.NoError(t, json.Unmarshal([]byte(body), &got))
				assert.Equal(t, float64(42), got["total_repos"])
				assert.Equal(t, float64(450), got["estimated_total_commits"])
				assert.Equal(t, "2024-05-01T08:00:00Z", got["next_update"])
			},
		},
		{
			name: "nothing recorded yet",
			latest: func(ctx context.Context) (snapshot.Snapshot, error) {
				return snapshot.Snapshot{}, fmt.Errorf("reading: %w", os.ErrNotExist)
			},
			wantStatus: http.StatusNotFound,
		},
		{
			name: "empty history",
			latest: func(ctx context.Context) (snapshot.Snapshot, error) {
				return snapshot.Snapshot{}, snapshot.ErrNoHistory
			},
			wantStatus: http.StatusNotFound,
		},
		{
			name: "storage failure",
			latest: func(ctx context.Context) (snapshot.Snapshot, error) {
				return snapshot.Snapshot{}, errors.New("disk on fire")
			},
			wantStatus: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mux := newTestMux(t, tt.latest, nil)
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, StatsPath, nil))

			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.check != nil {
				assert.Equal(t, "application/json; charset=utf-8", rec.Header().Get("Content-type"))
				tt.check(t, rec.Body.String())
			}
		})
	}
}

func TestHandlers_LogFailuresWithRequestPath(t *testing.T) {
	countdown, err := badge.NewCountdown(badge.DefaultSchedule)
	require.NoError(t, err)

	var buf bytes.Buffer
	mux := NewMux(MuxConfig{
		Countdown: countdown,
		Latest: func(ctx context.Context) (snapshot.Snapshot, error) {
			return snapshot.Snapshot{}, errors.New("disk on fire")
		},
		History: &fakeHistory{err: errors.New("db locked")},
		Logger:  zerolog.New(&buf),
		Now:     func() time.Time { return fixedNow },
	})

	for _, path := range []string{StatsPath, HistoryPath} {
		buf.Reset()
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		require.Equal(t, http.StatusInternalServerError, rec.Code)

		var entry map[string]interface{}
		require.NoError(t, json.Unmarshal(buf.Bytes(), &entry), path)
		assert.Equal(t, "error", entry["level"])
		assert.Equal(t, path, entry["path"])
		assert.NotEmpty(t, entry["error"])
	}
}

func TestHistoryHandler(t *testing.T) {
	entries := []snapshot.HistoryEntry{
		{ID: 3, RecordedAt: fixedNow, Snapshot: testSnapshot()},
		{ID: 2, RecordedAt: fixedNow.Add(-8 * time.Hour), Snapshot: testSnapshot()},
	}

	t.Run("limit from query", func(t *testing.T) {
		history := &fakeHistory{entries: entries}
		mux := newTestMux(t, nil, history)

		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, HistoryPath+"?limit=1", nil))

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, 1, history.lastLimit)
		var got []snapshot.HistoryEntry
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
		require.Len(t, got, 1)
		assert.Equal(t, int64(3), got[0].ID)
	})

	t.Run("invalid limit falls back to default", func(t *testing.T) {
		history := &fakeHistory{entries: entries}
		mux := newTestMux(t, nil, history)

		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, HistoryPath+"?limit=abc", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, 30, history.lastLimit)
	})

	t.Run("list error", func(t *testing.T) {
		mux := newTestMux(t, nil, &fakeHistory{err: errors.New("locked")})
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, HistoryPath, nil))
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})

	t.Run("history disabled", func(t *testing.T) {
		mux := newTestMux(t, nil, nil)
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, HistoryPath, nil))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestHealthHandler(t *testing.T) {
	mux := newTestMux(t, nil, nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, HealthPath, nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestTimeoutMiddleware(t *testing.T) {
	var deadline time.Time
	var ok bool
	h := NewTimeoutMiddleware(time.Minute)(func(w http.ResponseWriter, r *http.Request) {
		deadline, ok = r.Context().Deadline()
	})
	h(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	require.True(t, ok)
	assert.WithinDuration(t, time.Now().Add(time.Minute), deadline, 5*time.Second)
}

func TestServer_RunStopsWithContext(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- NewServer(addr, newTestMux(t, nil, nil), zerolog.Nop()).Run(ctx)
	}()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + addr + HealthPath)
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestServer_RunReportsListenError(t *testing.T) {
	err := NewServer("not-an-address", http.NewServeMux(), zerolog.Nop()).Run(context.Background())
	assert.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "not-an-address"))
}
