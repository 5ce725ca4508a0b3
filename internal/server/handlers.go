package server

import (
	"context"
	"errors"
	"net/http"
	"os"
	"strconv"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/naka-gawa/github-profile-stats/internal/badge"
	"github.com/naka-gawa/github-profile-stats/internal/logging"
	"github.com/naka-gawa/github-profile-stats/internal/snapshot"
)

// LatestFunc returns the most recent snapshot.
type LatestFunc func(ctx context.Context) (snapshot.Snapshot, error)

// HistoryLister lists recorded snapshots, most recent first.
type HistoryLister interface {
	List(ctx context.Context, limit int) ([]snapshot.HistoryEntry, error)
}

// NewCountdownHandler creates handlerfunc serving the next update badge.
func NewCountdownHandler(countdown *badge.Countdown, now func() time.Time) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/svg+xml")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(badge.SVG(badge.Label, countdown.ETA(now())))
	}
}

type statsResponse struct {
	snapshot.Snapshot
	NextUpdate time.Time `json:"next_update"`
}

// NewStatsHandler creates handlerfunc returning the latest snapshot.
func NewStatsHandler(latest LatestFunc, countdown *badge.Countdown, now func() time.Time) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, err := latest(r.Context())
		if err != nil {
			if errors.Is(err, snapshot.ErrNoHistory) || errors.Is(err, os.ErrNotExist) {
				http.Error(w, "no stats recorded yet", http.StatusNotFound)
				return
			}
			logging.FromContext(r.Context()).Error().Err(err).Msg("reading latest snapshot failed")
			http.Error(w, "", http.StatusInternalServerError)
			return
		}

		writeJSON(w, statsResponse{Snapshot: s, NextUpdate: countdown.NextRun(now())})
	}
}

// NewHistoryHandler creates handlerfunc returning recorded snapshots.
func NewHistoryHandler(history HistoryLister) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if history == nil {
			http.Error(w, "history is not enabled", http.StatusNotFound)
			return
		}
		limit := getIntParam(r, "limit", 30)

		entries, err := history.List(r.Context(), limit)
		if err != nil {
			logging.FromContext(r.Context()).Error().Err(err).Msg("listing history failed")
			http.Error(w, "", http.StatusInternalServerError)
			return
		}
		writeJSON(w, entries)
	}
}

// NewHealthHandler creates handlerfunc reporting liveness.
func NewHealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]string{"status": "ok"})
	}
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-type", "application/json; charset=utf-8")
	_ = jsoniter.ConfigCompatibleWithStandardLibrary.NewEncoder(w).Encode(v)
}

func getIntParam(r *http.Request, name string, defaultValue int) int {
	value := defaultValue
	if vs := r.URL.Query().Get(name); vs != "" {
		if v, err := strconv.Atoi(vs); err == nil && v > 0 && v <= 1000 {
			value = v
		}
	}

	return value
}
