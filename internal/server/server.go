// Package server serves the countdown badge and the latest stats over HTTP.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/naka-gawa/github-profile-stats/internal/badge"
	"github.com/naka-gawa/github-profile-stats/internal/logging"
)

// Routes served by NewMux.
const (
	BadgePath   = "/badge/next-update.svg"
	StatsPath   = "/api/stats"
	HistoryPath = "/api/history"
	HealthPath  = "/health"
)

// MuxConfig holds the dependencies of the router.
type MuxConfig struct {
	Countdown *badge.Countdown
	Latest    LatestFunc
	// History is optional.
	History HistoryLister
	Timeout time.Duration
	Logger  zerolog.Logger
	// Now defaults to time.Now.
	Now func() time.Time
}

// NewMux creates router for app's http server.
func NewMux(cfg MuxConfig) *http.ServeMux {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	timeoutMiddleware := func(h http.HandlerFunc) http.HandlerFunc { return h }
	if cfg.Timeout > 0 {
		timeoutMiddleware = NewTimeoutMiddleware(cfg.Timeout)
	}
	withLogger := func(h http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			ctx := logging.WithContext(r.Context(), cfg.Logger)
			ctx = logging.WithStr(ctx, "path", r.URL.Path)
			h(w, r.WithContext(ctx))
		}
	}

	m := http.NewServeMux()
	m.HandleFunc(BadgePath, noCache(NewCountdownHandler(cfg.Countdown, now)))
	m.HandleFunc(StatsPath, withLogger(timeoutMiddleware(NewStatsHandler(cfg.Latest, cfg.Countdown, now))))
	m.HandleFunc(HistoryPath, withLogger(timeoutMiddleware(NewHistoryHandler(cfg.History))))
	m.HandleFunc(HealthPath, NewHealthHandler())

	return m
}

// Server handles app's http requests.
type Server struct {
	addr    string
	handler http.Handler
	logger  zerolog.Logger
}

// NewServer creates new Server instance.
func NewServer(addr string, handler http.Handler, logger zerolog.Logger) *Server {
	return &Server{
		addr:    addr,
		handler: handler,
		logger:  logger,
	}
}

// Run runs the server until ctx is done, then gracefully shuts it down.
// Blocks until shutdown is complete.
func (s *Server) Run(ctx context.Context) error {
	srv := http.Server{
		Addr: s.addr,

		ReadHeaderTimeout: time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      70 * time.Second,
		IdleTimeout:       10 * time.Second,

		Handler: s.handler,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("address", s.addr).Msg("starting http server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		s.logger.Error().Err(err).Msg("server shutdown returned error")
		return err
	}
	s.logger.Info().Msg("http server stopped")
	return nil
}
