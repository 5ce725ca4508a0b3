// Package logging builds the zerolog logger used across the application and
// carries it through context.Context.
//
// Commands construct one logger with New and inject it into constructors.
// Per-repository fields are attached with WithStr and read back with FromContext:
//
//	ctx = logging.WithStr(ctx, "repo", string(id))
//	logging.FromContext(ctx).Warn().Err(err).Msg("language fetch failed")
package logging

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// New creates a logger writing to stderr.
// If verbose is true, the level is Debug instead of Info.
// If human is true, a console writer is used instead of JSON lines.
func New(verbose, human bool) zerolog.Logger {
	return NewWithWriter(os.Stderr, verbose, human)
}

// NewWithWriter is New with an explicit destination.
func NewWithWriter(w io.Writer, verbose, human bool) zerolog.Logger {
	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}

	out := w
	if human {
		out = zerolog.ConsoleWriter{
			Out:        w,
			TimeFormat: time.RFC3339,
		}
	}

	return zerolog.New(out).Level(level).With().Timestamp().Logger()
}

// WithContext returns a new context carrying logger.
func WithContext(ctx context.Context, logger zerolog.Logger) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return logger.WithContext(ctx)
}

// FromContext returns the logger attached to ctx, or a disabled logger if none is.
func FromContext(ctx context.Context) *zerolog.Logger {
	if ctx == nil {
		ctx = context.Background()
	}
	return zerolog.Ctx(ctx)
}

// WithStr returns a new context whose logger has the string field added.
func WithStr(ctx context.Context, key, value string) context.Context {
	return WithContext(ctx, FromContext(ctx).With().Str(key, value).Logger())
}
