// Package logctx carries a zerolog.Logger through context.Context so that
// block-level fields (file, block index) follow a call down the stack.
//
//	ctx = logctx.WithStr(ctx, "path", path)
//	log := logctx.FromContext(ctx)
package logctx

import (
	"context"
	"os"
	"sync"

	"github.com/rs/zerolog"
)

type loggerKey struct{}

var (
	defaultLogger     zerolog.Logger
	defaultLoggerOnce sync.Once
)

// DefaultLogger returns the logger used when a context carries none: JSON
// to stderr with timestamps.
func DefaultLogger() zerolog.Logger {
	defaultLoggerOnce.Do(func() {
		defaultLogger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	})
	return defaultLogger
}

// SetDefaultLogger replaces the default logger. Call it during startup only.
func SetDefaultLogger(l zerolog.Logger) {
	DefaultLogger()
	defaultLogger = l
}

// WithLogger returns ctx carrying logger. A nil ctx is treated as
// context.Background().
func WithLogger(ctx context.Context, logger zerolog.Logger) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, loggerKey{}, logger)
}

// FromContext returns the logger carried by ctx, or DefaultLogger.
func FromContext(ctx context.Context) zerolog.Logger {
	if ctx == nil {
		return DefaultLogger()
	}
	if logger, ok := ctx.Value(loggerKey{}).(zerolog.Logger); ok {
		return logger
	}
	return DefaultLogger()
}

// WithStr adds a string field to the context's logger.
func WithStr(ctx context.Context, key, value string) context.Context {
	return WithLogger(ctx, FromContext(ctx).With().Str(key, value).Logger())
}

// WithInt adds an int field to the context's logger.
func WithInt(ctx context.Context, key string, value int) context.Context {
	return WithLogger(ctx, FromContext(ctx).With().Int(key, value).Logger())
}
