// Package logging holds the process-wide zerolog logger used by the CLI and
// the block file layer.
package logging

import (
	"os"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

var (
	logger *zerolog.Logger
	pretty atomic.Bool
)

func init() {
	l := zerolog.New(os.Stderr).With().Timestamp().Logger()
	logger = &l
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
}

// Init configures the global logger. debug lowers the level to Debug; human
// switches to a console writer and adds human-readable companion fields to
// completion events.
func Init(debug, human bool) {
	level := zerolog.InfoLevel
	if debug {
		level = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(level)
	pretty.Store(human)

	var output zerolog.LevelWriter
	if human {
		output = zerolog.LevelWriterAdapter{Writer: zerolog.ConsoleWriter{
			Out:        os.Stderr,
			TimeFormat: time.RFC3339,
		}}
	} else {
		output = zerolog.LevelWriterAdapter{Writer: os.Stderr}
	}

	l := zerolog.New(output).With().Timestamp().Logger()
	logger = &l
}

// L returns the base logger.
func L() *zerolog.Logger {
	return logger
}

// WithPhase returns a logger with the phase field set.
func WithPhase(phase string) zerolog.Logger {
	return logger.With().Str("phase", phase).Logger()
}

// SetLogger replaces the global logger.
func SetLogger(l zerolog.Logger) {
	logger = &l
}

// IsPrettyMode reports whether completion events carry "_h" fields.
func IsPrettyMode() bool {
	return pretty.Load()
}

// SetPrettyMode overrides the mode chosen by Init.
func SetPrettyMode(on bool) {
	pretty.Store(on)
}
