package cli

import (
	"io"
	"log/slog"
	"time"

	"github.com/rs/zerolog"
)

// NewLogger constructs the process logger. Development gets debug level and
// a console writer; everything else logs JSON at info.
func NewLogger(appEnv string, w io.Writer) zerolog.Logger {
	level := zerolog.InfoLevel
	if appEnv == "development" {
		level = zerolog.DebugLevel
	}

	logger := zerolog.New(w).
		Level(level).
		With().
		Timestamp().
		Logger()

	if appEnv == "development" {
		logger = logger.Output(zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339})
	}

	return logger
}

// slogFor routes the ledger's slog output into zl. Commands stay quiet
// below warn unless verbose is set.
func slogFor(zl zerolog.Logger, verbose bool) *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(zl, &slog.HandlerOptions{Level: level}))
}
