// Package logging builds the zerolog loggers shared by the server and the board.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
)

// New returns a logger that writes JSON to file, or human-readable lines to
// stderr when file is empty.
// The returned closer releases the file and is always safe to call.
func New(level string, file string) (zerolog.Logger, func(), error) {
	closer := func() {}

	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return zerolog.Logger{}, closer, fmt.Errorf("parse log level: %w", err)
	}

	if file == "" {
		return Console(os.Stderr, lvl), closer, nil
	}

	if err := os.MkdirAll(filepath.Dir(file), 0o755); err != nil {
		return zerolog.Logger{}, closer, fmt.Errorf("create logs dir: %w", err)
	}

	f, err := os.OpenFile(file, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return zerolog.Logger{}, closer, fmt.Errorf("open log file: %w", err)
	}
	return NewWithWriter(f, lvl), func() { _ = f.Close() }, nil
}

// NewWithWriter returns a timestamped logger on w at the given level
func NewWithWriter(w io.Writer, lvl zerolog.Level) zerolog.Logger {
	return zerolog.New(w).
		With().
		Timestamp().
		Logger().
		Level(lvl)
}

// Console returns a human-readable logger for interactive commands
func Console(w io.Writer, lvl zerolog.Level) zerolog.Logger {
	return NewWithWriter(zerolog.ConsoleWriter{Out: w, TimeFormat: "15:04:05"}, lvl)
}
