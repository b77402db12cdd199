// Package logging wraps zerolog setup for the daemon and client binaries,
// each writing to its own append-only log file (§6), adapted from
// catnip's logger package: same level parsing, trimmed to file-only
// output (no TUI console-writer branch — neither binary here draws to
// the same terminal it logs from in a conflicting way).
package logging

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
)

// Level mirrors the config surface's log_level string.
type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

func (l Level) zerolog() zerolog.Level {
	switch l {
	case LevelDebug:
		return zerolog.DebugLevel
	case LevelWarn:
		return zerolog.WarnLevel
	case LevelError:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// New opens (creating if needed) the log file at path and returns a
// zerolog.Logger writing timestamped entries to it at the given level.
func New(path string, level Level) (zerolog.Logger, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return zerolog.Logger{}, fmt.Errorf("open log file %s: %w", path, err)
	}
	zerolog.SetGlobalLevel(level.zerolog())
	return zerolog.New(f).With().Timestamp().Logger(), nil
}
