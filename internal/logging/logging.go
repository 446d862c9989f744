// Package logging provides component-scoped structured logging for the daemon.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}

// Logger wraps zerolog.Logger with a fixed "component" field, following the
// WithComponent chaining idiom used throughout this codebase's subsystems.
type Logger struct {
	zerolog.Logger
}

var base = New(os.Stderr, false)

// New builds a root logger writing to w. When pretty is true, output is
// rendered for a human terminal instead of newline-delimited JSON.
func New(w io.Writer, pretty bool) Logger {
	var out io.Writer = w
	if pretty {
		out = zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}
	}
	return Logger{zerolog.New(out).With().Timestamp().Logger()}
}

// Default returns the process-wide root logger.
func Default() Logger { return base }

// SetDefault replaces the process-wide root logger, e.g. after config load
// decides whether stderr is a TTY.
func SetDefault(l Logger) { base = l }

// WithComponent returns a child logger tagged with the given subsystem name.
func (l Logger) WithComponent(name string) Logger {
	return Logger{l.Logger.With().Str("component", name).Logger()}
}

// IsTerminal reports whether fd 2 looks like an interactive terminal.
func IsTerminal() bool {
	fi, err := os.Stderr.Stat()
	if err != nil {
		return false
	}
	return (fi.Mode() & os.ModeCharDevice) != 0
}
