// Package diagnostics provides the structured logger threaded through
// discovery, planning and execution - a thin wrapper over log/slog with
// component/version/driver context builders.
package diagnostics

import (
	"log/slog"
	"os"

	"github.com/parsql-io/henka/migration"
)

// Logger wraps *slog.Logger with builders for the context this engine
// attaches to its log lines.
type Logger struct {
	*slog.Logger
}

// New creates a text-handler logger writing to os.Stdout at level.
func New(level slog.Level) *Logger {
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	return &Logger{Logger: slog.New(handler)}
}

// Nop returns a logger that discards everything, for callers that don't
// want diagnostics.
func Nop() *Logger {
	return &Logger{Logger: slog.New(slog.NewTextHandler(nopWriter{}, nil))}
}

type nopWriter struct{}

func (nopWriter) Write(p []byte) (int, error) { return len(p), nil }

// WithComponent attaches which engine component emitted the log line.
func (l *Logger) WithComponent(component string) *Logger {
	return &Logger{Logger: l.Logger.With("component", component)}
}

// WithVersion attaches a migration version.
func (l *Logger) WithVersion(v migration.Version) *Logger {
	return &Logger{Logger: l.Logger.With("version", v.String())}
}

// WithDriver attaches the target database dialect.
func (l *Logger) WithDriver(kind string) *Logger {
	return &Logger{Logger: l.Logger.With("driver", kind)}
}
