package arbor

import (
	"context"
	"fmt"
	"log/slog"
)

// Logger is the minimal structured-logging seam the executor and planners
// use to surface diagnostics explicitly: the warning logged when a
// multi-row write can't be matched back to after-mutation entities, and
// slow/duplicate session-variable warnings in the driver layer. No
// third-party structured-logging library appears anywhere in the corpus
// this module was grounded on, so this stays on the standard library's
// log/slog — see DESIGN.md.
type Logger interface {
	Debugf(ctx context.Context, format string, args ...any)
	Warnf(ctx context.Context, format string, args ...any)
}

// slogLogger adapts an *slog.Logger to the Logger interface.
type slogLogger struct{ l *slog.Logger }

// NewSlogLogger returns a Logger backed by l.
func NewSlogLogger(l *slog.Logger) Logger { return &slogLogger{l: l} }

func (s *slogLogger) Debugf(ctx context.Context, format string, args ...any) {
	s.l.DebugContext(ctx, sprintf(format, args...))
}

func (s *slogLogger) Warnf(ctx context.Context, format string, args ...any) {
	s.l.WarnContext(ctx, sprintf(format, args...))
}

// noopLogger discards everything; it is the default when no Logger is configured.
type noopLogger struct{}

func (noopLogger) Debugf(context.Context, string, ...any) {}
func (noopLogger) Warnf(context.Context, string, ...any) {}

// NoopLogger returns a Logger that discards everything.
func NoopLogger() Logger { return noopLogger{} }

func sprintf(format string, args ...any) string {
	if len(args) == 0 {
		return format
	}
	return fmt.Sprintf(format, args...)
}
