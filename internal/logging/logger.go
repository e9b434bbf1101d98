// Package logging defines the structured-logging contract used across
// teamplan. The server wires an slog-backed implementation; tests use the
// no-op logger.
package logging

import "context"

// Logger is a context-aware structured logger. Variadic args are key-value
// pairs:
//
//	log.Info(ctx, "invitation created", "projectID", id)
type Logger interface {
	Debug(ctx context.Context, msg string, args ...any)
	Info(ctx context.Context, msg string, args ...any)
	Warn(ctx context.Context, msg string, args ...any)
	Error(ctx context.Context, msg string, args ...any)

	// With returns a child logger carrying the given key-value pairs.
	With(args ...any) Logger
}

// NopLogger discards everything. Default in tests.
type NopLogger struct{}

func (NopLogger) Debug(context.Context, string, ...any) {}
func (NopLogger) Info(context.Context, string, ...any)  {}
func (NopLogger) Warn(context.Context, string, ...any)  {}
func (NopLogger) Error(context.Context, string, ...any) {}
func (n NopLogger) With(...any) Logger                  { return n }
