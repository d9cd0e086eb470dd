// Package logging is a thin wrapper over log/slog modelled on the teacher's
// own log package: a Logger interface with New(ctx...) for attaching static
// key/value context, level methods that take alternating key/value pairs,
// and a verbosity handler that can be raised or lowered at runtime (one
// threshold, shared by every logger derived from that handler). Output lines follow the tagged format required by spec §7:
// "[LVL][area][kind] msg key=val key=val".
package logging

import (
	"context"
	"log/slog"
	"os"
)

// Logger is the interface every pipeline logs through. It mirrors slog's
// calling convention (alternating key/value pairs) rather than a
// structured-fields-first API, matching the teacher's own log.Logger.
type Logger interface {
	Trace(msg string, ctx ...any)
	Debug(msg string, ctx ...any)
	Info(msg string, ctx ...any)
	Warn(msg string, ctx ...any)
	Error(msg string, ctx ...any)
	// New returns a descendant logger with additional static context
	// merged into every subsequent call.
	New(ctx ...any) Logger
	// Handler returns the underlying slog.Handler, so a new area-scoped
	// Logger can be built from the same sink (see New in this package).
	Handler() slog.Handler
}

// levelTrace sits below slog.LevelDebug, matching the teacher's five-level
// scheme (Trace, Debug, Info, Warn, Error) rather than slog's four.
const levelTrace = slog.Level(-8)

type logger struct {
	inner *slog.Logger
}

// New constructs a Logger over handler, tagged with area (e.g. "backfill",
// "gapfill").
func New(area string, handler slog.Handler) Logger {
	return &logger{inner: slog.New(handler).With("area", area)}
}

func (l *logger) Trace(msg string, ctx ...any) { l.inner.Log(context.Background(), levelTrace, msg, ctx...) }
func (l *logger) Debug(msg string, ctx ...any) { l.inner.Debug(msg, ctx...) }
func (l *logger) Info(msg string, ctx ...any)  { l.inner.Info(msg, ctx...) }
func (l *logger) Warn(msg string, ctx ...any)  { l.inner.Warn(msg, ctx...) }
func (l *logger) Error(msg string, ctx ...any) { l.inner.Error(msg, ctx...) }

func (l *logger) New(ctx ...any) Logger {
	return &logger{inner: l.inner.With(ctx...)}
}

func (l *logger) Handler() slog.Handler { return l.inner.Handler() }

// Discard is a Logger that drops everything; useful as a default in tests.
var Discard Logger = &logger{inner: slog.New(slog.NewTextHandler(discardWriter{}, nil))}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

// Default constructs the process-wide root logger writing tagged lines to
// os.Stderr at Info level. Per-pipeline children come from
// root.New("area", ...).
func Default() Logger {
	return New("root", NewGlogHandler(NewTerminalHandler(os.Stderr)))
}
