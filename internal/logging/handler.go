package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
)

// TerminalHandler renders records as "[LVL][area][kind] msg key=val ...",
// the tagged-line format spec §7 requires for operator-visible logging.
// Modelled on the teacher's NewTerminalHandlerWithLevel.
type TerminalHandler struct {
	mu    sync.Mutex
	w     io.Writer
	attrs []slog.Attr
}

// NewTerminalHandler returns a handler writing to w.
func NewTerminalHandler(w io.Writer) *TerminalHandler {
	return &TerminalHandler{w: w}
}

func (h *TerminalHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h *TerminalHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	var area, kind string
	extra := make([]string, 0, r.NumAttrs()+len(h.attrs))
	collect := func(a slog.Attr) bool {
		switch a.Key {
		case "area":
			area = a.Value.String()
		case "kind":
			kind = a.Value.String()
		default:
			extra = append(extra, fmt.Sprintf("%s=%v", a.Key, a.Value.Any()))
		}
		return true
	}
	for _, a := range h.attrs {
		collect(a)
	}
	r.Attrs(collect)

	lvl := levelLabel(r.Level)
	tag := "[" + lvl + "]"
	if area != "" {
		tag += "[" + area + "]"
	}
	if kind != "" {
		tag += "[" + kind + "]"
	}
	line := fmt.Sprintf("%s %s %s", tag, r.Message, strings.Join(extra, " "))
	_, err := fmt.Fprintln(h.w, strings.TrimRight(line, " "))
	return err
}

func (h *TerminalHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	n := &TerminalHandler{w: h.w}
	n.attrs = append(append([]slog.Attr{}, h.attrs...), attrs...)
	return n
}

func (h *TerminalHandler) WithGroup(string) slog.Handler { return h }

func levelLabel(l slog.Level) string {
	switch {
	case l <= levelTrace:
		return "TRACE"
	case l < slog.LevelInfo:
		return "DEBUG"
	case l < slog.LevelWarn:
		return "INFO"
	case l < slog.LevelError:
		return "WARN"
	default:
		return "ERROR"
	}
}

// GlogHandler wraps another handler and lets the verbosity threshold be
// raised or lowered at runtime, per spec_full's "structured log verbosity
// control per pipeline" supplement. Modelled on the teacher's
// log.GlogHandler (see log/handler_test.go, log/root_test.go). Handlers
// derived via WithAttrs/WithGroup share the same level, so the threshold is
// one per GlogHandler tree, not one per pipeline.
type GlogHandler struct {
	inner slog.Handler
	level *atomicLevel
}

type atomicLevel struct {
	mu sync.RWMutex
	v  slog.Level
}

func (a *atomicLevel) get() slog.Level {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.v
}

func (a *atomicLevel) set(v slog.Level) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.v = v
}

// NewGlogHandler wraps inner with a runtime-adjustable verbosity floor,
// initially Info.
func NewGlogHandler(inner slog.Handler) *GlogHandler {
	return &GlogHandler{inner: inner, level: &atomicLevel{v: slog.LevelInfo}}
}

// Verbosity sets the minimum level that will be passed through to inner.
func (h *GlogHandler) Verbosity(lvl slog.Level) { h.level.set(lvl) }

func (h *GlogHandler) Enabled(ctx context.Context, lvl slog.Level) bool {
	return lvl >= h.level.get() && h.inner.Enabled(ctx, lvl)
}

func (h *GlogHandler) Handle(ctx context.Context, r slog.Record) error {
	return h.inner.Handle(ctx, r)
}

func (h *GlogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &GlogHandler{inner: h.inner.WithAttrs(attrs), level: h.level}
}

func (h *GlogHandler) WithGroup(name string) slog.Handler {
	return &GlogHandler{inner: h.inner.WithGroup(name), level: h.level}
}
