// Package log provides helpers for creating a configured slog.Logger: level
// parsing (including a sub-Debug trace level for wire-protocol chatter),
// fan-out to multiple handlers, and level filtering. Non-error levels go to
// stdout, error level goes to stderr, mirroring how CLI tools in this
// ecosystem typically split diagnostic output from normal output.
package log

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// LevelTrace is below slog.LevelDebug, for per-packet wire tracing that
// would otherwise flood a plain debug log.
const LevelTrace slog.Level = -8

// ParseLevel maps a config/CLI string onto a slog.Level, accepting "trace"
// in addition to the standard four.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return LevelTrace
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// MultiHandler fans a single log record out to every wrapped handler.
type MultiHandler struct {
	hs []slog.Handler
}

// NewMultiHandler combines handlers, skipping any nil entries.
func NewMultiHandler(hs ...slog.Handler) *MultiHandler {
	m := &MultiHandler{}
	for _, h := range hs {
		if h != nil {
			m.hs = append(m.hs, h)
		}
	}
	return m
}

func (m *MultiHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range m.hs {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (m *MultiHandler) Handle(ctx context.Context, r slog.Record) error {
	var firstErr error
	for _, h := range m.hs {
		if !h.Enabled(ctx, r.Level) {
			continue
		}
		if err := h.Handle(ctx, r.Clone()); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (m *MultiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := &MultiHandler{hs: make([]slog.Handler, len(m.hs))}
	for i, h := range m.hs {
		next.hs[i] = h.WithAttrs(attrs)
	}
	return next
}

func (m *MultiHandler) WithGroup(name string) slog.Handler {
	next := &MultiHandler{hs: make([]slog.Handler, len(m.hs))}
	for i, h := range m.hs {
		next.hs[i] = h.WithGroup(name)
	}
	return next
}

// LevelFilter wraps a handler with a custom enablement predicate, letting a
// single underlying writer (e.g. stdout) carry different levels than the
// handler's own configured minimum.
type LevelFilter struct {
	pass func(slog.Level) bool
	h    slog.Handler
}

// NewLevelFilter wraps h so records reach it only when pass(level) is true.
func NewLevelFilter(pass func(slog.Level) bool, h slog.Handler) *LevelFilter {
	return &LevelFilter{pass: pass, h: h}
}

func (f *LevelFilter) Enabled(ctx context.Context, level slog.Level) bool {
	return f.pass(level) && f.h.Enabled(ctx, level)
}

func (f *LevelFilter) Handle(ctx context.Context, r slog.Record) error {
	return f.h.Handle(ctx, r)
}

func (f *LevelFilter) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &LevelFilter{pass: f.pass, h: f.h.WithAttrs(attrs)}
}

func (f *LevelFilter) WithGroup(name string) slog.Handler {
	return &LevelFilter{pass: f.pass, h: f.h.WithGroup(name)}
}

// SetupLogger builds the process-wide logger: non-error levels to stdout,
// error level to stderr, both gated at the parsed level, plus an optional
// file handler when logPath is non-empty. Returned closers must be closed
// by the caller at shutdown.
func SetupLogger(level, logPath string) (*slog.Logger, []io.Closer, error) {
	minLevel := ParseLevel(level)
	opts := &slog.HandlerOptions{Level: minLevel}

	stdoutHandler := NewLevelFilter(func(l slog.Level) bool {
		return l < slog.LevelError && l >= minLevel
	}, slog.NewTextHandler(os.Stdout, opts))

	stderrHandler := NewLevelFilter(func(l slog.Level) bool {
		return l >= slog.LevelError
	}, slog.NewTextHandler(os.Stderr, opts))

	handlers := []slog.Handler{stdoutHandler, stderrHandler}
	var closers []io.Closer

	if logPath != "" {
		f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("log: open log file: %w", err)
		}
		handlers = append(handlers, slog.NewJSONHandler(f, opts))
		closers = append(closers, f)
	}

	return slog.New(NewMultiHandler(handlers...)), closers, nil
}

// NewRawFileLogger opens path for append and wraps it as a RawLogger; if
// path is empty it returns a no-op logger (NewRaw(nil) never writes).
func NewRawFileLogger(path string) (RawLogger, io.Closer, error) {
	if path == "" {
		return NewRaw(nil), nil, nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("log: open raw log file: %w", err)
	}
	return NewRaw(f), f, nil
}
