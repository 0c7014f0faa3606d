// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package logging provides the component-scoped structured logger used
// throughout flywall: the compiler, the classifier workers, and the
// reconciliation pipeline all log through a *Logger rather than the
// standard library's log package directly.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
)

// Level mirrors slog.Level but keeps the flywall call sites (Config.Level,
// WithComponent chains) independent of slog's import.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) slog() slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ParseLevel parses a CLI/config level name, defaulting to LevelInfo.
func ParseLevel(s string) Level {
	switch s {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// Config configures a new Logger.
type Config struct {
	Output io.Writer
	Level  Level
	// JSON selects structured JSON output instead of the default text
	// handler; the classifier daemon sets this when its logs are shipped
	// to a log aggregator rather than read from a terminal.
	JSON bool
	// Syslog, if Enabled, additionally mirrors records to a syslog server.
	Syslog SyslogConfig
}

// DefaultConfig returns the Config used when none is specified: text
// output to stderr at info level.
func DefaultConfig() Config {
	return Config{Output: os.Stderr, Level: LevelInfo}
}

// Logger is a component-scoped structured logger. Zero value is not
// usable; construct with New or obtain Default().
type Logger struct {
	base *slog.Logger
}

// New builds a Logger from cfg.
func New(cfg Config) *Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	opts := &slog.HandlerOptions{Level: cfg.Level.slog()}

	var handler slog.Handler
	if cfg.JSON {
		handler = slog.NewJSONHandler(out, opts)
	} else {
		handler = slog.NewTextHandler(out, opts)
	}

	if cfg.Syslog.Enabled {
		if w, err := NewSyslogWriter(cfg.Syslog); err == nil {
			handler = teeHandler{primary: handler, mirror: slog.NewTextHandler(w, opts)}
		}
	}

	return &Logger{base: slog.New(handler)}
}

// teeHandler mirrors every record to a second handler (syslog) in addition
// to the primary one (stderr/file), without letting a mirror failure
// affect the primary write.
type teeHandler struct {
	primary slog.Handler
	mirror  slog.Handler
}

func (t teeHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return t.primary.Enabled(ctx, level)
}

func (t teeHandler) Handle(ctx context.Context, r slog.Record) error {
	err := t.primary.Handle(ctx, r.Clone())
	_ = t.mirror.Handle(ctx, r.Clone())
	return err
}

func (t teeHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return teeHandler{primary: t.primary.WithAttrs(attrs), mirror: t.mirror.WithAttrs(attrs)}
}

func (t teeHandler) WithGroup(name string) slog.Handler {
	return teeHandler{primary: t.primary.WithGroup(name), mirror: t.mirror.WithGroup(name)}
}

// WithComponent returns a child logger tagging every record with
// component=name, e.g. logging.Default().WithComponent("classifier").
func (l *Logger) WithComponent(name string) *Logger {
	return &Logger{base: l.base.With("component", name)}
}

// WithError returns a child logger with the error attached; the message
// passed to the eventual Warn/Error call describes the operation, not the
// error itself.
func (l *Logger) WithError(err error) *Logger {
	if err == nil {
		return l
	}
	return &Logger{base: l.base.With("error", err.Error())}
}

// WithFields returns a child logger with the given key/value pairs attached.
func (l *Logger) WithFields(fields map[string]any) *Logger {
	args := make([]any, 0, len(fields)*2)
	for k, v := range fields {
		args = append(args, k, v)
	}
	return &Logger{base: l.base.With(args...)}
}

func (l *Logger) Debug(msg string, kv ...any) { l.base.Debug(msg, kv...) }
func (l *Logger) Info(msg string, kv ...any)  { l.base.Info(msg, kv...) }
func (l *Logger) Warn(msg string, kv ...any)  { l.base.Warn(msg, kv...) }
func (l *Logger) Error(msg string, kv ...any) { l.base.Error(msg, kv...) }

// APILog records a single request/response pair at info level, tagged for
// easy filtering in aggregated logs.
func (l *Logger) APILog(method, path string, status int, kv ...any) {
	args := append([]any{"method", method, "path", path, "status", status}, kv...)
	l.base.Info("api request", args...)
}

var defaultLogger atomic.Pointer[Logger]
var defaultOnce sync.Once

// Default returns the process-wide default Logger, lazily constructed
// with DefaultConfig() on first use.
func Default() *Logger {
	defaultOnce.Do(func() {
		if defaultLogger.Load() == nil {
			defaultLogger.Store(New(DefaultConfig()))
		}
	})
	return defaultLogger.Load()
}

// SetDefault replaces the process-wide default Logger, typically called
// once at startup after the daemon's configuration is loaded.
func SetDefault(l *Logger) {
	defaultLogger.Store(l)
}

// WithComponent is a convenience that scopes the default logger, e.g.
// logging.WithComponent("compiler").
func WithComponent(name string) *Logger {
	return Default().WithComponent(name)
}

func Debug(msg string, kv ...any) { Default().Debug(msg, kv...) }
func Info(msg string, kv ...any)  { Default().Info(msg, kv...) }
func Warn(msg string, kv ...any)  { Default().Warn(msg, kv...) }
func Error(msg string, kv ...any) { Default().Error(msg, kv...) }
