// Package logging provides the supervisor's structured logger: a
// log/slog logger with a third-party-log filter and a choice of simple or
// verbose text formats, adapted from the teacher's pkg/logger package.
package logging

import (
	"context"
	"io"
	"os"
	"strings"

	"log/slog"
)

const supervisorPackagePrefix = "github.com/archonops/supervisor"

// ParseLevel converts a string log level to slog.Level. Unknown values
// fall back to Warn, matching the teacher's conservative default.
func ParseLevel(levelStr string) (slog.Level, error) {
	switch strings.ToLower(levelStr) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelWarn, nil
	}
}

// OpenLogFile opens or creates a log file in append mode.
func OpenLogFile(path string) (*os.File, func(), error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, err
	}
	return file, func() { _ = file.Close() }, nil
}

// Init builds and installs the default logger. Third-party library logs
// are suppressed below debug level so the audit trail isn't drowned out by
// driver dependencies.
func Init(level slog.Level, output *os.File, format string) *slog.Logger {
	simple := format == "simple" || format == ""

	opts := &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.LevelKey && a.Value.String() == "WARNING" {
				return slog.String("level", "WARN")
			}
			return a
		},
	}

	var handler slog.Handler = slog.NewTextHandler(output, opts)
	if simple {
		handler = &simpleTextHandler{writer: output}
	}

	logger := slog.New(&filteringHandler{handler: handler, minLevel: level})
	slog.SetDefault(logger)
	return logger
}

// filteringHandler suppresses non-supervisor log records unless the
// configured level is debug.
type filteringHandler struct {
	handler  slog.Handler
	minLevel slog.Level
}

func (h *filteringHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return level >= h.minLevel && h.handler.Enabled(ctx, level)
}

func (h *filteringHandler) Handle(ctx context.Context, record slog.Record) error {
	if h.minLevel <= slog.LevelDebug || isSupervisorFrame(record.PC) {
		return h.handler.Handle(ctx, record)
	}
	return nil
}

func (h *filteringHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &filteringHandler{handler: h.handler.WithAttrs(attrs), minLevel: h.minLevel}
}

func (h *filteringHandler) WithGroup(name string) slog.Handler {
	return &filteringHandler{handler: h.handler.WithGroup(name), minLevel: h.minLevel}
}

func isSupervisorFrame(pc uintptr) bool {
	if pc == 0 {
		return false
	}
	fn := frameFuncName(pc)
	return strings.Contains(fn, supervisorPackagePrefix)
}

// simpleTextHandler renders only level + message + attrs, one line per
// record, matching the teacher's non-terminal "simple" format.
type simpleTextHandler struct {
	writer io.Writer
}

func (h *simpleTextHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h *simpleTextHandler) Handle(ctx context.Context, record slog.Record) error {
	var b strings.Builder
	levelStr := record.Level.String()
	if levelStr == "WARNING" {
		levelStr = "WARN"
	}
	b.WriteString(strings.ToUpper(levelStr))
	b.WriteString(" ")
	b.WriteString(record.Message)
	record.Attrs(func(a slog.Attr) bool {
		b.WriteString(" ")
		b.WriteString(a.Key)
		b.WriteString("=")
		b.WriteString(a.Value.String())
		return true
	})
	b.WriteString("\n")
	_, err := h.writer.Write([]byte(b.String()))
	return err
}

func (h *simpleTextHandler) WithAttrs([]slog.Attr) slog.Handler { return h }
func (h *simpleTextHandler) WithGroup(string) slog.Handler      { return h }
