// wxlog/log.go
// Copyright(c) 2022-2025 vice contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

// Package wxlog provides the structured logger used throughout the
// service: a slog.Logger that fans out to a rotating on-disk JSON file
// and a stderr text handler for warnings and above.
package wxlog

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime/debug"
	"slices"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

type Logger struct {
	*slog.Logger
	LogFile string
	LogDir  string
	Start   time.Time
}

// New creates a Logger that writes JSON records to dir/avmrms.log (rotated
// via lumberjack) and text records for level >= warn to stderr.
func New(level string, dir string) *Logger {
	if dir == "" {
		dir = "avmrms-logs"
	}

	w := &lumberjack.Logger{
		Filename: filepath.Join(dir, "avmrms.log"),
		MaxSize:  64, // MB
		MaxAge:   14,
		Compress: true,
	}

	lvl := slog.LevelInfo
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "info":
		lvl = slog.LevelInfo
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		if level != "" {
			fmt.Fprintf(os.Stderr, "%s: invalid log level, defaulting to info\n", level)
		}
	}

	h := newHandler(w, &slog.HandlerOptions{Level: lvl})
	l := &Logger{
		Logger:  slog.New(h),
		LogFile: w.Filename,
		LogDir:  dir,
		Start:   time.Now(),
	}

	l.Info("starting", slog.Time("start", l.Start))
	return l
}

func (l *Logger) Infof(msg string, args ...any) {
	if l != nil {
		l.Logger.Info(fmt.Sprintf(msg, args...))
	}
}

func (l *Logger) Warnf(msg string, args ...any) {
	if l == nil {
		slog.Warn(fmt.Sprintf(msg, args...))
		return
	}
	l.Logger.Warn(fmt.Sprintf(msg, args...))
}

func (l *Logger) Errorf(msg string, args ...any) {
	if l == nil {
		slog.Error(fmt.Sprintf(msg, args...))
		return
	}
	l.Logger.Error(fmt.Sprintf(msg, args...))
}

// CatchAndLogCrash recovers a panic, logs its stack trace, and writes a
// crash report file under LogDir. It returns the recovered value, if any,
// so callers can choose to re-panic after cleanup. It must be called
// directly by a deferred function for recover() to take effect (see
// LogCrash for callers, such as per-request middleware, that already
// called recover() themselves and just need the logging/report side).
func (l *Logger) CatchAndLogCrash() any {
	err := recover()
	if err == nil {
		return nil
	}
	l.LogCrash(err)
	return err
}

// LogCrash logs a recovered panic value's stack trace and writes a crash
// report file under LogDir. Unlike CatchAndLogCrash, it does not call
// recover() itself, so it's safe to call from a closure that isn't the
// directly-deferred function (recover() only works there).
func (l *Logger) LogCrash(err any) {
	l.Errorf("panic: %v", err)

	report := fmt.Sprintf("panic: %v\n\n%s", err, string(debug.Stack()))
	fmt.Fprintln(os.Stderr, report)

	if l.LogDir != "" {
		fn := filepath.Join(l.LogDir, "crash-"+time.Now().Format(time.RFC3339)+".txt")
		_ = os.WriteFile(fn, []byte(report), 0o600)
	}
}

///////////////////////////////////////////////////////////////////////////

// handler fans log records out to a JSON handler (for the rotated file)
// and a text handler (for stderr, warnings and up only).
type handler struct {
	json slog.Handler
	txt  slog.Handler
}

func newHandler(w io.Writer, opts *slog.HandlerOptions) *handler {
	return &handler{
		json: slog.NewJSONHandler(w, opts),
		txt:  slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}),
	}
}

func (h *handler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.json.Enabled(ctx, level) || h.txt.Enabled(ctx, level)
}

func (h *handler) Handle(ctx context.Context, rec slog.Record) error {
	if h.txt.Enabled(ctx, rec.Level) {
		_ = h.txt.Handle(ctx, rec)
	}
	if h.json.Enabled(ctx, rec.Level) {
		return h.json.Handle(ctx, rec)
	}
	return nil
}

func (h *handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &handler{
		json: h.json.WithAttrs(slices.Clone(attrs)),
		txt:  h.txt.WithAttrs(slices.Clone(attrs)),
	}
}

func (h *handler) WithGroup(name string) slog.Handler {
	return &handler{
		json: h.json.WithGroup(name),
		txt:  h.txt.WithGroup(name),
	}
}
