// Package logger is the structured logging facade used across the waterfall
// service. It wraps log/slog with text, JSON and tint handlers, a process-wide
// level and fields carried on a context.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/lmittmann/tint"
)

// callerSkip is the stack depth from caller() up to the code that logged:
// caller -> slogLogger.log -> Info/Warn/... -> call site.
const callerSkip = 3

// Logger is the logging interface the service depends on.
type Logger interface {
	Info(ctx context.Context, msg string, fields ...Field)
	Error(ctx context.Context, msg string, fields ...Field)
	Debug(ctx context.Context, msg string, fields ...Field)
	Warn(ctx context.Context, msg string, fields ...Field)
	// Fatal logs at error level and exits the process.
	Fatal(ctx context.Context, msg string, fields ...Field)

	// Named nests later fields under name.
	Named(name string) Logger
	// With returns a logger that adds fields to every entry.
	With(fields ...Field) Logger
}

// Field is one structured key and value.
type Field struct {
	Key   string
	Value interface{}
}

// Field constructors.
func String(key, val string) Field                 { return Field{Key: key, Value: val} }
func Int(key string, val int) Field                { return Field{Key: key, Value: val} }
func Bool(key string, val bool) Field              { return Field{Key: key, Value: val} }
func Float64(key string, val float64) Field        { return Field{Key: key, Value: val} }
func Duration(key string, val time.Duration) Field { return Field{Key: key, Value: val} }
func Any(key string, val interface{}) Field        { return Field{Key: key, Value: val} }
func Error(err error) Field                        { return Field{Key: "error", Value: err} }

// ProjectID and RunID use the keys every component logs waterfall work under.
func ProjectID(id string) Field { return String("projectID", id) }
func RunID(id string) Field     { return String("runID", id) }

type ctxFieldsKey struct{}

// ContextWith returns ctx carrying fields in addition to any it already
// holds. Loggers append them to every entry logged with that context.
func ContextWith(ctx context.Context, fields ...Field) context.Context {
	if len(fields) == 0 {
		return ctx
	}
	prev := FieldsFrom(ctx)
	merged := make([]Field, 0, len(prev)+len(fields))
	merged = append(merged, prev...)
	merged = append(merged, fields...)
	return context.WithValue(ctx, ctxFieldsKey{}, merged)
}

// FieldsFrom returns the fields attached to ctx by ContextWith.
func FieldsFrom(ctx context.Context) []Field {
	if ctx == nil {
		return nil
	}
	fields, _ := ctx.Value(ctxFieldsKey{}).([]Field)
	return fields
}

type slogLogger struct {
	sl *slog.Logger
}

func (l *slogLogger) Named(name string) Logger {
	return &slogLogger{sl: l.sl.WithGroup(name)}
}

func (l *slogLogger) With(fields ...Field) Logger {
	args := make([]any, len(fields))
	for i, a := range toAttrs(fields, nil) {
		args[i] = a
	}
	return &slogLogger{sl: l.sl.With(args...)}
}

func (l *slogLogger) Info(ctx context.Context, msg string, fields ...Field) {
	l.log(ctx, slog.LevelInfo, msg, fields)
}

func (l *slogLogger) Error(ctx context.Context, msg string, fields ...Field) {
	l.log(ctx, slog.LevelError, msg, fields)
}

func (l *slogLogger) Debug(ctx context.Context, msg string, fields ...Field) {
	l.log(ctx, slog.LevelDebug, msg, fields)
}

func (l *slogLogger) Warn(ctx context.Context, msg string, fields ...Field) {
	l.log(ctx, slog.LevelWarn, msg, fields)
}

func (l *slogLogger) Fatal(ctx context.Context, msg string, fields ...Field) {
	l.log(ctx, slog.LevelError, msg, fields)
	os.Exit(1)
}

func (l *slogLogger) log(ctx context.Context, level slog.Level, msg string, fields []Field) {
	if ctx == nil {
		ctx = context.Background()
	}
	if !l.sl.Enabled(ctx, level) {
		return
	}
	attrs := toAttrs(fields, FieldsFrom(ctx))
	attrs = append(attrs, slog.String("source", caller()))
	l.sl.LogAttrs(ctx, level, msg, attrs...)
}

// toAttrs puts context fields first. An explicit field replaces a context
// field with the same key.
func toAttrs(fields, fromCtx []Field) []slog.Attr {
	attrs := make([]slog.Attr, 0, len(fields)+len(fromCtx)+1)
	for _, f := range fromCtx {
		if hasKey(fields, f.Key) {
			continue
		}
		attrs = append(attrs, slog.Any(f.Key, f.Value))
	}
	for _, f := range fields {
		attrs = append(attrs, slog.Any(f.Key, f.Value))
	}
	return attrs
}

func hasKey(fields []Field, key string) bool {
	for _, f := range fields {
		if f.Key == key {
			return true
		}
	}
	return false
}

var (
	global   Logger
	levelVar slog.LevelVar
)

// Output formats accepted by InitWithFormat.
const (
	FormatText = "text"
	FormatJSON = "json"
	FormatTint = "tint"
)

// Init installs a text logger on stdout.
func Init() error {
	return InitWithFormat(FormatText, os.Stdout)
}

// InitWithFormat installs the global logger writing format to w. An empty
// format selects text and a nil writer selects stdout. The level resets to
// info.
func InitWithFormat(format string, w io.Writer) error {
	if w == nil {
		w = os.Stdout
	}
	h, err := newHandler(format, w)
	if err != nil {
		return err
	}
	levelVar.Set(slog.LevelInfo)
	global = &slogLogger{sl: slog.New(h)}
	return nil
}

func newHandler(format string, w io.Writer) (slog.Handler, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", FormatText:
		return slog.NewTextHandler(w, &slog.HandlerOptions{Level: &levelVar}), nil
	case FormatJSON:
		return slog.NewJSONHandler(w, &slog.HandlerOptions{Level: &levelVar}), nil
	case FormatTint:
		return tint.NewHandler(w, &tint.Options{Level: &levelVar, TimeFormat: time.RFC3339}), nil
	default:
		return nil, fmt.Errorf("unknown log format: %s", format)
	}
}

var workDir = sync.OnceValue(func() string { //nolint:gochecknoglobals // resolved once
	wd, err := os.Getwd()
	if err != nil {
		return ""
	}
	return wd
})

// caller reports the logging call site as a path relative to the working
// directory, falling back to the bare file name.
func caller() string {
	_, file, line, ok := runtime.Caller(callerSkip)
	if !ok {
		return "unknown:0"
	}
	if wd := workDir(); wd != "" {
		if rel, err := filepath.Rel(wd, file); err == nil {
			return fmt.Sprintf("%s:%d", rel, line)
		}
	}
	return fmt.Sprintf("%s:%d", filepath.Base(file), line)
}

// Get returns the global logger. It panics before Init.
func Get() Logger {
	if global == nil {
		panic("logger not initialized: call logger.Init first")
	}
	return global
}

// Named is shorthand for Get().Named(name).
func Named(name string) Logger {
	return Get().Named(name)
}

// Sync exists for callers that defer a flush. slog handlers write through.
func Sync() error {
	return nil
}

// SetLevel sets the minimum level of every logger.
func SetLevel(level slog.Level) { levelVar.Set(level) }

// SetLevelString parses debug, info, warn, warning or error, ignoring case.
// Empty means info.
func SetLevelString(level string) error {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		SetLevel(slog.LevelDebug)
	case "", "info":
		SetLevel(slog.LevelInfo)
	case "warn", "warning":
		SetLevel(slog.LevelWarn)
	case "error":
		SetLevel(slog.LevelError)
	default:
		return fmt.Errorf("unknown log level: %s", level)
	}
	return nil
}
