// Package logger provides a process-wide structured logger built on
// log/slog, matching the singleton pattern and leveled helper API the rest
// of the codebase expects.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync/atomic"
)

var singleton atomic.Pointer[slog.Logger]

// EnvReader abstracts environment variable lookup so callers can inject a
// fake environment in tests instead of depending on process-global state.
type EnvReader interface {
	Getenv(key string) string
}

type osEnvReader struct{}

func (osEnvReader) Getenv(key string) string { return os.Getenv(key) }

// OSEnv is the default EnvReader, backed by os.Getenv.
var OSEnv EnvReader = osEnvReader{}

// Initialize wires the process-wide logger, writing to w at the given
// level. A human-readable text handler is used unless UNSTRUCTURED_LOGS is
// set to "false", in which case structured (JSON) output is used instead.
func Initialize(w io.Writer, level slog.Level, env EnvReader) {
	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: level}
	if unstructuredLogsWithEnv(env) {
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}
	singleton.Store(slog.New(handler))
}

// unstructuredLogsWithEnv reports whether UNSTRUCTURED_LOGS is enabled.
// Default true; only an explicit "false" disables it, and any other value
// (including unparsable ones) is treated as enabled.
func unstructuredLogsWithEnv(env EnvReader) bool {
	if env == nil {
		env = OSEnv
	}
	v := env.Getenv("UNSTRUCTURED_LOGS")
	return v != "false"
}

func get() *slog.Logger {
	if l := singleton.Load(); l != nil {
		return l
	}
	fallback := slog.New(slog.NewTextHandler(os.Stderr, nil))
	singleton.CompareAndSwap(nil, fallback)
	return singleton.Load()
}

// L returns the process-wide logger, initializing a stderr fallback if
// Initialize was never called.
func L() *slog.Logger { return get() }

func Debug(msg string, args ...any)  { get().Debug(msg, args...) }
func Debugf(format string, args ...any) { get().Debug(fmt.Sprintf(format, args...)) }
func Debugw(msg string, kv ...any)   { get().Debug(msg, kv...) }

func Info(msg string, args ...any)  { get().Info(msg, args...) }
func Infof(format string, args ...any) { get().Info(fmt.Sprintf(format, args...)) }
func Infow(msg string, kv ...any)   { get().Info(msg, kv...) }

func Warn(msg string, args ...any)  { get().Warn(msg, args...) }
func Warnf(format string, args ...any) { get().Warn(fmt.Sprintf(format, args...)) }
func Warnw(msg string, kv ...any)   { get().Warn(msg, kv...) }

func Error(msg string, args ...any)  { get().Error(msg, args...) }
func Errorf(format string, args ...any) { get().Error(fmt.Sprintf(format, args...)) }
func Errorw(msg string, kv ...any)   { get().Error(msg, kv...) }

// DPanic logs at error level then panics. It is reserved for invariant
// violations that should fail loudly in development but are logged (not
// silently dropped) in case recover() is in play further up the stack.
func DPanic(msg string, args ...any) {
	get().Error(msg, args...)
	panic(msg)
}

func DPanicf(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	get().Error(msg)
	panic(msg)
}

func DPanicw(msg string, kv ...any) {
	get().Error(msg, kv...)
	panic(msg)
}

// WithContext returns l unchanged; it exists as a seam so callers can later
// thread request-scoped fields (trace id, session id) through context
// without changing call sites.
func WithContext(_ context.Context, l *slog.Logger) *slog.Logger {
	if l == nil {
		return get()
	}
	return l
}
