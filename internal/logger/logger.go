// Package logger wraps log/slog with a process-wide logger and helpers for
// fields that travel on a context (request id, authenticated wallet).
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

type fieldsKey struct{}

// fields are attached to every record logged through WithContext.
type fields struct {
	requestID string
	wallet    string
}

var (
	mu      sync.RWMutex
	current *slog.Logger
	level   = new(slog.LevelVar)
)

// Init configures the global logger on stdout.
func Init(lvl string, json bool) {
	InitWriter(os.Stdout, lvl, json)
}

// InitWriter is Init with an explicit destination; the client CLI logs to stderr.
func InitWriter(w io.Writer, lvl string, json bool) {
	SetLevel(lvl)
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler = slog.NewTextHandler(w, opts)
	if json {
		handler = slog.NewJSONHandler(w, opts)
	}

	l := slog.New(handler)
	mu.Lock()
	current = l
	mu.Unlock()
	slog.SetDefault(l)
}

// SetLevel changes the level of the running logger. Unknown names mean info.
func SetLevel(lvl string) {
	var parsed slog.Level
	name := strings.ToLower(strings.TrimSpace(lvl))
	if name == "warning" {
		name = "warn"
	}
	if err := parsed.UnmarshalText([]byte(name)); err != nil {
		parsed = slog.LevelInfo
	}
	level.Set(parsed)
}

// Get returns the global logger, creating an info-level text logger on first use.
func Get() *slog.Logger {
	mu.RLock()
	l := current
	mu.RUnlock()
	if l == nil {
		Init("info", false)
		return Get()
	}
	return l
}

// Component returns a logger tagged with the subsystem name.
func Component(name string, args ...any) *slog.Logger {
	return Get().With(append([]any{"component", name}, args...)...)
}

func fromContext(ctx context.Context) fields {
	if ctx == nil {
		return fields{}
	}
	f, _ := ctx.Value(fieldsKey{}).(fields)
	return f
}

// ContextWithRequestID stores a request id that WithContext attaches to every record.
func ContextWithRequestID(ctx context.Context, requestID string) context.Context {
	f := fromContext(ctx)
	f.requestID = requestID
	return context.WithValue(ctx, fieldsKey{}, f)
}

// ContextWithWallet records the authenticated wallet for WithContext.
func ContextWithWallet(ctx context.Context, wallet string) context.Context {
	f := fromContext(ctx)
	f.wallet = wallet
	return context.WithValue(ctx, fieldsKey{}, f)
}

// RequestID returns the request id stored in ctx, if any.
func RequestID(ctx context.Context) string {
	return fromContext(ctx).requestID
}

// WithContext returns the global logger with the context's fields attached.
func WithContext(ctx context.Context) *slog.Logger {
	f := fromContext(ctx)
	l := Get()
	if f.requestID != "" {
		l = l.With("request_id", f.requestID)
	}
	if f.wallet != "" {
		l = l.With("wallet", f.wallet)
	}
	return l
}

func Info(msg string, args ...any)  { Get().Info(msg, args...) }
func Debug(msg string, args ...any) { Get().Debug(msg, args...) }
func Warn(msg string, args ...any)  { Get().Warn(msg, args...) }
func Error(msg string, args ...any) { Get().Error(msg, args...) }

// Fatal logs at error level and exits.
func Fatal(msg string, args ...any) {
	Get().Error(msg, args...)
	os.Exit(1)
}

// With returns the global logger with the given attributes.
func With(args ...any) *slog.Logger {
	return Get().With(args...)
}
