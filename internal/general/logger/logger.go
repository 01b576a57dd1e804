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
)

// Logger writes single-line JSON entries:
//
//	{"timestamp","level","service","action","message","hostname","request_id","ride_id","details","error":{"msg","stack"}}
//
// A nil *Logger discards everything.
type Logger struct {
	service  string
	hostname string
	slog     *slog.Logger
}

// Options tunes a Logger. The zero value logs INFO and above to stdout.
type Options struct {
	Writer io.Writer
	Debug  bool
}

// New creates a structured logger for the given service writing to stdout.
func New(service string) *Logger {
	return NewWithOptions(service, Options{})
}

// NewWithOptions creates a structured logger with explicit output settings.
func NewWithOptions(service string, opts Options) *Logger {
	hn, err := os.Hostname()
	if err != nil || strings.TrimSpace(hn) == "" {
		hn = "unknown-hostname"
	}
	if strings.TrimSpace(service) == "" {
		service = "unknown-service"
	}
	w := opts.Writer
	if w == nil {
		w = os.Stdout
	}
	level := slog.LevelInfo
	if opts.Debug {
		level = slog.LevelDebug
	}

	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: renameKeys,
	})
	return &Logger{
		service:  service,
		hostname: hn,
		slog:     slog.New(handler).With("service", service, "hostname", hn),
	}
}

// Discard returns a logger that drops everything.
func Discard() *Logger {
	return NewWithOptions("discard", Options{Writer: io.Discard})
}

// Slog exposes the underlying slog.Logger for libraries that take one.
func (l *Logger) Slog() *slog.Logger { return l.slog }

// Debug writes a DEBUG line with optional details.
func (l *Logger) Debug(ctx context.Context, action, msg string, details any) {
	l.log(ctx, slog.LevelDebug, action, msg, nil, details)
}

// Info writes an INFO line with optional details.
func (l *Logger) Info(ctx context.Context, action, msg string, details any) {
	l.log(ctx, slog.LevelInfo, action, msg, nil, details)
}

// Warn writes a WARN line for degraded but handled conditions.
func (l *Logger) Warn(ctx context.Context, action, msg string, err error, details any) {
	l.log(ctx, slog.LevelWarn, action, msg, err, details)
}

// Error writes an ERROR line and attaches a short stack trace.
func (l *Logger) Error(ctx context.Context, action, msg string, err error, details any) {
	if err == nil {
		err = fmt.Errorf("unknown error")
	}
	l.log(ctx, slog.LevelError, action, msg, err, details)
}

func (l *Logger) log(ctx context.Context, level slog.Level, action, msg string, err error, details any) {
	if l == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if !l.slog.Enabled(ctx, level) {
		return
	}

	attrs := []any{slog.String("action", safeAction(action))}
	if id := requestID(ctx); id != "" {
		attrs = append(attrs, slog.String("request_id", id))
	}
	if id := rideID(ctx); id != "" {
		attrs = append(attrs, slog.String("ride_id", id))
	}
	if details != nil {
		attrs = append(attrs, slog.Any("details", details))
	}
	if err != nil {
		errAttrs := []any{slog.String("msg", strings.TrimSpace(err.Error()))}
		if level >= slog.LevelError {
			errAttrs = append(errAttrs, slog.String("stack", shortStack(4, 8)))
		}
		attrs = append(attrs, slog.Group("error", errAttrs...))
	}
	l.slog.Log(ctx, level, strings.TrimSpace(msg), attrs...)
}

// ------------ Context helpers -------------

type ctxKey string

const (
	ctxKeyRequestID ctxKey = "ridemarket_request_id"
	ctxKeyRideID    ctxKey = "ridemarket_ride_id"
)

// WithRequestID returns a new context carrying request_id.
func (l *Logger) WithRequestID(ctx context.Context, reqID string) context.Context {
	if strings.TrimSpace(reqID) == "" {
		return ctx
	}
	return context.WithValue(ctx, ctxKeyRequestID, reqID)
}

// WithRideID returns a new context carrying ride_id.
func (l *Logger) WithRideID(ctx context.Context, rideID string) context.Context {
	if strings.TrimSpace(rideID) == "" {
		return ctx
	}
	return context.WithValue(ctx, ctxKeyRideID, rideID)
}

func requestID(ctx context.Context) string {
	s, _ := ctx.Value(ctxKeyRequestID).(string)
	return s
}

func rideID(ctx context.Context) string {
	s, _ := ctx.Value(ctxKeyRideID).(string)
	return s
}

// ----- Small utilities -----

func renameKeys(groups []string, a slog.Attr) slog.Attr {
	if len(groups) > 0 {
		return a
	}
	switch a.Key {
	case slog.TimeKey:
		a.Key = "timestamp"
		a.Value = slog.StringValue(a.Value.Time().UTC().Format("2006-01-02T15:04:05.000Z07:00"))
	case slog.MessageKey:
		a.Key = "message"
	}
	return a
}

func safeAction(a string) string {
	a = strings.TrimSpace(a)
	if a == "" {
		return "unspecified"
	}
	return a
}

func shortStack(skip, max int) string {
	pcs := make([]uintptr, 32)
	n := runtime.Callers(skip, pcs)
	frames := runtime.CallersFrames(pcs[:n])

	var b strings.Builder
	count := 0
	for {
		f, more := frames.Next()
		if !strings.HasPrefix(f.Function, "runtime.") {
			if count > 0 {
				b.WriteString(" <- ")
			}
			fmt.Fprintf(&b, "%s:%d", filepath.Base(f.File), f.Line)
			count++
		}
		if !more || count >= max {
			break
		}
	}
	return b.String()
}
