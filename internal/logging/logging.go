// Package logging provides structured, context-aware logging on logrus.
package logging

import (
	"context"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

type contextKey string

const (
	TraceIDKey contextKey = "trace_id"
	UserIDKey  contextKey = "user_id"
	RoleKey    contextKey = "role"
)

// Logger wraps a logrus logger bound to a service name.
type Logger struct {
	*logrus.Logger
	service string
}

var (
	defaultOnce   sync.Once
	defaultLogger *Logger
)

// New creates a logger. level is a logrus level name ("debug", "info", ...);
// format is "json" or "text".
func New(service, level, format string) *Logger {
	l := logrus.New()
	l.SetOutput(os.Stdout)

	lvl, err := logrus.ParseLevel(strings.ToLower(level))
	if err != nil {
		lvl = logrus.InfoLevel
	}
	l.SetLevel(lvl)

	if strings.EqualFold(format, "text") {
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, TimestampFormat: time.RFC3339})
	} else {
		l.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	}

	return &Logger{Logger: l, service: service}
}

// NewDiscard returns a logger that drops everything. Handy in tests.
func NewDiscard(service string) *Logger {
	l := New(service, "panic", "json")
	l.SetOutput(io.Discard)
	return l
}

// Default returns the process-wide fallback logger.
func Default() *Logger {
	defaultOnce.Do(func() {
		defaultLogger = New("npc", os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FORMAT"))
	})
	return defaultLogger
}

// Service returns the service name the logger is bound to.
func (l *Logger) Service() string {
	return l.service
}

// WithContext returns an entry carrying the trace, user and role found in ctx.
func (l *Logger) WithContext(ctx context.Context) *logrus.Entry {
	fields := logrus.Fields{"service": l.service}
	if ctx != nil {
		if traceID := GetTraceID(ctx); traceID != "" {
			fields["trace_id"] = traceID
		}
		if userID := GetUserID(ctx); userID != "" {
			fields["user_id"] = userID
		}
		if role := GetRole(ctx); role != "" {
			fields["role"] = role
		}
	}
	return l.Logger.WithFields(fields)
}

// WithFields returns an entry with the service field and the given fields.
func (l *Logger) WithFields(fields map[string]interface{}) *logrus.Entry {
	f := logrus.Fields{"service": l.service}
	for k, v := range fields {
		f[k] = v
	}
	return l.Logger.WithFields(f)
}

// Info logs msg at info level with fields attached.
func (l *Logger) Info(ctx context.Context, msg string, fields map[string]interface{}) {
	l.WithContext(ctx).WithFields(fields).Info(msg)
}

// Warn logs msg at warn level with fields attached.
func (l *Logger) Warn(ctx context.Context, msg string, fields map[string]interface{}) {
	l.WithContext(ctx).WithFields(fields).Warn(msg)
}

// Error logs msg at error level with err and fields attached.
func (l *Logger) Error(ctx context.Context, msg string, err error, fields map[string]interface{}) {
	entry := l.WithContext(ctx).WithFields(fields)
	if err != nil {
		entry = entry.WithError(err)
	}
	entry.Error(msg)
}

// LogRequest records a completed HTTP request.
func (l *Logger) LogRequest(ctx context.Context, method, path string, status int, duration time.Duration) {
	entry := l.WithContext(ctx).WithFields(logrus.Fields{
		"method":      method,
		"path":        path,
		"status":      status,
		"duration_ms": duration.Milliseconds(),
	})
	switch {
	case status >= 500:
		entry.Error("request completed")
	case status >= 400:
		entry.Warn("request completed")
	default:
		entry.Info("request completed")
	}
}

// LogSecurityEvent records an auth or abuse related event.
func (l *Logger) LogSecurityEvent(ctx context.Context, event string, fields map[string]interface{}) {
	l.WithContext(ctx).WithFields(fields).WithField("security_event", event).Warn("security event")
}

// LogLedgerCall records the outcome of a ledger transaction.
func (l *Logger) LogLedgerCall(ctx context.Context, method, txHash, outcome string, duration time.Duration) {
	l.WithContext(ctx).WithFields(logrus.Fields{
		"ledger_method": method,
		"tx_hash":       txHash,
		"outcome":       outcome,
		"duration_ms":   duration.Milliseconds(),
	}).Info("ledger call")
}

// =============================================================================
// Context helpers
// =============================================================================

// NewTraceID generates a fresh trace id.
func NewTraceID() string {
	return uuid.New().String()
}

func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, TraceIDKey, traceID)
}

func GetTraceID(ctx context.Context) string {
	v, _ := ctx.Value(TraceIDKey).(string)
	return v
}

func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, UserIDKey, userID)
}

func GetUserID(ctx context.Context) string {
	v, _ := ctx.Value(UserIDKey).(string)
	return v
}

func WithRole(ctx context.Context, role string) context.Context {
	return context.WithValue(ctx, RoleKey, role)
}

func GetRole(ctx context.Context) string {
	v, _ := ctx.Value(RoleKey).(string)
	return v
}
