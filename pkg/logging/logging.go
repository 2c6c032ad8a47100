// Package logging is the orchestration core's structured logger, grounded
// on the teacher's infrastructure/logging package (trace-ID-aware logrus
// wrapper). It adds two things the teacher's logger didn't need: PII
// redaction of logged field values (reusing pkg/redact, since event
// payloads routinely flow into log fields) and a rate limiter that caps
// low-severity log volume under load, counted via pkg/metrics.LogsDropped
// so a noisy integration can't drown the log stream.
package logging

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/R3E-Network/automation-core/pkg/metrics"
	"github.com/R3E-Network/automation-core/pkg/redact"
)

type ctxKey string

const (
	traceIDKey ctxKey = "trace_id"
	tenantIDKey ctxKey = "tenant_id"
)

// Logger wraps logrus.Logger with trace/tenant context propagation, field
// redaction, and rate-limited low-severity output.
type Logger struct {
	*logrus.Logger
	service string
	// limiter bounds Debug/Info volume; Warn/Error/Fatal are never dropped.
	limiter *rate.Limiter
}

// New builds a Logger for service at the given level ("debug".."fatal")
// and format ("json" or "text").
func New(service, level, format string) *Logger {
	base := logrus.New()

	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		parsed = logrus.InfoLevel
	}
	base.SetLevel(parsed)

	if strings.EqualFold(format, "json") {
		base.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339Nano,
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime:  "timestamp",
				logrus.FieldKeyLevel: "level",
				logrus.FieldKeyMsg:   "message",
			},
		})
	} else {
		base.SetFormatter(&logrus.TextFormatter{
			TimestampFormat: time.RFC3339,
			FullTimestamp:   true,
		})
	}
	base.SetOutput(os.Stdout)

	return &Logger{
		Logger:  base,
		service: service,
		limiter: rate.NewLimiter(rate.Limit(200), 400),
	}
}

// NewFromEnv builds a Logger from LOG_LEVEL/LOG_FORMAT, defaulting to
// info/json for unattended deployments.
func NewFromEnv(service string) *Logger {
	level := strings.TrimSpace(os.Getenv("LOG_LEVEL"))
	if level == "" {
		level = "info"
	}
	format := strings.TrimSpace(os.Getenv("LOG_FORMAT"))
	if format == "" {
		format = "json"
	}
	return New(service, level, format)
}

// SetRateLimit overrides the default low-severity rate limit (events/sec,
// burst). Intended for tests and for adaptive tuning under sustained load.
func (l *Logger) SetRateLimit(perSecond float64, burst int) {
	l.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
}

// NewTraceID mints a correlation ID for a request or event-processing run.
func NewTraceID() string { return uuid.New().String() }

// WithTraceID attaches a trace ID to ctx.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey, traceID)
}

// TraceID reads the trace ID from ctx, if any.
func TraceID(ctx context.Context) string {
	v, _ := ctx.Value(traceIDKey).(string)
	return v
}

// WithTenantID attaches a tenant ID to ctx.
func WithTenantID(ctx context.Context, tenantID string) context.Context {
	return context.WithValue(ctx, tenantIDKey, tenantID)
}

// TenantID reads the tenant ID from ctx, if any.
func TenantID(ctx context.Context) string {
	v, _ := ctx.Value(tenantIDKey).(string)
	return v
}

// entry builds the base logrus.Entry carrying service + context identity.
func (l *Logger) entry(ctx context.Context) *logrus.Entry {
	e := l.Logger.WithField("service", l.service)
	if ctx == nil {
		return e
	}
	if traceID := TraceID(ctx); traceID != "" {
		e = e.WithField("trace_id", traceID)
	}
	if tenantID := TenantID(ctx); tenantID != "" {
		e = e.WithField("tenant_id", tenantID)
	}
	return e
}

// redactFields runs every field value through pkg/redact so secrets and PII
// never reach the log sink, even when a caller logs a raw event payload.
func redactFields(fields map[string]any) logrus.Fields {
	out := make(logrus.Fields, len(fields))
	for k, v := range fields {
		out[k] = redact.RedactValue(v)
	}
	return out
}

// allow reports whether a Debug/Info record may proceed; Warn and above
// always proceed. Drops increment metrics.LogsDropped rather than silently
// vanishing.
func (l *Logger) allow(level logrus.Level) bool {
	if level <= logrus.WarnLevel {
		return true
	}
	if l.limiter == nil || l.limiter.Allow() {
		return true
	}
	metrics.LogsDropped.WithLabelValues(strings.ToLower(level.String())).Inc()
	return false
}

// Debug logs a debug-level record with context and redacted fields.
func (l *Logger) Debug(ctx context.Context, message string, fields map[string]any) {
	if !l.allow(logrus.DebugLevel) {
		return
	}
	l.entry(ctx).WithFields(redactFields(fields)).Debug(message)
}

// Info logs an info-level record with context and redacted fields.
func (l *Logger) Info(ctx context.Context, message string, fields map[string]any) {
	if !l.allow(logrus.InfoLevel) {
		return
	}
	l.entry(ctx).WithFields(redactFields(fields)).Info(message)
}

// Warn logs a warn-level record with context and redacted fields.
func (l *Logger) Warn(ctx context.Context, message string, fields map[string]any) {
	l.entry(ctx).WithFields(redactFields(fields)).Warn(message)
}

// Error logs an error-level record with context, the error itself
// (message only, not value-redacted since it is not a field map), and
// redacted fields.
func (l *Logger) Error(ctx context.Context, message string, err error, fields map[string]any) {
	e := l.entry(ctx).WithFields(redactFields(fields))
	if err != nil {
		e = e.WithField("error", redact.RedactErrorStack(err.Error()))
	}
	e.Error(message)
}

// WithError mirrors logrus's common call shape for call sites ported from
// the teacher that expect *logrus.Entry directly.
func (l *Logger) WithError(err error) *logrus.Entry {
	return l.Logger.WithField("service", l.service).WithField("error", redact.RedactErrorStack(err.Error()))
}
