// Package logging provides structured logging with event/trace correlation,
// adapted from the teacher's infrastructure/logging package.
package logging

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// ContextKey is the type for context keys carried through ingestion.
type ContextKey string

const (
	// EventHashKey is the context key for the anchored event's content hash.
	EventHashKey ContextKey = "event_hash"
	// ComponentKey is the context key for the active engine name.
	ComponentKey ContextKey = "component"
)

// Logger wraps logrus.Logger with event-correlated helpers.
type Logger struct {
	*logrus.Logger
	component string
}

// New creates a Logger for the given component ("identity", "project", ...).
func New(component, level, format string) *Logger {
	l := logrus.New()

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	l.SetLevel(lvl)

	if strings.EqualFold(format, "text") {
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, TimestampFormat: time.RFC3339})
	} else {
		l.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339Nano,
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime:  "timestamp",
				logrus.FieldKeyLevel: "level",
				logrus.FieldKeyMsg:   "message",
			},
		})
	}
	l.SetOutput(os.Stdout)

	return &Logger{Logger: l, component: component}
}

// NewFromEnv builds a Logger using LOG_LEVEL/LOG_FORMAT, defaulting to
// info/json, matching the teacher's NewFromEnv convention.
func NewFromEnv(component string) *Logger {
	level := strings.TrimSpace(os.Getenv("LOG_LEVEL"))
	if level == "" {
		level = "info"
	}
	format := strings.TrimSpace(os.Getenv("LOG_FORMAT"))
	if format == "" {
		format = "json"
	}
	return New(component, level, format)
}

// WithContext returns a log entry carrying the component name plus any
// event hash found on ctx.
func (l *Logger) WithContext(ctx context.Context) *logrus.Entry {
	entry := l.Logger.WithField("component", l.component)
	if h, ok := ctx.Value(EventHashKey).(string); ok && h != "" {
		entry = entry.WithField("event_hash", h)
	}
	return entry
}

// WithEventHash annotates ctx with an event hash for downstream logging.
func WithEventHash(ctx context.Context, hash string) context.Context {
	return context.WithValue(ctx, EventHashKey, hash)
}
