// Package log provides the category-tagged logger used throughout the
// frame coordination core.
package log

import (
	"context"
	"io"

	"github.com/sirupsen/logrus"
)

// Logger wraps a logrus.Logger with a per-call category tag, mirroring how
// the browser-automation core tags its debug output with the originating
// component (e.g. "Frame:goto", "FrameManager:frameAttached").
type Logger struct {
	log   *logrus.Logger
	debug bool
}

// New creates a Logger that writes to out at the given level. Pass
// debug=true to enable Debugf output regardless of level, the same toggle
// used for verbose CDP tracing.
func New(out io.Writer, level logrus.Level, debug bool) *Logger {
	l := logrus.New()
	l.SetOutput(out)
	l.SetLevel(level)
	if debug && level < logrus.DebugLevel {
		// logrus drops entries above the logger's level, so debug tracing
		// has to raise the level for Debugf output to reach out.
		l.SetLevel(logrus.DebugLevel)
	}
	return &Logger{log: l, debug: debug}
}

// NullLogger returns a Logger that discards everything; tests use it to
// silence category output.
func NullLogger() *Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return &Logger{log: l}
}

// NewNullLogger is an alias for NullLogger.
func NewNullLogger() *Logger { return NullLogger() }

// Debugf logs a debug-level message tagged with category. It is a no-op
// unless debug tracing is enabled or the underlying level permits it.
func (l *Logger) Debugf(category, format string, args ...interface{}) {
	if l == nil || l.log == nil {
		return
	}
	if !l.debug && l.log.GetLevel() < logrus.DebugLevel {
		return
	}
	l.log.WithField("category", category).Debugf(format, args...)
}

// Errorf logs an error-level message tagged with category.
func (l *Logger) Errorf(category, format string, args ...interface{}) {
	if l == nil || l.log == nil {
		return
	}
	l.log.WithField("category", category).Errorf(format, args...)
}

// WithField returns a contextual field logger for richer call sites
// (console message routing, lifecycle notifications).
func (l *Logger) WithField(key string, value interface{}) *logrus.Entry {
	if l == nil || l.log == nil {
		return logrus.NewEntry(logrus.New())
	}
	return l.log.WithField(key, value)
}

// SetCtx allows callers to thread a request-scoped context through the
// logger for cancellation-aware field enrichment; kept as a no-op hook
// point since the core funnels everything through a single executor
// and has no per-goroutine logging context to merge in.
func (l *Logger) SetCtx(_ context.Context) {}
