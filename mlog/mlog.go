// Package mlog is melvin's structured-logging wrapper: a thin,
// concurrency-safe shim over logrus, adapted from the teacher's
// lxd-export/core/logger.SafeLogger (itself a file-backed logrus wrapper)
// to log to any io.Writer — stderr by default, since a library has no
// business picking a log file path for its caller.
package mlog

import (
	"io"
	"os"
	"sync"

	"github.com/sirupsen/logrus"
)

// Logger is a concurrency-safe logrus wrapper. The zero value is not
// usable; construct with New.
type Logger struct {
	logger *logrus.Logger
	mu     sync.Mutex
}

// New returns a Logger writing formatted entries to w.
func New(w io.Writer) *Logger {
	logger := logrus.New()
	logger.SetOutput(w)
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	return &Logger{logger: logger}
}

// Default is the package-level logger melvin's own packages log through
// (currently only scan). It writes to
// stderr, matching the teacher's convention of a sane, overridable
// default rather than silence.
var Default = New(os.Stderr)

// Log emits msg at level with the given structured fields.
func (l *Logger) Log(level logrus.Level, msg string, fields logrus.Fields) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.logger.WithFields(fields).Log(level, msg)
}

func (l *Logger) Debug(msg string, fields logrus.Fields) { l.Log(logrus.DebugLevel, msg, fields) }
func (l *Logger) Info(msg string, fields logrus.Fields)  { l.Log(logrus.InfoLevel, msg, fields) }
func (l *Logger) Warn(msg string, fields logrus.Fields)  { l.Log(logrus.WarnLevel, msg, fields) }
func (l *Logger) Error(msg string, fields logrus.Fields) { l.Log(logrus.ErrorLevel, msg, fields) }
