package logger

import (
	"fmt"
	"os"
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

// Level represents logging level
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// String returns string representation of Level
func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

func (l Level) logrus() logrus.Level {
	switch l {
	case LevelDebug:
		return logrus.DebugLevel
	case LevelWarn:
		return logrus.WarnLevel
	case LevelError:
		return logrus.ErrorLevel
	default:
		return logrus.InfoLevel
	}
}

// Logger is the interface for logging
type Logger interface {
	Debug(format string, args ...interface{})
	Info(format string, args ...interface{})
	Warn(format string, args ...interface{})
	Error(format string, args ...interface{})
	WithField(key string, value interface{}) Logger
	SetLevel(level Level)
}

// DefaultLogger writes through a logrus entry
type DefaultLogger struct {
	entry *logrus.Entry
}

// NewDefaultLogger creates a new default logger writing to stdout
func NewDefaultLogger(level Level) *DefaultLogger {
	l := logrus.New()
	l.SetOutput(os.Stdout)
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	l.SetLevel(level.logrus())
	return &DefaultLogger{entry: logrus.NewEntry(l)}
}

// NewLogrusLogger adopts an existing logrus entry
func NewLogrusLogger(entry *logrus.Entry) *DefaultLogger {
	if entry == nil {
		entry = logrus.NewEntry(logrus.StandardLogger())
	}
	return &DefaultLogger{entry: entry}
}

// Entry exposes the underlying logrus entry
func (l *DefaultLogger) Entry() *logrus.Entry {
	return l.entry
}

// Debug logs debug message
func (l *DefaultLogger) Debug(format string, args ...interface{}) {
	l.entry.Debugf(format, args...)
}

// Info logs info message
func (l *DefaultLogger) Info(format string, args ...interface{}) {
	l.entry.Infof(format, args...)
}

// Warn logs warning message
func (l *DefaultLogger) Warn(format string, args ...interface{}) {
	l.entry.Warnf(format, args...)
}

// Error logs error message
func (l *DefaultLogger) Error(format string, args ...interface{}) {
	l.entry.Errorf(format, args...)
}

// WithField returns a logger carrying an extra structured field
func (l *DefaultLogger) WithField(key string, value interface{}) Logger {
	return &DefaultLogger{entry: l.entry.WithField(key, value)}
}

// SetLevel sets the logging level
func (l *DefaultLogger) SetLevel(level Level) {
	l.entry.Logger.SetLevel(level.logrus())
}

// NoOpLogger is a logger that doesn't log anything
type NoOpLogger struct{}

// NewNoOpLogger creates a logger that doesn't log
func NewNoOpLogger() *NoOpLogger {
	return &NoOpLogger{}
}

// Debug does nothing
func (l *NoOpLogger) Debug(format string, args ...interface{}) {}

// Info does nothing
func (l *NoOpLogger) Info(format string, args ...interface{}) {}

// Warn does nothing
func (l *NoOpLogger) Warn(format string, args ...interface{}) {}

// Error does nothing
func (l *NoOpLogger) Error(format string, args ...interface{}) {}

// WithField returns the same no-op logger
func (l *NoOpLogger) WithField(key string, value interface{}) Logger { return l }

// SetLevel does nothing
func (l *NoOpLogger) SetLevel(level Level) {}

// Global default logger
var defaultLogger atomic.Value

func init() {
	defaultLogger.Store(loggerBox{NewDefaultLogger(LevelInfo)})
}

// loggerBox keeps atomic.Value stores on one concrete type.
type loggerBox struct{ Logger }

// SetDefault sets the default logger
func SetDefault(logger Logger) {
	if logger == nil {
		logger = NewNoOpLogger()
	}
	defaultLogger.Store(loggerBox{logger})
}

// GetDefault returns the default logger
func GetDefault() Logger {
	return defaultLogger.Load().(loggerBox).Logger
}

// OrNoOp returns log, or a no-op logger when log is nil
func OrNoOp(log Logger) Logger {
	if log == nil {
		return NewNoOpLogger()
	}
	return log
}

var frameDebug atomic.Bool

// SetFrameDebug toggles hex dumps of every envelope sent and received
func SetFrameDebug(enable bool) {
	frameDebug.Store(enable)
}

// FrameDebugEnabled reports whether frame dumps are on
func FrameDebugEnabled() bool {
	return frameDebug.Load()
}

// Helper functions using default logger

// Debug logs debug message using default logger
func Debug(format string, args ...interface{}) {
	GetDefault().Debug(format, args...)
}

// Info logs info message using default logger
func Info(format string, args ...interface{}) {
	GetDefault().Info(format, args...)
}

// Warn logs warning message using default logger
func Warn(format string, args ...interface{}) {
	GetDefault().Warn(format, args...)
}

// Error logs error message using default logger
func Error(format string, args ...interface{}) {
	GetDefault().Error(format, args...)
}

// Logf is a generic logging function
func Logf(level Level, format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	switch level {
	case LevelDebug:
		GetDefault().Debug("%s", msg)
	case LevelInfo:
		GetDefault().Info("%s", msg)
	case LevelWarn:
		GetDefault().Warn("%s", msg)
	case LevelError:
		GetDefault().Error("%s", msg)
	}
}
