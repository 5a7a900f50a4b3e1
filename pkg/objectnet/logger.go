package objectnet

import (
	"github.com/sirupsen/logrus"

	"objectnet/objectnet-go/pkg/internal/logger"
)

// Logger is the logging interface accepted by channels, transports and
// relay sessions
type Logger = logger.Logger

// LogLevel represents logging level
type LogLevel int

const (
	// LevelDebug shows all log messages (most verbose)
	LevelDebug LogLevel = iota
	// LevelInfo shows info, warn, and error messages (default)
	LevelInfo
	// LevelWarn shows warn and error messages
	LevelWarn
	// LevelError shows only error messages
	LevelError
)

// SetLogLevel replaces the global logger with one at level
func SetLogLevel(level LogLevel) {
	logger.SetDefault(logger.NewDefaultLogger(logger.Level(level)))
}

// EnableFrameDebug enables or disables detailed frame debugging
// When enabled, shows hex dumps of all envelopes sent and received
func EnableFrameDebug(enable bool) {
	logger.SetFrameDebug(enable)
}

// NewLogger creates a logrus-backed logger writing to stdout
func NewLogger(level LogLevel) Logger {
	return logger.NewDefaultLogger(logger.Level(level))
}

// NewLogrusLogger adopts an application's logrus entry
func NewLogrusLogger(entry *logrus.Entry) Logger {
	return logger.NewLogrusLogger(entry)
}

// DefaultLogger returns the global logger
func DefaultLogger() Logger {
	return logger.GetDefault()
}
