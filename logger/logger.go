package logger

import (
	"os"
	"strings"
)

// LogLevel defines the level of logging
type LogLevel int

const (
	LevelTrace LogLevel = iota
	LevelDebug
	LevelInfo
	LevelWarn
	LevelError
	LevelNone
)

func (l LogLevel) String() string {
	switch l {
	case LevelTrace:
		return "TRACE"
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	}
	return "NONE"
}

// ParseLevel converts a level name into a LogLevel. Unknown names
// default to LevelInfo.
func ParseLevel(s string) LogLevel {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return LevelTrace
	case "debug":
		return LevelDebug
	case "info":
		return LevelInfo
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	case "none", "off":
		return LevelNone
	}
	return LevelInfo
}

// GetLevelFromEnv reads PLAYBACK_LOG_LEVEL and converts it into a LogLevel.
func GetLevelFromEnv() LogLevel {
	return ParseLevel(os.Getenv("PLAYBACK_LOG_LEVEL"))
}

// Logger is an interface for logging
type Logger interface {
	// With will return a new logger using metadata as the base context
	With(metadata map[string]interface{}) Logger
	// WithPrefix will return a new logger with a prefix prepended to the message
	WithPrefix(prefix string) Logger
	// Trace level logging
	Trace(msg string, args ...interface{})
	// Debug level logging
	Debug(msg string, args ...interface{})
	// Info level logging
	Info(msg string, args ...interface{})
	// Warning level logging
	Warn(msg string, args ...interface{})
	// Error level logging
	Error(msg string, args ...interface{})
	// IsLevelEnabled returns true if the given log level is enabled
	IsLevelEnabled(level LogLevel) bool
}

// Discard is a Logger that drops everything. Useful as a default when
// no logger is injected.
var Discard Logger = discardLogger{}

type discardLogger struct{}

func (discardLogger) With(map[string]interface{}) Logger { return Discard }
func (discardLogger) WithPrefix(string) Logger           { return Discard }
func (discardLogger) Trace(string, ...interface{})       {}
func (discardLogger) Debug(string, ...interface{})       {}
func (discardLogger) Info(string, ...interface{})        {}
func (discardLogger) Warn(string, ...interface{})        {}
func (discardLogger) Error(string, ...interface{})       {}
func (discardLogger) IsLevelEnabled(LogLevel) bool       { return false }
