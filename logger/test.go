package logger

import (
	"fmt"
	"strings"
	"sync"
)

// TestLogEntry is a single captured log line.
type TestLogEntry struct {
	Severity string
	Message  string
	Metadata map[string]interface{}
	Prefixes []string
}

type testSink struct {
	mu      sync.Mutex
	entries []TestLogEntry
}

// TestLogger captures log lines for assertions in tests. With and
// WithPrefix return children that share the parent's capture buffer,
// so assertions on the root see everything. Safe for use from
// background goroutines.
type TestLogger struct {
	sink     *testSink
	metadata map[string]interface{}
	prefixes []string
}

var _ Logger = (*TestLogger)(nil)

// NewTestLogger returns a new Logger instance useful for testing
func NewTestLogger() *TestLogger {
	return &TestLogger{sink: &testSink{}}
}

// Entries returns a copy of the captured log lines.
func (c *TestLogger) Entries() []TestLogEntry {
	c.sink.mu.Lock()
	defer c.sink.mu.Unlock()
	out := make([]TestLogEntry, len(c.sink.entries))
	copy(out, c.sink.entries)
	return out
}

// Contains reports whether any captured message contains substr.
func (c *TestLogger) Contains(substr string) bool {
	c.sink.mu.Lock()
	defer c.sink.mu.Unlock()
	for _, e := range c.sink.entries {
		if strings.Contains(e.Message, substr) {
			return true
		}
	}
	return false
}

func (c *TestLogger) clone() *TestLogger {
	metadata := make(map[string]interface{}, len(c.metadata))
	for k, v := range c.metadata {
		metadata[k] = v
	}
	prefixes := make([]string, len(c.prefixes))
	copy(prefixes, c.prefixes)
	return &TestLogger{sink: c.sink, metadata: metadata, prefixes: prefixes}
}

func (c *TestLogger) log(severity string, msg string, args ...interface{}) {
	formatted := msg
	if len(args) > 0 {
		formatted = fmt.Sprintf(msg, args...)
	}
	entry := TestLogEntry{Severity: severity, Message: formatted, Prefixes: c.prefixes}
	if len(c.metadata) > 0 {
		entry.Metadata = c.metadata
	}
	c.sink.mu.Lock()
	c.sink.entries = append(c.sink.entries, entry)
	c.sink.mu.Unlock()
}

func (c *TestLogger) With(metadata map[string]interface{}) Logger {
	clone := c.clone()
	for k, v := range metadata {
		clone.metadata[k] = v
	}
	return clone
}

func (c *TestLogger) WithPrefix(prefix string) Logger {
	clone := c.clone()
	clone.prefixes = append(clone.prefixes, prefix)
	return clone
}

func (c *TestLogger) IsLevelEnabled(level LogLevel) bool {
	return true
}

func (c *TestLogger) Trace(msg string, args ...interface{}) {
	c.log("TRACE", msg, args...)
}

func (c *TestLogger) Debug(msg string, args ...interface{}) {
	c.log("DEBUG", msg, args...)
}

func (c *TestLogger) Info(msg string, args ...interface{}) {
	c.log("INFO", msg, args...)
}

func (c *TestLogger) Warn(msg string, args ...interface{}) {
	c.log("WARN", msg, args...)
}

func (c *TestLogger) Error(msg string, args ...interface{}) {
	c.log("ERROR", msg, args...)
}
