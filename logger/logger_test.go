package logger

import (
	"bytes"
	"encoding/json"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, LevelTrace, ParseLevel("trace"))
	assert.Equal(t, LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, LevelWarn, ParseLevel("warning"))
	assert.Equal(t, LevelError, ParseLevel(" error "))
	assert.Equal(t, LevelNone, ParseLevel("off"))
	assert.Equal(t, LevelInfo, ParseLevel("bogus"))
}

func TestConsoleLevelFilter(t *testing.T) {
	var buf bytes.Buffer
	c := &consoleLogger{mu: &sync.Mutex{}, out: &buf, logLevel: LevelWarn}
	c.Debug("dropped %d", 1)
	c.Info("dropped too")
	c.Warn("kept %s", "warn")
	c.Error("kept error")
	out := buf.String()
	assert.NotContains(t, out, "dropped")
	assert.Contains(t, out, "kept warn")
	assert.Contains(t, out, "kept error")
	assert.Equal(t, 2, strings.Count(out, "\n"))
}

func TestConsolePrefixAndMetadata(t *testing.T) {
	var buf bytes.Buffer
	base := &consoleLogger{mu: &sync.Mutex{}, out: &buf, logLevel: LevelTrace}
	l := base.WithPrefix("playback").With(map[string]interface{}{"fps": 30})
	l.Info("frame delivered")
	out := buf.String()
	assert.Contains(t, out, "playback")
	assert.Contains(t, out, `"fps":30`)
	// The parent logger is unchanged by With/WithPrefix.
	buf.Reset()
	base.Info("plain")
	assert.NotContains(t, buf.String(), "playback")
}

func TestJSONLoggerEntries(t *testing.T) {
	var buf bytes.Buffer
	j := &jsonLogger{mu: &sync.Mutex{}, out: &buf, logLevel: LevelDebug}
	j.WithPrefix("cache").With(map[string]interface{}{"bytes": 42}).Warn("over budget")
	var entry JSONLogEntry
	assert.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "WARN", entry.Severity)
	assert.Equal(t, "over budget", entry.Message)
	assert.Equal(t, "cache", entry.Component)
	assert.EqualValues(t, 42, entry.Metadata["bytes"])
}

func TestTestLoggerCapture(t *testing.T) {
	tl := NewTestLogger()
	tl.Info("hello %s", "world")
	tl.Error("boom")
	entries := tl.Entries()
	assert.Len(t, entries, 2)
	assert.Equal(t, "INFO", entries[0].Severity)
	assert.Equal(t, "hello world", entries[0].Message)
	assert.True(t, tl.Contains("boom"))
	assert.False(t, tl.Contains("missing"))
}

func TestTestLoggerRecordsContext(t *testing.T) {
	tl := NewTestLogger()
	child := tl.WithPrefix("cache").With(map[string]interface{}{"bytes": 42})
	child.Warn("over budget")
	// Children share the parent's capture buffer.
	entries := tl.Entries()
	assert.Len(t, entries, 1)
	assert.Equal(t, []string{"cache"}, entries[0].Prefixes)
	assert.EqualValues(t, 42, entries[0].Metadata["bytes"])
	// The parent itself logs without the child's context.
	tl.Info("plain")
	entries = tl.Entries()
	assert.Empty(t, entries[1].Prefixes)
	assert.Empty(t, entries[1].Metadata)
}

func TestZapBridge(t *testing.T) {
	tl := NewTestLogger()
	zl := ToZap(tl)
	zl.Info("from zap", zap.Int("n", 3))
	zl.Error("zap error")
	assert.True(t, tl.Contains("from zap"))
	assert.True(t, tl.Contains("zap error"))
	entries := tl.Entries()
	assert.Equal(t, "ERROR", entries[len(entries)-1].Severity)
}
