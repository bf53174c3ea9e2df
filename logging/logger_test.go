package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBufferLogger(level LogLevel) (*StructuredLogger, *bytes.Buffer) {
	buf := &bytes.Buffer{}
	cfg := DefaultLoggerConfig()
	cfg.Output = buf
	cfg.Level = level
	return NewLogger(cfg), buf
}

func TestStructuredLogger_KeyValueArgs(t *testing.T) {
	l, buf := newBufferLogger(LogLevelDebug)
	l.WithComponent("dispatch").WithTask("t-1").Info("dispatch.action.start", "action", "read_file")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "dispatch.action.start", entry["msg"])
	assert.Equal(t, "dispatch", entry["component"])
	assert.Equal(t, "t-1", entry["task_id"])
	assert.Equal(t, "read_file", entry["action"])
}

func TestStructuredLogger_LevelFilter(t *testing.T) {
	l, buf := newBufferLogger(LogLevelWarn)
	l.Debug("hidden")
	l.Info("hidden")
	assert.Zero(t, buf.Len())
	l.Warn("shown")
	assert.Contains(t, buf.String(), "shown")
}

func TestStructuredLogger_WithContextDoesNotLeak(t *testing.T) {
	base, buf := newBufferLogger(LogLevelInfo)
	_ = base.WithContext("k", "v")
	base.Info("plain")
	assert.NotContains(t, buf.String(), `"k"`)
}

func TestStructuredLogger_LogActionCall(t *testing.T) {
	l, buf := newBufferLogger(LogLevelInfo)
	l.LogActionCall("shell", 10*time.Millisecond, false, errors.New("boom"))

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "Action execution failed", entry["msg"])
	assert.Equal(t, "ERROR", entry["level"])
	assert.Equal(t, "boom", entry["error"])
}

func TestStructuredLogger_LogGeneratorCall(t *testing.T) {
	l, buf := newBufferLogger(LogLevelInfo)
	l.LogGeneratorCall("gpt-4o", 42, time.Second, true, nil)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "Generator call completed", entry["msg"])
	assert.EqualValues(t, 42, entry["token_count"])
}

func TestLogLevel_String(t *testing.T) {
	assert.Equal(t, "DEBUG", LogLevelDebug.String())
	assert.Equal(t, "UNKNOWN", LogLevel(99).String())
}
