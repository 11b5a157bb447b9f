package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	_ Logger = NoOpLogger{}
	_ Logger = (*SlogAdapter)(nil)
)

func TestParseLevel(t *testing.T) {
	for in, want := range map[string]LogLevel{"debug": LogLevelDebug, "INFO": LogLevelInfo, "": LogLevelInfo, "warning": LogLevelWarn, "error": LogLevelError} {
		got, err := ParseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseLevel("loud")
	assert.Error(t, err)
	assert.Equal(t, "WARN", LogLevelWarn.String())
}

func TestNew_JSONWithComponent(t *testing.T) {
	var buf bytes.Buffer
	l := New(&Config{Level: LogLevelInfo, Format: "json", Output: &buf, Component: "agent"})

	l.Debug("hidden")
	l.Info("agent.loop.state", "state", "AWAITING_LLM")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "agent.loop.state", entry["msg"])
	assert.Equal(t, "agent", entry["component"])
	assert.Equal(t, "AWAITING_LLM", entry["state"])
}

type recordingLogger struct {
	NoOpLogger
	msgs []string
	args [][]any
}

func (r *recordingLogger) Info(msg string, args ...any) {
	r.msgs = append(r.msgs, msg)
	r.args = append(r.args, args)
}

func (r *recordingLogger) Warn(msg string, args ...any) { r.Info(msg, args...) }

func TestWith_WrapsForeignLogger(t *testing.T) {
	rec := &recordingLogger{}
	l := With(rec, "session_id", "s1")

	LogToolCall(l, "get_current_datetime", "c1", 5*time.Millisecond, nil)
	LogToolCall(l, "get_current_datetime", "c2", time.Millisecond, errors.New("boom"))

	assert.Equal(t, []string{"tool.call.completed", "tool.call.failed"}, rec.msgs)
	assert.Equal(t, []any{"session_id", "s1"}, rec.args[0][:2])
	assert.Contains(t, rec.args[1], "boom")
}
