package log

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		name string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"WARN", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{" error ", slog.LevelError},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLevel(tt.name))
		})
	}
}

func TestNew_JSONFormat(t *testing.T) {
	var buf bytes.Buffer

	logger := New(&buf, "warn", "json")
	logger.Info("dropped")
	logger.Warn("kept", "workflow_id", "wf-1")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "kept", entry["msg"])
	assert.Equal(t, "WARN", entry["level"])
	assert.Equal(t, "wf-1", entry["workflow_id"])
}

func TestNew_TextFormat(t *testing.T) {
	var buf bytes.Buffer

	logger := New(&buf, "debug", "")
	logger.Debug("node started", "node_id", "A")

	assert.Contains(t, buf.String(), "level=DEBUG")
	assert.Contains(t, buf.String(), "node_id=A")
}

func TestWithModule(t *testing.T) {
	previous := slog.Default()
	t.Cleanup(func() { slog.SetDefault(previous) })

	var buf bytes.Buffer

	slog.SetDefault(New(&buf, "info", "text"))
	WithModule("flowrun-worker").Info("ready")

	assert.Contains(t, buf.String(), "module=flowrun-worker")
}
