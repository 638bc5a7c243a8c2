package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OCAP2/scene-engine/internal/dispatcher"
)

var _ dispatcher.Logger = (*DispatcherLogger)(nil)

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	return entry
}

func TestDispatcherLogger_Levels(t *testing.T) {
	tests := []struct {
		name  string
		log   func(*DispatcherLogger)
		level string
		msg   string
	}{
		{"debug", func(l *DispatcherLogger) { l.Debug("debug message", "command", "scene:edit") }, "debug", "debug message"},
		{"info", func(l *DispatcherLogger) { l.Info("info message", "command", "scene:edit") }, "info", "info message"},
		{"error", func(l *DispatcherLogger) { l.Error("error message", "command", "scene:edit") }, "error", "error message"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			dl := NewDispatcherLogger(zerolog.New(&buf).Level(zerolog.DebugLevel))

			tt.log(dl)

			entry := decodeLine(t, &buf)
			assert.Equal(t, tt.level, entry["level"])
			assert.Equal(t, tt.msg, entry["message"])
			assert.Equal(t, "scene:edit", entry["command"])
			assert.Equal(t, "dispatcher", entry["component"])
		})
	}
}

func TestDispatcherLogger_FieldTypes(t *testing.T) {
	var buf bytes.Buffer
	dl := NewDispatcherLogger(zerolog.New(&buf))

	dl.Info("dispatched", "args", 3, "buffered", true)

	entry := decodeLine(t, &buf)
	assert.Equal(t, float64(3), entry["args"])
	assert.Equal(t, true, entry["buffered"])
}

func TestDispatcherLogger_OddKeyValues(t *testing.T) {
	var buf bytes.Buffer
	dl := NewDispatcherLogger(zerolog.New(&buf))

	dl.Info("odd", "key", "value", 7, "seven", "dangling")

	entry := decodeLine(t, &buf)
	assert.Equal(t, "value", entry["key"])
	assert.Equal(t, "seven", entry["7"])
	assert.NotContains(t, entry, "dangling")
}

func TestDispatcherLogger_ErrorField(t *testing.T) {
	var buf bytes.Buffer
	dl := NewDispatcherLogger(zerolog.New(&buf))

	dl.Error("handler failed", "command", "scene:load", "error", errors.New("scene not found"))

	entry := decodeLine(t, &buf)
	assert.Equal(t, "scene not found", entry["error"])
}

func TestDispatcherLogger_LevelFiltered(t *testing.T) {
	var buf bytes.Buffer
	dl := NewDispatcherLogger(zerolog.New(&buf).Level(zerolog.InfoLevel))

	dl.Debug("hidden")
	assert.Empty(t, buf.String())
}
