package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var entries []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &entry))
		entries = append(entries, entry)
	}
	return entries
}

func TestLoggerOutput(t *testing.T) {
	var buf bytes.Buffer
	log := NewLogger(Config{Level: InfoLevel, Format: "json", Service: "botconsole", Output: &buf})

	log.Info("room discovered", RoomIDField("!abc:matrix.org"), OperationField("init_rooms"))

	entries := decodeLines(t, &buf)
	require.Len(t, entries, 1)
	assert.Equal(t, "room discovered", entries[0]["msg"])
	assert.Equal(t, "botconsole", entries[0]["service"])
	assert.Equal(t, "!abc:matrix.org", entries[0]["room_id"])
	assert.Equal(t, "init_rooms", entries[0]["operation"])
	assert.Equal(t, "info", entries[0]["level"])
}

func TestLoggerLevels(t *testing.T) {
	var buf bytes.Buffer
	log := NewLogger(Config{Level: WarnLevel, Output: &buf})

	log.Debug("hidden")
	log.Info("hidden")
	log.Warn("shown")
	log.Error("shown too")

	entries := decodeLines(t, &buf)
	require.Len(t, entries, 2)
	assert.Equal(t, "warning", entries[0]["level"])
	assert.Equal(t, "error", entries[1]["level"])
}

func TestLoggerImmutability(t *testing.T) {
	var buf bytes.Buffer
	base := NewLogger(Config{Output: &buf})
	child := base.WithFields(StringField("component", "chatsync"))
	assert.NotSame(t, base, child)

	base.Info("from base")
	child.Info("from child")

	entries := decodeLines(t, &buf)
	require.Len(t, entries, 2)
	_, hasComponent := entries[0]["component"]
	assert.False(t, hasComponent)
	assert.Equal(t, "chatsync", entries[1]["component"])
}

func TestFieldHelpers(t *testing.T) {
	ts := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	tests := []struct {
		name  string
		field LogField
		want  LogField
	}{
		{"int", IntField("n", 42), LogField{"n", "42"}},
		{"bool", BoolField("ok", true), LogField{"ok", "true"}},
		{"duration", DurationField("d", 1500 * time.Millisecond), LogField{"d", "1.5s"}},
		{"error", ErrorField(errors.New("boom")), LogField{"error", "boom"}},
		{"nil error", ErrorField(nil), LogField{"error", "<nil>"}},
		{"generic time", Field("at", ts), LogField{"at", "2024-01-02T03:04:05Z"}},
		{"generic level", Field("level", WarnLevel), LogField{"level", "warn"}},
		{"generic float", Field("f", 1.25), LogField{"f", "1.25"}},
		{"http status", HTTPStatusField(404), LogField{"http_status", "404"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.field)
		})
	}
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, DebugLevel, ParseLevel("DEBUG"))
	assert.Equal(t, WarnLevel, ParseLevel("warning"))
	assert.Equal(t, ErrorLevel, ParseLevel(" error "))
	assert.Equal(t, InfoLevel, ParseLevel("nonsense"))
}

func TestCorrelationIDFromContext(t *testing.T) {
	var buf bytes.Buffer
	base := NewLogger(Config{Output: &buf})

	ctx := WithCorrelationIDContext(context.Background(), "corr-1")
	assert.Equal(t, "corr-1", GetCorrelationIDFromContext(ctx))
	assert.Empty(t, GetCorrelationIDFromContext(context.Background()))

	FromContext(ctx, base).Info("hello")
	entries := decodeLines(t, &buf)
	require.Len(t, entries, 1)
	assert.Equal(t, "corr-1", entries[0][CorrelationIDFieldKey])
}
