package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	return line
}

func TestNew_NestsAttributesUnderData(t *testing.T) {
	var buf bytes.Buffer
	levelVar.Set(slog.LevelInfo)
	l := New(&buf, Config{Service: "link-service", Env: "test", Version: "1.2.3"})

	l.Info("hello", "tier", "search")

	line := decodeLine(t, &buf)
	assert.Equal(t, "hello", line["msg"])
	assert.Equal(t, "INFO", line["level"])
	assert.NotContains(t, line, "tier")

	data, ok := line["data"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "link-service", data["service"])
	assert.Equal(t, "test", data["env"])
	assert.Equal(t, "1.2.3", data["version"])
	assert.Equal(t, "search", data["tier"])
}

func TestFromContext_AddsRequestID(t *testing.T) {
	var buf bytes.Buffer
	levelVar.Set(slog.LevelInfo)
	l := New(&buf, Config{Service: "svc"})

	ctx := WithRequestID(IntoContext(context.Background(), l), "req-42")
	FromContext(ctx).Info("scoped")

	data := decodeLine(t, &buf)["data"].(map[string]any)
	assert.Equal(t, "req-42", data["request_id"])
	assert.Equal(t, "req-42", RequestID(ctx))
}

func TestFromContext_NilContextFallsBackToDefault(t *testing.T) {
	assert.Equal(t, Default(), FromContext(nil))
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"", slog.LevelInfo},
		{"INFO", slog.LevelInfo},
		{"warning", slog.LevelWarn},
		{" error ", slog.LevelError},
		{"verbose", slog.LevelWarn},
	}
	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			assert.Equal(t, tc.want, parseLevel(tc.in, slog.LevelWarn))
		})
	}
}

func TestSetLevel_IgnoresUnknownNames(t *testing.T) {
	levelVar.Set(slog.LevelInfo)
	SetLevel("bogus")
	assert.Equal(t, slog.LevelInfo, levelVar.Level())
	SetLevel("debug")
	assert.Equal(t, slog.LevelDebug, levelVar.Level())
	levelVar.Set(slog.LevelInfo)
}
