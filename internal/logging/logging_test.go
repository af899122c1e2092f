package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLevelFromString(t *testing.T) {
	t.Parallel()

	tests := map[string]slog.Level{
		"error":   slog.LevelError,
		" WARN ":  slog.LevelWarn,
		"warning": slog.LevelWarn,
		"info":    slog.LevelInfo,
		"debug":   slog.LevelDebug,
		"":        slog.LevelDebug,
	}
	for in, want := range tests {
		require.Equal(t, want, levelFromString(in), "level %q", in)
	}
}

func TestNewHandlerJSON(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := slog.New(newHandler(&buf, "info", "json"))
	logger.Debug("hidden")
	logger.Info("scan completed", "scan_id", "s-1")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	require.Equal(t, "scan completed", entry["msg"])
	require.Equal(t, "s-1", entry["scan_id"])
}

func TestNewHandlerText(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := slog.New(newHandler(&buf, "warn", "text"))
	logger.Info("hidden")
	logger.Warn("publish failed")

	out := buf.String()
	require.NotContains(t, out, "hidden")
	require.True(t, strings.Contains(out, `msg="publish failed"`))
}
