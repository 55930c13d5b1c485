package app

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestJSONLogFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(newLogHandler(&buf, "json"))
	logger.Info("ping", slog.String("k", "v"))

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	require.Equal(t, "ping", record["msg"])
	require.Equal(t, "v", record["k"])
	require.Contains(t, record, "source")
}

func TestPrettyLogFormatKeepsDebug(t *testing.T) {
	var buf bytes.Buffer
	handler := newLogHandler(&buf, "pretty")
	require.True(t, handler.Enabled(context.Background(), slog.LevelDebug))

	slog.New(handler).Debug("verbose detail")
	require.Contains(t, buf.String(), "verbose detail")
	require.NotContains(t, buf.String(), "source=")

	require.False(t, newLogHandler(&buf, "text").Enabled(context.Background(), slog.LevelDebug))
}
