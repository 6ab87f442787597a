package logger

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"epoch/internal/config"

	"github.com/robfig/cron/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, parseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, parseLevel("warn"))
	assert.Equal(t, slog.LevelError, parseLevel("error"))
	assert.Equal(t, slog.LevelInfo, parseLevel(""))
}

func TestInitWritesFile(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	file := filepath.Join(t.TempDir(), "epoch.log")
	Init(config.LogConfig{Level: "info", File: file, MaxSizeMB: 1})
	Warn("pulse.test", "user", "U1")

	data, err := os.ReadFile(file)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"pulse.test"`)
	assert.Contains(t, string(data), `"user":"U1"`)
}

func TestContextCarriesRequestID(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	file := filepath.Join(t.TempDir(), "epoch.log")
	Init(config.LogConfig{Level: "info", File: file, MaxSizeMB: 1})

	ctx := WithRequestID(context.Background(), "req-42")
	assert.Equal(t, "req-42", RequestID(ctx))
	assert.Empty(t, RequestID(context.Background()))

	InfoContext(ctx, "slack.command", "user", "U1")
	slog.Default().With("component", "test").InfoContext(ctx, "nested")
	InfoContext(context.Background(), "pulse.started")

	data, err := os.ReadFile(file)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 4)
	assert.Contains(t, lines[1], `"request_id":"req-42"`)
	assert.Contains(t, lines[2], `"request_id":"req-42"`)
	assert.Contains(t, lines[2], `"component":"test"`)
	assert.NotContains(t, lines[3], "request_id")
}

func TestCronLoggerImplementsInterface(t *testing.T) {
	var _ cron.Logger = CronLogger{}
}
