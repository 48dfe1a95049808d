package telemetry

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger_NonTerminalDefaultsToJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, "", slog.LevelInfo)
	logger.Info("hello", "flavor", "redis")

	assert.True(t, strings.HasPrefix(buf.String(), "{"), "expected JSON output, got %q", buf.String())
	assert.Contains(t, buf.String(), `"flavor":"redis"`)
}

func TestNewLogger_TextFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, "text", slog.LevelInfo)
	logger.Info("hello")

	assert.Contains(t, buf.String(), "msg=hello")
}

func TestFromContext(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	ctx := WithLogger(context.Background(), logger)
	assert.Same(t, logger, FromContext(ctx))
	assert.NotNil(t, FromContext(context.Background()))
}

func TestConsole_Section(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsole(&buf)
	c.now = func() time.Time { return time.Date(2016, 1, 2, 15, 4, 5, 0, time.UTC) }

	c.Section("install")

	assert.Contains(t, buf.String(), "[2016-01-02T15:04:05Z] >>>>>>>>>>>>>> INSTALL STAGE")
}

func TestMetrics_CountAndExport(t *testing.T) {
	m := NewMetrics()
	m.CountRun("redis", "SUCCEEDED")
	m.CountRun("redis", "SUCCEEDED")
	m.CountCache("push", "ok", 1024)
	m.ObserveStage("redis", "install", "SUCCEEDED", time.Second)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.RunsTotal.WithLabelValues("redis", "SUCCEEDED")))
	assert.Equal(t, 1024.0, testutil.ToFloat64(m.CacheBytes.WithLabelValues("push")))

	path := filepath.Join(t.TempDir(), "stagehand.prom")
	require.NoError(t, m.Export(context.Background(), "", path, "stagehand"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "stagehand_runs_total")
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	m.CountRun("redis", "FAILED")
	m.ObserveWait("port", "ready", time.Second)
	assert.NoError(t, m.Export(context.Background(), "http://unused", "", "job"))
}
