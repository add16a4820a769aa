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

func TestNewJSONRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, "warn", "json")
	log.Info("hidden")
	log.Warn("shown", "query_id", 7)

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "shown", line["msg"])
	assert.Equal(t, float64(7), line["query_id"])
}

func TestRunIDRoundTrip(t *testing.T) {
	ctx := WithRunID(context.Background(), "run-1")
	assert.Equal(t, "run-1", RunID(ctx))
	assert.Equal(t, "", RunID(context.Background()))
}

func TestContextRunIDIsAttached(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, "info", "json")
	log.InfoContext(WithRunID(context.Background(), "run-9"), "built", "docs", 3)

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "run-9", line["run_id"])
}

func TestSetLevel(t *testing.T) {
	t.Cleanup(func() { SetLevel("info") })
	var buf bytes.Buffer
	log := New(&buf, "ERROR", "text")
	log.Warn("quiet")
	assert.Empty(t, buf.String())

	SetLevel("debug")
	log.Debug("loud")
	assert.Contains(t, buf.String(), "msg=loud")

	SetLevel("nonsense")
	log.Debug("dropped")
	assert.NotContains(t, buf.String(), "dropped")
}

func TestWithComponentUsesInstalledDefault(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	var buf bytes.Buffer
	slog.SetDefault(New(&buf, "info", "json"))
	WithComponent("indexer").Info("index built")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "indexer", line["component"])
}
