package metrictree

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &m))
		out = append(out, m)
	}
	return out
}

func TestLogger_BuildAndQueryEvents(t *testing.T) {
	ctx := context.Background()
	var buf bytes.Buffer
	l := NewLogger(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	tree, err := Build[Vector](ctx, randomItems(41, 60, 2), EuclideanMetric{}, DefaultConfig(), WithLogger(l))
	require.NoError(t, err)
	_, err = tree.KNN(ctx, []float64{1, 1}, 2)
	require.NoError(t, err)

	var build, query map[string]any
	for _, m := range decodeLines(t, &buf) {
		switch m["msg"] {
		case "build completed":
			build = m
		case "query completed":
			query = m
		}
	}
	require.NotNil(t, build)
	assert.Equal(t, 60.0, build["items"])
	assert.Equal(t, float64(tree.Stats().Nodes), build["nodes"])

	require.NotNil(t, query)
	assert.Equal(t, "knn", query["kind"])
	assert.Equal(t, 2.0, query["results"])
}

func TestLogger_DegenerateLeaf(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	rows := make([][]float64, 30)
	for i := range rows {
		rows[i] = []float64{7, 7}
	}
	cfg := DefaultConfig()
	cfg.MaxLeafSize = 2

	_, err := Build[Vector](context.Background(), vectorItems(rows), EuclideanMetric{}, cfg, WithLogger(l))
	require.NoError(t, err)

	var found bool
	for _, m := range decodeLines(t, &buf) {
		if m["msg"] == "forced leaf" {
			found = true
			assert.Equal(t, "too few distinct pivots", m["reason"])
			assert.Equal(t, 30.0, m["size"])
		}
	}
	assert.True(t, found)
}

func TestLogger_BuildFailure(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(slog.NewJSONHandler(&buf, nil))
	_, err := Build[Vector](context.Background(), nil, EuclideanMetric{}, DefaultConfig(), WithLogger(l))
	require.ErrorIs(t, err, ErrEmptyDataset)

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "build failed", lines[0]["msg"])
	assert.Equal(t, "ERROR", lines[0]["level"])
}

func TestWithLogger_NilDisablesLogging(t *testing.T) {
	o := applyOptions([]Option{WithLogger(nil)})
	require.NotNil(t, o.logger)
	assert.False(t, o.logger.Enabled(context.Background(), slog.LevelError))
}
