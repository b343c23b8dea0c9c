package summary

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pingsantohq/cidbench/internal/artifacts"
	"github.com/pingsantohq/cidbench/pkg/types"
)

func sampleSummary() types.RunSummary {
	return Build(types.RunMetadata{
		RunID:       "run-1",
		TestName:    "range-requests",
		Mode:        "fetch",
		Concurrency: 10,
		RangeSize:   500,
		Timestamp:   "20240101T000000Z",
		ElapsedMs:   1500,
		Iterations:  types.IterationCounts{Total: 2, Completed: 2},
		Backends: []types.BackendInfo{
			{Kind: "direct_fetch", Name: "kubo", Label: "Kubo get", Enabled: true},
			{Kind: "comparison_fetch", Name: "lassie", Label: "Lassie Fetch", Enabled: false},
		},
	}, map[string]types.MetricSummary{
		"success_kubo":       {Type: types.MetricTypeRate, Contains: types.ContainsDefault, Values: map[string]float64{"rate": 1, "passes": 2, "fails": 0}},
		"success_lassie":     {Type: types.MetricTypeRate, Contains: types.ContainsDefault, Values: map[string]float64{"passes": 0, "fails": 0}},
		"ttfb_kubo":          {Type: types.MetricTypeTrend, Contains: types.ContainsTime, Values: map[string]float64{"avg": 12.5, "min": 10, "med": 12.5, "max": 15, "p(90)": 14.5, "p(95)": 14.75}},
		"data_received_kubo": {Type: types.MetricTypeCounter, Contains: types.ContainsData, Values: map[string]float64{"count": 2048, "rate": 1365.33}},
	})
}

func TestArtifactPath(t *testing.T) {
	assert.Equal(t, "fetch/10vu_20240101T000000Z.json", ArtifactPath("fetch", 10, 0, "20240101T000000Z"))
	assert.Equal(t, "range-requests/2vu_500B_t.json", ArtifactPath("range-requests", 2, 500, "t"))
}

func TestBuildCopiesInputs(t *testing.T) {
	metrics := map[string]types.MetricSummary{
		"success_kubo": {Type: types.MetricTypeRate, Values: map[string]float64{"rate": 1}},
	}
	s := Build(types.RunMetadata{TestName: "fetch"}, metrics)
	metrics["success_kubo"].Values["rate"] = 0
	rate, ok := s.Metrics["success_kubo"].Rate()
	assert.True(t, ok)
	assert.Equal(t, 1.0, rate)
}

func TestRenderText(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, RenderText(&buf, sampleSummary()))
	out := buf.String()
	assert.Contains(t, out, "test: range-requests")
	assert.Contains(t, out, "range: 500B")
	assert.Contains(t, out, "success_kubo")
	assert.Contains(t, out, "100.00%")
	assert.Contains(t, out, "no data")
	assert.Contains(t, out, "2.05 kB")
	assert.Contains(t, out, "backend Lassie Fetch (lassie): disabled")
}

func TestExporterWritesArtifactOnce(t *testing.T) {
	dir := t.TempDir()
	store, err := artifacts.NewFileStore(dir)
	require.NoError(t, err)

	var stdout bytes.Buffer
	exp := Exporter{Store: store, Stdout: &stdout}
	s := sampleSummary()

	meta, err := exp.Export(context.Background(), s)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "range-requests", "10vu_500B_20240101T000000Z.json"), meta.Path)
	assert.NotEmpty(t, stdout.String())

	data, err := os.ReadFile(meta.Path)
	require.NoError(t, err)
	var decoded types.RunSummary
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "run-1", decoded.Metadata.RunID)
	_, ok := decoded.Metrics["success_lassie"].Rate()
	assert.False(t, ok)
	info, ok := decoded.Metadata.Backend("lassie")
	assert.True(t, ok)
	assert.False(t, info.Enabled)

	_, err = exp.Export(context.Background(), s)
	assert.True(t, errors.Is(err, artifacts.ErrArtifactExists), "expected ErrArtifactExists, got %v", err)
}

func TestTimeString(t *testing.T) {
	ts := time.Date(2024, 3, 5, 7, 8, 9, 42_000_000, time.FixedZone("x", 3600))
	assert.Equal(t, "20240305T060809.042Z", TimeString(ts))
	assert.NotEqual(t, TimeString(ts), TimeString(ts.Add(time.Millisecond)))
	assert.Equal(t, "20240305T060809.000Z", TimeString(ts.Truncate(time.Second)))
}
