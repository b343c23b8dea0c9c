// Package summary freezes a run's metric streams into a Run Summary and
// writes it as a table and as a JSON artifact.
package summary

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"path"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/pingsantohq/cidbench/internal/artifacts"
	"github.com/pingsantohq/cidbench/pkg/types"
)

// TimeLayout formats the default artifact timestamp, to the millisecond.
const TimeLayout = "20060102T150405.000Z"

// TimeString renders t in TimeLayout.
func TimeString(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// Build bundles metadata and stream statistics into the run's artifact.
func Build(meta types.RunMetadata, metrics map[string]types.MetricSummary) types.RunSummary {
	copied := make(map[string]types.MetricSummary, len(metrics))
	for name, m := range metrics {
		values := make(map[string]float64, len(m.Values))
		for k, v := range m.Values {
			values[k] = v
		}
		m.Values = values
		copied[name] = m
	}
	meta.Backends = append([]types.BackendInfo(nil), meta.Backends...)
	return types.RunSummary{Metadata: meta, Metrics: copied}
}

// ArtifactPath returns the slash-separated artifact name
// <test>/<N>vu_[<M>B_]<timeStr>.json relative to the output root.
func ArtifactPath(testName string, concurrency int, rangeSize int64, timeStr string) string {
	var b strings.Builder
	b.WriteString(strconv.Itoa(concurrency))
	b.WriteString("vu_")
	if rangeSize > 0 {
		b.WriteString(strconv.FormatInt(rangeSize, 10))
		b.WriteString("B_")
	}
	b.WriteString(timeStr)
	b.WriteString(".json")
	return path.Join(testName, b.String())
}

// Encode renders the artifact as indented JSON.
func Encode(s types.RunSummary) ([]byte, error) {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode run summary: %w", err)
	}
	return append(data, '\n'), nil
}

// RenderText writes a human-readable view of the run.
func RenderText(w io.Writer, s types.RunSummary) error {
	m := s.Metadata
	fmt.Fprintf(w, "\n  test: %s  mode: %s  vus: %d", m.TestName, m.Mode, m.Concurrency)
	if m.RangeSize > 0 {
		fmt.Fprintf(w, "  range: %dB", m.RangeSize)
	}
	fmt.Fprintf(w, "  seed: %d\n", m.Seed)
	fmt.Fprintf(w, "  iterations: %d/%d complete", m.Iterations.Completed, m.Iterations.Total)
	if m.Iterations.DeadlineExceeded {
		fmt.Fprint(w, " (deadline exceeded)")
	}
	fmt.Fprintf(w, "  elapsed: %s\n", time.Duration(m.ElapsedMs*float64(time.Millisecond)).Round(time.Millisecond))
	for _, b := range m.Backends {
		state := "disabled"
		if b.Enabled {
			state = "enabled"
		}
		fmt.Fprintf(w, "  backend %s (%s): %s\n", b.Label, b.Name, state)
	}
	fmt.Fprintln(w)

	names := make([]string, 0, len(s.Metrics))
	for name := range s.Metrics {
		names = append(names, name)
	}
	sort.Strings(names)

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Metric", "Type", "Values"})
	table.SetAutoWrapText(false)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	for _, name := range names {
		metric := s.Metrics[name]
		table.Append([]string{name, metric.Type, formatValues(metric)})
	}
	table.Render()
	return nil
}

func formatValues(m types.MetricSummary) string {
	switch m.Type {
	case types.MetricTypeRate:
		rate, ok := m.Rate()
		if !ok {
			return "no data"
		}
		return fmt.Sprintf("%.2f%%  ✓ %s  ✗ %s", rate*100, formatNumber(m.Values["passes"]), formatNumber(m.Values["fails"]))
	case types.MetricTypeCounter:
		return fmt.Sprintf("%s  %s/s", formatMetric(m, m.Values["count"]), formatMetric(m, m.Values["rate"]))
	}
	if len(m.Values) == 0 {
		return "no data"
	}
	keys := []string{"avg", "min", "med", "max", "p(90)", "p(95)"}
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		if v, ok := m.Values[k]; ok {
			parts = append(parts, k+"="+formatMetric(m, v))
		}
	}
	return strings.Join(parts, " ")
}

func formatMetric(m types.MetricSummary, v float64) string {
	switch m.Contains {
	case types.ContainsTime:
		return time.Duration(v * float64(time.Millisecond)).Round(time.Microsecond).String()
	case types.ContainsData:
		return formatBytes(v)
	}
	return formatNumber(v)
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func formatBytes(v float64) string {
	units := []string{"B", "kB", "MB", "GB", "TB"}
	i := 0
	for v >= 1000 && i < len(units)-1 {
		v /= 1000
		i++
	}
	return strconv.FormatFloat(v, 'f', 2, 64) + " " + units[i]
}

// Exporter emits a summary to the console and the artifact store.
type Exporter struct {
	Store  *artifacts.FileStore
	Stdout io.Writer
	Logger *log.Logger
}

// Export renders s to Stdout and saves it under ArtifactPath. An existing
// artifact at that path is an error.
func (e Exporter) Export(ctx context.Context, s types.RunSummary) (artifacts.Meta, error) {
	logger := e.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	if e.Stdout != nil {
		if err := RenderText(e.Stdout, s); err != nil {
			return artifacts.Meta{}, fmt.Errorf("render summary: %w", err)
		}
	}
	if e.Store == nil {
		return artifacts.Meta{}, fmt.Errorf("artifact store is required")
	}
	data, err := Encode(s)
	if err != nil {
		return artifacts.Meta{}, err
	}
	m := s.Metadata
	name := ArtifactPath(m.TestName, m.Concurrency, m.RangeSize, m.Timestamp)
	meta, err := e.Store.Save(ctx, name, bytes.NewReader(data))
	if err != nil {
		return meta, fmt.Errorf("save run summary: %w", err)
	}
	logger.Printf("wrote run summary %s (%d bytes)", meta.Path, meta.Size)
	return meta, nil
}
