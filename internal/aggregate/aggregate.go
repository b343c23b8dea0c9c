// Package aggregate reduces the Run Summary artifacts of many runs into one
// CSV per test.
package aggregate

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/pingsantohq/cidbench/internal/config"
	"github.com/pingsantohq/cidbench/internal/probe"
	"github.com/pingsantohq/cidbench/pkg/types"
)

const defaultParallelism = 8

// Options configures one aggregation pass.
type Options struct {
	OutDir     string
	ResultsDir string
	// Backends decides which backends get a row, by URL presence.
	Backends config.BackendsConfig
	// FromArtifact uses the enabled markers stored in each artifact instead of Backends.
	FromArtifact bool
	Parallelism  int
	Logger       *log.Logger
}

// Report describes one written CSV.
type Report struct {
	TestName string
	Path     string
	Files    int
	Rows     int
}

// column is one backend that may contribute a row.
type column struct {
	name    string
	label   string
	enabled bool
}

// Run writes results_<test>.csv for every test directory under OutDir. The
// first unreadable or malformed artifact aborts the pass; CSVs already
// written for earlier tests are kept.
func Run(ctx context.Context, opts Options) ([]Report, error) {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	if opts.OutDir == "" {
		return nil, fmt.Errorf("output dir is required")
	}
	if opts.ResultsDir == "" {
		return nil, fmt.Errorf("results dir is required")
	}
	if opts.Parallelism <= 0 {
		opts.Parallelism = defaultParallelism
	}

	entries, err := os.ReadDir(opts.OutDir)
	if err != nil {
		return nil, fmt.Errorf("read output dir %q: %w", opts.OutDir, err)
	}
	var tests []string
	for _, entry := range entries {
		if entry.IsDir() {
			tests = append(tests, entry.Name())
		}
	}
	sort.Strings(tests)

	if err := os.MkdirAll(opts.ResultsDir, 0o755); err != nil {
		return nil, fmt.Errorf("create results dir %q: %w", opts.ResultsDir, err)
	}

	reports := make([]Report, 0, len(tests))
	for _, test := range tests {
		report, err := aggregateTest(ctx, opts, test, logger)
		if err != nil {
			return reports, err
		}
		logger.Printf("Wrote stats CSV to %s", report.Path)
		reports = append(reports, report)
	}
	return reports, nil
}

// ResultsPath is the CSV destination for a test name.
func ResultsPath(resultsDir, testName string) string {
	return filepath.Join(resultsDir, "results_"+strings.ReplaceAll(testName, " ", "_")+".csv")
}

func aggregateTest(ctx context.Context, opts Options, test string, logger *log.Logger) (Report, error) {
	dir := filepath.Join(opts.OutDir, test)
	files, err := listArtifacts(dir, logger)
	if err != nil {
		return Report{}, fmt.Errorf("list artifacts in %q: %w", dir, err)
	}

	summaries, err := loadAll(ctx, dir, files, opts.Parallelism)
	if err != nil {
		return Report{}, err
	}

	mode, err := modeFor(test, files, summaries)
	if err != nil {
		return Report{}, fmt.Errorf("aggregate %q: %w", dir, err)
	}
	s := fetchSchema
	if mode == config.ModeFindProvs {
		s = findProvsSchema
	}
	configured := columnsFor(mode, opts.Backends)

	lines := []string{toCSV(s.header)}
	for _, summary := range summaries {
		cols := configured
		if opts.FromArtifact {
			cols = columnsFromArtifact(mode, summary.Metadata)
		}
		for _, col := range cols {
			if !col.enabled {
				continue
			}
			lines = append(lines, toCSV(s.row(col.label, col.name, summary)))
		}
	}

	path := ResultsPath(opts.ResultsDir, test)
	if err := writeFile(path, strings.Join(lines, "\n")+"\n"); err != nil {
		return Report{}, err
	}
	return Report{TestName: test, Path: path, Files: len(files), Rows: len(lines) - 1}, nil
}

// modeFor picks the schema from the mode recorded in the artifacts. The test
// name decides only when no artifact records one.
func modeFor(test string, files []artifactFile, summaries []types.RunSummary) (string, error) {
	mode, from := "", ""
	for i, summary := range summaries {
		m := summary.Metadata.Mode
		if m == "" {
			continue
		}
		if mode == "" {
			mode, from = m, files[i].Name
			continue
		}
		if m != mode {
			return "", fmt.Errorf("artifacts mix modes: %s is %s, %s is %s", from, mode, files[i].Name, m)
		}
	}
	switch mode {
	case "":
		return config.ModeForTest(test), nil
	case config.ModeFetch, config.ModeFindProvs:
		return mode, nil
	default:
		return "", fmt.Errorf("artifact %s has unknown mode %q", from, mode)
	}
}

// loadAll reads artifacts concurrently and returns them in file order.
func loadAll(ctx context.Context, dir string, files []artifactFile, parallelism int) ([]types.RunSummary, error) {
	summaries := make([]types.RunSummary, len(files))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(parallelism)
	for i, f := range files {
		path := filepath.Join(dir, f.Name)
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			summary, err := loadSummary(path)
			if err != nil {
				return err
			}
			summaries[i] = summary
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return summaries, nil
}

func loadSummary(path string) (types.RunSummary, error) {
	var summary types.RunSummary
	data, err := os.ReadFile(path)
	if err != nil {
		return summary, fmt.Errorf("read artifact %q: %w", path, err)
	}
	if err := json.Unmarshal(data, &summary); err != nil {
		return summary, fmt.Errorf("parse artifact %q: %w", path, err)
	}
	if summary.Metrics == nil {
		return summary, fmt.Errorf("parse artifact %q: no metrics", path)
	}
	return summary, nil
}

func columnsFor(mode string, b config.BackendsConfig) []column {
	mk := func(bc config.BackendConfig) column {
		return column{name: bc.Name, label: bc.Label, enabled: strings.TrimSpace(bc.URL) != ""}
	}
	if mode == config.ModeFindProvs {
		return []column{mk(b.DirectDiscovery), mk(b.IndexerDiscovery)}
	}
	return []column{mk(b.DirectFetch), mk(b.ComparisonFetch)}
}

func columnsFromArtifact(mode string, meta types.RunMetadata) []column {
	var cols []column
	for _, b := range meta.Backends {
		kind, err := probe.ParseKind(b.Kind)
		if err != nil || kind.Discovery() != (mode == config.ModeFindProvs) {
			continue
		}
		cols = append(cols, column{name: b.Name, label: b.Label, enabled: b.Enabled})
	}
	return cols
}

func writeFile(path, contents string) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create %q: %w", path, err)
	}
	defer os.Remove(tmp.Name())
	if _, err := io.WriteString(tmp, contents); err != nil {
		tmp.Close()
		return fmt.Errorf("write %q: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %q: %w", path, err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return fmt.Errorf("chmod %q: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("commit %q: %w", path, err)
	}
	return nil
}
