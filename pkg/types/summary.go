package types

import "time"

// RunSummary is the structured artifact written once at the end of every run.
type RunSummary struct {
	Metadata RunMetadata              `json:"metadata" yaml:"metadata"`
	Metrics  map[string]MetricSummary `json:"metrics" yaml:"metrics"`
}

type RunMetadata struct {
	RunID       string          `json:"run_id" yaml:"run_id"`
	TestName    string          `json:"test_name" yaml:"test_name"`
	Mode        string          `json:"mode" yaml:"mode"`
	Concurrency int             `json:"concurrency" yaml:"concurrency"`
	RangeSize   int64           `json:"range_size,omitempty" yaml:"range_size,omitempty"`
	Timestamp   string          `json:"timestamp" yaml:"timestamp"`
	StartedAt   time.Time       `json:"started_at" yaml:"started_at"`
	ElapsedMs   float64         `json:"elapsed_ms" yaml:"elapsed_ms"`
	Seed        uint64          `json:"seed" yaml:"seed"`
	Iterations  IterationCounts `json:"iterations" yaml:"iterations"`
	Backends    []BackendInfo   `json:"backends" yaml:"backends"`
}

type IterationCounts struct {
	Total            int  `json:"total" yaml:"total"`
	Completed        int  `json:"completed" yaml:"completed"`
	DeadlineExceeded bool `json:"deadline_exceeded,omitempty" yaml:"deadline_exceeded,omitempty"`
}

// BackendInfo records whether a backend took part in the run.
type BackendInfo struct {
	Kind    string `json:"kind" yaml:"kind"`
	Name    string `json:"name" yaml:"name"`
	Label   string `json:"label" yaml:"label"`
	Enabled bool   `json:"enabled" yaml:"enabled"`
}

// Backend returns the marker for the named backend.
func (m RunMetadata) Backend(name string) (BackendInfo, bool) {
	for _, b := range m.Backends {
		if b.Name == name {
			return b, true
		}
	}
	return BackendInfo{}, false
}

const (
	MetricTypeRate    = "rate"
	MetricTypeTrend   = "trend"
	MetricTypeCounter = "counter"

	ContainsDefault = "default"
	ContainsTime    = "time"
	ContainsData    = "data"
)

// MetricSummary holds the end-of-run statistics of one metric stream. Keys of
// Values depend on Type: trends carry avg, min, med, max, p(90) and p(95);
// rates carry rate, passes and fails; counters carry count and rate. A key is
// absent when the stream recorded no samples.
type MetricSummary struct {
	Type     string             `json:"type" yaml:"type"`
	Contains string             `json:"contains" yaml:"contains"`
	Values   map[string]float64 `json:"values" yaml:"values"`
}

// Value looks up a single statistic.
func (m MetricSummary) Value(key string) (float64, bool) {
	v, ok := m.Values[key]
	return v, ok
}

// Rate returns the success fraction of a rate stream; ok is false when the
// stream has no samples.
func (m MetricSummary) Rate() (float64, bool) {
	if m.Type != MetricTypeRate {
		return 0, false
	}
	return m.Value("rate")
}
