package metrics

import (
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "cidbench"

// ProgressRecorder receives live run events. Runs without a monitor use
// NoopProgressRecorder.
type ProgressRecorder interface {
	SetTotal(n int)
	IterationDone()
	ObserveProbe(backend, result string, d time.Duration)
}

type NoopProgressRecorder struct{}

func (NoopProgressRecorder) SetTotal(int)                               {}
func (NoopProgressRecorder) IterationDone()                             {}
func (NoopProgressRecorder) ObserveProbe(string, string, time.Duration) {}

// Probe results used as the "result" label.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
)

// ProgressSnapshot is the JSON body served on /progress.
type ProgressSnapshot struct {
	Completed int64 `json:"completed"`
	Total     int64 `json:"total"`
}

// Progress tracks a running benchmark with Prometheus collectors.
type Progress struct {
	registry   *prometheus.Registry
	iterations prometheus.Counter
	total      prometheus.Gauge
	requests   *prometheus.CounterVec
	durations  *prometheus.HistogramVec

	completed atomic.Int64
	planned   atomic.Int64
}

func NewProgress() *Progress {
	p := &Progress{
		registry: prometheus.NewRegistry(),
		iterations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "iterations_completed_total",
			Help:      "Iterations finished in the current run.",
		}),
		total: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "iterations_planned",
			Help:      "Iterations scheduled for the current run.",
		}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "probe_requests_total",
			Help:      "Probe requests issued, by backend and result.",
		}, []string{"backend", "result"}),
		durations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "probe_duration_seconds",
			Help:      "Probe request duration including body transfer.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 14),
		}, []string{"backend"}),
	}
	p.registry.MustRegister(p.iterations, p.total, p.requests, p.durations)
	return p
}

func (p *Progress) SetTotal(n int) {
	p.planned.Store(int64(n))
	p.total.Set(float64(n))
}

func (p *Progress) IterationDone() {
	p.completed.Add(1)
	p.iterations.Inc()
}

func (p *Progress) ObserveProbe(backend, result string, d time.Duration) {
	p.requests.WithLabelValues(backend, result).Inc()
	p.durations.WithLabelValues(backend).Observe(d.Seconds())
}

func (p *Progress) Snapshot() ProgressSnapshot {
	return ProgressSnapshot{Completed: p.completed.Load(), Total: p.planned.Load()}
}

// Handler serves the collectors in the Prometheus exposition format.
func (p *Progress) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}
