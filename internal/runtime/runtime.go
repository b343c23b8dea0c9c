// Package runtime drives one benchmark run: it hands corpus entries to the
// worker pool, probes both backends of a comparison per iteration and records
// the outcomes.
package runtime

import (
	"context"
	"io"
	"log"
	"math/rand/v2"
	"time"

	"github.com/pingsantohq/cidbench/internal/discrepancy"
	"github.com/pingsantohq/cidbench/internal/metrics"
	"github.com/pingsantohq/cidbench/internal/probe"
	"github.com/pingsantohq/cidbench/internal/worker"
	"github.com/pingsantohq/cidbench/pkg/types"
)

// Stream name prefixes; the backend name is appended.
const (
	StreamSuccess    = "success_"
	StreamTime       = "time_"
	StreamTTFB       = "ttfb_"
	StreamThroughput = "megabytes_per_second_"
	StreamData       = "data_received_"
	StreamProviders  = "provider_rate_"

	StreamTimeDelta = "time_delta"
	StreamTTFBDelta = "ttfb_delta"
)

type Option func(*options)

type options struct {
	workerOpts []worker.PoolOption
	prober     *probe.Prober
	evidence   *discrepancy.Logger
	progress   metrics.ProgressRecorder
	seed       uint64
	logger     *log.Logger
	now        func() time.Time
}

func WithWorkerOptions(opts ...worker.PoolOption) Option {
	return func(c *options) {
		c.workerOpts = append(c.workerOpts, opts...)
	}
}

func WithProber(p *probe.Prober) Option {
	return func(c *options) {
		if p != nil {
			c.prober = p
		}
	}
}

// WithEvidence enables discrepancy logging into l.
func WithEvidence(l *discrepancy.Logger) Option {
	return func(c *options) {
		c.evidence = l
	}
}

func WithProgress(p metrics.ProgressRecorder) Option {
	return func(c *options) {
		if p != nil {
			c.progress = p
		}
	}
}

// WithSeed fixes the per-iteration backend order. Zero picks a seed from the clock.
func WithSeed(seed uint64) Option {
	return func(c *options) {
		c.seed = seed
	}
}

func WithLogger(logger *log.Logger) Option {
	return func(c *options) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func WithNow(now func() time.Time) Option {
	return func(c *options) {
		if now != nil {
			c.now = now
		}
	}
}

// Result is everything a finished run hands to the summary exporter.
type Result struct {
	Seed      uint64
	StartedAt time.Time
	Stats     worker.Stats
	Metrics   map[string]types.MetricSummary
	Evidence  int
}

type Runtime struct {
	cmp      Comparison
	prober   *probe.Prober
	evidence *discrepancy.Logger
	progress metrics.ProgressRecorder
	seed     uint64
	logger   *log.Logger
	now      func() time.Time

	workerOpts []worker.PoolOption
	registry   *metrics.Registry
}

func New(cmp Comparison, opts ...Option) *Runtime {
	cfg := options{
		progress: metrics.NoopProgressRecorder{},
		logger:   log.New(io.Discard, "", 0),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.prober == nil {
		cfg.prober = probe.NewProber(probe.Dependencies{Logger: cfg.logger, Now: cfg.now})
	}
	seed := cfg.seed
	if seed == 0 {
		seed = uint64(cfg.now().UnixNano())
	}

	return &Runtime{
		cmp:        cmp,
		prober:     cfg.prober,
		evidence:   cfg.evidence,
		progress:   cfg.progress,
		seed:       seed,
		logger:     cfg.logger,
		now:        cfg.now,
		workerOpts: cfg.workerOpts,
		registry:   metrics.NewRegistry(streamSpecs(cmp)...),
	}
}

// Seed returns the seed actually used for backend ordering.
func (r *Runtime) Seed() uint64 {
	return r.seed
}

// PrimaryFirst is the per-iteration coin flip deciding which backend is
// probed first. It depends only on the seed and the iteration index.
func PrimaryFirst(seed uint64, index int) bool {
	return rand.New(rand.NewPCG(seed, uint64(index))).IntN(2) == 0
}

// Run executes one iteration per item and blocks until the pool stops. A
// Runtime runs once.
func (r *Runtime) Run(ctx context.Context, items []string) Result {
	started := r.now()

	var (
		shards []*metrics.Shard
		rows   []int
	)
	opts := append([]worker.PoolOption{worker.WithNow(r.now)}, r.workerOpts...)
	pool := worker.NewPool(items, func(ctx context.Context, it worker.Iteration) {
		if r.iterate(ctx, shards[it.Worker], it) {
			rows[it.Worker]++
		}
		r.progress.IterationDone()
	}, opts...)
	shards = r.registry.Shards(pool.WorkerCount())
	rows = make([]int, pool.WorkerCount())

	r.progress.SetTotal(len(items))
	r.logger.Printf("run %s: %d iterations across %d workers (seed %d)", r.cmp.Mode, len(items), pool.WorkerCount(), r.seed)
	stats := pool.Run(ctx)
	if stats.DeadlineExceeded {
		r.logger.Printf("run %s: deadline reached after %d/%d iterations", r.cmp.Mode, stats.Completed, stats.Total)
	}
	evidence := 0
	for _, n := range rows {
		evidence += n
	}

	return Result{
		Seed:      r.seed,
		StartedAt: started,
		Stats:     stats,
		Metrics:   r.registry.Snapshot(stats.Elapsed),
		Evidence:  evidence,
	}
}

// iterate probes both backends for one identifier and reports whether an
// evidence row was appended.
func (r *Runtime) iterate(ctx context.Context, shard *metrics.Shard, it worker.Iteration) bool {
	var primary, counterpart probe.Outcome
	if PrimaryFirst(r.seed, it.Index) {
		primary = r.probe(ctx, shard, r.cmp.Primary, it.Identifier)
		counterpart = r.probe(ctx, shard, r.cmp.Counterpart, it.Identifier)
	} else {
		counterpart = r.probe(ctx, shard, r.cmp.Counterpart, it.Identifier)
		primary = r.probe(ctx, shard, r.cmp.Primary, it.Identifier)
	}

	if r.cmp.Deltas() && primary.Issued && counterpart.Issued {
		shard.AddDuration(StreamTimeDelta, counterpart.Duration-primary.Duration)
		shard.AddDuration(StreamTTFBDelta, counterpart.TTFB-primary.TTFB)
	}

	fired, err := r.evidence.Check(r.cmp.Trigger, it.Identifier, primary, counterpart)
	if err != nil {
		r.logger.Printf("record discrepancy for %s: %v", it.Identifier, err)
		return false
	}
	return fired
}

func (r *Runtime) probe(ctx context.Context, shard *metrics.Shard, b probe.Backend, identifier string) probe.Outcome {
	out := r.prober.Probe(ctx, b, identifier)
	if out.Skipped {
		return out
	}
	record(shard, b, out)

	result := metrics.ResultFailure
	if out.Succeeded {
		result = metrics.ResultSuccess
	}
	r.progress.ObserveProbe(b.Name, result, out.Duration)
	return out
}

func record(shard *metrics.Shard, b probe.Backend, out probe.Outcome) {
	shard.AddRate(StreamSuccess+b.Name, out.Succeeded)
	if out.Issued {
		shard.AddDuration(StreamTime+b.Name, out.Duration)
		shard.AddDuration(StreamTTFB+b.Name, out.TTFB)
	}
	if b.Kind.Discovery() {
		if out.HTTPSucceeded {
			shard.AddTrend(StreamProviders+b.Name, float64(len(out.Providers)))
		}
		return
	}
	if mbps, ok := out.Throughput(); ok {
		shard.AddTrend(StreamThroughput+b.Name, mbps)
		shard.AddCounter(StreamData+b.Name, float64(out.Bytes))
	}
}

func streamSpecs(cmp Comparison) []metrics.Spec {
	var specs []metrics.Spec
	for _, b := range cmp.Backends() {
		if !b.Enabled() {
			continue
		}
		specs = append(specs,
			metrics.RateSpec(StreamSuccess+b.Name),
			metrics.TrendSpec(StreamTime+b.Name, true),
			metrics.TrendSpec(StreamTTFB+b.Name, true),
		)
		if b.Kind.Discovery() {
			specs = append(specs, metrics.TrendSpec(StreamProviders+b.Name, false))
		} else {
			specs = append(specs,
				metrics.TrendSpec(StreamThroughput+b.Name, false),
				metrics.CounterSpec(StreamData+b.Name),
			)
		}
	}
	if cmp.Deltas() {
		specs = append(specs, metrics.TrendSpec(StreamTimeDelta, true), metrics.TrendSpec(StreamTTFBDelta, true))
	}
	return specs
}
