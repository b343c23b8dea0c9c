// Package metrics records per-iteration samples into named streams and
// exposes live run progress.
package metrics

import (
	"sync"
	"time"

	"github.com/pingsantohq/cidbench/pkg/types"
)

// Registry owns the stream declarations and every worker shard of a run.
type Registry struct {
	mu     sync.Mutex
	specs  map[string]Spec
	order  []string
	shards []*Shard
}

func NewRegistry(specs ...Spec) *Registry {
	r := &Registry{specs: make(map[string]Spec)}
	for _, spec := range specs {
		r.Declare(spec)
	}
	return r
}

// Declare registers a stream. Re-declaring a name keeps the first declaration.
func (r *Registry) Declare(spec Spec) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.specs[spec.Name]; ok {
		return
	}
	r.specs[spec.Name] = spec
	r.order = append(r.order, spec.Name)
}

// Names returns declared stream names in declaration order.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.order...)
}

// NewShard returns an accumulator owned by a single worker.
func (r *Registry) NewShard() *Shard {
	s := &Shard{
		rates:    make(map[string]*rateAcc),
		trends:   make(map[string][]float64),
		counters: make(map[string]*counterAcc),
	}
	r.mu.Lock()
	r.shards = append(r.shards, s)
	r.mu.Unlock()
	return s
}

// Shards returns n fresh shards, one per worker index.
func (r *Registry) Shards(n int) []*Shard {
	shards := make([]*Shard, n)
	for i := range shards {
		shards[i] = r.NewShard()
	}
	return shards
}

// Snapshot merges every shard and summarises each stream. It must only be
// called after all shard writers have stopped.
func (r *Registry) Snapshot(elapsed time.Duration) map[string]types.MetricSummary {
	r.mu.Lock()
	defer r.mu.Unlock()

	rates := make(map[string]*rateAcc)
	trends := make(map[string][]float64)
	counters := make(map[string]*counterAcc)
	for _, s := range r.shards {
		for name, acc := range s.rates {
			merged, ok := rates[name]
			if !ok {
				merged = &rateAcc{}
				rates[name] = merged
			}
			merged.merge(*acc)
		}
		for name, samples := range s.trends {
			trends[name] = append(trends[name], samples...)
		}
		for name, acc := range s.counters {
			merged, ok := counters[name]
			if !ok {
				merged = &counterAcc{}
				counters[name] = merged
			}
			merged.sum += acc.sum
		}
	}

	seconds := elapsed.Seconds()
	out := make(map[string]types.MetricSummary, len(r.specs))
	for _, name := range r.order {
		spec := r.specs[name]
		out[name] = summarize(spec, rates[name], trends[name], counters[name], seconds)
	}
	for name, acc := range rates {
		if _, ok := out[name]; !ok {
			out[name] = summarize(RateSpec(name), acc, nil, nil, seconds)
		}
	}
	for name, samples := range trends {
		if _, ok := out[name]; !ok {
			out[name] = summarize(TrendSpec(name, false), nil, samples, nil, seconds)
		}
	}
	for name, acc := range counters {
		if _, ok := out[name]; !ok {
			out[name] = summarize(CounterSpec(name), nil, nil, acc, seconds)
		}
	}
	return out
}

func summarize(spec Spec, rate *rateAcc, trend []float64, counter *counterAcc, seconds float64) types.MetricSummary {
	summary := types.MetricSummary{Type: spec.Type, Contains: spec.Contains}
	switch spec.Type {
	case types.MetricTypeRate:
		acc := rateAcc{}
		if rate != nil {
			acc = *rate
		}
		summary.Values = acc.values()
	case types.MetricTypeCounter:
		acc := counterAcc{}
		if counter != nil {
			acc = *counter
		}
		summary.Values = acc.values(seconds)
	default:
		summary.Values = trendValues(trend)
	}
	return summary
}

// Shard accumulates samples for one worker. It is not safe for concurrent use;
// concurrency comes from giving every worker its own shard.
type Shard struct {
	rates    map[string]*rateAcc
	trends   map[string][]float64
	counters map[string]*counterAcc
}

func (s *Shard) AddRate(name string, ok bool) {
	acc, found := s.rates[name]
	if !found {
		acc = &rateAcc{}
		s.rates[name] = acc
	}
	if ok {
		acc.passes++
	} else {
		acc.fails++
	}
}

func (s *Shard) AddTrend(name string, v float64) {
	s.trends[name] = append(s.trends[name], v)
}

// AddDuration records d in milliseconds.
func (s *Shard) AddDuration(name string, d time.Duration) {
	s.AddTrend(name, float64(d)/float64(time.Millisecond))
}

func (s *Shard) AddCounter(name string, v float64) {
	acc, found := s.counters[name]
	if !found {
		acc = &counterAcc{}
		s.counters[name] = acc
	}
	acc.sum += v
}
