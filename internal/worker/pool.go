package worker

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// Iteration binds one corpus element to one execution.
type Iteration struct {
	Index      int
	Identifier string
	Worker     int
}

// Handler executes a single iteration. It blocks until the iteration is finished.
type Handler func(ctx context.Context, it Iteration)

// Stats describes how the iteration space was consumed.
type Stats struct {
	Total            int
	Completed        int
	PerWorker        []int
	DeadlineExceeded bool
	Elapsed          time.Duration
}

// Pool hands a fixed iteration space to a fixed number of workers. Each index is
// claimed by exactly one worker.
type Pool struct {
	items       []string
	handler     Handler
	workerCount int
	maxDuration time.Duration
	limiter     *rate.Limiter
	now         func() time.Time

	cursor    atomic.Int64
	completed atomic.Int64
}

type PoolOption func(*Pool)

func WithWorkerCount(n int) PoolOption {
	return func(p *Pool) {
		if n > 0 {
			p.workerCount = n
		}
	}
}

// WithMaxDuration sets the global deadline after which no new iteration is claimed.
func WithMaxDuration(d time.Duration) PoolOption {
	return func(p *Pool) {
		if d > 0 {
			p.maxDuration = d
		}
	}
}

// WithRate paces iteration starts across all workers.
func WithRate(perSecond float64, burst int) PoolOption {
	return func(p *Pool) {
		if perSecond <= 0 {
			return
		}
		if burst <= 0 {
			burst = 1
		}
		p.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

func WithNow(fn func() time.Time) PoolOption {
	return func(p *Pool) {
		if fn != nil {
			p.now = fn
		}
	}
}

func NewPool(items []string, handler Handler, opts ...PoolOption) *Pool {
	p := &Pool{
		items:       items,
		handler:     handler,
		workerCount: 1,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.workerCount <= 0 {
		p.workerCount = 1
	}
	if p.handler == nil {
		p.handler = func(context.Context, Iteration) {}
	}
	return p
}

// Completed reports iterations finished so far. Safe to call while Run is active.
func (p *Pool) Completed() int {
	return int(p.completed.Load())
}

func (p *Pool) Total() int {
	return len(p.items)
}

func (p *Pool) WorkerCount() int {
	return p.workerCount
}

// Run blocks until the iteration space is exhausted, the deadline elapses or ctx
// is cancelled. In-flight iterations run to completion with ctx, not the deadline.
func (p *Pool) Run(ctx context.Context) Stats {
	start := p.now()

	claimCtx := ctx
	if p.maxDuration > 0 {
		var cancel context.CancelFunc
		claimCtx, cancel = context.WithTimeout(ctx, p.maxDuration)
		defer cancel()
	}

	perWorker := make([]int, p.workerCount)
	var wg sync.WaitGroup
	for i := 0; i < p.workerCount; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			perWorker[worker] = p.runWorker(ctx, claimCtx, worker)
		}(i)
	}
	wg.Wait()

	completed := int(p.completed.Load())
	return Stats{
		Total:            len(p.items),
		Completed:        completed,
		PerWorker:        perWorker,
		DeadlineExceeded: completed < len(p.items) && ctx.Err() == nil && claimCtx.Err() != nil,
		Elapsed:          p.now().Sub(start),
	}
}

func (p *Pool) runWorker(ctx, claimCtx context.Context, worker int) int {
	done := 0
	for {
		if claimCtx.Err() != nil {
			return done
		}
		if p.limiter != nil {
			if err := p.limiter.Wait(claimCtx); err != nil {
				return done
			}
		}
		idx := int(p.cursor.Add(1) - 1)
		if idx >= len(p.items) {
			return done
		}
		p.handler(ctx, Iteration{Index: idx, Identifier: p.items[idx], Worker: worker})
		p.completed.Add(1)
		done++
	}
}
