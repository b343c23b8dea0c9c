package worker

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func makeItems(n int) []string {
	items := make([]string, n)
	for i := range items {
		items[i] = fmt.Sprintf("cid%d", i)
	}
	return items
}

func TestPoolProcessesEveryItemOnce(t *testing.T) {
	for _, tc := range []struct{ workers, items int }{
		{1, 0}, {1, 1}, {1, 17}, {4, 3}, {4, 100}, {16, 257},
	} {
		t.Run(fmt.Sprintf("%dvu_%d", tc.workers, tc.items), func(t *testing.T) {
			items := makeItems(tc.items)
			var mu sync.Mutex
			seen := make(map[string]int)

			p := NewPool(items, func(_ context.Context, it Iteration) {
				if items[it.Index] != it.Identifier {
					t.Errorf("index %d mapped to %q", it.Index, it.Identifier)
				}
				mu.Lock()
				seen[it.Identifier]++
				mu.Unlock()
			}, WithWorkerCount(tc.workers))

			stats := p.Run(context.Background())
			if stats.Completed != tc.items || stats.Total != tc.items {
				t.Fatalf("expected %d completed, got %+v", tc.items, stats)
			}
			if stats.DeadlineExceeded {
				t.Fatalf("unexpected deadline flag")
			}
			if len(stats.PerWorker) != tc.workers {
				t.Fatalf("expected %d per-worker counts, got %d", tc.workers, len(stats.PerWorker))
			}
			sum := 0
			for _, n := range stats.PerWorker {
				sum += n
			}
			if sum != tc.items {
				t.Fatalf("per-worker sum %d != %d", sum, tc.items)
			}
			if len(seen) != tc.items {
				t.Fatalf("expected %d distinct identifiers, got %d", tc.items, len(seen))
			}
			for id, n := range seen {
				if n != 1 {
					t.Fatalf("identifier %s processed %d times", id, n)
				}
			}
		})
	}
}

func TestPoolRunsWorkersConcurrently(t *testing.T) {
	var active, peak atomic.Int32
	p := NewPool(makeItems(8), func(context.Context, Iteration) {
		n := active.Add(1)
		for {
			cur := peak.Load()
			if n <= cur || peak.CompareAndSwap(cur, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		active.Add(-1)
	}, WithWorkerCount(4))

	p.Run(context.Background())
	if peak.Load() < 2 {
		t.Fatalf("expected overlapping iterations, peak %d", peak.Load())
	}
	if peak.Load() > 4 {
		t.Fatalf("more iterations in flight than workers: %d", peak.Load())
	}
}

func TestPoolDeadlineStopsClaimingButFinishesInFlight(t *testing.T) {
	var finished atomic.Int32
	var cancelledInFlight atomic.Int32

	p := NewPool(makeItems(50), func(ctx context.Context, it Iteration) {
		time.Sleep(30 * time.Millisecond)
		if ctx.Err() != nil {
			cancelledInFlight.Add(1)
		}
		finished.Add(1)
	}, WithWorkerCount(2), WithMaxDuration(50*time.Millisecond))

	stats := p.Run(context.Background())
	if !stats.DeadlineExceeded {
		t.Fatalf("expected deadline to be exceeded: %+v", stats)
	}
	if stats.Completed >= 50 || stats.Completed == 0 {
		t.Fatalf("expected partial completion, got %d", stats.Completed)
	}
	if int(finished.Load()) != stats.Completed {
		t.Fatalf("started iterations must finish: finished=%d completed=%d", finished.Load(), stats.Completed)
	}
	if cancelledInFlight.Load() != 0 {
		t.Fatalf("in-flight iterations observed a cancelled context")
	}
}

func TestPoolStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := NewPool(makeItems(100), func(context.Context, Iteration) {
		cancel()
	}, WithWorkerCount(1))

	stats := p.Run(ctx)
	if stats.Completed != 1 {
		t.Fatalf("expected 1 completed iteration, got %d", stats.Completed)
	}
	if stats.DeadlineExceeded {
		t.Fatalf("cancellation is not a deadline")
	}
}

func TestPoolRateLimit(t *testing.T) {
	start := time.Now()
	p := NewPool(makeItems(5), nil, WithWorkerCount(5), WithRate(50, 1))
	stats := p.Run(context.Background())
	if stats.Completed != 5 {
		t.Fatalf("expected 5 completed, got %d", stats.Completed)
	}
	if elapsed := time.Since(start); elapsed < 60*time.Millisecond {
		t.Fatalf("expected pacing to spread starts, took %s", elapsed)
	}
}

func TestPoolElapsedUsesClock(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	calls := 0
	now := func() time.Time {
		calls++
		return base.Add(time.Duration(calls) * time.Second)
	}
	p := NewPool(makeItems(3), nil, WithNow(now))
	stats := p.Run(context.Background())
	if stats.Elapsed != time.Second {
		t.Fatalf("expected 1s elapsed, got %s", stats.Elapsed)
	}
	if p.Completed() != 3 || p.Total() != 3 {
		t.Fatalf("unexpected counters %d/%d", p.Completed(), p.Total())
	}
}
