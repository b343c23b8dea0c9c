// Package health checks that configured backends answer before a run spends
// its corpus on them.
package health

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/pingsantohq/cidbench/internal/probe"
)

const defaultTimeout = 5 * time.Second

const (
	categoryNotConfigured = "BACKEND_NOT_CONFIGURED"
	categoryUnreachable   = "BACKEND_UNREACHABLE"
	categoryServerError   = "BACKEND_SERVER_ERROR"
)

const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// Finding is one reason a backend may not produce useful samples.
type Finding struct {
	Backend  string
	Category string
	Severity string
	Reason   string
}

func (f Finding) String() string {
	return fmt.Sprintf("%s: %s (%s)", f.Backend, f.Reason, f.Severity)
}

// Checker issues one request to each backend's base URL.
type Checker struct {
	client  *http.Client
	timeout time.Duration
}

// NewChecker builds a checker. A nil client uses http.DefaultClient.
func NewChecker(client *http.Client, timeout time.Duration) *Checker {
	if client == nil {
		client = http.DefaultClient
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Checker{client: client, timeout: timeout}
}

// Check probes every backend concurrently. Ready is false when any enabled
// backend could not be reached; unconfigured backends are reported at info
// severity and do not affect readiness.
func (c *Checker) Check(ctx context.Context, backends []probe.Backend) (bool, []Finding) {
	findings := make([][]Finding, len(backends))
	var wg sync.WaitGroup
	for i, b := range backends {
		if !b.Enabled() {
			findings[i] = []Finding{{
				Backend:  b.Name,
				Category: categoryNotConfigured,
				Severity: SeverityInfo,
				Reason:   fmt.Sprintf("%s is not configured; its probes will be skipped", b.Kind),
			}}
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			findings[i] = c.checkOne(ctx, b)
		}()
	}
	wg.Wait()

	var out []Finding
	ready := true
	for _, fs := range findings {
		for _, f := range fs {
			if f.Severity == SeverityCritical {
				ready = false
			}
			out = append(out, f)
		}
	}
	return ready, out
}

func (c *Checker) checkOne(ctx context.Context, b probe.Backend) []Finding {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, b.BaseURL, nil)
	if err != nil {
		return []Finding{{Backend: b.Name, Category: categoryUnreachable, Severity: SeverityCritical, Reason: err.Error()}}
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return []Finding{{Backend: b.Name, Category: categoryUnreachable, Severity: SeverityCritical, Reason: fmt.Sprintf("%s unreachable: %v", b.BaseURL, err)}}
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	// Any answer means the host is up; 5xx on the root is worth a warning.
	if resp.StatusCode >= http.StatusInternalServerError {
		return []Finding{{
			Backend:  b.Name,
			Category: categoryServerError,
			Severity: SeverityWarning,
			Reason:   fmt.Sprintf("%s answered %d", b.BaseURL, resp.StatusCode),
		}}
	}
	return nil
}
