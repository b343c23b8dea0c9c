package probe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/http/httptrace"
	"time"
)

const (
	// DefaultTimeout bounds every probe request.
	DefaultTimeout = 60 * time.Second
	userAgent      = "cidbench/0.1"
	bytesPerMiB    = 1048576
)

// Outcome is the per-iteration, per-backend result handed to the recorder and
// the discrepancy logger.
type Outcome struct {
	Backend       string
	Kind          Kind
	Skipped       bool
	Issued        bool
	StatusCode    int
	HTTPSucceeded bool
	Succeeded     bool
	Duration      time.Duration
	TTFB          time.Duration
	Bytes         int64
	Providers     []string
	Err           error
}

// Configured reports whether the backend took part in the iteration.
func (o Outcome) Configured() bool {
	return !o.Skipped
}

// Throughput returns MiB per second over the full request duration, or false
// when no payload was transferred.
func (o Outcome) Throughput() (float64, bool) {
	if !o.Succeeded || o.Bytes <= 0 || o.Duration <= 0 {
		return 0, false
	}
	return (float64(o.Bytes) / bytesPerMiB) / o.Duration.Seconds(), true
}

// Dependencies allow test overrides for HTTP client, clock, and logging.
type Dependencies struct {
	HTTPClient *http.Client
	Now        func() time.Time
	Logger     *log.Logger
}

// Prober issues exactly one timed request per backend per call.
type Prober struct {
	client    *http.Client
	timeout   time.Duration
	rangeSize int64
	now       func() time.Time
	logger    *log.Logger
}

type Option func(*Prober)

// WithTimeout overrides DefaultTimeout.
func WithTimeout(d time.Duration) Option {
	return func(p *Prober) {
		if d > 0 {
			p.timeout = d
		}
	}
}

// WithRangeSize makes fetch probes request only the first n bytes.
func WithRangeSize(n int64) Option {
	return func(p *Prober) {
		if n > 0 {
			p.rangeSize = n
		}
	}
}

func NewProber(deps Dependencies, opts ...Option) *Prober {
	p := &Prober{
		client:  deps.HTTPClient,
		timeout: DefaultTimeout,
		now:     deps.Now,
		logger:  deps.Logger,
	}
	if p.client == nil {
		p.client = &http.Client{}
	}
	if p.now == nil {
		p.now = time.Now
	}
	if p.logger == nil {
		p.logger = log.New(io.Discard, "", 0)
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Probe runs one request for identifier against backend. Transport failures,
// timeouts and non-2xx responses are reported in the Outcome, never as panics
// or retries.
func (p *Prober) Probe(ctx context.Context, backend Backend, identifier string) Outcome {
	out := Outcome{Backend: backend.Name, Kind: backend.Kind}
	if !backend.Enabled() {
		out.Skipped = true
		return out
	}

	reqCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	req, err := backend.newRequest(reqCtx, identifier, p.rangeSize)
	if err != nil {
		p.logger.Printf("probe %s %s: %v", backend.Name, identifier, err)
		out.Err = err
		return out
	}

	start := p.now()
	var firstByte time.Time
	trace := &httptrace.ClientTrace{
		GotFirstResponseByte: func() {
			firstByte = p.now()
		},
	}
	req = req.WithContext(httptrace.WithClientTrace(req.Context(), trace))

	out.Issued = true
	resp, err := p.client.Do(req)
	if err != nil {
		out.Duration = p.now().Sub(start)
		out.Err = classify(err)
		return out
	}
	defer resp.Body.Close()

	out.StatusCode = resp.StatusCode
	out.HTTPSucceeded = resp.StatusCode >= 200 && resp.StatusCode < 300

	var body []byte
	if out.HTTPSucceeded && backend.Kind.Discovery() {
		body, err = io.ReadAll(resp.Body)
		out.Bytes = int64(len(body))
	} else {
		out.Bytes, err = io.Copy(io.Discard, resp.Body)
	}
	end := p.now()
	out.Duration = end.Sub(start)
	if !firstByte.IsZero() {
		out.TTFB = firstByte.Sub(start)
	}
	if err != nil {
		out.HTTPSucceeded = false
		out.Err = fmt.Errorf("read %s response: %w", backend.Name, classify(err))
		return out
	}
	if !out.HTTPSucceeded {
		out.Err = fmt.Errorf("%s responded %s", backend.Name, resp.Status)
		return out
	}

	if !backend.Kind.Discovery() {
		out.Succeeded = true
		return out
	}

	providers, err := ParseProviders(backend.Kind, body, func(line int, err error) {
		p.logger.Printf("error parsing %s results for %s line %d: %v", backend.Name, identifier, line, err)
	})
	if err != nil {
		p.logger.Printf("parse %s response for %s: %v", backend.Name, identifier, err)
	}
	out.Providers = providers
	switch backend.Kind {
	case DirectDiscovery:
		out.Succeeded = len(providers) > 0
	default:
		out.Succeeded = true
	}
	return out
}

// ErrTimeout marks a request that hit the per-request timeout.
var ErrTimeout = errors.New("probe request timed out")

func classify(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return err
}
