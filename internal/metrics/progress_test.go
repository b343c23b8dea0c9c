package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestProgressSnapshot(t *testing.T) {
	p := NewProgress()
	p.SetTotal(3)
	p.IterationDone()
	p.IterationDone()

	snap := p.Snapshot()
	if snap.Completed != 2 || snap.Total != 3 {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
}

func TestProgressHandlerExposesCollectors(t *testing.T) {
	p := NewProgress()
	p.SetTotal(5)
	p.IterationDone()
	p.ObserveProbe("kubo", ResultSuccess, 120*time.Millisecond)
	p.ObserveProbe("indexer", ResultFailure, 80*time.Millisecond)

	srv := httptest.NewServer(p.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("GET metrics: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	output := string(body)

	expect := []string{
		"cidbench_iterations_completed_total 1",
		"cidbench_iterations_planned 5",
		`cidbench_probe_requests_total{backend="kubo",result="success"} 1`,
		`cidbench_probe_requests_total{backend="indexer",result="failure"} 1`,
		`cidbench_probe_duration_seconds_count{backend="kubo"} 1`,
	}
	for _, line := range expect {
		if !strings.Contains(output, line) {
			t.Fatalf("expected %q in output:\n%s", line, output)
		}
	}
}

func TestNoopProgressRecorder(t *testing.T) {
	var rec ProgressRecorder = NoopProgressRecorder{}
	rec.SetTotal(1)
	rec.IterationDone()
	rec.ObserveProbe("kubo", ResultSuccess, time.Millisecond)
}
