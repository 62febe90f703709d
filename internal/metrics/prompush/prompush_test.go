package prompush

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"gdqvods/internal/metrics"
)

// readCounterValue reads the current value of a Counter for assertions in tests.
func readCounterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()

	m := &dto.Metric{}
	if err := c.Write(m); err != nil {
		t.Fatalf("Counter.Write() error = %v", err)
	}
	if m.GetCounter() == nil {
		t.Fatalf("metric did not contain Counter value")
	}
	return m.GetCounter().GetValue()
}

func TestNewBackend(t *testing.T) {
	t.Parallel()

	if _, err := NewBackend("job", ""); err == nil {
		t.Fatal("missing gateway URL: want error")
	}
	b, err := NewBackend("", "http://pushgateway:9091")
	if err != nil {
		t.Fatalf("NewBackend: %v", err)
	}
	if b.jobName != "gdqvods" {
		t.Fatalf("jobName = %q; want gdqvods", b.jobName)
	}
}

func TestIncCounter_RoutesByName(t *testing.T) {
	t.Parallel()

	b, err := NewBackend("gdq", "http://pushgateway:9091")
	if err != nil {
		t.Fatal(err)
	}

	b.IncCounter(metrics.StepTotal, 1, metrics.Labels{"step": "runs", "status": "success"})
	b.IncCounter(metrics.RowsTotal, 3, metrics.Labels{"table": "GDQvods_runs", "kind": "written"})
	b.IncCounter(metrics.RowsTotal, 2, metrics.Labels{"table": "GDQvods_runs", "kind": "written"})
	b.IncCounter(metrics.BatchesTotal, 1, metrics.Labels{"kind": "lookup"})
	b.IncCounter(metrics.LookupsTotal, 4, metrics.Labels{"outcome": "matched"})
	b.IncCounter("unknown_metric", 9, nil)

	checks := []struct {
		name string
		c    prometheus.Counter
		want float64
	}{
		{"step", b.stepCounter.WithLabelValues("runs", "success"), 1},
		{"rows", b.rowCounter.WithLabelValues("GDQvods_runs", "written"), 5},
		{"batches", b.batchCounter.WithLabelValues("lookup"), 1},
		{"lookups", b.lookupCounter.WithLabelValues("matched"), 4},
	}
	for _, c := range checks {
		if got := readCounterValue(t, c.c); got != c.want {
			t.Fatalf("%s counter = %v; want %v", c.name, got, c.want)
		}
	}
}

func TestFlush_PushesToGateway(t *testing.T) {
	t.Parallel()

	var gotPath, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	b, err := NewBackend("gdq", srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	b.IncCounter(metrics.StepTotal, 1, metrics.Labels{"step": "runs", "status": "success"})
	b.ObserveHistogram(metrics.StepDurationSeconds, 0.25, metrics.Labels{"step": "runs", "status": "success"})

	if err := b.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if gotPath != "/metrics/job/gdq" {
		t.Fatalf("push path = %q; want /metrics/job/gdq", gotPath)
	}
	if !strings.Contains(gotBody, metrics.StepTotal) {
		t.Fatalf("pushed body does not mention %s", metrics.StepTotal)
	}
}
