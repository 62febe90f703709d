// Package metrics records operational metrics from the pipeline stages.
//
// Callers depend only on the Backend interface. A no-op backend is installed
// by default so every helper is safe to call when no metrics system is
// configured; cmd/gdqvods installs a Pushgateway or DogStatsD backend on
// request.
package metrics

import "time"

// Metric names shared by all backends.
const (
	StepTotal           = "gdqvods_step_total"
	StepDurationSeconds = "gdqvods_step_duration_seconds"
	RowsTotal           = "gdqvods_rows_total"
	BatchesTotal        = "gdqvods_batches_total"
	LookupsTotal        = "gdqvods_lookups_total"
)

// Labels are string key/value pairs attached to a metric.
type Labels map[string]string

// Backend is the minimal interface for metrics backends.
type Backend interface {
	// IncCounter increments a counter by delta.
	IncCounter(name string, delta float64, labels Labels)
	// ObserveHistogram records a value in a duration style metric.
	ObserveHistogram(name string, value float64, labels Labels)
	// Flush pushes or flushes metrics, if the backend needs it (e.g. Pushgateway).
	Flush() error
}

type nopBackend struct{}

func (nopBackend) IncCounter(name string, delta float64, labels Labels)       {}
func (nopBackend) ObserveHistogram(name string, value float64, labels Labels) {}
func (nopBackend) Flush() error                                               { return nil }

var backend Backend = nopBackend{}

// SetBackend installs a concrete backend. Passing nil keeps the existing backend.
func SetBackend(b Backend) {
	if b == nil {
		return
	}
	backend = b
}

// Flush delegates to the current backend.
func Flush() error {
	return backend.Flush()
}

// RecordStep counts one execution of a pipeline stage and observes its
// latency, labelled with success or failure.
func RecordStep(job, step string, err error, d time.Duration) {
	status := "success"
	if err != nil {
		status = "failure"
	}

	lbls := Labels{
		"job":    job,
		"step":   step,
		"status": status,
	}

	backend.IncCounter(StepTotal, 1, lbls)
	backend.ObserveHistogram(StepDurationSeconds, d.Seconds(), lbls)
}

// RecordRows counts rows produced for a table.
//
// Typical kinds:
//   - "written"
//   - "enriched"
//   - "unmatched"
func RecordRows(job, table, kind string, delta int64) {
	if delta <= 0 {
		return
	}
	backend.IncCounter(RowsTotal, float64(delta), Labels{
		"job":   job,
		"table": table,
		"kind":  kind,
	})
}

// RecordBatches increments a batch-level counter, e.g. insert batches or
// enrichment requests.
func RecordBatches(job, kind string, delta int64) {
	if delta <= 0 {
		return
	}
	backend.IncCounter(BatchesTotal, float64(delta), Labels{
		"job":  job,
		"kind": kind,
	})
}

// RecordLookups counts enrichment ids by outcome ("requested", "matched",
// "missed").
func RecordLookups(job, outcome string, delta int64) {
	if delta <= 0 {
		return
	}
	backend.IncCounter(LookupsTotal, float64(delta), Labels{
		"job":     job,
		"outcome": outcome,
	})
}
