// Package metrics provides a small, backend-agnostic abstraction for
// recording operational metrics from request execution.
//
// It exposes a narrow interface (Backend) focused on counters and timing
// data, with a global, pluggable backend that defaults to a no-op
// implementation, so metrics are always safe to call even when no real
// backend is configured. Concrete systems (e.g. a Prometheus Pushgateway)
// live in subpackages and are installed via SetBackend, mirroring the
// connector registry pattern: the core code depends only on this interface.
package metrics

import "time"

// Labels are string key/value pairs attached to a metric.
type Labels map[string]string

// Backend is the minimal interface for metrics backends.
type Backend interface {
	// IncCounter increments a counter by delta.
	IncCounter(name string, delta float64, labels Labels)
	// ObserveHistogram records a value in a latency/duration style metric.
	ObserveHistogram(name string, value float64, labels Labels)
	// Flush pushes or flushes metrics, if the backend needs it (e.g. Pushgateway).
	Flush() error
}

// nopBackend is used by default so metrics are optional.
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

// RecordOp measures one connector operation: latency plus success/failure.
// Typical ops are "test", "retrieve", and "mask".
func RecordOp(connection, op string, err error, d time.Duration) {
	status := "success"
	if err != nil {
		status = "failure"
	}

	lbls := Labels{
		"connection": connection,
		"op":         op,
		"status":     status,
	}

	backend.IncCounter("dsr_connector_ops_total", 1, lbls)
	backend.ObserveHistogram("dsr_connector_op_duration_seconds", d.Seconds(), lbls)
}

// RecordRows increments a row-level counter for the given connection.
//
// Typical kinds mirror the execution summary fields:
//   - "retrieved"
//   - "masked"
//   - "skipped"
func RecordRows(connection, kind string, delta int64) {
	if delta <= 0 {
		return
	}
	backend.IncCounter("dsr_rows_total", float64(delta), Labels{
		"connection": connection,
		"kind":       kind,
	})
}

// RecordRequests increments a generated-request counter for the given
// connection and action ("read", "update", "delete").
func RecordRequests(connection, action string, delta int64) {
	if delta <= 0 {
		return
	}
	backend.IncCounter("dsr_requests_total", float64(delta), Labels{
		"connection": connection,
		"action":     action,
	})
}
