// Package prompush implements a Prometheus Pushgateway backend for the
// metrics package.
//
// This package adapts the generic metrics.Backend interface to Prometheus by:
//
//   - Using client_golang CounterVec and SummaryVec collectors.
//   - Mapping the common labels (connection, op, status, kind, action) onto
//     Prometheus labels.
//   - Pushing collected metrics to a Prometheus Pushgateway instance instead
//     of exposing an HTTP scrape endpoint, since request fulfillment runs are
//     short-lived jobs rather than long-running servers.
//
// The package intentionally contains all Prometheus-specific dependencies so
// that the rest of the project remains decoupled from Prometheus and can swap
// to alternative backends without changes to the connectors.
package prompush

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"

	"dsrgraph/internal/metrics"
)

// Backend is a Prometheus Pushgateway metrics backend.
type Backend struct {
	gatewayURL string // e.g. http://pushgateway:9091
	jobName    string // Pushgateway "job" group
	reg        *prometheus.Registry

	opCounter  *prometheus.CounterVec // "dsr_connector_ops_total"
	opDuration *prometheus.SummaryVec // "dsr_connector_op_duration_seconds"

	rowCounter     *prometheus.CounterVec // "dsr_rows_total"
	requestCounter *prometheus.CounterVec // "dsr_requests_total"
}

// NewBackend constructs a Prometheus Pushgateway backend.
// jobName: the Pushgateway "job" name, often the privacy-request ID.
// gatewayURL: base URL of the Pushgateway server.
func NewBackend(jobName, gatewayURL string) (*Backend, error) {
	if gatewayURL == "" {
		return nil, fmt.Errorf("prompush: gateway URL is required")
	}
	if jobName == "" {
		jobName = "dsr"
	}

	reg := prometheus.NewRegistry()

	opCounter := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dsr_connector_ops_total",
			Help: "Total connector operations, partitioned by connection, op, and status.",
		},
		[]string{"connection", "op", "status"},
	)
	opDuration := prometheus.NewSummaryVec(
		prometheus.SummaryOpts{
			Name:       "dsr_connector_op_duration_seconds",
			Help:       "Duration of connector operations in seconds, partitioned by connection, op, and status.",
			Objectives: map[float64]float64{0.5: 0.05, 0.9: 0.01, 0.99: 0.001},
		},
		[]string{"connection", "op", "status"},
	)
	rowCounter := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dsr_rows_total",
			Help: "Row-level counts per connection and kind (retrieved, masked, skipped).",
		},
		[]string{"connection", "kind"},
	)
	requestCounter := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dsr_requests_total",
			Help: "Generated requests per connection and action (read, update, delete).",
		},
		[]string{"connection", "action"},
	)

	if err := reg.Register(opCounter); err != nil {
		return nil, fmt.Errorf("prompush: register op counter: %w", err)
	}
	if err := reg.Register(opDuration); err != nil {
		return nil, fmt.Errorf("prompush: register op summary: %w", err)
	}
	if err := reg.Register(rowCounter); err != nil {
		return nil, fmt.Errorf("prompush: register row counter: %w", err)
	}
	if err := reg.Register(requestCounter); err != nil {
		return nil, fmt.Errorf("prompush: register request counter: %w", err)
	}

	return &Backend{
		gatewayURL:     gatewayURL,
		jobName:        jobName,
		reg:            reg,
		opCounter:      opCounter,
		opDuration:     opDuration,
		rowCounter:     rowCounter,
		requestCounter: requestCounter,
	}, nil
}

func (b *Backend) IncCounter(name string, delta float64, labels metrics.Labels) {
	switch name {
	case "dsr_connector_ops_total":
		if b.opCounter == nil {
			return
		}
		b.opCounter.WithLabelValues(labels["connection"], labels["op"], labels["status"]).Add(delta)

	case "dsr_rows_total":
		if b.rowCounter == nil {
			return
		}
		b.rowCounter.WithLabelValues(labels["connection"], labels["kind"]).Add(delta)

	case "dsr_requests_total":
		if b.requestCounter == nil {
			return
		}
		b.requestCounter.WithLabelValues(labels["connection"], labels["action"]).Add(delta)

	default:
		// unknown metric name: ignore
	}
}

func (b *Backend) ObserveHistogram(name string, value float64, labels metrics.Labels) {
	if name != "dsr_connector_op_duration_seconds" || b.opDuration == nil {
		return
	}
	b.opDuration.WithLabelValues(labels["connection"], labels["op"], labels["status"]).Observe(value)
}

// Flush pushes the current registry to the Pushgateway.
func (b *Backend) Flush() error {
	return push.New(b.gatewayURL, b.jobName).
		Gatherer(b.reg).
		Push()
}
