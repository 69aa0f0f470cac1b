// Package metrics holds the operational counters of the pipeline itself
// (not the Batch metrics it publishes).
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "batch_metrics"

// Metrics is the set of counters updated by the orchestrator.
//
// Every instance owns a private registry so tests and multiple
// orchestrators in one process never collide on registration.
type Metrics struct {
	registry *prometheus.Registry

	// BatchesTotal counts ProcessBatch calls, including fatal envelopes.
	BatchesTotal prometheus.Counter

	// BatchesFailedTotal counts batches that returned a batch scoped error
	// (fatal envelope, export delivery failure, cancellation). Each one is
	// redelivered by the transport.
	BatchesFailedTotal prometheus.Counter

	// RecordsTotal counts records received in non-fatal batches.
	RecordsTotal prometheus.Counter

	// RecordsProcessedTotal counts records whose metric record was
	// accepted by the metrics sink.
	RecordsProcessedTotal prometheus.Counter

	// RecordFailuresTotal counts record scoped failures by error kind
	// (MalformedEvent, InvalidInterval, DivisionByZero, SinkRejected, Timeout).
	RecordFailuresTotal *prometheus.CounterVec

	// MetricSubmissionsTotal counts emit calls made to the metrics sink.
	MetricSubmissionsTotal prometheus.Counter

	ExportRecordsTotal       prometheus.Counter
	ExportFailedRecordsTotal prometheus.Counter
}

// New builds the counters and registers them on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		BatchesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "batches_total",
			Help: "Batches received.",
		}),
		BatchesFailedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "batches_failed_total",
			Help: "Batches that failed with a batch scoped error.",
		}),
		RecordsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "records_total",
			Help: "Records received.",
		}),
		RecordsProcessedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "records_processed_total",
			Help: "Records whose metrics were emitted.",
		}),
		RecordFailuresTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "record_failures_total",
			Help: "Record scoped failures by kind.",
		}, []string{"kind"}),
		MetricSubmissionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "metric_submissions_total",
			Help: "Submissions made to the metrics sink.",
		}),
		ExportRecordsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "export_records_total",
			Help: "Raw records handed to the durable stream sink.",
		}),
		ExportFailedRecordsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "export_failed_records_total",
			Help: "Raw records the durable stream sink rejected.",
		}),
	}

	m.registry.MustRegister(
		m.BatchesTotal,
		m.BatchesFailedTotal,
		m.RecordsTotal,
		m.RecordsProcessedTotal,
		m.RecordFailuresTotal,
		m.MetricSubmissionsTotal,
		m.ExportRecordsTotal,
		m.ExportFailedRecordsTotal,
	)
	return m
}

// Registry exposes the private registry, mostly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordFailure counts one failed record under kind.
func (m *Metrics) RecordFailure(kind string) {
	m.RecordFailuresTotal.WithLabelValues(kind).Inc()
}
