// Package metrics holds the Prometheus instruments for the import pipeline.
// All collectors are registered with the global registry, so importing this
// package is enough to expose them on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	UploadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orderimport_uploads_total",
			Help: "Upload attempts by result (stored, rejected, failed).",
		}, []string{"result"})

	RowsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orderimport_rows_total",
			Help: "Evaluated data rows by outcome (succeeded, failed).",
		}, []string{"outcome"})

	ProcessingSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "orderimport_processing_seconds",
			Help:    "Duration of the processing stage.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		})

	CleanupFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orderimport_cleanup_failures_total",
			Help: "Best-effort blob deletions or status updates that failed, by stage.",
		}, []string{"stage"})

	CompensationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orderimport_compensations_total",
			Help: "Compensating rollbacks executed after a failed stage, by stage.",
		}, []string{"stage"})
)

func init() {
	prometheus.MustRegister(
		UploadsTotal,
		RowsTotal,
		ProcessingSeconds,
		CleanupFailuresTotal,
		CompensationsTotal,
	)
}
