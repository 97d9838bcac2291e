// Package metrics registers the Prometheus collectors of the ingestion API.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// itemsTotal counts processed items by table, operation and result
	// ("created", "updated", "deleted" or a failure kind).
	itemsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingest_items_total",
			Help: "Ingested items by table, operation and result",
		},
		[]string{"table", "operation", "result"},
	)

	itemDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ingest_item_duration_seconds",
			Help:    "Per-item pipeline duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"table", "operation"},
	)

	batchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingest_batches_total",
			Help: "Ingestion requests by table, operation and outcome",
		},
		[]string{"table", "operation", "outcome"},
	)

	batchSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ingest_batch_items",
			Help:    "Number of items per ingestion request",
			Buckets: prometheus.ExponentialBuckets(1, 4, 8),
		},
		[]string{"table", "operation"},
	)

	// archiveInconsistencies counts failures that may leave the archive and
	// the database out of step: failed orphan cleanup after a rollback, and
	// commit failures after an archive overwrite.
	archiveInconsistencies = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingest_archive_inconsistencies_total",
			Help: "Archive files that may not match the database",
		},
		[]string{"table", "reason"},
	)

	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingest_http_requests_total",
			Help: "HTTP requests to the ingestion API",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ingest_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

// Inconsistency reasons
const (
	ReasonCleanupFailed        = "cleanup_failed"
	ReasonCommitAfterOverwrite = "commit_after_overwrite"
)

// ObserveItem records one finished item
func ObserveItem(table, operation, result string, d time.Duration) {
	itemsTotal.WithLabelValues(table, operation, result).Inc()
	itemDuration.WithLabelValues(table, operation).Observe(d.Seconds())
}

// ObserveBatch records one finished request
func ObserveBatch(table, operation, outcome string, items int) {
	batchesTotal.WithLabelValues(table, operation, outcome).Inc()
	batchSize.WithLabelValues(table, operation).Observe(float64(items))
}

// ArchiveInconsistency records a possible archive/database mismatch
func ArchiveInconsistency(table, reason string) {
	archiveInconsistencies.WithLabelValues(table, reason).Inc()
}

// ObserveHTTP records one served request. path must be the route
// template, not the raw URL.
func ObserveHTTP(method, path, status string, d time.Duration) {
	httpRequestsTotal.WithLabelValues(method, path, status).Inc()
	httpRequestDuration.WithLabelValues(method, path).Observe(d.Seconds())
}
