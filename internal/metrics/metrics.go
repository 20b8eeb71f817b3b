// Package metrics provides Prometheus metrics for the key price monitor.
// Scrape these at /metrics for Grafana dashboards and alerting.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP Metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "keymon_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "keymon_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// Collector Metrics
	CollectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "keymon_collections_total",
			Help: "Collection attempts by result",
		},
		[]string{"result"}, // "ok", "empty", "error"
	)

	CollectionDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "keymon_collection_duration_seconds",
			Help:    "Time taken to collect one game's listings",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30},
		},
	)

	SnapshotsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "keymon_snapshots_total",
			Help: "Total number of price snapshots recorded",
		},
	)

	SnapshotsPurgedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "keymon_snapshots_purged_total",
			Help: "Price snapshots removed by retention cleanup",
		},
	)

	// Catalog API Metrics
	CatalogRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "keymon_catalog_requests_total",
			Help: "Upstream catalog API requests by result",
		},
		[]string{"result"}, // "ok", "error"
	)

	// Alert Metrics
	AlertsSentTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "keymon_alerts_sent_total",
			Help: "Alert notifications sent by kind",
		},
		[]string{"kind"}, // "price", "error", "daily_report", "test"
	)

	AlertsSuppressedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "keymon_alerts_suppressed_total",
			Help: "Price alerts dropped by the per-game cooldown window",
		},
	)

	PushDeliveriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "keymon_push_deliveries_total",
			Help: "Per-endpoint push delivery attempts by result",
		},
		[]string{"result"}, // "ok", "failed"
	)

	// Store Metrics
	TrackedGames = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "keymon_tracked_games",
			Help: "Number of games currently tracked",
		},
	)

	DBRecords = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "keymon_db_records",
			Help: "Number of price records in the database",
		},
	)
)
