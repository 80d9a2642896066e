// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Reconciliation metrics
	RunsTotal          *prometheus.CounterVec
	RunDuration        prometheus.Histogram
	ProjectsCreated    prometheus.Counter
	ProjectsUpdated    prometheus.Counter
	ProjectsAdded      prometheus.Counter
	ProjectsRemoved    prometheus.Counter
	ProjectsRestored   prometheus.Counter
	SnapshotSize       prometheus.Gauge
	LastSuccessfulRun  prometheus.Gauge

	// Delivery metrics
	NotificationsSent   prometheus.Counter
	NotificationErrors  prometheus.Counter
	MetricPointsWritten prometheus.Counter
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "pendle_watch"
	}

	return &Metrics{
		RunsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reconcile",
			Name:      "runs_total",
			Help:      "Total number of reconciliation runs by status",
		}, []string{"status"}),
		RunDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "reconcile",
			Name:      "run_duration_seconds",
			Help:      "Duration of reconciliation runs",
			Buckets:   prometheus.DefBuckets,
		}),
		ProjectsCreated: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reconcile",
			Name:      "projects_created_total",
			Help:      "Total number of project rows created",
		}),
		ProjectsUpdated: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reconcile",
			Name:      "projects_updated_total",
			Help:      "Total number of project rows updated",
		}),
		ProjectsAdded: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reconcile",
			Name:      "universe_additions_total",
			Help:      "Total number of Added ledger rows recorded",
		}),
		ProjectsRemoved: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reconcile",
			Name:      "universe_removals_total",
			Help:      "Total number of Removed ledger rows recorded",
		}),
		ProjectsRestored: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reconcile",
			Name:      "projects_restored_total",
			Help:      "Total number of projects restored to the universe",
		}),
		SnapshotSize: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "reconcile",
			Name:      "snapshot_size",
			Help:      "Number of market entries in the last fetched snapshot",
		}),
		LastSuccessfulRun: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "reconcile",
			Name:      "last_successful_run_timestamp_seconds",
			Help:      "Unix timestamp of the last successful run",
		}),
		NotificationsSent: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "delivery",
			Name:      "notifications_sent_total",
			Help:      "Total number of notifications delivered",
		}),
		NotificationErrors: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "delivery",
			Name:      "notification_errors_total",
			Help:      "Total number of notification delivery failures",
		}),
		MetricPointsWritten: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "delivery",
			Name:      "metric_points_written_total",
			Help:      "Total number of market samples written to the analytics sink",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
