// Package metrics defines the price-tracker Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Namespace prefixes every price-tracker metric.
const Namespace = "price_tracker"

// Metrics holds the domain collectors.
type Metrics struct {
	// Queue
	QueueDepth    prometheus.Gauge
	QueueEnqueued prometheus.Counter
	QueueResolved prometheus.Counter
	QueueSkipped  prometheus.Counter

	// Ingestion
	ReportsTotal    *prometheus.CounterVec
	HistoryWritten  *prometheus.CounterVec
	ProductsCreated prometheus.Counter
	CreateConflicts prometheus.Counter

	// Notifications
	NotificationsCreated    *prometheus.CounterVec
	NotificationsDispatched *prometheus.CounterVec
	DispatchDuration        prometheus.Histogram

	// Scheduler
	CrawlRequestsPublished prometheus.Counter
}

// New registers the collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	m := &Metrics{}

	m.QueueDepth = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: Namespace, Subsystem: "queue", Name: "depth",
		Help: "Pending queue entries as of the last pull.",
	})
	m.QueueEnqueued = factory.NewCounter(prometheus.CounterOpts{
		Namespace: Namespace, Subsystem: "queue", Name: "enqueued_total",
		Help: "Queue entries created.",
	})
	m.QueueResolved = factory.NewCounter(prometheus.CounterOpts{
		Namespace: Namespace, Subsystem: "queue", Name: "resolved_total",
		Help: "Queue entries deleted by terminal crawl results.",
	})
	m.QueueSkipped = factory.NewCounter(prometheus.CounterOpts{
		Namespace: Namespace, Subsystem: "queue", Name: "skipped_total",
		Help: "Queue entries excluded for a crawler.",
	})

	m.ReportsTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace, Subsystem: "ingest", Name: "reports_total",
		Help: "Crawl reports by status and outcome.",
	}, []string{"status", "outcome"})
	m.HistoryWritten = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace, Subsystem: "ingest", Name: "history_written_total",
		Help: "History records appended by status.",
	}, []string{"status"})
	m.ProductsCreated = factory.NewCounter(prometheus.CounterOpts{
		Namespace: Namespace, Subsystem: "ingest", Name: "products_created_total",
		Help: "Products created from queue reports.",
	})
	m.CreateConflicts = factory.NewCounter(prometheus.CounterOpts{
		Namespace: Namespace, Subsystem: "ingest", Name: "create_conflicts_total",
		Help: "Product creations lost to a concurrent report.",
	})

	m.NotificationsCreated = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace, Subsystem: "notify", Name: "created_total",
		Help: "Notification records persisted by kind.",
	}, []string{"kind"})
	m.NotificationsDispatched = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace, Subsystem: "notify", Name: "dispatched_total",
		Help: "Notification delivery attempts by result.",
	}, []string{"result"})
	m.DispatchDuration = factory.NewHistogram(prometheus.HistogramOpts{
		Namespace: Namespace, Subsystem: "notify", Name: "dispatch_duration_seconds",
		Help:    "Time to push one notification to the messaging channel.",
		Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	})

	m.CrawlRequestsPublished = factory.NewCounter(prometheus.CounterOpts{
		Namespace: Namespace, Subsystem: "scheduler", Name: "crawl_requests_published_total",
		Help: "Outdated products published to the crawl request stream.",
	})

	return m
}

// NewUnregistered returns collectors bound to a private registry, for tests
// and commands that never expose /metrics.
func NewUnregistered() *Metrics {
	return New(prometheus.NewRegistry())
}
