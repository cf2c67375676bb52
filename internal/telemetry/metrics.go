// Package telemetry exposes the service's Prometheus metrics: batch and
// item outcomes, orphan lifecycle counts and queue depth.
package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/openmerch/catalog-sync/internal/pipeline"
)

const namespace = "catalog_sync"

// Metrics holds every collector the service registers. It implements the
// pipeline's worker and orphan metric sinks.
type Metrics struct {
	registry *prometheus.Registry

	batchesProcessed *prometheus.CounterVec
	batchDuration    prometheus.Histogram

	itemsSucceeded prometheus.Counter
	itemsFailed    prometheus.Counter
	itemsDeferred  prometheus.Counter

	orphansDeferred  prometheus.Counter
	orphansResolved  prometheus.Counter
	orphansExhausted prometheus.Counter

	syncRequests *prometheus.CounterVec
}

var (
	_ pipeline.WorkerMetrics = (*Metrics)(nil)
	_ pipeline.OrphanMetrics = (*Metrics)(nil)
)

// New creates and registers all collectors on a fresh registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{
		registry: registry,
		batchesProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batches_processed_total",
			Help:      "Batches processed by terminal state.",
		}, []string{"state"}),
		batchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_duration_seconds",
			Help:      "Wall-clock duration of batch execution.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		}),
		itemsSucceeded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "items_succeeded_total",
			Help:      "Items written to the catalog.",
		}),
		itemsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "items_failed_total",
			Help:      "Items that terminally failed.",
		}),
		itemsDeferred: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "items_deferred_total",
			Help:      "Variant items deferred waiting for their parent.",
		}),
		orphansDeferred: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orphans_deferred_total",
			Help:      "Orphan records registered for retry.",
		}),
		orphansResolved: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orphans_resolved_total",
			Help:      "Orphan records whose deferred write succeeded.",
		}),
		orphansExhausted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orphans_exhausted_total",
			Help:      "Orphan records that ran out of retry attempts.",
		}),
		syncRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_requests_total",
			Help:      "Sync submissions by operation and acceptance.",
		}, []string{"operation", "accepted"}),
	}

	registry.MustRegister(
		m.batchesProcessed,
		m.batchDuration,
		m.itemsSucceeded,
		m.itemsFailed,
		m.itemsDeferred,
		m.orphansDeferred,
		m.orphansResolved,
		m.orphansExhausted,
		m.syncRequests,
	)
	return m
}

// Handler returns the scrape endpoint handler.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveQueueDepth registers a gauge sampling the queue depth on scrape.
func (m *Metrics) ObserveQueueDepth(depth func() int) {
	m.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "queue_depth",
		Help:      "Tasks enqueued but not yet completed.",
	}, func() float64 {
		return float64(depth())
	}))
}

// BatchProcessed counts a terminal batch and its duration.
func (m *Metrics) BatchProcessed(state pipeline.BatchState, duration time.Duration) {
	m.batchesProcessed.WithLabelValues(string(state)).Inc()
	m.batchDuration.Observe(duration.Seconds())
}

// ItemSucceeded counts one written item.
func (m *Metrics) ItemSucceeded() { m.itemsSucceeded.Inc() }

// ItemFailed counts one terminally failed item.
func (m *Metrics) ItemFailed() { m.itemsFailed.Inc() }

// ItemDeferred counts one deferred variant.
func (m *Metrics) ItemDeferred() { m.itemsDeferred.Inc() }

// OrphanDeferred counts one registered orphan record.
func (m *Metrics) OrphanDeferred() { m.orphansDeferred.Inc() }

// OrphanResolved counts one resolved orphan record.
func (m *Metrics) OrphanResolved() { m.orphansResolved.Inc() }

// OrphanExhausted counts one exhausted orphan record.
func (m *Metrics) OrphanExhausted() { m.orphansExhausted.Inc() }

// SyncRequest counts one sync submission.
func (m *Metrics) SyncRequest(operation string, accepted bool) {
	label := "false"
	if accepted {
		label = "true"
	}
	m.syncRequests.WithLabelValues(operation, label).Inc()
}
