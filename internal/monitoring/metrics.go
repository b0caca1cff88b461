// Package monitoring exposes the pipeline's Prometheus instrumentation.
package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics bundles every collector the pipeline records. Construct once in
// main and inject where needed.
type Metrics struct {
	EventsEnqueued  *prometheus.CounterVec
	EventsProcessed *prometheus.CounterVec
	EventsFailed    *prometheus.CounterVec
	Unlocks         prometheus.Counter
	QueueDepth      prometheus.Gauge
	DrainDuration   prometheus.Histogram
	DrainBatchSize  prometheus.Histogram
	HTTPRequests    *prometheus.CounterVec
	HTTPDuration    *prometheus.HistogramVec
}

// New registers the collectors against the given registerer.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		EventsEnqueued: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "badgehub",
			Name:      "events_enqueued_total",
			Help:      "Events accepted into the durable queue.",
		}, []string{"event_type"}),
		EventsProcessed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "badgehub",
			Name:      "events_processed_total",
			Help:      "Events run through the matching engine.",
		}, []string{"event_type"}),
		EventsFailed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "badgehub",
			Name:      "events_failed_total",
			Help:      "Events whose engine pass reported an error.",
		}, []string{"event_type"}),
		Unlocks: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "badgehub",
			Name:      "achievement_unlocks_total",
			Help:      "Achievements unlocked by event processing.",
		}),
		QueueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "badgehub",
			Name:      "queue_depth",
			Help:      "Pending events in the queue at last stats read.",
		}),
		DrainDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "badgehub",
			Name:      "drain_duration_seconds",
			Help:      "Wall time of one drain batch.",
			Buckets:   prometheus.DefBuckets,
		}),
		DrainBatchSize: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "badgehub",
			Name:      "drain_batch_size",
			Help:      "Events handled per drain batch.",
			Buckets:   []float64{0, 1, 5, 10, 25, 50, 100},
		}),
		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "badgehub",
			Name:      "http_requests_total",
			Help:      "HTTP requests by route, method and status class.",
		}, []string{"route", "method", "status"}),
		HTTPDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "badgehub",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
	}
}

// NewDefault registers against the global Prometheus registry.
func NewDefault() *Metrics {
	return New(prometheus.DefaultRegisterer)
}
