package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the bulk pipeline. One instance is
// shared across domains; the collection label separates them.
type Metrics struct {
	BatchesAccepted   *prometheus.CounterVec
	BatchesPersisted  *prometheus.CounterVec
	EntitiesRejected  *prometheus.CounterVec
	EntitiesDropped   *prometheus.CounterVec
	CacheHits         *prometheus.CounterVec
	CacheMisses       *prometheus.CounterVec
	CacheFailures     *prometheus.CounterVec
	AcceptDuration    *prometheus.HistogramVec
	PersistDuration   *prometheus.HistogramVec
	ConsumerHandleErr *prometheus.CounterVec
}

// New creates all metrics and registers them with the default registerer.
func New() *Metrics {
	return NewWith(prometheus.DefaultRegisterer)
}

// NewWith registers the metrics with the given registerer. Tests pass a fresh
// registry so suites stay independent.
func NewWith(reg prometheus.Registerer) *Metrics {
	promauto := promauto.With(reg)
	return &Metrics{
		BatchesAccepted: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "registrar_batches_accepted_total",
			Help: "Batches acknowledged on the accept path.",
		}, []string{"collection", "operation"}),
		BatchesPersisted: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "registrar_batches_persisted_total",
			Help: "Batches durably persisted by the async consumer.",
		}, []string{"collection", "operation"}),
		EntitiesRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "registrar_entities_rejected_total",
			Help: "Entities rejected by a validator, labelled with the error code.",
		}, []string{"collection", "code"}),
		EntitiesDropped: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "registrar_entities_dropped_total",
			Help: "Entities acknowledged on accept but rejected by async validation.",
		}, []string{"collection"}),
		CacheHits: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "registrar_cache_hits_total",
			Help: "Cache gateway hits.",
		}, []string{"collection"}),
		CacheMisses: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "registrar_cache_misses_total",
			Help: "Cache gateway misses.",
		}, []string{"collection"}),
		CacheFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "registrar_cache_failures_total",
			Help: "Cache gateway calls that degraded to the store.",
		}, []string{"collection"}),
		AcceptDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "registrar_accept_duration_seconds",
			Help:    "Latency of the synchronous accept path.",
			Buckets: prometheus.DefBuckets,
		}, []string{"collection", "operation"}),
		PersistDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "registrar_persist_duration_seconds",
			Help:    "Latency of the asynchronous persist path.",
			Buckets: prometheus.DefBuckets,
		}, []string{"collection", "operation"}),
		ConsumerHandleErr: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "registrar_consumer_handle_errors_total",
			Help: "Consumer handler invocations that returned an error.",
		}, []string{"topic"}),
	}
}
