// Package metrics provides Prometheus instrumentation for the store.
//
// It pre-defines the query/fetch metrics the coherence engine emits and
// gives you helpers to register your own on top. A consumer that never
// calls Register/MustRegister/Handler can still use the store — the
// built-in metrics are always updated, but exposing them is opt-in.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ─────────────────────────────────────────────
// Built-in store metrics
// ─────────────────────────────────────────────

var (
	// QueriesActive tracks how many item/collection queries currently exist
	// for an entity, broken down by kind.
	QueriesActive = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "storecore",
			Name:      "queries_active",
			Help:      "Number of live queries currently held per entity and kind.",
		},
		[]string{"entity", "kind"}, // kind = "item" | "collection"
	)

	// FetchesTotal counts fetcher/mutator invocations by outcome.
	FetchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "storecore",
			Name:      "fetches_total",
			Help:      "Total fetcher/mutator invocations.",
		},
		[]string{"entity", "kind", "result"}, // result = "success" | "error" | "cancelled"
	)

	// FetchDuration tracks fetcher/mutator latency.
	FetchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "storecore",
			Name:      "fetch_duration_seconds",
			Help:      "Duration of fetcher/mutator calls in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"entity", "kind"},
	)

	// FinalizationsTotal counts weak-index reclamations.
	FinalizationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "storecore",
			Name:      "finalizations_total",
			Help:      "Total weak-value index entries reclaimed by the runtime.",
		},
		[]string{"entity", "kind"},
	)

	// DBQueryDuration tracks backing-store (ORM) query latency for example
	// fixtures and fetcher implementations built on pkg/orm.
	DBQueryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "storecore",
			Subsystem: "db",
			Name:      "query_duration_seconds",
			Help:      "Duration of database queries issued by fetcher implementations.",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .5, 1},
		},
		[]string{"operation"}, // "select" | "insert" | "update" | "delete"
	)

	// CacheHits / CacheMisses track read-through cache effectiveness for
	// fetcher implementations that consult pkg/cache before the backing DB.
	CacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "storecore",
			Subsystem: "cache",
			Name:      "hits_total",
			Help:      "Total cache hits.",
		},
		[]string{"driver"}, // "redis" | "memory"
	)
	CacheMisses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "storecore",
			Subsystem: "cache",
			Name:      "misses_total",
			Help:      "Total cache misses.",
		},
		[]string{"driver"},
	)
)

// ─────────────────────────────────────────────
// Registry
// ─────────────────────────────────────────────

// DefaultRegistry is the Prometheus registry used by the store's built-in
// metrics. Register your own metrics against this with Register,
// MustRegister, or the New* constructors below.
var DefaultRegistry = prometheus.NewRegistry()

func init() {
	DefaultRegistry.MustRegister(collectors.NewGoCollector())
	DefaultRegistry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	DefaultRegistry.MustRegister(
		QueriesActive,
		FetchesTotal,
		FetchDuration,
		FinalizationsTotal,
		DBQueryDuration,
		CacheHits,
		CacheMisses,
	)
}

// Register lets you add your own prometheus.Collector to the default registry.
func Register(c prometheus.Collector) error {
	return DefaultRegistry.Register(c)
}

// MustRegister panics if registration fails.
func MustRegister(c ...prometheus.Collector) {
	DefaultRegistry.MustRegister(c...)
}

// ─────────────────────────────────────────────
// Custom metric constructors
// ─────────────────────────────────────────────

// NewCounter creates and registers a Counter with the given name and labels.
func NewCounter(namespace, name, help string, labels []string) *prometheus.CounterVec {
	c := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      name,
		Help:      help,
	}, labels)
	DefaultRegistry.MustRegister(c)
	return c
}

// NewHistogram creates and registers a Histogram with the given name and labels.
func NewHistogram(namespace, name, help string, buckets []float64, labels []string) *prometheus.HistogramVec {
	h := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      name,
		Help:      help,
		Buckets:   buckets,
	}, labels)
	DefaultRegistry.MustRegister(h)
	return h
}

// NewGauge creates and registers a Gauge.
func NewGauge(namespace, name, help string, labels []string) *prometheus.GaugeVec {
	g := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      name,
		Help:      help,
	}, labels)
	DefaultRegistry.MustRegister(g)
	return g
}

// ─────────────────────────────────────────────
// /metrics endpoint handler
// ─────────────────────────────────────────────

// Handler returns an http.HandlerFunc that exposes the Prometheus metrics
// page. The store has no HTTP server of its own; a consumer embedding the
// store in their own app can mount this on GET /metrics.
func Handler() http.HandlerFunc {
	h := promhttp.HandlerFor(DefaultRegistry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
	return h.ServeHTTP
}

// ─────────────────────────────────────────────
// Helpers for fetcher implementations
// ─────────────────────────────────────────────

// ObserveDBQuery records a DB query duration with a simple timer:
//
//	defer metrics.ObserveDBQuery("select", time.Now())
func ObserveDBQuery(operation string, start time.Time) {
	DBQueryDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

// ObserveFetch records a coherence-engine fetcher/mutator call's latency,
// labeled by entity name and query kind ("item" | "collection"):
//
//	start := time.Now()
//	result, err := cfg.ItemFetcher(...)
//	metrics.ObserveFetch(cfg.Name, "item", start)
func ObserveFetch(entity, kind string, start time.Time) {
	FetchDuration.WithLabelValues(entity, kind).Observe(time.Since(start).Seconds())
}
