package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusMetrics wraps prometheus collectors for cachefront metrics
type PrometheusMetrics struct {
	registry *prometheus.Registry

	// Counters
	cacheHitsTotal      *prometheus.CounterVec
	cacheMissesTotal    *prometheus.CounterVec
	fallbacksTotal      *prometheus.CounterVec
	invalidationsTotal  prometheus.Counter
	localEvictionsTotal prometheus.Counter
	slowQueriesTotal    *prometheus.CounterVec

	// Histograms
	queryDuration *prometheus.HistogramVec

	// Gauges
	uptime          prometheus.GaugeFunc
	localEntries    prometheus.Gauge
	remoteAvailable prometheus.Gauge
}

// Default histogram buckets for query duration (in milliseconds)
var defaultBuckets = []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000}

var promMetrics *PrometheusMetrics

var startTime = time.Now()

// InitPrometheus initializes the Prometheus metrics subsystem
func InitPrometheus(namespace string, buckets []float64) {
	if len(buckets) == 0 {
		buckets = defaultBuckets
	}

	registry := prometheus.NewRegistry()
	// Register default Go and process collectors
	registry.MustRegister(prometheus.NewGoCollector())
	registry.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))

	pm := &PrometheusMetrics{
		registry: registry,

		cacheHitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_hits_total",
				Help:      "Total cache hits by tier",
			},
			[]string{"tier"},
		),

		cacheMissesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_misses_total",
				Help:      "Total cache misses by tier",
			},
			[]string{"tier"},
		),

		fallbacksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "remote_fallbacks_total",
				Help:      "Operations that fell back to the local tier after a remote failure",
			},
			[]string{"op"},
		),

		invalidationsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "invalidations_total",
				Help:      "Pattern invalidation calls",
			},
		),

		localEvictionsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "local_evictions_total",
				Help:      "Entries evicted from the local tier by capacity pressure",
			},
		),

		slowQueriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "slow_queries_total",
				Help:      "Optimized queries exceeding the slow-operation threshold",
			},
			[]string{"entity", "operation"},
		),

		queryDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "query_duration_milliseconds",
				Help:      "Duration of optimized paginated queries in milliseconds",
				Buckets:   buckets,
			},
			[]string{"entity", "operation", "from_cache"},
		),

		localEntries: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "local_entries",
				Help:      "Current number of entries in the local tier",
			},
		),

		remoteAvailable: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "remote_available",
				Help:      "Whether the remote tier is currently reachable (0/1)",
			},
		),
	}

	pm.uptime = prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "uptime_seconds",
			Help:      "Time since the cachefront daemon started",
		},
		func() float64 {
			return time.Since(startTime).Seconds()
		},
	)

	registry.MustRegister(
		pm.cacheHitsTotal,
		pm.cacheMissesTotal,
		pm.fallbacksTotal,
		pm.invalidationsTotal,
		pm.localEvictionsTotal,
		pm.slowQueriesTotal,
		pm.queryDuration,
		pm.uptime,
		pm.localEntries,
		pm.remoteAvailable,
	)

	promMetrics = pm
}

// RecordCacheHit records a cache hit for a tier ("remote" or "local")
func RecordCacheHit(tier string) {
	if promMetrics == nil {
		return
	}
	promMetrics.cacheHitsTotal.WithLabelValues(tier).Inc()
}

// RecordCacheMiss records a cache miss for a tier
func RecordCacheMiss(tier string) {
	if promMetrics == nil {
		return
	}
	promMetrics.cacheMissesTotal.WithLabelValues(tier).Inc()
}

// RecordRemoteFallback records an operation degrading to the local tier
func RecordRemoteFallback(op string) {
	if promMetrics == nil {
		return
	}
	promMetrics.fallbacksTotal.WithLabelValues(op).Inc()
	promMetrics.remoteAvailable.Set(0)
}

// RecordInvalidation records a pattern invalidation call
func RecordInvalidation() {
	if promMetrics == nil {
		return
	}
	promMetrics.invalidationsTotal.Inc()
}

// RecordLocalEvictions records entries evicted by capacity pressure
func RecordLocalEvictions(n int) {
	if promMetrics == nil || n <= 0 {
		return
	}
	promMetrics.localEvictionsTotal.Add(float64(n))
}

// RecordSlowQuery records a query exceeding the slow threshold
func RecordSlowQuery(entity, operation string) {
	if promMetrics == nil {
		return
	}
	promMetrics.slowQueriesTotal.WithLabelValues(entity, operation).Inc()
}

// ObserveQueryDuration records an optimized query's wall-clock duration
func ObserveQueryDuration(entity, operation string, durationMs int64, fromCache bool) {
	if promMetrics == nil {
		return
	}
	cached := "false"
	if fromCache {
		cached = "true"
	}
	promMetrics.queryDuration.WithLabelValues(entity, operation, cached).Observe(float64(durationMs))
}

// SetLocalEntries sets the current local tier entry count
func SetLocalEntries(n int) {
	if promMetrics == nil {
		return
	}
	promMetrics.localEntries.Set(float64(n))
}

// SetRemoteAvailable sets the remote availability gauge
func SetRemoteAvailable(up bool) {
	if promMetrics == nil {
		return
	}
	if up {
		promMetrics.remoteAvailable.Set(1)
	} else {
		promMetrics.remoteAvailable.Set(0)
	}
}

// PrometheusHandler returns an HTTP handler for Prometheus metrics scraping
func PrometheusHandler() http.Handler {
	if promMetrics == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "metrics not initialized", http.StatusServiceUnavailable)
		})
	}
	return promhttp.HandlerFor(promMetrics.registry, promhttp.HandlerOpts{})
}
