package service

import (
	"fmt"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noah-isme/pulse-metrics-api/internal/models"
)

// InstrumentationService encapsulates Prometheus instrumentation for the
// metric engine and provides lightweight snapshots for API consumption.
type InstrumentationService struct {
	registry            *prometheus.Registry
	handler             http.Handler
	requestDuration     *prometheus.HistogramVec
	requestTotal        *prometheus.CounterVec
	aggregationDuration *prometheus.HistogramVec
	cacheLatency        prometheus.Observer
	cacheHitRatio       prometheus.Gauge
	cacheHits           prometheus.Counter
	cacheMisses         prometheus.Counter
	shadowDivergence    *prometheus.CounterVec
	backfillBuckets     *prometheus.CounterVec

	cacheHitCount        uint64
	cacheMissCount       uint64
	requestCount         uint64
	requestDurationTotal uint64
	aggregationCount     uint64
	divergenceCount      uint64
	backfillOKCount      uint64
	backfillFailCount    uint64
}

// NewInstrumentationService registers the engine's Prometheus collectors.
func NewInstrumentationService() *InstrumentationService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	aggregationDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "metric_aggregation_duration_seconds",
		Help:    "Duration of metric aggregation passes",
		Buckets: prometheus.DefBuckets,
	}, []string{"metric", "path"})

	cacheLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_latency_seconds",
		Help:    "Latency for cache operations",
		Buckets: prometheus.DefBuckets,
	})

	cacheHitRatio := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "cache_hit_ratio",
		Help: "Ratio of cache hits to total cache lookups",
	})

	cacheHits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_hits_total",
		Help: "Total cache hits",
	})

	cacheMisses := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_misses_total",
		Help: "Total cache misses",
	})

	shadowDivergence := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "shadow_read_divergence_total",
		Help: "Shadow reads whose live and precomputed values diverged",
	}, []string{"metric"})

	backfillBuckets := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "backfill_buckets_total",
		Help: "Backfill bucket computations by outcome",
	}, []string{"status"})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, aggregationDuration, cacheLatency, cacheHitRatio, cacheHits, cacheMisses, shadowDivergence, backfillBuckets, goroutines)

	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

	return &InstrumentationService{
		registry:            registry,
		handler:             handler,
		requestDuration:     requestDuration,
		requestTotal:        requestTotal,
		aggregationDuration: aggregationDuration,
		cacheLatency:        cacheLatency,
		cacheHitRatio:       cacheHitRatio,
		cacheHits:           cacheHits,
		cacheMisses:         cacheMisses,
		shadowDivergence:    shadowDivergence,
		backfillBuckets:     backfillBuckets,
	}
}

// Handler exposes the Prometheus HTTP handler.
func (m *InstrumentationService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveHTTPRequest records request metrics and aggregates simple stats for
// snapshots.
func (m *InstrumentationService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
	atomic.AddUint64(&m.requestCount, 1)
	atomic.AddUint64(&m.requestDurationTotal, uint64(duration.Nanoseconds()))
}

// ObserveAggregation records one aggregation pass for a metric family and the
// read path that served it.
func (m *InstrumentationService) ObserveAggregation(metric models.MetricType, readPath string, duration time.Duration) {
	if m == nil {
		return
	}
	m.aggregationDuration.WithLabelValues(string(metric), readPath).Observe(duration.Seconds())
	atomic.AddUint64(&m.aggregationCount, 1)
}

// RecordCacheOperation records cache hit/miss metrics and updates hit ratio.
func (m *InstrumentationService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	if m.cacheLatency != nil {
		m.cacheLatency.Observe(duration.Seconds())
	}
	if hit {
		m.cacheHits.Inc()
		atomic.AddUint64(&m.cacheHitCount, 1)
	} else {
		m.cacheMisses.Inc()
		atomic.AddUint64(&m.cacheMissCount, 1)
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	misses := atomic.LoadUint64(&m.cacheMissCount)
	total := hits + misses
	if total > 0 {
		m.cacheHitRatio.Set(float64(hits) / float64(total))
	}
}

// RecordShadowDivergence counts a live-vs-precomputed mismatch for a metric.
func (m *InstrumentationService) RecordShadowDivergence(metric models.MetricType) {
	if m == nil {
		return
	}
	m.shadowDivergence.WithLabelValues(string(metric)).Inc()
	atomic.AddUint64(&m.divergenceCount, 1)
}

// RecordBackfillBucket counts one backfill bucket computation outcome.
func (m *InstrumentationService) RecordBackfillBucket(ok bool) {
	if m == nil {
		return
	}
	if ok {
		m.backfillBuckets.WithLabelValues("ok").Inc()
		atomic.AddUint64(&m.backfillOKCount, 1)
	} else {
		m.backfillBuckets.WithLabelValues("failed").Inc()
		atomic.AddUint64(&m.backfillFailCount, 1)
	}
}

// Snapshot returns aggregated metrics suitable for the system endpoint.
func (m *InstrumentationService) Snapshot() models.SystemMetrics {
	if m == nil {
		return models.SystemMetrics{}
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	misses := atomic.LoadUint64(&m.cacheMissCount)
	requests := atomic.LoadUint64(&m.requestCount)
	reqDuration := atomic.LoadUint64(&m.requestDurationTotal)

	var cacheRatio float64
	totalLookups := hits + misses
	if totalLookups > 0 {
		cacheRatio = float64(hits) / float64(totalLookups)
	}

	var avgRequestMs float64
	if requests > 0 {
		avgRequestMs = float64(reqDuration) / float64(requests) / float64(time.Millisecond)
	}

	return models.SystemMetrics{
		CacheHitRatio:            cacheRatio,
		CacheHits:                hits,
		CacheMisses:              misses,
		RequestsTotal:            requests,
		AverageRequestDurationMs: avgRequestMs,
		AggregationsTotal:        atomic.LoadUint64(&m.aggregationCount),
		ShadowDivergences:        atomic.LoadUint64(&m.divergenceCount),
		BackfillBucketsOK:        atomic.LoadUint64(&m.backfillOKCount),
		BackfillBucketsFailed:    atomic.LoadUint64(&m.backfillFailCount),
		Goroutines:               runtime.NumGoroutine(),
		GeneratedAt:              time.Now().UTC(),
	}
}
