package service

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService encapsulates Prometheus instrumentation for the
// progression pipeline.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	cacheLatency    prometheus.Observer
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter
	dbQueryDuration *prometheus.HistogramVec
	eventsIngested  *prometheus.CounterVec
	orphanEvents    prometheus.Counter
	recomputeTotal  *prometheus.CounterVec
	laneDepth       *prometheus.GaugeVec
}

// NewMetricsService registers core Prometheus collectors.
func NewMetricsService() *MetricsService {
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

	cacheLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_latency_seconds",
		Help:    "Latency for cache operations",
		Buckets: prometheus.DefBuckets,
	})

	cacheHits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_hits_total",
		Help: "Total cache hits",
	})

	cacheMisses := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_misses_total",
		Help: "Total cache misses",
	})

	dbQueryDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "db_query_duration_seconds",
		Help:    "Duration of database queries",
		Buckets: prometheus.DefBuckets,
	}, []string{"query"})

	eventsIngested := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "progression_events_ingested_total",
		Help: "Completion and coordination events processed by the ingestion pool",
	}, []string{"type"})

	orphanEvents := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "progression_orphan_events_total",
		Help: "Completion events skipped because their leaf is unknown",
	})

	recomputeTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "progression_risk_recompute_total",
		Help: "Risk recomputations by trigger",
	}, []string{"trigger"})

	laneDepth := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "progression_ingest_lane_depth",
		Help: "Queued jobs per ingestion lane",
	}, []string{"lane"})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, cacheLatency, cacheHits, cacheMisses,
		dbQueryDuration, eventsIngested, orphanEvents, recomputeTotal, laneDepth, goroutines)

	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

	return &MetricsService{
		registry:        registry,
		handler:         handler,
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		cacheLatency:    cacheLatency,
		cacheHits:       cacheHits,
		cacheMisses:     cacheMisses,
		dbQueryDuration: dbQueryDuration,
		eventsIngested:  eventsIngested,
		orphanEvents:    orphanEvents,
		recomputeTotal:  recomputeTotal,
		laneDepth:       laneDepth,
	}
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// RecordCacheOperation records cache hit/miss metrics.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	if m.cacheLatency != nil {
		m.cacheLatency.Observe(duration.Seconds())
	}
	if hit {
		m.cacheHits.Inc()
	} else {
		m.cacheMisses.Inc()
	}
}

// ObserveDBQuery records database query timing.
func (m *MetricsService) ObserveDBQuery(label string, duration time.Duration) {
	if m == nil {
		return
	}
	m.dbQueryDuration.WithLabelValues(label).Observe(duration.Seconds())
}

// RecordEventIngested counts one processed ingestion job.
func (m *MetricsService) RecordEventIngested(eventType string) {
	if m == nil {
		return
	}
	m.eventsIngested.WithLabelValues(eventType).Inc()
}

// RecordOrphanEvent counts one skipped orphan event.
func (m *MetricsService) RecordOrphanEvent() {
	if m == nil {
		return
	}
	m.orphanEvents.Inc()
}

// RecordRecompute counts one risk recomputation by trigger ("event" or "batch").
func (m *MetricsService) RecordRecompute(trigger string) {
	if m == nil {
		return
	}
	m.recomputeTotal.WithLabelValues(trigger).Inc()
}

// SetLaneDepths publishes the ingestion pool's per-lane queue depths.
func (m *MetricsService) SetLaneDepths(depths []int) {
	if m == nil {
		return
	}
	for lane, depth := range depths {
		m.laneDepth.WithLabelValues(fmt.Sprintf("%d", lane)).Set(float64(depth))
	}
}
