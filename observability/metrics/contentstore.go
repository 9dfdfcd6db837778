package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type ContentStoreMetrics struct {
	operations *prometheus.CounterVec
	latency    *prometheus.HistogramVec
	cache      *prometheus.CounterVec
	entries    prometheus.Gauge
}

var (
	contentStoreOnce     sync.Once
	contentStoreRegistry *ContentStoreMetrics
)

func ContentStore() *ContentStoreMetrics {
	contentStoreOnce.Do(func() {
		contentStoreRegistry = &ContentStoreMetrics{
			operations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "vitrine_contentstore_operations_total",
				Help: "Count of content store operations by backend, operation and outcome.",
			}, []string{"backend", "operation", "outcome"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Name:    "vitrine_contentstore_duration_seconds",
				Help:    "Latency of content store operations by backend and operation.",
				Buckets: prometheus.DefBuckets,
			}, []string{"backend", "operation"}),
			cache: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "vitrine_contentstore_cache_total",
				Help: "Content cache lookups by result.",
			}, []string{"result"}),
			entries: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "vitrine_contentstore_cache_entries",
				Help: "Number of payloads currently held in the content cache.",
			}),
		}
		prometheus.MustRegister(
			contentStoreRegistry.operations,
			contentStoreRegistry.latency,
			contentStoreRegistry.cache,
			contentStoreRegistry.entries,
		)
	})
	return contentStoreRegistry
}

func (m *ContentStoreMetrics) Observe(backend, operation string, d time.Duration, err error) {
	if m == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	m.operations.WithLabelValues(backend, operation, outcome).Inc()
	m.latency.WithLabelValues(backend, operation).Observe(d.Seconds())
}

func (m *ContentStoreMetrics) RecordCacheHit() {
	if m == nil {
		return
	}
	m.cache.WithLabelValues("hit").Inc()
}

func (m *ContentStoreMetrics) RecordCacheMiss() {
	if m == nil {
		return
	}
	m.cache.WithLabelValues("miss").Inc()
}

func (m *ContentStoreMetrics) SetCacheEntries(n int) {
	if m == nil {
		return
	}
	m.entries.Set(float64(n))
}
