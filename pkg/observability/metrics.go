package observability

import (
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the vocabulary tree and the
// bag-of-words database. Every instance owns its registry so tests and
// embedded uses never collide on the default one.
type Metrics struct {
	registry *prometheus.Registry

	// Request metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	RequestErrors   *prometheus.CounterVec

	// Tree metrics
	TreeBuildDuration prometheus.Histogram
	TreeWords         prometheus.Gauge
	TreeNodes         prometheus.Gauge

	// Database metrics
	ImagesAdded          prometheus.Counter
	DescriptorsQuantized prometheus.Counter
	DatabaseImages       prometheus.Gauge
	WeightingPasses      *prometheus.CounterVec
	NormalizationPasses  *prometheus.CounterVec

	// Query metrics
	QueriesTotal     prometheus.Counter
	QueryLatency     prometheus.Histogram
	QueryDescriptors prometheus.Histogram

	// Cache metrics
	CacheHits   prometheus.Counter
	CacheMisses prometheus.Counter
	CacheSize   prometheus.Gauge

	// Batch operation metrics
	BatchInsertTotal    prometheus.Counter
	BatchInsertDuration prometheus.Histogram

	hits   atomic.Uint64
	misses atomic.Uint64
}

// NewMetrics creates all metrics on a fresh registry that also carries the
// Go runtime and process collectors
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return NewMetricsWithRegistry(reg)
}

// NewMetricsWithRegistry creates and registers all metrics on reg
func NewMetricsWithRegistry(reg *prometheus.Registry) *Metrics {
	factory := promauto.With(reg)

	m := &Metrics{
		registry: reg,

		// Request metrics
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vocabtree_requests_total",
				Help: "Total number of requests by method and status",
			},
			[]string{"method", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "vocabtree_request_duration_seconds",
				Help:    "Request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method"},
		),
		RequestErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vocabtree_request_errors_total",
				Help: "Total number of request errors by method and type",
			},
			[]string{"method", "error_type"},
		),

		// Tree metrics
		TreeBuildDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "vocabtree_tree_build_duration_seconds",
				Help:    "Vocabulary tree construction time in seconds",
				Buckets: prometheus.ExponentialBuckets(0.01, 4, 10),
			},
		),
		TreeWords: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "vocabtree_tree_words",
				Help: "Number of visual words in the loaded tree",
			},
		),
		TreeNodes: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "vocabtree_tree_nodes",
				Help: "Number of nodes in the loaded tree",
			},
		),

		// Database metrics
		ImagesAdded: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "vocabtree_images_added_total",
				Help: "Total number of images added to the database",
			},
		),
		DescriptorsQuantized: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "vocabtree_descriptors_quantized_total",
				Help: "Total number of descriptors quantized into visual words",
			},
		),
		DatabaseImages: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "vocabtree_database_images",
				Help: "Number of images in the database",
			},
		),
		WeightingPasses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vocabtree_weighting_passes_total",
				Help: "Word weight computations by scheme",
			},
			[]string{"scheme"},
		),
		NormalizationPasses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vocabtree_normalization_passes_total",
				Help: "Database normalizations by norm type",
			},
			[]string{"norm"},
		),

		// Query metrics
		QueriesTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "vocabtree_queries_total",
				Help: "Total number of scored queries",
			},
		),
		QueryLatency: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "vocabtree_query_latency_seconds",
				Help:    "Query scoring latency in seconds",
				Buckets: []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1},
			},
		),
		QueryDescriptors: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "vocabtree_query_descriptors",
				Help:    "Number of descriptors per query",
				Buckets: prometheus.ExponentialBuckets(16, 2, 10),
			},
		),

		// Cache metrics
		CacheHits: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "vocabtree_cache_hits_total",
				Help: "Total number of score cache hits",
			},
		),
		CacheMisses: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "vocabtree_cache_misses_total",
				Help: "Total number of score cache misses",
			},
		),
		CacheSize: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "vocabtree_cache_size",
				Help: "Current number of cached query results",
			},
		),

		// Batch operation metrics
		BatchInsertTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "vocabtree_batch_insert_total",
				Help: "Total number of batch image insertions",
			},
		),
		BatchInsertDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "vocabtree_batch_insert_duration_seconds",
				Help:    "Batch insertion duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
		),
	}

	return m
}

// Registry returns the registry holding the metrics
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// RecordRequest records a request with duration and status
func (m *Metrics) RecordRequest(method, status string, duration time.Duration) {
	m.RequestsTotal.WithLabelValues(method, status).Inc()
	m.RequestDuration.WithLabelValues(method).Observe(duration.Seconds())
}

// RecordError records an error
func (m *Metrics) RecordError(method, errorType string) {
	m.RequestErrors.WithLabelValues(method, errorType).Inc()
}

// RecordTreeBuild records a finished tree construction
func (m *Metrics) RecordTreeBuild(duration time.Duration, nodes, words int) {
	m.TreeBuildDuration.Observe(duration.Seconds())
	m.UpdateTree(nodes, words)
}

// UpdateTree sets the tree shape gauges, e.g. after a load
func (m *Metrics) UpdateTree(nodes, words int) {
	m.TreeNodes.Set(float64(nodes))
	m.TreeWords.Set(float64(words))
}

// RecordImageAdded records one image insertion
func (m *Metrics) RecordImageAdded(descriptors int) {
	m.ImagesAdded.Inc()
	m.DescriptorsQuantized.Add(float64(descriptors))
}

// UpdateDatabaseSize sets the number of images in the database
func (m *Metrics) UpdateDatabaseSize(images int) {
	m.DatabaseImages.Set(float64(images))
}

// RecordWeighting records a word weight computation
func (m *Metrics) RecordWeighting(scheme string) {
	m.WeightingPasses.WithLabelValues(scheme).Inc()
}

// RecordNormalization records a database normalization
func (m *Metrics) RecordNormalization(norm string) {
	m.NormalizationPasses.WithLabelValues(norm).Inc()
}

// RecordQuery records a scored query
func (m *Metrics) RecordQuery(duration time.Duration, descriptors int) {
	m.QueriesTotal.Inc()
	m.QueryLatency.Observe(duration.Seconds())
	m.QueryDescriptors.Observe(float64(descriptors))
}

// RecordCacheHit records a cache hit
func (m *Metrics) RecordCacheHit() {
	m.CacheHits.Inc()
	m.hits.Add(1)
}

// RecordCacheMiss records a cache miss
func (m *Metrics) RecordCacheMiss() {
	m.CacheMisses.Inc()
	m.misses.Add(1)
}

// UpdateCacheSize updates cache size
func (m *Metrics) UpdateCacheSize(size int) {
	m.CacheSize.Set(float64(size))
}

// RecordBatchInsert records a batch insert operation
func (m *Metrics) RecordBatchInsert(duration time.Duration) {
	m.BatchInsertTotal.Inc()
	m.BatchInsertDuration.Observe(duration.Seconds())
}

// GetCacheHitRate returns hits / (hits + misses), 0 before any lookup
func (m *Metrics) GetCacheHitRate() float64 {
	hits := m.hits.Load()
	total := hits + m.misses.Load()
	if total == 0 {
		return 0
	}
	return float64(hits) / float64(total)
}
