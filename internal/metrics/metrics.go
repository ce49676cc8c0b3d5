package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	globalMetrics *Metrics
	metricsOnce   sync.Once
)

// Metrics holds the Prometheus collectors for the map backend.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	// Index builds
	BuildsTotal   *prometheus.CounterVec
	BuildDuration prometheus.Histogram
	IndexedPoints prometheus.Gauge
	SkippedPoints prometheus.Gauge

	// Interaction
	ActivationsTotal *prometheus.CounterVec
	SettlesTotal     prometheus.Counter
	TeardownsTotal   *prometheus.CounterVec

	// Views
	ActiveViews    prometheus.Gauge
	EvictionsTotal *prometheus.CounterVec

	// HTTP
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
}

// New creates and registers the collectors once per process.
//
// Metrics:
//   - memorymap_index_builds_total{index} - completed index builds
//   - memorymap_index_build_duration_seconds - build latency
//   - memorymap_index_points - points in the 2D index
//   - memorymap_index_skipped_points - notes rejected by the last build
//   - memorymap_activations_total{action} - cluster/point activations by outcome
//   - memorymap_viewport_settles_total - settled viewport queries
//   - memorymap_disclosure_teardowns_total{trigger} - disclosures cleared
//   - memorymap_views - live map views
//   - memorymap_view_evictions_total{reason} - views dropped by the registry
//   - memorymap_http_requests_total{method,route,status}
//   - memorymap_http_request_duration_seconds{method,route}
func New() *Metrics {
	metricsOnce.Do(func() {
		globalMetrics = &Metrics{
			BuildsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "memorymap_index_builds_total",
					Help: "Total number of completed index builds",
				},
				[]string{"index"}, // "map" or "globe"
			),
			BuildDuration: promauto.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "memorymap_index_build_duration_seconds",
					Help:    "Duration of index builds in seconds",
					Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
				},
			),
			IndexedPoints: promauto.NewGauge(
				prometheus.GaugeOpts{
					Name: "memorymap_index_points",
					Help: "Number of points in the current map index",
				},
			),
			SkippedPoints: promauto.NewGauge(
				prometheus.GaugeOpts{
					Name: "memorymap_index_skipped_points",
					Help: "Notes skipped by the last build for invalid coordinates",
				},
			),
			ActivationsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "memorymap_activations_total",
					Help: "Cluster and point activations by resulting action",
				},
				[]string{"action"},
			),
			SettlesTotal: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "memorymap_viewport_settles_total",
					Help: "Total number of settled viewport queries",
				},
			),
			TeardownsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "memorymap_disclosure_teardowns_total",
					Help: "Disclosures cleared, by trigger",
				},
				[]string{"trigger"}, // "zoom_start", "background_click", "rebuild"
			),
			ActiveViews: promauto.NewGauge(
				prometheus.GaugeOpts{
					Name: "memorymap_views",
					Help: "Current number of live map views",
				},
			),
			EvictionsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "memorymap_view_evictions_total",
					Help: "Views removed by the registry",
				},
				[]string{"reason"}, // "idle" or "capacity"
			),
			RequestsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "memorymap_http_requests_total",
					Help: "HTTP requests by route and status",
				},
				[]string{"method", "route", "status"},
			),
			RequestDuration: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "memorymap_http_request_duration_seconds",
					Help:    "HTTP request latency in seconds",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"method", "route"},
			),
		}
	})

	return globalMetrics
}

// RecordBuild records one index build
func (m *Metrics) RecordBuild(index string, seconds float64, points, skipped int) {
	if m == nil {
		return
	}
	m.BuildsTotal.WithLabelValues(index).Inc()
	if index == "map" {
		m.BuildDuration.Observe(seconds)
		m.IndexedPoints.Set(float64(points))
		m.SkippedPoints.Set(float64(skipped))
	}
}

// RecordActivation counts an activation by its outcome
func (m *Metrics) RecordActivation(action string) {
	if m == nil {
		return
	}
	m.ActivationsTotal.WithLabelValues(action).Inc()
}

// RecordSettle counts a settled viewport
func (m *Metrics) RecordSettle() {
	if m == nil {
		return
	}
	m.SettlesTotal.Inc()
}

// RecordTeardown counts a cleared disclosure
func (m *Metrics) RecordTeardown(trigger string) {
	if m == nil {
		return
	}
	m.TeardownsTotal.WithLabelValues(trigger).Inc()
}

// SetViews updates the live view gauge
func (m *Metrics) SetViews(n int) {
	if m == nil {
		return
	}
	m.ActiveViews.Set(float64(n))
}

// RecordEviction counts a view removed by the registry
func (m *Metrics) RecordEviction(reason string) {
	if m == nil {
		return
	}
	m.EvictionsTotal.WithLabelValues(reason).Inc()
}

// RecordRequest records one served HTTP request
func (m *Metrics) RecordRequest(method, route, status string, seconds float64) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(method, route, status).Inc()
	m.RequestDuration.WithLabelValues(method, route).Observe(seconds)
}
