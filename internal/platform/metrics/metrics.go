// Package metrics provides Prometheus metrics for the detection pipeline and HTTP layer.
package metrics

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"apple_detector/internal/feature/detection/usecase"
)

var _ usecase.Metrics = (*DetectionMetrics)(nil)

// DetectionMetrics contains all Prometheus metrics related to the detection pipeline.
type DetectionMetrics struct {
	StageDuration   *prometheus.HistogramVec
	PipelineErrors  *prometheus.CounterVec
	DetectionsTotal *prometheus.CounterVec
	ConfidenceHist  prometheus.Histogram
	OrphansTotal    prometheus.Counter
	ModelAvailable  prometheus.Gauge

	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec

	registry *prometheus.Registry
}

// New creates the metrics and registers them, together with the Go runtime
// collectors, on a fresh registry.
func New() (*DetectionMetrics, error) {
	m := &DetectionMetrics{registry: prometheus.NewRegistry()}
	m.initMetrics()

	if err := m.registry.Register(collectors.NewGoCollector()); err != nil {
		return nil, fmt.Errorf("failed to register go collector: %w", err)
	}
	if err := m.registry.Register(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{})); err != nil {
		return nil, fmt.Errorf("failed to register process collector: %w", err)
	}
	if err := m.registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register detection metrics: %w", err)
	}
	return m, nil
}

func (m *DetectionMetrics) initMetrics() {
	m.StageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "apple_detector_stage_duration_seconds",
			Help:    "Time taken to reach each pipeline stage.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"stage"},
	)
	m.PipelineErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "apple_detector_pipeline_errors_total",
			Help: "Uploads that ended in the error state, by stage not reached and error kind.",
		},
		[]string{"stage", "kind"},
	)
	m.DetectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "apple_detector_detections_total",
			Help: "Persisted detections partitioned by predicted label.",
		},
		[]string{"label"},
	)
	m.ConfidenceHist = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "apple_detector_confidence_percent",
			Help:    "Confidence of persisted detections.",
			Buckets: prometheus.LinearBuckets(10, 10, 9),
		},
	)
	m.OrphansTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "apple_detector_orphans_removed_total",
			Help: "Upload files removed because no detection references them.",
		},
	)
	m.ModelAvailable = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "apple_detector_model_available",
			Help: "1 if the classifier model is loaded, 0 otherwise.",
		},
	)
	m.HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "apple_detector_http_requests_total",
			Help: "HTTP requests by route, method and status code.",
		},
		[]string{"route", "method", "code"},
	)
	m.HTTPDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "apple_detector_http_request_duration_seconds",
			Help:    "HTTP request latency by route.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route", "method"},
	)
}

// Describe sends the descriptors of each metric to the provided channel.
func (m *DetectionMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.StageDuration.Describe(ch)
	m.PipelineErrors.Describe(ch)
	m.DetectionsTotal.Describe(ch)
	m.ConfidenceHist.Describe(ch)
	m.OrphansTotal.Describe(ch)
	m.ModelAvailable.Describe(ch)
	m.HTTPRequests.Describe(ch)
	m.HTTPDuration.Describe(ch)
}

// Collect sends the current values of each metric to the provided channel.
func (m *DetectionMetrics) Collect(ch chan<- prometheus.Metric) {
	m.StageDuration.Collect(ch)
	m.PipelineErrors.Collect(ch)
	m.DetectionsTotal.Collect(ch)
	m.ConfidenceHist.Collect(ch)
	m.OrphansTotal.Collect(ch)
	m.ModelAvailable.Collect(ch)
	m.HTTPRequests.Collect(ch)
	m.HTTPDuration.Collect(ch)
}

// StageCompleted records the time spent reaching stage.
func (m *DetectionMetrics) StageCompleted(stage usecase.Stage, elapsed time.Duration) {
	m.StageDuration.WithLabelValues(string(stage)).Observe(elapsed.Seconds())
}

// PipelineFailed counts an upload that ended in the error state.
func (m *DetectionMetrics) PipelineFailed(stage usecase.Stage, kind error) {
	m.PipelineErrors.WithLabelValues(string(stage), KindLabel(kind)).Inc()
}

// PipelineSucceeded counts a persisted detection.
func (m *DetectionMetrics) PipelineSucceeded(label string, confidence float64) {
	m.DetectionsTotal.WithLabelValues(label).Inc()
	m.ConfidenceHist.Observe(confidence)
}

// OrphansRemoved counts files deleted by the reconciler.
func (m *DetectionMetrics) OrphansRemoved(n int) {
	if n > 0 {
		m.OrphansTotal.Add(float64(n))
	}
}

// SetModelAvailable records whether inference is available.
func (m *DetectionMetrics) SetModelAvailable(ok bool) {
	if ok {
		m.ModelAvailable.Set(1)
		return
	}
	m.ModelAvailable.Set(0)
}

// Handler returns the HTTP handler exposing the registry.
func (m *DetectionMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Middleware records request counts and latency per matched route.
func (m *DetectionMetrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.HTTPRequests.WithLabelValues(route, c.Request.Method, strconv.Itoa(c.Writer.Status())).Inc()
		m.HTTPDuration.WithLabelValues(route, c.Request.Method).Observe(time.Since(start).Seconds())
	}
}

// KindLabel maps a pipeline sentinel error to a short metric label.
func KindLabel(kind error) string {
	switch {
	case errors.Is(kind, usecase.ErrNoFile):
		return "no_file"
	case errors.Is(kind, usecase.ErrDisallowedExtension):
		return "disallowed_extension"
	case errors.Is(kind, usecase.ErrInvalidImage):
		return "invalid_image"
	case errors.Is(kind, usecase.ErrProcessingFailed):
		return "processing_failed"
	case errors.Is(kind, usecase.ErrStorage):
		return "storage"
	default:
		return "other"
	}
}
