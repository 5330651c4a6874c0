package metrics

import (
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// API metrics
	apiRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "campaignforge_api_request_duration_seconds",
			Help:    "API request duration in seconds by model",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 0.1s to ~100s
		},
		[]string{"model", "status"},
	)

	rateLimiterWaitDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "campaignforge_rate_limiter_wait_duration_seconds",
			Help:    "Rate limiter wait duration in seconds by model",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 15), // 1ms to ~32s
		},
		[]string{"model"},
	)

	// Pipeline metrics
	stageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "campaignforge_stage_duration_seconds",
			Help:    "Pipeline stage duration in seconds",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12), // 1s to ~68m
		},
		[]string{"stage"},
	)

	sectionTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "campaignforge_sections_total",
			Help: "Total number of content sections generated",
		},
		[]string{"kind", "status"},
	)

	activeWorkers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "campaignforge_active_workers",
			Help: "Number of active section workers",
		},
	)

	// Index metrics
	chunksIndexed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "campaignforge_chunks_indexed_total",
			Help: "Total number of chunks embedded and indexed",
		},
		[]string{"campaign"},
	)
)

// Collector provides convenience methods for recording metrics
type Collector struct {
	logger *slog.Logger
}

// NewCollector creates a new metrics collector
func NewCollector(logger *slog.Logger) *Collector {
	return &Collector{logger: logger}
}

// RecordAPIRequest records an API request duration
func (c *Collector) RecordAPIRequest(model string, duration time.Duration, success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	apiRequestDuration.WithLabelValues(model, status).Observe(duration.Seconds())
}

// RecordRateLimiterWait records rate limiter wait time
func (c *Collector) RecordRateLimiterWait(model string, duration time.Duration) {
	rateLimiterWaitDuration.WithLabelValues(model).Observe(duration.Seconds())
}

// RecordStageDuration records how long a pipeline stage took
func (c *Collector) RecordStageDuration(stage string, duration time.Duration) {
	stageDuration.WithLabelValues(stage).Observe(duration.Seconds())
}

// IncrementSection increments the section counter for a section kind
func (c *Collector) IncrementSection(kind string, success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	sectionTotal.WithLabelValues(kind, status).Inc()
}

// SetActiveWorkers sets the number of active section workers
func (c *Collector) SetActiveWorkers(count int) {
	activeWorkers.Set(float64(count))
}

// AddChunksIndexed adds to the indexed chunk counter for a campaign
func (c *Collector) AddChunksIndexed(campaign string, n int) {
	chunksIndexed.WithLabelValues(campaign).Add(float64(n))
}
