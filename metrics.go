package zipstream

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Request outcomes recorded by Metrics.
const (
	ResultSuccess     = "success"
	ResultCancelled   = "cancelled"
	ResultFailed      = "failed"
	ResultNotFound    = "not_found"
	ResultSpawnFailed = "spawn_failed"
)

// Metrics are the Prometheus collectors of archive streaming.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	requests *prometheus.CounterVec
	bytes    prometheus.Counter
	chunks   prometheus.Counter
	active   prometheus.Gauge
	duration prometheus.Histogram
}

// NewMetrics creates the collectors and registers them with reg, if it is not nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "zipstream",
			Name:      "archive_requests_total",
			Help:      "Archive requests by outcome.",
		}, []string{"result"}),
		bytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "zipstream",
			Name:      "archive_bytes_sent_total",
			Help:      "Archive bytes written to clients.",
		}),
		chunks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "zipstream",
			Name:      "archive_chunks_sent_total",
			Help:      "Archive chunks written to clients.",
		}),
		active: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "zipstream",
			Name:      "active_producers",
			Help:      "Archive producers currently running.",
		}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "zipstream",
			Name:      "archive_stream_duration_seconds",
			Help:      "Time from producer start to response finalization.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		}),
	}
	if reg != nil {
		reg.MustRegister(m.requests, m.bytes, m.chunks, m.active, m.duration)
	}
	return m
}

func (m *Metrics) observeResult(result string) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(result).Inc()
}

func (m *Metrics) observeChunk(size int) {
	if m == nil {
		return
	}
	m.chunks.Inc()
	m.bytes.Add(float64(size))
}

func (m *Metrics) producerStarted() {
	if m == nil {
		return
	}
	m.active.Inc()
}

func (m *Metrics) producerStopped(start time.Time) {
	if m == nil {
		return
	}
	m.active.Dec()
	m.duration.Observe(time.Since(start).Seconds())
}

// resultOf classifies the error a pipeline ended with.
func resultOf(err error) string {
	var spawnErr *SpawnError
	switch {
	case err == nil:
		return ResultSuccess
	case errors.Is(err, ErrStreamCancelled):
		return ResultCancelled
	case errors.As(err, &spawnErr):
		return ResultSpawnFailed
	default:
		return ResultFailed
	}
}
