// Package metrics exposes Prometheus instrumentation for the secure
// channel: chunk counts, auth/malformed-frame failures, byte totals, and
// buffer-pool counters and a hardware-acceleration gauge, built the same way the
// teacher builds its S3/HTTP metrics (promauto-backed constructors with a
// registry variant for tests).
package metrics

import (
	"net/http"
	"runtime"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Config tunes metric construction.
type Config struct {
	// Namespace prefixes every metric name, e.g. "c2c".
	Namespace string
}

// Metrics holds every channel-oriented Prometheus collector this module
// registers.
type Metrics struct {
	config Config

	chunksSent     *prometheus.CounterVec
	chunksReceived *prometheus.CounterVec
	bytesSent      *prometheus.CounterVec
	bytesReceived  *prometheus.CounterVec

	authFailures    *prometheus.CounterVec
	malformedFrames *prometheus.CounterVec
	needMoreEvents  *prometheus.CounterVec
	chunkLatency    *prometheus.HistogramVec

	bufferPoolHits   *prometheus.CounterVec
	bufferPoolMisses *prometheus.CounterVec

	accumulatorFill *prometheus.GaugeVec

	hardwareAccelerationEnabled *prometheus.GaugeVec

	goroutines       prometheus.Gauge
	memoryAllocBytes prometheus.Gauge
	memorySysBytes   prometheus.Gauge
}

// NewMetrics builds a Metrics instance registered against the default
// Prometheus registry.
func NewMetrics() *Metrics {
	return NewMetricsWithConfig(Config{Namespace: "c2c"})
}

// NewMetricsWithConfig builds a Metrics instance with the given config,
// registered against the default Prometheus registry.
func NewMetricsWithConfig(cfg Config) *Metrics {
	return newMetricsWithRegistry(cfg, prometheus.DefaultRegisterer)
}

// NewMetricsWithRegistry builds a Metrics instance registered against reg,
// for use in tests that want an isolated registry.
func NewMetricsWithRegistry(cfg Config, reg prometheus.Registerer) *Metrics {
	return newMetricsWithRegistry(cfg, reg)
}

func newMetricsWithRegistry(cfg Config, reg prometheus.Registerer) *Metrics {
	if cfg.Namespace == "" {
		cfg.Namespace = "c2c"
	}
	factory := promauto.With(reg)

	return &Metrics{
		config: cfg,
		chunksSent: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Name:      "chunks_sent_total",
				Help:      "Total number of egress chunks emitted.",
			},
			[]string{"scheme"},
		),
		chunksReceived: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Name:      "chunks_received_total",
				Help:      "Total number of ingress chunks successfully verified and decrypted.",
			},
			[]string{"scheme"},
		),
		bytesSent: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Name:      "plaintext_bytes_sent_total",
				Help:      "Total plaintext bytes fed to the egress engine.",
			},
			[]string{"scheme"},
		),
		bytesReceived: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Name:      "plaintext_bytes_received_total",
				Help:      "Total plaintext bytes produced by the ingress engine.",
			},
			[]string{"scheme"},
		),
		authFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Name:      "auth_failures_total",
				Help:      "Total number of chunks rejected for tag mismatch or invalid padding.",
			},
			[]string{"scheme"},
		),
		malformedFrames: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Name:      "malformed_frames_total",
				Help:      "Total number of frames rejected for framing violations.",
			},
			[]string{"reason"},
		),
		needMoreEvents: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Name:      "need_more_total",
				Help:      "Total number of ingress calls that returned NeedMore.",
			},
			[]string{"scheme"},
		),
		chunkLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Name:      "chunk_processing_seconds",
				Help:      "Time spent encoding or decoding a single chunk.",
				Buckets:   []float64{0.00005, 0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05},
			},
			[]string{"direction"}, // "tx" or "rx"
		),
		bufferPoolHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Name:      "buffer_pool_hits_total",
				Help:      "Total number of scratch-buffer pool hits.",
			},
			[]string{"size_class"},
		),
		bufferPoolMisses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Name:      "buffer_pool_misses_total",
				Help:      "Total number of scratch-buffer pool misses.",
			},
			[]string{"size_class"},
		),
		accumulatorFill: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Name:      "egress_accumulator_fill_bytes",
				Help:      "Current fill level of a context's egress accumulator.",
			},
			[]string{"context_id"},
		),
		hardwareAccelerationEnabled: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Name:      "hardware_acceleration_enabled",
				Help:      "Hardware acceleration status (1=enabled, 0=disabled).",
			},
			[]string{"type"},
		),
		goroutines: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Name:      "goroutines",
				Help:      "Number of goroutines in the process.",
			},
		),
		memoryAllocBytes: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Name:      "memory_alloc_bytes",
				Help:      "Bytes allocated and not yet freed.",
			},
		),
		memorySysBytes: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Name:      "memory_sys_bytes",
				Help:      "Bytes obtained from the OS.",
			},
		),
	}
}

// RecordChunkSent records one emitted egress chunk.
func (m *Metrics) RecordChunkSent(scheme string, plaintextBytes int) {
	m.chunksSent.WithLabelValues(scheme).Inc()
	m.bytesSent.WithLabelValues(scheme).Add(float64(plaintextBytes))
}

// RecordChunkReceived records one verified-and-decrypted ingress chunk.
func (m *Metrics) RecordChunkReceived(scheme string, plaintextBytes int) {
	m.chunksReceived.WithLabelValues(scheme).Inc()
	m.bytesReceived.WithLabelValues(scheme).Add(float64(plaintextBytes))
}

// RecordAuthFailure records a tag mismatch or post-decrypt padding failure.
func (m *Metrics) RecordAuthFailure(scheme string) {
	m.authFailures.WithLabelValues(scheme).Inc()
}

// RecordMalformedFrame records a framing violation, labeled by a short
// reason code (the channel package uses "framing").
func (m *Metrics) RecordMalformedFrame(reason string) {
	m.malformedFrames.WithLabelValues(reason).Inc()
}

// RecordNeedMore records an ingress call that made no progress because the
// frame was incomplete.
func (m *Metrics) RecordNeedMore(scheme string) {
	m.needMoreEvents.WithLabelValues(scheme).Inc()
}

// ObserveChunkLatency records how long one chunk took to encode ("tx") or
// decode ("rx").
func (m *Metrics) ObserveChunkLatency(direction string, seconds float64) {
	m.chunkLatency.WithLabelValues(direction).Observe(seconds)
}

// RecordBufferPoolHit records a scratch-buffer pool hit for the given size
// class ("iv" or "tag").
func (m *Metrics) RecordBufferPoolHit(sizeClass string) {
	m.bufferPoolHits.WithLabelValues(sizeClass).Inc()
}

// RecordBufferPoolMiss records a scratch-buffer pool miss.
func (m *Metrics) RecordBufferPoolMiss(sizeClass string) {
	m.bufferPoolMisses.WithLabelValues(sizeClass).Inc()
}

// SetAccumulatorFill reports a context's current egress accumulator fill
// level as a gauge. The /debug/channels diagnostics route does not read this
// gauge; it asks each context for its fill directly.
func (m *Metrics) SetAccumulatorFill(contextID string, fill int) {
	m.accumulatorFill.WithLabelValues(contextID).Set(float64(fill))
}

// SetHardwareAccelerationStatus sets the hardware acceleration gauge for a
// given acceleration type (e.g. "aes-ni", "armv8-aes").
func (m *Metrics) SetHardwareAccelerationStatus(accelType string, enabled bool) {
	val := 0.0
	if enabled {
		val = 1.0
	}
	m.hardwareAccelerationEnabled.WithLabelValues(accelType).Set(val)
}

// GetHardwareAccelerationEnabledMetric exposes the underlying gauge vector
// for integration tests that assert on it via testutil.ToFloat64.
func (m *Metrics) GetHardwareAccelerationEnabledMetric() *prometheus.GaugeVec {
	return m.hardwareAccelerationEnabled
}

// UpdateSystemMetrics refreshes goroutine and memory gauges.
func (m *Metrics) UpdateSystemMetrics() {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)
	m.goroutines.Set(float64(runtime.NumGoroutine()))
	m.memoryAllocBytes.Set(float64(memStats.Alloc))
	m.memorySysBytes.Set(float64(memStats.Sys))
}

// Handler returns the HTTP handler serving this process's Prometheus
// metrics in text exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.Handler()
}
