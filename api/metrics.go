// Package api provides Prometheus metrics for the conversion engine.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the engine. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	// File metrics
	FilesTotal         *prometheus.CounterVec
	ConversionDuration prometheus.Histogram
	ActiveConversions  prometheus.Gauge
	BytesRead          prometheus.Counter

	// Spectrum metrics
	SpectraConverted prometheus.Counter
	SpectraSkipped   *prometheus.CounterVec

	// Batch metrics
	RowGroupsWritten prometheus.Counter
	BatchRows        prometheus.Histogram
	BatchBytes       prometheus.Histogram
	QueueDepth       prometheus.Gauge
}

// NewMetrics creates metrics with the given namespace on a fresh registry that
// also carries the Go runtime and process collectors.
func NewMetrics(namespace string) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		FilesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "files_total",
			Help:      "Total number of conversions by final state",
		}, []string{"state"}),
		ConversionDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "conversion_duration_seconds",
			Help:      "Wall time of one file conversion in seconds",
			Buckets:   []float64{.1, .5, 1, 5, 15, 30, 60, 120, 300, 600, 1800},
		}),
		ActiveConversions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_conversions",
			Help:      "Number of conversions in progress",
		}),
		BytesRead: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_bytes_read_total",
			Help:      "Total bytes read from conversion sources",
		}),

		SpectraConverted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "spectra_converted_total",
			Help:      "Total number of spectra written",
		}),
		SpectraSkipped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "spectra_skipped_total",
			Help:      "Total number of skipped spectra by reason",
		}, []string{"reason"}),

		RowGroupsWritten: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "row_groups_written_total",
			Help:      "Total number of flushed batches",
		}),
		BatchRows: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_rows",
			Help:      "Number of rows per flushed batch",
			Buckets:   prometheus.ExponentialBuckets(16, 4, 8),
		}),
		BatchBytes: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_bytes",
			Help:      "Estimated size of flushed batches in bytes",
			Buckets:   prometheus.ExponentialBuckets(1<<16, 4, 8),
		}),
		QueueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_depth",
			Help:      "Completed spectra waiting for the emitter",
		}),
	}
}

// Registry returns the registry the metrics are registered on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ConversionStarted marks a conversion as active.
func (m *Metrics) ConversionStarted() {
	if m == nil {
		return
	}
	m.ActiveConversions.Inc()
}

// ConversionFinished records a finished conversion in the given final state.
func (m *Metrics) ConversionFinished(state string, duration time.Duration) {
	if m == nil {
		return
	}
	m.ActiveConversions.Dec()
	m.FilesTotal.WithLabelValues(state).Inc()
	m.ConversionDuration.Observe(duration.Seconds())
}

// RecordSpectrum records one emitted spectrum.
func (m *Metrics) RecordSpectrum() {
	if m == nil {
		return
	}
	m.SpectraConverted.Inc()
}

// RecordSkip records one skipped spectrum.
func (m *Metrics) RecordSkip(reason string) {
	if m == nil {
		return
	}
	m.SpectraSkipped.WithLabelValues(reason).Inc()
}

// RecordBatch records a flushed batch.
func (m *Metrics) RecordBatch(rows, bytes int) {
	if m == nil {
		return
	}
	m.RowGroupsWritten.Inc()
	m.BatchRows.Observe(float64(rows))
	m.BatchBytes.Observe(float64(bytes))
}

// AddBytesRead adds n source bytes.
func (m *Metrics) AddBytesRead(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.BytesRead.Add(float64(n))
}

// UpdateQueueDepth updates the queue gauge.
func (m *Metrics) UpdateQueueDepth(n int) {
	if m == nil {
		return
	}
	m.QueueDepth.Set(float64(n))
}

// MetricsServer runs an HTTP server exposing /metrics endpoint.
type MetricsServer struct {
	server *http.Server
}

// NewMetricsServer creates a new metrics server on the given address.
func NewMetricsServer(addr string, m *Metrics) *MetricsServer {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.Registry(), promhttp.HandlerOpts{}))
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	return &MetricsServer{
		server: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

// Handler returns the server's HTTP handler.
func (s *MetricsServer) Handler() http.Handler {
	return s.server.Handler
}

// StartAsync starts the metrics server in a goroutine. Listen errors are
// passed to onError when it is non-nil.
func (s *MetricsServer) StartAsync(onError func(error)) {
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed && onError != nil {
			onError(err)
		}
	}()
}

// Stop gracefully stops the metrics server.
func (s *MetricsServer) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
