// Package prometheus provides the Prometheus implementation of the
// exporter's metric set. Importing this package (blank import is enough)
// registers its constructor with pkg/metrics.
package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/marmos91/aimonitor-exporter/pkg/exporter"
	"github.com/marmos91/aimonitor-exporter/pkg/metrics"
)

func init() {
	metrics.RegisterExporterMetricsConstructor(NewExporterMetrics)
}

// exporterMetrics is the Prometheus implementation of exporter.Metrics.
type exporterMetrics struct {
	spansExported    prometheus.Counter
	envelopesSpooled prometheus.Counter
	envelopesDropped *prometheus.CounterVec
	envelopesRetried prometheus.Counter
	outcomes         *prometheus.CounterVec
	exportDuration   prometheus.Histogram
	spoolBlobs       prometheus.Gauge
	spoolSize        prometheus.Gauge
}

// NewExporterMetrics creates a new Prometheus-backed exporter.Metrics
// instance.
//
// Returns nil if metrics are not enabled (InitRegistry not called).
func NewExporterMetrics() exporter.Metrics {
	if !metrics.IsEnabled() {
		return nil
	}

	reg := metrics.GetRegistry()

	return &exporterMetrics{
		spansExported: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "aimonitor_exporter_spans_exported_total",
				Help: "Total number of spans handed to the exporter by the SDK",
			},
		),
		envelopesSpooled: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "aimonitor_exporter_envelopes_spooled_total",
				Help: "Total number of envelopes committed to the storage directory",
			},
		),
		envelopesDropped: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "aimonitor_exporter_envelopes_dropped_total",
				Help: "Total number of envelopes dropped before or instead of transmission, by reason",
			},
			[]string{"reason"}, // "translation", "processor", "storage"
		),
		envelopesRetried: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "aimonitor_exporter_envelopes_retried_total",
				Help: "Total number of envelopes rescheduled for a later transmit attempt",
			},
		),
		outcomes: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "aimonitor_exporter_transmit_outcomes_total",
				Help: "Total number of per-blob transmit dispositions by outcome",
			},
			[]string{"outcome"}, // SUCCESS, FAILED_RETRYABLE, FAILED_NOT_RETRYABLE
		),
		exportDuration: promauto.With(reg).NewHistogram(
			prometheus.HistogramOpts{
				Name: "aimonitor_exporter_export_duration_milliseconds",
				Help: "Duration of one export call (translate + spool + drain) in milliseconds",
				Buckets: []float64{
					1,     // 1ms - spool only, nothing to drain
					5,     // 5ms
					10,    // 10ms
					50,    // 50ms
					100,   // 100ms - one fast round trip
					500,   // 500ms
					1000,  // 1s
					5000,  // 5s
					15000, // 15s - slow endpoint near timeout
				},
			},
		),
		spoolBlobs: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "aimonitor_exporter_spool_blobs",
				Help: "Current number of committed blobs in the storage directory",
			},
		),
		spoolSize: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "aimonitor_exporter_spool_size_bytes",
				Help: "Current total size of committed blobs in bytes",
			},
		),
	}
}

func (m *exporterMetrics) ObserveExport(spans, envelopes int, duration time.Duration) {
	if m == nil {
		return
	}
	m.spansExported.Add(float64(spans))
	m.exportDuration.Observe(duration.Seconds() * 1000)
}

func (m *exporterMetrics) ObserveSpooled(envelopes int) {
	if m == nil {
		return
	}
	m.envelopesSpooled.Add(float64(envelopes))
}

func (m *exporterMetrics) ObserveDropped(envelopes int, reason string) {
	if m == nil {
		return
	}
	m.envelopesDropped.WithLabelValues(reason).Add(float64(envelopes))
}

func (m *exporterMetrics) ObserveOutcome(outcome string, batchSize, retried int) {
	if m == nil {
		return
	}
	m.outcomes.WithLabelValues(outcome).Inc()
	if retried > 0 {
		m.envelopesRetried.Add(float64(retried))
	}
}

func (m *exporterMetrics) RecordStorageStats(blobCount int, totalBytes int64) {
	if m == nil {
		return
	}
	m.spoolBlobs.Set(float64(blobCount))
	m.spoolSize.Set(float64(totalBytes))
}
