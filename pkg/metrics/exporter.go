package metrics

import (
	"github.com/marmos91/aimonitor-exporter/pkg/exporter"
)

// NewExporterMetrics creates a new Prometheus-backed exporter.Metrics
// instance.
//
// Returns nil if metrics are not enabled (InitRegistry not called) or the
// Prometheus implementation package was never imported. When nil is
// returned, callers pass nil to the exporter, which results in zero
// overhead.
//
// Example usage:
//
//	import _ "github.com/marmos91/aimonitor-exporter/pkg/metrics/prometheus"
//
//	metrics.InitRegistry()
//	exp, err := exporter.New(opts, exporter.WithMetrics(metrics.NewExporterMetrics()))
func NewExporterMetrics() exporter.Metrics {
	if !IsEnabled() || newPrometheusExporterMetrics == nil {
		return nil
	}
	return newPrometheusExporterMetrics()
}

// newPrometheusExporterMetrics is implemented in pkg/metrics/prometheus.
// This indirection avoids an import cycle while keeping the API clean.
var newPrometheusExporterMetrics func() exporter.Metrics

// RegisterExporterMetricsConstructor registers the Prometheus exporter
// metrics constructor. Called by pkg/metrics/prometheus during package
// initialization.
func RegisterExporterMetricsConstructor(constructor func() exporter.Metrics) {
	newPrometheusExporterMetrics = constructor
}
