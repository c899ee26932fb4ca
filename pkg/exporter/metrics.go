package exporter

import "time"

// Metrics is the observability hook the exporter reports into. A nil
// Metrics disables collection with zero overhead; implementations live in
// pkg/metrics/prometheus and are constructed through
// pkg/metrics.NewExporterMetrics.
type Metrics interface {
	// ObserveExport records one export call: the span count handed in by
	// the SDK, the envelope count that survived translation and
	// processing, and the wall time spent.
	ObserveExport(spans, envelopes int, duration time.Duration)

	// ObserveSpooled records envelopes committed to storage.
	ObserveSpooled(envelopes int)

	// ObserveDropped records envelopes dropped before or instead of
	// transmission. reason is one of "translation", "processor", "storage".
	ObserveDropped(envelopes int, reason string)

	// ObserveOutcome records one blob's transmit disposition. retried is
	// the number of envelopes scheduled for a later attempt.
	ObserveOutcome(outcome string, batchSize, retried int)

	// RecordStorageStats records the spool's committed blob count and
	// total size after a drain pass.
	RecordStorageStats(blobCount int, totalBytes int64)
}

// Drop reasons reported through Metrics.ObserveDropped.
const (
	DropReasonTranslation = "translation"
	DropReasonProcessor   = "processor"
	DropReasonStorage     = "storage"
)

// observeExport and friends guard the nil-Metrics case so call sites stay
// unconditional.

func (e *Exporter) observeExport(spans, envelopes int, duration time.Duration) {
	if e.metrics != nil {
		e.metrics.ObserveExport(spans, envelopes, duration)
	}
}

func (e *Exporter) observeSpooled(envelopes int) {
	if e.metrics != nil {
		e.metrics.ObserveSpooled(envelopes)
	}
}

func (e *Exporter) observeDropped(envelopes int, reason string) {
	if e.metrics != nil && envelopes > 0 {
		e.metrics.ObserveDropped(envelopes, reason)
	}
}

func (e *Exporter) recordStorageStats() {
	if e.metrics == nil {
		return
	}
	stats, err := e.storage.Stats()
	if err != nil {
		return
	}
	e.metrics.RecordStorageStats(stats.BlobCount, stats.TotalBytes)
}
