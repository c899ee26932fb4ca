package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Common attribute keys for exporter self-instrumentation spans.
// These follow OpenTelemetry semantic conventions where applicable; the
// exporter-specific keys use the "spool." and "transmit." prefixes.
const (
	// ========================================================================
	// Transmission attributes
	// ========================================================================
	AttrEndpoint      = "transmit.endpoint"       // Ingestion endpoint URL
	AttrHTTPStatus    = "transmit.http_status"    // HTTP status of the response
	AttrOutcome       = "transmit.outcome"        // SUCCESS, FAILED_RETRYABLE, FAILED_NOT_RETRYABLE
	AttrBatchSize     = "transmit.batch_size"     // Envelope count in the batch
	AttrItemsReceived = "transmit.items_received" // itemsReceived from a 206 body
	AttrItemsAccepted = "transmit.items_accepted" // itemsAccepted from a 206 body
	AttrRetryCount    = "transmit.retry_count"    // Envelopes scheduled for retry
	AttrAttempt       = "transmit.attempt"        // Retry attempt number

	// ========================================================================
	// Spool attributes
	// ========================================================================
	AttrBlob        = "spool.blob"        // Blob filename
	AttrBlobCount   = "spool.blob_count"  // Committed blob count
	AttrTotalBytes  = "spool.total_bytes" // Total committed blob size
	AttrEvicted     = "spool.evicted"     // Blobs evicted during maintenance
	AttrStoragePath = "spool.path"        // Storage directory

	// ========================================================================
	// Translation attributes
	// ========================================================================
	AttrSpanCount = "translate.span_count" // Spans in an export batch
	AttrDropped   = "translate.dropped"    // Spans skipped or envelopes dropped
)

// Span names for exporter operations.
// Format: <component>.<operation>
const (
	SpanExport      = "exporter.export"
	SpanTranslate   = "exporter.translate"
	SpanProcess     = "exporter.process"
	SpanDrain       = "transmit.drain"
	SpanTransmit    = "transmit.send"
	SpanSpoolPut    = "spool.put"
	SpanSpoolGet    = "spool.get"
	SpanMaintenance = "spool.maintenance"
)

// Endpoint returns an attribute for the ingestion endpoint URL
func Endpoint(url string) attribute.KeyValue {
	return attribute.String(AttrEndpoint, url)
}

// HTTPStatus returns an attribute for the response status code
func HTTPStatus(code int) attribute.KeyValue {
	return attribute.Int(AttrHTTPStatus, code)
}

// Outcome returns an attribute for the transmit outcome
func Outcome(o string) attribute.KeyValue {
	return attribute.String(AttrOutcome, o)
}

// BatchSize returns an attribute for the envelope count in a batch
func BatchSize(n int) attribute.KeyValue {
	return attribute.Int(AttrBatchSize, n)
}

// ItemsReceived returns an attribute for itemsReceived in a 206 body
func ItemsReceived(n int) attribute.KeyValue {
	return attribute.Int(AttrItemsReceived, n)
}

// ItemsAccepted returns an attribute for itemsAccepted in a 206 body
func ItemsAccepted(n int) attribute.KeyValue {
	return attribute.Int(AttrItemsAccepted, n)
}

// RetryCount returns an attribute for the number of envelopes retried
func RetryCount(n int) attribute.KeyValue {
	return attribute.Int(AttrRetryCount, n)
}

// Attempt returns an attribute for the retry attempt number
func Attempt(n int) attribute.KeyValue {
	return attribute.Int(AttrAttempt, n)
}

// Blob returns an attribute for a blob filename
func Blob(name string) attribute.KeyValue {
	return attribute.String(AttrBlob, name)
}

// BlobCount returns an attribute for the committed blob count
func BlobCount(n int) attribute.KeyValue {
	return attribute.Int(AttrBlobCount, n)
}

// TotalBytes returns an attribute for total committed blob size
func TotalBytes(n int64) attribute.KeyValue {
	return attribute.Int64(AttrTotalBytes, n)
}

// Evicted returns an attribute for the number of blobs evicted
func Evicted(n int) attribute.KeyValue {
	return attribute.Int(AttrEvicted, n)
}

// StoragePath returns an attribute for the storage directory
func StoragePath(path string) attribute.KeyValue {
	return attribute.String(AttrStoragePath, path)
}

// SpanCount returns an attribute for the number of spans in an export batch
func SpanCount(n int) attribute.KeyValue {
	return attribute.Int(AttrSpanCount, n)
}

// Dropped returns an attribute for skipped spans or dropped envelopes
func Dropped(n int) attribute.KeyValue {
	return attribute.Int(AttrDropped, n)
}

// StartExportSpan starts a span for one export batch.
func StartExportSpan(ctx context.Context, spanCount int, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	allAttrs := []attribute.KeyValue{SpanCount(spanCount)}
	allAttrs = append(allAttrs, attrs...)
	return StartSpan(ctx, SpanExport, trace.WithAttributes(allAttrs...))
}

// StartDrainSpan starts a span for one drain pass.
func StartDrainSpan(ctx context.Context, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return StartSpan(ctx, SpanDrain, trace.WithAttributes(attrs...))
}

// StartTransmitSpan starts a span for one HTTP transmission.
func StartTransmitSpan(ctx context.Context, endpoint string, batchSize int, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	allAttrs := []attribute.KeyValue{Endpoint(endpoint), BatchSize(batchSize)}
	allAttrs = append(allAttrs, attrs...)
	return StartSpan(ctx, SpanTransmit, trace.WithAttributes(allAttrs...))
}

// StartSpoolSpan starts a span for a spool operation (put, get, maintenance).
func StartSpoolSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return StartSpan(ctx, name, trace.WithAttributes(attrs...))
}
