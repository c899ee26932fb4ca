package logger

import "log/slog"

// Standard field keys for structured logging.
// Use these keys consistently across all log statements for log aggregation
// and querying.
const (
	// ========================================================================
	// Distributed Tracing
	// ========================================================================
	KeyTraceID = "trace_id" // OpenTelemetry trace ID for request correlation
	KeySpanID  = "span_id"  // OpenTelemetry span ID for operation tracking

	// ========================================================================
	// Transmission
	// ========================================================================
	KeyEndpoint      = "endpoint"       // Ingestion endpoint URL
	KeyHTTPStatus    = "http_status"    // HTTP status code of the transmit response
	KeyOutcome       = "outcome"        // Transmit outcome: SUCCESS, FAILED_RETRYABLE, FAILED_NOT_RETRYABLE
	KeyBatchSize     = "batch_size"     // Number of envelopes in the transmitted batch
	KeyItemsReceived = "items_received" // itemsReceived from a partial-success body
	KeyItemsAccepted = "items_accepted" // itemsAccepted from a partial-success body
	KeyRetryCount    = "retry_count"    // Number of envelopes scheduled for retry
	KeyAttempt       = "attempt"        // Retry attempt number

	// ========================================================================
	// Spool
	// ========================================================================
	KeyBlob        = "blob"         // Blob filename within the storage directory
	KeyBlobPath    = "blob_path"    // Full blob path
	KeyLeaseExp    = "lease_exp"    // Lease expiration (unix seconds)
	KeyBlobCount   = "blob_count"   // Number of committed blobs in storage
	KeyTotalBytes  = "total_bytes"  // Total committed blob size in bytes
	KeyEvicted     = "evicted"      // Number of blobs evicted during maintenance
	KeyStoragePath = "storage_path" // Storage directory path

	// ========================================================================
	// Translation
	// ========================================================================
	KeySpanKind  = "span_kind"  // Span kind: server, client, internal, ...
	KeySpanCount = "span_count" // Number of spans in an export batch
	KeyDropped   = "dropped"    // Number of envelopes dropped (processors or translation)

	// ========================================================================
	// Operation Metadata
	// ========================================================================
	KeyDurationMs = "duration_ms" // Operation duration in milliseconds
	KeyError      = "error"       // Error message
	KeyOperation  = "operation"   // Sub-operation type for complex operations
)

// ============================================================================
// Field constructors for type safety
// These functions provide type-safe construction of slog.Attr values.
// ============================================================================

// TraceID returns a slog.Attr for OpenTelemetry trace ID
func TraceID(id string) slog.Attr {
	return slog.String(KeyTraceID, id)
}

// SpanID returns a slog.Attr for OpenTelemetry span ID
func SpanID(id string) slog.Attr {
	return slog.String(KeySpanID, id)
}

// Endpoint returns a slog.Attr for the ingestion endpoint URL
func Endpoint(url string) slog.Attr {
	return slog.String(KeyEndpoint, url)
}

// HTTPStatus returns a slog.Attr for the transmit response status code
func HTTPStatus(code int) slog.Attr {
	return slog.Int(KeyHTTPStatus, code)
}

// Outcome returns a slog.Attr for the transmit outcome
func Outcome(o string) slog.Attr {
	return slog.String(KeyOutcome, o)
}

// BatchSize returns a slog.Attr for the number of envelopes in a batch
func BatchSize(n int) slog.Attr {
	return slog.Int(KeyBatchSize, n)
}

// ItemsReceived returns a slog.Attr for itemsReceived in a 206 body
func ItemsReceived(n int) slog.Attr {
	return slog.Int(KeyItemsReceived, n)
}

// ItemsAccepted returns a slog.Attr for itemsAccepted in a 206 body
func ItemsAccepted(n int) slog.Attr {
	return slog.Int(KeyItemsAccepted, n)
}

// RetryCount returns a slog.Attr for the number of envelopes retried
func RetryCount(n int) slog.Attr {
	return slog.Int(KeyRetryCount, n)
}

// Attempt returns a slog.Attr for retry attempt number
func Attempt(n int) slog.Attr {
	return slog.Int(KeyAttempt, n)
}

// Blob returns a slog.Attr for a blob filename
func Blob(name string) slog.Attr {
	return slog.String(KeyBlob, name)
}

// BlobPath returns a slog.Attr for a full blob path
func BlobPath(path string) slog.Attr {
	return slog.String(KeyBlobPath, path)
}

// LeaseExp returns a slog.Attr for a lease expiration timestamp
func LeaseExp(unixSeconds int64) slog.Attr {
	return slog.Int64(KeyLeaseExp, unixSeconds)
}

// BlobCount returns a slog.Attr for the committed blob count
func BlobCount(n int) slog.Attr {
	return slog.Int(KeyBlobCount, n)
}

// TotalBytes returns a slog.Attr for total committed blob size
func TotalBytes(n int64) slog.Attr {
	return slog.Int64(KeyTotalBytes, n)
}

// Evicted returns a slog.Attr for the number of blobs evicted
func Evicted(n int) slog.Attr {
	return slog.Int(KeyEvicted, n)
}

// StoragePath returns a slog.Attr for the storage directory path
func StoragePath(path string) slog.Attr {
	return slog.String(KeyStoragePath, path)
}

// SpanKind returns a slog.Attr for a span kind
func SpanKind(kind string) slog.Attr {
	return slog.String(KeySpanKind, kind)
}

// SpanCount returns a slog.Attr for the number of spans in an export batch
func SpanCount(n int) slog.Attr {
	return slog.Int(KeySpanCount, n)
}

// Dropped returns a slog.Attr for the number of envelopes dropped
func Dropped(n int) slog.Attr {
	return slog.Int(KeyDropped, n)
}

// DurationMs returns a slog.Attr for duration in milliseconds
func DurationMs(ms float64) slog.Attr {
	return slog.Float64(KeyDurationMs, ms)
}

// Err returns a slog.Attr for an error
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, err.Error())
}

// Operation returns a slog.Attr for sub-operation type
func Operation(op string) slog.Attr {
	return slog.String(KeyOperation, op)
}
