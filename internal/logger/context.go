package logger

import (
	"context"
	"time"
)

// contextKey is a private type for context keys to avoid collisions
type contextKey struct{}

// logContextKey is the key for LogContext in context.Context
var logContextKey = contextKey{}

// LogContext holds export-scoped logging context
type LogContext struct {
	TraceID   string    // OpenTelemetry trace ID
	SpanID    string    // OpenTelemetry span ID
	Operation string    // Exporter operation (export, drain, maintenance, etc.)
	Endpoint  string    // Ingestion endpoint URL
	Blob      string    // Blob filename currently being processed
	BatchSize int       // Envelope count of the batch in flight
	Attempt   int       // Retry attempt number
	StartTime time.Time // For duration calculation
}

// WithContext returns a new context with the given LogContext
func WithContext(ctx context.Context, lc *LogContext) context.Context {
	return context.WithValue(ctx, logContextKey, lc)
}

// FromContext retrieves the LogContext from context, or nil if not present
func FromContext(ctx context.Context) *LogContext {
	if ctx == nil {
		return nil
	}
	lc, _ := ctx.Value(logContextKey).(*LogContext)
	return lc
}

// NewLogContext creates a new LogContext for the given endpoint
func NewLogContext(endpoint string) *LogContext {
	return &LogContext{
		Endpoint:  endpoint,
		StartTime: time.Now(),
	}
}

// Clone creates a copy of the LogContext
func (lc *LogContext) Clone() *LogContext {
	if lc == nil {
		return nil
	}
	return &LogContext{
		TraceID:   lc.TraceID,
		SpanID:    lc.SpanID,
		Operation: lc.Operation,
		Endpoint:  lc.Endpoint,
		Blob:      lc.Blob,
		BatchSize: lc.BatchSize,
		Attempt:   lc.Attempt,
		StartTime: lc.StartTime,
	}
}

// WithOperation returns a copy with the operation set
func (lc *LogContext) WithOperation(operation string) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.Operation = operation
	}
	return clone
}

// WithBlob returns a copy with the blob filename set
func (lc *LogContext) WithBlob(blob string) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.Blob = blob
	}
	return clone
}

// WithBatch returns a copy with the batch size and attempt set
func (lc *LogContext) WithBatch(batchSize, attempt int) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.BatchSize = batchSize
		clone.Attempt = attempt
	}
	return clone
}

// WithTrace returns a copy with trace info set
func (lc *LogContext) WithTrace(traceID, spanID string) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.TraceID = traceID
		clone.SpanID = spanID
	}
	return clone
}

// DurationMs returns the duration since StartTime in milliseconds
func (lc *LogContext) DurationMs() float64 {
	if lc == nil || lc.StartTime.IsZero() {
		return 0
	}
	return float64(time.Since(lc.StartTime).Microseconds()) / 1000.0
}
