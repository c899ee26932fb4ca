// Package exporter composes the spool, transmitter, processor chain, and
// span translator into an OpenTelemetry SpanExporter that ships spans to an
// Application Insights-compatible ingestion endpoint with durable,
// disk-backed retry.
package exporter

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/marmos91/aimonitor-exporter/internal/config"
	"github.com/marmos91/aimonitor-exporter/internal/logger"
	"github.com/marmos91/aimonitor-exporter/internal/telemetry"
	"github.com/marmos91/aimonitor-exporter/pkg/envelope"
	"github.com/marmos91/aimonitor-exporter/pkg/processor"
	"github.com/marmos91/aimonitor-exporter/pkg/spool"
	"github.com/marmos91/aimonitor-exporter/pkg/translator"
	"github.com/marmos91/aimonitor-exporter/pkg/transmit"
)

// Sentinel errors returned by this package.
var (
	// ErrMissingInstrumentationKey is returned when export is attempted
	// without an instrumentation key configured.
	ErrMissingInstrumentationKey = errors.New("exporter: instrumentation key is required to transmit")

	// ErrShutdown is returned when export is attempted after Shutdown.
	ErrShutdown = errors.New("exporter: already shut down")
)

// Result is the tri-state outcome of one export call.
type Result = transmit.Outcome

// Result values, re-exported for callers that treat the exporter as the
// unit boundary.
const (
	Success            = transmit.Success
	FailedRetryable    = transmit.FailedRetryable
	FailedNotRetryable = transmit.FailedNotRetryable
)

// Option customizes an Exporter beyond what config.Options carries.
type Option func(*Exporter)

// WithDoer substitutes the HTTP transport, mainly for tests.
func WithDoer(doer transmit.HTTPDoer) Option {
	return func(e *Exporter) { e.doer = doer }
}

// WithMetrics installs a Metrics implementation.
func WithMetrics(m Metrics) Option {
	return func(e *Exporter) { e.metrics = m }
}

// Exporter implements go.opentelemetry.io/otel/sdk/trace.SpanExporter.
//
// ExportSpans is safe to call from the SDK's batch-processor goroutine; it
// is serialized per instance, and the maintenance sweep runs on its own
// background goroutine until Shutdown. Multiple Exporter instances, in one
// process or many, may share a storage path: the blob lease is the only
// exclusion primitive needed.
var _ sdktrace.SpanExporter = (*Exporter)(nil)

type Exporter struct {
	opts       *config.Options
	translator *translator.Translator
	processors *processor.Chain
	storage    *spool.Storage
	drainer    *transmit.Drainer
	doer       transmit.HTTPDoer
	metrics    Metrics

	mu          sync.Mutex
	nextAttempt time.Time
	shutdown    bool
}

// New builds an Exporter from opts. A nil opts uses config.DefaultOptions
// (which resolves the instrumentation key from the environment). The
// maintenance sweep is started immediately and runs until Shutdown.
func New(opts *config.Options, optFns ...Option) (*Exporter, error) {
	if opts == nil {
		opts = config.DefaultOptions()
	}
	if err := config.Validate(opts); err != nil {
		return nil, err
	}

	e := &Exporter{
		opts:       opts,
		translator: translator.New(opts.InstrumentationKey),
		processors: processor.New(),
	}
	for _, fn := range optFns {
		fn(e)
	}

	storage, err := spool.New(spool.Config{
		Path:              opts.StoragePath,
		MaxSize:           opts.StorageMaxSize,
		RetentionPeriod:   opts.StorageRetentionPeriod,
		MaintenancePeriod: opts.StorageMaintenancePeriod,
	})
	if err != nil {
		return nil, err
	}
	e.storage = storage

	transmitter, err := transmit.New(transmit.Options{
		Endpoint: opts.Endpoint,
		Timeout:  opts.Timeout,
		Proxies:  opts.Proxies,
		Doer:     e.doer,
	})
	if err != nil {
		return nil, err
	}

	e.drainer = transmit.NewDrainer(storage, transmitter, opts.MinimumRetryInterval)
	if e.metrics != nil {
		e.drainer.SetObserver(outcomeObserver{m: e.metrics})
	}

	storage.StartMaintenance(context.Background())

	logger.Info("exporter: started",
		"storage_path", opts.StoragePath,
		"endpoint", opts.Endpoint)

	return e, nil
}

// outcomeObserver bridges the drain loop's per-blob dispositions into
// Metrics.
type outcomeObserver struct {
	m Metrics
}

func (o outcomeObserver) ObserveOutcome(outcome transmit.Outcome, batchSize, retried int) {
	o.m.ObserveOutcome(outcome.String(), batchSize, retried)
}

// AddProcessor appends a telemetry processor applied to every envelope
// before it is spooled. Concurrent registration and export need not be
// atomic; register processors before handing the exporter to the SDK.
func (e *Exporter) AddProcessor(p processor.TelemetryProcessor) {
	e.processors.Add(p)
}

// ClearProcessors removes all registered processors.
func (e *Exporter) ClearProcessors() {
	e.processors.Clear()
}

// ExportSpans implements sdktrace.SpanExporter. It reports the dominant
// outcome as an error (nil for SUCCESS), which the SDK logs.
func (e *Exporter) ExportSpans(ctx context.Context, spans []sdktrace.ReadOnlySpan) error {
	result, err := e.Export(ctx, spans)
	if err != nil {
		return err
	}
	if result != Success {
		return fmt.Errorf("exporter: export finished %s", result)
	}
	return nil
}

// Export translates spans, applies the processor chain, spools the
// surviving envelopes, and drains storage. The result reflects the dominant
// outcome: SUCCESS iff the storage write succeeded, FAILED_RETRYABLE when
// no blob could be written.
func (e *Exporter) Export(ctx context.Context, spans []sdktrace.ReadOnlySpan) (Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.shutdown {
		return FailedNotRetryable, ErrShutdown
	}
	if e.opts.InstrumentationKey == "" {
		return FailedNotRetryable, ErrMissingInstrumentationKey
	}

	ctx, span := telemetry.StartExportSpan(ctx, len(spans))
	defer span.End()

	start := time.Now()

	envelopes := e.translate(spans)
	before := len(envelopes)
	envelopes = e.processors.Apply(envelopes)
	e.observeDropped(before-len(envelopes), DropReasonProcessor)
	span.SetAttributes(
		telemetry.BatchSize(len(envelopes)),
		telemetry.Dropped(len(spans)-len(envelopes)),
	)

	result := Success
	if len(envelopes) > 0 {
		if _, err := e.storage.Put(envelopes, 0); err != nil {
			logger.Warn("exporter: failed to spool batch",
				"batch_size", len(envelopes), "error", err)
			e.observeDropped(len(envelopes), DropReasonStorage)
			result = FailedRetryable
		} else {
			e.observeSpooled(len(envelopes))
		}
	}

	e.drain(ctx)
	e.observeExport(len(spans), len(envelopes), time.Since(start))
	e.recordStorageStats()

	return result, nil
}

// translate converts spans one at a time; a failing span is logged and
// skipped, the rest of the batch proceeds.
func (e *Exporter) translate(spans []sdktrace.ReadOnlySpan) []*envelope.Envelope {
	envelopes := make([]*envelope.Envelope, 0, len(spans))
	failed := 0
	for _, span := range spans {
		env, err := e.translator.Translate(span)
		if err != nil {
			logger.Error("exporter: failed to translate span",
				"span", span.Name(), "error", err)
			failed++
			continue
		}
		envelopes = append(envelopes, env)
	}
	e.observeDropped(failed, DropReasonTranslation)
	return envelopes
}

// drain runs one drain pass unless a prior whole-batch retryable outcome
// still holds the backoff gate closed.
func (e *Exporter) drain(ctx context.Context) {
	if !e.nextAttempt.IsZero() && time.Now().Before(e.nextAttempt) {
		return
	}

	ctx, span := telemetry.StartDrainSpan(ctx)
	defer span.End()

	if err := e.drainer.Drain(ctx); err != nil {
		logger.Warn("exporter: drain failed", "error", err)
		telemetry.RecordError(ctx, err)
		return
	}

	if e.drainer.Backpressured() {
		delay := e.drainer.NextAttempt()
		e.nextAttempt = time.Now().Add(delay)
		logger.Debug("exporter: drain backpressure", "next_attempt_in", delay)
	} else {
		e.nextAttempt = time.Time{}
	}
}

// Shutdown implements sdktrace.SpanExporter. It makes a final drain
// attempt, stops the maintenance worker, and marks the exporter unusable.
// Subsequent exports return ErrShutdown.
func (e *Exporter) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.shutdown {
		return nil
	}
	e.shutdown = true

	// Best-effort final flush of whatever is already spooled.
	if err := e.drainer.Drain(ctx); err != nil {
		logger.Warn("exporter: final drain failed", "error", err)
	}

	timeout := 5 * time.Second
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}
	e.storage.StopMaintenance(timeout)

	logger.Info("exporter: shut down", "storage_path", e.opts.StoragePath)
	return ctx.Err()
}
