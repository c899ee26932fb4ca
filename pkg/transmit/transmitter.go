// Package transmit implements the HTTP transmission of envelope batches
// and the drain loop that pairs a Transmitter with a spool.Storage.
package transmit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/marmos91/aimonitor-exporter/internal/logger"
	"github.com/marmos91/aimonitor-exporter/internal/telemetry"
	"github.com/marmos91/aimonitor-exporter/pkg/envelope"
)

// Outcome is the tri-state result of transmitting one batch.
type Outcome int

const (
	// Success means the batch (or, for whole-batch outcomes, the entirety
	// of it) was accepted and should be dropped.
	Success Outcome = iota
	// FailedRetryable means the batch, or a subset of it, should be
	// retried later.
	FailedRetryable
	// FailedNotRetryable means the batch should be dropped without retry.
	FailedNotRetryable
)

func (o Outcome) String() string {
	switch o {
	case Success:
		return "SUCCESS"
	case FailedRetryable:
		return "FAILED_RETRYABLE"
	case FailedNotRetryable:
		return "FAILED_NOT_RETRYABLE"
	default:
		return "UNKNOWN"
	}
}

// retryableStatusCodes pins the retryable HTTP status set per the bound
// Open Question decision in DESIGN.md.
var retryableStatusCodes = map[int]bool{
	408: true,
	429: true,
	500: true,
	503: true,
}

// notRetryableStatusCodes enumerates the status codes the table classifies
// explicitly as non-retryable client/credential errors; anything else
// outside retryableStatusCodes and {200, 206} also falls through to
// FailedNotRetryable.
var notRetryableStatusCodes = map[int]bool{
	400: true,
	401: true,
	403: true,
	404: true,
	415: true,
}

// partialSuccessError is one entry in a 206 response's errors[] array.
type partialSuccessError struct {
	Index      int    `json:"index"`
	StatusCode int    `json:"statusCode"`
	Message    string `json:"message"`
}

// partialSuccessBody is the ingestion endpoint's partial-success response.
type partialSuccessBody struct {
	ItemsReceived int                   `json:"itemsReceived"`
	ItemsAccepted int                   `json:"itemsAccepted"`
	Errors        []partialSuccessError `json:"errors"`
}

// HTTPDoer is the injectable boundary around the HTTP transport. The
// default Transmitter satisfies it with a plain *http.Client: the HTTP
// client library is itself an external collaborator this package names a
// contract for, not an internal implementation choice, so the default must
// stay the most neutral possible implementation.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Result is the outcome of Transmit, including the retryable subset for a
// partial (206) outcome.
type Result struct {
	Outcome Outcome
	// RetryIndices holds the positions (into the batch Transmit was given)
	// that should be retried, populated only for a partial 206 outcome.
	RetryIndices []int
}

// Transmitter sends a batch of envelopes to the ingestion endpoint and
// classifies the response.
type Transmitter struct {
	endpoint string
	doer     HTTPDoer
}

// Options configures a Transmitter.
type Options struct {
	Endpoint string
	Timeout  time.Duration
	Proxies  map[string]string
	Doer     HTTPDoer
}

// DefaultEndpoint is the Application Insights ingestion default used when
// Options.Endpoint is empty.
const DefaultEndpoint = "https://dc.services.visualstudio.com/v2/track"

// New builds a Transmitter. When opts.Doer is nil, a *http.Client is
// constructed from opts.Timeout and opts.Proxies.
func New(opts Options) (*Transmitter, error) {
	endpoint := opts.Endpoint
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}

	doer := opts.Doer
	if doer == nil {
		client := &http.Client{}
		if opts.Timeout > 0 {
			client.Timeout = opts.Timeout
		}
		if len(opts.Proxies) > 0 {
			transport, err := proxyTransport(opts.Proxies)
			if err != nil {
				return nil, err
			}
			client.Transport = transport
		}
		doer = client
	}

	return &Transmitter{endpoint: endpoint, doer: doer}, nil
}

func proxyTransport(proxies map[string]string) (*http.Transport, error) {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	scheme := "https"
	raw, ok := proxies[scheme]
	if !ok {
		scheme = "http"
		raw, ok = proxies[scheme]
	}
	if !ok {
		return transport, nil
	}
	proxyURL, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("transmit: invalid proxy url for scheme %q: %w", scheme, err)
	}
	transport.Proxy = http.ProxyURL(proxyURL)
	return transport, nil
}

// Transmit POSTs batch as a JSON array and classifies the response per the
// status table in SPEC_FULL §4.3.
func (t *Transmitter) Transmit(ctx context.Context, batch []*envelope.Envelope) (Result, error) {
	ctx, span := telemetry.StartTransmitSpan(ctx, t.endpoint, len(batch))
	defer span.End()

	payload, err := envelope.Marshal(batch)
	if err != nil {
		telemetry.RecordError(ctx, err)
		return Result{Outcome: FailedNotRetryable}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(payload))
	if err != nil {
		telemetry.RecordError(ctx, err)
		return Result{Outcome: FailedNotRetryable}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.doer.Do(req)
	if err != nil {
		// Transport exception (no HTTP status): classify as retryable.
		logger.Warn("transmit: transport error", "endpoint", t.endpoint, "error", err)
		telemetry.RecordError(ctx, err)
		span.SetAttributes(telemetry.Outcome(FailedRetryable.String()))
		return Result{Outcome: FailedRetryable}, nil
	}
	defer resp.Body.Close()

	result := t.classify(resp, len(batch))
	span.SetAttributes(
		telemetry.HTTPStatus(resp.StatusCode),
		telemetry.Outcome(result.Outcome.String()),
		telemetry.RetryCount(len(result.RetryIndices)),
	)
	return result, nil
}

func (t *Transmitter) classify(resp *http.Response, batchSize int) Result {
	status := resp.StatusCode

	switch {
	case status == http.StatusOK:
		return Result{Outcome: Success}

	case status == http.StatusPartialContent:
		var body partialSuccessBody
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			// Decode failure: treat as accepted, body is advisory.
			return Result{Outcome: Success}
		}

		retry := make([]int, 0, len(body.Errors))
		for _, e := range body.Errors {
			if e.Index < 0 || e.Index >= batchSize {
				continue // malformed index, ignore this entry
			}
			if retryableStatusCodes[e.StatusCode] {
				retry = append(retry, e.Index)
			}
		}
		if len(retry) == 0 {
			// No valid retryable entries (malformed errors[], or all
			// entries were drops/non-retryable): treat as accepted.
			return Result{Outcome: Success}
		}
		return Result{Outcome: FailedRetryable, RetryIndices: retry}

	case retryableStatusCodes[status]:
		logger.Warn("transmit: retryable status", "status", status)
		return Result{Outcome: FailedRetryable}

	case notRetryableStatusCodes[status]:
		logger.Warn("transmit: non-retryable status", "status", status)
		return Result{Outcome: FailedNotRetryable}

	default:
		logger.Warn("transmit: unrecognized status treated as non-retryable", "status", status)
		return Result{Outcome: FailedNotRetryable}
	}
}
