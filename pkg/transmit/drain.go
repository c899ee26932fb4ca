package transmit

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/marmos91/aimonitor-exporter/internal/logger"
	"github.com/marmos91/aimonitor-exporter/pkg/envelope"
	"github.com/marmos91/aimonitor-exporter/pkg/spool"
)

// Observer receives per-blob disposition notifications from the drain loop.
// retried is the number of envelopes scheduled for a later attempt: the
// partial-retry subset size, or the whole batch on a whole-batch retryable
// outcome.
type Observer interface {
	ObserveOutcome(outcome Outcome, batchSize, retried int)
}

// Drainer pairs a Transmitter with a spool.Storage and implements the
// drain loop (SPEC_FULL §4.4): acquire leased Blobs one at a time, transmit
// each, and dispose of it per the outcome.
type Drainer struct {
	storage       *spool.Storage
	transmitter   *Transmitter
	backoff       *backoff.ExponentialBackOff
	minInterval   time.Duration
	observer      Observer
	backpressured bool
}

// NewDrainer builds a Drainer. minRetryInterval is the backoff floor
// (Options.minimum_retry_interval); a zero value uses the
// backoff package's own default (randomized) intervals. With a non-zero
// floor, delays start at minRetryInterval and grow without randomization,
// so no delay is shorter than the floor.
func NewDrainer(storage *spool.Storage, transmitter *Transmitter, minRetryInterval time.Duration) *Drainer {
	b := backoff.NewExponentialBackOff()
	if minRetryInterval > 0 {
		b.InitialInterval = minRetryInterval
		b.RandomizationFactor = 0
		if b.MaxInterval < minRetryInterval {
			b.MaxInterval = minRetryInterval
		}
	}
	b.MaxElapsedTime = 0 // the drain loop owns its own stop condition
	b.Reset()            // start the sequence from the configured InitialInterval
	return &Drainer{storage: storage, transmitter: transmitter, backoff: b, minInterval: minRetryInterval}
}

// SetObserver installs an Observer notified of each blob's disposition.
// Pass nil to remove it. Not safe to call concurrently with Drain.
func (d *Drainer) SetObserver(o Observer) {
	d.observer = o
}

// NextAttempt reports how long to wait before the next drain attempt after
// a whole-batch FAILED_RETRYABLE outcome; each call advances the backoff.
// Drain calls Reset when a pass ends without backpressure, which restarts
// the sequence at the initial interval.
func (d *Drainer) NextAttempt() time.Duration {
	return d.backoff.NextBackOff()
}

// Reset clears the accumulated backoff state after a successful drain.
func (d *Drainer) Reset() {
	d.backoff.Reset()
}

// Backpressured reports whether the most recent Drain pass stopped early on
// a whole-batch retryable outcome. Callers gate the next drain on
// NextAttempt when this is true.
func (d *Drainer) Backpressured() bool {
	return d.backpressured
}

func (d *Drainer) observe(outcome Outcome, batchSize, retried int) {
	if d.observer != nil {
		d.observer.ObserveOutcome(outcome, batchSize, retried)
	}
}

// Drain runs one pass of the drain loop: it pulls leased Blobs from storage
// and processes each per the disposition table until the scan is exhausted
// or a whole-batch FAILED_RETRYABLE outcome calls for backpressure.
//
// Drain is invoked synchronously from the exporter's ExportSpans and must
// not be called concurrently with itself on the same Drainer.
func (d *Drainer) Drain(ctx context.Context) error {
	d.backpressured = false
	it := d.storage.Gets()

	for {
		blob, err := it()
		if err != nil {
			return err
		}
		if blob == nil {
			d.Reset()
			return nil
		}

		items := blob.Get()
		if items == nil {
			// Read failed: delete Blob and continue (step 1).
			if err := blob.Delete(); err != nil {
				logger.Warn("transmit: drain: failed to delete unreadable blob", "path", blob.Path(), "error", err)
			}
			continue
		}

		result, err := d.transmitter.Transmit(ctx, items)
		if err != nil {
			logger.Warn("transmit: drain: transmit error", "path", blob.Path(), "error", err)
		}

		switch result.Outcome {
		case Success, FailedNotRetryable:
			d.observe(result.Outcome, len(items), 0)
			if err := blob.Delete(); err != nil {
				logger.Warn("transmit: drain: failed to delete blob", "path", blob.Path(), "error", err)
			}

		case FailedRetryable:
			if len(result.RetryIndices) > 0 && len(result.RetryIndices) < len(items) {
				// Partial retry: delete the original, write a new Blob
				// with only the retryable subset (bound Open Question
				// decision: new Blob with retry subset, delete original).
				subset := make([]*envelope.Envelope, 0, len(result.RetryIndices))
				for _, idx := range result.RetryIndices {
					subset = append(subset, items[idx])
				}
				d.observe(FailedRetryable, len(items), len(subset))
				if err := blob.Delete(); err != nil {
					logger.Warn("transmit: drain: failed to delete blob", "path", blob.Path(), "error", err)
				}
				if _, err := d.storage.Put(subset, 0); err != nil {
					logger.Warn("transmit: drain: failed to requeue retryable subset", "error", err)
				}
				continue
			}

			// Whole-batch retryable: release the lease (neutral
			// expiration) and stop the drain for backpressure.
			d.observe(FailedRetryable, len(items), len(items))
			if releaseErr := blob.Release(); releaseErr != nil && releaseErr != spool.ErrLeaseLost {
				logger.Warn("transmit: drain: failed to release blob", "path", blob.Path(), "error", releaseErr)
			}
			d.backpressured = true
			return nil
		}
	}
}
