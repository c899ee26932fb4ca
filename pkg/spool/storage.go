package spool

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/marmos91/aimonitor-exporter/internal/bytesize"
	"github.com/marmos91/aimonitor-exporter/internal/logger"
	"github.com/marmos91/aimonitor-exporter/internal/telemetry"
	"github.com/marmos91/aimonitor-exporter/pkg/envelope"
)

// defaultLeaseSeconds is the lease duration Storage.Get grants to a Blob it
// successfully leases on a caller's behalf, in the absence of an explicit
// lease_seconds argument (mirrors spec's "lease it before returning it").
const defaultLeaseSeconds = 60

// Config controls a Storage instance.
type Config struct {
	// Path is the directory Storage manages. It must already exist or be
	// creatable.
	Path string

	// MaxSize bounds the total size of committed Blobs; maintenance evicts
	// the oldest Blobs, newest-first spared, once this is exceeded.
	MaxSize bytesize.ByteSize

	// RetentionPeriod is how long a Blob may live before it becomes
	// eligible for eviction at maintenance, regardless of size.
	RetentionPeriod time.Duration

	// MaintenancePeriod is the interval between maintenance sweeps run by
	// the background worker started via StartMaintenance.
	MaintenancePeriod time.Duration
}

// ErrStorageFull is returned by Put when the committed Blobs still fill
// storage_max_size after maintenance has run.
var ErrStorageFull = fmt.Errorf("spool: storage full")

// Stats summarizes Storage's current state for observability.
type Stats struct {
	BlobCount  int
	TotalBytes int64
}

// Storage is a directory-backed queue of Blobs.
type Storage struct {
	cfg Config

	mu        sync.Mutex
	stopCh    chan struct{}
	stoppedCh chan struct{}
	started   bool
}

// New creates a Storage rooted at cfg.Path, creating the directory if it
// does not already exist.
func New(cfg Config) (*Storage, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("spool: storage path is required")
	}
	if err := os.MkdirAll(cfg.Path, 0700); err != nil {
		return nil, fmt.Errorf("spool: create storage dir: %w", err)
	}
	return &Storage{cfg: cfg}, nil
}

// Put creates one Blob containing items. If leaseSeconds > 0, the Blob is
// also leased before being returned. Put returns ErrStorageFull (with a nil
// Blob) if the Blobs already on disk still reach the size cap after
// maintenance runs (the new batch's own size is not counted); callers must
// treat the items as dropped in that case.
func (s *Storage) Put(items []*envelope.Envelope, leaseSeconds int) (*Blob, error) {
	if s.cfg.MaxSize > 0 {
		stats, err := s.Stats()
		if err == nil && uint64(stats.TotalBytes) >= s.cfg.MaxSize.Uint64() {
			s.runMaintenance()
			stats, err = s.Stats()
			if err == nil && uint64(stats.TotalBytes) >= s.cfg.MaxSize.Uint64() {
				return nil, ErrStorageFull
			}
		}
	}

	blob, err := writeBlob(s.cfg.Path, items)
	if err != nil {
		return nil, err
	}

	if leaseSeconds > 0 {
		if ok, err := blob.Lease(leaseSeconds); err != nil || !ok {
			if err != nil {
				return nil, err
			}
			return nil, ErrLeaseLost
		}
	}

	return blob, nil
}

// listCommitted returns the committed (non-tmp) blob filenames in
// lexical order, which approximates FIFO creation order.
func (s *Storage) listCommitted() ([]string, error) {
	entries, err := os.ReadDir(s.cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("spool: list storage dir: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if isCommittedName(e.Name()) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// Get scans the directory in lexical order and returns the first committed
// Blob with no lease or an expired lease that it can successfully lease. It
// returns nil if none is available.
func (s *Storage) Get() (*Blob, error) {
	it := s.Gets()
	return it()
}

// BlobIterator yields successfully-leased Blobs one at a time, or (nil,
// nil) once the scan is exhausted. The caller must finish processing each
// Blob (its lease is held) before requesting the next.
type BlobIterator func() (*Blob, error)

// Gets returns a lazy iterator over leasable Blobs in the directory.
func (s *Storage) Gets() BlobIterator {
	names, err := s.listCommitted()
	if err != nil {
		return func() (*Blob, error) { return nil, err }
	}
	idx := 0

	return func() (*Blob, error) {
		for idx < len(names) {
			name := names[idx]
			idx++

			b := &Blob{dir: s.cfg.Path, name: name}
			if !b.leaseExpired(time.Now()) {
				continue // live lease held by another reader
			}

			ok, err := b.Lease(defaultLeaseSeconds)
			if err != nil {
				logger.Warn("spool: lease attempt failed", "path", b.Path(), "error", err)
				continue
			}
			if !ok {
				continue // lost the race
			}
			return b, nil
		}
		return nil, nil
	}
}

// Stats reports the current committed Blob count and total size.
func (s *Storage) Stats() (Stats, error) {
	names, err := s.listCommitted()
	if err != nil {
		return Stats{}, err
	}

	var total int64
	for _, name := range names {
		info, err := os.Stat(filepath.Join(s.cfg.Path, name))
		if err != nil {
			continue
		}
		total += info.Size()
	}
	return Stats{BlobCount: len(names), TotalBytes: total}, nil
}

// runMaintenance performs one maintenance sweep: evict Blobs older than
// RetentionPeriod, then evict oldest-first while over MaxSize. Evicted
// Blobs with a live lease are skipped (eviction never deletes a Blob with
// a live lease).
func (s *Storage) runMaintenance() {
	_, span := telemetry.StartSpoolSpan(context.Background(), telemetry.SpanMaintenance,
		telemetry.StoragePath(s.cfg.Path))
	evicted := 0
	defer func() {
		span.SetAttributes(telemetry.Evicted(evicted))
		span.End()
	}()

	names, err := s.listCommitted()
	if err != nil {
		logger.Warn("spool: maintenance: list failed", "error", err)
		return
	}

	blobs := make([]*Blob, 0, len(names))
	for _, name := range names {
		blobs = append(blobs, &Blob{dir: s.cfg.Path, name: name})
	}
	sort.Slice(blobs, func(i, j int) bool { return blobs[i].Timestamp().Before(blobs[j].Timestamp()) })

	now := time.Now()
	var total int64
	kept := make([]*Blob, 0, len(blobs))

	for _, b := range blobs {
		if !b.leaseExpired(now) {
			if size, err := b.Size(); err == nil {
				total += size
			}
			kept = append(kept, b)
			continue
		}

		if s.cfg.RetentionPeriod > 0 && now.Sub(b.Timestamp()) > s.cfg.RetentionPeriod {
			if err := b.Delete(); err != nil {
				logger.Warn("spool: maintenance: evict by retention failed", "path", b.Path(), "error", err)
			} else {
				evicted++
				logger.Debug("spool: maintenance: evicted by retention", "path", b.Path())
			}
			continue
		}

		size, err := b.Size()
		if err != nil {
			continue
		}
		total += size
		kept = append(kept, b)
	}

	if s.cfg.MaxSize > 0 {
		limit := int64(s.cfg.MaxSize.Uint64())
		for _, b := range kept {
			if total <= limit {
				break
			}
			if !b.leaseExpired(now) {
				continue
			}
			size, err := b.Size()
			if err != nil {
				continue
			}
			if err := b.Delete(); err != nil {
				logger.Warn("spool: maintenance: evict by size failed", "path", b.Path(), "error", err)
				continue
			}
			total -= size
			evicted++
			logger.Debug("spool: maintenance: evicted by size cap", "path", b.Path())
		}
	}
}

// StartMaintenance starts the background maintenance sweep on a ticker with
// period cfg.MaintenancePeriod. It is safe to call once; a second call is a
// no-op.
func (s *Storage) StartMaintenance(ctx context.Context) {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.stopCh = make(chan struct{})
	s.stoppedCh = make(chan struct{})
	s.mu.Unlock()

	period := s.cfg.MaintenancePeriod
	if period <= 0 {
		period = time.Minute
	}

	go func() {
		defer close(s.stoppedCh)
		ticker := time.NewTicker(period)
		defer ticker.Stop()

		for {
			select {
			case <-s.stopCh:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.runMaintenance()
				// Cooperative shutdown: checked once per sweep, per spec.
				select {
				case <-s.stopCh:
					return
				default:
				}
			}
		}
	}()
}

// StopMaintenance signals the background sweep to stop and waits up to
// timeout for it to exit.
func (s *Storage) StopMaintenance(timeout time.Duration) {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	stopCh, stoppedCh := s.stopCh, s.stoppedCh
	s.mu.Unlock()

	close(stopCh)
	select {
	case <-stoppedCh:
	case <-time.After(timeout):
		logger.Warn("spool: maintenance stop timed out")
	}
}
