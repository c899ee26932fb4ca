// Package spool implements the durable, directory-backed spooling layer:
// Blob is a single on-disk batch of envelopes guarded by a filename-embedded
// lease; Storage is the directory-backed queue of Blobs.
package spool

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/marmos91/aimonitor-exporter/internal/logger"
	"github.com/marmos91/aimonitor-exporter/pkg/bufpool"
	"github.com/marmos91/aimonitor-exporter/pkg/envelope"
)

// Sentinel errors returned by this package.
var (
	// ErrLeaseLost is returned when a lease rename loses the race to
	// another reader or the file was deleted out from under us.
	ErrLeaseLost = errors.New("spool: lease lost")

	// ErrNotCommitted is returned when an operation expects a committed
	// Blob but finds a temporary or otherwise unrecognized file name.
	ErrNotCommitted = errors.New("spool: blob is not committed")
)

const (
	committedSuffix = ".blob"
	tmpSuffix       = ".blob.tmp"
	leasedPrefix    = ".blob.leased-"
)

// Blob is a single on-disk unit of work: a batch of envelopes plus a
// visibility lease, identified by its current filename within dir.
type Blob struct {
	dir  string
	name string // current filename, reflects current lease state
}

// newBlobPrefix returns a filename prefix whose lexical order approximates
// FIFO creation order: a 20-digit zero-padded nanosecond timestamp plus an
// 8-hex-character uniqueness suffix from a random UUID.
func newBlobPrefix(now time.Time) string {
	suffix := strings.ReplaceAll(uuid.New().String(), "-", "")[:8]
	return fmt.Sprintf("%020d-%s", now.UnixNano(), suffix)
}

// writeBlob serializes items to a temporary file in dir, then atomically
// renames it to its committed name. If the committed name collides, a
// fresh uniqueness suffix is drawn and the rename retried.
func writeBlob(dir string, items []*envelope.Envelope) (*Blob, error) {
	payload, err := envelope.Marshal(items)
	if err != nil {
		return nil, err
	}

	for attempt := 0; attempt < 5; attempt++ {
		prefix := newBlobPrefix(time.Now())
		tmpName := prefix + tmpSuffix
		tmpPath := filepath.Join(dir, tmpName)

		if err := writeFileBuffered(tmpPath, payload); err != nil {
			return nil, fmt.Errorf("spool: write temp blob: %w", err)
		}

		committedName := prefix + committedSuffix
		committedPath := filepath.Join(dir, committedName)

		if _, err := os.Stat(committedPath); err == nil {
			// Name collision (vanishingly unlikely given the nanosecond
			// prefix + random suffix); retry with a fresh name.
			_ = os.Remove(tmpPath)
			continue
		}

		if err := os.Rename(tmpPath, committedPath); err != nil {
			_ = os.Remove(tmpPath)
			return nil, fmt.Errorf("spool: commit blob: %w", err)
		}

		return &Blob{dir: dir, name: committedName}, nil
	}

	return nil, fmt.Errorf("spool: could not allocate unique blob name after retries")
}

func writeFileBuffered(path string, payload []byte) error {
	buf := bufpool.Get(len(payload))
	defer bufpool.Put(buf)
	copy(buf, payload)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0600)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := f.Write(buf[:len(payload)]); err != nil {
		return err
	}
	return f.Sync()
}

// Path returns the Blob's current absolute filesystem path.
func (b *Blob) Path() string {
	return filepath.Join(b.dir, b.name)
}

// Name returns the Blob's current filename.
func (b *Blob) Name() string {
	return b.name
}

// Timestamp returns the creation-ordering timestamp encoded in the Blob's
// filename prefix, used by maintenance to evict oldest-first.
func (b *Blob) Timestamp() time.Time {
	nanos, _ := parsePrefixNanos(b.name)
	return time.Unix(0, nanos)
}

// leaseExpiry returns the lease expiration embedded in the current
// filename, or the zero time if the Blob is not currently leased.
func (b *Blob) leaseExpiry() (time.Time, bool) {
	idx := strings.Index(b.name, leasedPrefix)
	if idx < 0 {
		return time.Time{}, false
	}
	expStr := b.name[idx+len(leasedPrefix):]
	expSeconds, err := strconv.ParseInt(expStr, 10, 64)
	if err != nil {
		return time.Time{}, false
	}
	return time.Unix(expSeconds, 0), true
}

// leaseExpired reports whether the Blob carries no lease, or a lease whose
// embedded expiration is in the past.
func (b *Blob) leaseExpired(now time.Time) bool {
	exp, leased := b.leaseExpiry()
	if !leased {
		return true
	}
	return exp.Before(now)
}

func parsePrefixNanos(name string) (int64, error) {
	idx := strings.Index(name, "-")
	if idx < 0 {
		return 0, fmt.Errorf("spool: malformed blob name %q", name)
	}
	return strconv.ParseInt(name[:idx], 10, 64)
}

// basePrefix returns the filename with any committed/leased/tmp suffix
// stripped, i.e. just "<nanos>-<suffix>".
func basePrefix(name string) string {
	if idx := strings.Index(name, leasedPrefix); idx >= 0 {
		return name[:idx]
	}
	return strings.TrimSuffix(strings.TrimSuffix(name, tmpSuffix), committedSuffix)
}

// Lease atomically renames the Blob's file to embed a new expiration at
// least now+seconds in the future. It returns true iff the rename
// succeeded and the file still belongs to this handle; it returns false
// (not an error) if a competing reader renamed or deleted the file first.
func (b *Blob) Lease(seconds int) (bool, error) {
	expAt := time.Now().Add(time.Duration(seconds) * time.Second)
	exp := expAt.Unix()
	if expAt.Nanosecond() > 0 {
		exp++ // round up so the whole-second expiry is never before now+seconds
	}
	newName := basePrefix(b.name) + leasedPrefix + strconv.FormatInt(exp, 10)
	oldPath := filepath.Join(b.dir, b.name)
	newPath := filepath.Join(b.dir, newName)

	if err := os.Rename(oldPath, newPath); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("spool: lease rename: %w", err)
	}

	b.name = newName
	return true, nil
}

// Release renames the Blob back to its unleased, committed name (bumping
// the lease to a neutral/expired state) without deleting it. Used by the
// drain loop on a whole-batch FAILED_RETRYABLE outcome so the Blob becomes
// eligible for a future lease attempt.
func (b *Blob) Release() error {
	newName := basePrefix(b.name) + committedSuffix
	oldPath := filepath.Join(b.dir, b.name)
	newPath := filepath.Join(b.dir, newName)

	if oldPath == newPath {
		return nil
	}

	if err := os.Rename(oldPath, newPath); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return ErrLeaseLost
		}
		return fmt.Errorf("spool: release rename: %w", err)
	}
	b.name = newName
	return nil
}

// Get reads and deserializes the Blob's payload. It returns nil on any I/O
// or decode error; per spec, the caller treats a nil result as an empty
// batch rather than propagating the error.
func (b *Blob) Get() []*envelope.Envelope {
	data, err := os.ReadFile(b.Path())
	if err != nil {
		logger.Warn("spool: failed to read blob", "path", b.Path(), "error", err)
		return nil
	}

	items, err := envelope.Unmarshal(data)
	if err != nil {
		logger.Warn("spool: failed to decode blob", "path", b.Path(), "error", err)
		return nil
	}
	return items
}

// Size returns the Blob's current on-disk size in bytes.
func (b *Blob) Size() (int64, error) {
	info, err := os.Stat(b.Path())
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

// Delete removes the Blob's underlying file. It is idempotent: deleting an
// already-absent file is not an error.
func (b *Blob) Delete() error {
	if err := os.Remove(b.Path()); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("spool: delete blob: %w", err)
	}
	return nil
}

// isCommittedName reports whether name is a committed Blob filename
// (leased or not), as opposed to an in-flight temporary write.
func isCommittedName(name string) bool {
	return strings.HasSuffix(name, committedSuffix) || strings.Contains(name, leasedPrefix)
}
