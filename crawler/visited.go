package crawler

import (
	"errors"
	"fmt"
	"os"
	"sync"

	bloom "github.com/bits-and-blooms/bloom/v3"
	"github.com/edsrzf/mmap-go"
)

const (
	// DefaultBloomCapacity is the number of URLs the bloom store is sized for.
	DefaultBloomCapacity = 100_000

	// DefaultBloomFalsePositive is the target false positive rate. A false
	// positive skips a URL; it never causes a second fetch.
	DefaultBloomFalsePositive = 0.001
)

// VisitedTracker is a Seen backed by a bloom filter mirrored into a
// memory-mapped temp file. Memory stays flat however large the mirror grows.
type VisitedTracker struct {
	mu        sync.Mutex
	filter    *bloom.BloomFilter
	file      *os.File
	mmap      mmap.MMap
	tmpPath   string
	count     uint64 // URLs added since last sync
	syncEvery uint64 // Sync to disk every N URLs
	lastErr   error  // Last error from sync operations
}

// NewVisitedTracker creates a bloom visited store sized for capacity URLs at
// the given false positive rate. Zero values select the defaults.
func NewVisitedTracker(capacity uint, fpRate float64) (*VisitedTracker, error) {
	if capacity == 0 {
		capacity = DefaultBloomCapacity
	}
	if fpRate <= 0 || fpRate >= 1 {
		fpRate = DefaultBloomFalsePositive
	}
	filter := bloom.NewWithEstimates(capacity, fpRate)

	data, err := filter.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("marshal bloom filter: %w", err)
	}

	tmpFile, err := os.CreateTemp("", "linksync-visited-*.bloom")
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	cleanup := func() {
		_ = tmpFile.Close()
		_ = os.Remove(tmpPath)
	}

	if err := tmpFile.Truncate(int64(len(data))); err != nil {
		cleanup()
		return nil, fmt.Errorf("truncate temp file: %w", err)
	}

	mapped, err := mmap.MapRegion(tmpFile, len(data), mmap.RDWR, 0, 0)
	if err != nil {
		cleanup()
		return nil, fmt.Errorf("mmap temp file: %w", err)
	}
	copy(mapped, data)

	return &VisitedTracker{
		filter:    filter,
		file:      tmpFile,
		mmap:      mapped,
		tmpPath:   tmpPath,
		syncEvery: 1000,
	}, nil
}

// IsVisited checks if a URL has been visited.
func (v *VisitedTracker) IsVisited(url string) bool {
	v.mu.Lock()
	defer v.mu.Unlock()

	return v.filter.TestString(url)
}

// VisitIfNew atomically checks if a URL is visited and marks it if not.
// Returns true if the URL was new (not previously visited), false if already visited.
func (v *VisitedTracker) VisitIfNew(url string) bool {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.filter.TestOrAddString(url) {
		return false
	}

	v.count++
	if v.count >= v.syncEvery {
		if err := v.syncLocked(); err != nil {
			v.lastErr = err
		}
	}
	return true
}

// syncLocked persists the bloom filter to disk. Must be called with mu held.
func (v *VisitedTracker) syncLocked() error {
	data, err := v.filter.MarshalBinary()
	if err != nil {
		return fmt.Errorf("marshal bloom filter: %w", err)
	}

	copy(v.mmap, data)

	if flushErr := v.mmap.Flush(); flushErr != nil {
		return fmt.Errorf("flush mmap: %w", flushErr)
	}
	v.count = 0
	return nil
}

// Close syncs any pending data and removes the backing file.
func (v *VisitedTracker) Close() error {
	v.mu.Lock()
	defer v.mu.Unlock()

	var errs []error

	if v.lastErr != nil {
		errs = append(errs, v.lastErr)
	}

	if v.mmap != nil {
		if v.count > 0 {
			if syncErr := v.syncLocked(); syncErr != nil {
				errs = append(errs, syncErr)
			}
		}
		if err := v.mmap.Unmap(); err != nil {
			errs = append(errs, fmt.Errorf("unmap: %w", err))
		}
		v.mmap = nil
	}

	if v.file != nil {
		if err := v.file.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close file: %w", err))
		}
		v.file = nil
	}

	if v.tmpPath != "" {
		if err := os.Remove(v.tmpPath); err != nil && !os.IsNotExist(err) {
			errs = append(errs, fmt.Errorf("remove temp file: %w", err))
		}
		v.tmpPath = ""
	}

	if len(errs) > 0 {
		return fmt.Errorf("close visited tracker: %w", errors.Join(errs...))
	}
	return nil
}

// LastError returns the last error encountered during periodic syncs.
func (v *VisitedTracker) LastError() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.lastErr
}

// newSeen builds the visited store named by kind.
func newSeen(kind string) (Seen, error) {
	switch kind {
	case "", VisitedMemory:
		return memorySeen{}, nil
	case VisitedBloom:
		return NewVisitedTracker(0, 0)
	default:
		return nil, fmt.Errorf("unknown visited store %q", kind)
	}
}
