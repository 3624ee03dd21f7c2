package core

// scan_limiter.go bounds the number of matching scans running at once.
//
// Each suggestion fans out one query per candidate source, so unbounded
// request concurrency multiplies into database connections. When all slots
// are occupied, new requests wait up to maxWait before failing with
// ErrTooManyScans. WaitForDrain lets shutdown wait for in-flight scans.

import (
	"context"
	"errors"
	"sync/atomic"
	"time"
)

// ErrTooManyScans is returned when all scan slots are occupied and the
// wait timeout expires. Clients should retry after a short delay.
var ErrTooManyScans = errors.New("too many concurrent matching scans, please try again later")

// Defaults for the scan limiter.
const (
	DefaultMaxConcurrentScans = 16
	DefaultMaxScanWait        = 2 * time.Second
)

// ScanLimiter is a semaphore over matching scans.
type ScanLimiter struct {
	semaphore chan struct{}
	maxWait   time.Duration

	active   atomic.Int64
	rejected atomic.Int64
}

// NewScanLimiter creates a limiter that allows at most maxConcurrent scans.
func NewScanLimiter(maxConcurrent int, maxWait time.Duration) *ScanLimiter {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrentScans
	}
	if maxWait <= 0 {
		maxWait = DefaultMaxScanWait
	}
	return &ScanLimiter{
		semaphore: make(chan struct{}, maxConcurrent),
		maxWait:   maxWait,
	}
}

// Acquire waits for a slot. The caller MUST call Release when done.
func (l *ScanLimiter) Acquire(ctx context.Context) error {
	timer := time.NewTimer(l.maxWait)
	defer timer.Stop()

	select {
	case l.semaphore <- struct{}{}:
		l.active.Add(1)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		l.rejected.Add(1)
		return ErrTooManyScans
	}
}

// Release frees a slot taken by Acquire.
func (l *ScanLimiter) Release() {
	l.active.Add(-1)
	<-l.semaphore
}

// WaitForDrain blocks until no scans are active or ctx is done.
func (l *ScanLimiter) WaitForDrain(ctx context.Context) error {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		if l.active.Load() == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// ScanLimiterStatus is a snapshot of the limiter.
type ScanLimiterStatus struct {
	Active        int   `json:"active"`
	Available     int   `json:"available"`
	MaxConcurrent int   `json:"max_concurrent"`
	Rejected      int64 `json:"rejected_total"`
}

// Status returns the current limiter state.
func (l *ScanLimiter) Status() ScanLimiterStatus {
	return ScanLimiterStatus{
		Active:        int(l.active.Load()),
		Available:     cap(l.semaphore) - len(l.semaphore),
		MaxConcurrent: cap(l.semaphore),
		Rejected:      l.rejected.Load(),
	}
}
