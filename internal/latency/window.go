// Package latency records per-request durations into a bounded window and
// derives percentile, histogram and SLO telemetry from it.
//
// The Window is a process-lifetime object owned by the service and shared
// by concurrent requests. All access goes through its mutex; summaries copy
// the samples under the lock and compute outside it.
package latency

import (
	"crypto/subtle"
	"errors"
	"math"
	"sync"
	"time"
)

// DefaultCapacity is the window size used when none is configured.
const DefaultCapacity = 500

var (
	// ErrResetTokenNotConfigured is returned by Reset when a token is
	// required but none was configured.
	ErrResetTokenNotConfigured = errors.New("metrics reset token not configured")

	// ErrResetTokenMismatch is returned by Reset for a wrong token.
	ErrResetTokenMismatch = errors.New("metrics reset token mismatch")
)

// Options configures a Window. Zero values fall back to defaults.
type Options struct {
	Capacity          int
	SLOP95            float64 // seconds; samples strictly above count as violations
	FlushEvery        int
	Buckets           []float64
	ResetToken        string
	RequireResetToken bool
	Persister         *Persister
	Now               func() time.Time
}

// State describes the window at one instant, for status output and the
// before/after audit of a reset.
type State struct {
	Count             int       `json:"count"`
	Capacity          int       `json:"window_capacity"`
	SLOP95            float64   `json:"slo_p95"`
	SLOViolationTotal int64     `json:"slo_violation_total"`
	AbandonedTotal    int64     `json:"abandoned_total"`
	RecordedTotal     int64     `json:"recorded_total"`
	LastReset         time.Time `json:"last_reset"`
	Summary           Summary   `json:"summary"`
}

// ResetReport is returned by Reset.
type ResetReport struct {
	Before State `json:"before"`
	After  State `json:"after"`
}

// Window is a fixed-capacity FIFO ring of latency samples in seconds.
type Window struct {
	mu         sync.Mutex
	buf        []float64
	next       int // slot for the next sample
	size       int
	violations int64
	abandoned  int64
	recorded   int64
	pending    int
	seq        uint64 // last snapshot sequence handed out
	lastReset  time.Time

	capacity     int
	slo          float64
	flushEvery   int
	bounds       []float64
	resetToken   string
	requireToken bool
	persister    *Persister
	now          func() time.Time
}

// NewWindow creates an empty window.
func NewWindow(opts Options) *Window {
	if opts.Capacity <= 0 {
		opts.Capacity = DefaultCapacity
	}
	if opts.FlushEvery <= 0 {
		opts.FlushEvery = 50
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Window{
		buf:          make([]float64, opts.Capacity),
		lastReset:    opts.Now().UTC(),
		capacity:     opts.Capacity,
		slo:          opts.SLOP95,
		flushEvery:   opts.FlushEvery,
		bounds:       normalizeBounds(opts.Buckets),
		resetToken:   opts.ResetToken,
		requireToken: opts.RequireResetToken,
		persister:    opts.Persister,
		now:          opts.Now,
	}
}

// Capacity returns the configured window size.
func (w *Window) Capacity() int { return w.capacity }

// Persister returns the attached persister, possibly nil.
func (w *Window) Persister() *Persister { return w.persister }

// Record appends a request duration.
func (w *Window) Record(d time.Duration) {
	w.RecordSeconds(d.Seconds())
}

// RecordSeconds appends a duration in seconds. Negative and NaN values are
// dropped. Every FlushEvery samples the window is persisted on the calling
// goroutine, outside the window lock.
func (w *Window) RecordSeconds(v float64) {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return
	}

	w.mu.Lock()
	w.buf[w.next] = v
	w.next = (w.next + 1) % w.capacity
	if w.size < w.capacity {
		w.size++
	}
	w.recorded++
	if w.slo > 0 && v > w.slo {
		w.violations++
	}
	w.pending++

	var snap Snapshot
	flush := w.persister != nil && w.pending%w.flushEvery == 0
	if flush {
		w.pending = 0
		snap = w.snapshotLocked()
	}
	w.mu.Unlock()

	if flush {
		w.persister.Save(snap)
	}
}

// RecordAbandoned counts a request whose scan was abandoned by the caller.
// No latency sample is recorded for it.
func (w *Window) RecordAbandoned() {
	w.mu.Lock()
	w.abandoned++
	w.mu.Unlock()
}

// Values returns the samples oldest first.
func (w *Window) Values() []float64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.valuesLocked()
}

func (w *Window) valuesLocked() []float64 {
	out := make([]float64, w.size)
	start := (w.next - w.size + w.capacity) % w.capacity
	for i := 0; i < w.size; i++ {
		out[i] = w.buf[(start+i)%w.capacity]
	}
	return out
}

// Summarize computes percentiles, average and histogram over a copy of
// the current samples.
func (w *Window) Summarize() Summary {
	return Summarize(w.Values(), w.bounds)
}

// State returns counters plus the current summary.
func (w *Window) State() State {
	w.mu.Lock()
	values := w.valuesLocked()
	st := State{
		Count:             w.size,
		Capacity:          w.capacity,
		SLOP95:            w.slo,
		SLOViolationTotal: w.violations,
		AbandonedTotal:    w.abandoned,
		RecordedTotal:     w.recorded,
		LastReset:         w.lastReset,
	}
	w.mu.Unlock()

	st.Summary = Summarize(values, w.bounds)
	return st
}

// Snapshot returns the persistable form of the window.
func (w *Window) Snapshot() Snapshot {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.snapshotLocked()
}

func (w *Window) snapshotLocked() Snapshot {
	w.seq++
	return Snapshot{
		Seq:               w.seq,
		Latencies:         w.valuesLocked(),
		SLOViolationTotal: w.violations,
		LastReset:         w.lastReset,
		WindowCapacity:    w.capacity,
	}
}

// Restore replaces the window contents with a loaded snapshot. The
// configured capacity wins; only the newest samples that fit are kept.
func (w *Window) Restore(snap Snapshot) {
	w.mu.Lock()
	defer w.mu.Unlock()

	values := snap.Latencies
	if len(values) > w.capacity {
		values = values[len(values)-w.capacity:]
	}
	for i := range w.buf {
		w.buf[i] = 0
	}
	copy(w.buf, values)
	w.size = len(values)
	w.next = w.size % w.capacity
	w.violations = snap.SLOViolationTotal
	if !snap.LastReset.IsZero() {
		w.lastReset = snap.LastReset
	}
	w.pending = 0
}

// Flush persists the window. Without force it only writes when samples
// were recorded since the last write.
func (w *Window) Flush(force bool) {
	if w.persister == nil {
		return
	}
	w.mu.Lock()
	if !force && w.pending == 0 {
		w.mu.Unlock()
		return
	}
	w.pending = 0
	snap := w.snapshotLocked()
	w.mu.Unlock()

	w.persister.Save(snap)
}

// Reset clears samples and counters, keeping the capacity, and forces a
// flush. When a reset token is configured the caller must present it.
func (w *Window) Reset(token string) (ResetReport, error) {
	if err := w.authorizeReset(token); err != nil {
		return ResetReport{}, err
	}

	before := w.State()

	w.mu.Lock()
	for i := range w.buf {
		w.buf[i] = 0
	}
	w.next, w.size = 0, 0
	w.violations, w.abandoned, w.recorded, w.pending = 0, 0, 0, 0
	w.lastReset = w.now().UTC()
	w.mu.Unlock()

	w.Flush(true)

	return ResetReport{Before: before, After: w.State()}, nil
}

func (w *Window) authorizeReset(token string) error {
	if w.resetToken == "" {
		if w.requireToken {
			return ErrResetTokenNotConfigured
		}
		return nil
	}
	if subtle.ConstantTimeCompare([]byte(token), []byte(w.resetToken)) != 1 {
		return ErrResetTokenMismatch
	}
	return nil
}
