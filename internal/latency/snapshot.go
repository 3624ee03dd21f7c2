package latency

// snapshot.go persists the latency window to disk.
//
// Snapshots are JSON, written to a temp file in the target directory and
// renamed into place so a crash mid-write never leaves a torn file. When the
// encoded payload exceeds the compression threshold (or compression is
// forced) the payload is gzipped and written to path+".gz" instead, and the
// stale sibling is removed. Write failures are counted and logged; they are
// never returned to the recording request.

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/klauspost/compress/gzip"
)

// GzipSuffix is appended to the configured path for compressed snapshots.
const GzipSuffix = ".gz"

// Snapshot is the on-disk form of the window.
type Snapshot struct {
	Latencies         []float64 `json:"latencies"`
	SLOViolationTotal int64     `json:"slo_violation_total"`
	LastReset         time.Time `json:"last_reset"`
	WindowCapacity    int       `json:"window_capacity"`

	// Seq orders snapshots taken from one window. Zero is unordered.
	Seq uint64 `json:"-"`
}

// errStaleSnapshot reports a snapshot older than the last one written.
var errStaleSnapshot = errors.New("snapshot older than last write")

// Persister writes and loads snapshots. A nil *Persister is valid and does
// nothing, which is how persistence is disabled.
type Persister struct {
	path          string
	threshold     int
	forceCompress bool

	mu      sync.Mutex // one write in flight
	lastSeq uint64

	writes    atomic.Int64
	failures  atomic.Int64
	lastBytes atomic.Int64
}

// NewPersister returns a persister for path. threshold is the encoded size
// in bytes above which snapshots are compressed; 0 disables size-based
// compression. Returns nil when path is empty.
func NewPersister(path string, threshold int, forceCompress bool) *Persister {
	if path == "" {
		return nil
	}
	return &Persister{
		path:          path,
		threshold:     threshold,
		forceCompress: forceCompress,
	}
}

// Path returns the configured uncompressed snapshot path.
func (p *Persister) Path() string {
	if p == nil {
		return ""
	}
	return p.path
}

// Save writes snap. Errors are counted and logged, never returned.
func (p *Persister) Save(snap Snapshot) {
	if p == nil {
		return
	}
	err := p.write(snap)
	if errors.Is(err, errStaleSnapshot) {
		slog.Debug("skipped stale latency snapshot", "seq", snap.Seq)
		return
	}
	if err != nil {
		p.failures.Add(1)
		slog.Error("latency snapshot write failed", "path", p.path, "error", err)
		return
	}
	p.writes.Add(1)
}

// Failures returns the number of failed writes since process start.
func (p *Persister) Failures() int64 {
	if p == nil {
		return 0
	}
	return p.failures.Load()
}

// Writes returns the number of successful writes since process start.
func (p *Persister) Writes() int64 {
	if p == nil {
		return 0
	}
	return p.writes.Load()
}

// LastBytes returns the size of the last payload written.
func (p *Persister) LastBytes() int64 {
	if p == nil {
		return 0
	}
	return p.lastBytes.Load()
}

func (p *Persister) write(snap Snapshot) error {
	if snap.Latencies == nil {
		snap.Latencies = []float64{}
	}
	raw, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if snap.Seq != 0 && snap.Seq <= p.lastSeq {
		return errStaleSnapshot
	}

	target, stale := p.path, p.path+GzipSuffix
	payload := raw
	if p.forceCompress || (p.threshold > 0 && len(raw) > p.threshold) {
		var buf bytes.Buffer
		zw := gzip.NewWriter(&buf)
		if _, err := zw.Write(raw); err != nil {
			return fmt.Errorf("compress snapshot: %w", err)
		}
		if err := zw.Close(); err != nil {
			return fmt.Errorf("compress snapshot: %w", err)
		}
		payload = buf.Bytes()
		target, stale = stale, target
	}

	if err := writeFileAtomic(target, payload); err != nil {
		return err
	}
	p.lastBytes.Store(int64(len(payload)))
	if snap.Seq != 0 {
		p.lastSeq = snap.Seq
	}

	if err := os.Remove(stale); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("could not remove stale latency snapshot", "path", stale, "error", err)
	}
	return nil
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create snapshot dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp snapshot: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("write temp snapshot: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("sync temp snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("close temp snapshot: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return fmt.Errorf("rename snapshot: %w", err)
	}
	return nil
}

// Load reads the most recently written snapshot (plain or gzipped).
// A missing, empty or corrupt file yields ok=false; problems are logged,
// never returned.
func (p *Persister) Load() (Snapshot, bool) {
	if p == nil {
		return Snapshot{}, false
	}

	for _, path := range p.candidates() {
		snap, err := readSnapshot(path)
		if err != nil {
			slog.Warn("ignoring unreadable latency snapshot", "path", path, "error", err)
			continue
		}
		if snap == nil {
			continue
		}
		return *snap, true
	}
	return Snapshot{}, false
}

// candidates lists existing snapshot files, newest first.
func (p *Persister) candidates() []string {
	type found struct {
		path string
		mod  time.Time
	}
	var files []found
	for _, path := range []string{p.path, p.path + GzipSuffix} {
		info, err := os.Stat(path)
		if err != nil {
			continue
		}
		files = append(files, found{path, info.ModTime()})
	}
	if len(files) == 2 && files[1].mod.After(files[0].mod) {
		files[0], files[1] = files[1], files[0]
	}

	out := make([]string, len(files))
	for i, f := range files {
		out[i] = f.path
	}
	return out
}

// readSnapshot returns nil, nil for an empty file.
func readSnapshot(path string) (*Snapshot, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var r io.Reader = f
	if filepath.Ext(path) == GzipSuffix {
		info, err := f.Stat()
		if err != nil {
			return nil, err
		}
		if info.Size() == 0 {
			return nil, nil
		}
		zr, err := gzip.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("open gzip: %w", err)
		}
		defer zr.Close()
		r = zr
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return &snap, nil
}
