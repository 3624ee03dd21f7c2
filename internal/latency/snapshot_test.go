package latency

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleSnapshot() Snapshot {
	return Snapshot{
		Latencies:         []float64{0.01, 0.02, 0.5},
		SLOViolationTotal: 1,
		LastReset:         time.Date(2026, 5, 4, 3, 2, 1, 0, time.UTC),
		WindowCapacity:    500,
	}
}

func TestPersister_RoundTripPlain(t *testing.T) {
	path := filepath.Join(t.TempDir(), "latency.json")
	p := NewPersister(path, 1<<20, false)

	p.Save(sampleSnapshot())
	require.Equal(t, int64(1), p.Writes())

	_, err := os.Stat(path)
	require.NoError(t, err)
	_, err = os.Stat(path + GzipSuffix)
	assert.True(t, os.IsNotExist(err))

	got, ok := p.Load()
	require.True(t, ok)
	assert.Equal(t, sampleSnapshot(), got)
}

func TestPersister_ForcedCompressionBelowThreshold(t *testing.T) {
	path := filepath.Join(t.TempDir(), "latency.json")
	p := NewPersister(path, 1<<20, true)

	p.Save(sampleSnapshot())

	raw, err := os.ReadFile(path + GzipSuffix)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(raw), 2)
	assert.Equal(t, []byte{0x1f, 0x8b}, raw[:2], "gzip magic")

	got, ok := p.Load()
	require.True(t, ok)
	assert.Len(t, got.Latencies, 3)
	assert.Equal(t, int64(1), got.SLOViolationTotal)
	assert.Equal(t, 500, got.WindowCapacity)
}

func TestPersister_ThresholdCompressionReplacesPlainFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "latency.json")

	NewPersister(path, 1<<20, false).Save(sampleSnapshot())
	NewPersister(path, 10, false).Save(sampleSnapshot())

	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err), "stale plain snapshot removed")
	_, err = os.Stat(path + GzipSuffix)
	assert.NoError(t, err)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")
}

func TestPersister_LoadToleratesBadFiles(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
	}{
		{"missing", "", ""},
		{"empty", "latency.json", ""},
		{"corrupt json", "latency.json", "{not json"},
		{"corrupt gzip", "latency.json.gz", "definitely not gzip"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			if tt.file != "" {
				require.NoError(t, os.WriteFile(filepath.Join(dir, tt.file), []byte(tt.content), 0o644))
			}
			p := NewPersister(filepath.Join(dir, "latency.json"), 0, false)

			snap, ok := p.Load()
			assert.False(t, ok)
			assert.Empty(t, snap.Latencies)
		})
	}
}

func TestPersister_WriteFailureIsCounted(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "not-a-dir")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))

	p := NewPersister(filepath.Join(blocker, "latency.json"), 0, false)
	w := NewWindow(Options{Capacity: 4, FlushEvery: 1, Persister: p})

	assert.NotPanics(t, func() { w.RecordSeconds(0.1) })
	assert.Equal(t, int64(1), p.Failures())
	assert.Equal(t, []float64{0.1}, w.Values(), "in-memory window stays authoritative")
}

func TestPersister_NilIsNoop(t *testing.T) {
	var p *Persister
	assert.Nil(t, NewPersister("", 0, false))
	p.Save(sampleSnapshot())
	_, ok := p.Load()
	assert.False(t, ok)
	assert.Equal(t, int64(0), p.Failures())
}

func TestWindow_SnapshotRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "latency.json")
	p := NewPersister(path, 0, false)

	w := NewWindow(Options{Capacity: 8, SLOP95: 0.2, FlushEvery: 100, Persister: p})
	for _, v := range []float64{0.1, 0.3, 0.05, 0.4} {
		w.RecordSeconds(v)
	}
	w.Flush(true)

	restored := NewWindow(Options{Capacity: 8, SLOP95: 0.2, Persister: p})
	snap, ok := p.Load()
	require.True(t, ok)
	restored.Restore(snap)

	assert.Equal(t, w.Values(), restored.Values())
	assert.Equal(t, w.State().SLOViolationTotal, restored.State().SLOViolationTotal)
	assert.Equal(t, int64(2), restored.State().SLOViolationTotal)
}

func TestPersister_SkipsOlderSequence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "latency.json")
	p := NewPersister(path, 0, false)

	newer := sampleSnapshot()
	newer.Seq = 2
	older := sampleSnapshot()
	older.Seq = 1
	older.Latencies = []float64{9}

	p.Save(newer)
	p.Save(older)

	assert.Equal(t, int64(1), p.Writes())
	assert.Equal(t, int64(0), p.Failures())
	got, ok := p.Load()
	require.True(t, ok)
	assert.Equal(t, newer.Latencies, got.Latencies)
}

func TestWindow_SnapshotTakenBeforeResetIsNotRestored(t *testing.T) {
	path := filepath.Join(t.TempDir(), "latency.json")
	p := NewPersister(path, 0, false)

	w := NewWindow(Options{Capacity: 8, FlushEvery: 100, Persister: p})
	w.RecordSeconds(0.1)
	w.RecordSeconds(0.2)
	beforeReset := w.Snapshot()

	_, err := w.Reset("")
	require.NoError(t, err)

	// A flush that raced with Reset lands after it.
	p.Save(beforeReset)

	got, ok := p.Load()
	require.True(t, ok)
	assert.Empty(t, got.Latencies)
}
