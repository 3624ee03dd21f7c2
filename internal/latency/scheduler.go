package latency

// scheduler.go runs the background flusher.
//
// Besides the every-N flush on the request path, the window is persisted on
// a fixed interval so a quiet process still writes its latest samples, and
// once more on shutdown. Failures are logged by the persister; the scheduler
// never stops because of them.

import (
	"context"
	"log/slog"
	"time"
)

// StartFlushScheduler flushes the window every interval until ctx is
// cancelled, then performs a final forced flush. It blocks; run it in a
// goroutine.
func (w *Window) StartFlushScheduler(ctx context.Context, interval time.Duration) {
	if w.persister == nil || interval <= 0 {
		return
	}

	slog.Info("latency flush scheduler started",
		"path", w.persister.Path(),
		"interval", interval.String(),
	)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.Flush(true)
			slog.Info("latency flush scheduler stopped", "writes", w.persister.Writes(), "errors", w.persister.Failures())
			return
		case <-ticker.C:
			start := time.Now()
			w.Flush(false)
			slog.Debug("latency flush tick", "duration_ms", time.Since(start).Milliseconds())
		}
	}
}
