// Package eventlog emits schema-versioned JSON audit events for matching
// and confirmation requests.
//
// Emission is best-effort: Emit has no return value and every failure is
// recorded in counters. Sampling and redaction settings live in an
// immutable Config published through an atomic pointer, so runtime
// overrides never block the request path.
package eventlog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/JonMunkholm/reconcile/internal/logging"
	"github.com/google/uuid"
)

// EventEmitError is the name of the fallback event.
const EventEmitError = "log_emit_error"

// TimestampLayout is RFC3339 with millisecond precision.
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

// Stats are the pipeline counters.
type Stats struct {
	Emitted          int64   `json:"emitted_total"`
	SampledOut       int64   `json:"sampled_out_total"`
	RedactedFields   int64   `json:"redacted_fields_total"`
	EmitFailures     int64   `json:"emit_failures_total"`
	SinkErrors       int64   `json:"sink_errors_total"`
	Dropped          int64   `json:"dropped_total"`
	QueueLength      int     `json:"queue_length"`
	QueueCapacity    int     `json:"queue_capacity"`
	QueueUtilization float64 `json:"queue_utilization"`
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithRand sets the sampling source. Used by tests for a fixed seed.
func WithRand(r *rand.Rand) Option {
	return func(p *Pipeline) { p.rng = r }
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// Pipeline samples, redacts, encodes and delivers events.
type Pipeline struct {
	cfg     atomic.Pointer[Config]
	writeMu sync.Mutex // serializes config publishers

	sink  Sink
	queue chan []byte

	rngMu sync.Mutex
	rng   *rand.Rand
	now   func() time.Time

	emitted    atomic.Int64
	sampledOut atomic.Int64
	redacted   atomic.Int64
	failures   atomic.Int64
	sinkErrors atomic.Int64
	dropped    atomic.Int64
}

// New creates a pipeline delivering to sink. The async queue is sized from
// cfg.QueueSize and drained by Run.
func New(cfg Config, sink Sink, opts ...Option) *Pipeline {
	c := cfg.normalized()
	p := &Pipeline{
		sink:  sink,
		queue: make(chan []byte, c.QueueSize),
		rng:   rand.New(rand.NewSource(time.Now().UnixNano())),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.cfg.Store(c)
	return p
}

// Emit records event name with fields. It never fails the caller: sampling
// decisions, encoding failures, sink errors and queue overflow are only
// reflected in Stats.
func (p *Pipeline) Emit(ctx context.Context, name string, fields map[string]any) {
	if p == nil {
		return
	}
	_ = p.emit(ctx, name, fields)
}

// emit returns the outcome for tests; callers go through Emit.
func (p *Pipeline) emit(ctx context.Context, name string, fields map[string]any) error {
	cfg := p.cfg.Load()
	if !p.sample(cfg.rate(name)) {
		p.sampledOut.Add(1)
		return nil
	}

	requestID := resolveRequestID(ctx, fields)
	ts := p.now().UTC().Format(TimestampLayout)

	event := make(map[string]any, len(fields)+5)
	removed := 0
	for k, v := range fields {
		if _, core := coreFields[k]; core {
			continue
		}
		if _, drop := cfg.redact[k]; drop {
			removed++
			continue
		}
		event[k] = v
	}
	if removed > 0 {
		event[FieldRedactionCount] = removed
		p.redacted.Add(int64(removed))
	}
	event[FieldEvent] = name
	event[FieldRequestID] = requestID
	event[FieldTimestamp] = ts
	event[FieldSchemaVersion] = cfg.SchemaVersion

	line, err := encode(event)
	if err != nil {
		p.fallback(ctx, cfg, name, exceptionClass(err), requestID, ts)
		return err
	}

	p.deliver(ctx, cfg, line)
	return nil
}

// fallback emits the minimal log_emit_error event for a failed encode.
func (p *Pipeline) fallback(ctx context.Context, cfg *Config, original, class, requestID, ts string) {
	p.failures.Add(1)
	slog.Warn("structured event encoding failed",
		"event", original,
		"exception_class", class,
		"request_id", requestID,
	)

	line, err := json.Marshal(map[string]any{
		FieldEvent:         EventEmitError,
		"original_event":   original,
		"exception_class":  class,
		FieldSchemaVersion: cfg.SchemaVersion,
		FieldTimestamp:     ts,
		FieldRequestID:     requestID,
	})
	if err != nil {
		return
	}
	p.deliver(ctx, cfg, line)
}

// encodePanic is returned by encode when a value's MarshalJSON panics.
type encodePanic struct {
	value any
}

func (e encodePanic) Error() string {
	return fmt.Sprintf("panic while encoding event: %v", e.value)
}

func encode(event map[string]any) (line []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = encodePanic{value: r}
		}
	}()
	return json.Marshal(event)
}

func exceptionClass(err error) string {
	var pe encodePanic
	if errors.As(err, &pe) {
		return "panic"
	}
	return fmt.Sprintf("%T", err)
}

func (p *Pipeline) deliver(ctx context.Context, cfg *Config, line []byte) {
	if cfg.Async {
		select {
		case p.queue <- line:
			p.emitted.Add(1)
		default:
			p.dropped.Add(1)
		}
		return
	}
	p.write(ctx, line)
}

func (p *Pipeline) write(ctx context.Context, line []byte) {
	if p.sink == nil {
		p.emitted.Add(1)
		return
	}
	if err := p.writeSink(ctx, line); err != nil {
		p.sinkErrors.Add(1)
		slog.Warn("structured event sink write failed", "error", err)
		return
	}
	p.emitted.Add(1)
}

// writeSink calls the sink, converting a panic into an error. The line is
// never re-delivered.
func (p *Pipeline) writeSink(ctx context.Context, line []byte) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("sink panic: %v", r)
		}
	}()
	return p.sink.Write(ctx, line)
}

func (p *Pipeline) sample(rate float64) bool {
	if rate >= 1 {
		return true
	}
	if rate <= 0 {
		return false
	}
	p.rngMu.Lock()
	u := p.rng.Float64()
	p.rngMu.Unlock()
	return u < rate
}

func resolveRequestID(ctx context.Context, fields map[string]any) string {
	if id := logging.RequestID(ctx); id != "" {
		return id
	}
	if id, ok := fields[FieldRequestID].(string); ok && id != "" {
		return id
	}
	return uuid.NewString()
}

// Run drains the async queue until ctx is cancelled, then delivers what is
// still queued and returns. Start it once, in its own goroutine.
func (p *Pipeline) Run(ctx context.Context) {
	slog.Info("event drain loop started", "queue_capacity", cap(p.queue))
	for {
		select {
		case line := <-p.queue:
			p.drainOne(line)
		case <-ctx.Done():
			for {
				select {
				case line := <-p.queue:
					p.drainOne(line)
				default:
					slog.Info("event drain loop stopped")
					return
				}
			}
		}
	}
}

func (p *Pipeline) drainOne(line []byte) {
	if p.sink == nil {
		return
	}
	if err := p.writeSink(context.Background(), line); err != nil {
		p.sinkErrors.Add(1)
		slog.Warn("structured event sink write failed", "error", err)
	}
}

// Config returns the current configuration view.
func (p *Pipeline) Config() View {
	return p.cfg.Load().view()
}

// Override publishes a new configuration with o applied and returns the
// overrides now in effect.
func (p *Pipeline) Override(o Overrides) (Overrides, error) {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()

	next, err := p.cfg.Load().apply(o)
	if err != nil {
		return Overrides{}, err
	}
	p.cfg.Store(next)

	slog.Info("structured event config overridden",
		"sample_rate", next.SampleRate,
		"async", next.Async,
	)
	return next.overrides, nil
}

// Stats returns a snapshot of the counters.
func (p *Pipeline) Stats() Stats {
	n, c := len(p.queue), cap(p.queue)
	st := Stats{
		Emitted:        p.emitted.Load(),
		SampledOut:     p.sampledOut.Load(),
		RedactedFields: p.redacted.Load(),
		EmitFailures:   p.failures.Load(),
		SinkErrors:     p.sinkErrors.Load(),
		Dropped:        p.dropped.Load(),
		QueueLength:    n,
		QueueCapacity:  c,
	}
	if c > 0 {
		st.QueueUtilization = float64(n) / float64(c)
	}
	return st
}
