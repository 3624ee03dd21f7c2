package eventlog

import (
	"errors"
	"fmt"
	"sort"
)

// ErrInvalidOverride is returned by Override for out-of-range values.
var ErrInvalidOverride = errors.New("invalid log runtime override")

// DefaultQueueSize bounds the async queue when none is configured.
const DefaultQueueSize = 1024

// Core fields are always set by the pipeline and are never redacted.
const (
	FieldEvent          = "event"
	FieldRequestID      = "request_id"
	FieldTimestamp      = "timestamp"
	FieldSchemaVersion  = "schema_version"
	FieldRedactionCount = "redaction_count"
)

var coreFields = map[string]struct{}{
	FieldEvent:         {},
	FieldRequestID:     {},
	FieldTimestamp:     {},
	FieldSchemaVersion: {},
}

// Config is the sampling and redaction configuration. A published Config is
// never mutated; runtime overrides publish a modified copy.
type Config struct {
	SampleRate    float64
	EventRates    map[string]float64
	RedactFields  []string
	Async         bool
	QueueSize     int
	SchemaVersion int

	redact    map[string]struct{}
	overrides Overrides
}

// Overrides lists the values changed at runtime. Nil means not overridden.
type Overrides struct {
	SampleRate *float64 `json:"sample_rate,omitempty"`
	Async      *bool    `json:"async,omitempty"`
}

// View is the externally visible configuration.
type View struct {
	SampleRate    float64            `json:"sample_rate"`
	EventRates    map[string]float64 `json:"event_sample_rates"`
	RedactFields  []string           `json:"redact_fields"`
	Async         bool               `json:"async"`
	QueueSize     int                `json:"queue_size"`
	SchemaVersion int                `json:"schema_version"`
	Overrides     Overrides          `json:"overrides"`
}

// normalized returns a private copy with defaults applied.
func (c Config) normalized() *Config {
	out := c
	if out.QueueSize <= 0 {
		out.QueueSize = DefaultQueueSize
	}
	if out.SchemaVersion < 1 {
		out.SchemaVersion = 1
	}

	out.EventRates = make(map[string]float64, len(c.EventRates))
	for k, v := range c.EventRates {
		out.EventRates[k] = v
	}

	out.redact = make(map[string]struct{}, len(c.RedactFields))
	out.RedactFields = nil
	for _, f := range c.RedactFields {
		if _, core := coreFields[f]; core {
			continue
		}
		if _, dup := out.redact[f]; dup {
			continue
		}
		out.redact[f] = struct{}{}
		out.RedactFields = append(out.RedactFields, f)
	}
	sort.Strings(out.RedactFields)
	return &out
}

// rate returns the effective sample rate for event.
func (c *Config) rate(event string) float64 {
	if r, ok := c.EventRates[event]; ok {
		return r
	}
	return c.SampleRate
}

func (c *Config) view() View {
	rates := make(map[string]float64, len(c.EventRates))
	for k, v := range c.EventRates {
		rates[k] = v
	}
	return View{
		SampleRate:    c.SampleRate,
		EventRates:    rates,
		RedactFields:  append([]string{}, c.RedactFields...),
		Async:         c.Async,
		QueueSize:     c.QueueSize,
		SchemaVersion: c.SchemaVersion,
		Overrides:     c.overrides,
	}
}

// apply returns a copy of c with o applied.
func (c *Config) apply(o Overrides) (*Config, error) {
	if o.SampleRate != nil && (*o.SampleRate < 0 || *o.SampleRate > 1) {
		return nil, fmt.Errorf("%w: sample_rate %v outside [0,1]", ErrInvalidOverride, *o.SampleRate)
	}

	next := *c
	if o.SampleRate != nil {
		v := *o.SampleRate
		next.SampleRate = v
		next.overrides.SampleRate = &v
	}
	if o.Async != nil {
		v := *o.Async
		next.Async = v
		next.overrides.Async = &v
	}
	return &next, nil
}
