package core

import (
	"bytes"
	"context"
	"crypto/subtle"
	"errors"
	"fmt"

	"github.com/JonMunkholm/reconcile/internal/eventlog"
	"github.com/JonMunkholm/reconcile/internal/latency"
	"github.com/JonMunkholm/reconcile/internal/logging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
)

// ErrDebugTokenMismatch is returned by MetricsJSON for a wrong debug token.
var ErrDebugTokenMismatch = errors.New("metrics debug token mismatch")

// Registry returns the Prometheus registry holding the service metrics.
func (s *Service) Registry() *prometheus.Registry { return s.registry }

// MetricsText renders every registered metric in the Prometheus text
// exposition format.
func (s *Service) MetricsText() (string, error) {
	families, err := s.registry.Gather()
	if err != nil {
		return "", fmt.Errorf("gather metrics: %w", err)
	}

	var buf bytes.Buffer
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(&buf, mf); err != nil {
			return "", fmt.Errorf("encode %s: %w", mf.GetName(), err)
		}
	}
	return buf.String(), nil
}

// PersistenceStatus describes the snapshot writer.
type PersistenceStatus struct {
	Enabled   bool   `json:"enabled"`
	Path      string `json:"path,omitempty"`
	Writes    int64  `json:"writes_total"`
	Failures  int64  `json:"errors_total"`
	LastBytes int64  `json:"last_bytes"`
}

// MetricsReport is the structured metrics document.
type MetricsReport struct {
	Latency     latency.State     `json:"latency"`
	Persistence PersistenceStatus `json:"persistence"`
	Events      eventlog.Stats    `json:"events"`
	Logs        eventlog.View     `json:"logs_config"`
	Limiter     ScanLimiterStatus `json:"limiter"`
	Outcomes    map[string]int64  `json:"outcomes"`
	Sources     []string          `json:"sources"`
	Samples     []float64         `json:"samples,omitempty"`
}

// MetricsJSON returns the structured metrics. A debugToken matching the
// configured one adds the raw window samples; a wrong one is rejected.
func (s *Service) MetricsJSON(debugToken string) (MetricsReport, error) {
	debug := false
	if debugToken != "" && s.debugToken != "" {
		if subtle.ConstantTimeCompare([]byte(s.debugToken), []byte(debugToken)) != 1 {
			return MetricsReport{}, ErrDebugTokenMismatch
		}
		debug = true
	}

	p := s.window.Persister()
	report := MetricsReport{
		Latency: s.window.State(),
		Persistence: PersistenceStatus{
			Enabled:   p != nil,
			Path:      p.Path(),
			Writes:    p.Writes(),
			Failures:  p.Failures(),
			LastBytes: p.LastBytes(),
		},
		Events:   s.events.Stats(),
		Logs:     s.events.Config(),
		Limiter:  s.limiter.Status(),
		Outcomes: make(map[string]int64, len(s.outcomes)),
	}
	for o, n := range s.outcomes {
		report.Outcomes[o] = n.Load()
	}
	for _, def := range All() {
		report.Sources = append(report.Sources, def.Key)
	}
	if debug {
		report.Samples = s.window.Values()
	}
	return report, nil
}

// ResetMetrics clears the latency window and its counters.
func (s *Service) ResetMetrics(ctx context.Context, token string) (latency.ResetReport, error) {
	report, err := s.window.Reset(token)

	fields := map[string]any{"outcome": OutcomeOK}
	if err != nil {
		fields["outcome"] = OutcomeError
		fields["error_code"] = MapError(err).Code
		logging.FromContext(ctx).Warn("metrics reset rejected", "error", err)
	} else {
		fields["samples_before"] = report.Before.Count
		fields["slo_violations_before"] = report.Before.SLOViolationTotal
		logging.FromContext(ctx).Info("metrics reset", "samples_before", report.Before.Count)
	}
	s.emit(ctx, EventMetricsReset, fields)

	return report, err
}

// LogsConfig returns the structured event configuration.
func (s *Service) LogsConfig() eventlog.View {
	return s.events.Config()
}

// LogsRuntimeOverride applies o to the structured event configuration and
// returns the overrides now in effect.
func (s *Service) LogsRuntimeOverride(ctx context.Context, o eventlog.Overrides) (eventlog.Overrides, error) {
	applied, err := s.events.Override(o)
	if err != nil {
		return eventlog.Overrides{}, err
	}

	fields := map[string]any{}
	if applied.SampleRate != nil {
		fields["sample_rate"] = *applied.SampleRate
	}
	if applied.Async != nil {
		fields["async"] = *applied.Async
	}
	s.emit(ctx, EventLogsOverridden, fields)
	return applied, nil
}

// serviceCollector exports request outcome counts and limiter state.
type serviceCollector struct {
	s *Service

	requests *prometheus.Desc
	active   *prometheus.Desc
	rejected *prometheus.Desc
}

func newServiceCollector(namespace string, s *Service) *serviceCollector {
	return &serviceCollector{
		s: s,
		requests: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "suggestion_requests_total"),
			"Matching requests by outcome.", []string{"outcome"}, nil),
		active: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "scans_in_flight"),
			"Matching scans currently holding a limiter slot.", nil, nil),
		rejected: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "scans_rejected_total"),
			"Matching scans rejected because the limiter was saturated.", nil, nil),
	}
}

func (c *serviceCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.requests
	ch <- c.active
	ch <- c.rejected
}

func (c *serviceCollector) Collect(ch chan<- prometheus.Metric) {
	for _, o := range outcomes {
		ch <- prometheus.MustNewConstMetric(c.requests, prometheus.CounterValue, float64(c.s.outcomes[o].Load()), o)
	}
	st := c.s.limiter.Status()
	ch <- prometheus.MustNewConstMetric(c.active, prometheus.GaugeValue, float64(st.Active))
	ch <- prometheus.MustNewConstMetric(c.rejected, prometheus.CounterValue, float64(st.Rejected))
}
