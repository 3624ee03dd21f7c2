package eventlog

import "github.com/prometheus/client_golang/prometheus"

// Collector exports pipeline counters as Prometheus metrics.
type Collector struct {
	p *Pipeline

	emitted     *prometheus.Desc
	sampledOut  *prometheus.Desc
	redacted    *prometheus.Desc
	failures    *prometheus.Desc
	sinkErrors  *prometheus.Desc
	dropped     *prometheus.Desc
	utilization *prometheus.Desc
	sampleRate  *prometheus.Desc
}

// NewCollector returns a collector for p.
func NewCollector(namespace string, p *Pipeline) *Collector {
	name := func(n string) string { return prometheus.BuildFQName(namespace, "events", n) }
	return &Collector{
		p:           p,
		emitted:     prometheus.NewDesc(name("emitted_total"), "Structured events delivered or queued.", nil, nil),
		sampledOut:  prometheus.NewDesc(name("sampled_out_total"), "Structured events skipped by sampling.", nil, nil),
		redacted:    prometheus.NewDesc(name("redacted_fields_total"), "Fields removed by redaction.", nil, nil),
		failures:    prometheus.NewDesc(name("emit_failures_total"), "Structured events that failed to encode.", nil, nil),
		sinkErrors:  prometheus.NewDesc(name("sink_errors_total"), "Sink write failures.", nil, nil),
		dropped:     prometheus.NewDesc(name("dropped_total"), "Structured events dropped because the async queue was full.", nil, nil),
		utilization: prometheus.NewDesc(name("queue_utilization_ratio"), "Async queue length divided by capacity.", nil, nil),
		sampleRate:  prometheus.NewDesc(name("sample_rate"), "Current global sample rate.", nil, nil),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.emitted
	ch <- c.sampledOut
	ch <- c.redacted
	ch <- c.failures
	ch <- c.sinkErrors
	ch <- c.dropped
	ch <- c.utilization
	ch <- c.sampleRate
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	st := c.p.Stats()
	ch <- prometheus.MustNewConstMetric(c.emitted, prometheus.CounterValue, float64(st.Emitted))
	ch <- prometheus.MustNewConstMetric(c.sampledOut, prometheus.CounterValue, float64(st.SampledOut))
	ch <- prometheus.MustNewConstMetric(c.redacted, prometheus.CounterValue, float64(st.RedactedFields))
	ch <- prometheus.MustNewConstMetric(c.failures, prometheus.CounterValue, float64(st.EmitFailures))
	ch <- prometheus.MustNewConstMetric(c.sinkErrors, prometheus.CounterValue, float64(st.SinkErrors))
	ch <- prometheus.MustNewConstMetric(c.dropped, prometheus.CounterValue, float64(st.Dropped))
	ch <- prometheus.MustNewConstMetric(c.utilization, prometheus.GaugeValue, st.QueueUtilization)
	ch <- prometheus.MustNewConstMetric(c.sampleRate, prometheus.GaugeValue, c.p.Config().SampleRate)
}
