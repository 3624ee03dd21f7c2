package latency

import (
	"math"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector exports a Window as Prometheus metrics. Values are computed at
// scrape time from one State, so the exported quantiles carry the same
// monotonic adjustment as Summarize.
type Collector struct {
	window *Window

	latency    *prometheus.Desc
	quantile   *prometheus.Desc
	avg        *prometheus.Desc
	samples    *prometheus.Desc
	capacity   *prometheus.Desc
	sloTarget  *prometheus.Desc
	violations *prometheus.Desc
	abandoned  *prometheus.Desc
	writes     *prometheus.Desc
	failures   *prometheus.Desc
}

// NewCollector returns a collector for w using the given metric namespace.
func NewCollector(namespace string, w *Window) *Collector {
	name := func(n string) string { return prometheus.BuildFQName(namespace, "", n) }
	return &Collector{
		window:     w,
		latency:    prometheus.NewDesc(name("request_latency_seconds"), "Suggestion request latency over the current window.", nil, nil),
		quantile:   prometheus.NewDesc(name("request_latency_quantile_seconds"), "Adjusted latency quantiles over the current window.", []string{"percentile"}, nil),
		avg:        prometheus.NewDesc(name("request_latency_avg_seconds"), "Mean latency over the current window.", nil, nil),
		samples:    prometheus.NewDesc(name("latency_window_samples"), "Samples currently held in the latency window.", nil, nil),
		capacity:   prometheus.NewDesc(name("latency_window_capacity"), "Configured latency window capacity.", nil, nil),
		sloTarget:  prometheus.NewDesc(name("slo_p95_target_seconds"), "Configured p95 latency objective.", nil, nil),
		violations: prometheus.NewDesc(name("slo_violations_total"), "Requests slower than the p95 objective since last reset.", nil, nil),
		abandoned:  prometheus.NewDesc(name("requests_abandoned_total"), "Requests abandoned by the caller before completion.", nil, nil),
		writes:     prometheus.NewDesc(name("latency_snapshot_writes_total"), "Successful latency snapshot writes.", nil, nil),
		failures:   prometheus.NewDesc(name("latency_snapshot_errors_total"), "Failed latency snapshot writes.", nil, nil),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.latency
	ch <- c.quantile
	ch <- c.avg
	ch <- c.samples
	ch <- c.capacity
	ch <- c.sloTarget
	ch <- c.violations
	ch <- c.abandoned
	ch <- c.writes
	ch <- c.failures
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	st := c.window.State()
	sum := st.Summary

	buckets := make(map[float64]uint64, len(sum.Histogram))
	for _, b := range sum.Histogram {
		if math.IsInf(b.LE, 1) {
			continue
		}
		buckets[b.LE] = uint64(b.Count)
	}
	ch <- prometheus.MustNewConstHistogram(c.latency, uint64(sum.Count), sum.Sum, buckets)

	ch <- prometheus.MustNewConstMetric(c.quantile, prometheus.GaugeValue, sum.P50, "p50")
	ch <- prometheus.MustNewConstMetric(c.quantile, prometheus.GaugeValue, sum.P95, "p95")
	ch <- prometheus.MustNewConstMetric(c.quantile, prometheus.GaugeValue, sum.P99, "p99")

	ch <- prometheus.MustNewConstMetric(c.avg, prometheus.GaugeValue, sum.Avg)
	ch <- prometheus.MustNewConstMetric(c.samples, prometheus.GaugeValue, float64(st.Count))
	ch <- prometheus.MustNewConstMetric(c.capacity, prometheus.GaugeValue, float64(st.Capacity))
	ch <- prometheus.MustNewConstMetric(c.sloTarget, prometheus.GaugeValue, st.SLOP95)
	ch <- prometheus.MustNewConstMetric(c.violations, prometheus.CounterValue, float64(st.SLOViolationTotal))
	ch <- prometheus.MustNewConstMetric(c.abandoned, prometheus.CounterValue, float64(st.AbandonedTotal))

	p := c.window.Persister()
	ch <- prometheus.MustNewConstMetric(c.writes, prometheus.CounterValue, float64(p.Writes()))
	ch <- prometheus.MustNewConstMetric(c.failures, prometheus.CounterValue, float64(p.Failures()))
}
