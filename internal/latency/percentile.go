package latency

// percentile.go holds the pure summary math used by the window: linear
// interpolation percentiles, cumulative histograms and the monotonic
// adjustment that keeps p50 <= p95 <= p99 and avg <= p95.

import (
	"encoding/json"
	"math"
	"sort"
	"strconv"
)

// Bucket is one cumulative histogram bucket. The final bucket has LE = +Inf
// and a count equal to the number of values.
type Bucket struct {
	LE    float64
	Count int
}

// MarshalJSON renders LE as a string so that +Inf survives encoding.
func (b Bucket) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		LE    string `json:"le"`
		Count int    `json:"cumulative_count"`
	}{
		LE:    strconv.FormatFloat(b.LE, 'g', -1, 64),
		Count: b.Count,
	})
}

// Summary is derived from the window on demand and never stored.
type Summary struct {
	Count     int      `json:"count"`
	P50       float64  `json:"p50"`
	P95       float64  `json:"p95"`
	P99       float64  `json:"p99"`
	Avg       float64  `json:"avg"`
	Sum       float64  `json:"sum"`
	Histogram []Bucket `json:"histogram"`
}

// Percentile returns the p-th percentile (0 <= p <= 1) of an ascending
// slice using linear interpolation between closest ranks:
//
//	k = (n-1)*p, f = floor(k), c = min(f+1, n-1)
//	result = v[f] + (v[c]-v[f])*(k-f)
//
// An empty slice yields 0.
func Percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if p <= 0 {
		return sorted[0]
	}
	if p >= 1 {
		return sorted[n-1]
	}

	k := float64(n-1) * p
	f := int(math.Floor(k))
	c := f + 1
	if c > n-1 {
		c = n - 1
	}
	d := k - float64(f)
	return sorted[f] + (sorted[c]-sorted[f])*d
}

// Histogram returns cumulative counts of values <= each boundary.
// Boundaries are sorted and deduplicated; an implicit +Inf bucket whose
// count equals len(values) is always appended. NaN and infinite
// boundaries are ignored.
func Histogram(values, boundaries []float64) []Bucket {
	bounds := normalizeBounds(boundaries)

	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	buckets := make([]Bucket, 0, len(bounds)+1)
	for _, le := range bounds {
		n := sort.Search(len(sorted), func(i int) bool { return sorted[i] > le })
		buckets = append(buckets, Bucket{LE: le, Count: n})
	}
	buckets = append(buckets, Bucket{LE: math.Inf(1), Count: len(sorted)})
	return buckets
}

func normalizeBounds(boundaries []float64) []float64 {
	bounds := make([]float64, 0, len(boundaries))
	for _, b := range boundaries {
		if math.IsNaN(b) || math.IsInf(b, 0) {
			continue
		}
		bounds = append(bounds, b)
	}
	sort.Float64s(bounds)

	out := bounds[:0]
	for i, b := range bounds {
		if i > 0 && b == bounds[i-1] {
			continue
		}
		out = append(out, b)
	}
	return out
}

// Summarize computes the summary of values. The input is not modified.
//
// Raw interpolated p95/p99 can fall below the mean for right-skewed samples
// (many tiny values plus a few large outliers), so they are lifted:
// p95 = max(p95, avg) and p99 = max(p99, p95).
func Summarize(values, boundaries []float64) Summary {
	s := Summary{
		Count:     len(values),
		Histogram: Histogram(values, boundaries),
	}
	if len(values) == 0 {
		return s
	}

	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	for _, v := range sorted {
		s.Sum += v
	}
	s.Avg = s.Sum / float64(len(sorted))

	s.P50 = Percentile(sorted, 0.50)
	s.P95 = math.Max(Percentile(sorted, 0.95), s.Avg)
	s.P99 = math.Max(Percentile(sorted, 0.99), s.P95)
	// p50 never exceeds the raw p95 and raw p95 only moves up, but guard
	// float noise on near-constant inputs.
	if s.P50 > s.P95 {
		s.P50 = s.P95
	}
	return s
}
