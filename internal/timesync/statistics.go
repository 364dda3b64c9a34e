package timesync

import (
	"math"
	"sort"

	"github.com/maximewewer/ntp-sync/pkg/mathutil"
)

// Statistics summarises the retained offsets. All values are milliseconds.
type Statistics struct {
	SamplesCount int     `json:"samples_count"`
	MeanOffset   float64 `json:"mean_offset_ms"`
	MedianOffset float64 `json:"median_offset_ms"`
	StdDevOffset float64 `json:"stddev_offset_ms"`
	Jitter       float64 `json:"jitter_ms"`
	MinOffset    int64   `json:"min_offset_ms"`
	MaxOffset    int64   `json:"max_offset_ms"`
}

// CalculateStatistics computes statistics over deltas in arrival order
func CalculateStatistics(deltas []Delta) Statistics {
	stats := Statistics{SamplesCount: len(deltas)}
	if len(deltas) == 0 {
		return stats
	}

	offsets := make([]float64, len(deltas))
	stats.MinOffset = deltas[0].OffsetMs
	stats.MaxOffset = deltas[0].OffsetMs
	for i, d := range deltas {
		offsets[i] = float64(d.OffsetMs)
		if d.OffsetMs < stats.MinOffset {
			stats.MinOffset = d.OffsetMs
		}
		if d.OffsetMs > stats.MaxOffset {
			stats.MaxOffset = d.OffsetMs
		}
	}

	stats.MeanOffset = mean(offsets)
	stats.MedianOffset = median(offsets)
	stats.StdDevOffset = stdDev(offsets)
	stats.Jitter = jitter(offsets)

	return stats
}

// median of values; even-length input averages the two middle values
func median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}

	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	n := len(sorted)
	if n%2 == 0 {
		return (sorted[n/2-1] + sorted[n/2]) / 2.0
	}
	return sorted[n/2]
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}

	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// stdDev is the sample standard deviation (N-1 denominator); 0 below two values
func stdDev(values []float64) float64 {
	if len(values) <= 1 {
		return 0
	}

	m := mean(values)
	sumSquaredDiff := 0.0
	for _, v := range values {
		diff := v - m
		sumSquaredDiff += diff * diff
	}

	return math.Sqrt(sumSquaredDiff / float64(len(values)-1))
}

// jitter is the mean absolute difference between consecutive offsets
func jitter(values []float64) float64 {
	if len(values) <= 1 {
		return 0
	}

	total := 0.0
	for i := 1; i < len(values); i++ {
		total += mathutil.AbsFloat64(values[i] - values[i-1])
	}
	return total / float64(len(values)-1)
}
