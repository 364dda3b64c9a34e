package mathutil

import (
	"math"
	"time"
)

// AbsFloat64 returns the absolute value of a float64
func AbsFloat64(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}

// AbsDuration returns the absolute value of a duration
func AbsDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}

// MaxInt returns the larger of two ints
func MaxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// RoundedMean returns the arithmetic mean rounded to the nearest integer,
// halves toward positive infinity. Empty input yields 0.
func RoundedMean(values []int64) int64 {
	if len(values) == 0 {
		return 0
	}

	var sum float64
	for _, v := range values {
		sum += float64(v)
	}
	return int64(math.Floor(sum/float64(len(values)) + 0.5))
}

// MillisToDuration converts integer milliseconds to a Duration
func MillisToDuration(ms int64) time.Duration {
	return time.Duration(ms) * time.Millisecond
}
