package esmutils

import "math"

// Average watts drawn while a cumulative register moved deltaKwh over seconds.
// kWh -> Wh/s via 3600 s/h, then kW -> W.
// Caller guarantees seconds != 0.
func KwhOverSecondsToW(deltaKwh float64, seconds int64) float64 {
	return deltaKwh * 3600 / float64(seconds) * 1000
}

// Truncates toward zero, clamping to the int32 range.
func TruncInt32(v float64) int32 {
	switch {
	case math.IsNaN(v):
		return 0
	case v >= math.MaxInt32:
		return math.MaxInt32
	case v <= math.MinInt32:
		return math.MinInt32
	}
	return int32(v)
}

// No negative values
func KwToW(kw float64) uint32 {
	if kw < 0 {
		return 0
	}
	return uint32(math.Round(kw * 1000))
}
