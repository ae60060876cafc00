package metrics

import (
	"math"
	"time"
)

// ─────────────────────────────────────────────────────────────────────────────
// Rates
// ─────────────────────────────────────────────────────────────────────────────

// PerSecond divides delta by elapsed. A non-positive interval yields 0.
func PerSecond(delta uint64, elapsed time.Duration) float64 {
	secs := elapsed.Seconds()
	if secs <= 0 {
		return 0
	}
	return float64(delta) / secs
}

// BitsPerSecond converts an octet delta over elapsed into bits per second.
func BitsPerSecond(octets uint64, elapsed time.Duration) float64 {
	return PerSecond(octets, elapsed) * 8
}

// EffectiveSpeed returns an interface's speed in bits per second. ifHighSpeed
// (Mbps) wins whenever it is positive; ifSpeed saturates at 2^32-1 on links
// faster than 4 Gbit/s.
func EffectiveSpeed(speedBps, highSpeedMbps uint64) float64 {
	if highSpeedMbps > 0 {
		return float64(highSpeedMbps) * 1e6
	}
	return float64(speedBps)
}

// Utilization is max(in, out) as a percentage of speed, clamped to [0, 100].
// A zero, negative or non-finite speed yields 0.
func Utilization(inBps, outBps, speedBps float64) float64 {
	if speedBps <= 0 || math.IsNaN(speedBps) || math.IsInf(speedBps, 0) {
		return 0
	}
	u := math.Max(inBps, outBps) / speedBps * 100
	return Clamp(u, 0, 100)
}

// ─────────────────────────────────────────────────────────────────────────────
// Percentages and units
// ─────────────────────────────────────────────────────────────────────────────

// Percent returns part/total*100 clamped to [0, 100]. ok is false when total
// is not positive or either input is not finite.
func Percent(part, total float64) (float64, bool) {
	if !Finite(part) || !Finite(total) || total <= 0 {
		return 0, false
	}
	return Clamp(part/total*100, 0, 100), true
}

// UsedFreePercent computes used/(used+free)*100.
func UsedFreePercent(used, free float64) (float64, bool) {
	return Percent(used, used+free)
}

// Clamp limits v to [lo, hi]. NaN maps to lo.
func Clamp(v, lo, hi float64) float64 {
	switch {
	case math.IsNaN(v) || v < lo:
		return lo
	case v > hi:
		return hi
	default:
		return v
	}
}

// Finite reports whether v is neither NaN nor infinite.
func Finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// KBToBytes converts UCD-SNMP kilobyte quantities to bytes.
func KBToBytes(kb uint64) uint64 { return kb * 1024 }

// TicksToSeconds converts TimeTicks (hundredths of a second) to seconds.
func TicksToSeconds(ticks uint64) float64 { return float64(ticks) / 100 }
