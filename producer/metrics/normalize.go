package metrics

import (
	"math"
	"strconv"
	"sync"
	"time"
)

// ─────────────────────────────────────────────────────────────────────────────
// Counter state
// ─────────────────────────────────────────────────────────────────────────────

// MaxRateInterval bounds the time between two observations that may be used
// for a rate. Longer gaps usually mean a missed cycle or a clock jump.
const MaxRateInterval = 10 * time.Minute

// CounterKey identifies one set of raw counters. Scope is "if:<interfaceID>"
// for interface counters and "cpu" for raw CPU ticks.
type CounterKey struct {
	DeviceID uint
	Scope    string
}

// InterfaceKey returns the key of an interface's traffic and error counters.
func InterfaceKey(deviceID, interfaceID uint) CounterKey {
	return CounterKey{DeviceID: deviceID, Scope: "if:" + strconv.FormatUint(uint64(interfaceID), 10)}
}

// CPUKey returns the key of a device's raw CPU tick counters.
func CPUKey(deviceID uint) CounterKey {
	return CounterKey{DeviceID: deviceID, Scope: "cpu"}
}

// Snapshot is the set of raw counter values observed at one instant.
type Snapshot struct {
	Values map[string]uint64
	At     time.Time
}

// CounterStore holds the previous raw counters of every key so that the
// collector can compute rates between two polls. Entries live in process
// memory only and are replaced on every observation. Safe for concurrent use.
type CounterStore struct {
	mu      sync.Mutex
	entries map[CounterKey]Snapshot
}

// NewCounterStore creates an empty store.
func NewCounterStore() *CounterStore {
	return &CounterStore{entries: make(map[CounterKey]Snapshot)}
}

// Swap records values as the latest observation of key and returns the one
// it replaced. ok is false on the first observation, when the clock did not
// advance, and when the previous observation is older than MaxRateInterval;
// in all three cases the new values are still stored for the next poll.
//
// Read and write happen under one lock, so two concurrent collections can
// never interleave on the same key.
func (s *CounterStore) Swap(key CounterKey, values map[string]uint64, now time.Time) (prev Snapshot, ok bool) {
	cp := make(map[string]uint64, len(values))
	for k, v := range values {
		cp[k] = v
	}

	s.mu.Lock()
	prev, exists := s.entries[key]
	s.entries[key] = Snapshot{Values: cp, At: now}
	s.mu.Unlock()

	if !exists {
		return Snapshot{}, false
	}
	elapsed := now.Sub(prev.At)
	if elapsed <= 0 || elapsed > MaxRateInterval {
		return Snapshot{}, false
	}
	return prev, true
}

// Forget drops every entry of a device. Call this when a device is removed.
func (s *CounterStore) Forget(deviceID uint) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for k := range s.entries {
		if k.DeviceID == deviceID {
			delete(s.entries, k)
			removed++
		}
	}
	return removed
}

// Purge removes entries last observed before now-maxAge. Run it on a slow
// timer to reclaim memory for interfaces that disappeared.
func (s *CounterStore) Purge(maxAge time.Duration, now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := now.Add(-maxAge)
	removed := 0
	for k, e := range s.entries {
		if e.At.Before(cutoff) {
			delete(s.entries, k)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked keys.
func (s *CounterStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// ─────────────────────────────────────────────────────────────────────────────
// Counter deltas
// ─────────────────────────────────────────────────────────────────────────────

// maxSafeInteger is 2^53 - 1, the largest integer a float64 holds exactly.
const maxSafeInteger = 1<<53 - 1

// CounterDelta returns the increase of an octet counter from prev to cur.
//
// When cur < prev the counter wrapped. A 64-bit wrap is tried first; if its
// result does not fit the safe integer range the counter is assumed to be
// 32-bit. A previous value above the 32-bit range cannot come from a 32-bit
// counter, so no delta is produced.
//
// Both wrap formulas omit the +1 of an exact modular difference; for
// intermediate counter magnitudes the 64-bit guess can be wrong.
func CounterDelta(prev, cur uint64) (uint64, bool) {
	if cur >= prev {
		return cur - prev, true
	}
	if w64 := math.MaxUint64 - prev + cur; w64 <= maxSafeInteger {
		return w64, true
	}
	if prev > math.MaxUint32 {
		return 0, false
	}
	return math.MaxUint32 - prev + cur, true
}

// ErrorDelta returns the increase of an error counter. Error counters are
// small and wrap is not modelled: a decrease yields no delta.
func ErrorDelta(prev, cur uint64) (uint64, bool) {
	if cur < prev {
		return 0, false
	}
	return cur - prev, true
}

// TickDelta returns the increase of a cumulative tick counter. Like error
// counters, a decrease (agent restart) yields no delta.
func TickDelta(prev, cur uint64) (uint64, bool) { return ErrorDelta(prev, cur) }
