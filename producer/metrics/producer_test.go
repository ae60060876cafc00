package metrics_test

import (
	"math"
	"sync"
	"testing"
	"time"

	"github.com/vpbank/snmp_monitor/models"
	"github.com/vpbank/snmp_monitor/producer/metrics"
)

// ─────────────────────────────────────────────────────────────────────────────
// CounterDelta
// ─────────────────────────────────────────────────────────────────────────────

func TestCounterDelta(t *testing.T) {
	tests := []struct {
		name      string
		prev, cur uint64
		want      uint64
		wantOK    bool
	}{
		{"direct", 1000, 1500, 500, true},
		{"unchanged", 42, 42, 0, true},
		{"64-bit wrap", math.MaxUint64 - 100, 50, 150, true},
		{"32-bit wrap", 4294960000, 5000, 4294967295 - 4294960000 + 5000, true},
		{"32-bit wrap near top", math.MaxUint32, 0, 0, true},
		{"decrease above 32-bit range", 1 << 40, 10, 0, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := metrics.CounterDelta(tc.prev, tc.cur)
			if ok != tc.wantOK || got != tc.want {
				t.Errorf("CounterDelta(%d, %d) = %d, %v; want %d, %v", tc.prev, tc.cur, got, ok, tc.want, tc.wantOK)
			}
		})
	}
}

// For every decreasing pair the 64-bit formula is used exactly when it fits
// the safe integer range.
func TestCounterDelta_WrapSelection(t *testing.T) {
	const safe = 1<<53 - 1
	prevs := []uint64{1, 1000, 1 << 31, math.MaxUint32, 1 << 40, math.MaxUint64 - (1 << 52), math.MaxUint64 - 1}
	for _, prev := range prevs {
		for _, cur := range []uint64{0, 1, prev / 2, prev - 1} {
			if cur >= prev {
				continue
			}
			got, ok := metrics.CounterDelta(prev, cur)
			w64 := math.MaxUint64 - prev + cur
			switch {
			case w64 <= safe:
				if !ok || got != w64 {
					t.Errorf("(%d,%d): got %d %v, want 64-bit %d", prev, cur, got, ok, w64)
				}
			case prev <= math.MaxUint32:
				if want := math.MaxUint32 - prev + cur; !ok || got != want {
					t.Errorf("(%d,%d): got %d %v, want 32-bit %d", prev, cur, got, ok, want)
				}
			default:
				if ok {
					t.Errorf("(%d,%d): got %d, want no delta", prev, cur, got)
				}
			}
		}
	}
}

func TestWrapScenario_Rate(t *testing.T) {
	delta, ok := metrics.CounterDelta(4294960000, 5000)
	if !ok || delta != 12295 {
		t.Fatalf("delta = %d, %v; want 12295", delta, ok)
	}
	rate := metrics.BitsPerSecond(delta, 10*time.Second)
	if want := float64(12295) * 8 / 10; rate != want {
		t.Errorf("rate = %v, want %v", rate, want)
	}
}

func TestErrorDelta(t *testing.T) {
	if d, ok := metrics.ErrorDelta(10, 15); !ok || d != 5 {
		t.Errorf("ErrorDelta(10,15) = %d, %v", d, ok)
	}
	if _, ok := metrics.ErrorDelta(15, 10); ok {
		t.Error("decrease must not produce an error delta")
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// CounterStore
// ─────────────────────────────────────────────────────────────────────────────

func TestCounterStore_Swap(t *testing.T) {
	cs := metrics.NewCounterStore()
	key := metrics.InterfaceKey(1, 7)
	t0 := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	if _, ok := cs.Swap(key, map[string]uint64{"in": 100}, t0); ok {
		t.Fatal("first observation must not return a previous snapshot")
	}

	prev, ok := cs.Swap(key, map[string]uint64{"in": 300}, t0.Add(time.Minute))
	if !ok {
		t.Fatal("second observation within window should return previous")
	}
	if prev.Values["in"] != 100 || !prev.At.Equal(t0) {
		t.Errorf("prev = %+v", prev)
	}
}

func TestCounterStore_StaleAndZeroIntervals(t *testing.T) {
	tests := []struct {
		name   string
		gap    time.Duration
		wantOK bool
	}{
		{"zero", 0, false},
		{"backwards", -time.Second, false},
		{"at bound", metrics.MaxRateInterval, true},
		{"stale", metrics.MaxRateInterval + time.Second, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cs := metrics.NewCounterStore()
			key := metrics.CPUKey(3)
			t0 := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
			cs.Swap(key, map[string]uint64{"idle": 1}, t0)

			_, ok := cs.Swap(key, map[string]uint64{"idle": 2}, t0.Add(tc.gap))
			if ok != tc.wantOK {
				t.Errorf("ok = %v, want %v", ok, tc.wantOK)
			}
			// The new values are stored regardless.
			snap, _ := cs.Peek(key)
			if snap.Values["idle"] != 2 {
				t.Errorf("stored idle = %d, want 2", snap.Values["idle"])
			}
		})
	}
}

func TestCounterStore_SwapCopiesValues(t *testing.T) {
	cs := metrics.NewCounterStore()
	key := metrics.InterfaceKey(1, 1)
	vals := map[string]uint64{"in": 5}
	cs.Swap(key, vals, time.Now())
	vals["in"] = 999

	snap, _ := cs.Peek(key)
	if snap.Values["in"] != 5 {
		t.Errorf("store aliased caller map: in = %d", snap.Values["in"])
	}
}

func TestCounterStore_ForgetAndPurge(t *testing.T) {
	cs := metrics.NewCounterStore()
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	cs.Swap(metrics.InterfaceKey(1, 1), nil, now.Add(-2*time.Hour))
	cs.Swap(metrics.InterfaceKey(1, 2), nil, now)
	cs.Swap(metrics.CPUKey(1), nil, now)
	cs.Swap(metrics.CPUKey(2), nil, now)

	if n := cs.Purge(time.Hour, now); n != 1 {
		t.Errorf("Purge removed %d, want 1", n)
	}
	if n := cs.Forget(1); n != 2 {
		t.Errorf("Forget removed %d, want 2", n)
	}
	if cs.Len() != 1 {
		t.Errorf("Len = %d, want 1", cs.Len())
	}
}

func TestCounterStore_ConcurrentSwap(t *testing.T) {
	cs := metrics.NewCounterStore()
	key := metrics.InterfaceKey(9, 1)
	t0 := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		seen = make(map[uint64]int)
	)
	const n = 50
	for i := 1; i <= n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			prev, ok := cs.Swap(key, map[string]uint64{"in": uint64(i)}, t0.Add(time.Duration(i)*time.Millisecond))
			if !ok {
				return
			}
			mu.Lock()
			seen[prev.Values["in"]]++
			mu.Unlock()
		}(i)
	}
	wg.Wait()

	// Every stored value is handed out as "previous" at most once.
	for v, count := range seen {
		if count > 1 {
			t.Errorf("value %d returned as previous %d times", v, count)
		}
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Rates and percentages
// ─────────────────────────────────────────────────────────────────────────────

func TestUtilization(t *testing.T) {
	tests := []struct {
		name           string
		in, out, speed float64
		want           float64
	}{
		{"half", 500e6, 100e6, 1e9, 50},
		{"uses max direction", 1e6, 9e6, 10e6, 90},
		{"clamped high", 5e9, 0, 1e9, 100},
		{"zero speed", 1e6, 1e6, 0, 0},
		{"negative speed", 1e6, 1e6, -1, 0},
		{"nan speed", 1e6, 1e6, math.NaN(), 0},
		{"inf speed", 1e6, 1e6, math.Inf(1), 0},
		{"nan rate", math.NaN(), math.NaN(), 1e9, 0},
		{"negative rates", -5, -5, 1e9, 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := metrics.Utilization(tc.in, tc.out, tc.speed)
			if got != tc.want {
				t.Errorf("Utilization = %v, want %v", got, tc.want)
			}
			if got < 0 || got > 100 || math.IsNaN(got) {
				t.Errorf("out of range: %v", got)
			}
		})
	}
}

func TestEffectiveSpeed(t *testing.T) {
	if got := metrics.EffectiveSpeed(math.MaxUint32, 10000); got != 10e9 {
		t.Errorf("high speed preferred: got %v", got)
	}
	if got := metrics.EffectiveSpeed(100e6, 0); got != 100e6 {
		t.Errorf("legacy speed fallback: got %v", got)
	}
}

func TestPercent(t *testing.T) {
	if got, ok := metrics.UsedFreePercent(300, 700); !ok || got != 30 {
		t.Errorf("UsedFreePercent = %v, %v", got, ok)
	}
	if _, ok := metrics.Percent(5, 0); ok {
		t.Error("zero total must not produce a percentage")
	}
	if _, ok := metrics.Percent(math.NaN(), 10); ok {
		t.Error("NaN part must not produce a percentage")
	}
	if got, _ := metrics.Percent(15, 10); got != 100 {
		t.Errorf("Percent clamped = %v", got)
	}
}

func TestUnitHelpers(t *testing.T) {
	if metrics.KBToBytes(2) != 2048 {
		t.Error("KBToBytes")
	}
	if metrics.TicksToSeconds(12345) != 123.45 {
		t.Error("TicksToSeconds")
	}
	if metrics.PerSecond(10, 0) != 0 {
		t.Error("PerSecond with zero interval")
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Batch
// ─────────────────────────────────────────────────────────────────────────────

func TestBatch_SharedTimestampAndDrops(t *testing.T) {
	at := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	b := metrics.NewBatch(4, "core-sw1", at)
	b.SetVendor("cisco")

	cpu := 12.5
	b.AddOptional(models.MetricCPUUsage, &cpu)
	b.AddOptional(models.MetricMemoryUsage, nil)
	b.Add(models.MetricTemperature, math.NaN())
	b.AddInterface(models.MetricInterfaceInBps, 7, 1e6)

	if b.Len() != 2 {
		t.Fatalf("Len = %d, want 2", b.Len())
	}
	res := b.Result()
	if res.Vendor != "cisco" || res.DeviceName != "core-sw1" {
		t.Errorf("batch = %+v", res)
	}
	for _, s := range res.Samples {
		if !s.CollectedAt.Equal(at) {
			t.Errorf("sample %s stamped %v, want %v", s.MetricType, s.CollectedAt, at)
		}
		if s.DeviceID != 4 {
			t.Errorf("device id = %d", s.DeviceID)
		}
	}
	if s := res.Samples[1]; s.InterfaceID != 7 || s.Unit != "bps" {
		t.Errorf("interface sample = %+v", s)
	}
	if res.Samples[0].InterfaceID != 0 || res.Samples[0].Unit != "percent" {
		t.Errorf("device sample = %+v", res.Samples[0])
	}
}
