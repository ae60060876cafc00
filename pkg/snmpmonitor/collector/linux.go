package collector

import (
	"context"

	"github.com/vpbank/snmp_monitor/pkg/snmpmonitor/poller"
	"github.com/vpbank/snmp_monitor/producer/metrics"
	"github.com/vpbank/snmp_monitor/snmp/registry"
)

// ─────────────────────────────────────────────────────────────────────────────
// linux — UCD-SNMP-MIB (net-snmp)
// ─────────────────────────────────────────────────────────────────────────────

type linux struct{ generic }

var linuxCPUTicks = []struct {
	key      string
	required bool
}{
	{registry.KeyCPURawUser, true},
	{registry.KeyCPURawNice, false},
	{registry.KeyCPURawSystem, true},
	{registry.KeyCPURawIdle, true},
	{registry.KeyCPURawWait, false},
}

func linuxOID(c registry.Category, key string) string {
	return vendorOID(registry.VendorLinux, c, key)
}

// CPU derives busy percent from the raw tick counters:
// (user+nice+system+wait) / (user+nice+system+idle+wait) over the interval
// since the previous poll. The first poll only records state and reports
// nothing. Agents without raw counters fall back to hrProcessorLoad.
func (linux) CPU(ctx context.Context, s poller.Session, st *State) (*float64, error) {
	oids := make([]string, 0, len(linuxCPUTicks))
	for _, t := range linuxCPUTicks {
		oids = append(oids, linuxOID(registry.CategoryCPU, t.key))
	}
	vals, err := s.GetMultiple(ctx, oids)
	if err != nil {
		return nil, err
	}

	ticks := make(map[string]uint64, len(linuxCPUTicks))
	for i, t := range linuxCPUTicks {
		u, ok := vals[oids[i]].Unsigned()
		if !ok {
			if t.required {
				return generic{}.CPU(ctx, s, st)
			}
			continue
		}
		ticks[t.key] = u
	}
	if st == nil || st.Counters == nil {
		return nil, nil
	}

	prev, ok := st.Counters.Swap(metrics.CPUKey(st.DeviceID), ticks, st.Now)
	if !ok {
		return nil, nil
	}
	var busy, total uint64
	for _, t := range linuxCPUTicks {
		cur, okCur := ticks[t.key]
		old, okOld := prev.Values[t.key]
		if !okCur || !okOld {
			continue
		}
		d, ok := metrics.TickDelta(old, cur)
		if !ok {
			// The agent restarted; wait for the next interval.
			return nil, nil
		}
		total += d
		if t.key != registry.KeyCPURawIdle {
			busy += d
		}
	}
	pct, ok := metrics.Percent(float64(busy), float64(total))
	if !ok {
		return nil, nil
	}
	return ptr(pct), nil
}

// Memory prefers the kernel's own available estimate (memSysAvail) and
// otherwise subtracts free, buffers and cache from total.
func (linux) Memory(ctx context.Context, s poller.Session, st *State) (*float64, error) {
	keys := []string{registry.KeyMemTotal, registry.KeyMemAvail, registry.KeyMemBuffers, registry.KeyMemCached, registry.KeyMemSysAvail}
	oids := make([]string, len(keys))
	for i, k := range keys {
		oids[i] = linuxOID(registry.CategoryMemory, k)
	}
	vals, err := s.GetMultiple(ctx, oids)
	if err != nil {
		return nil, err
	}
	get := func(i int) (float64, bool) { return vals[oids[i]].Float() }

	total, ok := get(0)
	if !ok || total <= 0 {
		return generic{}.Memory(ctx, s, st)
	}
	if sysAvail, ok := get(4); ok && sysAvail > 0 {
		if pct, ok := metrics.Percent(total-sysAvail, total); ok {
			return ptr(pct), nil
		}
	}
	free, ok := get(1)
	if !ok {
		return nil, nil
	}
	buffers, _ := get(2)
	cached, _ := get(3)
	used := total - free - buffers - cached
	if used < 0 {
		used = 0
	}
	pct, ok := metrics.Percent(used, total)
	if !ok {
		return nil, nil
	}
	return ptr(pct), nil
}

func (linux) Swap(ctx context.Context, s poller.Session, st *State) (*float64, error) {
	totalOID := linuxOID(registry.CategoryMemory, registry.KeySwapTotal)
	availOID := linuxOID(registry.CategoryMemory, registry.KeySwapAvail)
	vals, err := s.GetMultiple(ctx, []string{totalOID, availOID})
	if err != nil {
		return nil, err
	}
	total, ok := vals[totalOID].Float()
	if !ok {
		return generic{}.Swap(ctx, s, st)
	}
	avail, ok := vals[availOID].Float()
	if !ok {
		return nil, nil
	}
	pct, ok := metrics.Percent(total-avail, total)
	if !ok {
		return nil, nil
	}
	return ptr(pct), nil
}

// Disk is the fullest dskTable entry.
func (linux) Disk(ctx context.Context, s poller.Session, st *State) (*float64, error) {
	return firstOf(
		func() (*float64, error) {
			return tableMax(ctx, s, linuxOID(registry.CategoryStorage, registry.KeyDiskPercent), false)
		},
		func() (*float64, error) { return generic{}.Disk(ctx, s, st) },
	)
}

// Load is the one-minute load average, published as a string.
func (linux) Load(ctx context.Context, s poller.Session, _ *State) (*float64, error) {
	return optionalScalar(ctx, s, linuxOID(registry.CategorySystem, registry.KeyLoad1))
}

// Temperature converts lm-sensors millidegrees.
func (linux) Temperature(ctx context.Context, s poller.Session, st *State) (*float64, error) {
	v, err := tableMax(ctx, s, linuxOID(registry.CategoryEnvironment, registry.KeyTemperature), true)
	if err != nil {
		return nil, err
	}
	if v == nil {
		return generic{}.Temperature(ctx, s, st)
	}
	return ptr(*v / 1000), nil
}
