package collector

import (
	"context"

	"github.com/vpbank/snmp_monitor/pkg/snmpmonitor/poller"
	"github.com/vpbank/snmp_monitor/producer/metrics"
	"github.com/vpbank/snmp_monitor/snmp/registry"
)

// Vendor strategies embed generic and override what their MIBs do
// differently. OIDs come from the registry so that the tables stay the single
// source of vendor knowledge.

func vendorOID(v registry.Vendor, c registry.Category, key string) string {
	oid, _ := registry.OID(v, c, key)
	return oid
}

// firstOf returns the first non-nil result, stopping at the first error.
func firstOf(fns ...func() (*float64, error)) (*float64, error) {
	for _, fn := range fns {
		v, err := fn()
		if err != nil || v != nil {
			return v, err
		}
	}
	return nil, nil
}

// firstRow walks oid and returns the first numeric cell, skipping zeros when
// asked. Used for vendors that publish one pre-computed percentage per row.
func firstRow(ctx context.Context, s poller.Session, oid string, skipZero bool) (*float64, error) {
	col, err := walkColumn(ctx, s, oid)
	if err != nil {
		return nil, err
	}
	for _, row := range col.rows {
		v := col.values[row]
		if skipZero && v == 0 {
			continue
		}
		return ptr(v), nil
	}
	return nil, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Cisco
// ─────────────────────────────────────────────────────────────────────────────

type cisco struct{ generic }

// CPU reads cpmCPUTotal5minRev directly.
func (cisco) CPU(ctx context.Context, s poller.Session, st *State) (*float64, error) {
	return firstOf(
		func() (*float64, error) {
			return firstRow(ctx, s, vendorOID(registry.VendorCisco, registry.CategoryCPU, registry.KeyCPU5Min), false)
		},
		func() (*float64, error) { return generic{}.CPU(ctx, s, st) },
	)
}

// Memory uses the processor memory pool: used / (used + free).
func (cisco) Memory(ctx context.Context, s poller.Session, st *State) (*float64, error) {
	used, err := walkColumn(ctx, s, vendorOID(registry.VendorCisco, registry.CategoryMemory, registry.KeyMemUsed))
	if err != nil {
		return nil, err
	}
	if len(used.rows) == 0 {
		return generic{}.Memory(ctx, s, st)
	}
	free, err := walkColumn(ctx, s, vendorOID(registry.VendorCisco, registry.CategoryMemory, registry.KeyMemFree))
	if err != nil {
		return nil, err
	}
	row := used.rows[0]
	f, ok := free.values[row]
	if !ok {
		return nil, nil
	}
	pct, ok := metrics.UsedFreePercent(used.values[row], f)
	if !ok {
		return nil, nil
	}
	return ptr(pct), nil
}

// Temperature takes the hottest envmon sensor, falling back to entity
// sensors on platforms without CISCO-ENVMON-MIB.
func (cisco) Temperature(ctx context.Context, s poller.Session, st *State) (*float64, error) {
	return firstOf(
		func() (*float64, error) {
			return tableMax(ctx, s, vendorOID(registry.VendorCisco, registry.CategoryEnvironment, registry.KeyTemperature), true)
		},
		func() (*float64, error) { return generic{}.Temperature(ctx, s, st) },
	)
}

// ─────────────────────────────────────────────────────────────────────────────
// Juniper
// ─────────────────────────────────────────────────────────────────────────────

type juniper struct{ generic }

// CPU is the busiest operating component.
func (juniper) CPU(ctx context.Context, s poller.Session, _ *State) (*float64, error) {
	return tableMax(ctx, s, vendorOID(registry.VendorJuniper, registry.CategoryCPU, registry.KeyCPUUsage), false)
}

// Memory is the highest jnxOperatingBuffer utilisation, already a percentage.
func (juniper) Memory(ctx context.Context, s poller.Session, _ *State) (*float64, error) {
	return tableMax(ctx, s, vendorOID(registry.VendorJuniper, registry.CategoryMemory, registry.KeyMemPercent), false)
}

func (juniper) Temperature(ctx context.Context, s poller.Session, _ *State) (*float64, error) {
	return tableMax(ctx, s, vendorOID(registry.VendorJuniper, registry.CategoryEnvironment, registry.KeyTemperature), true)
}

// ─────────────────────────────────────────────────────────────────────────────
// Huawei and H3C entity extension tables
// ─────────────────────────────────────────────────────────────────────────────

// entityTable reads per-board CPU, memory and temperature columns that
// report 0 for slots without the capability.
type entityTable struct {
	generic
	vendor registry.Vendor
	direct bool // CPU is the first populated board rather than the board average
}

func (e entityTable) CPU(ctx context.Context, s poller.Session, st *State) (*float64, error) {
	oid := vendorOID(e.vendor, registry.CategoryCPU, registry.KeyCPUUsage)
	if e.direct {
		return firstOf(
			func() (*float64, error) { return firstRow(ctx, s, oid, true) },
			func() (*float64, error) { return generic{}.CPU(ctx, s, st) },
		)
	}
	return firstOf(
		func() (*float64, error) { return tableMean(ctx, s, oid, true) },
		func() (*float64, error) { return generic{}.CPU(ctx, s, st) },
	)
}

func (e entityTable) Memory(ctx context.Context, s poller.Session, st *State) (*float64, error) {
	return firstOf(
		func() (*float64, error) {
			return tableMax(ctx, s, vendorOID(e.vendor, registry.CategoryMemory, registry.KeyMemPercent), true)
		},
		func() (*float64, error) { return generic{}.Memory(ctx, s, st) },
	)
}

func (e entityTable) Temperature(ctx context.Context, s poller.Session, _ *State) (*float64, error) {
	return tableMax(ctx, s, vendorOID(e.vendor, registry.CategoryEnvironment, registry.KeyTemperature), true)
}

// ─────────────────────────────────────────────────────────────────────────────
// Arista
// ─────────────────────────────────────────────────────────────────────────────

type arista struct{ generic }

// CPU is the busiest core rather than the average.
func (arista) CPU(ctx context.Context, s poller.Session, _ *State) (*float64, error) {
	return tableMax(ctx, s, registry.OIDHrProcessorLoad, false)
}

// ─────────────────────────────────────────────────────────────────────────────
// Fortinet
// ─────────────────────────────────────────────────────────────────────────────

type fortinet struct{ generic }

func (fortinet) CPU(ctx context.Context, s poller.Session, _ *State) (*float64, error) {
	return optionalScalar(ctx, s, vendorOID(registry.VendorFortinet, registry.CategoryCPU, registry.KeyCPUUsage))
}

func (fortinet) Memory(ctx context.Context, s poller.Session, _ *State) (*float64, error) {
	return optionalScalar(ctx, s, vendorOID(registry.VendorFortinet, registry.CategoryMemory, registry.KeyMemPercent))
}

// TCPConnections reports the firewall session count.
func (fortinet) TCPConnections(ctx context.Context, s poller.Session, _ *State) (*float64, error) {
	return optionalScalar(ctx, s, vendorOID(registry.VendorFortinet, registry.CategorySystem, registry.KeySessions))
}

// ─────────────────────────────────────────────────────────────────────────────
// Palo Alto
// ─────────────────────────────────────────────────────────────────────────────

type paloalto struct{ generic }

// CPU reads the management plane load, the first hrProcessorLoad row.
func (paloalto) CPU(ctx context.Context, s poller.Session, _ *State) (*float64, error) {
	return firstRow(ctx, s, vendorOID(registry.VendorPaloAlto, registry.CategoryCPU, registry.KeyProcessorLoad), false)
}

func (paloalto) TCPConnections(ctx context.Context, s poller.Session, st *State) (*float64, error) {
	return firstOf(
		func() (*float64, error) {
			return optionalScalar(ctx, s, vendorOID(registry.VendorPaloAlto, registry.CategorySystem, registry.KeySessions))
		},
		func() (*float64, error) { return generic{}.TCPConnections(ctx, s, st) },
	)
}

// ─────────────────────────────────────────────────────────────────────────────
// MikroTik
// ─────────────────────────────────────────────────────────────────────────────

type mikrotik struct{ generic }

// Temperature is published in tenths of a degree.
func (mikrotik) Temperature(ctx context.Context, s poller.Session, st *State) (*float64, error) {
	v, ok, err := scalar(ctx, s, vendorOID(registry.VendorMikrotik, registry.CategoryEnvironment, registry.KeyTemperature))
	if err != nil {
		return nil, err
	}
	if !ok {
		return generic{}.Temperature(ctx, s, st)
	}
	return ptr(v / 10), nil
}

// ─────────────────────────────────────────────────────────────────────────────
// HPE / Aruba
// ─────────────────────────────────────────────────────────────────────────────

type hpe struct{ generic }

func (hpe) CPU(ctx context.Context, s poller.Session, st *State) (*float64, error) {
	return firstOf(
		func() (*float64, error) {
			return optionalScalar(ctx, s, vendorOID(registry.VendorHPE, registry.CategoryCPU, registry.KeyCPUUsage))
		},
		func() (*float64, error) { return generic{}.CPU(ctx, s, st) },
	)
}

// Memory sums the local memory table: (total - free) / total.
func (hpe) Memory(ctx context.Context, s poller.Session, st *State) (*float64, error) {
	total, ok, err := sumColumn(ctx, s, vendorOID(registry.VendorHPE, registry.CategoryMemory, registry.KeyMemTotal))
	if err != nil {
		return nil, err
	}
	if !ok {
		return generic{}.Memory(ctx, s, st)
	}
	free, ok, err := sumColumn(ctx, s, vendorOID(registry.VendorHPE, registry.CategoryMemory, registry.KeyMemFree))
	if err != nil || !ok {
		return nil, err
	}
	pct, ok := metrics.Percent(total-free, total)
	if !ok {
		return nil, nil
	}
	return ptr(pct), nil
}
