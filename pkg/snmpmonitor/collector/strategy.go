package collector

import (
	"context"
	"math"
	"time"

	"github.com/vpbank/snmp_monitor/pkg/snmpmonitor/poller"
	"github.com/vpbank/snmp_monitor/producer/metrics"
	"github.com/vpbank/snmp_monitor/snmp/registry"
)

// ─────────────────────────────────────────────────────────────────────────────
// Strategy — per-vendor capability set
// ─────────────────────────────────────────────────────────────────────────────

// State is the per-poll context handed to strategies.
type State struct {
	DeviceID uint
	Vendor   registry.Vendor
	Counters *metrics.CounterStore
	Now      time.Time
}

// Strategy collects device-level metrics for one vendor family. Each method
// returns nil when the metric is not available on the device; an error is
// returned only when talking to the agent failed.
type Strategy interface {
	CPU(ctx context.Context, s poller.Session, st *State) (*float64, error)
	Memory(ctx context.Context, s poller.Session, st *State) (*float64, error)
	Temperature(ctx context.Context, s poller.Session, st *State) (*float64, error)
	Disk(ctx context.Context, s poller.Session, st *State) (*float64, error)
	Load(ctx context.Context, s poller.Session, st *State) (*float64, error)
	Swap(ctx context.Context, s poller.Session, st *State) (*float64, error)
	TCPConnections(ctx context.Context, s poller.Session, st *State) (*float64, error)
	ProcessCount(ctx context.Context, s poller.Session, st *State) (*float64, error)
}

// strategies is the fixed vendor dispatch table.
var strategies = map[registry.Vendor]Strategy{
	registry.VendorGeneric:  generic{},
	registry.VendorCisco:    cisco{},
	registry.VendorJuniper:  juniper{},
	registry.VendorHuawei:   entityTable{vendor: registry.VendorHuawei},
	registry.VendorH3C:      entityTable{vendor: registry.VendorH3C, direct: true},
	registry.VendorArista:   arista{},
	registry.VendorFortinet: fortinet{},
	registry.VendorPaloAlto: paloalto{},
	registry.VendorMikrotik: mikrotik{},
	registry.VendorHPE:      hpe{},
	registry.VendorDell:     generic{},
	registry.VendorWindows:  generic{},
	registry.VendorLinux:    linux{},
	registry.VendorUbiquiti: linux{},
}

// StrategyFor returns the strategy of vendor; unknown vendors get the
// generic HOST-RESOURCES strategy.
func StrategyFor(vendor registry.Vendor) Strategy {
	if s, ok := strategies[vendor]; ok {
		return s
	}
	return generic{}
}

// ─────────────────────────────────────────────────────────────────────────────
// generic — HOST-RESOURCES-MIB, TCP-MIB, ENTITY-SENSOR-MIB
// ─────────────────────────────────────────────────────────────────────────────

type generic struct{}

// CPU averages hrProcessorLoad over all processors.
func (generic) CPU(ctx context.Context, s poller.Session, _ *State) (*float64, error) {
	return tableMean(ctx, s, registry.OIDHrProcessorLoad, false)
}

func (generic) Memory(ctx context.Context, s poller.Session, _ *State) (*float64, error) {
	return hrStorageUsage(ctx, s, registry.OIDHrStorageRAM, false)
}

// Temperature returns the hottest celsius entity sensor.
func (generic) Temperature(ctx context.Context, s poller.Session, _ *State) (*float64, error) {
	types, err := walkColumn(ctx, s, registry.OIDEntPhySensorType)
	if err != nil || len(types.rows) == 0 {
		return nil, err
	}
	values, err := walkColumn(ctx, s, registry.OIDEntPhySensorValue)
	if err != nil {
		return nil, err
	}
	var (
		best  = math.Inf(-1)
		found bool
	)
	for _, row := range types.rows {
		if types.values[row] != registry.EntSensorTypeCelsius {
			continue
		}
		if v, ok := values.values[row]; ok && v > best {
			best, found = v, true
		}
	}
	if !found {
		return nil, nil
	}
	return ptr(best), nil
}

// Disk returns the fullest fixed disk.
func (generic) Disk(ctx context.Context, s poller.Session, _ *State) (*float64, error) {
	return hrStorageUsage(ctx, s, registry.OIDHrStorageFixedDisk, true)
}

// Load has no HOST-RESOURCES equivalent.
func (generic) Load(context.Context, poller.Session, *State) (*float64, error) { return nil, nil }

func (generic) Swap(ctx context.Context, s poller.Session, _ *State) (*float64, error) {
	return hrStorageUsage(ctx, s, registry.OIDHrStorageVirtualMem, false)
}

func (generic) TCPConnections(ctx context.Context, s poller.Session, _ *State) (*float64, error) {
	return optionalScalar(ctx, s, registry.OIDTCPCurrEstab)
}

func (generic) ProcessCount(ctx context.Context, s poller.Session, _ *State) (*float64, error) {
	return optionalScalar(ctx, s, registry.OIDHrSystemProcesses)
}

// optionalScalar reads oid as a nullable value.
func optionalScalar(ctx context.Context, s poller.Session, oid string) (*float64, error) {
	v, ok, err := scalar(ctx, s, oid)
	if err != nil || !ok {
		return nil, err
	}
	return ptr(v), nil
}

// hrStorageUsage computes used/size for hrStorage rows of storageType. With
// useMax the fullest row is reported; otherwise rows are summed.
func hrStorageUsage(ctx context.Context, s poller.Session, storageType string, useMax bool) (*float64, error) {
	types, err := walkStrings(ctx, s, registry.OIDHrStorageType)
	if err != nil || len(types) == 0 {
		return nil, err
	}
	var rows []string
	for row, t := range types {
		if sameOID(t, storageType) {
			rows = append(rows, row)
		}
	}
	if len(rows) == 0 {
		return nil, nil
	}

	units, err := walkColumn(ctx, s, registry.OIDHrStorageAllocUnits)
	if err != nil {
		return nil, err
	}
	sizes, err := walkColumn(ctx, s, registry.OIDHrStorageSize)
	if err != nil {
		return nil, err
	}
	used, err := walkColumn(ctx, s, registry.OIDHrStorageUsed)
	if err != nil {
		return nil, err
	}

	var (
		totalSize, totalUsed float64
		best                 = -1.0
	)
	for _, row := range rows {
		unit := units.values[row]
		if unit <= 0 {
			unit = 1
		}
		size, okSize := sizes.values[row]
		u, okUsed := used.values[row]
		if !okSize || !okUsed || size <= 0 {
			continue
		}
		if pct, ok := metrics.Percent(u*unit, size*unit); ok && pct > best {
			best = pct
		}
		totalSize += size * unit
		totalUsed += u * unit
	}
	if useMax {
		if best < 0 {
			return nil, nil
		}
		return ptr(best), nil
	}
	pct, ok := metrics.Percent(totalUsed, totalSize)
	if !ok {
		return nil, nil
	}
	return ptr(pct), nil
}
