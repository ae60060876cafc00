package registry

// Vendor is a fixed enumeration of vendor tags. Unknown tags are treated as
// VendorGeneric by every consumer.
type Vendor string

const (
	VendorCisco    Vendor = "cisco"
	VendorJuniper  Vendor = "juniper"
	VendorHuawei   Vendor = "huawei"
	VendorH3C      Vendor = "h3c"
	VendorArista   Vendor = "arista"
	VendorFortinet Vendor = "fortinet"
	VendorPaloAlto Vendor = "paloalto"
	VendorMikrotik Vendor = "mikrotik"
	VendorHPE      Vendor = "hpe"
	VendorDell     Vendor = "dell"
	VendorUbiquiti Vendor = "ubiquiti"
	VendorLinux    Vendor = "linux"
	VendorWindows  Vendor = "windows"
	VendorGeneric  Vendor = "generic"
)

// Vendors lists every known tag.
var Vendors = []Vendor{
	VendorCisco, VendorJuniper, VendorHuawei, VendorH3C, VendorArista,
	VendorFortinet, VendorPaloAlto, VendorMikrotik, VendorHPE, VendorDell,
	VendorUbiquiti, VendorLinux, VendorWindows, VendorGeneric,
}

// Known reports whether v is one of Vendors.
func (v Vendor) Known() bool {
	for _, k := range Vendors {
		if k == v {
			return true
		}
	}
	return false
}

// Category groups vendor OIDs by the thing they measure.
type Category string

const (
	CategoryCPU         Category = "cpu"
	CategoryMemory      Category = "memory"
	CategoryEnvironment Category = "environment"
	CategoryStorage     Category = "storage"
	CategorySystem      Category = "system"
)

// OID map keys shared across vendors.
const (
	KeyCPU5Min       = "cpu_5min"
	KeyCPUUsage      = "cpu_usage"
	KeyCPURawUser    = "cpu_raw_user"
	KeyCPURawNice    = "cpu_raw_nice"
	KeyCPURawSystem  = "cpu_raw_system"
	KeyCPURawIdle    = "cpu_raw_idle"
	KeyCPURawWait    = "cpu_raw_wait"
	KeyProcessorLoad = "processor_load"

	KeyMemUsed      = "mem_used"
	KeyMemFree      = "mem_free"
	KeyMemTotal     = "mem_total"
	KeyMemPercent   = "mem_percent"
	KeyMemAvail     = "mem_avail"
	KeyMemBuffers   = "mem_buffers"
	KeyMemCached    = "mem_cached"
	KeyMemSysAvail  = "mem_sys_avail"
	KeySwapTotal    = "swap_total"
	KeySwapAvail    = "swap_avail"
	KeyStorageType  = "storage_type"
	KeyStorageDescr = "storage_descr"
	KeyStorageUnits = "storage_units"
	KeyStorageSize  = "storage_size"
	KeyStorageUsed  = "storage_used"
	KeyDiskPercent  = "disk_percent"
	KeyDiskPath     = "disk_path"

	KeyTemperature = "temperature"
	KeySensorType  = "sensor_type"
	KeySensorValue = "sensor_value"

	KeyLoad1     = "load_1"
	KeyTCPEstab  = "tcp_established"
	KeyProcesses = "processes"
	KeySessions  = "sessions"
)

var hrStorage = map[string]string{
	KeyStorageType:  OIDHrStorageType,
	KeyStorageDescr: OIDHrStorageDescr,
	KeyStorageUnits: OIDHrStorageAllocUnits,
	KeyStorageSize:  OIDHrStorageSize,
	KeyStorageUsed:  OIDHrStorageUsed,
}

// vendorOIDs maps vendor → category → named OIDs. Table columns are given
// without an instance; scalars carry their ".0".
var vendorOIDs = map[Vendor]map[Category]map[string]string{
	VendorGeneric: {
		CategoryCPU:     {KeyProcessorLoad: OIDHrProcessorLoad},
		CategoryMemory:  hrStorage,
		CategoryStorage: hrStorage,
		CategoryEnvironment: {
			KeySensorType:  OIDEntPhySensorType,
			KeySensorValue: OIDEntPhySensorValue,
		},
		CategorySystem: {
			KeyTCPEstab:  OIDTCPCurrEstab,
			KeyProcesses: OIDHrSystemProcesses,
		},
	},

	VendorCisco: {
		CategoryCPU: {
			KeyCPU5Min: "1.3.6.1.4.1.9.9.109.1.1.1.1.8", // cpmCPUTotal5minRev
		},
		CategoryMemory: {
			KeyMemUsed: "1.3.6.1.4.1.9.9.48.1.1.1.5", // ciscoMemoryPoolUsed
			KeyMemFree: "1.3.6.1.4.1.9.9.48.1.1.1.6", // ciscoMemoryPoolFree
		},
		CategoryEnvironment: {
			KeyTemperature: "1.3.6.1.4.1.9.9.13.1.3.1.3", // ciscoEnvMonTemperatureStatusValue
		},
	},

	VendorJuniper: {
		CategoryCPU: {
			KeyCPUUsage: "1.3.6.1.4.1.2636.3.1.13.1.8", // jnxOperatingCPU
		},
		CategoryMemory: {
			KeyMemPercent: "1.3.6.1.4.1.2636.3.1.13.1.11", // jnxOperatingBuffer
		},
		CategoryEnvironment: {
			KeyTemperature: "1.3.6.1.4.1.2636.3.1.13.1.7", // jnxOperatingTemp
		},
	},

	VendorHuawei: {
		CategoryCPU: {
			KeyCPUUsage: "1.3.6.1.4.1.2011.5.25.31.1.1.1.1.5", // hwEntityCpuUsage
		},
		CategoryMemory: {
			KeyMemPercent: "1.3.6.1.4.1.2011.5.25.31.1.1.1.1.7", // hwEntityMemUsage
		},
		CategoryEnvironment: {
			KeyTemperature: "1.3.6.1.4.1.2011.5.25.31.1.1.1.1.11", // hwEntityTemperature
		},
	},

	VendorH3C: {
		CategoryCPU: {
			KeyCPUUsage: "1.3.6.1.4.1.25506.2.6.1.1.1.1.6", // hh3cEntityExtCpuUsage
		},
		CategoryMemory: {
			KeyMemPercent: "1.3.6.1.4.1.25506.2.6.1.1.1.1.8", // hh3cEntityExtMemUsage
		},
		CategoryEnvironment: {
			KeyTemperature: "1.3.6.1.4.1.25506.2.6.1.1.1.1.12", // hh3cEntityExtTemperature
		},
	},

	VendorFortinet: {
		CategoryCPU: {
			KeyCPUUsage: "1.3.6.1.4.1.12356.101.4.1.3.0", // fgSysCpuUsage
		},
		CategoryMemory: {
			KeyMemPercent: "1.3.6.1.4.1.12356.101.4.1.4.0", // fgSysMemUsage
		},
		CategorySystem: {
			KeySessions: "1.3.6.1.4.1.12356.101.4.1.8.0", // fgSysSesCount
		},
	},

	VendorPaloAlto: {
		CategoryCPU: {KeyProcessorLoad: OIDHrProcessorLoad},
		CategorySystem: {
			KeySessions: "1.3.6.1.4.1.25461.2.1.2.3.3.0", // panSessionActive
		},
	},

	VendorMikrotik: {
		CategoryEnvironment: {
			KeyTemperature: "1.3.6.1.4.1.14988.1.1.3.10.0", // mtxrHlTemperature, tenths of a degree
		},
	},

	VendorHPE: {
		CategoryCPU: {
			KeyCPUUsage: "1.3.6.1.4.1.11.2.14.11.5.1.9.6.1.0", // hpSwitchCpuStat
		},
		CategoryMemory: {
			KeyMemTotal: "1.3.6.1.4.1.11.2.14.11.5.1.1.2.1.1.1.5", // hpLocalMemTotalBytes
			KeyMemFree:  "1.3.6.1.4.1.11.2.14.11.5.1.1.2.1.1.1.6", // hpLocalMemFreeBytes
		},
	},

	VendorLinux: {
		CategoryCPU: {
			KeyCPURawUser:    OIDSsCPURawUser,
			KeyCPURawNice:    OIDSsCPURawNice,
			KeyCPURawSystem:  OIDSsCPURawSystem,
			KeyCPURawIdle:    OIDSsCPURawIdle,
			KeyCPURawWait:    OIDSsCPURawWait,
			KeyProcessorLoad: OIDHrProcessorLoad,
		},
		CategoryMemory: {
			KeyMemTotal:    OIDMemTotalReal,
			KeyMemAvail:    OIDMemAvailReal,
			KeyMemBuffers:  OIDMemBuffer,
			KeyMemCached:   OIDMemCached,
			KeyMemSysAvail: OIDMemSysAvail,
			KeySwapTotal:   OIDMemTotalSwap,
			KeySwapAvail:   OIDMemAvailSwap,
		},
		CategoryStorage: {
			KeyDiskPath:    OIDDskPath,
			KeyDiskPercent: OIDDskPercent,
		},
		CategoryEnvironment: {
			KeyTemperature: OIDLmTempSensorsValue, // millidegrees
		},
		CategorySystem: {
			KeyLoad1:     OIDLaLoad1,
			KeyTCPEstab:  OIDTCPCurrEstab,
			KeyProcesses: OIDHrSystemProcesses,
		},
	},
}

// OIDsFor returns the named OID map of vendor for category. A vendor without
// an entry for the category falls back to the generic map; nil means the
// metric is unsupported on the device.
func OIDsFor(vendor Vendor, category Category) map[string]string {
	if byCat, ok := vendorOIDs[vendor]; ok {
		if m, ok := byCat[category]; ok {
			return m
		}
	}
	if m, ok := vendorOIDs[VendorGeneric][category]; ok {
		return m
	}
	return nil
}

// OID looks up a single named OID, with the same fallback as OIDsFor.
func OID(vendor Vendor, category Category, key string) (string, bool) {
	m := OIDsFor(vendor, category)
	if m == nil {
		return "", false
	}
	oid, ok := m[key]
	return oid, ok
}
