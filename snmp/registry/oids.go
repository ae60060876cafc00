// Package registry holds the static SNMP knowledge of the monitor: standard
// MIB-II / IF-MIB / HOST-RESOURCES / UCD-SNMP object identifiers, per-vendor
// OID maps, and the rules that classify a device from its sysDescr.
package registry

// ─────────────────────────────────────────────────────────────────────────────
// SNMPv2-MIB system group (scalars, ".0" instance included)
// ─────────────────────────────────────────────────────────────────────────────

const (
	OIDSysDescr    = "1.3.6.1.2.1.1.1.0"
	OIDSysObjectID = "1.3.6.1.2.1.1.2.0"
	OIDSysUpTime   = "1.3.6.1.2.1.1.3.0"
	OIDSysContact  = "1.3.6.1.2.1.1.4.0"
	OIDSysName     = "1.3.6.1.2.1.1.5.0"
	OIDSysLocation = "1.3.6.1.2.1.1.6.0"
)

// SystemInfoOIDs is requested in a single GetMultiple on every poll.
var SystemInfoOIDs = []string{
	OIDSysDescr,
	OIDSysObjectID,
	OIDSysUpTime,
	OIDSysContact,
	OIDSysName,
	OIDSysLocation,
}

// ─────────────────────────────────────────────────────────────────────────────
// IF-MIB columns (table roots, append ".<ifIndex>")
// ─────────────────────────────────────────────────────────────────────────────

const (
	OIDIfDescr       = "1.3.6.1.2.1.2.2.1.2"
	OIDIfType        = "1.3.6.1.2.1.2.2.1.3"
	OIDIfSpeed       = "1.3.6.1.2.1.2.2.1.5"
	OIDIfPhysAddress = "1.3.6.1.2.1.2.2.1.6"
	OIDIfAdminStatus = "1.3.6.1.2.1.2.2.1.7"
	OIDIfOperStatus  = "1.3.6.1.2.1.2.2.1.8"
	OIDIfInOctets    = "1.3.6.1.2.1.2.2.1.10"
	OIDIfInErrors    = "1.3.6.1.2.1.2.2.1.14"
	OIDIfOutOctets   = "1.3.6.1.2.1.2.2.1.16"
	OIDIfOutErrors   = "1.3.6.1.2.1.2.2.1.20"

	OIDIfName        = "1.3.6.1.2.1.31.1.1.1.1"
	OIDIfHCInOctets  = "1.3.6.1.2.1.31.1.1.1.6"
	OIDIfHCOutOctets = "1.3.6.1.2.1.31.1.1.1.10"
	OIDIfHighSpeed   = "1.3.6.1.2.1.31.1.1.1.15"
	OIDIfAlias       = "1.3.6.1.2.1.31.1.1.1.18"
)

// CounterOIDs names the octet counter columns used for traffic rates.
type CounterOIDs struct {
	InOctets     string
	OutOctets    string
	HighCapacity bool // 64-bit ifXTable counters
}

// InterfaceCounters returns the octet counter columns to poll. 64-bit
// counters are preferred whenever the device supports them: a 32-bit octet
// counter wraps in about 34 seconds at 1 Gbit/s.
func InterfaceCounters(highCapacity bool) CounterOIDs {
	if highCapacity {
		return CounterOIDs{InOctets: OIDIfHCInOctets, OutOctets: OIDIfHCOutOctets, HighCapacity: true}
	}
	return CounterOIDs{InOctets: OIDIfInOctets, OutOctets: OIDIfOutOctets}
}

// DiscoveryColumns is walked by interface discovery.
var DiscoveryColumns = []string{
	OIDIfDescr,
	OIDIfName,
	OIDIfAlias,
	OIDIfPhysAddress,
	OIDIfSpeed,
	OIDIfHighSpeed,
	OIDIfAdminStatus,
	OIDIfOperStatus,
}

// ─────────────────────────────────────────────────────────────────────────────
// HOST-RESOURCES-MIB, TCP-MIB, ENTITY-SENSOR-MIB
// ─────────────────────────────────────────────────────────────────────────────

const (
	OIDHrSystemProcesses   = "1.3.6.1.2.1.25.1.6.0"
	OIDHrStorageType       = "1.3.6.1.2.1.25.2.3.1.2"
	OIDHrStorageDescr      = "1.3.6.1.2.1.25.2.3.1.3"
	OIDHrStorageAllocUnits = "1.3.6.1.2.1.25.2.3.1.4"
	OIDHrStorageSize       = "1.3.6.1.2.1.25.2.3.1.5"
	OIDHrStorageUsed       = "1.3.6.1.2.1.25.2.3.1.6"
	OIDHrProcessorLoad     = "1.3.6.1.2.1.25.3.3.1.2"
	OIDHrStorageRAM        = "1.3.6.1.2.1.25.2.1.2"
	OIDHrStorageVirtualMem = "1.3.6.1.2.1.25.2.1.3"
	OIDHrStorageFixedDisk  = "1.3.6.1.2.1.25.2.1.4"
	OIDTCPCurrEstab        = "1.3.6.1.2.1.6.9.0"
	OIDEntPhySensorType    = "1.3.6.1.2.1.99.1.1.1.1"
	OIDEntPhySensorValue   = "1.3.6.1.2.1.99.1.1.1.4"
	EntSensorTypeCelsius   = 8
)

// ─────────────────────────────────────────────────────────────────────────────
// UCD-SNMP-MIB (net-snmp agents)
// ─────────────────────────────────────────────────────────────────────────────

const (
	OIDSsCPURawUser   = "1.3.6.1.4.1.2021.11.50.0"
	OIDSsCPURawNice   = "1.3.6.1.4.1.2021.11.51.0"
	OIDSsCPURawSystem = "1.3.6.1.4.1.2021.11.52.0"
	OIDSsCPURawIdle   = "1.3.6.1.4.1.2021.11.53.0"
	OIDSsCPURawWait   = "1.3.6.1.4.1.2021.11.54.0"

	OIDMemTotalSwap = "1.3.6.1.4.1.2021.4.3.0"
	OIDMemAvailSwap = "1.3.6.1.4.1.2021.4.4.0"
	OIDMemTotalReal = "1.3.6.1.4.1.2021.4.5.0"
	OIDMemAvailReal = "1.3.6.1.4.1.2021.4.6.0"
	OIDMemBuffer    = "1.3.6.1.4.1.2021.4.14.0"
	OIDMemCached    = "1.3.6.1.4.1.2021.4.15.0"
	OIDMemSysAvail  = "1.3.6.1.4.1.2021.4.27.0"

	OIDLaLoad1    = "1.3.6.1.4.1.2021.10.1.3.1"
	OIDDskPath    = "1.3.6.1.4.1.2021.9.1.2"
	OIDDskPercent = "1.3.6.1.4.1.2021.9.1.9"

	OIDLmTempSensorsValue = "1.3.6.1.4.1.2021.13.16.2.1.3"
)
