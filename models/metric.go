// Package models defines the core data structures shared across all layers of
// the SNMP Monitor. The gorm-tagged structs double as the persisted schema;
// nothing here depends on any other internal package.
package models

import "time"

// MetricType tags a sample with the quantity it measures.
type MetricType string

const (
	MetricCPUUsage             MetricType = "cpu_usage"
	MetricMemoryUsage          MetricType = "memory_usage"
	MetricTemperature          MetricType = "temperature"
	MetricDiskUsage            MetricType = "disk_usage"
	MetricLoadAverage          MetricType = "load_average"
	MetricSwapUsage            MetricType = "swap_usage"
	MetricTCPConnections       MetricType = "tcp_connections"
	MetricProcessCount         MetricType = "process_count"
	MetricUptime               MetricType = "uptime"
	MetricInterfaceInBps       MetricType = "interface_in_bps"
	MetricInterfaceOutBps      MetricType = "interface_out_bps"
	MetricInterfaceUtilization MetricType = "interface_utilization"
	MetricInterfaceInErrors    MetricType = "interface_in_errors"
	MetricInterfaceOutErrors   MetricType = "interface_out_errors"

	// MetricConnectivity is synthetic: it is raised on poll failure and never
	// written as a sample.
	MetricConnectivity MetricType = "connectivity"
)

// Unit returns the canonical unit recorded next to a metric's value.
func (m MetricType) Unit() string {
	switch m {
	case MetricCPUUsage, MetricMemoryUsage, MetricDiskUsage, MetricSwapUsage, MetricInterfaceUtilization:
		return "percent"
	case MetricTemperature:
		return "celsius"
	case MetricInterfaceInBps, MetricInterfaceOutBps:
		return "bps"
	case MetricInterfaceInErrors, MetricInterfaceOutErrors:
		return "errors/s"
	case MetricUptime:
		return "seconds"
	case MetricTCPConnections, MetricProcessCount:
		return "count"
	default:
		return ""
	}
}

// Label is the human-readable name used in alarm titles.
func (m MetricType) Label() string {
	switch m {
	case MetricCPUUsage:
		return "CPU usage"
	case MetricMemoryUsage:
		return "Memory usage"
	case MetricTemperature:
		return "Temperature"
	case MetricDiskUsage:
		return "Disk usage"
	case MetricLoadAverage:
		return "Load average"
	case MetricSwapUsage:
		return "Swap usage"
	case MetricTCPConnections:
		return "TCP connections"
	case MetricProcessCount:
		return "Process count"
	case MetricUptime:
		return "Uptime"
	case MetricInterfaceInBps:
		return "Inbound traffic"
	case MetricInterfaceOutBps:
		return "Outbound traffic"
	case MetricInterfaceUtilization:
		return "Bandwidth utilization"
	case MetricInterfaceInErrors:
		return "Inbound errors"
	case MetricInterfaceOutErrors:
		return "Outbound errors"
	case MetricConnectivity:
		return "Connectivity"
	default:
		return string(m)
	}
}

// Sample is one immutable point observation. InterfaceID is 0 for device-level
// metrics so that the aggregate unique keys never contain NULL.
type Sample struct {
	ID          uint       `gorm:"primaryKey" json:"-"`
	DeviceID    uint       `gorm:"not null;index:idx_samples_lookup,priority:1" json:"device_id"`
	InterfaceID uint       `gorm:"not null;default:0;index:idx_samples_lookup,priority:2" json:"interface_id,omitempty"`
	MetricType  MetricType `gorm:"size:40;not null;index:idx_samples_lookup,priority:3" json:"metric_type"`
	Value       float64    `gorm:"not null" json:"value"`
	Unit        string     `gorm:"size:16" json:"unit,omitempty"`
	CollectedAt time.Time  `gorm:"not null;index" json:"collected_at"`
}

func (Sample) TableName() string { return "samples" }

// SampleBatch groups the samples of one poll. Every sample in the batch
// carries the same CollectedAt.
type SampleBatch struct {
	DeviceID    uint      `json:"device_id"`
	DeviceName  string    `json:"device_name"`
	Vendor      string    `json:"vendor,omitempty"`
	CollectedAt time.Time `json:"collected_at"`
	Samples     []Sample  `json:"samples"`
}
