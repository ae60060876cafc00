package models

import "time"

// DeviceStatus is derived after every poll attempt.
type DeviceStatus string

const (
	StatusUp      DeviceStatus = "up"
	StatusDown    DeviceStatus = "down"
	StatusWarning DeviceStatus = "warning"
	StatusUnknown DeviceStatus = "unknown"
)

// Device is a monitored endpoint. The collection engine is the only writer of
// the poll bookkeeping and system fields.
type Device struct {
	ID           uint   `gorm:"primaryKey" json:"id"`
	Name         string `gorm:"size:128;uniqueIndex;not null" json:"name"`
	Address      string `gorm:"size:64;not null" json:"address"`
	Port         int    `gorm:"not null;default:161" json:"port"`
	Version      string `gorm:"size:4;not null;default:2c" json:"version"` // "1", "2c" or "3"
	PollInterval int    `gorm:"not null;default:60" json:"poll_interval"`  // seconds
	Enabled      bool   `gorm:"not null;default:true;index" json:"enabled"`

	LastPollAt *time.Time   `json:"last_poll_at,omitempty"`
	LastPollOK bool         `json:"last_poll_ok"`
	LastError  string       `gorm:"size:512" json:"last_error,omitempty"`
	Status     DeviceStatus `gorm:"size:16;not null;default:unknown" json:"status"`

	Vendor      string `gorm:"size:32" json:"vendor,omitempty"`
	Model       string `gorm:"size:128" json:"model,omitempty"`
	DeviceClass string `gorm:"size:32" json:"device_class,omitempty"`

	SysDescr    string `gorm:"size:1024" json:"sys_descr,omitempty"`
	SysName     string `gorm:"size:255" json:"sys_name,omitempty"`
	SysLocation string `gorm:"size:255" json:"sys_location,omitempty"`
	SysContact  string `gorm:"size:255" json:"sys_contact,omitempty"`
	SysUptime   uint64 `json:"sys_uptime,omitempty"` // hundredths of a second

	Credential *Credential     `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	Interfaces []InterfaceInfo `gorm:"constraint:OnDelete:CASCADE" json:"interfaces,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Device) TableName() string { return "devices" }

// Interval returns the poll interval, defaulting to 60s.
func (d *Device) Interval() time.Duration {
	if d.PollInterval <= 0 {
		return 60 * time.Second
	}
	return time.Duration(d.PollInterval) * time.Second
}

// Due reports whether the device should be polled at now.
func (d *Device) Due(now time.Time) bool {
	if !d.Enabled {
		return false
	}
	if d.LastPollAt == nil {
		return true
	}
	return now.Sub(*d.LastPollAt) >= d.Interval()
}

// Credential holds the secret material for one device. Secret fields hold
// ciphertext produced by the secret box and are decrypted only while a
// session is being built.
type Credential struct {
	ID       uint `gorm:"primaryKey" json:"-"`
	DeviceID uint `gorm:"uniqueIndex;not null" json:"device_id"`

	Community string `gorm:"size:512" json:"-"` // sealed

	Username     string `gorm:"size:128" json:"username,omitempty"`
	AuthProtocol string `gorm:"size:16" json:"auth_protocol,omitempty"`
	AuthKey      string `gorm:"size:512" json:"-"` // sealed
	PrivProtocol string `gorm:"size:16" json:"priv_protocol,omitempty"`
	PrivKey      string `gorm:"size:512" json:"-"` // sealed

	UpdatedAt time.Time `json:"updated_at"`
}

func (Credential) TableName() string { return "device_credentials" }

// InterfaceInfo is one discovered interface. Speed is in bits per second,
// HighSpeed in megabits per second.
type InterfaceInfo struct {
	ID          uint   `gorm:"primaryKey" json:"id"`
	DeviceID    uint   `gorm:"not null;uniqueIndex:idx_iface_device_index,priority:1" json:"device_id"`
	IfIndex     int    `gorm:"not null;uniqueIndex:idx_iface_device_index,priority:2" json:"if_index"`
	Name        string `gorm:"size:128" json:"name"`
	Descr       string `gorm:"size:255" json:"descr,omitempty"`
	Alias       string `gorm:"size:255" json:"alias,omitempty"`
	MAC         string `gorm:"size:64" json:"mac,omitempty"`
	Speed       uint64 `json:"speed"`
	HighSpeed   uint64 `json:"high_speed"`
	AdminStatus int    `json:"admin_status"`
	OperStatus  int    `json:"oper_status"`
	Monitored   bool   `gorm:"not null;default:true" json:"monitored"`

	LastChange *time.Time `json:"last_change,omitempty"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

func (InterfaceInfo) TableName() string { return "interfaces" }

// IF-MIB ifOperStatus / ifAdminStatus values.
const (
	IfStatusUp   = 1
	IfStatusDown = 2
)
