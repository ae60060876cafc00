package collector

import (
	"context"
	"fmt"
	"strings"

	"github.com/vpbank/snmp_monitor/models"
	"github.com/vpbank/snmp_monitor/pkg/snmpmonitor/poller"
	"github.com/vpbank/snmp_monitor/snmp/decoder"
	"github.com/vpbank/snmp_monitor/snmp/registry"
)

// SystemInfo is the decoded SNMPv2-MIB system group. Empty strings and
// HasUptime=false mean the agent did not return the object.
type SystemInfo struct {
	Descr     string              `json:"sys_descr"`
	ObjectID  string              `json:"sys_object_id,omitempty"`
	Name      string              `json:"sys_name"`
	Location  string              `json:"sys_location,omitempty"`
	Contact   string              `json:"sys_contact,omitempty"`
	Uptime    uint64              `json:"sys_uptime"` // hundredths of a second
	HasUptime bool                `json:"-"`
	Vendor    registry.VendorInfo `json:"vendor"`
}

// readSystemInfo fetches the system group in one request and classifies the
// device from its description.
func readSystemInfo(ctx context.Context, s poller.Session) (SystemInfo, error) {
	vals, err := s.GetMultiple(ctx, registry.SystemInfoOIDs)
	if err != nil {
		return SystemInfo{}, fmt.Errorf("collector: system info: %w", err)
	}
	text := func(oid string) string {
		return strings.TrimSpace(vals[decoder.NormalizeOID(oid)].String())
	}
	info := SystemInfo{
		Descr:    text(registry.OIDSysDescr),
		ObjectID: text(registry.OIDSysObjectID),
		Name:     text(registry.OIDSysName),
		Location: text(registry.OIDSysLocation),
		Contact:  text(registry.OIDSysContact),
	}
	if up, ok := vals[decoder.NormalizeOID(registry.OIDSysUpTime)].Unsigned(); ok {
		info.Uptime, info.HasUptime = up, true
	}
	info.Vendor = registry.ResolveVendor(info.Descr)
	return info, nil
}

// apply copies the fetched fields onto d. Absent fields keep the stored
// value. The vendor is re-detected on every poll; an empty description keeps
// the previous classification.
func (info SystemInfo) apply(d *models.Device) {
	keep := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	keep(&d.SysDescr, info.Descr)
	keep(&d.SysName, info.Name)
	keep(&d.SysLocation, info.Location)
	keep(&d.SysContact, info.Contact)
	if info.HasUptime {
		d.SysUptime = info.Uptime
	}
	if info.Descr != "" {
		d.Vendor = string(info.Vendor.Vendor)
		d.DeviceClass = string(info.Vendor.Class)
		keep(&d.Model, info.Vendor.Model)
	}
	if d.Vendor == "" {
		d.Vendor = string(registry.VendorGeneric)
	}
}

// TestConnection opens a session to t and reads the system group. Nothing is
// persisted.
func (e *Engine) TestConnection(ctx context.Context, t poller.Target) (SystemInfo, error) {
	ctx, cancel := e.withTimeout(ctx)
	defer cancel()

	sess, err := e.dial(ctx, t)
	if err != nil {
		return SystemInfo{}, fmt.Errorf("collector: test connection %s: %w", t, err)
	}
	defer sess.Close()

	info, err := readSystemInfo(ctx, sess)
	if err != nil {
		return SystemInfo{}, err
	}
	if info.Descr == "" && !info.HasUptime {
		return info, fmt.Errorf("collector: test connection %s: agent returned no system information", t)
	}
	return info, nil
}
