package registry

import (
	"regexp"
	"strings"
)

// DeviceClass is the coarse role of a device.
type DeviceClass string

const (
	ClassRouter   DeviceClass = "router"
	ClassSwitch   DeviceClass = "switch"
	ClassFirewall DeviceClass = "firewall"
	ClassServer   DeviceClass = "server"
	ClassWireless DeviceClass = "wireless"
	ClassOther    DeviceClass = "other"
)

// VendorInfo is the result of classifying a sysDescr.
type VendorInfo struct {
	Vendor Vendor
	Class  DeviceClass
	Model  string
}

// rule maps a case-insensitive pattern to a vendor. model, when set, must
// have one capture group that extracts the hardware model.
type rule struct {
	pattern *regexp.Regexp
	vendor  Vendor
	class   DeviceClass
	model   *regexp.Regexp
}

func newRule(pattern string, vendor Vendor, class DeviceClass, model string) rule {
	r := rule{
		pattern: regexp.MustCompile("(?i)" + pattern),
		vendor:  vendor,
		class:   class,
	}
	if model != "" {
		r.model = regexp.MustCompile("(?i)" + model)
	}
	return r
}

// rules is evaluated in order; the first match wins, so specific patterns
// precede the vendor catch-alls (and Ubiquiti precedes Linux, whose name
// appears in EdgeOS descriptions).
var rules = []rule{
	newRule(`cisco adaptive security|\basa\b`, VendorCisco, ClassFirewall, `(ASA\s?\d+\S*)`),
	newRule(`cisco.*(nx-os|nexus)`, VendorCisco, ClassSwitch, `(nexus\s?\d+\S*)`),
	newRule(`cisco.*(catalyst|\bc(29|35|36|37|38|45|65|92|93|94|95)[0-9]{2}|cat[0-9]{4})`, VendorCisco, ClassSwitch, `,\s*(\S+) Software`),
	newRule(`cisco`, VendorCisco, ClassRouter, `,\s*(\S+) Software`),
	newRule(`juniper.*\bsrx|junos.*\bsrx`, VendorJuniper, ClassFirewall, `\b(srx\d+\S*)`),
	newRule(`juniper.*\b(ex|qfx)[0-9]`, VendorJuniper, ClassSwitch, `\b((?:ex|qfx)\d+\S*)`),
	newRule(`juniper|junos`, VendorJuniper, ClassRouter, `inc\.\s+(\S+)`),
	newRule(`huawei.*(usg|eudemon)`, VendorHuawei, ClassFirewall, `\b((?:usg|eudemon)\S*)`),
	newRule(`huawei|\bvrp\b`, VendorHuawei, ClassSwitch, `\b((?:s|ce|ar|ne)\d{3,5}[a-z0-9-]*)`),
	newRule(`\bh3c\b|comware`, VendorH3C, ClassSwitch, `h3c\s+(\S+)`),
	newRule(`arista`, VendorArista, ClassSwitch, `\b(dcs-\S+)`),
	newRule(`fortigate|fortinet|fortios`, VendorFortinet, ClassFirewall, `(fortigate-\S+)`),
	newRule(`palo alto|pan-os`, VendorPaloAlto, ClassFirewall, `\b(pa-\d+\S*)`),
	newRule(`routeros|mikrotik`, VendorMikrotik, ClassRouter, `routeros\s+(\S+)`),
	newRule(`procurve|aruba|hewlett[- ]packard|\bhpe\b`, VendorHPE, ClassSwitch, `\b(j\d{4}[a-z])`),
	newRule(`dell.*(networking|force10|powerconnect)|\bos10\b`, VendorDell, ClassSwitch, `\b(s\d{4}\S*)`),
	newRule(`idrac|dell`, VendorDell, ClassServer, ``),
	newRule(`ubiquiti|unifi|edgeos|edgeswitch`, VendorUbiquiti, ClassWireless, ``),
	newRule(`windows`, VendorWindows, ClassServer, ``),
	newRule(`linux|freebsd|openbsd|sunos`, VendorLinux, ClassServer, ``),
}

// ResolveVendor classifies a device from its sysDescr. Empty or unmatched
// descriptions resolve to {generic, other}.
func ResolveVendor(sysDescr string) VendorInfo {
	descr := strings.TrimSpace(sysDescr)
	if descr == "" {
		return VendorInfo{Vendor: VendorGeneric, Class: ClassOther}
	}
	for _, r := range rules {
		if !r.pattern.MatchString(descr) {
			continue
		}
		info := VendorInfo{Vendor: r.vendor, Class: r.class}
		if r.model != nil {
			if m := r.model.FindStringSubmatch(descr); len(m) > 1 {
				info.Model = strings.TrimRight(m[1], ",;")
			}
		}
		return info
	}
	return VendorInfo{Vendor: VendorGeneric, Class: ClassOther}
}
