// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package protocols

import (
	"net"

	"grimm.is/flywall/internal/netutil"
	"grimm.is/flywall/internal/profile"
)

// Well-known address aliases, carried over from the reference profile
// corpus's fixture devices. A deployment profile may reference any of
// these names in place of a literal address.
var wellKnownMAC = map[string]string{
	"broadcast": "ff:ff:ff:ff:ff:ff",
	"default":   "00:00:00:00:00:00",
}

var wellKnownIPv4 = map[string]string{
	"local":         "192.168.0.0/16",
	"external":      "!= 192.168.0.0/16",
	"broadcast":     "255.255.255.255",
	"udp-broadcast": "192.168.1.255",
	"igmpv3":        "224.0.0.22",
	"igmp-all":      "224.0.0.2",
	"igmp-mdns":     "224.0.0.251",
	"igmp-ssdp":     "239.255.255.250",
	"igmp-coap":     "224.0.1.187",
}

var wellKnownIPv6 = map[string]string{
	"default":             "::",
	"multicast":            "ff02::/16",
	"all-nodes":            "ff02::1",
	"all-routers":          "ff02::2",
	"all-mldv2-routers":    "ff02::16",
	"mdns":                 "ff02::fb",
	"coap":                 "ff02::158",
}

// isIPLiteral reports whether addr is an explicit IP address or CIDR
// network (as opposed to a domain name, which must be matched in
// userspace against the live DNS map).
func isIPLiteral(addr string) bool {
	if addr == "self" {
		return true
	}
	if _, ok := wellKnownIPv4[addr]; ok {
		return true
	}
	if _, ok := wellKnownIPv6[addr]; ok {
		return true
	}
	if net.ParseIP(addr) != nil {
		return true
	}
	if _, _, err := net.ParseCIDR(addr); err == nil {
		return true
	}
	return false
}

func explicitMAC(addr string, dev profile.Device) string {
	if addr == "self" {
		return dev.MAC
	}
	if v, ok := wellKnownMAC[addr]; ok {
		return v
	}
	return normalizeMAC(addr)
}

// normalizeMAC canonicalizes a profile-supplied MAC literal (e.g. upper-
// case or dash-separated) to the lower-case colon-separated form nft
// expects; a value that doesn't parse as a MAC is passed through so a
// wildcard or malformed literal still surfaces as an nft syntax error
// later rather than being silently dropped.
func normalizeMAC(addr string) string {
	hw, err := netutil.ParseMAC(addr)
	if err != nil || len(hw) != 6 {
		return addr
	}
	return netutil.FormatMAC(hw)
}

func explicitIPv4(addr string, dev profile.Device) string {
	if addr == "self" {
		return dev.IPv4
	}
	if v, ok := wellKnownIPv4[addr]; ok {
		return v
	}
	return addr
}

func explicitIPv6(addr string, dev profile.Device) string {
	if addr == "self" {
		return dev.IPv6
	}
	if v, ok := wellKnownIPv6[addr]; ok {
		return v
	}
	return addr
}
