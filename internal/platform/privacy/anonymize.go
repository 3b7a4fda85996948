// Package privacy reduces request metadata to forms that no longer identify a
// person, for audit details and logs.
package privacy

import "net/netip"

// Prefix lengths kept by AnonymizeIP. An IPv4 /24 is shared by up to 256
// hosts; an IPv6 /48 is a site allocation.
const (
	ipv4PrefixBits = 24
	ipv6PrefixBits = 48
)

// AnonymizeIP returns the network prefix of ip with the host bits zeroed, in
// canonical form: "192.168.1.47" becomes "192.168.1.0" and
// "2001:db8:85a3::8a2e:370:7334" becomes "2001:db8:85a3::". IPv4-mapped IPv6
// addresses are treated as IPv4 and zones are dropped.
//
// Empty input yields "unknown"; anything unparseable yields "invalid".
func AnonymizeIP(ip string) string {
	if ip == "" || ip == "unknown" {
		return "unknown"
	}
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return "invalid"
	}
	addr = addr.Unmap().WithZone("")

	bits := ipv6PrefixBits
	if addr.Is4() {
		bits = ipv4PrefixBits
	}
	prefix, err := addr.Prefix(bits)
	if err != nil {
		return "invalid"
	}
	return prefix.Addr().String()
}
