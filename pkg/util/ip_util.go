package util

import (
	"fmt"
	"net/netip"
	"regexp"
)

var ipv4CIDR = regexp.MustCompile(`^([0-9]{1,3}\.){3}[0-9]{1,3}/([0-9]|[1-2][0-9]|3[0-2])$`)

// ParseIpv4CIDR parses an interface address in CIDR form (192.168.0.2/24)
// and rejects anything that is not IPv4.
func ParseIpv4CIDR(s string) (netip.Prefix, error) {
	if !ipv4CIDR.MatchString(s) {
		return netip.Prefix{}, fmt.Errorf("invalid ipv4 cidr %q", s)
	}
	p, err := netip.ParsePrefix(s)
	if err != nil {
		return netip.Prefix{}, fmt.Errorf("invalid ipv4 cidr %q: %v", s, err)
	}
	return p, nil
}

// HostIP strips the prefix length from a CIDR address.
func HostIP(cidr string) string {
	p, err := ParseIpv4CIDR(cidr)
	if err != nil {
		return ""
	}
	return p.Addr().String()
}

// SameSubnet reports whether addr lies inside the subnet of cidr.
func SameSubnet(cidr string, addr string) bool {
	p, err := ParseIpv4CIDR(cidr)
	if err != nil {
		return false
	}
	a, err := netip.ParseAddr(addr)
	if err != nil {
		return false
	}
	return p.Masked().Contains(a)
}
