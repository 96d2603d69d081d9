package eval

import (
	"fmt"
	"net"
)

// ContainsAddress reports whether ip falls inside cidr. Parsing is
// non-strict: host bits set in the CIDR literal are masked off rather than
// rejected. Malformed literals surface as errors.
func ContainsAddress(cidr, ip string) (bool, error) {
	_, network, err := net.ParseCIDR(cidr)
	if err != nil {
		return false, fmt.Errorf("parse cidr %q: %w", cidr, err)
	}
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return false, fmt.Errorf("parse address %q", ip)
	}
	return network.Contains(parsed), nil
}

// PortOverlaps reports whether port lies within [from, to], both ends
// inclusive.
func PortOverlaps(port, from, to int) bool {
	return port >= from && port <= to
}

// PortRangeSubset reports whether every port in [srcFrom, srcTo) lies
// within [from, to]. The source side is end-exclusive; an empty source
// range is vacuously a subset.
func PortRangeSubset(srcFrom, srcTo, from, to int) bool {
	if srcFrom >= srcTo {
		return true
	}
	return srcFrom >= from && srcTo-1 <= to
}

func isAllProtocol(p string) bool {
	return p == "all" || p == "-1"
}
