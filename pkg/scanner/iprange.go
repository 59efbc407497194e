package scanner

import (
	"encoding/binary"
	"fmt"
	"net"
	"strings"
)

// Range is either a dotted-decimal start-end pair or a CIDR block. Exactly
// one form must be populated.
type Range struct {
	Start string
	End   string
	CIDR  string
}

func ipToUint32(ip net.IP) (uint32, error) {
	v4 := ip.To4()
	if v4 == nil {
		return 0, fmt.Errorf("not an IPv4 address: %s", ip)
	}
	return binary.BigEndian.Uint32(v4), nil
}

func uint32ToIP(n uint32) net.IP {
	ip := make(net.IP, 4)
	binary.BigEndian.PutUint32(ip, n)
	return ip
}

// Expand enumerates every address in the range as dotted-decimal strings,
// in ascending order. It does not enforce any size cap — callers check
// the resulting length against MaxIPs before committing to a scan.
func (r Range) Expand() ([]string, error) {
	if r.CIDR != "" {
		return expandCIDR(r.CIDR)
	}
	return expandStartEnd(r.Start, r.End)
}

func expandStartEnd(start, end string) ([]string, error) {
	startIP := net.ParseIP(strings.TrimSpace(start))
	if startIP == nil {
		return nil, fmt.Errorf("invalid start address: %s", start)
	}
	endIP := net.ParseIP(strings.TrimSpace(end))
	if endIP == nil {
		return nil, fmt.Errorf("invalid end address: %s", end)
	}

	startN, err := ipToUint32(startIP)
	if err != nil {
		return nil, err
	}
	endN, err := ipToUint32(endIP)
	if err != nil {
		return nil, err
	}
	if endN < startN {
		return nil, fmt.Errorf("range end %s precedes start %s", end, start)
	}

	out := make([]string, 0, endN-startN+1)
	for n := startN; n <= endN; n++ {
		out = append(out, uint32ToIP(n).String())
		if n == endN {
			break // avoid uint32 wraparound when endN == math.MaxUint32
		}
	}
	return out, nil
}

func expandCIDR(cidr string) ([]string, error) {
	_, ipNet, err := net.ParseCIDR(strings.TrimSpace(cidr))
	if err != nil {
		return nil, fmt.Errorf("invalid CIDR: %w", err)
	}

	startN, err := ipToUint32(ipNet.IP)
	if err != nil {
		return nil, err
	}
	ones, bits := ipNet.Mask.Size()
	if bits != 32 {
		return nil, fmt.Errorf("only IPv4 CIDR blocks are supported: %s", cidr)
	}
	hostBits := uint(32 - ones)
	size := uint32(1) << hostBits
	endN := startN + size - 1

	out := make([]string, 0, size)
	for n := startN; ; n++ {
		out = append(out, uint32ToIP(n).String())
		if n == endN {
			break
		}
	}
	return out, nil
}
