package discovery

import (
	"fmt"
	"net"
	"strings"
)

// PrefixOf reduces an IPv4 address to its subnet prefix: the substring up to
// and including the final '.'.
func PrefixOf(ip string) (Prefix, error) {
	parsed := net.ParseIP(ip)
	if parsed == nil || parsed.To4() == nil || strings.Contains(ip, ":") {
		return "", fmt.Errorf("%w: %q", ErrNotIPv4, ip)
	}
	return Prefix(ip[:strings.LastIndex(ip, ".")+1]), nil
}

// ParsePrefix validates a user supplied prefix such as "10.0.1." and returns
// it as a Prefix. A missing trailing dot is added.
func ParsePrefix(s string) (Prefix, error) {
	if s == "" {
		return "", fmt.Errorf("%w: empty prefix", ErrInvalidHost)
	}
	if !strings.HasSuffix(s, ".") {
		s += "."
	}
	parts := strings.Split(strings.TrimSuffix(s, "."), ".")
	if len(parts) != 3 {
		return "", fmt.Errorf("%w: prefix %q must have three octets", ErrInvalidHost, s)
	}
	if net.ParseIP(s+"0").To4() == nil {
		return "", fmt.Errorf("%w: prefix %q", ErrInvalidHost, s)
	}
	return Prefix(s), nil
}

// SubnetCandidates returns one address per suffix 0..SubnetSize-1.
func SubnetCandidates(prefix Prefix, port uint16) []Address {
	addrs := make([]Address, 0, SubnetSize)
	for i := 0; i < SubnetSize; i++ {
		addrs = append(addrs, Address{Host: prefix.Host(i), Port: port})
	}
	return addrs
}

// SingleCandidate returns the candidate list for an explicitly supplied host.
func SingleCandidate(host string, port uint16) ([]Address, error) {
	host = strings.TrimSpace(host)
	if host == "" {
		return nil, fmt.Errorf("%w: empty host", ErrInvalidHost)
	}
	if strings.ContainsAny(host, "/ ") {
		return nil, fmt.Errorf("%w: %q", ErrInvalidHost, host)
	}
	return []Address{{Host: host, Port: port}}, nil
}

// MergeCandidates returns hints followed by addrs with duplicates removed,
// so hinted hosts are dialed first.
func MergeCandidates(hints, addrs []Address) []Address {
	seen := make(map[Address]bool, len(hints)+len(addrs))
	out := make([]Address, 0, len(hints)+len(addrs))
	for _, list := range [][]Address{hints, addrs} {
		for _, a := range list {
			if seen[a] {
				continue
			}
			seen[a] = true
			out = append(out, a)
		}
	}
	return out
}
