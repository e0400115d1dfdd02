// Package enrichment resolves the network origin of a submission with a
// best-effort external lookup.
package enrichment

import (
	"context"
	"net"
	"strings"
)

// Origin is what is known about the address a submission came from. Only IP
// is guaranteed; the rest is empty unless a lookup resolved it.
type Origin struct {
	IP       string `json:"ip"`
	Hostname string `json:"hostname,omitempty"`
	Org      string `json:"org,omitempty"`
	City     string `json:"city,omitempty"`
	Region   string `json:"region,omitempty"`
	Country  string `json:"country,omitempty"`
	Postal   string `json:"postal,omitempty"`
	Timezone string `json:"timezone,omitempty"`
	Resolved bool   `json:"resolved"`
}

// AddressOnly returns the degraded origin carrying just the client address
func AddressOnly(clientAddr string) Origin {
	return Origin{IP: clientAddr}
}

// Lookuper resolves an IP address to an Origin
type Lookuper interface {
	Lookup(ctx context.Context, ip string) (*Origin, error)
}

// Cache stores resolved origins keyed by IP. Implementations return as
// soon as ctx is done; a miss is reported for anything that fails.
type Cache interface {
	Get(ctx context.Context, ip string) (*Origin, bool)
	Set(ctx context.Context, ip string, origin *Origin)
}

// NormalizeAddr strips a port and brackets from addr and returns the bare IP
// text, or "" when addr is not an IP address.
func NormalizeAddr(addr string) string {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return ""
	}
	if host, _, err := net.SplitHostPort(addr); err == nil {
		addr = host
	}
	addr = strings.Trim(addr, "[]")
	ip := net.ParseIP(addr)
	if ip == nil {
		return ""
	}
	return ip.String()
}

// IsPublic reports whether ip is worth looking up. Loopback, private,
// link-local and unspecified addresses are not.
func IsPublic(ip string) bool {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return false
	}
	return !(parsed.IsLoopback() || parsed.IsPrivate() || parsed.IsLinkLocalUnicast() ||
		parsed.IsLinkLocalMulticast() || parsed.IsUnspecified())
}
