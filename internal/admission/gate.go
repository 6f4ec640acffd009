// Package admission implements the origin allow-list that every request must
// pass before any authentication work runs.
package admission

import (
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync/atomic"
)

// HeaderXForwardedFor is consulted only when the direct peer is a trusted proxy.
const HeaderXForwardedFor = "X-Forwarded-For"

// Gate admits or denies callers by network address. The allow-list can be
// replaced at runtime with Update; readers never block.
type Gate struct {
	allowed atomic.Pointer[netList]
	trusted *netList
}

type netList struct {
	nets []*net.IPNet
}

// NewGate builds a Gate from allowed origins and trusted proxies. Entries may
// be single addresses or CIDRs. An empty allow-list denies every caller.
func NewGate(allowedOrigins, trustedProxies []string) (*Gate, error) {
	allowed, err := parseList(allowedOrigins)
	if err != nil {
		return nil, fmt.Errorf("allowed origins: %w", err)
	}
	trusted, err := parseList(trustedProxies)
	if err != nil {
		return nil, fmt.Errorf("trusted proxies: %w", err)
	}

	g := &Gate{trusted: trusted}
	g.allowed.Store(allowed)
	return g, nil
}

// Update atomically replaces the allow-list.
func (g *Gate) Update(allowedOrigins []string) error {
	allowed, err := parseList(allowedOrigins)
	if err != nil {
		return fmt.Errorf("allowed origins: %w", err)
	}
	g.allowed.Store(allowed)
	return nil
}

// Allow reports whether addr is on the allow-list. Unparseable addresses are denied.
func (g *Gate) Allow(addr string) bool {
	ip := net.ParseIP(addr)
	if ip == nil {
		return false
	}
	return g.allowed.Load().contains(ip)
}

// ClientIP resolves the caller's address. X-Forwarded-For is walked right to
// left only when RemoteAddr belongs to a trusted proxy; the first untrusted hop wins.
func (g *Gate) ClientIP(r *http.Request) string {
	remote := stripPort(r.RemoteAddr)
	if len(g.trusted.nets) == 0 || !g.isTrusted(remote) {
		return remote
	}

	xff := r.Header.Get(HeaderXForwardedFor)
	if xff == "" {
		return remote
	}

	hops := strings.Split(xff, ",")
	for i := len(hops) - 1; i >= 0; i-- {
		hop := strings.TrimSpace(hops[i])
		if hop == "" {
			continue
		}
		if !g.isTrusted(hop) {
			return hop
		}
	}
	return remote
}

func (g *Gate) isTrusted(addr string) bool {
	ip := net.ParseIP(addr)
	return ip != nil && g.trusted.contains(ip)
}

func (l *netList) contains(ip net.IP) bool {
	for _, n := range l.nets {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

func parseList(entries []string) (*netList, error) {
	l := &netList{nets: make([]*net.IPNet, 0, len(entries))}
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if _, cidr, err := net.ParseCIDR(entry); err == nil {
			l.nets = append(l.nets, cidr)
			continue
		}
		ip := net.ParseIP(entry)
		if ip == nil {
			return nil, fmt.Errorf("invalid address or CIDR %q", entry)
		}
		l.nets = append(l.nets, singleIP(ip))
	}
	return l, nil
}

func singleIP(ip net.IP) *net.IPNet {
	bits := 32
	if ip.To4() == nil {
		bits = 128 //nolint:mnd // IPv6 prefix length
	} else {
		ip = ip.To4()
	}
	return &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)}
}

// stripPort handles both "10.0.0.1:8080" and "[::1]:8080".
func stripPort(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}
