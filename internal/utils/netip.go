package utils

import (
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// Headers a trusted tunnel uses to pass the original client address, in the
// order ClientAddr reads them.
var forwardedAddrHeaders = []string{"Cf-Connecting-Ip", "X-Forwarded-For", "X-Real-Ip"}

// ClientAddr resolves the address of the caller. Forwarding headers are only
// read when trustProxy is set, which is right when the server is reachable
// solely through cloudflared or another local proxy. Otherwise RemoteAddr wins.
func ClientAddr(r *http.Request, trustProxy bool) (netip.Addr, bool) {
	if trustProxy {
		for _, h := range forwardedAddrHeaders {
			v := r.Header.Get(h)
			if h == "X-Forwarded-For" {
				// left-most entry is the original client
				v, _, _ = strings.Cut(v, ",")
			}
			if a, ok := parseAddr(v); ok {
				return a, true
			}
		}
	}
	return parseAddr(r.RemoteAddr)
}

// ClientIP is ClientAddr as a string, "" when nothing parses.
func ClientIP(r *http.Request, trustProxy bool) string {
	a, ok := ClientAddr(r, trustProxy)
	if !ok {
		return ""
	}
	return a.String()
}

// parseAddr accepts "ip", "ip:port" and "[v6]:port". IPv4-mapped IPv6 is
// folded to IPv4 and zones are dropped so prefixes compare as written.
func parseAddr(s string) (netip.Addr, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return netip.Addr{}, false
	}
	if h, _, err := net.SplitHostPort(s); err == nil {
		s = h
	}
	a, err := netip.ParseAddr(s)
	if err != nil {
		return netip.Addr{}, false
	}
	return a.Unmap().WithZone(""), true
}

// PrefixSet is a list of networks. A bare address is kept as a single-host
// prefix.
type PrefixSet []netip.Prefix

// ParsePrefixSet reads entries like "10.0.0.0/8", "127.0.0.1" or "::1".
// Blank entries are skipped; anything else that does not parse is an error.
func ParsePrefixSet(list []string) (PrefixSet, error) {
	set := make(PrefixSet, 0, len(list))
	for _, raw := range list {
		s := strings.TrimSpace(raw)
		if s == "" {
			continue
		}
		if strings.Contains(s, "/") {
			p, err := netip.ParsePrefix(s)
			if err != nil {
				return nil, fmt.Errorf("invalid cidr %q: %w", s, err)
			}
			set = append(set, p.Masked())
			continue
		}
		a, ok := parseAddr(s)
		if !ok {
			return nil, fmt.Errorf("invalid ip %q", s)
		}
		set = append(set, netip.PrefixFrom(a, a.BitLen()))
	}
	return set, nil
}

// Empty reports whether the set has no entries.
func (s PrefixSet) Empty() bool { return len(s) == 0 }

// Contains reports whether a falls in any prefix of the set.
func (s PrefixSet) Contains(a netip.Addr) bool {
	if !a.IsValid() {
		return false
	}
	a = a.Unmap()
	for _, p := range s {
		if p.Contains(a) {
			return true
		}
	}
	return false
}
