package domain

import (
	"net/http"
	"net/url"
	"strings"
)

// TraceStateKey is the tracestate and baggage member carrying the session name.
const TraceStateKey = "linkup-session"

// SessionCandidates lists the names a request may belong to, in the fixed
// order the edge tries them:
//
//  1. first label of the request host
//  2. first label of X-Forwarded-Host
//  3. first label of the Referer host
//  4. first label of the Origin host
//  5. linkup-session member of tracestate
//  6. linkup-session member of baggage
//
// Empty and repeated candidates are dropped.
func SessionCandidates(host string, h http.Header) []string {
	raw := []string{
		FirstSubdomain(host),
		FirstSubdomain(HostOf(h.Get(HeaderForwardedHost))),
		FirstSubdomain(HostOf(h.Get("Referer"))),
		FirstSubdomain(HostOf(h.Get("Origin"))),
		ListMember(h.Get(HeaderTraceState), TraceStateKey),
		ListMember(h.Get("Baggage"), TraceStateKey),
	}

	out := make([]string, 0, len(raw))
	seen := make(map[string]bool, len(raw))
	for _, c := range raw {
		if c == "" || seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	return out
}

// DomainCandidates lists the hosts a request may be addressed to inside the
// session named session: the request host, then the forwarded host, referer
// and origin. The session label is removed from each of them.
func DomainCandidates(session, host string, h http.Header) []string {
	raw := []string{
		host,
		HostOf(h.Get(HeaderForwardedHost)),
		HostOf(h.Get("Referer")),
		HostOf(h.Get("Origin")),
	}
	out := make([]string, 0, len(raw))
	for _, c := range raw {
		if c == "" {
			continue
		}
		out = append(out, normalizeHost(StripSession(c, session)))
	}
	return out
}

// FirstSubdomain returns the first label of host, or "" when host has two
// labels or fewer (example.com has no session label).
func FirstSubdomain(host string) string {
	host = stripPort(strings.TrimSpace(host))
	parts := strings.Split(host, ".")
	if len(parts) <= 2 {
		return ""
	}
	return strings.ToLower(parts[0])
}

// NormalizeSessionName lowercases name and reports whether the result can
// serve as a session label: 1 to 63 of [a-z0-9-], not starting or ending
// with a hyphen.
func NormalizeSessionName(name string) (string, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" || len(name) > 63 || name[0] == '-' || name[len(name)-1] == '-' {
		return name, false
	}
	for i := 0; i < len(name); i++ {
		c := name[i]
		if (c < 'a' || c > 'z') && (c < '0' || c > '9') && c != '-' {
			return name, false
		}
	}
	return name, true
}

// StripSession removes a leading "<session>." label from host.
func StripSession(host, session string) string {
	if session == "" || FirstSubdomain(host) != strings.ToLower(session) {
		return host
	}
	return host[len(session)+1:]
}

// HostOf extracts the host (with port) from a URL or a bare host string.
func HostOf(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if strings.Contains(raw, "://") {
		u, err := url.Parse(raw)
		if err != nil {
			return ""
		}
		return u.Host
	}
	if i := strings.IndexByte(raw, '/'); i >= 0 {
		raw = raw[:i]
	}
	return raw
}

// ListMember returns the value of key in a comma separated key=value list
// such as tracestate or baggage.
func ListMember(list, key string) string {
	for _, kv := range strings.Split(list, ",") {
		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		if strings.TrimSpace(k) == key {
			// baggage members may carry ;properties
			v, _, _ = strings.Cut(v, ";")
			return strings.TrimSpace(v)
		}
	}
	return ""
}
