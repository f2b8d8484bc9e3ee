package domain

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// CurrentTarget says where a service's traffic goes on this machine.
type CurrentTarget int

const (
	// TargetRemote is the zero value: unknown services are never assumed local.
	TargetRemote CurrentTarget = iota
	TargetLocal
)

func (t CurrentTarget) String() string {
	if t == TargetLocal {
		return "local"
	}
	return "remote"
}

func (t CurrentTarget) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *CurrentTarget) UnmarshalText(b []byte) error {
	v, err := ParseCurrentTarget(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// ParseCurrentTarget accepts "local" or "remote" (any case).
func ParseCurrentTarget(s string) (CurrentTarget, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "local":
		return TargetLocal, nil
	case "remote", "":
		return TargetRemote, nil
	default:
		return TargetRemote, fmt.Errorf("unknown target %q (want local or remote)", s)
	}
}

// Targets is the read side of the local/remote switch.
type Targets interface {
	Current(service string) CurrentTarget
	LocalURL(service string) (*url.URL, bool)
}

// RemoteOnly routes everything to the session's own locations. It is what a
// shared server uses: it has no local services of its own.
type RemoteOnly struct{}

func (RemoteOnly) Current(string) CurrentTarget     { return TargetRemote }
func (RemoteOnly) LocalURL(string) (*url.URL, bool) { return nil, false }

// Destination is the outcome of a dispatch.
type Destination struct {
	Service string
	Target  CurrentTarget
	Base    *url.URL // service root, local or remote
	Path    string   // escaped request path after rewrites
	URL     *url.URL // Base joined with Path
}

// Dispatch maps host and the escaped path to a forwarding destination inside
// s. It does no I/O and the same inputs always give the same output.
func Dispatch(s *Session, host, path string, t Targets) (Destination, error) {
	host = normalizeHost(host)
	d, ok := s.Domains[host]
	if !ok {
		return Destination{}, fmt.Errorf("%w: %q", ErrUnknownDomain, host)
	}

	name := d.DefaultService
	for _, r := range d.Routes {
		if r.Path.MatchString(path) {
			name = r.Service
			break
		}
	}

	svc, ok := s.Services[name]
	if !ok {
		return Destination{}, fmt.Errorf("%w: domain %q wants %q", ErrDanglingServiceReference, host, name)
	}

	return resolve(svc, rewritePath(svc, path), t)
}

// Request carries the parts of an inbound HTTP request the router looks at.
type Request struct {
	Host   string // with any session label already removed
	Path   string // escaped, as sent by the client
	Header http.Header
}

// DispatchRequest is Dispatch plus the request level rules: an explicit
// linkup-destination header wins, and when the host is not a session domain
// the forwarded host, referer and origin are tried in that order.
func DispatchRequest(s *Session, r Request, t Targets) (Destination, error) {
	if name := r.Header.Get(HeaderDestination); name != "" {
		if svc, ok := s.Services[name]; ok {
			// rewrites already happened on the first hop
			return resolve(svc, r.Path, t)
		}
	}

	for _, candidate := range DomainCandidates(s.Name, r.Host, r.Header) {
		if _, ok := s.Domains[candidate]; ok {
			return Dispatch(s, candidate, r.Path, t)
		}
	}
	return Dispatch(s, r.Host, r.Path, t)
}

func resolve(svc *Service, path string, t Targets) (Destination, error) {
	dest := Destination{Service: svc.Name, Target: t.Current(svc.Name), Path: path}
	switch dest.Target {
	case TargetLocal:
		local, ok := t.LocalURL(svc.Name)
		if !ok || local == nil {
			return Destination{}, fmt.Errorf("%w: %q", ErrNoLocalLocation, svc.Name)
		}
		dest.Base = local
	default:
		dest.Base = svc.Location
	}
	dest.URL = joinURL(dest.Base, path)
	return dest, nil
}

// rewritePath applies the first rewrite whose source matches.
func rewritePath(svc *Service, path string) string {
	for _, rw := range svc.Rewrites {
		if rw.Source.MatchString(path) {
			return rw.Source.ReplaceAllString(path, rw.Target)
		}
	}
	return path
}

// joinURL appends an escaped request path to base. Percent-encoded bytes
// such as %2F reach the upstream as they were sent.
func joinURL(base *url.URL, escapedPath string) *url.URL {
	u := *base
	u.RawQuery = ""
	u.Fragment = ""
	if !strings.HasPrefix(escapedPath, "/") {
		escapedPath = "/" + escapedPath
	}
	raw := strings.TrimSuffix(base.EscapedPath(), "/") + escapedPath
	decoded, err := url.PathUnescape(raw)
	if err != nil {
		decoded = raw
	}
	u.Path = decoded
	u.RawPath = raw
	return &u
}
