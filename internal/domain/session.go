package domain

import (
	"encoding/json"
	"fmt"
	"net"
	"net/url"
	"regexp"
	"sort"
	"strings"
	"time"

	"golang.org/x/net/idna"
)

// Document is the session update body accepted by POST /linkup and stored
// verbatim (minus desired_name) for every session.
type Document struct {
	DesiredName  string            `json:"desired_name,omitempty"`
	SessionToken string            `json:"session_token"`
	Services     []ServiceSpec     `json:"services"`
	Domains      []DomainSpec      `json:"domains"`
	CacheRoutes  []json.RawMessage `json:"cache_routes,omitempty"`
}

type ServiceSpec struct {
	Name     string        `json:"name"`
	Location string        `json:"location"`
	Rewrites []RewriteSpec `json:"rewrites,omitempty"`
}

type RewriteSpec struct {
	Source string `json:"source" yaml:"source"`
	Target string `json:"target" yaml:"target"`
}

// DomainSpec is also the form domains take in the local state file.
type DomainSpec struct {
	Domain         string      `json:"domain" yaml:"domain"`
	DefaultService string      `json:"default_service" yaml:"default_service"`
	Routes         []RouteSpec `json:"routes,omitempty" yaml:"routes,omitempty"`
}

type RouteSpec struct {
	Path    string `json:"path" yaml:"path"`
	Service string `json:"service" yaml:"service"`
}

// Record is what a backend persists for one session name.
type Record struct {
	// ─────────────────────────────
	// Identity
	// ─────────────────────────────

	// Name is the primary key, unique across the store.
	Name string `json:"name"`

	// Revision changes on every write. Compiled sessions are cached per revision.
	Revision string `json:"revision"`

	// Preview marks sessions created through /preview. Their name is derived
	// from the document content.
	Preview bool `json:"preview,omitempty"`

	// ─────────────────────────────
	// Content (replaced as a whole on update)
	// ─────────────────────────────

	Document Document `json:"document"`

	// ─────────────────────────────
	// Bookkeeping
	// ─────────────────────────────

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Clone returns a deep copy so backends never share slices with callers.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	c := *r
	c.Document = r.Document.Clone()
	return &c
}

// Clone returns a deep copy of the document.
func (d Document) Clone() Document {
	c := d
	c.Services = make([]ServiceSpec, len(d.Services))
	for i, s := range d.Services {
		s.Rewrites = append([]RewriteSpec(nil), s.Rewrites...)
		c.Services[i] = s
	}
	c.Domains = make([]DomainSpec, len(d.Domains))
	for i, dm := range d.Domains {
		dm.Routes = append([]RouteSpec(nil), dm.Routes...)
		c.Domains[i] = dm
	}
	if d.CacheRoutes != nil {
		c.CacheRoutes = make([]json.RawMessage, len(d.CacheRoutes))
		for i, raw := range d.CacheRoutes {
			c.CacheRoutes[i] = append(json.RawMessage(nil), raw...)
		}
	}
	return c
}

// Session is the compiled, read-only form of a stored document. It is safe to
// share between goroutines.
type Session struct {
	Name        string
	Token       string
	Services    map[string]*Service
	Domains     map[string]*Domain
	CacheRoutes []json.RawMessage
}

type Service struct {
	Name     string
	Location *url.URL
	Rewrites []Rewrite
}

type Rewrite struct {
	Source *regexp.Regexp
	Target string
}

type Domain struct {
	Name           string
	DefaultService string
	Routes         []Route
}

type Route struct {
	Path    *regexp.Regexp
	Service string
}

// Validate reports every problem in doc without compiling it for use.
func Validate(doc Document) error {
	_, err := Compile("", doc)
	return err
}

// Compile validates doc and turns it into a routable Session. All problems
// are returned together as ValidationErrors.
func Compile(name string, doc Document) (*Session, error) {
	var errs ValidationErrors
	add := func(field, format string, args ...any) {
		errs = append(errs, &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)})
	}

	s := &Session{
		Name:        name,
		Token:       doc.SessionToken,
		Services:    make(map[string]*Service, len(doc.Services)),
		Domains:     make(map[string]*Domain, len(doc.Domains)),
		CacheRoutes: doc.CacheRoutes,
	}

	if doc.DesiredName != "" {
		if _, ok := NormalizeSessionName(doc.DesiredName); !ok {
			add("desired_name", "%q is not a DNS label", doc.DesiredName)
		}
	}

	for i, spec := range doc.Services {
		field := fmt.Sprintf("services[%d]", i)
		if strings.TrimSpace(spec.Name) == "" {
			add(field+".name", "must not be empty")
			continue
		}
		if _, dup := s.Services[spec.Name]; dup {
			add(field+".name", "duplicate service %q", spec.Name)
			continue
		}

		svc := &Service{Name: spec.Name}
		loc, err := parseLocation(spec.Location)
		if err != nil {
			add(field+".location", "%v", err)
		}
		svc.Location = loc

		for j, rw := range spec.Rewrites {
			re, err := regexp.Compile(rw.Source)
			if err != nil {
				add(fmt.Sprintf("%s.rewrites[%d].source", field, j), "invalid pattern %q: %v", rw.Source, err)
				continue
			}
			svc.Rewrites = append(svc.Rewrites, Rewrite{Source: re, Target: rw.Target})
		}
		s.Services[spec.Name] = svc
	}

	for i, spec := range doc.Domains {
		field := fmt.Sprintf("domains[%d]", i)
		host, err := NormalizeDomain(spec.Domain)
		if err != nil {
			add(field+".domain", "%v", err)
			continue
		}
		if _, dup := s.Domains[host]; dup {
			add(field+".domain", "duplicate domain %q", host)
			continue
		}

		d := &Domain{Name: host, DefaultService: spec.DefaultService}
		switch {
		case spec.DefaultService == "":
			add(field+".default_service", "must not be empty")
		case !hasService(doc.Services, spec.DefaultService):
			add(field+".default_service", "%v: %q", ErrDanglingServiceReference, spec.DefaultService)
		}

		for j, rt := range spec.Routes {
			rfield := fmt.Sprintf("%s.routes[%d]", field, j)
			if !hasService(doc.Services, rt.Service) {
				add(rfield+".service", "%v: %q", ErrDanglingServiceReference, rt.Service)
			}
			re, err := compileRoutePattern(rt.Path)
			if err != nil {
				add(rfield+".path", "invalid pattern %q: %v", rt.Path, err)
				continue
			}
			d.Routes = append(d.Routes, Route{Path: re, Service: rt.Service})
		}
		s.Domains[host] = d
	}

	if len(errs) > 0 {
		return nil, errs
	}

	return s, nil
}

func hasService(services []ServiceSpec, name string) bool {
	for _, s := range services {
		if s.Name == name {
			return true
		}
	}
	return false
}

// compileRoutePattern anchors the pattern at the start of the path so a route
// matches when its pattern is a prefix of the request path.
func compileRoutePattern(p string) (*regexp.Regexp, error) {
	if p == "" {
		return nil, fmt.Errorf("must not be empty")
	}
	return regexp.Compile(`^(?:` + p + `)`)
}

func parseLocation(raw string) (*url.URL, error) {
	if raw == "" {
		return nil, fmt.Errorf("must not be empty")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid url %q: %w", raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("url %q must use http or https", raw)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("url %q has no host", raw)
	}
	return u, nil
}

// NormalizeDomain lowercases a hostname, strips any port and trailing dot,
// and converts internationalized names to their ASCII form.
func NormalizeDomain(raw string) (string, error) {
	host := strings.TrimSpace(raw)
	if host == "" {
		return "", fmt.Errorf("must not be empty")
	}
	host = stripPort(host)
	host = strings.TrimSuffix(host, ".")
	ascii, err := idna.Lookup.ToASCII(host)
	if err != nil {
		return "", fmt.Errorf("invalid hostname %q: %w", raw, err)
	}
	return strings.ToLower(ascii), nil
}

// normalizeHost is the lenient variant used at request time.
func normalizeHost(raw string) string {
	if h, err := NormalizeDomain(raw); err == nil {
		return h
	}
	return strings.ToLower(stripPort(strings.TrimSpace(raw)))
}

func stripPort(host string) string {
	if h, _, err := net.SplitHostPort(host); err == nil {
		return h
	}
	return host
}

// SortDomains orders domains most specific first: more labels wins, ties are
// broken label by label in favour of the longer label.
func SortDomains(domains []string) []string {
	out := append([]string(nil), domains...)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := strings.Split(out[i], "."), strings.Split(out[j], ".")
		if len(a) != len(b) {
			return len(a) > len(b)
		}
		for k := range a {
			if len(a[k]) != len(b[k]) {
				return len(a[k]) > len(b[k])
			}
		}
		return false
	})
	return out
}
