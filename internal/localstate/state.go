package localstate

import (
	"net/url"
	"strings"

	"github.com/google/uuid"

	"github.com/MrSnakeDoc/linkup/internal/domain"
	"github.com/MrSnakeDoc/linkup/internal/sources/linkupconfig"
)

// Target is the local/remote switch of one service.
type Target = domain.CurrentTarget

const (
	Local  = domain.TargetLocal
	Remote = domain.TargetRemote
)

// NoTunnel is the tunnel placeholder stored until a tunnel reports its URL.
const NoTunnel = "http://tunnel-not-yet-set"

const tokenLength = 16

// State is what the CLI persists between invocations in $LINKUP_DIR/state.
type State struct {
	Linkup   Linkup              `yaml:"linkup"`
	Domains  []domain.DomainSpec `yaml:"domains"`
	Services []Service           `yaml:"services"`
}

// Linkup holds the session this machine is part of.
type Linkup struct {
	SessionName  string   `yaml:"session_name"`
	SessionToken string   `yaml:"session_token"`
	ConfigPath   string   `yaml:"config_path"`
	Remote       string   `yaml:"remote"`
	Tunnel       string   `yaml:"tunnel"`
	CacheRoutes  []string `yaml:"cache_routes,omitempty"`
}

// Service is one entry of the ordered service list.
type Service struct {
	Name      string               `yaml:"name"`
	Remote    string               `yaml:"remote"`
	Local     string               `yaml:"local"`
	Current   Target               `yaml:"current"`
	Directory string               `yaml:"directory,omitempty"`
	Rewrites  []domain.RewriteSpec `yaml:"rewrites,omitempty"`
}

// FromConfig builds a fresh state from a project config. Every service starts
// remote and the session gets a new token.
func FromConfig(cfg *linkupconfig.Config, configPath string) *State {
	s := &State{
		Linkup: Linkup{
			SessionToken: NewToken(),
			ConfigPath:   configPath,
			Remote:       cfg.Linkup.Remote,
			Tunnel:       NoTunnel,
			CacheRoutes:  append([]string(nil), cfg.Linkup.CacheRoutes...),
		},
		Domains: cfg.DomainSpecs(),
	}
	for _, svc := range cfg.Services {
		s.Services = append(s.Services, Service{
			Name:      svc.Name,
			Remote:    svc.Remote,
			Local:     svc.Local,
			Current:   Remote,
			Directory: svc.Directory,
			Rewrites:  svc.RewriteSpecs(),
		})
	}
	return s
}

// NewToken returns a random 16 character alphanumeric session token.
func NewToken() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:tokenLength]
}

// GetCurrent returns the target of name, Remote when the service is unknown.
func (s *State) GetCurrent(name string) Target {
	if svc, ok := s.Service(name); ok {
		return svc.Current
	}
	return Remote
}

// SetCurrent records the target of name. Unknown names are appended.
func (s *State) SetCurrent(name string, t Target) {
	for i := range s.Services {
		if s.Services[i].Name == name {
			s.Services[i].Current = t
			return
		}
	}
	s.Services = append(s.Services, Service{Name: name, Current: t})
}

// SetAll points every known service at t.
func (s *State) SetAll(t Target) {
	for i := range s.Services {
		s.Services[i].Current = t
	}
}

// Service looks a service up by name.
func (s *State) Service(name string) (*Service, bool) {
	for i := range s.Services {
		if s.Services[i].Name == name {
			return &s.Services[i], true
		}
	}
	return nil, false
}

// Names lists the services in declared order.
func (s *State) Names() []string {
	names := make([]string, 0, len(s.Services))
	for _, svc := range s.Services {
		names = append(names, svc.Name)
	}
	return names
}

// HasTunnel reports whether a tunnel published its URL.
func (s *State) HasTunnel() bool {
	return s.Linkup.Tunnel != "" && s.Linkup.Tunnel != NoTunnel
}

// Clone returns a deep copy.
func (s *State) Clone() *State {
	c := &State{Linkup: s.Linkup}
	c.Linkup.CacheRoutes = append([]string(nil), s.Linkup.CacheRoutes...)
	for _, d := range s.Domains {
		d.Routes = append([]domain.RouteSpec(nil), d.Routes...)
		c.Domains = append(c.Domains, d)
	}
	for _, svc := range s.Services {
		svc.Rewrites = append([]domain.RewriteSpec(nil), svc.Rewrites...)
		c.Services = append(c.Services, svc)
	}
	return c
}

// LocalDocument is the session the local server serves: local services point
// at their local address.
func (s *State) LocalDocument() domain.Document {
	return s.document(func(svc Service) string {
		if svc.Current == Local {
			return svc.Local
		}
		return svc.Remote
	})
}

// RemoteDocument is the session uploaded to the shared server: local services
// are reached through the tunnel.
func (s *State) RemoteDocument() domain.Document {
	return s.document(func(svc Service) string {
		if svc.Current == Local {
			return s.Linkup.Tunnel
		}
		return svc.Remote
	})
}

func (s *State) document(location func(Service) string) domain.Document {
	doc := domain.Document{
		DesiredName:  s.Linkup.SessionName,
		SessionToken: s.Linkup.SessionToken,
		Domains:      s.Domains,
		CacheRoutes:  linkupconfig.EncodeCacheRoutes(s.Linkup.CacheRoutes),
	}
	for _, svc := range s.Services {
		doc.Services = append(doc.Services, domain.ServiceSpec{
			Name:     svc.Name,
			Location: location(svc),
			Rewrites: svc.Rewrites,
		})
	}
	return doc.Clone()
}

// Targets returns an immutable snapshot usable by the router.
func (s *State) Targets() domain.Targets {
	t := snapshot{
		current: make(map[string]Target, len(s.Services)),
		local:   make(map[string]*url.URL, len(s.Services)),
	}
	for _, svc := range s.Services {
		t.current[svc.Name] = svc.Current
		if svc.Local == "" {
			continue
		}
		if u, err := url.Parse(svc.Local); err == nil && u.Host != "" {
			t.local[svc.Name] = u
		}
	}
	return t
}

type snapshot struct {
	current map[string]Target
	local   map[string]*url.URL
}

func (t snapshot) Current(name string) Target { return t.current[name] }

func (t snapshot) LocalURL(name string) (*url.URL, bool) {
	u, ok := t.local[name]
	if !ok {
		return nil, false
	}
	c := *u
	return &c, true
}
