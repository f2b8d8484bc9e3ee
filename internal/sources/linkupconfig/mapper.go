package linkupconfig

import (
	"encoding/json"
	"fmt"

	"github.com/MrSnakeDoc/linkup/internal/domain"
)

// DomainSpecs converts the configured domains to their wire form
func (c *Config) DomainSpecs() []domain.DomainSpec {
	out := make([]domain.DomainSpec, 0, len(c.Domains))
	for _, d := range c.Domains {
		spec := domain.DomainSpec{Domain: d.Domain, DefaultService: d.DefaultService}
		for _, r := range d.Routes {
			spec.Routes = append(spec.Routes, domain.RouteSpec{Path: r.Path, Service: r.Service})
		}
		out = append(out, spec)
	}
	return out
}

// CacheRoutes encodes the configured cache routes as opaque JSON values
func (c *Config) CacheRoutes() []json.RawMessage {
	return EncodeCacheRoutes(c.Linkup.CacheRoutes)
}

// EncodeCacheRoutes turns plain route patterns into the opaque form sessions carry
func EncodeCacheRoutes(routes []string) []json.RawMessage {
	if len(routes) == 0 {
		return nil
	}
	out := make([]json.RawMessage, 0, len(routes))
	for _, r := range routes {
		b, _ := json.Marshal(r)
		out = append(out, b)
	}
	return out
}

// RewriteSpecs converts the rewrites of one service
func (s ServiceConfig) RewriteSpecs() []domain.RewriteSpec {
	if len(s.Rewrites) == 0 {
		return nil
	}
	out := make([]domain.RewriteSpec, 0, len(s.Rewrites))
	for _, r := range s.Rewrites {
		out = append(out, domain.RewriteSpec{Source: r.Source, Target: r.Target})
	}
	return out
}

// PreviewDocument builds the preview request body: every service points to its
// remote location unless overrides (service name -> url) says otherwise.
func (c *Config) PreviewDocument(overrides map[string]string) (domain.Document, error) {
	known := make(map[string]bool, len(c.Services))
	doc := domain.Document{
		Domains:     c.DomainSpecs(),
		CacheRoutes: c.CacheRoutes(),
	}
	for _, svc := range c.Services {
		known[svc.Name] = true
		location := svc.Remote
		if o, ok := overrides[svc.Name]; ok {
			location = o
		}
		doc.Services = append(doc.Services, domain.ServiceSpec{
			Name:     svc.Name,
			Location: location,
			Rewrites: svc.RewriteSpecs(),
		})
	}
	for name := range overrides {
		if !known[name] {
			return domain.Document{}, fmt.Errorf("service %q is not in the config", name)
		}
	}
	return doc, nil
}
