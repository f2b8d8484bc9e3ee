package linkupconfig

// Config is the root structure of a linkup.yml project file
type Config struct {
	Linkup   LinkupConfig    `yaml:"linkup"`
	Services []ServiceConfig `yaml:"services"`
	Domains  []DomainConfig  `yaml:"domains"`
}

// LinkupConfig holds the settings shared by every service of the project
type LinkupConfig struct {
	Remote      string   `yaml:"remote"`
	CacheRoutes []string `yaml:"cache_routes,omitempty"`
}

// ServiceConfig describes a service reachable both remotely and locally
type ServiceConfig struct {
	Name      string          `yaml:"name"`
	Remote    string          `yaml:"remote"`
	Local     string          `yaml:"local"`
	Directory string          `yaml:"directory,omitempty"`
	Rewrites  []RewriteConfig `yaml:"rewrites,omitempty"`
}

// RewriteConfig is a path rewrite applied before forwarding to a service
type RewriteConfig struct {
	Source string `yaml:"source"`
	Target string `yaml:"target"`
}

// DomainConfig maps a hostname to services
type DomainConfig struct {
	Domain         string        `yaml:"domain"`
	DefaultService string        `yaml:"default_service"`
	Routes         []RouteConfig `yaml:"routes,omitempty"`
}

// RouteConfig sends paths matching Path to Service
type RouteConfig struct {
	Path    string `yaml:"path"`
	Service string `yaml:"service"`
}
