package linkupconfig

import (
	"errors"
	"fmt"
	"net/url"
	"os"

	"gopkg.in/yaml.v3"
)

// EnvConfigPath names the variable used when no --config flag is given.
const EnvConfigPath = "LINKUP_CONFIG"

// ErrNoConfigPath is returned when neither a flag nor LINKUP_CONFIG names a file.
var ErrNoConfigPath = errors.New("no config path given and " + EnvConfigPath + " is not set")

// Loader handles loading and parsing of a linkup.yml file
type Loader struct {
	filePath string
}

// NewLoader creates a new project config loader
func NewLoader(filePath string) *Loader {
	return &Loader{
		filePath: filePath,
	}
}

// Path returns the file the loader reads
func (l *Loader) Path() string { return l.filePath }

// Load reads, expands and parses the config file
func (l *Loader) Load() (*Config, error) {
	data, err := os.ReadFile(l.filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse expands ${VAR} references from the environment and decodes data
func Parse(data []byte) (*Config, error) {
	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config yaml: %w", err)
	}
	if err := cfg.check(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ResolvePath picks the config file: the flag value first, then LINKUP_CONFIG.
func ResolvePath(flag string) (string, error) {
	if flag != "" {
		return flag, nil
	}
	if v := os.Getenv(EnvConfigPath); v != "" {
		return v, nil
	}
	return "", ErrNoConfigPath
}

// check verifies the fields needed before a state can be built. Session level
// rules (dangling references, regexes) are left to domain.Validate.
func (c *Config) check() error {
	if err := checkURL("linkup.remote", c.Linkup.Remote); err != nil {
		return err
	}
	seen := make(map[string]bool, len(c.Services))
	for i, svc := range c.Services {
		if svc.Name == "" {
			return fmt.Errorf("services[%d]: name is required", i)
		}
		if seen[svc.Name] {
			return fmt.Errorf("services[%d]: duplicate service %q", i, svc.Name)
		}
		seen[svc.Name] = true
		if err := checkURL(svc.Name+".remote", svc.Remote); err != nil {
			return err
		}
		if err := checkURL(svc.Name+".local", svc.Local); err != nil {
			return err
		}
	}
	return nil
}

func checkURL(field, raw string) error {
	if raw == "" {
		return fmt.Errorf("%s is required", field)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", field, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%s: %q is not an http(s) url", field, raw)
	}
	return nil
}
