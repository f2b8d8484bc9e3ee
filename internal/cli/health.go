package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"runtime"
	"sort"

	"github.com/spf13/cobra"

	"github.com/MrSnakeDoc/linkup/internal/background"
	"github.com/MrSnakeDoc/linkup/internal/localstate"
	"github.com/MrSnakeDoc/linkup/internal/version"
)

type healthReport struct {
	System struct {
		OS   string `json:"os_name"`
		Arch string `json:"arch"`
	} `json:"system"`
	Session struct {
		Name      string `json:"name,omitempty"`
		TunnelURL string `json:"tunnel_url,omitempty"`
	} `json:"session"`
	Background map[string]string `json:"background_services"`
	Linkup     struct {
		Version string   `json:"version"`
		Dir     string   `json:"dir"`
		Files   []string `json:"files"`
	} `json:"linkup"`
}

// binaries maps background services to the executable they need.
var binaries = map[string]string{
	background.TunnelName:  "cloudflared",
	background.CaddyName:   "caddy",
	background.DnsmasqName: "dnsmasq",
}

func (c *cli) healthCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "health",
		Short: "Print diagnostics about this machine's linkup setup",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			report, err := c.health()
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(c.out)
				enc.SetIndent("", "  ")
				return enc.Encode(report)
			}
			writeHealth(c.out, report)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the report as JSON")
	return cmd
}

func (c *cli) health() (healthReport, error) {
	cfg := c.loadConfig()
	var r healthReport
	r.System.OS = runtime.GOOS
	r.System.Arch = runtime.GOARCH
	r.Linkup.Version = version.Version
	r.Linkup.Dir = cfg.Dir

	st, err := localstate.Load(cfg.StatePath())
	switch {
	case err == nil:
		r.Session.Name = st.Linkup.SessionName
		r.Session.TunnelURL = st.Linkup.Tunnel
	case errors.Is(err, localstate.ErrNoState):
		st = &localstate.State{}
	default:
		return r, err
	}

	env := c.newEnv(cfg, c.newLogger(cfg))
	r.Background = make(map[string]string)
	for _, svc := range c.all(env, st) {
		state := "stopped"
		if pid, ok := svc.Pid(); ok {
			state = "running (" + pid + ")"
		} else if bin, ok := binaries[svc.Name()]; ok {
			if _, err := exec.LookPath(bin); err != nil {
				state = "not installed"
			}
		}
		r.Background[svc.Name()] = state
	}

	entries, err := os.ReadDir(cfg.Dir)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return r, err
	}
	for _, e := range entries {
		r.Linkup.Files = append(r.Linkup.Files, e.Name())
	}
	return r, nil
}

func writeHealth(w io.Writer, r healthReport) {
	fmt.Fprintf(w, "System info:\n  OS: %s\n  Architecture: %s\n\n", r.System.OS, r.System.Arch)

	name, tunnel := r.Session.Name, r.Session.TunnelURL
	if name == "" {
		name = "None"
	}
	if tunnel == "" {
		tunnel = "None"
	}
	fmt.Fprintf(w, "Session info:\n  Name: %s\n  Tunnel URL: %s\n\n", name, tunnel)

	fmt.Fprintf(w, "Background services:\n")
	names := make([]string, 0, len(r.Background))
	for n := range r.Background {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		fmt.Fprintf(w, "  - %-14s %s\n", n, r.Background[n])
	}

	fmt.Fprintf(w, "\nLinkup:\n  Version: %s\n  Dir: %s\n  Files:\n", r.Linkup.Version, r.Linkup.Dir)
	for _, f := range r.Linkup.Files {
		fmt.Fprintf(w, "    - %s\n", f)
	}
}
