package background

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"regexp"
	"syscall"

	"github.com/MrSnakeDoc/linkup/internal/localstate"
	"github.com/MrSnakeDoc/linkup/internal/logger"
	"github.com/MrSnakeDoc/linkup/internal/supervisor"
)

const TunnelName = "cloudflared"

var tunnelURLRe = regexp.MustCompile(`https://[a-zA-Z0-9-]+\.trycloudflare\.com`)

var ErrNoTunnelURL = errors.New("tunnel url not found")

// Resolver is the part of net.Resolver the tunnel readiness check needs.
type Resolver interface {
	LookupHost(ctx context.Context, host string) ([]string, error)
}

// Tunnel runs a cloudflared quick tunnel to the local server and publishes
// its public URL into the local state.
type Tunnel struct {
	daemon
	Binary   string
	Resolver Resolver
}

func NewTunnel(env Env) *Tunnel {
	return &Tunnel{
		daemon:   daemon{env: env, name: TunnelName, stop: syscall.SIGINT},
		Binary:   "cloudflared",
		Resolver: &net.Resolver{PreferGo: true},
	}
}

func (t *Tunnel) Skip() (string, bool) {
	if t.env.Config.NoTunnel {
		return "tunnel disabled", true
	}
	return "", false
}

func (t *Tunnel) Setup(context.Context) error { return nil }

func (t *Tunnel) Start(ctx context.Context) error {
	if err := t.env.Registry.RemovePid(t.name); err != nil {
		return err
	}
	pid, err := supervisor.Spawn(ctx, supervisor.Command{
		Path: t.Binary,
		Args: []string{
			"tunnel",
			"--url", fmt.Sprintf("http://localhost:%d", t.env.Config.Port()),
			"--pidfile", t.env.Registry.PidPath(t.name),
		},
		Stdout: t.file("stdout"),
		Stderr: t.file("stderr"),
	})
	if err != nil {
		return err
	}
	return t.env.Registry.WritePid(t.name, pid)
}

// Ready waits for cloudflared to print its URL and for that name to resolve.
func (t *Tunnel) Ready(ctx context.Context) bool {
	if !t.alive() {
		return false
	}
	u, err := t.URL()
	if err != nil {
		return false
	}
	addrs, err := t.Resolver.LookupHost(ctx, u.Hostname())
	if err != nil || len(addrs) == 0 {
		t.env.Logger.Debug("tunnel dns not propagated yet", logger.String("host", u.Hostname()))
		return false
	}
	return true
}

func (t *Tunnel) UpdateLocalState(st *localstate.State) error {
	u, err := t.URL()
	if err != nil {
		return err
	}
	st.Linkup.Tunnel = u.String()
	return nil
}

// URL scrapes the tunnel URL out of cloudflared's stderr log.
func (t *Tunnel) URL() (*url.URL, error) {
	data, err := os.ReadFile(t.file("stderr"))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNoTunnelURL, err)
	}
	return ScrapeTunnelURL(data)
}

func ScrapeTunnelURL(log []byte) (*url.URL, error) {
	m := tunnelURLRe.Find(log)
	if m == nil {
		return nil, ErrNoTunnelURL
	}
	return url.Parse(string(m))
}
