// Package background holds the processes `linkup start` keeps running next to
// the CLI: the local server, the cloudflared tunnel and the optional local DNS
// pair (caddy and dnsmasq).
package background

import (
	"context"
	"net/http"
	"runtime"
	"syscall"
	"time"

	"github.com/MrSnakeDoc/linkup/internal/config"
	"github.com/MrSnakeDoc/linkup/internal/localstate"
	"github.com/MrSnakeDoc/linkup/internal/logger"
	"github.com/MrSnakeDoc/linkup/internal/supervisor"
	"github.com/MrSnakeDoc/linkup/internal/utils"
)

// Env carries what every service needs to find its files and processes.
type Env struct {
	Config   *config.Config
	Registry supervisor.Registry
	Signaler supervisor.Signaler
	Logger   logger.Logger
	HTTP     *http.Client
}

// NewEnv wires the file registry under the linkup directory.
func NewEnv(cfg *config.Config, log logger.Logger) Env {
	return Env{
		Config:   cfg,
		Registry: supervisor.FileRegistry{Dir: cfg.Dir},
		Signaler: supervisor.UnixSignaler{},
		Logger:   log,
		HTTP:     &http.Client{Timeout: 2 * time.Second},
	}
}

// daemon is the pid file plumbing shared by every service.
type daemon struct {
	env  Env
	name string
	stop syscall.Signal
}

func (d daemon) Name() string { return d.name }

func (d daemon) Pid() (string, bool) {
	return supervisor.PidString(d.env.Registry, d.env.Signaler, d.name)
}

func (d daemon) Stop(context.Context) error {
	return supervisor.StopPidFile(d.env.Registry, d.env.Signaler, d.name, d.stop)
}

func (d daemon) alive() bool {
	_, ok := supervisor.LivePid(d.env.Registry, d.env.Signaler, d.name)
	return ok
}

func (d daemon) file(suffix string) string {
	return d.env.Config.File(d.name + "-" + suffix)
}

// httpOK reports whether a GET on url answers 200.
func httpOK(ctx context.Context, client *http.Client, url string) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false
	}
	resp, err := client.Do(req)
	if err != nil {
		return false
	}
	defer utils.Close(resp.Body)
	return resp.StatusCode == http.StatusOK
}

// Core returns the services needed before the session is uploaded: the local
// server and the tunnel that exposes it.
func Core(env Env) []supervisor.Service {
	return []supervisor.Service{
		NewLocalServer(env),
		NewTunnel(env),
	}
}

// LocalDNS returns caddy and dnsmasq when local DNS is enabled.
func LocalDNS(env Env, st *localstate.State) []supervisor.Service {
	if !env.Config.LocalDNS {
		return nil
	}
	return localDNSServices(env, st)
}

// localDNSServices lists caddy, plus dnsmasq where it is packaged (linux and
// darwin).
func localDNSServices(env Env, st *localstate.State) []supervisor.Service {
	services := []supervisor.Service{NewCaddy(env, st)}
	if runtime.GOOS == "linux" || runtime.GOOS == "darwin" {
		services = append(services, NewDnsmasq(env, st))
	}
	return services
}

// All is every service linkup may have started, in start order, whatever
// LINKUP_LOCAL_DNS says now: a session started with local DNS must still stop
// its caddy and dnsmasq after the setting is turned off.
func All(env Env, st *localstate.State) []supervisor.Service {
	return append(Core(env), localDNSServices(env, st)...)
}
