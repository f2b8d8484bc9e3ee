package background

import (
	"bytes"
	"context"
	"fmt"
	"syscall"
	"text/template"

	"github.com/MrSnakeDoc/linkup/internal/localstate"
	"github.com/MrSnakeDoc/linkup/internal/supervisor"
	"github.com/MrSnakeDoc/linkup/internal/utils"
)

const (
	DnsmasqName = "dnsmasq"
	DnsmasqPort = 8053
)

var dnsmasqTmpl = template.Must(template.New("dnsmasq").Parse(
	`{{range .Domains}}address=/{{$.Session}}.{{.}}/127.0.0.1
address=/{{$.Session}}.{{.}}/::1
local=/{{$.Session}}.{{.}}/
{{end}}
port={{.Port}}
log-facility={{.LogFile}}
pid-file={{.PidFile}}
`))

// Dnsmasq answers for <session>.<domain> with the loopback address so the
// browser reaches caddy.
type Dnsmasq struct {
	daemon
	Binary string
	state  *localstate.State
}

func NewDnsmasq(env Env, st *localstate.State) *Dnsmasq {
	return &Dnsmasq{
		daemon: daemon{env: env, name: DnsmasqName, stop: syscall.SIGTERM},
		Binary: "dnsmasq",
		state:  st,
	}
}

func (d *Dnsmasq) ConfigFile() string { return d.file("conf") }

func (d *Dnsmasq) Setup(context.Context) error {
	if d.state.Linkup.SessionName == "" {
		return fmt.Errorf("dnsmasq needs a session name")
	}
	data, err := RenderDnsmasqConf(d.state.Linkup.SessionName, domainNames(d.state),
		DnsmasqPort, d.file("log"), d.env.Registry.PidPath(d.name))
	if err != nil {
		return err
	}
	return utils.AtomicWriteFile(d.ConfigFile(), data, 0o644)
}

// Start runs dnsmasq, which daemonizes and writes its own pid file.
func (d *Dnsmasq) Start(ctx context.Context) error {
	_, err := supervisor.Spawn(ctx, supervisor.Command{
		Path: d.Binary,
		Args: []string{"--log-queries", "-C", d.ConfigFile()},
		Dir:  d.env.Config.Dir,
		Wait: true,
	})
	return err
}

func (d *Dnsmasq) Ready(context.Context) bool { return d.alive() }

func RenderDnsmasqConf(session string, domains []string, port int, logFile, pidFile string) ([]byte, error) {
	var buf bytes.Buffer
	err := dnsmasqTmpl.Execute(&buf, struct {
		Session string
		Domains []string
		Port    int
		LogFile string
		PidFile string
	}{session, domains, port, logFile, pidFile})
	if err != nil {
		return nil, fmt.Errorf("render dnsmasq config: %w", err)
	}
	return buf.Bytes(), nil
}
