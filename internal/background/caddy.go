package background

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"syscall"
	"text/template"

	"github.com/MrSnakeDoc/linkup/internal/domain"
	"github.com/MrSnakeDoc/linkup/internal/localstate"
	"github.com/MrSnakeDoc/linkup/internal/supervisor"
	"github.com/MrSnakeDoc/linkup/internal/utils"
)

const (
	CaddyName = "caddy"
	// CaddyTokenEnv is the variable the Caddyfile reads the DNS challenge
	// token from.
	CaddyTokenEnv = "LINKUP_CF_API_TOKEN"
	caddyAdminURL = "http://localhost:2019/config/"
)

var ErrNoCloudflareToken = errors.New(CaddyTokenEnv + " is not set")

var caddyfileTmpl = template.Must(template.New("Caddyfile").Parse(`{
	http_port 80
	https_port 443
	log {
		output file {{.LogFile}}
	}
{{- with .Redis}}
	storage redis {
		host        {{.Host}}
		port        {{.Port}}
		username    "{{.Username}}"
		password    "{{.Password}}"
		key_prefix  "caddy"
		compression true
	}
{{- end}}
}

{{range $i, $d := .Domains}}{{if $i}}, {{end}}{{$d}}, *.{{$d}}{{end}} {
	reverse_proxy localhost:{{.Port}}
	tls {
		dns cloudflare {env.{{.TokenEnv}}}
	}
}
`))

type caddyRedis struct {
	Host, Port, Username, Password string
}

type caddyfileData struct {
	LogFile  string
	Redis    *caddyRedis
	Domains  []string
	Port     int
	TokenEnv string
}

// Caddy terminates TLS for the session domains and proxies to the local server.
type Caddy struct {
	daemon
	Binary string
	state  *localstate.State
}

func NewCaddy(env Env, st *localstate.State) *Caddy {
	return &Caddy{
		daemon: daemon{env: env, name: CaddyName, stop: syscall.SIGTERM},
		Binary: "caddy",
		state:  st,
	}
}

func (c *Caddy) Caddyfile() string { return c.env.Config.File("Caddyfile") }

func (c *Caddy) Setup(context.Context) error {
	if c.env.Config.CloudflareAPIToken == "" {
		return ErrNoCloudflareToken
	}
	data, err := RenderCaddyfile(c.file("log"), c.env.Config.CertStorageRedis, domainNames(c.state), c.env.Config.Port())
	if err != nil {
		return err
	}
	return utils.AtomicWriteFile(c.Caddyfile(), data, 0o644)
}

// Start runs `caddy start`, which forks the server and writes the pid file
// itself.
func (c *Caddy) Start(ctx context.Context) error {
	if err := os.WriteFile(c.file("log"), nil, 0o644); err != nil {
		return fmt.Errorf("clear caddy log: %w", err)
	}
	_, err := supervisor.Spawn(ctx, supervisor.Command{
		Path: c.Binary,
		Args: []string{"start", "--config", c.Caddyfile(), "--pidfile", c.env.Registry.PidPath(c.name)},
		Dir:  c.env.Config.Dir,
		Env:  []string{CaddyTokenEnv + "=" + c.env.Config.CloudflareAPIToken},
		Wait: true,
	})
	return err
}

func (c *Caddy) Ready(ctx context.Context) bool {
	return c.alive() && httpOK(ctx, c.env.HTTP, caddyAdminURL)
}

// RenderCaddyfile builds the Caddyfile serving every domain and its
// subdomains. redisURL, when set, moves certificate storage to redis.
func RenderCaddyfile(logFile, redisURL string, domains []string, port int) ([]byte, error) {
	data := caddyfileData{
		LogFile:  logFile,
		Domains:  domains,
		Port:     port,
		TokenEnv: CaddyTokenEnv,
	}
	if redisURL != "" {
		u, err := url.Parse(redisURL)
		if err != nil || u.Hostname() == "" {
			return nil, fmt.Errorf("invalid certificate storage url %q", redisURL)
		}
		r := &caddyRedis{Host: u.Hostname(), Port: u.Port(), Username: u.User.Username()}
		if r.Port == "" {
			r.Port = "6379"
		}
		r.Password, _ = u.User.Password()
		data.Redis = r
	}

	var buf bytes.Buffer
	if err := caddyfileTmpl.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("render Caddyfile: %w", err)
	}
	return buf.Bytes(), nil
}

// domainNames lists the state's domains most specific first, so generated
// configs are stable across runs and a subdomain's site block precedes its
// parent's.
func domainNames(st *localstate.State) []string {
	out := make([]string, 0, len(st.Domains))
	for _, d := range st.Domains {
		out = append(out, d.Domain)
	}
	return domain.SortDomains(out)
}
