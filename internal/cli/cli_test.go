package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/MrSnakeDoc/linkup/internal/background"
	"github.com/MrSnakeDoc/linkup/internal/config"
	"github.com/MrSnakeDoc/linkup/internal/domain"
	"github.com/MrSnakeDoc/linkup/internal/envfile"
	"github.com/MrSnakeDoc/linkup/internal/localstate"
	"github.com/MrSnakeDoc/linkup/internal/logger"
	"github.com/MrSnakeDoc/linkup/internal/supervisor"
)

// fakeServer plays a linkup server: it answers every POST with name, or with
// the desired name of the document when name is empty.
type fakeServer struct {
	*httptest.Server
	mu   sync.Mutex
	name string
	docs map[string][]domain.Document
}

func newFakeServer(t *testing.T, name string) *fakeServer {
	t.Helper()
	f := &fakeServer{name: name, docs: make(map[string][]domain.Document)}
	f.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var doc domain.Document
		_ = json.NewDecoder(r.Body).Decode(&doc)
		f.mu.Lock()
		f.docs[r.URL.Path] = append(f.docs[r.URL.Path], doc)
		f.mu.Unlock()

		reply := f.name
		if reply == "" {
			reply = doc.DesiredName
		}
		_, _ = w.Write([]byte(reply))
	}))
	t.Cleanup(f.Close)
	return f
}

func (f *fakeServer) received(path string) []domain.Document {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.docs[path]
}

type fixture struct {
	cli        *cli
	out        *bytes.Buffer
	cfg        *config.Config
	configPath string
	remote     *fakeServer
	local      *fakeServer
}

const projectYAML = `linkup:
  remote: %REMOTE%
services:
  - name: frontend
    remote: http://frontend.example.com
    local: http://localhost:3000
    directory: frontend
  - name: backend
    remote: http://backend.example.com
    local: http://localhost:8000
domains:
  - domain: example.com
    default_service: frontend
    routes:
      - path: /api
        service: backend
  - domain: api.example.com
    default_service: backend
`

func newFixture(t *testing.T) *fixture {
	t.Helper()
	root := t.TempDir()

	remote := newFakeServer(t, "potatoname")
	local := newFakeServer(t, "")
	lu, _ := url.Parse(local.URL)

	cfg := &config.Config{
		Dir:              filepath.Join(root, "linkup"),
		ListenPort:       ":" + lu.Port(),
		StartTimeout:     5 * time.Second,
		ReadyMaxAttempts: 3,
	}

	configPath := filepath.Join(root, "linkup.yml")
	yml := strings.ReplaceAll(projectYAML, "%REMOTE%", remote.URL)
	if err := os.WriteFile(configPath, []byte(yml), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Join(root, "frontend"), 0o755); err != nil {
		t.Fatal(err)
	}

	var out bytes.Buffer
	c := newCLI()
	c.out, c.errOut = &out, &out
	c.configFlag = configPath
	c.loadConfig = func() *config.Config { cp := *cfg; return &cp }
	c.newLogger = func(*config.Config) logger.Logger { return logger.Nop() }
	c.core = func(background.Env) []supervisor.Service { return nil }
	c.localDNS = func(background.Env, *localstate.State) []supervisor.Service { return nil }
	c.newEnv = func(cfg *config.Config, log logger.Logger) background.Env {
		env := background.NewEnv(cfg, log)
		env.Registry = supervisor.NewMemoryRegistry()
		return env
	}

	return &fixture{cli: c, out: &out, cfg: cfg, configPath: configPath, remote: remote, local: local}
}

func (f *fixture) run(t *testing.T, args ...string) error {
	t.Helper()
	cmd := f.cli.root()
	cmd.SetArgs(append([]string{"--config", f.configPath}, args...))
	return cmd.ExecuteContext(context.Background())
}

func (f *fixture) state(t *testing.T) *localstate.State {
	t.Helper()
	st, err := localstate.Load(f.cfg.StatePath())
	if err != nil {
		t.Fatal(err)
	}
	return st
}

func TestStartRegistersSession(t *testing.T) {
	f := newFixture(t)
	svcDir := filepath.Join(filepath.Dir(f.configPath), "frontend")
	if err := os.WriteFile(filepath.Join(svcDir, ".env.development"), []byte("A=1\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(svcDir, ".env.development.linkup"), []byte("API=https://api.example.com\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	if err := f.run(t, "start"); err != nil {
		t.Fatalf("start: %v", err)
	}

	st := f.state(t)
	if st.Linkup.SessionName != "potatoname" {
		t.Errorf("session name = %q", st.Linkup.SessionName)
	}
	if len(st.Linkup.SessionToken) != 16 {
		t.Errorf("session token = %q", st.Linkup.SessionToken)
	}

	if got := f.remote.received("/linkup"); len(got) != 1 {
		t.Fatalf("remote got %d documents", len(got))
	}
	local := f.local.received("/linkup/local-session")
	if len(local) != 1 || local[0].DesiredName != "potatoname" {
		t.Fatalf("local got %+v", local)
	}

	out := f.out.String()
	if !strings.Contains(out, "https://potatoname.example.com") {
		t.Errorf("output misses session url:\n%s", out)
	}
	if strings.Contains(out, "https://potatoname.api.example.com") {
		t.Errorf("subdomain of a listed domain printed:\n%s", out)
	}

	env, _ := os.ReadFile(filepath.Join(svcDir, ".env.development"))
	if !strings.Contains(string(env), envfile.Separator) || !strings.Contains(string(env), "API=https://api.example.com") {
		t.Errorf(".env.development not spliced:\n%s", env)
	}

	if err := f.run(t, "stop"); err != nil {
		t.Fatalf("stop: %v", err)
	}
	env, _ = os.ReadFile(filepath.Join(svcDir, ".env.development"))
	if string(env) != "A=1\n" {
		t.Errorf(".env.development not restored: %q", env)
	}
}

func TestLoadAndSaveStateReusesIdentity(t *testing.T) {
	f := newFixture(t)
	pc, path, err := f.cli.projectConfig()
	if err != nil {
		t.Fatal(err)
	}

	prev := localstate.FromConfig(pc, path)
	prev.Linkup.SessionName = "potatoname"
	prev.Linkup.SessionToken = "previoustoken123"
	prev.Linkup.Tunnel = "https://calm-fox.trycloudflare.com"
	prev.SetCurrent("frontend", localstate.Local)
	if err := os.MkdirAll(f.cfg.Dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := localstate.Save(f.cfg.StatePath(), prev); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name       string
		noTunnel   bool
		wantTunnel string
	}{
		{name: "keeps tunnel", wantTunnel: "https://calm-fox.trycloudflare.com"},
		{name: "no tunnel", noTunnel: true, wantTunnel: localstate.NoTunnel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := localstate.Save(f.cfg.StatePath(), prev); err != nil {
				t.Fatal(err)
			}
			cfg := *f.cfg
			cfg.NoTunnel = tt.noTunnel

			st, err := loadAndSaveState(&cfg, pc, path)
			if err != nil {
				t.Fatal(err)
			}
			if st.Linkup.SessionName != "potatoname" || st.Linkup.SessionToken != "previoustoken123" {
				t.Errorf("identity not reused: %+v", st.Linkup)
			}
			if st.Linkup.Tunnel != tt.wantTunnel {
				t.Errorf("tunnel = %q, want %q", st.Linkup.Tunnel, tt.wantTunnel)
			}
			if st.GetCurrent("frontend") != localstate.Remote {
				t.Error("a fresh start routes every service remotely")
			}
			saved := f.state(t)
			if saved.Linkup.SessionToken != st.Linkup.SessionToken {
				t.Error("state not saved")
			}
		})
	}
}

func TestSwitchTargets(t *testing.T) {
	base := &localstate.State{Services: []localstate.Service{{Name: "frontend"}, {Name: "backend"}}}

	tests := []struct {
		name    string
		names   []string
		all     bool
		want    map[string]localstate.Target
		wantErr bool
	}{
		{name: "one", names: []string{"frontend"}, want: map[string]localstate.Target{"frontend": localstate.Local, "backend": localstate.Remote}},
		{name: "all", all: true, want: map[string]localstate.Target{"frontend": localstate.Local, "backend": localstate.Local}},
		{name: "unknown leaves state alone", names: []string{"frontend", "ghost"}, wantErr: true,
			want: map[string]localstate.Target{"frontend": localstate.Remote, "backend": localstate.Remote}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := base.Clone()
			err := switchTargets(s, localstate.Local, tt.names, tt.all)
			if (err != nil) != tt.wantErr {
				t.Fatalf("switchTargets() error = %v, wantErr %v", err, tt.wantErr)
			}
			for name, want := range tt.want {
				if got := s.GetCurrent(name); got != want {
					t.Errorf("%s = %v, want %v", name, got, want)
				}
			}
		})
	}
}

func TestLocalAndRemoteCommands(t *testing.T) {
	f := newFixture(t)
	if err := f.run(t, "start"); err != nil {
		t.Fatalf("start: %v", err)
	}

	if err := f.run(t, "local", "frontend"); err != nil {
		t.Fatalf("local: %v", err)
	}
	if f.state(t).GetCurrent("frontend") != localstate.Local {
		t.Error("frontend not switched to local")
	}
	uploads := f.remote.received("/linkup")
	last := uploads[len(uploads)-1]
	if last.DesiredName != "potatoname" {
		t.Errorf("upload desired name = %q", last.DesiredName)
	}
	if !strings.Contains(f.out.String(), "routing frontend traffic to the local server") {
		t.Errorf("output: %s", f.out.String())
	}

	if err := f.run(t, "remote", "--all"); err != nil {
		t.Fatalf("remote --all: %v", err)
	}
	if f.state(t).GetCurrent("frontend") != localstate.Remote {
		t.Error("frontend not switched back")
	}

	for _, args := range [][]string{{"local"}, {"local", "ghost"}, {"local", "--all", "frontend"}} {
		if err := f.run(t, args...); err == nil {
			t.Errorf("%v should fail", args)
		}
	}
}

// liveSignaler treats every pid as alive and records delivered signals.
type liveSignaler struct {
	mu   sync.Mutex
	sent map[int]syscall.Signal
}

func (s *liveSignaler) Signal(pid int, sig syscall.Signal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sig != 0 {
		s.sent[pid] = sig
	}
	return nil
}

func TestStopReachesLocalDNSWhenDisabled(t *testing.T) {
	f := newFixture(t)
	reg := supervisor.NewMemoryRegistry()
	sig := &liveSignaler{sent: map[int]syscall.Signal{}}
	f.cli.newEnv = func(cfg *config.Config, log logger.Logger) background.Env {
		env := background.NewEnv(cfg, log)
		env.Registry, env.Signaler = reg, sig
		return env
	}
	// caddy was started by a session with LINKUP_LOCAL_DNS=true
	_ = reg.WritePid(background.CaddyName, 4242)
	if f.cfg.LocalDNS {
		t.Fatal("fixture must run with local dns disabled")
	}

	if err := f.run(t, "stop"); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if reg.Has(background.CaddyName) {
		t.Error("caddy pid file left after stop")
	}
	if got := sig.sent[4242]; got != syscall.SIGTERM {
		t.Errorf("caddy got signal %v, want SIGTERM", got)
	}
}

func TestStatus(t *testing.T) {
	f := newFixture(t)
	if err := f.run(t, "status"); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(f.out.String(), "don't have any state yet") {
		t.Errorf("status without state: %s", f.out.String())
	}

	if err := f.run(t, "start"); err != nil {
		t.Fatal(err)
	}
	f.out.Reset()
	if err := f.run(t, "status", "--json"); err != nil {
		t.Fatal(err)
	}
	var report statusReport
	if err := json.Unmarshal(f.out.Bytes(), &report); err != nil {
		t.Fatalf("status --json: %v\n%s", err, f.out.String())
	}
	if report.Session.Name != "potatoname" || len(report.Services) < 2 {
		t.Errorf("report = %+v", report)
	}
	if report.Services[0].Name != "frontend" || report.Services[0].Location != "http://frontend.example.com" {
		t.Errorf("first service = %+v", report.Services[0])
	}
}

func TestPreviewPrintRequest(t *testing.T) {
	f := newFixture(t)
	if err := f.run(t, "preview", "frontend=http://pr-42.example.com", "--print-request"); err != nil {
		t.Fatal(err)
	}
	var doc domain.Document
	if err := json.Unmarshal(f.out.Bytes(), &doc); err != nil {
		t.Fatalf("preview request: %v\n%s", err, f.out.String())
	}
	if doc.Services[0].Location != "http://pr-42.example.com" || doc.Services[1].Location != "http://backend.example.com" {
		t.Errorf("services = %+v", doc.Services)
	}
	if len(f.remote.received("/preview")) != 0 {
		t.Error("--print-request must not send anything")
	}
}

func TestPreviewSends(t *testing.T) {
	f := newFixture(t)
	if err := f.run(t, "preview", "frontend=http://pr-42.example.com", "--qr"); err != nil {
		t.Fatal(err)
	}
	if len(f.remote.received("/preview")) != 1 {
		t.Fatal("preview not sent")
	}
	out := f.out.String()
	if !strings.Contains(out, "https://potatoname.example.com") {
		t.Errorf("output: %s", out)
	}
	if !strings.ContainsAny(out, "█▀▄") {
		t.Errorf("qr code missing:\n%s", out)
	}
}

func TestParseServiceTuples(t *testing.T) {
	got, err := parseServiceTuples([]string{"a=http://x", "b=http://y?q=1"})
	if err != nil || got["a"] != "http://x" || got["b"] != "http://y?q=1" {
		t.Errorf("parseServiceTuples() = %v, %v", got, err)
	}
	for _, bad := range []string{"noequals", "=http://x"} {
		if _, err := parseServiceTuples([]string{bad}); err == nil {
			t.Errorf("parseServiceTuples(%q) should fail", bad)
		}
	}
}

func TestServerRejectsUnknownMode(t *testing.T) {
	f := newFixture(t)
	if err := f.run(t, "server", "sideways"); err == nil {
		t.Error("server sideways should fail")
	}
}

func TestVersion(t *testing.T) {
	f := newFixture(t)
	if err := f.run(t, "version"); err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(f.out.String(), "linkup ") {
		t.Errorf("version output: %q", f.out.String())
	}
}
