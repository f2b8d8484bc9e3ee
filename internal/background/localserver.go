package background

import (
	"context"
	"fmt"
	"os"
	"syscall"

	"github.com/MrSnakeDoc/linkup/internal/config"
	"github.com/MrSnakeDoc/linkup/internal/supervisor"
)

// LocalServerName is also the pid file prefix.
const LocalServerName = "localserver"

// LocalServer re-executes the running binary as `linkup server local`.
type LocalServer struct {
	daemon
	Executable string
}

func NewLocalServer(env Env) *LocalServer {
	exe, err := os.Executable()
	if err != nil {
		exe = os.Args[0]
	}
	return &LocalServer{
		daemon:     daemon{env: env, name: LocalServerName, stop: syscall.SIGINT},
		Executable: exe,
	}
}

func (s *LocalServer) Setup(context.Context) error {
	return os.MkdirAll(s.env.Config.Dir, 0o755)
}

func (s *LocalServer) Start(ctx context.Context) error {
	pid, err := supervisor.Spawn(ctx, supervisor.Command{
		Path:   s.Executable,
		Args:   []string{"server", "local"},
		Dir:    s.env.Config.Dir,
		Stdout: s.file("stdout"),
		Stderr: s.file("stderr"),
	})
	if err != nil {
		return err
	}
	return s.env.Registry.WritePid(s.name, pid)
}

func (s *LocalServer) Ready(ctx context.Context) bool {
	return httpOK(ctx, s.env.HTTP, s.URL()+"/linkup/check")
}

// URL is where the local server listens.
func (s *LocalServer) URL() string {
	return LocalServerURL(s.env.Config)
}

// LocalServerURL is the base URL of the local server configured by cfg.
func LocalServerURL(cfg *config.Config) string {
	return fmt.Sprintf("http://localhost:%d", cfg.Port())
}
