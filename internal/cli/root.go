// Package cli is the `linkup` command line: it drives the local state file,
// the background services and the two linkup servers.
package cli

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/MrSnakeDoc/linkup/internal/background"
	"github.com/MrSnakeDoc/linkup/internal/config"
	"github.com/MrSnakeDoc/linkup/internal/linkupclient"
	"github.com/MrSnakeDoc/linkup/internal/localstate"
	"github.com/MrSnakeDoc/linkup/internal/logger"
	"github.com/MrSnakeDoc/linkup/internal/sources/linkupconfig"
	"github.com/MrSnakeDoc/linkup/internal/supervisor"
)

// cli holds what every command shares. The function fields are replaced in
// tests.
type cli struct {
	configFlag string

	out    io.Writer
	errOut io.Writer

	loadConfig func() *config.Config
	newLogger  func(cfg *config.Config) logger.Logger
	httpClient *http.Client

	core     func(env background.Env) []supervisor.Service
	localDNS func(env background.Env, st *localstate.State) []supervisor.Service
	all      func(env background.Env, st *localstate.State) []supervisor.Service
	newEnv   func(cfg *config.Config, log logger.Logger) background.Env
}

func newCLI() *cli {
	return &cli{
		out:        os.Stdout,
		errOut:     os.Stderr,
		loadConfig: config.Load,
		newLogger: func(cfg *config.Config) logger.Logger {
			return logger.New(cfg.LogLevel, cfg.PrettyLog)
		},
		httpClient: &http.Client{Timeout: 30 * time.Second},
		core:       background.Core,
		localDNS:   background.LocalDNS,
		all:        background.All,
		newEnv:     background.NewEnv,
	}
}

// NewRootCommand builds the `linkup` command tree.
func NewRootCommand() *cobra.Command {
	return newCLI().root()
}

// Execute runs the command line and returns the process exit code.
func Execute(ctx context.Context) int {
	cmd := NewRootCommand()
	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(cmd.ErrOrStderr(), "Error:", err)
		return 1
	}
	return 0
}

func (c *cli) root() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "linkup",
		Short:         "Route a shared environment to services running on your machine",
		Long:          "linkup runs a local router and a tunnel so that requests for your session reach the services you switched to local, while everything else keeps going to the shared remote environment.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.SetOut(c.out)
	cmd.SetErr(c.errOut)

	cmd.PersistentFlags().StringVarP(&c.configFlag, "config", "c", "", "Path to linkup.yml (defaults to $"+linkupconfig.EnvConfigPath+")")

	cmd.AddCommand(
		c.startCmd(),
		c.stopCmd(),
		c.statusCmd(),
		c.switchCmd("local", localstate.Local),
		c.switchCmd("remote", localstate.Remote),
		c.serverCmd(),
		c.previewCmd(),
		c.healthCmd(),
		c.versionCmd(),
	)
	return cmd
}

// projectConfig loads linkup.yml and returns it with its absolute path.
func (c *cli) projectConfig() (*linkupconfig.Config, string, error) {
	path, err := linkupconfig.ResolvePath(c.configFlag)
	if err != nil {
		return nil, "", err
	}
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	pc, err := linkupconfig.NewLoader(path).Load()
	if err != nil {
		return nil, "", fmt.Errorf("%s: %w", path, err)
	}
	return pc, path, nil
}

// upload registers st with the remote server and the local server.
func (c *cli) upload(ctx context.Context, cfg *config.Config, st *localstate.State) (string, error) {
	remote, err := linkupclient.New(st.Linkup.Remote, c.httpClient)
	if err != nil {
		return "", err
	}
	local, err := linkupclient.New(background.LocalServerURL(cfg), c.httpClient)
	if err != nil {
		return "", err
	}
	return linkupclient.UploadState(ctx, st, remote, local)
}

func (c *cli) printf(format string, args ...any) {
	fmt.Fprintf(c.out, format, args...)
}
