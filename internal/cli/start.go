package cli

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/MrSnakeDoc/linkup/internal/config"
	"github.com/MrSnakeDoc/linkup/internal/domain"
	"github.com/MrSnakeDoc/linkup/internal/envfile"
	"github.com/MrSnakeDoc/linkup/internal/linkupclient"
	"github.com/MrSnakeDoc/linkup/internal/localstate"
	"github.com/MrSnakeDoc/linkup/internal/logger"
	"github.com/MrSnakeDoc/linkup/internal/sources/linkupconfig"
	"github.com/MrSnakeDoc/linkup/internal/supervisor"
)

func (c *cli) startCmd() *cobra.Command {
	var noTunnel, qr bool
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the local server and the tunnel, then register the session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.runStart(cmd.Context(), noTunnel, qr)
		},
	}
	cmd.Flags().BoolVarP(&noTunnel, "no-tunnel", "n", false, "Start without a tunnel. Requests from the remote environment to local services will fail.")
	cmd.Flags().BoolVar(&qr, "qr", false, "Print a QR code of the first session URL")
	return cmd
}

func (c *cli) runStart(ctx context.Context, noTunnel, qr bool) error {
	cfg := c.loadConfig()
	if noTunnel {
		cfg.NoTunnel = true
	}
	log := c.newLogger(cfg)
	defer func() { _ = log.Sync() }()

	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return fmt.Errorf("create linkup directory: %w", err)
	}

	pc, configPath, err := c.projectConfig()
	if err != nil {
		return err
	}
	st, err := loadAndSaveState(cfg, pc, configPath)
	if err != nil {
		return err
	}
	applyEnvFiles(st, log)

	ctx, cancel := context.WithTimeout(ctx, cfg.StartTimeout)
	defer cancel()

	env := c.newEnv(cfg, log)
	sup := &supervisor.Supervisor{
		Registry: env.Registry,
		Signaler: env.Signaler,
		Logger:   log,
		Poll:     poll(cfg),
		State:    st,
		Progress: c.progress,
	}

	c.printf("Background services:\n")
	if err := supervisor.Failure(sup.Start(ctx, c.core(env)...)); err != nil {
		return fmt.Errorf("failed to start linkup: %w", err)
	}

	// The tunnel published its URL into st; keep it for the next start.
	tunnel := st.Linkup.Tunnel
	st, err = localstate.Update(cfg.StatePath(), func(s *localstate.State) error {
		s.Linkup.Tunnel = tunnel
		return nil
	})
	if err != nil {
		return err
	}

	name, err := c.upload(ctx, cfg, st)
	if err != nil {
		return err
	}
	st, err = localstate.Update(cfg.StatePath(), func(s *localstate.State) error {
		s.Linkup.SessionName = name
		return nil
	})
	if err != nil {
		return err
	}
	log.Info("session registered",
		logger.String("session", name),
		logger.Bool("tunnel", st.HasTunnel()))

	if dns := c.localDNS(env, st); len(dns) > 0 {
		sup.State = st
		if err := supervisor.Failure(sup.Start(ctx, dns...)); err != nil {
			return fmt.Errorf("failed to start local dns: %w", err)
		}
	}

	c.printf("\n")
	return c.printSession(name, st.Domains, qr)
}

// loadAndSaveState builds a fresh state from the project config. The session
// name and token survive from the previous state, and so does the tunnel
// unless this start runs without one.
func loadAndSaveState(cfg *config.Config, pc *linkupconfig.Config, configPath string) (*localstate.State, error) {
	st := localstate.FromConfig(pc, configPath)

	prev, err := localstate.Load(cfg.StatePath())
	switch {
	case err == nil:
		st.Linkup.SessionName = prev.Linkup.SessionName
		st.Linkup.SessionToken = prev.Linkup.SessionToken
		if !cfg.NoTunnel && prev.Linkup.Tunnel != "" {
			st.Linkup.Tunnel = prev.Linkup.Tunnel
		}
	case errors.Is(err, localstate.ErrNoState):
	default:
		return nil, err
	}

	if err := localstate.Replace(cfg.StatePath(), st); err != nil {
		return nil, err
	}
	return st, nil
}

// applyEnvFiles splices each service's .env.*.linkup files into its env
// files. A service without sources is only worth a warning.
func applyEnvFiles(st *localstate.State, log logger.Logger) {
	for _, svc := range st.Services {
		if svc.Directory == "" {
			continue
		}
		dir := envfile.ServiceDir(st.Linkup.ConfigPath, svc.Directory)
		if err := envfile.Apply(dir); err != nil {
			log.Warn("linkup env not applied",
				logger.String("service", svc.Name),
				logger.String("dir", dir),
				logger.Error(err))
		}
	}
}

func poll(cfg *config.Config) supervisor.Poll {
	p := supervisor.DefaultPoll
	if cfg.ReadyMaxAttempts > 0 {
		p.MaxAttempts = cfg.ReadyMaxAttempts
	}
	return p
}

func (c *cli) progress(r supervisor.Result) {
	if !r.State.Terminal() {
		return
	}
	line := fmt.Sprintf("%-20s %s", r.Name, r.State)
	if r.Detail != "" {
		line += " (" + r.Detail + ")"
	}
	c.printf("%s\n", line)
}

func (c *cli) printSession(name string, domains []domain.DomainSpec, qr bool) error {
	urls := linkupclient.SessionURLs(name, domains)
	c.printf("Session Name: %s\n", name)
	c.printf("Domains:\n")
	for _, u := range urls {
		c.printf("    %s\n", u)
	}
	if qr && len(urls) > 0 {
		c.printf("\n")
		return c.printQR(urls[0])
	}
	return nil
}
