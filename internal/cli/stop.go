package cli

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"github.com/MrSnakeDoc/linkup/internal/envfile"
	"github.com/MrSnakeDoc/linkup/internal/localstate"
	"github.com/MrSnakeDoc/linkup/internal/logger"
	"github.com/MrSnakeDoc/linkup/internal/supervisor"
)

func (c *cli) stopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop every background service and restore env files",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.runStop(cmd.Context())
		},
	}
}

func (c *cli) runStop(ctx context.Context) error {
	cfg := c.loadConfig()
	log := c.newLogger(cfg)
	defer func() { _ = log.Sync() }()

	st, err := localstate.Load(cfg.StatePath())
	switch {
	case err == nil:
		for _, svc := range st.Services {
			if svc.Directory == "" {
				continue
			}
			if err := envfile.Restore(envfile.ServiceDir(st.Linkup.ConfigPath, svc.Directory)); err != nil {
				c.printf("Could not remove env for service %s: %v\n", svc.Name, err)
			}
		}
	case errors.Is(err, localstate.ErrNoState):
		st = &localstate.State{}
	default:
		log.Warn("failed to load local state", logger.Error(err))
		st = &localstate.State{}
	}

	env := c.newEnv(cfg, log)
	sup := &supervisor.Supervisor{Registry: env.Registry, Signaler: env.Signaler, Logger: log}
	if err := sup.Stop(ctx, c.all(env, st)...); err != nil {
		return err
	}

	c.printf("Stopped linkup\n")
	return nil
}
