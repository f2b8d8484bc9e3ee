package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/MrSnakeDoc/linkup/internal/localstate"
)

var errNoServices = errors.New("no service names provided")

// switchCmd builds `linkup local` and `linkup remote`.
func (c *cli) switchCmd(use string, target localstate.Target) *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   use + " [SERVICE_NAMES...]",
		Short: fmt.Sprintf("Route services to their %s location", use),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runSwitch(cmd.Context(), target, args, all)
		},
	}
	cmd.Flags().BoolVarP(&all, "all", "a", false, fmt.Sprintf("Route all the services to %s. Cannot be used with SERVICE_NAMES.", use))
	return cmd
}

func (c *cli) runSwitch(ctx context.Context, target localstate.Target, names []string, all bool) error {
	if all && len(names) > 0 {
		return errors.New("--all cannot be combined with service names")
	}
	if !all && len(names) == 0 {
		return errNoServices
	}

	cfg := c.loadConfig()
	st, err := localstate.Update(cfg.StatePath(), func(s *localstate.State) error {
		return switchTargets(s, target, names, all)
	})
	if err != nil {
		return err
	}

	if _, err := c.upload(ctx, cfg, st); err != nil {
		return err
	}

	if all {
		c.printf("Linkup is routing all traffic to the %s servers\n", target)
	} else {
		c.printf("Linkup is routing %s traffic to the %s server\n", strings.Join(names, ", "), target)
	}
	return nil
}

// switchTargets points the named services (or all of them) at target. Every
// name must exist; nothing changes when one does not.
func switchTargets(s *localstate.State, target localstate.Target, names []string, all bool) error {
	if all {
		s.SetAll(target)
		return nil
	}
	for _, n := range names {
		if _, ok := s.Service(n); !ok {
			return fmt.Errorf("service with name '%s' does not exist", n)
		}
	}
	for _, n := range names {
		s.SetCurrent(n, target)
	}
	return nil
}
