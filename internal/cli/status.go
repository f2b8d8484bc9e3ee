package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/MrSnakeDoc/linkup/internal/linkupclient"
	"github.com/MrSnakeDoc/linkup/internal/localstate"
	"github.com/MrSnakeDoc/linkup/internal/supervisor"
)

type sessionStatus struct {
	Name    string   `json:"name"`
	Domains []string `json:"domains"`
}

type serviceStatus struct {
	Name     string `json:"name"`
	Kind     string `json:"component_kind"`
	Status   string `json:"status"`
	Location string `json:"location"`
	Pid      string `json:"pid,omitempty"`
}

type statusReport struct {
	Session  sessionStatus   `json:"session"`
	Services []serviceStatus `json:"services"`
}

func (c *cli) statusCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the session, where each service routes and the background services",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.runStatus(cmd.Context(), asJSON)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the status as JSON")
	return cmd
}

func (c *cli) runStatus(ctx context.Context, asJSON bool) error {
	cfg := c.loadConfig()
	st, err := localstate.Load(cfg.StatePath())
	if errors.Is(err, localstate.ErrNoState) {
		c.printf("Seems like you don't have any state yet, so there is no status to report.\n")
		c.printf("Have you run 'linkup start' at least once?\n")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load local state: %w", err)
	}

	log := c.newLogger(cfg)
	env := c.newEnv(cfg, log)
	sup := &supervisor.Supervisor{Registry: env.Registry, Signaler: env.Signaler, Logger: log}
	report := buildStatus(st, sup.Status(ctx, c.all(env, st)...))

	if asJSON {
		enc := json.NewEncoder(c.out)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}
	return writeStatus(c.out, report)
}

func buildStatus(st *localstate.State, background []supervisor.Status) statusReport {
	r := statusReport{
		Session: sessionStatus{
			Name:    st.Linkup.SessionName,
			Domains: linkupclient.SessionURLs(st.Linkup.SessionName, st.Domains),
		},
	}
	for _, svc := range st.Services {
		location := svc.Remote
		if svc.Current == localstate.Local {
			location = svc.Local
		}
		r.Services = append(r.Services, serviceStatus{
			Name:     svc.Name,
			Kind:     svc.Current.String(),
			Status:   "-",
			Location: location,
		})
	}
	for _, b := range background {
		r.Services = append(r.Services, serviceStatus{
			Name:   b.Name,
			Kind:   "linkup",
			Status: b.State.String(),
			Pid:    b.Pid,
		})
	}
	return r
}

func writeStatus(w io.Writer, r statusReport) error {
	fmt.Fprintf(w, "Session Name: %s\n", r.Session.Name)
	fmt.Fprintf(w, "Domains:\n")
	for _, d := range r.Session.Domains {
		fmt.Fprintf(w, "    %s\n", d)
	}
	fmt.Fprintln(w)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SERVICE NAME\tCOMPONENT KIND\tSTATUS\tLOCATION\tPID")
	for _, s := range r.Services {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", s.Name, s.Kind, s.Status, s.Location, s.Pid)
	}
	return tw.Flush()
}
