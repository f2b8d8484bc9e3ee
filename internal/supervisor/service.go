package supervisor

import (
	"context"

	"github.com/MrSnakeDoc/linkup/internal/localstate"
)

// Service is a background process the CLI manages across invocations.
type Service interface {
	Name() string
	// Setup prepares files the process needs (config files, directories).
	Setup(ctx context.Context) error
	// Start spawns the process and returns without waiting for readiness.
	Start(ctx context.Context) error
	// Ready runs one readiness check.
	Ready(ctx context.Context) bool
	// Stop signals the process through its pid file.
	Stop(ctx context.Context) error
	// Pid returns the pid of the live process, if any.
	Pid() (string, bool)
}

// StateUpdater is implemented by services that publish something into the
// local state once started, like the tunnel URL.
type StateUpdater interface {
	UpdateLocalState(s *localstate.State) error
}

// Skipper is implemented by services that may be disabled by configuration.
type Skipper interface {
	Skip() (reason string, skip bool)
}

// Result is the outcome of starting one service.
type Result struct {
	Name   string
	State  State
	Detail string
	Err    error
}

// Status is one line of `linkup status`.
type Status struct {
	Name  string
	State State
	Pid   string
}
