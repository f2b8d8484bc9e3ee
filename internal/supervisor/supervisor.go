package supervisor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jpillora/backoff"

	"github.com/MrSnakeDoc/linkup/internal/localstate"
	"github.com/MrSnakeDoc/linkup/internal/logger"
)

// Poll bounds readiness polling after a start.
type Poll struct {
	Min         time.Duration // first wait between checks
	Max         time.Duration // cap on the wait between checks
	MaxAttempts int           // checks before giving up with Timeout
}

// DefaultPoll matches the budget the CLI uses unless configured otherwise.
var DefaultPoll = Poll{Min: 250 * time.Millisecond, Max: 2 * time.Second, MaxAttempts: 40}

// Supervisor starts, inspects and stops background services.
type Supervisor struct {
	Registry Registry
	Signaler Signaler
	Logger   logger.Logger
	Poll     Poll

	// State receives UpdateLocalState from services that publish into it once
	// started. Nil skips publishing.
	State *localstate.State

	// Progress, when set, sees every state transition.
	Progress func(Result)
}

// Start brings services up in order. The first service that fails or times
// out ends the run; the ones after it stay Pending.
func (s *Supervisor) Start(ctx context.Context, services ...Service) []Result {
	results := make([]Result, len(services))
	for i, svc := range services {
		results[i] = Result{Name: svc.Name(), State: Pending}
		s.report(results[i])
	}

	for i, svc := range services {
		results[i] = s.start(ctx, svc)
		if !results[i].State.OK() {
			break
		}
	}
	return results
}

func (s *Supervisor) start(ctx context.Context, svc Service) Result {
	res := Result{Name: svc.Name()}

	if sk, ok := svc.(Skipper); ok {
		if reason, skip := sk.Skip(); skip {
			return s.transition(res, Skipped, reason, nil)
		}
	}
	// A live pid belongs to an earlier start. Spawning again would orphan it,
	// so the supervisor only waits for it to become ready.
	if _, alive := svc.Pid(); alive {
		if svc.Ready(ctx) {
			res = s.transition(res, Skipped, "already running", nil)
			return s.publish(svc, res)
		}
		res = s.transition(res, Starting, "already running", nil)
	} else {
		res = s.transition(res, Starting, "", nil)
		if err := svc.Setup(ctx); err != nil {
			return s.transition(res, Failed, "setup failed", err)
		}
		if err := svc.Start(ctx); err != nil {
			return s.transition(res, Failed, "start failed", err)
		}
	}
	if err := s.waitReady(ctx, svc); err != nil {
		return s.transition(res, Timeout, "not ready", err)
	}

	res = s.transition(res, Started, "", nil)
	return s.publish(svc, res)
}

func (s *Supervisor) publish(svc Service, res Result) Result {
	u, ok := svc.(StateUpdater)
	if !ok || s.State == nil {
		return res
	}
	if err := u.UpdateLocalState(s.State); err != nil {
		return s.transition(res, Failed, "state update failed", err)
	}
	return res
}

// waitReady polls svc with growing pauses until it reports ready, the
// attempts run out or ctx ends.
func (s *Supervisor) waitReady(ctx context.Context, svc Service) error {
	p := s.Poll
	if p.MaxAttempts <= 0 {
		p = DefaultPoll
	}
	b := &backoff.Backoff{Min: p.Min, Max: p.Max, Factor: 1.5}

	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if svc.Ready(ctx) {
			return nil
		}
		wait := b.Duration()
		s.Logger.Debug("waiting for service",
			logger.String("service", svc.Name()),
			logger.Int("attempt", attempt),
			logger.Duration("next_check_in", wait))

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("%w: %s: %w", ErrReadyTimeout, svc.Name(), ctx.Err())
		case <-timer.C:
		}
	}
	return fmt.Errorf("%w: %s after %d checks", ErrReadyTimeout, svc.Name(), p.MaxAttempts)
}

func (s *Supervisor) transition(res Result, st State, detail string, err error) Result {
	res.State = st
	res.Detail = detail
	res.Err = err

	fields := []logger.Field{
		logger.String("service", res.Name),
		logger.String("state", st.String()),
	}
	if detail != "" {
		fields = append(fields, logger.String("detail", detail))
	}
	if err != nil {
		fields = append(fields, logger.Error(err))
		s.Logger.Warn("service state changed", fields...)
	} else {
		s.Logger.Info("service state changed", fields...)
	}
	s.report(res)
	return res
}

func (s *Supervisor) report(res Result) {
	if s.Progress != nil {
		s.Progress(res)
	}
}

// UpdateState inspects a service without changing it.
func (s *Supervisor) UpdateState(ctx context.Context, svc Service) State {
	if _, alive := svc.Pid(); !alive {
		return Pending
	}
	if svc.Ready(ctx) {
		return Started
	}
	return Starting
}

// Status reports every service for `linkup status`.
func (s *Supervisor) Status(ctx context.Context, services ...Service) []Status {
	out := make([]Status, 0, len(services))
	for _, svc := range services {
		pid, _ := svc.Pid()
		out = append(out, Status{Name: svc.Name(), State: s.UpdateState(ctx, svc), Pid: pid})
	}
	return out
}

// Stop stops services in reverse order and joins every error.
func (s *Supervisor) Stop(ctx context.Context, services ...Service) error {
	var errs []error
	for i := len(services) - 1; i >= 0; i-- {
		svc := services[i]
		if err := svc.Stop(ctx); err != nil {
			s.Logger.Warn("failed to stop service",
				logger.String("service", svc.Name()),
				logger.Error(err))
			errs = append(errs, err)
			continue
		}
		s.Logger.Info("service stopped", logger.String("service", svc.Name()))
	}
	return errors.Join(errs...)
}

// Failure returns the first failed result as an error, nil when all are usable.
func Failure(results []Result) error {
	for _, r := range results {
		if r.State == Timeout || r.State == Failed {
			if r.Err != nil {
				return fmt.Errorf("%s: %s: %w", r.Name, r.Detail, r.Err)
			}
			return fmt.Errorf("%s: %s", r.Name, r.Detail)
		}
	}
	return nil
}
