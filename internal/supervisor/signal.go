package supervisor

import (
	"errors"
	"fmt"
	"syscall"

	"golang.org/x/sys/unix"
)

// Signaler delivers signals. Signal 0 only checks liveness.
type Signaler interface {
	Signal(pid int, sig syscall.Signal) error
}

// UnixSignaler signals real processes with kill(2).
type UnixSignaler struct{}

func (UnixSignaler) Signal(pid int, sig syscall.Signal) error {
	// kill(0) and kill(-1) address process groups
	if pid <= 0 {
		return fmt.Errorf("%w: refusing to signal pid %d", ErrMalformedPid, pid)
	}
	err := unix.Kill(pid, sig)
	if errors.Is(err, unix.ESRCH) {
		return fmt.Errorf("%w: %d", ErrNoSuchProcess, pid)
	}
	if err != nil {
		return fmt.Errorf("signal %v to %d: %w", sig, pid, err)
	}
	return nil
}
