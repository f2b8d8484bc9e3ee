package supervisor

import (
	"errors"
	"fmt"
	"strconv"
	"syscall"
)

// StopPidFile signals the process recorded under name and removes the pid
// file once the outcome is known. A missing pid file or an already dead
// process count as stopped. Any other failure leaves the pid file in place.
func StopPidFile(reg Registry, sig Signaler, name string, signal syscall.Signal) error {
	pid, err := reg.ReadPid(name)
	if errors.Is(err, ErrNoPidFile) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("stop %s: %w", name, err)
	}

	if err := sig.Signal(pid, signal); err != nil && !errors.Is(err, ErrNoSuchProcess) {
		return fmt.Errorf("stop %s (pid %d): %w", name, pid, err)
	}
	return reg.RemovePid(name)
}

// LivePid returns the pid recorded under name unless signal 0 says
// the process is gone. Signal 0 refused with EPERM still means the process
// exists.
func LivePid(reg Registry, sig Signaler, name string) (int, bool) {
	pid, err := reg.ReadPid(name)
	if err != nil {
		return 0, false
	}
	if err := sig.Signal(pid, 0); errors.Is(err, ErrNoSuchProcess) {
		return 0, false
	}
	return pid, true
}

// PidString is LivePid formatted for Service.Pid.
func PidString(reg Registry, sig Signaler, name string) (string, bool) {
	pid, ok := LivePid(reg, sig, name)
	if !ok {
		return "", false
	}
	return strconv.Itoa(pid), true
}
