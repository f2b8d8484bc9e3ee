package supervisor

import "errors"

var (
	// ErrNoPidFile means the service was never started or was stopped cleanly.
	ErrNoPidFile = errors.New("no pid file")
	// ErrMalformedPid means the pid file exists but does not hold a positive integer.
	ErrMalformedPid = errors.New("malformed pid file")
	// ErrNoSuchProcess means the pid named by a pid file is gone (ESRCH).
	ErrNoSuchProcess = errors.New("no such process")
	// ErrReadyTimeout means a started service never passed its readiness check.
	ErrReadyTimeout = errors.New("service did not become ready")
)
