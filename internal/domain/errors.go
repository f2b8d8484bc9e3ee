package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Resolution errors. They fail a single request and never touch stored state.
var (
	ErrUnknownSession           = errors.New("no session found for request")
	ErrUnknownDomain            = errors.New("no domain in session matches request host")
	ErrDanglingServiceReference = errors.New("domain references a service missing from the session")
	ErrNoLocalLocation          = errors.New("service is routed locally but has no local address")
)

// Naming errors.
var (
	ErrNameExhausted = errors.New("could not find a free session name")
	ErrNameTaken     = errors.New("session name is already taken")
)

// ErrBackend marks a storage fault (I/O, connection). A missing key is never
// reported with it. Callers may retry these.
var ErrBackend = errors.New("session backend failure")

// BackendError wraps err so that errors.Is(err, ErrBackend) holds.
func BackendError(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", op, ErrBackend, err)
}

// ValidationError describes one problem with a session document.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// ValidationErrors aggregates every problem found in a document so the caller
// can fix them in one go.
type ValidationErrors []*ValidationError

func (v ValidationErrors) Error() string {
	parts := make([]string, 0, len(v))
	for _, e := range v {
		parts = append(parts, e.Error())
	}
	return "invalid session: " + strings.Join(parts, "; ")
}

// IsValidation reports whether err carries validation problems.
func IsValidation(err error) bool {
	var v ValidationErrors
	if errors.As(err, &v) {
		return true
	}
	var one *ValidationError
	return errors.As(err, &one)
}

// IsResolution reports whether err is a per-request routing failure.
func IsResolution(err error) bool {
	return errors.Is(err, ErrUnknownSession) ||
		errors.Is(err, ErrUnknownDomain) ||
		errors.Is(err, ErrDanglingServiceReference) ||
		errors.Is(err, ErrNoLocalLocation)
}
