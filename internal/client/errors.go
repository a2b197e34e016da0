package client

import (
	"errors"
	"fmt"
)

// ErrNotFound reports an authoritative "no such row" from the backend,
// as opposed to a transient failure. Callers branch on it: the profile
// resolver clears its cache, the registration poll keeps waiting.
var ErrNotFound = errors.New("not found")

// ErrRPCUnavailable reports that the backend does not expose the named
// RPC function. The capability probe caches this once at startup.
var ErrRPCUnavailable = errors.New("rpc not available")

// AuthError is an authoritative rejection from the auth endpoints (bad
// credentials, duplicate email, weak password). It carries the backend
// code so the UI layer can decide what to show.
type AuthError struct {
	Status int
	Code   string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("auth rejected: %s (status %d)", e.Code, e.Status)
}

// TransientError wraps failures worth retrying: timeouts, connection
// errors, 5xx responses.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return fmt.Sprintf("transient: %v", e.Err) }

func (e *TransientError) Unwrap() error { return e.Err }

// IsTransient reports whether err should be retried.
func IsTransient(err error) bool {
	var transient *TransientError
	return errors.As(err, &transient)
}
