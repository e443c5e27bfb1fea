package persist

import (
	"fmt"
)

// ErrNotFound is returned when an id does not resolve in any chain
type ErrNotFound struct {
	Kind string
	ID   string
}

func (e ErrNotFound) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, e.ID)
}

// ErrInvalidInput is returned for malformed ids and parameters
type ErrInvalidInput struct {
	Parameter string
	Reason    string
}

func (e ErrInvalidInput) Error() string {
	return fmt.Sprintf("invalid input: parameter: %s, reason: %s", e.Parameter, e.Reason)
}

// ErrUpstream is returned when a chain backend or the order backend fails
type ErrUpstream struct {
	Chain Chain
	Op    string
	Err   error
}

func (e ErrUpstream) Error() string {
	return fmt.Sprintf("upstream failure on chain %s during %s: %s", e.Chain, e.Op, e.Err)
}

func (e ErrUpstream) Unwrap() error {
	return e.Err
}

// ErrConcurrentWrite is returned when an optimistic write keeps losing to concurrent writers.
// The caller may safely retry the whole operation.
type ErrConcurrentWrite struct {
	Key      string
	Attempts int
	Err      error
}

func (e ErrConcurrentWrite) Error() string {
	return fmt.Sprintf("concurrent write conflict on %s after %d attempts: %s", e.Key, e.Attempts, e.Err)
}

func (e ErrConcurrentWrite) Unwrap() error {
	return e.Err
}

func (e ErrConcurrentWrite) Retryable() bool {
	return true
}
