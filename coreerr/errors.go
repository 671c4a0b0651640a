/*
Package coreerr defines the billing core's canonical error taxonomy
(spec §7): Validation, NotFound, Conflict, Transient, Permanent,
PartialFailure. Every public operation in the core returns an error
that either is, or wraps, a *CoreError so callers can branch on Kind()
instead of comparing a growing pile of sentinel errors.

This generalizes the teacher's generic/errors.go sentinel-per-failure
style (ErrDuplicateIdempotencyKey, ErrInsufficientBalance, ...) into a
single kind-tagged type; domain packages define no sentinels of their
own and build every error with New() or Wrap().
*/
package coreerr

import (
	"errors"
	"fmt"
)

// Kind is the canonical error taxonomy from spec §7.
type Kind string

const (
	// Validation: malformed input. Never retried, surfaced directly.
	Validation Kind = "validation"
	// NotFound: a required document is absent. Never retried.
	NotFound Kind = "not_found"
	// Conflict: optimistic-concurrency failure at commit. The payment
	// distributor re-runs its attempt up to three times, immediately,
	// with no delay between attempts.
	Conflict Kind = "conflict"
	// Transient: store/network hiccup. Retried by store.WithRetry for
	// operations a caller wraps in it; the stores do not retry on their own.
	Transient Kind = "transient"
	// Permanent: auth/permission/invariant violation. Never retried.
	// No audit entry is written for the failure.
	Permanent Kind = "permanent"
	// PartialFailure: only produced by the nightly scheduler.
	PartialFailure Kind = "partial_failure"
)

// CoreError is the tagged error every public operation returns.
type CoreError struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *CoreError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *CoreError) Unwrap() error { return e.Cause }

// New builds a CoreError of the given kind.
func New(kind Kind, message string) *CoreError {
	return &CoreError{Kind: kind, Message: message}
}

// Wrap builds a CoreError of the given kind around an existing cause.
func Wrap(kind Kind, message string, cause error) *CoreError {
	return &CoreError{Kind: kind, Message: message, Cause: cause}
}

// Is reports whether err carries the given Kind.
func Is(err error, kind Kind) bool {
	var ce *CoreError
	if errors.As(err, &ce) {
		return ce.Kind == kind
	}
	return false
}

// IsRetryableAtStore reports whether the store's internal retry loop
// should retry this error (Transient only — Conflict retries are the
// caller's responsibility, per spec §7).
func IsRetryableAtStore(err error) bool {
	return Is(err, Transient)
}

// GenericMessage is what a Permanent invariant violation shows an
// end user, per spec §7 ("a generic 'operation failed; contact
// support' message").
const GenericMessage = "operation failed; contact support"
