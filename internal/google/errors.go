package google

import (
	"errors"
	"fmt"
)

// ErrAuthFailure is matched by every error caused by a failed or cancelled
// authorization, code exchange, token refresh or profile lookup.
var ErrAuthFailure = errors.New("authorization failed")

// ErrAuthMismatch is matched when the authorized identity differs from the
// expected account. It is not retryable.
var ErrAuthMismatch = errors.New("authorized account does not match")

// Operation names used in AuthError.
const (
	OpAuthorize = "authorize"
	OpExchange  = "exchange"
	OpRefresh   = "refresh"
	OpUserinfo  = "userinfo"
)

// AuthError describes a failed credential operation.
type AuthError struct {
	// Email is the expected account, empty for a fresh login.
	Email string
	Op    string
	Err   error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
}

// Unwrap exposes both ErrAuthFailure and the underlying cause.
func (e *AuthError) Unwrap() []error {
	return []error{ErrAuthFailure, e.Err}
}

// MismatchError is returned when the profile email differs from the
// expected one.
type MismatchError struct {
	Expected string
	Got      string
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("signed in as %s but expected %s", e.Got, e.Expected)
}

// Is makes errors.Is(err, ErrAuthMismatch) hold.
func (e *MismatchError) Is(target error) bool {
	return target == ErrAuthMismatch
}

func authError(email, op string, err error) error {
	return &AuthError{Email: email, Op: op, Err: err}
}
