/**
 * @description
 * Typed authentication and authorization failures returned by the session
 * manager and the permission evaluator. Callers branch with errors.Is; the
 * lockout and throttle variants carry data through small carrier types that
 * unwrap to their sentinels.
 */

package auth

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInvalidCredentials is returned both for an unknown login id and for
	// a wrong secret, so a caller cannot probe which identifiers exist.
	ErrInvalidCredentials = errors.New("invalid credentials")

	ErrAlreadyAuthenticated = errors.New("session already authenticated")
	ErrNotAuthenticated     = errors.New("not authenticated")
	ErrPermissionDenied     = errors.New("permission denied")
	ErrAccountLocked        = errors.New("account locked")
	ErrLoginThrottled       = errors.New("too many login attempts")
)

// AccountLockedError reports a login rejected inside a lockout window.
type AccountLockedError struct {
	Until time.Time
}

func (e *AccountLockedError) Error() string {
	return fmt.Sprintf("account locked until %s", e.Until.Format(time.RFC3339))
}

func (e *AccountLockedError) Unwrap() error { return ErrAccountLocked }

// ThrottledError reports a login rejected by the distributed rate limiter
// before any credential was examined.
type ThrottledError struct {
	RetryAfterSeconds int
}

func (e *ThrottledError) Error() string {
	return fmt.Sprintf("too many login attempts, retry in %ds", e.RetryAfterSeconds)
}

func (e *ThrottledError) Unwrap() error { return ErrLoginThrottled }
