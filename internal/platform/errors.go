package platform

import (
	"errors"
	"fmt"
	"time"
)

// TransientError covers network and server-side failures that are safe to
// retry with backoff.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("platform: transient failure during %s: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// AuthError means the platform rejected the session. Terminal: the stored
// credential must be marked invalid and the user re-authenticated.
type AuthError struct {
	Reason string
}

func (e *AuthError) Error() string {
	return "platform: authentication failed: " + e.Reason
}

// RateLimitedError carries the platform-issued wait. The delay is
// authoritative: sleep exactly RetryAfter, then retry without consuming a
// generic retry slot.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("platform: rate limited, retry after %s", e.RetryAfter)
}

func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

func IsAuth(err error) bool {
	var ae *AuthError
	return errors.As(err, &ae)
}

// RateLimitDelay returns the mandated wait and whether err is a rate-limit
// signal.
func RateLimitDelay(err error) (time.Duration, bool) {
	var re *RateLimitedError
	if errors.As(err, &re) {
		return re.RetryAfter, true
	}
	return 0, false
}
