// Package faults defines the error taxonomy shared by the gateway
// components. Components wrap these sentinels; the HTTP layer maps them to
// status codes exactly once. Messages stay generic so a caller cannot tell
// a missing resource from a wrong password.
package faults

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidCredential = errors.New("invalid credentials")
	ErrTokenInvalid      = errors.New("invalid access token")
	ErrTokenMismatch     = errors.New("access token does not match resource")
	ErrUpstreamFailure   = errors.New("upstream fetch failed")
	ErrStoreUnavailable  = errors.New("store unavailable")
)

// RateLimitedError carries the retry hint for 429 responses.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("too many attempts, retry in %s", e.RetryAfter.Round(time.Second))
}

// RateLimited builds the error with a conservative minimum hint of one
// second so clients never receive a zero or negative retry delay.
func RateLimited(retryAfter time.Duration) *RateLimitedError {
	if retryAfter < time.Second {
		retryAfter = time.Second
	}
	return &RateLimitedError{RetryAfter: retryAfter}
}

// IsRateLimited reports whether err is a rate-limit rejection and returns
// the hint when it is.
func IsRateLimited(err error) (*RateLimitedError, bool) {
	var rl *RateLimitedError
	if errors.As(err, &rl) {
		return rl, true
	}
	return nil, false
}
