package provider

import "errors"

var (
	// ErrInvalidConfig marks an invalid or unreachable provider
	// configuration. Fatal, surfaced immediately, never retried.
	ErrInvalidConfig = errors.New("invalid provider config")

	// Storage errors. RateLimited and Transient are retryable; NotFound and
	// Unauthorized are fatal and surfaced to the caller.
	ErrRateLimited  = errors.New("rate limited")
	ErrNotFound     = errors.New("not found in storage")
	ErrTransient    = errors.New("transient storage error")
	ErrUnauthorized = errors.New("unauthorized")
)

// IsRetryable reports whether err is worth retrying with backoff.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrRateLimited) || errors.Is(err, ErrTransient)
}
