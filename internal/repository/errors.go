package repository

import "errors"

// Sentinel errors classifying repository failures. The execution engine
// retries transient errors and fails immediately on permanent ones, so
// implementations must wrap their failures in exactly one of these.
var (
	// ErrNotFound: no entity with the requested id. Permanent.
	ErrNotFound = errors.New("entity not found")

	// ErrConflict: version conflict on write. Permanent.
	ErrConflict = errors.New("version conflict")

	// ErrInvalid: the repository rejected the payload. Permanent.
	ErrInvalid = errors.New("invalid entity payload")

	// ErrRateLimited: the repository asked us to slow down. Transient.
	ErrRateLimited = errors.New("rate limited")

	// ErrUnavailable: server-error class failure. Transient.
	ErrUnavailable = errors.New("repository unavailable")
)

// IsTransient reports whether an error is worth retrying with backoff.
// Anything not explicitly transient is treated as permanent.
func IsTransient(err error) bool {
	return errors.Is(err, ErrRateLimited) || errors.Is(err, ErrUnavailable)
}
