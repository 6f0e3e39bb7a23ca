// Package errs defines the error categories surfaced to the user.
// Concrete errors wrap one of these so callers can classify them with errors.Is.
package errs

import "errors"

var (
	// ErrAuth covers challenge, signature and login failures.
	ErrAuth = errors.New("authentication failed")
	// ErrAuthRequired is returned when an action needs a backend session and none exists.
	ErrAuthRequired = errors.New("authentication required")
	// ErrValidation is a client-side input error; no network call was made.
	ErrValidation = errors.New("validation error")
	// ErrBackend is a non-2xx or malformed backend response.
	ErrBackend = errors.New("backend error")
	// ErrChain covers signature rejection, reverts and confirmation timeouts.
	ErrChain = errors.New("chain error")
	// ErrStaleSession means the session changed while a request was in flight.
	ErrStaleSession = errors.New("session changed")
)

// Title returns the short notification title for an error category.
func Title(err error) string {
	switch {
	case errors.Is(err, ErrAuthRequired):
		return "Authentication required"
	case errors.Is(err, ErrAuth):
		return "Authentication failed"
	case errors.Is(err, ErrValidation):
		return "Invalid input"
	case errors.Is(err, ErrChain):
		return "Transaction failed"
	case errors.Is(err, ErrBackend):
		return "Server error"
	case errors.Is(err, ErrStaleSession):
		return "Session changed"
	default:
		return "Unexpected error"
	}
}
