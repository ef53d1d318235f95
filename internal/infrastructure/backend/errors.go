package backend

import (
	"errors"
	"fmt"
)

// Sentinel errors for backend calls.
//
//	if errors.Is(err, backend.ErrUnreachable) {
//	    // network problem or timeout; the next event retries
//	}
var (
	// ErrUnreachable covers transport failures: refused connections,
	// DNS errors and timeouts.
	ErrUnreachable = errors.New("backend: unreachable")

	// ErrRejected means the backend answered with a non-200 status.
	// The concrete error is a *StatusError.
	ErrRejected = errors.New("backend: request rejected")

	// ErrInvalidResponse means a 200 response body could not be decoded.
	ErrInvalidResponse = errors.New("backend: invalid response")

	// ErrInvalidURL is returned by New for a base URL that is not absolute http(s).
	ErrInvalidURL = errors.New("backend: invalid base URL")
)

// StatusError carries the status of a rejected request.
type StatusError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("backend: %s %s: status %d", e.Method, e.Path, e.StatusCode)
	}
	return fmt.Sprintf("backend: %s %s: status %d: %s", e.Method, e.Path, e.StatusCode, e.Body)
}

// Unwrap lets errors.Is(err, ErrRejected) match.
func (e *StatusError) Unwrap() error {
	return ErrRejected
}
