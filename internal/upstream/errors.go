package upstream

import (
	"errors"
	"fmt"
)

// Sentinel errors for the upstream error taxonomy. Unauthorized is
// recoverable by re-login, not by retry; NotFound and Inactive are terminal
// for an attempt.
var (
	ErrUnauthorized = errors.New("missing or rejected credential")
	ErrNotFound     = errors.New("exam not found")
	ErrInactive     = errors.New("exam is not active")
)

// ServerError means the upstream answered but refused the request. Message
// is the upstream's own message, surfaced verbatim to the caller.
type ServerError struct {
	StatusCode int
	Message    string
}

func (e *ServerError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("upstream returned status %d", e.StatusCode)
}

// NetworkError means the request never produced an upstream response.
// Submissions failing this way leave the attempt open for retry.
type NetworkError struct {
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("upstream unreachable: %v", e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// Retryable reports whether an error leaves the attempt in a retryable
// state (network failures and upstream 5xx).
func Retryable(err error) bool {
	var netErr *NetworkError
	if errors.As(err, &netErr) {
		return true
	}
	var srvErr *ServerError
	if errors.As(err, &srvErr) {
		return srvErr.StatusCode >= 500
	}
	return false
}
