package api

import (
	"errors"
	"fmt"
)

// ErrUnauthorized is returned for any 401 response, regardless of endpoint.
// It is the uniform session-expired signal: the caller must drop the stored
// token and force re-authentication. Never retried.
var ErrUnauthorized = errors.New("unauthorized: session expired")

// NetworkError wraps a transport-level failure. REST calls are never
// auto-retried; the failure surfaces to whatever action triggered the call.
type NetworkError struct {
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error: %v", e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// ServerError is a non-2xx response with a server-supplied detail body. The
// detail is surfaced verbatim.
type ServerError struct {
	StatusCode int
	Detail     string
}

func (e *ServerError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("server error: status %d", e.StatusCode)
	}
	return fmt.Sprintf("server error: %s", e.Detail)
}

// ValidationError reports a request rejected before any network call.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}
