package tailorapi

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrMalformedResponse is returned when a 2xx body cannot be decoded or fails schema validation.
	ErrMalformedResponse = errors.New("malformed response")
	// ErrMissingJobID is returned when the optimize endpoint accepts a request without returning a job id.
	ErrMissingJobID = errors.New("no job id returned from the API")
)

// APIError is a non-2xx answer from the remote service.
type APIError struct {
	Op         string
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return e.Message
}

// TransportError wraps a request that never produced an HTTP response.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	if e.Timeout() {
		return fmt.Sprintf("%s request timeout: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s network error: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Timeout reports whether the request hit the client deadline.
func (e *TransportError) Timeout() bool {
	return errors.Is(e.Err, context.DeadlineExceeded) || strings.Contains(e.Err.Error(), "Client.Timeout")
}
