package payment

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/satoshigo/hunt/pkg/core"
)

// HTTPError represents a non-2xx response from the payment API.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("payment: HTTP %d: %s", e.StatusCode, e.Body)
}

// IsRetryable returns true for rate limits (429) and server errors (5xx).
func (e *HTTPError) IsRetryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// Unwrap classifies the response for errors.Is.
func (e *HTTPError) Unwrap() error {
	switch {
	case e.IsRetryable():
		return core.ErrUpstreamUnavailable
	case e.StatusCode == http.StatusNotFound:
		return core.ErrNotFound
	case e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden:
		return core.ErrForbidden
	default:
		return nil
	}
}

// IsRetryable reports whether err is worth another attempt.
func IsRetryable(err error) bool {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.IsRetryable()
	}
	return core.IsRetryable(err)
}
