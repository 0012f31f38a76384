package client

import (
	"errors"
	"fmt"

	"github.com/coachcall/api/internal/retry"
)

// ErrNotConfigured is returned by clients created without credentials.
var ErrNotConfigured = errors.New("client not configured")

// APIError is a non-2xx response from an upstream API
type APIError struct {
	Service    string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s API error (status %d): %s", e.Service, e.StatusCode, e.Body)
}

// Retryable reports whether the request may succeed if sent again.
func (e *APIError) Retryable() bool {
	return retry.RetryableStatus(e.StatusCode)
}

// AsAPIError unwraps err into an *APIError.
func AsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}
