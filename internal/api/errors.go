package api

import (
	"fmt"
	"net/http"

	"blobguard/internal/network"
)

// APIError is a structured error returned by the gateway.
type APIError struct {
	Status    int
	Code      string
	ErrorCode int
	Message   string
}

func (e *APIError) Error() string {
	if e == nil {
		return ""
	}
	if e.Code != "" && e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	if e.Message != "" {
		return e.Message
	}
	if e.Status > 0 {
		return fmt.Sprintf("api error: %d", e.Status)
	}
	return "api error"
}

// Is maps gateway 404s onto network.ErrBlobNotFound.
func (e *APIError) Is(target error) bool {
	return e != nil && target == network.ErrBlobNotFound && e.Status == http.StatusNotFound
}

// Temporary reports whether retrying the request may succeed.
func (e *APIError) Temporary() bool {
	if e == nil {
		return false
	}
	return e.Status == http.StatusServiceUnavailable || e.Status == http.StatusTooManyRequests || e.Status >= 500
}
