package client

import (
	"errors"
	"fmt"
)

var (
	// ErrProviderFailed wraps an error that survived the retry policy.
	ErrProviderFailed = errors.New("provider failed")
	// ErrShortCompletion is returned when a backend yields fewer completions than requested.
	ErrShortCompletion = errors.New("wrong number of completions")
	// ErrMissingKey is returned when a hosted provider has no credentials.
	ErrMissingKey = errors.New("API key is required")
	// ErrNoProvider is returned for model families no provider serves.
	ErrNoProvider = errors.New("no provider for model family")
)

// APIError represents an API error with HTTP status code.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error %d: %s", e.StatusCode, e.Message)
}

// HTTPError represents a transport failure or a non-200 reply.
type HTTPError struct {
	StatusCode int
	Message    string
	Err        error
}

func (e *HTTPError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("HTTP error: %d", e.StatusCode)
}

func (e *HTTPError) Unwrap() error {
	return e.Err
}

// StatusCode extracts the HTTP status of err, or 0 when it carries none.
func StatusCode(err error) int {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}
