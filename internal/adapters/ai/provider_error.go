package ai

import (
	"context"
	"fmt"
	"net"
	"net/http"

	"mnemosyne/pkg/errors"
)

// ErrorKind classifies provider failures into the small taxonomy the
// orchestration layer reasons about. Provider-specific status codes are
// normalized here and never leak upward.
type ErrorKind string

const (
	ErrorKindAuth      ErrorKind = "auth"
	ErrorKindRateLimit ErrorKind = "rate_limit"
	ErrorKindTimeout   ErrorKind = "timeout"
	ErrorKindServer    ErrorKind = "server_error"
	ErrorKindUnknown   ErrorKind = "unknown"
)

// ProviderError is the normalized upstream failure returned by every
// connector. Any ProviderError makes the request eligible for one
// fallback attempt when fallback is enabled.
type ProviderError struct {
	Provider   ProviderName
	Model      string
	Kind       ErrorKind
	StatusCode int
	Message    string
}

// Error implements the error interface
func (e *ProviderError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s %s: %s (%d): %s", e.Provider, e.Model, e.Kind, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s %s: %s: %s", e.Provider, e.Model, e.Kind, e.Message)
}

// Unwrap maps the kind onto the shared sentinel hierarchy so callers
// can match with errors.Is without importing provider internals.
func (e *ProviderError) Unwrap() error {
	switch e.Kind {
	case ErrorKindAuth:
		return errors.ErrAuthFailed
	case ErrorKindRateLimit:
		return errors.ErrRateLimitExceeded
	case ErrorKindTimeout:
		return errors.ErrTimeout
	default:
		return errors.ErrProviderUnavailable
	}
}

// AsProviderError extracts a ProviderError from an error chain
func AsProviderError(err error) (*ProviderError, bool) {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}

// newProviderError builds a ProviderError from an HTTP status reply
func newProviderError(provider ProviderName, model string, statusCode int, message string) *ProviderError {
	return &ProviderError{
		Provider:   provider,
		Model:      model,
		Kind:       classifyStatus(statusCode),
		StatusCode: statusCode,
		Message:    message,
	}
}

// transportError normalizes a transport-level failure. Caller-initiated
// cancellation is returned unchanged so the orchestrator can tell an
// aborted request from a failed one.
func transportError(provider ProviderName, model string, err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}

	kind := ErrorKindUnknown
	if errors.Is(err, context.DeadlineExceeded) {
		kind = ErrorKindTimeout
	} else if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
		kind = ErrorKindTimeout
	}

	return &ProviderError{
		Provider: provider,
		Model:    model,
		Kind:     kind,
		Message:  err.Error(),
	}
}

func classifyStatus(statusCode int) ErrorKind {
	switch {
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		return ErrorKindAuth
	case statusCode == http.StatusTooManyRequests:
		return ErrorKindRateLimit
	case statusCode == http.StatusRequestTimeout || statusCode == http.StatusGatewayTimeout:
		return ErrorKindTimeout
	case statusCode >= 500:
		return ErrorKindServer
	default:
		return ErrorKindUnknown
	}
}
