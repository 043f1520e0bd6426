package errors

import (
	"errors"
	"fmt"
)

// Domain errors - these drive retry and UI behavior
var (
	// Transport errors (retryable)
	ErrNetwork = errors.New("network error")
	ErrTimeout = errors.New("request timed out")
	ErrServer  = errors.New("server error")

	// Client errors (never retried)
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrValidation         = errors.New("validation failed")

	// Session errors
	ErrNotAuthenticated = errors.New("not authenticated")
	ErrInvalidResponse  = errors.New("invalid response from server")

	// Storage errors
	ErrStorage      = errors.New("storage unavailable")
	ErrItemNotFound = errors.New("item not found")

	// OAuth errors
	ErrOAuthCancelled = errors.New("authentication cancelled")
	ErrOAuthFailed    = errors.New("authentication failed")
)

// HTTPError carries the status code of a received response. It wraps one
// of the sentinel errors above so callers can classify with errors.Is.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("http %d: %s", e.StatusCode, e.Body)
	}
	return fmt.Sprintf("http %d", e.StatusCode)
}

// Unwrap maps the status code onto the error taxonomy: 5xx is a server
// error, 401/403 is an invalid-credential failure, other 4xx a validation
// failure.
func (e *HTTPError) Unwrap() error {
	switch {
	case e.StatusCode >= 500:
		return ErrServer
	case e.StatusCode == 401 || e.StatusCode == 403:
		return ErrInvalidCredentials
	case e.StatusCode >= 400:
		return ErrValidation
	}
	return nil
}

// NewHTTPError creates an HTTPError for a received response.
func NewHTTPError(statusCode int, body string) *HTTPError {
	return &HTTPError{StatusCode: statusCode, Body: body}
}

// Retryable reports whether an error is worth retrying: network-level
// failures, timeouts, and 5xx responses. Any received 4xx is final.
func Retryable(err error) bool {
	return errors.Is(err, ErrNetwork) || errors.Is(err, ErrTimeout) || errors.Is(err, ErrServer)
}

// Reason renders a short human-readable reason for an authentication
// failure, suitable for direct display.
func Reason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidCredentials):
		return "invalid credentials"
	case errors.Is(err, ErrValidation):
		return "request rejected by server"
	case errors.Is(err, ErrTimeout):
		return "request timed out"
	case errors.Is(err, ErrNetwork):
		return "network unavailable"
	case errors.Is(err, ErrServer):
		return "server error, try again later"
	case errors.Is(err, ErrOAuthCancelled):
		return "sign-in cancelled"
	case errors.Is(err, ErrOAuthFailed):
		return "sign-in failed"
	case errors.Is(err, ErrNotAuthenticated):
		return "not signed in"
	default:
		return err.Error()
	}
}

// Is wraps errors.Is for convenience.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As wraps errors.As for convenience.
func As(err error, target any) bool {
	return errors.As(err, target)
}

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}
