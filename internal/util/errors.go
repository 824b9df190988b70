package util

import (
	"errors"
	"fmt"
)

// Common sentinel errors.
var (
	ErrNotFound         = errors.New("not found")
	ErrInvalidInput     = errors.New("invalid input")
	ErrCircuitOpen      = errors.New("circuit breaker open")
	ErrRateLimited      = errors.New("rate limit exceeded")
	ErrUpstreamUnavail  = errors.New("upstream unavailable")
	ErrConfigInvalid    = errors.New("invalid configuration")
	ErrReloadInProgress = errors.New("reload in progress")
)

// ConfigError represents a configuration-related error.
type ConfigError struct {
	Field   string
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	msg := e.Message
	if e.Field != "" {
		msg = fmt.Sprintf("config error at %s: %s", e.Field, e.Message)
	} else {
		msg = fmt.Sprintf("config error: %s", msg)
	}
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *ConfigError) Unwrap() error {
	return e.Cause
}

// Is checks if the error matches the target.
func (e *ConfigError) Is(target error) bool {
	if target == ErrConfigInvalid {
		return true
	}
	_, ok := target.(*ConfigError)
	return ok
}

// NewConfigError creates a new ConfigError.
func NewConfigError(field, message string) *ConfigError {
	return &ConfigError{Field: field, Message: message}
}

// NewConfigErrorWithCause creates a new ConfigError with a cause.
func NewConfigErrorWithCause(field, message string, cause error) *ConfigError {
	return &ConfigError{Field: field, Message: message, Cause: cause}
}

// UpstreamError is a failed round trip to the proxied upstream.
type UpstreamError struct {
	Upstream   string
	StatusCode int
	Cause      error
}

// Error implements the error interface.
func (e *UpstreamError) Error() string {
	switch {
	case e.Cause != nil:
		return fmt.Sprintf("upstream %s error: %v", e.Upstream, e.Cause)
	case e.StatusCode != 0:
		return fmt.Sprintf("upstream %s error: status %d", e.Upstream, e.StatusCode)
	default:
		return fmt.Sprintf("upstream %s error", e.Upstream)
	}
}

// Unwrap returns the underlying error.
func (e *UpstreamError) Unwrap() error {
	return e.Cause
}

// Is checks if the error matches the target.
func (e *UpstreamError) Is(target error) bool {
	if target == ErrUpstreamUnavail {
		return true
	}
	_, ok := target.(*UpstreamError)
	return ok
}

// NewUpstreamError creates an UpstreamError for a transport failure.
func NewUpstreamError(upstream string, cause error) *UpstreamError {
	return &UpstreamError{Upstream: upstream, Cause: cause}
}

// NewServerError creates an UpstreamError for a 5xx response.
func NewServerError(upstream string, statusCode int) *UpstreamError {
	return &UpstreamError{Upstream: upstream, StatusCode: statusCode}
}

// WrapError wraps an error with additional context.
func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}
