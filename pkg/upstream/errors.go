package upstream

import (
	"errors"
	"fmt"
)

// Common errors returned by the client.
var (
	// ErrRetryExhausted is returned when all retry attempts are exhausted.
	ErrRetryExhausted = errors.New("retry attempts exhausted")

	// ErrContextCancelled is returned when the context is cancelled mid-call.
	ErrContextCancelled = errors.New("context cancelled")

	// ErrInvalidURL is returned for malformed or non-HTTP target URLs.
	ErrInvalidURL = errors.New("invalid url")

	// ErrHostNotAllowed is returned when the target host fails allowlist validation.
	ErrHostNotAllowed = errors.New("host not allowed")

	// ErrRedirectNotAllowed is returned when a redirect points at a host
	// outside the allowlist. The redirect is never followed.
	ErrRedirectNotAllowed = errors.New("redirect host not allowed")

	// ErrGatewayMethod is returned when a non-GET request is sent through
	// the forwarding gateway, which only relays GETs.
	ErrGatewayMethod = errors.New("gateway transport supports GET only")
)

// Fault codes recorded in a fault's context bag. The step tag identifies the
// pipeline stage; the code identifies the failure class within it.
const (
	CodeInvalidURL             = "invalid_url"
	CodeHostNotAllowed         = "host_not_allowed"
	CodeRedirectHostNotAllowed = "redirect_host_not_allowed"
	CodeUpstreamError          = "upstream_error"
	CodeNonJSON                = "non_json"
	CodeFetchFailed            = "fetch_failed"
	CodeTimeout                = "timeout"
)

// FaultRecorder collects diagnostic fault records without interrupting the
// caller. The aggregation result's error list implements it.
type FaultRecorder interface {
	Record(step, message string, context map[string]any)
}

// UpstreamError represents a terminal upstream failure with its HTTP context.
type UpstreamError struct {
	StatusCode int
	Host       string
	Message    string
	Err        error
}

// Error implements the error interface.
func (e *UpstreamError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("upstream %s error (status %d): %s: %v",
			e.Host, e.StatusCode, e.Message, e.Err)
	}
	return fmt.Sprintf("upstream %s error (status %d): %s",
		e.Host, e.StatusCode, e.Message)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// retryableStatus reports whether an HTTP status may be retried. Everything
// else non-2xx is a terminal failure.
func retryableStatus(status int) bool {
	switch status {
	case 408, 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}
