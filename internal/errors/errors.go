package errors

import (
	"errors"
	"fmt"
)

// ClaudeSDKError is the base interface for all SDK errors.
type ClaudeSDKError interface {
	error
	IsClaudeSDKError() bool
}

// Compile-time verification that all error types implement ClaudeSDKError.
var (
	_ ClaudeSDKError = (*CLINotFoundError)(nil)
	_ ClaudeSDKError = (*CLIConnectionError)(nil)
	_ ClaudeSDKError = (*ProcessError)(nil)
	_ ClaudeSDKError = (*MessageParseError)(nil)
	_ ClaudeSDKError = (*CLIJSONDecodeError)(nil)
	_ ClaudeSDKError = (*ConfigurationError)(nil)
	_ ClaudeSDKError = (*APIError)(nil)
	_ ClaudeSDKError = (*AuthenticationError)(nil)
	_ ClaudeSDKError = (*BillingError)(nil)
	_ ClaudeSDKError = (*RateLimitError)(nil)
	_ ClaudeSDKError = (*InvalidRequestError)(nil)
	_ ClaudeSDKError = (*ServerError)(nil)
	_ ClaudeSDKError = (*UnknownAPIError)(nil)
)

// Sentinel errors for commonly checked conditions.
var (
	// ErrClientNotConnected indicates the client is not connected.
	ErrClientNotConnected = errors.New("client not connected")

	// ErrClientAlreadyConnected indicates the client is already connected.
	ErrClientAlreadyConnected = errors.New("client already connected")

	// ErrClientClosed indicates the client has been closed and cannot be reused.
	ErrClientClosed = errors.New("client closed: clients are single-use, create a new one with New()")

	// ErrTransportNotConnected indicates the transport is not connected.
	ErrTransportNotConnected = errors.New("transport not connected")

	// ErrRequestTimeout indicates a request timed out.
	ErrRequestTimeout = errors.New("request timeout")

	// ErrControllerStopped indicates the protocol controller has stopped.
	ErrControllerStopped = errors.New("protocol controller stopped")

	// ErrStdinClosed indicates stdin was closed due to context cancellation.
	ErrStdinClosed = errors.New("stdin closed")
)

// CLINotFoundError indicates the Claude CLI binary was not found.
type CLINotFoundError struct {
	SearchedPaths []string
}

func (e *CLINotFoundError) Error() string {
	return fmt.Sprintf("claude CLI not found in: %v", e.SearchedPaths)
}

// IsClaudeSDKError implements ClaudeSDKError.
func (e *CLINotFoundError) IsClaudeSDKError() bool { return true }

// CLIConnectionError indicates failure to connect to the CLI.
type CLIConnectionError struct {
	Err error
}

func (e *CLIConnectionError) Error() string {
	return fmt.Sprintf("failed to connect to CLI: %v", e.Err)
}

func (e *CLIConnectionError) Unwrap() error {
	return e.Err
}

// IsClaudeSDKError implements ClaudeSDKError.
func (e *CLIConnectionError) IsClaudeSDKError() bool { return true }

// ProcessError indicates the CLI process failed.
type ProcessError struct {
	ExitCode int
	Stderr   string
	Err      error
}

func (e *ProcessError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("CLI process failed (exit %d): %v", e.ExitCode, e.Err)
	}

	return fmt.Sprintf("CLI process failed (exit %d): %s", e.ExitCode, e.Stderr)
}

func (e *ProcessError) Unwrap() error {
	return e.Err
}

// IsClaudeSDKError implements ClaudeSDKError.
func (e *ProcessError) IsClaudeSDKError() bool { return true }

// MessageParseError indicates message parsing failed.
type MessageParseError struct {
	Message string
	Err     error
	Data    map[string]any
}

func (e *MessageParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("failed to parse message: %v", e.Err)
	}

	return fmt.Sprintf("failed to parse message: %s", e.Message)
}

func (e *MessageParseError) Unwrap() error {
	return e.Err
}

// IsClaudeSDKError implements ClaudeSDKError.
func (e *MessageParseError) IsClaudeSDKError() bool { return true }

// CLIJSONDecodeError indicates JSON parsing failed for CLI output.
// This error preserves the original raw data that failed to parse.
type CLIJSONDecodeError struct {
	RawData string
	Err     error
}

func (e *CLIJSONDecodeError) Error() string {
	return fmt.Sprintf("failed to decode JSON from CLI: %v", e.Err)
}

func (e *CLIJSONDecodeError) Unwrap() error {
	return e.Err
}

// IsClaudeSDKError implements ClaudeSDKError.
func (e *CLIJSONDecodeError) IsClaudeSDKError() bool { return true }

// ConfigurationError indicates the SDK was used with an invalid or
// incomplete configuration, such as a permission request arriving when
// no permission callback was registered.
type ConfigurationError struct {
	Message string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %s", e.Message)
}

// IsClaudeSDKError implements ClaudeSDKError.
func (e *ConfigurationError) IsClaudeSDKError() bool { return true }

// API error codes reported by the CLI on failed assistant turns.
const (
	APIErrorCodeAuthentication = "authentication_failed"
	APIErrorCodeBilling        = "billing_error"
	APIErrorCodeRateLimit      = "rate_limit"
	APIErrorCodeInvalidRequest = "invalid_request"
	APIErrorCodeServer         = "server_error"
)

// APIError is the common base for errors the API reports on an assistant
// turn. Concrete variants embed it and expose it through Unwrap, so both
// errors.As(err, **AuthenticationError) and errors.As(err, **APIError)
// match.
type APIError struct {
	Code    string
	Model   string
	Message string
}

func (e *APIError) Error() string {
	if e.Model != "" {
		return fmt.Sprintf("API error (%s) from model %s: %s", e.Code, e.Model, e.Message)
	}

	return fmt.Sprintf("API error (%s): %s", e.Code, e.Message)
}

// IsClaudeSDKError implements ClaudeSDKError.
func (e *APIError) IsClaudeSDKError() bool { return true }

// AuthenticationError indicates the API rejected the credentials.
type AuthenticationError struct{ APIError }

func (e *AuthenticationError) Unwrap() error { return &e.APIError }

// BillingError indicates a billing problem such as insufficient credits.
type BillingError struct{ APIError }

func (e *BillingError) Unwrap() error { return &e.APIError }

// RateLimitError indicates the API rate limit was exceeded.
type RateLimitError struct{ APIError }

func (e *RateLimitError) Unwrap() error { return &e.APIError }

// InvalidRequestError indicates the API rejected the request as malformed.
type InvalidRequestError struct{ APIError }

func (e *InvalidRequestError) Unwrap() error { return &e.APIError }

// ServerError indicates an API-side failure.
type ServerError struct{ APIError }

func (e *ServerError) Unwrap() error { return &e.APIError }

// UnknownAPIError indicates an API error code this SDK does not recognize.
type UnknownAPIError struct{ APIError }

func (e *UnknownAPIError) Unwrap() error { return &e.APIError }

// NewAPIError returns the typed error for an API error code. Unrecognized
// codes produce *UnknownAPIError.
func NewAPIError(code, model, message string) error {
	base := APIError{Code: code, Model: model, Message: message}

	switch code {
	case APIErrorCodeAuthentication:
		return &AuthenticationError{base}
	case APIErrorCodeBilling:
		return &BillingError{base}
	case APIErrorCodeRateLimit:
		return &RateLimitError{base}
	case APIErrorCodeInvalidRequest:
		return &InvalidRequestError{base}
	case APIErrorCodeServer:
		return &ServerError{base}
	default:
		return &UnknownAPIError{base}
	}
}
