package claudeagent

import "github.com/agentio/claude-agent-go/internal/errors"

// Re-export error types from internal package

// CLINotFoundError indicates the Claude CLI binary was not found.
type CLINotFoundError = errors.CLINotFoundError

// CLIConnectionError indicates failure to connect to the CLI.
type CLIConnectionError = errors.CLIConnectionError

// ProcessError indicates the CLI process failed.
type ProcessError = errors.ProcessError

// MessageParseError indicates message parsing failed.
type MessageParseError = errors.MessageParseError

// CLIJSONDecodeError indicates JSON parsing failed for CLI output.
type CLIJSONDecodeError = errors.CLIJSONDecodeError

// ClaudeSDKError is the base interface for all SDK errors.
type ClaudeSDKError = errors.ClaudeSDKError

// ConfigurationError indicates the SDK was used with an invalid or
// incomplete configuration.
type ConfigurationError = errors.ConfigurationError

// APIError is the common base for errors the API reports on a failed
// assistant turn. Match concrete variants or the base with errors.As.
type APIError = errors.APIError

// AuthenticationError indicates the API rejected the credentials.
type AuthenticationError = errors.AuthenticationError

// BillingError indicates a billing problem such as insufficient credits.
type BillingError = errors.BillingError

// RateLimitError indicates the API rate limit was exceeded.
type RateLimitError = errors.RateLimitError

// InvalidRequestError indicates the API rejected the request as malformed.
type InvalidRequestError = errors.InvalidRequestError

// ServerError indicates an API-side failure.
type ServerError = errors.ServerError

// UnknownAPIError indicates an API error code this SDK does not recognize.
type UnknownAPIError = errors.UnknownAPIError

// Re-export sentinel errors from internal package.
var (
	// ErrClientNotConnected indicates the client is not connected.
	ErrClientNotConnected = errors.ErrClientNotConnected

	// ErrClientAlreadyConnected indicates the client is already connected.
	ErrClientAlreadyConnected = errors.ErrClientAlreadyConnected

	// ErrClientClosed indicates the client has been closed and cannot be reused.
	ErrClientClosed = errors.ErrClientClosed

	// ErrTransportNotConnected indicates the transport is not connected.
	ErrTransportNotConnected = errors.ErrTransportNotConnected

	// ErrRequestTimeout indicates a request timed out.
	ErrRequestTimeout = errors.ErrRequestTimeout
)
