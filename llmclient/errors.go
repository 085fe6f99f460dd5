package llmclient

import (
	"fmt"
	"regexp"
)

// ClientError is the base error type for all completion client errors.
type ClientError struct {
	Message string
	Cause   error
}

func (e *ClientError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *ClientError) Unwrap() error {
	return e.Cause
}

// ProviderError represents a non-success response from a completion endpoint.
// Message always holds the sanitized, truncated error body.
type ProviderError struct {
	ClientError
	Provider   string
	StatusCode int
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("[%s] %s (status=%d)", e.Provider, e.Message, e.StatusCode)
}

// Concrete provider error types.

type AuthenticationError struct{ ProviderError }
type AccessDeniedError struct{ ProviderError }
type InvalidRequestError struct{ ProviderError }
type RateLimitError struct{ ProviderError }
type ServerError struct{ ProviderError }

// Non-provider errors.

// MalformedReplyError indicates the endpoint answered 2xx but the body could
// not be interpreted (no choices, undecodable JSON).
type MalformedReplyError struct{ ClientError }

// NetworkError indicates the request never produced an HTTP response.
type NetworkError struct{ ClientError }

// ConfigurationError indicates the client was asked to do something it was
// never wired for (unknown provider, no default).
type ConfigurationError struct{ ClientError }

// ErrorFromStatusCode maps a non-success HTTP status to the appropriate error
// type. body must already be sanitized by the caller.
func ErrorFromStatusCode(statusCode int, body, provider string) error {
	pe := ProviderError{
		ClientError: ClientError{Message: body},
		Provider:    provider,
		StatusCode:  statusCode,
	}

	switch statusCode {
	case 400, 404, 422:
		return &InvalidRequestError{ProviderError: pe}
	case 401:
		return &AuthenticationError{ProviderError: pe}
	case 403:
		return &AccessDeniedError{ProviderError: pe}
	case 429:
		return &RateLimitError{ProviderError: pe}
	case 500, 502, 503, 504:
		return &ServerError{ProviderError: pe}
	default:
		return &pe
	}
}

// maxErrorBodyLen bounds how much of an endpoint error body ever surfaces in
// an error string or log line.
const maxErrorBodyLen = 512

// credentialPatterns match credential-shaped substrings that must never
// appear in surfaced error text.
var credentialPatterns = []*regexp.Regexp{
	regexp.MustCompile(`sk-[A-Za-z0-9_-]{6,}`),
	regexp.MustCompile(`(?i)bearer\s+[A-Za-z0-9._~+/=-]{6,}`),
	regexp.MustCompile(`(?i)api[_-]?key["'\s:=]+[A-Za-z0-9_-]{6,}`),
}

// SanitizeErrorBody redacts credential-shaped substrings from an endpoint
// error body and truncates the result to a bounded length. Every error body
// must pass through here before reaching an error value or a log.
func SanitizeErrorBody(body string) string {
	for _, p := range credentialPatterns {
		body = p.ReplaceAllString(body, "[redacted]")
	}
	if len(body) > maxErrorBodyLen {
		body = body[:maxErrorBodyLen] + "...(truncated)"
	}
	return body
}
