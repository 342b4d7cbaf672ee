package llm

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrorType represents the type of LLM error
type ErrorType string

const (
	ErrorTypeUnknown           ErrorType = "unknown"
	ErrorTypeInvalidRequest    ErrorType = "invalid_request"
	ErrorTypeAuthentication    ErrorType = "authentication_error"
	ErrorTypePermission        ErrorType = "permission_error"
	ErrorTypeNotFound          ErrorType = "not_found"
	ErrorTypeRateLimit         ErrorType = "rate_limit_exceeded"
	ErrorTypeInsufficientQuota ErrorType = "insufficient_quota"
	ErrorTypeInvalidModel      ErrorType = "invalid_model"
	ErrorTypeContextLength     ErrorType = "context_length_exceeded"
	ErrorTypeContentFilter     ErrorType = "content_filter"
	ErrorTypeServerError       ErrorType = "server_error"
	ErrorTypeTimeout           ErrorType = "timeout"
	ErrorTypeConnectionError   ErrorType = "connection_error"
	ErrorTypeJSONParsingError  ErrorType = "json_parsing_error"
)

// LLMError represents an error from an LLM provider
type LLMError struct {
	Type       ErrorType `json:"type"`
	Message    string    `json:"message"`
	Code       string    `json:"code,omitempty"`
	Provider   Provider  `json:"provider"`
	HTTPStatus int       `json:"http_status,omitempty"`
	Retryable  bool      `json:"retryable"`
	RetryAfter int       `json:"retry_after,omitempty"` // seconds
	Cause      error     `json:"-"`
}

func (e *LLMError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s [%s]: %s", e.Provider, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Provider, e.Message)
}

func (e *LLMError) Unwrap() error { return e.Cause }

// NewLLMError creates a new LLM error
func NewLLMError(provider Provider, errorType ErrorType, message string) *LLMError {
	return &LLMError{
		Type:      errorType,
		Message:   message,
		Provider:  provider,
		Retryable: isRetryableError(errorType),
	}
}

// NewLLMErrorWithCause creates a new LLM error with an underlying cause
func NewLLMErrorWithCause(provider Provider, errorType ErrorType, message string, cause error) *LLMError {
	err := NewLLMError(provider, errorType, message)
	err.Cause = cause
	return err
}

func isRetryableError(errorType ErrorType) bool {
	switch errorType {
	case ErrorTypeRateLimit, ErrorTypeServerError, ErrorTypeTimeout, ErrorTypeConnectionError:
		return true
	default:
		return false
	}
}

// ParseHTTPError maps an HTTP status (and body hints) to an LLMError
func ParseHTTPError(provider Provider, statusCode int, body string) *LLMError {
	var errorType ErrorType
	var message string

	switch statusCode {
	case http.StatusBadRequest:
		errorType, message = ErrorTypeInvalidRequest, "Invalid request parameters"
	case http.StatusUnauthorized:
		errorType, message = ErrorTypeAuthentication, "Invalid API key or authentication failed"
	case http.StatusForbidden:
		errorType, message = ErrorTypePermission, "Permission denied"
	case http.StatusNotFound:
		errorType, message = ErrorTypeNotFound, "Resource not found"
	case http.StatusTooManyRequests:
		errorType, message = ErrorTypeRateLimit, "Rate limit exceeded"
	case http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		errorType, message = ErrorTypeServerError, "Server error occurred"
	default:
		errorType, message = ErrorTypeUnknown, fmt.Sprintf("HTTP %d error", statusCode)
	}

	if body != "" {
		if specific := extractSpecificError(provider, body); specific != nil {
			specific.HTTPStatus = statusCode
			return specific
		}
		message = fmt.Sprintf("%s: %s", message, truncateBody(body, 200))
	}

	e := NewLLMError(provider, errorType, message)
	e.HTTPStatus = statusCode
	return e
}

func extractSpecificError(provider Provider, body string) *LLMError {
	lower := strings.ToLower(body)
	switch {
	case strings.Contains(lower, "rate limit") || strings.Contains(lower, "too many requests"):
		return NewLLMError(provider, ErrorTypeRateLimit, "Rate limit exceeded")
	case strings.Contains(lower, "insufficient quota") || strings.Contains(lower, "quota exceeded"):
		return NewLLMError(provider, ErrorTypeInsufficientQuota, "Insufficient quota or credits")
	case strings.Contains(lower, "context length") || strings.Contains(lower, "token limit"):
		return NewLLMError(provider, ErrorTypeContextLength, "Context length exceeded")
	case strings.Contains(lower, "content filter"):
		return NewLLMError(provider, ErrorTypeContentFilter, "Content filtered by safety system")
	case strings.Contains(lower, "model") && (strings.Contains(lower, "not found") || strings.Contains(lower, "does not exist")):
		return NewLLMError(provider, ErrorTypeInvalidModel, "Invalid or unavailable model")
	}
	return nil
}

func truncateBody(body string, maxLength int) string {
	if len(body) <= maxLength {
		return body
	}
	return body[:maxLength] + "..."
}

// AsLLMError unwraps err to an *LLMError.
func AsLLMError(err error) (*LLMError, bool) {
	var e *LLMError
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// IsRetryableError checks if an error is retryable
func IsRetryableError(err error) bool {
	if e, ok := AsLLMError(err); ok {
		return isRetryableError(e.Type)
	}
	return false
}

// IsRateLimitError checks if an error is a rate limit error
func IsRateLimitError(err error) bool {
	e, ok := AsLLMError(err)
	return ok && e.Type == ErrorTypeRateLimit
}

// IsAuthenticationError checks if an error is an authentication error
func IsAuthenticationError(err error) bool {
	e, ok := AsLLMError(err)
	return ok && e.Type == ErrorTypeAuthentication
}
