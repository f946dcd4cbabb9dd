package types

import "fmt"

// ErrorCode represents a unified error code across the engine.
type ErrorCode string

// Request / configuration error codes
const (
	ErrConfiguration         ErrorCode = "CONFIGURATION"
	ErrInvalidRequest        ErrorCode = "INVALID_REQUEST"
	ErrInvalidReferenceImage ErrorCode = "INVALID_REFERENCE_IMAGE"
	ErrUnauthorized          ErrorCode = "UNAUTHORIZED"
	ErrForbidden             ErrorCode = "FORBIDDEN"
	ErrKeysExhausted         ErrorCode = "KEYS_EXHAUSTED"
)

// Upstream error codes
const (
	ErrRateLimited       ErrorCode = "RATE_LIMITED"
	ErrQuotaExceeded     ErrorCode = "QUOTA_EXCEEDED"
	ErrContentFiltered   ErrorCode = "CONTENT_FILTERED"
	ErrUpstreamError     ErrorCode = "UPSTREAM_ERROR"
	ErrUpstreamTimeout   ErrorCode = "UPSTREAM_TIMEOUT"
	ErrTimeout           ErrorCode = "TIMEOUT"
	ErrNetwork           ErrorCode = "NETWORK"
	ErrMalformedResponse ErrorCode = "MALFORMED_RESPONSE"
	ErrEmptyResponse     ErrorCode = "EMPTY_RESPONSE"
	ErrNoImage           ErrorCode = "NO_IMAGE"
)

// Orchestration error codes
const (
	ErrCancelled        ErrorCode = "CANCELLED"
	ErrBudgetExceeded   ErrorCode = "TIME_BUDGET_EXCEEDED"
	ErrRetriesExhausted ErrorCode = "RETRIES_EXHAUSTED"
)

// Error represents a structured error with code, message, and metadata.
// It is the single error currency crossing the adapter, key-manager,
// and orchestrator layers.
type Error struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	HTTPStatus int       `json:"http_status,omitempty"`
	VendorCode string    `json:"vendor_code,omitempty"`
	Retryable  bool      `json:"retryable"`
	Provider   string    `json:"provider,omitempty"`
	Cause      error     `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new Error with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WithCause adds a cause to the error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithHTTPStatus sets the HTTP status code.
func (e *Error) WithHTTPStatus(status int) *Error {
	e.HTTPStatus = status
	return e
}

// WithVendorCode records the vendor-specific error code.
func (e *Error) WithVendorCode(code string) *Error {
	e.VendorCode = code
	return e
}

// WithRetryable marks the error as retryable.
func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

// WithProvider sets the provider name.
func (e *Error) WithProvider(provider string) *Error {
	e.Provider = provider
	return e
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	if e, ok := err.(*Error); ok {
		return e.Retryable
	}
	return false
}

// GetErrorCode extracts the error code from an error.
func GetErrorCode(err error) ErrorCode {
	if e, ok := err.(*Error); ok {
		return e.Code
	}
	return ""
}
