package imagegen

import (
	"github.com/BaSui01/imageflow/types"
)

// ClassifyStatus maps an HTTP status and message into a typed error
// with retryability pre-set. Vendor adapters with richer error-code
// knowledge classify first; this is the generic fallback band.
//
// Retryable: 408, 429 and 5xx. Fatal: 401/402/403/422 — credential,
// balance or validation problems a retry cannot fix.
func ClassifyStatus(status int, message, provider string) *types.Error {
	switch status {
	case 400:
		return types.NewError(types.ErrInvalidRequest, message).
			WithHTTPStatus(status).WithProvider(provider)
	case 401:
		return types.NewError(types.ErrUnauthorized, message).
			WithHTTPStatus(status).WithProvider(provider)
	case 402:
		return types.NewError(types.ErrQuotaExceeded, message).
			WithHTTPStatus(status).WithProvider(provider)
	case 403:
		return types.NewError(types.ErrForbidden, message).
			WithHTTPStatus(status).WithProvider(provider)
	case 408:
		return types.NewError(types.ErrUpstreamTimeout, message).
			WithHTTPStatus(status).WithProvider(provider).WithRetryable(true)
	case 422:
		return types.NewError(types.ErrInvalidRequest, message).
			WithHTTPStatus(status).WithProvider(provider)
	case 429:
		return types.NewError(types.ErrRateLimited, message).
			WithHTTPStatus(status).WithProvider(provider).WithRetryable(true)
	}

	if status >= 500 {
		return types.NewError(types.ErrUpstreamError, message).
			WithHTTPStatus(status).WithProvider(provider).WithRetryable(true)
	}

	return types.NewError(types.ErrUpstreamError, message).
		WithHTTPStatus(status).WithProvider(provider)
}

// Classify normalizes an arbitrary attempt error into *types.Error.
// Errors already carrying a classification pass through unchanged.
func Classify(err error, provider string) *types.Error {
	if err == nil {
		return nil
	}
	if typed, ok := err.(*types.Error); ok {
		return typed
	}
	// unclassified transport-level failures are assumed transient
	return types.NewError(types.ErrNetwork, err.Error()).
		WithProvider(provider).WithRetryable(true).WithCause(err)
}

// isKeyRelated reports whether the failure points at the credential
// itself, so that rotating to another key is worth trying before
// giving up.
func isKeyRelated(err *types.Error) bool {
	switch err.Code {
	case types.ErrUnauthorized, types.ErrForbidden, types.ErrQuotaExceeded:
		return true
	}
	return false
}
