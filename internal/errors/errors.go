package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode represents a category of application error.
// The string form is what clients see in the `error.code` field.
type ErrorCode string

const (
	// ErrCodeConfiguration indicates a fatal startup configuration problem.
	ErrCodeConfiguration ErrorCode = "configuration_error"
	// ErrCodeAuthentication indicates the provider rejected or could not complete a login.
	ErrCodeAuthentication ErrorCode = "authentication_failed"
	// ErrCodeStateMismatch indicates the callback state did not match the stored login.
	ErrCodeStateMismatch ErrorCode = "state_mismatch"
	// ErrCodeTokenExchange indicates a non-2xx response from the token endpoint.
	ErrCodeTokenExchange ErrorCode = "token_exchange_failed"
	// ErrCodeClaimsMapping indicates required identity claims are absent.
	ErrCodeClaimsMapping ErrorCode = "claims_mapping_failed"
	// ErrCodeInvalidSelector indicates an unknown mock user selector.
	ErrCodeInvalidSelector ErrorCode = "invalid_selector"
	// ErrCodeServiceAuthNotConfigured indicates the Bearer path is disabled or incomplete.
	ErrCodeServiceAuthNotConfigured ErrorCode = "service_auth_not_configured"
	// ErrCodeMissingToken indicates no usable Bearer token was presented.
	ErrCodeMissingToken ErrorCode = "missing_token"
	// ErrCodeInvalidToken indicates the Bearer token failed verification.
	ErrCodeInvalidToken ErrorCode = "invalid_token"
	// ErrCodeClientNotAllowed indicates the calling client id is not in the allowlist.
	ErrCodeClientNotAllowed ErrorCode = "client_not_allowed"
	// ErrCodeDecryption indicates an encrypted value was tampered with or the key is wrong.
	ErrCodeDecryption ErrorCode = "decryption_failed"
	// ErrCodeUnauthorized indicates a session is required.
	ErrCodeUnauthorized ErrorCode = "unauthorized"
	// ErrCodeForbidden indicates the user lacks a required role.
	ErrCodeForbidden ErrorCode = "forbidden"
	// ErrCodeCSRF indicates the CSRF token was missing or wrong.
	ErrCodeCSRF ErrorCode = "csrf_invalid"
	// ErrCodeInvalidHost indicates the Host header is not allowed.
	ErrCodeInvalidHost ErrorCode = "invalid_host"
	// ErrCodeRateLimited indicates the client exceeded the auth endpoint rate.
	ErrCodeRateLimited ErrorCode = "rate_limited"
	// ErrCodeNotFound indicates a resource was not found.
	ErrCodeNotFound ErrorCode = "not_found"
	// ErrCodeInternal indicates an internal server error.
	ErrCodeInternal ErrorCode = "internal"
	// ErrCodeTimeout indicates a timeout occurred.
	ErrCodeTimeout ErrorCode = "timeout"
	// ErrCodeCanceled indicates the operation was canceled.
	ErrCodeCanceled ErrorCode = "canceled"
)

// AppError represents a structured application error with a code, message, and optional cause.
// It supports error wrapping and unwrapping for use with errors.Is and errors.As.
type AppError struct {
	// Code categorizes the error type
	Code ErrorCode
	// Message is a human-readable error message for logs
	Message string
	// Cause is the underlying error that caused this error (optional)
	Cause error
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying cause, enabling errors.Is and errors.As.
func (e *AppError) Unwrap() error {
	return e.Cause
}

// New creates an AppError with the given code and message.
func New(code ErrorCode, message string) *AppError {
	return &AppError{Code: code, Message: message}
}

// Newf creates an AppError with a formatted message.
func Newf(code ErrorCode, format string, args ...any) *AppError {
	return &AppError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap wraps an existing error with an AppError, preserving the cause.
func Wrap(err error, code ErrorCode, message string) *AppError {
	if err == nil {
		return nil
	}
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   err,
	}
}

// Wrapf wraps an existing error with an AppError and formatted message.
func Wrapf(err error, code ErrorCode, format string, args ...any) *AppError {
	return Wrap(err, code, fmt.Sprintf(format, args...))
}

// Configuration creates a ConfigurationError.
func Configuration(message string) *AppError { return New(ErrCodeConfiguration, message) }

// Configurationf creates a ConfigurationError with a formatted message.
func Configurationf(format string, args ...any) *AppError {
	return Newf(ErrCodeConfiguration, format, args...)
}

// Authentication creates an AuthenticationError wrapping cause.
func Authentication(message string, cause error) *AppError {
	return &AppError{Code: ErrCodeAuthentication, Message: message, Cause: cause}
}

// StateMismatch creates a StateMismatchError.
func StateMismatch(message string) *AppError { return New(ErrCodeStateMismatch, message) }

// TokenExchange creates a TokenExchangeError wrapping the provider failure.
func TokenExchange(cause error) *AppError {
	return &AppError{Code: ErrCodeTokenExchange, Message: "token exchange failed", Cause: cause}
}

// ClaimsMapping creates a ClaimsMappingError.
func ClaimsMapping(message string) *AppError { return New(ErrCodeClaimsMapping, message) }

// InvalidSelector creates an InvalidSelectorError for a mock user selector.
func InvalidSelector(selector string) *AppError {
	return Newf(ErrCodeInvalidSelector, "invalid mock user selector %q", selector)
}

// ServiceAuthNotConfigured creates the 503-class rejection for the Bearer path.
func ServiceAuthNotConfigured(message string) *AppError {
	return New(ErrCodeServiceAuthNotConfigured, message)
}

// MissingToken creates a missing_token rejection.
func MissingToken(message string) *AppError { return New(ErrCodeMissingToken, message) }

// InvalidToken creates an invalid_token rejection wrapping the verification failure.
func InvalidToken(cause error) *AppError {
	return &AppError{Code: ErrCodeInvalidToken, Message: "token verification failed", Cause: cause}
}

// ClientNotAllowed creates a client_not_allowed rejection.
func ClientNotAllowed(clientID string) *AppError {
	return Newf(ErrCodeClientNotAllowed, "client %q is not in the allowlist", clientID)
}

// Decryption creates a DecryptionError. The cause is kept for errors.Is but never rendered.
func Decryption(cause error) *AppError {
	return &AppError{Code: ErrCodeDecryption, Message: "decryption failed", Cause: cause}
}

// IsAppError reports whether err carries the given code.
func IsAppError(err error, code ErrorCode) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Code == code
}

// IsConfiguration checks if an error is a ConfigurationError.
func IsConfiguration(err error) bool { return IsAppError(err, ErrCodeConfiguration) }

// IsNotFound checks if an error is a NotFound error.
func IsNotFound(err error) bool { return IsAppError(err, ErrCodeNotFound) }

// IsDecryption checks if an error is a DecryptionError.
func IsDecryption(err error) bool { return IsAppError(err, ErrCodeDecryption) }

// GetCode returns the ErrorCode from an error, or empty string if not an AppError.
func GetCode(err error) ErrorCode {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}

// HTTPStatus maps an error code to the HTTP status used on the wire.
func HTTPStatus(code ErrorCode) int {
	switch code {
	case ErrCodeInvalidSelector, ErrCodeInvalidHost:
		return http.StatusBadRequest
	case ErrCodeAuthentication, ErrCodeStateMismatch, ErrCodeTokenExchange, ErrCodeClaimsMapping,
		ErrCodeMissingToken, ErrCodeInvalidToken, ErrCodeClientNotAllowed, ErrCodeUnauthorized:
		return http.StatusUnauthorized
	case ErrCodeForbidden, ErrCodeCSRF:
		return http.StatusForbidden
	case ErrCodeNotFound:
		return http.StatusNotFound
	case ErrCodeRateLimited:
		return http.StatusTooManyRequests
	case ErrCodeServiceAuthNotConfigured:
		return http.StatusServiceUnavailable
	case ErrCodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

var publicMessages = map[ErrorCode]string{ //nolint:gochecknoglobals // read-only lookup table
	ErrCodeAuthentication:           "Sign-in could not be completed. Please try again.",
	ErrCodeStateMismatch:            "Sign-in could not be completed. Please try again.",
	ErrCodeTokenExchange:            "Sign-in could not be completed. Please try again.",
	ErrCodeClaimsMapping:            "Your account is missing required profile information.",
	ErrCodeInvalidSelector:          "Unknown mock user.",
	ErrCodeServiceAuthNotConfigured: "Service authentication is not configured.",
	ErrCodeMissingToken:             "A bearer token is required.",
	ErrCodeInvalidToken:             "The bearer token is invalid.",
	ErrCodeClientNotAllowed:         "This client is not allowed to call this API.",
	ErrCodeDecryption:               "A protected value could not be read.",
	ErrCodeUnauthorized:             "Authentication required.",
	ErrCodeForbidden:                "Insufficient permissions.",
	ErrCodeCSRF:                     "CSRF token validation failed.",
	ErrCodeInvalidHost:              "Invalid host.",
	ErrCodeRateLimited:              "Too many requests. Please slow down.",
	ErrCodeNotFound:                 "Not found.",
	ErrCodeTimeout:                  "Request timed out. Please try again.",
	ErrCodeCanceled:                 "Request was canceled.",
}

// PublicMessage returns the client-safe message for a code. Causes are never exposed.
func PublicMessage(code ErrorCode) string {
	if msg, ok := publicMessages[code]; ok {
		return msg
	}
	return "An internal error occurred."
}
