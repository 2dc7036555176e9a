package errors

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrorCode represents a unique error code
type ErrorCode string

// Error codes shared by the orchestration core and the platform simulator.
const (
	// Generic errors
	ErrCodeInternal     ErrorCode = "INTERNAL_ERROR"
	ErrCodeInvalidInput ErrorCode = "INVALID_INPUT"
	ErrCodeNotFound     ErrorCode = "NOT_FOUND"

	// Validation errors
	ErrCodeValidationFailed ErrorCode = "VALIDATION_FAILED"
	ErrCodeMissingRequired  ErrorCode = "MISSING_REQUIRED"
	ErrCodeInvalidFormat    ErrorCode = "INVALID_FORMAT"
	ErrCodeInvalidPasscode  ErrorCode = "INVALID_PASSCODE"
	ErrCodePasscodeExpired  ErrorCode = "PASSCODE_EXPIRED"

	// Device errors
	ErrCodeDeviceLimitExceeded ErrorCode = "DEVICE_LIMIT_EXCEEDED"
	ErrCodeDeviceNotFound      ErrorCode = "DEVICE_NOT_FOUND"
	ErrCodeDeviceNotActive     ErrorCode = "DEVICE_NOT_ACTIVE"
	ErrCodeDeviceAlreadyActive ErrorCode = "DEVICE_ALREADY_ACTIVE"

	// Token errors
	ErrCodeTokenMissing ErrorCode = "TOKEN_MISSING"
	ErrCodeTokenInvalid ErrorCode = "TOKEN_INVALID"
	ErrCodeTokenExpired ErrorCode = "TOKEN_EXPIRED"

	// Throttling
	ErrCodeRateLimited ErrorCode = "RATE_LIMITED"
)

// Kind groups error codes into the handling policies the flow understands.
type Kind int

const (
	// KindUnclassified is any backend failure without a recognized category.
	// Policy: surface the raw message, log it, do not advance the flow.
	KindUnclassified Kind = iota
	// KindValidation covers missing or malformed input and wrong passcodes.
	// Policy: inline validation errors, locally recoverable, no network call.
	KindValidation
	// KindDeviceLimit means the backend reported device-count exceeded.
	// Policy: terminal for the operation; a device must be deleted first.
	KindDeviceLimit
	// KindToken means the worker or user token is missing, invalid or expired.
	// Policy: terminal for the operation; token must be refreshed out of band.
	KindToken
	// KindRateLimit means the backend is throttling. Policy: tell the user to
	// wait; the core performs no automatic backoff or retry.
	KindRateLimit
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindDeviceLimit:
		return "device_limit"
	case KindToken:
		return "token"
	case KindRateLimit:
		return "rate_limit"
	default:
		return "unclassified"
	}
}

// Error represents a structured error with code, message, and optional details
type Error struct {
	Code    ErrorCode
	Message string
	Details map[string]interface{}
	Err     error
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the wrapped error for errors.Is and errors.As
func (e *Error) Unwrap() error {
	return e.Err
}

// WithDetail adds a detail to the error
func (e *Error) WithDetail(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// Kind returns the handling policy for this error's code.
func (e *Error) Kind() Kind {
	return kindForCode(e.Code)
}

// HTTPStatusCode returns the appropriate HTTP status code for this error
func (e *Error) HTTPStatusCode() int {
	return MapErrorCodeToHTTPStatus(e.Code)
}

// New creates a new Error with the given code and message
func New(code ErrorCode, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
	}
}

// Newf creates a new Error with formatted message
func Newf(code ErrorCode, format string, args ...interface{}) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap wraps an existing error with code and message
func Wrap(err error, code ErrorCode, message string) *Error {
	if err == nil {
		return nil
	}
	return &Error{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// IsCode checks if an error has a specific error code
func IsCode(err error, code ErrorCode) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// GetCode extracts the error code from an error
// Returns ErrCodeInternal if the error is not a structured Error
func GetCode(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ErrCodeInternal
}

// UserMessage extracts a display message from an error, preferring the
// structured message over the raw error chain.
func UserMessage(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return err.Error()
}

func kindForCode(code ErrorCode) Kind {
	switch code {
	case ErrCodeValidationFailed, ErrCodeMissingRequired, ErrCodeInvalidFormat,
		ErrCodeInvalidInput, ErrCodeInvalidPasscode, ErrCodePasscodeExpired:
		return KindValidation
	case ErrCodeDeviceLimitExceeded:
		return KindDeviceLimit
	case ErrCodeTokenMissing, ErrCodeTokenInvalid, ErrCodeTokenExpired:
		return KindToken
	case ErrCodeRateLimited:
		return KindRateLimit
	default:
		return KindUnclassified
	}
}

// Classify maps an error to a handling policy. Structured codes win; raw
// errors fall back to substring matching on the message, mirroring the way
// backend failures arrive with free-form text.
func Classify(err error) Kind {
	if err == nil {
		return KindUnclassified
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind()
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "rate limit") || strings.Contains(msg, "too many requests") || strings.Contains(msg, "throttl"):
		return KindRateLimit
	case strings.Contains(msg, "device limit") || strings.Contains(msg, "too many devices") || strings.Contains(msg, "maximum number of devices"):
		return KindDeviceLimit
	case strings.Contains(msg, "token"):
		return KindToken
	case strings.Contains(msg, "invalid passcode") || strings.Contains(msg, "validation"):
		return KindValidation
	default:
		return KindUnclassified
	}
}

// MapErrorCodeToHTTPStatus maps error codes to HTTP status codes
func MapErrorCodeToHTTPStatus(code ErrorCode) int {
	switch code {
	case ErrCodeInvalidInput, ErrCodeValidationFailed, ErrCodeInvalidFormat,
		ErrCodeMissingRequired, ErrCodeInvalidPasscode, ErrCodePasscodeExpired,
		ErrCodeDeviceAlreadyActive:
		return http.StatusBadRequest

	case ErrCodeTokenMissing, ErrCodeTokenInvalid, ErrCodeTokenExpired:
		return http.StatusUnauthorized

	case ErrCodeNotFound, ErrCodeDeviceNotFound:
		return http.StatusNotFound

	case ErrCodeDeviceLimitExceeded, ErrCodeDeviceNotActive:
		return http.StatusConflict

	case ErrCodeRateLimited:
		return http.StatusTooManyRequests

	case ErrCodeInternal:
		fallthrough
	default:
		return http.StatusInternalServerError
	}
}

// MapHTTPStatusToErrorCode is the inverse mapping used by the API client when
// a response body carries no structured code.
func MapHTTPStatusToErrorCode(status int) ErrorCode {
	switch status {
	case http.StatusBadRequest:
		return ErrCodeValidationFailed
	case http.StatusUnauthorized:
		return ErrCodeTokenInvalid
	case http.StatusNotFound:
		return ErrCodeNotFound
	case http.StatusConflict:
		return ErrCodeDeviceLimitExceeded
	case http.StatusTooManyRequests:
		return ErrCodeRateLimited
	default:
		return ErrCodeInternal
	}
}
