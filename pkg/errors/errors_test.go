package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_ErrorAndUnwrap(t *testing.T) {
	base := errors.New("connection refused")
	err := Wrap(base, ErrCodeInternal, "backend call failed")

	assert.Contains(t, err.Error(), "INTERNAL_ERROR")
	assert.Contains(t, err.Error(), "backend call failed")
	assert.ErrorIs(t, err, base)
}

func TestIsCodeAndGetCode(t *testing.T) {
	err := New(ErrCodeDeviceLimitExceeded, "too many devices")

	assert.True(t, IsCode(err, ErrCodeDeviceLimitExceeded))
	assert.False(t, IsCode(err, ErrCodeRateLimited))
	assert.Equal(t, ErrCodeDeviceLimitExceeded, GetCode(err))

	// Wrapped with fmt, the code survives through the chain
	wrapped := fmt.Errorf("register: %w", err)
	assert.True(t, IsCode(wrapped, ErrCodeDeviceLimitExceeded))
	assert.Equal(t, ErrCodeDeviceLimitExceeded, GetCode(wrapped))

	// Plain errors fall back to internal
	assert.Equal(t, ErrCodeInternal, GetCode(errors.New("boom")))
}

func TestUserMessage(t *testing.T) {
	err := Wrap(errors.New("pq: duplicate key"), ErrCodeValidationFailed, "nickname already in use")
	assert.Equal(t, "nickname already in use", UserMessage(err))

	assert.Equal(t, "boom", UserMessage(errors.New("boom")))
}

func TestClassify_StructuredCodes(t *testing.T) {
	tests := []struct {
		code ErrorCode
		want Kind
	}{
		{ErrCodeMissingRequired, KindValidation},
		{ErrCodeInvalidFormat, KindValidation},
		{ErrCodeInvalidPasscode, KindValidation},
		{ErrCodePasscodeExpired, KindValidation},
		{ErrCodeDeviceLimitExceeded, KindDeviceLimit},
		{ErrCodeTokenMissing, KindToken},
		{ErrCodeTokenExpired, KindToken},
		{ErrCodeRateLimited, KindRateLimit},
		{ErrCodeInternal, KindUnclassified},
		{ErrCodeDeviceNotFound, KindUnclassified},
	}
	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(New(tt.code, "x")))
		})
	}
}

func TestClassify_MessageFallback(t *testing.T) {
	tests := []struct {
		msg  string
		want Kind
	}{
		{"backend is throttling requests", KindRateLimit},
		{"429 Too Many Requests", KindRateLimit},
		{"user has too many devices registered", KindDeviceLimit},
		{"device limit exceeded for environment", KindDeviceLimit},
		{"access token expired", KindToken},
		{"invalid passcode provided", KindValidation},
		{"something else went wrong", KindUnclassified},
	}
	for _, tt := range tests {
		t.Run(tt.msg, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(errors.New(tt.msg)))
		})
	}
}

func TestClassify_NilError(t *testing.T) {
	assert.Equal(t, KindUnclassified, Classify(nil))
}

func TestMapErrorCodeToHTTPStatus(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, MapErrorCodeToHTTPStatus(ErrCodeInvalidPasscode))
	assert.Equal(t, http.StatusUnauthorized, MapErrorCodeToHTTPStatus(ErrCodeTokenExpired))
	assert.Equal(t, http.StatusNotFound, MapErrorCodeToHTTPStatus(ErrCodeDeviceNotFound))
	assert.Equal(t, http.StatusConflict, MapErrorCodeToHTTPStatus(ErrCodeDeviceLimitExceeded))
	assert.Equal(t, http.StatusTooManyRequests, MapErrorCodeToHTTPStatus(ErrCodeRateLimited))
	assert.Equal(t, http.StatusInternalServerError, MapErrorCodeToHTTPStatus(ErrCodeInternal))
}

func TestMapHTTPStatusToErrorCode(t *testing.T) {
	assert.Equal(t, ErrCodeValidationFailed, MapHTTPStatusToErrorCode(http.StatusBadRequest))
	assert.Equal(t, ErrCodeTokenInvalid, MapHTTPStatusToErrorCode(http.StatusUnauthorized))
	assert.Equal(t, ErrCodeNotFound, MapHTTPStatusToErrorCode(http.StatusNotFound))
	assert.Equal(t, ErrCodeRateLimited, MapHTTPStatusToErrorCode(http.StatusTooManyRequests))
	assert.Equal(t, ErrCodeInternal, MapHTTPStatusToErrorCode(http.StatusBadGateway))
}
