package mfa

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormatPhone(t *testing.T) {
	tests := []struct {
		name        string
		countryCode string
		number      string
		want        string
	}{
		{"plain digits", "1", "5551234567", "+1.5551234567"},
		{"formatted number", "1", "(555) 123-4567", "+1.5551234567"},
		{"country code with plus", "+44", "7700 900123", "+44.7700900123"},
		{"missing country code", "", "5551234567", ""},
		{"missing number", "1", "", ""},
		{"no digits at all", "ab", "xyz", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatPhone(tt.countryCode, tt.number))
		})
	}
}

func TestDeviceType_ContactRequirements(t *testing.T) {
	assert.True(t, DeviceTypeSMS.RequiresPhone())
	assert.True(t, DeviceTypeVoice.RequiresPhone())
	assert.True(t, DeviceTypeWhatsApp.RequiresPhone())
	assert.False(t, DeviceTypeEmail.RequiresPhone())
	assert.False(t, DeviceTypeTOTP.RequiresPhone())

	assert.True(t, DeviceTypeEmail.RequiresEmail())
	assert.False(t, DeviceTypeSMS.RequiresEmail())
}

func TestCredentials_ActiveToken(t *testing.T) {
	creds := Credentials{WorkerToken: "worker", UserToken: "user"}

	creds.TokenType = TokenTypeService
	assert.Equal(t, "worker", creds.ActiveToken())

	creds.TokenType = TokenTypeUser
	assert.Equal(t, "user", creds.ActiveToken())

	// Unset token type defaults to the worker token
	creds.TokenType = ""
	assert.Equal(t, "worker", creds.ActiveToken())
}

func TestValidationState(t *testing.T) {
	var v ValidationState

	v.RecordFailure("invalid passcode")
	v.RecordFailure("invalid passcode")
	assert.Equal(t, 2, v.Attempts)
	assert.Equal(t, "invalid passcode", v.LastError)

	v.RecordSuccess()
	assert.Zero(t, v.Attempts)
	assert.Empty(t, v.LastError)
}

func TestMfaState_Reset(t *testing.T) {
	state := MfaState{
		DeviceID:          "d1",
		DeviceStatus:      DeviceStatusActive,
		AuthenticationID:  "a1",
		DeviceActivateURI: "/activation",
		VerificationResult: &VerificationResult{
			Status: "success",
		},
	}
	state.Reset()
	assert.Equal(t, MfaState{}, state)
}
