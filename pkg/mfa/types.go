package mfa

import (
	"strings"
	"time"
)

// DeviceType identifies an MFA factor family.
type DeviceType string

const (
	DeviceTypeSMS         DeviceType = "SMS"
	DeviceTypeVoice       DeviceType = "VOICE"
	DeviceTypeEmail       DeviceType = "EMAIL"
	DeviceTypeWhatsApp    DeviceType = "WHATSAPP"
	DeviceTypeTOTP        DeviceType = "TOTP"
	DeviceTypeFIDO2       DeviceType = "FIDO2"
	DeviceTypeMobile      DeviceType = "MOBILE"
	DeviceTypeOathToken   DeviceType = "OATH_TOKEN"
	DeviceTypePlatform    DeviceType = "PLATFORM"
	DeviceTypeSecurityKey DeviceType = "SECURITY_KEY"
)

// AllDeviceTypes returns the full enumerable set of device types, including
// types that degrade to SMS controller behavior.
func AllDeviceTypes() []DeviceType {
	return []DeviceType{
		DeviceTypeSMS,
		DeviceTypeVoice,
		DeviceTypeEmail,
		DeviceTypeWhatsApp,
		DeviceTypeTOTP,
		DeviceTypeFIDO2,
		DeviceTypeMobile,
		DeviceTypeOathToken,
		DeviceTypePlatform,
		DeviceTypeSecurityKey,
	}
}

// RequiresPhone reports whether the device type carries a phone contact field.
func (t DeviceType) RequiresPhone() bool {
	switch t {
	case DeviceTypeSMS, DeviceTypeVoice, DeviceTypeWhatsApp:
		return true
	default:
		return false
	}
}

// RequiresEmail reports whether the device type carries an email contact field.
func (t DeviceType) RequiresEmail() bool {
	return t == DeviceTypeEmail
}

// DeviceStatus is the server-decided lifecycle status of a device.
type DeviceStatus string

const (
	DeviceStatusActive             DeviceStatus = "ACTIVE"
	DeviceStatusActivationRequired DeviceStatus = "ACTIVATION_REQUIRED"
)

// NextStep tells the caller where a device-authentication session stands.
type NextStep string

const (
	NextStepCompleted         NextStep = "COMPLETED"
	NextStepOTPRequired       NextStep = "OTP_REQUIRED"
	NextStepSelectionRequired NextStep = "SELECTION_REQUIRED"
)

// TokenType distinguishes a backend worker token from a user session token.
type TokenType string

const (
	TokenTypeService TokenType = "service"
	TokenTypeUser    TokenType = "user"
)

// Credentials is everything the configure step collects. It is mutated by the
// configure step, read by every downstream component, and never persisted here.
type Credentials struct {
	EnvironmentID string
	Username      string
	DeviceType    DeviceType
	Phone         string
	CountryCode   string
	Email         string
	DeviceName    string
	PolicyID      string
	TokenType     TokenType
	WorkerToken   string
	UserToken     string
}

// ActiveToken returns the token matching the configured token type.
func (c Credentials) ActiveToken() string {
	if c.TokenType == TokenTypeUser {
		return c.UserToken
	}
	return c.WorkerToken
}

// DeviceRecord is a device as reported by the platform. Records are immutable
// once returned and replaced wholesale on refresh.
type DeviceRecord struct {
	ID        string       `json:"id"`
	Type      DeviceType   `json:"type"`
	Status    DeviceStatus `json:"status"`
	Nickname  string       `json:"nickname,omitempty"`
	Phone     string       `json:"phone,omitempty"`
	Email     string       `json:"email,omitempty"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// RegistrationParams is the device-type-specific registration payload.
type RegistrationParams struct {
	Type     DeviceType   `json:"type"`
	Status   DeviceStatus `json:"status"`
	Phone    string       `json:"phone,omitempty"`
	Email    string       `json:"email,omitempty"`
	Nickname string       `json:"nickname,omitempty"`
	PolicyID string       `json:"policy_id,omitempty"`
	// Secret is set for TOTP registrations only.
	Secret string `json:"secret,omitempty"`
}

// RegistrationResult is the platform's answer to a registration call. The
// returned Status must not be assumed to equal the requested status.
type RegistrationResult struct {
	DeviceID          string       `json:"device_id"`
	Status            DeviceStatus `json:"status"`
	DeviceActivateURI string       `json:"device_activate_uri,omitempty"`
	Device            DeviceRecord `json:"device"`
}

// AuthenticationInit is the result of initializing a device-authentication
// session against an already-active device.
type AuthenticationInit struct {
	AuthenticationID string         `json:"authentication_id"`
	NextStep         NextStep       `json:"next_step"`
	Devices          []DeviceRecord `json:"devices,omitempty"`
}

// VerificationResult carries the outcome of a validate call for display.
type VerificationResult struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// MfaState is the per-session challenge state. AuthenticationID implies an
// existing device is being challenged at runtime; DeviceActivateURI implies a
// newly registered device awaiting activation. Exactly one of the two
// validation paths is taken per validate call.
type MfaState struct {
	DeviceID           string
	DeviceStatus       DeviceStatus
	AuthenticationID   string
	OTPCode            string
	DeviceActivateURI  string
	VerificationResult *VerificationResult
}

// Reset clears the state for an explicit flow restart.
func (s *MfaState) Reset() {
	*s = MfaState{}
}

// ValidationState tracks OTP validation attempts. It is incremented only on a
// failed validate call and reset to zero on success.
type ValidationState struct {
	Attempts  int
	LastError string
}

// RecordFailure bumps the attempt counter and overwrites the last error.
func (v *ValidationState) RecordFailure(message string) {
	v.Attempts++
	v.LastError = message
}

// RecordSuccess resets the counter.
func (v *ValidationState) RecordSuccess() {
	v.Attempts = 0
	v.LastError = ""
}

// FormatPhone builds the canonical "+country.number" form the platform
// expects for SMS, Voice and WhatsApp devices.
func FormatPhone(countryCode, number string) string {
	cc := digitsOnly(countryCode)
	num := digitsOnly(number)
	if cc == "" || num == "" {
		return ""
	}
	return "+" + cc + "." + num
}

func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
