package controller

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-mfa/pkg/challenge"
	"github.com/tendant/simple-mfa/pkg/errors"
	"github.com/tendant/simple-mfa/pkg/mfa"
	"github.com/tendant/simple-mfa/pkg/token"
)

// fakeClient records calls and plays back canned results.
type fakeClient struct {
	devices []mfa.DeviceRecord
	listErr error

	registerResult mfa.RegistrationResult
	registerErr    error
	registerParams *mfa.RegistrationParams

	sendErr      error
	sendCalls    int
	activateErr  error
	activateURIs []string
	validateErr  error
	validateIDs  []string

	initResult  mfa.AuthenticationInit
	initErr     error
	selectErr   error
	authErr     error
	authCallIDs []string
}

func (f *fakeClient) ListDevices(ctx context.Context, creds mfa.Credentials) ([]mfa.DeviceRecord, error) {
	return f.devices, f.listErr
}

func (f *fakeClient) RegisterDevice(ctx context.Context, creds mfa.Credentials, params mfa.RegistrationParams) (mfa.RegistrationResult, error) {
	f.registerParams = &params
	return f.registerResult, f.registerErr
}

func (f *fakeClient) ActivateDevice(ctx context.Context, creds mfa.Credentials, deviceID, activateURI, code string) error {
	f.activateURIs = append(f.activateURIs, activateURI)
	return f.activateErr
}

func (f *fakeClient) SendOTP(ctx context.Context, creds mfa.Credentials, deviceID string) error {
	f.sendCalls++
	return f.sendErr
}

func (f *fakeClient) ValidateOTP(ctx context.Context, creds mfa.Credentials, deviceID, code string) error {
	f.validateIDs = append(f.validateIDs, deviceID)
	return f.validateErr
}

func (f *fakeClient) InitAuthentication(ctx context.Context, creds mfa.Credentials, deviceID string) (mfa.AuthenticationInit, error) {
	return f.initResult, f.initErr
}

func (f *fakeClient) SelectDevice(ctx context.Context, creds mfa.Credentials, authenticationID, deviceID string) (mfa.AuthenticationInit, error) {
	return f.initResult, f.selectErr
}

func (f *fakeClient) ValidateAuthentication(ctx context.Context, creds mfa.Credentials, authenticationID, code string) error {
	f.authCallIDs = append(f.authCallIDs, authenticationID)
	return f.authErr
}

// errorSink collects validation errors like the flow navigator does.
type errorSink struct {
	errs []string
}

func (s *errorSink) SetValidationErrors(errs []string) {
	s.errs = errs
}

func validToken() token.Status {
	return token.Status{IsValid: true, Code: token.StatusValid}
}

func TestFactory_Create(t *testing.T) {
	factory := NewFactory(&fakeClient{})

	tests := []struct {
		deviceType mfa.DeviceType
		wantFamily mfa.DeviceType
	}{
		{mfa.DeviceTypeSMS, mfa.DeviceTypeSMS},
		{mfa.DeviceTypeVoice, mfa.DeviceTypeSMS},
		{mfa.DeviceTypeWhatsApp, mfa.DeviceTypeSMS},
		{mfa.DeviceTypeEmail, mfa.DeviceTypeEmail},
		{mfa.DeviceTypeTOTP, mfa.DeviceTypeTOTP},
		{mfa.DeviceTypeFIDO2, mfa.DeviceTypeFIDO2},
		{mfa.DeviceTypeMobile, mfa.DeviceTypeMobile},
		// Known types without a dedicated controller degrade to SMS
		{mfa.DeviceTypeOathToken, mfa.DeviceTypeSMS},
		{mfa.DeviceTypePlatform, mfa.DeviceTypeSMS},
		{mfa.DeviceTypeSecurityKey, mfa.DeviceTypeSMS},
		// Unknown values degrade to SMS as well
		{mfa.DeviceType("BOGUS"), mfa.DeviceTypeSMS},
	}

	for _, tt := range tests {
		t.Run(string(tt.deviceType), func(t *testing.T) {
			ctrl := factory.Create(tt.deviceType)
			assert.Equal(t, tt.wantFamily, ctrl.DeviceType())
		})
	}

	// Unknown and SMS fall back to the same controller type
	assert.IsType(t, factory.Create(mfa.DeviceTypeSMS), factory.Create(mfa.DeviceType("BOGUS")))
}

func TestFactory_SupportedTypes(t *testing.T) {
	factory := NewFactory(&fakeClient{})

	assert.True(t, factory.IsSupported(mfa.DeviceTypeSMS))
	assert.True(t, factory.IsSupported(mfa.DeviceTypeTOTP))
	assert.False(t, factory.IsSupported(mfa.DeviceTypeVoice))
	assert.False(t, factory.IsSupported(mfa.DeviceTypeOathToken))
	assert.False(t, factory.IsSupported(mfa.DeviceType("BOGUS")))

	assert.Len(t, factory.SupportedTypes(), 5)
	assert.Len(t, factory.AllDeviceTypes(), 10)
}

func TestSMSController_RegistrationParams(t *testing.T) {
	ctrl := NewSMSController(&fakeClient{})

	creds := mfa.Credentials{
		DeviceType:  mfa.DeviceTypeVoice,
		CountryCode: "1",
		Phone:       "(555) 123-4567",
		DeviceName:  "work phone",
	}
	params, err := ctrl.RegistrationParams(creds, mfa.DeviceStatusActivationRequired)
	require.NoError(t, err)

	// Phone-based credentials keep their own type
	assert.Equal(t, mfa.DeviceTypeVoice, params.Type)
	assert.Equal(t, "+1.5551234567", params.Phone)
	assert.Equal(t, mfa.DeviceStatusActivationRequired, params.Status)
	assert.Equal(t, "work phone", params.Nickname)

	// A degraded type registers as SMS
	creds.DeviceType = mfa.DeviceTypeOathToken
	params, err = ctrl.RegistrationParams(creds, mfa.DeviceStatusActive)
	require.NoError(t, err)
	assert.Equal(t, mfa.DeviceTypeSMS, params.Type)

	// Missing phone fails
	creds.Phone = ""
	_, err = ctrl.RegistrationParams(creds, mfa.DeviceStatusActive)
	assert.True(t, errors.IsCode(err, errors.ErrCodeMissingRequired))
}

func TestSMSController_ValidateCredentials(t *testing.T) {
	ctrl := NewSMSController(&fakeClient{})
	sink := &errorSink{}

	creds := mfa.Credentials{
		EnvironmentID: "env-1",
		Username:      "alice",
		CountryCode:   "44",
		Phone:         "7700 900123",
	}
	assert.True(t, ctrl.ValidateCredentials(creds, validToken(), sink))
	assert.Empty(t, sink.errs)

	creds.Phone = "---"
	assert.False(t, ctrl.ValidateCredentials(creds, validToken(), sink))
	assert.Contains(t, sink.errs, "Phone number must contain digits")

	creds = mfa.Credentials{}
	assert.False(t, ctrl.ValidateCredentials(creds, token.Status{IsValid: false, Message: "token is missing"}, sink))
	assert.Contains(t, sink.errs, "Environment ID is required")
	assert.Contains(t, sink.errs, "Username is required")
	assert.Contains(t, sink.errs, "token is missing")
}

func TestEmailController_RegistrationParams(t *testing.T) {
	ctrl := NewEmailController(&fakeClient{})

	params, err := ctrl.RegistrationParams(mfa.Credentials{Email: "  alice@example.com  "}, mfa.DeviceStatusActive)
	require.NoError(t, err)
	assert.Equal(t, mfa.DeviceTypeEmail, params.Type)
	assert.Equal(t, "alice@example.com", params.Email)

	_, err = ctrl.RegistrationParams(mfa.Credentials{}, mfa.DeviceStatusActive)
	assert.True(t, errors.IsCode(err, errors.ErrCodeMissingRequired))
}

func TestEmailController_ValidateCredentials(t *testing.T) {
	ctrl := NewEmailController(&fakeClient{})
	sink := &errorSink{}

	creds := mfa.Credentials{EnvironmentID: "env-1", Username: "alice", Email: "not-an-address"}
	assert.False(t, ctrl.ValidateCredentials(creds, validToken(), sink))
	assert.Contains(t, sink.errs, "Email address is malformed")

	creds.Email = "alice@example.com"
	assert.True(t, ctrl.ValidateCredentials(creds, validToken(), sink))
}

func TestTOTPController_RegistrationParams(t *testing.T) {
	ctrl := NewTOTPController(&fakeClient{})

	params, err := ctrl.RegistrationParams(mfa.Credentials{Username: "alice"}, mfa.DeviceStatusActivationRequired)
	require.NoError(t, err)
	assert.Equal(t, mfa.DeviceTypeTOTP, params.Type)
	assert.NotEmpty(t, params.Secret)
	assert.Empty(t, params.Phone)
	assert.Empty(t, params.Email)

	// Secrets are fresh per registration
	again, err := ctrl.RegistrationParams(mfa.Credentials{Username: "alice"}, mfa.DeviceStatusActivationRequired)
	require.NoError(t, err)
	assert.NotEqual(t, params.Secret, again.Secret)

	// The generated secret produces passcodes
	code, err := ctrl.CurrentPasscode(params.Secret)
	require.NoError(t, err)
	assert.Len(t, code, 6)
}

func TestFIDO2AndMobile_RegistrationParams(t *testing.T) {
	fido2, err := NewFIDO2Controller(&fakeClient{}).RegistrationParams(mfa.Credentials{DeviceName: "key"}, mfa.DeviceStatusActive)
	require.NoError(t, err)
	assert.Equal(t, mfa.DeviceTypeFIDO2, fido2.Type)
	assert.Empty(t, fido2.Phone)

	mobile, err := NewMobileController(&fakeClient{}).RegistrationParams(mfa.Credentials{}, mfa.DeviceStatusActive)
	require.NoError(t, err)
	assert.Equal(t, mfa.DeviceTypeMobile, mobile.Type)
}

func TestBase_LoadExistingDevicesSwallowsFailures(t *testing.T) {
	client := &fakeClient{listErr: errors.New(errors.ErrCodeInternal, "backend down")}
	ctrl := NewSMSController(client)

	devices := ctrl.LoadExistingDevices(context.Background(), mfa.Credentials{}, validToken())
	assert.NotNil(t, devices)
	assert.Empty(t, devices)

	// Unusable token skips the call entirely
	client.devices = []mfa.DeviceRecord{{ID: "d1"}}
	client.listErr = nil
	devices = ctrl.LoadExistingDevices(context.Background(), mfa.Credentials{}, token.Status{IsValid: false})
	assert.Empty(t, devices)

	devices = ctrl.LoadExistingDevices(context.Background(), mfa.Credentials{}, validToken())
	assert.Len(t, devices, 1)
}

func TestBase_SendOTPCooldown(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	chal := challenge.NewManager(challenge.WithClock(func() time.Time { return now }))
	client := &fakeClient{}
	ctrl := NewSMSController(client)
	sink := &errorSink{}

	require.NoError(t, ctrl.SendOTP(context.Background(), mfa.Credentials{}, "device-1", chal, sink))
	assert.Equal(t, 1, client.sendCalls)

	// Second send inside the window is rejected without a network call
	err := ctrl.SendOTP(context.Background(), mfa.Credentials{}, "device-1", chal, sink)
	assert.True(t, errors.IsCode(err, errors.ErrCodeRateLimited))
	assert.Equal(t, 1, client.sendCalls)
	require.Len(t, sink.errs, 1)
	assert.Contains(t, sink.errs[0], "wait")

	now = now.Add(challenge.DefaultResendWindow)
	require.NoError(t, ctrl.SendOTP(context.Background(), mfa.Credentials{}, "device-1", chal, sink))
	assert.Equal(t, 2, client.sendCalls)
}

func TestBase_SendOTPFailureMessaging(t *testing.T) {
	chal := challenge.NewManager()
	client := &fakeClient{sendErr: errors.New(errors.ErrCodeTokenExpired, "token expired")}
	ctrl := NewSMSController(client)
	sink := &errorSink{}

	err := ctrl.SendOTP(context.Background(), mfa.Credentials{}, "device-1", chal, sink)
	require.Error(t, err)
	require.Len(t, sink.errs, 1)
	assert.Contains(t, sink.errs[0], "token is invalid or expired")
	assert.Equal(t, 1, chal.State("device-1").SendAttempts)

	// A failed send does not arm the cooldown, retry goes through
	client.sendErr = nil
	require.NoError(t, ctrl.SendOTP(context.Background(), mfa.Credentials{}, "device-1", chal, sink))
	assert.Empty(t, sink.errs)
}

func TestBase_ValidateOTPActivationPath(t *testing.T) {
	client := &fakeClient{}
	ctrl := NewSMSController(client)
	sink := &errorSink{}

	state := &mfa.MfaState{
		DeviceID:          "device-1",
		DeviceStatus:      mfa.DeviceStatusActivationRequired,
		DeviceActivateURI: "/env/devices/device-1/activation",
	}
	val := &mfa.ValidationState{}

	ok, err := ctrl.ValidateOTP(context.Background(), mfa.Credentials{}, "device-1", "123456", state, val, sink)
	require.NoError(t, err)
	assert.True(t, ok)

	// Activation, not runtime validation, was called
	assert.Equal(t, []string{"/env/devices/device-1/activation"}, client.activateURIs)
	assert.Empty(t, client.validateIDs)

	// Success promotes the device and clears the URI
	assert.Equal(t, mfa.DeviceStatusActive, state.DeviceStatus)
	assert.Empty(t, state.DeviceActivateURI)
	assert.Equal(t, "success", state.VerificationResult.Status)
	assert.Zero(t, val.Attempts)
}

func TestBase_ValidateOTPRuntimePath(t *testing.T) {
	client := &fakeClient{}
	ctrl := NewSMSController(client)
	sink := &errorSink{}

	state := &mfa.MfaState{DeviceID: "device-1", DeviceStatus: mfa.DeviceStatusActive}
	val := &mfa.ValidationState{}

	ok, err := ctrl.ValidateOTP(context.Background(), mfa.Credentials{}, "device-1", "123456", state, val, sink)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []string{"device-1"}, client.validateIDs)
	assert.Empty(t, client.activateURIs)
}

func TestBase_ValidateOTPFailureCountsAttempts(t *testing.T) {
	client := &fakeClient{validateErr: errors.New(errors.ErrCodeInvalidPasscode, "invalid passcode")}
	ctrl := NewSMSController(client)
	sink := &errorSink{}

	state := &mfa.MfaState{DeviceID: "device-1", DeviceStatus: mfa.DeviceStatusActive}
	val := &mfa.ValidationState{}

	for i := 1; i <= 2; i++ {
		ok, err := ctrl.ValidateOTP(context.Background(), mfa.Credentials{}, "device-1", "000000", state, val, sink)
		assert.False(t, ok)
		assert.Error(t, err)
		assert.Equal(t, i, val.Attempts)
	}
	assert.Equal(t, "failed", state.VerificationResult.Status)
	assert.Equal(t, []string{"invalid passcode"}, sink.errs)

	// Success resets the counter
	client.validateErr = nil
	ok, err := ctrl.ValidateOTP(context.Background(), mfa.Credentials{}, "device-1", "123456", state, val, sink)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Zero(t, val.Attempts)
}

func TestBase_ValidateOTPForAuthentication(t *testing.T) {
	client := &fakeClient{}
	ctrl := NewSMSController(client)
	sink := &errorSink{}

	state := &mfa.MfaState{AuthenticationID: "auth-1"}
	val := &mfa.ValidationState{}

	ok, err := ctrl.ValidateOTPForAuthentication(context.Background(), mfa.Credentials{}, "auth-1", "123456", state, val, sink)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []string{"auth-1"}, client.authCallIDs)
}
