package mfaclient

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-mfa/pkg/errors"
	"github.com/tendant/simple-mfa/pkg/mfa"
	"github.com/tendant/simple-mfa/pkg/notification"
	"github.com/tendant/simple-mfa/pkg/platform"
	"github.com/tendant/simple-mfa/pkg/platform/api"
)

// newTestServer runs the real platform API on an in-memory repository so the
// client is exercised over actual HTTP.
func newTestServer(t *testing.T, opts ...platform.ServiceOption) (*HTTPClient, *notification.MockNotifier) {
	t.Helper()

	notifier := &notification.MockNotifier{}
	manager := notification.NewManager()
	manager.Register(notification.ChannelSMS, notifier)
	manager.Register(notification.ChannelVoice, notifier)
	manager.Register(notification.ChannelWhatsApp, notifier)
	manager.Register(notification.ChannelEmail, notifier)

	service := platform.NewService(platform.NewInMemDeviceRepository(), manager, opts...)
	server := httptest.NewServer(api.Handler(api.NewHandle(service)))
	t.Cleanup(server.Close)

	return NewHTTPClient(server.URL), notifier
}

func testCredentials() mfa.Credentials {
	return mfa.Credentials{
		EnvironmentID: "env-1",
		Username:      "alice",
		TokenType:     mfa.TokenTypeService,
		WorkerToken:   "worker-token",
	}
}

func TestHTTPClient_RegisterAndActivate(t *testing.T) {
	client, notifier := newTestServer(t)
	ctx := context.Background()
	creds := testCredentials()

	result, err := client.RegisterDevice(ctx, creds, mfa.RegistrationParams{
		Type:   mfa.DeviceTypeSMS,
		Status: mfa.DeviceStatusActivationRequired,
		Phone:  "+1.5551234567",
	})
	require.NoError(t, err)
	assert.Equal(t, mfa.DeviceStatusActivationRequired, result.Status)
	assert.NotEmpty(t, result.DeviceID)
	assert.NotEmpty(t, result.DeviceActivateURI)
	assert.Equal(t, mfa.DeviceTypeSMS, result.Device.Type)

	// The platform delivered an activation code at registration
	code := notifier.LastPasscode()
	require.NotEmpty(t, code)

	// Wrong code comes back as a structured error, not a bare status
	err = client.ActivateDevice(ctx, creds, result.DeviceID, result.DeviceActivateURI, "000000")
	assert.True(t, errors.IsCode(err, errors.ErrCodeInvalidPasscode))

	require.NoError(t, client.ActivateDevice(ctx, creds, result.DeviceID, result.DeviceActivateURI, code))

	devices, err := client.ListDevices(ctx, creds)
	require.NoError(t, err)
	require.Len(t, devices, 1)
	assert.Equal(t, mfa.DeviceStatusActive, devices[0].Status)
}

func TestHTTPClient_ActivateWithConstructedPath(t *testing.T) {
	client, notifier := newTestServer(t)
	ctx := context.Background()
	creds := testCredentials()

	result, err := client.RegisterDevice(ctx, creds, mfa.RegistrationParams{
		Type:   mfa.DeviceTypeSMS,
		Status: mfa.DeviceStatusActivationRequired,
		Phone:  "+1.5551234567",
	})
	require.NoError(t, err)

	// An empty activation URI falls back to the canonical path
	err = client.ActivateDevice(ctx, creds, result.DeviceID, "", notifier.LastPasscode())
	assert.NoError(t, err)
}

func TestHTTPClient_ListDevicesEmpty(t *testing.T) {
	client, _ := newTestServer(t)

	devices, err := client.ListDevices(context.Background(), testCredentials())
	require.NoError(t, err)
	assert.Empty(t, devices)
}

func TestHTTPClient_DeviceLimitError(t *testing.T) {
	client, _ := newTestServer(t, platform.WithDeviceLimit(1))
	ctx := context.Background()
	creds := testCredentials()

	params := mfa.RegistrationParams{
		Type:   mfa.DeviceTypeSMS,
		Status: mfa.DeviceStatusActive,
		Phone:  "+1.5551234567",
	}
	_, err := client.RegisterDevice(ctx, creds, params)
	require.NoError(t, err)

	_, err = client.RegisterDevice(ctx, creds, params)
	assert.True(t, errors.IsCode(err, errors.ErrCodeDeviceLimitExceeded))
}

func TestHTTPClient_SendAndValidateOTP(t *testing.T) {
	client, notifier := newTestServer(t, platform.WithResendThrottle(0))
	ctx := context.Background()
	creds := testCredentials()

	result, err := client.RegisterDevice(ctx, creds, mfa.RegistrationParams{
		Type:   mfa.DeviceTypeSMS,
		Status: mfa.DeviceStatusActive,
		Phone:  "+1.5551234567",
	})
	require.NoError(t, err)

	require.NoError(t, client.SendOTP(ctx, creds, result.DeviceID))
	code := notifier.LastPasscode()
	require.NotEmpty(t, code)

	require.NoError(t, client.ValidateOTP(ctx, creds, result.DeviceID, code))
}

func TestHTTPClient_AuthenticationFlow(t *testing.T) {
	client, notifier := newTestServer(t)
	ctx := context.Background()
	creds := testCredentials()

	first, err := client.RegisterDevice(ctx, creds, mfa.RegistrationParams{
		Type:   mfa.DeviceTypeSMS,
		Status: mfa.DeviceStatusActive,
		Phone:  "+1.5551111111",
	})
	require.NoError(t, err)
	_, err = client.RegisterDevice(ctx, creds, mfa.RegistrationParams{
		Type:   mfa.DeviceTypeSMS,
		Status: mfa.DeviceStatusActive,
		Phone:  "+1.5552222222",
	})
	require.NoError(t, err)

	// Two active devices force a selection
	init, err := client.InitAuthentication(ctx, creds, "")
	require.NoError(t, err)
	assert.Equal(t, mfa.NextStepSelectionRequired, init.NextStep)
	assert.Len(t, init.Devices, 2)

	selected, err := client.SelectDevice(ctx, creds, init.AuthenticationID, first.DeviceID)
	require.NoError(t, err)
	assert.Equal(t, mfa.NextStepOTPRequired, selected.NextStep)

	code := notifier.LastPasscode()
	require.NotEmpty(t, code)
	require.NoError(t, client.ValidateAuthentication(ctx, creds, init.AuthenticationID, code))
}

func TestHTTPClient_UnknownDeviceIs404(t *testing.T) {
	client, _ := newTestServer(t)

	err := client.SendOTP(context.Background(), testCredentials(), "1e2a4c10-0000-0000-0000-000000000000")
	assert.True(t, errors.IsCode(err, errors.ErrCodeDeviceNotFound))
}
