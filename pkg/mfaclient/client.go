// Package mfaclient is the typed client for the MFA management API. The
// orchestration core treats the platform as an opaque collaborator: every
// method is a single network call returning typed results or structured
// errors from pkg/errors.
package mfaclient

import (
	"context"

	"github.com/tendant/simple-mfa/pkg/mfa"
)

// Client is the MFA management API surface the orchestration core depends
// on. Implementations must map backend failures onto pkg/errors codes so the
// flow can classify them.
type Client interface {
	// ListDevices returns the user's registered devices.
	ListDevices(ctx context.Context, creds mfa.Credentials) ([]mfa.DeviceRecord, error)

	// RegisterDevice registers a new device. The returned status is decided
	// by the server and may differ from params.Status.
	RegisterDevice(ctx context.Context, creds mfa.Credentials, params mfa.RegistrationParams) (mfa.RegistrationResult, error)

	// ActivateDevice validates the activation OTP for a newly registered
	// device. activateURI, when present, is used verbatim; otherwise the
	// activation path is constructed from the device ID.
	ActivateDevice(ctx context.Context, creds mfa.Credentials, deviceID, activateURI, code string) error

	// SendOTP dispatches a challenge to an existing device.
	SendOTP(ctx context.Context, creds mfa.Credentials, deviceID string) error

	// ValidateOTP validates a runtime challenge against an active device.
	ValidateOTP(ctx context.Context, creds mfa.Credentials, deviceID, code string) error

	// InitAuthentication starts a device-authentication session. With an
	// empty deviceID the server may answer SELECTION_REQUIRED.
	InitAuthentication(ctx context.Context, creds mfa.Credentials, deviceID string) (mfa.AuthenticationInit, error)

	// SelectDevice resolves a SELECTION_REQUIRED session to one device.
	SelectDevice(ctx context.Context, creds mfa.Credentials, authenticationID, deviceID string) (mfa.AuthenticationInit, error)

	// ValidateAuthentication validates the OTP for an authentication session.
	ValidateAuthentication(ctx context.Context, creds mfa.Credentials, authenticationID, code string) error
}
