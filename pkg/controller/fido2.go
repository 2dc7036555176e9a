package controller

import (
	"github.com/tendant/simple-mfa/pkg/mfa"
	"github.com/tendant/simple-mfa/pkg/mfaclient"
)

// FIDO2Controller serves security-key devices. Registration carries no
// contact field; the attestation ceremony itself is the platform's concern.
type FIDO2Controller struct {
	base
}

// NewFIDO2Controller creates a controller for FIDO2 devices.
func NewFIDO2Controller(client mfaclient.Client) *FIDO2Controller {
	return &FIDO2Controller{base: base{client: client, deviceType: mfa.DeviceTypeFIDO2}}
}

func (c *FIDO2Controller) RegistrationParams(creds mfa.Credentials, desired mfa.DeviceStatus) (mfa.RegistrationParams, error) {
	return mfa.RegistrationParams{
		Type:     mfa.DeviceTypeFIDO2,
		Status:   desired,
		Nickname: creds.DeviceName,
		PolicyID: creds.PolicyID,
	}, nil
}
