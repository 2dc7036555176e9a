package controller

import (
	"github.com/tendant/simple-mfa/pkg/mfa"
	"github.com/tendant/simple-mfa/pkg/mfaclient"
)

// MobileController serves push-enabled mobile app devices.
type MobileController struct {
	base
}

// NewMobileController creates a controller for mobile push devices.
func NewMobileController(client mfaclient.Client) *MobileController {
	return &MobileController{base: base{client: client, deviceType: mfa.DeviceTypeMobile}}
}

func (c *MobileController) RegistrationParams(creds mfa.Credentials, desired mfa.DeviceStatus) (mfa.RegistrationParams, error) {
	return mfa.RegistrationParams{
		Type:     mfa.DeviceTypeMobile,
		Status:   desired,
		Nickname: creds.DeviceName,
		PolicyID: creds.PolicyID,
	}, nil
}
