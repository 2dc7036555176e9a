package controller

import (
	"time"

	"github.com/pquerna/otp/totp"
	"github.com/tendant/simple-mfa/pkg/errors"
	"github.com/tendant/simple-mfa/pkg/mfa"
	"github.com/tendant/simple-mfa/pkg/mfaclient"
)

// TOTPIssuer is stamped into generated provisioning secrets.
const TOTPIssuer = "simple-mfa"

// TOTPController serves authenticator-app devices. Registration generates
// the shared secret locally so the operator tool can both provision the
// device and compute passcodes for it.
type TOTPController struct {
	base
}

// NewTOTPController creates a controller for TOTP devices.
func NewTOTPController(client mfaclient.Client) *TOTPController {
	return &TOTPController{base: base{client: client, deviceType: mfa.DeviceTypeTOTP}}
}

// RegistrationParams generates a fresh TOTP secret; TOTP devices carry no
// contact field.
func (c *TOTPController) RegistrationParams(creds mfa.Credentials, desired mfa.DeviceStatus) (mfa.RegistrationParams, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      TOTPIssuer,
		AccountName: creds.Username,
	})
	if err != nil {
		return mfa.RegistrationParams{}, errors.Wrap(err, errors.ErrCodeInternal, "failed to generate TOTP secret")
	}

	return mfa.RegistrationParams{
		Type:     mfa.DeviceTypeTOTP,
		Status:   desired,
		Nickname: creds.DeviceName,
		PolicyID: creds.PolicyID,
		Secret:   key.Secret(),
	}, nil
}

// CurrentPasscode computes the passcode for a secret so the operator does
// not have to transcribe it from an authenticator app.
func (c *TOTPController) CurrentPasscode(secret string) (string, error) {
	code, err := totp.GenerateCode(secret, time.Now().UTC())
	if err != nil {
		return "", errors.Wrap(err, errors.ErrCodeInternal, "failed to generate TOTP passcode")
	}
	return code, nil
}
