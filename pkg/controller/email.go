package controller

import (
	"strings"

	"github.com/tendant/simple-mfa/pkg/mfa"
	"github.com/tendant/simple-mfa/pkg/mfaclient"
	"github.com/tendant/simple-mfa/pkg/token"
)

// EmailController serves email-delivered OTP devices.
type EmailController struct {
	base
}

// NewEmailController creates a controller for email OTP devices.
func NewEmailController(client mfaclient.Client) *EmailController {
	return &EmailController{base: base{client: client, deviceType: mfa.DeviceTypeEmail}}
}

// RegistrationParams carries the raw address; no canonicalization beyond
// trimming is applied.
func (c *EmailController) RegistrationParams(creds mfa.Credentials, desired mfa.DeviceStatus) (mfa.RegistrationParams, error) {
	email := strings.TrimSpace(creds.Email)
	if email == "" {
		return mfa.RegistrationParams{}, errMissingField("email address")
	}

	return mfa.RegistrationParams{
		Type:     mfa.DeviceTypeEmail,
		Status:   desired,
		Email:    email,
		Nickname: creds.DeviceName,
		PolicyID: creds.PolicyID,
	}, nil
}

func (c *EmailController) ValidateCredentials(creds mfa.Credentials, tokenStatus token.Status, sink ValidationErrorSink) bool {
	errs := c.validateCommon(creds, tokenStatus)
	email := strings.TrimSpace(creds.Email)
	if email == "" {
		errs = append(errs, "Email address is required")
	} else if !strings.Contains(email, "@") {
		errs = append(errs, "Email address is malformed")
	}
	sink.SetValidationErrors(errs)
	return len(errs) == 0
}
