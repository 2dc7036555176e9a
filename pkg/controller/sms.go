package controller

import (
	"github.com/tendant/simple-mfa/pkg/mfa"
	"github.com/tendant/simple-mfa/pkg/mfaclient"
	"github.com/tendant/simple-mfa/pkg/token"
)

// SMSController serves the phone-based family: SMS, Voice and WhatsApp. It
// is also the degradation target for device types without a dedicated
// controller, which register with an SMS-shaped payload.
type SMSController struct {
	base
}

// NewSMSController creates a controller for phone-delivered OTP devices.
func NewSMSController(client mfaclient.Client) *SMSController {
	return &SMSController{base: base{client: client, deviceType: mfa.DeviceTypeSMS}}
}

// RegistrationParams builds a payload with the phone in canonical
// "+country.number" form. The device type follows the credentials when the
// requested type is phone-based; anything else degrades to SMS.
func (c *SMSController) RegistrationParams(creds mfa.Credentials, desired mfa.DeviceStatus) (mfa.RegistrationParams, error) {
	deviceType := mfa.DeviceTypeSMS
	if creds.DeviceType.RequiresPhone() {
		deviceType = creds.DeviceType
	}

	phone := mfa.FormatPhone(creds.CountryCode, creds.Phone)
	if phone == "" {
		return mfa.RegistrationParams{}, errMissingField("phone number and country code")
	}

	return mfa.RegistrationParams{
		Type:     deviceType,
		Status:   desired,
		Phone:    phone,
		Nickname: creds.DeviceName,
		PolicyID: creds.PolicyID,
	}, nil
}

func (c *SMSController) ValidateCredentials(creds mfa.Credentials, tokenStatus token.Status, sink ValidationErrorSink) bool {
	errs := c.validateCommon(creds, tokenStatus)
	if creds.CountryCode == "" {
		errs = append(errs, "Country code is required")
	}
	if creds.Phone == "" {
		errs = append(errs, "Phone number is required")
	} else if mfa.FormatPhone(creds.CountryCode, creds.Phone) == "" {
		errs = append(errs, "Phone number must contain digits")
	}
	sink.SetValidationErrors(errs)
	return len(errs) == 0
}
