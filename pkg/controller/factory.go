package controller

import (
	"log/slog"

	"github.com/tendant/simple-mfa/pkg/errors"
	"github.com/tendant/simple-mfa/pkg/mfa"
	"github.com/tendant/simple-mfa/pkg/mfaclient"
)

// Factory selects a controller by device type. Dispatch is total: device
// types without a dedicated controller degrade to the SMS controller, and a
// genuinely unrecognized value additionally logs a warning.
type Factory struct {
	client mfaclient.Client
}

// NewFactory creates a controller factory backed by the given API client.
func NewFactory(client mfaclient.Client) *Factory {
	return &Factory{client: client}
}

// dedicatedTypes are the families with their own controller. Callers use
// this set (via IsSupported/SupportedTypes) to decide whether to show
// device-type-specific branches; AllDeviceTypes reports the wider enumerable
// set including types that degrade to SMS behavior.
var dedicatedTypes = []mfa.DeviceType{
	mfa.DeviceTypeSMS,
	mfa.DeviceTypeEmail,
	mfa.DeviceTypeTOTP,
	mfa.DeviceTypeFIDO2,
	mfa.DeviceTypeMobile,
}

// Create returns the controller for the device type.
func (f *Factory) Create(deviceType mfa.DeviceType) Controller {
	switch deviceType {
	case mfa.DeviceTypeSMS, mfa.DeviceTypeVoice, mfa.DeviceTypeWhatsApp:
		return NewSMSController(f.client)
	case mfa.DeviceTypeEmail:
		return NewEmailController(f.client)
	case mfa.DeviceTypeTOTP:
		return NewTOTPController(f.client)
	case mfa.DeviceTypeFIDO2:
		return NewFIDO2Controller(f.client)
	case mfa.DeviceTypeMobile:
		return NewMobileController(f.client)
	case mfa.DeviceTypeOathToken, mfa.DeviceTypePlatform, mfa.DeviceTypeSecurityKey:
		// Known types without a dedicated controller degrade to SMS.
		return NewSMSController(f.client)
	default:
		slog.Warn("Unrecognized device type, falling back to SMS controller", "deviceType", deviceType)
		return NewSMSController(f.client)
	}
}

// IsSupported reports whether the type has a dedicated controller.
func (f *Factory) IsSupported(deviceType mfa.DeviceType) bool {
	for _, t := range dedicatedTypes {
		if t == deviceType {
			return true
		}
	}
	return false
}

// SupportedTypes returns the dedicated controller set only.
func (f *Factory) SupportedTypes() []mfa.DeviceType {
	out := make([]mfa.DeviceType, len(dedicatedTypes))
	copy(out, dedicatedTypes)
	return out
}

// AllDeviceTypes returns every enumerable device type, including those that
// degrade to SMS controller behavior.
func (f *Factory) AllDeviceTypes() []mfa.DeviceType {
	return mfa.AllDeviceTypes()
}

func errMissingField(field string) *errors.Error {
	return errors.Newf(errors.ErrCodeMissingRequired, "missing required field: %s", field)
}
