package enrollflow

import (
	"log/slog"

	"github.com/tendant/simple-mfa/pkg/mfa"
)

// Decision is the orchestrator's verdict on where the flow goes after a
// registration call.
type Decision int

const (
	// DecisionSuccess means the device is immediately usable: emit the
	// success result and never attempt activation (activating an
	// already-active device is a backend error).
	DecisionSuccess Decision = iota
	// DecisionValidate means the backend auto-dispatched an OTP: skip the
	// manual send step and land directly on validation.
	DecisionValidate
	// DecisionSendOTP is the conservative default: the operator drives a
	// manual OTP send so they are never silently blocked.
	DecisionSendOTP
)

func (d Decision) String() string {
	switch d {
	case DecisionSuccess:
		return "success"
	case DecisionValidate:
		return "validate"
	default:
		return "send_otp"
	}
}

// Orchestrator interprets a registration result against the status the
// caller originally requested.
type Orchestrator struct{}

// Decide evaluates the decision table top to bottom, first match wins:
//
//  1. API returned ACTIVE with no activation URI: immediately usable.
//  2. Requested status was ACTIVATION_REQUIRED (regardless of the echoed
//     status): activation pending, OTP already dispatched server-side.
//  3. Requested ACTIVE and API confirms ACTIVE: success.
//  4. Anything else: fall back to the requested status's path (validation
//     for ACTIVATION_REQUIRED requests, otherwise the manual send step) and
//     log a warning, since the backend returned a status we do not know.
func (Orchestrator) Decide(requested mfa.DeviceStatus, result mfa.RegistrationResult) Decision {
	if result.Status == mfa.DeviceStatusActive && result.DeviceActivateURI == "" {
		return DecisionSuccess
	}
	if requested == mfa.DeviceStatusActivationRequired {
		return DecisionValidate
	}
	if requested == mfa.DeviceStatusActive && result.Status == mfa.DeviceStatusActive {
		return DecisionSuccess
	}

	slog.Warn("Unexpected registration status, falling back to requested-status path",
		"requested", requested, "returned", result.Status, "deviceID", result.DeviceID)
	if requested == mfa.DeviceStatusActivationRequired {
		return DecisionValidate
	}
	return DecisionSendOTP
}
