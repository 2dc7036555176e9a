package controller

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/tendant/simple-mfa/pkg/challenge"
	"github.com/tendant/simple-mfa/pkg/errors"
	"github.com/tendant/simple-mfa/pkg/mfa"
	"github.com/tendant/simple-mfa/pkg/mfaclient"
	"github.com/tendant/simple-mfa/pkg/token"
)

// ValidationErrorSink receives user-facing validation errors. The flow
// navigator satisfies this; controllers never depend on the navigator itself.
type ValidationErrorSink interface {
	SetValidationErrors(errs []string)
}

// Controller is the single capability contract every device-type family
// implements. One flow session holds exactly one controller at a time,
// selected by the Factory.
type Controller interface {
	// DeviceType is the family this controller serves.
	DeviceType() mfa.DeviceType

	// LoadExistingDevices returns the user's devices. Lookup failures are
	// swallowed (logged, empty slice) so the caller can default to
	// registering a new device.
	LoadExistingDevices(ctx context.Context, creds mfa.Credentials, tokenStatus token.Status) []mfa.DeviceRecord

	// RegistrationParams builds the device-type-specific payload and stamps
	// the desired status.
	RegistrationParams(creds mfa.Credentials, desired mfa.DeviceStatus) (mfa.RegistrationParams, error)

	// RegisterDevice performs the single registration call. The returned
	// status must not be assumed to equal params.Status.
	RegisterDevice(ctx context.Context, creds mfa.Credentials, params mfa.RegistrationParams) (mfa.RegistrationResult, error)

	// SendOTP dispatches a challenge to a device, classifying failures and
	// writing both user-facing errors and the send-retry counter.
	SendOTP(ctx context.Context, creds mfa.Credentials, deviceID string, chal *challenge.Manager, sink ValidationErrorSink) error

	// ValidateOTP validates a passcode for a device: the activation path
	// when the state carries a DeviceActivateURI or a pending status, the
	// runtime path otherwise.
	ValidateOTP(ctx context.Context, creds mfa.Credentials, deviceID, code string, state *mfa.MfaState, val *mfa.ValidationState, sink ValidationErrorSink) (bool, error)

	// ValidateOTPForAuthentication validates a passcode for an existing
	// authentication session.
	ValidateOTPForAuthentication(ctx context.Context, creds mfa.Credentials, authenticationID, code string, state *mfa.MfaState, val *mfa.ValidationState, sink ValidationErrorSink) (bool, error)

	// InitializeDeviceAuthentication starts a runtime authentication session
	// against an already-active device.
	InitializeDeviceAuthentication(ctx context.Context, creds mfa.Credentials, deviceID string) (mfa.AuthenticationInit, error)

	// ValidateCredentials is pure validation: it writes into the sink and
	// returns overall pass/fail with no other side effects.
	ValidateCredentials(creds mfa.Credentials, tokenStatus token.Status, sink ValidationErrorSink) bool
}

// base carries the behavior shared by every controller family. Variants
// embed it and override the payload building and credential checks.
type base struct {
	client     mfaclient.Client
	deviceType mfa.DeviceType
}

func (b *base) DeviceType() mfa.DeviceType {
	return b.deviceType
}

func (b *base) LoadExistingDevices(ctx context.Context, creds mfa.Credentials, tokenStatus token.Status) []mfa.DeviceRecord {
	if !tokenStatus.IsValid {
		slog.Info("Skipping device lookup, token not usable", "reason", tokenStatus.Message)
		return []mfa.DeviceRecord{}
	}

	devices, err := b.client.ListDevices(ctx, creds)
	if err != nil {
		// Lookup is the only path allowed to fail silently: the caller
		// degrades to showing the registration form.
		slog.Warn("Failed to load existing devices", "username", creds.Username, "error", err)
		return []mfa.DeviceRecord{}
	}
	return devices
}

func (b *base) RegisterDevice(ctx context.Context, creds mfa.Credentials, params mfa.RegistrationParams) (mfa.RegistrationResult, error) {
	result, err := b.client.RegisterDevice(ctx, creds, params)
	if err != nil {
		slog.Error("Device registration failed", "type", params.Type, "error", err)
		return mfa.RegistrationResult{}, err
	}
	slog.Info("Device registered", "deviceID", result.DeviceID, "requestedStatus", params.Status, "returnedStatus", result.Status)
	return result, nil
}

func (b *base) SendOTP(ctx context.Context, creds mfa.Credentials, deviceID string, chal *challenge.Manager, sink ValidationErrorSink) error {
	if !chal.CanResend(deviceID) {
		remaining := chal.ResendCooldown(deviceID)
		msg := fmt.Sprintf("Please wait %d seconds before requesting another code", remaining)
		sink.SetValidationErrors([]string{msg})
		return errors.New(errors.ErrCodeRateLimited, msg)
	}

	if err := b.client.SendOTP(ctx, creds, deviceID); err != nil {
		chal.RecordSendFailure(deviceID, err)
		sink.SetValidationErrors([]string{sendFailureMessage(err, chal.State(deviceID).SendAttempts)})
		return err
	}

	chal.RecordSent(deviceID)
	sink.SetValidationErrors(nil)
	return nil
}

func (b *base) ValidateOTP(ctx context.Context, creds mfa.Credentials, deviceID, code string, state *mfa.MfaState, val *mfa.ValidationState, sink ValidationErrorSink) (bool, error) {
	var err error
	if state.DeviceActivateURI != "" || state.DeviceStatus == mfa.DeviceStatusActivationRequired {
		err = b.client.ActivateDevice(ctx, creds, deviceID, state.DeviceActivateURI, code)
	} else {
		err = b.client.ValidateOTP(ctx, creds, deviceID, code)
	}
	return b.finishValidation(state, val, sink, err)
}

func (b *base) ValidateOTPForAuthentication(ctx context.Context, creds mfa.Credentials, authenticationID, code string, state *mfa.MfaState, val *mfa.ValidationState, sink ValidationErrorSink) (bool, error) {
	err := b.client.ValidateAuthentication(ctx, creds, authenticationID, code)
	return b.finishValidation(state, val, sink, err)
}

func (b *base) finishValidation(state *mfa.MfaState, val *mfa.ValidationState, sink ValidationErrorSink, err error) (bool, error) {
	if err != nil {
		message := errors.UserMessage(err)
		val.RecordFailure(message)
		state.VerificationResult = &mfa.VerificationResult{Status: "failed", Message: message}
		sink.SetValidationErrors([]string{message})
		slog.Warn("OTP validation failed", "attempts", val.Attempts, "error", err)
		return false, err
	}

	val.RecordSuccess()
	state.DeviceStatus = mfa.DeviceStatusActive
	state.DeviceActivateURI = ""
	state.VerificationResult = &mfa.VerificationResult{Status: "success", Message: "Device verified"}
	sink.SetValidationErrors(nil)
	return true, nil
}

func (b *base) InitializeDeviceAuthentication(ctx context.Context, creds mfa.Credentials, deviceID string) (mfa.AuthenticationInit, error) {
	init, err := b.client.InitAuthentication(ctx, creds, deviceID)
	if err != nil {
		slog.Error("Failed to initialize device authentication", "deviceID", deviceID, "error", err)
		return mfa.AuthenticationInit{}, err
	}
	slog.Info("Device authentication initialized", "authenticationID", init.AuthenticationID, "nextStep", init.NextStep)
	return init, nil
}

// validateCommon runs the checks every family shares and returns the
// collected messages.
func (b *base) validateCommon(creds mfa.Credentials, tokenStatus token.Status) []string {
	var errs []string
	if creds.EnvironmentID == "" {
		errs = append(errs, "Environment ID is required")
	}
	if creds.Username == "" {
		errs = append(errs, "Username is required")
	}
	if !tokenStatus.IsValid {
		errs = append(errs, tokenStatus.Message)
	}
	return errs
}

func (b *base) ValidateCredentials(creds mfa.Credentials, tokenStatus token.Status, sink ValidationErrorSink) bool {
	errs := b.validateCommon(creds, tokenStatus)
	sink.SetValidationErrors(errs)
	return len(errs) == 0
}

// sendFailureMessage translates a classified send failure into the message
// shown inline. The attempt number covers send retries only.
func sendFailureMessage(err error, attempt int) string {
	switch errors.Classify(err) {
	case errors.KindDeviceLimit:
		return "Device limit reached. Delete an existing device before registering another."
	case errors.KindToken:
		return "Your token is invalid or expired. Refresh the token and try again."
	case errors.KindRateLimit:
		return "The platform is rate limiting requests. Wait before trying again."
	case errors.KindValidation:
		return errors.UserMessage(err)
	default:
		return fmt.Sprintf("Failed to send code (attempt %d): %s", attempt, errors.UserMessage(err))
	}
}
