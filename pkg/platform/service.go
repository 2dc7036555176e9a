package platform

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/pquerna/otp/totp"
	"github.com/tendant/simple-mfa/pkg/errors"
	"github.com/tendant/simple-mfa/pkg/mfa"
	"github.com/tendant/simple-mfa/pkg/notification"
	"github.com/xlzd/gotp"
	"golang.org/x/crypto/bcrypt"
)

const (
	// DefaultDeviceLimit caps the number of devices a single user may register.
	DefaultDeviceLimit = 5
	// DefaultOTPExpiry is how long an issued passcode stays valid.
	DefaultOTPExpiry = 5 * time.Minute
	// DefaultResendThrottle is the minimum gap between sends to one device.
	DefaultResendThrottle = 30 * time.Second
	// DefaultMaxOTPAttempts is how many failed validations a passcode survives.
	DefaultMaxOTPAttempts = 3
)

// Service implements the MFA management platform: device registration,
// activation, passcode issuance and device-authentication sessions.
type Service struct {
	repo           DeviceRepository
	notifier       *notification.Manager
	deviceLimit    int
	otpExpiry      time.Duration
	resendThrottle time.Duration
	maxOTPAttempts int
	now            func() time.Time
}

// ServiceOption configures optional service behavior.
type ServiceOption func(*Service)

// WithDeviceLimit overrides the per-user device cap.
func WithDeviceLimit(limit int) ServiceOption {
	return func(s *Service) {
		s.deviceLimit = limit
	}
}

// WithOTPExpiry overrides how long issued passcodes stay valid.
func WithOTPExpiry(ttl time.Duration) ServiceOption {
	return func(s *Service) {
		s.otpExpiry = ttl
	}
}

// WithResendThrottle overrides the minimum gap between passcode sends.
func WithResendThrottle(gap time.Duration) ServiceOption {
	return func(s *Service) {
		s.resendThrottle = gap
	}
}

// WithServiceClock overrides the time source. Used by tests.
func WithServiceClock(now func() time.Time) ServiceOption {
	return func(s *Service) {
		s.now = now
	}
}

// NewService creates a platform service backed by the given repository and
// notification manager.
func NewService(repo DeviceRepository, notifier *notification.Manager, opts ...ServiceOption) *Service {
	s := &Service{
		repo:           repo,
		notifier:       notifier,
		deviceLimit:    DefaultDeviceLimit,
		otpExpiry:      DefaultOTPExpiry,
		resendThrottle: DefaultResendThrottle,
		maxOTPAttempts: DefaultMaxOTPAttempts,
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RegisterDevice creates a new device for the user. The returned status is the
// platform's decision: devices registered as ACTIVATION_REQUIRED get an
// activation URI and, for deliverable channels, a passcode issued immediately.
func (s *Service) RegisterDevice(ctx context.Context, environmentID, username string, params mfa.RegistrationParams) (mfa.RegistrationResult, error) {
	if params.Type == "" {
		return mfa.RegistrationResult{}, errors.New(errors.ErrCodeMissingRequired, "device type is required")
	}
	if params.Type.RequiresPhone() && params.Phone == "" {
		return mfa.RegistrationResult{}, errors.New(errors.ErrCodeMissingRequired, "phone is required")
	}
	if params.Type.RequiresEmail() && params.Email == "" {
		return mfa.RegistrationResult{}, errors.New(errors.ErrCodeMissingRequired, "email is required")
	}

	count, err := s.repo.CountDevicesByUser(ctx, environmentID, username)
	if err != nil {
		return mfa.RegistrationResult{}, fmt.Errorf("failed to count devices: %w", err)
	}
	if count >= s.deviceLimit {
		return mfa.RegistrationResult{}, errors.Newf(errors.ErrCodeDeviceLimitExceeded,
			"device limit exceeded: user already has %d devices", count)
	}

	status := params.Status
	if status == "" {
		status = mfa.DeviceStatusActivationRequired
	}

	device := Device{
		EnvironmentID: environmentID,
		Username:      username,
		Type:          params.Type,
		Status:        status,
		Nickname:      params.Nickname,
		Phone:         params.Phone,
		Email:         params.Email,
		TOTPSecret:    params.Secret,
	}
	device, err = s.repo.CreateDevice(ctx, device)
	if err != nil {
		return mfa.RegistrationResult{}, fmt.Errorf("failed to create device: %w", err)
	}

	result := mfa.RegistrationResult{
		DeviceID: device.ID.String(),
		Status:   device.Status,
		Device:   device.Record(),
	}

	if device.Status == mfa.DeviceStatusActivationRequired {
		result.DeviceActivateURI = fmt.Sprintf("/environments/%s/users/%s/devices/%s/activation",
			environmentID, username, device.ID)
		// TOTP codes come from the authenticator app, nothing to deliver.
		if channel, ok := deliveryChannel(device.Type); ok {
			if err := s.issueDeviceCode(ctx, &device, channel); err != nil {
				slog.Warn("Failed to deliver activation passcode", "deviceID", device.ID, "error", err)
			}
		}
	}

	slog.Info("Registered device", "environmentID", environmentID, "username", username,
		"type", device.Type, "status", device.Status, "deviceID", device.ID)
	return result, nil
}

// ListDevices returns all devices for the user.
func (s *Service) ListDevices(ctx context.Context, environmentID, username string) ([]mfa.DeviceRecord, error) {
	devices, err := s.repo.FindDevicesByUser(ctx, environmentID, username)
	if err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}
	records := make([]mfa.DeviceRecord, 0, len(devices))
	for _, device := range devices {
		records = append(records, device.Record())
	}
	return records, nil
}

// SendOTP issues a fresh passcode for the device and delivers it over the
// device's channel. Sends inside the throttle window are rejected.
func (s *Service) SendOTP(ctx context.Context, environmentID, username string, deviceID uuid.UUID) error {
	device, err := s.repo.GetDevice(ctx, environmentID, deviceID)
	if err != nil {
		return err
	}
	if device.Username != username {
		return errors.Newf(errors.ErrCodeDeviceNotFound, "device not found: %s", deviceID)
	}

	channel, ok := deliveryChannel(device.Type)
	if !ok {
		return errors.Newf(errors.ErrCodeInvalidInput, "device type %s does not support passcode delivery", device.Type)
	}
	if !device.LastOTPSentAt.IsZero() && s.now().Sub(device.LastOTPSentAt) < s.resendThrottle {
		return errors.New(errors.ErrCodeRateLimited, "passcode was sent recently, wait before resending")
	}
	return s.issueDeviceCode(ctx, &device, channel)
}

// ValidateOTP checks a passcode against the device. On success an
// ACTIVATION_REQUIRED device becomes ACTIVE.
func (s *Service) ValidateOTP(ctx context.Context, environmentID, username string, deviceID uuid.UUID, passcode string) (mfa.VerificationResult, error) {
	device, err := s.repo.GetDevice(ctx, environmentID, deviceID)
	if err != nil {
		return mfa.VerificationResult{}, err
	}
	if device.Username != username {
		return mfa.VerificationResult{}, errors.Newf(errors.ErrCodeDeviceNotFound, "device not found: %s", deviceID)
	}
	return s.validateDeviceCode(ctx, device, passcode)
}

// ActivateDevice validates the activation passcode for a device pending
// activation. Activating an already-active device is an error.
func (s *Service) ActivateDevice(ctx context.Context, environmentID, username string, deviceID uuid.UUID, passcode string) (mfa.VerificationResult, error) {
	device, err := s.repo.GetDevice(ctx, environmentID, deviceID)
	if err != nil {
		return mfa.VerificationResult{}, err
	}
	if device.Username != username {
		return mfa.VerificationResult{}, errors.Newf(errors.ErrCodeDeviceNotFound, "device not found: %s", deviceID)
	}
	if device.Status == mfa.DeviceStatusActive {
		return mfa.VerificationResult{}, errors.Newf(errors.ErrCodeDeviceAlreadyActive, "device is already active: %s", deviceID)
	}
	return s.validateDeviceCode(ctx, device, passcode)
}

// InitAuthentication starts a device-authentication session. With no device
// preselected the next step depends on how many active devices the user has.
func (s *Service) InitAuthentication(ctx context.Context, environmentID, username string, deviceID uuid.UUID) (mfa.AuthenticationInit, error) {
	devices, err := s.repo.FindDevicesByUser(ctx, environmentID, username)
	if err != nil {
		return mfa.AuthenticationInit{}, fmt.Errorf("failed to list devices: %w", err)
	}
	active := []Device{}
	for _, device := range devices {
		if device.Status == mfa.DeviceStatusActive {
			active = append(active, device)
		}
	}
	if len(active) == 0 {
		return mfa.AuthenticationInit{}, errors.New(errors.ErrCodeDeviceNotActive, "user has no active devices")
	}

	session := AuthenticationSession{
		EnvironmentID: environmentID,
		Username:      username,
	}

	var selected *Device
	if deviceID != uuid.Nil {
		for i := range active {
			if active[i].ID == deviceID {
				selected = &active[i]
				break
			}
		}
		if selected == nil {
			return mfa.AuthenticationInit{}, errors.Newf(errors.ErrCodeDeviceNotActive, "device is not active: %s", deviceID)
		}
	} else if len(active) == 1 {
		selected = &active[0]
	}

	if selected == nil {
		session.Status = mfa.NextStepSelectionRequired
		session, err = s.repo.CreateAuthentication(ctx, session)
		if err != nil {
			return mfa.AuthenticationInit{}, fmt.Errorf("failed to create authentication session: %w", err)
		}
		records := make([]mfa.DeviceRecord, 0, len(active))
		for _, device := range active {
			records = append(records, device.Record())
		}
		return mfa.AuthenticationInit{
			AuthenticationID: session.ID.String(),
			NextStep:         session.Status,
			Devices:          records,
		}, nil
	}

	session, err = s.startDeviceChallenge(ctx, session, *selected)
	if err != nil {
		return mfa.AuthenticationInit{}, err
	}
	return mfa.AuthenticationInit{
		AuthenticationID: session.ID.String(),
		NextStep:         session.Status,
	}, nil
}

// SelectDevice resolves a SELECTION_REQUIRED session to one device.
func (s *Service) SelectDevice(ctx context.Context, environmentID string, authenticationID, deviceID uuid.UUID) (mfa.AuthenticationInit, error) {
	session, err := s.repo.GetAuthentication(ctx, environmentID, authenticationID)
	if err != nil {
		return mfa.AuthenticationInit{}, err
	}
	if session.Status != mfa.NextStepSelectionRequired {
		return mfa.AuthenticationInit{}, errors.Newf(errors.ErrCodeInvalidInput,
			"authentication session is not awaiting device selection: %s", session.Status)
	}
	device, err := s.repo.GetDevice(ctx, environmentID, deviceID)
	if err != nil {
		return mfa.AuthenticationInit{}, err
	}
	if device.Username != session.Username || device.Status != mfa.DeviceStatusActive {
		return mfa.AuthenticationInit{}, errors.Newf(errors.ErrCodeDeviceNotActive, "device is not active: %s", deviceID)
	}

	session, err = s.startDeviceChallenge(ctx, session, device)
	if err != nil {
		return mfa.AuthenticationInit{}, err
	}
	return mfa.AuthenticationInit{
		AuthenticationID: session.ID.String(),
		NextStep:         session.Status,
	}, nil
}

// ValidateAuthentication checks a passcode against an OTP_REQUIRED session.
func (s *Service) ValidateAuthentication(ctx context.Context, environmentID string, authenticationID uuid.UUID, passcode string) (mfa.VerificationResult, error) {
	session, err := s.repo.GetAuthentication(ctx, environmentID, authenticationID)
	if err != nil {
		return mfa.VerificationResult{}, err
	}
	if session.Status != mfa.NextStepOTPRequired {
		return mfa.VerificationResult{}, errors.Newf(errors.ErrCodeInvalidInput,
			"authentication session is not awaiting a passcode: %s", session.Status)
	}
	if session.OTPAttempts >= s.maxOTPAttempts {
		return mfa.VerificationResult{}, errors.New(errors.ErrCodeRateLimited, "too many failed attempts")
	}

	device, err := s.repo.GetDevice(ctx, environmentID, session.DeviceID)
	if err != nil {
		return mfa.VerificationResult{}, err
	}

	var valid bool
	if device.Type == mfa.DeviceTypeTOTP {
		valid = totp.Validate(passcode, device.TOTPSecret)
	} else {
		if !session.OTPExpiresAt.IsZero() && s.now().After(session.OTPExpiresAt) {
			return mfa.VerificationResult{}, errors.New(errors.ErrCodePasscodeExpired, "passcode has expired")
		}
		valid = bcrypt.CompareHashAndPassword([]byte(session.OTPHash), []byte(passcode)) == nil
	}

	if !valid {
		session.OTPAttempts++
		if _, err := s.repo.UpdateAuthentication(ctx, session); err != nil {
			return mfa.VerificationResult{}, fmt.Errorf("failed to record attempt: %w", err)
		}
		return mfa.VerificationResult{}, errors.New(errors.ErrCodeInvalidPasscode, "invalid passcode")
	}

	session.Status = mfa.NextStepCompleted
	session.OTPHash = ""
	session.OTPAttempts = 0
	if _, err := s.repo.UpdateAuthentication(ctx, session); err != nil {
		return mfa.VerificationResult{}, fmt.Errorf("failed to complete authentication: %w", err)
	}
	slog.Info("Authentication completed", "environmentID", environmentID, "authenticationID", authenticationID)
	return mfa.VerificationResult{Status: "COMPLETED", Message: "Authentication completed"}, nil
}

// startDeviceChallenge binds the session to a device and moves it to the next
// step. Mobile devices confirm out of band so the session completes directly.
func (s *Service) startDeviceChallenge(ctx context.Context, session AuthenticationSession, device Device) (AuthenticationSession, error) {
	session.DeviceID = device.ID

	if device.Type == mfa.DeviceTypeMobile {
		session.Status = mfa.NextStepCompleted
		return s.saveSession(ctx, session)
	}

	session.Status = mfa.NextStepOTPRequired
	if device.Type == mfa.DeviceTypeTOTP {
		// Code comes from the authenticator, nothing to issue.
		return s.saveSession(ctx, session)
	}

	channel, ok := deliveryChannel(device.Type)
	if !ok {
		return AuthenticationSession{}, errors.Newf(errors.ErrCodeInvalidInput,
			"device type %s does not support passcode delivery", device.Type)
	}
	code := gotp.NewDefaultTOTP(gotp.RandomSecret(16)).Now()
	hash, err := bcrypt.GenerateFromPassword([]byte(code), bcrypt.DefaultCost)
	if err != nil {
		return AuthenticationSession{}, fmt.Errorf("failed to hash passcode: %w", err)
	}
	session.OTPHash = string(hash)
	session.OTPExpiresAt = s.now().Add(s.otpExpiry)
	session.OTPAttempts = 0

	session, err = s.saveSession(ctx, session)
	if err != nil {
		return AuthenticationSession{}, err
	}
	if err := s.deliver(device, channel, code); err != nil {
		slog.Warn("Failed to deliver authentication passcode", "deviceID", device.ID, "error", err)
	}
	return session, nil
}

func (s *Service) saveSession(ctx context.Context, session AuthenticationSession) (AuthenticationSession, error) {
	if session.ID == uuid.Nil {
		created, err := s.repo.CreateAuthentication(ctx, session)
		if err != nil {
			return AuthenticationSession{}, fmt.Errorf("failed to create authentication session: %w", err)
		}
		return created, nil
	}
	updated, err := s.repo.UpdateAuthentication(ctx, session)
	if err != nil {
		return AuthenticationSession{}, fmt.Errorf("failed to update authentication session: %w", err)
	}
	return updated, nil
}

// issueDeviceCode generates, stores and delivers a passcode for the device.
func (s *Service) issueDeviceCode(ctx context.Context, device *Device, channel notification.Channel) error {
	code := gotp.NewDefaultTOTP(gotp.RandomSecret(16)).Now()
	hash, err := bcrypt.GenerateFromPassword([]byte(code), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash passcode: %w", err)
	}
	device.OTPHash = string(hash)
	device.OTPExpiresAt = s.now().Add(s.otpExpiry)
	device.OTPAttempts = 0
	device.LastOTPSentAt = s.now()

	updated, err := s.repo.UpdateDevice(ctx, *device)
	if err != nil {
		return fmt.Errorf("failed to store passcode: %w", err)
	}
	*device = updated
	return s.deliver(*device, channel, code)
}

// validateDeviceCode checks a passcode stored on the device itself. Used for
// activation and for standalone device validation.
func (s *Service) validateDeviceCode(ctx context.Context, device Device, passcode string) (mfa.VerificationResult, error) {
	if device.OTPAttempts >= s.maxOTPAttempts {
		return mfa.VerificationResult{}, errors.New(errors.ErrCodeRateLimited, "too many failed attempts")
	}

	var valid bool
	if device.Type == mfa.DeviceTypeTOTP {
		valid = totp.Validate(passcode, device.TOTPSecret)
	} else {
		if device.OTPHash == "" {
			return mfa.VerificationResult{}, errors.New(errors.ErrCodeInvalidPasscode, "no passcode has been issued")
		}
		if !device.OTPExpiresAt.IsZero() && s.now().After(device.OTPExpiresAt) {
			return mfa.VerificationResult{}, errors.New(errors.ErrCodePasscodeExpired, "passcode has expired")
		}
		valid = bcrypt.CompareHashAndPassword([]byte(device.OTPHash), []byte(passcode)) == nil
	}

	if !valid {
		device.OTPAttempts++
		if _, err := s.repo.UpdateDevice(ctx, device); err != nil {
			return mfa.VerificationResult{}, fmt.Errorf("failed to record attempt: %w", err)
		}
		return mfa.VerificationResult{}, errors.New(errors.ErrCodeInvalidPasscode, "invalid passcode")
	}

	device.Status = mfa.DeviceStatusActive
	device.OTPHash = ""
	device.OTPAttempts = 0
	if _, err := s.repo.UpdateDevice(ctx, device); err != nil {
		return mfa.VerificationResult{}, fmt.Errorf("failed to activate device: %w", err)
	}
	slog.Info("Device validated", "deviceID", device.ID, "type", device.Type)
	return mfa.VerificationResult{Status: "ACTIVE", Message: "Device verified"}, nil
}

func (s *Service) deliver(device Device, channel notification.Channel, code string) error {
	to := device.Phone
	if channel == notification.ChannelEmail {
		to = device.Email
	}
	return s.notifier.Send(channel, notification.Data{
		To:      to,
		Subject: "Your verification code",
		Body:    fmt.Sprintf("Your verification code is %s", code),
		Data: map[string]string{
			"passcode":  code,
			"device_id": device.ID.String(),
		},
	})
}

// deliveryChannel maps a device type to its passcode delivery channel. Types
// that generate or confirm codes elsewhere have no channel.
func deliveryChannel(deviceType mfa.DeviceType) (notification.Channel, bool) {
	switch deviceType {
	case mfa.DeviceTypeSMS, mfa.DeviceTypeOathToken, mfa.DeviceTypePlatform, mfa.DeviceTypeSecurityKey:
		return notification.ChannelSMS, true
	case mfa.DeviceTypeVoice:
		return notification.ChannelVoice, true
	case mfa.DeviceTypeWhatsApp:
		return notification.ChannelWhatsApp, true
	case mfa.DeviceTypeEmail:
		return notification.ChannelEmail, true
	default:
		return "", false
	}
}
