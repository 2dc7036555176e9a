package enrollflow

import (
	"context"
	stderrors "errors"
	"log/slog"
	"sync"

	"github.com/tendant/simple-mfa/pkg/challenge"
	"github.com/tendant/simple-mfa/pkg/controller"
	"github.com/tendant/simple-mfa/pkg/errors"
	"github.com/tendant/simple-mfa/pkg/mfa"
	"github.com/tendant/simple-mfa/pkg/mfaclient"
	"github.com/tendant/simple-mfa/pkg/token"
)

// Flow step indices. The navigator holds the position; these constants name
// the steps the session drives.
const (
	StepConfigure = iota
	StepRegister
	StepSendOTP
	StepValidate
	StepComplete
)

// FlowType selects the registration policy: the admin flow chooses the
// desired status, the user flow always requests ACTIVATION_REQUIRED.
type FlowType string

const (
	FlowTypeAdmin FlowType = "admin"
	FlowTypeUser  FlowType = "user"
)

// TokenTypeForFlow derives the token type from the flow type. The flow type
// is the single source of truth; there is no second stored field to keep in
// sync.
func TokenTypeForFlow(flowType FlowType) mfa.TokenType {
	if flowType == FlowTypeUser {
		return mfa.TokenTypeUser
	}
	return mfa.TokenTypeService
}

// ErrBusy is returned when a mutating operation is submitted while another
// is still in flight. Duplicate submissions are rejected here, at the flow
// boundary, not inside the controllers.
var ErrBusy = stderrors.New("another operation is already in progress")

// Session owns one flow's state: credentials, challenge state, validation
// state and navigation. Sessions are not safe for sharing across flows
// without external synchronization.
type Session struct {
	flowType      FlowType
	desiredStatus mfa.DeviceStatus

	client    mfaclient.Client
	factory   *controller.Factory
	inspector *token.Inspector
	orch      Orchestrator
	chal      *challenge.Manager
	nav       *Navigator

	creds    mfa.Credentials
	ctrl     controller.Controller
	mfaState mfa.MfaState
	valState mfa.ValidationState

	devices          []mfa.DeviceRecord
	pendingSelection *mfa.AuthenticationInit
	successView      *SuccessView
	deviceLimitHit   bool

	mu       sync.Mutex
	busy     bool
	commands []func()
	fetchGen int
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithChallengeManager overrides the challenge manager, used by tests to
// inject a fake clock.
func WithChallengeManager(chal *challenge.Manager) SessionOption {
	return func(s *Session) {
		s.chal = chal
	}
}

// WithDesiredStatus sets the status the admin flow requests at registration.
// The user flow ignores it and always requests ACTIVATION_REQUIRED.
func WithDesiredStatus(status mfa.DeviceStatus) SessionOption {
	return func(s *Session) {
		s.desiredStatus = status
	}
}

// NewSession creates a flow session against the given API client.
func NewSession(client mfaclient.Client, inspector *token.Inspector, flowType FlowType, opts ...SessionOption) *Session {
	s := &Session{
		flowType:      flowType,
		desiredStatus: mfa.DeviceStatusActive,
		client:        client,
		factory:       controller.NewFactory(client),
		inspector:     inspector,
		chal:          challenge.NewManager(),
		nav:           NewNavigator(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Navigator exposes the flow's navigation state.
func (s *Session) Navigator() *Navigator { return s.nav }

// Challenges exposes the session's challenge manager.
func (s *Session) Challenges() *challenge.Manager { return s.chal }

// State returns the current MFA state.
func (s *Session) State() mfa.MfaState { return s.mfaState }

// Validation returns the current validation state.
func (s *Session) Validation() mfa.ValidationState { return s.valState }

// Credentials returns the configured credentials.
func (s *Session) Credentials() mfa.Credentials { return s.creds }

// Devices returns the last loaded device list.
func (s *Session) Devices() []mfa.DeviceRecord { return s.devices }

// SuccessView returns the normalized success record, or nil.
func (s *Session) SuccessView() *SuccessView { return s.successView }

// DeviceLimitReached reports whether the last registration hit the device
// limit; the operator must delete a device before retrying.
func (s *Session) DeviceLimitReached() bool { return s.deviceLimitHit }

// PendingSelection returns the SELECTION_REQUIRED session awaiting a device
// choice, or nil.
func (s *Session) PendingSelection() *mfa.AuthenticationInit { return s.pendingSelection }

// RequestedStatus is the status registration will ask for under the current
// flow policy.
func (s *Session) RequestedStatus() mfa.DeviceStatus {
	if s.flowType == FlowTypeUser {
		return mfa.DeviceStatusActivationRequired
	}
	return s.desiredStatus
}

// begin acquires the single-flight guard.
func (s *Session) begin() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.busy {
		return ErrBusy
	}
	s.busy = true
	return nil
}

// end releases the guard and drains commands deferred during the operation.
func (s *Session) end() {
	s.mu.Lock()
	s.busy = false
	commands := s.commands
	s.commands = nil
	s.mu.Unlock()

	for _, cmd := range commands {
		cmd()
	}
}

// enqueue queues a state mutation to run after the current operation
// finishes, so step evaluation never observes a half-applied transition.
func (s *Session) enqueue(cmd func()) {
	s.mu.Lock()
	s.commands = append(s.commands, cmd)
	s.mu.Unlock()
}

// goTo moves the navigator and invalidates in-flight device fetches so a
// stale fetch cannot clobber state after the user navigated away.
func (s *Session) goTo(step int) {
	s.mu.Lock()
	s.fetchGen++
	s.mu.Unlock()
	s.nav.GoToStep(step)
}

// Configure validates and installs the flow credentials, selecting the
// controller for the requested device type. Token type is derived from the
// flow type, overriding whatever the caller set.
func (s *Session) Configure(creds mfa.Credentials) bool {
	creds.TokenType = TokenTypeForFlow(s.flowType)
	ctrl := s.factory.Create(creds.DeviceType)

	status := s.inspector.InspectCredentials(creds)
	if !ctrl.ValidateCredentials(creds, status, s.nav) {
		slog.Info("Credential validation failed", "errors", s.nav.ValidationErrors())
		return false
	}

	s.creds = creds
	s.ctrl = ctrl
	s.nav.MarkStepComplete()
	s.goTo(StepRegister)
	return true
}

// LoadDevices refreshes the device list. Failures degrade silently to an
// empty list; a result arriving after a navigation change is dropped.
func (s *Session) LoadDevices(ctx context.Context) []mfa.DeviceRecord {
	s.mu.Lock()
	gen := s.fetchGen
	s.mu.Unlock()

	status := s.inspector.InspectCredentials(s.creds)
	devices := s.ctrl.LoadExistingDevices(ctx, s.creds, status)

	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.fetchGen {
		slog.Debug("Dropping stale device list", "count", len(devices))
		return s.devices
	}
	s.devices = devices
	return devices
}

// Register performs the registration call and routes the flow according to
// the orchestrator's decision table.
func (s *Session) Register(ctx context.Context) error {
	if err := s.begin(); err != nil {
		return err
	}
	defer s.end()

	if err := s.gateToken(); err != nil {
		return err
	}

	requested := s.RequestedStatus()
	params, err := s.ctrl.RegistrationParams(s.creds, requested)
	if err != nil {
		s.nav.SetValidationErrors([]string{errors.UserMessage(err)})
		return err
	}

	result, err := s.ctrl.RegisterDevice(ctx, s.creds, params)
	if err != nil {
		s.handleRegistrationError(err)
		return err
	}

	s.deviceLimitHit = false
	s.mfaState.DeviceID = result.DeviceID
	s.mfaState.DeviceStatus = result.Status
	s.mfaState.DeviceActivateURI = result.DeviceActivateURI
	s.nav.SetValidationErrors(nil)

	switch s.orch.Decide(requested, result) {
	case DecisionSuccess:
		s.mfaState.DeviceStatus = mfa.DeviceStatusActive
		view := NormalizeResult(s.ctrl.DeviceType(), result.Device, &s.mfaState)
		s.successView = &view
		s.nav.MarkStepComplete()
		// Immediately usable: no activation, no OTP send, and navigation
		// stays on the registration step showing the success view.
	case DecisionValidate:
		s.nav.MarkStepComplete()
		s.enqueue(func() { s.goTo(StepValidate) })
	case DecisionSendOTP:
		s.nav.MarkStepComplete()
		s.enqueue(func() { s.goTo(StepSendOTP) })
	}
	return nil
}

func (s *Session) handleRegistrationError(err error) {
	switch errors.Classify(err) {
	case errors.KindDeviceLimit:
		s.deviceLimitHit = true
		s.nav.SetValidationErrors([]string{"Device limit reached. Delete an existing device before registering another."})
	case errors.KindToken:
		s.nav.SetValidationErrors([]string{"Your token is invalid or expired. Refresh the token and try again."})
	case errors.KindRateLimit:
		s.nav.SetValidationErrors([]string{"The platform is rate limiting requests. Wait before trying again."})
	default:
		s.nav.SetValidationErrors([]string{errors.UserMessage(err)})
		slog.Error("Registration failed", "error", err)
	}
}

// SendOTP dispatches a manual challenge to the registered device.
func (s *Session) SendOTP(ctx context.Context) error {
	if err := s.begin(); err != nil {
		return err
	}
	defer s.end()

	if err := s.gateToken(); err != nil {
		return err
	}

	if err := s.ctrl.SendOTP(ctx, s.creds, s.mfaState.DeviceID, s.chal, s.nav); err != nil {
		return err
	}
	s.enqueue(func() { s.goTo(StepValidate) })
	return nil
}

// Validate submits a passcode. Exactly one validation path is taken: the
// authentication-session path when an authentication ID is present, the
// device path (activation or runtime) otherwise.
func (s *Session) Validate(ctx context.Context, code string) (bool, error) {
	if err := s.begin(); err != nil {
		return false, err
	}
	defer s.end()

	if err := s.gateToken(); err != nil {
		return false, err
	}

	s.mfaState.OTPCode = code
	target := s.mfaState.DeviceID
	if s.mfaState.AuthenticationID != "" {
		target = s.mfaState.AuthenticationID
	}
	s.chal.BeginValidation(target)

	var ok bool
	var err error
	if s.mfaState.AuthenticationID != "" {
		ok, err = s.ctrl.ValidateOTPForAuthentication(ctx, s.creds, s.mfaState.AuthenticationID, code, &s.mfaState, &s.valState, s.nav)
	} else {
		ok, err = s.ctrl.ValidateOTP(ctx, s.creds, s.mfaState.DeviceID, code, &s.mfaState, &s.valState, s.nav)
	}
	s.chal.RecordValidation(target, ok, err)

	if !ok {
		return false, err
	}

	record := s.deviceRecordByID(s.mfaState.DeviceID)
	view := NormalizeResult(s.ctrl.DeviceType(), record, &s.mfaState)
	s.successView = &view
	s.nav.MarkStepComplete()
	s.enqueue(func() { s.goTo(StepComplete) })
	return true, nil
}

// InitAuthentication starts a runtime challenge against an already-active
// device. An empty deviceID lets the platform decide, possibly answering
// SELECTION_REQUIRED.
func (s *Session) InitAuthentication(ctx context.Context, deviceID string) (mfa.NextStep, error) {
	if err := s.begin(); err != nil {
		return "", err
	}
	defer s.end()

	if err := s.gateToken(); err != nil {
		return "", err
	}

	init, err := s.ctrl.InitializeDeviceAuthentication(ctx, s.creds, deviceID)
	if err != nil {
		s.nav.SetValidationErrors([]string{errors.UserMessage(err)})
		return "", err
	}
	return s.applyAuthenticationInit(init, deviceID), nil
}

// SelectDevice resolves a pending SELECTION_REQUIRED session.
func (s *Session) SelectDevice(ctx context.Context, deviceID string) (mfa.NextStep, error) {
	if err := s.begin(); err != nil {
		return "", err
	}
	defer s.end()

	if err := s.gateToken(); err != nil {
		return "", err
	}

	if s.pendingSelection == nil {
		return "", errors.New(errors.ErrCodeInvalidInput, "no device selection is pending")
	}

	init, err := s.client.SelectDevice(ctx, s.creds, s.pendingSelection.AuthenticationID, deviceID)
	if err != nil {
		s.nav.SetValidationErrors([]string{errors.UserMessage(err)})
		return "", err
	}
	s.pendingSelection = nil
	return s.applyAuthenticationInit(init, deviceID), nil
}

func (s *Session) applyAuthenticationInit(init mfa.AuthenticationInit, deviceID string) mfa.NextStep {
	switch init.NextStep {
	case mfa.NextStepCompleted:
		s.mfaState.DeviceID = deviceID
		s.mfaState.DeviceStatus = mfa.DeviceStatusActive
		record := s.deviceRecordByID(deviceID)
		view := NormalizeResult(s.ctrl.DeviceType(), record, &s.mfaState)
		s.successView = &view
		s.nav.MarkStepComplete()
		s.enqueue(func() { s.goTo(StepComplete) })
	case mfa.NextStepSelectionRequired:
		selection := init
		s.pendingSelection = &selection
	default:
		// OTP_REQUIRED: the platform issued a code when it created the
		// session, so the flow lands directly on validation.
		s.mfaState.DeviceID = deviceID
		s.mfaState.AuthenticationID = init.AuthenticationID
		s.enqueue(func() { s.goTo(StepValidate) })
	}
	return init.NextStep
}

// Restart clears all per-flow state. Registered navigator hooks survive.
func (s *Session) Restart() {
	s.mu.Lock()
	s.fetchGen++
	s.commands = nil
	s.mu.Unlock()

	s.mfaState.Reset()
	s.valState = mfa.ValidationState{}
	s.chal.Reset()
	s.nav.Reset()
	s.devices = nil
	s.pendingSelection = nil
	s.successView = nil
	s.deviceLimitHit = false
}

// gateToken enforces the token precondition before any mutating call.
func (s *Session) gateToken() error {
	status := s.inspector.InspectCredentials(s.creds)
	if status.IsValid {
		return nil
	}
	s.nav.SetValidationErrors([]string{status.Message})
	code := errors.ErrCodeTokenInvalid
	switch status.Code {
	case token.StatusMissing:
		code = errors.ErrCodeTokenMissing
	case token.StatusExpired:
		code = errors.ErrCodeTokenExpired
	}
	return errors.New(code, status.Message)
}

func (s *Session) deviceRecordByID(deviceID string) mfa.DeviceRecord {
	for _, d := range s.devices {
		if d.ID == deviceID {
			return d
		}
	}
	return mfa.DeviceRecord{ID: deviceID, Type: s.creds.DeviceType}
}
