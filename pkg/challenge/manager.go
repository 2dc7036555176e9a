package challenge

import (
	"log/slog"
	"time"

	"github.com/tendant/simple-mfa/pkg/errors"
)

// Phase is the lifecycle of a challenge against a single target.
type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhaseSent       Phase = "sent"
	PhaseValidating Phase = "validating"
	PhaseSuccess    Phase = "success"
	PhaseFailed     Phase = "failed"
)

// DefaultResendWindow is how long a successful send blocks the next resend.
const DefaultResendWindow = 60 * time.Second

// State tracks one challenge target (a device ID or an authentication ID).
// SendAttempts counts failed sends and exists purely for user messaging; it
// is unrelated to the validation-attempt counter, which tracks validation
// failures and is reset only by a successful validation.
type State struct {
	Target       string
	Phase        Phase
	Sent         bool
	SendAttempts int
	LastError    string

	sentAt time.Time
}

// Manager runs the per-target challenge state machine:
// idle -> sent -> validating -> success | failed.
// A Manager belongs to a single flow session and is not safe for concurrent
// use across sessions.
type Manager struct {
	window  time.Duration
	now     func() time.Time
	targets map[string]*State
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithResendWindow overrides the resend cooldown window.
func WithResendWindow(window time.Duration) ManagerOption {
	return func(m *Manager) {
		m.window = window
	}
}

// WithClock overrides the time source, used by tests.
func WithClock(now func() time.Time) ManagerOption {
	return func(m *Manager) {
		m.now = now
	}
}

// NewManager creates a challenge manager with the default 60 second window.
func NewManager(opts ...ManagerOption) *Manager {
	m := &Manager{
		window:  DefaultResendWindow,
		now:     time.Now,
		targets: make(map[string]*State),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// State returns the challenge state for a target, creating an idle state for
// a target the manager has not seen. A new target always starts with zero
// retries.
func (m *Manager) State(target string) *State {
	if s, ok := m.targets[target]; ok {
		return s
	}
	s := &State{Target: target, Phase: PhaseIdle}
	m.targets[target] = s
	return s
}

// CanResend reports whether a resend is allowed for the target. Resend is
// rejected only while a cooldown is active.
func (m *Manager) CanResend(target string) bool {
	return m.ResendCooldown(target) == 0
}

// ResendCooldown returns the whole seconds remaining before the target may
// be sent another code. Zero means no cooldown is active.
func (m *Manager) ResendCooldown(target string) int {
	s, ok := m.targets[target]
	if !ok || !s.Sent {
		return 0
	}
	remaining := s.sentAt.Add(m.window).Sub(m.now())
	if remaining <= 0 {
		return 0
	}
	// Round up so a cooldown never reads 0 while still active.
	return int((remaining + time.Second - 1) / time.Second)
}

// RecordSent marks a successful dispatch for the target and resets the
// cooldown to the full window. It does not touch validation attempts.
func (m *Manager) RecordSent(target string) {
	s := m.State(target)
	s.Phase = PhaseSent
	s.Sent = true
	s.LastError = ""
	s.sentAt = m.now()
	slog.Debug("OTP dispatched", "target", target, "sendAttempts", s.SendAttempts)
}

// RecordSendFailure bumps the send-retry counter used for "Attempt N"
// messaging and remembers the error.
func (m *Manager) RecordSendFailure(target string, err error) {
	s := m.State(target)
	s.SendAttempts++
	s.LastError = errors.UserMessage(err)
	slog.Warn("OTP send failed", "target", target, "attempt", s.SendAttempts, "error", err)
}

// BeginValidation moves a sent challenge into the validating phase.
func (m *Manager) BeginValidation(target string) {
	s := m.State(target)
	s.Phase = PhaseValidating
}

// RecordValidation finishes a validation round for the target.
func (m *Manager) RecordValidation(target string, ok bool, err error) {
	s := m.State(target)
	if ok {
		s.Phase = PhaseSuccess
		s.LastError = ""
		return
	}
	s.Phase = PhaseFailed
	if err != nil {
		s.LastError = errors.UserMessage(err)
	}
}

// Reset drops all tracked targets, used when the flow restarts.
func (m *Manager) Reset() {
	m.targets = make(map[string]*State)
}
