package challenge

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManager_StateStartsIdle(t *testing.T) {
	m := NewManager()

	s := m.State("device-1")
	require.NotNil(t, s)
	assert.Equal(t, PhaseIdle, s.Phase)
	assert.False(t, s.Sent)
	assert.Zero(t, s.SendAttempts)

	// Same target returns the same state
	assert.Same(t, s, m.State("device-1"))
}

func TestManager_ResendCooldown(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	m := NewManager(WithClock(func() time.Time { return now }))

	// No send yet, no cooldown
	assert.True(t, m.CanResend("device-1"))
	assert.Zero(t, m.ResendCooldown("device-1"))

	m.RecordSent("device-1")
	assert.False(t, m.CanResend("device-1"))
	assert.Equal(t, 60, m.ResendCooldown("device-1"))

	// Cooldown counts down in whole seconds, rounded up
	now = now.Add(30*time.Second + 500*time.Millisecond)
	assert.Equal(t, 30, m.ResendCooldown("device-1"))

	now = now.Add(29 * time.Second)
	assert.Equal(t, 1, m.ResendCooldown("device-1"))
	assert.False(t, m.CanResend("device-1"))

	now = now.Add(time.Second)
	assert.Zero(t, m.ResendCooldown("device-1"))
	assert.True(t, m.CanResend("device-1"))
}

func TestManager_RecordSentResetsWindow(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	m := NewManager(WithResendWindow(10*time.Second), WithClock(func() time.Time { return now }))

	m.RecordSent("device-1")
	now = now.Add(9 * time.Second)
	assert.Equal(t, 1, m.ResendCooldown("device-1"))

	// A resend restarts the full window
	now = now.Add(time.Second)
	m.RecordSent("device-1")
	assert.Equal(t, 10, m.ResendCooldown("device-1"))
}

func TestManager_SendFailureCountsAttempts(t *testing.T) {
	m := NewManager()

	m.RecordSendFailure("device-1", errors.New("gateway unavailable"))
	m.RecordSendFailure("device-1", errors.New("gateway unavailable"))

	s := m.State("device-1")
	assert.Equal(t, 2, s.SendAttempts)
	assert.Equal(t, "gateway unavailable", s.LastError)
	// A failed send never arms the cooldown
	assert.True(t, m.CanResend("device-1"))

	// A successful send clears the error but keeps the attempt count
	m.RecordSent("device-1")
	assert.Equal(t, 2, s.SendAttempts)
	assert.Empty(t, s.LastError)
	assert.True(t, s.Sent)
}

func TestManager_ValidationLifecycle(t *testing.T) {
	m := NewManager()

	m.RecordSent("auth-1")
	m.BeginValidation("auth-1")
	assert.Equal(t, PhaseValidating, m.State("auth-1").Phase)

	m.RecordValidation("auth-1", false, errors.New("invalid passcode"))
	assert.Equal(t, PhaseFailed, m.State("auth-1").Phase)
	assert.Equal(t, "invalid passcode", m.State("auth-1").LastError)

	m.BeginValidation("auth-1")
	m.RecordValidation("auth-1", true, nil)
	assert.Equal(t, PhaseSuccess, m.State("auth-1").Phase)
	assert.Empty(t, m.State("auth-1").LastError)
}

func TestManager_TargetsAreIndependent(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	m := NewManager(WithClock(func() time.Time { return now }))

	m.RecordSent("device-1")
	assert.False(t, m.CanResend("device-1"))
	assert.True(t, m.CanResend("device-2"))
}

func TestManager_Reset(t *testing.T) {
	m := NewManager()

	m.RecordSent("device-1")
	m.RecordSendFailure("device-1", errors.New("boom"))
	m.Reset()

	s := m.State("device-1")
	assert.Equal(t, PhaseIdle, s.Phase)
	assert.Zero(t, s.SendAttempts)
	assert.True(t, m.CanResend("device-1"))
}
