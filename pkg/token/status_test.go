package token

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-mfa/pkg/mfa"
)

func signedToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return raw
}

func TestInspector_MissingToken(t *testing.T) {
	inspector := NewInspector()

	status := inspector.Inspect("")
	assert.False(t, status.IsValid)
	assert.Equal(t, StatusMissing, status.Code)
	assert.Contains(t, status.Message, "missing")
}

func TestInspector_MalformedToken(t *testing.T) {
	inspector := NewInspector()

	status := inspector.Inspect("not-a-jwt")
	assert.False(t, status.IsValid)
	assert.Equal(t, StatusMalformed, status.Code)
}

func TestInspector_ExpiredToken(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	inspector := NewInspector(WithClock(func() time.Time { return now }))

	raw := signedToken(t, jwt.MapClaims{
		"sub": "worker",
		"exp": now.Add(-time.Minute).Unix(),
	})

	status := inspector.Inspect(raw)
	assert.False(t, status.IsValid)
	assert.Equal(t, StatusExpired, status.Code)
	assert.Contains(t, status.Message, "expired")
}

func TestInspector_ValidToken(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	inspector := NewInspector(WithClock(func() time.Time { return now }))

	raw := signedToken(t, jwt.MapClaims{
		"sub": "worker",
		"exp": now.Add(time.Hour).Unix(),
	})

	status := inspector.Inspect(raw)
	assert.True(t, status.IsValid)
	assert.Equal(t, StatusValid, status.Code)
}

func TestInspector_TokenWithoutExpiry(t *testing.T) {
	inspector := NewInspector()

	// No exp claim: nothing to check, signature validation is the
	// platform's job
	raw := signedToken(t, jwt.MapClaims{"sub": "worker"})

	status := inspector.Inspect(raw)
	assert.True(t, status.IsValid)
}

func TestInspector_InspectCredentials(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	inspector := NewInspector(WithClock(func() time.Time { return now }))

	valid := signedToken(t, jwt.MapClaims{"exp": now.Add(time.Hour).Unix()})
	expired := signedToken(t, jwt.MapClaims{"exp": now.Add(-time.Hour).Unix()})

	// Service flow reads the worker token
	creds := mfa.Credentials{
		TokenType:   mfa.TokenTypeService,
		WorkerToken: valid,
		UserToken:   expired,
	}
	assert.True(t, inspector.InspectCredentials(creds).IsValid)

	// User flow reads the user token
	creds.TokenType = mfa.TokenTypeUser
	status := inspector.InspectCredentials(creds)
	assert.False(t, status.IsValid)
	assert.Equal(t, StatusExpired, status.Code)
}
