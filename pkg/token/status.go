package token

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/tendant/simple-mfa/pkg/mfa"
)

// StatusCode describes the result of inspecting a token.
type StatusCode string

const (
	StatusValid     StatusCode = "valid"
	StatusMissing   StatusCode = "missing"
	StatusExpired   StatusCode = "expired"
	StatusMalformed StatusCode = "malformed"
)

// Status is the precondition gate consulted before any mutating platform
// call. The core never fetches or refreshes tokens itself.
type Status struct {
	IsValid bool
	Message string
	Code    StatusCode
}

// Inspector reads token claims without verifying signatures. Signature
// verification belongs to the platform; the operator tool only needs to know
// whether the token it is about to present is missing or already expired.
type Inspector struct {
	parser *jwt.Parser
	now    func() time.Time
}

// InspectorOption configures an Inspector.
type InspectorOption func(*Inspector)

// WithClock overrides the time source, used by tests.
func WithClock(now func() time.Time) InspectorOption {
	return func(i *Inspector) {
		i.now = now
	}
}

// NewInspector creates a new token inspector.
func NewInspector(opts ...InspectorOption) *Inspector {
	i := &Inspector{
		parser: jwt.NewParser(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Inspect classifies a raw token string.
func (i *Inspector) Inspect(raw string) Status {
	if raw == "" {
		return Status{
			IsValid: false,
			Message: "token is missing",
			Code:    StatusMissing,
		}
	}

	claims := jwt.MapClaims{}
	_, _, err := i.parser.ParseUnverified(raw, claims)
	if err != nil {
		slog.Debug("Token is not a parseable JWT", "error", err)
		return Status{
			IsValid: false,
			Message: fmt.Sprintf("token is malformed: %v", err),
			Code:    StatusMalformed,
		}
	}

	exp, err := claims.GetExpirationTime()
	if err == nil && exp != nil && exp.Time.Before(i.now()) {
		return Status{
			IsValid: false,
			Message: fmt.Sprintf("token expired at %s", exp.Time.UTC().Format(time.RFC3339)),
			Code:    StatusExpired,
		}
	}

	return Status{
		IsValid: true,
		Message: "token is valid",
		Code:    StatusValid,
	}
}

// InspectCredentials picks the token matching the configured token type and
// classifies it.
func (i *Inspector) InspectCredentials(creds mfa.Credentials) Status {
	return i.Inspect(creds.ActiveToken())
}
