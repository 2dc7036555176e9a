package platform

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/tendant/simple-mfa/pkg/mfa"
)

// Device is a stored MFA device as the platform sees it.
type Device struct {
	ID            uuid.UUID
	EnvironmentID string
	Username      string
	Type          mfa.DeviceType
	Status        mfa.DeviceStatus
	Nickname      string
	Phone         string
	Email         string
	TOTPSecret    string
	OTPHash       string
	OTPExpiresAt  time.Time
	OTPAttempts   int
	LastOTPSentAt time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Record converts the stored device to the wire-level device record.
func (d Device) Record() mfa.DeviceRecord {
	return mfa.DeviceRecord{
		ID:        d.ID.String(),
		Type:      d.Type,
		Status:    d.Status,
		Nickname:  d.Nickname,
		Phone:     d.Phone,
		Email:     d.Email,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
}

// AuthenticationSession is a runtime device-authentication session.
type AuthenticationSession struct {
	ID            uuid.UUID
	EnvironmentID string
	Username      string
	DeviceID      uuid.UUID
	Status        mfa.NextStep
	OTPHash       string
	OTPExpiresAt  time.Time
	OTPAttempts   int
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// DeviceRepository defines the storage operations the platform service needs.
type DeviceRepository interface {
	CreateDevice(ctx context.Context, device Device) (Device, error)
	GetDevice(ctx context.Context, environmentID string, id uuid.UUID) (Device, error)
	FindDevicesByUser(ctx context.Context, environmentID, username string) ([]Device, error)
	UpdateDevice(ctx context.Context, device Device) (Device, error)
	DeleteDevice(ctx context.Context, environmentID string, id uuid.UUID) error
	CountDevicesByUser(ctx context.Context, environmentID, username string) (int, error)

	CreateAuthentication(ctx context.Context, session AuthenticationSession) (AuthenticationSession, error)
	GetAuthentication(ctx context.Context, environmentID string, id uuid.UUID) (AuthenticationSession, error)
	UpdateAuthentication(ctx context.Context, session AuthenticationSession) (AuthenticationSession, error)
}
