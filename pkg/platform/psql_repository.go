package platform

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/tendant/simple-mfa/pkg/errors"
)

// DBTX is satisfied by both a pgx pool and a transaction.
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// PostgresDeviceRepository implements DeviceRepository using PostgreSQL.
//
// Schema:
//
//	CREATE TABLE mfa_device (
//	    id UUID PRIMARY KEY,
//	    environment_id TEXT NOT NULL,
//	    username TEXT NOT NULL,
//	    device_type TEXT NOT NULL,
//	    status TEXT NOT NULL,
//	    nickname TEXT NOT NULL DEFAULT '',
//	    phone TEXT NOT NULL DEFAULT '',
//	    email TEXT NOT NULL DEFAULT '',
//	    totp_secret TEXT NOT NULL DEFAULT '',
//	    otp_hash TEXT NOT NULL DEFAULT '',
//	    otp_expires_at TIMESTAMPTZ,
//	    otp_attempts INT NOT NULL DEFAULT 0,
//	    last_otp_sent_at TIMESTAMPTZ,
//	    created_at TIMESTAMPTZ NOT NULL,
//	    updated_at TIMESTAMPTZ NOT NULL
//	);
//
//	CREATE TABLE mfa_authentication (
//	    id UUID PRIMARY KEY,
//	    environment_id TEXT NOT NULL,
//	    username TEXT NOT NULL,
//	    device_id UUID,
//	    status TEXT NOT NULL,
//	    otp_hash TEXT NOT NULL DEFAULT '',
//	    otp_expires_at TIMESTAMPTZ,
//	    otp_attempts INT NOT NULL DEFAULT 0,
//	    created_at TIMESTAMPTZ NOT NULL,
//	    updated_at TIMESTAMPTZ NOT NULL
//	);
type PostgresDeviceRepository struct {
	db DBTX
}

// NewPostgresDeviceRepository creates a new PostgreSQL repository.
func NewPostgresDeviceRepository(db DBTX) *PostgresDeviceRepository {
	return &PostgresDeviceRepository{db: db}
}

// WithTx returns a repository bound to the given transaction.
func (r *PostgresDeviceRepository) WithTx(tx DBTX) *PostgresDeviceRepository {
	return &PostgresDeviceRepository{db: tx}
}

const deviceColumns = `id, environment_id, username, device_type, status, nickname, phone, email,
	totp_secret, otp_hash, otp_expires_at, otp_attempts, last_otp_sent_at, created_at, updated_at`

func scanDevice(row pgx.Row) (Device, error) {
	var d Device
	var otpExpires, lastSent *time.Time
	err := row.Scan(&d.ID, &d.EnvironmentID, &d.Username, &d.Type, &d.Status, &d.Nickname,
		&d.Phone, &d.Email, &d.TOTPSecret, &d.OTPHash, &otpExpires, &d.OTPAttempts,
		&lastSent, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return Device{}, err
	}
	if otpExpires != nil {
		d.OTPExpiresAt = *otpExpires
	}
	if lastSent != nil {
		d.LastOTPSentAt = *lastSent
	}
	return d, nil
}

func (r *PostgresDeviceRepository) CreateDevice(ctx context.Context, device Device) (Device, error) {
	if device.ID == uuid.Nil {
		device.ID = uuid.New()
	}
	now := time.Now().UTC()
	if device.CreatedAt.IsZero() {
		device.CreatedAt = now
	}
	device.UpdatedAt = now

	query := `
		INSERT INTO mfa_device (` + deviceColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NULLIF($11, '0001-01-01T00:00:00Z'::timestamptz), $12, NULLIF($13, '0001-01-01T00:00:00Z'::timestamptz), $14, $15)
		RETURNING ` + deviceColumns
	row := r.db.QueryRow(ctx, query,
		device.ID, device.EnvironmentID, device.Username, device.Type, device.Status,
		device.Nickname, device.Phone, device.Email, device.TOTPSecret, device.OTPHash,
		device.OTPExpiresAt, device.OTPAttempts, device.LastOTPSentAt,
		device.CreatedAt, device.UpdatedAt)

	created, err := scanDevice(row)
	if err != nil {
		return Device{}, fmt.Errorf("failed to create device: %w", err)
	}
	return created, nil
}

func (r *PostgresDeviceRepository) GetDevice(ctx context.Context, environmentID string, id uuid.UUID) (Device, error) {
	query := `SELECT ` + deviceColumns + ` FROM mfa_device WHERE id = $1 AND environment_id = $2`
	device, err := scanDevice(r.db.QueryRow(ctx, query, id, environmentID))
	if err != nil {
		if err == pgx.ErrNoRows {
			return Device{}, errors.Newf(errors.ErrCodeDeviceNotFound, "device not found: %s", id)
		}
		return Device{}, fmt.Errorf("failed to get device: %w", err)
	}
	return device, nil
}

func (r *PostgresDeviceRepository) FindDevicesByUser(ctx context.Context, environmentID, username string) ([]Device, error) {
	query := `SELECT ` + deviceColumns + ` FROM mfa_device
		WHERE environment_id = $1 AND username = $2 ORDER BY created_at`
	rows, err := r.db.Query(ctx, query, environmentID, username)
	if err != nil {
		return nil, fmt.Errorf("failed to find devices: %w", err)
	}
	defer rows.Close()

	devices := []Device{}
	for rows.Next() {
		device, err := scanDevice(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan device: %w", err)
		}
		devices = append(devices, device)
	}
	return devices, rows.Err()
}

func (r *PostgresDeviceRepository) UpdateDevice(ctx context.Context, device Device) (Device, error) {
	query := `
		UPDATE mfa_device
		SET status = $2, nickname = $3, totp_secret = $4, otp_hash = $5,
			otp_expires_at = NULLIF($6, '0001-01-01T00:00:00Z'::timestamptz),
			otp_attempts = $7,
			last_otp_sent_at = NULLIF($8, '0001-01-01T00:00:00Z'::timestamptz),
			updated_at = $9
		WHERE id = $1
		RETURNING ` + deviceColumns
	row := r.db.QueryRow(ctx, query,
		device.ID, device.Status, device.Nickname, device.TOTPSecret, device.OTPHash,
		device.OTPExpiresAt, device.OTPAttempts, device.LastOTPSentAt, time.Now().UTC())

	updated, err := scanDevice(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return Device{}, errors.Newf(errors.ErrCodeDeviceNotFound, "device not found: %s", device.ID)
		}
		return Device{}, fmt.Errorf("failed to update device: %w", err)
	}
	return updated, nil
}

func (r *PostgresDeviceRepository) DeleteDevice(ctx context.Context, environmentID string, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM mfa_device WHERE id = $1 AND environment_id = $2`, id, environmentID)
	if err != nil {
		return fmt.Errorf("failed to delete device: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return errors.Newf(errors.ErrCodeDeviceNotFound, "device not found: %s", id)
	}
	return nil
}

func (r *PostgresDeviceRepository) CountDevicesByUser(ctx context.Context, environmentID, username string) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM mfa_device WHERE environment_id = $1 AND username = $2`
	if err := r.db.QueryRow(ctx, query, environmentID, username).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count devices: %w", err)
	}
	return count, nil
}

const sessionColumns = `id, environment_id, username, device_id, status, otp_hash,
	otp_expires_at, otp_attempts, created_at, updated_at`

func scanSession(row pgx.Row) (AuthenticationSession, error) {
	var s AuthenticationSession
	var deviceID *uuid.UUID
	var otpExpires *time.Time
	err := row.Scan(&s.ID, &s.EnvironmentID, &s.Username, &deviceID, &s.Status,
		&s.OTPHash, &otpExpires, &s.OTPAttempts, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return AuthenticationSession{}, err
	}
	if deviceID != nil {
		s.DeviceID = *deviceID
	}
	if otpExpires != nil {
		s.OTPExpiresAt = *otpExpires
	}
	return s, nil
}

func (r *PostgresDeviceRepository) CreateAuthentication(ctx context.Context, session AuthenticationSession) (AuthenticationSession, error) {
	if session.ID == uuid.Nil {
		session.ID = uuid.New()
	}
	now := time.Now().UTC()
	session.CreatedAt = now
	session.UpdatedAt = now

	query := `
		INSERT INTO mfa_authentication (` + sessionColumns + `)
		VALUES ($1, $2, $3, NULLIF($4, '00000000-0000-0000-0000-000000000000'::uuid), $5, $6,
			NULLIF($7, '0001-01-01T00:00:00Z'::timestamptz), $8, $9, $10)
		RETURNING ` + sessionColumns
	row := r.db.QueryRow(ctx, query,
		session.ID, session.EnvironmentID, session.Username, session.DeviceID, session.Status,
		session.OTPHash, session.OTPExpiresAt, session.OTPAttempts, session.CreatedAt, session.UpdatedAt)

	created, err := scanSession(row)
	if err != nil {
		return AuthenticationSession{}, fmt.Errorf("failed to create authentication session: %w", err)
	}
	return created, nil
}

func (r *PostgresDeviceRepository) GetAuthentication(ctx context.Context, environmentID string, id uuid.UUID) (AuthenticationSession, error) {
	query := `SELECT ` + sessionColumns + ` FROM mfa_authentication WHERE id = $1 AND environment_id = $2`
	session, err := scanSession(r.db.QueryRow(ctx, query, id, environmentID))
	if err != nil {
		if err == pgx.ErrNoRows {
			return AuthenticationSession{}, errors.Newf(errors.ErrCodeNotFound, "authentication session not found: %s", id)
		}
		return AuthenticationSession{}, fmt.Errorf("failed to get authentication session: %w", err)
	}
	return session, nil
}

func (r *PostgresDeviceRepository) UpdateAuthentication(ctx context.Context, session AuthenticationSession) (AuthenticationSession, error) {
	query := `
		UPDATE mfa_authentication
		SET device_id = NULLIF($2, '00000000-0000-0000-0000-000000000000'::uuid),
			status = $3, otp_hash = $4,
			otp_expires_at = NULLIF($5, '0001-01-01T00:00:00Z'::timestamptz),
			otp_attempts = $6, updated_at = $7
		WHERE id = $1
		RETURNING ` + sessionColumns
	row := r.db.QueryRow(ctx, query,
		session.ID, session.DeviceID, session.Status, session.OTPHash,
		session.OTPExpiresAt, session.OTPAttempts, time.Now().UTC())

	updated, err := scanSession(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return AuthenticationSession{}, errors.Newf(errors.ErrCodeNotFound, "authentication session not found: %s", session.ID)
		}
		return AuthenticationSession{}, fmt.Errorf("failed to update authentication session: %w", err)
	}
	return updated, nil
}
