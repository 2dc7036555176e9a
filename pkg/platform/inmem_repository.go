package platform

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tendant/simple-mfa/pkg/errors"
)

// InMemDeviceRepository implements DeviceRepository using in-memory maps.
type InMemDeviceRepository struct {
	mu       sync.Mutex
	devices  map[uuid.UUID]Device
	sessions map[uuid.UUID]AuthenticationSession
}

// NewInMemDeviceRepository creates a new in-memory repository.
func NewInMemDeviceRepository() *InMemDeviceRepository {
	return &InMemDeviceRepository{
		devices:  make(map[uuid.UUID]Device),
		sessions: make(map[uuid.UUID]AuthenticationSession),
	}
}

func (r *InMemDeviceRepository) CreateDevice(ctx context.Context, device Device) (Device, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if device.ID == uuid.Nil {
		device.ID = uuid.New()
	}
	now := time.Now().UTC()
	if device.CreatedAt.IsZero() {
		device.CreatedAt = now
	}
	device.UpdatedAt = now
	r.devices[device.ID] = device
	return device, nil
}

func (r *InMemDeviceRepository) GetDevice(ctx context.Context, environmentID string, id uuid.UUID) (Device, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	device, ok := r.devices[id]
	if !ok || device.EnvironmentID != environmentID {
		return Device{}, errors.Newf(errors.ErrCodeDeviceNotFound, "device not found: %s", id)
	}
	return device, nil
}

func (r *InMemDeviceRepository) FindDevicesByUser(ctx context.Context, environmentID, username string) ([]Device, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := []Device{}
	for _, device := range r.devices {
		if device.EnvironmentID == environmentID && device.Username == username {
			out = append(out, device)
		}
	}
	return out, nil
}

func (r *InMemDeviceRepository) UpdateDevice(ctx context.Context, device Device) (Device, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.devices[device.ID]; !ok {
		return Device{}, errors.Newf(errors.ErrCodeDeviceNotFound, "device not found: %s", device.ID)
	}
	device.UpdatedAt = time.Now().UTC()
	r.devices[device.ID] = device
	return device, nil
}

func (r *InMemDeviceRepository) DeleteDevice(ctx context.Context, environmentID string, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	device, ok := r.devices[id]
	if !ok || device.EnvironmentID != environmentID {
		return errors.Newf(errors.ErrCodeDeviceNotFound, "device not found: %s", id)
	}
	delete(r.devices, id)
	return nil
}

func (r *InMemDeviceRepository) CountDevicesByUser(ctx context.Context, environmentID, username string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	count := 0
	for _, device := range r.devices {
		if device.EnvironmentID == environmentID && device.Username == username {
			count++
		}
	}
	return count, nil
}

func (r *InMemDeviceRepository) CreateAuthentication(ctx context.Context, session AuthenticationSession) (AuthenticationSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if session.ID == uuid.Nil {
		session.ID = uuid.New()
	}
	now := time.Now().UTC()
	session.CreatedAt = now
	session.UpdatedAt = now
	r.sessions[session.ID] = session
	return session, nil
}

func (r *InMemDeviceRepository) GetAuthentication(ctx context.Context, environmentID string, id uuid.UUID) (AuthenticationSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	session, ok := r.sessions[id]
	if !ok || session.EnvironmentID != environmentID {
		return AuthenticationSession{}, errors.Newf(errors.ErrCodeNotFound, "authentication session not found: %s", id)
	}
	return session, nil
}

func (r *InMemDeviceRepository) UpdateAuthentication(ctx context.Context, session AuthenticationSession) (AuthenticationSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[session.ID]; !ok {
		return AuthenticationSession{}, errors.Newf(errors.ErrCodeNotFound, "authentication session not found: %s", session.ID)
	}
	session.UpdatedAt = time.Now().UTC()
	r.sessions[session.ID] = session
	return session, nil
}
