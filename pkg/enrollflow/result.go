package enrollflow

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/jinzhu/copier"
	"github.com/tendant/simple-mfa/pkg/mfa"
)

// SuccessView is the one canonical success record every controller's
// heterogeneous success payload is normalized into.
type SuccessView struct {
	DeviceID    string           `json:"device_id"`
	Type        mfa.DeviceType   `json:"type"`
	Status      mfa.DeviceStatus `json:"status"`
	Nickname    string           `json:"nickname,omitempty"`
	Phone       string           `json:"phone,omitempty"`
	Email       string           `json:"email,omitempty"`
	Message     string           `json:"message"`
	CompletedAt time.Time        `json:"completed_at"`
}

// Target returns the contact field relevant to the device type, for display.
func (v SuccessView) Target() string {
	switch {
	case v.Phone != "":
		return v.Phone
	case v.Email != "":
		return v.Email
	default:
		return v.Nickname
	}
}

// NormalizeResult converts a device record plus the session state into the
// canonical success view.
func NormalizeResult(deviceType mfa.DeviceType, record mfa.DeviceRecord, state *mfa.MfaState) SuccessView {
	view := SuccessView{
		DeviceID:    record.ID,
		Type:        deviceType,
		CompletedAt: time.Now().UTC(),
	}
	if err := copier.Copy(&view, &record); err != nil {
		slog.Warn("Failed to copy device record into success view", "error", err)
	}
	if view.DeviceID == "" && state != nil {
		view.DeviceID = state.DeviceID
	}
	if record.Type != "" {
		view.Type = record.Type
	}
	// The session state knows the post-validation status; the record may
	// still carry the status from registration time.
	if state != nil && state.DeviceStatus != "" {
		view.Status = state.DeviceStatus
	}
	if view.Status == "" {
		view.Status = mfa.DeviceStatusActive
	}

	view.Message = fmt.Sprintf("Device %s is ready to use", view.DeviceID)
	if state != nil && state.VerificationResult != nil && state.VerificationResult.Message != "" {
		view.Message = state.VerificationResult.Message
	}
	return view
}
