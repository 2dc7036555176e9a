package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/google/uuid"
	"github.com/tendant/simple-mfa/pkg/errors"
	"github.com/tendant/simple-mfa/pkg/mfa"
	"github.com/tendant/simple-mfa/pkg/platform"
)

// Handle handles HTTP requests for the MFA platform API
type Handle struct {
	service *platform.Service
}

// NewHandle creates a new platform API handler
func NewHandle(service *platform.Service) *Handle {
	return &Handle{
		service: service,
	}
}

// ListDevicesResponse represents the response body for listing devices
type ListDevicesResponse struct {
	Devices []mfa.DeviceRecord `json:"devices"`
}

// OTPRequest represents a request body carrying a one-time passcode
type OTPRequest struct {
	OTP string `json:"otp"`
}

// InitAuthenticationRequest represents the request body for starting a
// device-authentication session
type InitAuthenticationRequest struct {
	Username string `json:"username"`
	DeviceID string `json:"device_id,omitempty"`
}

// SelectDeviceRequest represents the request body for resolving a device
// selection
type SelectDeviceRequest struct {
	DeviceID string `json:"device_id"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Status  string           `json:"status"`
	Code    errors.ErrorCode `json:"code"`
	Message string           `json:"message"`
}

// ListDevices handles listing all devices for a user
func (h *Handle) ListDevices(w http.ResponseWriter, r *http.Request) {
	environmentID := chi.URLParam(r, "environmentID")
	username := chi.URLParam(r, "username")

	devices, err := h.service.ListDevices(r.Context(), environmentID, username)
	if err != nil {
		slog.Error("Failed to list devices", "environmentID", environmentID, "username", username, "error", err)
		renderError(w, r, err)
		return
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, ListDevicesResponse{Devices: devices})
}

// RegisterDevice handles registering a new device
func (h *Handle) RegisterDevice(w http.ResponseWriter, r *http.Request) {
	environmentID := chi.URLParam(r, "environmentID")
	username := chi.URLParam(r, "username")

	var params mfa.RegistrationParams
	if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
		renderError(w, r, errors.Wrap(err, errors.ErrCodeInvalidInput, "invalid request body"))
		return
	}

	result, err := h.service.RegisterDevice(r.Context(), environmentID, username, params)
	if err != nil {
		slog.Error("Failed to register device", "environmentID", environmentID, "username", username, "error", err)
		renderError(w, r, err)
		return
	}

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, result)
}

// ActivateDevice handles validating an activation passcode
func (h *Handle) ActivateDevice(w http.ResponseWriter, r *http.Request) {
	environmentID := chi.URLParam(r, "environmentID")
	username := chi.URLParam(r, "username")
	deviceID, ok := parseUUID(w, r, "deviceID")
	if !ok {
		return
	}

	var req OTPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		renderError(w, r, errors.Wrap(err, errors.ErrCodeInvalidInput, "invalid request body"))
		return
	}

	result, err := h.service.ActivateDevice(r.Context(), environmentID, username, deviceID, req.OTP)
	if err != nil {
		renderError(w, r, err)
		return
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, result)
}

// SendOTP handles issuing a passcode for a device
func (h *Handle) SendOTP(w http.ResponseWriter, r *http.Request) {
	environmentID := chi.URLParam(r, "environmentID")
	username := chi.URLParam(r, "username")
	deviceID, ok := parseUUID(w, r, "deviceID")
	if !ok {
		return
	}

	if err := h.service.SendOTP(r.Context(), environmentID, username, deviceID); err != nil {
		renderError(w, r, err)
		return
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, map[string]string{"status": "sent"})
}

// ValidateOTP handles validating a passcode against a device
func (h *Handle) ValidateOTP(w http.ResponseWriter, r *http.Request) {
	environmentID := chi.URLParam(r, "environmentID")
	username := chi.URLParam(r, "username")
	deviceID, ok := parseUUID(w, r, "deviceID")
	if !ok {
		return
	}

	var req OTPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		renderError(w, r, errors.Wrap(err, errors.ErrCodeInvalidInput, "invalid request body"))
		return
	}

	result, err := h.service.ValidateOTP(r.Context(), environmentID, username, deviceID, req.OTP)
	if err != nil {
		renderError(w, r, err)
		return
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, result)
}

// InitAuthentication handles starting a device-authentication session
func (h *Handle) InitAuthentication(w http.ResponseWriter, r *http.Request) {
	environmentID := chi.URLParam(r, "environmentID")

	var req InitAuthenticationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		renderError(w, r, errors.Wrap(err, errors.ErrCodeInvalidInput, "invalid request body"))
		return
	}
	if req.Username == "" {
		renderError(w, r, errors.New(errors.ErrCodeMissingRequired, "username is required"))
		return
	}

	deviceID := uuid.Nil
	if req.DeviceID != "" {
		parsed, err := uuid.Parse(req.DeviceID)
		if err != nil {
			renderError(w, r, errors.Wrap(err, errors.ErrCodeInvalidFormat, "invalid device id"))
			return
		}
		deviceID = parsed
	}

	result, err := h.service.InitAuthentication(r.Context(), environmentID, req.Username, deviceID)
	if err != nil {
		slog.Error("Failed to init authentication", "environmentID", environmentID, "username", req.Username, "error", err)
		renderError(w, r, err)
		return
	}

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, result)
}

// SelectDevice handles resolving a SELECTION_REQUIRED session to one device
func (h *Handle) SelectDevice(w http.ResponseWriter, r *http.Request) {
	environmentID := chi.URLParam(r, "environmentID")
	authenticationID, ok := parseUUID(w, r, "authenticationID")
	if !ok {
		return
	}

	var req SelectDeviceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		renderError(w, r, errors.Wrap(err, errors.ErrCodeInvalidInput, "invalid request body"))
		return
	}
	deviceID, err := uuid.Parse(req.DeviceID)
	if err != nil {
		renderError(w, r, errors.Wrap(err, errors.ErrCodeInvalidFormat, "invalid device id"))
		return
	}

	result, err := h.service.SelectDevice(r.Context(), environmentID, authenticationID, deviceID)
	if err != nil {
		renderError(w, r, err)
		return
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, result)
}

// ValidateAuthentication handles validating a passcode against a session
func (h *Handle) ValidateAuthentication(w http.ResponseWriter, r *http.Request) {
	environmentID := chi.URLParam(r, "environmentID")
	authenticationID, ok := parseUUID(w, r, "authenticationID")
	if !ok {
		return
	}

	var req OTPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		renderError(w, r, errors.Wrap(err, errors.ErrCodeInvalidInput, "invalid request body"))
		return
	}

	result, err := h.service.ValidateAuthentication(r.Context(), environmentID, authenticationID, req.OTP)
	if err != nil {
		renderError(w, r, err)
		return
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, result)
}

// Handler returns a http.Handler for the platform API
func Handler(h *Handle) http.Handler {
	r := chi.NewRouter()

	r.Route("/environments/{environmentID}", func(r chi.Router) {
		r.Route("/users/{username}/devices", func(r chi.Router) {
			r.Get("/", h.ListDevices)
			r.Post("/", h.RegisterDevice)
			r.Post("/{deviceID}/activation", h.ActivateDevice)
			r.Post("/{deviceID}/otp", h.SendOTP)
			r.Post("/{deviceID}/otp/validate", h.ValidateOTP)
		})
		r.Route("/deviceAuthentications", func(r chi.Router) {
			r.Post("/", h.InitAuthentication)
			r.Post("/{authenticationID}/device", h.SelectDevice)
			r.Post("/{authenticationID}/otp", h.ValidateAuthentication)
		})
	})

	return r
}

func parseUUID(w http.ResponseWriter, r *http.Request, param string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, param))
	if err != nil {
		renderError(w, r, errors.Wrap(err, errors.ErrCodeInvalidFormat, "invalid "+param))
		return uuid.Nil, false
	}
	return id, true
}

// renderError renders the structured error payload clients decode.
func renderError(w http.ResponseWriter, r *http.Request, err error) {
	code := errors.GetCode(err)
	render.Status(r, errors.MapErrorCodeToHTTPStatus(code))
	render.JSON(w, r, ErrorResponse{
		Status:  "error",
		Code:    code,
		Message: errors.UserMessage(err),
	})
}
