package mfaclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/tendant/simple-mfa/pkg/errors"
	"github.com/tendant/simple-mfa/pkg/mfa"
)

// HTTPClient talks to a real (or simulated) MFA management API over HTTP.
type HTTPClient struct {
	baseURL string
	client  *http.Client
}

// HTTPClientOption configures an HTTPClient.
type HTTPClientOption func(*HTTPClient)

// WithHTTPClient overrides the underlying http.Client.
func WithHTTPClient(client *http.Client) HTTPClientOption {
	return func(c *HTTPClient) {
		c.client = client
	}
}

// NewHTTPClient creates a client rooted at baseURL.
func NewHTTPClient(baseURL string, opts ...HTTPClientOption) *HTTPClient {
	c := &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type errorResponse struct {
	Status  string           `json:"status"`
	Code    errors.ErrorCode `json:"code"`
	Message string           `json:"message"`
}

type deviceListResponse struct {
	Devices []mfa.DeviceRecord `json:"devices"`
}

type otpRequest struct {
	OTP string `json:"otp"`
}

type initAuthenticationRequest struct {
	Username string `json:"username"`
	DeviceID string `json:"device_id,omitempty"`
}

type selectDeviceRequest struct {
	DeviceID string `json:"device_id"`
}

func (c *HTTPClient) ListDevices(ctx context.Context, creds mfa.Credentials) ([]mfa.DeviceRecord, error) {
	var out deviceListResponse
	path := fmt.Sprintf("/environments/%s/users/%s/devices", creds.EnvironmentID, creds.Username)
	if err := c.do(ctx, http.MethodGet, path, creds.ActiveToken(), nil, &out); err != nil {
		return nil, err
	}
	return out.Devices, nil
}

func (c *HTTPClient) RegisterDevice(ctx context.Context, creds mfa.Credentials, params mfa.RegistrationParams) (mfa.RegistrationResult, error) {
	var out mfa.RegistrationResult
	path := fmt.Sprintf("/environments/%s/users/%s/devices", creds.EnvironmentID, creds.Username)
	if err := c.do(ctx, http.MethodPost, path, creds.ActiveToken(), params, &out); err != nil {
		return mfa.RegistrationResult{}, err
	}
	return out, nil
}

func (c *HTTPClient) ActivateDevice(ctx context.Context, creds mfa.Credentials, deviceID, activateURI, code string) error {
	path := activateURI
	if path == "" {
		path = fmt.Sprintf("/environments/%s/users/%s/devices/%s/activation", creds.EnvironmentID, creds.Username, deviceID)
	}
	return c.do(ctx, http.MethodPost, path, creds.ActiveToken(), otpRequest{OTP: code}, nil)
}

func (c *HTTPClient) SendOTP(ctx context.Context, creds mfa.Credentials, deviceID string) error {
	path := fmt.Sprintf("/environments/%s/users/%s/devices/%s/otp", creds.EnvironmentID, creds.Username, deviceID)
	return c.do(ctx, http.MethodPost, path, creds.ActiveToken(), nil, nil)
}

func (c *HTTPClient) ValidateOTP(ctx context.Context, creds mfa.Credentials, deviceID, code string) error {
	path := fmt.Sprintf("/environments/%s/users/%s/devices/%s/otp/validate", creds.EnvironmentID, creds.Username, deviceID)
	return c.do(ctx, http.MethodPost, path, creds.ActiveToken(), otpRequest{OTP: code}, nil)
}

func (c *HTTPClient) InitAuthentication(ctx context.Context, creds mfa.Credentials, deviceID string) (mfa.AuthenticationInit, error) {
	var out mfa.AuthenticationInit
	path := fmt.Sprintf("/environments/%s/deviceAuthentications", creds.EnvironmentID)
	req := initAuthenticationRequest{Username: creds.Username, DeviceID: deviceID}
	if err := c.do(ctx, http.MethodPost, path, creds.ActiveToken(), req, &out); err != nil {
		return mfa.AuthenticationInit{}, err
	}
	return out, nil
}

func (c *HTTPClient) SelectDevice(ctx context.Context, creds mfa.Credentials, authenticationID, deviceID string) (mfa.AuthenticationInit, error) {
	var out mfa.AuthenticationInit
	path := fmt.Sprintf("/environments/%s/deviceAuthentications/%s/device", creds.EnvironmentID, authenticationID)
	if err := c.do(ctx, http.MethodPost, path, creds.ActiveToken(), selectDeviceRequest{DeviceID: deviceID}, &out); err != nil {
		return mfa.AuthenticationInit{}, err
	}
	return out, nil
}

func (c *HTTPClient) ValidateAuthentication(ctx context.Context, creds mfa.Credentials, authenticationID, code string) error {
	path := fmt.Sprintf("/environments/%s/deviceAuthentications/%s/otp", creds.EnvironmentID, authenticationID)
	return c.do(ctx, http.MethodPost, path, creds.ActiveToken(), otpRequest{OTP: code}, nil)
}

// do performs one request and decodes either the expected payload or a
// structured error response.
func (c *HTTPClient) do(ctx context.Context, method, path, token string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return c.decodeError(resp)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

func (c *HTTPClient) decodeError(resp *http.Response) error {
	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return errors.Newf(errors.MapHTTPStatusToErrorCode(resp.StatusCode), "request failed with status %d", resp.StatusCode)
	}

	var payload errorResponse
	if err := json.Unmarshal(data, &payload); err == nil && payload.Code != "" {
		return errors.New(payload.Code, payload.Message)
	}

	slog.Debug("Unstructured error response", "status", resp.StatusCode, "body", string(data))
	return errors.Newf(errors.MapHTTPStatusToErrorCode(resp.StatusCode), "request failed with status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
}
