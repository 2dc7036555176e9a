package config

// PlatformConfig holds configuration for the platform simulator server
type PlatformConfig struct {
	Host            string `env:"MFA_PLATFORM_HOST" env-default:"localhost"`
	Port            uint16 `env:"MFA_PLATFORM_PORT" env-default:"4000"`
	PersistenceType string `env:"MFA_PERSISTENCE_TYPE" env-default:"inmem"`
	JwtSecret       string `env:"MFA_JWT_SECRET" env-default:"very-secure-jwt-secret"`
	RequireAuth     bool   `env:"MFA_REQUIRE_AUTH" env-default:"false"`
	DeviceLimit     int    `env:"MFA_DEVICE_LIMIT" env-default:"5"`
	OTPExpiry       string `env:"MFA_OTP_EXPIRY" env-default:"5m"`
	ResendThrottle  string `env:"MFA_RESEND_THROTTLE" env-default:"30s"`
}

// FlowConfig holds configuration for the enrollment flow client
type FlowConfig struct {
	BaseURL       string `env:"MFA_BASE_URL" env-default:"http://localhost:4000"`
	EnvironmentID string `env:"MFA_ENVIRONMENT_ID" env-default:"demo"`
	Username      string `env:"MFA_USERNAME" env-default:"alice"`
	FlowType      string `env:"MFA_FLOW_TYPE" env-default:"admin"`
	WorkerToken   string `env:"MFA_WORKER_TOKEN"`
	UserToken     string `env:"MFA_USER_TOKEN"`
	DesiredStatus string `env:"MFA_DESIRED_STATUS" env-default:"ACTIVATION_REQUIRED"`
}
