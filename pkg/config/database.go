package config

import "fmt"

// DatabaseConfig holds PostgreSQL database configuration
type DatabaseConfig struct {
	Host     string `env:"MFA_PG_HOST" env-default:"localhost"`
	Port     uint16 `env:"MFA_PG_PORT" env-default:"5432"`
	Database string `env:"MFA_PG_DATABASE" env-default:"mfa_db"`
	User     string `env:"MFA_PG_USER" env-default:"mfa"`
	Password string `env:"MFA_PG_PASSWORD" env-default:"pwd"`
	Schema   string `env:"MFA_PG_SCHEMA" env-default:"public"`
}

// ToDatabaseURL converts the config to a PostgreSQL connection URL
func (d DatabaseConfig) ToDatabaseURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable&search_path=%s,public",
		d.User, d.Password, d.Host, d.Port, d.Database, d.Schema)
}

// NewDatabaseConfigFromEnv creates a DatabaseConfig from environment variables
func NewDatabaseConfigFromEnv() DatabaseConfig {
	return DatabaseConfig{
		Host:     GetEnvOrDefault("MFA_PG_HOST", "localhost"),
		Port:     uint16(GetEnvInt("MFA_PG_PORT", 5432)),
		Database: GetEnvOrDefault("MFA_PG_DATABASE", "mfa_db"),
		User:     GetEnvOrDefault("MFA_PG_USER", "mfa"),
		Password: GetEnvOrDefault("MFA_PG_PASSWORD", "pwd"),
		Schema:   GetEnvOrDefault("MFA_PG_SCHEMA", "public"),
	}
}
