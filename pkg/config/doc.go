// Package config holds shared configuration types loaded from environment
// variables with cleanenv.
package config
