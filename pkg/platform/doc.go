// Package platform implements a simulated MFA management backend: device
// registration with per-user limits, passcode issuance and activation, and
// device-authentication sessions.
//
// Passcodes are stored as bcrypt hashes and delivered through the
// notification manager; TOTP devices validate against their stored secret
// instead. The repository interface has in-memory and PostgreSQL
// implementations, selected by NewDeviceRepository.
package platform
