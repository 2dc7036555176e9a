// Package mfa holds the shared domain types for MFA enrollment: device
// types and statuses, credentials, registration payloads and the per-session
// challenge state.
package mfa
