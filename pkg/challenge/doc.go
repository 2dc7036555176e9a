// Package challenge tracks per-target OTP challenge state: send cooldowns,
// send-retry counts and the sent/validating/success/failed lifecycle.
package challenge
