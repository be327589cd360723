// Package token issues and verifies the signed, expiring tokens used across
// Tribune: short-lived session tokens and single-use password-reset tokens.
//
// Tokens are PASETO v4.local, encrypted with one process-wide symmetric key.
// A purpose claim distinguishes session tokens from reset tokens so one can
// never be replayed as the other.
package token
