package token

import "errors"

var (
	// ErrInvalidToken covers malformed tokens, bad signatures and elapsed expiry.
	// Callers must not distinguish these cases to avoid token probing.
	ErrInvalidToken = errors.New("invalid token")

	// ErrInvalidSubject is returned when issuing for an empty subject.
	ErrInvalidSubject = errors.New("invalid token subject")

	// ErrConfig indicates an unusable signing key or configuration.
	ErrConfig = errors.New("invalid token config")
)
