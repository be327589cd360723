package identity

import (
	"time"

	"tribune/cmd/identity/ids"
)

// Account is Tribune's security principal.
type Account struct {
	ID           string
	Username     string
	Email        string
	PasswordHash string
	IsAdmin      bool

	// Reset token lifecycle. Both fields are set together on a reset request
	// and cleared together on a successful reset; the expiry stored here is
	// authoritative at consume time.
	ResetToken       *string
	ResetTokenExpiry *time.Time

	CreatedAt time.Time
}

// HasOutstandingReset reports whether a reset token is currently stored.
func (a Account) HasOutstandingReset() bool {
	return a.ResetToken != nil && a.ResetTokenExpiry != nil
}

// CreateAccountInput describes a registration request.
type CreateAccountInput struct {
	Username string
	Email    string
	Password string
	Now      time.Time
}

// NewULID returns a new ULID (26-char string).
func NewULID(now time.Time) (string, error) {
	return ids.NewULID(now)
}
