// Package identity implements Tribune's account foundation: account
// creation and lookup, credential verification data, and the single-use
// password-reset token lifecycle.
//
// The stored reset token is the source of truth at consume time: issuing a
// new token overwrites the previous one, which implicitly invalidates it.
package identity
