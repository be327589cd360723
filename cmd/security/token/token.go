package token

import (
	"strings"
	"time"

	paseto "aidanwoods.dev/go-paseto"
)

// Purpose discriminates what a token may be used for. Session tokens
// authenticate requests; reset tokens authorize exactly one password change
// and are additionally tracked server-side.
type Purpose string

const (
	PurposeSession Purpose = "session"
	PurposeReset   Purpose = "reset"
)

// Claims is the verified payload of a token.
type Claims struct {
	SubjectID string
	Purpose   Purpose
	IssuedAt  time.Time
	ExpiresAt time.Time
	Issuer    string
}

// Issuer issues and verifies signed, expiring tokens.
type Issuer interface {
	Issue(subjectID string, purpose Purpose, ttl time.Duration, now time.Time) (token string, exp time.Time, err error)
	Verify(token string, now time.Time) (Claims, error)
}

// Config holds the process-wide signing secret and verification policy.
// The secret is loaded once at startup and never rotated at runtime.
type Config struct {
	// SecretKeyHex is a 32-byte symmetric key, hex encoded (64 chars).
	SecretKeyHex string
	Issuer       string
	ClockSkew    time.Duration
}

type pasetoV4LocalIssuer struct {
	issuer    string
	clockSkew time.Duration

	key paseto.V4SymmetricKey
}

// NewPasetoV4LocalIssuer builds an Issuer based on PASETO v4.local.
//
// Tokens are encrypted and authenticated with a single symmetric key, so any
// process replica holding the key can verify a token issued by any other
// replica without shared state.
func NewPasetoV4LocalIssuer(cfg Config) (Issuer, error) {
	key, err := paseto.V4SymmetricKeyFromHex(strings.TrimSpace(cfg.SecretKeyHex))
	if err != nil {
		return nil, ErrConfig
	}

	return &pasetoV4LocalIssuer{
		issuer:    cfg.Issuer,
		clockSkew: cfg.ClockSkew,
		key:       key,
	}, nil
}

func (m *pasetoV4LocalIssuer) Issue(subjectID string, purpose Purpose, ttl time.Duration, now time.Time) (string, time.Time, error) {
	if strings.TrimSpace(subjectID) == "" {
		return "", time.Time{}, ErrInvalidSubject
	}
	exp := now.Add(ttl)

	tok := paseto.NewToken()
	tok.SetIssuer(m.issuer)
	tok.SetSubject(subjectID)
	tok.SetIssuedAt(now)
	tok.SetNotBefore(now)
	tok.SetExpiration(exp)

	_ = tok.Set("purpose", string(purpose))

	return tok.V4Encrypt(m.key, nil), exp, nil
}

func (m *pasetoV4LocalIssuer) Verify(token string, now time.Time) (Claims, error) {
	// Validate slightly in the future to tolerate "nbf" clock differences.
	// This also makes expiration checks slightly stricter.
	validNow := now.Add(m.clockSkew)

	// Fresh parser per call to avoid accumulating rules across verifies.
	p := paseto.NewParser()
	p.AddRule(paseto.IssuedBy(m.issuer))
	p.AddRule(paseto.NotExpired())
	p.AddRule(paseto.ValidAt(validNow))

	parsed, err := p.ParseV4Local(m.key, token, nil)
	if err != nil {
		return Claims{}, ErrInvalidToken
	}

	sub, err := parsed.GetSubject()
	if err != nil || sub == "" {
		return Claims{}, ErrInvalidToken
	}
	purpose, err := parsed.GetString("purpose")
	if err != nil || purpose == "" {
		return Claims{}, ErrInvalidToken
	}

	iss, _ := parsed.GetIssuer()
	exp, _ := parsed.GetExpiration()
	iat, _ := parsed.GetIssuedAt()

	return Claims{
		SubjectID: sub,
		Purpose:   Purpose(purpose),
		IssuedAt:  iat,
		ExpiresAt: exp,
		Issuer:    iss,
	}, nil
}

// NewSecretKeyHex generates a fresh symmetric key, hex encoded.
// Intended for provisioning, not for runtime key rotation.
func NewSecretKeyHex() string {
	return paseto.NewV4SymmetricKey().ExportHex()
}
