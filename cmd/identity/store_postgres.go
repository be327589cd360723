package identity

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"tribune/cmd/security/password"
)

// DB is the narrow query surface the store needs. It is satisfied by
// *pgxpool.Pool and by pgxmock pools in tests.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// PostgresStore implements account persistence over PostgreSQL.
//
// Design notes:
// - The pool is owned by the caller; this store must NOT close it.
// - All mutation is a single statement or a begin/commit-wrapped sequence,
//   relying on Postgres for atomicity (last commit wins on concurrent reset
//   requests).
// - Errors are mapped to identity sentinel kinds where appropriate.
type PostgresStore struct {
	db DB
	pw password.Config
}

// NewPostgresStore constructs a PostgresStore.
func NewPostgresStore(db DB, pw password.Config) (*PostgresStore, error) {
	if db == nil {
		return nil, OpError{Op: "identity.NewPostgresStore", Kind: ErrInvalidInput, Msg: "nil db"}
	}
	return &PostgresStore{db: db, pw: pw}, nil
}

const accountColumns = `id, username, email, password_hash, is_admin, reset_token, reset_token_expires_at, created_at`

// CreateAccount creates a new account with a hashed password.
// Duplicate username/email surface as ConflictError with the logical field.
func (s *PostgresStore) CreateAccount(ctx context.Context, in CreateAccountInput) (Account, error) {
	const op = "identity.CreateAccount"

	if err := ctx.Err(); err != nil {
		return Account{}, err
	}

	username := strings.TrimSpace(in.Username)
	email := strings.TrimSpace(in.Email)
	if username == "" {
		return Account{}, OpError{Op: op, Kind: ErrInvalidInput, Msg: "username is required"}
	}
	if email == "" || !strings.Contains(email, "@") {
		return Account{}, OpError{Op: op, Kind: ErrInvalidInput, Msg: "valid email is required"}
	}
	if strings.TrimSpace(in.Password) == "" {
		return Account{}, OpError{Op: op, Kind: ErrInvalidInput, Msg: "password is required"}
	}

	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	hash, err := s.pw.Hash(in.Password)
	if err != nil {
		return Account{}, OpError{Op: op, Kind: ErrInvalidInput, Msg: err.Error()}
	}

	id, err := NewULID(now)
	if err != nil {
		return Account{}, err
	}

	_, err = s.db.Exec(ctx,
		`INSERT INTO accounts (
		     id, username, username_norm, email, email_norm, password_hash, is_admin, created_at
		   ) VALUES ($1, $2, $3, $4, $5, $6, FALSE, $7)`,
		id, username, NormalizeUsername(username), email, NormalizeEmail(email), hash, now,
	)
	if err != nil {
		if field, ok := classifyUniqueViolation(err); ok {
			return Account{}, ConflictError{Op: op, Field: field}
		}
		return Account{}, err
	}

	return Account{
		ID:           id,
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		CreatedAt:    now,
	}, nil
}

// GetAccountByID returns the account with the given id.
func (s *PostgresStore) GetAccountByID(ctx context.Context, id string) (Account, error) {
	const op = "identity.GetAccountByID"

	if strings.TrimSpace(id) == "" {
		return Account{}, OpError{Op: op, Kind: ErrInvalidInput, Msg: "empty id"}
	}

	row := s.db.QueryRow(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id)
	return scanAccount(op, row)
}

// GetAccountByUsername performs a case-insensitive username lookup.
func (s *PostgresStore) GetAccountByUsername(ctx context.Context, username string) (Account, error) {
	const op = "identity.GetAccountByUsername"

	norm := NormalizeUsername(username)
	if norm == "" {
		return Account{}, OpError{Op: op, Kind: ErrInvalidInput, Msg: "empty username"}
	}

	row := s.db.QueryRow(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE username_norm = $1`, norm)
	return scanAccount(op, row)
}

// GetAccountByEmail performs a case-insensitive email lookup.
func (s *PostgresStore) GetAccountByEmail(ctx context.Context, email string) (Account, error) {
	const op = "identity.GetAccountByEmail"

	norm := NormalizeEmail(email)
	if norm == "" {
		return Account{}, OpError{Op: op, Kind: ErrInvalidInput, Msg: "empty email"}
	}

	row := s.db.QueryRow(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE email_norm = $1`, norm)
	return scanAccount(op, row)
}

// SetResetToken stores a reset token and its absolute expiry on the account,
// atomically replacing any prior outstanding token. The overwritten token is
// thereby invalidated: consume looks tokens up by stored value only.
func (s *PostgresStore) SetResetToken(ctx context.Context, accountID, resetToken string, expiresAt time.Time) error {
	const op = "identity.SetResetToken"

	if strings.TrimSpace(accountID) == "" || strings.TrimSpace(resetToken) == "" {
		return OpError{Op: op, Kind: ErrInvalidInput, Msg: "account id and token are required"}
	}
	if expiresAt.IsZero() {
		return OpError{Op: op, Kind: ErrInvalidInput, Msg: "expiry is required"}
	}

	tag, err := s.db.Exec(ctx,
		`UPDATE accounts
		    SET reset_token = $2, reset_token_expires_at = $3
		  WHERE id = $1`,
		accountID, resetToken, expiresAt,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return NotFoundError{Op: op, Resource: "account"}
	}
	return nil
}

// ConsumeResetToken validates a reset token by its stored value and, on
// success, sets the new password hash and clears the token and expiry in the
// same transaction (one-time use).
//
// The expiry check runs against the *stored* timestamp, not the token's own
// embedded expiry: the stored copy is authoritative, so a token superseded by
// a newer request can never be replayed.
func (s *PostgresStore) ConsumeResetToken(ctx context.Context, resetToken, newPassword string, now time.Time) error {
	const op = "identity.ConsumeResetToken"

	if strings.TrimSpace(resetToken) == "" {
		return OpError{Op: op, Kind: ErrTokenInvalid, Msg: "empty token"}
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}

	// Hash before opening the transaction; argon2id is slow and must not
	// hold a row lock.
	hash, err := s.pw.Hash(newPassword)
	if err != nil {
		return OpError{Op: op, Kind: ErrInvalidInput, Msg: err.Error()}
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var accountID string
	var expiry *time.Time
	err = tx.QueryRow(ctx,
		`SELECT id, reset_token_expires_at
		   FROM accounts
		  WHERE reset_token = $1
		  FOR UPDATE`,
		resetToken,
	).Scan(&accountID, &expiry)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return OpError{Op: op, Kind: ErrTokenInvalid, Msg: "unknown or superseded token"}
		}
		return err
	}

	if expiry == nil || expiry.Before(now) {
		return OpError{Op: op, Kind: ErrTokenExpired}
	}

	_, err = tx.Exec(ctx,
		`UPDATE accounts
		    SET password_hash = $2, reset_token = NULL, reset_token_expires_at = NULL
		  WHERE id = $1`,
		accountID, hash,
	)
	if err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func scanAccount(op string, row pgx.Row) (Account, error) {
	var a Account
	err := row.Scan(
		&a.ID,
		&a.Username,
		&a.Email,
		&a.PasswordHash,
		&a.IsAdmin,
		&a.ResetToken,
		&a.ResetTokenExpiry,
		&a.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, NotFoundError{Op: op, Resource: "account"}
		}
		return Account{}, err
	}
	return a, nil
}

func classifyUniqueViolation(err error) (field string, ok bool) {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return "", false
	}
	// 23505 is unique_violation.
	if pgErr.Code != "23505" {
		return "", false
	}
	switch pgErr.ConstraintName {
	case "uq_accounts_username_norm":
		return "username", true
	case "uq_accounts_email_norm":
		return "email", true
	case "uq_accounts_reset_token":
		return "reset_token", true
	default:
		return "unknown", true
	}
}
