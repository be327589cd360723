package identity

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"

	"tribune/cmd/security/password"
)

func newMockStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()

	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	t.Cleanup(mock.Close)

	cfg := password.DefaultConfig()
	// Keep hashing fast in unit tests.
	cfg.Params.MemoryKiB = 8 * 1024
	cfg.Params.Iterations = 1

	s, err := NewPostgresStore(mock, cfg)
	if err != nil {
		t.Fatalf("NewPostgresStore: %v", err)
	}
	return s, mock
}

func uniqueViolation(constraint string) error {
	return &pgconn.PgError{Code: "23505", ConstraintName: constraint}
}

func TestCreateAccount_OK(t *testing.T) {
	t.Parallel()

	s, mock := newMockStore(t)
	now := time.Now().UTC()

	mock.ExpectExec("INSERT INTO accounts").
		WithArgs(pgxmock.AnyArg(), "Asha", "asha", "Asha@Example.com", "asha@example.com", pgxmock.AnyArg(), now).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	acct, err := s.CreateAccount(context.Background(), CreateAccountInput{
		Username: "Asha",
		Email:    "Asha@Example.com",
		Password: "a strong password",
		Now:      now,
	})
	if err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}
	if acct.ID == "" || len(acct.ID) != 26 {
		t.Fatalf("expected ULID id, got %q", acct.ID)
	}
	if acct.PasswordHash == "" || acct.PasswordHash == "a strong password" {
		t.Fatalf("password hash missing or plaintext")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestCreateAccount_DuplicateEmail(t *testing.T) {
	t.Parallel()

	s, mock := newMockStore(t)

	mock.ExpectExec("INSERT INTO accounts").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(uniqueViolation("uq_accounts_email_norm"))

	_, err := s.CreateAccount(context.Background(), CreateAccountInput{
		Username: "asha",
		Email:    "asha@example.com",
		Password: "a strong password",
	})

	var ce ConflictError
	if !errors.As(err, &ce) {
		t.Fatalf("expected ConflictError, got %v", err)
	}
	if ce.Field != "email" {
		t.Fatalf("expected email conflict, got %q", ce.Field)
	}
}

func TestCreateAccount_DuplicateUsername(t *testing.T) {
	t.Parallel()

	s, mock := newMockStore(t)

	mock.ExpectExec("INSERT INTO accounts").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(uniqueViolation("uq_accounts_username_norm"))

	_, err := s.CreateAccount(context.Background(), CreateAccountInput{
		Username: "asha",
		Email:    "asha@example.com",
		Password: "a strong password",
	})

	var ce ConflictError
	if !errors.As(err, &ce) || ce.Field != "username" {
		t.Fatalf("expected username ConflictError, got %v", err)
	}
}

func TestCreateAccount_InvalidInput(t *testing.T) {
	t.Parallel()

	s, _ := newMockStore(t)

	cases := []CreateAccountInput{
		{Username: "", Email: "a@b.c", Password: "a strong password"},
		{Username: "asha", Email: "", Password: "a strong password"},
		{Username: "asha", Email: "not-an-email", Password: "a strong password"},
		{Username: "asha", Email: "a@b.c", Password: ""},
	}
	for _, in := range cases {
		if _, err := s.CreateAccount(context.Background(), in); !IsInvalidInput(err) {
			t.Fatalf("expected invalid input for %+v, got %v", in, err)
		}
	}
}

func TestGetAccountByEmail_NotFound(t *testing.T) {
	t.Parallel()

	s, mock := newMockStore(t)

	mock.ExpectQuery("SELECT .+ FROM accounts WHERE email_norm").
		WithArgs("missing@example.com").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetAccountByEmail(context.Background(), "Missing@Example.com")
	if !IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestGetAccountByUsername_OK(t *testing.T) {
	t.Parallel()

	s, mock := newMockStore(t)
	now := time.Now().UTC()

	rows := pgxmock.NewRows([]string{
		"id", "username", "email", "password_hash", "is_admin",
		"reset_token", "reset_token_expires_at", "created_at",
	}).AddRow("01J0000000000000000000000A", "Asha", "asha@example.com", "$argon2id$...", false, nil, nil, now)

	mock.ExpectQuery("SELECT .+ FROM accounts WHERE username_norm").
		WithArgs("asha").
		WillReturnRows(rows)

	acct, err := s.GetAccountByUsername(context.Background(), " Asha ")
	if err != nil {
		t.Fatalf("GetAccountByUsername: %v", err)
	}
	if acct.Username != "Asha" || acct.HasOutstandingReset() {
		t.Fatalf("unexpected account: %+v", acct)
	}
}

func TestSetResetToken_OK(t *testing.T) {
	t.Parallel()

	s, mock := newMockStore(t)
	exp := time.Now().UTC().Add(30 * time.Minute)

	mock.ExpectExec("UPDATE accounts").
		WithArgs("acct-1", "token-abc", exp).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	if err := s.SetResetToken(context.Background(), "acct-1", "token-abc", exp); err != nil {
		t.Fatalf("SetResetToken: %v", err)
	}
}

func TestSetResetToken_MissingAccount(t *testing.T) {
	t.Parallel()

	s, mock := newMockStore(t)
	exp := time.Now().UTC().Add(30 * time.Minute)

	mock.ExpectExec("UPDATE accounts").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := s.SetResetToken(context.Background(), "ghost", "token-abc", exp)
	if !IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestConsumeResetToken_UnknownToken(t *testing.T) {
	t.Parallel()

	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id, reset_token_expires_at").
		WithArgs("nope").
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectRollback()

	err := s.ConsumeResetToken(context.Background(), "nope", "new strong password", time.Now().UTC())
	if !IsTokenInvalid(err) {
		t.Fatalf("expected token invalid, got %v", err)
	}
}

func TestConsumeResetToken_Expired(t *testing.T) {
	t.Parallel()

	s, mock := newMockStore(t)
	now := time.Now().UTC()
	past := now.Add(-time.Minute)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id, reset_token_expires_at").
		WithArgs("stale-token").
		WillReturnRows(pgxmock.NewRows([]string{"id", "reset_token_expires_at"}).
			AddRow("acct-1", &past))
	mock.ExpectRollback()

	err := s.ConsumeResetToken(context.Background(), "stale-token", "new strong password", now)
	if !IsTokenExpired(err) {
		t.Fatalf("expected token expired, got %v", err)
	}
}

func TestConsumeResetToken_NilExpiryTreatedAsExpired(t *testing.T) {
	t.Parallel()

	s, mock := newMockStore(t)
	now := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id, reset_token_expires_at").
		WithArgs("odd-token").
		WillReturnRows(pgxmock.NewRows([]string{"id", "reset_token_expires_at"}).
			AddRow("acct-1", nil))
	mock.ExpectRollback()

	err := s.ConsumeResetToken(context.Background(), "odd-token", "new strong password", now)
	if !IsTokenExpired(err) {
		t.Fatalf("expected token expired for nil expiry, got %v", err)
	}
}

func TestConsumeResetToken_OK(t *testing.T) {
	t.Parallel()

	s, mock := newMockStore(t)
	now := time.Now().UTC()
	future := now.Add(10 * time.Minute)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id, reset_token_expires_at").
		WithArgs("live-token").
		WillReturnRows(pgxmock.NewRows([]string{"id", "reset_token_expires_at"}).
			AddRow("acct-1", &future))
	mock.ExpectExec("UPDATE accounts").
		WithArgs("acct-1", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	if err := s.ConsumeResetToken(context.Background(), "live-token", "new strong password", now); err != nil {
		t.Fatalf("ConsumeResetToken: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
