package authapi

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"tribune/cmd/identity"
	"tribune/cmd/security/token"
)

func newTestAuthenticator(t *testing.T) (*Authenticator, *fakeAccounts, token.Issuer) {
	t.Helper()

	issuer, err := token.NewPasetoV4LocalIssuer(token.Config{
		SecretKeyHex: token.NewSecretKeyHex(),
		Issuer:       "tribune-test",
	})
	if err != nil {
		t.Fatalf("NewPasetoV4LocalIssuer: %v", err)
	}

	store := newFakeAccounts(testPasswordConfig())
	return NewAuthenticator(nil, issuer, store), store, issuer
}

func protectedEcho(t *testing.T) http.Handler {
	t.Helper()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		acct, ok := AccountFromContext(r.Context())
		if !ok {
			t.Fatal("account missing from context")
		}
		w.Header().Set("X-Account", acct.ID)
		w.WriteHeader(http.StatusOK)
	})
}

func TestRequire_ValidToken(t *testing.T) {
	auth, store, issuer := newTestAuthenticator(t)

	acct := seedAccount(t, store)
	tok, _, err := issuer.Issue(acct.ID, token.PurposeSession, time.Hour, time.Now().UTC())
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	rec := httptest.NewRecorder()
	auth.Require(protectedEcho(t)).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if got := rec.Header().Get("X-Account"); got != acct.ID {
		t.Fatalf("account = %q, want %q", got, acct.ID)
	}
}

func TestRequire_MissingHeader(t *testing.T) {
	auth, _, _ := newTestAuthenticator(t)

	rec := httptest.NewRecorder()
	auth.Require(failingNext(t)).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/protected", nil))

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	if code := errorCode(t, rec.Body.Bytes()); code != "invalid_auth" {
		t.Fatalf("code = %q, want invalid_auth", code)
	}
}

func TestRequire_RejectsResetPurposeToken(t *testing.T) {
	auth, store, issuer := newTestAuthenticator(t)

	acct := seedAccount(t, store)
	tok, _, err := issuer.Issue(acct.ID, token.PurposeReset, time.Hour, time.Now().UTC())
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	rec := httptest.NewRecorder()
	auth.Require(failingNext(t)).ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestRequire_DeletedAccount(t *testing.T) {
	auth, store, issuer := newTestAuthenticator(t)

	acct := seedAccount(t, store)
	tok, _, err := issuer.Issue(acct.ID, token.PurposeSession, time.Hour, time.Now().UTC())
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	delete(store.byID, acct.ID)

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	rec := httptest.NewRecorder()
	auth.Require(failingNext(t)).ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestRequire_GarbageToken(t *testing.T) {
	auth, _, _ := newTestAuthenticator(t)

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	rec := httptest.NewRecorder()
	auth.Require(failingNext(t)).ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func seedAccount(t *testing.T, store *fakeAccounts) registerResponse {
	t.Helper()
	acct, err := store.CreateAccount(t.Context(), newAccountInput("alice", "alice@example.com"))
	if err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}
	return registerResponse{ID: acct.ID, Username: acct.Username, Email: acct.Email}
}

func newAccountInput(username, email string) identity.CreateAccountInput {
	return identity.CreateAccountInput{
		Username: username,
		Email:    email,
		Password: "correct horse battery",
		Now:      time.Now().UTC(),
	}
}

func failingNext(t *testing.T) http.Handler {
	t.Helper()
	return http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("next handler should not run")
	})
}
