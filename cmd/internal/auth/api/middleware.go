package authapi

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"tribune/cmd/identity"
	"tribune/cmd/security/token"
)

// AccountResolver loads the account behind a verified token subject.
type AccountResolver interface {
	GetAccountByID(ctx context.Context, id string) (identity.Account, error)
}

// Authenticator verifies bearer tokens and resolves the caller's account.
type Authenticator struct {
	log      *slog.Logger
	tokens   token.Issuer
	accounts AccountResolver
}

// NewAuthenticator constructs an Authenticator.
func NewAuthenticator(log *slog.Logger, tokens token.Issuer, accounts AccountResolver) *Authenticator {
	if log == nil {
		log = slog.Default()
	}
	return &Authenticator{log: log, tokens: tokens, accounts: accounts}
}

type contextKey struct{ name string }

var accountContextKey = contextKey{"account"}

// AccountFromContext returns the authenticated account stored by Require.
func AccountFromContext(ctx context.Context) (identity.Account, bool) {
	acct, ok := ctx.Value(accountContextKey).(identity.Account)
	return acct, ok
}

// Require wraps next so it only runs for requests carrying a valid session
// token for an existing account. The account is available to next through
// AccountFromContext.
func (a *Authenticator) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := bearerToken(r)
		if raw == "" {
			writeUnauthorized(w)
			return
		}

		claims, err := a.tokens.Verify(raw, time.Now().UTC())
		if err != nil || claims.Purpose != token.PurposeSession {
			writeUnauthorized(w)
			return
		}

		acct, err := a.accounts.GetAccountByID(r.Context(), claims.SubjectID)
		if err != nil {
			if !identity.IsNotFound(err) {
				a.log.Error("auth.resolve_account.fail", "err", err)
			}
			writeUnauthorized(w)
			return
		}

		ctx := context.WithValue(r.Context(), accountContextKey, acct)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func writeUnauthorized(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", "Bearer")
	WriteError(w, http.StatusUnauthorized, "invalid_auth", "Invalid authentication credentials")
}

func bearerToken(r *http.Request) string {
	raw := strings.TrimSpace(r.Header.Get("Authorization"))
	if raw == "" {
		return ""
	}
	parts := strings.SplitN(raw, " ", 2)
	if len(parts) != 2 {
		return ""
	}
	if !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
