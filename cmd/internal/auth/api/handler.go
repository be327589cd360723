package authapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"tribune/cmd/identity"
	"tribune/cmd/security/password"
	"tribune/cmd/security/token"
)

// AccountStore is the identity surface the auth endpoints need. It is
// implemented by identity.PostgresStore.
type AccountStore interface {
	CreateAccount(ctx context.Context, in identity.CreateAccountInput) (identity.Account, error)
	GetAccountByID(ctx context.Context, id string) (identity.Account, error)
	GetAccountByUsername(ctx context.Context, username string) (identity.Account, error)
	GetAccountByEmail(ctx context.Context, email string) (identity.Account, error)
	SetResetToken(ctx context.Context, accountID, resetToken string, expiresAt time.Time) error
	ConsumeResetToken(ctx context.Context, resetToken, newPassword string, now time.Time) error
}

// Handler wires registration, login and password reset endpoints to the
// account store.
type Handler struct {
	log *slog.Logger
	cfg Config

	accounts AccountStore
	tokens   token.Issuer
	mailer   ResetMailer
	pw       password.Config

	dummyHash string
}

// HandlerOption configures optional auth handler dependencies.
type HandlerOption func(*Handler)

// WithMailer overrides the default no-op reset mailer.
func WithMailer(m ResetMailer) HandlerOption {
	return func(h *Handler) {
		if h == nil || m == nil {
			return
		}
		h.mailer = m
	}
}

// NewHandler constructs an auth Handler.
func NewHandler(log *slog.Logger, cfg Config, accounts AccountStore, tokens token.Issuer, pw password.Config, opts ...HandlerOption) (*Handler, error) {
	if log == nil {
		log = slog.Default()
	}
	if accounts == nil {
		return nil, errors.New("authapi: nil account store")
	}
	if tokens == nil {
		return nil, errors.New("authapi: nil token issuer")
	}

	h := &Handler{
		log:      log,
		cfg:      cfg,
		accounts: accounts,
		tokens:   tokens,
		mailer:   NoopMailer{},
		pw:       pw,
	}

	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(h)
	}

	// Dummy hash for timing-resistant login checks.
	if hash, err := pw.Hash("dummy-password-for-timing-only"); err == nil {
		h.dummyHash = hash
	}

	return h, nil
}

// Register wires auth routes onto the provided mux.
func (h *Handler) Register(mux *http.ServeMux) {
	if h == nil || mux == nil {
		return
	}
	mux.HandleFunc("POST /register", h.handleRegister)
	mux.HandleFunc("POST /login", h.handleLogin)
	mux.HandleFunc("POST /forgot-password", h.handleForgotPassword)
	mux.HandleFunc("POST /reset-password", h.handleResetPassword)
}

// ---- handlers ----

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := DecodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}

	acct, err := h.accounts.CreateAccount(r.Context(), identity.CreateAccountInput{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
		Now:      time.Now().UTC(),
	})
	if err != nil {
		var conflict identity.ConflictError
		switch {
		case errors.As(err, &conflict):
			if conflict.Field == "email" {
				WriteError(w, http.StatusBadRequest, "email_taken", "Email already registered")
				return
			}
			WriteError(w, http.StatusBadRequest, "username_taken", "Username already taken")
		case identity.IsInvalidInput(err):
			WriteError(w, http.StatusBadRequest, "invalid_request", "invalid username, email or password")
		default:
			h.log.Error("auth.register.fail", "err", err)
			WriteError(w, http.StatusInternalServerError, "server_error", "internal error")
		}
		return
	}

	WriteJSON(w, http.StatusCreated, registerResponse{
		ID:       acct.ID,
		Username: acct.Username,
		Email:    acct.Email,
	})
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", "invalid form body")
		return
	}

	identifier := strings.TrimSpace(r.PostFormValue("username_or_email"))
	pass := r.PostFormValue("password")
	if identifier == "" || pass == "" {
		WriteError(w, http.StatusBadRequest, "invalid_request", "username_or_email and password are required")
		return
	}

	ctx := r.Context()
	now := time.Now().UTC()

	acct, err := h.lookupAccountForLogin(ctx, identifier)
	if err != nil {
		// Timing resistance: perform a dummy verify when the account is missing.
		if h.dummyHash != "" {
			_, _ = h.pw.Verify(h.dummyHash, pass)
		}
		if !identity.IsNotFound(err) {
			h.log.Error("auth.login.lookup.fail", "err", err)
		}
		WriteError(w, http.StatusUnauthorized, "invalid_credentials", "Invalid credentials")
		return
	}

	okPw, err := h.pw.Verify(acct.PasswordHash, pass)
	if err != nil || !okPw {
		WriteError(w, http.StatusUnauthorized, "invalid_credentials", "Invalid credentials")
		return
	}

	accessToken, _, err := h.tokens.Issue(acct.ID, token.PurposeSession, h.cfg.AccessTokenTTL, now)
	if err != nil {
		h.log.Error("auth.login.issue_token.fail", "err", err)
		WriteError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}

	WriteJSON(w, http.StatusOK, loginResponse{
		AccessToken: accessToken,
		TokenType:   "bearer",
		Username:    acct.Username,
		Email:       acct.Email,
	})
}

func (h *Handler) handleForgotPassword(w http.ResponseWriter, r *http.Request) {
	email := strings.TrimSpace(r.URL.Query().Get("email"))
	if email == "" {
		WriteError(w, http.StatusBadRequest, "invalid_request", "email is required")
		return
	}

	ctx := r.Context()
	now := time.Now().UTC()

	// The response never reveals whether the address is registered.
	acct, err := h.accounts.GetAccountByEmail(ctx, email)
	if err != nil {
		if !identity.IsNotFound(err) {
			h.log.Error("auth.forgot_password.lookup.fail", "err", err)
		}
		WriteJSON(w, http.StatusOK, messageResponse{Message: "Password reset link sent to email"})
		return
	}

	resetToken, expiresAt, err := h.tokens.Issue(acct.ID, token.PurposeReset, h.cfg.ResetTokenTTL, now)
	if err != nil {
		h.log.Error("auth.forgot_password.issue_token.fail", "err", err)
		WriteError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}

	if err := h.accounts.SetResetToken(ctx, acct.ID, resetToken, expiresAt); err != nil {
		h.log.Error("auth.forgot_password.store_token.fail", "err", err)
		WriteError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}

	// Delivery happens off the request path so mail server latency never
	// blocks the response.
	go h.sendResetMail(acct.Email, h.cfg.ResetLinkBase+resetToken)

	WriteJSON(w, http.StatusOK, messageResponse{Message: "Password reset link sent to email"})
}

func (h *Handler) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if err := DecodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}

	resetToken := strings.TrimSpace(req.Token)
	if resetToken == "" || req.NewPassword == "" {
		WriteError(w, http.StatusBadRequest, "invalid_request", "token and new_password are required")
		return
	}

	err := h.accounts.ConsumeResetToken(r.Context(), resetToken, req.NewPassword, time.Now().UTC())
	if err != nil {
		switch {
		case identity.IsTokenInvalid(err):
			WriteError(w, http.StatusBadRequest, "invalid_token", "Invalid or already used token")
		case identity.IsTokenExpired(err):
			WriteError(w, http.StatusBadRequest, "expired_token", "Token has expired. Please request a new reset link.")
		case identity.IsInvalidInput(err):
			WriteError(w, http.StatusBadRequest, "invalid_request", "new password does not meet requirements")
		default:
			h.log.Error("auth.reset_password.fail", "err", err)
			WriteError(w, http.StatusInternalServerError, "server_error", "internal error")
		}
		return
	}

	WriteJSON(w, http.StatusOK, messageResponse{Message: "Password reset successful"})
}

// ---- helpers ----

func (h *Handler) lookupAccountForLogin(ctx context.Context, identifier string) (identity.Account, error) {
	if strings.Contains(identifier, "@") {
		return h.accounts.GetAccountByEmail(ctx, identifier)
	}
	return h.accounts.GetAccountByUsername(ctx, identifier)
}

func (h *Handler) sendResetMail(email, link string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := h.mailer.SendPasswordReset(ctx, email, link); err != nil {
		h.log.Error("auth.reset_mail.send.fail", "err", err)
		return
	}
	h.log.Info("auth.reset_mail.sent")
}
