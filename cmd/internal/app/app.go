// Package app wires the tribune server runtime: config, logging, database,
// HTTP routes and metrics.
package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"tribune/cmd/identity"
	authapi "tribune/cmd/internal/auth/api"
	"tribune/cmd/internal/posts"
	"tribune/cmd/security/password"
	"tribune/cmd/security/token"
)

// App is the tribune server runtime. It owns the connection pool and the
// fully wired HTTP handlers.
type App struct {
	cfg Config
	log Logger

	pool *pgxpool.Pool

	auth    *authapi.Handler
	authMW  *authapi.Authenticator
	posts   *posts.Handler
	metrics *Metrics
}

// New constructs a fully wired App instance from config and logger.
func New(ctx context.Context, cfg Config, log Logger) (*App, error) {
	if log == nil {
		log = NewLogger(cfg.LogLevel, cfg.LogFormat)
	}

	if cfg.DatabaseURL == "" {
		return nil, errors.New("app: TRIBUNE_DATABASE_URL is required")
	}

	if cfg.AutoMigrate {
		if err := RunMigrations(ctx, cfg.DatabaseURL); err != nil {
			return nil, err
		}
		log.Info("db.migrations.applied")
	}

	pool, err := NewDBPool(ctx, cfg)
	if err != nil {
		return nil, err
	}

	pwCfg, err := password.FromEnv()
	if err != nil {
		pool.Close()
		return nil, err
	}

	secretHex := cfg.TokenSecretHex
	if secretHex == "" {
		secretHex = token.NewSecretKeyHex()
		log.Warn("token.secret.ephemeral", "hint", "set TRIBUNE_TOKEN_SECRET_HEX to keep tokens valid across restarts")
	}
	issuer, err := token.NewPasetoV4LocalIssuer(token.Config{
		SecretKeyHex: secretHex,
		Issuer:       cfg.TokenIssuer,
	})
	if err != nil {
		pool.Close()
		return nil, err
	}

	accounts, err := identity.NewPostgresStore(pool, pwCfg)
	if err != nil {
		pool.Close()
		return nil, err
	}
	postStore, err := posts.NewPostgresStore(pool)
	if err != nil {
		pool.Close()
		return nil, err
	}

	authCfg := authapi.LoadConfigFromEnv()

	var handlerOpts []authapi.HandlerOption
	if cfg.SMTPHost != "" {
		mailer, err := authapi.NewSMTPMailer(authapi.SMTPConfig{
			Host:       cfg.SMTPHost,
			User:       cfg.SMTPUser,
			Password:   cfg.SMTPPassword,
			From:       cfg.SMTPFrom,
			SkipVerify: cfg.SMTPSkipVerify,
		})
		if err != nil {
			pool.Close()
			return nil, err
		}
		handlerOpts = append(handlerOpts, authapi.WithMailer(mailer))
		log.Info("mail.enabled", "host", cfg.SMTPHost)
	} else {
		log.Info("mail.disabled.noop_sender")
	}

	authHandler, err := authapi.NewHandler(log, authCfg, accounts, issuer, pwCfg, handlerOpts...)
	if err != nil {
		pool.Close()
		return nil, err
	}

	postHandler, err := posts.NewHandler(log, postStore, authCfg.MaxBodyBytes)
	if err != nil {
		pool.Close()
		return nil, err
	}

	return &App{
		cfg:     cfg,
		log:     log,
		pool:    pool,
		auth:    authHandler,
		authMW:  authapi.NewAuthenticator(log, issuer, accounts),
		posts:   postHandler,
		metrics: NewMetrics(),
	}, nil
}

// Run starts the HTTP server and blocks until context cancellation or fatal
// server error.
func (a *App) Run(ctx context.Context) error {
	mux := http.NewServeMux()
	registerHTTP(mux, a)

	var handler http.Handler = mux
	handler = WithSecurityHeaders(handler)
	handler = WithCORS(handler, a.cfg, a.log)
	handler = a.metrics.WithRequestMetrics(handler)
	handler = WithRequestLogging(handler, a.log)

	srv := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: nonZeroDuration(a.cfg.ReadHeaderTimeout, 5*time.Second),
		ReadTimeout:       nonZeroDuration(a.cfg.ReadTimeout, 15*time.Second),
		WriteTimeout:      nonZeroDuration(a.cfg.WriteTimeout, 15*time.Second),
		IdleTimeout:       nonZeroDuration(a.cfg.IdleTimeout, 60*time.Second),
		MaxHeaderBytes:    nonZeroInt(a.cfg.MaxHeaderBytes, 1<<20),
	}

	a.log.Info("server.start", "addr", a.cfg.HTTPAddr)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		a.log.Info("server.stop", "reason", "context_done")
	case err := <-errCh:
		a.log.Error("server.fail", "err", err)
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.log.Error("server.shutdown.fail", "err", err)
		return err
	}

	a.pool.Close()
	a.log.Info("server.stopped")
	return nil
}

func nonZeroDuration(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}

func nonZeroInt(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
