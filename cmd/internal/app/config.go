package app

import (
	"time"

	"github.com/joho/godotenv"
)

// Config contains all runtime configuration loaded from environment variables.
type Config struct {
	HTTPAddr  string
	LogLevel  string
	LogFormat string // "json" or "pretty"

	ReadHeaderTimeout time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int

	DatabaseURL string
	DBMaxConns  int32
	DBMinConns  int32

	// If true, embedded schema migrations run on startup.
	AutoMigrate bool

	// If true, /readyz returns 503 unless the DB is reachable.
	ReadinessRequireDB bool

	// TokenSecretHex is the hex-encoded symmetric key for session and
	// reset tokens. When empty a fresh key is generated at startup, which
	// invalidates outstanding tokens on restart.
	TokenSecretHex string
	TokenIssuer    string

	SMTPHost       string
	SMTPUser       string
	SMTPPassword   string
	SMTPFrom       string
	SMTPSkipVerify bool

	CORSAllowedOrigins   []string
	CORSAllowCredentials bool
	CORSMaxAgeSeconds    int
}

// LoadConfig loads Config from the environment with defaults. A .env file in
// the working directory is merged in first, without overriding real env vars.
func LoadConfig() Config {
	_ = godotenv.Load()

	return Config{
		HTTPAddr:  EnvString("TRIBUNE_HTTP_ADDR", "0.0.0.0:8080"),
		LogLevel:  EnvString("TRIBUNE_LOG_LEVEL", "info"),
		LogFormat: EnvString("TRIBUNE_LOG_FORMAT", "json"),

		ReadHeaderTimeout: EnvDuration("TRIBUNE_HTTP_READ_HEADER_TIMEOUT", 5*time.Second),
		ReadTimeout:       EnvDuration("TRIBUNE_HTTP_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:      EnvDuration("TRIBUNE_HTTP_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:       EnvDuration("TRIBUNE_HTTP_IDLE_TIMEOUT", 60*time.Second),

		MaxHeaderBytes: EnvInt("TRIBUNE_HTTP_MAX_HEADER_BYTES", 1<<20),

		DatabaseURL: EnvString("TRIBUNE_DATABASE_URL", ""),
		DBMaxConns:  EnvInt32("TRIBUNE_DB_MAX_CONNS", 10),
		DBMinConns:  EnvInt32("TRIBUNE_DB_MIN_CONNS", 0),

		AutoMigrate:        EnvBool("TRIBUNE_DB_AUTO_MIGRATE", true),
		ReadinessRequireDB: EnvBool("TRIBUNE_READINESS_REQUIRE_DB", true),

		TokenSecretHex: EnvString("TRIBUNE_TOKEN_SECRET_HEX", ""),
		TokenIssuer:    EnvString("TRIBUNE_TOKEN_ISSUER", "tribune"),

		SMTPHost:       EnvString("TRIBUNE_SMTP_HOST", ""),
		SMTPUser:       EnvString("TRIBUNE_SMTP_USER", ""),
		SMTPPassword:   EnvString("TRIBUNE_SMTP_PASSWORD", ""),
		SMTPFrom:       EnvString("TRIBUNE_SMTP_FROM", "Tribune <no-reply@localhost>"),
		SMTPSkipVerify: EnvBool("TRIBUNE_SMTP_SKIP_VERIFY", false),

		CORSAllowedOrigins:   EnvStringSlice("TRIBUNE_CORS_ALLOWED_ORIGINS", []string{"*"}),
		CORSAllowCredentials: EnvBool("TRIBUNE_CORS_ALLOW_CREDENTIALS", false),
		CORSMaxAgeSeconds:    EnvInt("TRIBUNE_CORS_MAX_AGE_SECONDS", 600),
	}
}
