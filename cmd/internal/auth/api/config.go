package authapi

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config controls auth API behavior and security defaults.
type Config struct {
	AccessTokenTTL time.Duration
	ResetTokenTTL  time.Duration

	// ResetLinkBase is the URL prefix the reset token is appended to in
	// password reset emails, e.g. "https://app.example.com/reset-password?token=".
	ResetLinkBase string

	MaxBodyBytes int64
}

// LoadConfigFromEnv loads auth config from environment variables with safe defaults.
func LoadConfigFromEnv() Config {
	cfg := Config{
		AccessTokenTTL: envDuration("TRIBUNE_AUTH_ACCESS_TTL", 60*time.Minute),
		ResetTokenTTL:  envDuration("TRIBUNE_AUTH_RESET_TTL", 30*time.Minute),
		ResetLinkBase:  strings.TrimSpace(os.Getenv("TRIBUNE_AUTH_RESET_LINK_BASE")),
		MaxBodyBytes:   envInt64("TRIBUNE_AUTH_MAX_BODY_BYTES", 1<<20), // 1 MiB
	}

	if cfg.ResetLinkBase == "" {
		cfg.ResetLinkBase = "http://localhost:8080/reset-password?token="
	}

	return cfg
}

func envInt64(key string, def int64) int64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func envDuration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
