package config

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFromEnv_Defaults(t *testing.T) {
	for _, k := range []string{"SECRET", "HTTP_PORT", "DATABASE_DSN", "UPLOAD_DIR", "UPLOAD_BASE_URL",
		"CORS_ALLOWED_ORIGINS", "LEDGER_MAX_RETRIES", "TOKEN_TTL", "LOG_LEVEL"} {
		t.Setenv(k, "")
	}

	cfg := FromEnv()
	assert.Equal(t, "dev_secret", cfg.Secret)
	assert.Equal(t, "8080", cfg.HTTPPort)
	assert.Equal(t, "medcanna.db", cfg.DatabaseDSN)
	assert.Equal(t, "uploads", cfg.UploadDir)
	assert.Equal(t, "/files", cfg.UploadBaseURL)
	assert.Equal(t, []string{"*"}, cfg.AllowedOrigins)
	assert.Equal(t, 3, cfg.LedgerMaxRetries)
	assert.Equal(t, 24*time.Hour, cfg.TokenTTL)
	assert.Equal(t, slog.LevelInfo, cfg.LogLevel)
}

func TestFromEnv_Overrides(t *testing.T) {
	t.Setenv("SECRET", "s3cret")
	t.Setenv("HTTP_PORT", "9090")
	t.Setenv("UPLOAD_BASE_URL", "https://cdn.example.com/docs/")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example.com, https://b.example.com")
	t.Setenv("LEDGER_MAX_RETRIES", "5")
	t.Setenv("TOKEN_TTL", "2h")
	t.Setenv("LOG_LEVEL", "debug")

	cfg := FromEnv()
	assert.Equal(t, "s3cret", cfg.Secret)
	assert.Equal(t, "9090", cfg.HTTPPort)
	assert.Equal(t, "https://cdn.example.com/docs", cfg.UploadBaseURL)
	assert.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, cfg.AllowedOrigins)
	assert.Equal(t, 5, cfg.LedgerMaxRetries)
	assert.Equal(t, 2*time.Hour, cfg.TokenTTL)
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel)
}

func TestFromEnv_InvalidValuesFallBack(t *testing.T) {
	t.Setenv("HTTP_PORT", "http")
	t.Setenv("LEDGER_MAX_RETRIES", "0")
	t.Setenv("TOKEN_TTL", "forever")
	t.Setenv("LOG_LEVEL", "loud")

	cfg := FromEnv()
	assert.Equal(t, "8080", cfg.HTTPPort)
	assert.Equal(t, 3, cfg.LedgerMaxRetries)
	assert.Equal(t, 24*time.Hour, cfg.TokenTTL)
	assert.Equal(t, slog.LevelInfo, cfg.LogLevel)
}
