package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration values.
type Config struct {
	Secret           string
	DatabaseDSN      string
	HTTPPort         string
	UploadDir        string
	UploadBaseURL    string
	AllowedOrigins   []string
	LedgerMaxRetries int
	TokenTTL         time.Duration
	LogLevel         slog.Level
}

// Load reads a .env file when present and then configuration from environment
// variables with reasonable defaults.
func Load() Config {
	_ = godotenv.Load()
	return FromEnv()
}

// FromEnv builds a Config from the current environment only.
func FromEnv() Config {
	secret := os.Getenv("SECRET")
	if secret == "" {
		secret = "dev_secret"
	}

	port := os.Getenv("HTTP_PORT")
	if port == "" {
		port = "8080"
	}
	// Validate that port is numeric.
	if _, err := strconv.Atoi(port); err != nil {
		slog.Warn("invalid HTTP_PORT, defaulting to 8080", "value", port)
		port = "8080"
	}

	dsn := os.Getenv("DATABASE_DSN")
	if dsn == "" {
		dsn = "medcanna.db"
	}

	uploadDir := os.Getenv("UPLOAD_DIR")
	if uploadDir == "" {
		uploadDir = "uploads"
	}
	baseURL := strings.TrimRight(os.Getenv("UPLOAD_BASE_URL"), "/")
	if baseURL == "" {
		baseURL = "/files"
	}

	origins := []string{"*"}
	if raw := os.Getenv("CORS_ALLOWED_ORIGINS"); raw != "" {
		origins = origins[:0]
		for _, o := range strings.Split(raw, ",") {
			if o = strings.TrimSpace(o); o != "" {
				origins = append(origins, o)
			}
		}
	}

	retries := 3
	if raw := os.Getenv("LEDGER_MAX_RETRIES"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			slog.Warn("invalid LEDGER_MAX_RETRIES, defaulting to 3", "value", raw)
		} else {
			retries = n
		}
	}

	ttl := 24 * time.Hour
	if raw := os.Getenv("TOKEN_TTL"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			slog.Warn("invalid TOKEN_TTL, defaulting to 24h", "value", raw)
		} else {
			ttl = d
		}
	}

	level := slog.LevelInfo
	if raw := os.Getenv("LOG_LEVEL"); raw != "" {
		if err := level.UnmarshalText([]byte(raw)); err != nil {
			slog.Warn("invalid LOG_LEVEL, defaulting to info", "value", raw)
			level = slog.LevelInfo
		}
	}

	return Config{
		Secret:           secret,
		DatabaseDSN:      dsn,
		HTTPPort:         port,
		UploadDir:        uploadDir,
		UploadBaseURL:    baseURL,
		AllowedOrigins:   origins,
		LedgerMaxRetries: retries,
		TokenTTL:         ttl,
		LogLevel:         level,
	}
}
