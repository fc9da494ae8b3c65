package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// シートのバックエンド種別。
const (
	SheetsBackendGoogle = "google"
	SheetsBackendMemory = "memory"
)

// 失効ストアのバックエンド種別。
const (
	RevocationBackendMemory   = "memory"
	RevocationBackendRedis    = "redis"
	RevocationBackendPostgres = "postgres"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Session
	SessionSigningSeed string
	SessionMaxAge      int

	// Sheets
	SheetsBackend         string
	SpreadsheetID         string
	SheetsCredentialsFile string
	SheetsTimeout         time.Duration
	SheetsMaxRetries      int
	SheetsRetryBaseDelay  time.Duration
	UsersTab              string
	UsersMinWidth         int
	GradesTab             string
	GradesMinWidth        int

	// Revocation
	RevocationBackend       string
	RevocationSweepInterval time.Duration
	RedisAddr               string
	RedisPassword           string
	DatabaseURL             string

	// Rate Limit
	RateLimitGeneral int
	RateLimitLogin   int

	// Logging
	LogLevel string

	// Server
	ServerPort string
	BaseURL    string

	// Cookie
	CookieSecure bool
	CookieDomain string

	// CORS
	CORSAllowedOrigin string
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合は、未設定のものをまとめてエラーとして返す。
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.SheetsBackend = strings.ToLower(getEnvString("SHEETS_BACKEND", SheetsBackendGoogle))
	cfg.RevocationBackend = strings.ToLower(getEnvString("REVOCATION_BACKEND", RevocationBackendMemory))

	switch cfg.SheetsBackend {
	case SheetsBackendGoogle, SheetsBackendMemory:
	default:
		return nil, fmt.Errorf("unsupported SHEETS_BACKEND: %q", cfg.SheetsBackend)
	}
	switch cfg.RevocationBackend {
	case RevocationBackendMemory, RevocationBackendRedis, RevocationBackendPostgres:
	default:
		return nil, fmt.Errorf("unsupported REVOCATION_BACKEND: %q", cfg.RevocationBackend)
	}

	// Required fields
	var missing []string

	cfg.SessionSigningSeed = os.Getenv("SESSION_SIGNING_SEED")
	if cfg.SessionSigningSeed == "" {
		missing = append(missing, "SESSION_SIGNING_SEED")
	}

	cfg.SpreadsheetID = os.Getenv("SHEETS_SPREADSHEET_ID")
	if cfg.SpreadsheetID == "" && cfg.SheetsBackend == SheetsBackendGoogle {
		missing = append(missing, "SHEETS_SPREADSHEET_ID")
	}

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" && cfg.RevocationBackend == RevocationBackendPostgres {
		missing = append(missing, "DATABASE_URL")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.SessionMaxAge = getEnvInt("SESSION_MAX_AGE", 3600)
	cfg.SheetsCredentialsFile = getEnvString("SHEETS_CREDENTIALS_FILE", "")
	cfg.SheetsTimeout = getEnvDuration("SHEETS_TIMEOUT", 10*time.Second)
	cfg.SheetsMaxRetries = getEnvInt("SHEETS_MAX_RETRIES", 3)
	cfg.SheetsRetryBaseDelay = getEnvDuration("SHEETS_RETRY_BASE_DELAY", 200*time.Millisecond)
	cfg.UsersTab = getEnvString("SHEET_USERS_TAB", "Users")
	cfg.UsersMinWidth = getEnvInt("SHEET_USERS_MIN_WIDTH", 25)
	cfg.GradesTab = getEnvString("SHEET_GRADES_TAB", "Grades")
	cfg.GradesMinWidth = getEnvInt("SHEET_GRADES_MIN_WIDTH", 0)
	cfg.RevocationSweepInterval = getEnvDuration("REVOCATION_SWEEP_INTERVAL", time.Minute)
	cfg.RedisAddr = getEnvString("REDIS_ADDR", "localhost:6379")
	cfg.RedisPassword = getEnvString("REDIS_PASSWORD", "")
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitLogin = getEnvInt("RATE_LIMIT_LOGIN", 10)
	cfg.LogLevel = getEnvString("LOG_LEVEL", "info")
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.BaseURL = getEnvString("BASE_URL", "http://localhost:8080")
	cfg.CookieSecure = strings.HasPrefix(cfg.BaseURL, "https://")
	cfg.CookieDomain = getEnvString("COOKIE_DOMAIN", "")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:3000")

	return cfg, nil
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
