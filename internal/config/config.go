package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config はプロセス全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
// エンジンの振る舞いに関する設定はSettingsが保持する。
type Config struct {
	// Database
	DatabaseURL       string
	SearchDatabaseURL string

	// Secret
	SecretKeyBase string

	// Session
	SessionMaxAge          int
	SessionCleanupInterval time.Duration

	// Rate Limit
	RateLimitGeneral   int
	RateLimitSubscribe int

	// Server
	ServerPort string
	BaseURL    string

	// workerプロセスが/metricsを公開するポート。空なら公開しない
	MetricsPort string

	// Cookie
	CookieSecure bool
	CookieDomain string

	// CORS
	CORSAllowedOrigin string

	// Settings
	SettingsFile string

	// Media storage
	MediaDir       string
	MediaBaseURL   string
	S3Region       string
	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string

	// Mail
	MailDelivery       string
	SESRegion          string
	SESAccessKeyID     string
	SESSecretAccessKey string

	// Log
	LogLevel string
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	cfg.SecretKeyBase = os.Getenv("SECRET_KEY_BASE")
	if cfg.SecretKeyBase == "" {
		missing = append(missing, "SECRET_KEY_BASE")
	}

	cfg.BaseURL = os.Getenv("BASE_URL")
	if cfg.BaseURL == "" {
		missing = append(missing, "BASE_URL")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.SearchDatabaseURL = getEnvString("SEARCH_DATABASE_URL", "")
	cfg.SessionMaxAge = getEnvInt("SESSION_MAX_AGE", 86400)
	cfg.SessionCleanupInterval = getEnvDuration("SESSION_CLEANUP_INTERVAL", 24*time.Hour)
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitSubscribe = getEnvInt("RATE_LIMIT_SUBSCRIBE", 10)
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.MetricsPort = getEnvString("METRICS_PORT", "")
	cfg.CookieSecure = strings.HasPrefix(cfg.BaseURL, "https://")
	cfg.CookieDomain = getEnvString("COOKIE_DOMAIN", "")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:3000")
	cfg.SettingsFile = getEnvString("STORYTIME_SETTINGS_FILE", "")
	cfg.MediaDir = getEnvString("MEDIA_DIR", "./public/uploads")
	cfg.MediaBaseURL = getEnvString("MEDIA_BASE_URL", "/uploads")
	cfg.S3Region = getEnvString("S3_REGION", "us-east-1")
	cfg.MinioEndpoint = getEnvString("MINIO_ENDPOINT", "")
	cfg.MinioAccessKey = getEnvString("MINIO_ACCESS_KEY", "")
	cfg.MinioSecretKey = getEnvString("MINIO_SECRET_KEY", "")
	cfg.MailDelivery = getEnvString("MAIL_DELIVERY", "log")
	cfg.SESRegion = getEnvString("SES_REGION", "us-east-1")
	cfg.SESAccessKeyID = getEnvString("SES_ACCESS_KEY_ID", "")
	cfg.SESSecretAccessKey = getEnvString("SES_SECRET_ACCESS_KEY", "")
	cfg.LogLevel = getEnvString("LOG_LEVEL", "info")

	if cfg.MailDelivery != "log" && cfg.MailDelivery != "ses" {
		return nil, fmt.Errorf("MAIL_DELIVERY must be one of [log ses], got %q", cfg.MailDelivery)
	}

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
