// Package config はアプリケーション設定の読み込みを提供する。
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// Session
	SessionMaxAge int // セッション有効期間（秒）

	// Auth
	SignInAttemptLimit  int           // メールアドレスごとのサインイン試行上限（ウィンドウあたり）
	SignInAttemptWindow time.Duration // サインイン試行ウィンドウ
	MinPasswordLength   int
	// RequireEmailConfirmation が有効な場合、確認済みメールアドレスのみサインインできる。
	RequireEmailConfirmation bool

	// Avatar storage
	AvatarStorageDriver string // "fs" | "s3"
	AvatarStoragePath   string // fsドライバのベースディレクトリ
	AvatarBaseURL       string // 公開URLのプレフィックス
	AvatarMaxSize       int64  // アップロード上限（バイト）
	S3AccessID          string
	S3AccessSecret      string
	S3Region            string
	S3Bucket            string
	S3Endpoint          string

	// News import
	NewsFetchTimeout   time.Duration
	NewsFetchMaxSize   int64
	NewsMaxConcurrent  int
	NewsFetchInterval  time.Duration // スケジューラの実行間隔
	NewsSourceInterval time.Duration // 成功したソースの次回取り込みまでの間隔

	// Rate Limit
	RateLimitGeneral int // req/min/user
	RateLimitLogin   int // req/min/IP（ログイン・登録）

	// Retention
	DeclinedApplicationRetentionDays int

	// Server
	ServerPort  string
	MetricsPort string
	BaseURL     string

	// Cookie
	CookieSecure bool
	CookieDomain string

	// CORS
	CORSAllowedOrigin string
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

	cfg.BaseURL = os.Getenv("BASE_URL")
	if cfg.BaseURL == "" {
		missing = append(missing, "BASE_URL")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.SessionMaxAge = getEnvInt("SESSION_MAX_AGE", 86400)
	cfg.SignInAttemptLimit = getEnvInt("SIGNIN_ATTEMPT_LIMIT", 10)
	cfg.SignInAttemptWindow = getEnvDuration("SIGNIN_ATTEMPT_WINDOW", 5*time.Minute)
	cfg.MinPasswordLength = getEnvInt("MIN_PASSWORD_LENGTH", 8)
	cfg.RequireEmailConfirmation = getEnvBool("REQUIRE_EMAIL_CONFIRMATION", false)

	cfg.AvatarStorageDriver = getEnvString("AVATAR_STORAGE_DRIVER", "fs")
	cfg.AvatarStoragePath = getEnvString("AVATAR_STORAGE_PATH", "./data/avatars")
	cfg.AvatarBaseURL = getEnvString("AVATAR_BASE_URL", cfg.BaseURL+"/avatars")
	cfg.AvatarMaxSize = getEnvInt64("AVATAR_MAX_SIZE", 2*1024*1024)
	cfg.S3AccessID = getEnvString("S3_ACCESS_ID", "")
	cfg.S3AccessSecret = getEnvString("S3_ACCESS_SECRET", "")
	cfg.S3Region = getEnvString("S3_REGION", "")
	cfg.S3Bucket = getEnvString("S3_BUCKET", "")
	cfg.S3Endpoint = getEnvString("S3_ENDPOINT", "")

	cfg.NewsFetchTimeout = getEnvDuration("NEWS_FETCH_TIMEOUT", 10*time.Second)
	cfg.NewsFetchMaxSize = getEnvInt64("NEWS_FETCH_MAX_SIZE", 5242880)
	cfg.NewsMaxConcurrent = getEnvInt("NEWS_MAX_CONCURRENT", 5)
	cfg.NewsFetchInterval = getEnvDuration("NEWS_FETCH_INTERVAL", 15*time.Minute)
	cfg.NewsSourceInterval = getEnvDuration("NEWS_SOURCE_INTERVAL", time.Hour)

	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitLogin = getEnvInt("RATE_LIMIT_LOGIN", 10)

	cfg.DeclinedApplicationRetentionDays = getEnvInt("DECLINED_APPLICATION_RETENTION_DAYS", 90)

	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.MetricsPort = getEnvString("METRICS_PORT", "9090")
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

func getEnvBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
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

func getEnvInt64(key string, defaultVal int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.ParseInt(v, 10, 64)
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
