// Package config は環境変数からアプリケーション設定を読み込む。
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string
	DBBackend   string // sql | gorm

	// OAuth
	GoogleClientID     string
	GoogleClientSecret string
	GoogleRedirectURL  string

	// Session
	SessionMaxAge    int // 秒
	SessionUpdateAge int // 秒

	// Rate Limit（req/min/IP）
	RateLimitGeneral      int
	RateLimitRegistration int

	// Cleanup
	ProvisionalUserTTL time.Duration
	CleanupInterval    time.Duration

	// Server
	ServerPort string
	BaseURL    string

	// Cookie
	CookieSecure bool
	CookieDomain string

	// CORS
	CORSAllowedOrigins []string

	// Log
	LogLevel string
}

var requiredKeys = []string{
	"DATABASE_URL",
	"GOOGLE_CLIENT_ID",
	"GOOGLE_CLIENT_SECRET",
	"GOOGLE_REDIRECT_URL",
	"BASE_URL",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("DB_BACKEND", "sql")
	v.SetDefault("SESSION_MAX_AGE", 2592000)
	v.SetDefault("SESSION_UPDATE_AGE", 86400)
	v.SetDefault("RATE_LIMIT_GENERAL", 120)
	v.SetDefault("RATE_LIMIT_REGISTRATION", 10)
	v.SetDefault("PROVISIONAL_USER_TTL", 7*24*time.Hour)
	v.SetDefault("CLEANUP_INTERVAL", time.Hour)
	v.SetDefault("SERVER_PORT", "8080")
	v.SetDefault("COOKIE_DOMAIN", "")
	v.SetDefault("CORS_ALLOWED_ORIGIN", "")
	v.SetDefault("LOG_LEVEL", "info")
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	v := viper.New() // グローバル状態を持たない
	v.AutomaticEnv()
	setDefaults(v)

	var missing []string
	for _, key := range requiredKeys {
		if strings.TrimSpace(v.GetString(key)) == "" {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	cfg := &Config{
		DatabaseURL:        v.GetString("DATABASE_URL"),
		DBBackend:          strings.ToLower(v.GetString("DB_BACKEND")),
		GoogleClientID:     v.GetString("GOOGLE_CLIENT_ID"),
		GoogleClientSecret: v.GetString("GOOGLE_CLIENT_SECRET"),
		GoogleRedirectURL:  v.GetString("GOOGLE_REDIRECT_URL"),
		ServerPort:         v.GetString("SERVER_PORT"),
		BaseURL:            v.GetString("BASE_URL"),
		CookieDomain:       v.GetString("COOKIE_DOMAIN"),
		CORSAllowedOrigins: splitList(v.GetString("CORS_ALLOWED_ORIGIN")),
		LogLevel:           v.GetString("LOG_LEVEL"),
	}
	cfg.CookieSecure = strings.HasPrefix(cfg.BaseURL, "https://")

	// 数値と期間は不正な値ならデフォルトに戻す
	cfg.SessionMaxAge = positiveInt(v, "SESSION_MAX_AGE", 2592000)
	cfg.SessionUpdateAge = positiveInt(v, "SESSION_UPDATE_AGE", 86400)
	cfg.RateLimitGeneral = positiveInt(v, "RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitRegistration = positiveInt(v, "RATE_LIMIT_REGISTRATION", 10)
	cfg.ProvisionalUserTTL = positiveDuration(v, "PROVISIONAL_USER_TTL", 7*24*time.Hour)
	cfg.CleanupInterval = positiveDuration(v, "CLEANUP_INTERVAL", time.Hour)

	return cfg, nil
}

// SessionMaxAgeDuration はセッション有効期間をtime.Durationで返す。
func (c *Config) SessionMaxAgeDuration() time.Duration {
	return time.Duration(c.SessionMaxAge) * time.Second
}

// SessionUpdateAgeDuration はセッション延長間隔をtime.Durationで返す。
func (c *Config) SessionUpdateAgeDuration() time.Duration {
	return time.Duration(c.SessionUpdateAge) * time.Second
}

func positiveInt(v *viper.Viper, key string, defaultVal int) int {
	if i := v.GetInt(key); i > 0 {
		return i
	}
	return defaultVal
}

func positiveDuration(v *viper.Viper, key string, defaultVal time.Duration) time.Duration {
	if d := v.GetDuration(key); d > 0 {
		return d
	}
	return defaultVal
}

// splitList はカンマ区切りの値を空要素を除いて分割する。
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
