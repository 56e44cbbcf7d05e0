// Package config はアプリケーション設定の読み込みを提供する。
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Platform はアプリの実行プラットフォームを表す。
// OAuthハンドシェイクの戦略選択は起動時にこの値だけで決定し、
// 呼び出しごとのプロバイダー能力判定は行わない。
type Platform string

const (
	// PlatformWeb はブラウザ上での実行を示す。
	PlatformWeb Platform = "web"
	// PlatformIOS はiOSネイティブシェル上での実行を示す。
	PlatformIOS Platform = "ios"
	// PlatformAndroid はAndroidネイティブシェル上での実行を示す。
	PlatformAndroid Platform = "android"
)

// Native はネイティブプラットフォーム（iOS/Android）かどうかを返す。
func (p Platform) Native() bool {
	return p == PlatformIOS || p == PlatformAndroid
}

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database (profiles)
	DatabaseURL string

	// Auth backend
	AuthBaseURL       string
	AuthAPIKey        string
	AuthRefreshMargin time.Duration

	// OAuth
	Platform       Platform
	DeepLinkScheme string // ネイティブブラウザフローのコールバック用アプリスキーム
	WebOrigin      string // Webリダイレクトフローの戻り先オリジン
	FacebookAppID  string // 未設定の場合、SDKフローのみ実行時エラーになる

	// Session persistence
	SessionFile string

	// Rate Limit (req/min)
	RateLimitGeneral int
	RateLimitSignIn  int

	// Server
	ServerPort string

	// CORS
	CORSAllowedOrigin string
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
// DEEP_LINK_SCHEMEはネイティブプラットフォームでのみ、
// WEB_ORIGINはWebプラットフォームでのみ必須となる。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	cfg.AuthBaseURL = strings.TrimRight(os.Getenv("AUTH_BASE_URL"), "/")
	if cfg.AuthBaseURL == "" {
		missing = append(missing, "AUTH_BASE_URL")
	}

	cfg.AuthAPIKey = os.Getenv("AUTH_API_KEY")
	if cfg.AuthAPIKey == "" {
		missing = append(missing, "AUTH_API_KEY")
	}

	platform, err := ParsePlatform(getEnvString("PLATFORM", string(PlatformIOS)))
	if err != nil {
		return nil, err
	}
	cfg.Platform = platform

	cfg.DeepLinkScheme = os.Getenv("DEEP_LINK_SCHEME")
	if cfg.Platform.Native() && cfg.DeepLinkScheme == "" {
		missing = append(missing, "DEEP_LINK_SCHEME")
	}

	cfg.WebOrigin = os.Getenv("WEB_ORIGIN")
	if cfg.Platform == PlatformWeb && cfg.WebOrigin == "" {
		missing = append(missing, "WEB_ORIGIN")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.AuthRefreshMargin = getEnvDuration("AUTH_REFRESH_MARGIN", 60*time.Second)
	cfg.FacebookAppID = os.Getenv("FACEBOOK_APP_ID")
	cfg.SessionFile = getEnvString("SESSION_FILE", "data/session.json")
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitSignIn = getEnvInt("RATE_LIMIT_SIGNIN", 10)
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	// Expo開発サーバーのデフォルトポートに合わせる
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:8081")

	return cfg, nil
}

// ParsePlatform はプラットフォーム文字列を検証して返す。
func ParsePlatform(s string) (Platform, error) {
	switch Platform(strings.ToLower(strings.TrimSpace(s))) {
	case PlatformWeb:
		return PlatformWeb, nil
	case PlatformIOS:
		return PlatformIOS, nil
	case PlatformAndroid:
		return PlatformAndroid, nil
	default:
		return "", fmt.Errorf("unsupported platform: %q", s)
	}
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
