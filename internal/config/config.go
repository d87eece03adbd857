package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// Slack
	SlackSigningSecret string
	SlackAPIBaseURL    string
	StateTokenSecret   string

	// Summary (チャット補完API)
	SummaryAPIKey  string
	SummaryBaseURL string
	SummaryModel   string
	SummaryTimeout time.Duration

	// Reminder
	ReminderInterval     time.Duration
	ReminderThrottle     time.Duration
	SweepMaxConcurrent   int
	NotifyTimeout        time.Duration
	NotifyRatePerSecond  float64
	NotifyMaxRespSize    int64

	// Rate Limit
	RateLimitGeneral int

	// Server
	ServerPort string
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

	cfg.SlackSigningSecret = os.Getenv("SLACK_SIGNING_SECRET")
	if cfg.SlackSigningSecret == "" {
		missing = append(missing, "SLACK_SIGNING_SECRET")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.SlackAPIBaseURL = getEnvString("SLACK_API_BASE_URL", "https://slack.com/api")
	// モーダルの状態トークン署名鍵。未指定時は署名シークレットを流用する。
	cfg.StateTokenSecret = getEnvString("STATE_TOKEN_SECRET", cfg.SlackSigningSecret)

	cfg.SummaryAPIKey = os.Getenv("SUMMARY_API_KEY")
	cfg.SummaryBaseURL = getEnvString("SUMMARY_BASE_URL", "https://api.openai.com/v1")
	cfg.SummaryModel = getEnvString("SUMMARY_MODEL", "gpt-4o-mini")
	cfg.SummaryTimeout = getEnvDuration("SUMMARY_TIMEOUT", 30*time.Second)

	cfg.ReminderInterval = getEnvDuration("REMINDER_INTERVAL", time.Hour)
	cfg.ReminderThrottle = getEnvDuration("REMINDER_THROTTLE", 24*time.Hour)
	cfg.SweepMaxConcurrent = getEnvInt("SWEEP_MAX_CONCURRENT", 4)
	cfg.NotifyTimeout = getEnvDuration("NOTIFY_TIMEOUT", 10*time.Second)
	cfg.NotifyRatePerSecond = getEnvFloat("NOTIFY_RATE_PER_SECOND", 1.0)
	cfg.NotifyMaxRespSize = getEnvInt64("NOTIFY_MAX_RESP_SIZE", 1048576)

	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")

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

func getEnvFloat(key string, defaultVal float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return defaultVal
	}
	return f
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
