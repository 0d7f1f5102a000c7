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

	// Scrape
	MaxCourses     int
	Category       string
	BatchSize      int
	MaxRetries     int
	RetryBaseDelay time.Duration
	OutputDir      string

	// API traversal
	APIBaseURL  string
	APITimeout  time.Duration
	APIInterval time.Duration
	APILanguage string

	// HTML traversal
	CategoryPageURL string
	ElementTimeout  time.Duration

	// Review generation
	OpenAIAPIKey        string
	OpenAIModel         string
	ReviewBatchSize     int
	ReviewBatchInterval time.Duration
	ReviewMaxCourses    int

	// Server
	ServerPort string
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
// OPENAI_API_KEYはreviewコマンドでのみ必要なためここでは必須としない
// （RequireOpenAIで起動時に検査する）。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.MaxCourses = getEnvInt("MAX_COURSES", 20)
	cfg.Category = getEnvString("CATEGORY", "it-programming")
	cfg.BatchSize = getEnvInt("BATCH_SIZE", 10)
	cfg.MaxRetries = getEnvInt("MAX_RETRIES", 2)
	cfg.RetryBaseDelay = getEnvDuration("RETRY_BASE_DELAY", 500*time.Millisecond)
	cfg.OutputDir = getEnvString("OUTPUT_DIR", "output")
	cfg.APIBaseURL = getEnvString("API_BASE_URL", "https://course-api.inflearn.com/client/api/v2")
	cfg.APITimeout = getEnvDuration("API_TIMEOUT", 10*time.Second)
	cfg.APIInterval = getEnvDuration("API_INTERVAL", 500*time.Millisecond)
	cfg.APILanguage = getEnvString("API_LANGUAGE", "ko")
	cfg.CategoryPageURL = getEnvString("CATEGORY_PAGE_URL", "https://www.inflearn.com/courses/it-programming")
	cfg.ElementTimeout = getEnvDuration("ELEMENT_TIMEOUT", 10*time.Second)
	cfg.OpenAIAPIKey = os.Getenv("OPENAI_API_KEY")
	cfg.OpenAIModel = getEnvString("OPENAI_MODEL", "gpt-4o-mini")
	cfg.ReviewBatchSize = getEnvInt("REVIEW_BATCH_SIZE", 5)
	cfg.ReviewBatchInterval = getEnvDuration("REVIEW_BATCH_INTERVAL", 2*time.Second)
	cfg.ReviewMaxCourses = getEnvInt("REVIEW_MAX_COURSES", 50)
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")

	return cfg, nil
}

// RequireOpenAI はレビュー生成に必要な設定が揃っているかを検査する。
func (c *Config) RequireOpenAI() error {
	if c.OpenAIAPIKey == "" {
		return fmt.Errorf("required environment variables are not set: [OPENAI_API_KEY]")
	}
	return nil
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
