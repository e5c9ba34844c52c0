package config

import (
	"fmt"
	"os"
	"strconv"
)

// Config holds all runtime configuration parameters
type Config struct {
	DBPath                string
	PostgresDSN           string
	RateLimitMs           int
	MaxRetries            int
	BackoffBaseMs         int
	BackoffMaxMs          int
	RequestTimeoutMs      int
	MaxPages              int
	PageSize              int
	BatchConcurrency      int
	BatchDelayMs          int
	SeenTTLDays           int
	NotifyBatchSize       int
	ScrapeIntervalMinutes int
	TelegramBotToken      string
	TelegramChatID        int64
	SecretKey             string
}

// LoadConfig reads and validates configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		DBPath:                os.Getenv("DB_PATH"),
		PostgresDSN:           os.Getenv("PG_DSN"),
		RateLimitMs:           envInt("RATE_LIMIT_MS", 0),
		MaxRetries:            envInt("MAX_RETRIES", 0),
		BackoffBaseMs:         envInt("BACKOFF_BASE_MS", 0),
		BackoffMaxMs:          envInt("BACKOFF_MAX_MS", 0),
		RequestTimeoutMs:      envInt("REQUEST_TIMEOUT_MS", 0),
		MaxPages:              envInt("MAX_PAGES", 0),
		PageSize:              envInt("PAGE_SIZE", 0),
		BatchConcurrency:      envInt("BATCH_CONCURRENCY", 0),
		BatchDelayMs:          envInt("BATCH_DELAY_MS", 0),
		SeenTTLDays:           envInt("SEEN_TTL_DAYS", 0),
		NotifyBatchSize:       envInt("NOTIFY_BATCH_SIZE", 0),
		ScrapeIntervalMinutes: envInt("SCRAPE_INTERVAL_MINUTES", 0),
		TelegramBotToken:      os.Getenv("TELEGRAM_BOT_TOKEN"),
		SecretKey:             os.Getenv("SECRET_KEY"),
	}

	if chatIDStr := os.Getenv("TELEGRAM_CHAT_ID"); chatIDStr != "" {
		chatID, err := strconv.ParseInt(chatIDStr, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid TELEGRAM_CHAT_ID: %w", err)
		}
		cfg.TelegramChatID = chatID
	}

	// Apply defaults for missing values
	applyDefaults(cfg)

	// Validate configuration
	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// applyDefaults sets default values for unspecified fields
func applyDefaults(cfg *Config) {
	if cfg.DBPath == "" {
		cfg.DBPath = "deals.db"
	}
	if cfg.RateLimitMs == 0 {
		cfg.RateLimitMs = 1000
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	if cfg.BackoffBaseMs == 0 {
		cfg.BackoffBaseMs = 1000
	}
	if cfg.BackoffMaxMs == 0 {
		cfg.BackoffMaxMs = 30000
	}
	if cfg.RequestTimeoutMs == 0 {
		cfg.RequestTimeoutMs = 30000
	}
	if cfg.MaxPages == 0 {
		cfg.MaxPages = 20
	}
	if cfg.PageSize == 0 {
		cfg.PageSize = 50
	}
	if cfg.BatchConcurrency == 0 {
		cfg.BatchConcurrency = 5
	}
	if cfg.BatchDelayMs == 0 {
		cfg.BatchDelayMs = 500
	}
	if cfg.SeenTTLDays == 0 {
		cfg.SeenTTLDays = 7
	}
	if cfg.NotifyBatchSize == 0 {
		cfg.NotifyBatchSize = 10
	}
}

// validate checks that required fields are present and values are sensible
func validate(cfg *Config) error {
	if cfg.MaxRetries < 0 {
		return fmt.Errorf("MAX_RETRIES must be >= 0")
	}
	if cfg.RequestTimeoutMs < 1000 {
		return fmt.Errorf("REQUEST_TIMEOUT_MS must be >= 1000")
	}
	if cfg.BackoffMaxMs < cfg.BackoffBaseMs {
		return fmt.Errorf("BACKOFF_MAX_MS must be >= BACKOFF_BASE_MS")
	}
	if cfg.MaxPages < 1 {
		return fmt.Errorf("MAX_PAGES must be >= 1")
	}
	if cfg.BatchConcurrency < 1 {
		return fmt.Errorf("BATCH_CONCURRENCY must be >= 1")
	}
	if cfg.SeenTTLDays < 1 {
		return fmt.Errorf("SEEN_TTL_DAYS must be >= 1")
	}
	return nil
}

func envInt(key string, fallback int) int {
	if raw := os.Getenv(key); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil {
			return parsed
		}
	}
	return fallback
}
