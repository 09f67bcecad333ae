package config

import (
	"fmt"
	"time"

	"golang-fundamental-scryper/pkg/config"

	"github.com/go-playground/validator/v10"
)

// Crawler holds the pipeline specific configuration.
type Crawler struct {
	ListingURL           string        `mapstructure:"listing_url" validate:"required,url"`
	MaxConcurrentFetches int64         `mapstructure:"max_concurrent_fetches" validate:"min=1,max=256"`
	FetchTimeout         time.Duration `mapstructure:"fetch_timeout" validate:"gt=0"`
	MaxRequestPerMinute  int           `mapstructure:"max_request_per_minute" validate:"min=0"`
	UserAgent            string        `mapstructure:"user_agent"`
	Schedule             string        `mapstructure:"schedule"`
	RunLockTTL           time.Duration `mapstructure:"run_lock_ttl" validate:"gt=0"`
}

// AllowList is the versioned set of instrument identifiers that may exist in the store.
type AllowList struct {
	Version     string   `mapstructure:"version" validate:"required"`
	Identifiers []string `mapstructure:"identifiers" validate:"min=1,dive,required"`
}

// Telegram holds configuration for the run summary notifier.
type Telegram struct {
	BotToken string `mapstructure:"bot_token"`
	ChatID   int64  `mapstructure:"chat_id"`
}

// Enabled reports whether the notifier was configured.
func (t Telegram) Enabled() bool {
	return t.BotToken != "" && t.ChatID != 0
}

// Config holds the full configuration for the crawler service.
type Config struct {
	App       config.App      `mapstructure:"app"`
	Logger    config.Logger   `mapstructure:"logger"`
	Database  config.Database `mapstructure:"database"`
	Redis     config.Redis    `mapstructure:"redis"`
	API       config.API      `mapstructure:"api"`
	Crawler   Crawler         `mapstructure:"crawler"`
	AllowList AllowList       `mapstructure:"allow_list"`
	Telegram  Telegram        `mapstructure:"telegram"`
}

var defaults = map[string]interface{}{
	"app.name":                       "crawler-service",
	"logger.level":                   "info",
	"logger.encoding":                "json",
	"database.port":                  5432,
	"database.ssl_mode":              "disable",
	"redis.port":                     6379,
	"redis.stream_max_len":           1000,
	"api.port":                       8080,
	"crawler.max_concurrent_fetches": 8,
	"crawler.fetch_timeout":          "20s",
	"crawler.max_request_per_minute": 0,
	"crawler.run_lock_ttl":           "30m",
	"crawler.user_agent":             "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36",
}

// Load loads the crawler configuration from the given path and validates it.
func Load(path string) (*Config, error) {
	var cfg Config
	if err := config.Load(path, &cfg, defaults); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the struct tags. max_concurrent_fetches must be at least 1.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}
