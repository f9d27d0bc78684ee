// Package config loads runtime settings from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds runtime settings loaded from env vars.
type Config struct {
	HTTPAddr    string
	Environment string

	// Channel is the selector tag choosing the default delivery channel.
	// One of "sms", "email", "telegram"; anything else means email.
	Channel string

	// DatabaseURL enables the Postgres audit log when set.
	DatabaseURL string

	// RedisURL enables queued delivery when set.
	RedisURL string

	// UploadDir is the fixed storage path for uploaded files.
	UploadDir string

	// SendTimeout is applied to each delivery attempt.
	SendTimeout time.Duration

	LogLevel  string
	LogFormat string
	LogOutput string

	Telegram TelegramConfig
	Email    EmailConfig
	SMS      SMSConfig

	WorkerConcurrency int
	WorkerBatchSize   int
}

// TelegramConfig holds the Telegram channel settings.
type TelegramConfig struct {
	BotToken string
}

// EmailConfig holds the email channel settings.
type EmailConfig struct {
	APIToken  string
	APIURL    string
	FromEmail string
	FromName  string
	Subject   string
}

// SMSConfig holds the SMS gateway settings.
type SMSConfig struct {
	AccountID string
	AuthToken string
	From      string
	APIURL    string
}

// Load loads configuration from environment variables.
// Required variables: EMAIL_API_TOKEN, EMAIL_FROM (email is the default
// channel and must always be available).
// Optional variables with defaults: HTTP_ADDR, NOTIFY_CHANNEL,
// UPLOAD_DIR, SEND_TIMEOUT_SECONDS, LOG_LEVEL, LOG_FORMAT, LOG_OUTPUT,
// WORKER_CONCURRENCY, WORKER_BATCH_SIZE.
func Load() Config {
	return Config{
		HTTPAddr:    envOr("HTTP_ADDR", ":8080"),
		Environment: envOr("ENVIRONMENT", "development"),
		Channel:     envOr("NOTIFY_CHANNEL", "email"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		RedisURL:    os.Getenv("REDIS_URL"),
		UploadDir:   envOr("UPLOAD_DIR", "uploads"),
		SendTimeout: time.Duration(envIntOr("SEND_TIMEOUT_SECONDS", 10)) * time.Second,
		LogLevel:    envOr("LOG_LEVEL", "info"),
		LogFormat:   envOr("LOG_FORMAT", "json"),
		LogOutput:   envOr("LOG_OUTPUT", "stdout"),
		Telegram: TelegramConfig{
			BotToken: os.Getenv("TELEGRAM_BOT_TOKEN"),
		},
		Email: EmailConfig{
			APIToken:  os.Getenv("EMAIL_API_TOKEN"),
			APIURL:    os.Getenv("EMAIL_API_URL"),
			FromEmail: os.Getenv("EMAIL_FROM"),
			FromName:  envOr("EMAIL_FROM_NAME", "SendRelay"),
			Subject:   envOr("EMAIL_SUBJECT", "Notification"),
		},
		SMS: SMSConfig{
			AccountID: os.Getenv("SMS_ACCOUNT_ID"),
			AuthToken: os.Getenv("SMS_AUTH_TOKEN"),
			From:      os.Getenv("SMS_FROM"),
			APIURL:    os.Getenv("SMS_API_URL"),
		},
		WorkerConcurrency: envIntOr("WORKER_CONCURRENCY", 4),
		WorkerBatchSize:   envIntOr("WORKER_BATCH_SIZE", 10),
	}
}

// Validate checks that all required configuration is present.
func (c Config) Validate() error {
	if c.Email.APIToken == "" {
		return fmt.Errorf("EMAIL_API_TOKEN is required")
	}
	if c.Email.FromEmail == "" {
		return fmt.Errorf("EMAIL_FROM is required")
	}
	if c.UploadDir == "" {
		return fmt.Errorf("UPLOAD_DIR must not be empty")
	}
	return nil
}

// SMSEnabled reports whether the SMS channel is fully configured.
func (c Config) SMSEnabled() bool {
	return c.SMS.AccountID != "" && c.SMS.AuthToken != "" && c.SMS.From != "" && c.SMS.APIURL != ""
}

// TelegramEnabled reports whether the Telegram channel is configured.
func (c Config) TelegramEnabled() bool {
	return c.Telegram.BotToken != ""
}

// IsDevelopment returns true if running in development mode.
func (c Config) IsDevelopment() bool {
	return c.Environment == "development" || c.Environment == "dev"
}

func envOr(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return fallback
}
