package config

import (
	"fmt"
	"time"
)

// Bot ingestion modes.
const (
	ModeWebhook = "webhook"
	ModePolling = "polling"
)

// Store backends.
const (
	StoreMemory = "memory"
	StoreRedis  = "redis"
)

// Config holds runtime configuration for the tasklink bot.
type Config struct {
	AppEnv string `mapstructure:"app_env"`

	Server      ServerConfig      `mapstructure:"server"`
	Bot         BotConfig         `mapstructure:"bot"`
	Link        LinkConfig        `mapstructure:"link"`
	Notify      NotifyConfig      `mapstructure:"notify"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Redis       RedisConfig       `mapstructure:"redis"`
	Logger      LoggerConfig      `mapstructure:"logger"`
	Sentry      SentryConfig      `mapstructure:"sentry"`
	RateLimit   RateLimitConfig   `mapstructure:"rate_limit"`
	Idempotency IdempotencyConfig `mapstructure:"idempotency"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Port            string        `mapstructure:"port" validate:"required"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"gt=0"`
	InternalKey     string        `mapstructure:"internal_key"`
}

// Addr returns the listen address for the HTTP server.
func (s ServerConfig) Addr() string {
	return ":" + s.Port
}

// BotConfig configures the Telegram transport.
type BotConfig struct {
	Token          string        `mapstructure:"token" validate:"required"`
	Username       string        `mapstructure:"username" validate:"required"`
	APIURL         string        `mapstructure:"api_url" validate:"required,url"`
	Mode           string        `mapstructure:"mode" validate:"oneof=webhook polling"`
	WebhookURL     string        `mapstructure:"webhook_url" validate:"required_if=Mode webhook,omitempty,url"`
	WebhookSecret  string        `mapstructure:"webhook_secret"`
	DropPending    bool          `mapstructure:"drop_pending"`
	PollTimeout    time.Duration `mapstructure:"poll_timeout" validate:"gt=0"`
	RequestTimeout time.Duration `mapstructure:"request_timeout" validate:"gt=0"`
	Language       string        `mapstructure:"language"`
}

// LinkConfig configures link-code issuance.
type LinkConfig struct {
	Store         string        `mapstructure:"store" validate:"oneof=memory redis"`
	CodeTTL       time.Duration `mapstructure:"code_ttl" validate:"gt=0"`
	SweepInterval time.Duration `mapstructure:"sweep_interval" validate:"gt=0"`
}

// NotifyConfig configures outbound notification delivery.
type NotifyConfig struct {
	SendTimeout   time.Duration `mapstructure:"send_timeout" validate:"gt=0"`
	CommentMaxLen int           `mapstructure:"comment_max_len" validate:"gt=0"`
}

// DatabaseConfig configures the PostgreSQL connection. An empty host selects in-memory stores.
type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
	SSLMode  string `mapstructure:"sslmode"`
}

// Enabled reports whether a database has been configured.
func (d DatabaseConfig) Enabled() bool {
	return d.Host != ""
}

// DSN returns PostgreSQL DSN based on config values.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		d.Host,
		d.Port,
		d.User,
		d.Password,
		d.Name,
		d.SSLMode,
	)
}

// RedisConfig configures the shared Redis instance.
type RedisConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	Addr            string        `mapstructure:"addr" validate:"required_if=Enabled true"`
	Password        string        `mapstructure:"password"`
	DB              int           `mapstructure:"db"`
	PoolSize        int           `mapstructure:"pool_size"`
	MinIdleConns    int           `mapstructure:"min_idle_conns"`
	PoolTimeout     time.Duration `mapstructure:"pool_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	MaxRetries      int           `mapstructure:"max_retries"`
	MinRetryBackoff time.Duration `mapstructure:"min_retry_backoff"`
	MaxRetryBackoff time.Duration `mapstructure:"max_retry_backoff"`
	BindingCacheTTL time.Duration `mapstructure:"binding_cache_ttl"`
}

// LoggerConfig configures structured logging.
type LoggerConfig struct {
	Level      string `mapstructure:"level" validate:"oneof=debug info warn error"`
	Format     string `mapstructure:"format" validate:"oneof=json text"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

// SentryConfig configures error reporting.
type SentryConfig struct {
	Enabled    bool    `mapstructure:"enabled"`
	DSN        string  `mapstructure:"dsn" validate:"required_if=Enabled true"`
	SampleRate float64 `mapstructure:"sample_rate" validate:"gte=0,lte=1"`
}

// RateLimitRule is a limit per window, e.g. 20 per "1m".
type RateLimitRule struct {
	Limit  int    `mapstructure:"limit" validate:"gte=0"`
	Window string `mapstructure:"window"`
}

// RateLimitConfig holds the inbound and link-issuance rules.
type RateLimitConfig struct {
	Inbound   RateLimitRule `mapstructure:"inbound"`
	LinkIssue RateLimitRule `mapstructure:"link_issue"`
	Whitelist []int64       `mapstructure:"whitelist"`
}

// IdempotencyConfig configures inbound update de-duplication.
type IdempotencyConfig struct {
	TTL time.Duration `mapstructure:"ttl" validate:"gt=0"`
}
