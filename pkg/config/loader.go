// Package config provides configuration loading and validation utilities.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	validator "github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

func setDefaults(v *viper.Viper) {
	v.SetDefault("app_env", "development")

	v.SetDefault("server.port", "8080")
	v.SetDefault("server.shutdown_timeout", 15*time.Second)
	v.SetDefault("server.internal_key", "")

	v.SetDefault("bot.token", "")
	v.SetDefault("bot.username", "")
	v.SetDefault("bot.api_url", "https://api.telegram.org")
	v.SetDefault("bot.mode", ModePolling)
	v.SetDefault("bot.webhook_url", "")
	v.SetDefault("bot.webhook_secret", "")
	v.SetDefault("bot.drop_pending", false)
	v.SetDefault("bot.poll_timeout", 30*time.Second)
	v.SetDefault("bot.request_timeout", 10*time.Second)
	v.SetDefault("bot.language", "en")

	v.SetDefault("link.store", StoreMemory)
	v.SetDefault("link.code_ttl", 10*time.Minute)
	v.SetDefault("link.sweep_interval", 5*time.Minute)

	v.SetDefault("notify.send_timeout", 5*time.Second)
	v.SetDefault("notify.comment_max_len", 500)

	v.SetDefault("database.host", "")
	v.SetDefault("database.port", "5432")
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "")
	v.SetDefault("database.name", "tasklink")
	v.SetDefault("database.sslmode", "disable")

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.min_idle_conns", 2)
	v.SetDefault("redis.pool_timeout", 4*time.Second)
	v.SetDefault("redis.idle_timeout", 5*time.Minute)
	v.SetDefault("redis.max_retries", 3)
	v.SetDefault("redis.min_retry_backoff", 8*time.Millisecond)
	v.SetDefault("redis.max_retry_backoff", 512*time.Millisecond)
	v.SetDefault("redis.binding_cache_ttl", 10*time.Minute)

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "json")
	v.SetDefault("logger.file", "")
	v.SetDefault("logger.max_size_mb", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age_days", 28)

	v.SetDefault("sentry.enabled", false)
	v.SetDefault("sentry.dsn", "")
	v.SetDefault("sentry.sample_rate", 1.0)

	v.SetDefault("rate_limit.inbound.limit", 20)
	v.SetDefault("rate_limit.inbound.window", "1m")
	v.SetDefault("rate_limit.link_issue.limit", 5)
	v.SetDefault("rate_limit.link_issue.window", "10m")
	v.SetDefault("rate_limit.whitelist", []int64{})

	v.SetDefault("idempotency.ttl", 24*time.Hour)
}

// Load reads configuration from YAML files and environment variables, validates it, and returns the resulting Config.
func Load() (*Config, *viper.Viper, error) {
	if err := godotenv.Load(".env.local", ".env"); err != nil {
		// env files are optional
		_ = err
	}

	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "development"
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	path := fmt.Sprintf("./configs/%s.yaml", env)
	if _, err := os.Stat(path); err == nil {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, nil, fmt.Errorf("read config: %w", err)
		}
	}

	cfg, err := decode(v)
	if err != nil {
		return nil, nil, err
	}
	cfg.AppEnv = env

	return cfg, v, nil
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

// Watch re-decodes the config file whenever it changes and hands the result to apply.
// Invalid edits are logged and ignored. Only runtime-tunable fields should be read by apply.
func Watch(v *viper.Viper, log *slog.Logger, apply func(*Config)) {
	if v == nil || v.ConfigFileUsed() == "" {
		return
	}
	if log == nil {
		log = slog.Default()
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		cfg, err := decode(v)
		if err != nil {
			log.Warn("config reload rejected", "file", e.Name, "error", err)
			return
		}
		log.Info("config reloaded", "file", e.Name, "op", e.Op.String())
		apply(cfg)
	})
	v.WatchConfig()
}
