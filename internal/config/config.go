// Package config holds the price-tracker service configuration.
package config

import (
	"errors"
	"fmt"
	"time"

	infraconfig "github.com/jonesrussell/north-cloud/price-tracker/infrastructure/config"
	"github.com/jonesrussell/north-cloud/price-tracker/infrastructure/events"
	"github.com/jonesrussell/north-cloud/price-tracker/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/price-tracker/infrastructure/profiling"
	"github.com/jonesrussell/north-cloud/price-tracker/internal/api"
	"github.com/jonesrussell/north-cloud/price-tracker/internal/notify"
	"github.com/jonesrussell/north-cloud/price-tracker/internal/scheduler"
)

// Notification channels.
const (
	ChannelTelegram = "telegram"
	ChannelRedis    = "redis"
	ChannelLog      = "log"
)

const (
	defaultHost            = "0.0.0.0"
	defaultPort            = 8070
	defaultBaseURL         = "http://localhost:8070"
	defaultHistoryLimit    = 10
	defaultDispatchTimeout = 15 * time.Second
	defaultShopsFile       = "shops.yml"
	defaultConfigPath      = "config.yml"
	minJWTSecretLength     = 16
)

// Config is the root configuration.
type Config struct {
	Debug         bool                       `env:"APP_DEBUG" yaml:"debug"`
	App           AppConfig                  `yaml:"app"`
	Server        ServerConfig               `yaml:"server"`
	Database      infraconfig.DatabaseConfig `yaml:"database"`
	Redis         RedisConfig                `yaml:"redis"`
	Auth          AuthConfig                 `yaml:"auth"`
	RateLimit     api.RateLimitConfig        `yaml:"rate_limit"`
	Notifications NotificationsConfig        `yaml:"notifications"`
	Shops         ShopsConfig                `yaml:"shops"`
	Scheduler     scheduler.Config           `yaml:"scheduler"`
	Profiling     profiling.Config           `yaml:"profiling"`
	Logging       logger.Config              `yaml:"logging"`
}

// AppConfig holds settings shared by every component.
type AppConfig struct {
	// BaseURL prefixes product deep links in notifications.
	BaseURL      string `env:"APP_BASE_URL" yaml:"base_url"`
	HistoryLimit int    `yaml:"history_limit"`
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Host         string        `env:"SERVER_HOST" yaml:"host"`
	Port         int           `env:"SERVER_PORT" yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	CORSOrigins  []string      `env:"CORS_ORIGINS" yaml:"cors_origins"`
}

// RedisConfig holds the optional Redis connection settings.
type RedisConfig struct {
	Enabled  bool   `env:"REDIS_ENABLED"  yaml:"enabled"`
	Address  string `env:"REDIS_ADDRESS"  yaml:"address"`
	Password string `env:"REDIS_PASSWORD" yaml:"password"`
	DB       int    `env:"REDIS_DB"       yaml:"db"`
}

// AuthConfig holds the JWT signing secret.
type AuthConfig struct {
	JWTSecret string `env:"AUTH_JWT_SECRET" yaml:"jwt_secret"`
}

// NotificationsConfig selects and configures the messaging channel.
type NotificationsConfig struct {
	Channel         string                    `env:"NOTIFICATIONS_CHANNEL" yaml:"channel"`
	Telegram        notify.TelegramConfig     `yaml:"telegram"`
	RedisChannel    string                    `yaml:"redis_channel"`
	DispatchTimeout time.Duration             `yaml:"dispatch_timeout"`
	Outbox          notify.OutboxWorkerConfig `yaml:"outbox"`
}

// ShopsConfig points at the optional shop rules file.
type ShopsConfig struct {
	File  string `env:"SHOPS_FILE" yaml:"file"`
	Watch bool   `yaml:"watch"`
}

// UsesRedis reports whether any enabled component needs a Redis client.
func (c *Config) UsesRedis() bool {
	return c.Redis.Enabled || c.Scheduler.Enabled || c.Notifications.Channel == ChannelRedis
}

// Validate checks the loaded configuration.
func (c *Config) Validate() error {
	if err := infraconfig.ValidatePort("server.port", c.Server.Port); err != nil {
		return err
	}
	if err := c.Database.Validate(); err != nil {
		return err
	}
	if err := infraconfig.ValidateRequired("auth.jwt_secret", c.Auth.JWTSecret); err != nil {
		return err
	}
	if len(c.Auth.JWTSecret) < minJWTSecretLength {
		return &infraconfig.ValidationError{
			Field:   "auth.jwt_secret",
			Message: fmt.Sprintf("must be at least %d characters", minJWTSecretLength),
		}
	}
	if err := infraconfig.ValidatePositive("app.history_limit", c.App.HistoryLimit); err != nil {
		return err
	}

	switch c.Notifications.Channel {
	case ChannelTelegram:
		if err := infraconfig.ValidateRequired("notifications.telegram.bot_token", c.Notifications.Telegram.BotToken); err != nil {
			return err
		}
	case ChannelRedis, ChannelLog:
	default:
		return &infraconfig.ValidationError{
			Field:   "notifications.channel",
			Message: fmt.Sprintf("unknown channel %q", c.Notifications.Channel),
		}
	}

	if c.UsesRedis() {
		if err := infraconfig.ValidateRequired("redis.address", c.Redis.Address); err != nil {
			return err
		}
	}
	if c.Scheduler.Enabled && c.Scheduler.MaxAgeHours < 0 {
		return errors.New("scheduler.max_age_hours must not be negative")
	}
	return nil
}

// Load reads the configuration at path, applies defaults and validates it.
func Load(path string) (*Config, error) {
	cfg, err := infraconfig.LoadWithDefaults(path, setDefaults)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	if validateErr := cfg.Validate(); validateErr != nil {
		return nil, fmt.Errorf("validate config: %w", validateErr)
	}
	return cfg, nil
}

// Path returns CONFIG_PATH or the default config file name.
func Path() string {
	return infraconfig.GetConfigPath(defaultConfigPath)
}

func setDefaults(cfg *Config) {
	if cfg.App.BaseURL == "" {
		cfg.App.BaseURL = defaultBaseURL
	}
	if cfg.App.HistoryLimit == 0 {
		cfg.App.HistoryLimit = defaultHistoryLimit
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = defaultHost
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = defaultPort
	}
	cfg.Database.SetDefaults()

	if cfg.Notifications.Channel == "" {
		cfg.Notifications.Channel = ChannelLog
	}
	if cfg.Notifications.RedisChannel == "" {
		cfg.Notifications.RedisChannel = events.NotificationChannel
	}
	if cfg.Notifications.DispatchTimeout == 0 {
		cfg.Notifications.DispatchTimeout = defaultDispatchTimeout
	}
	outbox := notify.DefaultOutboxWorkerConfig()
	if cfg.Notifications.Outbox.PollInterval == 0 {
		cfg.Notifications.Outbox.PollInterval = outbox.PollInterval
	}
	if cfg.Notifications.Outbox.GracePeriod == 0 {
		cfg.Notifications.Outbox.GracePeriod = outbox.GracePeriod
	}
	if cfg.Notifications.Outbox.BatchSize == 0 {
		cfg.Notifications.Outbox.BatchSize = outbox.BatchSize
	}

	if cfg.Shops.File == "" {
		cfg.Shops.File = defaultShopsFile
	}
	cfg.Scheduler.SetDefaults()
	cfg.Profiling.SetDefaults()
	cfg.Logging.SetDefaults()
}
