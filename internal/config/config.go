// Package config loads and validates app config from env and an optional .env file using Viper.
package config

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Link store drivers.
const (
	DriverFile     = "file"
	DriverPostgres = "postgres"
)

// Chat platforms providing the external identity.
const (
	PlatformTelegram = "telegram"
	PlatformDiscord  = "discord"
	PlatformNone     = "none"
)

// MinAPIKeyLength is the length below which the API key is reported as weak.
const MinAPIKeyLength = 32

// DefaultKickMessage is shown to unlinked players. Placeholders: %code%, %bot_username%, %minutes%.
const DefaultKickMessage = "This server requires a linked chat account.\n" +
	"Send /link %code% to @%bot_username% within %minutes% minutes, then reconnect."

var placeholderKeys = map[string]struct{}{
	"changeme":                 {},
	"change-me":                {},
	"your-api-key":             {},
	"your-secret-api-key-here": {},
}

// Config holds application configuration loaded from the environment.
type Config struct {
	// HTTPAddr is the address of the HTTP control plane (e.g. :8080).
	HTTPAddr string `mapstructure:"HTTP_ADDR"`
	// GRPCAddr is the address of the gRPC health endpoint; empty disables it.
	GRPCAddr string `mapstructure:"GRPC_ADDR"`
	// Env is the application environment (e.g. "development", "production").
	Env string `mapstructure:"APP_ENV"`
	// Version is reported by the health endpoint and the Server header.
	Version string `mapstructure:"APP_VERSION"`
	LogLevel  string `mapstructure:"LOG_LEVEL"`
	LogFormat string `mapstructure:"LOG_FORMAT"`

	// LinkStoreDriver selects persistence: "file" (default) or "postgres".
	LinkStoreDriver string `mapstructure:"LINK_STORE_DRIVER"`
	// LinksFile is the links document path for the file driver; .yaml/.yml selects YAML.
	LinksFile string `mapstructure:"LINKS_FILE"`
	// DatabaseURL is the Postgres DSN for the postgres driver and the audit log.
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	// DBAutoMigrate applies embedded migrations at server start.
	DBAutoMigrate bool `mapstructure:"DB_AUTO_MIGRATE"`

	CodeLength      int    `mapstructure:"CODE_LENGTH"`
	CodeTTL         string `mapstructure:"CODE_TTL"`
	CodeMaxPending  int    `mapstructure:"CODE_MAX_PENDING"`
	CodeMaxAttempts int    `mapstructure:"CODE_MAX_ATTEMPTS"`
	SweepInterval   string `mapstructure:"SWEEP_INTERVAL"`

	// APIKey is the bearer key for the HTTP control plane. Required when APP_ENV=production.
	APIKey            string `mapstructure:"API_KEY"`
	RateLimitRequests int    `mapstructure:"RATE_LIMIT_REQUESTS"`
	RateLimitWindow   string `mapstructure:"RATE_LIMIT_WINDOW"`
	// HTTPBodyLimit caps request bodies in bytes.
	HTTPBodyLimit int `mapstructure:"HTTP_BODY_LIMIT"`
	// TrustProxyHeaders keys the rate limiter on X-Forwarded-For / X-Real-IP when set.
	TrustProxyHeaders bool `mapstructure:"TRUST_PROXY_HEADERS"`

	// ChatPlatform is telegram, discord or none. Only one platform feeds the external id namespace.
	ChatPlatform        string `mapstructure:"CHAT_PLATFORM"`
	TelegramBotToken    string `mapstructure:"TELEGRAM_BOT_TOKEN"`
	TelegramBotUsername string `mapstructure:"TELEGRAM_BOT_USERNAME"`
	TelegramAPIURL      string `mapstructure:"TELEGRAM_API_URL"`
	TelegramPollTimeout string `mapstructure:"TELEGRAM_POLL_TIMEOUT"`
	DiscordBotToken     string `mapstructure:"DISCORD_BOT_TOKEN"`

	// CheckOnJoin denies unlinked accounts at the join hook; false allows everyone.
	CheckOnJoin bool   `mapstructure:"CHECK_ON_JOIN"`
	KickMessage string `mapstructure:"KICK_MESSAGE"`

	OTelEndpoint    string `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	OTelInsecure    bool   `mapstructure:"OTEL_EXPORTER_OTLP_INSECURE"`
	OTelServiceName string `mapstructure:"OTEL_SERVICE_NAME"`

	ShutdownTimeout string `mapstructure:"SHUTDOWN_TIMEOUT"`
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored (e.g. in CI). Env vars override .env.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("GRPC_ADDR", ":9090")
	v.SetDefault("APP_ENV", "")
	v.SetDefault("APP_VERSION", "dev")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")
	v.SetDefault("LINK_STORE_DRIVER", DriverFile)
	v.SetDefault("LINKS_FILE", "data/links.json")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("DB_AUTO_MIGRATE", false)
	v.SetDefault("CODE_LENGTH", 8)
	v.SetDefault("CODE_TTL", "10m")
	v.SetDefault("CODE_MAX_PENDING", 10000)
	v.SetDefault("CODE_MAX_ATTEMPTS", 100)
	v.SetDefault("SWEEP_INTERVAL", "30s")
	v.SetDefault("API_KEY", "")
	v.SetDefault("RATE_LIMIT_REQUESTS", 60)
	v.SetDefault("RATE_LIMIT_WINDOW", "1m")
	v.SetDefault("HTTP_BODY_LIMIT", 1024)
	v.SetDefault("TRUST_PROXY_HEADERS", true)
	v.SetDefault("CHAT_PLATFORM", PlatformTelegram)
	v.SetDefault("TELEGRAM_BOT_TOKEN", "")
	v.SetDefault("TELEGRAM_BOT_USERNAME", "")
	v.SetDefault("TELEGRAM_API_URL", "https://api.telegram.org")
	v.SetDefault("TELEGRAM_POLL_TIMEOUT", "30s")
	v.SetDefault("DISCORD_BOT_TOKEN", "")
	v.SetDefault("CHECK_ON_JOIN", true)
	v.SetDefault("KICK_MESSAGE", DefaultKickMessage)
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_INSECURE", false)
	v.SetDefault("OTEL_SERVICE_NAME", "linkgate")
	v.SetDefault("SHUTDOWN_TIMEOUT", "10s")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.HTTPAddr == "" {
		return errors.New("config: HTTP_ADDR must be set")
	}
	switch c.LinkStoreDriver {
	case DriverFile:
		if strings.TrimSpace(c.LinksFile) == "" {
			return errors.New("config: LINKS_FILE must be set when LINK_STORE_DRIVER=file")
		}
	case DriverPostgres:
		if c.DatabaseURL == "" {
			return errors.New("config: DATABASE_URL must be set when LINK_STORE_DRIVER=postgres")
		}
	default:
		return errors.New("config: LINK_STORE_DRIVER must be file or postgres")
	}
	if c.CodeLength < 4 || c.CodeLength > 32 {
		return errors.New("config: CODE_LENGTH must be between 4 and 32")
	}
	if c.CodeMaxPending <= 0 {
		return errors.New("config: CODE_MAX_PENDING must be positive")
	}
	if c.CodeMaxAttempts <= 0 {
		return errors.New("config: CODE_MAX_ATTEMPTS must be positive")
	}
	if c.RateLimitRequests <= 0 {
		return errors.New("config: RATE_LIMIT_REQUESTS must be positive")
	}
	if c.HTTPBodyLimit <= 0 {
		return errors.New("config: HTTP_BODY_LIMIT must be positive")
	}
	switch c.ChatPlatform {
	case PlatformTelegram, PlatformDiscord, PlatformNone:
	default:
		return errors.New("config: CHAT_PLATFORM must be telegram, discord or none")
	}
	switch strings.ToLower(c.LogLevel) {
	case "trace", "debug", "info", "warn", "error":
	default:
		return errors.New("config: LOG_LEVEL must be one of trace, debug, info, warn, error")
	}
	if c.LogFormat != "json" && c.LogFormat != "console" {
		return errors.New("config: LOG_FORMAT must be json or console")
	}
	if c.IsProduction() && !c.hasAPIKey() {
		return errors.New("config: API_KEY must be set when APP_ENV=production")
	}
	return nil
}

// IsProduction reports whether APP_ENV is production.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
}

func (c *Config) hasAPIKey() bool {
	k := strings.TrimSpace(c.APIKey)
	if k == "" {
		return false
	}
	_, placeholder := placeholderKeys[strings.ToLower(k)]
	return !placeholder
}

// EnsureAPIKey generates a random 64-character key when API_KEY is empty or a placeholder.
// It reports whether a key was generated.
func (c *Config) EnsureAPIKey() (bool, error) {
	if c.hasAPIKey() {
		return false, nil
	}
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return false, err
	}
	c.APIKey = hex.EncodeToString(b)
	return true, nil
}

// APIKeyIsWeak reports whether the API key is shorter than MinAPIKeyLength.
func (c *Config) APIKeyIsWeak() bool {
	return len(c.APIKey) < MinAPIKeyLength
}

// TelegramEnabled reports whether the Telegram bot should run.
func (c *Config) TelegramEnabled() bool {
	return c.ChatPlatform == PlatformTelegram && c.TelegramBotToken != ""
}

// DiscordEnabled reports whether the Discord bot should run.
func (c *Config) DiscordEnabled() bool {
	return c.ChatPlatform == PlatformDiscord && c.DiscordBotToken != ""
}

// CodeTTLDuration parses CodeTTL. Returns 10m if unset or invalid.
func (c *Config) CodeTTLDuration() time.Duration {
	return parseDuration(c.CodeTTL, 10*time.Minute)
}

// SweepIntervalDuration parses SweepInterval. Returns 30s if unset or invalid.
func (c *Config) SweepIntervalDuration() time.Duration {
	return parseDuration(c.SweepInterval, 30*time.Second)
}

// RateLimitWindowDuration parses RateLimitWindow. Returns 1m if unset or invalid.
func (c *Config) RateLimitWindowDuration() time.Duration {
	return parseDuration(c.RateLimitWindow, time.Minute)
}

// TelegramPollTimeoutDuration parses TelegramPollTimeout. Returns 30s if unset or invalid.
func (c *Config) TelegramPollTimeoutDuration() time.Duration {
	return parseDuration(c.TelegramPollTimeout, 30*time.Second)
}

// ShutdownTimeoutDuration parses ShutdownTimeout. Returns 10s if unset or invalid.
func (c *Config) ShutdownTimeoutDuration() time.Duration {
	return parseDuration(c.ShutdownTimeout, 10*time.Second)
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
