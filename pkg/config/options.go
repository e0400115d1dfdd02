// Package config provides functional options for unified configuration management
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/kart-io/relayhub/pkg/logger"
)

// Core Configuration Options

// WithBotToken sets the transport credential
func WithBotToken(token string) Option {
	return func(cfg *Config) error {
		cfg.BotToken = strings.TrimSpace(token)
		return nil
	}
}

// WithPrimaryDestination sets the destination that always receives deliveries
func WithPrimaryDestination(destination string) Option {
	return func(cfg *Config) error {
		cfg.PrimaryDestination = strings.TrimSpace(destination)
		return nil
	}
}

// WithTelegramAPI overrides the Telegram Bot API base URL
func WithTelegramAPI(baseURL string) Option {
	return func(cfg *Config) error {
		if baseURL == "" {
			return fmt.Errorf("telegram API URL cannot be empty")
		}
		cfg.TelegramAPIURL = strings.TrimRight(baseURL, "/")
		return nil
	}
}

// WithParseMode sets the formatting mode used for summary messages
func WithParseMode(mode string) Option {
	return func(cfg *Config) error {
		if mode != ParseModeMarkdown && mode != ParseModeNone {
			return fmt.Errorf("unsupported parse mode %q", mode)
		}
		cfg.ParseMode = mode
		return nil
	}
}

// WithTimeouts sets the per-call transport timeouts
func WithTimeouts(text, upload, maxUpload time.Duration) Option {
	return func(cfg *Config) error {
		if text <= 0 || upload <= 0 || maxUpload < upload {
			return fmt.Errorf("invalid timeouts: text=%s upload=%s max_upload=%s", text, upload, maxUpload)
		}
		cfg.TextTimeout = text
		cfg.UploadTimeout = upload
		cfg.MaxUploadTimeout = maxUpload
		return nil
	}
}

// WithPacing sets the delay inserted between consecutive destinations
func WithPacing(delay time.Duration) Option {
	return func(cfg *Config) error {
		if delay <= 0 {
			return fmt.Errorf("pacing delay must be positive")
		}
		cfg.PacingDelay = delay
		return nil
	}
}

// WithAttachmentLimits sets the deliverable size window for attachments
func WithAttachmentLimits(minBytes, maxBytes int) Option {
	return func(cfg *Config) error {
		if minBytes <= 0 || maxBytes <= 0 || minBytes > maxBytes {
			return fmt.Errorf("invalid attachment limits: min=%d max=%d", minBytes, maxBytes)
		}
		cfg.MinAttachmentBytes = minBytes
		cfg.MaxAttachmentBytes = maxBytes
		return nil
	}
}

// WithEnrichment configures the origin lookup service
func WithEnrichment(baseURL, token string, timeout time.Duration) Option {
	return func(cfg *Config) error {
		if timeout < 0 {
			return fmt.Errorf("enrichment timeout must be non-negative")
		}
		if baseURL != "" {
			cfg.Enrichment.BaseURL = strings.TrimRight(baseURL, "/")
		}
		cfg.Enrichment.Token = token
		cfg.Enrichment.Timeout = timeout
		return nil
	}
}

// WithRedis enables the origin lookup cache
func WithRedis(addr, password string, db int, ttl time.Duration) Option {
	return func(cfg *Config) error {
		if addr == "" {
			return fmt.Errorf("redis address cannot be empty")
		}
		cfg.Redis = &RedisConfig{Addr: addr, Password: password, DB: db, CacheTTL: ttl}
		return nil
	}
}

// WithTitle sets the heading line of every summary
func WithTitle(title string) Option {
	return func(cfg *Config) error {
		cfg.Title = title
		return nil
	}
}

// WithCountryCode sets the calling code prefixed to submitted mobile numbers
func WithCountryCode(code string) Option {
	return func(cfg *Config) error {
		cfg.CountryCode = strings.TrimLeft(strings.TrimSpace(code), "+")
		return nil
	}
}

// WithTimeZone sets the zone event times are rendered in
func WithTimeZone(name string) Option {
	return func(cfg *Config) error {
		loc, err := time.LoadLocation(name)
		if err != nil {
			return fmt.Errorf("load time zone %q: %w", name, err)
		}
		cfg.TimeZone = loc
		return nil
	}
}

// WithListenAddr sets the inbound HTTP listen address
func WithListenAddr(addr string) Option {
	return func(cfg *Config) error {
		cfg.ListenAddr = addr
		return nil
	}
}

// WithTelemetry configures OpenTelemetry export
func WithTelemetry(telemetryCfg TelemetryConfig) Option {
	return func(cfg *Config) error {
		cfg.Telemetry = telemetryCfg
		return nil
	}
}

// WithLogger sets a custom logger instance
func WithLogger(l logger.Logger) Option {
	return func(cfg *Config) error {
		cfg.LoggerInstance = l
		return nil
	}
}

// WithLogLevel sets the level of the default logger
func WithLogLevel(level string) Option {
	return func(cfg *Config) error {
		cfg.Logger.Level = level
		return nil
	}
}

// Environment Variable Options

// WithEnvDefaults loads configuration from environment variables. The three
// unprefixed names are the ones existing deployments already set.
func WithEnvDefaults() Option {
	return func(cfg *Config) error {
		if token := os.Getenv("BOT_TOKEN"); token != "" {
			cfg.BotToken = strings.TrimSpace(token)
		}
		if chatID := os.Getenv("MAIN_CHAT_ID"); chatID != "" {
			cfg.PrimaryDestination = strings.TrimSpace(chatID)
		}
		if token := os.Getenv("IPINFO_TOKEN"); token != "" {
			cfg.Enrichment.Token = token
		}

		if addr := os.Getenv("RELAY_LISTEN_ADDR"); addr != "" {
			cfg.ListenAddr = addr
		}
		if api := os.Getenv("RELAY_TELEGRAM_API"); api != "" {
			cfg.TelegramAPIURL = strings.TrimRight(api, "/")
		}
		if d, ok := envDuration("RELAY_PACING"); ok {
			cfg.PacingDelay = d
		}
		if n, ok := envInt("RELAY_MIN_ATTACHMENT_BYTES"); ok {
			cfg.MinAttachmentBytes = n
		}
		if n, ok := envInt("RELAY_MAX_ATTACHMENT_BYTES"); ok {
			cfg.MaxAttachmentBytes = n
		}
		if title := os.Getenv("RELAY_TITLE"); title != "" {
			cfg.Title = title
		}
		if code := os.Getenv("RELAY_COUNTRY_CODE"); code != "" {
			cfg.CountryCode = strings.TrimLeft(code, "+")
		}
		if tz := os.Getenv("RELAY_TIMEZONE"); tz != "" {
			loc, err := time.LoadLocation(tz)
			if err != nil {
				return fmt.Errorf("RELAY_TIMEZONE: %w", err)
			}
			cfg.TimeZone = loc
		}

		if addr := os.Getenv("RELAY_REDIS_ADDR"); addr != "" {
			redisCfg := &RedisConfig{Addr: addr, Password: os.Getenv("RELAY_REDIS_PASSWORD")}
			if db, ok := envInt("RELAY_REDIS_DB"); ok {
				redisCfg.DB = db
			}
			if ttl, ok := envDuration("RELAY_ORIGIN_CACHE_TTL"); ok {
				redisCfg.CacheTTL = ttl
			}
			cfg.Redis = redisCfg
		}

		if endpoint := os.Getenv("RELAY_OTLP_ENDPOINT"); endpoint != "" {
			cfg.Telemetry.OTLPEndpoint = endpoint
		}
		if tracing := os.Getenv("RELAY_TRACING_ENABLED"); tracing == "true" {
			cfg.Telemetry.Enabled = true
		}
		if level := os.Getenv("RELAY_LOG_LEVEL"); level != "" {
			cfg.Logger.Level = level
		}

		return nil
	}
}

func envInt(key string) (int, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

func envDuration(key string) (time.Duration, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, false
	}
	return d, true
}

// Utility Options

// WithDefaults applies sensible default configurations
func WithDefaults() Option {
	return func(cfg *Config) error {
		defaults := []Option{
			WithParseMode(ParseModeMarkdown),
			WithTimeouts(10*time.Second, 15*time.Second, 30*time.Second),
			WithPacing(500 * time.Millisecond),
			WithAttachmentLimits(DefaultMinAttachmentBytes, DefaultMaxAttachmentBytes),
			WithEnrichment("https://ipinfo.io", cfg.Enrichment.Token, 4*time.Second),
		}

		for _, opt := range defaults {
			if err := opt(cfg); err != nil {
				return err
			}
		}

		return nil
	}
}

// WithTestDefaults provides safe defaults for testing
func WithTestDefaults() Option {
	return func(cfg *Config) error {
		testDefaults := []Option{
			WithBotToken("test-token"),
			WithPrimaryDestination("D1"),
			WithTimeouts(time.Second, time.Second, 2*time.Second),
			WithPacing(time.Millisecond),
			WithLogger(logger.Discard),
		}

		for _, opt := range testDefaults {
			if err := opt(cfg); err != nil {
				return err
			}
		}

		return nil
	}
}
