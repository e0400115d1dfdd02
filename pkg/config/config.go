// Package config provides configuration management for relayhub.
//
// Configuration is assembled once at process start with functional options
// and passed explicitly into the relay pipeline; nothing below cmd/ reads the
// process environment.
package config

import (
	"fmt"
	"strings"
	"time"

	relayerrors "github.com/kart-io/relayhub/pkg/errors"
	"github.com/kart-io/relayhub/pkg/logger"
)

// Attachment size bounds. Telegram rejects photo uploads above 10 MB.
const (
	DefaultMinAttachmentBytes = 10 * 1024
	DefaultMaxAttachmentBytes = 10 * 1024 * 1024
)

// Summary formatting modes. ParseModeNone sends plain text.
const (
	ParseModeMarkdown = "Markdown"
	ParseModeNone     = "none"
)

// Config represents the main configuration for relayhub
type Config struct {
	// Transport
	BotToken           string        `json:"-" yaml:"-"`
	PrimaryDestination string        `json:"primary_destination" yaml:"primary_destination"`
	TelegramAPIURL     string        `json:"telegram_api_url" yaml:"telegram_api_url"`
	ParseMode          string        `json:"parse_mode" yaml:"parse_mode"`
	TextTimeout        time.Duration `json:"text_timeout" yaml:"text_timeout"`
	UploadTimeout      time.Duration `json:"upload_timeout" yaml:"upload_timeout"`
	MaxUploadTimeout   time.Duration `json:"max_upload_timeout" yaml:"max_upload_timeout"`

	// Delivery
	PacingDelay        time.Duration `json:"pacing_delay" yaml:"pacing_delay"`
	MinAttachmentBytes int           `json:"min_attachment_bytes" yaml:"min_attachment_bytes"`
	MaxAttachmentBytes int           `json:"max_attachment_bytes" yaml:"max_attachment_bytes"`

	// Enrichment
	Enrichment EnrichmentConfig `json:"enrichment" yaml:"enrichment"`
	Redis      *RedisConfig     `json:"redis,omitempty" yaml:"redis,omitempty"`

	// Formatting
	Title       string         `json:"title" yaml:"title"`
	CountryCode string         `json:"country_code" yaml:"country_code"`
	TimeZone    *time.Location `json:"-" yaml:"-"`

	// Inbound HTTP
	ListenAddr   string `json:"listen_addr" yaml:"listen_addr"`
	MaxBodyBytes int64  `json:"max_body_bytes" yaml:"max_body_bytes"`

	Telemetry TelemetryConfig `json:"telemetry" yaml:"telemetry"`
	Logger    LoggerConfig    `json:"logger" yaml:"logger"`

	// Runtime logger instance (not serialized)
	LoggerInstance logger.Logger `json:"-" yaml:"-"`
}

// Option represents a functional configuration option
type Option func(*Config) error

// EnrichmentConfig configures the origin lookup service
type EnrichmentConfig struct {
	BaseURL string        `json:"base_url" yaml:"base_url"`
	Token   string        `json:"-" yaml:"-"`
	Timeout time.Duration `json:"timeout" yaml:"timeout"`
}

// Enabled reports whether an origin lookup should be attempted at all.
func (e EnrichmentConfig) Enabled() bool {
	return e.Token != "" && e.BaseURL != ""
}

// RedisConfig configures the optional origin lookup cache
type RedisConfig struct {
	Addr     string        `json:"addr" yaml:"addr"`
	Password string        `json:"-" yaml:"-"`
	DB       int           `json:"db" yaml:"db"`
	CacheTTL time.Duration `json:"cache_ttl" yaml:"cache_ttl"`
}

// TelemetryConfig configures OpenTelemetry tracing and metrics
type TelemetryConfig struct {
	Enabled        bool    `json:"enabled" yaml:"enabled"`
	ServiceName    string  `json:"service_name" yaml:"service_name"`
	ServiceVersion string  `json:"service_version" yaml:"service_version"`
	Environment    string  `json:"environment" yaml:"environment"`
	OTLPEndpoint   string  `json:"otlp_endpoint" yaml:"otlp_endpoint"`
	SampleRate     float64 `json:"sample_rate" yaml:"sample_rate"`
}

// LoggerConfig represents logger configuration
type LoggerConfig struct {
	Level string `json:"level" yaml:"level"`
}

// New creates a configuration from the given options. Validation of
// required values is deferred to Validate so that a partially configured
// process can still start and report the problem per request.
func New(opts ...Option) (*Config, error) {
	cfg := &Config{}
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, fmt.Errorf("apply config option: %w", err)
		}
	}
	cfg.fillDefaults()
	return cfg, nil
}

// fillDefaults sets zero values that have a sensible default. Options
// applied explicitly always win.
func (c *Config) fillDefaults() {
	if c.TelegramAPIURL == "" {
		c.TelegramAPIURL = "https://api.telegram.org"
	}
	if c.ParseMode == "" {
		c.ParseMode = ParseModeMarkdown
	}
	if c.TextTimeout <= 0 {
		c.TextTimeout = 10 * time.Second
	}
	if c.UploadTimeout <= 0 {
		c.UploadTimeout = 15 * time.Second
	}
	if c.MaxUploadTimeout < c.UploadTimeout {
		c.MaxUploadTimeout = 30 * time.Second
		if c.MaxUploadTimeout < c.UploadTimeout {
			c.MaxUploadTimeout = c.UploadTimeout
		}
	}
	if c.PacingDelay <= 0 {
		c.PacingDelay = 500 * time.Millisecond
	}
	if c.MinAttachmentBytes <= 0 {
		c.MinAttachmentBytes = DefaultMinAttachmentBytes
	}
	if c.MaxAttachmentBytes <= 0 {
		c.MaxAttachmentBytes = DefaultMaxAttachmentBytes
	}
	if c.Enrichment.BaseURL == "" {
		c.Enrichment.BaseURL = "https://ipinfo.io"
	}
	if c.Enrichment.Timeout <= 0 {
		c.Enrichment.Timeout = 4 * time.Second
	}
	if c.Title == "" {
		c.Title = "New submission received"
	}
	if c.TimeZone == nil {
		c.TimeZone = time.FixedZone("IST", 5*60*60+30*60)
	}
	if c.ListenAddr == "" {
		c.ListenAddr = ":8080"
	}
	if c.MaxBodyBytes <= 0 {
		// A 10 MiB image is ~13.4 MiB once base64 encoded.
		c.MaxBodyBytes = 20 << 20
	}
	if c.Telemetry.ServiceName == "" {
		c.Telemetry.ServiceName = "relayhub"
	}
	if c.Telemetry.SampleRate <= 0 {
		c.Telemetry.SampleRate = 1.0
	}
	if c.Redis != nil && c.Redis.CacheTTL <= 0 {
		c.Redis.CacheTTL = time.Hour
	}
	if c.LoggerInstance == nil {
		c.LoggerInstance = logger.New().LogMode(logger.ParseLevel(c.Logger.Level))
	}
}

// Validate checks the values the pipeline cannot run without.
func (c *Config) Validate() error {
	var missing []string
	if strings.TrimSpace(c.BotToken) == "" {
		missing = append(missing, "bot token")
	}
	if strings.TrimSpace(c.PrimaryDestination) == "" {
		missing = append(missing, "primary destination")
	}
	if len(missing) > 0 {
		return relayerrors.New(relayerrors.ErrConfigurationMissing, "server configuration missing").
			WithDetails(strings.Join(missing, ", ") + " not set")
	}

	if c.MinAttachmentBytes > c.MaxAttachmentBytes {
		return relayerrors.New(relayerrors.ErrInvalidConfig, "invalid attachment limits").
			WithDetails(fmt.Sprintf("min %d exceeds max %d", c.MinAttachmentBytes, c.MaxAttachmentBytes))
	}
	return nil
}
