// Package config loads the snapshotter runtime configuration from the
// environment.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/hitcastor/snapshotter/internal/alert"
	"github.com/hitcastor/snapshotter/internal/anchor"
	"github.com/hitcastor/snapshotter/internal/chart"
	"github.com/hitcastor/snapshotter/internal/store"
)

// Config is the full runtime configuration. Every field maps to one
// environment variable.
type Config struct {
	Region string `mapstructure:"region"`
	Port   string `mapstructure:"port"`

	PGURL    string `mapstructure:"pg_url"`
	RedisURL string `mapstructure:"redis_url"`

	ChartsURLTemplate   string  `mapstructure:"spotify_charts_url_template"`
	MaxRetryHours       float64 `mapstructure:"max_retry_hours"`
	InitialRetryDelayMS int     `mapstructure:"initial_retry_delay_ms"`

	StoreBackend        string `mapstructure:"object_store_backend"`
	StoreEndpoint       string `mapstructure:"object_store_endpoint"`
	StoreBucket         string `mapstructure:"object_store_bucket"`
	StoreRegion         string `mapstructure:"object_store_region"`
	StoreAccessKey      string `mapstructure:"object_store_access_key"`
	StoreSecretKey      string `mapstructure:"object_store_secret_key"`
	StoreForcePathStyle bool   `mapstructure:"object_store_force_path_style"`
	StoreObjectLock     bool   `mapstructure:"object_store_object_lock"`
	StoreRetentionDays  int    `mapstructure:"object_store_retention_days"`
	FSStorePath         string `mapstructure:"fs_store_path"`

	IPFSEndpoint string `mapstructure:"ipfs_endpoint"`
	IPFSToken    string `mapstructure:"ipfs_token"`

	SlackWebhookURL  string `mapstructure:"slack_webhook_url"`
	AlertWebhookURLs string `mapstructure:"alert_webhook_urls"`
	SendgridAPIKey   string `mapstructure:"sendgrid_api_key"`
	AlertEmailFrom   string `mapstructure:"alert_email_from"`
	AlertEmailTo     string `mapstructure:"alert_email_to"`

	VerifyExisting bool   `mapstructure:"verify_existing"`
	ScheduleUTC    string `mapstructure:"snapshot_schedule_utc"`
}

var envKeys = []string{
	"region", "port",
	"pg_url", "redis_url",
	"spotify_charts_url_template", "max_retry_hours", "initial_retry_delay_ms",
	"object_store_backend", "object_store_endpoint", "object_store_bucket",
	"object_store_region", "object_store_access_key", "object_store_secret_key",
	"object_store_force_path_style", "object_store_object_lock",
	"object_store_retention_days", "fs_store_path",
	"ipfs_endpoint", "ipfs_token",
	"slack_webhook_url", "alert_webhook_urls",
	"sendgrid_api_key", "alert_email_from", "alert_email_to",
	"verify_existing", "snapshot_schedule_utc",
}

// Load reads the configuration from the environment and applies defaults.
// A non-empty file path layers a YAML config underneath the environment:
// env vars always win.
func Load(file string) (*Config, error) {
	v := viper.New()
	v.AutomaticEnv()
	for _, key := range envKeys {
		v.BindEnv(key)
	}
	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", file, err)
		}
	}

	v.SetDefault("region", "global")
	v.SetDefault("port", "3000")
	v.SetDefault("max_retry_hours", 36.0)
	v.SetDefault("initial_retry_delay_ms", 300000)
	v.SetDefault("object_store_backend", "s3")
	v.SetDefault("object_store_region", "us-east-1")
	v.SetDefault("object_store_object_lock", true)
	v.SetDefault("object_store_retention_days", 30)
	v.SetDefault("fs_store_path", "~/.hitcastor/snapshots")
	v.SetDefault("verify_existing", true)
	v.SetDefault("snapshot_schedule_utc", "00:00")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error parsing environment: %w", err)
	}
	return &cfg, nil
}

// Validate checks the settings every pipeline invocation needs.
func (c *Config) Validate() error {
	if c.ChartsURLTemplate == "" {
		return fmt.Errorf("SPOTIFY_CHARTS_URL_TEMPLATE is required")
	}
	if c.PGURL == "" {
		return fmt.Errorf("PG_URL is required")
	}
	switch c.StoreBackend {
	case "s3", "gcs":
		if c.StoreBucket == "" {
			return fmt.Errorf("OBJECT_STORE_BUCKET is required for the %s backend", c.StoreBackend)
		}
	case "fs":
	default:
		return fmt.Errorf("unsupported OBJECT_STORE_BACKEND %q", c.StoreBackend)
	}
	if c.MaxRetryHours <= 0 {
		return fmt.Errorf("MAX_RETRY_HOURS must be positive")
	}
	if c.InitialRetryDelayMS <= 0 {
		return fmt.Errorf("INITIAL_RETRY_DELAY_MS must be positive")
	}
	return nil
}

// ValidateServe additionally checks the settings the long-running service
// needs.
func (c *Config) ValidateServe() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.RedisURL == "" {
		return fmt.Errorf("REDIS_URL is required in serve mode")
	}
	if _, err := time.Parse("15:04", c.ScheduleUTC); err != nil {
		return fmt.Errorf("SNAPSHOT_SCHEDULE_UTC must be HH:MM, got %q", c.ScheduleUTC)
	}
	return nil
}

// FetcherConfig derives the chart fetcher settings.
func (c *Config) FetcherConfig() chart.FetcherConfig {
	return chart.FetcherConfig{
		URLTemplate:   c.ChartsURLTemplate,
		InitialDelay:  time.Duration(c.InitialRetryDelayMS) * time.Millisecond,
		MaxRetryHours: c.MaxRetryHours,
	}
}

// StoreConfig derives the object store settings.
func (c *Config) StoreConfig() store.Config {
	return store.Config{
		Backend:        c.StoreBackend,
		Endpoint:       c.StoreEndpoint,
		Bucket:         c.StoreBucket,
		Region:         c.StoreRegion,
		AccessKey:      c.StoreAccessKey,
		SecretKey:      c.StoreSecretKey,
		ForcePathStyle: c.StoreForcePathStyle,
		ObjectLock:     c.StoreObjectLock,
		RetentionDays:  c.StoreRetentionDays,
		LocalPath:      c.FSStorePath,
	}
}

// Alerter assembles the alert fan-out from whichever channels are
// configured. Returns a no-op alerter when none are.
func (c *Config) Alerter() alert.Alerter {
	var channels []alert.Alerter
	if c.SlackWebhookURL != "" {
		channels = append(channels, alert.NewSlackWebhook(c.SlackWebhookURL))
	}
	if c.AlertWebhookURLs != "" {
		channels = append(channels, alert.NewWebhook(splitList(c.AlertWebhookURLs)))
	}
	if c.SendgridAPIKey != "" && c.AlertEmailFrom != "" && c.AlertEmailTo != "" {
		channels = append(channels, alert.NewEmail(c.SendgridAPIKey, c.AlertEmailFrom, splitList(c.AlertEmailTo)))
	}
	if len(channels) == 0 {
		return alert.Noop{}
	}
	return alert.NewMulti(channels...)
}

// AnchorConfig derives the IPFS anchoring settings.
func (c *Config) AnchorConfig() anchor.Config {
	return anchor.Config{
		Endpoint: c.IPFSEndpoint,
		Token:    c.IPFSToken,
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
