package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hitcastor/snapshotter/internal/alert"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "global", cfg.Region)
	assert.Equal(t, "3000", cfg.Port)
	assert.Equal(t, 36.0, cfg.MaxRetryHours)
	assert.Equal(t, 300000, cfg.InitialRetryDelayMS)
	assert.Equal(t, "s3", cfg.StoreBackend)
	assert.True(t, cfg.StoreObjectLock)
	assert.Equal(t, 30, cfg.StoreRetentionDays)
	assert.True(t, cfg.VerifyExisting)
	assert.Equal(t, "00:00", cfg.ScheduleUTC)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("REGION", "us")
	t.Setenv("PG_URL", "postgres://localhost/snapshots")
	t.Setenv("REDIS_URL", "redis://localhost:6379")
	t.Setenv("SPOTIFY_CHARTS_URL_TEMPLATE", "https://charts.example/${REGION}/${DATE}.csv")
	t.Setenv("OBJECT_STORE_BUCKET", "charts")
	t.Setenv("OBJECT_STORE_FORCE_PATH_STYLE", "true")
	t.Setenv("MAX_RETRY_HOURS", "12")
	t.Setenv("INITIAL_RETRY_DELAY_MS", "1000")
	t.Setenv("VERIFY_EXISTING", "false")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "us", cfg.Region)
	assert.Equal(t, "postgres://localhost/snapshots", cfg.PGURL)
	assert.Equal(t, "redis://localhost:6379", cfg.RedisURL)
	assert.Equal(t, "charts", cfg.StoreBucket)
	assert.True(t, cfg.StoreForcePathStyle)
	assert.Equal(t, 12.0, cfg.MaxRetryHours)
	assert.Equal(t, 1000, cfg.InitialRetryDelayMS)
	assert.False(t, cfg.VerifyExisting)

	require.NoError(t, cfg.Validate())
	require.NoError(t, cfg.ValidateServe())
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapshotter.yaml")
	require.NoError(t, os.WriteFile(path, []byte(
		"region: de\npg_url: postgres://filehost/snapshots\nmax_retry_hours: 6\n"), 0o644))

	// Environment overrides the file.
	t.Setenv("REGION", "fr")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "fr", cfg.Region)
	assert.Equal(t, "postgres://filehost/snapshots", cfg.PGURL)
	assert.Equal(t, 6.0, cfg.MaxRetryHours)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidateMissingRequired(t *testing.T) {
	base := func() *Config {
		return &Config{
			ChartsURLTemplate:   "https://charts.example/${REGION}/${DATE}.csv",
			PGURL:               "postgres://localhost/snapshots",
			StoreBackend:        "s3",
			StoreBucket:         "charts",
			MaxRetryHours:       36,
			InitialRetryDelayMS: 300000,
			ScheduleUTC:         "00:00",
		}
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing template", func(c *Config) { c.ChartsURLTemplate = "" }},
		{"missing pg url", func(c *Config) { c.PGURL = "" }},
		{"missing bucket", func(c *Config) { c.StoreBucket = "" }},
		{"bad backend", func(c *Config) { c.StoreBackend = "ftp" }},
		{"zero retry hours", func(c *Config) { c.MaxRetryHours = 0 }},
		{"zero delay", func(c *Config) { c.InitialRetryDelayMS = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}

	t.Run("valid", func(t *testing.T) {
		assert.NoError(t, base().Validate())
	})

	t.Run("fs backend needs no bucket", func(t *testing.T) {
		cfg := base()
		cfg.StoreBackend = "fs"
		cfg.StoreBucket = ""
		assert.NoError(t, cfg.Validate())
	})
}

func TestValidateServe(t *testing.T) {
	cfg := &Config{
		ChartsURLTemplate:   "https://charts.example/${REGION}/${DATE}.csv",
		PGURL:               "postgres://localhost/snapshots",
		StoreBackend:        "fs",
		MaxRetryHours:       36,
		InitialRetryDelayMS: 300000,
		ScheduleUTC:         "00:00",
	}

	assert.Error(t, cfg.ValidateServe(), "missing redis URL")

	cfg.RedisURL = "redis://localhost:6379"
	assert.NoError(t, cfg.ValidateServe())

	cfg.ScheduleUTC = "midnight"
	assert.Error(t, cfg.ValidateServe())
}

func TestAlerterAssembly(t *testing.T) {
	cfg := &Config{}
	assert.IsType(t, alert.Noop{}, cfg.Alerter(), "no channels configured")

	cfg.SlackWebhookURL = "https://hooks.slack.com/services/T/B/X"
	assert.IsType(t, &alert.Multi{}, cfg.Alerter())
}

func TestDerivedConfigs(t *testing.T) {
	cfg := &Config{
		ChartsURLTemplate:   "https://charts.example/${REGION}/${DATE}.csv",
		MaxRetryHours:       36,
		InitialRetryDelayMS: 300000,
		StoreBackend:        "s3",
		StoreEndpoint:       "http://minio:9000",
		StoreBucket:         "charts",
		StoreRegion:         "us-east-1",
		StoreObjectLock:     true,
		StoreRetentionDays:  30,
		IPFSEndpoint:        "https://ipfs.example",
		IPFSToken:           "secret",
	}

	fc := cfg.FetcherConfig()
	assert.Equal(t, cfg.ChartsURLTemplate, fc.URLTemplate)
	assert.Equal(t, 5*time.Minute, fc.InitialDelay)
	assert.Equal(t, 36.0, fc.MaxRetryHours)

	sc := cfg.StoreConfig()
	assert.Equal(t, "s3", sc.Backend)
	assert.Equal(t, "http://minio:9000", sc.Endpoint)
	assert.True(t, sc.ObjectLock)
	assert.Equal(t, 30, sc.RetentionDays)

	ac := cfg.AnchorConfig()
	assert.Equal(t, "https://ipfs.example", ac.Endpoint)
	assert.Equal(t, "secret", ac.Token)
	assert.True(t, ac.Enabled())
}
