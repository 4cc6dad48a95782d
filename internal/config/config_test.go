package config_test

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/qepting91/reddit-link-harvester/internal/config"
	"github.com/qepting91/reddit-link-harvester/internal/extract"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)

	assert.Equal(t, "data/harvester.db", cfg.Database.Path)
	assert.Equal(t, config.ModePublic, cfg.Collector.Mode)
	assert.Equal(t, "https://www.reddit.com", cfg.Collector.BaseURL)
	assert.Equal(t, 100, cfg.Scrape.PageSize)
	assert.Equal(t, 10, cfg.Scrape.MaxPages)
	assert.Equal(t, 2*time.Second, cfg.Scrape.PageDelay)
	assert.Equal(t, time.Second, cfg.Scrape.EndpointDelay)
	assert.Equal(t, time.Minute, cfg.Scrape.RateLimitCooldown)
	assert.Equal(t, 15*time.Second, cfg.Scrape.RequestTimeout)
	assert.Equal(t, 24*time.Hour, cfg.Scrape.FirstRunLookback)
	assert.Equal(t, 1, cfg.Scrape.Workers)
	assert.Equal(t, extract.DefaultPlatformDomains, cfg.Platform.Domains)
	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "@daily", cfg.Schedule.Cron)
}

func TestLoadEnvironmentAliases(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("COLLECTOR_MODE", "API")
	t.Setenv("REDDIT_USER_AGENT", "link-harvester/1.0")
	t.Setenv("REDDIT_CLIENT_ID", "id")
	t.Setenv("SCRAPE_WORKERS", "4")
	t.Setenv("SCRAPE_PAGE_DELAY", "500ms")

	cfg, err := config.Load("")
	require.NoError(t, err)
	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, config.ModeAPI, cfg.Collector.Mode)
	assert.Equal(t, "link-harvester/1.0", cfg.Collector.UserAgent)
	assert.Equal(t, "id", cfg.Reddit.ClientID)
	assert.Equal(t, 4, cfg.Scrape.Workers)
	assert.Equal(t, 500*time.Millisecond, cfg.Scrape.PageDelay)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "harvester.yaml")
	yaml := `
database:
  path: /var/lib/harvester/links.db
collector:
  mode: mock
scrape:
  max_pages: 3
  first_run_lookback: 48h
schedule:
  cron: "0 6 * * *"
log:
  level: debug
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/harvester/links.db", cfg.Database.Path)
	assert.Equal(t, config.ModeMock, cfg.Collector.Mode)
	assert.Equal(t, 3, cfg.Scrape.MaxPages)
	assert.Equal(t, 48*time.Hour, cfg.Scrape.FirstRunLookback)
	assert.Equal(t, "0 6 * * *", cfg.Schedule.Cron)
	require.NoError(t, cfg.Validate())

	lvl, err := cfg.SlogLevel()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, lvl)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() *config.Config {
		cfg, err := config.Load("")
		require.NoError(t, err)
		cfg.Collector.UserAgent = "link-harvester/1.0"
		return cfg
	}

	require.NoError(t, valid().Validate())

	tests := []struct {
		name   string
		mutate func(c *config.Config)
		target error
	}{
		{"unknown mode", func(c *config.Config) { c.Collector.Mode = "scrapy" }, config.ErrUnknownMode},
		{"public without user agent", func(c *config.Config) { c.Collector.UserAgent = " " }, config.ErrInvalidConfig},
		{"api without credentials", func(c *config.Config) { c.Collector.Mode = config.ModeAPI }, config.ErrInvalidConfig},
		{"page size too big", func(c *config.Config) { c.Scrape.PageSize = 250 }, config.ErrInvalidConfig},
		{"no pages", func(c *config.Config) { c.Scrape.MaxPages = 0 }, config.ErrInvalidConfig},
		{"no workers", func(c *config.Config) { c.Scrape.Workers = 0 }, config.ErrInvalidConfig},
		{"negative delay", func(c *config.Config) { c.Scrape.PageDelay = -time.Second }, config.ErrInvalidConfig},
		{"bad log level", func(c *config.Config) { c.Log.Level = "loud" }, config.ErrInvalidConfig},
		{"empty database path", func(c *config.Config) { c.Database.Path = "" }, config.ErrInvalidConfig},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			assert.ErrorIs(t, cfg.Validate(), tt.target)
		})
	}
}
