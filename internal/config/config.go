// Package config loads harvester settings from .env, an optional YAML file
// and the environment.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/qepting91/reddit-link-harvester/internal/extract"
	"github.com/spf13/viper"
)

var (
	ErrUnknownMode   = errors.New("unknown collector mode")
	ErrInvalidConfig = errors.New("invalid configuration")
)

const (
	ModePublic = "public"
	ModeAPI    = "api"
	ModeMock   = "mock"
)

type Config struct {
	Database  DatabaseConfig  `mapstructure:"database"`
	Collector CollectorConfig `mapstructure:"collector"`
	Reddit    RedditConfig    `mapstructure:"reddit"`
	Scrape    ScrapeConfig    `mapstructure:"scrape"`
	Platform  PlatformConfig  `mapstructure:"platform"`
	Input     InputConfig     `mapstructure:"input"`
	Server    ServerConfig    `mapstructure:"server"`
	Schedule  ScheduleConfig  `mapstructure:"schedule"`
	Log       LogConfig       `mapstructure:"log"`
}

type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

type CollectorConfig struct {
	Mode      string `mapstructure:"mode"`
	BaseURL   string `mapstructure:"base_url"`
	UserAgent string `mapstructure:"user_agent"`
}

// RedditConfig holds the OAuth credentials used in api mode.
type RedditConfig struct {
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
	Username     string `mapstructure:"username"`
	Password     string `mapstructure:"password"`
}

type ScrapeConfig struct {
	PageSize          int           `mapstructure:"page_size"`
	MaxPages          int           `mapstructure:"max_pages"`
	PageDelay         time.Duration `mapstructure:"page_delay"`
	EndpointDelay     time.Duration `mapstructure:"endpoint_delay"`
	RateLimitCooldown time.Duration `mapstructure:"rate_limit_cooldown"`
	RequestTimeout    time.Duration `mapstructure:"request_timeout"`
	FirstRunLookback  time.Duration `mapstructure:"first_run_lookback"`
	Workers           int           `mapstructure:"workers"`
}

type PlatformConfig struct {
	Domains []string `mapstructure:"domains"`
}

type InputConfig struct {
	CommunitiesFile string `mapstructure:"communities_file"`
}

type ServerConfig struct {
	Port string `mapstructure:"port"`
}

type ScheduleConfig struct {
	Cron string `mapstructure:"cron"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("database.path", "data/harvester.db")
	v.SetDefault("collector.mode", ModePublic)
	v.SetDefault("collector.base_url", "https://www.reddit.com")
	v.SetDefault("collector.user_agent", "")
	v.SetDefault("reddit.client_id", "")
	v.SetDefault("reddit.client_secret", "")
	v.SetDefault("reddit.username", "")
	v.SetDefault("reddit.password", "")
	v.SetDefault("scrape.page_size", 100)
	v.SetDefault("scrape.max_pages", 10)
	v.SetDefault("scrape.page_delay", 2*time.Second)
	v.SetDefault("scrape.endpoint_delay", time.Second)
	v.SetDefault("scrape.rate_limit_cooldown", 60*time.Second)
	v.SetDefault("scrape.request_timeout", 15*time.Second)
	v.SetDefault("scrape.first_run_lookback", 24*time.Hour)
	v.SetDefault("scrape.workers", 1)
	v.SetDefault("platform.domains", extract.DefaultPlatformDomains)
	v.SetDefault("input.communities_file", "input/subreddits.csv")
	v.SetDefault("server.port", "8080")
	v.SetDefault("schedule.cron", "@daily")
	v.SetDefault("log.level", "info")
}

// Environment names kept from the original scraper deployment.
var envAliases = map[string]string{
	"server.port":          "PORT",
	"collector.mode":       "COLLECTOR_MODE",
	"collector.user_agent": "REDDIT_USER_AGENT",
	"reddit.client_id":     "REDDIT_CLIENT_ID",
	"reddit.client_secret": "REDDIT_CLIENT_SECRET",
	"reddit.username":      "REDDIT_USERNAME",
	"reddit.password":      "REDDIT_PASSWORD",
	"log.level":            "LOG_LEVEL",
}

// Load reads configuration. path names a YAML file; when empty, config.yaml
// in the working directory is used if present. Environment variables win
// over the file.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
	}
	v.SetConfigType("yaml")

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, env := range envAliases {
		if err := v.BindEnv(key, strings.ToUpper(strings.ReplaceAll(key, ".", "_")), env); err != nil {
			return nil, fmt.Errorf("bind %s: %w", env, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}
	cfg.Collector.Mode = strings.ToLower(strings.TrimSpace(cfg.Collector.Mode))
	return &cfg, nil
}

// Validate rejects settings the harvester cannot run with.
func (c *Config) Validate() error {
	switch c.Collector.Mode {
	case ModePublic:
		if strings.TrimSpace(c.Collector.UserAgent) == "" {
			return fmt.Errorf("%w: public mode needs a user agent (REDDIT_USER_AGENT)", ErrInvalidConfig)
		}
	case ModeAPI:
		r := c.Reddit
		if r.ClientID == "" || r.ClientSecret == "" || r.Username == "" || r.Password == "" {
			return fmt.Errorf("%w: api mode needs REDDIT_CLIENT_ID, REDDIT_CLIENT_SECRET, REDDIT_USERNAME and REDDIT_PASSWORD", ErrInvalidConfig)
		}
	case ModeMock:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownMode, c.Collector.Mode)
	}

	s := c.Scrape
	switch {
	case s.PageSize < 1 || s.PageSize > 100:
		return fmt.Errorf("%w: scrape.page_size must be within 1..100, got %d", ErrInvalidConfig, s.PageSize)
	case s.MaxPages < 1:
		return fmt.Errorf("%w: scrape.max_pages must be positive, got %d", ErrInvalidConfig, s.MaxPages)
	case s.Workers < 1:
		return fmt.Errorf("%w: scrape.workers must be positive, got %d", ErrInvalidConfig, s.Workers)
	case s.PageDelay < 0 || s.EndpointDelay < 0 || s.RateLimitCooldown < 0:
		return fmt.Errorf("%w: delays must not be negative", ErrInvalidConfig)
	case s.RequestTimeout <= 0 || s.FirstRunLookback <= 0:
		return fmt.Errorf("%w: scrape.request_timeout and scrape.first_run_lookback must be positive", ErrInvalidConfig)
	}

	if c.Database.Path == "" {
		return fmt.Errorf("%w: database.path is empty", ErrInvalidConfig)
	}
	if _, err := c.SlogLevel(); err != nil {
		return err
	}
	return nil
}

func (c *Config) SlogLevel() (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return slog.LevelInfo, fmt.Errorf("%w: log.level %q", ErrInvalidConfig, c.Log.Level)
	}
	return lvl, nil
}
