package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// DefaultPath is read when CONFIG_PATH is unset.
const DefaultPath = "configs/config.yaml"

// Config holds all application configuration.
type Config struct {
	Server struct {
		Addr         string  `yaml:"addr" env:"STREAKSTAKE_ADDR"`
		RateLimitRPS float64 `yaml:"rate_limit_rps" env:"STREAKSTAKE_RATE_LIMIT_RPS"`
		RateBurst    int     `yaml:"rate_burst" env:"STREAKSTAKE_RATE_BURST"`
		AdminToken   string  `yaml:"admin_token" env:"STREAKSTAKE_ADMIN_TOKEN"`
	} `yaml:"server"`
	Database struct {
		Driver string `yaml:"driver" env:"STREAKSTAKE_DB_DRIVER"`
		DSN    string `yaml:"dsn" env:"STREAKSTAKE_DB_DSN"`
	} `yaml:"database"`
	Schedule struct {
		ResolutionCron  string        `yaml:"resolution_cron" env:"STREAKSTAKE_RESOLUTION_CRON"`
		ContractTimeout time.Duration `yaml:"contract_timeout" env:"STREAKSTAKE_CONTRACT_TIMEOUT"`
		RetryBase       time.Duration `yaml:"retry_base" env:"STREAKSTAKE_RETRY_BASE"`
		RunOnStart      bool          `yaml:"run_on_start" env:"STREAKSTAKE_RUN_ON_START"`
	} `yaml:"schedule"`
	Engine struct {
		DefaultTimezone string        `yaml:"default_timezone" env:"STREAKSTAKE_DEFAULT_TIMEZONE"`
		MissionTTL      time.Duration `yaml:"mission_ttl" env:"STREAKSTAKE_MISSION_TTL"`
	} `yaml:"engine"`
	CheckIn struct {
		Source  string  `yaml:"source" env:"STREAKSTAKE_CHECKIN_SOURCE"`
		BaseURL string  `yaml:"base_url" env:"STREAKSTAKE_CHECKIN_BASE_URL"`
		APIKey  string  `yaml:"api_key" env:"STREAKSTAKE_CHECKIN_API_KEY"`
		RPS     float64 `yaml:"rps" env:"STREAKSTAKE_CHECKIN_RPS"`
	} `yaml:"checkin"`
	Telegram struct {
		BotToken string `yaml:"bot_token" env:"TELEGRAM_BOT_TOKEN"`
		ChatID   string `yaml:"chat_id" env:"TELEGRAM_CHAT_ID"`
	} `yaml:"telegram"`
	Log struct {
		Level  string `yaml:"level" env:"STREAKSTAKE_LOG_LEVEL"`
		Format string `yaml:"format" env:"STREAKSTAKE_LOG_FORMAT"`
	} `yaml:"log"`
	Proxy string `yaml:"proxy" env:"HTTPS_PROXY"`
}

// Load reads config from a YAML file, then applies environment variable
// overrides and defaults. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Server.RateLimitRPS == 0 {
		c.Server.RateLimitRPS = 50
	}
	if c.Server.RateBurst == 0 {
		c.Server.RateBurst = 100
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "sqlite"
	}
	if c.Database.DSN == "" && c.Database.Driver == "sqlite" {
		c.Database.DSN = "data/streakstake.db"
	}
	if c.Schedule.ResolutionCron == "" {
		c.Schedule.ResolutionCron = "0 5 * * * *"
	}
	if c.Schedule.ContractTimeout == 0 {
		c.Schedule.ContractTimeout = 10 * time.Second
	}
	if c.Schedule.RetryBase == 0 {
		c.Schedule.RetryBase = time.Minute
	}
	if c.Engine.DefaultTimezone == "" {
		c.Engine.DefaultTimezone = "UTC"
	}
	if c.Engine.MissionTTL == 0 {
		c.Engine.MissionTTL = 7 * 24 * time.Hour
	}
	if c.CheckIn.Source == "" {
		c.CheckIn.Source = "store"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
}

// TelegramEnabled reports whether ops alerts are configured.
func (c *Config) TelegramEnabled() bool {
	return c.Telegram.BotToken != "" && c.Telegram.ChatID != ""
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("database.driver must be sqlite or postgres, got %q", c.Database.Driver)
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("database.dsn is required")
	}
	if _, err := cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor).
		Parse(c.Schedule.ResolutionCron); err != nil {
		return fmt.Errorf("schedule.resolution_cron: %w", err)
	}
	if c.Schedule.ContractTimeout < 0 || c.Schedule.RetryBase < 0 {
		return fmt.Errorf("schedule durations must not be negative")
	}
	if _, err := time.LoadLocation(c.Engine.DefaultTimezone); err != nil {
		return fmt.Errorf("engine.default_timezone: %w", err)
	}
	if c.Engine.MissionTTL <= 0 {
		return fmt.Errorf("engine.mission_ttl must be positive")
	}
	switch c.CheckIn.Source {
	case "store":
	case "http":
		if c.CheckIn.BaseURL == "" {
			return fmt.Errorf("checkin.base_url is required for the http source")
		}
	default:
		return fmt.Errorf("checkin.source must be store or http, got %q", c.CheckIn.Source)
	}
	if (c.Telegram.BotToken == "") != (c.Telegram.ChatID == "") {
		return fmt.Errorf("telegram.bot_token and telegram.chat_id must be set together")
	}
	if c.Server.RateLimitRPS < 0 {
		return fmt.Errorf("server.rate_limit_rps must not be negative")
	}
	return nil
}
