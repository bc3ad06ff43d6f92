package config

import (
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"nailbook/internal/database"
)

type Config struct {
	Server struct {
		Addr   string `yaml:"addr"`
		APIKey string `yaml:"api_key"`
	} `yaml:"server"`

	Database struct {
		Path string `yaml:"path"`
	} `yaml:"database"`

	Backup database.BackupConfig `yaml:"backup"`

	Redis struct {
		Enabled         bool   `yaml:"enabled"`
		Address         string `yaml:"address"`
		Password        string `yaml:"password"`
		DB              int    `yaml:"db"`
		CacheTTLSeconds int    `yaml:"cache_ttl_seconds"`
	} `yaml:"redis"`

	Schedule struct {
		DayStart    string `yaml:"day_start"`
		DayEnd      string `yaml:"day_end"`
		SlotMinutes int    `yaml:"slot_minutes"`
	} `yaml:"schedule"`

	Telegram struct {
		Enabled  bool    `yaml:"enabled"`
		BotToken string  `yaml:"bot_token"`
		Managers []int64 `yaml:"managers"`
	} `yaml:"telegram"`

	Sheets struct {
		Enabled             bool   `yaml:"enabled"`
		CredentialsFile     string `yaml:"credentials_file"`
		SpreadsheetID       string `yaml:"spreadsheet_id"`
		SyncIntervalMinutes int    `yaml:"sync_interval_minutes"`
	} `yaml:"sheets"`

	Monitoring struct {
		HealthCheckPort   int  `yaml:"health_check_port"`
		PrometheusEnabled bool `yaml:"prometheus_enabled"`
		PrometheusPort    int  `yaml:"prometheus_port"`
	} `yaml:"monitoring"`
}

func Load(path string) (*Config, error) {
	if path == "" {
		path = "configs/config.yaml"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Support ${ENV_VAR} placeholders in YAML config.
	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err = yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8080"
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = "data/nailbook.db"
	}
	if cfg.Schedule.DayStart == "" {
		cfg.Schedule.DayStart = "09:00"
	}
	if cfg.Schedule.DayEnd == "" {
		cfg.Schedule.DayEnd = "18:00"
	}
	if cfg.Schedule.SlotMinutes <= 0 {
		cfg.Schedule.SlotMinutes = 30
	}

	if err = os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// CacheTTL returns the availability cache lifetime.
func (c *Config) CacheTTL() time.Duration {
	if c.Redis.CacheTTLSeconds <= 0 {
		return 60 * time.Second
	}
	return time.Duration(c.Redis.CacheTTLSeconds) * time.Second
}

// SheetsSyncInterval returns how often the spreadsheet mirror runs.
func (c *Config) SheetsSyncInterval() time.Duration {
	if c.Sheets.SyncIntervalMinutes <= 0 {
		return 15 * time.Minute
	}
	return time.Duration(c.Sheets.SyncIntervalMinutes) * time.Minute
}
