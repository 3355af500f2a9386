package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration.
type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Schedule ScheduleConfig `yaml:"schedule"`
	Fetcher  FetcherConfig  `yaml:"fetcher"`
	Sites    []SiteConfig   `yaml:"sites"`
	Forums   []ForumConfig  `yaml:"forums"`
	Notify   NotifyConfig   `yaml:"notify"`
	Server   ServerConfig   `yaml:"server"`
}

// DatabaseConfig configures SQLite storage.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// ScheduleConfig configures the fixed local times a full scan runs at.
type ScheduleConfig struct {
	Times []string `yaml:"times"` // "HH:MM"
}

// FetcherConfig configures the page-rendering service client. When RenderURL
// is empty, pages are fetched directly without script execution.
type FetcherConfig struct {
	RenderURL string `yaml:"render_url"`
	Timeout   string `yaml:"timeout"`
}

// ParseTimeout returns the fetch timeout as a time.Duration.
func (f FetcherConfig) ParseTimeout() time.Duration {
	d, err := time.ParseDuration(f.Timeout)
	if err != nil {
		return 60 * time.Second
	}
	return d
}

// SiteConfig describes one LMS front-end.
type SiteConfig struct {
	Name         string `yaml:"name"`
	BaseURL      string `yaml:"base_url"`
	DashboardURL string `yaml:"dashboard_url"`
	CalendarURL  string `yaml:"calendar_url"`
}

// ForumConfig is a Moodle forum RSS export watched for new posts.
type ForumConfig struct {
	Name     string `yaml:"name"`
	URL      string `yaml:"url"`
	CourseID string `yaml:"course_id"`
}

// NotifyConfig configures notification channels and the deadline horizon.
type NotifyConfig struct {
	HorizonDays int           `yaml:"horizon_days"`
	Email       EmailConfig   `yaml:"email"`
	Webhook     WebhookConfig `yaml:"webhook"`
}

// EmailConfig for the SMTP notifier.
type EmailConfig struct {
	Enabled    bool     `yaml:"enabled"`
	Host       string   `yaml:"host"`
	Port       int      `yaml:"port"`
	Sender     string   `yaml:"sender"`
	Password   string   `yaml:"password"`
	Recipients []string `yaml:"recipients"`
}

// WebhookConfig for the generic webhook notifier.
type WebhookConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
	Secret  string `yaml:"secret"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{Path: "./lmswatch.db"},
		Schedule: ScheduleConfig{Times: []string{"09:00", "21:00"}},
		Fetcher:  FetcherConfig{Timeout: "60s"},
		Notify: NotifyConfig{
			HorizonDays: 30,
			Email:       EmailConfig{Host: "smtp.gmail.com", Port: 587},
		},
		Server: ServerConfig{Port: 8080},
	}
}

// Load reads configuration from a YAML file and applies env var overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

// applyEnvOverrides overrides config values with environment variables.
// Credentials live here so config files can be committed without secrets.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("LMSWATCH_DB_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("RENDER_SERVICE_URL"); v != "" {
		cfg.Fetcher.RenderURL = v
	}
	if v := os.Getenv("SMTP_HOST"); v != "" {
		cfg.Notify.Email.Host = v
	}
	if v := os.Getenv("SMTP_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Notify.Email.Port = port
		}
	}
	if v := os.Getenv("EMAIL_SENDER"); v != "" {
		cfg.Notify.Email.Sender = v
	}
	if v := os.Getenv("EMAIL_PASSWORD"); v != "" {
		cfg.Notify.Email.Password = v
		cfg.Notify.Email.Enabled = true
	}
	if v := os.Getenv("EMAIL_RECIPIENT"); v != "" {
		cfg.Notify.Email.Recipients = []string{v}
		cfg.Notify.Email.Enabled = true
	}
	if v := os.Getenv("WEBHOOK_URL"); v != "" {
		cfg.Notify.Webhook.URL = v
		cfg.Notify.Webhook.Enabled = true
	}
}
