package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App        AppConfig        `yaml:"app"`
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	Backup     BackupConfig     `yaml:"backup"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
	Logging    LoggingConfig    `yaml:"logging"`
	Admin      AdminConfig      `yaml:"admin"`
	Google     GoogleConfig     `yaml:"google"`
	Zoom       ZoomConfig       `yaml:"zoom"`
	Notify     NotifyConfig     `yaml:"notify"`
	Scheduling SchedulingConfig `yaml:"scheduling"`
	Exports    ExportConfig     `yaml:"exports"`
}

type AppConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`
	BaseURL     string `yaml:"base_url"`
}

type ServerConfig struct {
	Port int `yaml:"port"`
	// Per-IP request budget for the public booking endpoints.
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

type RateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

type BackupConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Schedule      string `yaml:"schedule"`
	RetentionDays int    `yaml:"retention_days"`
	StoragePath   string `yaml:"storage_path"`
}

type MonitoringConfig struct {
	PrometheusEnabled bool `yaml:"prometheus_enabled"`
	PrometheusPort    int  `yaml:"prometheus_port"`
}

type LoggingConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	Output   string `yaml:"output"`
	FilePath string `yaml:"file_path"`
}

type AdminConfig struct {
	// Password grants an operator a signed session token. TokenSecret signs it;
	// the unsigned scheme this replaces could be minted by anyone.
	Password    string `yaml:"password"`
	TokenSecret string `yaml:"token_secret"`
}

type GoogleConfig struct {
	CredentialsFile string `yaml:"credentials_file"`
	CalendarID      string `yaml:"calendar_id"`
	// Impersonated sender for Gmail notifications; service account needs
	// domain-wide delegation for this subject.
	SenderEmail string `yaml:"sender_email"`
}

type ZoomConfig struct {
	AccountID          string `yaml:"account_id"`
	ClientID           string `yaml:"client_id"`
	ClientSecret       string `yaml:"client_secret"`
	WebhookSecretToken string `yaml:"webhook_secret_token"`
}

type NotifyConfig struct {
	Enabled   bool   `yaml:"enabled"`
	HostEmail string `yaml:"host_email"`
	FromName  string `yaml:"from_name"`
}

type SchedulingConfig struct {
	Timezone string `yaml:"timezone"`
	// MaxBookingDays caps how far ahead a client may book.
	MaxBookingDays int `yaml:"max_booking_days"`
	// AdapterTimeoutSeconds bounds each external provider call.
	AdapterTimeoutSeconds int `yaml:"adapter_timeout_seconds"`
}

type ExportConfig struct {
	Path string `yaml:"path"`
}

func Load(configPath string) (*Config, error) {
	// .env is optional; environment may already be populated.
	_ = godotenv.Load(".env")

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	// Environment substitution inside the YAML before parsing.
	expandedData := []byte(os.ExpandEnv(string(data)))

	var config Config
	if err := yaml.Unmarshal(expandedData, &config); err != nil {
		return nil, err
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return errors.New("database path is required")
	}
	if c.Admin.Password == "" {
		return errors.New("admin password is required")
	}
	if c.Admin.TokenSecret == "" {
		return errors.New("admin token secret is required")
	}
	if c.Zoom.Configured() {
		if c.Zoom.ClientSecret == "" {
			return errors.New("zoom client secret is required when zoom is configured")
		}
	}
	return nil
}

// Configured reports whether the Zoom adapter has enough credentials to run.
func (z ZoomConfig) Configured() bool {
	return z.AccountID != "" && z.ClientID != ""
}

// Configured reports whether the Google adapters have credentials.
func (g GoogleConfig) Configured() bool {
	return g.CredentialsFile != ""
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.RateLimit.RPS == 0 {
		c.Server.RateLimit.RPS = 10
	}
	if c.Server.RateLimit.Burst == 0 {
		c.Server.RateLimit.Burst = 20
	}
	if c.Monitoring.PrometheusEnabled && c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}
	if c.Scheduling.Timezone == "" {
		c.Scheduling.Timezone = "Europe/Berlin"
	}
	if c.Scheduling.MaxBookingDays == 0 {
		c.Scheduling.MaxBookingDays = 90
	}
	if c.Scheduling.AdapterTimeoutSeconds == 0 {
		c.Scheduling.AdapterTimeoutSeconds = 5
	}
	if c.Google.CalendarID == "" {
		c.Google.CalendarID = "primary"
	}
	if c.Notify.FromName == "" {
		c.Notify.FromName = c.App.Name
	}
	if c.Exports.Path == "" {
		c.Exports.Path = "exports"
	}
	if c.Backup.RetentionDays == 0 {
		c.Backup.RetentionDays = 14
	}
}
