// internal/config/config.go
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

const (
	DriverMongo  = "mongo"
	DriverSQLite = "sqlite"
)

type DatabaseConfig struct {
	Driver   string `yaml:"driver"`
	Filename string `yaml:"filename"`
	URI      string `yaml:"uri,omitempty"`
	Name     string `yaml:"name,omitempty"`
	// AuthToken replaces the password of the user named in URI when set.
	AuthToken string `yaml:"-"` // Loaded from environment
}

type AuthConfig struct {
	AccessTTL                time.Duration `yaml:"access_ttl"`
	RefreshTTL               time.Duration `yaml:"refresh_ttl"`
	RequirePhoneVerification bool          `yaml:"require_phone_verification"`
	TrustProxy               bool          `yaml:"trust_proxy"`
}

type BotConfig struct {
	BaseURL       string  `yaml:"base_url"`
	TokenURL      string  `yaml:"token_url"`
	ClientID      string  `yaml:"client_id"`
	SendPath      string  `yaml:"send_path"`
	RatePerSecond float64 `yaml:"rate_per_second"`
	Workers       int     `yaml:"workers"`
	QueueSize     int     `yaml:"queue_size"`
	ClientSecret  string  `yaml:"-"` // Loaded from environment
}

// Enabled reports whether outbound bot messages can be delivered.
func (b BotConfig) Enabled() bool {
	return b.BaseURL != "" && b.TokenURL != "" && b.ClientID != "" && b.ClientSecret != ""
}

type CognitoConfig struct {
	PoolID   string `yaml:"pool_id"`
	ClientID string `yaml:"client_id"`
}

type EmailConfig struct {
	Region          string `yaml:"region"`
	Sender          string `yaml:"sender"`
	DigestRecipient string `yaml:"digest_recipient"`
	AccessKeyID     string `yaml:"-"`
	SecretAccessKey string `yaml:"-"`
}

// Enabled reports whether SES delivery is fully configured.
func (e EmailConfig) Enabled() bool {
	return e.Region != "" && e.Sender != "" && e.AccessKeyID != "" && e.SecretAccessKey != ""
}

type SchedulerConfig struct {
	WeeklyReset  string `yaml:"weekly_reset"`
	LedgerDigest string `yaml:"ledger_digest"`
}

type Config struct {
	App struct {
		Name        string `yaml:"name"`
		Environment string `yaml:"environment"`
		Port        int    `yaml:"port"`
		BaseURL     string `yaml:"base_url"`
		Timezone    string `yaml:"timezone"`
		SecretKey   string `yaml:"-"` // Loaded from environment
	} `yaml:"app"`

	Database  DatabaseConfig  `yaml:"database"`
	Auth      AuthConfig      `yaml:"auth"`
	Bot       BotConfig       `yaml:"bot"`
	Cognito   CognitoConfig   `yaml:"cognito"`
	Email     EmailConfig     `yaml:"email"`
	Scheduler SchedulerConfig `yaml:"scheduler"`

	Features struct {
		EnableDebug bool `yaml:"enable_debug"`
	} `yaml:"features"`
}

// Load loads both .env and yaml configuration
func Load(configPath string) (*Config, error) {
	// Load .env file if it exists
	envPath := filepath.Join(filepath.Dir(configPath), ".env")
	if err := godotenv.Load(envPath); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("error loading .env file: %w", err)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}

	// Load sensitive values from environment
	cfg.App.SecretKey = os.Getenv("APP_SECRET_KEY")
	cfg.Database.AuthToken = os.Getenv("DATABASE_AUTH_TOKEN")
	cfg.Bot.ClientSecret = os.Getenv("BOT_CLIENT_SECRET")
	cfg.Email.AccessKeyID = os.Getenv("AWS_ACCESS_KEY_ID")
	cfg.Email.SecretAccessKey = os.Getenv("AWS_SECRET_ACCESS_KEY")

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Parse decodes yaml configuration and fills defaults. It does not read the
// environment or validate.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.App.Environment == "" {
		c.App.Environment = "development"
	}
	if c.App.Timezone == "" {
		c.App.Timezone = "UTC"
	}
	if c.Database.Name == "" {
		c.Database.Name = "kickabout"
	}
	if c.Auth.AccessTTL == 0 {
		c.Auth.AccessTTL = 15 * time.Minute
	}
	if c.Auth.RefreshTTL == 0 {
		c.Auth.RefreshTTL = 7 * 24 * time.Hour
	}
	if c.Bot.SendPath == "" {
		c.Bot.SendPath = "/v1/messages"
	}
	if c.Bot.RatePerSecond <= 0 {
		c.Bot.RatePerSecond = 5
	}
	if c.Bot.Workers <= 0 {
		c.Bot.Workers = 2
	}
	if c.Bot.QueueSize <= 0 {
		c.Bot.QueueSize = 256
	}
}

// IsDevelopment reports whether the app runs in the development environment.
func (c *Config) IsDevelopment() bool {
	return c.App.Environment == "development"
}

// Location resolves the league timezone used for game start times.
func (c *Config) Location() (*time.Location, error) {
	return time.LoadLocation(c.App.Timezone)
}

func (c *Config) Validate() error {
	if c.App.Name == "" {
		return fmt.Errorf("app name is required")
	}
	if c.App.Port == 0 {
		return fmt.Errorf("app port is required")
	}
	if c.App.SecretKey == "" {
		return fmt.Errorf("APP_SECRET_KEY is required")
	}
	if _, err := c.Location(); err != nil {
		return fmt.Errorf("invalid timezone %q: %w", c.App.Timezone, err)
	}
	if c.Database.Driver == "" {
		return fmt.Errorf("database driver is required")
	}

	switch c.Database.Driver {
	case DriverSQLite:
		if c.Database.Filename == "" {
			return fmt.Errorf("database filename is required for sqlite")
		}
	case DriverMongo:
		if c.Database.URI == "" {
			return fmt.Errorf("database uri is required for mongo")
		}
	default:
		return fmt.Errorf("unsupported database driver: %s", c.Database.Driver)
	}

	if c.Auth.RefreshTTL <= c.Auth.AccessTTL {
		return fmt.Errorf("auth refresh_ttl must be longer than access_ttl")
	}

	if !c.IsDevelopment() && (c.Cognito.PoolID == "" || c.Cognito.ClientID == "") {
		return fmt.Errorf("cognito pool_id and client_id are required outside development")
	}

	for name, expr := range map[string]string{
		"weekly_reset":  c.Scheduler.WeeklyReset,
		"ledger_digest": c.Scheduler.LedgerDigest,
	} {
		if strings.TrimSpace(expr) == "" {
			continue
		}
		if _, err := cron.ParseStandard(expr); err != nil {
			return fmt.Errorf("scheduler %s: invalid cron expression %q: %w", name, expr, err)
		}
	}

	return nil
}
