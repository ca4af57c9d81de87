package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	// Core
	BotToken       string `env:"BOT_TOKEN,required"`
	DatabaseURL    string `env:"DATABASE_URL,required"`
	ActivationCode string `env:"ACTIVATION_CODE,required"`

	// Escalation
	ScanInterval        time.Duration `env:"SCAN_INTERVAL" envDefault:"60s"`
	ApproachingLead     time.Duration `env:"APPROACHING_LEAD" envDefault:"1h"`
	DeliveryConcurrency int           `env:"DELIVERY_CONCURRENCY" envDefault:"8"`
	SendTimeout         time.Duration `env:"SEND_TIMEOUT" envDefault:"15s"`

	// Access
	TrialPeriod time.Duration `env:"TRIAL_PERIOD" envDefault:"336h"`

	// Admin
	AdminIDs []int64 `env:"ADMIN_IDS" envSeparator:","`

	// Logging
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// Bot behavior
	DropPendingUpdates bool `env:"BOT_DROP_PENDING_UPDATES" envDefault:"false"`

	// Telegram logging
	LogTelegramChatID    int64 `env:"LOG_TELEGRAM_CHAT_ID"`
	LogTopicError        int   `env:"LOG_TOPIC_ERROR"`
	LogTopicRegistration int   `env:"LOG_TOPIC_REGISTRATION"`
	LogTopicActivation   int   `env:"LOG_TOPIC_ACTIVATION"`
	LogTopicOverdue      int   `env:"LOG_TOPIC_OVERDUE"`
}

// Load reads an optional .env file and then the process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	switch {
	case c.ScanInterval <= 0:
		return fmt.Errorf("SCAN_INTERVAL must be positive, got %s", c.ScanInterval)
	case c.ApproachingLead <= 0:
		return fmt.Errorf("APPROACHING_LEAD must be positive, got %s", c.ApproachingLead)
	case c.TrialPeriod <= 0:
		return fmt.Errorf("TRIAL_PERIOD must be positive, got %s", c.TrialPeriod)
	case c.SendTimeout <= 0:
		return fmt.Errorf("SEND_TIMEOUT must be positive, got %s", c.SendTimeout)
	case c.DeliveryConcurrency < 1:
		return fmt.Errorf("DELIVERY_CONCURRENCY must be at least 1, got %d", c.DeliveryConcurrency)
	}
	if _, ok := c.StoreDriver(); !ok {
		return fmt.Errorf("DATABASE_URL: unsupported scheme in %q", redactURL(c.DatabaseURL))
	}
	return nil
}

// StoreDriver reports which backend DATABASE_URL selects: "postgres" or "sqlite".
func (c *Config) StoreDriver() (string, bool) {
	switch {
	case strings.HasPrefix(c.DatabaseURL, "postgres://"), strings.HasPrefix(c.DatabaseURL, "postgresql://"):
		return "postgres", true
	case strings.HasPrefix(c.DatabaseURL, "sqlite://"):
		return "sqlite", true
	default:
		return "", false
	}
}

// SQLitePath returns the file path of a sqlite:// DATABASE_URL.
func (c *Config) SQLitePath() string {
	return strings.TrimPrefix(c.DatabaseURL, "sqlite://")
}

func (c *Config) IsAdmin(telegramID int64) bool {
	for _, id := range c.AdminIDs {
		if id == telegramID {
			return true
		}
	}
	return false
}

// SlogLevel maps LOG_LEVEL to a slog level, defaulting to info.
func (c *Config) SlogLevel() slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

func redactURL(u string) string {
	if i := strings.Index(u, "@"); i >= 0 {
		if j := strings.Index(u, "://"); j >= 0 && j < i {
			return u[:j+3] + "***" + u[i:]
		}
	}
	return u
}
