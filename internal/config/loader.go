package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
	rcron "github.com/robfig/cron/v3"
)

// Load reads configuration from environment variables, after loading a
// .env file from the working directory when one exists.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}
	return Parse()
}

// Parse reads configuration from the current environment only.
func Parse() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config from environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate performs range and format checks on the configuration.
func (c *Config) Validate() error {
	if c.HostPackage == "" {
		return fmt.Errorf("USAGEMON_HOST_PACKAGE must not be empty")
	}
	if _, err := c.Location(); err != nil {
		return err
	}

	durations := []struct {
		name  string
		value time.Duration
	}{
		{"USAGEMON_DEBOUNCE_WINDOW", c.DebounceWindow},
		{"USAGEMON_DECISION_TIMEOUT", c.DecisionTimeout},
		{"USAGEMON_SAMPLE_INTERVAL", c.SampleInterval},
		{"USAGEMON_REBUCKET_INTERVAL", c.RebucketInterval},
		{"USAGEMON_HEARTBEAT_INTERVAL", c.HeartbeatInterval},
	}
	for _, d := range durations {
		if d.value <= 0 {
			return fmt.Errorf("invalid %s: %s (must be positive)", d.name, d.value)
		}
	}

	if c.BackfillDays < 0 {
		return fmt.Errorf("invalid USAGEMON_BACKFILL_DAYS: %d (must be >= 0)", c.BackfillDays)
	}
	if c.RetentionDays < 1 {
		return fmt.Errorf("invalid USAGEMON_RETENTION_DAYS: %d (must be >= 1)", c.RetentionDays)
	}
	if c.GoalPoints < 0 {
		return fmt.Errorf("invalid USAGEMON_GOAL_POINTS: %d (must be >= 0)", c.GoalPoints)
	}
	if c.MetricsPort < 0 || c.MetricsPort > 65535 {
		return fmt.Errorf("invalid USAGEMON_METRICS_PORT: %d (must be 0-65535)", c.MetricsPort)
	}

	parser := rcron.NewParser(rcron.Second | rcron.Minute | rcron.Hour | rcron.Dom | rcron.Month | rcron.Dow | rcron.Descriptor)
	if _, err := parser.Parse(c.DailySchedule); err != nil {
		return fmt.Errorf("invalid USAGEMON_DAILY_SCHEDULE %q: %w", c.DailySchedule, err)
	}

	return nil
}

// Location resolves the configured time zone. "Local" and "" mean the host zone.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" || c.Timezone == "Local" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid USAGEMON_TIMEZONE %q: %w", c.Timezone, err)
	}
	return loc, nil
}
