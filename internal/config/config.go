// Package config loads process configuration from the environment.
package config

import "time"

// Config holds all application configuration loaded from environment variables.
// Parsed with github.com/caarlos0/env; an optional .env file is read first.
type Config struct {
	// Storage and logging. Empty paths resolve from the execution mode.
	DataDir    string `env:"USAGEMON_DATA_DIR"`
	LogPath    string `env:"USAGEMON_LOG_PATH"`
	PolicyFile string `env:"USAGEMON_POLICY_FILE"`

	// Hex database key; when empty the key lives in a file next to the database.
	DBKey string `env:"USAGEMON_DB_KEY"`

	// Decision path
	HostPackage      string        `env:"USAGEMON_HOST_PACKAGE" envDefault:"usagemon"`
	Timezone         string        `env:"USAGEMON_TIMEZONE" envDefault:"Local"`
	DebounceWindow   time.Duration `env:"USAGEMON_DEBOUNCE_WINDOW" envDefault:"2s"`
	DecisionTimeout  time.Duration `env:"USAGEMON_DECISION_TIMEOUT" envDefault:"80ms"`
	EnforceHardStops bool          `env:"USAGEMON_ENFORCE_HARD_STOPS" envDefault:"false"`

	// Tracker loop
	SampleInterval    time.Duration `env:"USAGEMON_SAMPLE_INTERVAL" envDefault:"2s"`
	RebucketInterval  time.Duration `env:"USAGEMON_REBUCKET_INTERVAL" envDefault:"5m"`
	HeartbeatInterval time.Duration `env:"USAGEMON_HEARTBEAT_INTERVAL" envDefault:"30s"`

	// Scheduled jobs
	DailySchedule string `env:"USAGEMON_DAILY_SCHEDULE" envDefault:"0 5 0 * * *"`
	BackfillDays  int    `env:"USAGEMON_BACKFILL_DAYS" envDefault:"30"`
	RetentionDays int    `env:"USAGEMON_RETENTION_DAYS" envDefault:"90"`
	GoalPoints    int    `env:"USAGEMON_GOAL_POINTS" envDefault:"100"`

	// Metrics server, 0 disables it
	MetricsPort int `env:"USAGEMON_METRICS_PORT" envDefault:"0"`
}
