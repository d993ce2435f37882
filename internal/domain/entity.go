// Package domain contains core business entities and interfaces.
// This is the innermost layer in Clean Architecture - no external dependencies.
package domain

import "time"

// EventKind identifies a foreground/background transition.
type EventKind int

const (
	EventForeground EventKind = iota + 1
	EventBackground
)

func (k EventKind) String() string {
	switch k {
	case EventForeground:
		return "foreground"
	case EventBackground:
		return "background"
	default:
		return "unknown"
	}
}

// UsageEvent is a single raw transition reported by the OS event source.
type UsageEvent struct {
	Package   string
	Timestamp time.Time
	Kind      EventKind
}

// HourlyUsage is the durable per-app, per-hour aggregate.
// (Package, HourStart) is unique.
type HourlyUsage struct {
	Package   string
	HourStart time.Time
	Duration  time.Duration
	OpenCount int
}

// AppPolicy is the user-configured rule set for one app.
type AppPolicy struct {
	Package           string
	Name              string // Display name only, never used for decisions
	Tracked           bool
	TimeLimitMinutes  int // 0 = no limit
	RequiresIntention bool
}

// TimeLimit returns the configured daily limit, or 0 when unlimited.
func (p AppPolicy) TimeLimit() time.Duration {
	if p.TimeLimitMinutes <= 0 {
		return 0
	}
	return time.Duration(p.TimeLimitMinutes) * time.Minute
}

// Intervention is the outcome of a foreground decision.
type Intervention string

const (
	InterventionNone             Intervention = "NONE"
	InterventionFocusSession     Intervention = "FOCUS_SESSION"
	InterventionLimitExceeded    Intervention = "LIMIT_EXCEEDED"
	InterventionRequireIntention Intervention = "REQUIRE_INTENTION"
	InterventionPauseExercise    Intervention = "PAUSE_EXERCISE"
)

// IsHardStop reports whether the outcome blocks the app rather than nudging the user.
func (i Intervention) IsHardStop() bool {
	return i == InterventionFocusSession || i == InterventionLimitExceeded
}

// FocusSession is one voluntary countdown. EndTime is nil while the session runs.
type FocusSession struct {
	ID             string
	StartTime      time.Time
	EndTime        *time.Time
	PlannedMinutes int
	ActualMinutes  int
	Completed      bool
}

// DefaultDailyGoalMinutes is the screen-time ceiling used before the user sets one.
const DefaultDailyGoalMinutes = 120

// UserStats is the singleton goal/streak record.
type UserStats struct {
	CurrentStreak     int
	LongestStreak     int
	TotalPoints       int
	DailyGoalMinutes  int
	LastGoalCheckDate time.Time // Zero until the first rollup
}

// DefaultUserStats returns the stats of a fresh install.
func DefaultUserStats() UserStats {
	return UserStats{DailyGoalMinutes: DefaultDailyGoalMinutes}
}

// DailyGoal records the outcome of one day's rollup.
type DailyGoal struct {
	Date          time.Time
	GoalMinutes   int
	ActualMinutes int
	GoalMet       bool
}

// AppUsage is one app's usage for a day, assembled for display.
type AppUsage struct {
	Package string
	AppName string
	Total   time.Duration
	Opens   int
	Hourly  []HourlyUsage
}

// Daemon represents the running tracker process.
type Daemon struct {
	PID           int
	StartedAt     time.Time
	AppVersion    string
	LastHeartbeat time.Time
}

// EnforcementResult captures what happened when an outcome was presented.
type EnforcementResult struct {
	Package    string
	Outcome    Intervention
	KilledPIDs []int
	Errors     []error
	ExecutedAt time.Time
	DurationMs int64
}
