package domain

import (
	"context"
	"time"
)

// UsageStore persists hourly usage buckets.
// Implementation: SQLCipher table keyed by (package, hour_start).
type UsageStore interface {
	// UpsertHourlyUsage overwrites rows by key. Callers pre-aggregate;
	// writing the same key twice is not additive.
	UpsertHourlyUsage(ctx context.Context, rows []HourlyUsage) error

	// GetUsageSince returns all rows with HourStart >= since.
	GetUsageSince(ctx context.Context, since time.Time) ([]HourlyUsage, error)

	// GetUsageBetween returns rows with start <= HourStart < end.
	GetUsageBetween(ctx context.Context, start, end time.Time) ([]HourlyUsage, error)

	// GetPackageUsageSince sums one app's duration since the given time.
	GetPackageUsageSince(ctx context.Context, pkg string, since time.Time) (time.Duration, error)

	// TrimUsageBefore deletes rows and journal events older than threshold.
	TrimUsageBefore(ctx context.Context, threshold time.Time) (int64, error)
}

// PolicyStore provides per-app intervention settings.
type PolicyStore interface {
	// GetPolicy returns ErrNotFound for apps that were never configured.
	GetPolicy(ctx context.Context, pkg string) (*AppPolicy, error)

	// PutPolicy creates or replaces an app's settings.
	PutPolicy(ctx context.Context, policy AppPolicy) error

	// ListPolicies returns every configured app.
	ListPolicies(ctx context.Context) ([]AppPolicy, error)
}

// FocusSessionStore persists focus sessions.
type FocusSessionStore interface {
	InsertSession(ctx context.Context, session FocusSession) error
	UpdateSession(ctx context.Context, session FocusSession) error

	// OpenSessions returns sessions whose EndTime was never set.
	OpenSessions(ctx context.Context) ([]FocusSession, error)

	// TotalFocusMinutesSince sums ActualMinutes of completed sessions started since.
	TotalFocusMinutesSince(ctx context.Context, since time.Time) (int, error)
}

// StatsStore persists the singleton UserStats and the daily goal history.
type StatsStore interface {
	// GetUserStats returns DefaultUserStats when nothing was stored yet.
	GetUserStats(ctx context.Context) (UserStats, error)
	PutUserStats(ctx context.Context, stats UserStats) error

	PutDailyGoal(ctx context.Context, goal DailyGoal) error
	GetDailyGoalsSince(ctx context.Context, since time.Time) ([]DailyGoal, error)
}

// EventSource supplies historical transitions for a window [start, end).
type EventSource interface {
	QueryEvents(ctx context.Context, start, end time.Time) ([]UsageEvent, error)
}

// EventJournal records live transitions so EventSource can replay them.
type EventJournal interface {
	AppendEvents(ctx context.Context, events []UsageEvent) error
}

// MetaStore holds small install-level flags (e.g. backfill done).
type MetaStore interface {
	GetMeta(ctx context.Context, key string) (string, error)
	SetMeta(ctx context.Context, key, value string) error
}

// DaemonRegistry tracks the running tracker for the status command.
type DaemonRegistry interface {
	// Register saves the current daemon's PID.
	Register(daemon Daemon) error

	// UpdateHeartbeat updates timestamp for liveness check.
	UpdateHeartbeat() error

	// Get returns the registered daemon, or ErrNotFound.
	Get() (*Daemon, error)

	// Clear removes daemon state.
	Clear() error
}

// FocusState exposes whether a focus session currently blocks all apps.
// Reads are synchronous and never go through the countdown channel.
type FocusState interface {
	IsActive() bool
}

// InterventionDecider chooses an intervention for a newly-foregrounded app.
type InterventionDecider interface {
	// Decide never fails: every internal error resolves to InterventionNone.
	Decide(ctx context.Context, pkg string) Intervention

	// Allow records the user's "continue anyway" choice for pkg.
	Allow(pkg string, now time.Time)
}

// Presenter displays or enforces an intervention outcome.
type Presenter interface {
	Present(ctx context.Context, pkg string, outcome Intervention)
}

// ProcessManager handles OS process operations.
// Implementation: uses gopsutil for cross-platform support.
type ProcessManager interface {
	// FindByName returns PIDs of processes matching the pattern.
	FindByName(pattern string) ([]int, error)

	// Kill terminates a process by PID (SIGKILL).
	Kill(pid int) error

	// IsRunning checks if a PID exists and is running.
	IsRunning(pid int) bool

	// GetCurrentPID returns the current process PID.
	GetCurrentPID() int
}

// KeyProvider abstracts the source of the database encryption key.
type KeyProvider interface {
	// GetKey returns the encryption key bytes.
	GetKey() ([]byte, error)

	// StoreKey persists a new encryption key.
	StoreKey(key []byte) error

	// KeyExists checks if a key has been generated.
	KeyExists() bool
}

// Clock is the engine's source of time. Tests substitute a fake.
type Clock interface {
	Now() time.Time
	NewTicker(d time.Duration) Ticker
}

// Ticker mirrors time.Ticker behind an interface.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// EventSampler observes the OS and reports app transitions since the previous sample.
type EventSampler interface {
	Sample(ctx context.Context) ([]UsageEvent, error)

	// Flush closes every open interval, used at shutdown.
	Flush(now time.Time) []UsageEvent
}
