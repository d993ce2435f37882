package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/usage_mon/internal/domain"
)

// DefaultGoalPoints is awarded for every day the goal is met.
const DefaultGoalPoints = 100

// Rollup outcomes reported to Metrics.RollupRun.
const (
	RollupMet     = "met"
	RollupMissed  = "missed"
	RollupSkipped = "skipped"
)

// RollupConfig holds daily rollup settings.
type RollupConfig struct {
	GoalPoints int
	Location   *time.Location
}

// DefaultRollupConfig returns default rollup configuration.
func DefaultRollupConfig() RollupConfig {
	return RollupConfig{
		GoalPoints: DefaultGoalPoints,
		Location:   time.Local,
	}
}

// RollupResult captures what a single rollup run did.
type RollupResult struct {
	Date         time.Time
	TotalMinutes int
	GoalMinutes  int
	GoalMet      bool
	Skipped      bool // Already evaluated for this day
	Stats        domain.UserStats
}

// DailyRollup evaluates the daily screen-time goal and maintains the streak.
type DailyRollup struct {
	config  RollupConfig
	usage   domain.UsageStore
	stats   domain.StatsStore
	clock   domain.Clock
	metrics domain.Metrics
	logger  *zap.Logger

	// mu serializes read-modify-write of the singleton stats record.
	mu sync.Mutex
}

// NewDailyRollup creates a rollup evaluator.
func NewDailyRollup(
	config RollupConfig,
	usage domain.UsageStore,
	stats domain.StatsStore,
	clock domain.Clock,
	metrics domain.Metrics,
	logger *zap.Logger,
) *DailyRollup {
	if config.Location == nil {
		config.Location = time.Local
	}
	if metrics == nil {
		metrics = domain.NopMetrics{}
	}
	return &DailyRollup{
		config:  config,
		usage:   usage,
		stats:   stats,
		clock:   clock,
		metrics: metrics,
		logger:  logger,
	}
}

// RunForToday evaluates the current calendar day.
func (r *DailyRollup) RunForToday(ctx context.Context) (RollupResult, error) {
	return r.RunForDay(ctx, r.clock.Now())
}

// RunForDay evaluates the calendar day containing day.
// A day already evaluated (or older than the last evaluation) is a no-op.
func (r *DailyRollup) RunForDay(ctx context.Context, day time.Time) (RollupResult, error) {
	today := domain.DayStart(day, r.config.Location)
	tomorrow := domain.DayStart(today.AddDate(0, 0, 1), r.config.Location)

	r.mu.Lock()
	defer r.mu.Unlock()

	stats, err := r.stats.GetUserStats(ctx)
	if err != nil {
		return RollupResult{}, fmt.Errorf("failed to read user stats: %w", err)
	}

	result := RollupResult{Date: today, GoalMinutes: stats.DailyGoalMinutes, Stats: stats}

	checked := !stats.LastGoalCheckDate.IsZero()
	daysSince := 0
	if checked {
		daysSince = domain.CalendarDaysBetween(stats.LastGoalCheckDate, today, r.config.Location)
		if daysSince <= 0 {
			result.Skipped = true
			r.metrics.RollupRun(RollupSkipped)
			r.logger.Debug("goal already checked for day", zap.Time("day", today))
			return result, nil
		}
	}

	rows, err := r.usage.GetUsageBetween(ctx, today, tomorrow)
	if err != nil {
		return RollupResult{}, fmt.Errorf("failed to read usage: %w", err)
	}
	var total time.Duration
	for _, row := range rows {
		total += row.Duration
	}
	result.TotalMinutes = int(total / time.Minute)
	result.GoalMet = result.TotalMinutes <= stats.DailyGoalMinutes

	if result.GoalMet {
		if checked && daysSince <= 1 {
			stats.CurrentStreak++
		} else {
			stats.CurrentStreak = 1
		}
		if stats.CurrentStreak > stats.LongestStreak {
			stats.LongestStreak = stats.CurrentStreak
		}
		stats.TotalPoints += r.config.GoalPoints
	} else {
		stats.CurrentStreak = 0
	}
	stats.LastGoalCheckDate = today

	// History first: stats are the commit marker, a failed stats write reruns cleanly.
	goal := domain.DailyGoal{
		Date:          today,
		GoalMinutes:   stats.DailyGoalMinutes,
		ActualMinutes: result.TotalMinutes,
		GoalMet:       result.GoalMet,
	}
	if err := r.stats.PutDailyGoal(ctx, goal); err != nil {
		return RollupResult{}, fmt.Errorf("failed to save daily goal: %w", err)
	}
	if err := r.stats.PutUserStats(ctx, stats); err != nil {
		return RollupResult{}, fmt.Errorf("failed to save user stats: %w", err)
	}
	result.Stats = stats

	outcome := RollupMissed
	if result.GoalMet {
		outcome = RollupMet
	}
	r.metrics.RollupRun(outcome)
	r.logger.Info("daily goal checked",
		zap.Time("day", today),
		zap.Int("usage_minutes", result.TotalMinutes),
		zap.Int("goal_minutes", result.GoalMinutes),
		zap.Bool("goal_met", result.GoalMet),
		zap.Int("streak", stats.CurrentStreak))

	return result, nil
}

// SetDailyGoal changes the screen-time ceiling used from the next rollup on.
func (r *DailyRollup) SetDailyGoal(ctx context.Context, minutes int) (domain.UserStats, error) {
	if minutes <= 0 {
		return domain.UserStats{}, domain.ErrInvalidDuration
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	stats, err := r.stats.GetUserStats(ctx)
	if err != nil {
		return domain.UserStats{}, fmt.Errorf("failed to read user stats: %w", err)
	}
	stats.DailyGoalMinutes = minutes
	if err := r.stats.PutUserStats(ctx, stats); err != nil {
		return domain.UserStats{}, fmt.Errorf("failed to save user stats: %w", err)
	}
	return stats, nil
}

// Stats returns the current stats record.
func (r *DailyRollup) Stats(ctx context.Context) (domain.UserStats, error) {
	return r.stats.GetUserStats(ctx)
}
