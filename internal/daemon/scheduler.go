package daemon

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	rcron "github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/usage_mon/internal/domain"
	"github.com/eliteGoblin/focusd/usage_mon/internal/usecase"
)

// Job names reported to Metrics.JobFailed.
const (
	JobDaily    = "daily"
	JobBackfill = "backfill"
)

// MetaBackfilled marks a completed first-install backfill.
const MetaBackfilled = "backfilled"

// RollupRunner evaluates the goal for one calendar day.
// Implementation: usecase.DailyRollup.
type RollupRunner interface {
	RunForDay(ctx context.Context, day time.Time) (usecase.RollupResult, error)
}

// SchedulerConfig holds scheduler configuration.
type SchedulerConfig struct {
	Schedule      string // Cron expression with seconds field
	BackfillDays  int    // Days bucketed on first install
	RetentionDays int    // Hourly rows and events older than this are trimmed
	MaxRetries    int    // Retries per job run before giving up until next period
	Location      *time.Location
}

// DefaultSchedulerConfig returns default scheduler configuration.
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		Schedule:      "0 5 0 * * *", // 00:05:00 every day
		BackfillDays:  30,
		RetentionDays: 90,
		MaxRetries:    5,
		Location:      time.Local,
	}
}

// Scheduler runs the once-a-day jobs: finalize yesterday's buckets,
// evaluate yesterday's goal and trim old data. It also runs the one-time
// historical backfill.
type Scheduler struct {
	config   SchedulerConfig
	bucketer Rebucketer
	rollup   RollupRunner
	usage    domain.UsageStore
	meta     domain.MetaStore
	clock    domain.Clock
	metrics  domain.Metrics
	logger   *zap.Logger

	newBackOff func() backoff.BackOff

	mu   sync.Mutex
	cron *rcron.Cron
	wg   sync.WaitGroup
}

// NewScheduler creates a new scheduler. Call Start to begin.
func NewScheduler(
	config SchedulerConfig,
	bucketer Rebucketer,
	rollup RollupRunner,
	usage domain.UsageStore,
	meta domain.MetaStore,
	clock domain.Clock,
	metrics domain.Metrics,
	logger *zap.Logger,
) *Scheduler {
	if config.Location == nil {
		config.Location = time.Local
	}
	if metrics == nil {
		metrics = domain.NopMetrics{}
	}
	return &Scheduler{
		config:   config,
		bucketer: bucketer,
		rollup:   rollup,
		usage:    usage,
		meta:     meta,
		clock:    clock,
		metrics:  metrics,
		logger:   logger,
		newBackOff: func() backoff.BackOff {
			return backoff.NewExponentialBackOff()
		},
	}
}

// Start registers the daily job and kicks off the backfill in the background.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron != nil {
		return fmt.Errorf("scheduler already started")
	}

	c := rcron.New(rcron.WithSeconds(), rcron.WithLocation(s.config.Location))
	if _, err := c.AddFunc(s.config.Schedule, func() {
		_ = s.runJob(ctx, JobDaily, s.RunDaily)
	}); err != nil {
		return fmt.Errorf("failed to register daily job %q: %w", s.config.Schedule, err)
	}
	c.Start()
	s.cron = c

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		_ = s.runJob(ctx, JobBackfill, s.Backfill)
	}()

	s.logger.Info("scheduler started", zap.String("schedule", s.config.Schedule))
	return nil
}

// Stop halts the cron and waits for running jobs to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	c := s.cron
	s.cron = nil
	s.mu.Unlock()

	if c != nil {
		<-c.Stop().Done()
	}
	s.wg.Wait()
	s.logger.Info("scheduler stopped")
}

// RunDaily finalizes yesterday, refreshes today and trims expired data.
// Every step is idempotent so a retried run is safe.
func (s *Scheduler) RunDaily(ctx context.Context) error {
	now := s.clock.Now()
	today := domain.DayStart(now, s.config.Location)
	yesterday := domain.DayStart(today.Add(-time.Hour), s.config.Location)

	if _, err := s.bucketer.RunForDay(ctx, yesterday); err != nil {
		return fmt.Errorf("failed to bucket %s: %w", yesterday.Format(time.DateOnly), err)
	}
	if _, err := s.bucketer.RunForDay(ctx, today); err != nil {
		return fmt.Errorf("failed to bucket %s: %w", today.Format(time.DateOnly), err)
	}

	result, err := s.rollup.RunForDay(ctx, yesterday)
	if err != nil {
		return fmt.Errorf("failed to roll up %s: %w", yesterday.Format(time.DateOnly), err)
	}
	s.logger.Info("daily rollup",
		zap.String("date", yesterday.Format(time.DateOnly)),
		zap.Bool("skipped", result.Skipped),
		zap.Bool("goal_met", result.GoalMet),
		zap.Int("total_minutes", result.TotalMinutes),
		zap.Int("streak", result.Stats.CurrentStreak))

	threshold := today.AddDate(0, 0, -s.config.RetentionDays)
	trimmed, err := s.usage.TrimUsageBefore(ctx, threshold)
	if err != nil {
		return fmt.Errorf("failed to trim usage: %w", err)
	}
	if trimmed > 0 {
		s.logger.Info("trimmed old usage", zap.Int64("rows", trimmed), zap.Time("before", threshold))
	}
	return nil
}

// Backfill buckets the trailing BackfillDays days once per install.
func (s *Scheduler) Backfill(ctx context.Context) error {
	done, err := s.meta.GetMeta(ctx, MetaBackfilled)
	switch {
	case err == nil && done != "":
		s.logger.Debug("backfill already done", zap.String("at", done))
		return nil
	case err != nil && !errors.Is(err, domain.ErrNotFound):
		return fmt.Errorf("failed to read backfill flag: %w", err)
	}

	today := domain.DayStart(s.clock.Now(), s.config.Location)
	var rows int
	for i := 1; i <= s.config.BackfillDays; i++ {
		day := domain.DayStart(today.AddDate(0, 0, -i), s.config.Location)
		n, err := s.bucketer.RunForDay(ctx, day)
		if err != nil {
			return fmt.Errorf("failed to backfill %s: %w", day.Format(time.DateOnly), err)
		}
		rows += n
	}

	if err := s.meta.SetMeta(ctx, MetaBackfilled, s.clock.Now().Format(time.RFC3339)); err != nil {
		return fmt.Errorf("failed to set backfill flag: %w", err)
	}

	s.logger.Info("backfill completed",
		zap.Int("days", s.config.BackfillDays),
		zap.Int("rows", rows))
	return nil
}

// runJob retries job with exponential backoff. A run that still fails is
// logged and counted; the next period tries again.
func (s *Scheduler) runJob(ctx context.Context, name string, job func(context.Context) error) error {
	b := backoff.WithContext(
		backoff.WithMaxRetries(s.newBackOff(), uint64(s.config.MaxRetries)),
		ctx,
	)

	err := backoff.RetryNotify(
		func() error { return job(ctx) },
		b,
		func(err error, wait time.Duration) {
			s.logger.Warn("job failed, retrying",
				zap.String("job", name),
				zap.Duration("wait", wait),
				zap.Error(err))
		},
	)
	if err != nil {
		s.metrics.JobFailed(name)
		s.logger.Error("job failed", zap.String("job", name), zap.Error(err))
		return err
	}
	return nil
}
