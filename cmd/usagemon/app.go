package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/usage_mon/internal/config"
	"github.com/eliteGoblin/focusd/usage_mon/internal/daemon"
	"github.com/eliteGoblin/focusd/usage_mon/internal/domain"
	"github.com/eliteGoblin/focusd/usage_mon/internal/infra"
	"github.com/eliteGoblin/focusd/usage_mon/internal/policy"
	"github.com/eliteGoblin/focusd/usage_mon/internal/usecase"
)

// app holds everything a command needs, built from configuration.
type app struct {
	cfg     *config.Config
	loc     *time.Location
	dataDir string
	logPath string

	store   *infra.Store
	pm      *infra.ProcessManagerImpl
	clock   infra.SystemClock
	metrics *infra.PrometheusMetrics
	logger  *zap.Logger
}

// openApp loads configuration and opens the encrypted store. Long-running
// commands log to the configured file; one-shot commands log to the console.
func openApp(longRunning bool) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	dataDir, logPath := infra.ResolvePaths(cfg.DataDir, cfg.LogPath)

	var logger *zap.Logger
	if longRunning {
		logger = createLogger(logPath)
	} else {
		logger, _ = zap.NewDevelopment()
	}

	var keys domain.KeyProvider
	if cfg.DBKey != "" {
		if keys, err = infra.ParseStaticKey(cfg.DBKey); err != nil {
			_ = logger.Sync()
			return nil, fmt.Errorf("invalid USAGEMON_DB_KEY: %w", err)
		}
	}

	store, err := infra.OpenStore(dataDir, keys)
	if err != nil {
		_ = logger.Sync()
		return nil, err
	}

	return &app{
		cfg:     cfg,
		loc:     loc,
		dataDir: dataDir,
		logPath: logPath,
		store:   store,
		pm:      infra.NewProcessManager(),
		clock:   infra.NewSystemClock(),
		metrics: infra.NewPrometheusMetrics(),
		logger:  logger,
	}, nil
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		a.logger.Warn("failed to close store", zap.Error(err))
	}
	_ = a.logger.Sync()
}

// seedPolicies loads the configured policy file, if any, into the store.
func (a *app) seedPolicies(ctx context.Context) error {
	if a.cfg.PolicyFile == "" {
		return nil
	}
	policies, err := policy.LoadFile(infra.ExpandHome(a.cfg.PolicyFile))
	if err != nil {
		return err
	}
	if err := policy.Seed(ctx, a.store, policies); err != nil {
		return err
	}
	a.logger.Info("seeded policies", zap.String("file", a.cfg.PolicyFile), zap.Int("count", len(policies)))
	return nil
}

func (a *app) bucketer() *usecase.UsageBucketer {
	return usecase.NewUsageBucketer(a.store, a.store, a.loc, a.metrics, a.logger)
}

func (a *app) rollup() *usecase.DailyRollup {
	config := usecase.DefaultRollupConfig()
	config.GoalPoints = a.cfg.GoalPoints
	config.Location = a.loc
	return usecase.NewDailyRollup(config, a.store, a.store, a.clock, a.metrics, a.logger)
}

func (a *app) reporter() *usecase.UsageReporter {
	return usecase.NewUsageReporter(a.store, a.store, a.loc, a.logger)
}

func (a *app) focusController(flag *usecase.ActiveFlag) *usecase.FocusController {
	return usecase.NewFocusController(a.store, flag, a.clock, a.metrics, a.logger)
}

func (a *app) presenter() *usecase.Enforcer {
	if a.cfg.EnforceHardStops {
		return usecase.NewEnforcerWithHardStops(a.pm, a.logger)
	}
	return usecase.NewEnforcer(a.pm, a.logger)
}

// tracker wires the live loop around the focus flag owned by the caller.
// decisionTable returns the validated rule table the decider evaluates.
func decisionTable() (*policy.Table, error) {
	table := policy.DefaultTable()
	if err := table.Validate(); err != nil {
		return nil, fmt.Errorf("invalid intervention rules: %w", err)
	}
	return table, nil
}

func (a *app) tracker(focus domain.FocusState, bucketer *usecase.UsageBucketer) (*daemon.Tracker, error) {
	table, err := decisionTable()
	if err != nil {
		return nil, err
	}
	decider := usecase.NewDecider(
		usecase.DeciderConfig{
			HostPackage:   a.cfg.HostPackage,
			LookupTimeout: a.cfg.DecisionTimeout,
			Location:      a.loc,
		},
		a.store, a.store, focus,
		usecase.NewAllowlist(a.cfg.DebounceWindow),
		table,
		a.clock, a.metrics, a.logger,
	)
	sampler := infra.NewProcessSampler(a.pm, a.store, a.clock, a.cfg.HostPackage, a.logger)

	return daemon.NewTracker(
		daemon.TrackerConfig{
			SampleInterval:    a.cfg.SampleInterval,
			RebucketInterval:  a.cfg.RebucketInterval,
			HeartbeatInterval: a.cfg.HeartbeatInterval,
		},
		sampler, a.store, decider, a.presenter(), bucketer, a.store, a.clock,
		domain.Daemon{
			PID:        os.Getpid(),
			StartedAt:  a.clock.Now(),
			AppVersion: Version,
		},
		a.logger,
	), nil
}

func (a *app) scheduler(bucketer *usecase.UsageBucketer) *daemon.Scheduler {
	config := daemon.DefaultSchedulerConfig()
	config.Schedule = a.cfg.DailySchedule
	config.BackfillDays = a.cfg.BackfillDays
	config.RetentionDays = a.cfg.RetentionDays
	config.Location = a.loc

	return daemon.NewScheduler(config, bucketer, a.rollup(), a.store, a.store, a.clock, a.metrics, a.logger)
}

// runningTracker returns the registered tracker if its process is alive.
func (a *app) runningTracker() (*domain.Daemon, bool) {
	d, err := a.store.Get()
	if err != nil {
		return nil, false
	}
	return d, a.pm.IsRunning(d.PID)
}

// parseDay parses YYYY-MM-DD in the configured zone; empty means today.
func (a *app) parseDay(value string) (time.Time, error) {
	return parseDay(value, a.clock.Now(), a.loc)
}

func parseDay(value string, now time.Time, loc *time.Location) (time.Time, error) {
	if value == "" {
		return domain.DayStart(now, loc), nil
	}
	day, err := time.ParseInLocation(time.DateOnly, value, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q (want YYYY-MM-DD): %w", value, err)
	}
	return day, nil
}
