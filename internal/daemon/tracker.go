// Package daemon implements the long-running tracker and the daily scheduler.
package daemon

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/usage_mon/internal/domain"
)

// Rebucketer rebuilds one day of hourly usage.
// Implementation: usecase.UsageBucketer.
type Rebucketer interface {
	RunForDay(ctx context.Context, day time.Time) (int, error)
}

// TrackerConfig holds tracker daemon configuration.
type TrackerConfig struct {
	SampleInterval    time.Duration // How often to look for app transitions
	RebucketInterval  time.Duration // How often to refresh today's hourly rows
	HeartbeatInterval time.Duration // How often to update heartbeat
}

// DefaultTrackerConfig returns default tracker configuration.
func DefaultTrackerConfig() TrackerConfig {
	return TrackerConfig{
		SampleInterval:    2 * time.Second,
		RebucketInterval:  5 * time.Minute,
		HeartbeatInterval: 30 * time.Second,
	}
}

// Tracker is the live tracking daemon.
// It journals app transitions, asks the decider about every newly
// foregrounded app and keeps today's usage buckets fresh.
type Tracker struct {
	config    TrackerConfig
	sampler   domain.EventSampler
	journal   domain.EventJournal
	decider   domain.InterventionDecider
	presenter domain.Presenter
	bucketer  Rebucketer
	registry  domain.DaemonRegistry
	clock     domain.Clock
	daemon    domain.Daemon
	logger    *zap.Logger
}

// NewTracker creates a new tracker daemon.
func NewTracker(
	config TrackerConfig,
	sampler domain.EventSampler,
	journal domain.EventJournal,
	decider domain.InterventionDecider,
	presenter domain.Presenter,
	bucketer Rebucketer,
	registry domain.DaemonRegistry,
	clock domain.Clock,
	daemon domain.Daemon,
	logger *zap.Logger,
) *Tracker {
	return &Tracker{
		config:    config,
		sampler:   sampler,
		journal:   journal,
		decider:   decider,
		presenter: presenter,
		bucketer:  bucketer,
		registry:  registry,
		clock:     clock,
		daemon:    daemon,
		logger:    logger,
	}
}

// Run starts the tracker loop.
// This blocks until context is canceled; open intervals are journaled on the way out.
func (t *Tracker) Run(ctx context.Context) error {
	if err := t.registry.Register(t.daemon); err != nil {
		t.logger.Error("failed to register tracker", zap.Error(err))
		return err
	}

	t.logger.Info("tracker daemon started",
		zap.Int("pid", t.daemon.PID),
		zap.String("version", t.daemon.AppVersion))

	// Sample immediately on startup
	t.sample(ctx)

	sampleTicker := t.clock.NewTicker(t.config.SampleInterval)
	rebucketTicker := t.clock.NewTicker(t.config.RebucketInterval)
	heartbeatTicker := t.clock.NewTicker(t.config.HeartbeatInterval)

	defer func() {
		sampleTicker.Stop()
		rebucketTicker.Stop()
		heartbeatTicker.Stop()
	}()

	for {
		select {
		case <-ctx.Done():
			t.logger.Info("tracker daemon stopping")
			t.shutdown()
			return ctx.Err()

		case <-sampleTicker.C():
			t.sample(ctx)

		case <-rebucketTicker.C():
			t.rebucket(ctx)

		case <-heartbeatTicker.C():
			if err := t.registry.UpdateHeartbeat(); err != nil {
				t.logger.Warn("failed to update heartbeat", zap.Error(err))
			}
		}
	}
}

// sample journals new transitions and presents decisions for foregrounds.
func (t *Tracker) sample(ctx context.Context) {
	events, err := t.sampler.Sample(ctx)
	if err != nil {
		t.logger.Warn("sampling failed", zap.Error(err))
		return
	}
	if len(events) == 0 {
		return
	}

	if err := t.journal.AppendEvents(ctx, events); err != nil {
		t.logger.Error("failed to journal events", zap.Error(err), zap.Int("events", len(events)))
	}

	for _, ev := range events {
		if ev.Kind != domain.EventForeground {
			continue
		}
		outcome := t.decider.Decide(ctx, ev.Package)
		t.logger.Debug("decision",
			zap.String("package", ev.Package),
			zap.String("outcome", string(outcome)))
		if outcome == domain.InterventionNone {
			continue
		}
		t.presenter.Present(ctx, ev.Package, outcome)
		// Soft outcomes do not block on the desktop; the user carried on.
		if !outcome.IsHardStop() {
			t.decider.Allow(ev.Package, t.clock.Now())
		}
	}
}

func (t *Tracker) rebucket(ctx context.Context) {
	if _, err := t.bucketer.RunForDay(ctx, t.clock.Now()); err != nil {
		t.logger.Warn("failed to rebucket today", zap.Error(err))
	}
}

// shutdown closes open intervals and unregisters. The run context is
// already canceled, so a fresh one bounds the final writes.
func (t *Tracker) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if events := t.sampler.Flush(t.clock.Now()); len(events) > 0 {
		if err := t.journal.AppendEvents(ctx, events); err != nil {
			t.logger.Error("failed to journal final events", zap.Error(err))
		}
	}
	t.rebucket(ctx)

	if err := t.registry.Clear(); err != nil {
		t.logger.Warn("failed to clear registry", zap.Error(err))
	}
}
