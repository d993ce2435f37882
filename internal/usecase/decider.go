package usecase

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/usage_mon/internal/domain"
	"github.com/eliteGoblin/focusd/usage_mon/internal/policy"
)

// DeciderConfig holds decision path settings.
type DeciderConfig struct {
	HostPackage   string         // Our own app, never intervened on
	LookupTimeout time.Duration  // Bound on all storage lookups of one decision
	Location      *time.Location // Defines "today"
}

// DefaultDeciderConfig returns default decider configuration.
func DefaultDeciderConfig() DeciderConfig {
	return DeciderConfig{
		HostPackage:   "usagemon",
		LookupTimeout: 80 * time.Millisecond,
		Location:      time.Local,
	}
}

// Decider implements domain.InterventionDecider.
// It is stateless across calls except for the allowlist.
type Decider struct {
	config    DeciderConfig
	policies  domain.PolicyStore
	usage     domain.UsageStore
	focus     domain.FocusState
	allowlist *Allowlist
	table     *policy.Table
	clock     domain.Clock
	metrics   domain.Metrics
	logger    *zap.Logger
}

// NewDecider creates a decider evaluating table in priority order.
func NewDecider(
	config DeciderConfig,
	policies domain.PolicyStore,
	usage domain.UsageStore,
	focus domain.FocusState,
	allowlist *Allowlist,
	table *policy.Table,
	clock domain.Clock,
	metrics domain.Metrics,
	logger *zap.Logger,
) *Decider {
	if config.Location == nil {
		config.Location = time.Local
	}
	if table == nil {
		table = policy.DefaultTable()
	}
	if metrics == nil {
		metrics = domain.NopMetrics{}
	}
	return &Decider{
		config:    config,
		policies:  policies,
		usage:     usage,
		focus:     focus,
		allowlist: allowlist,
		table:     table,
		clock:     clock,
		metrics:   metrics,
		logger:    logger,
	}
}

// Decide returns the intervention for a newly-foregrounded package.
func (d *Decider) Decide(ctx context.Context, pkg string) domain.Intervention {
	if pkg == "" || pkg == d.config.HostPackage {
		return domain.InterventionNone
	}

	now := d.clock.Now()
	if d.allowlist.Allowed(pkg, now) {
		d.logger.Debug("allowing recently approved app", zap.String("package", pkg))
		d.metrics.DecisionMade(domain.InterventionNone, d.clock.Now().Sub(now))
		return domain.InterventionNone
	}

	// Both lookups share one deadline.
	lookupCtx, cancel := context.WithTimeout(ctx, d.config.LookupTimeout)
	defer cancel()

	facts := policy.Facts{Package: pkg}
	facts.Policy = d.lookupPolicy(lookupCtx, pkg)
	if facts.Policy.TimeLimit() > 0 {
		facts.UsageToday = d.lookupUsage(lookupCtx, pkg, now)
	}
	// Read last so queued events see the freshest session state.
	facts.FocusActive = d.focus.IsActive()

	outcome := domain.InterventionNone
	if rule, ok := d.table.Evaluate(facts); ok {
		outcome = rule.Outcome
		d.logger.Info("intervention chosen",
			zap.String("package", pkg),
			zap.String("rule", rule.ID),
			zap.String("outcome", string(outcome)))
	}

	d.metrics.DecisionMade(outcome, d.clock.Now().Sub(now))
	return outcome
}

// Allow records the user's "continue anyway" choice.
func (d *Decider) Allow(pkg string, now time.Time) {
	d.allowlist.Allow(pkg, now)
	d.logger.Debug("app approved by user",
		zap.String("package", pkg),
		zap.Duration("window", d.allowlist.Window()))
}

// lookupPolicy returns the app's policy, or the untracked default on any failure.
func (d *Decider) lookupPolicy(ctx context.Context, pkg string) domain.AppPolicy {
	p, err := d.policies.GetPolicy(ctx, pkg)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			d.logger.Warn("policy lookup failed, treating app as untracked",
				zap.String("package", pkg),
				zap.Error(err))
		}
		return domain.AppPolicy{Package: pkg}
	}
	if p == nil {
		return domain.AppPolicy{Package: pkg}
	}
	return *p
}

// lookupUsage returns today's usage, or zero on failure so no limit can trigger.
func (d *Decider) lookupUsage(ctx context.Context, pkg string, now time.Time) time.Duration {
	used, err := d.usage.GetPackageUsageSince(ctx, pkg, domain.DayStart(now, d.config.Location))
	if err != nil {
		d.logger.Warn("usage lookup failed, ignoring time limit",
			zap.String("package", pkg),
			zap.Error(err))
		return 0
	}
	return used
}

// Ensure Decider implements domain.InterventionDecider.
var _ domain.InterventionDecider = (*Decider)(nil)
