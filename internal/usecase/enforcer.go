package usecase

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/usage_mon/internal/domain"
)

// Enforcer implements domain.Presenter for a desktop daemon.
// Every outcome is logged; hard stops terminate the app when enabled.
type Enforcer struct {
	processManager   domain.ProcessManager
	enforceHardStops bool
	logger           *zap.Logger
}

// NewEnforcer creates a presenter that only logs outcomes.
func NewEnforcer(pm domain.ProcessManager, logger *zap.Logger) *Enforcer {
	return &Enforcer{
		processManager: pm,
		logger:         logger,
	}
}

// NewEnforcerWithHardStops creates a presenter that kills apps hit by
// FOCUS_SESSION or LIMIT_EXCEEDED.
func NewEnforcerWithHardStops(pm domain.ProcessManager, logger *zap.Logger) *Enforcer {
	return &Enforcer{
		processManager:   pm,
		enforceHardStops: true,
		logger:           logger,
	}
}

// Present implements domain.Presenter.
func (e *Enforcer) Present(ctx context.Context, pkg string, outcome domain.Intervention) {
	e.Enforce(ctx, pkg, outcome)
}

// Enforce presents the outcome and reports what was done.
func (e *Enforcer) Enforce(ctx context.Context, pkg string, outcome domain.Intervention) *domain.EnforcementResult {
	start := time.Now()

	result := &domain.EnforcementResult{
		Package:    pkg,
		Outcome:    outcome,
		KilledPIDs: make([]int, 0),
		Errors:     make([]error, 0),
		ExecutedAt: start,
	}

	if outcome == domain.InterventionNone {
		return result
	}

	e.logger.Info("intervention",
		zap.String("package", pkg),
		zap.String("outcome", string(outcome)))

	if !e.enforceHardStops || !outcome.IsHardStop() || e.processManager == nil {
		result.DurationMs = time.Since(start).Milliseconds()
		return result
	}

	pids, err := e.processManager.FindByName(pkg)
	if err != nil {
		e.logger.Warn("failed to find processes",
			zap.String("package", pkg),
			zap.Error(err))
		result.Errors = append(result.Errors, err)
		result.DurationMs = time.Since(start).Milliseconds()
		return result
	}

	self := e.processManager.GetCurrentPID()
	for _, pid := range pids {
		if pid == self {
			continue
		}
		if err := e.processManager.Kill(pid); err != nil {
			e.logger.Warn("failed to kill process",
				zap.Int("pid", pid),
				zap.Error(err))
			result.Errors = append(result.Errors, err)
		} else {
			e.logger.Info("killed process",
				zap.String("package", pkg),
				zap.Int("pid", pid),
				zap.String("outcome", string(outcome)))
			result.KilledPIDs = append(result.KilledPIDs, pid)
		}
	}

	result.DurationMs = time.Since(start).Milliseconds()
	return result
}

// Ensure Enforcer implements domain.Presenter.
var _ domain.Presenter = (*Enforcer)(nil)
