package infra

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/usage_mon/internal/domain"
)

// ProcessSampler derives foreground/background transitions from the process
// table: a configured app is in the foreground while a matching process runs.
type ProcessSampler struct {
	lister   ProcessLister
	policies domain.PolicyStore
	clock    domain.Clock
	host     string
	logger   *zap.Logger

	mu      sync.Mutex
	running map[string]bool
}

// NewProcessSampler creates a sampler watching every app with a stored policy.
// host is never reported.
func NewProcessSampler(
	lister ProcessLister,
	policies domain.PolicyStore,
	clock domain.Clock,
	host string,
	logger *zap.Logger,
) *ProcessSampler {
	return &ProcessSampler{
		lister:   lister,
		policies: policies,
		clock:    clock,
		host:     host,
		logger:   logger,
		running:  make(map[string]bool),
	}
}

// Sample returns the transitions since the previous call, backgrounds first,
// each group sorted by package.
func (s *ProcessSampler) Sample(ctx context.Context) ([]domain.UsageEvent, error) {
	policies, err := s.policies.ListPolicies(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list watched apps: %w", err)
	}
	names := make([]string, 0, len(policies))
	for _, p := range policies {
		if p.Package == "" || p.Package == s.host {
			continue
		}
		names = append(names, p.Package)
	}

	running, err := s.lister.Running(names)
	if err != nil {
		return nil, fmt.Errorf("failed to list processes: %w", err)
	}
	now := s.clock.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	var events []domain.UsageEvent
	for _, pkg := range sortedKeys(s.running) {
		if !running[pkg] {
			events = append(events, domain.UsageEvent{Package: pkg, Timestamp: now, Kind: domain.EventBackground})
			delete(s.running, pkg)
		}
	}
	sort.Strings(names)
	for _, pkg := range names {
		if running[pkg] && !s.running[pkg] {
			events = append(events, domain.UsageEvent{Package: pkg, Timestamp: now, Kind: domain.EventForeground})
			s.running[pkg] = true
		}
	}

	if len(events) > 0 {
		s.logger.Debug("sampled transitions", zap.Int("count", len(events)))
	}
	return events, nil
}

// Flush reports a background transition for every app still running.
func (s *ProcessSampler) Flush(now time.Time) []domain.UsageEvent {
	s.mu.Lock()
	defer s.mu.Unlock()

	var events []domain.UsageEvent
	for _, pkg := range sortedKeys(s.running) {
		events = append(events, domain.UsageEvent{Package: pkg, Timestamp: now, Kind: domain.EventBackground})
	}
	s.running = make(map[string]bool)
	return events
}

func sortedKeys(m map[string]bool) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Ensure ProcessSampler implements domain.EventSampler.
var _ domain.EventSampler = (*ProcessSampler)(nil)
