package usecase

import (
	"context"
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/eliteGoblin/focusd/usage_mon/internal/domain"
)

var errStorage = errors.New("storage unavailable")

// fakeClock is a manually advanced domain.Clock.
type fakeClock struct {
	mu      sync.Mutex
	now     time.Time
	tickers []*fakeTicker
}

func newFakeClock(now time.Time) *fakeClock {
	return &fakeClock{now: now}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func (c *fakeClock) NewTicker(d time.Duration) domain.Ticker {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTicker{ch: make(chan time.Time)}
	c.tickers = append(c.tickers, t)
	return t
}

func (c *fakeClock) lastTicker() *fakeTicker {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.tickers) == 0 {
		return nil
	}
	return c.tickers[len(c.tickers)-1]
}

// fakeTicker delivers a tick only when the test sends one.
type fakeTicker struct {
	ch      chan time.Time
	stopped atomic.Bool
}

func (t *fakeTicker) C() <-chan time.Time { return t.ch }
func (t *fakeTicker) Stop()               { t.stopped.Store(true) }

// mockEventSource implements domain.EventSource for testing
type mockEventSource struct {
	events     []domain.UsageEvent
	err        error
	queryStart time.Time
	queryEnd   time.Time
}

func (m *mockEventSource) QueryEvents(ctx context.Context, start, end time.Time) ([]domain.UsageEvent, error) {
	m.queryStart, m.queryEnd = start, end
	if m.err != nil {
		return nil, m.err
	}
	var out []domain.UsageEvent
	for _, e := range m.events {
		if !e.Timestamp.Before(start) && e.Timestamp.Before(end) {
			out = append(out, e)
		}
	}
	return out, nil
}

// mockUsageStore implements domain.UsageStore for testing
type mockUsageStore struct {
	mu         sync.Mutex
	rows       map[string]domain.HourlyUsage
	upsertErr  error
	queryErr   error
	block      bool // block until ctx is done
	upserts    int
	lastSince  time.Time
	usageCalls int
}

func newMockUsageStore() *mockUsageStore {
	return &mockUsageStore{rows: make(map[string]domain.HourlyUsage)}
}

func usageKey(pkg string, hour time.Time) string {
	return pkg + "@" + hour.UTC().Format(time.RFC3339)
}

func (m *mockUsageStore) UpsertHourlyUsage(ctx context.Context, rows []domain.HourlyUsage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.upsertErr != nil {
		return m.upsertErr
	}
	m.upserts++
	for _, r := range rows {
		m.rows[usageKey(r.Package, r.HourStart)] = r
	}
	return nil
}

func (m *mockUsageStore) GetUsageSince(ctx context.Context, since time.Time) ([]domain.HourlyUsage, error) {
	return m.GetUsageBetween(ctx, since, time.Unix(1<<40, 0))
}

func (m *mockUsageStore) GetUsageBetween(ctx context.Context, start, end time.Time) ([]domain.HourlyUsage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.queryErr != nil {
		return nil, m.queryErr
	}
	var out []domain.HourlyUsage
	for _, r := range m.rows {
		if !r.HourStart.Before(start) && r.HourStart.Before(end) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *mockUsageStore) GetPackageUsageSince(ctx context.Context, pkg string, since time.Time) (time.Duration, error) {
	m.mu.Lock()
	m.usageCalls++
	m.lastSince = since
	block, err := m.block, m.queryErr
	m.mu.Unlock()

	if block {
		<-ctx.Done()
		return 0, ctx.Err()
	}
	if err != nil {
		return 0, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	var total time.Duration
	for _, r := range m.rows {
		if r.Package == pkg && !r.HourStart.Before(since) {
			total += r.Duration
		}
	}
	return total, nil
}

func (m *mockUsageStore) TrimUsageBefore(ctx context.Context, threshold time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for k, r := range m.rows {
		if r.HourStart.Before(threshold) {
			delete(m.rows, k)
			n++
		}
	}
	return n, nil
}

func (m *mockUsageStore) put(pkg string, hour time.Time, d time.Duration, opens int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[usageKey(pkg, hour)] = domain.HourlyUsage{Package: pkg, HourStart: hour, Duration: d, OpenCount: opens}
}

func (m *mockUsageStore) all() []domain.HourlyUsage {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.HourlyUsage, 0, len(m.rows))
	for _, r := range m.rows {
		out = append(out, r)
	}
	return out
}

// mockPolicyStore implements domain.PolicyStore for testing
type mockPolicyStore struct {
	policies map[string]domain.AppPolicy
	err      error
	block    bool
	delay    time.Duration
}

func newMockPolicyStore(policies ...domain.AppPolicy) *mockPolicyStore {
	m := &mockPolicyStore{policies: make(map[string]domain.AppPolicy)}
	for _, p := range policies {
		m.policies[p.Package] = p
	}
	return m
}

func (m *mockPolicyStore) GetPolicy(ctx context.Context, pkg string) (*domain.AppPolicy, error) {
	if m.delay > 0 {
		time.Sleep(m.delay)
	}
	if m.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if m.err != nil {
		return nil, m.err
	}
	p, ok := m.policies[pkg]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &p, nil
}

func (m *mockPolicyStore) PutPolicy(ctx context.Context, p domain.AppPolicy) error {
	m.policies[p.Package] = p
	return nil
}

func (m *mockPolicyStore) ListPolicies(ctx context.Context) ([]domain.AppPolicy, error) {
	out := make([]domain.AppPolicy, 0, len(m.policies))
	for _, p := range m.policies {
		out = append(out, p)
	}
	return out, nil
}

// mockFocusStore implements domain.FocusSessionStore for testing
type mockFocusStore struct {
	mu        sync.Mutex
	sessions  map[string]domain.FocusSession
	insertErr error
	updateErr error
	updates   int
}

func newMockFocusStore() *mockFocusStore {
	return &mockFocusStore{sessions: make(map[string]domain.FocusSession)}
}

func (m *mockFocusStore) InsertSession(ctx context.Context, s domain.FocusSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.insertErr != nil {
		return m.insertErr
	}
	m.sessions[s.ID] = s
	return nil
}

func (m *mockFocusStore) UpdateSession(ctx context.Context, s domain.FocusSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.updateErr != nil {
		return m.updateErr
	}
	m.updates++
	m.sessions[s.ID] = s
	return nil
}

func (m *mockFocusStore) OpenSessions(ctx context.Context) ([]domain.FocusSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.FocusSession
	for _, s := range m.sessions {
		if s.EndTime == nil {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *mockFocusStore) TotalFocusMinutesSince(ctx context.Context, since time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	total := 0
	for _, s := range m.sessions {
		if s.Completed && !s.StartTime.Before(since) {
			total += s.ActualMinutes
		}
	}
	return total, nil
}

func (m *mockFocusStore) get(id string) domain.FocusSession {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions[id]
}

// mockStatsStore implements domain.StatsStore for testing
type mockStatsStore struct {
	stats  *domain.UserStats
	goals  map[int64]domain.DailyGoal
	getErr error
	putErr error
	puts   int
}

func newMockStatsStore() *mockStatsStore {
	return &mockStatsStore{goals: make(map[int64]domain.DailyGoal)}
}

func (m *mockStatsStore) GetUserStats(ctx context.Context) (domain.UserStats, error) {
	if m.getErr != nil {
		return domain.UserStats{}, m.getErr
	}
	if m.stats == nil {
		return domain.DefaultUserStats(), nil
	}
	return *m.stats, nil
}

func (m *mockStatsStore) PutUserStats(ctx context.Context, s domain.UserStats) error {
	if m.putErr != nil {
		return m.putErr
	}
	m.puts++
	m.stats = &s
	return nil
}

func (m *mockStatsStore) PutDailyGoal(ctx context.Context, g domain.DailyGoal) error {
	m.goals[g.Date.Unix()] = g
	return nil
}

func (m *mockStatsStore) GetDailyGoalsSince(ctx context.Context, since time.Time) ([]domain.DailyGoal, error) {
	var out []domain.DailyGoal
	for _, g := range m.goals {
		if !g.Date.Before(since) {
			out = append(out, g)
		}
	}
	return out, nil
}

// mockProcessManager implements domain.ProcessManager for testing
type mockProcessManager struct {
	findResult map[string][]int
	findErr    error
	killErr    error
	killedPIDs []int
}

func (m *mockProcessManager) FindByName(pattern string) ([]int, error) {
	if m.findErr != nil {
		return nil, m.findErr
	}
	if m.findResult != nil {
		return m.findResult[pattern], nil
	}
	return nil, nil
}

func (m *mockProcessManager) Kill(pid int) error {
	if m.killErr != nil {
		return m.killErr
	}
	m.killedPIDs = append(m.killedPIDs, pid)
	return nil
}

func (m *mockProcessManager) IsRunning(pid int) bool {
	return false
}

func (m *mockProcessManager) GetCurrentPID() int {
	return os.Getpid()
}

// staticFocus is a domain.FocusState with a fixed answer.
type staticFocus bool

func (s staticFocus) IsActive() bool { return bool(s) }

// recordingMetrics implements domain.Metrics for testing
type recordingMetrics struct {
	mu        sync.Mutex
	decisions []domain.Intervention
	dropped   map[string]int
	rows      int
	focus     []bool
	rollups   []string
	failures  []string
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{dropped: make(map[string]int)}
}

func (m *recordingMetrics) DecisionMade(outcome domain.Intervention, elapsed time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.decisions = append(m.decisions, outcome)
}

func (m *recordingMetrics) EventsDropped(reason string, n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dropped[reason] += n
}

func (m *recordingMetrics) BucketRowsWritten(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows += n
}

func (m *recordingMetrics) FocusSessionEnded(completed bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.focus = append(m.focus, completed)
}

func (m *recordingMetrics) RollupRun(result string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rollups = append(m.rollups, result)
}

func (m *recordingMetrics) JobFailed(job string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures = append(m.failures, job)
}
