package daemon

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/eliteGoblin/focusd/usage_mon/internal/domain"
	"github.com/eliteGoblin/focusd/usage_mon/internal/usecase"
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

func (c *fakeClock) NewTicker(d time.Duration) domain.Ticker {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTicker{ch: make(chan time.Time), interval: d}
	c.tickers = append(c.tickers, t)
	return t
}

func (c *fakeClock) tickerCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.tickers)
}

func (c *fakeClock) ticker(i int) *fakeTicker {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tickers[i]
}

type fakeTicker struct {
	ch       chan time.Time
	interval time.Duration

	mu      sync.Mutex
	stopped bool
}

func (t *fakeTicker) C() <-chan time.Time { return t.ch }

func (t *fakeTicker) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopped = true
}

func (t *fakeTicker) isStopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped
}

// mockSampler returns scripted batches, one per Sample call.
type mockSampler struct {
	mu      sync.Mutex
	batches [][]domain.UsageEvent
	err     error
	flush   []domain.UsageEvent
	flushed time.Time
}

func (m *mockSampler) Sample(ctx context.Context) ([]domain.UsageEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	if len(m.batches) == 0 {
		return nil, nil
	}
	batch := m.batches[0]
	m.batches = m.batches[1:]
	return batch, nil
}

func (m *mockSampler) Flush(now time.Time) []domain.UsageEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.flushed = now
	out := m.flush
	m.flush = nil
	return out
}

// mockJournal implements domain.EventJournal for testing
type mockJournal struct {
	mu     sync.Mutex
	events []domain.UsageEvent
	err    error
}

func (m *mockJournal) AppendEvents(ctx context.Context, events []domain.UsageEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.events = append(m.events, events...)
	return nil
}

func (m *mockJournal) all() []domain.UsageEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.UsageEvent(nil), m.events...)
}

// mockDecider returns a fixed outcome per package.
type mockDecider struct {
	mu       sync.Mutex
	outcomes map[string]domain.Intervention
	asked    []string
	allowed  []string
}

func (m *mockDecider) Decide(ctx context.Context, pkg string) domain.Intervention {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.asked = append(m.asked, pkg)
	if o, ok := m.outcomes[pkg]; ok {
		return o
	}
	return domain.InterventionNone
}

func (m *mockDecider) Allow(pkg string, now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.allowed = append(m.allowed, pkg)
}

func (m *mockDecider) allowedPackages() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.allowed...)
}

func (m *mockDecider) askedPackages() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.asked...)
}

type presented struct {
	pkg     string
	outcome domain.Intervention
}

// mockPresenter implements domain.Presenter for testing
type mockPresenter struct {
	mu    sync.Mutex
	shown []presented
}

func (m *mockPresenter) Present(ctx context.Context, pkg string, outcome domain.Intervention) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.shown = append(m.shown, presented{pkg: pkg, outcome: outcome})
}

func (m *mockPresenter) all() []presented {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]presented(nil), m.shown...)
}

// mockBucketer records the days it was asked to bucket.
type mockBucketer struct {
	mu     sync.Mutex
	days   []time.Time
	err    error
	failOn map[string]bool
}

func (m *mockBucketer) RunForDay(ctx context.Context, day time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.days = append(m.days, day)
	if m.err != nil {
		return 0, m.err
	}
	if m.failOn[day.Format(time.DateOnly)] {
		return 0, errStorage
	}
	return 2, nil
}

func (m *mockBucketer) calls() []time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]time.Time(nil), m.days...)
}

// mockRollup records evaluated days.
type mockRollup struct {
	mu   sync.Mutex
	days []time.Time
	err  error
}

func (m *mockRollup) RunForDay(ctx context.Context, day time.Time) (usecase.RollupResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.days = append(m.days, day)
	if m.err != nil {
		return usecase.RollupResult{}, m.err
	}
	return usecase.RollupResult{Date: day, GoalMet: true}, nil
}

// mockRegistry implements domain.DaemonRegistry for testing
type mockRegistry struct {
	mu          sync.Mutex
	daemon      *domain.Daemon
	heartbeats  int
	cleared     bool
	registerErr error
}

func (m *mockRegistry) Register(daemon domain.Daemon) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.registerErr != nil {
		return m.registerErr
	}
	m.daemon = &daemon
	return nil
}

func (m *mockRegistry) UpdateHeartbeat() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.heartbeats++
	return nil
}

func (m *mockRegistry) Get() (*domain.Daemon, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.daemon == nil {
		return nil, domain.ErrNotFound
	}
	return m.daemon, nil
}

func (m *mockRegistry) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.daemon = nil
	m.cleared = true
	return nil
}

func (m *mockRegistry) state() (registered bool, heartbeats int, cleared bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.daemon != nil, m.heartbeats, m.cleared
}

// mockUsageStore only records trims; the scheduler never reads rows.
type mockUsageStore struct {
	mu        sync.Mutex
	trimmedAt []time.Time
	trimErr   error
}

func (m *mockUsageStore) UpsertHourlyUsage(ctx context.Context, rows []domain.HourlyUsage) error {
	return nil
}

func (m *mockUsageStore) GetUsageSince(ctx context.Context, since time.Time) ([]domain.HourlyUsage, error) {
	return nil, nil
}

func (m *mockUsageStore) GetUsageBetween(ctx context.Context, start, end time.Time) ([]domain.HourlyUsage, error) {
	return nil, nil
}

func (m *mockUsageStore) GetPackageUsageSince(ctx context.Context, pkg string, since time.Time) (time.Duration, error) {
	return 0, nil
}

func (m *mockUsageStore) TrimUsageBefore(ctx context.Context, threshold time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.trimmedAt = append(m.trimmedAt, threshold)
	if m.trimErr != nil {
		return 0, m.trimErr
	}
	return 4, nil
}

// mockMetaStore implements domain.MetaStore for testing
type mockMetaStore struct {
	mu     sync.Mutex
	values map[string]string
	getErr error
}

func newMockMetaStore() *mockMetaStore {
	return &mockMetaStore{values: make(map[string]string)}
}

func (m *mockMetaStore) GetMeta(ctx context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return "", m.getErr
	}
	v, ok := m.values[key]
	if !ok {
		return "", domain.ErrNotFound
	}
	return v, nil
}

func (m *mockMetaStore) SetMeta(ctx context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return nil
}

// failureMetrics records JobFailed calls.
type failureMetrics struct {
	domain.NopMetrics

	mu   sync.Mutex
	jobs []string
}

func (m *failureMetrics) JobFailed(job string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs = append(m.jobs, job)
}

func (m *failureMetrics) failed() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.jobs...)
}
