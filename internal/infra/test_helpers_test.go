package infra

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/eliteGoblin/focusd/usage_mon/internal/domain"
)

// newTestStore creates an encrypted store in a temp directory for testing.
func newTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	dataDir := t.TempDir()
	key, err := GenerateKey()
	require.NoError(t, err)

	store, err := NewStore(dataDir, key)
	require.NoError(t, err)

	t.Cleanup(func() { store.Close() })
	return store, dataDir
}

// mockProcessLister is a test double for ProcessLister
type mockProcessLister struct {
	mu      sync.Mutex
	running map[string]bool
	err     error
	asked   [][]string
}

func newMockProcessLister() *mockProcessLister {
	return &mockProcessLister{running: make(map[string]bool)}
}

func (m *mockProcessLister) Running(names []string) (map[string]bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.asked = append(m.asked, names)
	if m.err != nil {
		return nil, m.err
	}
	out := make(map[string]bool, len(names))
	for _, n := range names {
		out[n] = m.running[n]
	}
	return out, nil
}

func (m *mockProcessLister) SetRunning(name string, running bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.running[name] = running
}

// stubPolicies is a read-only domain.PolicyStore for testing
type stubPolicies struct {
	policies []domain.AppPolicy
	err      error
}

func (s *stubPolicies) GetPolicy(ctx context.Context, pkg string) (*domain.AppPolicy, error) {
	for _, p := range s.policies {
		if p.Package == pkg {
			return &p, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (s *stubPolicies) PutPolicy(ctx context.Context, p domain.AppPolicy) error {
	s.policies = append(s.policies, p)
	return nil
}

func (s *stubPolicies) ListPolicies(ctx context.Context) ([]domain.AppPolicy, error) {
	return s.policies, s.err
}

// stepClock returns a fixed time that tests move by hand.
type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *stepClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func (c *stepClock) NewTicker(d time.Duration) domain.Ticker {
	return &systemTicker{t: time.NewTicker(d)}
}
