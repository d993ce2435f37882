package usecase

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/usage_mon/internal/domain"
)

// ActiveFlag is the process-wide "focus session active" cell.
// Anyone may read it; only FocusController writes it.
type ActiveFlag struct {
	v atomic.Bool
}

// NewActiveFlag creates an inactive flag.
func NewActiveFlag() *ActiveFlag {
	return &ActiveFlag{}
}

// IsActive reports whether a focus session is running.
func (f *ActiveFlag) IsActive() bool {
	return f.v.Load()
}

func (f *ActiveFlag) set(active bool) {
	f.v.Store(active)
}

var _ domain.FocusState = (*ActiveFlag)(nil)

// FocusState is the controller's lifecycle state.
type FocusState int

const (
	FocusIdle FocusState = iota
	FocusActive
	FocusCompleted
	FocusStopped
)

func (s FocusState) String() string {
	switch s {
	case FocusIdle:
		return "idle"
	case FocusActive:
		return "active"
	case FocusCompleted:
		return "completed"
	case FocusStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// FocusTick is published once at start and once per second while active.
// Progress falls from 1.0 to 0.0.
type FocusTick struct {
	SessionID string
	Remaining time.Duration
	Progress  float64
	Done      bool
}

// FocusStatus is a point-in-time view of the controller.
type FocusStatus struct {
	State     FocusState
	Session   *domain.FocusSession
	Remaining time.Duration
	Progress  float64
}

const tickBuffer = 64

// FocusController runs at most one focus countdown at a time.
type FocusController struct {
	store   domain.FocusSessionStore
	flag    *ActiveFlag
	clock   domain.Clock
	metrics domain.Metrics
	logger  *zap.Logger

	mu        sync.Mutex
	state     FocusState
	session   *domain.FocusSession
	total     int // seconds
	remaining int // seconds
	stop      chan struct{}
	done      chan struct{}

	subMu   sync.Mutex
	subs    map[int]chan FocusTick
	nextSub int
}

// NewFocusController creates an idle controller that owns flag.
func NewFocusController(
	store domain.FocusSessionStore,
	flag *ActiveFlag,
	clock domain.Clock,
	metrics domain.Metrics,
	logger *zap.Logger,
) *FocusController {
	if metrics == nil {
		metrics = domain.NopMetrics{}
	}
	return &FocusController{
		store:   store,
		flag:    flag,
		clock:   clock,
		metrics: metrics,
		logger:  logger,
		subs:    make(map[int]chan FocusTick),
	}
}

// Start persists a new session and begins the countdown.
func (c *FocusController) Start(ctx context.Context, plannedMinutes int) (domain.FocusSession, error) {
	if plannedMinutes <= 0 {
		return domain.FocusSession{}, domain.ErrInvalidDuration
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == FocusActive {
		return domain.FocusSession{}, domain.ErrSessionActive
	}

	session := domain.FocusSession{
		ID:             uuid.NewString(),
		StartTime:      c.clock.Now(),
		PlannedMinutes: plannedMinutes,
	}
	if err := c.store.InsertSession(ctx, session); err != nil {
		return domain.FocusSession{}, fmt.Errorf("failed to save focus session: %w", err)
	}

	c.session = &session
	c.total = plannedMinutes * 60
	c.remaining = c.total
	c.state = FocusActive
	c.flag.set(true)

	c.stop = make(chan struct{})
	c.done = make(chan struct{})
	go c.run(session.ID, c.clock.NewTicker(time.Second), c.stop, c.done)

	c.logger.Info("focus session started",
		zap.String("session", session.ID),
		zap.Int("planned_minutes", plannedMinutes))

	c.publish(FocusTick{SessionID: session.ID, Remaining: c.remainingDuration(), Progress: 1})
	return session, nil
}

// Stop ends the running session early and persists it before returning.
// No tick is processed after Stop returns.
func (c *FocusController) Stop(ctx context.Context) (domain.FocusSession, error) {
	c.mu.Lock()
	if c.state != FocusActive {
		c.mu.Unlock()
		return domain.FocusSession{}, domain.ErrNoActiveSession
	}

	close(c.stop)
	done := c.done
	tick := FocusTick{
		SessionID: c.session.ID,
		Remaining: c.remainingDuration(),
		Progress:  c.progress(),
		Done:      true,
	}
	session, err := c.finish(ctx, false)
	c.publish(tick)
	c.mu.Unlock()

	<-done
	return session, err
}

// Recover closes sessions left open by a previous process.
func (c *FocusController) Recover(ctx context.Context) (int, error) {
	open, err := c.store.OpenSessions(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list open focus sessions: %w", err)
	}

	c.mu.Lock()
	var current string
	if c.session != nil {
		current = c.session.ID
	}
	c.mu.Unlock()

	now := c.clock.Now()
	closed := 0
	for _, s := range open {
		if s.ID == current {
			continue
		}
		end := now
		s.EndTime = &end
		s.ActualMinutes = stoppedMinutes(s, now)
		s.Completed = false
		if err := c.store.UpdateSession(ctx, s); err != nil {
			return closed, fmt.Errorf("failed to close focus session %s: %w", s.ID, err)
		}
		closed++
	}

	if closed > 0 {
		c.logger.Info("closed abandoned focus sessions", zap.Int("count", closed))
	}
	return closed, nil
}

// Status returns the controller's current state.
func (c *FocusController) Status() FocusStatus {
	c.mu.Lock()
	defer c.mu.Unlock()

	st := FocusStatus{State: c.state}
	if c.session != nil {
		s := *c.session
		st.Session = &s
		st.Remaining = c.remainingDuration()
		st.Progress = c.progress()
	}
	return st
}

// Done returns a channel closed when the current session's countdown exits,
// or nil when idle.
func (c *FocusController) Done() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != FocusActive {
		return nil
	}
	return c.done
}

// Subscribe registers an observer. Slow observers miss ticks rather than
// stalling the countdown.
func (c *FocusController) Subscribe() (<-chan FocusTick, func()) {
	c.subMu.Lock()
	defer c.subMu.Unlock()

	id := c.nextSub
	c.nextSub++
	ch := make(chan FocusTick, tickBuffer)
	c.subs[id] = ch

	return ch, func() {
		c.subMu.Lock()
		defer c.subMu.Unlock()
		if _, ok := c.subs[id]; ok {
			delete(c.subs, id)
			close(ch)
		}
	}
}

func (c *FocusController) run(id string, ticker domain.Ticker, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C():
			if finished := c.tick(id); finished {
				return
			}
		}
	}
}

// tick advances the countdown by one second. Completion happens in the same
// critical section as the last tick, so the flag drops exactly once.
func (c *FocusController) tick(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != FocusActive || c.session == nil || c.session.ID != id {
		return true
	}

	c.remaining--
	if c.remaining < 0 {
		c.remaining = 0
	}
	tick := FocusTick{
		SessionID: id,
		Remaining: c.remainingDuration(),
		Progress:  c.progress(),
	}

	if c.remaining == 0 {
		tick.Done = true
		if _, err := c.finish(context.Background(), true); err != nil {
			c.logger.Error("failed to save completed focus session", zap.Error(err))
		}
	}

	c.publish(tick)
	return tick.Done
}

// finish ends the session. Caller holds c.mu.
func (c *FocusController) finish(ctx context.Context, completed bool) (domain.FocusSession, error) {
	now := c.clock.Now()
	s := *c.session
	s.EndTime = &now
	if completed {
		s.ActualMinutes = s.PlannedMinutes
		s.Completed = true
		c.state = FocusCompleted
	} else {
		s.ActualMinutes = stoppedMinutes(s, now)
		s.Completed = false
		c.state = FocusStopped
	}

	c.flag.set(false)
	c.logger.Info("focus session ended",
		zap.String("session", s.ID),
		zap.String("result", c.state.String()),
		zap.Int("actual_minutes", s.ActualMinutes))

	c.session = nil
	c.remaining = 0
	c.state = FocusIdle
	c.metrics.FocusSessionEnded(completed)

	if err := c.store.UpdateSession(ctx, s); err != nil {
		return s, fmt.Errorf("failed to save focus session: %w", err)
	}
	return s, nil
}

func (c *FocusController) publish(tick FocusTick) {
	c.subMu.Lock()
	defer c.subMu.Unlock()

	for _, ch := range c.subs {
		select {
		case ch <- tick:
		default:
		}
	}
}

func (c *FocusController) remainingDuration() time.Duration {
	return time.Duration(c.remaining) * time.Second
}

func (c *FocusController) progress() float64 {
	if c.total == 0 {
		return 0
	}
	return float64(c.remaining) / float64(c.total)
}

// stoppedMinutes is the whole minutes an unfinished session ran, capped at
// the plan. A suspended host can leave the wall clock ahead of the countdown.
func stoppedMinutes(s domain.FocusSession, now time.Time) int {
	if m := elapsedMinutes(s.StartTime, now); m < s.PlannedMinutes {
		return m
	}
	return s.PlannedMinutes
}

func elapsedMinutes(start, end time.Time) int {
	if end.Before(start) {
		return 0
	}
	return int(end.Sub(start) / time.Minute)
}
