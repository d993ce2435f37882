// Package fixtures provides test helpers for integration tests.
package fixtures

import (
	"time"

	"github.com/eliteGoblin/focusd/usage_mon/internal/domain"
)

// Timeline builds a FOREGROUND/BACKGROUND stream the way an OS event
// source would report it, advancing a cursor as apps are used.
type Timeline struct {
	at     time.Time
	events []domain.UsageEvent
}

// NewTimeline starts a timeline at start.
func NewTimeline(start time.Time) *Timeline {
	return &Timeline{at: start}
}

// Use opens pkg now and closes it after d.
func (t *Timeline) Use(pkg string, d time.Duration) *Timeline {
	return t.Open(pkg).Idle(d).Close(pkg)
}

// Open records a FOREGROUND for pkg at the cursor.
func (t *Timeline) Open(pkg string) *Timeline {
	t.events = append(t.events, domain.UsageEvent{Package: pkg, Timestamp: t.at, Kind: domain.EventForeground})
	return t
}

// Close records a BACKGROUND for pkg at the cursor.
func (t *Timeline) Close(pkg string) *Timeline {
	t.events = append(t.events, domain.UsageEvent{Package: pkg, Timestamp: t.at, Kind: domain.EventBackground})
	return t
}

// Idle advances the cursor without events.
func (t *Timeline) Idle(d time.Duration) *Timeline {
	t.at = t.at.Add(d)
	return t
}

// At returns the cursor.
func (t *Timeline) At() time.Time {
	return t.at
}

// Events returns a copy of the recorded stream.
func (t *Timeline) Events() []domain.UsageEvent {
	return append([]domain.UsageEvent(nil), t.events...)
}
