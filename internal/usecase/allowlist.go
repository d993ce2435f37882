package usecase

import (
	"sync/atomic"
	"time"
)

// DefaultDebounceWindow is how long a "continue anyway" choice suppresses re-prompts.
const DefaultDebounceWindow = 2 * time.Second

type allowEntry struct {
	pkg      string
	issuedAt time.Time
}

// Allowlist is a single-entry pass: only the most recent approval is honored.
// Entries are never cleared; they expire by elapsed time at read.
type Allowlist struct {
	window time.Duration
	entry  atomic.Pointer[allowEntry]
}

// NewAllowlist creates an empty allowlist.
func NewAllowlist(window time.Duration) *Allowlist {
	if window <= 0 {
		window = DefaultDebounceWindow
	}
	return &Allowlist{window: window}
}

// Allow replaces the current pass with one for pkg issued at now.
func (a *Allowlist) Allow(pkg string, now time.Time) {
	a.entry.Store(&allowEntry{pkg: pkg, issuedAt: now})
}

// Allowed reports whether pkg holds a pass younger than the window.
// Reading does not consume the pass.
func (a *Allowlist) Allowed(pkg string, now time.Time) bool {
	e := a.entry.Load()
	if e == nil || e.pkg != pkg {
		return false
	}
	return now.Sub(e.issuedAt) < a.window
}

// Window returns the debounce window.
func (a *Allowlist) Window() time.Duration {
	return a.window
}
