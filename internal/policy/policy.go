// Package policy implements the ordered intervention rule table.
// Each rule pairs a predicate over decision facts with the outcome it produces.
package policy

import (
	"time"

	"github.com/eliteGoblin/focusd/usage_mon/internal/domain"
)

// Facts is everything a rule may look at for one foreground event.
type Facts struct {
	Package     string
	Policy      domain.AppPolicy
	UsageToday  time.Duration
	FocusActive bool
}

// Predicate reports whether a rule applies to the facts.
type Predicate func(f Facts) bool

// Rule maps a predicate to an intervention outcome.
type Rule struct {
	ID      string
	Outcome domain.Intervention
	When    Predicate
}

// Rule IDs of the default table.
const (
	RuleFocusSession  = "focus_session"
	RuleLimitExceeded = "limit_exceeded"
	RuleIntention     = "require_intention"
	RulePause         = "pause_exercise"
)

// FocusSessionActive matches while a focus session runs, regardless of policy.
func FocusSessionActive(f Facts) bool {
	return f.FocusActive
}

// LimitExceeded matches when today's usage is strictly over a configured limit.
func LimitExceeded(f Facts) bool {
	limit := f.Policy.TimeLimit()
	return limit > 0 && f.UsageToday > limit
}

// IntentionRequired matches apps that ask the user to state an intention.
func IntentionRequired(f Facts) bool {
	return f.Policy.RequiresIntention
}

// Tracked matches any tracked app.
func Tracked(f Facts) bool {
	return f.Policy.Tracked
}
