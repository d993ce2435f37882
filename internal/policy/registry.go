package policy

import (
	"fmt"

	"github.com/eliteGoblin/focusd/usage_mon/internal/domain"
)

// Table holds rules in priority order. The first matching rule wins.
// A hard stop always precedes a soft nudge so the user cannot downgrade it.
type Table struct {
	rules []Rule
}

// DefaultTable returns the production priority order.
func DefaultTable() *Table {
	return NewTable(
		Rule{ID: RuleFocusSession, Outcome: domain.InterventionFocusSession, When: FocusSessionActive},
		Rule{ID: RuleLimitExceeded, Outcome: domain.InterventionLimitExceeded, When: LimitExceeded},
		Rule{ID: RuleIntention, Outcome: domain.InterventionRequireIntention, When: IntentionRequired},
		Rule{ID: RulePause, Outcome: domain.InterventionPauseExercise, When: Tracked},
	)
}

// NewTable creates a table with custom rules (for testing).
func NewTable(rules ...Rule) *Table {
	t := &Table{}
	for _, r := range rules {
		t.Register(r)
	}
	return t
}

// Register appends a rule at the lowest priority.
func (t *Table) Register(r Rule) {
	t.rules = append(t.rules, r)
}

// Rules returns a copy of the rules in priority order.
func (t *Table) Rules() []Rule {
	out := make([]Rule, len(t.rules))
	copy(out, t.rules)
	return out
}

// Evaluate returns the first rule whose predicate matches.
func (t *Table) Evaluate(f Facts) (Rule, bool) {
	for _, r := range t.rules {
		if r.When != nil && r.When(f) {
			return r, true
		}
	}
	return Rule{}, false
}

// Validate rejects tables with duplicate IDs or missing predicates.
func (t *Table) Validate() error {
	seen := make(map[string]bool, len(t.rules))
	for _, r := range t.rules {
		if r.When == nil {
			return fmt.Errorf("rule %q has no predicate", r.ID)
		}
		if seen[r.ID] {
			return fmt.Errorf("duplicate rule id: %s", r.ID)
		}
		seen[r.ID] = true
	}
	return nil
}
