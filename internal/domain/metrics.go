package domain

import "time"

// Metrics receives engine counters.
// Implementation: Prometheus collectors in infra.
type Metrics interface {
	DecisionMade(outcome Intervention, elapsed time.Duration)
	EventsDropped(reason string, n int)
	BucketRowsWritten(n int)
	FocusSessionEnded(completed bool)
	RollupRun(result string)
	JobFailed(job string)
}

// NopMetrics discards everything.
type NopMetrics struct{}

func (NopMetrics) DecisionMade(Intervention, time.Duration) {}
func (NopMetrics) EventsDropped(string, int)                {}
func (NopMetrics) BucketRowsWritten(int)                    {}
func (NopMetrics) FocusSessionEnded(bool)                   {}
func (NopMetrics) RollupRun(string)                         {}
func (NopMetrics) JobFailed(string)                         {}

var _ Metrics = NopMetrics{}
