// Package usecase contains application business logic.
package usecase

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/usage_mon/internal/domain"
)

// Reasons reported to Metrics.EventsDropped.
const (
	DropOutOfOrder = "out_of_order"
	DropOrphaned   = "orphaned_background"
	DropMalformed  = "malformed"
)

// BucketStats counts what a bucketing pass kept and dropped.
type BucketStats struct {
	Accepted   int
	OutOfOrder int
	Orphaned   int
	Malformed  int
}

type bucketKey struct {
	pkg  string
	hour int64 // unix seconds of the hour start
}

type bucketAcc struct {
	hourStart time.Time
	duration  time.Duration
	opens     int
}

type pendingState struct {
	lastSeen   time.Time
	seen       bool
	foreground time.Time
	open       bool
}

// Bucket reduces a transition stream into hourly rows.
//
// A foreground event counts one open in its own hour and starts an interval.
// A background event closes the pending interval and credits the whole duration
// to the hour the interval started in, even across hour boundaries.
// Background events without a pending foreground, and events earlier than the
// previous event of the same package, are dropped.
func Bucket(events []domain.UsageEvent, loc *time.Location) ([]domain.HourlyUsage, BucketStats) {
	var stats BucketStats
	pending := make(map[string]*pendingState)
	acc := make(map[bucketKey]*bucketAcc)

	bucket := func(pkg string, at time.Time) *bucketAcc {
		hour := domain.HourStart(at, loc)
		k := bucketKey{pkg: pkg, hour: hour.Unix()}
		b, ok := acc[k]
		if !ok {
			b = &bucketAcc{hourStart: hour}
			acc[k] = b
		}
		return b
	}

	for _, ev := range events {
		if ev.Package == "" || ev.Timestamp.IsZero() {
			stats.Malformed++
			continue
		}
		st, ok := pending[ev.Package]
		if !ok {
			st = &pendingState{}
			pending[ev.Package] = st
		}
		if st.seen && ev.Timestamp.Before(st.lastSeen) {
			stats.OutOfOrder++
			continue
		}

		switch ev.Kind {
		case domain.EventForeground:
			bucket(ev.Package, ev.Timestamp).opens++
			st.foreground = ev.Timestamp
			st.open = true
		case domain.EventBackground:
			if !st.open {
				stats.Orphaned++
				st.lastSeen, st.seen = ev.Timestamp, true
				continue
			}
			bucket(ev.Package, st.foreground).duration += ev.Timestamp.Sub(st.foreground)
			st.open = false
		default:
			stats.Malformed++
			continue
		}
		st.lastSeen, st.seen = ev.Timestamp, true
		stats.Accepted++
	}

	rows := make([]domain.HourlyUsage, 0, len(acc))
	for k, b := range acc {
		rows = append(rows, domain.HourlyUsage{
			Package:   k.pkg,
			HourStart: b.hourStart,
			Duration:  b.duration,
			OpenCount: b.opens,
		})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Package != rows[j].Package {
			return rows[i].Package < rows[j].Package
		}
		return rows[i].HourStart.Before(rows[j].HourStart)
	})
	return rows, stats
}

// UsageBucketer turns one day of OS transitions into persisted hourly usage.
type UsageBucketer struct {
	source  domain.EventSource
	store   domain.UsageStore
	loc     *time.Location
	metrics domain.Metrics
	logger  *zap.Logger

	// mu serializes the read-modify-write of a bucketing pass.
	mu sync.Mutex
}

// NewUsageBucketer creates a bucketer reading from source and writing to store.
func NewUsageBucketer(
	source domain.EventSource,
	store domain.UsageStore,
	loc *time.Location,
	metrics domain.Metrics,
	logger *zap.Logger,
) *UsageBucketer {
	if loc == nil {
		loc = time.Local
	}
	if metrics == nil {
		metrics = domain.NopMetrics{}
	}
	return &UsageBucketer{
		source:  source,
		store:   store,
		loc:     loc,
		metrics: metrics,
		logger:  logger,
	}
}

// RunForDay rebuilds the hourly rows of the calendar day containing day.
// Rerunning for the same day overwrites rows rather than adding to them.
func (b *UsageBucketer) RunForDay(ctx context.Context, day time.Time) (int, error) {
	start := domain.DayStart(day, b.loc)
	end := domain.DayStart(start.AddDate(0, 0, 1), b.loc)

	b.mu.Lock()
	defer b.mu.Unlock()

	events, err := b.source.QueryEvents(ctx, start, end)
	if err != nil {
		return 0, fmt.Errorf("failed to query events: %w", err)
	}

	rows, stats := Bucket(events, b.loc)
	b.reportDrops(start, stats)

	if len(rows) == 0 {
		b.logger.Debug("no usage to bucket", zap.Time("day", start))
		return 0, nil
	}

	if err := b.store.UpsertHourlyUsage(ctx, rows); err != nil {
		return 0, fmt.Errorf("failed to upsert hourly usage: %w", err)
	}
	b.metrics.BucketRowsWritten(len(rows))

	b.logger.Info("bucketed usage",
		zap.Time("day", start),
		zap.Int("events", len(events)),
		zap.Int("rows", len(rows)))

	return len(rows), nil
}

func (b *UsageBucketer) reportDrops(day time.Time, stats BucketStats) {
	drops := map[string]int{
		DropOutOfOrder: stats.OutOfOrder,
		DropOrphaned:   stats.Orphaned,
		DropMalformed:  stats.Malformed,
	}
	for reason, n := range drops {
		if n == 0 {
			continue
		}
		b.metrics.EventsDropped(reason, n)
		b.logger.Debug("dropped usage events",
			zap.Time("day", day),
			zap.String("reason", reason),
			zap.Int("count", n))
	}
}
